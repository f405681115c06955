package tunnel

import (
	"context"
	"net"
	"sync"
	"testing"

	"github.com/didierodjou/televkvpn/internal/obslog"
	"github.com/didierodjou/televkvpn/pkg/layer2"
)

// fakeTAP is an in-memory TAPDevice used only by tests: WriteChannel
// writes are captured instead of touching a real adapter.
type fakeTAP struct {
	mu      sync.Mutex
	written [][]byte
	write   chan []byte
	read    chan *layer2.EthernetFrame
	mac     [6]byte
}

func newFakeTAP() *fakeTAP {
	return &fakeTAP{
		write: make(chan []byte, 100),
		read:  make(chan *layer2.EthernetFrame, 100),
		mac:   [6]byte{0xaa, 0xbb, 0xcc, 0x00, 0x00, 0x01},
	}
}

func (f *fakeTAP) Start() {}

// Stop drains whatever is currently buffered in the write channel. Tests
// call it after their synchronous HandleTAPFrame/HandleFromTransport
// calls, so nothing remains in flight.
func (f *fakeTAP) Stop() error {
	close(f.write)
	f.mu.Lock()
	defer f.mu.Unlock()
	for frame := range f.write {
		f.written = append(f.written, frame)
	}
	return nil
}
func (f *fakeTAP) ReadChannel() <-chan *layer2.EthernetFrame        { return f.read }
func (f *fakeTAP) WriteChannel() chan<- []byte                      { return f.write }
func (f *fakeTAP) MACAddress() ([6]byte, error)                     { return f.mac, nil }
func (f *fakeTAP) AssignIP(ip string, prefixLength int) error       { return nil }
func (f *fakeTAP) MTU() int                                          { return 1280 }
func (f *fakeTAP) PacketCount() uint64                               { return 0 }

func (f *fakeTAP) lastWritten() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.written) == 0 {
		return nil
	}
	return f.written[len(f.written)-1]
}

func (f *fakeTAP) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.written)
}

func testHandler(t *testing.T, tap TAPDevice, sent *[][]byte) *Handler {
	t.Helper()
	var mu sync.Mutex
	log, err := obslog.New("tunnel-test", obslog.ERROR, "")
	if err != nil {
		t.Fatalf("obslog.New: %v", err)
	}
	cfg := Config{
		Mode:         RoleClient,
		TAPIfaceName: "televk0",
		LocalIP:      net.ParseIP("10.8.0.2"),
		PeerIP:       net.ParseIP("10.8.0.1"),
		MaxFrameSize: 1500,
	}
	h := New(cfg, tap, nil, func(packet []byte) {
		mu.Lock()
		*sent = append(*sent, append([]byte(nil), packet...))
		mu.Unlock()
	}, log)
	h.ctx = context.Background()
	return h
}

// TestHandleTAPFrame_GarbageDropped verifies broadcast/garbage traffic
// never reaches the transport.
func TestHandleTAPFrame_GarbageDropped(t *testing.T) {
	var sent [][]byte
	tap := newFakeTAP()
	h := testHandler(t, tap, &sent)

	payload := make([]byte, 20)
	payload[0] = 0x45
	payload[9] = 17 // UDP
	copy(payload[16:20], net.ParseIP("255.255.255.255").To4())

	h.HandleTAPFrame(&layer2.EthernetFrame{EtherType: layer2.EtherTypeIPv4, Payload: payload})

	if len(sent) != 0 {
		t.Fatalf("expected garbage frame to be dropped, got %d forwarded", len(sent))
	}
}

// TestHandleTAPFrame_ForwardsIPv4 verifies an ordinary IPv4 payload is
// forwarded to the transport unchanged.
func TestHandleTAPFrame_ForwardsIPv4(t *testing.T) {
	var sent [][]byte
	tap := newFakeTAP()
	h := testHandler(t, tap, &sent)

	payload := make([]byte, 20)
	payload[0] = 0x45
	payload[9] = 6 // TCP
	copy(payload[16:20], net.ParseIP("93.184.216.34").To4())

	h.HandleTAPFrame(&layer2.EthernetFrame{EtherType: layer2.EtherTypeIPv4, Payload: payload})

	if len(sent) != 1 {
		t.Fatalf("expected exactly one forwarded packet, got %d", len(sent))
	}
}

// TestHandleTAPFrame_ARPReply verifies an ARP request for the tunnel's
// fake peer produces a reply written back to TAP, not forwarded over the
// transport.
func TestHandleTAPFrame_ARPReply(t *testing.T) {
	var sent [][]byte
	tap := newFakeTAP()
	h := testHandler(t, tap, &sent)

	requester := [6]byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	body := make([]byte, 28)
	body[6], body[7] = 0x00, 0x01 // ARP request opcode
	copy(body[8:14], requester[:])
	copy(body[14:18], net.ParseIP("10.8.0.2").To4())
	copy(body[24:28], net.ParseIP("10.8.0.1").To4()) // target: this role's peer

	h.HandleTAPFrame(&layer2.EthernetFrame{
		SourceMAC: requester,
		EtherType: layer2.EtherTypeARP,
		Payload:   body,
	})

	if len(sent) != 0 {
		t.Fatalf("ARP traffic must never reach the transport, got %d forwarded", len(sent))
	}

	tap.Stop()
	if tap.writeCount() != 1 {
		t.Fatalf("expected exactly one ARP reply written to TAP, got %d", tap.writeCount())
	}

	reply := tap.lastWritten()
	frame, err := layer2.ParseFrame(reply, 0)
	if err != nil {
		t.Fatalf("ARP reply did not parse as a frame: %v", err)
	}
	if frame.EtherType != layer2.EtherTypeARP {
		t.Fatalf("expected ARP reply frame, got ethertype 0x%04x", frame.EtherType)
	}
	if frame.DestinationMAC != requester {
		t.Fatalf("ARP reply destination MAC = %x, want %x", frame.DestinationMAC, requester)
	}
}

// TestHandleFromTransport_WritesTAP verifies an inbound IP packet gets a
// fixed Ethernet header and is written to TAP.
func TestHandleFromTransport_WritesTAP(t *testing.T) {
	var sent [][]byte
	tap := newFakeTAP()
	h := testHandler(t, tap, &sent)

	packet := []byte{0x45, 0x00, 0x00, 0x14}
	h.HandleFromTransport(packet)

	tap.Stop()
	if tap.writeCount() != 1 {
		t.Fatalf("expected one frame written to TAP, got %d", tap.writeCount())
	}
}

// TestTrafficStartedFiresOnce verifies the traffic-started callback fires
// exactly once across multiple real packets in both directions.
func TestTrafficStartedFiresOnce(t *testing.T) {
	var sent [][]byte
	tap := newFakeTAP()
	h := testHandler(t, tap, &sent)

	var fired int
	var mu sync.Mutex
	h.SetTrafficStartedCallback(func() {
		mu.Lock()
		fired++
		mu.Unlock()
	})

	payload := make([]byte, 20)
	payload[0] = 0x45
	copy(payload[16:20], net.ParseIP("8.8.8.8").To4())

	h.HandleTAPFrame(&layer2.EthernetFrame{EtherType: layer2.EtherTypeIPv4, Payload: payload})
	h.HandleTAPFrame(&layer2.EthernetFrame{EtherType: layer2.EtherTypeIPv4, Payload: payload})
	h.HandleFromTransport([]byte{0x45, 0x00, 0x00, 0x14})

	mu.Lock()
	defer mu.Unlock()
	if fired != 1 {
		t.Fatalf("traffic-started callback fired %d times, want exactly 1", fired)
	}
}
