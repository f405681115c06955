// Package tunnel implements the packet-handler data-plane state machine:
// it classifies TAP frames, answers ARP for the tunnel's fake peer,
// strips/rebuilds Ethernet headers, and bridges the TAP device to the
// configured Transport in both directions.
package tunnel

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/didierodjou/televkvpn/internal/hostnet"
	"github.com/didierodjou/televkvpn/internal/metrics"
	"github.com/didierodjou/televkvpn/internal/obslog"
	"github.com/didierodjou/televkvpn/pkg/layer2"
)

// Role is which side of the tunnel this process runs as.
type Role string

const (
	RoleClient Role = "client"
	RoleServer Role = "server"
)

// localMACFor returns the fixed, locally-administered MAC this process
// uses on frames it writes to TAP, when the adapter's real hardware
// address can't be queried (non-Windows dev/test backends). On Windows,
// Handler prefers the adapter's actual MAC.
func localMACFor(role Role) [6]byte {
	if role == RoleServer {
		return [6]byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x03}
	}
	return [6]byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
}

// TAPDevice is the subset of tapdevice.Device the handler depends on,
// narrowed to an interface so tests can substitute a fake adapter.
type TAPDevice interface {
	Start()
	Stop() error
	ReadChannel() <-chan *layer2.EthernetFrame
	WriteChannel() chan<- []byte
	MACAddress() ([6]byte, error)
	AssignIP(ip string, prefixLength int) error
	MTU() int
	PacketCount() uint64
}

// Handler runs the tunnel's single packet-handler instance for one role.
// It does not hold the Transport itself: the caller (internal/app) wires
// transport.Init's recv callback to HandleFromTransport and transport.Send
// to the sendToTransport func passed into New, so this package never
// depends on internal/transport directly.
type Handler struct {
	mode Role
	tap  TAPDevice

	localIP       net.IP
	peerIP        net.IP
	localMAC      [6]byte
	maxFrameSize  int
	tapIfaceName  string
	hostnetBringup func() error
	hostnetCleanup func() error

	log *obslog.Logger

	sendToTransport func([]byte)

	trafficOnce      sync.Once
	onTrafficStarted func()

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config carries everything Handler needs that isn't itself a component
// interface.
type Config struct {
	Mode         Role
	TAPIfaceName string
	LocalIP      net.IP
	PeerIP       net.IP
	MaxFrameSize int

	// Bringup/Cleanup encapsulate the role-specific hostnet.SetupClient /
	// hostnet.SetupServer call (and its teardown), built by the caller
	// from the loaded Config so this package does not need to import
	// internal/config.
	Bringup func() error
	Cleanup func() error
}

// New constructs a Handler. hn is accepted for symmetry with the
// role-specific Bringup/Cleanup closures the caller builds from it, but
// Handler itself only ever invokes those closures, never hn directly.
// sendToTransport is the function the handler calls with an IP packet
// payload after the garbage filter passes it; normally transport.Send.
func New(cfg Config, tap TAPDevice, hn hostnet.HostNet, sendToTransport func([]byte), log *obslog.Logger) *Handler {
	return &Handler{
		mode:            cfg.Mode,
		tap:             tap,
		localIP:         cfg.LocalIP,
		peerIP:          cfg.PeerIP,
		maxFrameSize:    cfg.MaxFrameSize,
		tapIfaceName:    cfg.TAPIfaceName,
		hostnetBringup:  cfg.Bringup,
		hostnetCleanup:  cfg.Cleanup,
		log:             log,
		sendToTransport: sendToTransport,
		localMAC:        localMACFor(cfg.Mode),
	}
}

// SetTrafficStartedCallback registers the callback fired exactly once per
// run, on the first non-garbage packet this side observes.
func (h *Handler) SetTrafficStartedCallback(fn func()) {
	h.onTrafficStarted = fn
}

// Start brings the tunnel up: best-effort pre-cleanup of stale host
// networking, TAP IP assignment and MAC discovery, host-network bring-up,
// then the TAP read loop. Transport bring-up is the caller's
// responsibility (it must be initialized with HandleFromTransport as the
// receive callback before Start is called).
func (h *Handler) Start(ctx context.Context) error {
	h.ctx, h.cancel = context.WithCancel(ctx)

	if h.hostnetCleanup != nil {
		if err := h.hostnetCleanup(); err != nil {
			h.log.Warnf("tunnel: pre-cleanup of host networking failed (continuing): %v", err)
		}
	}

	if err := h.tap.AssignIP(h.localIP.String(), 24); err != nil {
		return fmt.Errorf("tunnel: assign TAP IP: %w", err)
	}

	mac, err := h.tap.MACAddress()
	if err != nil {
		h.log.Warnf("tunnel: could not query TAP MAC, using fixed fallback: %v", err)
	} else {
		h.localMAC = mac
	}

	h.tap.Start()

	if h.hostnetBringup != nil {
		if err := h.hostnetBringup(); err != nil {
			h.tap.Stop()
			return fmt.Errorf("tunnel: host network bring-up: %w", err)
		}
	}

	h.wg.Add(1)
	go h.tapLoop()

	return nil
}

// Stop reverses Start: stops the TAP loop, runs host-network cleanup, and
// closes the TAP device. Idempotent and best-effort per step, matching
// the expected best-effort cleanup contract.
func (h *Handler) Stop() error {
	if h.cancel != nil {
		h.cancel()
	}
	h.wg.Wait()

	if h.hostnetCleanup != nil {
		if err := h.hostnetCleanup(); err != nil {
			h.log.Warnf("tunnel: host network cleanup failed: %v", err)
		}
	}

	return h.tap.Stop()
}

func (h *Handler) tapLoop() {
	defer h.wg.Done()

	for {
		select {
		case <-h.ctx.Done():
			return
		case frame, ok := <-h.tap.ReadChannel():
			if !ok {
				return
			}
			h.HandleTAPFrame(frame)
		}
	}
}

// HandleTAPFrame implements the ingress state machine: drop
// anything too short or of an unsupported ethertype, apply the garbage
// filter to IPv4, answer ARP for this role's peer address, and forward
// everything else to the transport.
func (h *Handler) HandleTAPFrame(frame *layer2.EthernetFrame) {
	switch frame.EtherType {
	case layer2.EtherTypeIPv4:
		if layer2.IsGarbage(frame.Payload) {
			return
		}
		if h.mode == RoleClient {
			h.markTrafficStarted()
		}
		h.sendToTransport(frame.Payload)
		metrics.IncPacketsSent()

	case layer2.EtherTypeARP:
		reply, ok := layer2.BuildARPReply(frame.SourceMAC, frame.Payload, h.peerIP)
		if !ok {
			return
		}
		select {
		case h.tap.WriteChannel() <- reply:
		case <-h.ctx.Done():
		}

	default:
		// Unsupported ethertype; discard.
	}
}

// HandleFromTransport implements the egress state machine:
// prepend the fixed Ethernet header (destination: the local adapter's MAC;
// source: the fake neighbour PeerMAC) and write the frame to TAP. Both MACs
// are fixed for the life of the tunnel; there is no real L2 peer, only
// the carrier.
func (h *Handler) HandleFromTransport(ipPacket []byte) {
	frame := &layer2.EthernetFrame{
		SourceMAC: layer2.PeerMAC,
		EtherType: layer2.EtherTypeIPv4,
		Payload:   ipPacket,
	}
	frame.DestinationMAC = h.localMAC

	select {
	case h.tap.WriteChannel() <- frame.Serialize():
		if h.mode == RoleServer {
			h.markTrafficStarted()
		}
		metrics.IncPacketsReceived()
	case <-h.ctx.Done():
	}
}

// markTrafficStarted fires the traffic-started callback exactly once per
// run: the client fires it on its first non-garbage TAP ingress packet,
// the server on its first packet arriving from the transport.
func (h *Handler) markTrafficStarted() {
	h.trafficOnce.Do(func() {
		metrics.SetTrafficStarted()
		if h.onTrafficStarted != nil {
			h.onTrafficStarted()
		}
	})
}
