package layer2

import (
	"bytes"
	"net"
	"testing"
)

func sampleARPRequest(senderMAC [6]byte, senderIP, targetIP [4]byte) []byte {
	body := make([]byte, 28)
	body[0], body[1] = 0x00, 0x01 // HTYPE Ethernet
	body[2], body[3] = 0x08, 0x00 // PTYPE IPv4
	body[4] = 6
	body[5] = 4
	body[6], body[7] = 0x00, 0x01 // opcode: request
	copy(body[8:14], senderMAC[:])
	copy(body[14:18], senderIP[:])
	// target MAC left zeroed, as in a real request
	copy(body[24:28], targetIP[:])
	return body
}

func TestBuildARPReplyForOwnedIP(t *testing.T) {
	senderMAC := [6]byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	senderIP := [4]byte{10, 8, 0, 2}
	targetIP := [4]byte{10, 8, 0, 1}

	req := sampleARPRequest(senderMAC, senderIP, targetIP)

	reply, ok := BuildARPReply(senderMAC, req, net.IPv4(10, 8, 0, 1))
	if !ok {
		t.Fatal("BuildARPReply() ok = false, want true for request targeting peer IP")
	}

	if len(reply) != 42 {
		t.Fatalf("reply length = %d, want 42", len(reply))
	}

	frame, err := ParseFrame(reply, 0)
	if err != nil {
		t.Fatalf("ParseFrame() on reply failed: %v", err)
	}

	if frame.DestinationMAC != senderMAC {
		t.Errorf("reply DestinationMAC = %v, want %v", frame.DestinationMAC, senderMAC)
	}
	if frame.SourceMAC != PeerMAC {
		t.Errorf("reply SourceMAC = %v, want %v", frame.SourceMAC, PeerMAC)
	}
	if frame.EtherType != EtherTypeARP {
		t.Errorf("reply EtherType = 0x%04X, want ARP", frame.EtherType)
	}

	body := frame.Payload
	if body[6] != 0x00 || body[7] != 0x02 {
		t.Errorf("reply opcode = %02x%02x, want 0x0002 (reply)", body[6], body[7])
	}
	if !bytes.Equal(body[8:14], PeerMAC[:]) {
		t.Errorf("reply sender MAC = %v, want %v", body[8:14], PeerMAC)
	}
	if !bytes.Equal(body[14:18], targetIP[:]) {
		t.Errorf("reply sender IP = %v, want %v (the request's target)", body[14:18], targetIP)
	}
	if !bytes.Equal(body[18:24], senderMAC[:]) {
		t.Errorf("reply target MAC = %v, want %v (echoed from request sender)", body[18:24], senderMAC)
	}
	if !bytes.Equal(body[24:28], senderIP[:]) {
		t.Errorf("reply target IP = %v, want %v (echoed from request sender)", body[24:28], senderIP)
	}
}

func TestBuildARPReplyIgnoresOtherTargets(t *testing.T) {
	senderMAC := [6]byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	req := sampleARPRequest(senderMAC, [4]byte{10, 8, 0, 2}, [4]byte{10, 8, 0, 99})

	_, ok := BuildARPReply(senderMAC, req, net.IPv4(10, 8, 0, 1))
	if ok {
		t.Error("BuildARPReply() ok = true, want false for request targeting a different IP")
	}
}

func TestBuildARPReplyIgnoresReplies(t *testing.T) {
	senderMAC := [6]byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	req := sampleARPRequest(senderMAC, [4]byte{10, 8, 0, 2}, [4]byte{10, 8, 0, 1})
	req[6], req[7] = 0x00, 0x02 // mark as a reply, not a request

	_, ok := BuildARPReply(senderMAC, req, net.IPv4(10, 8, 0, 1))
	if ok {
		t.Error("BuildARPReply() ok = true, want false for non-request ARP opcode")
	}
}

func TestBuildARPReplyRejectsShortBody(t *testing.T) {
	_, ok := BuildARPReply([6]byte{}, []byte{0x00, 0x01}, net.IPv4(10, 8, 0, 1))
	if ok {
		t.Error("BuildARPReply() ok = true, want false for truncated ARP body")
	}
}
