package layer2

import (
	"bytes"
	"encoding/binary"
	"net"
)

// PeerMAC is the fixed fake Layer-2 neighbour address the tunnel answers
// ARP requests with. The carrier is L3-only; there is no real peer on the
// local segment, so the tunnel fabricates just enough of an L2 neighbour
// for the OS to ARP-resolve the gateway once.
var PeerMAC = [6]byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}

const (
	arpOpRequest = 0x0001
	arpOpReply   = 0x0002
)

// BuildARPReply inspects an ARP payload (the bytes after the Ethernet
// header of an ARP frame) and, if it is a request for targetIP, returns the
// full Ethernet frame of the reply. ok is false if the payload is not a
// well-formed ARPv4-over-Ethernet request, or it targets a different IP.
func BuildARPReply(requestMAC [6]byte, arpBody []byte, targetIP net.IP) (reply []byte, ok bool) {
	if len(arpBody) < 28 {
		return nil, false
	}
	if binary.BigEndian.Uint16(arpBody[6:8]) != arpOpRequest {
		return nil, false
	}

	target := arpBody[24:28]
	ip4 := targetIP.To4()
	if ip4 == nil || !bytes.Equal(target, ip4) {
		return nil, false
	}

	senderMAC := arpBody[8:14]
	senderIP := arpBody[14:18]

	body := make([]byte, 28)
	binary.BigEndian.PutUint16(body[0:2], 0x0001) // HTYPE: Ethernet
	binary.BigEndian.PutUint16(body[2:4], 0x0800) // PTYPE: IPv4
	body[4] = 6                                   // HLEN
	body[5] = 4                                   // PLEN
	binary.BigEndian.PutUint16(body[6:8], arpOpReply)
	copy(body[8:14], PeerMAC[:])
	copy(body[14:18], target)
	copy(body[18:24], senderMAC)
	copy(body[24:28], senderIP)

	frame := &EthernetFrame{
		SourceMAC: PeerMAC,
		EtherType: EtherTypeARP,
		Payload:   body,
	}
	copy(frame.DestinationMAC[:], requestMAC[:])

	return frame.Serialize(), true
}
