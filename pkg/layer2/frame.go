// Package layer2 parses and synthesizes the Ethernet frames exchanged with
// the TAP adapter: header framing, the garbage filter that keeps LAN noise
// off the tunnel, and ARP reply synthesis for the tunnel's fake peer.
package layer2

import (
	"encoding/binary"
	"fmt"
)

// EthernetFrame represents a parsed Layer 2 Ethernet frame.
type EthernetFrame struct {
	DestinationMAC [6]byte
	SourceMAC      [6]byte
	EtherType      uint16
	Payload        []byte
}

// Common EtherType values.
const (
	EtherTypeIPv4 = 0x0800
	EtherTypeARP  = 0x0806
	EtherTypeIPv6 = 0x86DD
)

// EthernetHeaderSize is the fixed 14-byte Ethernet header length.
const EthernetHeaderSize = 14

// MinFrameSize is the minimum valid frame size (header only).
const MinFrameSize = EthernetHeaderSize

// ParseFrame parses raw Ethernet frame data into an EthernetFrame struct.
//
// Unlike a physical NIC driver, maxSize is caller-supplied: it should be the
// configured MTU plus EthernetHeaderSize, since the tunnel's MTU is not the
// Ethernet-standard 1500.
func ParseFrame(data []byte, maxSize int) (*EthernetFrame, error) {
	if len(data) < MinFrameSize {
		return nil, fmt.Errorf("frame too small: got %d bytes, minimum %d bytes required", len(data), MinFrameSize)
	}
	if maxSize > 0 && len(data) > maxSize {
		return nil, fmt.Errorf("frame too large: got %d bytes, maximum %d bytes allowed", len(data), maxSize)
	}

	frame := &EthernetFrame{}
	copy(frame.DestinationMAC[:], data[0:6])
	copy(frame.SourceMAC[:], data[6:12])
	frame.EtherType = binary.BigEndian.Uint16(data[12:14])

	if len(data) > EthernetHeaderSize {
		frame.Payload = make([]byte, len(data)-EthernetHeaderSize)
		copy(frame.Payload, data[EthernetHeaderSize:])
	}

	return frame, nil
}

// Serialize converts the EthernetFrame back to raw bytes.
func (f *EthernetFrame) Serialize() []byte {
	size := EthernetHeaderSize + len(f.Payload)
	data := make([]byte, size)

	copy(data[0:6], f.DestinationMAC[:])
	copy(data[6:12], f.SourceMAC[:])
	binary.BigEndian.PutUint16(data[12:14], f.EtherType)
	if len(f.Payload) > 0 {
		copy(data[EthernetHeaderSize:], f.Payload)
	}

	return data
}

// String returns a human-readable representation of the Ethernet frame.
func (f *EthernetFrame) String() string {
	etherTypeStr := fmt.Sprintf("0x%04X", f.EtherType)
	switch f.EtherType {
	case EtherTypeIPv4:
		etherTypeStr = "IPv4"
	case EtherTypeARP:
		etherTypeStr = "ARP"
	case EtherTypeIPv6:
		etherTypeStr = "IPv6"
	}

	return fmt.Sprintf("Frame[dst=%02x:%02x:%02x:%02x:%02x:%02x, src=%02x:%02x:%02x:%02x:%02x:%02x, type=%s, payload=%d bytes]",
		f.DestinationMAC[0], f.DestinationMAC[1], f.DestinationMAC[2],
		f.DestinationMAC[3], f.DestinationMAC[4], f.DestinationMAC[5],
		f.SourceMAC[0], f.SourceMAC[1], f.SourceMAC[2],
		f.SourceMAC[3], f.SourceMAC[4], f.SourceMAC[5],
		etherTypeStr, len(f.Payload))
}
