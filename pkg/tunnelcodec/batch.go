// Package tunnelcodec implements the wire-level batch framing and
// compression applied to tunnel payloads before they are sealed and
// attached to a carrier message.
package tunnelcodec

import (
	"encoding/binary"
	"fmt"
)

// lengthPrefixSize is the size in bytes of the length prefix in front of
// each packet in a batch.
const lengthPrefixSize = 2

// MaxPacketLength is the largest packet length a uint16 length prefix can
// express.
const MaxPacketLength = 0xFFFF

// AppendToBatch appends packet to buf in u16be_len‖payload form, as the
// batching sender accumulates packets ahead of a seal-and-send cycle.
func AppendToBatch(buf []byte, packet []byte) ([]byte, error) {
	if len(packet) > MaxPacketLength {
		return nil, fmt.Errorf("tunnelcodec: packet of %d bytes exceeds max batch entry size %d", len(packet), MaxPacketLength)
	}

	var prefix [lengthPrefixSize]byte
	binary.BigEndian.PutUint16(prefix[:], uint16(len(packet)))

	buf = append(buf, prefix[:]...)
	buf = append(buf, packet...)
	return buf, nil
}

// SplitBatch decodes a batch built by AppendToBatch back into individual
// packets. Any trailing bytes that do not form a complete length-prefixed
// entry are silently dropped rather than treated as an error: a batch that
// arrived truncated (e.g. a carrier upload that was cut short) should still
// yield the packets that did arrive intact.
func SplitBatch(data []byte) [][]byte {
	var packets [][]byte

	idx := 0
	total := len(data)
	for idx < total {
		if idx+lengthPrefixSize > total {
			break
		}
		pktLen := int(binary.BigEndian.Uint16(data[idx : idx+lengthPrefixSize]))
		idx += lengthPrefixSize

		if idx+pktLen > total {
			break
		}
		packets = append(packets, data[idx:idx+pktLen])
		idx += pktLen
	}

	return packets
}
