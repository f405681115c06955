package layer2

import (
	"bytes"
	"testing"
)

const testMTU = 1500 // maximum frame size passed to ParseFrame in these tests

func TestParseFrameIPv4(t *testing.T) {
	data := []byte{
		0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF, // Destination MAC
		0x11, 0x22, 0x33, 0x44, 0x55, 0x66, // Source MAC
		0x08, 0x00, // EtherType: IPv4
		0x45, 0x00, 0x00, 0x3C, // IPv4 payload start
	}

	frame, err := ParseFrame(data, testMTU)
	if err != nil {
		t.Fatalf("ParseFrame() failed: %v", err)
	}

	expectedDst := [6]byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}
	if frame.DestinationMAC != expectedDst {
		t.Errorf("DestinationMAC = %v, want %v", frame.DestinationMAC, expectedDst)
	}

	expectedSrc := [6]byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66}
	if frame.SourceMAC != expectedSrc {
		t.Errorf("SourceMAC = %v, want %v", frame.SourceMAC, expectedSrc)
	}

	if frame.EtherType != EtherTypeIPv4 {
		t.Errorf("EtherType = 0x%04X, want 0x%04X (IPv4)", frame.EtherType, EtherTypeIPv4)
	}

	expectedPayload := []byte{0x45, 0x00, 0x00, 0x3C}
	if !bytes.Equal(frame.Payload, expectedPayload) {
		t.Errorf("Payload = %v, want %v", frame.Payload, expectedPayload)
	}
}

func TestParseFrameARP(t *testing.T) {
	data := []byte{
		0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, // Broadcast destination
		0x00, 0x11, 0x22, 0x33, 0x44, 0x55, // Source MAC
		0x08, 0x06, // EtherType: ARP
		0x00, 0x01, 0x08, 0x00, // ARP payload
	}

	frame, err := ParseFrame(data, testMTU)
	if err != nil {
		t.Fatalf("ParseFrame() failed: %v", err)
	}

	if frame.EtherType != EtherTypeARP {
		t.Errorf("EtherType = 0x%04X, want 0x%04X (ARP)", frame.EtherType, EtherTypeARP)
	}

	expectedPayload := []byte{0x00, 0x01, 0x08, 0x00}
	if !bytes.Equal(frame.Payload, expectedPayload) {
		t.Errorf("Payload = %v, want %v", frame.Payload, expectedPayload)
	}
}

func TestParseFrameIPv6(t *testing.T) {
	data := []byte{
		0x33, 0x33, 0x00, 0x00, 0x00, 0x01, // IPv6 multicast MAC
		0xFE, 0x80, 0x00, 0x00, 0x00, 0x01, // Source MAC
		0x86, 0xDD, // EtherType: IPv6
		0x60, 0x00, 0x00, 0x00, // IPv6 payload
	}

	frame, err := ParseFrame(data, testMTU)
	if err != nil {
		t.Fatalf("ParseFrame() failed: %v", err)
	}

	if frame.EtherType != EtherTypeIPv6 {
		t.Errorf("EtherType = 0x%04X, want 0x%04X (IPv6)", frame.EtherType, EtherTypeIPv6)
	}
}

func TestParseFrameMinimumSize(t *testing.T) {
	data := []byte{
		0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF,
		0x11, 0x22, 0x33, 0x44, 0x55, 0x66,
		0x08, 0x00,
	}

	frame, err := ParseFrame(data, testMTU)
	if err != nil {
		t.Fatalf("ParseFrame() failed: %v", err)
	}

	if len(frame.Payload) != 0 {
		t.Errorf("Payload length = %d, want 0 (no payload for minimum frame)", len(frame.Payload))
	}
}

func TestParseFrameTooSmall(t *testing.T) {
	testCases := []struct {
		name string
		data []byte
	}{
		{"empty frame", []byte{}},
		{"1 byte", []byte{0x01}},
		{"13 bytes (incomplete header)", []byte{
			0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF,
			0x11, 0x22, 0x33, 0x44, 0x55, 0x66,
			0x08,
		}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseFrame(tc.data, testMTU)
			if err == nil {
				t.Errorf("ParseFrame() succeeded, want error for %d-byte frame", len(tc.data))
			}
		})
	}
}

func TestParseFrameTooLarge(t *testing.T) {
	data := make([]byte, testMTU+1)
	copy(data[0:6], []byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF})
	copy(data[6:12], []byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66})
	copy(data[12:14], []byte{0x08, 0x00})

	_, err := ParseFrame(data, testMTU)
	if err == nil {
		t.Errorf("ParseFrame() succeeded, want error for %d-byte frame (max: %d)", len(data), testMTU)
	}
}

func TestParseFrameNoLimit(t *testing.T) {
	// maxSize == 0 disables the upper bound check entirely.
	data := make([]byte, testMTU*4)
	copy(data[0:6], []byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF})
	copy(data[6:12], []byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66})
	copy(data[12:14], []byte{0x08, 0x00})

	if _, err := ParseFrame(data, 0); err != nil {
		t.Errorf("ParseFrame() with maxSize=0 failed: %v", err)
	}
}

func TestParseFrameCustomMTU(t *testing.T) {
	// Tunnel default MTU of 1280 plus header, smaller than Ethernet-standard 1500.
	const tunnelMax = 1280 + EthernetHeaderSize
	data := make([]byte, tunnelMax+1)
	copy(data[12:14], []byte{0x08, 0x00})

	if _, err := ParseFrame(data, tunnelMax); err == nil {
		t.Errorf("ParseFrame() succeeded, want error exceeding tunnel MTU of %d", tunnelMax)
	}
}

func TestEthernetFrameString(t *testing.T) {
	data := []byte{
		0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF,
		0x11, 0x22, 0x33, 0x44, 0x55, 0x66,
		0x08, 0x00,
		0x45, 0x00,
	}

	frame, err := ParseFrame(data, testMTU)
	if err != nil {
		t.Fatalf("ParseFrame() failed: %v", err)
	}

	str := frame.String()
	if str == "" {
		t.Error("String() returned empty string")
	}
	if !bytes.Contains([]byte(str), []byte("IPv4")) {
		t.Errorf("String() = %q, want IPv4 mentioned for EtherType 0x0800", str)
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	original := []byte{
		0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF, // Destination MAC
		0x11, 0x22, 0x33, 0x44, 0x55, 0x66, // Source MAC
		0x08, 0x00, // EtherType: IPv4
		0x45, 0x00, 0x00, 0x3C, 0x1C, 0x46, 0x40, 0x00,
		0x40, 0x06, 0xB1, 0xE6, 0xAC, 0x10, 0x0A, 0x63,
		0xAC, 0x10, 0x0A, 0x0C,
	}

	frame, err := ParseFrame(original, testMTU)
	if err != nil {
		t.Fatalf("ParseFrame() failed: %v", err)
	}

	serialized := frame.Serialize()
	if !bytes.Equal(serialized, original) {
		t.Errorf("Serialize() round-trip failed:\noriginal:   %v\nserialized: %v", original, serialized)
	}
}

func BenchmarkParseFrame(b *testing.B) {
	data := []byte{
		0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF,
		0x11, 0x22, 0x33, 0x44, 0x55, 0x66,
		0x08, 0x00,
		0x45, 0x00, 0x00, 0x3C, 0x1C, 0x46, 0x40, 0x00,
		0x40, 0x06, 0xB1, 0xE6, 0xAC, 0x10, 0x0A, 0x63,
		0xAC, 0x10, 0x0A, 0x0C,
	}

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := ParseFrame(data, testMTU); err != nil {
			b.Fatalf("ParseFrame() failed: %v", err)
		}
	}
}
