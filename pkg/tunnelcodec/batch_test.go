package tunnelcodec

import (
	"bytes"
	"testing"
)

func TestAppendAndSplitBatchRoundtrip(t *testing.T) {
	packets := [][]byte{
		[]byte("first"),
		{},
		bytes.Repeat([]byte{0xAB}, 1400),
		[]byte("last"),
	}

	var buf []byte
	for _, p := range packets {
		var err error
		buf, err = AppendToBatch(buf, p)
		if err != nil {
			t.Fatalf("AppendToBatch failed: %v", err)
		}
	}

	got := SplitBatch(buf)
	if len(got) != len(packets) {
		t.Fatalf("SplitBatch returned %d packets, want %d", len(got), len(packets))
	}
	for i := range packets {
		if !bytes.Equal(got[i], packets[i]) {
			t.Errorf("packet %d = %v, want %v", i, got[i], packets[i])
		}
	}
}

func TestSplitBatchEmpty(t *testing.T) {
	if got := SplitBatch(nil); len(got) != 0 {
		t.Errorf("SplitBatch(nil) = %v, want empty", got)
	}
}

func TestSplitBatchToleratesTruncatedTail(t *testing.T) {
	var buf []byte
	buf, _ = AppendToBatch(buf, []byte("complete one"))
	buf, _ = AppendToBatch(buf, []byte("complete two"))

	// Simulate a batch cut short mid-upload: a length prefix with no
	// (or a partial) payload following it.
	truncated := append(buf, 0x00, 0x10, 0x01, 0x02)

	got := SplitBatch(truncated)
	if len(got) != 2 {
		t.Fatalf("SplitBatch(truncated) returned %d packets, want 2 intact ones", len(got))
	}
	if string(got[0]) != "complete one" || string(got[1]) != "complete two" {
		t.Errorf("SplitBatch(truncated) = %q, want the two intact packets", got)
	}
}

func TestSplitBatchToleratesBareLengthPrefix(t *testing.T) {
	got := SplitBatch([]byte{0x00})
	if len(got) != 0 {
		t.Errorf("SplitBatch() = %v, want empty for a single dangling byte", got)
	}
}

func TestAppendToBatchRejectsOversizedPacket(t *testing.T) {
	oversized := make([]byte, MaxPacketLength+1)
	if _, err := AppendToBatch(nil, oversized); err == nil {
		t.Error("AppendToBatch() succeeded, want error for oversized packet")
	}
}
