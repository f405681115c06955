package tunnelcodec

import (
	"bytes"
	"testing"
)

func TestCompressDecompressRoundtrip(t *testing.T) {
	cases := [][]byte{
		{},
		[]byte("hello"),
		bytes.Repeat([]byte("repeating pattern compresses well "), 200),
	}

	for _, data := range cases {
		compressed, err := Compress(data)
		if err != nil {
			t.Fatalf("Compress failed: %v", err)
		}

		out, err := Decompress(compressed)
		if err != nil {
			t.Fatalf("Decompress failed: %v", err)
		}

		if !bytes.Equal(out, data) {
			t.Errorf("Decompress(Compress(%d bytes)) mismatch", len(data))
		}
	}
}

func TestDecompressRejectsGarbage(t *testing.T) {
	if _, err := Decompress([]byte{0x01, 0x02, 0x03}); err == nil {
		t.Error("Decompress() succeeded on non-gzip input, want error")
	}
}
