package tunnelcodec

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
)

// Compress gzips data at the default compression level. Batches are
// compressed as a whole, after framing and before sealing, so the
// length-prefix overhead benefits from compression too.
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("tunnelcodec: gzip write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("tunnelcodec: gzip close: %w", err)
	}
	return buf.Bytes(), nil
}

// Decompress reverses Compress.
func Decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("tunnelcodec: gzip reader: %w", err)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("tunnelcodec: gzip read: %w", err)
	}
	return out, nil
}
