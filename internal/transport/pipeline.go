package transport

import (
	"fmt"

	"github.com/didierodjou/televkvpn/internal/metrics"
	"github.com/didierodjou/televkvpn/internal/obslog"
	"github.com/didierodjou/televkvpn/pkg/tunnelcodec"
	"github.com/didierodjou/televkvpn/pkg/tunnelcrypto"
)

// Pipeline applies the shared compress/seal (send) and open/decompress
// (receive) steps around the carrier-specific upload/download, so telegram.go
// and vk.go only ever deal in opaque bytes-to-upload and bytes-downloaded.
type Pipeline struct {
	Box         *tunnelcrypto.Box
	Compression bool
	Log         *obslog.Logger
}

// Seal turns one coalesced batch into the bytes that get attached to a
// carrier message.
func (p *Pipeline) Seal(batch []byte) ([]byte, error) {
	payload := batch
	if p.Compression {
		compressed, err := tunnelcodec.Compress(batch)
		if err != nil {
			return nil, fmt.Errorf("transport: compress batch: %w", err)
		}
		payload = compressed
	}

	sealed, err := p.Box.Seal(payload)
	if err != nil {
		return nil, fmt.Errorf("transport: seal batch: %w", err)
	}
	return sealed, nil
}

// OpenAndDispatch reverses Seal and invokes recv once per well-formed
// record, in order. Any failure (bad padding, bad length, corrupt gzip)
// drops the whole blob and is logged, never propagated: one bad packet
// must never stop the tunnel.
func (p *Pipeline) OpenAndDispatch(blob []byte, recv RecvFunc) {
	plain, err := p.Box.Open(blob)
	if err != nil {
		metrics.IncCryptoErrors()
		p.Log.Warnf("dropping blob: decrypt failed: %v", err)
		return
	}

	batch := plain
	if p.Compression {
		decompressed, err := tunnelcodec.Decompress(plain)
		if err != nil {
			p.Log.Warnf("dropping blob: decompress failed: %v", err)
			return
		}
		batch = decompressed
	}

	for _, packet := range tunnelcodec.SplitBatch(batch) {
		recv(packet)
	}
}
