// Package metrics exposes the tunnel's operational counters as Prometheus
// gauges/counters on an optional /metrics HTTP endpoint, alongside plain
// atomic mirrors of three counters that the stats sink (internal/statsink)
// reads through Snap without going through Prometheus.
package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PacketsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "televkvpn_packets_sent_total",
		Help: "IP packets handed to the transport for batched upload.",
	})
	PacketsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "televkvpn_packets_received_total",
		Help: "IP packets recovered from received blobs and written to TAP.",
	})
	BytesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "televkvpn_bytes_sent_total",
		Help: "Sealed blob bytes uploaded to the carrier.",
	})
	BytesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "televkvpn_bytes_received_total",
		Help: "Sealed blob bytes downloaded from the carrier.",
	})
	BatchesUploaded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "televkvpn_batches_uploaded_total",
		Help: "Batches successfully sealed and uploaded.",
	})
	BatchesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "televkvpn_batches_dropped_total",
		Help: "Batches dropped after upload failure, CAPTCHA cancel, or retry exhaustion.",
	})
	CryptoErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "televkvpn_crypto_errors_total",
		Help: "Received blobs dropped for bad padding or invalid length.",
	})
	QueueDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "televkvpn_queue_drops_total",
		Help: "Packets shed from the send queue because it was full (oldest dropped).",
	})
	CaptchaChallenges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "televkvpn_captcha_challenges_total",
		Help: "CAPTCHA challenges surfaced by the carrier.",
	})
	FloodRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "televkvpn_flood_retries_total",
		Help: "Upload retries triggered by a carrier rate-limit response.",
	})
	SendQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "televkvpn_send_queue_depth",
		Help: "Packets currently queued awaiting batching.",
	})
	TrafficStarted = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "televkvpn_traffic_started",
		Help: "1 once the first non-garbage packet has been observed this run, else 0.",
	})
)

// Local atomic mirrors, read through Snap by the stats sink without
// touching Prometheus's own registry/HTTP machinery.
var (
	localPacketsSent     uint64
	localPacketsReceived uint64
	localBatchesDropped  uint64
)

// Snapshot is a cheap, lock-free copy of the counters the stats sink records.
type Snapshot struct {
	PacketsSent     uint64
	PacketsReceived uint64
	BatchesDropped  uint64
}

// Snap returns the current Snapshot.
func Snap() Snapshot {
	return Snapshot{
		PacketsSent:     atomic.LoadUint64(&localPacketsSent),
		PacketsReceived: atomic.LoadUint64(&localPacketsReceived),
		BatchesDropped:  atomic.LoadUint64(&localBatchesDropped),
	}
}

func IncPacketsSent() {
	PacketsSent.Inc()
	atomic.AddUint64(&localPacketsSent, 1)
}

func IncPacketsReceived() {
	PacketsReceived.Inc()
	atomic.AddUint64(&localPacketsReceived, 1)
}

func AddBytesSent(n int)     { BytesSent.Add(float64(n)) }
func AddBytesReceived(n int) { BytesReceived.Add(float64(n)) }

func IncBatchesUploaded() { BatchesUploaded.Inc() }

func IncBatchesDropped() {
	BatchesDropped.Inc()
	atomic.AddUint64(&localBatchesDropped, 1)
}

func IncCryptoErrors()     { CryptoErrors.Inc() }
func IncQueueDrops()       { QueueDrops.Inc() }
func IncCaptchaChallenge() { CaptchaChallenges.Inc() }
func IncFloodRetry()       { FloodRetries.Inc() }
func SetSendQueueDepth(n int) { SendQueueDepth.Set(float64(n)) }
func SetTrafficStarted()      { TrafficStarted.Set(1) }

// StartHTTP serves Prometheus metrics at /metrics on addr. Call only when
// config.Metrics.Enabled is set; the tunnel functions identically without it.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		_ = srv.ListenAndServe()
	}()
	return srv
}
