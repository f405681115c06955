package transport

import (
	"context"
	"sync"
	"time"

	"github.com/didierodjou/televkvpn/pkg/tunnelcodec"
)

// UploadFunc is handed one sealed-ready batch snapshot. The batcher does
// not wait for it to finish (spec: "spawn a concurrent upload task"); it is
// the implementation's job to bound how many run at once.
type UploadFunc func(batch []byte)

// Batcher implements the sender side of the tunnel's framing pipeline: a
// bounded, oldest-drop FIFO of packets, coalesced into length-prefixed
// batches on a deadline-or-size cadence, handed off to an UploadFunc.
//
// The batching algorithm is shared verbatim between the Telegram and VK
// transports: append the first queued packet unconditionally,
// then keep appending more until either batch_interval elapses or the
// batch has reached max_batch_size. The size is checked before each
// further append, not after it, so the append that crosses the cap still
// goes in and a batch can end up larger than max_batch_size; a single
// oversized first packet still goes out instead of stalling the queue.
type Batcher struct {
	cap           int
	maxBatchSize  int
	batchInterval time.Duration
	upload        UploadFunc

	mu    sync.Mutex
	queue [][]byte

	notify chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	dropped func() // optional hook, bumped on oldest-drop shedding
}

// NewBatcher constructs a Batcher. queueCap is the maximum number of
// packets held awaiting batching (5000 for Telegram, 500 for VK per spec).
func NewBatcher(queueCap, maxBatchSize int, batchInterval time.Duration, upload UploadFunc) *Batcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Batcher{
		cap:           queueCap,
		maxBatchSize:  maxBatchSize,
		batchInterval: batchInterval,
		upload:        upload,
		notify:        make(chan struct{}, 1),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// OnDrop registers a callback invoked every time Enqueue sheds the oldest
// packet to make room (used by metrics).
func (b *Batcher) OnDrop(fn func()) { b.dropped = fn }

// Start launches the coalescing loop.
func (b *Batcher) Start() {
	b.wg.Add(1)
	go b.loop()
}

// Stop cancels the coalescing loop and waits for it to exit. In-flight
// upload tasks spawned by the loop are deliberately not awaited here
// (in-flight uploads are not awaited).
func (b *Batcher) Stop() {
	b.cancel()
	b.wg.Wait()
}

// Enqueue appends packet to the queue, dropping the oldest queued packet
// first if the queue is already at capacity (newest-wins shedding).
func (b *Batcher) Enqueue(packet []byte) {
	b.mu.Lock()
	if len(b.queue) >= b.cap {
		b.queue = b.queue[1:]
		if b.dropped != nil {
			b.dropped()
		}
	}
	b.queue = append(b.queue, packet)
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// Depth returns the number of packets currently queued, for status/metrics.
func (b *Batcher) Depth() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

func (b *Batcher) tryPop() ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) == 0 {
		return nil, false
	}
	pkt := b.queue[0]
	b.queue = b.queue[1:]
	return pkt, true
}

func (b *Batcher) waitForPacket() ([]byte, bool) {
	for {
		if pkt, ok := b.tryPop(); ok {
			return pkt, true
		}
		select {
		case <-b.notify:
		case <-b.ctx.Done():
			return nil, false
		}
	}
}

func (b *Batcher) loop() {
	defer b.wg.Done()

	for {
		first, ok := b.waitForPacket()
		if !ok {
			return
		}

		buf, err := tunnelcodec.AppendToBatch(nil, first)
		if err != nil {
			// A single oversized packet can't be framed at all; drop it
			// and move on rather than wedge the sender.
			continue
		}

		deadline := time.NewTimer(b.batchInterval)
	coalesce:
		for len(buf) < b.maxBatchSize {
			select {
			case <-b.ctx.Done():
				deadline.Stop()
				return
			case <-deadline.C:
				break coalesce
			default:
			}

			pkt, ok := b.tryPop()
			if !ok {
				select {
				case <-b.notify:
					continue
				case <-deadline.C:
					break coalesce
				case <-b.ctx.Done():
					deadline.Stop()
					return
				}
			}

			nb, err := tunnelcodec.AppendToBatch(buf, pkt)
			if err != nil {
				continue
			}
			buf = nb
		}
		deadline.Stop()

		snapshot := buf
		go b.upload(snapshot)
	}
}
