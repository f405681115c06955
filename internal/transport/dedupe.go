package transport

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Dedupe remembers carrier message/document IDs already dispatched to the
// receive callback, so a long-poll reconnect or an overlapping getUpdates
// offset can't hand the same blob to recv twice. Neither carrier's API
// guarantees exactly-once delivery of updates across a reconnect.
type Dedupe interface {
	// Seen marks id as processed and reports whether it had already been
	// seen (in which case the caller should skip it).
	Seen(ctx context.Context, id string) (alreadySeen bool)
}

// lruDedupe is the always-available fallback: a fixed-capacity
// least-recently-used set, no external dependency required.
type lruDedupe struct {
	mu  sync.Mutex
	cap int
	ll  *list.List
	idx map[string]*list.Element
}

// NewLRUDedupe returns an in-process Dedupe holding up to capacity IDs.
func NewLRUDedupe(capacity int) Dedupe {
	if capacity <= 0 {
		capacity = 4096
	}
	return &lruDedupe{cap: capacity, ll: list.New(), idx: make(map[string]*list.Element)}
}

func (d *lruDedupe) Seen(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.idx[id]; ok {
		d.ll.MoveToFront(el)
		return true
	}

	el := d.ll.PushFront(id)
	d.idx[id] = el

	for d.ll.Len() > d.cap {
		oldest := d.ll.Back()
		if oldest == nil {
			break
		}
		d.ll.Remove(oldest)
		delete(d.idx, oldest.Value.(string))
	}
	return false
}

// redisDedupe backs the same contract with a shared Redis SETNX-with-TTL,
// which matters once server and client processes run on different hosts
// and would otherwise each keep their own, inconsistent, in-process view
// of "already processed" — not the common case for a 2-node tunnel, but
// cheap to support when config.Redis.Host is non-empty.
type redisDedupe struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// RedisConfig mirrors internal/config.RedisConfig without importing it, to
// avoid a dependency cycle between config and transport.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	TTL      time.Duration
}

// NewRedisDedupe connects to Redis and returns a Dedupe backed by it.
func NewRedisDedupe(cfg RedisConfig, prefix string) (Dedupe, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("transport: connect to redis: %w", err)
	}

	ttl := cfg.TTL
	if ttl == 0 {
		ttl = 5 * time.Minute
	}

	return &redisDedupe{client: client, ttl: ttl, prefix: prefix}, nil
}

func (d *redisDedupe) Seen(ctx context.Context, id string) bool {
	key := d.prefix + ":" + id
	ok, err := d.client.SetNX(ctx, key, 1, d.ttl).Result()
	if err != nil {
		// Fail open: if Redis is unreachable mid-run we must not start
		// dropping every blob as a false "already seen".
		return false
	}
	return !ok
}
