// Package transport implements the carrier abstraction described by the
// tunnel: a Transport uploads batched, sealed blobs to a chat as opaque
// documents and delivers packets parsed out of blobs posted by the peer.
// The batching/coalescing pipeline (batcher.go) and the shared queue
// shedding policy are common to both carrier variants; telegram.go and
// vk.go differ only in how they actually talk to their API.
package transport

import "context"

// Role is which end of the tunnel this process is acting as. It is passed
// to Init so a Transport can, e.g., pick the matching long-poll peer or
// decide which side owns bot-mode vs user-mode login.
type Role string

const (
	RoleClient Role = "client"
	RoleServer Role = "server"
)

// RecvFunc is invoked once per well-formed IP packet recovered from a
// received blob, in the order the packets appear within one batch. It must
// not block for long; the handler wiring it in dispatches to TAP
// asynchronously.
type RecvFunc func(packet []byte)

// Transport is the shared contract both carrier variants implement. The
// core data plane (handler, batching, crypto, framing) is written entirely
// against this interface and never against a concrete carrier type.
type Transport interface {
	// Init authenticates to the carrier (which may block on interactive
	// prompts routed through the configured authprompt.Handler), binds to
	// the configured chat/peer, and starts the sender and receiver loops.
	Init(ctx context.Context, recv RecvFunc, role Role) error

	// Send enqueues packet for batched upload. Never blocks: if the queue
	// is full the oldest queued packet is dropped to make room.
	Send(packet []byte)

	// Disconnect stops the sender/receiver loops and tears down the
	// carrier session. Idempotent.
	Disconnect() error
}
