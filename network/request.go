package network

import (
	"sync"

	"github.com/dannyzb/chainsync-loadtest/concurrency"
	"github.com/dannyzb/chainsync-loadtest/stats"
)

// request is one pending logical query: the WeakMap value type for all
// three of Network's registries. It lives as long as any caller holds a
// strong handle to it (see concurrency.WeakMap), and is shared between
// every caller racing on the same key, the single keep_sending loop that
// supervises it, and the inbound notify() path.
type request[T any] struct {
	sendTimes *stats.SendTimes
	once      *concurrency.Once[T]

	evictOnce sync.Once
	evict     chan struct{}
}

func newRequest[T any]() *request[T] {
	return &request[T]{
		sendTimes: stats.NewSendTimes(),
		once:      concurrency.NewOnce[T](),
		evict:     make(chan struct{}),
	}
}

// OnEvicted is called by concurrency.WeakMap exactly once, when this
// request's last strong handle is released and the entry is removed
// from the map. It is the signal that tells supervise's weak
// keep_sending loop to stop, even if the Once was never resolved.
func (r *request[T]) OnEvicted() {
	r.evictOnce.Do(func() { close(r.evict) })
}

// supervise owns the single keep_sending loop for this request: spawned
// once, at request creation, under rootCtx (the Network's own lifetime,
// not any individual caller's). It runs keepSending as a weak child of a
// Scope whose "strong goal" (per the rationale in concurrency.Scope) is
// simply waiting for either the Once to resolve or this request to be
// evicted from its WeakMap — whichever happens first ends the scope and
// cancels keepSending.
//
// This is what guarantees at most one keep_sending task is ever active
// per live request, regardless of how many concurrent fetch_X callers
// are deduplicated onto it (see DESIGN.md for why this differs from a
// per-caller spawn_weak).
func (r *request[T]) supervise(rootCtx *concurrency.Ctx, keepSending func(*concurrency.Ctx) error) {
	_, _ = concurrency.Run(rootCtx, func(ctx *concurrency.Ctx, h *concurrency.Handle) (struct{}, error) {
		h.SpawnWeak(keepSending)
		select {
		case <-r.once.Done():
		case <-r.evict:
		case <-ctx.Done():
		}
		return struct{}{}, nil
	})
}
