package concurrency

import "sync"

// Event is a broadcast condition variable, ported from the teacher's own
// Event (there used for Client.event, guarding torrent/peer state
// changes): a sync.Cond substitute whose own waiter-list lock is
// independent of the caller's mutex, so it stays safe to pair with
// lockWithDeferreds (whose Unlock runs deferred actions — a plain
// sync.Cond bound to it would risk deadlocking on those).
//
// network.go uses it as NetworkData's own condition variable: Info()
// waits on it while holding NetworkData's mutex, notifyInfo broadcasts
// after installing a NetworkInfo snapshot that satisfies MinPeers.
type Event struct {
	mu      sync.Mutex
	waiters []chan struct{}
}

// Wait registers as a waiter, releases clientMu, blocks until the next
// Broadcast, then reacquires clientMu before returning — the same
// contract as sync.Cond.Wait.
func (e *Event) Wait(clientMu sync.Locker) {
	ch := e.listen()
	clientMu.Unlock()
	<-ch
	clientMu.Lock()
}

// WaitCtx is Wait, but returns ErrCancelled early if ctx ends first.
// clientMu is always reacquired before WaitCtx returns, on both paths.
func (e *Event) WaitCtx(ctx *Ctx, clientMu sync.Locker) error {
	ch := e.listen()
	clientMu.Unlock()
	defer clientMu.Lock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ErrCancelled
	}
}

// listen registers a new waiter channel, to be closed by the next
// Broadcast. Separated from Wait so WaitCtx can select on it alongside
// ctx.Done() instead of blocking unconditionally.
func (e *Event) listen() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch := make(chan struct{})
	e.waiters = append(e.waiters, ch)
	return ch
}

// Broadcast wakes every goroutine currently blocked in Wait or WaitCtx.
func (e *Event) Broadcast() {
	e.mu.Lock()
	waiters := e.waiters
	e.waiters = nil
	e.mu.Unlock()
	for _, ch := range waiters {
		close(ch)
	}
}
