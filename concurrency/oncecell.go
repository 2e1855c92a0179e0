package concurrency

import (
	"sync"

	"github.com/pkg/errors"
)

// Once is a write-once, read-many completion cell carrying a value. It
// generalizes the closed-channel idiom chansync.SetOnce uses for bare
// completion signals to also carry the first value set.
type Once[T any] struct {
	mu   sync.Mutex
	done chan struct{}
	set  bool
	val  T
}

// NewOnce returns a ready-to-use Once[T].
func NewOnce[T any]() *Once[T] {
	return &Once[T]{done: make(chan struct{})}
}

// ErrAlreadySet is returned by Set when a value has already been stored.
// It is never surfaced to a Network caller; it only tells notify() that
// this particular delivery lost the race and should be dropped silently.
var ErrAlreadySet = errors.New("concurrency: once already set")

// Set stores v iff this is the first call; otherwise it is a no-op that
// reports ErrAlreadySet so the caller can tell it lost the race.
func (o *Once[T]) Set(v T) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.set {
		return ErrAlreadySet
	}
	o.set = true
	o.val = v
	close(o.done)
	return nil
}

// Wait suspends until Set succeeds, then returns its value, or returns
// ErrCancelled if ctx cancels first. Multiple concurrent waiters all
// observe the same value.
func (o *Once[T]) Wait(ctx *Ctx) (T, error) {
	select {
	case <-o.done:
		o.mu.Lock()
		v := o.val
		o.mu.Unlock()
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ErrCancelled
	}
}

// Done returns a channel that is closed once a value has been set.
func (o *Once[T]) Done() <-chan struct{} {
	return o.done
}
