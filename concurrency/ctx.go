// Package concurrency provides the structured-concurrency primitives the
// network multiplexer is built from: a labelled, loggable cancellation
// context (Ctx), a token-bucket RateLimiter, a refcounted WeakMap request
// registry, a write-once Once cell, and a strong/weak task Scope.
//
// None of these types know anything about blocks, chunks, or peers —
// that belongs to package network. They exist so the multiplexer's
// concurrency can be reasoned about (and tested) independently of it.
package concurrency

import (
	"context"
	"time"

	"github.com/anacrolix/log"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// ErrCancelled is returned by every suspension point in this package
// (Wait, Wrap, WrapErr, RateLimiter.Allow, Once.Wait, Event.WaitCtx) when it
// unblocks because a Ctx was cancelled rather than because the awaited
// event happened.
var ErrCancelled = errors.New("concurrency: cancelled")

var tracer = otel.Tracer("github.com/dannyzb/chainsync-loadtest/concurrency")

// Ctx wraps a stdlib context.Context with a named logger and an
// OpenTelemetry span, so that with_label both narrows what gets logged
// at a suspension point and what a trace backend groups spans under.
type Ctx struct {
	std    context.Context
	cancel context.CancelFunc // non-nil iff this Ctx owns the lifetime it wraps
	logger log.Logger
	span   trace.Span
}

// Background returns a root Ctx that never cancels on its own account.
func Background(logger log.Logger) *Ctx {
	return &Ctx{std: context.Background(), logger: logger}
}

// FromStdContext adapts an existing context.Context (e.g. one an HTTP
// handler or test harness already owns) into a Ctx.
func FromStdContext(std context.Context, logger log.Logger) *Ctx {
	return &Ctx{std: std, logger: logger}
}

// Context exposes the wrapped context.Context, for handing to APIs that
// are already context-aware (rate.Limiter.Wait, errgroup.WithContext, ...).
func (c *Ctx) Context() context.Context { return c.std }

// Logger returns the logger named by the chain of WithLabel calls that
// produced c.
func (c *Ctx) Logger() log.Logger { return c.logger }

// Done returns the wrapped context's done channel.
func (c *Ctx) Done() <-chan struct{} { return c.std.Done() }

// Err reports ErrCancelled once the wrapped context is done, nil otherwise.
func (c *Ctx) Err() error {
	if c.std.Err() == nil {
		return nil
	}
	return ErrCancelled
}

func (c *Ctx) withStd(std context.Context, cancel context.CancelFunc, logger log.Logger, span trace.Span) *Ctx {
	return &Ctx{std: std, cancel: cancel, logger: logger, span: span}
}

// WithLabel derives a child Ctx named name: a child context (no new
// cancellation source of its own), a logger with name appended, and a
// child span for observability.
func (c *Ctx) WithLabel(name string) *Ctx {
	std, span := tracer.Start(c.std, name)
	return c.withStd(std, nil, c.logger.WithNames(name), span)
}

// WithCancel derives a child Ctx that can be cancelled independently of
// its parent, along with the cancel function. Used internally by Scope
// to bound weak children's lifetime.
func (c *Ctx) WithCancel() (*Ctx, context.CancelFunc) {
	std, cancel := context.WithCancel(c.std)
	return c.withStd(std, cancel, c.logger, c.span), cancel
}

// WithDeadline derives a child Ctx that cancels no later than d.
func (c *Ctx) WithDeadline(d time.Time) (*Ctx, context.CancelFunc) {
	std, cancel := context.WithDeadline(c.std, d)
	return c.withStd(std, cancel, c.logger, c.span), cancel
}

// End closes out the span opened by WithLabel. Safe to call on a Ctx
// that never had a span (e.g. Background()).
func (c *Ctx) End() {
	if c.span != nil {
		c.span.End()
	}
}

// Wait suspends for d, returning ErrCancelled if c is cancelled first.
func (c *Ctx) Wait(d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-c.std.Done():
		return ErrCancelled
	}
}

// Wrap awaits a value from ch, returning ErrCancelled if c is cancelled
// first. This is the Go shape of the source's ctx.wrap(future): whichever
// of the inner receive or the cancellation happens first wins.
func Wrap[T any](c *Ctx, ch <-chan T) (T, error) {
	select {
	case v := <-ch:
		return v, nil
	case <-c.std.Done():
		var zero T
		return zero, ErrCancelled
	}
}

// WrapErr is Wrap for channels of (value, error) pairs, the shape
// produced by async operations that can themselves fail independently
// of cancellation (e.g. a transport send).
func WrapErr[T any](c *Ctx, ch <-chan Result[T]) (T, error) {
	select {
	case r := <-ch:
		return r.Value, r.Err
	case <-c.std.Done():
		var zero T
		return zero, ErrCancelled
	}
}

// Result pairs a value with an error for use with WrapErr.
type Result[T any] struct {
	Value T
	Err   error
}
