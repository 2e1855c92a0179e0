package concurrency

import "golang.org/x/sync/errgroup"

// Handle lets a Scope's body spawn further children, distinguishing
// strong children (must finish before the scope can complete) from weak
// children (cancelled the instant no strong child remains and the body
// has returned — they never hold the scope open).
type Handle struct {
	strongCtx *Ctx
	weakCtx   *Ctx
	g         *errgroup.Group
}

// Spawn runs f as a strong child: Scope.Run will not return until f does.
// If f returns an error, the scope's context is cancelled and that error
// is eventually returned by Run (after children are drained).
func (h *Handle) Spawn(f func(ctx *Ctx) error) {
	h.g.Go(func() error {
		return f(h.strongCtx)
	})
}

// SpawnWeak runs f as a weak child. It is cancelled as soon as the body
// has returned and every strong child has finished, regardless of
// whether f itself has returned. An error from f is logged and dropped —
// weak children never fail the scope (see the keep_sending design
// decision about unexpected acks: a weak retry loop's error does not
// fail the caller waiting on the scope's real result; that caller keeps
// waiting until the result arrives or its own ctx ends).
func (h *Handle) SpawnWeak(f func(ctx *Ctx) error) {
	go func() {
		if err := f(h.weakCtx); err != nil && err != ErrCancelled {
			h.weakCtx.Logger().Printf("weak child exited: %v", err)
		}
	}()
}

// Run creates a child scope of ctx, invokes body with a Handle the body
// can use to spawn strong/weak children, and returns once body has
// returned and all strong children have completed. Weak children are
// cancelled unconditionally at that point; their completion is not
// waited on.
func Run[T any](ctx *Ctx, body func(ctx *Ctx, h *Handle) (T, error)) (T, error) {
	g, gctx := errgroupWithContext(ctx)
	weakCtx, weakCancel := ctx.WithCancel()
	defer weakCancel()

	h := &Handle{strongCtx: gctx, weakCtx: weakCtx, g: g}
	result, bodyErr := body(gctx, h)
	waitErr := g.Wait()
	weakCancel()

	if bodyErr != nil {
		var zero T
		return zero, bodyErr
	}
	if waitErr != nil {
		var zero T
		return zero, waitErr
	}
	return result, nil
}

// errgroupWithContext mirrors errgroup.WithContext but keeps the result
// wrapped in a *Ctx so strong children get the same logger/span chain as
// everything else.
func errgroupWithContext(ctx *Ctx) (*errgroup.Group, *Ctx) {
	g, std := errgroup.WithContext(ctx.Context())
	return g, ctx.withStd(std, nil, ctx.logger, ctx.span)
}
