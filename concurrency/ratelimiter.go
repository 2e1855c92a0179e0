package concurrency

import "golang.org/x/time/rate"

// RateLimiter is a token bucket admission gate: period P = 1s/qps with
// burst capacity qps. It is a thin wrapper over golang.org/x/time/rate.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter builds a limiter refilling at qps tokens/second with a
// burst of qps tokens.
func NewRateLimiter(qps int) *RateLimiter {
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(qps), qps)}
}

// Allow suspends until one token has refilled, then consumes it.
// It returns ErrCancelled if ctx cancels first.
func (r *RateLimiter) Allow(ctx *Ctx) error {
	if err := r.limiter.Wait(ctx.Context()); err != nil {
		return ErrCancelled
	}
	return nil
}
