// Package ratelimiter bounds the rate at which the reactor admits new
// connections.
package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter enforces a token-bucket limit on connection admission.
//
// Tokens accrue at a sustained per-second rate; each admitted connection
// consumes one. The burst capacity absorbs short accept spikes without
// letting a flood of clients stall the reactor with accept work.
//
// Thread safety: all methods are safe for concurrent use, though the
// reactor only ever calls them from its single loop goroutine.
type Limiter struct {
	limiter *rate.Limiter
}

// New creates a Limiter admitting perSecond connections sustained with the
// given burst capacity.
//
// perSecond = 0 disables limiting: every connection is admitted.
func New(perSecond, burst uint) *Limiter {
	if perSecond == 0 {
		return &Limiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(perSecond), int(burst)),
	}
}

// Allow reports whether one connection may be admitted right now. It never
// blocks; over-rate connections are closed immediately by the caller.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// Wait blocks until a token is available or ctx is cancelled. The reactor
// itself never waits; this exists for callers that prefer backpressure
// over rejection.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}
