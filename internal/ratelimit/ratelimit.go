// Package ratelimit holds the request budget shared by every caller of the
// marketplace API. One Limiter is built per process and handed to each
// client, so the sequential collector and the concurrent brand-owner batches
// draw from the same bucket.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

type Limiter struct {
	limiter *rate.Limiter
}

// NewWithBurst allows requestsPerSecond on average with bursts of up to burst.
func NewWithBurst(requestsPerSecond float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Limit(requestsPerSecond)
	if requestsPerSecond <= 0 {
		limit = rate.Inf
	}
	return &Limiter{limiter: rate.NewLimiter(limit, burst)}
}

// Wait blocks until a token is available or ctx is done. A nil Limiter never
// blocks.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil || l.limiter == nil {
		return nil
	}
	return l.limiter.Wait(ctx)
}

func (l *Limiter) Allow() bool {
	if l == nil || l.limiter == nil {
		return true
	}
	return l.limiter.Allow()
}

func (l *Limiter) Tokens() float64 {
	if l == nil || l.limiter == nil {
		return 0
	}
	return l.limiter.Tokens()
}
