package domain

import (
	"context"
	"time"
)

// RateLimiter gates outbound venue calls to a requests-per-interval budget.
// Units of work execute in submission order under contention, and an error
// returned by fn propagates to the Do caller without corrupting the
// limiter's budget accounting.
type RateLimiter interface {
	// Do runs fn once budget for weight is available. It returns fn's error,
	// or a context/shutdown error if fn never ran.
	Do(ctx context.Context, weight int, fn func(ctx context.Context) error) error
}

// RateGate is a cross-process admission check consulted before a unit of
// work executes, e.g. a Redis sliding window shared by several processes
// hitting the same venue budget.
type RateGate interface {
	// Allow reports whether one more call under key fits in the window.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	// Wait blocks until a call under key is admitted or ctx is done.
	Wait(ctx context.Context, key string) error
}
