// Package throttle provides the process-local rate limiter that gates every
// outbound venue call. Units of work are executed by a single dispatcher
// goroutine in submission order, so budget bookkeeping has exactly one
// writer while any number of callers wait concurrently.
package throttle

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/perpbot/internal/domain"
)

// unit is one queued call. The dispatcher replies on errc exactly once.
type unit struct {
	ctx    context.Context
	weight int
	fn     func(ctx context.Context) error
	errc   chan error
}

// Limiter implements domain.RateLimiter with a weight budget per fixed
// interval. A unit whose weight exceeds the remaining budget waits for the
// next window; queued units behind it wait too, preserving FIFO order.
type Limiter struct {
	budget   int
	interval time.Duration
	queue    chan *unit
	done     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once

	// gate, when set, is a cross-process admission check consulted before
	// each unit executes (e.g. a Redis window shared between processes).
	gate    domain.RateGate
	gateKey string

	logger *slog.Logger
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithGate layers a distributed RateGate ahead of the local budget. Every
// unit waits for gate admission under key before executing.
func WithGate(gate domain.RateGate, key string) Option {
	return func(l *Limiter) {
		l.gate = gate
		l.gateKey = key
	}
}

// WithQueueDepth bounds how many units may wait at once. Beyond it Do blocks
// until the dispatcher drains the queue. Default 256.
func WithQueueDepth(n int) Option {
	return func(l *Limiter) {
		if n > 0 {
			l.queue = make(chan *unit, n)
		}
	}
}

// New creates a Limiter that admits at most budget weight per interval and
// starts its dispatcher. Call Close when done.
func New(budget int, interval time.Duration, logger *slog.Logger, opts ...Option) *Limiter {
	if budget < 1 {
		budget = 1
	}
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	l := &Limiter{
		budget:   budget,
		interval: interval,
		queue:    make(chan *unit, 256),
		done:     make(chan struct{}),
		logger:   logger.With(slog.String("component", "throttle")),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.wg.Add(1)
	go l.dispatch()
	return l
}

// Do enqueues fn and blocks until it has executed, returning fn's error
// unchanged. If ctx is cancelled before fn runs, Do returns the context
// error and fn never executes. A weight below 1 counts as 1.
func (l *Limiter) Do(ctx context.Context, weight int, fn func(ctx context.Context) error) error {
	if weight < 1 {
		weight = 1
	}
	u := &unit{
		ctx:    ctx,
		weight: weight,
		fn:     fn,
		errc:   make(chan error, 1),
	}

	select {
	case l.queue <- u:
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return domain.ErrLimiterClosed
	}

	select {
	case err := <-u.errc:
		return err
	case <-ctx.Done():
		// The dispatcher will notice the dead context before running fn, or
		// fn is already running with the cancelled ctx; either way the reply
		// arrives. Waiting for it keeps Do's contract exact: fn never runs
		// after Do has returned a context error without running it.
		return <-u.errc
	}
}

// Close stops the dispatcher. Units still queued receive ErrLimiterClosed.
func (l *Limiter) Close() {
	l.once.Do(func() { close(l.done) })
	l.wg.Wait()
}

func (l *Limiter) dispatch() {
	defer l.wg.Done()

	used := 0
	windowStart := time.Now()

	for {
		select {
		case <-l.done:
			l.drain()
			return
		case u := <-l.queue:
			if u.ctx.Err() != nil {
				u.errc <- u.ctx.Err()
				continue
			}

			weight := u.weight
			if weight > l.budget {
				// Oversized units run alone in a fresh window rather than
				// starving forever.
				weight = l.budget
			}

			// Roll the window forward; block inside the current one when the
			// budget is spent.
			now := time.Now()
			if now.Sub(windowStart) >= l.interval {
				windowStart = now
				used = 0
			}
			if used+weight > l.budget {
				wait := l.interval - now.Sub(windowStart)
				if !l.sleep(u, wait) {
					return
				}
				windowStart = time.Now()
				used = 0
				if u.ctx.Err() != nil {
					u.errc <- u.ctx.Err()
					continue
				}
			}
			used += weight

			if l.gate != nil {
				if err := l.gate.Wait(u.ctx, l.gateKey); err != nil {
					u.errc <- err
					continue
				}
			}

			u.errc <- u.fn(u.ctx)
		}
	}
}

// sleep waits for d, delivering shutdown to u if the limiter closes first.
// Returns false when the dispatcher should exit.
func (l *Limiter) sleep(u *unit, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-l.done:
		u.errc <- domain.ErrLimiterClosed
		l.drain()
		return false
	}
}

// drain answers everything still queued after shutdown.
func (l *Limiter) drain() {
	for {
		select {
		case u := <-l.queue:
			u.errc <- domain.ErrLimiterClosed
		default:
			return
		}
	}
}

var _ domain.RateLimiter = (*Limiter)(nil)
