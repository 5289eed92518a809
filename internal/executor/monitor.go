package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/perpbot/internal/domain"
)

const (
	// defaultPollInterval is the suspension point between status fetches
	// when the venue does not push updates.
	defaultPollInterval = time.Second

	// defaultRetryPause is the brief pause between cancelling a rejected
	// order and resubmitting its replacement.
	defaultRetryPause = 500 * time.Millisecond

	// updateBuffer absorbs bursts of snapshot callbacks so a slow consumer
	// never blocks the monitoring loop.
	updateBuffer = 64
)

// MonitorConfig is the caller-supplied policy for one monitoring run.
type MonitorConfig struct {
	// Retries is the reject-resubmission budget R. Zero means a reject is
	// immediately a failure outcome.
	Retries int
	// Timeout is the inactivity window T. The deadline is reset by execution
	// progress, not elapsed time alone. Zero disables the timeout.
	Timeout time.Duration
	// PollInterval overrides the default suspension interval.
	PollInterval time.Duration
	// RetryPause overrides the pause before a resubmission.
	RetryPause time.Duration
	// OnUpdate receives each changed status snapshot, best-effort and in
	// order. A slow or panicking callback cannot stall the loop.
	OnUpdate func(domain.OrderStatusSnapshot)
}

func (c *MonitorConfig) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.RetryPause <= 0 {
		c.RetryPause = defaultRetryPause
	}
}

// Monitor owns the order-lifecycle state machine. One Run invocation drives
// one order (and its reject-triggered replacements) to a terminal outcome.
type Monitor struct {
	venue     domain.Venue
	limiter   domain.RateLimiter
	submitter *Submitter
	logger    *slog.Logger
}

// NewMonitor creates a Monitor that polls (or streams) through the given
// venue and resubmits rejected orders through submitter.
func NewMonitor(venue domain.Venue, limiter domain.RateLimiter, submitter *Submitter, logger *slog.Logger) *Monitor {
	return &Monitor{
		venue:     venue,
		limiter:   limiter,
		submitter: submitter,
		logger:    logger.With(slog.String("component", "monitor")),
	}
}

// session is the live state of one monitoring loop. It is owned exclusively
// by the Run invocation that created it and is never shared across orders.
type session struct {
	current      domain.SubmittedOrder
	last         domain.OrderStatusSnapshot
	observed     bool // false until the first snapshot lands
	lastExecuted float64
	attempts     int
	deadline     time.Time
	updates      <-chan domain.OrderStatusSnapshot
}

// Run watches the submitted order until a terminal outcome.
//
// The deadline is earned by progress: every increase in executed quantity
// resets it, so a slowly filling order is never cancelled mid-fill while a
// stalled one is. A reject consumes one unit of the retry budget and
// replaces the live order with a fresh submission; exhaustion is a reported
// failure. A timeout is a success: the order was actively cancelled and
// its state is resolved, just not filled.
func (m *Monitor) Run(ctx context.Context, sub domain.SubmittedOrder, account domain.Account, cfg MonitorConfig) (domain.ExecutionResult, error) {
	cfg.applyDefaults()

	sess := &session{
		current:  sub,
		deadline: deadlineFrom(time.Now(), cfg.Timeout),
	}
	m.openStream(ctx, sess)

	notify, closeNotify := m.startNotifier(cfg.OnUpdate)
	defer closeNotify()

	for {
		snap, err := m.nextSnapshot(ctx, sess, cfg)
		if err != nil {
			if ctx.Err() != nil {
				// Caller abandoned the loop: release venue-side interest
				// before going. Progress already observed is not rolled back.
				m.cancelBestEffort(context.WithoutCancel(ctx), sess.current.ExternalID)
				return domain.ExecutionResult{}, ctx.Err()
			}
			// A single failed poll is tolerated; the deadline bounds how
			// long a broken venue can keep us here.
			m.logger.WarnContext(ctx, "status fetch failed",
				slog.String("external_id", sess.current.ExternalID),
				slog.String("error", err.Error()),
			)
			snap = sess.last
		} else {
			if !sess.observed || snap.Changed(sess.last) {
				notify(snap)
			}
			sess.last = snap
			sess.observed = true

			if snap.ExecutedQty > sess.lastExecuted {
				// Progress, not mere elapsed time, earns more time.
				sess.deadline = deadlineFrom(time.Now(), cfg.Timeout)
				sess.lastExecuted = snap.ExecutedQty
			}
		}

		if snap.State.Terminal() {
			m.logger.InfoContext(ctx, "order resolved",
				slog.String("external_id", sess.current.ExternalID),
				slog.String("state", string(snap.State)),
				slog.Float64("executed", snap.ExecutedQty),
			)
			return domain.ExecutionResult{
				Success:         true,
				FinalState:      snap.State,
				Snapshot:        snap,
				ExternalOrderID: sess.current.ExternalID,
				Attempts:        sess.attempts,
			}, nil
		}

		if snap.State == domain.OrderStateRejected {
			if sess.attempts >= cfg.Retries {
				return domain.ExecutionResult{
					Success:         false,
					FinalState:      domain.OrderStateRejected,
					Snapshot:        snap,
					ExternalOrderID: sess.current.ExternalID,
					Attempts:        sess.attempts,
				}, nil
			}
			if err := m.resubmit(ctx, sess, account, cfg); err != nil {
				return domain.ExecutionResult{}, err
			}
			continue
		}

		if !sess.deadline.IsZero() && time.Now().After(sess.deadline) {
			return m.resolveTimeout(ctx, sess), nil
		}
	}
}

// resubmit replaces a rejected order with an equivalent fresh submission,
// consuming one unit of retry budget. The rejected order's venue-side
// interest is cancelled first so at most one submission is ever live.
func (m *Monitor) resubmit(ctx context.Context, sess *session, account domain.Account, cfg MonitorConfig) error {
	sess.attempts++
	m.logger.WarnContext(ctx, "order rejected, resubmitting",
		slog.String("external_id", sess.current.ExternalID),
		slog.Int("attempt", sess.attempts),
	)

	m.cancelBestEffort(ctx, sess.current.ExternalID)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(cfg.RetryPause):
	}

	next, err := m.submitter.Submit(ctx, sess.current.Order, account)
	if err != nil {
		return fmt.Errorf("executor: resubmit after reject (attempt %d): %w", sess.attempts, err)
	}

	sess.current = next
	sess.last = domain.OrderStatusSnapshot{}
	sess.observed = false
	sess.lastExecuted = 0
	sess.deadline = deadlineFrom(time.Now(), cfg.Timeout)
	m.openStream(ctx, sess)
	return nil
}

// resolveTimeout cancels the stalled order and reports the outcome. Cancel
// and final-fetch failures are tolerated: the result is returned either way.
func (m *Monitor) resolveTimeout(ctx context.Context, sess *session) domain.ExecutionResult {
	m.logger.WarnContext(ctx, "order timed out, cancelling",
		slog.String("external_id", sess.current.ExternalID),
		slog.Float64("executed", sess.lastExecuted),
	)

	m.cancelBestEffort(ctx, sess.current.ExternalID)

	snap := sess.last
	var final domain.OrderStatusSnapshot
	err := m.limiter.Do(ctx, 1, func(ctx context.Context) error {
		var err error
		final, err = m.venue.GetOrderStatus(ctx, sess.current.ExternalID)
		return err
	})
	if err == nil {
		snap = final
	}
	snap.State = domain.OrderStateTimeoutCancelled

	return domain.ExecutionResult{
		Success:         true,
		FinalState:      domain.OrderStateTimeoutCancelled,
		Snapshot:        snap,
		ExternalOrderID: sess.current.ExternalID,
		Attempts:        sess.attempts,
	}
}

// nextSnapshot blocks until the next observation is due: a pushed update
// when the venue streams them, otherwise one poll interval followed by a
// rate-limited status fetch. A closed stream falls back to polling.
func (m *Monitor) nextSnapshot(ctx context.Context, sess *session, cfg MonitorConfig) (domain.OrderStatusSnapshot, error) {
	if sess.updates != nil {
		select {
		case snap, ok := <-sess.updates:
			if ok {
				return snap, nil
			}
			sess.updates = nil
		case <-time.After(cfg.PollInterval):
			// No push within the interval: poll anyway so terminal states
			// and the deadline are still observed on a quiet stream.
		case <-ctx.Done():
			return domain.OrderStatusSnapshot{}, ctx.Err()
		}
	} else {
		select {
		case <-time.After(cfg.PollInterval):
		case <-ctx.Done():
			return domain.OrderStatusSnapshot{}, ctx.Err()
		}
	}

	var snap domain.OrderStatusSnapshot
	err := m.limiter.Do(ctx, 1, func(ctx context.Context) error {
		var err error
		snap, err = m.venue.GetOrderStatus(ctx, sess.current.ExternalID)
		return err
	})
	return snap, err
}

// openStream attaches a push subscription for the current order when the
// venue offers one. Failure just means polling.
func (m *Monitor) openStream(ctx context.Context, sess *session) {
	sess.updates = nil
	streamer, ok := m.venue.(domain.StatusStreamer)
	if !ok {
		return
	}
	ch, err := streamer.StreamOrderStatus(ctx, sess.current.ExternalID)
	if err != nil {
		m.logger.DebugContext(ctx, "status stream unavailable, polling",
			slog.String("external_id", sess.current.ExternalID),
			slog.String("error", err.Error()),
		)
		return
	}
	sess.updates = ch
}

// startNotifier returns a non-blocking, order-preserving dispatcher for the
// caller's update callback. Updates beyond the buffer are dropped rather
// than allowed to stall the loop.
func (m *Monitor) startNotifier(onUpdate func(domain.OrderStatusSnapshot)) (func(domain.OrderStatusSnapshot), func()) {
	if onUpdate == nil {
		return func(domain.OrderStatusSnapshot) {}, func() {}
	}

	ch := make(chan domain.OrderStatusSnapshot, updateBuffer)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for snap := range ch {
			func() {
				defer func() {
					if r := recover(); r != nil {
						m.logger.Error("update callback panicked", slog.Any("panic", r))
					}
				}()
				onUpdate(snap)
			}()
		}
	}()

	notify := func(snap domain.OrderStatusSnapshot) {
		select {
		case ch <- snap:
		default:
			m.logger.Warn("update callback backlogged, dropping snapshot")
		}
	}
	return notify, func() {
		close(ch)
		<-done
	}
}

// cancelBestEffort issues a cancel and tolerates every failure; the order
// may already be terminal on the venue side.
func (m *Monitor) cancelBestEffort(ctx context.Context, externalID string) {
	err := m.limiter.Do(ctx, 1, func(ctx context.Context) error {
		return m.venue.CancelOrder(ctx, externalID)
	})
	if err != nil {
		m.logger.DebugContext(ctx, "best-effort cancel failed",
			slog.String("external_id", externalID),
			slog.String("error", err.Error()),
		)
	}
}

// deadlineFrom returns the zero time for a disabled timeout.
func deadlineFrom(now time.Time, timeout time.Duration) time.Time {
	if timeout <= 0 {
		return time.Time{}
	}
	return now.Add(timeout)
}
