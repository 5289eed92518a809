// Package feed keeps venue push streams alive across disconnects. The
// monitor consumes a feed exactly like a raw venue stream; reconnection and
// backoff stay out of the execution logic.
package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/perpbot/internal/domain"
)

const (
	initialBackoff = 500 * time.Millisecond
	maxBackoff     = 30 * time.Second
)

// OrderFeed wraps a StatusStreamer and re-dials whenever the underlying
// stream drops. The feed's channel closes only when the order reaches a
// terminal state or the context ends; a venue disconnect is invisible to
// the consumer.
type OrderFeed struct {
	streamer domain.StatusStreamer
	logger   *slog.Logger
}

// NewOrderFeed creates an OrderFeed over the given streamer.
func NewOrderFeed(streamer domain.StatusStreamer, logger *slog.Logger) *OrderFeed {
	return &OrderFeed{
		streamer: streamer,
		logger:   logger.With(slog.String("component", "order_feed")),
	}
}

// StreamOrderStatus delivers snapshots for externalID until the order is
// terminal or ctx is cancelled, reconnecting with exponential backoff in
// between.
func (f *OrderFeed) StreamOrderStatus(ctx context.Context, externalID string) (<-chan domain.OrderStatusSnapshot, error) {
	out := make(chan domain.OrderStatusSnapshot, 16)

	go func() {
		defer close(out)
		backoff := initialBackoff

		for {
			ch, err := f.streamer.StreamOrderStatus(ctx, externalID)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				f.logger.WarnContext(ctx, "stream dial failed, backing off",
					slog.String("external_id", externalID),
					slog.Duration("backoff", backoff),
					slog.String("error", err.Error()),
				)
				select {
				case <-ctx.Done():
					return
				case <-time.After(backoff):
				}
				backoff = min(backoff*2, maxBackoff)
				continue
			}
			backoff = initialBackoff

			if done := f.forward(ctx, ch, out); done {
				return
			}
			// Stream dropped mid-order; dial again.
			f.logger.DebugContext(ctx, "stream ended, reconnecting",
				slog.String("external_id", externalID),
			)
		}
	}()

	return out, nil
}

// forward copies snapshots from in to out. It reports true when no
// reconnect should follow: the context ended or a terminal state arrived.
func (f *OrderFeed) forward(ctx context.Context, in <-chan domain.OrderStatusSnapshot, out chan<- domain.OrderStatusSnapshot) bool {
	for {
		select {
		case <-ctx.Done():
			return true
		case snap, ok := <-in:
			if !ok {
				return false
			}
			select {
			case out <- snap:
			case <-ctx.Done():
				return true
			}
			if snap.State.Terminal() {
				return true
			}
		}
	}
}

var _ domain.StatusStreamer = (*OrderFeed)(nil)
