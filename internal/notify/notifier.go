// Package notify pushes order lifecycle alerts to operators over one or more
// channels (Telegram, Discord). Delivery is best-effort: a failed or filtered
// notification never affects the order it describes.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/perpbot/internal/domain"
	"github.com/alanyoungcy/perpbot/internal/quant"
)

// Event identifies the lifecycle moment a notification describes. Operators
// configure which events they want forwarded.
type Event string

const (
	EventOrderFilled   Event = "order_filled"
	EventOrderRejected Event = "order_rejected"
	EventOrderTimeout  Event = "order_timeout"
	EventOrderClosed   Event = "order_closed" // cancelled or expired by the venue
)

// Sender is the interface each notification channel implements.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier dispatches notifications to one or more Senders, filtered by an
// allowed event set.
type Notifier struct {
	senders []Sender
	events  map[Event]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders. Only events
// in the events slice are forwarded; an empty slice allows everything.
func NewNotifier(senders []Sender, events []Event, logger *slog.Logger) *Notifier {
	allowed := make(map[Event]bool, len(events))
	for _, e := range events {
		allowed[Event(strings.TrimSpace(string(e)))] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// OrderResolved formats and dispatches the outcome of one execution run.
func (n *Notifier) OrderResolved(ctx context.Context, sub domain.SubmittedOrder, res domain.ExecutionResult) error {
	event := outcomeEvent(res)
	title := fmt.Sprintf("%s %s %s", sub.Order.Request.Symbol, sub.Order.Request.Side, res.FinalState)

	var b strings.Builder
	fmt.Fprintf(&b, "order %s (%s %s)\n", res.ExternalOrderID, sub.Order.Request.Kind, sub.Order.Request.Symbol)
	fmt.Fprintf(&b, "size %s @ %s\n", quant.FormatCompact(sub.Order.Size), quant.FormatCompact(sub.Order.Price))
	fmt.Fprintf(&b, "executed %s", quant.FormatCompact(res.Snapshot.ExecutedQty))
	if res.Snapshot.AvgPrice > 0 {
		fmt.Fprintf(&b, " @ avg %s", quant.FormatCompact(res.Snapshot.AvgPrice))
	}
	if res.Attempts > 0 {
		fmt.Fprintf(&b, "\nresubmitted %d time(s)", res.Attempts)
	}

	return n.Notify(ctx, event, title, b.String())
}

// Notify sends a notification to all senders when the event passes the
// configured filter.
func (n *Notifier) Notify(ctx context.Context, event Event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out",
			slog.String("event", string(event)),
		)
		return nil
	}

	return n.dispatch(ctx, title, message)
}

// dispatch iterates over all senders. Errors from individual senders are
// collected and combined; one sender failing does not prevent delivery to
// the remaining senders.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		} else {
			n.logger.DebugContext(ctx, "notification sent",
				slog.String("sender", s.Name()),
				slog.String("title", title),
			)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

func outcomeEvent(res domain.ExecutionResult) Event {
	switch res.FinalState {
	case domain.OrderStateFilled:
		return EventOrderFilled
	case domain.OrderStateTimeoutCancelled:
		return EventOrderTimeout
	case domain.OrderStateRejected:
		return EventOrderRejected
	default:
		return EventOrderClosed
	}
}
