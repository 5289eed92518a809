package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/alanyoungcy/perpbot/internal/domain"
)

type recordSender struct {
	name   string
	titles []string
	bodies []string
	err    error
}

func (r *recordSender) Send(ctx context.Context, title, message string) error {
	if r.err != nil {
		return r.err
	}
	r.titles = append(r.titles, title)
	r.bodies = append(r.bodies, message)
	return nil
}

func (r *recordSender) Name() string { return r.name }

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifierFiltersEvents(t *testing.T) {
	s := &recordSender{name: "rec"}
	n := NewNotifier([]Sender{s}, []Event{EventOrderFilled}, discard())

	if err := n.Notify(context.Background(), EventOrderRejected, "t", "m"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(s.titles) != 0 {
		t.Errorf("filtered event was delivered %d times", len(s.titles))
	}

	if err := n.Notify(context.Background(), EventOrderFilled, "t", "m"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(s.titles) != 1 {
		t.Errorf("allowed event delivered %d times, want 1", len(s.titles))
	}
}

func TestNotifierSenderFailureDoesNotBlockOthers(t *testing.T) {
	bad := &recordSender{name: "bad", err: errors.New("down")}
	good := &recordSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discard())

	err := n.Notify(context.Background(), EventOrderFilled, "t", "m")
	if err == nil {
		t.Fatal("expected a combined error")
	}
	if len(good.titles) != 1 {
		t.Errorf("healthy sender delivered %d times, want 1", len(good.titles))
	}
}

func TestNotifierOrderResolved(t *testing.T) {
	s := &recordSender{name: "rec"}
	n := NewNotifier([]Sender{s}, nil, discard())

	sub := domain.SubmittedOrder{
		Order: domain.QuantizedOrder{
			Request: domain.OrderRequest{Symbol: "ETH-USD", Side: domain.SideLong, Kind: domain.OrderKindLimit},
			Size:    0.1,
			Price:   3000,
		},
		ExternalID: "ord-1",
	}
	res := domain.ExecutionResult{
		Success:         true,
		FinalState:      domain.OrderStateTimeoutCancelled,
		Snapshot:        domain.OrderStatusSnapshot{State: domain.OrderStateTimeoutCancelled, ExecutedQty: 0.04, AvgPrice: 2999.5},
		ExternalOrderID: "ord-1",
		Attempts:        1,
	}

	if err := n.OrderResolved(context.Background(), sub, res); err != nil {
		t.Fatalf("order resolved: %v", err)
	}
	if len(s.bodies) != 1 {
		t.Fatalf("delivered %d times, want 1", len(s.bodies))
	}
	body := s.bodies[0]
	for _, want := range []string{"ord-1", "0.04", "2999.5", "resubmitted 1"} {
		if !strings.Contains(body, want) {
			t.Errorf("message missing %q:\n%s", want, body)
		}
	}
	if !strings.Contains(s.titles[0], string(domain.OrderStateTimeoutCancelled)) {
		t.Errorf("title %q missing final state", s.titles[0])
	}
}

func TestOutcomeEventMapping(t *testing.T) {
	cases := []struct {
		state domain.OrderState
		want  Event
	}{
		{domain.OrderStateFilled, EventOrderFilled},
		{domain.OrderStateRejected, EventOrderRejected},
		{domain.OrderStateTimeoutCancelled, EventOrderTimeout},
		{domain.OrderStateCancelled, EventOrderClosed},
		{domain.OrderStateExpired, EventOrderClosed},
	}
	for _, c := range cases {
		got := outcomeEvent(domain.ExecutionResult{FinalState: c.state})
		if got != c.want {
			t.Errorf("outcomeEvent(%s) = %s, want %s", c.state, got, c.want)
		}
	}
}
