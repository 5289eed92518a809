package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alanyoungcy/perpbot/internal/domain"
)

func TestClientFireAndForget(t *testing.T) {
	fv := newFakeVenue()
	cli := NewClient(fv, nil, passLimiter{}, testLogger())

	req := domain.OrderRequest{
		Symbol: "ETH-USD",
		Side:   domain.SideLong,
		Kind:   domain.OrderKindLimit,
		Qty:    0.1,
		Unit:   domain.SizeUnitBase,
	}
	res, err := cli.SubmitAndMonitor(context.Background(), req, domain.Account{}, MonitorConfig{})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.Success || res.FinalState != domain.OrderStateSubmitted {
		t.Fatalf("got success=%v state=%s, want submitted success", res.Success, res.FinalState)
	}
	if res.ExternalOrderID != "ord-1" {
		t.Errorf("external id = %s, want ord-1", res.ExternalOrderID)
	}
	if n := fv.totalStatusCalls(); n != 0 {
		t.Errorf("status fetched %d times for a fire-and-forget order, want 0", n)
	}
}

func TestClientQuantizesAndPrices(t *testing.T) {
	fv := newFakeVenue([]domain.OrderStatusSnapshot{
		terminal(domain.OrderStateFilled, 0.1, 3001.5),
	})
	cli := NewClient(fv, nil, passLimiter{}, testLogger())

	// 300 USD at mid 3000 converts to 0.1 ETH; 0.05% slippage on a long
	// market order lands at 3001.5 after tick rounding.
	req := domain.OrderRequest{
		Symbol:      "ETH-USD",
		Side:        domain.SideLong,
		Kind:        domain.OrderKindMarket,
		Qty:         300,
		Unit:        domain.SizeUnitQuote,
		SlippagePct: 0.05,
	}
	res, err := cli.SubmitAndMonitor(context.Background(), req, domain.Account{}, MonitorConfig{
		PollInterval: 2 * time.Millisecond,
		Timeout:      time.Second,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.Success || res.FinalState != domain.OrderStateFilled {
		t.Fatalf("got success=%v state=%s, want filled success", res.Success, res.FinalState)
	}

	got := fv.submitted[0]
	if got.Size != 0.1 {
		t.Errorf("submitted size = %v, want 0.1", got.Size)
	}
	if got.Price != 3001.5 {
		t.Errorf("submitted price = %v, want 3001.5", got.Price)
	}
}

func TestClientRejectsBelowMinimum(t *testing.T) {
	fv := newFakeVenue()
	cli := NewClient(fv, nil, passLimiter{}, testLogger())

	req := domain.OrderRequest{
		Symbol: "ETH-USD",
		Side:   domain.SideLong,
		Kind:   domain.OrderKindLimit,
		Qty:    0.0004,
		Unit:   domain.SizeUnitBase,
	}
	_, err := cli.SubmitAndMonitor(context.Background(), req, domain.Account{}, MonitorConfig{})
	if !errors.Is(err, domain.ErrBelowMinimum) {
		t.Fatalf("err = %v, want ErrBelowMinimum", err)
	}
	if len(fv.submitted) != 0 {
		t.Errorf("%d orders reached the venue, want 0", len(fv.submitted))
	}
}
