package executor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/perpbot/internal/domain"
)

// passLimiter runs every unit inline; throttle behaviour has its own tests.
type passLimiter struct{}

func (passLimiter) Do(ctx context.Context, weight int, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}

// fakeVenue hands out sequential external ids and replays a scripted
// snapshot sequence per order. Exhausted scripts repeat their last entry.
type fakeVenue struct {
	mu sync.Mutex

	size    domain.OrderSize
	book    domain.TopOfBook
	scripts [][]domain.OrderStatusSnapshot

	submitted   []domain.VenueOrder
	scriptFor   map[string][]domain.OrderStatusSnapshot
	statusIdx   map[string]int
	statusCalls int
	cancelled   []string
}

func newFakeVenue(scripts ...[]domain.OrderStatusSnapshot) *fakeVenue {
	return &fakeVenue{
		size:      domain.OrderSize{MinQty: 0.001, StepSize: 0.001, TickDecimals: 1},
		book:      domain.TopOfBook{BestBid: 2999, BestAsk: 3001},
		scripts:   scripts,
		scriptFor: make(map[string][]domain.OrderStatusSnapshot),
		statusIdx: make(map[string]int),
	}
}

func (f *fakeVenue) Name() string                    { return "fake" }
func (f *fakeVenue) RequiresSettlementSigning() bool { return false }

func (f *fakeVenue) GetOrderSize(ctx context.Context, symbol string) (domain.OrderSize, error) {
	return f.size, nil
}

func (f *fakeVenue) GetTopOfBook(ctx context.Context, symbol string) (domain.TopOfBook, error) {
	return f.book, nil
}

func (f *fakeVenue) SubmitOrder(ctx context.Context, order domain.VenueOrder) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.submitted)
	f.submitted = append(f.submitted, order)
	id := fmt.Sprintf("ord-%d", n+1)
	if n < len(f.scripts) {
		f.scriptFor[id] = f.scripts[n]
	}
	return id, nil
}

func (f *fakeVenue) GetOrderStatus(ctx context.Context, externalID string) (domain.OrderStatusSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	script, ok := f.scriptFor[externalID]
	if !ok || len(script) == 0 {
		return domain.OrderStatusSnapshot{}, domain.ErrNotFound
	}
	idx := f.statusIdx[externalID]
	if idx >= len(script) {
		idx = len(script) - 1
	} else {
		f.statusIdx[externalID] = idx + 1
	}
	snap := script[idx]
	snap.ObservedAt = time.Now()
	return snap, nil
}

func (f *fakeVenue) CancelOrder(ctx context.Context, externalID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, externalID)
	return nil
}

func (f *fakeVenue) cancelCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cancelled)
}

func (f *fakeVenue) totalStatusCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls
}

var _ domain.Venue = (*fakeVenue)(nil)

func open(qty, avg float64) domain.OrderStatusSnapshot {
	return domain.OrderStatusSnapshot{State: domain.OrderStateOpen, ExecutedQty: qty, AvgPrice: avg}
}

func terminal(state domain.OrderState, qty, avg float64) domain.OrderStatusSnapshot {
	return domain.OrderStatusSnapshot{State: state, ExecutedQty: qty, AvgPrice: avg}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func submitOne(t *testing.T, fv *fakeVenue) (*Monitor, domain.SubmittedOrder) {
	t.Helper()
	sub := NewSubmitter(fv, nil, passLimiter{}, testLogger())
	q := domain.QuantizedOrder{
		Request: domain.OrderRequest{Symbol: "ETH-USD", Side: domain.SideLong, Kind: domain.OrderKindLimit},
		Size:    0.1,
		Price:   3000,
	}
	submitted, err := sub.Submit(context.Background(), q, domain.Account{})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return NewMonitor(fv, passLimiter{}, sub, testLogger()), submitted
}

func TestMonitorFillProgression(t *testing.T) {
	fv := newFakeVenue([]domain.OrderStatusSnapshot{
		open(0, 0),
		open(0.4, 3000),
		open(0.4, 3000), // duplicate, must not produce a callback
		terminal(domain.OrderStateFilled, 1.0, 3000),
	})
	mon, sub := submitOne(t, fv)

	var mu sync.Mutex
	var seen []domain.OrderStatusSnapshot
	cfg := MonitorConfig{
		PollInterval: 2 * time.Millisecond,
		OnUpdate: func(s domain.OrderStatusSnapshot) {
			mu.Lock()
			seen = append(seen, s)
			mu.Unlock()
		},
	}

	res, err := mon.Run(context.Background(), sub, domain.Account{}, cfg)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !res.Success || res.FinalState != domain.OrderStateFilled {
		t.Fatalf("got success=%v state=%s, want filled success", res.Success, res.FinalState)
	}
	if res.Attempts != 0 {
		t.Errorf("attempts = %d, want 0", res.Attempts)
	}
	if res.Snapshot.ExecutedQty != 1.0 {
		t.Errorf("final executed = %v, want 1.0", res.Snapshot.ExecutedQty)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 3 {
		t.Fatalf("got %d callbacks, want 3", len(seen))
	}
	for i := 1; i < len(seen); i++ {
		if seen[i].ExecutedQty < seen[i-1].ExecutedQty {
			t.Errorf("callback %d executed %v < previous %v", i, seen[i].ExecutedQty, seen[i-1].ExecutedQty)
		}
	}
	if seen[2].State != domain.OrderStateFilled {
		t.Errorf("last callback state = %s, want filled", seen[2].State)
	}
}

func TestMonitorCancelledByVenue(t *testing.T) {
	fv := newFakeVenue([]domain.OrderStatusSnapshot{
		open(0, 0),
		terminal(domain.OrderStateCancelled, 0, 0),
	})
	mon, sub := submitOne(t, fv)

	res, err := mon.Run(context.Background(), sub, domain.Account{}, MonitorConfig{
		PollInterval: 2 * time.Millisecond,
		Timeout:      time.Second,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !res.Success || res.FinalState != domain.OrderStateCancelled {
		t.Fatalf("got success=%v state=%s, want cancelled success", res.Success, res.FinalState)
	}
	if fv.cancelCount() != 0 {
		t.Errorf("issued %d cancels, want 0", fv.cancelCount())
	}
}

func TestMonitorExpired(t *testing.T) {
	fv := newFakeVenue([]domain.OrderStatusSnapshot{
		open(0, 0),
		terminal(domain.OrderStateExpired, 0, 0),
	})
	mon, sub := submitOne(t, fv)

	res, err := mon.Run(context.Background(), sub, domain.Account{}, MonitorConfig{
		PollInterval: 2 * time.Millisecond,
		Timeout:      time.Second,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !res.Success || res.FinalState != domain.OrderStateExpired {
		t.Fatalf("got success=%v state=%s, want expired success", res.Success, res.FinalState)
	}
}

func TestMonitorRejectResubmitThenFill(t *testing.T) {
	rejected := []domain.OrderStatusSnapshot{
		{State: domain.OrderStateRejected},
	}
	fv := newFakeVenue(
		rejected,
		rejected,
		[]domain.OrderStatusSnapshot{
			open(0, 0),
			terminal(domain.OrderStateFilled, 0.1, 3000),
		},
	)
	mon, sub := submitOne(t, fv)

	res, err := mon.Run(context.Background(), sub, domain.Account{}, MonitorConfig{
		Retries:      3,
		PollInterval: 2 * time.Millisecond,
		RetryPause:   time.Millisecond,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !res.Success || res.FinalState != domain.OrderStateFilled {
		t.Fatalf("got success=%v state=%s, want filled success", res.Success, res.FinalState)
	}
	if res.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", res.Attempts)
	}
	if res.ExternalOrderID != "ord-3" {
		t.Errorf("final order id = %s, want ord-3", res.ExternalOrderID)
	}
	if got := len(fv.submitted); got != 3 {
		t.Errorf("submissions = %d, want 3", got)
	}
	// Each rejected order's venue-side interest was released.
	if fv.cancelCount() != 2 {
		t.Errorf("cancels = %d, want 2", fv.cancelCount())
	}
}

func TestMonitorRejectBudgetExhausted(t *testing.T) {
	rejected := []domain.OrderStatusSnapshot{
		{State: domain.OrderStateRejected},
	}
	fv := newFakeVenue(rejected, rejected, rejected, rejected)
	mon, sub := submitOne(t, fv)

	res, err := mon.Run(context.Background(), sub, domain.Account{}, MonitorConfig{
		Retries:      3,
		PollInterval: 2 * time.Millisecond,
		RetryPause:   time.Millisecond,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Success {
		t.Fatal("exhausted retry budget reported success")
	}
	if res.FinalState != domain.OrderStateRejected {
		t.Errorf("final state = %s, want rejected", res.FinalState)
	}
	if res.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", res.Attempts)
	}
	if got := len(fv.submitted); got != 4 {
		t.Errorf("submissions = %d, want 4", got)
	}
}

func TestMonitorInactivityTimeout(t *testing.T) {
	fv := newFakeVenue([]domain.OrderStatusSnapshot{
		open(0, 0),
	})
	mon, sub := submitOne(t, fv)

	res, err := mon.Run(context.Background(), sub, domain.Account{}, MonitorConfig{
		PollInterval: 2 * time.Millisecond,
		Timeout:      15 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !res.Success || res.FinalState != domain.OrderStateTimeoutCancelled {
		t.Fatalf("got success=%v state=%s, want timeout_cancelled success", res.Success, res.FinalState)
	}
	if fv.cancelCount() != 1 {
		t.Errorf("cancels = %d, want 1", fv.cancelCount())
	}
	if fv.cancelled[0] != "ord-1" {
		t.Errorf("cancelled %s, want ord-1", fv.cancelled[0])
	}
}

func TestMonitorProgressExtendsDeadline(t *testing.T) {
	fv := newFakeVenue([]domain.OrderStatusSnapshot{
		open(0.01, 3000),
		open(0.02, 3000),
		open(0.03, 3000),
		open(0.04, 3000),
		open(0.05, 3000),
		open(0.06, 3000),
		terminal(domain.OrderStateFilled, 0.1, 3000),
	})
	mon, sub := submitOne(t, fv)

	start := time.Now()
	res, err := mon.Run(context.Background(), sub, domain.Account{}, MonitorConfig{
		PollInterval: 5 * time.Millisecond,
		Timeout:      20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !res.Success || res.FinalState != domain.OrderStateFilled {
		t.Fatalf("got success=%v state=%s, want filled success", res.Success, res.FinalState)
	}
	// Seven polls at 5ms apiece outlive the 20ms window only because each
	// execution increase reset the deadline.
	if elapsed := time.Since(start); elapsed <= 20*time.Millisecond {
		t.Errorf("run finished in %v, expected the fill to take longer than the timeout window", elapsed)
	}
	if fv.cancelCount() != 0 {
		t.Errorf("cancels = %d, want 0", fv.cancelCount())
	}
}

func TestMonitorContextCancelled(t *testing.T) {
	fv := newFakeVenue([]domain.OrderStatusSnapshot{
		open(0, 0),
	})
	mon, sub := submitOne(t, fv)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := mon.Run(ctx, sub, domain.Account{}, MonitorConfig{
		PollInterval: 2 * time.Millisecond,
	})
	if err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if fv.cancelCount() != 1 {
		t.Errorf("cancels = %d, want 1", fv.cancelCount())
	}
}
