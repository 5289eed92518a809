package throttle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/perpbot/internal/domain"
)

func TestLimiter_PropagatesUnitError(t *testing.T) {
	l := New(10, time.Second, nil)
	defer l.Close()

	sentinel := errors.New("venue said no")
	err := l.Do(context.Background(), 1, func(ctx context.Context) error {
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("Do returned %v, want sentinel", err)
	}

	// The limiter still works after a unit error: accounting is intact.
	err = l.Do(context.Background(), 1, func(ctx context.Context) error {
		return nil
	})
	if err != nil {
		t.Fatalf("Do after failed unit returned %v", err)
	}
}

func TestLimiter_PreservesSubmissionOrder(t *testing.T) {
	l := New(1, 5*time.Millisecond, nil)
	defer l.Close()

	const n = 10
	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	// Serialize enqueueing so submission order is deterministic, then let
	// the units complete concurrently from the callers' point of view.
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		done := make(chan struct{})
		go func() {
			defer wg.Done()
			close(done)
			_ = l.Do(context.Background(), 1, func(ctx context.Context) error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			})
		}()
		<-done
		time.Sleep(time.Millisecond)
	}
	wg.Wait()

	for i, got := range order {
		if got != i {
			t.Fatalf("execution order %v, want ascending", order)
		}
	}
}

func TestLimiter_EnforcesBudget(t *testing.T) {
	// Budget 2 per 40ms window: 6 units need at least two extra windows.
	l := New(2, 40*time.Millisecond, nil)
	defer l.Close()

	start := time.Now()
	for i := 0; i < 6; i++ {
		if err := l.Do(context.Background(), 1, func(ctx context.Context) error { return nil }); err != nil {
			t.Fatalf("Do returned %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("6 units at budget 2/40ms finished in %v, want >= 80ms", elapsed)
	}
}

func TestLimiter_WeightConsumesBudget(t *testing.T) {
	l := New(4, 40*time.Millisecond, nil)
	defer l.Close()

	start := time.Now()
	// Two weight-3 units cannot share a window of budget 4.
	for i := 0; i < 2; i++ {
		if err := l.Do(context.Background(), 3, func(ctx context.Context) error { return nil }); err != nil {
			t.Fatalf("Do returned %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("two weight-3 units at budget 4 finished in %v, want a window boundary in between", elapsed)
	}
}

func TestLimiter_ContextCancelledBeforeRun(t *testing.T) {
	l := New(1, 100*time.Millisecond, nil)
	defer l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ran := false
	err := l.Do(ctx, 1, func(ctx context.Context) error {
		ran = true
		return nil
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Do returned %v, want context.Canceled", err)
	}
	if ran {
		t.Error("unit ran despite cancelled context")
	}
}

func TestLimiter_CloseDrainsQueue(t *testing.T) {
	l := New(1, time.Hour, nil)

	// First unit exhausts the budget for a very long window, so the second
	// is stuck behind it when the limiter closes.
	if err := l.Do(context.Background(), 1, func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("Do returned %v", err)
	}

	errc := make(chan error, 1)
	go func() {
		errc <- l.Do(context.Background(), 1, func(ctx context.Context) error { return nil })
	}()
	time.Sleep(10 * time.Millisecond)
	l.Close()

	select {
	case err := <-errc:
		if !errors.Is(err, domain.ErrLimiterClosed) {
			t.Fatalf("queued unit got %v, want ErrLimiterClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("queued unit never released after Close")
	}
}
