package feed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/perpbot/internal/domain"
)

// flakyStreamer fails its first dials, then serves scripted batches. Each
// successful dial hands out the next batch and closes the channel after it.
type flakyStreamer struct {
	mu       sync.Mutex
	failures int
	batches  [][]domain.OrderStatusSnapshot
	dials    int
}

func (s *flakyStreamer) StreamOrderStatus(ctx context.Context, externalID string) (<-chan domain.OrderStatusSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dials++
	if s.failures > 0 {
		s.failures--
		return nil, errors.New("dial refused")
	}
	if len(s.batches) == 0 {
		ch := make(chan domain.OrderStatusSnapshot)
		close(ch)
		return ch, nil
	}
	batch := s.batches[0]
	s.batches = s.batches[1:]

	ch := make(chan domain.OrderStatusSnapshot, len(batch))
	for _, snap := range batch {
		ch <- snap
	}
	close(ch)
	return ch, nil
}

func snap(state domain.OrderState, qty float64) domain.OrderStatusSnapshot {
	return domain.OrderStatusSnapshot{State: state, ExecutedQty: qty, ObservedAt: time.Now()}
}

func collect(t *testing.T, ch <-chan domain.OrderStatusSnapshot, timeout time.Duration) []domain.OrderStatusSnapshot {
	t.Helper()
	var out []domain.OrderStatusSnapshot
	deadline := time.After(timeout)
	for {
		select {
		case s, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, s)
		case <-deadline:
			t.Fatalf("feed did not close within %v (got %d snapshots)", timeout, len(out))
		}
	}
}

func TestOrderFeedReconnectsAcrossDrops(t *testing.T) {
	streamer := &flakyStreamer{
		batches: [][]domain.OrderStatusSnapshot{
			{snap(domain.OrderStateOpen, 0)},
			{snap(domain.OrderStateOpen, 0.5), snap(domain.OrderStateFilled, 1)},
		},
	}
	feed := NewOrderFeed(streamer, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ch, err := feed.StreamOrderStatus(context.Background(), "ord-1")
	if err != nil {
		t.Fatalf("stream: %v", err)
	}

	got := collect(t, ch, 5*time.Second)
	if len(got) != 3 {
		t.Fatalf("got %d snapshots, want 3 across two connections", len(got))
	}
	if got[2].State != domain.OrderStateFilled {
		t.Errorf("last state = %s, want filled", got[2].State)
	}
	if streamer.dials != 2 {
		t.Errorf("dials = %d, want 2", streamer.dials)
	}
}

func TestOrderFeedRetriesFailedDials(t *testing.T) {
	streamer := &flakyStreamer{
		failures: 2,
		batches: [][]domain.OrderStatusSnapshot{
			{snap(domain.OrderStateFilled, 1)},
		},
	}
	feed := NewOrderFeed(streamer, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ch, err := feed.StreamOrderStatus(context.Background(), "ord-1")
	if err != nil {
		t.Fatalf("stream: %v", err)
	}

	got := collect(t, ch, 10*time.Second)
	if len(got) != 1 || got[0].State != domain.OrderStateFilled {
		t.Fatalf("got %+v, want one filled snapshot", got)
	}
	if streamer.dials != 3 {
		t.Errorf("dials = %d, want 3 (two refused, one served)", streamer.dials)
	}
}

func TestOrderFeedStopsOnContextCancel(t *testing.T) {
	streamer := &flakyStreamer{failures: 1 << 30}
	feed := NewOrderFeed(streamer, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := feed.StreamOrderStatus(ctx, "ord-1")
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel after cancel")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("feed did not close after cancel")
	}
}
