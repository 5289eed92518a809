package redis

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/perpbot/internal/domain"
)

//go:embed scripts/sliding_window.lua
var slidingWindowLua string

const gatePollInterval = 50 * time.Millisecond

// RateGate is a cross-process admission check over a Redis sliding window.
// Several processes submitting against the same venue account share one
// request budget through it; the in-process limiter consults the gate before
// dispatching each unit.
type RateGate struct {
	rdb           *goredis.Client
	slidingWindow *goredis.Script

	// defaults used by Wait; Allow takes explicit params.
	limit  int
	window time.Duration
}

// NewRateGate creates a RateGate backed by the given Client. The limit and
// window are the per-key defaults applied by Wait.
func NewRateGate(c *Client, limit int, window time.Duration) *RateGate {
	return &RateGate{
		rdb:           c.Underlying(),
		slidingWindow: goredis.NewScript(slidingWindowLua),
		limit:         limit,
		window:        window,
	}
}

func gateKey(key string) string {
	return "venuegate:" + key
}

// Allow reports whether one more call under key fits in the window, counting
// the call when admitted.
func (g *RateGate) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	result, err := g.slidingWindow.Run(
		ctx,
		g.rdb,
		[]string{gateKey(key)},
		time.Now().UnixMicro(),
		window.Microseconds(),
		limit,
	).Int64Slice()
	if err != nil {
		return false, fmt.Errorf("redis: gate allow %s: %w", key, err)
	}
	if len(result) < 2 {
		return false, fmt.Errorf("redis: gate allow %s: unexpected result length %d", key, len(result))
	}

	return result[0] == 1, nil
}

// Wait blocks until a call under key is admitted with the gate's default
// limit and window, or ctx is done.
func (g *RateGate) Wait(ctx context.Context, key string) error {
	for {
		allowed, err := g.Allow(ctx, key, g.limit, g.window)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		timer := time.NewTimer(gatePollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("redis: gate wait %s: %w", key, ctx.Err())
		case <-timer.C:
		}
	}
}

var _ domain.RateGate = (*RateGate)(nil)
