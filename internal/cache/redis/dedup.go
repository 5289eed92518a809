package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/perpbot/internal/domain"
)

// Deduper guards against double-submitting a logical order across process
// restarts using SET NX with a TTL. The first caller to record a key owns
// it for the window; everyone after sees it as a duplicate.
type Deduper struct {
	rdb    *goredis.Client
	window time.Duration
}

// NewDeduper creates a Deduper whose keys expire after window.
func NewDeduper(c *Client, window time.Duration) *Deduper {
	return &Deduper{
		rdb:    c.Underlying(),
		window: window,
	}
}

func dedupKey(key string) string {
	return "submitted:" + key
}

// Seen records key and reports whether it was already recorded within the
// window.
func (d *Deduper) Seen(ctx context.Context, key string) (bool, error) {
	ok, err := d.rdb.SetNX(ctx, dedupKey(key), 1, d.window).Result()
	if err != nil {
		return false, fmt.Errorf("redis: dedup %s: %w", key, err)
	}
	// SETNX succeeding means the key was fresh.
	return !ok, nil
}

var _ domain.Deduper = (*Deduper)(nil)
