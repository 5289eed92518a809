package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/perpbot/internal/domain"
	"github.com/alanyoungcy/perpbot/internal/executor"
	"github.com/alanyoungcy/perpbot/internal/feed"
	"github.com/alanyoungcy/perpbot/internal/quant"
	"github.com/alanyoungcy/perpbot/internal/service"
)

// SubmitMode executes one order end to end and reports the outcome.
func (a *App) SubmitMode(ctx context.Context, deps *Dependencies, opts RunOptions) error {
	if opts.Order == nil {
		return fmt.Errorf("app: submit mode requires an order (see -symbol, -side, -qty flags)")
	}

	req := *opts.Order
	if req.SlippagePct == 0 {
		req.SlippagePct = a.cfg.Execution.SlippagePct
	}

	mon := monitorConfig(a.cfg)
	mon.OnUpdate = func(snap domain.OrderStatusSnapshot) {
		a.logger.Info("order update",
			slog.String("state", string(snap.State)),
			slog.Float64("executed", snap.ExecutedQty),
			slog.Float64("avg_price", snap.AvgPrice),
		)
	}

	res, err := deps.Orders.Execute(ctx, service.ExecuteParams{
		Request:        req,
		Account:        deps.Account,
		Monitor:        mon,
		IdempotencyKey: idempotencyKey(req, deps.Account),
	})
	if err != nil {
		return fmt.Errorf("app: submit: %w", err)
	}

	a.logger.InfoContext(ctx, "order resolved",
		slog.Bool("success", res.Success),
		slog.String("state", string(res.FinalState)),
		slog.String("external_id", res.ExternalOrderID),
		slog.Float64("executed", res.Snapshot.ExecutedQty),
		slog.Int("attempts", res.Attempts),
	)
	if !res.Success {
		return fmt.Errorf("app: order %s ended %s after %d attempts",
			res.ExternalOrderID, res.FinalState, res.Attempts)
	}
	return nil
}

// watchVenue overlays the reconnecting feed on a venue so the monitor sees
// a stream that survives disconnects.
type watchVenue struct {
	domain.Venue
	feed *feed.OrderFeed
}

func (w watchVenue) StreamOrderStatus(ctx context.Context, externalID string) (<-chan domain.OrderStatusSnapshot, error) {
	return w.feed.StreamOrderStatus(ctx, externalID)
}

// WatchMode resumes monitoring an order submitted elsewhere. It never
// resubmits (watch processes carry no signing key); it observes until the
// order resolves or the inactivity timeout cancels it.
func (a *App) WatchMode(ctx context.Context, deps *Dependencies, opts RunOptions) error {
	if opts.WatchID == "" {
		return fmt.Errorf("app: watch mode requires -order-id")
	}

	venue := deps.Venue
	if streamer, ok := venue.(domain.StatusStreamer); ok {
		venue = watchVenue{Venue: venue, feed: feed.NewOrderFeed(streamer, a.logger)}
	}

	mon := executor.NewMonitor(venue, deps.Limiter, deps.Executor.Submitter(), a.logger)
	cfg := monitorConfig(a.cfg)
	cfg.Retries = 0
	cfg.OnUpdate = func(snap domain.OrderStatusSnapshot) {
		a.logger.Info("order update",
			slog.String("order_id", opts.WatchID),
			slog.String("state", string(snap.State)),
			slog.Float64("executed", snap.ExecutedQty),
		)
	}

	sub := domain.SubmittedOrder{
		ExternalID:  opts.WatchID,
		SubmittedAt: time.Now().UTC(),
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	var res domain.ExecutionResult
	g.Go(func() error {
		// Resolution ends the watch; the heartbeat must not outlive it.
		defer cancel()
		var err error
		res, err = mon.Run(ctx, sub, deps.Account, cfg)
		return err
	})
	g.Go(func() error {
		// Heartbeat so a quiet watch is distinguishable from a hung one.
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				a.logger.Info("watching", slog.String("order_id", opts.WatchID))
			}
		}
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("app: watch %s: %w", opts.WatchID, err)
	}

	a.logger.InfoContext(ctx, "order resolved",
		slog.String("order_id", opts.WatchID),
		slog.String("state", string(res.FinalState)),
		slog.Float64("executed", res.Snapshot.ExecutedQty),
	)
	return nil
}

// ArchiveMode moves journal entries older than the retention period to blob
// storage.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	if deps.Archiver == nil {
		return fmt.Errorf("app: archive mode requires s3 and postgres to be enabled")
	}

	cutoff := retentionCutoff(a.cfg, time.Now().UTC())
	count, path, err := deps.Archiver.ArchiveBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("app: archive: %w", err)
	}
	if count == 0 {
		a.logger.InfoContext(ctx, "nothing to archive",
			slog.Time("cutoff", cutoff),
		)
		return nil
	}

	a.logger.InfoContext(ctx, "journal archived",
		slog.Int("entries", count),
		slog.String("path", path),
		slog.Time("cutoff", cutoff),
	)
	return nil
}

// idempotencyKey derives a dedup key from the order's economic identity, so
// an accidental re-run of the same command inside the dedup window is
// refused rather than doubled.
func idempotencyKey(req domain.OrderRequest, account domain.Account) string {
	return fmt.Sprintf("%s|%s|%s|%s|%s|%s",
		account.ID, req.Symbol, req.Side, req.Kind,
		quant.FormatCompact(req.Qty), req.Unit,
	)
}
