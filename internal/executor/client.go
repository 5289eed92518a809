package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/perpbot/internal/domain"
	"github.com/alanyoungcy/perpbot/internal/quant"
)

const (
	sizeWeight = 1
	bookWeight = 1
)

// Client is the one-call entry point: it quantizes, prices, signs, submits
// and then watches an order through to a terminal outcome.
type Client struct {
	venue     domain.Venue
	limiter   domain.RateLimiter
	submitter *Submitter
	monitor   *Monitor
	logger    *slog.Logger
}

// NewClient wires a Client from its collaborators.
func NewClient(venue domain.Venue, signer domain.SettlementSigner, limiter domain.RateLimiter, logger *slog.Logger) *Client {
	submitter := NewSubmitter(venue, signer, limiter, logger)
	return &Client{
		venue:     venue,
		limiter:   limiter,
		submitter: submitter,
		monitor:   NewMonitor(venue, limiter, submitter, logger),
		logger:    logger.With(slog.String("component", "executor")),
	}
}

// Submitter exposes the underlying submitter for callers that manage
// monitoring themselves.
func (c *Client) Submitter() *Submitter { return c.submitter }

// Monitor exposes the underlying monitor for resuming a watch on an order
// submitted elsewhere.
func (c *Client) Monitor() *Monitor { return c.monitor }

// SubmitAndMonitor prepares, submits and optionally monitors one order.
//
// Preparation fetches the symbol's size constraints and top of book, floors
// the requested size onto the step grid and derives the execution price.
// When no update callback, no retry budget and no timeout are configured
// the call is fire-and-forget: it returns as soon as the venue accepts the
// order, with the submission-time state.
func (c *Client) SubmitAndMonitor(ctx context.Context, req domain.OrderRequest, account domain.Account, cfg MonitorConfig) (domain.ExecutionResult, error) {
	q, err := c.Prepare(ctx, req)
	if err != nil {
		return domain.ExecutionResult{}, err
	}

	sub, err := c.submitter.Submit(ctx, q, account)
	if err != nil {
		return domain.ExecutionResult{}, err
	}

	if fireAndForget(cfg) {
		c.logger.InfoContext(ctx, "order submitted, not monitoring",
			slog.String("external_id", sub.ExternalID),
		)
		return domain.ExecutionResult{
			Success:         true,
			FinalState:      domain.OrderStateSubmitted,
			ExternalOrderID: sub.ExternalID,
		}, nil
	}

	return c.monitor.Run(ctx, sub, account, cfg)
}

// Prepare resolves the request into a venue-ready quantized order.
func (c *Client) Prepare(ctx context.Context, req domain.OrderRequest) (domain.QuantizedOrder, error) {
	var size domain.OrderSize
	err := c.limiter.Do(ctx, sizeWeight, func(ctx context.Context) error {
		var err error
		size, err = c.venue.GetOrderSize(ctx, req.Symbol)
		return err
	})
	if err != nil {
		return domain.QuantizedOrder{}, fmt.Errorf("executor: order size for %s: %w", req.Symbol, err)
	}

	var book domain.TopOfBook
	err = c.limiter.Do(ctx, bookWeight, func(ctx context.Context) error {
		var err error
		book, err = c.venue.GetTopOfBook(ctx, req.Symbol)
		return err
	})
	if err != nil {
		return domain.QuantizedOrder{}, fmt.Errorf("executor: top of book for %s: %w", req.Symbol, err)
	}

	refPrice := quant.Mid(book.BestBid, book.BestAsk)
	qty, err := quant.Quantize(req.Qty, req.Unit, refPrice, size.StepSize, size.MinQty)
	if err != nil {
		return domain.QuantizedOrder{}, fmt.Errorf("executor: quantize %s: %w", req.Symbol, err)
	}

	price := quant.DerivePrice(req.Kind, req.Side, book.BestBid, book.BestAsk, req.SlippagePct, size.TickDecimals)

	c.logger.DebugContext(ctx, "order prepared",
		slog.String("symbol", req.Symbol),
		slog.Float64("size", qty),
		slog.Float64("price", price),
	)
	return domain.QuantizedOrder{Request: req, Size: qty, Price: price}, nil
}

func fireAndForget(cfg MonitorConfig) bool {
	return cfg.OnUpdate == nil && cfg.Retries == 0 && cfg.Timeout == 0
}
