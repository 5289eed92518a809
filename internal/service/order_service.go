// Package service orchestrates order execution with its operational side
// effects: submission dedup, journaling, and operator notifications. The
// side effects are best-effort; only dedup can stop an order from going out.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/perpbot/internal/domain"
	"github.com/alanyoungcy/perpbot/internal/executor"
	"github.com/alanyoungcy/perpbot/internal/notify"
)

// OrderService wraps the executor with journaling, dedup and notification.
// Journal, deduper and notifier are all optional; a nil collaborator just
// disables that concern.
type OrderService struct {
	exec     *executor.Client
	venue    domain.Venue
	journal  domain.OrderJournal
	deduper  domain.Deduper
	notifier *notify.Notifier
	logger   *slog.Logger
}

// NewOrderService wires an OrderService.
func NewOrderService(
	exec *executor.Client,
	venue domain.Venue,
	journal domain.OrderJournal,
	deduper domain.Deduper,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *OrderService {
	return &OrderService{
		exec:     exec,
		venue:    venue,
		journal:  journal,
		deduper:  deduper,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "order_service")),
	}
}

// ExecuteParams carries one execution request through the service.
type ExecuteParams struct {
	Request domain.OrderRequest
	Account domain.Account
	Monitor executor.MonitorConfig
	// IdempotencyKey, when set, guards against double submission across
	// process restarts. Empty disables the check.
	IdempotencyKey string
}

// Execute runs one order end to end: dedup check, prepare, submit, journal,
// monitor, journal the outcome and notify. It fails with
// ErrDuplicateSubmission when the idempotency key was already used.
func (s *OrderService) Execute(ctx context.Context, p ExecuteParams) (domain.ExecutionResult, error) {
	if p.IdempotencyKey != "" && s.deduper != nil {
		seen, err := s.deduper.Seen(ctx, p.IdempotencyKey)
		if err != nil {
			// A broken dedup backend must not block trading; log and go on.
			s.logger.WarnContext(ctx, "dedup check failed",
				slog.String("key", p.IdempotencyKey),
				slog.String("error", err.Error()),
			)
		} else if seen {
			return domain.ExecutionResult{}, fmt.Errorf("service: execute %s: %w",
				p.Request.Symbol, domain.ErrDuplicateSubmission)
		}
	}

	q, err := s.exec.Prepare(ctx, p.Request)
	if err != nil {
		return domain.ExecutionResult{}, err
	}

	sub, err := s.exec.Submitter().Submit(ctx, q, p.Account)
	if err != nil {
		return domain.ExecutionResult{}, err
	}
	s.recordSubmission(ctx, sub)

	if fireAndForget(p.Monitor) {
		return domain.ExecutionResult{
			Success:         true,
			FinalState:      domain.OrderStateSubmitted,
			ExternalOrderID: sub.ExternalID,
		}, nil
	}

	res, err := s.exec.Monitor().Run(ctx, sub, p.Account, p.Monitor)
	if err != nil {
		return domain.ExecutionResult{}, err
	}

	s.recordOutcome(ctx, sub, res)
	s.notifyOutcome(ctx, sub, res)
	return res, nil
}

func (s *OrderService) recordSubmission(ctx context.Context, sub domain.SubmittedOrder) {
	if s.journal == nil {
		return
	}
	entry := domain.OrderJournalEntry{
		ClientOrderID: sub.ClientOrderID,
		ExternalID:    sub.ExternalID,
		Venue:         s.venue.Name(),
		Symbol:        sub.Order.Request.Symbol,
		Side:          sub.Order.Request.Side,
		Kind:          sub.Order.Request.Kind,
		Size:          sub.Order.Size,
		Price:         sub.Order.Price,
		State:         domain.OrderStateSubmitted,
		SubmittedAt:   sub.SubmittedAt,
	}
	if err := s.journal.RecordSubmission(ctx, entry); err != nil {
		s.logger.ErrorContext(ctx, "journal submission failed",
			slog.String("client_order_id", sub.ClientOrderID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *OrderService) recordOutcome(ctx context.Context, sub domain.SubmittedOrder, res domain.ExecutionResult) {
	if s.journal == nil {
		return
	}
	// Journal with a detached context so a caller cancelling right at the
	// end does not lose the outcome row.
	jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.journal.RecordOutcome(jctx, sub.ClientOrderID, res); err != nil {
		s.logger.ErrorContext(ctx, "journal outcome failed",
			slog.String("client_order_id", sub.ClientOrderID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *OrderService) notifyOutcome(ctx context.Context, sub domain.SubmittedOrder, res domain.ExecutionResult) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.OrderResolved(ctx, sub, res); err != nil {
		s.logger.WarnContext(ctx, "notification failed",
			slog.String("external_id", res.ExternalOrderID),
			slog.String("error", err.Error()),
		)
	}
}

func fireAndForget(cfg executor.MonitorConfig) bool {
	return cfg.OnUpdate == nil && cfg.Retries == 0 && cfg.Timeout == 0
}
