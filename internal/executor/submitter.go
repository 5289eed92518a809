// Package executor drives an order from submission to a terminal outcome:
// quantization and pricing against the venue's constraints, settlement
// signing where required, rate-limited submission, and the monitoring state
// machine with bounded reject-retry and progress-aware timeout.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/perpbot/internal/domain"
)

// submitWeight is the rate-limit weight of an order placement. Venues price
// write calls heavier than reads.
const submitWeight = 2

// Submitter assembles venue order requests and places them. It never retries
// on its own: a venue rejection is the monitor's business, and a malformed
// response is fatal.
type Submitter struct {
	venue   domain.Venue
	signer  domain.SettlementSigner
	limiter domain.RateLimiter
	logger  *slog.Logger
}

// NewSubmitter creates a Submitter. signer may be nil for venues that do not
// require settlement signing.
func NewSubmitter(venue domain.Venue, signer domain.SettlementSigner, limiter domain.RateLimiter, logger *slog.Logger) *Submitter {
	return &Submitter{
		venue:   venue,
		signer:  signer,
		limiter: limiter,
		logger:  logger.With(slog.String("component", "submitter")),
	}
}

// Submit places one quantized order and returns its venue-assigned identity.
// Every call produces a fresh SubmittedOrder with a new client order id; a
// resubmission is a new order, never a mutation of an old one.
func (s *Submitter) Submit(ctx context.Context, q domain.QuantizedOrder, account domain.Account) (domain.SubmittedOrder, error) {
	order := domain.VenueOrder{
		Symbol:        q.Request.Symbol,
		Side:          q.Request.Side,
		Kind:          q.Request.Kind,
		Size:          q.Size,
		Price:         q.Price,
		ClientOrderID: uuid.NewString(),
	}

	if s.venue.RequiresSettlementSigning() {
		settlement, err := s.signOrder(ctx, order, account)
		if err != nil {
			return domain.SubmittedOrder{}, err
		}
		order.Settlement = &settlement
	}

	var externalID string
	err := s.limiter.Do(ctx, submitWeight, func(ctx context.Context) error {
		id, err := s.venue.SubmitOrder(ctx, order)
		if err != nil {
			return err
		}
		externalID = id
		return nil
	})
	if err != nil {
		return domain.SubmittedOrder{}, fmt.Errorf("executor: submit %s %s: %w", order.Symbol, order.Side, err)
	}

	s.logger.InfoContext(ctx, "order submitted",
		slog.String("venue", s.venue.Name()),
		slog.String("symbol", order.Symbol),
		slog.String("side", string(order.Side)),
		slog.Float64("size", order.Size),
		slog.Float64("price", order.Price),
		slog.String("external_id", externalID),
	)

	return domain.SubmittedOrder{
		Order:         q,
		ClientOrderID: order.ClientOrderID,
		ExternalID:    externalID,
		SubmittedAt:   time.Now().UTC(),
	}, nil
}

// signOrder obtains the settlement authorization for an order. The signer is
// consumed strictly as an interface: asset identifiers and scaled amounts
// come from the venue, the signature from the signer, and nothing
// cryptographic happens here.
func (s *Submitter) signOrder(ctx context.Context, order domain.VenueOrder, account domain.Account) (domain.Settlement, error) {
	spec, ok := s.venue.(domain.SettlementSpecifier)
	if !ok {
		return domain.Settlement{}, fmt.Errorf("executor: venue %s requires settlement signing but provides no terms", s.venue.Name())
	}
	if s.signer == nil {
		return domain.Settlement{}, fmt.Errorf("executor: venue %s requires settlement signing but no signer is configured", s.venue.Name())
	}

	terms, err := spec.SettlementTerms(ctx, order, account)
	if err != nil {
		return domain.Settlement{}, fmt.Errorf("executor: settlement terms: %w", err)
	}
	settlement, err := s.signer.Sign(terms)
	if err != nil {
		return domain.Settlement{}, fmt.Errorf("executor: sign settlement: %w", err)
	}
	return settlement, nil
}
