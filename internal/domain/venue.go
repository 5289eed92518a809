package domain

import "context"

// OrderSize describes a market's size and price granularity constraints.
type OrderSize struct {
	// MinQty is the smallest quantity the venue accepts, in base units.
	MinQty float64
	// StepSize is the quantity increment; valid sizes are multiples of it.
	StepSize float64
	// TickDecimals is the number of decimal places allowed in a price.
	TickDecimals int
}

// TopOfBook is the current best bid and ask for a market.
type TopOfBook struct {
	BestBid float64
	BestAsk float64
}

// VenueOrder is the venue-neutral request body assembled by the submitter.
// Adapters translate it to their wire format.
type VenueOrder struct {
	Symbol        string
	Side          Side
	Kind          OrderKind
	Size          float64
	Price         float64
	ClientOrderID string
	// Settlement is nil for venues that do not require settlement signing.
	Settlement *Settlement
}

// Venue is the single polymorphic surface each exchange integration
// implements. One generic quantizer/pricer/monitor drives any Venue; the
// per-venue code is confined to an adapter behind this interface.
type Venue interface {
	// Name returns the venue identifier used in logs and journal rows.
	Name() string
	// RequiresSettlementSigning reports whether SubmitOrder expects
	// VenueOrder.Settlement to be populated.
	RequiresSettlementSigning() bool
	// GetOrderSize returns the size constraints for symbol.
	// Fails with ErrInvalidSymbol for unknown markets.
	GetOrderSize(ctx context.Context, symbol string) (OrderSize, error)
	// GetTopOfBook returns the current best bid/ask for symbol.
	GetTopOfBook(ctx context.Context, symbol string) (TopOfBook, error)
	// SubmitOrder places the order and returns the venue-assigned external
	// order id. Fails with ErrVenueRejected or ErrVenueUnavailable.
	SubmitOrder(ctx context.Context, order VenueOrder) (string, error)
	// GetOrderStatus fetches the current snapshot for an order.
	GetOrderStatus(ctx context.Context, externalID string) (OrderStatusSnapshot, error)
	// CancelOrder requests cancellation. Callers treat failure as
	// best-effort; the order may already be terminal.
	CancelOrder(ctx context.Context, externalID string) error
}

// SettlementSpecifier is implemented by venues whose orders need settlement
// signing. It translates a venue-neutral order into the venue-specific asset
// identifiers and scaled amounts the signer authorizes.
type SettlementSpecifier interface {
	SettlementTerms(ctx context.Context, order VenueOrder, account Account) (SettlementTerms, error)
}

// StatusStreamer is optionally implemented by venues that push order updates.
// When available the monitor consumes the stream instead of polling; the
// update and terminal-detection logic is unchanged.
type StatusStreamer interface {
	// StreamOrderStatus delivers snapshots for externalID until ctx is
	// cancelled. The channel is closed when the stream ends.
	StreamOrderStatus(ctx context.Context, externalID string) (<-chan OrderStatusSnapshot, error)
}
