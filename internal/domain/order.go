package domain

import (
	"time"
)

// Side indicates the direction of a perpetual-futures order.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// OrderKind distinguishes immediate-execution orders from resting orders.
type OrderKind string

const (
	OrderKindMarket OrderKind = "market"
	OrderKindLimit  OrderKind = "limit"
)

// SizeUnit says which asset the requested quantity is denominated in.
type SizeUnit string

const (
	// SizeUnitBase means the quantity is in the traded asset (e.g. ETH).
	SizeUnitBase SizeUnit = "base"
	// SizeUnitQuote means the quantity is in the settlement asset (e.g. USD)
	// and must be converted using a reference price before quantization.
	SizeUnitQuote SizeUnit = "quote"
)

// OrderState tracks the venue-side order lifecycle. Filled, Cancelled,
// Expired and TimeoutCancelled are terminal; Rejected is terminal only once
// the resubmission budget is exhausted.
type OrderState string

const (
	OrderStateSubmitted        OrderState = "submitted"
	OrderStateOpen             OrderState = "open"
	OrderStateRejected         OrderState = "rejected"
	OrderStateFilled           OrderState = "filled"
	OrderStateCancelled        OrderState = "cancelled"
	OrderStateExpired          OrderState = "expired"
	OrderStateTimeoutCancelled OrderState = "timeout_cancelled"
)

// Terminal reports whether no further transition can occur from s. Rejected
// is not terminal here because the monitor may resubmit.
func (s OrderState) Terminal() bool {
	switch s {
	case OrderStateFilled, OrderStateCancelled, OrderStateExpired, OrderStateTimeoutCancelled:
		return true
	}
	return false
}

// OrderRequest is the caller's description of a desired order. It is
// immutable once built; quantization and pricing derive new values rather
// than mutating the request.
type OrderRequest struct {
	Symbol string
	Side   Side
	Kind   OrderKind
	// Qty is the requested quantity denominated in Unit.
	Qty  float64
	Unit SizeUnit
	// SlippagePct shifts a market order's price away from mid to guarantee
	// crossing, e.g. 0.05 for five basis points. Ignored for limit orders.
	SlippagePct float64
}

// QuantizedOrder is an OrderRequest resolved against the venue's size and
// tick constraints: Size is in base-asset units, floored to the venue step
// and at least the venue minimum; Price is rounded to the venue tick.
type QuantizedOrder struct {
	Request OrderRequest
	Size    float64
	Price   float64
}

// SubmittedOrder pairs a quantized order with the venue-assigned identity of
// one submission attempt. A resubmission after a reject produces a new
// SubmittedOrder with a fresh ClientOrderID and ExternalID, never a mutation
// of the old one.
type SubmittedOrder struct {
	Order         QuantizedOrder
	ClientOrderID string
	ExternalID    string
	SubmittedAt   time.Time
}

// OrderStatusSnapshot is one observation of an order's venue-side state,
// produced by each poll or push. Raw carries venue fields wanted for display
// or journaling but not interpreted by the monitor.
type OrderStatusSnapshot struct {
	State       OrderState
	ExecutedQty float64
	AvgPrice    float64
	Raw         map[string]any
	ObservedAt  time.Time
}

// Changed reports whether the snapshot differs from prev in any of the
// fields the monitor reacts to.
func (s OrderStatusSnapshot) Changed(prev OrderStatusSnapshot) bool {
	return s.State != prev.State ||
		s.ExecutedQty != prev.ExecutedQty ||
		s.AvgPrice != prev.AvgPrice
}

// ExecutionResult is the terminal outcome of one submit-and-monitor run.
// Success is true for every resolved outcome, including a timeout that was
// actively cancelled; it is false only when the venue rejected the order
// beyond the retry budget.
type ExecutionResult struct {
	Success         bool
	FinalState      OrderState
	Snapshot        OrderStatusSnapshot
	ExternalOrderID string
	// Attempts counts resubmissions after rejects; 0 means the first
	// submission ran to completion.
	Attempts int
}

// Account carries the venue credentials and settlement references that are
// passed explicitly to each submission. Nothing here is held in
// package-level state.
type Account struct {
	ID          string
	APIKey      string
	APISecret   string
	Passphrase  string
	PositionRef string
	FeeRateBps  int64
}
