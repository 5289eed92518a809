package apex

import (
	"strconv"
	"time"

	"github.com/alanyoungcy/perpbot/internal/domain"
)

// --------------------------------------------------------------------------
// REST API DTOs
// --------------------------------------------------------------------------

// apiSymbol is one market's metadata as returned by /v1/symbols.
type apiSymbol struct {
	Symbol       string `json:"symbol"`
	MinOrderSize string `json:"minOrderSize"`
	StepSize     string `json:"stepSize"`
	TickDecimals int    `json:"tickDecimals"`
	BaseAssetID  string `json:"baseAssetId"`
	QuoteAssetID string `json:"quoteAssetId"`
	// BaseScale and QuoteScale are the fixed-point exponents for settlement
	// amounts (amount * 10^scale).
	BaseScale  int `json:"baseScale"`
	QuoteScale int `json:"quoteScale"`
}

// apiDepth is the top-of-book response from /v1/depth.
type apiDepth struct {
	Symbol string     `json:"symbol"`
	Bids   [][]string `json:"bids"` // [price, size] levels, best first
	Asks   [][]string `json:"asks"`
}

// apiOrderResult is the response from placing an order.
type apiOrderResult struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
	Data    struct {
		OrderID string `json:"orderId"`
		Status  string `json:"status"`
	} `json:"data"`
}

// apiOrder is an order as returned by /v1/order.
type apiOrder struct {
	OrderID      string `json:"orderId"`
	Symbol       string `json:"symbol"`
	Status       string `json:"status"`
	Side         string `json:"side"`
	Size         string `json:"size"`
	Price        string `json:"price"`
	CumFillSize  string `json:"cumFillSize"`
	AvgFillPrice string `json:"avgFillPrice"`
	UpdatedAt    int64  `json:"updatedAt"` // unix millis
}

// toSnapshot converts the wire order into the venue-neutral snapshot the
// monitor consumes. Unparseable numeric fields read as zero; the raw values
// are preserved for display either way.
func (o apiOrder) toSnapshot() domain.OrderStatusSnapshot {
	executed, _ := strconv.ParseFloat(o.CumFillSize, 64)
	avg, _ := strconv.ParseFloat(o.AvgFillPrice, 64)

	return domain.OrderStatusSnapshot{
		State:       mapOrderStatus(o.Status),
		ExecutedQty: executed,
		AvgPrice:    avg,
		Raw: map[string]any{
			"orderId":      o.OrderID,
			"symbol":       o.Symbol,
			"status":       o.Status,
			"side":         o.Side,
			"size":         o.Size,
			"price":        o.Price,
			"cumFillSize":  o.CumFillSize,
			"avgFillPrice": o.AvgFillPrice,
		},
		ObservedAt: time.UnixMilli(o.UpdatedAt),
	}
}

// mapOrderStatus translates venue status strings to lifecycle states.
// Unknown statuses read as open so the monitor keeps watching rather than
// inventing a terminal outcome.
func mapOrderStatus(s string) domain.OrderState {
	switch s {
	case "PENDING", "UNTRIGGERED":
		return domain.OrderStateSubmitted
	case "OPEN", "PARTIALLY_FILLED":
		return domain.OrderStateOpen
	case "FILLED":
		return domain.OrderStateFilled
	case "CANCELED", "CANCELLED":
		return domain.OrderStateCancelled
	case "EXPIRED":
		return domain.OrderStateExpired
	case "REJECTED", "FAILED":
		return domain.OrderStateRejected
	default:
		return domain.OrderStateOpen
	}
}

// --------------------------------------------------------------------------
// WebSocket DTOs
// --------------------------------------------------------------------------

// wsSubscribe is the subscription request for the private order channel.
type wsSubscribe struct {
	Op      string   `json:"op"`
	Args    []string `json:"args"`
	APIKey  string   `json:"apiKey,omitempty"`
	Expires int64    `json:"expires,omitempty"`
}

// wsOrderEvent is one pushed order update.
type wsOrderEvent struct {
	Topic string   `json:"topic"`
	Data  apiOrder `json:"data"`
}
