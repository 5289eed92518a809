// Package apex implements the venue adapter for an ApeX-style perpetual
// futures DEX: REST order placement with settlement signing, order status
// queries, and a WebSocket order-update stream.
package apex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/alanyoungcy/perpbot/internal/domain"
	"github.com/alanyoungcy/perpbot/internal/quant"
)

const (
	// transportRetries bounds retries of transient transport failures for a
	// single call. Venue rejections are never retried here; that is the
	// monitor's job.
	transportRetries = 3
	retryBackoff     = 500 * time.Millisecond

	// settlementExpiry is how long a settlement signature stays valid.
	settlementExpiry = 28 * 24 * time.Hour
)

// Client is the REST client for the ApeX venue. It implements domain.Venue,
// domain.SettlementSpecifier and, through its Stream method, feeds the
// order-update WebSocket.
type Client struct {
	baseURL    string
	wsURL      string
	httpClient *http.Client
	account    domain.Account

	mu      sync.Mutex
	symbols map[string]apiSymbol // lazily fetched market metadata
}

// NewClient creates an adapter for the venue at baseURL. wsURL may be empty
// to disable push updates and fall back to polling.
func NewClient(baseURL, wsURL string, account domain.Account) *Client {
	return &Client{
		baseURL: baseURL,
		wsURL:   wsURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		account: account,
	}
}

// Name returns the venue identifier.
func (c *Client) Name() string {
	return "apex"
}

// RequiresSettlementSigning reports that orders must carry a settlement
// signature.
func (c *Client) RequiresSettlementSigning() bool {
	return true
}

// GetOrderSize returns the size and tick constraints for symbol.
func (c *Client) GetOrderSize(ctx context.Context, symbol string) (domain.OrderSize, error) {
	meta, err := c.symbolMeta(ctx, symbol)
	if err != nil {
		return domain.OrderSize{}, err
	}

	minQty, err := strconv.ParseFloat(meta.MinOrderSize, 64)
	if err != nil {
		return domain.OrderSize{}, fmt.Errorf("apex: parse min order size %q: %w", meta.MinOrderSize, domain.ErrMalformedVenueResponse)
	}
	step, err := strconv.ParseFloat(meta.StepSize, 64)
	if err != nil {
		return domain.OrderSize{}, fmt.Errorf("apex: parse step size %q: %w", meta.StepSize, domain.ErrMalformedVenueResponse)
	}

	return domain.OrderSize{
		MinQty:       minQty,
		StepSize:     step,
		TickDecimals: meta.TickDecimals,
	}, nil
}

// GetTopOfBook returns the best bid and ask for symbol.
func (c *Client) GetTopOfBook(ctx context.Context, symbol string) (domain.TopOfBook, error) {
	q := url.Values{"symbol": {symbol}, "limit": {"1"}}
	body, err := c.doRequest(ctx, http.MethodGet, "/v1/depth?"+q.Encode(), nil)
	if err != nil {
		return domain.TopOfBook{}, fmt.Errorf("apex: get depth %s: %w", symbol, err)
	}

	var depth apiDepth
	if err := json.Unmarshal(body, &depth); err != nil {
		return domain.TopOfBook{}, fmt.Errorf("apex: decode depth: %w", domain.ErrMalformedVenueResponse)
	}
	if len(depth.Bids) == 0 || len(depth.Asks) == 0 ||
		len(depth.Bids[0]) < 2 || len(depth.Asks[0]) < 2 {
		return domain.TopOfBook{}, fmt.Errorf("apex: empty book for %s: %w", symbol, domain.ErrMalformedVenueResponse)
	}

	bid, err := strconv.ParseFloat(depth.Bids[0][0], 64)
	if err != nil {
		return domain.TopOfBook{}, fmt.Errorf("apex: parse bid %q: %w", depth.Bids[0][0], domain.ErrMalformedVenueResponse)
	}
	ask, err := strconv.ParseFloat(depth.Asks[0][0], 64)
	if err != nil {
		return domain.TopOfBook{}, fmt.Errorf("apex: parse ask %q: %w", depth.Asks[0][0], domain.ErrMalformedVenueResponse)
	}

	return domain.TopOfBook{BestBid: bid, BestAsk: ask}, nil
}

// SettlementTerms translates the venue-neutral order into the asset
// identifiers and fixed-point amounts the settlement signer authorizes.
func (c *Client) SettlementTerms(ctx context.Context, order domain.VenueOrder, account domain.Account) (domain.SettlementTerms, error) {
	meta, err := c.symbolMeta(ctx, order.Symbol)
	if err != nil {
		return domain.SettlementTerms{}, err
	}

	baseAmount := scaleAmount(order.Size, meta.BaseScale)
	quoteAmount := scaleAmount(order.Size*order.Price, meta.QuoteScale)

	return domain.SettlementTerms{
		BaseAssetID:  meta.BaseAssetID,
		QuoteAssetID: meta.QuoteAssetID,
		BaseAmount:   baseAmount,
		QuoteAmount:  quoteAmount,
		FeeRateBps:   account.FeeRateBps,
		PositionRef:  account.PositionRef,
		ExpiresAt:    time.Now().Add(settlementExpiry).Unix(),
		IsLong:       order.Side == domain.SideLong,
	}, nil
}

// SubmitOrder places the order and returns the venue-assigned order id.
func (c *Client) SubmitOrder(ctx context.Context, order domain.VenueOrder) (string, error) {
	meta, err := c.symbolMeta(ctx, order.Symbol)
	if err != nil {
		return "", err
	}

	payload := map[string]any{
		"symbol":        order.Symbol,
		"side":          sideString(order.Side),
		"type":          kindString(order.Kind),
		"size":          quant.FormatAmount(order.Size, quant.Decimals(mustFloat(meta.StepSize))),
		"price":         quant.FormatAmount(order.Price, meta.TickDecimals),
		"clientOrderId": order.ClientOrderID,
	}
	if order.Settlement != nil {
		payload["signature"] = order.Settlement.Signature
		payload["starkKey"] = order.Settlement.PublicKeyRef
		payload["positionId"] = order.Settlement.PositionRef
		payload["expiration"] = order.Settlement.ExpiresAt
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/v1/order", payload)
	if err != nil {
		return "", fmt.Errorf("apex: submit order: %w", err)
	}

	var result apiOrderResult
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("apex: decode order result: %w", domain.ErrMalformedVenueResponse)
	}
	if result.Code != 0 {
		return "", fmt.Errorf("apex: order refused (code %d): %s: %w", result.Code, result.Message, domain.ErrVenueRejected)
	}
	if result.Data.OrderID == "" {
		// A success response without an order id cannot be tracked; treat it
		// as fatal rather than resubmitting blind.
		return "", fmt.Errorf("apex: order result missing order id: %w", domain.ErrMalformedVenueResponse)
	}

	return result.Data.OrderID, nil
}

// GetOrderStatus fetches the current snapshot for externalID.
func (c *Client) GetOrderStatus(ctx context.Context, externalID string) (domain.OrderStatusSnapshot, error) {
	q := url.Values{"id": {externalID}}
	body, err := c.doRequest(ctx, http.MethodGet, "/v1/order?"+q.Encode(), nil)
	if err != nil {
		return domain.OrderStatusSnapshot{}, fmt.Errorf("apex: get order %s: %w", externalID, err)
	}

	var order apiOrder
	if err := json.Unmarshal(body, &order); err != nil {
		return domain.OrderStatusSnapshot{}, fmt.Errorf("apex: decode order: %w", domain.ErrMalformedVenueResponse)
	}
	return order.toSnapshot(), nil
}

// CancelOrder requests cancellation of externalID. Callers treat failures as
// best-effort.
func (c *Client) CancelOrder(ctx context.Context, externalID string) error {
	payload := map[string]any{"orderId": externalID}
	if _, err := c.doRequest(ctx, http.MethodDelete, "/v1/order", payload); err != nil {
		return fmt.Errorf("apex: cancel order %s: %w", externalID, err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// symbolMeta returns cached market metadata, fetching the symbol table on
// first use.
func (c *Client) symbolMeta(ctx context.Context, symbol string) (apiSymbol, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.symbols == nil {
		body, err := c.doRequest(ctx, http.MethodGet, "/v1/symbols", nil)
		if err != nil {
			return apiSymbol{}, fmt.Errorf("apex: fetch symbols: %w", err)
		}
		var list []apiSymbol
		if err := json.Unmarshal(body, &list); err != nil {
			return apiSymbol{}, fmt.Errorf("apex: decode symbols: %w", domain.ErrMalformedVenueResponse)
		}
		c.symbols = make(map[string]apiSymbol, len(list))
		for _, s := range list {
			c.symbols[s.Symbol] = s
		}
	}

	meta, ok := c.symbols[symbol]
	if !ok {
		return apiSymbol{}, fmt.Errorf("apex: unknown symbol %q: %w", symbol, domain.ErrInvalidSymbol)
	}
	return meta, nil
}

// doRequest sends one HTTP request with bounded retries of transient
// failures. Transport errors and 5xx responses map to ErrVenueUnavailable;
// 4xx responses are returned as-is and never retried.
func (c *Client) doRequest(ctx context.Context, method, path string, body any) ([]byte, error) {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt < transportRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryBackoff * time.Duration(attempt)):
			}
		}

		var bodyReader io.Reader
		if bodyBytes != nil {
			bodyReader = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		if bodyBytes != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.account.APIKey != "" {
			req.Header.Set("APEX-API-KEY", c.account.APIKey)
			req.Header.Set("APEX-PASSPHRASE", c.account.Passphrase)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%w: %v", domain.ErrVenueUnavailable, err)
			continue
		}

		respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("%w: read response: %v", domain.ErrVenueUnavailable, err)
			continue
		}

		switch {
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("%w: HTTP %d", domain.ErrVenueUnavailable, resp.StatusCode)
			continue
		case resp.StatusCode == http.StatusNotFound:
			return nil, fmt.Errorf("HTTP 404: %w", domain.ErrNotFound)
		case resp.StatusCode >= 400:
			return nil, fmt.Errorf("HTTP %d: %s: %w", resp.StatusCode, string(respBody), domain.ErrVenueRejected)
		}

		return respBody, nil
	}

	return nil, lastErr
}

func sideString(s domain.Side) string {
	if s == domain.SideLong {
		return "BUY"
	}
	return "SELL"
}

func kindString(k domain.OrderKind) string {
	if k == domain.OrderKindMarket {
		return "MARKET"
	}
	return "LIMIT"
}

// scaleAmount converts a float amount to a fixed-point decimal string at the
// given scale, rounding to the nearest unit.
func scaleAmount(v float64, scale int) string {
	return strconv.FormatInt(int64(math.Round(v*math.Pow(10, float64(scale)))), 10)
}

func mustFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

var (
	_ domain.Venue               = (*Client)(nil)
	_ domain.SettlementSpecifier = (*Client)(nil)
)
