package apex

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/perpbot/internal/domain"
)

const (
	// wsWriteWait is the time allowed to write a message to the peer.
	wsWriteWait = 10 * time.Second

	// wsPongWait is the time allowed to read the next pong from the peer.
	wsPongWait = 60 * time.Second

	// wsPingPeriod sends pings at this interval. Must be less than wsPongWait.
	wsPingPeriod = (wsPongWait * 9) / 10
)

// StreamOrderStatus connects to the venue's private order channel and
// delivers snapshots for externalID until ctx is cancelled or the connection
// drops. The channel is closed when the stream ends; the monitor falls back
// to polling for the remainder of its window in that case.
func (c *Client) StreamOrderStatus(ctx context.Context, externalID string) (<-chan domain.OrderStatusSnapshot, error) {
	if c.wsURL == "" {
		return nil, fmt.Errorf("apex: websocket endpoint not configured")
	}

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("apex: ws connect: %w", domain.ErrVenueUnavailable)
	}

	sub := wsSubscribe{
		Op:      "subscribe",
		Args:    []string{"order." + externalID},
		APIKey:  c.account.APIKey,
		Expires: time.Now().Add(time.Minute).UnixMilli(),
	}
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return nil, fmt.Errorf("apex: ws subscribe: %w", domain.ErrVenueUnavailable)
	}

	out := make(chan domain.OrderStatusSnapshot, 16)

	// Close the connection when the caller goes away so the read loop
	// unblocks.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	go func() {
		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	go func() {
		defer close(out)
		defer conn.Close()

		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(wsPongWait))
			return nil
		})

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			conn.SetReadDeadline(time.Now().Add(wsPongWait))

			var event wsOrderEvent
			if err := json.Unmarshal(msg, &event); err != nil {
				continue // acks and heartbeats are not order events
			}
			if !strings.HasPrefix(event.Topic, "order.") || event.Data.OrderID != externalID {
				continue
			}

			select {
			case out <- event.Data.toSnapshot():
			default:
				// A slow consumer drops intermediate snapshots; the next
				// update or the final poll carries the current state.
			}
		}
	}()

	return out, nil
}

var _ domain.StatusStreamer = (*Client)(nil)
