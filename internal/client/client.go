package client

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/XavierBriggs/fortuna/services/ev-monitor/pkg/contracts"
	"github.com/XavierBriggs/fortuna/services/ev-monitor/pkg/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10 // must be less than pongWait
	maxMessageSize = 512

	// Snapshots queued per subscriber before the hub considers it too slow
	sendBufferSize = 256
)

// Hub is the part of the broadcaster a client reports back to
type Hub interface {
	Unregister(s contracts.Subscriber)
}

// Client is one websocket subscriber. The hub feeds it through TrySend;
// WritePump drains the queue onto the socket and ReadPump handles
// subscribe, unsubscribe and heartbeat requests.
type Client struct {
	id     string
	conn   *websocket.Conn
	hub    Hub
	logger *zap.Logger

	send      chan models.ServerMessage
	done      chan struct{}
	closeOnce sync.Once

	filterMu sync.RWMutex
	filter   models.SubscriptionFilter

	connectedAt time.Time
	sent        atomic.Int64
	received    atomic.Int64
	lastActive  atomic.Int64 // unix nanos
}

// NewClient wraps an upgraded connection
func NewClient(id string, conn *websocket.Conn, hub Hub, logger *zap.Logger) *Client {
	now := time.Now()
	c := &Client{
		id:          id,
		conn:        conn,
		hub:         hub,
		logger:      logger.With(zap.String("subscriber_id", id)),
		send:        make(chan models.ServerMessage, sendBufferSize),
		done:        make(chan struct{}),
		connectedAt: now,
	}
	c.lastActive.Store(now.UnixNano())
	return c
}

// ID returns the subscriber id
func (c *Client) ID() string {
	return c.id
}

// Matches applies the subscriber's event filter
func (c *Client) Matches(msg models.ServerMessage) bool {
	return MatchesFilter(c.GetFilter(), msg)
}

// MatchesFilter reports whether msg passes filter. An empty filter accepts
// everything, and messages not tied to an event always pass.
func MatchesFilter(filter models.SubscriptionFilter, msg models.ServerMessage) bool {
	if len(filter.Events) == 0 || msg.EventID == "" {
		return true
	}
	return slices.Contains(filter.Events, msg.EventID)
}

// TrySend queues msg without blocking. It returns false when the queue is
// full or the client has been closed.
func (c *Client) TrySend(msg models.ServerMessage) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Close stops delivery. WritePump sends a close frame and drops the socket.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// SetFilter replaces the subscription filter
func (c *Client) SetFilter(filter models.SubscriptionFilter) {
	c.filterMu.Lock()
	c.filter = filter
	c.filterMu.Unlock()
}

// GetFilter returns the current subscription filter
func (c *Client) GetFilter() models.SubscriptionFilter {
	c.filterMu.RLock()
	defer c.filterMu.RUnlock()
	return c.filter
}

// GetStats returns connection statistics
func (c *Client) GetStats() models.ConnectionStats {
	queued := len(c.send)
	return models.ConnectionStats{
		ClientID:          c.id,
		ConnectedAt:       c.connectedAt,
		MessagesSent:      c.sent.Load(),
		MessagesReceived:  c.received.Load(),
		LastMessageAt:     time.Unix(0, c.lastActive.Load()),
		BufferSize:        sendBufferSize,
		BufferUtilization: float64(queued) / float64(sendBufferSize) * 100.0,
	}
}

// ReadPump handles inbound requests until the peer goes away, then
// unregisters the client from the hub.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	// unblock ReadJSON on shutdown
	stop := context.AfterFunc(ctx, func() { c.conn.Close() })
	defer stop()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg models.ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("unexpected close", zap.Error(err))
			}
			return
		}

		c.received.Add(1)
		c.lastActive.Store(time.Now().UnixNano())
		c.handle(msg)
	}
}

// WritePump writes queued messages and keepalive pings
func (c *Client) WritePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			c.writeClose()
			return

		case <-c.done:
			c.writeClose()
			return

		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.Warn("write failed", zap.Error(err))
				return
			}
			c.sent.Add(1)
			c.lastActive.Store(time.Now().UnixNano())

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) writeClose() {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (c *Client) handle(msg models.ClientMessage) {
	switch msg.Type {
	case models.MessageTypeSubscribe:
		events, err := eventsFromPayload(msg.Payload)
		if err != nil {
			c.reply(models.MessageTypeError, models.ErrorMessage{Code: "invalid_filter", Message: err.Error()})
			return
		}
		c.SetFilter(models.SubscriptionFilter{Events: events})
		c.logger.Info("subscribed", zap.Strings("events", events))

	case models.MessageTypeUnsubscribe:
		c.SetFilter(models.SubscriptionFilter{})
		c.logger.Info("unsubscribed")

	case models.MessageTypeHeartbeat:
		c.reply(models.MessageTypeHeartbeat, c.GetStats())

	default:
		c.reply(models.MessageTypeError, models.ErrorMessage{
			Code:    "unknown_message_type",
			Message: fmt.Sprintf("unknown message type: %s", msg.Type),
		})
	}
}

func (c *Client) reply(msgType string, payload interface{}) {
	c.TrySend(models.ServerMessage{
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	})
}

// eventsFromPayload reads {"events": [...]}; ids may be strings or numbers
func eventsFromPayload(payload map[string]interface{}) ([]string, error) {
	raw, ok := payload["events"]
	if !ok || raw == nil {
		return nil, nil
	}
	list, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("events must be a list")
	}

	events := make([]string, 0, len(list))
	for _, v := range list {
		switch id := v.(type) {
		case string:
			events = append(events, id)
		case float64:
			events = append(events, fmt.Sprintf("%.0f", id))
		default:
			return nil, fmt.Errorf("invalid event id %v", v)
		}
	}
	return events, nil
}
