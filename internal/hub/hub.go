package hub

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/XavierBriggs/fortuna/services/ev-monitor/internal/metrics"
	"github.com/XavierBriggs/fortuna/services/ev-monitor/pkg/contracts"
	"github.com/XavierBriggs/fortuna/services/ev-monitor/pkg/models"
)

const broadcastBufferSize = 1000

// Hub maintains the set of active subscribers and broadcasts messages to them.
// The subscriber set is owned by the Run goroutine.
type Hub struct {
	// Registered subscribers, touched only by Run
	subscribers map[contracts.Subscriber]bool

	// Inbound messages from workers
	broadcast chan models.ServerMessage

	// Register requests from subscribers
	register chan contracts.Subscriber

	// Unregister requests from subscribers
	unregister chan contracts.Subscriber

	// Closed when Run returns
	done     chan struct{}
	doneOnce sync.Once

	logger  *zap.Logger
	metrics *metrics.Metrics

	// Metrics
	activeSubscribers atomic.Int64
	totalConnections  atomic.Int64
	totalMessages     atomic.Int64
	droppedMessages   atomic.Int64
}

// NewHub creates a new Hub instance
func NewHub(logger *zap.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		subscribers: make(map[contracts.Subscriber]bool),
		broadcast:   make(chan models.ServerMessage, broadcastBufferSize),
		register:    make(chan contracts.Subscriber),
		unregister:  make(chan contracts.Subscriber),
		done:        make(chan struct{}),
		logger:      logger.Named("hub"),
		metrics:     m,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run(ctx context.Context) error {
	h.logger.Info("hub started")
	defer h.doneOnce.Do(func() { close(h.done) })

	// Start metrics reporter
	go h.reportMetrics(ctx)

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return nil

		case s := <-h.register:
			h.registerSubscriber(s)

		case s := <-h.unregister:
			h.unregisterSubscriber(s)

		case msg := <-h.broadcast:
			h.broadcastMessage(msg)
		}
	}
}

// Register adds a subscriber to the hub
func (h *Hub) Register(s contracts.Subscriber) {
	select {
	case h.register <- s:
	case <-h.done:
		s.Close()
	}
}

// Unregister removes a subscriber from the hub
func (h *Hub) Unregister(s contracts.Subscriber) {
	select {
	case h.unregister <- s:
	case <-h.done:
	}
}

// Broadcast queues a message for every matching subscriber.
// Snapshots never block and are dropped when the buffer is full, since the
// periodic rebroadcast resends them. Removals are never resent, so they wait
// for buffer space until the hub stops. Both share one queue to keep order.
func (h *Hub) Broadcast(msg models.ServerMessage) {
	if msg.Type == models.MessageTypeRemoved {
		select {
		case h.broadcast <- msg:
		case <-h.done:
		}
		return
	}

	select {
	case h.broadcast <- msg:
	default:
		h.droppedMessages.Add(1)
		h.logger.Warn("broadcast buffer full, dropping message",
			zap.String("type", msg.Type),
			zap.String("event_id", msg.EventID),
		)
	}
}

// registerSubscriber adds a subscriber to the active set
func (h *Hub) registerSubscriber(s contracts.Subscriber) {
	if h.subscribers[s] {
		return
	}
	h.subscribers[s] = true
	h.totalConnections.Add(1)
	h.setActive()

	h.logger.Info("subscriber connected", zap.String("subscriber_id", s.ID()), zap.Int("total", len(h.subscribers)))
}

// unregisterSubscriber removes a subscriber from the active set
func (h *Hub) unregisterSubscriber(s contracts.Subscriber) {
	if _, ok := h.subscribers[s]; ok {
		delete(h.subscribers, s)
		s.Close()
		h.setActive()
		h.logger.Info("subscriber disconnected", zap.String("subscriber_id", s.ID()), zap.Int("total", len(h.subscribers)))
	}
}

// broadcastMessage sends a message to every subscriber that wants it
func (h *Hub) broadcastMessage(msg models.ServerMessage) {
	sent := 0
	var slow []contracts.Subscriber

	for s := range h.subscribers {
		if !s.Matches(msg) {
			continue
		}

		// Try to send (non-blocking)
		if s.TrySend(msg) {
			sent++
		} else {
			slow = append(slow, s)
		}
	}

	// Subscriber buffer full - too slow, disconnect them
	for _, s := range slow {
		h.logger.Warn("subscriber buffer full, disconnecting", zap.String("subscriber_id", s.ID()))
		h.unregisterSubscriber(s)
	}

	if sent > 0 {
		h.totalMessages.Add(1)
	}
	h.metrics.RecordBroadcast(msg.Type)
}

// GetMetrics returns hub metrics
func (h *Hub) GetMetrics() map[string]interface{} {
	return map[string]interface{}{
		"active_subscribers": h.activeSubscribers.Load(),
		"total_connections":  h.totalConnections.Load(),
		"total_messages":     h.totalMessages.Load(),
		"dropped_messages":   h.droppedMessages.Load(),
		"broadcast_capacity": cap(h.broadcast),
		"broadcast_usage":    len(h.broadcast),
	}
}

// SubscriberCount returns the number of active subscribers
func (h *Hub) SubscriberCount() int {
	return int(h.activeSubscribers.Load())
}

func (h *Hub) setActive() {
	h.activeSubscribers.Store(int64(len(h.subscribers)))
	h.metrics.SetSubscribers(len(h.subscribers))
}

// shutdown closes all subscribers
func (h *Hub) shutdown() {
	h.logger.Info("shutting down hub", zap.Int("active_subscribers", len(h.subscribers)))

	for s := range h.subscribers {
		s.Close()
		delete(h.subscribers, s)
	}
	h.setActive()
}

// reportMetrics periodically reports hub metrics
func (h *Hub) reportMetrics(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.logger.Info("hub metrics",
				zap.Int64("subscribers", h.activeSubscribers.Load()),
				zap.Int64("total_connections", h.totalConnections.Load()),
				zap.Int64("messages", h.totalMessages.Load()),
				zap.Int64("dropped", h.droppedMessages.Load()),
			)
		}
	}
}
