package publisher

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/XavierBriggs/fortuna/services/ev-monitor/pkg/contracts"
	"github.com/XavierBriggs/fortuna/services/ev-monitor/pkg/models"
)

const (
	relayBufferSize = 512
	publishTimeout  = 5 * time.Second
)

// Relay is a hub subscriber that forwards every message to a SnapshotPublisher.
// A full buffer drops the message instead of failing TrySend, so the relay is
// never disconnected by the hub.
type Relay struct {
	id        string
	publisher contracts.SnapshotPublisher
	logger    *zap.Logger

	queue     chan models.ServerMessage
	closed    chan struct{}
	closeOnce sync.Once

	published atomic.Int64
	dropped   atomic.Int64
	failed    atomic.Int64
}

// NewRelay creates a relay named name (used in logs and as subscriber ID)
func NewRelay(name string, p contracts.SnapshotPublisher, logger *zap.Logger) *Relay {
	return &Relay{
		id:        "relay:" + name,
		publisher: p,
		logger:    logger.Named("relay").With(zap.String("sink", name)),
		queue:     make(chan models.ServerMessage, relayBufferSize),
		closed:    make(chan struct{}),
	}
}

// ID returns the subscriber identifier
func (r *Relay) ID() string { return r.id }

// Matches accepts every message
func (r *Relay) Matches(models.ServerMessage) bool { return true }

// TrySend queues a message for publishing
func (r *Relay) TrySend(msg models.ServerMessage) bool {
	select {
	case <-r.closed:
		return false
	default:
	}

	select {
	case r.queue <- msg:
	default:
		r.dropped.Add(1)
	}
	return true
}

// Close stops the relay after the queued messages are published
func (r *Relay) Close() {
	r.closeOnce.Do(func() { close(r.closed) })
}

// Run publishes queued messages until ctx ends or the relay is closed
func (r *Relay) Run(ctx context.Context) error {
	defer func() {
		if err := r.publisher.Close(); err != nil {
			r.logger.Warn("failed to close publisher", zap.Error(err))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.closed:
			r.drain()
			return nil
		case msg := <-r.queue:
			r.publish(ctx, msg)
		}
	}
}

func (r *Relay) drain() {
	for {
		select {
		case msg := <-r.queue:
			r.publish(context.Background(), msg)
		default:
			return
		}
	}
}

func (r *Relay) publish(ctx context.Context, msg models.ServerMessage) {
	pctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := r.publisher.Publish(pctx, msg); err != nil {
		r.failed.Add(1)
		r.logger.Warn("publish failed",
			zap.String("type", msg.Type),
			zap.String("event_id", msg.EventID),
			zap.Error(err),
		)
		return
	}
	r.published.Add(1)
}

// Stats returns published, dropped and failed counts
func (r *Relay) Stats() map[string]int64 {
	return map[string]int64{
		"published": r.published.Load(),
		"dropped":   r.dropped.Load(),
		"failed":    r.failed.Load(),
	}
}
