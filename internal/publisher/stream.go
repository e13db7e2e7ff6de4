package publisher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/XavierBriggs/fortuna/services/ev-monitor/pkg/models"
)

// DefaultStream receives every snapshot and removal message
const DefaultStream = "ev.snapshots"

// StreamPublisher publishes subscriber messages to Redis Streams
type StreamPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewStreamPublisher creates a new stream publisher.
// The stream is trimmed to roughly maxLen entries; 0 disables trimming.
func NewStreamPublisher(client *redis.Client, stream string, maxLen int64) *StreamPublisher {
	if stream == "" {
		stream = DefaultStream
	}
	return &StreamPublisher{
		client: client,
		stream: stream,
		maxLen: maxLen,
	}
}

// Publish appends one message to the stream
func (p *StreamPublisher) Publish(ctx context.Context, msg models.ServerMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"type":     msg.Type,
			"event_id": msg.EventID,
			"message":  string(payload),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	if _, err := p.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish to stream %s: %w", p.stream, err)
	}

	return nil
}

// Close is a no-op; the Redis client is owned by the caller
func (p *StreamPublisher) Close() error {
	return nil
}
