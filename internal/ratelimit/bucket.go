package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenBucket implements a fixed-window token bucket in Redis, shared by
// every ingress replica pointing at the same instance
type TokenBucket struct {
	client       *redis.Client
	key          string
	maxTokens    int           // Maximum tokens per window
	refillPeriod time.Duration // Window length
}

// NewTokenBucket creates a new token bucket rate limiter
func NewTokenBucket(client *redis.Client, maxTokens int) *TokenBucket {
	return &TokenBucket{
		client:       client,
		key:          "ev:ratelimit:alerts",
		maxTokens:    maxTokens,
		refillPeriod: 1 * time.Minute,
	}
}

// Allow returns true if an alert can be accepted (token available)
func (tb *TokenBucket) Allow(ctx context.Context) (bool, error) {
	// The bucket is created full with a TTL; when the key expires the next
	// call starts a fresh window. SETNX and DECR run in one transaction so
	// the key cannot expire between them.
	var decr *redis.IntCmd
	_, err := tb.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, tb.key, tb.maxTokens, tb.refillPeriod)
		decr = pipe.Decr(ctx, tb.key)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to consume token: %w", err)
	}

	// Negative means the window is exhausted; the key still expires on schedule
	return decr.Val() >= 0, nil
}

// GetTokens returns the current token count (for monitoring)
func (tb *TokenBucket) GetTokens(ctx context.Context) (int, error) {
	tokens, err := tb.client.Get(ctx, tb.key).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return tb.maxTokens, nil
		}
		return 0, fmt.Errorf("failed to get tokens: %w", err)
	}
	if tokens < 0 {
		tokens = 0
	}
	return tokens, nil
}

// Reset refills the bucket by dropping the current window
func (tb *TokenBucket) Reset(ctx context.Context) error {
	return tb.client.Del(ctx, tb.key).Err()
}
