package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter decides whether another alert may be accepted right now
type Limiter interface {
	Allow(ctx context.Context) (bool, error)
}

// Memory is an in-process limiter used when Redis is not configured.
// The bucket holds perMinute tokens and refills continuously.
type Memory struct {
	limiter *rate.Limiter
}

// NewMemory creates an in-process limiter allowing perMinute alerts per minute
func NewMemory(perMinute int) *Memory {
	if perMinute <= 0 {
		perMinute = 1
	}
	return &Memory{
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute),
	}
}

// Allow consumes a token if one is available
func (m *Memory) Allow(ctx context.Context) (bool, error) {
	return m.limiter.Allow(), nil
}

// Tokens returns the number of tokens currently available (for status)
func (m *Memory) Tokens() float64 {
	return m.limiter.Tokens()
}
