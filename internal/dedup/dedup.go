package dedup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL is how long an accepted alert suppresses repeats for its event
const DefaultTTL = 120 * time.Second

// Checker remembers recently accepted events
type Checker interface {
	// TryMark records the event as accepted now. It returns false, and
	// leaves the existing mark alone, if the event was marked within the TTL.
	TryMark(ctx context.Context, eventID string) (bool, error)
	// Clear forgets the event so the next alert for it is accepted
	Clear(ctx context.Context, eventID string) error
}

// Deduplicator deduplicates alerts using Redis key expiry
type Deduplicator struct {
	client *redis.Client
	ttl    time.Duration
}

// NewDeduplicator creates a new deduplicator
func NewDeduplicator(client *redis.Client, ttl time.Duration) *Deduplicator {
	return &Deduplicator{
		client: client,
		ttl:    ttl,
	}
}

// TryMark sets the event's dedup key with SETNX so concurrent alerts
// for one event cannot both win
func (d *Deduplicator) TryMark(ctx context.Context, eventID string) (bool, error) {
	ok, err := d.client.SetNX(ctx, dedupKey(eventID), "1", d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to set dedup key: %w", err)
	}
	return ok, nil
}

// Clear removes a dedup entry
func (d *Deduplicator) Clear(ctx context.Context, eventID string) error {
	if err := d.client.Del(ctx, dedupKey(eventID)).Err(); err != nil {
		return fmt.Errorf("failed to clear dedup key: %w", err)
	}
	return nil
}

// Key format: alert:dedup:{event_id}
func dedupKey(eventID string) string {
	return fmt.Sprintf("alert:dedup:%s", eventID)
}

// Memory is the in-process Checker used when Redis is not configured
type Memory struct {
	mu     sync.Mutex
	ttl    time.Duration
	now    func() time.Time
	marked map[string]time.Time
}

// NewMemory creates an in-process deduplicator. now may be nil.
func NewMemory(ttl time.Duration, now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{
		ttl:    ttl,
		now:    now,
		marked: make(map[string]time.Time),
	}
}

// TryMark checks and marks eventID under one lock, pruning expired entries
func (m *Memory) TryMark(ctx context.Context, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for id, at := range m.marked {
		if now.Sub(at) >= m.ttl {
			delete(m.marked, id)
		}
	}

	if _, ok := m.marked[eventID]; ok {
		return false, nil
	}
	m.marked[eventID] = now
	return true, nil
}

// Clear forgets eventID
func (m *Memory) Clear(ctx context.Context, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.marked, eventID)
	return nil
}

// Len returns the number of tracked events
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.marked)
}
