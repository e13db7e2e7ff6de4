package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/XavierBriggs/fortuna/services/ev-monitor/pkg/models"
)

const (
	// SnapshotKey holds the latest dump of every tracked event
	SnapshotKey = "ev:store:snapshot"

	DefaultTTL = 10 * time.Minute
)

// Setter is the Redis command the dumper needs
type Setter interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Source provides the snapshots to dump
type Source interface {
	GetAll() map[string]*models.EventSnapshot
}

// Dump is the document written to Redis
type Dump struct {
	DumpedAt time.Time                        `json:"dumped_at"`
	Count    int                              `json:"count"`
	Events   map[string]*models.EventSnapshot `json:"events"`
}

// Dumper periodically writes the store to Redis for crash diagnostics.
// Nothing reads the dump back at startup.
type Dumper struct {
	client   Setter
	source   Source
	interval time.Duration
	ttl      time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewDumper creates a new store dumper
func NewDumper(client Setter, source Source, interval, ttl time.Duration, logger *zap.Logger) *Dumper {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Dumper{
		client:   client,
		source:   source,
		interval: interval,
		ttl:      ttl,
		logger:   logger.Named("dumper"),
		now:      time.Now,
	}
}

// Run dumps on every interval and once more on shutdown
func (d *Dumper) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Final dump gets its own deadline since ctx is already done
			fctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := d.DumpOnce(fctx); err != nil {
				d.logger.Warn("final dump failed", zap.Error(err))
			}
			cancel()
			return nil
		case <-ticker.C:
			if err := d.DumpOnce(ctx); err != nil {
				d.logger.Warn("dump failed", zap.Error(err))
			}
		}
	}
}

// DumpOnce writes the current snapshots
func (d *Dumper) DumpOnce(ctx context.Context) error {
	events := d.source.GetAll()
	data, err := json.Marshal(Dump{
		DumpedAt: d.now(),
		Count:    len(events),
		Events:   events,
	})
	if err != nil {
		return fmt.Errorf("marshaling store: %w", err)
	}

	if err := d.client.Set(ctx, SnapshotKey, data, d.ttl).Err(); err != nil {
		return fmt.Errorf("writing store dump: %w", err)
	}
	return nil
}
