package refresher

import (
	"context"
	"reflect"
	"time"

	"go.uber.org/zap"

	"github.com/XavierBriggs/fortuna/services/ev-monitor/internal/evaluator"
	"github.com/XavierBriggs/fortuna/services/ev-monitor/internal/metrics"
	"github.com/XavierBriggs/fortuna/services/ev-monitor/internal/store"
	"github.com/XavierBriggs/fortuna/services/ev-monitor/pkg/contracts"
	"github.com/XavierBriggs/fortuna/services/ev-monitor/pkg/models"
)

// Removal reasons sent to subscribers
const (
	ReasonDismissed = "dismissed"
	ReasonExpired   = "expired"
	ReasonMaxAge    = "max_age"
)

// Rescraper forces a new target book search for a tracked event
type Rescraper interface {
	Rescrape(eventID string) bool
}

// Config holds refresh timing
type Config struct {
	Interval time.Duration
	// ExpiryNoEV applies when every market is at or below zero EV
	ExpiryNoEV time.Duration
	// ExpiryPositiveEV applies when any market shows positive EV
	ExpiryPositiveEV time.Duration
	MaxAge           time.Duration
	// RescrapeAfter is the age at which a positive-EV event is scraped again, once
	RescrapeAfter    time.Duration
	RebroadcastEvery int
	// DismissedRetention is how long a dismissal blocks new alerts
	DismissedRetention time.Duration
}

// Refresher re-prices every tracked event on a timer and expires stale ones
type Refresher struct {
	store       *store.Store
	fetcher     contracts.OddsFetcher
	broadcaster contracts.Broadcaster
	rescraper   Rescraper
	cfg         Config
	logger      *zap.Logger
	metrics     *metrics.Metrics
	now         func() time.Time

	cycles int
}

// Option configures a Refresher
type Option func(*Refresher)

// WithMetrics attaches metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Refresher) { r.metrics = m }
}

// WithClock replaces the time source (tests)
func WithClock(now func() time.Time) Option {
	return func(r *Refresher) { r.now = now }
}

// New creates a refresher. rescraper may be nil.
func New(s *store.Store, fetcher contracts.OddsFetcher, broadcaster contracts.Broadcaster, rescraper Rescraper, cfg Config, logger *zap.Logger, opts ...Option) *Refresher {
	r := &Refresher{
		store:       s,
		fetcher:     fetcher,
		broadcaster: broadcaster,
		rescraper:   rescraper,
		cfg:         cfg,
		logger:      logger.Named("refresher"),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run starts the refresh loop and blocks until ctx is cancelled
func (r *Refresher) Run(ctx context.Context) error {
	r.logger.Info("starting refresher", zap.Duration("interval", r.cfg.Interval))

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("stopping refresher")
			return nil
		case <-ticker.C:
			r.Cycle(ctx)
		}
	}
}

// Cycle refreshes every tracked event once
func (r *Refresher) Cycle(ctx context.Context) {
	start := time.Now()
	r.cycles++

	for id := range r.store.GetAll() {
		if ctx.Err() != nil {
			return
		}
		r.refreshSafe(ctx, id)
	}

	if r.cfg.RebroadcastEvery > 0 && r.cycles%r.cfg.RebroadcastEvery == 0 {
		r.rebroadcast()
	}

	if r.cfg.DismissedRetention > 0 {
		r.store.PruneDismissed(r.cfg.DismissedRetention, r.now())
	}

	r.metrics.SetActiveEvents(r.store.Len())
	r.metrics.ObserveRefreshCycle(time.Since(start).Seconds())
}

// refreshSafe isolates one event so a bad snapshot cannot stop the loop
func (r *Refresher) refreshSafe(ctx context.Context, id string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("refresh panicked, skipping event", zap.String("event_id", id), zap.Any("panic", rec))
		}
	}()
	r.refresh(ctx, id)
}

func (r *Refresher) refresh(ctx context.Context, id string) {
	unlock := r.store.Lock(id)
	defer unlock()

	snap, ok := r.store.Get(id)
	if !ok {
		return
	}
	if snap == nil || snap.EventID == "" {
		r.logger.Warn("malformed snapshot, skipping", zap.String("event_id", id))
		return
	}

	if snap.Dismissed || r.store.IsDismissed(id) {
		r.remove(id, ReasonDismissed)
		return
	}

	now := r.now()
	age := now.Sub(snap.AlertArrivalTime)
	positive := !snap.AllNonPositive()

	if !positive && age > r.cfg.ExpiryNoEV {
		r.expire(id, ReasonExpired)
		return
	}
	if positive {
		if age > r.cfg.RescrapeAfter && !snap.Rescraped {
			r.store.Update(id, func(s *models.EventSnapshot) { s.Rescraped = true })
			if r.rescraper != nil && r.rescraper.Rescrape(id) {
				r.logger.Info("positive EV confirmed by rescrape request", zap.String("event_id", id))
			}
		} else if age > r.cfg.ExpiryPositiveEV {
			r.expire(id, ReasonExpired)
			return
		}
	}
	if age > r.cfg.MaxAge {
		r.expire(id, ReasonMaxAge)
		return
	}

	if snap.TargetOdds == nil {
		r.logger.Warn("snapshot has no target odds, skipping re-evaluation", zap.String("event_id", id))
		return
	}

	ref, err := r.fetcher.Fetch(ctx, id)
	if err != nil {
		r.logger.Warn("failed to refresh reference odds", zap.String("event_id", id), zap.Error(err))
		return
	}
	evaluator.Normalize(ref)

	markets := evaluator.Evaluate(ref, snap.TargetOdds)
	changed := !models.MarketsEqual(snap.Markets, markets) || !reflect.DeepEqual(snap.ReferenceOdds, ref)

	r.store.Update(id, func(s *models.EventSnapshot) {
		s.ReferenceOdds = ref
		s.Markets = markets
		s.HasPositiveEV = evaluator.HasPositiveEV(markets)
		s.LastRefreshTime = now
	})

	if !changed {
		return
	}
	if updated, ok := r.store.Get(id); ok {
		r.broadcast(models.SnapshotMessage(updated))
	}
}

// expire removes an aged-out event and lets future alerts track it again
func (r *Refresher) expire(id, reason string) {
	r.remove(id, reason)
	r.store.ClearDismissal(id)
}

func (r *Refresher) remove(id, reason string) {
	if r.store.Remove(id) {
		r.logger.Info("event removed", zap.String("event_id", id), zap.String("reason", reason))
		r.broadcast(models.RemovedMessage(id, reason))
	}
}

func (r *Refresher) rebroadcast() {
	all := r.store.GetAll()
	for _, snap := range all {
		r.broadcast(models.SnapshotMessage(snap))
	}
	r.logger.Debug("rebroadcast all snapshots", zap.Int("events", len(all)))
}

func (r *Refresher) broadcast(msg models.ServerMessage) {
	if r.broadcaster != nil {
		r.broadcaster.Broadcast(msg)
	}
}
