// Package dispatcher runs at most one refresh-and-evaluate cycle at a time per event.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/XavierBriggs/fortuna/services/ev-monitor/internal/broker"
	"github.com/XavierBriggs/fortuna/services/ev-monitor/internal/evaluator"
	"github.com/XavierBriggs/fortuna/services/ev-monitor/internal/metrics"
	"github.com/XavierBriggs/fortuna/services/ev-monitor/internal/store"
	"github.com/XavierBriggs/fortuna/services/ev-monitor/internal/teamname"
	"github.com/XavierBriggs/fortuna/services/ev-monitor/pkg/contracts"
	"github.com/XavierBriggs/fortuna/services/ev-monitor/pkg/models"
)

// Scraper submits target book searches
type Scraper interface {
	Submit(searchTerm, eventID, homeTeam, awayTeam string) *broker.Future
}

// Config holds dispatcher timing
type Config struct {
	// ScrapeTimeout bounds the wait for a broker result
	ScrapeTimeout time.Duration
	// RecentRefresh skips alerts for events refreshed more recently than this
	RecentRefresh time.Duration
}

// Dispatcher owns one mailbox and one worker goroutine per active event.
// A mailbox holds only the newest pending job; older ones are superseded.
type Dispatcher struct {
	store       *store.Store
	fetcher     contracts.OddsFetcher
	scraper     Scraper
	broadcaster contracts.Broadcaster
	recorder    contracts.OpportunityRecorder
	cfg         Config
	logger      *zap.Logger
	metrics     *metrics.Metrics
	now         func() time.Time

	mu        sync.Mutex
	ctx       context.Context
	closed    bool
	mailboxes map[string]*mailbox
	wg        sync.WaitGroup
}

type mailbox struct {
	pending   *job
	coalesced int
}

type job struct {
	alert    models.Alert
	rescrape bool
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithRecorder persists positive-EV snapshots after each cycle
func WithRecorder(r contracts.OpportunityRecorder) Option {
	return func(d *Dispatcher) { d.recorder = r }
}

// WithMetrics attaches metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithClock replaces the time source (tests)
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// New creates a dispatcher
func New(s *store.Store, fetcher contracts.OddsFetcher, scraper Scraper, broadcaster contracts.Broadcaster, cfg Config, logger *zap.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:       s,
		fetcher:     fetcher,
		scraper:     scraper,
		broadcaster: broadcaster,
		cfg:         cfg,
		logger:      logger.Named("dispatcher"),
		now:         time.Now,
		ctx:         context.Background(),
		mailboxes:   make(map[string]*mailbox),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run binds workers to ctx and blocks until it is cancelled, then waits for
// in-progress cycles to finish.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.mu.Lock()
	d.ctx = ctx
	d.mu.Unlock()

	<-ctx.Done()

	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.wg.Wait()
	return nil
}

// Enqueue hands an alert to its event's worker, starting one if needed.
// It returns false after shutdown.
func (d *Dispatcher) Enqueue(alert models.Alert) bool {
	return d.enqueue(&job{alert: alert})
}

// Rescrape forces one new target book search for a tracked event.
// It returns false when the event is not tracked.
func (d *Dispatcher) Rescrape(eventID string) bool {
	snap, ok := d.store.Get(eventID)
	if !ok {
		return false
	}
	return d.enqueue(&job{
		alert: models.Alert{
			EventID:    models.FlexString(eventID),
			HomeTeam:   snap.HomeTeam,
			AwayTeam:   snap.AwayTeam,
			LeagueName: snap.League,
			StartTime:  models.FlexString(snap.StartTime),
		},
		rescrape: true,
	})
}

// ActiveWorkers returns the number of events with a running worker
func (d *Dispatcher) ActiveWorkers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.mailboxes)
}

// QueueDepth returns the number of jobs waiting behind a running cycle
func (d *Dispatcher) QueueDepth() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for _, mb := range d.mailboxes {
		if mb.pending != nil {
			n++
		}
	}
	return n
}

// Wait blocks until every worker has exited
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) enqueue(j *job) bool {
	id := string(j.alert.EventID)

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return false
	}

	mb, running := d.mailboxes[id]
	if !running {
		mb = &mailbox{}
		d.mailboxes[id] = mb
	}

	if mb.pending != nil {
		// newest alert wins; a pending rescrape request survives the merge
		j.rescrape = j.rescrape || mb.pending.rescrape
		mb.coalesced++
		d.logger.Debug("alert superseded pending alert",
			zap.String("event_id", id),
			zap.Int("coalesced", mb.coalesced),
		)
	}
	mb.pending = j

	if !running {
		d.wg.Add(1)
		go d.worker(d.ctx, id, mb)
	}
	return true
}

func (d *Dispatcher) worker(ctx context.Context, id string, mb *mailbox) {
	defer d.wg.Done()

	for {
		d.mu.Lock()
		j := mb.pending
		if j == nil {
			delete(d.mailboxes, id)
			d.mu.Unlock()
			return
		}
		mb.pending = nil
		d.mu.Unlock()

		d.safeProcess(ctx, id, j)
	}
}

func (d *Dispatcher) safeProcess(ctx context.Context, id string, j *job) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("dispatch cycle panicked", zap.String("event_id", id), zap.Any("panic", r))
			d.metrics.RecordDispatch("panic")
		}
	}()

	result, err := d.process(ctx, id, j)
	if err != nil {
		d.logger.Warn("dispatch cycle dropped",
			zap.String("event_id", id),
			zap.String("result", result),
			zap.Error(err),
		)
	}
	d.metrics.RecordDispatch(result)
}

// process runs one cycle under the event lock. The store is only written
// after every fetch and computation has succeeded.
func (d *Dispatcher) process(ctx context.Context, id string, j *job) (string, error) {
	unlock := d.store.Lock(id)
	defer unlock()

	if d.store.IsDismissed(id) {
		return "dismissed", nil
	}

	existing, exists := d.store.Get(id)
	if exists && !j.rescrape && d.now().Sub(existing.LastRefreshTime) < d.cfg.RecentRefresh {
		d.logger.Debug("event refreshed recently, skipping", zap.String("event_id", id))
		return "skipped_recent", nil
	}

	ref, err := d.fetcher.Fetch(ctx, id)
	if err != nil {
		return "fetch_failed", fmt.Errorf("fetch reference odds: %w", err)
	}
	evaluator.Normalize(ref)

	var target *models.ParsedGame
	if !exists || j.rescrape {
		target, err = d.scrape(ctx, id, j.alert)
		if err != nil {
			if errors.Is(err, models.ErrDuplicateInFlight) {
				return "duplicate", nil
			}
			return "scrape_failed", err
		}
		if target == nil {
			return "not_found", nil
		}
	} else {
		target = existing.TargetOdds
	}

	markets := evaluator.Evaluate(ref, target)
	positive := evaluator.HasPositiveEV(markets)
	now := d.now()

	result := "updated"
	if !exists {
		result = "created"
		snap := &models.EventSnapshot{
			EventID:            id,
			HomeTeam:           j.alert.HomeTeam,
			AwayTeam:           j.alert.AwayTeam,
			HomeTeamNormalized: teamname.Normalize(j.alert.HomeTeam),
			AwayTeamNormalized: teamname.Normalize(j.alert.AwayTeam),
			League:             j.alert.LeagueName,
			StartTime:          string(j.alert.StartTime),
			ReferenceOdds:      ref,
			TargetOdds:         target,
			Markets:            markets,
			LastAlert:          j.alert.Move(),
			AlertArrivalTime:   now,
			LastRefreshTime:    now,
			HasPositiveEV:      positive,
		}
		if evicted := d.store.Add(id, snap); evicted != "" {
			d.logger.Info("store at capacity, evicted oldest event", zap.String("event_id", evicted))
			d.broadcast(models.RemovedMessage(evicted, "evicted"))
		}
	} else {
		ok := d.store.Update(id, func(s *models.EventSnapshot) {
			s.ReferenceOdds = ref
			s.TargetOdds = target
			s.Markets = markets
			s.HasPositiveEV = positive
			s.LastRefreshTime = now
			if !j.rescrape {
				s.LastAlert = j.alert.Move()
			}
		})
		if !ok {
			return "evicted", nil
		}
	}
	d.metrics.SetActiveEvents(d.store.Len())

	snap, ok := d.store.Get(id)
	if !ok {
		return result, nil
	}
	d.broadcast(models.SnapshotMessage(snap))

	d.logger.Info("event evaluated",
		zap.String("event_id", id),
		zap.String("result", result),
		zap.Int("markets", len(markets)),
		zap.Bool("positive_ev", positive),
	)

	if positive && d.recorder != nil {
		if err := d.recorder.RecordOpportunities(ctx, snap); err != nil {
			d.logger.Warn("failed to record opportunities", zap.String("event_id", id), zap.Error(err))
		}
	}

	return result, nil
}

// scrape asks the broker for the target game; a nil game means no match
func (d *Dispatcher) scrape(ctx context.Context, id string, alert models.Alert) (*models.ParsedGame, error) {
	term := teamname.SearchTerm(alert.HomeTeam, alert.AwayTeam)
	if term == "" {
		return nil, fmt.Errorf("no search term for %q vs %q: %w", alert.HomeTeam, alert.AwayTeam, models.ErrMalformedUpstreamData)
	}

	wctx, cancel := context.WithTimeout(ctx, d.cfg.ScrapeTimeout)
	defer cancel()

	outcome, err := d.scraper.Submit(term, id, alert.HomeTeam, alert.AwayTeam).Wait(wctx)
	if err != nil {
		return nil, fmt.Errorf("scrape %q: %w", term, err)
	}
	if !outcome.Found {
		d.logger.Info("no matching game on target book",
			zap.String("event_id", id),
			zap.String("search_term", term),
		)
		return nil, nil
	}
	return outcome.Game, nil
}

func (d *Dispatcher) broadcast(msg models.ServerMessage) {
	if d.broadcaster != nil {
		d.broadcaster.Broadcast(msg)
	}
}
