// Package broker serializes every request to the target book through one
// authenticated session, one queue and one worker.
package broker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/XavierBriggs/fortuna/services/ev-monitor/internal/metrics"
	"github.com/XavierBriggs/fortuna/services/ev-monitor/internal/retry"
	"github.com/XavierBriggs/fortuna/services/ev-monitor/pkg/contracts"
	"github.com/XavierBriggs/fortuna/services/ev-monitor/pkg/models"
)

// Status codes the target book answers with when it throttles us
var rateLimitStatuses = map[int]bool{
	http.StatusUnauthorized:       true,
	http.StatusForbidden:          true,
	http.StatusTooManyRequests:    true,
	http.StatusServiceUnavailable: true,
}

// Body phrases that mean the same thing behind a 200
var rateLimitPhrases = [][]byte{
	[]byte("too many requests"),
	[]byte("rate limit"),
	[]byte("temporarily blocked"),
	[]byte("try again later"),
	[]byte("service unavailable"),
	[]byte("blocked"),
	[]byte("suspended"),
}

// Config holds broker tuning
type Config struct {
	PacingMin      time.Duration
	PacingMax      time.Duration
	SessionRefresh time.Duration
	Cooldown       time.Duration
	MaxAttempts    int
	RetryBackoff   time.Duration
	AlertDisplay   time.Duration
}

// Broker is the sole path to the target book
type Broker struct {
	upstream contracts.Upstream
	parser   contracts.GameParser
	breaker  *CircuitBreaker
	retry    *retry.Policy
	cfg      Config
	logger   *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	mu          sync.Mutex
	pending     []*request
	inFlight    map[string]struct{}
	running     bool
	lastRequest time.Time
	systemAlert *models.SystemAlert
	hooks       []func(models.SystemAlert)

	wake chan struct{}

	// sessionMu guards the session; only the worker takes it
	sessionMu sync.Mutex
	session   *models.Session
}

type request struct {
	searchTerm string
	eventID    string
	homeTeam   string
	awayTeam   string
	future     *Future
	queuedAt   time.Time
}

// Option configures a Broker
type Option func(*Broker)

// WithClock replaces the time source (tests)
func WithClock(now func() time.Time) Option {
	return func(b *Broker) { b.now = now }
}

// WithMetrics attaches metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Broker) { b.metrics = m }
}

// New creates a broker. Call Run to start the worker.
func New(upstream contracts.Upstream, parser contracts.GameParser, cfg Config, logger *zap.Logger, opts ...Option) *Broker {
	b := &Broker{
		upstream: upstream,
		parser:   parser,
		cfg:      cfg,
		logger:   logger.Named("broker"),
		now:      time.Now,
		inFlight: make(map[string]struct{}),
		wake:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(b)
	}

	b.breaker = NewCircuitBreaker(cfg.Cooldown, b.now)
	b.retry = retry.NewPolicy(cfg.MaxAttempts, cfg.RetryBackoff,
		retry.WithRetryable(func(err error) bool {
			return errors.Is(err, models.ErrTransientNetwork) || errors.Is(err, models.ErrTimeout)
		}),
	)
	return b
}

// OnRateLimited registers a hook run (in its own goroutine) whenever rate limiting is detected
func (b *Broker) OnRateLimited(fn func(models.SystemAlert)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hooks = append(b.hooks, fn)
}

// Submit queues a search for eventID. The returned future fails immediately
// with models.ErrRateLimited while the breaker is open and with
// models.ErrDuplicateInFlight while eventID already has an outstanding request.
func (b *Broker) Submit(searchTerm, eventID, homeTeam, awayTeam string) *Future {
	if allowed, reset := b.breaker.Allow(); !allowed {
		b.metrics.RecordScrape("rejected_rate_limited")
		return resolvedFuture(models.SearchOutcome{}, fmt.Errorf("submit %s: %w", eventID, models.ErrRateLimited))
	} else if reset {
		b.cooldownComplete()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, busy := b.inFlight[eventID]; busy {
		b.logger.Info("duplicate scrape request ignored", zap.String("event_id", eventID))
		b.metrics.RecordScrape("rejected_duplicate")
		return resolvedFuture(models.SearchOutcome{}, fmt.Errorf("submit %s: %w", eventID, models.ErrDuplicateInFlight))
	}

	req := &request{
		searchTerm: searchTerm,
		eventID:    eventID,
		homeTeam:   homeTeam,
		awayTeam:   awayTeam,
		future:     newFuture(),
		queuedAt:   b.now(),
	}
	b.inFlight[eventID] = struct{}{}
	b.pending = append(b.pending, req)
	b.metrics.SetQueueDepth(len(b.pending))

	b.logger.Info("scrape request queued",
		zap.String("event_id", eventID),
		zap.String("search_term", searchTerm),
		zap.Int("queue_size", len(b.pending)),
	)

	select {
	case b.wake <- struct{}{}:
	default:
	}

	return req.future
}

// Run processes the queue until ctx is cancelled. Requests still queued at
// shutdown fail with models.ErrBrokerStopped.
func (b *Broker) Run(ctx context.Context) error {
	b.mu.Lock()
	b.running = true
	b.mu.Unlock()

	b.logger.Info("worker started")
	defer func() {
		b.mu.Lock()
		b.running = false
		b.mu.Unlock()
		b.failPending(models.ErrBrokerStopped)
		b.logger.Info("worker stopped")
	}()

	for {
		req := b.next()
		if req == nil {
			select {
			case <-ctx.Done():
				return nil
			case <-b.wake:
				continue
			}
		}

		if ctx.Err() != nil {
			b.finish(req, models.SearchOutcome{}, models.ErrBrokerStopped)
			return nil
		}
		b.process(ctx, req)
	}
}

// ForceReset clears the breaker (administrative override)
func (b *Broker) ForceReset() {
	b.breaker.ForceReset()
	b.metrics.SetCircuitOpen(false)
	b.setSystemAlert("success", "Scrape rate limit manually reset - processing resumed")
	b.logger.Warn("circuit breaker manually reset")
}

// IsRateLimited reports whether the breaker is open, applying the cooldown
func (b *Broker) IsRateLimited() bool {
	allowed, reset := b.breaker.Allow()
	if reset {
		b.cooldownComplete()
	}
	return !allowed
}

// QueueSize returns the number of queued requests
func (b *Broker) QueueSize() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Status returns a point-in-time view for the status endpoint
func (b *Broker) Status() models.BrokerStatus {
	now := b.now()
	stats := b.breaker.Stats()

	b.mu.Lock()
	status := models.BrokerStatus{
		QueueSize:           len(b.pending),
		InFlight:            len(b.inFlight),
		RateLimited:         stats.Tripped,
		CooldownRemaining:   stats.CooldownRemaining.Seconds(),
		ConsecutiveFailures: stats.ConsecutiveFailures,
		WorkerRunning:       b.running,
		SystemAlert:         b.activeAlertLocked(now),
	}
	if !b.lastRequest.IsZero() {
		t := b.lastRequest
		status.LastRequestTime = &t
	}
	b.mu.Unlock()

	if stats.Tripped {
		t := stats.TrippedAt
		status.RateLimitedAt = &t
	}

	b.sessionMu.Lock()
	if b.session != nil {
		status.SessionValid = true
		status.SessionAgeMinutes = b.session.Age(now).Minutes()
	}
	b.sessionMu.Unlock()

	return status
}

func (b *Broker) next() *request {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.pending) == 0 {
		return nil
	}
	req := b.pending[0]
	b.pending[0] = nil
	b.pending = b.pending[1:]
	b.metrics.SetQueueDepth(len(b.pending))
	return req
}

func (b *Broker) process(ctx context.Context, req *request) {
	if allowed, reset := b.breaker.Allow(); !allowed {
		b.logger.Warn("rejecting queued request, rate limited", zap.String("event_id", req.eventID))
		b.finish(req, models.SearchOutcome{}, fmt.Errorf("scrape %s: %w", req.eventID, models.ErrRateLimited))
		return
	} else if reset {
		b.cooldownComplete()
	}

	if err := b.pace(ctx); err != nil {
		b.finish(req, models.SearchOutcome{}, models.ErrBrokerStopped)
		return
	}

	var outcome models.SearchOutcome
	err := b.retry.Execute(ctx, func(attempt int) error {
		var err error
		outcome, err = b.attempt(ctx, req)
		if err != nil {
			b.logger.Warn("scrape attempt failed",
				zap.String("event_id", req.eventID),
				zap.String("search_term", req.searchTerm),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		}
		return err
	})

	switch {
	case err == nil:
		b.breaker.RecordSuccess()
	case errors.Is(err, models.ErrRateLimited):
		// already handled by tripRateLimit
	default:
		b.breaker.RecordFailure()
	}

	b.finish(req, outcome, err)
}

// attempt runs one session check + origin + search + parse round
func (b *Broker) attempt(ctx context.Context, req *request) (models.SearchOutcome, error) {
	session, err := b.prepareSession(ctx)
	if err != nil {
		return models.SearchOutcome{}, err
	}

	b.mu.Lock()
	b.lastRequest = b.now()
	b.mu.Unlock()

	resp, err := b.upstream.Search(ctx, session, req.searchTerm)
	if err != nil {
		return models.SearchOutcome{}, fmt.Errorf("search %q: %w", req.searchTerm, asTransient(err))
	}

	if isRateLimited(resp) {
		b.tripRateLimit(req, resp.StatusCode)
		return models.SearchOutcome{}, fmt.Errorf("search %q returned %d: %w", req.searchTerm, resp.StatusCode, models.ErrRateLimited)
	}
	if resp.StatusCode >= 500 {
		return models.SearchOutcome{}, fmt.Errorf("search %q returned %d: %w", req.searchTerm, resp.StatusCode, models.ErrTransientNetwork)
	}
	if resp.StatusCode != http.StatusOK {
		return models.SearchOutcome{}, fmt.Errorf("search %q returned %d: %w", req.searchTerm, resp.StatusCode, models.ErrMalformedUpstreamData)
	}

	outcome, err := b.parser.Parse(resp.Body, req.homeTeam, req.awayTeam)
	if err != nil {
		return models.SearchOutcome{}, fmt.Errorf("parse results for %q: %w", req.searchTerm, err)
	}
	return outcome, nil
}

// prepareSession returns a session positioned at the search origin.
// A missing or stale session is replaced; on a reused session a failed
// origin navigation forces exactly one refresh.
func (b *Broker) prepareSession(ctx context.Context) (*models.Session, error) {
	b.sessionMu.Lock()
	defer b.sessionMu.Unlock()

	if b.session == nil || b.session.Age(b.now()) > b.cfg.SessionRefresh {
		return b.refreshSessionLocked(ctx)
	}

	status, err := b.upstream.Origin(ctx, b.session)
	if err == nil && status == http.StatusOK {
		return b.session, nil
	}

	b.logger.Warn("search origin unavailable, refreshing session",
		zap.Int("status", status),
		zap.Error(err),
	)
	return b.refreshSessionLocked(ctx)
}

func (b *Broker) refreshSessionLocked(ctx context.Context) (*models.Session, error) {
	b.session = nil

	session, err := b.upstream.Login(ctx)
	if err != nil {
		if errors.Is(err, models.ErrAuthenticationFailed) {
			b.setSystemAlert("error", "Target book login failed")
			return nil, fmt.Errorf("refresh session: %w", err)
		}
		return nil, fmt.Errorf("refresh session: %w", asTransient(err))
	}
	if session == nil {
		return nil, fmt.Errorf("refresh session: %w", models.ErrAuthenticationFailed)
	}

	session.CreatedAt = b.now()
	b.session = session
	b.logger.Info("session refreshed")
	return session, nil
}

// pace waits a uniformly random delay in [PacingMin, PacingMax] since the last request
func (b *Broker) pace(ctx context.Context) error {
	target := b.cfg.PacingMin
	if spread := b.cfg.PacingMax - b.cfg.PacingMin; spread > 0 {
		target += time.Duration(rand.Int63n(int64(spread) + 1))
	}

	b.mu.Lock()
	last := b.lastRequest
	b.mu.Unlock()

	if last.IsZero() {
		return nil
	}
	wait := target - b.now().Sub(last)
	if wait <= 0 {
		return nil
	}

	b.logger.Debug("pacing before next request", zap.Duration("wait", wait))
	t := time.NewTimer(wait)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (b *Broker) tripRateLimit(req *request, status int) {
	b.breaker.Trip(fmt.Sprintf("status %d on search %q", status, req.searchTerm))
	b.metrics.SetCircuitOpen(true)

	b.logger.Error("rate limiting detected, pausing all scraping",
		zap.String("event_id", req.eventID),
		zap.String("search_term", req.searchTerm),
		zap.Int("status", status),
		zap.Duration("cooldown", b.cfg.Cooldown),
	)

	alert := b.setSystemAlert("critical",
		fmt.Sprintf("Target book rate limiting detected - all scraping paused for %d minutes", int(b.cfg.Cooldown.Minutes())))

	b.failPending(models.ErrRateLimited)

	b.mu.Lock()
	hooks := append([]func(models.SystemAlert){}, b.hooks...)
	b.mu.Unlock()
	for _, fn := range hooks {
		go fn(alert)
	}
}

func (b *Broker) cooldownComplete() {
	b.metrics.SetCircuitOpen(false)
	b.setSystemAlert("success", "Scrape rate limit cooldown complete - processing resumed")
	b.logger.Info("circuit breaker reset after cooldown")
}

func (b *Broker) setSystemAlert(kind, message string) models.SystemAlert {
	alert := models.SystemAlert{
		Type:     kind,
		Message:  message,
		RaisedAt: b.now(),
		Cooldown: b.cfg.Cooldown.Seconds(),
	}

	b.mu.Lock()
	b.systemAlert = &alert
	b.mu.Unlock()
	return alert
}

// activeAlertLocked returns the system alert until AlertDisplay has passed
func (b *Broker) activeAlertLocked(now time.Time) *models.SystemAlert {
	if b.systemAlert == nil {
		return nil
	}
	if now.Sub(b.systemAlert.RaisedAt) > b.cfg.AlertDisplay {
		b.systemAlert = nil
		return nil
	}
	a := *b.systemAlert
	return &a
}

// failPending fails every queued request with err
func (b *Broker) failPending(err error) {
	b.mu.Lock()
	pending := b.pending
	b.pending = nil
	b.metrics.SetQueueDepth(0)
	b.mu.Unlock()

	for _, req := range pending {
		b.finish(req, models.SearchOutcome{}, fmt.Errorf("scrape %s: %w", req.eventID, err))
	}
}

func (b *Broker) finish(req *request, outcome models.SearchOutcome, err error) {
	b.mu.Lock()
	delete(b.inFlight, req.eventID)
	b.mu.Unlock()

	switch {
	case err != nil:
		b.metrics.RecordScrape(resultLabel(err))
	case outcome.Found:
		b.metrics.RecordScrape("found")
	default:
		b.metrics.RecordScrape("not_found")
	}

	req.future.resolve(outcome, err)
}

func isRateLimited(resp *models.UpstreamResponse) bool {
	if rateLimitStatuses[resp.StatusCode] {
		return true
	}
	body := bytes.ToLower(resp.Body)
	for _, phrase := range rateLimitPhrases {
		if bytes.Contains(body, phrase) {
			return true
		}
	}
	return false
}

// asTransient tags untyped transport errors as transient network failures
func asTransient(err error) error {
	for _, known := range []error{
		models.ErrAuthenticationFailed,
		models.ErrAuthenticationExpired,
		models.ErrRateLimited,
		models.ErrMalformedUpstreamData,
		models.ErrTimeout,
		models.ErrTransientNetwork,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", models.ErrTransientNetwork, err)
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, models.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, models.ErrAuthenticationFailed), errors.Is(err, models.ErrAuthenticationExpired):
		return "auth_failed"
	case errors.Is(err, models.ErrMalformedUpstreamData):
		return "malformed"
	case errors.Is(err, models.ErrBrokerStopped):
		return "stopped"
	default:
		return "error"
	}
}
