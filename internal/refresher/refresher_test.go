package refresher_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/XavierBriggs/fortuna/services/ev-monitor/internal/metrics"
	"github.com/XavierBriggs/fortuna/services/ev-monitor/internal/refresher"
	"github.com/XavierBriggs/fortuna/services/ev-monitor/internal/store"
	"github.com/XavierBriggs/fortuna/services/ev-monitor/pkg/models"
)

func f(v float64) *float64 { return &v }

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// MockFetcher implements contracts.OddsFetcher for testing
type MockFetcher struct {
	mu       sync.Mutex
	calls    int
	err      error
	panicFor string
}

func (m *MockFetcher) Fetch(ctx context.Context, eventID string) (*models.ReferenceOdds, error) {
	m.mu.Lock()
	m.calls++
	err, panicFor := m.err, m.panicFor
	m.mu.Unlock()

	if eventID == panicFor {
		panic("corrupt payload")
	}
	if err != nil {
		return nil, err
	}
	return &models.ReferenceOdds{
		EventID: eventID,
		Periods: map[string]*models.Period{
			"num_0": {MoneyLine: &models.MoneyLine{Home: f(1.91), Away: f(1.91)}},
		},
	}, nil
}

// MockBroadcaster implements contracts.Broadcaster for testing
type MockBroadcaster struct {
	mu       sync.Mutex
	messages []models.ServerMessage
}

func (m *MockBroadcaster) Broadcast(msg models.ServerMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
}

func (m *MockBroadcaster) count(msgType string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, msg := range m.messages {
		if msg.Type == msgType {
			n++
		}
	}
	return n
}

func (m *MockBroadcaster) lastRemovalReason() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.messages) - 1; i >= 0; i-- {
		if m.messages[i].Type == models.MessageTypeRemoved {
			return m.messages[i].Payload.(map[string]string)["reason"]
		}
	}
	return ""
}

// MockRescraper implements refresher.Rescraper for testing
type MockRescraper struct {
	requested []string
}

func (m *MockRescraper) Rescrape(eventID string) bool {
	m.requested = append(m.requested, eventID)
	return true
}

func testConfig() refresher.Config {
	return refresher.Config{
		Interval:         3 * time.Second,
		ExpiryNoEV:       60 * time.Second,
		ExpiryPositiveEV: 180 * time.Second,
		MaxAge:           5 * time.Minute,
		RescrapeAfter:    60 * time.Second,
		RebroadcastEvery: 20,
	}
}

type fixture struct {
	clock       *fakeClock
	store       *store.Store
	fetcher     *MockFetcher
	broadcaster *MockBroadcaster
	rescraper   *MockRescraper
	refresher   *refresher.Refresher
}

func newFixture(cfg refresher.Config) *fixture {
	fx := &fixture{
		clock:       &fakeClock{now: time.Date(2025, 3, 1, 19, 0, 0, 0, time.UTC)},
		store:       store.New(50),
		fetcher:     &MockFetcher{},
		broadcaster: &MockBroadcaster{},
		rescraper:   &MockRescraper{},
	}
	fx.refresher = refresher.New(fx.store, fx.fetcher, fx.broadcaster, fx.rescraper, cfg, zap.NewNop(),
		refresher.WithClock(fx.clock.Now), refresher.WithMetrics(metrics.New()))
	return fx
}

// track adds an event whose target home price gives the requested EV sign
func (fx *fixture) track(id string, positive bool) {
	home, ev := "-105", -0.024 // fair 2.0
	if positive {
		home, ev = "+105", 0.025
	}
	fx.store.Add(id, &models.EventSnapshot{
		EventID:          id,
		HomeTeam:         "Boston Red Sox",
		AwayTeam:         "New York Yankees",
		TargetOdds:       &models.ParsedGame{HomeMoneyline: home},
		Markets:          []models.MarketEvaluation{{Market: models.MarketMoneyline, Selection: models.SelectionHome, EV: ev}},
		HasPositiveEV:    positive,
		AlertArrivalTime: fx.clock.Now(),
	})
}

func TestRefresher_Expiry(t *testing.T) {
	tests := []struct {
		name          string
		positive      bool
		keepAt        time.Duration
		removeAt      time.Duration
		wantRescrapes int
	}{
		{name: "non-positive expires after 60s", positive: false, keepAt: 59 * time.Second, removeAt: 61 * time.Second, wantRescrapes: 0},
		{name: "positive survives until 180s", positive: true, keepAt: 179 * time.Second, removeAt: 181 * time.Second, wantRescrapes: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(testConfig())
			fx.track("1", tt.positive)

			fx.clock.Advance(tt.keepAt)
			fx.refresher.Cycle(context.Background())
			if !fx.store.Has("1") {
				t.Fatalf("Expected event to survive at %v", tt.keepAt)
			}

			fx.clock.Advance(tt.removeAt - tt.keepAt)
			fx.refresher.Cycle(context.Background())
			if fx.store.Has("1") {
				t.Fatalf("Expected event to be removed at %v", tt.removeAt)
			}
			if reason := fx.broadcaster.lastRemovalReason(); reason != refresher.ReasonExpired {
				t.Errorf("Expected removal reason %q, got %q", refresher.ReasonExpired, reason)
			}
			if len(fx.rescraper.requested) != tt.wantRescrapes {
				t.Errorf("Expected %d rescrapes, got %d", tt.wantRescrapes, len(fx.rescraper.requested))
			}
		})
	}
}

func TestRefresher_RescrapeOnce(t *testing.T) {
	fx := newFixture(testConfig())
	fx.track("1", true)

	for i := 0; i < 5; i++ {
		fx.clock.Advance(15 * time.Second)
		fx.refresher.Cycle(context.Background())
	}

	if len(fx.rescraper.requested) != 1 {
		t.Fatalf("Expected exactly 1 rescrape, got %d", len(fx.rescraper.requested))
	}
	snap, _ := fx.store.Get("1")
	if !snap.Rescraped {
		t.Error("Expected snapshot to be marked rescraped")
	}
}

func TestRefresher_MaxAge(t *testing.T) {
	cfg := testConfig()
	cfg.ExpiryPositiveEV = 10 * time.Minute
	fx := newFixture(cfg)
	fx.track("1", true)

	fx.clock.Advance(5*time.Minute + time.Second)
	fx.refresher.Cycle(context.Background())

	if fx.store.Has("1") {
		t.Fatal("Expected event past max age to be removed")
	}
	if reason := fx.broadcaster.lastRemovalReason(); reason != refresher.ReasonMaxAge {
		t.Errorf("Expected reason %q, got %q", refresher.ReasonMaxAge, reason)
	}
}

func TestRefresher_Dismissed(t *testing.T) {
	fx := newFixture(testConfig())
	fx.track("1", true)
	fx.store.Dismiss("1")

	fx.refresher.Cycle(context.Background())

	if fx.store.Has("1") {
		t.Fatal("Expected dismissed event to be removed")
	}
	if reason := fx.broadcaster.lastRemovalReason(); reason != refresher.ReasonDismissed {
		t.Errorf("Expected reason %q, got %q", refresher.ReasonDismissed, reason)
	}
	if !fx.store.IsDismissed("1") {
		t.Error("Expected dismissal to be kept so alerts stay blocked")
	}
	if fx.fetcher.calls != 0 {
		t.Errorf("Expected no fetch for dismissed event, got %d", fx.fetcher.calls)
	}
}

func TestRefresher_BroadcastsOnlyOnChange(t *testing.T) {
	fx := newFixture(testConfig())
	fx.store.Add("1", &models.EventSnapshot{
		EventID:          "1",
		TargetOdds:       &models.ParsedGame{HomeMoneyline: "+105"},
		AlertArrivalTime: fx.clock.Now(),
	})

	fx.refresher.Cycle(context.Background())
	if got := fx.broadcaster.count(models.MessageTypeSnapshot); got != 1 {
		t.Fatalf("Expected broadcast on first re-price, got %d", got)
	}

	snap, _ := fx.store.Get("1")
	if !snap.HasPositiveEV || len(snap.Markets) != 1 {
		t.Errorf("Expected one positive market, got %+v", snap.Markets)
	}
	if !snap.LastRefreshTime.Equal(fx.clock.Now()) {
		t.Errorf("Expected last refresh time to be updated")
	}

	fx.clock.Advance(3 * time.Second)
	fx.refresher.Cycle(context.Background())
	if got := fx.broadcaster.count(models.MessageTypeSnapshot); got != 1 {
		t.Errorf("Expected no broadcast when nothing changed, got %d", got)
	}
}

func TestRefresher_PeriodicRebroadcast(t *testing.T) {
	cfg := testConfig()
	cfg.RebroadcastEvery = 3
	fx := newFixture(cfg)
	fx.track("1", true)
	fx.track("2", true)

	// first cycle re-prices both (reference odds were empty)
	fx.refresher.Cycle(context.Background())
	base := fx.broadcaster.count(models.MessageTypeSnapshot)

	fx.refresher.Cycle(context.Background())
	if got := fx.broadcaster.count(models.MessageTypeSnapshot); got != base {
		t.Fatalf("Expected no broadcast on cycle 2, got %d", got-base)
	}

	fx.refresher.Cycle(context.Background())
	if got := fx.broadcaster.count(models.MessageTypeSnapshot); got != base+2 {
		t.Errorf("Expected every snapshot rebroadcast on cycle 3, got %d", got-base)
	}
}

func TestRefresher_FetchFailureKeepsSnapshot(t *testing.T) {
	fx := newFixture(testConfig())
	fx.track("1", true)
	fx.fetcher.err = errors.New("reference book unavailable")

	fx.refresher.Cycle(context.Background())

	if !fx.store.Has("1") {
		t.Fatal("Expected snapshot to be kept")
	}
	if got := fx.broadcaster.count(models.MessageTypeSnapshot); got != 0 {
		t.Errorf("Expected no broadcast, got %d", got)
	}
}

func TestRefresher_DefensiveAgainstBadSnapshots(t *testing.T) {
	fx := newFixture(testConfig())
	fx.track("bad", true)
	fx.track("good", true)
	fx.store.Add("no-target", &models.EventSnapshot{AlertArrivalTime: fx.clock.Now()})
	fx.fetcher.panicFor = "bad"

	fx.refresher.Cycle(context.Background())

	snap, _ := fx.store.Get("good")
	if snap.ReferenceOdds == nil {
		t.Error("Expected healthy event to be refreshed despite a panicking neighbour")
	}
	if !fx.store.Has("bad") || !fx.store.Has("no-target") {
		t.Error("Expected problem snapshots to be skipped, not removed")
	}
}

func TestRefresher_RunStops(t *testing.T) {
	cfg := testConfig()
	cfg.Interval = time.Millisecond
	fx := newFixture(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- fx.refresher.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected nil error, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Expected refresher to stop")
	}
}
