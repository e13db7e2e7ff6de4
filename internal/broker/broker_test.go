package broker_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/XavierBriggs/fortuna/services/ev-monitor/internal/broker"
	"github.com/XavierBriggs/fortuna/services/ev-monitor/internal/metrics"
	"github.com/XavierBriggs/fortuna/services/ev-monitor/pkg/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 10, 20, 0, 0, 0, time.UTC)}
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

// MockUpstream implements contracts.Upstream for testing
type MockUpstream struct {
	mu sync.Mutex

	loginErr     error
	originStatus int
	searchStatus int
	searchBody   string
	searchErr    error

	logins   int
	origins  int
	searches int
	terms    []string

	active    int
	maxActive int
}

func newMockUpstream() *MockUpstream {
	return &MockUpstream{originStatus: 200, searchStatus: 200, searchBody: `{"games":[]}`}
}

func (m *MockUpstream) Login(ctx context.Context) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logins++
	if m.loginErr != nil {
		return nil, m.loginErr
	}
	return &models.Session{Values: map[string]string{"inetWagerNumber": "1"}}, nil
}

func (m *MockUpstream) Origin(ctx context.Context, s *models.Session) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.origins++
	return m.originStatus, nil
}

func (m *MockUpstream) Search(ctx context.Context, s *models.Session, term string) (*models.UpstreamResponse, error) {
	m.mu.Lock()
	m.searches++
	m.terms = append(m.terms, term)
	m.active++
	if m.active > m.maxActive {
		m.maxActive = m.active
	}
	status, body, err := m.searchStatus, m.searchBody, m.searchErr
	m.mu.Unlock()

	time.Sleep(time.Millisecond)

	m.mu.Lock()
	m.active--
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return &models.UpstreamResponse{StatusCode: status, Body: []byte(body)}, nil
}

func (m *MockUpstream) set(fn func(m *MockUpstream)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m)
}

func (m *MockUpstream) counts() (logins, origins, searches int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.logins, m.origins, m.searches
}

// MockParser implements contracts.GameParser for testing
type MockParser struct {
	notFound bool
	err      error
}

func (p *MockParser) Parse(body []byte, home, away string) (models.SearchOutcome, error) {
	if p.err != nil {
		return models.SearchOutcome{}, p.err
	}
	if p.notFound {
		return models.NotFound(), nil
	}
	return models.FoundGame(&models.ParsedGame{HomeTeam: home, AwayTeam: away, HomeMoneyline: "+120"}), nil
}

func testConfig() broker.Config {
	return broker.Config{
		SessionRefresh: 25 * time.Minute,
		Cooldown:       5 * time.Minute,
		MaxAttempts:    3,
		RetryBackoff:   time.Millisecond,
		AlertDisplay:   30 * time.Second,
	}
}

func startBroker(t *testing.T, b *broker.Broker) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = b.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func wait(t *testing.T, f *broker.Future) (models.SearchOutcome, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return f.Wait(ctx)
}

func TestBroker_SearchSuccess(t *testing.T) {
	up := newMockUpstream()
	b := broker.New(up, &MockParser{}, testConfig(), zap.NewNop(), broker.WithMetrics(metrics.New()))
	startBroker(t, b)

	outcome, err := wait(t, b.Submit("lakers", "1", "Los Angeles Lakers", "Boston Celtics"))
	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if !outcome.Found || outcome.Game.HomeTeam != "Los Angeles Lakers" {
		t.Errorf("Expected found game for requested teams, got %+v", outcome)
	}

	if _, err := wait(t, b.Submit("celtics", "2", "Boston Celtics", "Miami Heat")); err != nil {
		t.Fatalf("Expected second success, got %v", err)
	}

	logins, origins, searches := up.counts()
	if logins != 1 {
		t.Errorf("Expected session reuse with 1 login, got %d", logins)
	}
	if origins != 1 {
		t.Errorf("Expected origin navigation on reused session, got %d", origins)
	}
	if searches != 2 {
		t.Errorf("Expected 2 searches, got %d", searches)
	}

	status := b.Status()
	if !status.SessionValid || !status.WorkerRunning || status.LastRequestTime == nil {
		t.Errorf("Unexpected status: %+v", status)
	}
}

func TestBroker_NotFoundIsNotAnError(t *testing.T) {
	b := broker.New(newMockUpstream(), &MockParser{notFound: true}, testConfig(), zap.NewNop())
	startBroker(t, b)

	outcome, err := wait(t, b.Submit("nobody", "1", "Nobody FC", "Somebody FC"))
	if err != nil {
		t.Fatalf("Expected no error for a miss, got %v", err)
	}
	if outcome.Found {
		t.Error("Expected NotFound outcome")
	}
}

func TestBroker_DuplicateRejected(t *testing.T) {
	b := broker.New(newMockUpstream(), &MockParser{}, testConfig(), zap.NewNop())

	first := b.Submit("lakers", "1", "Lakers", "Celtics")
	second := b.Submit("lakers", "1", "Lakers", "Celtics")

	select {
	case <-second.Done():
	default:
		t.Fatal("Expected duplicate to resolve immediately")
	}
	if _, err := second.Wait(context.Background()); !errors.Is(err, models.ErrDuplicateInFlight) {
		t.Errorf("Expected ErrDuplicateInFlight, got %v", err)
	}

	select {
	case <-first.Done():
		t.Fatal("Expected first request to stay queued without a worker")
	default:
	}
	if b.QueueSize() != 1 {
		t.Errorf("Expected queue size 1, got %d", b.QueueSize())
	}

	// a different event is accepted
	third := b.Submit("heat", "2", "Heat", "Knicks")
	select {
	case <-third.Done():
		t.Error("Expected different event to be queued")
	default:
	}
}

func TestBroker_AtMostOneInFlightPerEvent(t *testing.T) {
	up := newMockUpstream()
	b := broker.New(up, &MockParser{}, testConfig(), zap.NewNop())

	const submitters = 50
	futures := make([]*broker.Future, submitters)
	var wg sync.WaitGroup
	for i := 0; i < submitters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			futures[i] = b.Submit("hot", "hot-event", "Home", "Away")
		}(i)
	}
	wg.Wait()

	if b.QueueSize() != 1 {
		t.Fatalf("Expected exactly one queued request, got %d", b.QueueSize())
	}

	// different events queue behind each other and are never searched concurrently
	for i := 0; i < 5; i++ {
		b.Submit("team", fmt.Sprintf("event-%d", i), "Home", "Away")
	}

	startBroker(t, b)

	accepted, duplicates := 0, 0
	for _, f := range futures {
		_, err := wait(t, f)
		switch {
		case err == nil:
			accepted++
		case errors.Is(err, models.ErrDuplicateInFlight):
			duplicates++
		default:
			t.Errorf("Unexpected error: %v", err)
		}
	}
	if accepted != 1 || duplicates != submitters-1 {
		t.Errorf("Expected 1 accepted and %d duplicates, got %d and %d", submitters-1, accepted, duplicates)
	}

	// once resolved the event may be submitted again
	if _, err := wait(t, b.Submit("hot", "hot-event", "Home", "Away")); err != nil {
		t.Errorf("Expected resubmission after completion to succeed, got %v", err)
	}

	up.mu.Lock()
	maxActive := up.maxActive
	up.mu.Unlock()
	if maxActive != 1 {
		t.Errorf("Expected searches to be serialized, saw %d concurrent", maxActive)
	}
}

func TestBroker_RateLimitDetection(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantLimited bool
	}{
		{name: "429", status: 429, body: "", wantLimited: true},
		{name: "403", status: 403, body: "forbidden", wantLimited: true},
		{name: "401", status: 401, body: "", wantLimited: true},
		{name: "503", status: 503, body: "", wantLimited: true},
		{name: "phrase in body", status: 200, body: "<h1>Too Many Requests</h1>", wantLimited: true},
		{name: "temporarily blocked", status: 200, body: "You have been temporarily blocked", wantLimited: true},
		{name: "account suspended", status: 200, body: "Account SUSPENDED", wantLimited: true},
		{name: "normal page", status: 200, body: `{"games":[]}`, wantLimited: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := newMockUpstream()
			up.searchStatus = tt.status
			up.searchBody = tt.body

			b := broker.New(up, &MockParser{}, testConfig(), zap.NewNop())
			startBroker(t, b)

			_, err := wait(t, b.Submit("term", "1", "Home", "Away"))
			if got := errors.Is(err, models.ErrRateLimited); got != tt.wantLimited {
				t.Errorf("Expected rate limited=%v, got err %v", tt.wantLimited, err)
			}
			if b.IsRateLimited() != tt.wantLimited {
				t.Errorf("Expected breaker open=%v", tt.wantLimited)
			}
		})
	}
}

func TestBroker_RateLimitStickyUntilCooldown(t *testing.T) {
	clock := newFakeClock()
	up := newMockUpstream()
	up.searchStatus = 429

	b := broker.New(up, &MockParser{}, testConfig(), zap.NewNop(), broker.WithClock(clock.Now))

	hookFired := make(chan models.SystemAlert, 1)
	b.OnRateLimited(func(a models.SystemAlert) { hookFired <- a })

	first := b.Submit("a", "1", "A", "B")
	queued := b.Submit("c", "2", "C", "D")
	startBroker(t, b)

	if _, err := wait(t, first); !errors.Is(err, models.ErrRateLimited) {
		t.Fatalf("Expected first request rate limited, got %v", err)
	}
	if _, err := wait(t, queued); !errors.Is(err, models.ErrRateLimited) {
		t.Fatalf("Expected queued request to be failed, got %v", err)
	}

	select {
	case a := <-hookFired:
		if a.Type != "critical" {
			t.Errorf("Expected critical alert, got %s", a.Type)
		}
	case <-time.After(time.Second):
		t.Error("Expected rate limit hook to fire")
	}

	status := b.Status()
	if !status.RateLimited || status.SystemAlert == nil || status.RateLimitedAt == nil {
		t.Errorf("Expected rate limited status with system alert, got %+v", status)
	}

	// upstream recovers but the breaker stays open for the whole cooldown
	up.set(func(m *MockUpstream) { m.searchStatus = 200 })
	_, _, searchesBefore := up.counts()

	for _, advance := range []time.Duration{time.Second, time.Minute, 3*time.Minute + 58*time.Second} {
		clock.Advance(advance)
		f := b.Submit("e", "3", "E", "F")
		if _, err := wait(t, f); !errors.Is(err, models.ErrRateLimited) {
			t.Errorf("Expected fast rejection during cooldown, got %v", err)
		}
	}
	if _, _, searches := up.counts(); searches != searchesBefore {
		t.Errorf("Expected no searches during cooldown, got %d", searches-searchesBefore)
	}

	// system alert is only displayed for 30s
	if b.Status().SystemAlert != nil {
		t.Error("Expected system alert to have cleared")
	}

	clock.Advance(time.Second) // exactly 5 minutes since detection
	if _, err := wait(t, b.Submit("e", "3", "E", "F")); err != nil {
		t.Errorf("Expected success after cooldown, got %v", err)
	}
	if b.Status().RateLimited {
		t.Error("Expected breaker closed after cooldown")
	}
}

func TestBroker_ForceReset(t *testing.T) {
	up := newMockUpstream()
	up.searchStatus = 429
	b := broker.New(up, &MockParser{}, testConfig(), zap.NewNop())
	startBroker(t, b)

	_, _ = wait(t, b.Submit("a", "1", "A", "B"))
	if !b.IsRateLimited() {
		t.Fatal("Expected breaker to be open")
	}

	up.set(func(m *MockUpstream) { m.searchStatus = 200 })
	b.ForceReset()

	if _, err := wait(t, b.Submit("a", "1", "A", "B")); err != nil {
		t.Errorf("Expected success after manual reset, got %v", err)
	}
	if alert := b.Status().SystemAlert; alert == nil || alert.Type != "success" {
		t.Errorf("Expected success system alert, got %+v", alert)
	}
}

func TestBroker_AuthenticationFailureNotRetried(t *testing.T) {
	up := newMockUpstream()
	up.loginErr = fmt.Errorf("login rejected: %w", models.ErrAuthenticationFailed)
	b := broker.New(up, &MockParser{}, testConfig(), zap.NewNop())
	startBroker(t, b)

	_, err := wait(t, b.Submit("a", "1", "A", "B"))
	if !errors.Is(err, models.ErrAuthenticationFailed) {
		t.Fatalf("Expected ErrAuthenticationFailed, got %v", err)
	}
	if logins, _, searches := up.counts(); logins != 1 || searches != 0 {
		t.Errorf("Expected 1 login and no searches, got %d and %d", logins, searches)
	}
	if b.Status().SessionValid {
		t.Error("Expected no valid session")
	}
}

func TestBroker_NetworkErrorsRetried(t *testing.T) {
	up := newMockUpstream()
	up.searchErr = errors.New("connection reset by peer")
	b := broker.New(up, &MockParser{}, testConfig(), zap.NewNop())
	startBroker(t, b)

	_, err := wait(t, b.Submit("a", "1", "A", "B"))
	if !errors.Is(err, models.ErrTransientNetwork) {
		t.Fatalf("Expected ErrTransientNetwork, got %v", err)
	}
	if !strings.Contains(err.Error(), "failed after 3 attempts") {
		t.Errorf("Expected attempts in error, got %v", err)
	}
	if _, _, searches := up.counts(); searches != 3 {
		t.Errorf("Expected 3 search attempts, got %d", searches)
	}
	if got := b.Status().ConsecutiveFailures; got != 1 {
		t.Errorf("Expected 1 consecutive failure, got %d", got)
	}
	if b.IsRateLimited() {
		t.Error("Expected network errors not to trip the breaker")
	}
}

func TestBroker_ParseFailureNotRetried(t *testing.T) {
	up := newMockUpstream()
	parseErr := fmt.Errorf("no results table: %w", models.ErrMalformedUpstreamData)
	b := broker.New(up, &MockParser{err: parseErr}, testConfig(), zap.NewNop())
	startBroker(t, b)

	_, err := wait(t, b.Submit("a", "1", "A", "B"))
	if !errors.Is(err, models.ErrMalformedUpstreamData) {
		t.Fatalf("Expected ErrMalformedUpstreamData, got %v", err)
	}
	if _, _, searches := up.counts(); searches != 1 {
		t.Errorf("Expected a single search, got %d", searches)
	}
}

func TestBroker_SessionRefresh(t *testing.T) {
	clock := newFakeClock()
	up := newMockUpstream()
	b := broker.New(up, &MockParser{}, testConfig(), zap.NewNop(), broker.WithClock(clock.Now))
	startBroker(t, b)

	if _, err := wait(t, b.Submit("a", "1", "A", "B")); err != nil {
		t.Fatal(err)
	}

	// origin page failing forces a new login
	up.set(func(m *MockUpstream) { m.originStatus = 302 })
	if _, err := wait(t, b.Submit("a", "1", "A", "B")); err != nil {
		t.Fatal(err)
	}
	if logins, _, _ := up.counts(); logins != 2 {
		t.Errorf("Expected refresh after origin failure, got %d logins", logins)
	}

	// stale session is replaced without visiting the origin page
	up.set(func(m *MockUpstream) { m.originStatus = 200 })
	clock.Advance(26 * time.Minute)
	_, originsBefore, _ := up.counts()
	if _, err := wait(t, b.Submit("a", "1", "A", "B")); err != nil {
		t.Fatal(err)
	}
	logins, origins, _ := up.counts()
	if logins != 3 {
		t.Errorf("Expected refresh of stale session, got %d logins", logins)
	}
	if origins != originsBefore {
		t.Errorf("Expected no origin navigation on fresh login, got %d", origins-originsBefore)
	}
	if age := b.Status().SessionAgeMinutes; age != 0 {
		t.Errorf("Expected fresh session age 0, got %f", age)
	}
}

func TestBroker_StopFailsPending(t *testing.T) {
	b := broker.New(newMockUpstream(), &MockParser{}, testConfig(), zap.NewNop())
	f1 := b.Submit("a", "1", "A", "B")
	f2 := b.Submit("c", "2", "C", "D")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := b.Run(ctx); err != nil {
		t.Fatalf("Expected clean stop, got %v", err)
	}

	for _, f := range []*broker.Future{f1, f2} {
		if _, err := wait(t, f); !errors.Is(err, models.ErrBrokerStopped) {
			t.Errorf("Expected ErrBrokerStopped, got %v", err)
		}
	}
	if b.Status().WorkerRunning {
		t.Error("Expected worker not running")
	}
}

func TestFuture_WaitTimeout(t *testing.T) {
	b := broker.New(newMockUpstream(), &MockParser{}, testConfig(), zap.NewNop())
	f := b.Submit("a", "1", "A", "B")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := f.Wait(ctx); !errors.Is(err, models.ErrTimeout) {
		t.Errorf("Expected ErrTimeout, got %v", err)
	}
}
