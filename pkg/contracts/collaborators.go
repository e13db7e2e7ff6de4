package contracts

import (
	"context"

	"github.com/XavierBriggs/fortuna/services/ev-monitor/pkg/models"
)

// OddsFetcher fetches live prices from the reference book
type OddsFetcher interface {
	// Fetch returns the raw reference odds for an event
	// The returned data is owned by the caller
	Fetch(ctx context.Context, eventID string) (*models.ReferenceOdds, error)
}

// Upstream is the transport to the target book.
// Implementations are called only from the broker worker.
type Upstream interface {
	// Login creates a new authenticated session with search prerequisites loaded
	// Returns models.ErrAuthenticationFailed when credentials are rejected
	Login(ctx context.Context) (*models.Session, error)

	// Origin navigates to the canonical search origin page and returns its status code
	Origin(ctx context.Context, session *models.Session) (int, error)

	// Search submits a search and returns the raw response for inspection
	Search(ctx context.Context, session *models.Session, searchTerm string) (*models.UpstreamResponse, error)
}

// GameParser extracts the best-matching game from a search response
type GameParser interface {
	// Parse returns NotFound (not an error) when no game matches the requested teams
	// Returns models.ErrMalformedUpstreamData when the page cannot be understood
	Parse(body []byte, homeTeam, awayTeam string) (models.SearchOutcome, error)
}

// SnapshotPublisher forwards subscriber messages to an external bus
type SnapshotPublisher interface {
	Publish(ctx context.Context, msg models.ServerMessage) error
	Close() error
}

// Notifier delivers operator alerts
type Notifier interface {
	Notify(ctx context.Context, alert models.SystemAlert) error
}

// OpportunityRecorder persists positive-EV evaluations for later review
type OpportunityRecorder interface {
	RecordOpportunities(ctx context.Context, snapshot *models.EventSnapshot) error
}

// Broadcaster pushes messages to subscribers
type Broadcaster interface {
	Broadcast(msg models.ServerMessage)
}

// Subscriber receives broadcast messages.
// The hub calls these methods from its own goroutine only.
type Subscriber interface {
	ID() string
	// Matches reports whether the subscriber wants this message
	Matches(msg models.ServerMessage) bool
	// TrySend queues a message without blocking; false means the subscriber is too slow
	TrySend(msg models.ServerMessage) bool
	// Close is called once when the hub drops the subscriber
	Close()
}
