// Package store holds the live event snapshots shared by the dispatcher, the refresher and the status endpoints.
package store

import (
	"sync"
	"time"

	"github.com/XavierBriggs/fortuna/services/ev-monitor/pkg/models"
)

// DefaultCapacity is the number of events tracked when no capacity is configured
const DefaultCapacity = 50

// Store is a concurrency-safe map of event ID to snapshot.
//
// mu guards the map and the snapshot contents. The per-event locks returned by
// Lock serialize whole read-modify-write cycles for one event, so two events can
// be processed concurrently but one event never is. Expiry is driven by the caller.
type Store struct {
	mu        sync.RWMutex
	events    map[string]*models.EventSnapshot
	dismissed map[string]time.Time
	capacity  int

	locksMu sync.Mutex
	locks   map[string]*eventLock
}

type eventLock struct {
	mu   sync.Mutex
	refs int
}

// New creates a store that holds at most capacity events
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		events:    make(map[string]*models.EventSnapshot),
		dismissed: make(map[string]time.Time),
		capacity:  capacity,
		locks:     make(map[string]*eventLock),
	}
}

// Get returns a copy of the snapshot for id
func (s *Store) Get(id string) (*models.EventSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.events[id]
	if !ok {
		return nil, false
	}
	return snap.Clone(), true
}

// Has reports whether a snapshot exists for id
func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.events[id]
	return ok
}

// GetAll returns a deep copy of every snapshot
func (s *Store) GetAll() map[string]*models.EventSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*models.EventSnapshot, len(s.events))
	for id, snap := range s.events {
		out[id] = snap.Clone()
	}
	return out
}

// Add inserts or replaces the snapshot for id. When a new id would exceed
// capacity the entry with the oldest alert arrival time is evicted first and
// its id is returned.
func (s *Store) Add(id string, snap *models.EventSnapshot) (evicted string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.events[id]; !exists && len(s.events) >= s.capacity {
		evicted = s.oldestLocked()
		if evicted != "" {
			delete(s.events, evicted)
		}
	}

	c := snap.Clone()
	c.EventID = id
	s.events[id] = c
	return evicted
}

// Update applies fn to the stored snapshot in place.
// It is a no-op returning false when id is absent.
func (s *Store) Update(id string, fn func(*models.EventSnapshot)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.events[id]
	if !ok {
		return false
	}
	fn(snap)
	return true
}

// Remove deletes the snapshot for id and reports whether it existed
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.events[id]
	delete(s.events, id)
	return ok
}

// Dismiss marks id as dismissed. Dismissed events are not tracked again and
// the refresher removes any existing snapshot on its next cycle.
func (s *Store) Dismiss(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dismissed[id] = time.Now()
	if snap, ok := s.events[id]; ok {
		snap.Dismissed = true
	}
}

// IsDismissed reports whether id was dismissed
func (s *Store) IsDismissed(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.dismissed[id]
	return ok
}

// ClearDismissal forgets a dismissal so future alerts can track the event again
func (s *Store) ClearDismissal(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.dismissed, id)
}

// PruneDismissed forgets dismissals older than maxAge
func (s *Store) PruneDismissed(maxAge time.Duration, now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	pruned := 0
	for id, at := range s.dismissed {
		if now.Sub(at) > maxAge {
			delete(s.dismissed, id)
			pruned++
		}
	}
	return pruned
}

// Lock acquires the per-event lock for id and returns its release function
func (s *Store) Lock(id string) func() {
	s.locksMu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &eventLock{}
		s.locks[id] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Unlock()

			s.locksMu.Lock()
			l.refs--
			if l.refs == 0 {
				delete(s.locks, id)
			}
			s.locksMu.Unlock()
		})
	}
}

// Len returns the number of tracked events
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Capacity returns the configured maximum number of events
func (s *Store) Capacity() int {
	return s.capacity
}

// Stats summarizes the store for the status endpoint
func (s *Store) Stats() models.StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := models.StoreStats{
		Events:    len(s.events),
		Capacity:  s.capacity,
		Dismissed: len(s.dismissed),
	}
	for _, snap := range s.events {
		if snap.HasPositiveEV {
			stats.PositiveEV++
		}
		if stats.OldestArrival == nil || snap.AlertArrivalTime.Before(*stats.OldestArrival) {
			t := snap.AlertArrivalTime
			stats.OldestArrival = &t
		}
	}
	return stats
}

func (s *Store) oldestLocked() string {
	var (
		oldestID string
		oldestAt time.Time
	)
	for id, snap := range s.events {
		if oldestID == "" || snap.AlertArrivalTime.Before(oldestAt) {
			oldestID = id
			oldestAt = snap.AlertArrivalTime
		}
	}
	return oldestID
}
