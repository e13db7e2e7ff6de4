package models

import (
	"net/http"
	"time"
)

// Session is an authenticated upstream session.
// It is owned by the broker worker and never shared.
type Session struct {
	Client    *http.Client
	CreatedAt time.Time
	// Search prerequisites extracted after login (form tokens and similar)
	Values map[string]string
}

// Age returns how long ago the session was created
func (s *Session) Age(now time.Time) time.Duration {
	if s == nil {
		return 0
	}
	return now.Sub(s.CreatedAt)
}

// UpstreamResponse is a raw response from the target book
type UpstreamResponse struct {
	StatusCode int
	Body       []byte
}
