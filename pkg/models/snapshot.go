package models

import "time"

// EventSnapshot is the current best-known state of one tracked event
type EventSnapshot struct {
	EventID string `json:"event_id"`

	HomeTeam           string `json:"home_team"`
	AwayTeam           string `json:"away_team"`
	HomeTeamNormalized string `json:"home_team_normalized"`
	AwayTeamNormalized string `json:"away_team_normalized"`
	League             string `json:"league"`
	StartTime          string `json:"start_time,omitempty"`

	ReferenceOdds *ReferenceOdds     `json:"reference_odds,omitempty"`
	TargetOdds    *ParsedGame        `json:"target_odds,omitempty"`
	Markets       []MarketEvaluation `json:"markets"`

	// Alert movement that caused the event to be tracked
	LastAlert AlertMove `json:"last_alert"`

	AlertArrivalTime time.Time `json:"alert_arrival_time"`
	LastRefreshTime  time.Time `json:"last_refresh_time"`
	Dismissed        bool      `json:"dismissed"`
	HasPositiveEV    bool      `json:"has_positive_ev"`
	Rescraped        bool      `json:"rescraped"`
}

// AlertMove is the odds movement reported by an alert
type AlertMove struct {
	OldOdds    string `json:"old_odds,omitempty"`
	NewOdds    string `json:"new_odds,omitempty"`
	NoVigPrice string `json:"no_vig_price,omitempty"`
}

// Clone returns a deep copy
func (s *EventSnapshot) Clone() *EventSnapshot {
	if s == nil {
		return nil
	}
	out := *s
	out.ReferenceOdds = s.ReferenceOdds.Clone()
	out.TargetOdds = s.TargetOdds.Clone()
	out.Markets = CloneMarkets(s.Markets)
	return &out
}

// AllNonPositive reports whether no market shows positive EV.
// A snapshot with no markets counts as all non-positive.
func (s *EventSnapshot) AllNonPositive() bool {
	for _, m := range s.Markets {
		if m.EV > 0 {
			return false
		}
	}
	return true
}
