package models

import (
	"bytes"
	"encoding/json"
	"time"
)

// FlexString accepts either a JSON string or a JSON number.
// Alert senders are inconsistent about quoting odds.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler
func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

// Alert is an "odds moved" notification for one event
type Alert struct {
	EventID    FlexString `json:"eventId"`
	HomeTeam   string     `json:"homeTeam"`
	AwayTeam   string     `json:"awayTeam"`
	LeagueName string     `json:"leagueName"`
	StartTime  FlexString `json:"startTime"`
	OldOdds    FlexString `json:"oldOdds"`
	NewOdds    FlexString `json:"newOdds"`
	NoVigPrice FlexString `json:"noVigPrice"`

	// Set on receipt
	ID         string    `json:"-"`
	ReceivedAt time.Time `json:"-"`
}

// Move returns the odds movement carried by the alert
func (a Alert) Move() AlertMove {
	return AlertMove{
		OldOdds:    string(a.OldOdds),
		NewOdds:    string(a.NewOdds),
		NoVigPrice: string(a.NoVigPrice),
	}
}

// AlertResponse is the ingress reply body
type AlertResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	AlertID string `json:"alert_id,omitempty"`
}

// ErrorResponse is returned for rejected requests
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}
