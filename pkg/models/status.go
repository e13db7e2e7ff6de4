package models

import "time"

// SystemAlert is an operator-facing alert raised by the broker
type SystemAlert struct {
	Type     string    `json:"type"`
	Message  string    `json:"message"`
	RaisedAt time.Time `json:"raised_at"`
	Cooldown float64   `json:"cooldown_seconds"`
}

// BrokerStatus is a point-in-time view of the scrape broker
type BrokerStatus struct {
	QueueSize           int          `json:"queue_size"`
	InFlight            int          `json:"in_flight"`
	RateLimited         bool         `json:"rate_limited"`
	RateLimitedAt       *time.Time   `json:"rate_limited_at,omitempty"`
	CooldownRemaining   float64      `json:"cooldown_remaining_seconds"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	SessionValid        bool         `json:"session_valid"`
	SessionAgeMinutes   float64      `json:"session_age_minutes"`
	LastRequestTime     *time.Time   `json:"last_request_time,omitempty"`
	WorkerRunning       bool         `json:"worker_running"`
	SystemAlert         *SystemAlert `json:"system_alert,omitempty"`
}

// StoreStats summarizes the snapshot store
type StoreStats struct {
	Events        int        `json:"events"`
	Capacity      int        `json:"capacity"`
	Dismissed     int        `json:"dismissed"`
	PositiveEV    int        `json:"positive_ev"`
	OldestArrival *time.Time `json:"oldest_arrival,omitempty"`
}

// StatusResponse is the operability view served by the status endpoint
type StatusResponse struct {
	Status          string       `json:"status"`
	QueueDepth      int          `json:"queue_depth"`
	ActiveEvents    int          `json:"active_events"`
	DispatchWorkers int          `json:"dispatch_workers"`
	Subscribers     int          `json:"subscribers"`
	Broker          BrokerStatus `json:"broker"`
	Store           StoreStats   `json:"store"`
	Timestamp       time.Time    `json:"timestamp"`
}
