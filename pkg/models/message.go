package models

import "time"

// Message types for subscriber communication
const (
	MessageTypeSnapshot    = "snapshot"
	MessageTypeRemoved     = "removed"
	MessageTypeSubscribe   = "subscribe"
	MessageTypeUnsubscribe = "unsubscribe"
	MessageTypeHeartbeat   = "heartbeat"
	MessageTypeError       = "error"
)

// ClientMessage represents a message from subscriber to server
type ClientMessage struct {
	Type    string                 `json:"type"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// ServerMessage represents a message pushed to subscribers
type ServerMessage struct {
	Type      string      `json:"type"`
	EventID   string      `json:"eventId,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// SnapshotMessage wraps a snapshot for broadcast
func SnapshotMessage(s *EventSnapshot) ServerMessage {
	return ServerMessage{
		Type:      MessageTypeSnapshot,
		EventID:   s.EventID,
		Payload:   s,
		Timestamp: time.Now(),
	}
}

// RemovedMessage announces that an event is no longer tracked
func RemovedMessage(eventID, reason string) ServerMessage {
	return ServerMessage{
		Type:      MessageTypeRemoved,
		EventID:   eventID,
		Payload:   map[string]string{"reason": reason},
		Timestamp: time.Now(),
	}
}

// SubscriptionFilter limits which events a subscriber receives
type SubscriptionFilter struct {
	Events []string `json:"events,omitempty"`
}

// ConnectionStats represents connection statistics
type ConnectionStats struct {
	ClientID          string    `json:"client_id"`
	ConnectedAt       time.Time `json:"connected_at"`
	MessagesSent      int64     `json:"messages_sent"`
	MessagesReceived  int64     `json:"messages_received"`
	LastMessageAt     time.Time `json:"last_message_at"`
	BufferSize        int       `json:"buffer_size"`
	BufferUtilization float64   `json:"buffer_utilization"`
}

// ErrorMessage represents an error pushed to a subscriber
type ErrorMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
