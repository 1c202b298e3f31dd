package websocket

import (
	"encoding/json"
	"time"
)

// MessageType identifies the type of WebSocket message.
type MessageType string

const (
	// Server -> Client event types
	TypeEventStarted    MessageType = "event.started"
	TypeScheduleChanged MessageType = "schedule.changed"
	TypeFeedSynced      MessageType = "feed.sync_completed"
	TypeFeedSyncError   MessageType = "feed.sync_error"

	// Client -> Server command types
	TypePing MessageType = "ping"

	// Server -> Client response types
	TypePong  MessageType = "pong"
	TypeError MessageType = "error"
)

// Message represents a WebSocket message envelope.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   any         `json:"payload,omitempty"`
}

// NewMessage creates a new message with the current timestamp.
func NewMessage(msgType MessageType, payload any) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// JSON serializes the message to JSON bytes.
func (m Message) JSON() ([]byte, error) {
	return json.Marshal(m)
}

// ClientMessage is a command sent by a browser client.
type ClientMessage struct {
	Type MessageType `json:"type"`
}

// EventStartedPayload is the payload for event.started messages, sent when
// a plan's daily timer fires.
type EventStartedPayload struct {
	EventID     string            `json:"event_id"`
	PlanID      string            `json:"plan_id"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	DayOfWeek   int               `json:"day_of_week"`
	StartTime   string            `json:"start_time"`
	EndTime     string            `json:"end_time"`
	DurationSec int64             `json:"duration_sec"`
	Notes       map[string]string `json:"notes,omitempty"`
	FiredAt     time.Time         `json:"fired_at"`
}

// ScheduleChangedPayload is the payload for schedule.changed messages.
// Clients refetch whatever the property names.
type ScheduleChangedPayload struct {
	ScheduleID string `json:"schedule_id"`
	Property   string `json:"property"`
}

// FeedSyncPayload is the payload for feed.sync_completed messages.
type FeedSyncPayload struct {
	Source      string    `json:"source"`
	EventsFound int       `json:"events_found"`
	Created     int       `json:"created"`
	Updated     int       `json:"updated"`
	Removed     int       `json:"removed"`
	SyncedAt    time.Time `json:"synced_at"`
}

// FeedSyncErrorPayload is the payload for feed.sync_error messages.
type FeedSyncErrorPayload struct {
	Source  string `json:"source"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ErrorPayload is the payload for error messages.
type ErrorPayload struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	OriginalType string `json:"original_type,omitempty"`
}
