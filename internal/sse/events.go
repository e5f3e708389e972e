// Package sse streams committed store changes to shelfd clients as
// Server-Sent Events.
package sse

import (
	"time"

	"github.com/cryptoshelf/shelfsync/internal/store"
)

// EventType is the SSE event name.
type EventType string

const (
	// EventConnected is the first event on every stream. Changes committed
	// after it was sent are delivered.
	EventConnected EventType = "connected"
	// EventChange carries one store.Change.
	EventChange EventType = "change"
	// EventHeartbeat keeps idle connections open.
	EventHeartbeat EventType = "heartbeat"
)

// Event is one message on the stream.
type Event struct {
	Timestamp time.Time
	Type      EventType
	// Change is set for EventChange.
	Change store.Change
}

// Table is the table an event concerns, or "" for stream-level events.
func (e Event) Table() store.Table {
	if e.Type != EventChange {
		return ""
	}
	return e.Change.Table
}

// payload is the JSON written in the data field.
func (e Event) payload() any {
	if e.Type == EventChange {
		return e.Change
	}
	return HeartbeatData{Timestamp: e.Timestamp}
}

// HeartbeatData is the payload of heartbeat events.
type HeartbeatData struct {
	Timestamp time.Time `json:"timestamp"`
}

// ConnectedData is the payload of the connected event.
type ConnectedData struct {
	ClientID string      `json:"client_id"`
	Table    store.Table `json:"table,omitempty"`
}

// NewChangeEvent wraps a committed change.
func NewChangeEvent(change store.Change) Event {
	at := change.At
	if at.IsZero() {
		at = time.Now()
	}
	return Event{Type: EventChange, Timestamp: at, Change: change}
}

// NewHeartbeatEvent creates a keepalive event.
func NewHeartbeatEvent() Event {
	return Event{Type: EventHeartbeat, Timestamp: time.Now()}
}
