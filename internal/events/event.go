package events

import (
	"encoding/json"
	"time"
)

type EventType string

const (
	EventFileImported EventType = "FILE_IMPORTED"
	EventFileDeleted  EventType = "FILE_DELETED"
)

type Event struct {
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"`
}

func NewEvent(eventType EventType, payload interface{}) (*Event, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		Type:      eventType,
		Payload:   payloadBytes,
		Timestamp: time.Now().UnixMilli(),
	}, nil
}

// Publisher accepts events for fan-out. Publishing never blocks the caller.
type Publisher interface {
	Publish(evt *Event)
}

// Discard is a Publisher that drops every event.
type Discard struct{}

func (Discard) Publish(*Event) {}
