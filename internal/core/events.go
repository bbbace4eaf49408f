package core

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies a debate lifecycle event.
type EventType string

const (
	EventRoundStarted      EventType = "round.started"
	EventResponseSubmitted EventType = "response.submitted"
	EventRoundCompleted    EventType = "round.completed"
	EventDebateCompleted   EventType = "debate.completed"
	EventDebateError       EventType = "debate.error"
)

// Event is a transient notification published to debate subscribers.
type Event struct {
	ID        string    `json:"id"`
	DebateID  string    `json:"debate_id"`
	Type      EventType `json:"type"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent builds an event for the given debate.
func NewEvent(debateID string, eventType EventType, payload any) *Event {
	return &Event{
		ID:        uuid.New().String(),
		DebateID:  debateID,
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}
