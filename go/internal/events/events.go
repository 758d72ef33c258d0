package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/skirmish/go/internal/models"
)

// Event is the envelope for every lifecycle event published by the engine
type Event struct {
	ID        string          `json:"id"`                 // Event UUID
	Type      EventType       `json:"type"`               // Event type
	Mode      models.Mode     `json:"mode"`               // Queue or match mode
	MatchID   string          `json:"match_id,omitempty"` // Match UUID, empty for queue events
	Timestamp time.Time       `json:"timestamp"`          // Event creation time
	Data      json.RawMessage `json:"data"`               // Event-specific payload
}

// EventType represents the type of lifecycle event
type EventType string

const (
	EventTypeQueueCountdownStarted   EventType = "QueueCountdownStarted"
	EventTypeQueueCountdownCancelled EventType = "QueueCountdownCancelled"
	EventTypePromotionFailed         EventType = "PromotionFailed"
	EventTypeMatchStarted            EventType = "MatchStarted"
	EventTypeMatchActive             EventType = "MatchActive"
	EventTypeParticipantEliminated   EventType = "ParticipantEliminated"
	EventTypeMatchEnded              EventType = "MatchEnded"
)

// New builds an event with a fresh id, marshalling payload into Data.
func New(typ EventType, mode models.Mode, matchID *uuid.UUID, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal %s payload: %w", typ, err)
	}
	e := Event{
		ID:        uuid.NewString(),
		Type:      typ,
		Mode:      mode,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
	if matchID != nil {
		e.MatchID = matchID.String()
	}
	return e, nil
}

// ParsePayload parses event data into the appropriate payload struct
func ParsePayload(event Event) (any, error) {
	var target any
	switch event.Type {
	case EventTypeQueueCountdownStarted:
		target = &QueueCountdownStartedPayload{}
	case EventTypeQueueCountdownCancelled:
		target = &QueueCountdownCancelledPayload{}
	case EventTypePromotionFailed:
		target = &PromotionFailedPayload{}
	case EventTypeMatchStarted:
		target = &MatchStartedPayload{}
	case EventTypeMatchActive:
		target = &MatchActivePayload{}
	case EventTypeParticipantEliminated:
		target = &ParticipantEliminatedPayload{}
	case EventTypeMatchEnded:
		target = &MatchEndedPayload{}
	default:
		return nil, fmt.Errorf("unknown event type: %s", event.Type)
	}

	if err := json.Unmarshal(event.Data, target); err != nil {
		return nil, fmt.Errorf("failed to parse %s payload: %w", event.Type, err)
	}
	return target, nil
}
