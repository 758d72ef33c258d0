package models

import (
	"encoding/json"

	"github.com/google/uuid"
)

// ParticipantID identifies a connected participant.
type ParticipantID string

// ParticipantState defines where a participant is in the lifecycle.
type ParticipantState string

const (
	ParticipantStateIdle       ParticipantState = "IDLE"
	ParticipantStateQueued     ParticipantState = "QUEUED"
	ParticipantStateInMatch    ParticipantState = "IN_MATCH"
	ParticipantStateSpectating ParticipantState = "SPECTATING"
)

// Stats holds lifetime counters plus the kill count of the current match.
type Stats struct {
	Kills       int `json:"kills"`
	TotalKills  int `json:"total_kills"`
	Deaths      int `json:"deaths"`
	Wins        int `json:"wins"`
	GamesPlayed int `json:"games_played"`
}

// Snapshot is the saved world state of a participant. Opaque to matchmaking.
type Snapshot struct {
	Position  Position        `json:"position"`
	Inventory json.RawMessage `json:"inventory,omitempty"`
}

// ParticipantView is a read-only copy of a participant session.
type ParticipantView struct {
	ID      ParticipantID    `json:"id"`
	State   ParticipantState `json:"state"`
	Queue   Mode             `json:"queue,omitempty"`
	MatchID *uuid.UUID       `json:"match_id,omitempty"`
	Team    *int             `json:"team,omitempty"`
	Stats   Stats            `json:"stats"`
}
