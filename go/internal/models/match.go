package models

import (
	"time"

	"github.com/google/uuid"
)

// MatchPhase defines the phase of a match. Phases only move forward.
type MatchPhase string

const (
	MatchPhaseCountdown MatchPhase = "COUNTDOWN"
	MatchPhaseActive    MatchPhase = "ACTIVE"
	MatchPhaseEnding    MatchPhase = "ENDING"
)

// MatchView is a read-only copy of a live match.
type MatchView struct {
	ID          uuid.UUID         `json:"id"`
	Mode        Mode              `json:"mode"`
	Arena       string            `json:"arena"`
	Phase       MatchPhase        `json:"phase"`
	Teams       [][]ParticipantID `json:"teams"`
	Alive       []ParticipantID   `json:"alive"`
	Spectators  []ParticipantID   `json:"spectators"`
	ElapsedSecs int               `json:"elapsed_secs"`
	StartedAt   time.Time         `json:"started_at"`
}

// QueueView is a read-only copy of a mode queue.
type QueueView struct {
	Mode         Mode            `json:"mode"`
	Members      []ParticipantID `json:"members"`
	MinPlayers   int             `json:"min_players"`
	MaxPlayers   int             `json:"max_players"`
	CountingDown bool            `json:"counting_down"`
	Remaining    int             `json:"remaining,omitempty"`
	Candidates   []string        `json:"candidates,omitempty"`
	Votes        map[string]int  `json:"votes,omitempty"`
}
