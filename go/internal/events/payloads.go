package events

import "github.com/mcdev12/skirmish/go/internal/models"

// QueueCountdownStartedPayload is the payload for a QueueCountdownStarted event
type QueueCountdownStartedPayload struct {
	Participants []models.ParticipantID `json:"participants"`
	Seconds      int                    `json:"seconds"`
}

// QueueCountdownCancelledPayload is the payload for a QueueCountdownCancelled event
type QueueCountdownCancelledPayload struct {
	Participants []models.ParticipantID `json:"participants"`
	Remaining    int                    `json:"remaining"`
}

// PromotionFailedPayload is the payload for a PromotionFailed event
type PromotionFailedPayload struct {
	Evicted []models.ParticipantID `json:"evicted"`
	Reason  string                 `json:"reason"`
}

// MatchStartedPayload is the payload for a MatchStarted event
type MatchStartedPayload struct {
	Arena      string                   `json:"arena"`
	Teams      [][]models.ParticipantID `json:"teams"`
	RandomMap  bool                     `json:"random_map"`
	CageSecs   int                      `json:"cage_secs"`
	VoteCounts map[string]int           `json:"vote_counts,omitempty"`
}

// MatchActivePayload is the payload for a MatchActive event
type MatchActivePayload struct {
	Alive      int `json:"alive"`
	TimeLimitS int `json:"time_limit_sec,omitempty"`
}

// ParticipantEliminatedPayload is the payload for a ParticipantEliminated event
type ParticipantEliminatedPayload struct {
	Participant models.ParticipantID  `json:"participant"`
	Killer      *models.ParticipantID `json:"killer,omitempty"`
	Departed    bool                  `json:"departed"`
	Remaining   int                   `json:"remaining"`
}

// MatchEndedPayload is the payload for a MatchEnded event
type MatchEndedPayload struct {
	Arena       string                 `json:"arena"`
	Winner      *models.ParticipantID  `json:"winner,omitempty"`
	WinningTeam *int                   `json:"winning_team,omitempty"`
	Credited    []models.ParticipantID `json:"credited,omitempty"`
	Reason      string                 `json:"reason"`
	ElapsedSecs int                    `json:"elapsed_secs"`
}
