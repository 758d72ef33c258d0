package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/skirmish/go/internal/matchmaking"
	"github.com/mcdev12/skirmish/go/internal/models"
	"github.com/mcdev12/skirmish/go/internal/session"
	"github.com/mcdev12/skirmish/go/internal/world"
	"github.com/rs/zerolog/log"
)

// Matchmaker is the part of the matchmaking registry the gateway drives.
type Matchmaker interface {
	Connect(ctx context.Context, p models.ParticipantID) (models.ParticipantView, error)
	Disconnect(ctx context.Context, p models.ParticipantID) error
	JoinQueue(p models.ParticipantID, mode models.Mode) error
	LeaveQueue(p models.ParticipantID) error
	Vote(p models.ParticipantID, arena string) (bool, error)
	Eliminate(p models.ParticipantID, notify bool) (bool, error)
	ReportDeath(victim, killer models.ParticipantID) (bool, error)
	HandleDeparture(p models.ParticipantID) (bool, error)
	DamageAllowed(p models.ParticipantID) bool
	Participant(p models.ParticipantID) (models.ParticipantView, bool)
	Queue(mode models.Mode) (models.QueueView, bool)
	Queues() []models.QueueView
	Match(id uuid.UUID) (models.MatchView, bool)
	Matches() []models.MatchView
}

// Service connects websocket clients to the matchmaking engine and serves the
// HTTP API.
type Service struct {
	connections *ConnectionManager
	matchmaker  Matchmaker
	tracker     *world.Tracker

	disconnectTimeout time.Duration
}

// NewService creates the gateway service and installs it as the connection
// manager's client handler.
func NewService(cm *ConnectionManager, mm Matchmaker, tracker *world.Tracker) *Service {
	s := &Service{
		connections:       cm,
		matchmaker:        mm,
		tracker:           tracker,
		disconnectTimeout: 5 * time.Second,
	}
	cm.SetHandler(s)
	return s
}

// Start delivers outbound messages until ctx is done, then closes every
// connection.
func (s *Service) Start(ctx context.Context) {
	log.Info().Msg("starting gateway service")
	s.connections.Start(ctx)
	s.connections.Shutdown()
}

// HandleMessage dispatches a client request.
func (s *Service) HandleMessage(ctx context.Context, id models.ParticipantID, msg ClientMessage) {
	switch msg.Type {
	case ClientMessageJoin:
		if err := s.matchmaker.JoinQueue(id, msg.Mode); err != nil {
			s.reject(id, err)
		}
	case ClientMessageLeave:
		if err := s.matchmaker.LeaveQueue(id); err != nil {
			// the registry already told the participant
			log.Debug().Err(err).Str("participant_id", string(id)).Msg("leave rejected")
		}
	case ClientMessageVote:
		ok, err := s.matchmaker.Vote(id, msg.Arena)
		if err != nil {
			s.reject(id, err)
			return
		}
		if !ok {
			s.connections.SendError(id, ErrorKeyInvalidVote, map[string]any{"arena": msg.Arena})
		}
	case ClientMessageState:
		s.tracker.Report(id, models.Snapshot{Position: *msg.Position, Inventory: msg.Inventory})
	}
}

// HandleClosed disconnects a participant whose last connection closed.
func (s *Service) HandleClosed(id models.ParticipantID) {
	ctx, cancel := context.WithTimeout(context.Background(), s.disconnectTimeout)
	defer cancel()

	if err := s.matchmaker.Disconnect(ctx, id); err != nil {
		log.Error().Err(err).Str("participant_id", string(id)).Msg("failed to disconnect participant")
	}
	s.tracker.Forget(id)
}

func (s *Service) reject(id models.ParticipantID, err error) {
	key := errorKey(err)
	log.Debug().Err(err).Str("participant_id", string(id)).Str("key", key).Msg("request rejected")
	if key == "" {
		return
	}
	s.connections.SendError(id, key, nil)
}

// errorKey maps a matchmaking error to the key sent to the client. Errors the
// registry already notified about map to "".
func errorKey(err error) string {
	switch {
	case errors.Is(err, matchmaking.ErrAlreadyQueued),
		errors.Is(err, matchmaking.ErrAlreadyInMatch),
		errors.Is(err, matchmaking.ErrQueueFull),
		errors.Is(err, session.ErrDisconnecting):
		return ""
	case errors.Is(err, matchmaking.ErrNoQueueForMode):
		return ErrorKeyUnknownMode
	case errors.Is(err, matchmaking.ErrNotQueued):
		return matchmaking.KeyNotInQueue
	case errors.Is(err, matchmaking.ErrShuttingDown):
		return matchmaking.KeyShuttingDown
	default:
		return ErrorKeyInternal
	}
}
