package matchmaking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/mcdev12/skirmish/go/internal/events"
	"github.com/mcdev12/skirmish/go/internal/models"
	"github.com/mcdev12/skirmish/go/internal/session"
	"github.com/mcdev12/skirmish/go/internal/vote"
	"github.com/rs/zerolog/log"
)

// Registry owns one queue per enabled mode and every live match. It routes
// participant requests to the queue or match their session points at.
//
// Lock order is queue, then match, then session directory. The registry lock
// is only ever held briefly and never while calling into a queue or match.
type Registry struct {
	settings Settings
	deps     Deps
	queues   map[models.Mode]*Queue

	mu      sync.RWMutex
	matches map[uuid.UUID]*Match
	closed  bool
}

// NewRegistry creates a registry with a queue for every mode in settings.
func NewRegistry(settings Settings, deps Deps) (*Registry, error) {
	if err := deps.validate(); err != nil {
		return nil, fmt.Errorf("invalid matchmaking deps: %w", err)
	}
	if deps.Random == nil {
		deps.Random = vote.NewRandom()
	}
	if len(settings.Modes) == 0 {
		return nil, fmt.Errorf("no mode configured")
	}

	r := &Registry{
		settings: settings,
		deps:     deps,
		queues:   make(map[models.Mode]*Queue, len(settings.Modes)),
		matches:  make(map[uuid.UUID]*Match),
	}
	for _, mode := range settings.Modes {
		if mode.TeamSize < 1 || mode.MinPlayers < 1 || mode.MinPlayers > mode.MaxPlayers {
			return nil, fmt.Errorf("invalid limits for mode %s", mode.Mode)
		}
		r.queues[mode.Mode] = newQueue(r, mode)
		log.Info().
			Str("mode", string(mode.Mode)).
			Int("team_size", mode.TeamSize).
			Int("min_players", mode.MinPlayers).
			Int("max_players", mode.MaxPlayers).
			Msg("queue enabled")
	}
	return r, nil
}

func (r *Registry) notify(recipients []models.ParticipantID, key string, params Params) {
	if len(recipients) == 0 {
		return
	}
	r.deps.Notifier.Notify(recipients, key, params)
}

func (r *Registry) emit(typ events.EventType, mode models.Mode, matchID *uuid.UUID, payload any) {
	if r.deps.Events == nil {
		return
	}
	e, err := events.New(typ, mode, matchID, payload)
	if err != nil {
		log.Error().Err(err).Str("type", string(typ)).Msg("failed to build event")
		return
	}
	r.deps.Events.Emit(e)
}

// Connect registers a participant session.
func (r *Registry) Connect(ctx context.Context, p models.ParticipantID) (models.ParticipantView, error) {
	return r.deps.Directory.Connect(ctx, p)
}

// JoinQueue puts p in the queue for mode.
func (r *Registry) JoinQueue(p models.ParticipantID, mode models.Mode) error {
	v, ok := r.deps.Directory.Get(p)
	if !ok {
		return ErrUnknownParticipant
	}
	switch v.State {
	case models.ParticipantStateQueued:
		r.notify([]models.ParticipantID{p}, KeyAlreadyInQueue, nil)
		return ErrAlreadyQueued
	case models.ParticipantStateInMatch, models.ParticipantStateSpectating:
		r.notify([]models.ParticipantID{p}, KeyAlreadyInGame, nil)
		return ErrAlreadyInMatch
	}

	q, ok := r.queues[mode]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoQueueForMode, mode)
	}
	if err := q.AddParticipant(p); err != nil {
		if errors.Is(err, ErrQueueFull) {
			r.notify([]models.ParticipantID{p}, KeyQueueFull, Params{"mode": string(mode)})
		}
		return err
	}
	return nil
}

// LeaveQueue removes p from its queue and restores its saved state.
func (r *Registry) LeaveQueue(p models.ParticipantID) error {
	q, err := r.queueOf(p)
	if err != nil {
		r.notify([]models.ParticipantID{p}, KeyNotInQueue, nil)
		return err
	}
	return q.RemoveParticipant(p, true)
}

// Vote records p's arena choice in its queue.
func (r *Registry) Vote(p models.ParticipantID, arena string) (bool, error) {
	q, err := r.queueOf(p)
	if err != nil {
		return false, err
	}
	return q.Vote(p, arena)
}

// Eliminate eliminates p from its match. Eliminating a spectator is a no-op.
func (r *Registry) Eliminate(p models.ParticipantID, notify bool) (bool, error) {
	m, err := r.matchOf(p)
	if err != nil {
		return false, err
	}
	return m.Eliminate(p, notify), nil
}

// ReportDeath eliminates victim, crediting killer when it plays in the same match.
func (r *Registry) ReportDeath(victim, killer models.ParticipantID) (bool, error) {
	m, err := r.matchOf(victim)
	if err != nil {
		return false, err
	}
	return m.ReportDeath(victim, killer), nil
}

// HandleDeparture removes p from its match.
func (r *Registry) HandleDeparture(p models.ParticipantID) (bool, error) {
	m, err := r.matchOf(p)
	if err != nil {
		return false, err
	}
	return m.HandleDeparture(p), nil
}

// DamageAllowed reports whether damage against p should be processed. It is
// false while p's match is counting down or ending, and for spectators.
func (r *Registry) DamageAllowed(p models.ParticipantID) bool {
	m, err := r.matchOf(p)
	if err != nil {
		return true
	}
	return m.Phase() == models.MatchPhaseActive && m.IsAlive(p)
}

// Disconnect takes p out of its queue or match and destroys its session.
// A closing session cannot re-enter a queue, so the loop only repeats while a
// promotion moves p from its queue into a match.
func (r *Registry) Disconnect(ctx context.Context, p models.ParticipantID) error {
	if _, err := r.deps.Directory.BeginDisconnect(p); err != nil {
		return err
	}

	for {
		v, ok := r.deps.Directory.Get(p)
		if !ok {
			return ErrUnknownParticipant
		}
		if v.State == models.ParticipantStateIdle {
			return r.deps.Directory.Disconnect(ctx, p)
		}
		if err := ctx.Err(); err != nil {
			log.Warn().
				Str("participant_id", string(p)).
				Str("state", string(v.State)).
				Msg("giving up on disconnect, session left behind")
			return fmt.Errorf("disconnect %s while %s: %w", p, v.State, err)
		}

		switch v.State {
		case models.ParticipantStateQueued:
			if q, ok := r.queues[v.Queue]; ok {
				_ = q.RemoveParticipant(p, false)
			} else {
				_ = r.deps.Directory.LeaveQueue(p, v.Queue)
			}
		default:
			if m, err := r.matchOf(p); err == nil && m.HandleDeparture(p) {
				continue
			}
			if v.MatchID != nil {
				_ = r.deps.Directory.LeaveMatch(p, *v.MatchID)
			} else {
				log.Warn().
					Str("participant_id", string(p)).
					Str("state", string(v.State)).
					Msg("session has no match reference, session left behind")
				return fmt.Errorf("disconnect %s: %w", p, session.ErrStillActive)
			}
		}
	}
}

// PromoteToMatch assigns m an identifier, registers it and starts it.
func (r *Registry) PromoteToMatch(m *Match) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrShuttingDown
	}
	m.id = uuid.New()
	r.matches[m.id] = m
	r.mu.Unlock()

	m.Start()
	return nil
}

// Deregister drops m from the live matches.
func (r *Registry) Deregister(m *Match) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.matches[m.id]; ok && current == m {
		delete(r.matches, m.id)
		log.Info().Str("match_id", m.id.String()).Int("live_matches", len(r.matches)).Msg("match deregistered")
	}
}

// Shutdown stops every queue timer and force-ends every live match.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	r.closed = true
	live := make([]*Match, 0, len(r.matches))
	for _, m := range r.matches {
		live = append(live, m)
	}
	r.mu.Unlock()

	for _, q := range r.queues {
		q.shutdown()
	}
	for _, m := range live {
		m.ForceEnd()
	}
	log.Info().Int("matches", len(live)).Msg("matchmaking shut down")
}

func (r *Registry) queueOf(p models.ParticipantID) (*Queue, error) {
	v, ok := r.deps.Directory.Get(p)
	if !ok {
		return nil, ErrUnknownParticipant
	}
	if v.State != models.ParticipantStateQueued {
		return nil, ErrNotQueued
	}
	q, ok := r.queues[v.Queue]
	if !ok {
		return nil, ErrNotQueued
	}
	return q, nil
}

func (r *Registry) matchOf(p models.ParticipantID) (*Match, error) {
	v, ok := r.deps.Directory.Get(p)
	if !ok {
		return nil, ErrUnknownParticipant
	}
	if v.MatchID == nil {
		return nil, ErrNotInMatch
	}
	r.mu.RLock()
	m, ok := r.matches[*v.MatchID]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrMatchNotFound
	}
	return m, nil
}

// Participant returns p's session.
func (r *Registry) Participant(p models.ParticipantID) (models.ParticipantView, bool) {
	return r.deps.Directory.Get(p)
}

// Modes returns the enabled modes in configuration order.
func (r *Registry) Modes() []models.Mode {
	out := make([]models.Mode, 0, len(r.settings.Modes))
	for _, m := range r.settings.Modes {
		out = append(out, m.Mode)
	}
	return out
}

// Queue returns a snapshot of the queue for mode.
func (r *Registry) Queue(mode models.Mode) (models.QueueView, bool) {
	q, ok := r.queues[mode]
	if !ok {
		return models.QueueView{}, false
	}
	return q.View(), true
}

// Queues returns a snapshot of every queue.
func (r *Registry) Queues() []models.QueueView {
	out := make([]models.QueueView, 0, len(r.queues))
	for _, mode := range r.Modes() {
		out = append(out, r.queues[mode].View())
	}
	return out
}

// Match returns a snapshot of a live match.
func (r *Registry) Match(id uuid.UUID) (models.MatchView, bool) {
	r.mu.RLock()
	m, ok := r.matches[id]
	r.mu.RUnlock()
	if !ok {
		return models.MatchView{}, false
	}
	return m.View(), true
}

// Matches returns a snapshot of every live match, oldest first.
func (r *Registry) Matches() []models.MatchView {
	r.mu.RLock()
	live := make([]*Match, 0, len(r.matches))
	for _, m := range r.matches {
		live = append(live, m)
	}
	r.mu.RUnlock()

	out := make([]models.MatchView, 0, len(live))
	for _, m := range live {
		out = append(out, m.View())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// LiveMatches returns the number of registered matches.
func (r *Registry) LiveMatches() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.matches)
}
