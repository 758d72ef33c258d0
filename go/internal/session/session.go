package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/mcdev12/skirmish/go/internal/models"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnknownParticipant = errors.New("unknown participant")
	ErrDisconnecting      = errors.New("participant is disconnecting")
	ErrStillActive        = errors.New("participant is still queued or in a match")
	ErrAlreadyQueued      = errors.New("participant already queued")
	ErrAlreadyInMatch     = errors.New("participant already in a match")
	ErrNotQueued          = errors.New("participant not queued")
	ErrNotInMatch         = errors.New("participant not in this match")
)

// StatsStore loads and saves lifetime counters.
type StatsStore interface {
	Load(ctx context.Context, id models.ParticipantID) (models.Stats, error)
	Save(ctx context.Context, id models.ParticipantID, stats models.Stats) error
}

type participant struct {
	id       models.ParticipantID
	state    models.ParticipantState
	queue    models.Mode
	match    *uuid.UUID
	team     *int
	stats    models.Stats
	snapshot *models.Snapshot
	closing  bool
}

func (p *participant) view() models.ParticipantView {
	v := models.ParticipantView{
		ID:    p.id,
		State: p.state,
		Queue: p.queue,
		Stats: p.stats,
	}
	if p.match != nil {
		id := *p.match
		v.MatchID = &id
	}
	if p.team != nil {
		team := *p.team
		v.Team = &team
	}
	return v
}

func (p *participant) inMatch(matchID uuid.UUID) bool {
	return p.match != nil && *p.match == matchID
}

// Directory holds one session per connected participant. Every transition
// keeps state, queue reference and match reference consistent under one lock:
// Queued has only a queue reference, InMatch and Spectating only a match reference.
type Directory struct {
	mu       sync.RWMutex
	sessions map[models.ParticipantID]*participant
	store    StatsStore
}

// NewDirectory creates an empty directory. store may be nil.
func NewDirectory(store StatsStore) *Directory {
	return &Directory{
		sessions: make(map[models.ParticipantID]*participant),
		store:    store,
	}
}

// Connect creates an idle session, loading lifetime stats from the store when
// one is configured. Connecting an existing participant returns its session.
func (d *Directory) Connect(ctx context.Context, id models.ParticipantID) (models.ParticipantView, error) {
	if id == "" {
		return models.ParticipantView{}, fmt.Errorf("participant id is required")
	}

	d.mu.RLock()
	existing, ok := d.sessions[id]
	if ok {
		v := existing.view()
		d.mu.RUnlock()
		return v, nil
	}
	d.mu.RUnlock()

	var stats models.Stats
	if d.store != nil {
		loaded, err := d.store.Load(ctx, id)
		if err != nil {
			return models.ParticipantView{}, fmt.Errorf("failed to load stats: %w", err)
		}
		stats = loaded
		stats.Kills = 0
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if existing, ok := d.sessions[id]; ok {
		return existing.view(), nil
	}
	p := &participant{id: id, state: models.ParticipantStateIdle, stats: stats}
	d.sessions[id] = p

	log.Info().Str("participant_id", string(id)).Msg("participant connected")
	return p.view(), nil
}

// BeginDisconnect marks the session as closing so it can no longer enter a queue.
func (d *Directory) BeginDisconnect(id models.ParticipantID) (models.ParticipantView, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.sessions[id]
	if !ok {
		return models.ParticipantView{}, ErrUnknownParticipant
	}
	p.closing = true
	return p.view(), nil
}

// Disconnecting reports whether BeginDisconnect was called for id. Unknown
// participants count as disconnecting.
func (d *Directory) Disconnecting(id models.ParticipantID) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.sessions[id]
	return !ok || p.closing
}

// Disconnect destroys an idle session and persists its lifetime stats.
func (d *Directory) Disconnect(ctx context.Context, id models.ParticipantID) error {
	d.mu.Lock()
	p, ok := d.sessions[id]
	if !ok {
		d.mu.Unlock()
		return ErrUnknownParticipant
	}
	if p.state != models.ParticipantStateIdle {
		d.mu.Unlock()
		return ErrStillActive
	}
	delete(d.sessions, id)
	stats := p.stats
	d.mu.Unlock()

	log.Info().Str("participant_id", string(id)).Msg("participant disconnected")

	if d.store == nil {
		return nil
	}
	if err := d.store.Save(ctx, id, stats); err != nil {
		return fmt.Errorf("failed to save stats: %w", err)
	}
	return nil
}

// Get returns a copy of the session.
func (d *Directory) Get(id models.ParticipantID) (models.ParticipantView, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.sessions[id]
	if !ok {
		return models.ParticipantView{}, false
	}
	return p.view(), true
}

// All returns every session ordered by participant id.
func (d *Directory) All() []models.ParticipantView {
	d.mu.RLock()
	out := make([]models.ParticipantView, 0, len(d.sessions))
	for _, p := range d.sessions {
		out = append(out, p.view())
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of connected participants.
func (d *Directory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.sessions)
}

// EnterQueue moves an idle participant into the queue for mode.
func (d *Directory) EnterQueue(id models.ParticipantID, mode models.Mode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.sessions[id]
	if !ok {
		return ErrUnknownParticipant
	}
	switch p.state {
	case models.ParticipantStateQueued:
		return ErrAlreadyQueued
	case models.ParticipantStateInMatch, models.ParticipantStateSpectating:
		return ErrAlreadyInMatch
	}
	if p.closing {
		return ErrDisconnecting
	}
	p.state = models.ParticipantStateQueued
	p.queue = mode
	return nil
}

// LeaveQueue returns a participant queued for mode to idle.
func (d *Directory) LeaveQueue(id models.ParticipantID, mode models.Mode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.sessions[id]
	if !ok {
		return ErrUnknownParticipant
	}
	if p.state != models.ParticipantStateQueued || p.queue != mode {
		return ErrNotQueued
	}
	p.state = models.ParticipantStateIdle
	p.queue = ""
	p.team = nil
	return nil
}

// AssignTeam records the team a queued participant will play for.
func (d *Directory) AssignTeam(id models.ParticipantID, team int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.sessions[id]
	if !ok {
		return ErrUnknownParticipant
	}
	p.team = &team
	return nil
}

// EnterMatch moves a queued participant into the match. The queue reference is
// dropped, the per-match kill count reset and games played incremented.
func (d *Directory) EnterMatch(id models.ParticipantID, matchID uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.sessions[id]
	if !ok {
		return ErrUnknownParticipant
	}
	switch p.state {
	case models.ParticipantStateInMatch, models.ParticipantStateSpectating:
		return ErrAlreadyInMatch
	case models.ParticipantStateIdle:
		return ErrNotQueued
	}
	p.state = models.ParticipantStateInMatch
	p.queue = ""
	p.match = &matchID
	p.stats.Kills = 0
	p.stats.GamesPlayed++
	return nil
}

// Spectate moves an in-match participant to spectating and counts a death.
func (d *Directory) Spectate(id models.ParticipantID, matchID uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.sessions[id]
	if !ok {
		return ErrUnknownParticipant
	}
	if p.state != models.ParticipantStateInMatch || !p.inMatch(matchID) {
		return ErrNotInMatch
	}
	p.state = models.ParticipantStateSpectating
	p.stats.Deaths++
	return nil
}

// LeaveMatch returns a participant of the match to idle.
func (d *Directory) LeaveMatch(id models.ParticipantID, matchID uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.sessions[id]
	if !ok {
		return ErrUnknownParticipant
	}
	if !p.inMatch(matchID) {
		return ErrNotInMatch
	}
	p.state = models.ParticipantStateIdle
	p.match = nil
	p.team = nil
	return nil
}

// AddKill credits a kill in the match and returns the participant's kill count.
func (d *Directory) AddKill(id models.ParticipantID, matchID uuid.UUID) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.sessions[id]
	if !ok {
		return 0, ErrUnknownParticipant
	}
	if !p.inMatch(matchID) {
		return 0, ErrNotInMatch
	}
	p.stats.Kills++
	p.stats.TotalKills++
	return p.stats.Kills, nil
}

// AddWin increments the lifetime win counter.
func (d *Directory) AddWin(id models.ParticipantID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.sessions[id]
	if !ok {
		return ErrUnknownParticipant
	}
	p.stats.Wins++
	return nil
}

// SaveSnapshot stores the participant's pre-match world state.
func (d *Directory) SaveSnapshot(id models.ParticipantID, snap models.Snapshot) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.sessions[id]
	if !ok {
		return ErrUnknownParticipant
	}
	p.snapshot = &snap
	return nil
}

// TakeSnapshot returns and clears the saved snapshot.
func (d *Directory) TakeSnapshot(id models.ParticipantID) (models.Snapshot, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.sessions[id]
	if !ok || p.snapshot == nil {
		return models.Snapshot{}, false
	}
	snap := *p.snapshot
	p.snapshot = nil
	return snap, true
}
