package world

import (
	"bytes"
	"encoding/json"
	"sync"

	"github.com/mcdev12/skirmish/go/internal/models"
	"github.com/rs/zerolog/log"
)

// CommandType identifies a world command pushed to a participant's client.
type CommandType string

const (
	CommandRelocate CommandType = "relocate"
	CommandReset    CommandType = "reset"
	CommandRestore  CommandType = "restore"
)

// Command is a world side effect the client must apply.
type Command struct {
	Type     CommandType      `json:"type"`
	Position *models.Position `json:"position,omitempty"`
	State    *models.Snapshot `json:"state,omitempty"`
}

// Commander delivers commands to a participant. Implementations must not block.
type Commander interface {
	Command(id models.ParticipantID, cmd Command)
}

// Tracker keeps the last state each participant reported and turns matchmaking
// side effects into client commands.
type Tracker struct {
	commander Commander

	mu     sync.RWMutex
	states map[models.ParticipantID]models.Snapshot
}

func NewTracker(commander Commander) *Tracker {
	return &Tracker{
		commander: commander,
		states:    make(map[models.ParticipantID]models.Snapshot),
	}
}

// Report stores the state a client reported for id.
func (t *Tracker) Report(id models.ParticipantID, snap models.Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.states[id] = clone(snap)
}

// Forget drops everything known about id.
func (t *Tracker) Forget(id models.ParticipantID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.states, id)
}

// Get returns the last known state of id.
func (t *Tracker) Get(id models.ParticipantID) (models.Snapshot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	snap, ok := t.states[id]
	if !ok {
		return models.Snapshot{}, false
	}
	return clone(snap), true
}

func (t *Tracker) Relocate(id models.ParticipantID, pos models.Position) {
	t.mu.Lock()
	snap := t.states[id]
	snap.Position = pos
	t.states[id] = snap
	t.mu.Unlock()

	t.commander.Command(id, Command{Type: CommandRelocate, Position: &pos})
}

// ResetState clears the inventory of id. The position is kept.
func (t *Tracker) ResetState(id models.ParticipantID) {
	t.mu.Lock()
	snap := t.states[id]
	snap.Inventory = nil
	t.states[id] = snap
	t.mu.Unlock()

	t.commander.Command(id, Command{Type: CommandReset})
}

func (t *Tracker) SnapshotState(id models.ParticipantID) models.Snapshot {
	snap, ok := t.Get(id)
	if !ok {
		log.Debug().Str("participant_id", string(id)).Msg("no reported state to snapshot")
	}
	return snap
}

func (t *Tracker) RestoreState(id models.ParticipantID, snap models.Snapshot) {
	snap = clone(snap)
	t.mu.Lock()
	t.states[id] = snap
	t.mu.Unlock()

	t.commander.Command(id, Command{Type: CommandRestore, State: &snap})
}

func clone(snap models.Snapshot) models.Snapshot {
	if len(snap.Inventory) > 0 {
		snap.Inventory = json.RawMessage(bytes.Clone(snap.Inventory))
	}
	return snap
}
