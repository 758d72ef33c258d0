package matchmaking

import (
	"github.com/mcdev12/skirmish/go/internal/events"
	"github.com/mcdev12/skirmish/go/internal/models"
)

// PlayerActions applies world side effects to a participant.
type PlayerActions interface {
	Relocate(id models.ParticipantID, pos models.Position)
	ResetState(id models.ParticipantID)
	SnapshotState(id models.ParticipantID) models.Snapshot
	RestoreState(id models.ParticipantID, snap models.Snapshot)
}

// Params are the template parameters of a notification.
type Params map[string]any

// Notifier delivers user-visible messages identified by key.
type Notifier interface {
	Notify(recipients []models.ParticipantID, key string, params Params)
}

// Catalog lists the arenas a mode can be played on.
type Catalog interface {
	ListAvailable(mode models.Mode) []models.Arena
}

// EventSink receives lifecycle events. Emit must not block.
type EventSink interface {
	Emit(e events.Event)
}

// Random is the source used for team shuffles and the no-vote map pick.
type Random interface {
	Intn(n int) int
	Shuffle(n int, swap func(i, j int))
}
