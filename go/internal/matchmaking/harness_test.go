package matchmaking

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/skirmish/go/internal/events"
	"github.com/mcdev12/skirmish/go/internal/models"
	"github.com/mcdev12/skirmish/go/internal/schedule"
	"github.com/mcdev12/skirmish/go/internal/session"
	"github.com/stretchr/testify/require"
)

type notification struct {
	recipients []models.ParticipantID
	key        string
	params     Params
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (n *recordingNotifier) Notify(recipients []models.ParticipantID, key string, params Params) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{
		recipients: append([]models.ParticipantID(nil), recipients...),
		key:        key,
		params:     params,
	})
}

// count returns how many notifications with key were sent.
func (n *recordingNotifier) count(key string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, s := range n.sent {
		if s.key == key {
			c++
		}
	}
	return c
}

// received returns how many notifications with key reached p.
func (n *recordingNotifier) received(p models.ParticipantID, key string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, s := range n.sent {
		if s.key != key {
			continue
		}
		for _, r := range s.recipients {
			if r == p {
				c++
			}
		}
	}
	return c
}

func (n *recordingNotifier) last(key string) (notification, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.sent) - 1; i >= 0; i-- {
		if n.sent[i].key == key {
			return n.sent[i], true
		}
	}
	return notification{}, false
}

type fakeActions struct {
	mu          sync.Mutex
	relocations map[models.ParticipantID][]models.Position
	resets      map[models.ParticipantID]int
	restores    map[models.ParticipantID]int
}

func newFakeActions() *fakeActions {
	return &fakeActions{
		relocations: make(map[models.ParticipantID][]models.Position),
		resets:      make(map[models.ParticipantID]int),
		restores:    make(map[models.ParticipantID]int),
	}
}

func (a *fakeActions) Relocate(id models.ParticipantID, pos models.Position) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.relocations[id] = append(a.relocations[id], pos)
}

func (a *fakeActions) ResetState(id models.ParticipantID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resets[id]++
}

func (a *fakeActions) SnapshotState(id models.ParticipantID) models.Snapshot {
	return models.Snapshot{Position: models.Position{World: "hub", X: 1}}
}

func (a *fakeActions) RestoreState(id models.ParticipantID, _ models.Snapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.restores[id]++
}

func (a *fakeActions) restoreCount(id models.ParticipantID) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.restores[id]
}

func (a *fakeActions) lastPosition(id models.ParticipantID) (models.Position, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	r := a.relocations[id]
	if len(r) == 0 {
		return models.Position{}, false
	}
	return r[len(r)-1], true
}

type fakeCatalog struct {
	mu     sync.Mutex
	arenas []models.Arena
}

func (c *fakeCatalog) ListAvailable(mode models.Mode) []models.Arena {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []models.Arena
	for _, a := range c.arenas {
		if a.Supports(mode) {
			out = append(out, a)
		}
	}
	return out
}

func (c *fakeCatalog) add(a models.Arena) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.arenas = append(c.arenas, a)
}

type recordingSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *recordingSink) Emit(e events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) types() []events.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]events.EventType, len(s.events))
	for i, e := range s.events {
		out[i] = e.Type
	}
	return out
}

// orderedRandom keeps join order and always picks the first candidate.
type orderedRandom struct{}

func (orderedRandom) Intn(int) int                { return 0 }
func (orderedRandom) Shuffle(int, func(i, j int)) {}

func testArena(name string, positions int, modes ...models.Mode) models.Arena {
	a := models.Arena{
		Name:        name,
		DisplayName: "Arena " + name,
		World:       name,
		Spectator:   &models.Position{World: name, Y: 120},
		Modes:       modes,
		Enabled:     true,
	}
	for i := 0; i < positions; i++ {
		a.StartPositions = append(a.StartPositions, models.Position{World: name, X: float64(i)})
	}
	return a
}

func testSettings() Settings {
	return Settings{
		Tick:               time.Second,
		LobbyCountdown:     5,
		AnnounceAt:         []int{5, 3, 1},
		MapsToVote:         3,
		WaitingTipInterval: 5 * time.Second,
		LobbySpawn:         &models.Position{World: "lobby"},
		CageCountdown:      3,
		MaxGameTime:        0,
		EndDelay:           3 * time.Second,
		Modes: []ModeSettings{
			{Mode: models.ModeSolo, TeamSize: 1, MinPlayers: 3, MaxPlayers: 12},
			{Mode: models.ModeDuos, TeamSize: 2, MinPlayers: 3, MaxPlayers: 16},
			{Mode: models.ModeSquads, TeamSize: 4, MinPlayers: 3, MaxPlayers: 16},
		},
	}
}

type harness struct {
	t        *testing.T
	sched    *schedule.Manual
	dir      *session.Directory
	notes    *recordingNotifier
	actions  *fakeActions
	catalog  *fakeCatalog
	sink     *recordingSink
	reg      *Registry
	settings Settings
}

func newHarness(t *testing.T, tweak ...func(*Settings)) *harness {
	t.Helper()
	settings := testSettings()
	for _, fn := range tweak {
		fn(&settings)
	}

	h := &harness{
		t:        t,
		sched:    schedule.NewManual(),
		dir:      session.NewDirectory(nil),
		notes:    &recordingNotifier{},
		actions:  newFakeActions(),
		catalog:  &fakeCatalog{},
		sink:     &recordingSink{},
		settings: settings,
	}
	h.catalog.add(testArena("a", 16, models.ModeSolo, models.ModeDuos, models.ModeSquads))
	h.catalog.add(testArena("b", 16, models.ModeSolo, models.ModeDuos, models.ModeSquads))

	reg, err := NewRegistry(settings, Deps{
		Directory: h.dir,
		Scheduler: h.sched,
		Actions:   h.actions,
		Notifier:  h.notes,
		Catalog:   h.catalog,
		Events:    h.sink,
		Random:    orderedRandom{},
	})
	require.NoError(t, err)
	h.reg = reg
	return h
}

func (h *harness) connect(ids ...models.ParticipantID) {
	h.t.Helper()
	for _, id := range ids {
		_, err := h.reg.Connect(context.Background(), id)
		require.NoError(h.t, err)
	}
}

func ids(n int) []models.ParticipantID {
	out := make([]models.ParticipantID, n)
	for i := range out {
		out[i] = models.ParticipantID(fmt.Sprintf("p%d", i+1))
	}
	return out
}

func (h *harness) join(mode models.Mode, ps ...models.ParticipantID) {
	h.t.Helper()
	for _, p := range ps {
		require.NoError(h.t, h.reg.JoinQueue(p, mode))
	}
}

// advanceSeconds steps the manual scheduler n seconds.
func (h *harness) advanceSeconds(n int) {
	h.sched.Advance(time.Duration(n) * time.Second)
}

// promote runs the lobby countdown to completion.
func (h *harness) promote() {
	h.advanceSeconds(h.settings.LobbyCountdown + 1)
}

// openCages runs the cage countdown to completion.
func (h *harness) openCages() {
	h.advanceSeconds(h.settings.CageCountdown + 1)
}

// startMatch connects, queues and promotes ps, returning the new match id.
func (h *harness) startMatch(mode models.Mode, ps ...models.ParticipantID) uuid.UUID {
	h.t.Helper()
	h.connect(ps...)
	h.join(mode, ps...)
	h.promote()
	return h.matchOf(ps[0])
}

func (h *harness) matchOf(p models.ParticipantID) uuid.UUID {
	h.t.Helper()
	v, ok := h.dir.Get(p)
	require.True(h.t, ok)
	require.NotNil(h.t, v.MatchID, "participant %s is not in a match", p)
	return *v.MatchID
}

func (h *harness) session(p models.ParticipantID) models.ParticipantView {
	h.t.Helper()
	v, ok := h.dir.Get(p)
	require.True(h.t, ok)
	return v
}

// requireExclusive checks that no session references both a queue and a match.
func (h *harness) requireExclusive() {
	h.t.Helper()
	for _, v := range h.dir.All() {
		switch v.State {
		case models.ParticipantStateIdle:
			require.Empty(h.t, v.Queue, v.ID)
			require.Nil(h.t, v.MatchID, v.ID)
		case models.ParticipantStateQueued:
			require.NotEmpty(h.t, v.Queue, v.ID)
			require.Nil(h.t, v.MatchID, v.ID)
		default:
			require.Empty(h.t, v.Queue, v.ID)
			require.NotNil(h.t, v.MatchID, v.ID)
		}
	}
}
