package session

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/mcdev12/skirmish/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	stats   map[models.ParticipantID]models.Stats
	loadErr error
	saved   int
}

func (m *memStore) Load(_ context.Context, id models.ParticipantID) (models.Stats, error) {
	if m.loadErr != nil {
		return models.Stats{}, m.loadErr
	}
	return m.stats[id], nil
}

func (m *memStore) Save(_ context.Context, id models.ParticipantID, stats models.Stats) error {
	m.stats[id] = stats
	m.saved++
	return nil
}

// requireConsistent checks that the queue and match references agree with the state.
func requireConsistent(t *testing.T, v models.ParticipantView) {
	t.Helper()
	switch v.State {
	case models.ParticipantStateIdle:
		require.Empty(t, v.Queue)
		require.Nil(t, v.MatchID)
	case models.ParticipantStateQueued:
		require.NotEmpty(t, v.Queue)
		require.Nil(t, v.MatchID)
	case models.ParticipantStateInMatch, models.ParticipantStateSpectating:
		require.Empty(t, v.Queue)
		require.NotNil(t, v.MatchID)
	}
}

func TestLifecycleTransitions(t *testing.T) {
	ctx := context.Background()
	d := NewDirectory(nil)
	_, err := d.Connect(ctx, "p1")
	require.NoError(t, err)

	require.NoError(t, d.EnterQueue("p1", models.ModeSolo))
	v, _ := d.Get("p1")
	assert.Equal(t, models.ParticipantStateQueued, v.State)
	requireConsistent(t, v)

	assert.ErrorIs(t, d.EnterQueue("p1", models.ModeDuos), ErrAlreadyQueued)

	matchID := uuid.New()
	require.NoError(t, d.AssignTeam("p1", 2))
	require.NoError(t, d.EnterMatch("p1", matchID))
	v, _ = d.Get("p1")
	assert.Equal(t, models.ParticipantStateInMatch, v.State)
	assert.Equal(t, 1, v.Stats.GamesPlayed)
	require.NotNil(t, v.Team)
	assert.Equal(t, 2, *v.Team)
	requireConsistent(t, v)

	assert.ErrorIs(t, d.EnterQueue("p1", models.ModeSolo), ErrAlreadyInMatch)

	kills, err := d.AddKill("p1", matchID)
	require.NoError(t, err)
	assert.Equal(t, 1, kills)

	require.NoError(t, d.Spectate("p1", matchID))
	assert.ErrorIs(t, d.Spectate("p1", matchID), ErrNotInMatch)
	v, _ = d.Get("p1")
	assert.Equal(t, models.ParticipantStateSpectating, v.State)
	assert.Equal(t, 1, v.Stats.Deaths)
	requireConsistent(t, v)

	assert.ErrorIs(t, d.LeaveMatch("p1", uuid.New()), ErrNotInMatch)
	require.NoError(t, d.LeaveMatch("p1", matchID))
	v, _ = d.Get("p1")
	assert.Equal(t, models.ParticipantStateIdle, v.State)
	assert.Nil(t, v.Team)
	requireConsistent(t, v)
}

func TestLeaveQueueRequiresMatchingMode(t *testing.T) {
	d := NewDirectory(nil)
	_, err := d.Connect(context.Background(), "p1")
	require.NoError(t, err)

	assert.ErrorIs(t, d.LeaveQueue("p1", models.ModeSolo), ErrNotQueued)
	require.NoError(t, d.EnterQueue("p1", models.ModeSolo))
	assert.ErrorIs(t, d.LeaveQueue("p1", models.ModeDuos), ErrNotQueued)
	require.NoError(t, d.LeaveQueue("p1", models.ModeSolo))
	assert.ErrorIs(t, d.LeaveQueue("unknown", models.ModeSolo), ErrUnknownParticipant)
}

func TestEnterMatchRequiresQueued(t *testing.T) {
	d := NewDirectory(nil)
	_, err := d.Connect(context.Background(), "p1")
	require.NoError(t, err)

	assert.ErrorIs(t, d.EnterMatch("p1", uuid.New()), ErrNotQueued)
}

func TestSnapshotTakenOnce(t *testing.T) {
	d := NewDirectory(nil)
	_, err := d.Connect(context.Background(), "p1")
	require.NoError(t, err)

	snap := models.Snapshot{Position: models.Position{World: "lobby", X: 1}}
	require.NoError(t, d.SaveSnapshot("p1", snap))

	got, ok := d.TakeSnapshot("p1")
	require.True(t, ok)
	assert.Equal(t, snap, got)

	_, ok = d.TakeSnapshot("p1")
	assert.False(t, ok)
}

func TestDisconnectPersistsStats(t *testing.T) {
	ctx := context.Background()
	store := &memStore{stats: map[models.ParticipantID]models.Stats{
		"p1": {Wins: 4, GamesPlayed: 9, Kills: 3},
	}}
	d := NewDirectory(store)

	v, err := d.Connect(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 4, v.Stats.Wins)
	assert.Equal(t, 0, v.Stats.Kills)

	require.NoError(t, d.EnterQueue("p1", models.ModeSolo))
	assert.ErrorIs(t, d.Disconnect(ctx, "p1"), ErrStillActive)

	require.NoError(t, d.LeaveQueue("p1", models.ModeSolo))
	require.NoError(t, d.AddWin("p1"))
	require.NoError(t, d.Disconnect(ctx, "p1"))

	assert.Equal(t, 1, store.saved)
	assert.Equal(t, 5, store.stats["p1"].Wins)
	_, ok := d.Get("p1")
	assert.False(t, ok)
	assert.ErrorIs(t, d.Disconnect(ctx, "p1"), ErrUnknownParticipant)
}

func TestConnectLoadFailure(t *testing.T) {
	d := NewDirectory(&memStore{loadErr: errors.New("db down")})
	_, err := d.Connect(context.Background(), "p1")
	require.Error(t, err)
	assert.Equal(t, 0, d.Count())
}

func TestConnectIsIdempotent(t *testing.T) {
	ctx := context.Background()
	d := NewDirectory(nil)
	_, err := d.Connect(ctx, "p1")
	require.NoError(t, err)
	require.NoError(t, d.EnterQueue("p1", models.ModeSolo))

	v, err := d.Connect(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, models.ParticipantStateQueued, v.State)

	_, err = d.Connect(ctx, "")
	require.Error(t, err)
}

func TestBeginDisconnectBlocksQueueing(t *testing.T) {
	d := NewDirectory(nil)
	_, err := d.Connect(context.Background(), "p1")
	require.NoError(t, err)

	_, err = d.BeginDisconnect("p1")
	require.NoError(t, err)
	assert.ErrorIs(t, d.EnterQueue("p1", models.ModeSolo), ErrDisconnecting)
}

func TestDisconnecting(t *testing.T) {
	d := NewDirectory(nil)
	_, err := d.Connect(context.Background(), "p1")
	require.NoError(t, err)
	assert.False(t, d.Disconnecting("p1"))

	_, err = d.BeginDisconnect("p1")
	require.NoError(t, err)
	assert.True(t, d.Disconnecting("p1"))
	assert.True(t, d.Disconnecting("ghost"))
}

func TestAllSorted(t *testing.T) {
	ctx := context.Background()
	d := NewDirectory(nil)
	for _, id := range []models.ParticipantID{"c", "a", "b"} {
		_, err := d.Connect(ctx, id)
		require.NoError(t, err)
	}
	all := d.All()
	require.Len(t, all, 3)
	assert.Equal(t, models.ParticipantID("a"), all[0].ID)
	assert.Equal(t, models.ParticipantID("c"), all[2].ID)
}
