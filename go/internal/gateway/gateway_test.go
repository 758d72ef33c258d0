package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/skirmish/go/internal/events"
	"github.com/mcdev12/skirmish/go/internal/matchmaking"
	"github.com/mcdev12/skirmish/go/internal/models"
	"github.com/mcdev12/skirmish/go/internal/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMatchmaker struct {
	mu           sync.Mutex
	connected    map[models.ParticipantID]bool
	joined       map[models.ParticipantID]models.Mode
	disconnects  []models.ParticipantID
	joinErr      error
	voteAccepted bool
	eliminated   []models.ParticipantID
	deaths       [][2]models.ParticipantID
	match        models.MatchView
}

func newFakeMatchmaker() *fakeMatchmaker {
	return &fakeMatchmaker{
		connected: make(map[models.ParticipantID]bool),
		joined:    make(map[models.ParticipantID]models.Mode),
	}
}

func (f *fakeMatchmaker) Connect(_ context.Context, p models.ParticipantID) (models.ParticipantView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected[p] = true
	return models.ParticipantView{ID: p, State: models.ParticipantStateIdle}, nil
}

func (f *fakeMatchmaker) Disconnect(_ context.Context, p models.ParticipantID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.connected, p)
	f.disconnects = append(f.disconnects, p)
	return nil
}

func (f *fakeMatchmaker) JoinQueue(p models.ParticipantID, mode models.Mode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.joinErr != nil {
		return f.joinErr
	}
	if !f.connected[p] {
		return matchmaking.ErrUnknownParticipant
	}
	f.joined[p] = mode
	return nil
}

func (f *fakeMatchmaker) LeaveQueue(p models.ParticipantID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.joined[p]; !ok {
		return matchmaking.ErrNotQueued
	}
	delete(f.joined, p)
	return nil
}

func (f *fakeMatchmaker) Vote(p models.ParticipantID, arena string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.joined[p]; !ok {
		return false, matchmaking.ErrNotQueued
	}
	return f.voteAccepted, nil
}

func (f *fakeMatchmaker) Eliminate(p models.ParticipantID, notify bool) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.eliminated = append(f.eliminated, p)
	return true, nil
}

func (f *fakeMatchmaker) ReportDeath(victim, killer models.ParticipantID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deaths = append(f.deaths, [2]models.ParticipantID{victim, killer})
	return true, nil
}

func (f *fakeMatchmaker) HandleDeparture(p models.ParticipantID) (bool, error) {
	return false, matchmaking.ErrNotInMatch
}

func (f *fakeMatchmaker) DamageAllowed(p models.ParticipantID) bool {
	return p == "fighter"
}

func (f *fakeMatchmaker) Participant(p models.ParticipantID) (models.ParticipantView, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected[p] {
		return models.ParticipantView{}, false
	}
	v := models.ParticipantView{ID: p, State: models.ParticipantStateIdle}
	if mode, ok := f.joined[p]; ok {
		v.State = models.ParticipantStateQueued
		v.Queue = mode
	}
	return v, true
}

func (f *fakeMatchmaker) Queue(mode models.Mode) (models.QueueView, bool) {
	if mode != models.ModeSolo {
		return models.QueueView{}, false
	}
	return models.QueueView{Mode: mode, MinPlayers: 2, MaxPlayers: 12}, true
}

func (f *fakeMatchmaker) Queues() []models.QueueView {
	v, _ := f.Queue(models.ModeSolo)
	return []models.QueueView{v}
}

func (f *fakeMatchmaker) Match(id uuid.UUID) (models.MatchView, bool) {
	if id != f.match.ID {
		return models.MatchView{}, false
	}
	return f.match, true
}

func (f *fakeMatchmaker) Matches() []models.MatchView {
	return []models.MatchView{f.match}
}

func (f *fakeMatchmaker) isConnected(p models.ParticipantID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected[p]
}

func (f *fakeMatchmaker) joinedMode(p models.ParticipantID) (models.Mode, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.joined[p]
	return m, ok
}

type testGateway struct {
	mm      *fakeMatchmaker
	cm      *ConnectionManager
	tracker *world.Tracker
	svc     *Service
	server  *httptest.Server
}

func newTestGateway(t *testing.T) *testGateway {
	t.Helper()
	mm := newFakeMatchmaker()
	mm.match = models.MatchView{ID: uuid.New(), Mode: models.ModeSolo, Phase: models.MatchPhaseActive}

	cm := NewConnectionManager(DefaultConnectionConfig())
	tracker := world.NewTracker(cm)
	svc := NewService(cm, mm, tracker)

	ctx, cancel := context.WithCancel(context.Background())
	go cm.Start(ctx)

	mux := http.NewServeMux()
	svc.RegisterRoutes(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(func() {
		cancel()
		cm.Shutdown()
		server.Close()
	})
	return &testGateway{mm: mm, cm: cm, tracker: tracker, svc: svc, server: server}
}

func (g *testGateway) dial(t *testing.T, id string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(g.server.URL, "http") + "/ws?participant_id=" + id
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return g.cm.Connected(models.ParticipantID(id)) }, time.Second, 5*time.Millisecond)
	return conn
}

func newTestEvent() (events.Event, error) {
	id := uuid.New()
	return events.New(events.EventTypeMatchActive, models.ModeSolo, &id, events.MatchActivePayload{TimeLimitS: 600})
}

func readServerMessage(t *testing.T, conn *websocket.Conn) ServerMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg ServerMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestParseClientMessage(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    ClientMessageType
		wantErr bool
	}{
		{name: "join", input: `{"type":"join","mode":"duos"}`, want: ClientMessageJoin},
		{name: "join unknown mode", input: `{"type":"join","mode":"trios"}`, wantErr: true},
		{name: "leave", input: `{"type":"leave"}`, want: ClientMessageLeave},
		{name: "vote", input: `{"type":"vote","arena":"castle"}`, want: ClientMessageVote},
		{name: "vote without arena", input: `{"type":"vote"}`, wantErr: true},
		{name: "state", input: `{"type":"state","position":{"world":"lobby","x":1,"y":2,"z":3}}`, want: ClientMessageState},
		{name: "state without position", input: `{"type":"state"}`, wantErr: true},
		{name: "unknown type", input: `{"type":"teleport"}`, wantErr: true},
		{name: "not json", input: `join`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseClientMessage([]byte(tt.input))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, msg.Type)
		})
	}
}

func TestWebsocketRequiresParticipant(t *testing.T) {
	g := newTestGateway(t)
	resp, err := http.Get(g.server.URL + "/ws")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebsocketJoinAndNotify(t *testing.T) {
	g := newTestGateway(t)
	conn := g.dial(t, "alice")
	assert.True(t, g.mm.isConnected("alice"))

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: ClientMessageJoin, Mode: models.ModeDuos}))
	require.Eventually(t, func() bool {
		mode, ok := g.mm.joinedMode("alice")
		return ok && mode == models.ModeDuos
	}, time.Second, 5*time.Millisecond)

	g.cm.Notify([]models.ParticipantID{"alice"}, matchmaking.KeyQueueJoined, matchmaking.Params{"mode": "duos"})
	msg := readServerMessage(t, conn)
	assert.Equal(t, ServerMessageNotify, msg.Type)
	assert.Equal(t, matchmaking.KeyQueueJoined, msg.Key)
	assert.Equal(t, "duos", msg.Params["mode"])
}

func TestWebsocketRejectedVoteSendsError(t *testing.T) {
	g := newTestGateway(t)
	conn := g.dial(t, "bob")

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: ClientMessageVote, Arena: "castle"}))
	msg := readServerMessage(t, conn)
	assert.Equal(t, ServerMessageError, msg.Type)
	assert.Equal(t, matchmaking.KeyNotInQueue, msg.Key)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"fly"}`)))
	msg = readServerMessage(t, conn)
	assert.Equal(t, ServerMessageError, msg.Type)
	assert.Equal(t, ErrorKeyInvalidMessage, msg.Key)
}

func TestStateReportsReachTracker(t *testing.T) {
	g := newTestGateway(t)
	conn := g.dial(t, "carol")

	pos := models.Position{World: "lobby", X: 4, Y: 70, Z: 2}
	require.NoError(t, conn.WriteJSON(ClientMessage{
		Type:      ClientMessageState,
		Position:  &pos,
		Inventory: json.RawMessage(`{"apple":3}`),
	}))
	require.Eventually(t, func() bool {
		snap, ok := g.tracker.Get("carol")
		return ok && snap.Position == pos
	}, time.Second, 5*time.Millisecond)

	g.tracker.Relocate("carol", models.Position{World: "arena", X: 1})
	msg := readServerMessage(t, conn)
	assert.Equal(t, ServerMessageRelocate, msg.Type)
	require.NotNil(t, msg.Position)
	assert.Equal(t, "arena", msg.Position.World)
}

func TestClosingLastConnectionDisconnects(t *testing.T) {
	g := newTestGateway(t)
	first := g.dial(t, "dave")
	second := g.dial(t, "dave")
	require.Eventually(t, func() bool { return g.cm.Stats().Connections == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, g.cm.Stats().Participants)

	require.NoError(t, first.Close())
	require.Eventually(t, func() bool { return g.cm.Stats().Connections == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, g.mm.isConnected("dave"))

	require.NoError(t, second.Close())
	require.Eventually(t, func() bool { return !g.mm.isConnected("dave") }, time.Second, 5*time.Millisecond)
	assert.False(t, g.cm.Connected("dave"))
}

func TestPublishBroadcastsEvents(t *testing.T) {
	g := newTestGateway(t)
	a := g.dial(t, "erin")
	b := g.dial(t, "frank")

	e, err := newTestEvent()
	require.NoError(t, err)
	require.NoError(t, g.cm.Publish(context.Background(), e))

	for _, conn := range []*websocket.Conn{a, b} {
		msg := readServerMessage(t, conn)
		assert.Equal(t, ServerMessageEvent, msg.Type)
		require.NotNil(t, msg.Event)
		assert.Equal(t, e.ID, msg.Event.ID)
	}
}

func TestHTTPReadAPI(t *testing.T) {
	g := newTestGateway(t)
	g.dial(t, "gina")

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{name: "queues", path: "/api/queues", status: http.StatusOK},
		{name: "queue", path: "/api/queues/solo", status: http.StatusOK},
		{name: "unknown queue", path: "/api/queues/squads", status: http.StatusNotFound},
		{name: "matches", path: "/api/matches", status: http.StatusOK},
		{name: "match", path: "/api/matches/" + g.mm.match.ID.String(), status: http.StatusOK},
		{name: "bad match id", path: "/api/matches/nope", status: http.StatusBadRequest},
		{name: "unknown match", path: "/api/matches/" + uuid.NewString(), status: http.StatusNotFound},
		{name: "participant", path: "/api/participants/gina", status: http.StatusOK},
		{name: "unknown participant", path: "/api/participants/nobody", status: http.StatusNotFound},
		{name: "stats", path: "/ws/stats", status: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			mux := http.NewServeMux()
			g.svc.RegisterRoutes(mux)
			mux.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestHTTPDamageAllowed(t *testing.T) {
	g := newTestGateway(t)
	mux := http.NewServeMux()
	g.svc.RegisterRoutes(mux)

	for p, want := range map[string]bool{"fighter": true, "caged": false} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/participants/"+p+"/damage", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var body map[string]bool
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, want, body["allowed"], p)
	}
}

func TestHTTPParticipantView(t *testing.T) {
	g := newTestGateway(t)
	g.dial(t, "hank")
	mux := http.NewServeMux()
	g.svc.RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/join",
		bytes.NewBufferString(`{"participant_id":"hank","mode":"solo"}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	var view models.ParticipantView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&view))
	assert.Equal(t, models.ParticipantStateQueued, view.State)
	assert.Equal(t, models.ModeSolo, view.Queue)
}

func TestHTTPCommands(t *testing.T) {
	g := newTestGateway(t)
	mux := http.NewServeMux()
	g.svc.RegisterRoutes(mux)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{name: "join unknown participant", path: "/api/join", body: `{"participant_id":"zed","mode":"solo"}`, status: http.StatusNotFound},
		{name: "join bad mode", path: "/api/join", body: `{"participant_id":"zed","mode":"trios"}`, status: http.StatusBadRequest},
		{name: "join missing participant", path: "/api/join", body: `{"mode":"solo"}`, status: http.StatusBadRequest},
		{name: "leave not queued", path: "/api/leave", body: `{"participant_id":"zed"}`, status: http.StatusConflict},
		{name: "vote not queued", path: "/api/votes", body: `{"participant_id":"zed","arena":"castle"}`, status: http.StatusConflict},
		{name: "elimination", path: "/api/eliminations", body: `{"victim":"zed","notify":false}`, status: http.StatusOK},
		{name: "credited death", path: "/api/eliminations", body: `{"victim":"zed","killer":"yan"}`, status: http.StatusOK},
		{name: "elimination without victim", path: "/api/eliminations", body: `{}`, status: http.StatusBadRequest},
		{name: "departure outside match", path: "/api/departures", body: `{"participant_id":"zed"}`, status: http.StatusConflict},
		{name: "malformed body", path: "/api/departures", body: `{`, status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, tt.path, bytes.NewBufferString(tt.body)))
			assert.Equal(t, tt.status, rec.Code)
		})
	}

	assert.Equal(t, []models.ParticipantID{"zed"}, g.mm.eliminated)
	assert.Equal(t, [][2]models.ParticipantID{{"zed", "yan"}}, g.mm.deaths)
}

func TestErrorKeys(t *testing.T) {
	assert.Empty(t, errorKey(matchmaking.ErrQueueFull))
	assert.Empty(t, errorKey(matchmaking.ErrAlreadyQueued))
	assert.Equal(t, ErrorKeyUnknownMode, errorKey(matchmaking.ErrNoQueueForMode))
	assert.Equal(t, matchmaking.KeyShuttingDown, errorKey(matchmaking.ErrShuttingDown))
	assert.Equal(t, ErrorKeyInternal, errorKey(assert.AnError))
}

func TestOriginChecker(t *testing.T) {
	check := OriginChecker([]string{"https://play.example.com"})
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://play.example.com")
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, check(req))

	assert.True(t, OriginChecker([]string{"*"})(req))
	assert.True(t, OriginChecker(nil)(req))
}
