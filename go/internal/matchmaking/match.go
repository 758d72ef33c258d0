package matchmaking

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/skirmish/go/internal/countdown"
	"github.com/mcdev12/skirmish/go/internal/events"
	"github.com/mcdev12/skirmish/go/internal/models"
	"github.com/mcdev12/skirmish/go/internal/schedule"
	"github.com/rs/zerolog/log"
)

const (
	endReasonLastStanding = "last_standing"
	endReasonTeamStanding = "team_standing"
	endReasonNoSurvivors  = "no_survivors"
	endReasonTimeLimit    = "time_limit"
)

// Match is one running session. Phases only move forward:
// Countdown, then Active, then Ending. All state is guarded by mu.
type Match struct {
	id    uuid.UUID
	reg   *Registry
	mode  ModeSettings
	arena models.Arena

	randomMap  bool
	voteCounts map[string]int

	mu         sync.Mutex
	phase      models.MatchPhase
	teams      [][]models.ParticipantID
	teamOf     map[models.ParticipantID]int
	alive      map[models.ParticipantID]struct{}
	spectators map[models.ParticipantID]struct{}
	elapsed    int
	startedAt  time.Time

	cage     *countdown.Countdown
	clock    schedule.Handle
	teardown schedule.Handle
	finished bool
}

// newMatch shuffles the participants and splits them into teams of the mode's
// team size. A remainder forms the last, smaller team.
func newMatch(reg *Registry, mode ModeSettings, arena models.Arena, participants []models.ParticipantID) *Match {
	shuffled := append([]models.ParticipantID(nil), participants...)
	reg.deps.Random.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	m := &Match{
		reg:        reg,
		mode:       mode,
		arena:      arena,
		phase:      models.MatchPhaseCountdown,
		teams:      partition(shuffled, mode.TeamSize),
		teamOf:     make(map[models.ParticipantID]int, len(shuffled)),
		alive:      make(map[models.ParticipantID]struct{}, len(shuffled)),
		spectators: make(map[models.ParticipantID]struct{}),
	}
	for team, roster := range m.teams {
		for _, p := range roster {
			m.teamOf[p] = team
			if err := reg.deps.Directory.AssignTeam(p, team); err != nil {
				log.Warn().Err(err).Str("participant_id", string(p)).Msg("failed to assign team")
			}
		}
	}
	return m
}

func partition(ids []models.ParticipantID, size int) [][]models.ParticipantID {
	if size < 1 {
		size = 1
	}
	var teams [][]models.ParticipantID
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		teams = append(teams, append([]models.ParticipantID(nil), ids[start:end]...))
	}
	return teams
}

// ID returns the identifier assigned on promotion.
func (m *Match) ID() uuid.UUID { return m.id }

func (m *Match) locked(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn()
}

// placement returns every rostered participant, team by team.
func (m *Match) placement() []models.ParticipantID {
	var out []models.ParticipantID
	for _, roster := range m.teams {
		out = append(out, roster...)
	}
	return out
}

// participants returns everyone still in the match, alive or spectating.
func (m *Match) participants() []models.ParticipantID {
	var out []models.ParticipantID
	for _, p := range m.placement() {
		_, alive := m.alive[p]
		_, spectating := m.spectators[p]
		if alive || spectating {
			out = append(out, p)
		}
	}
	return out
}

// Start places every participant on its start position and begins the cage countdown.
func (m *Match) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	dir := m.reg.deps.Directory
	actions := m.reg.deps.Actions
	positions := m.arena.StartPositions
	m.startedAt = time.Now()

	for i, p := range m.placement() {
		if err := dir.EnterMatch(p, m.id); err != nil {
			log.Warn().Err(err).Str("match_id", m.id.String()).Str("participant_id", string(p)).Msg("participant could not enter match")
			continue
		}
		m.alive[p] = struct{}{}

		if i < len(positions) {
			actions.Relocate(p, positions[i])
		} else {
			log.Warn().
				Str("match_id", m.id.String()).
				Str("arena", m.arena.Name).
				Str("participant_id", string(p)).
				Int("start_positions", len(positions)).
				Msg("not enough start positions")
		}
		actions.ResetState(p)
	}

	m.reg.notify(m.participants(), KeyGameStarted, Params{"map": m.arena.Label(), "mode": string(m.mode.Mode)})

	settings := m.reg.settings
	m.cage = countdown.New(settings.CageCountdown, func(remaining int) {
		m.reg.notify(m.participants(), KeyCageOpening, Params{"time": remaining})
	}, m.activate)
	m.cage.Start(m.reg.deps.Scheduler, settings.Tick, m.locked)

	m.reg.emit(events.EventTypeMatchStarted, m.mode.Mode, &m.id, events.MatchStartedPayload{
		Arena:      m.arena.Name,
		Teams:      m.teams,
		RandomMap:  m.randomMap,
		CageSecs:   settings.CageCountdown,
		VoteCounts: m.voteCounts,
	})
	log.Info().
		Str("match_id", m.id.String()).
		Str("mode", string(m.mode.Mode)).
		Str("arena", m.arena.Name).
		Int("participants", len(m.alive)).
		Int("teams", len(m.teams)).
		Msg("match started")
}

// activate opens the cages when the cage countdown completes.
func (m *Match) activate() {
	if m.phase != models.MatchPhaseCountdown {
		return
	}
	m.phase = models.MatchPhaseActive
	m.reg.notify(m.participants(), KeyCagesOpened, nil)

	limit := m.reg.settings.MaxGameTime
	m.clock = m.reg.deps.Scheduler.Every(m.reg.settings.Tick, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.phase != models.MatchPhaseActive {
			return
		}
		m.elapsed++
		if limit > 0 && m.elapsed >= limit {
			m.reg.notify(m.participants(), KeyTimeLimit, nil)
			m.end(nil, nil, endReasonTimeLimit)
		}
	})

	m.reg.emit(events.EventTypeMatchActive, m.mode.Mode, &m.id, events.MatchActivePayload{
		Alive:      len(m.alive),
		TimeLimitS: limit,
	})
	log.Info().Str("match_id", m.id.String()).Int("alive", len(m.alive)).Msg("cages opened")

	// Departures during the cage countdown may already have decided the match.
	m.checkWin()
}

// Eliminate moves p from alive to spectating. It reports false when p was not alive.
func (m *Match) Eliminate(p models.ParticipantID, notify bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.eliminate(p, notify, nil)
}

// ReportDeath credits killer with a kill, when killer is part of this match,
// and eliminates victim with a broadcast.
func (m *Match) ReportDeath(victim, killer models.ParticipantID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, alive := m.alive[victim]; !alive {
		return false
	}
	var credited *models.ParticipantID
	if killer != "" && killer != victim && m.isParticipant(killer) {
		kills, err := m.reg.deps.Directory.AddKill(killer, m.id)
		if err != nil {
			log.Warn().Err(err).Str("match_id", m.id.String()).Str("participant_id", string(killer)).Msg("failed to credit kill")
		} else {
			credited = &killer
			m.reg.notify([]models.ParticipantID{killer}, KeyKill, Params{"kills": kills})
		}
	}
	return m.eliminate(victim, true, credited)
}

func (m *Match) eliminate(p models.ParticipantID, notify bool, killer *models.ParticipantID) bool {
	if _, alive := m.alive[p]; !alive {
		return false
	}
	delete(m.alive, p)
	m.spectators[p] = struct{}{}

	if err := m.reg.deps.Directory.Spectate(p, m.id); err != nil {
		log.Warn().Err(err).Str("match_id", m.id.String()).Str("participant_id", string(p)).Msg("session was not in match")
	}
	m.reg.deps.Actions.Relocate(p, m.arena.SpectatorPosition())

	remaining := len(m.alive)
	if notify {
		m.reg.notify(m.participants(), KeyPlayerEliminated, Params{"player": string(p), "remaining": remaining})
		m.reg.notify([]models.ParticipantID{p}, KeyYouEliminated, nil)
		m.reg.notify([]models.ParticipantID{p}, KeySpectatorMode, nil)
	}

	m.reg.emit(events.EventTypeParticipantEliminated, m.mode.Mode, &m.id, events.ParticipantEliminatedPayload{
		Participant: p,
		Killer:      killer,
		Remaining:   remaining,
	})
	log.Info().
		Str("match_id", m.id.String()).
		Str("participant_id", string(p)).
		Int("remaining", remaining).
		Msg("participant eliminated")

	m.checkWin()
	return true
}

// HandleDeparture removes p from the match. A departing alive participant
// counts as a death; the others get a quit notice instead of the elimination
// broadcast. A participant who is not disconnecting gets its saved state back.
func (m *Match) HandleDeparture(p models.ParticipantID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	dir := m.reg.deps.Directory
	_, wasAlive := m.alive[p]
	_, wasSpectating := m.spectators[p]
	if !wasAlive && !wasSpectating {
		return false
	}

	if wasAlive {
		delete(m.alive, p)
		if err := dir.Spectate(p, m.id); err != nil {
			log.Warn().Err(err).Str("match_id", m.id.String()).Str("participant_id", string(p)).Msg("session was not in match")
		}
	}
	delete(m.spectators, p)
	if err := dir.LeaveMatch(p, m.id); err != nil {
		log.Warn().Err(err).Str("match_id", m.id.String()).Str("participant_id", string(p)).Msg("failed to release session")
	}
	if snap, ok := dir.TakeSnapshot(p); ok && !dir.Disconnecting(p) {
		m.reg.deps.Actions.RestoreState(p, snap)
	}

	log.Info().
		Str("match_id", m.id.String()).
		Str("participant_id", string(p)).
		Bool("was_alive", wasAlive).
		Msg("participant departed")

	if wasAlive {
		m.reg.notify(m.participants(), KeyPlayerQuit, Params{"player": string(p), "remaining": len(m.alive)})
		m.reg.emit(events.EventTypeParticipantEliminated, m.mode.Mode, &m.id, events.ParticipantEliminatedPayload{
			Participant: p,
			Departed:    true,
			Remaining:   len(m.alive),
		})
		m.checkWin()
	}
	return true
}

// checkWin ends the match when at most one participant (solo) or one team is left.
func (m *Match) checkWin() {
	if m.phase != models.MatchPhaseActive {
		return
	}

	if m.mode.TeamSize <= 1 {
		switch len(m.alive) {
		case 0:
			m.end(nil, nil, endReasonNoSurvivors)
		case 1:
			for p := range m.alive {
				winner := p
				m.end(&winner, nil, endReasonLastStanding)
			}
		}
		return
	}

	teams := make(map[int]struct{})
	for p := range m.alive {
		teams[m.teamOf[p]] = struct{}{}
	}
	switch len(teams) {
	case 0:
		m.end(nil, nil, endReasonNoSurvivors)
	case 1:
		for team := range teams {
			winning := team
			m.end(nil, &winning, endReasonTeamStanding)
		}
	}
}

// end announces the result, credits wins and schedules teardown. Later calls are no-ops.
func (m *Match) end(winner *models.ParticipantID, team *int, reason string) {
	if m.phase == models.MatchPhaseEnding {
		return
	}
	m.phase = models.MatchPhaseEnding
	m.stopTimers()

	dir := m.reg.deps.Directory
	everyone := m.participants()
	var credited []models.ParticipantID

	switch {
	case winner != nil:
		m.reg.notify(everyone, KeyWinner, Params{"player": string(*winner)})
		credited = []models.ParticipantID{*winner}
	case team != nil:
		m.reg.notify(everyone, KeyTeamWinner, Params{"team": *team + 1})
		// Members who departed mid-match are no longer credited.
		for _, p := range m.teams[*team] {
			if m.isParticipant(p) {
				credited = append(credited, p)
			}
		}
	default:
		m.reg.notify(everyone, KeyNoWinner, nil)
	}
	for _, p := range credited {
		if err := dir.AddWin(p); err != nil {
			log.Warn().Err(err).Str("participant_id", string(p)).Msg("failed to credit win")
		}
	}
	m.reg.notify(everyone, KeyGameEnded, nil)

	m.reg.emit(events.EventTypeMatchEnded, m.mode.Mode, &m.id, events.MatchEndedPayload{
		Arena:       m.arena.Name,
		Winner:      winner,
		WinningTeam: team,
		Credited:    credited,
		Reason:      reason,
		ElapsedSecs: m.elapsed,
	})
	log.Info().
		Str("match_id", m.id.String()).
		Str("reason", reason).
		Int("elapsed_secs", m.elapsed).
		Msg("match ended")

	m.teardown = m.reg.deps.Scheduler.After(m.reg.settings.EndDelay, m.finish)
}

// finish returns every remaining participant to idle, restores their saved
// state and deregisters the match.
func (m *Match) finish() {
	m.mu.Lock()
	if m.finished {
		m.mu.Unlock()
		return
	}
	m.release()
	m.mu.Unlock()

	m.reg.Deregister(m)
}

// ForceEnd restores every participant immediately without any result accounting.
func (m *Match) ForceEnd() {
	m.mu.Lock()
	if m.finished {
		m.mu.Unlock()
		return
	}
	m.phase = models.MatchPhaseEnding
	m.stopTimers()
	m.release()
	m.mu.Unlock()

	log.Info().Str("match_id", m.id.String()).Msg("match force-ended")
	m.reg.Deregister(m)
}

func (m *Match) release() {
	m.finished = true
	if m.teardown != nil {
		m.teardown.Stop()
	}

	dir := m.reg.deps.Directory
	for _, p := range m.placement() {
		if err := dir.LeaveMatch(p, m.id); err != nil {
			continue
		}
		if snap, ok := dir.TakeSnapshot(p); ok {
			m.reg.deps.Actions.RestoreState(p, snap)
		}
	}
	m.alive = make(map[models.ParticipantID]struct{})
	m.spectators = make(map[models.ParticipantID]struct{})
}

func (m *Match) stopTimers() {
	if m.cage != nil {
		m.cage.Cancel()
	}
	if m.clock != nil {
		m.clock.Stop()
	}
}

func (m *Match) isParticipant(p models.ParticipantID) bool {
	_, alive := m.alive[p]
	_, spectating := m.spectators[p]
	return alive || spectating
}

// Phase returns the current phase.
func (m *Match) Phase() models.MatchPhase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// IsAlive reports whether p is still playing.
func (m *Match) IsAlive(p models.ParticipantID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.alive[p]
	return ok
}

// View returns a snapshot of the match.
func (m *Match) View() models.MatchView {
	m.mu.Lock()
	defer m.mu.Unlock()

	v := models.MatchView{
		ID:          m.id,
		Mode:        m.mode.Mode,
		Arena:       m.arena.Name,
		Phase:       m.phase,
		ElapsedSecs: m.elapsed,
		StartedAt:   m.startedAt,
		Alive:       sortedIDs(m.alive),
		Spectators:  sortedIDs(m.spectators),
	}
	for _, roster := range m.teams {
		v.Teams = append(v.Teams, append([]models.ParticipantID(nil), roster...))
	}
	return v
}

func sortedIDs(set map[models.ParticipantID]struct{}) []models.ParticipantID {
	out := make([]models.ParticipantID, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
