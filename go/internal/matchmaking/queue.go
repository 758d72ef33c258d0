package matchmaking

import (
	"sync"

	"github.com/mcdev12/skirmish/go/internal/countdown"
	"github.com/mcdev12/skirmish/go/internal/events"
	"github.com/mcdev12/skirmish/go/internal/models"
	"github.com/mcdev12/skirmish/go/internal/schedule"
	"github.com/mcdev12/skirmish/go/internal/vote"
	"github.com/rs/zerolog/log"
)

// Queue is the waiting pool of one mode. All state is guarded by mu, which
// every timer callback takes before touching it.
type Queue struct {
	reg  *Registry
	mode ModeSettings

	mu         sync.Mutex
	members    []models.ParticipantID
	votes      *vote.Engine
	countdown  *countdown.Countdown
	waiting    schedule.Handle
	waitingGen uint64
	closed     bool
}

func newQueue(reg *Registry, mode ModeSettings) *Queue {
	return &Queue{reg: reg, mode: mode}
}

// Mode returns the mode this queue fills.
func (q *Queue) Mode() models.Mode { return q.mode.Mode }

func (q *Queue) locked(fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	fn()
}

// AddParticipant queues p, snapshots and resets its world state, and
// re-evaluates whether the start countdown should run.
func (q *Queue) AddParticipant(p models.ParticipantID) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrShuttingDown
	}
	if len(q.members) >= q.mode.MaxPlayers {
		return ErrQueueFull
	}
	if err := q.reg.deps.Directory.EnterQueue(p, q.mode.Mode); err != nil {
		return err
	}
	q.members = append(q.members, p)

	actions := q.reg.deps.Actions
	if err := q.reg.deps.Directory.SaveSnapshot(p, actions.SnapshotState(p)); err != nil {
		log.Warn().Err(err).Str("participant_id", string(p)).Msg("failed to save snapshot")
	}
	actions.ResetState(p)
	if spawn := q.reg.settings.LobbySpawn; spawn != nil {
		actions.Relocate(p, *spawn)
	}

	q.reg.notify([]models.ParticipantID{p}, KeyQueueJoined, Params{"mode": string(q.mode.Mode)})
	q.initVoting(p)

	log.Info().
		Str("participant_id", string(p)).
		Str("mode", string(q.mode.Mode)).
		Int("members", len(q.members)).
		Msg("participant joined queue")

	q.checkStart()
	return nil
}

// initVoting creates the vote engine the first time candidates exist and tells
// the joiner what can be voted on.
func (q *Queue) initVoting(joiner models.ParticipantID) {
	if q.votes != nil {
		q.reg.notify([]models.ParticipantID{joiner}, KeyMapVotingStarted, Params{"maps": q.votes.CandidateNames()})
		return
	}
	if q.ensureVotes() {
		q.reg.notify(q.membersCopy(), KeyMapVotingStarted, Params{"maps": q.votes.CandidateNames()})
	}
}

// ensureVotes creates the vote engine once the catalog has candidates for the
// mode and reports whether it did so now.
func (q *Queue) ensureVotes() bool {
	if q.votes != nil {
		return false
	}
	candidates := q.reg.deps.Catalog.ListAvailable(q.mode.Mode)
	if len(candidates) == 0 {
		return false
	}
	q.votes = vote.NewEngine(candidates, q.reg.settings.MapsToVote, q.reg.deps.Random)
	return true
}

// RemoveParticipant drops p from the queue, optionally restoring its saved
// world state. Falling below the minimum cancels a running countdown.
func (q *Queue) RemoveParticipant(p models.ParticipantID, restore bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.isMember(p) {
		return ErrNotQueued
	}
	q.removeLocked(p, restore)
	q.reg.notify([]models.ParticipantID{p}, KeyQueueLeft, Params{"mode": string(q.mode.Mode)})

	log.Info().
		Str("participant_id", string(p)).
		Str("mode", string(q.mode.Mode)).
		Int("members", len(q.members)).
		Msg("participant left queue")

	if len(q.members) < q.mode.MinPlayers && q.countdown != nil {
		q.countdown.Cancel()
		q.countdown = nil
	}
	if len(q.members) == 0 {
		q.stopWaiting()
		return nil
	}
	q.checkStart()
	return nil
}

func (q *Queue) removeLocked(p models.ParticipantID, restore bool) {
	for i, m := range q.members {
		if m == p {
			q.members = append(q.members[:i], q.members[i+1:]...)
			break
		}
	}
	if q.votes != nil {
		q.votes.Withdraw(p)
	}

	dir := q.reg.deps.Directory
	if err := dir.LeaveQueue(p, q.mode.Mode); err != nil {
		log.Warn().Err(err).Str("participant_id", string(p)).Msg("session was not queued")
	}
	if !restore {
		return
	}
	if snap, ok := dir.TakeSnapshot(p); ok {
		q.reg.deps.Actions.RestoreState(p, snap)
	}
}

// Vote records p's arena choice. It reports false when voting has not started,
// p already voted, or arena is not a candidate.
func (q *Queue) Vote(p models.ParticipantID, arena string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.isMember(p) {
		return false, ErrNotQueued
	}
	if q.votes == nil || !q.votes.Vote(p, arena) {
		return false, nil
	}
	q.reg.notify([]models.ParticipantID{p}, KeyVoted, Params{"map": arena})
	return true, nil
}

// checkStart keeps the waiting notification running below the minimum and
// starts the countdown once the minimum is reached.
func (q *Queue) checkStart() {
	if len(q.members) < q.mode.MinPlayers {
		q.startWaiting()
		return
	}
	if q.countdown != nil {
		return
	}

	q.stopWaiting()
	settings := q.reg.settings
	q.countdown = countdown.New(settings.LobbyCountdown, q.countdownTick, q.promote,
		countdown.WithCancel(q.countdownCancelled))
	q.countdown.Start(q.reg.deps.Scheduler, settings.Tick, q.locked)

	q.reg.emit(events.EventTypeQueueCountdownStarted, q.mode.Mode, nil, events.QueueCountdownStartedPayload{
		Participants: q.membersCopy(),
		Seconds:      settings.LobbyCountdown,
	})
	log.Info().
		Str("mode", string(q.mode.Mode)).
		Int("members", len(q.members)).
		Int("seconds", settings.LobbyCountdown).
		Msg("queue countdown started")
}

func (q *Queue) countdownTick(remaining int) {
	if q.reg.settings.announces(remaining) {
		q.reg.notify(q.membersCopy(), KeyGameStarting, Params{"time": remaining})
	}
}

func (q *Queue) countdownCancelled() {
	remaining := 0
	if q.countdown != nil {
		remaining = q.countdown.Remaining()
	}
	q.reg.notify(q.membersCopy(), KeyCountdownCancelled, Params{"current": len(q.members), "min": q.mode.MinPlayers})
	q.reg.emit(events.EventTypeQueueCountdownCancelled, q.mode.Mode, nil, events.QueueCountdownCancelledPayload{
		Participants: q.membersCopy(),
		Remaining:    remaining,
	})
	log.Info().Str("mode", string(q.mode.Mode)).Int("members", len(q.members)).Msg("queue countdown cancelled")
}

func (q *Queue) startWaiting() {
	if q.waiting != nil || len(q.members) == 0 {
		return
	}
	q.waitingGen++
	gen := q.waitingGen
	q.waiting = q.reg.deps.Scheduler.Every(q.reg.settings.WaitingTipInterval, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		if q.waiting == nil || q.waitingGen != gen {
			return
		}
		q.waitingTip()
	})
}

func (q *Queue) stopWaiting() {
	if q.waiting == nil {
		return
	}
	q.waiting.Stop()
	q.waiting = nil
}

func (q *Queue) waitingTip() {
	if len(q.members) == 0 {
		q.stopWaiting()
		return
	}
	q.reg.notify(q.membersCopy(), KeyWaitingForPlayers, Params{
		"current": len(q.members),
		"min":     q.mode.MinPlayers,
	})
}

// promote runs when the countdown completes. Without an arena every member is
// evicted and the queue stays usable; otherwise the members move into a new
// match and the queue starts a fresh cycle.
func (q *Queue) promote() {
	members := q.membersCopy()
	q.countdown = nil

	q.ensureVotes()
	var (
		chosen models.Arena
		ok     bool
	)
	if q.votes != nil {
		chosen, ok = q.votes.WinningChoice()
	}
	if !ok {
		log.Error().Str("mode", string(q.mode.Mode)).Int("members", len(members)).Msg("no arena available for queue")
		q.evictAll(KeyNoArenasAvailable, "no_arenas_available")
		return
	}

	randomMap := q.votes.TotalVotes() == 0
	if randomMap {
		q.reg.notify(members, KeyRandomMapSelected, Params{"map": chosen.Label()})
	} else {
		q.reg.notify(members, KeyMostVotedMap, Params{"map": chosen.Label()})
	}
	counts := q.votes.VoteCounts()

	m := newMatch(q.reg, q.mode, chosen, members)
	m.randomMap = randomMap
	m.voteCounts = counts

	if err := q.reg.PromoteToMatch(m); err != nil {
		log.Error().Err(err).Str("mode", string(q.mode.Mode)).Msg("failed to promote queue")
		q.evictAll(KeyShuttingDown, err.Error())
		return
	}
	q.reset()
}

// evictAll removes every member with a notification and resets the queue.
func (q *Queue) evictAll(key, reason string) {
	members := q.membersCopy()
	for _, p := range members {
		q.removeLocked(p, true)
	}
	q.reg.notify(members, key, Params{"mode": string(q.mode.Mode)})
	q.reg.emit(events.EventTypePromotionFailed, q.mode.Mode, nil, events.PromotionFailedPayload{
		Evicted: members,
		Reason:  reason,
	})
	q.reset()
}

// reset starts a new queue cycle.
func (q *Queue) reset() {
	q.members = nil
	q.votes = nil
	if q.countdown != nil {
		q.countdown.Cancel()
		q.countdown = nil
	}
	q.stopWaiting()
}

// shutdown cancels every timer owned by the queue. Members stay queued.
func (q *Queue) shutdown() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	if q.countdown != nil {
		q.countdown.Cancel()
		q.countdown = nil
	}
	q.stopWaiting()
}

func (q *Queue) isMember(p models.ParticipantID) bool {
	for _, m := range q.members {
		if m == p {
			return true
		}
	}
	return false
}

func (q *Queue) membersCopy() []models.ParticipantID {
	return append([]models.ParticipantID(nil), q.members...)
}

// View returns a snapshot of the queue.
func (q *Queue) View() models.QueueView {
	q.mu.Lock()
	defer q.mu.Unlock()

	v := models.QueueView{
		Mode:       q.mode.Mode,
		Members:    q.membersCopy(),
		MinPlayers: q.mode.MinPlayers,
		MaxPlayers: q.mode.MaxPlayers,
	}
	if q.countdown != nil && q.countdown.Running() {
		v.CountingDown = true
		v.Remaining = q.countdown.Remaining()
	}
	if q.votes != nil {
		v.Candidates = q.votes.CandidateNames()
		v.Votes = q.votes.VoteCounts()
	}
	return v
}

// Len returns the number of queued participants.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.members)
}
