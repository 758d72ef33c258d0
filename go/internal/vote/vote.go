package vote

import (
	"math/rand"
	"sync"
	"time"

	"github.com/mcdev12/skirmish/go/internal/models"
)

// Random picks an index in [0, n).
type Random interface {
	Intn(n int) int
}

// LockedRandom is a time-seeded source that is safe for concurrent use.
type LockedRandom struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewRandom returns a LockedRandom seeded from the current time.
func NewRandom() *LockedRandom {
	return &LockedRandom{r: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (l *LockedRandom) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Intn(n)
}

// Shuffle permutes n elements through swap.
func (l *LockedRandom) Shuffle(n int, swap func(i, j int)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.r.Shuffle(n, swap)
}

// Engine resolves which arena a queue will use. The candidate list is fixed at
// construction and every participant votes at most once.
//
// An Engine is not safe for concurrent use; the owning queue serializes access.
type Engine struct {
	candidates []models.Arena
	index      map[string]int
	votes      map[models.ParticipantID]string
	rnd        Random
}

// NewEngine creates an engine over at most limit candidates, keeping their order.
func NewEngine(candidates []models.Arena, limit int, rnd Random) *Engine {
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	if rnd == nil {
		rnd = NewRandom()
	}

	e := &Engine{
		candidates: append([]models.Arena(nil), candidates...),
		index:      make(map[string]int, len(candidates)),
		votes:      make(map[models.ParticipantID]string),
		rnd:        rnd,
	}
	for i, c := range e.candidates {
		if _, dup := e.index[c.Name]; !dup {
			e.index[c.Name] = i
		}
	}
	return e
}

// Vote records participant's choice. It returns false when the participant
// already voted or choice is not a candidate.
func (e *Engine) Vote(participant models.ParticipantID, choice string) bool {
	if _, voted := e.votes[participant]; voted {
		return false
	}
	if _, ok := e.index[choice]; !ok {
		return false
	}
	e.votes[participant] = choice
	return true
}

// Withdraw drops participant's vote, if any.
func (e *Engine) Withdraw(participant models.ParticipantID) bool {
	if _, voted := e.votes[participant]; !voted {
		return false
	}
	delete(e.votes, participant)
	return true
}

// WinningChoice returns the most voted candidate, breaking ties by candidate
// order. With no votes a uniformly random candidate is returned. ok is false
// only when there are no candidates.
func (e *Engine) WinningChoice() (models.Arena, bool) {
	if len(e.candidates) == 0 {
		return models.Arena{}, false
	}
	if len(e.votes) == 0 {
		return e.candidates[e.rnd.Intn(len(e.candidates))], true
	}

	tally := make([]int, len(e.candidates))
	for _, choice := range e.votes {
		tally[e.index[choice]]++
	}
	best := 0
	for i := 1; i < len(tally); i++ {
		if tally[i] > tally[best] {
			best = i
		}
	}
	return e.candidates[best], true
}

// VoteCounts returns the tally per candidate name, including zero counts.
func (e *Engine) VoteCounts() map[string]int {
	counts := make(map[string]int, len(e.candidates))
	for _, c := range e.candidates {
		counts[c.Name] = 0
	}
	for _, choice := range e.votes {
		counts[choice]++
	}
	return counts
}

// HasVoted reports whether participant voted.
func (e *Engine) HasVoted(participant models.ParticipantID) bool {
	_, ok := e.votes[participant]
	return ok
}

// VoteOf returns participant's choice.
func (e *Engine) VoteOf(participant models.ParticipantID) (string, bool) {
	choice, ok := e.votes[participant]
	return choice, ok
}

// TotalVotes returns the number of votes cast.
func (e *Engine) TotalVotes() int { return len(e.votes) }

// Candidates returns a copy of the candidate list.
func (e *Engine) Candidates() []models.Arena {
	return append([]models.Arena(nil), e.candidates...)
}

// CandidateNames returns the candidate names in order.
func (e *Engine) CandidateNames() []string {
	names := make([]string, len(e.candidates))
	for i, c := range e.candidates {
		names[i] = c.Name
	}
	return names
}
