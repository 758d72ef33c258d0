package stats

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/skirmish/go/internal/events"
	"github.com/rs/zerolog/log"
)

// ResultWriter persists match outcomes.
type ResultWriter interface {
	RecordResult(ctx context.Context, res MatchResult) error
}

// Recorder is an event publisher that stores every MatchEnded event as a
// match result. Other event types are ignored.
type Recorder struct {
	results ResultWriter
}

func NewRecorder(results ResultWriter) *Recorder {
	return &Recorder{results: results}
}

func (r *Recorder) Publish(ctx context.Context, event events.Event) error {
	if event.Type != events.EventTypeMatchEnded {
		return nil
	}

	res, err := resultFromEvent(event)
	if err != nil {
		// retrying will not fix a malformed payload
		log.Error().Err(err).Str("event_id", event.ID).Msg("dropping unreadable match result")
		return nil
	}
	if err := r.results.RecordResult(ctx, res); err != nil {
		return fmt.Errorf("record match %s: %w", res.MatchID, err)
	}
	log.Debug().
		Str("match_id", res.MatchID.String()).
		Str("reason", res.Reason).
		Msg("match result recorded")
	return nil
}

func (r *Recorder) Close() error { return nil }

func resultFromEvent(event events.Event) (MatchResult, error) {
	matchID, err := uuid.Parse(event.MatchID)
	if err != nil {
		return MatchResult{}, fmt.Errorf("invalid match id %q: %w", event.MatchID, err)
	}
	payload, err := events.ParsePayload(event)
	if err != nil {
		return MatchResult{}, err
	}
	ended, ok := payload.(*events.MatchEndedPayload)
	if !ok {
		return MatchResult{}, fmt.Errorf("unexpected payload %T", payload)
	}
	return MatchResult{
		MatchID:     matchID,
		Mode:        event.Mode,
		Arena:       ended.Arena,
		Winner:      ended.Winner,
		WinningTeam: ended.WinningTeam,
		Credited:    ended.Credited,
		Reason:      ended.Reason,
		ElapsedSecs: ended.ElapsedSecs,
		EndedAt:     event.Timestamp,
	}, nil
}
