package relay

import (
	"context"
	"errors"

	"github.com/mcdev12/skirmish/go/internal/events"
	"github.com/rs/zerolog/log"
)

// Publisher delivers lifecycle events to a downstream system.
type Publisher interface {
	Publish(ctx context.Context, event events.Event) error
	Close() error
}

// LogPublisher writes events to the structured log. Used when no bus is configured.
type LogPublisher struct{}

func NewLogPublisher() *LogPublisher {
	return &LogPublisher{}
}

func (p *LogPublisher) Publish(ctx context.Context, event events.Event) error {
	log.Info().
		Str("event_id", event.ID).
		Str("event_type", string(event.Type)).
		Str("mode", string(event.Mode)).
		Str("match_id", event.MatchID).
		RawJSON("data", event.Data).
		Msg("lifecycle event")
	return nil
}

func (p *LogPublisher) Close() error { return nil }

// FanOut publishes every event to each publisher in turn. All publishers are
// attempted; their errors are joined.
type FanOut []Publisher

func (f FanOut) Publish(ctx context.Context, event events.Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f FanOut) Close() error {
	var errs []error
	for _, p := range f {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
