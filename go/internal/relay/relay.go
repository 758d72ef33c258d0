package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mcdev12/skirmish/go/internal/events"
	"github.com/rs/zerolog/log"
)

type Config struct {
	BufferSize     int
	Workers        int
	MaxRetries     int
	RetryDelay     time.Duration
	PublishTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		BufferSize:     1000,
		Workers:        4,
		MaxRetries:     3,
		RetryDelay:     200 * time.Millisecond,
		PublishTimeout: 5 * time.Second,
	}
}

// Relay takes events from the engine without blocking and publishes them from
// a worker pool. Events arriving while the buffer is full are dropped.
type Relay struct {
	publisher Publisher
	config    Config
	metrics   *Metrics

	eventCh chan events.Event

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(publisher Publisher, cfg Config) *Relay {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.BufferSize < 1 {
		cfg.BufferSize = 1
	}
	return &Relay{
		publisher: publisher,
		config:    cfg,
		metrics:   &Metrics{},
		eventCh:   make(chan events.Event, cfg.BufferSize),
	}
}

// Emit queues an event for publishing. It never blocks.
func (r *Relay) Emit(e events.Event) {
	select {
	case r.eventCh <- e:
		r.metrics.emitted.Add(1)
	default:
		r.metrics.dropped.Add(1)
		log.Warn().Str("event_id", e.ID).Str("event_type", string(e.Type)).Msg("relay buffer full, dropping event")
	}
}

func (r *Relay) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("relay already running")
	}
	r.running = true

	ctx, r.cancel = context.WithCancel(ctx)
	for i := 0; i < r.config.Workers; i++ {
		r.wg.Add(1)
		go r.worker(ctx, i)
	}

	log.Info().
		Int("workers", r.config.Workers).
		Int("buffer", r.config.BufferSize).
		Msg("event relay started")
	return nil
}

// Stop publishes what is already buffered, then stops the workers and closes the publisher.
func (r *Relay) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return fmt.Errorf("relay not running")
	}
	r.running = false
	r.mu.Unlock()

	r.drain()
	r.cancel()
	r.wg.Wait()

	log.Info().
		Int64("published", r.metrics.published.Load()).
		Int64("failed", r.metrics.failed.Load()).
		Int64("dropped", r.metrics.dropped.Load()).
		Msg("event relay stopped")
	return r.publisher.Close()
}

func (r *Relay) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.PublishTimeout)
	defer cancel()
	for {
		select {
		case e := <-r.eventCh:
			r.handle(ctx, e)
		default:
			return
		}
	}
}

func (r *Relay) worker(ctx context.Context, id int) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Int("worker_id", id).Msg("relay worker shutting down")
			return
		case e := <-r.eventCh:
			r.handle(ctx, e)
		}
	}
}

func (r *Relay) handle(ctx context.Context, e events.Event) {
	ctx, cancel := context.WithTimeout(ctx, r.config.PublishTimeout)
	defer cancel()

	if err := r.publishWithRetry(ctx, e); err != nil {
		r.metrics.failed.Add(1)
		log.Error().Err(err).
			Str("event_id", e.ID).
			Str("event_type", string(e.Type)).
			Msg("failed to publish event")
		return
	}
	r.metrics.published.Add(1)
}

func (r *Relay) publishWithRetry(ctx context.Context, e events.Event) error {
	var lastErr error

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.config.RetryDelay * time.Duration(attempt)):
			}
		}

		if err := r.publisher.Publish(ctx, e); err != nil {
			lastErr = err
			log.Warn().Err(err).
				Str("event_id", e.ID).
				Int("attempt", attempt+1).
				Msg("failed to publish event, retrying")
			continue
		}
		return nil
	}

	return fmt.Errorf("failed after %d attempts: %w", r.config.MaxRetries+1, lastErr)
}

// Metrics returns a snapshot of the relay counters.
func (r *Relay) Metrics() MetricsSnapshot {
	return r.metrics.snapshot(len(r.eventCh))
}

func marshalEvent(e events.Event) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return data, nil
}
