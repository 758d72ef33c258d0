package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/skirmish/go/internal/arena"
	"github.com/mcdev12/skirmish/go/internal/config"
	"github.com/mcdev12/skirmish/go/internal/dbconfig"
	"github.com/mcdev12/skirmish/go/internal/gateway"
	"github.com/mcdev12/skirmish/go/internal/matchmaking"
	"github.com/mcdev12/skirmish/go/internal/models"
	"github.com/mcdev12/skirmish/go/internal/relay"
	"github.com/mcdev12/skirmish/go/internal/schedule"
	"github.com/mcdev12/skirmish/go/internal/session"
	"github.com/mcdev12/skirmish/go/internal/stats"
	"github.com/mcdev12/skirmish/go/internal/world"
	"github.com/rs/zerolog/log"
)

type Services struct {
	Pool        *pgxpool.Pool
	Catalog     *arena.Catalog
	Directory   *session.Directory
	Scheduler   *schedule.ClockScheduler
	Relay       *relay.Relay
	Connections *gateway.ConnectionManager
	Tracker     *world.Tracker
	Registry    *matchmaking.Registry
	Gateway     *gateway.Service
}

// setupServices wires the engine:
// stores → catalog/directory → publishers/relay → gateway/tracker → registry.
func setupServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	s := &Services{}

	var store session.StatsStore
	publishers := relay.FanOut{}

	dbCfg := dbconfig.NewConfigFromEnv()
	if dbCfg.Enabled {
		pool, err := setupDatabase(ctx, dbCfg)
		if err != nil {
			return nil, err
		}
		s.Pool = pool

		repo := stats.NewRepository(pool)
		if err := repo.Migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to migrate stats schema: %w", err)
		}
		store = repo
		publishers = append(publishers, stats.NewRecorder(repo))
	} else {
		log.Info().Msg("database disabled, stats are kept in memory")
	}

	maxPlayers := make(map[models.Mode]int, len(cfg.Modes))
	for mode, mc := range cfg.Modes {
		if mc.Enabled {
			maxPlayers[mode] = mc.MaxPlayers
		}
	}
	s.Catalog = arena.NewCatalog(maxPlayers)
	loaded, err := s.Catalog.LoadDir(cfg.ArenaDir)
	if err != nil {
		s.closeStores()
		return nil, fmt.Errorf("failed to load arenas: %w", err)
	}
	if loaded == 0 {
		log.Warn().Str("dir", cfg.ArenaDir).Msg("no arenas loaded, every promotion will fail")
	}

	s.Directory = session.NewDirectory(store)
	s.Scheduler = schedule.NewClockScheduler(clockwork.NewRealClock())

	connCfg := gateway.DefaultConnectionConfig()
	connCfg.CheckOrigin = gateway.OriginChecker(cfg.Server.AllowedOrigins)
	s.Connections = gateway.NewConnectionManager(connCfg)
	s.Tracker = world.NewTracker(s.Connections)
	publishers = append(publishers, s.Connections)

	if cfg.NATS.Enabled {
		jsCfg := relay.DefaultJetStreamConfig()
		jsCfg.URL = cfg.NATS.URL
		jsCfg.StreamName = cfg.NATS.StreamName
		jsCfg.SubjectPrefix = cfg.NATS.SubjectPrefix

		natsCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		js, err := relay.NewJetStreamPublisher(natsCtx, jsCfg)
		cancel()
		if err != nil {
			s.closeStores()
			return nil, fmt.Errorf("failed to set up event stream: %w", err)
		}
		publishers = append(publishers, js)
	} else {
		publishers = append(publishers, relay.NewLogPublisher())
	}
	s.Relay = relay.New(publishers, relay.DefaultConfig())

	s.Registry, err = matchmaking.NewRegistry(matchmaking.SettingsFromConfig(cfg), matchmaking.Deps{
		Directory: s.Directory,
		Scheduler: s.Scheduler,
		Actions:   s.Tracker,
		Notifier:  s.Connections,
		Catalog:   s.Catalog,
		Events:    s.Relay,
	})
	if err != nil {
		s.closeStores()
		return nil, fmt.Errorf("failed to create matchmaking registry: %w", err)
	}
	s.Gateway = gateway.NewService(s.Connections, s.Registry, s.Tracker)

	return s, nil
}

func (s *Services) closeStores() {
	if s.Pool != nil {
		s.Pool.Close()
	}
}
