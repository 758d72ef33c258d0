package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogging(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	services, err := setupServices(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up services")
	}

	if err := services.Relay.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start event relay")
	}

	gatewayDone := make(chan struct{})
	go func() {
		defer close(gatewayDone)
		services.Gateway.Start(ctx)
	}()

	server := setupServer(cfg, services)
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Strs("modes", modeNames(services)).
			Msg("skirmish server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}

	// Matches end and restore their participants before connections drop.
	services.Registry.Shutdown()
	services.Scheduler.Close()

	cancel()
	<-gatewayDone
	waitForDisconnects(shutdownCtx, services)

	if err := services.Relay.Stop(); err != nil {
		log.Error().Err(err).Msg("event relay shutdown failed")
	}
	services.closeStores()

	log.Info().Msg("skirmish shutdown complete")
}

// waitForDisconnects gives closing connections time to persist their stats.
func waitForDisconnects(ctx context.Context, services *Services) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for services.Directory.Count() > 0 {
		select {
		case <-ctx.Done():
			log.Warn().Int("participants", services.Directory.Count()).Msg("participants still connected at shutdown")
			return
		case <-ticker.C:
		}
	}
}

func modeNames(services *Services) []string {
	modes := services.Registry.Modes()
	out := make([]string, 0, len(modes))
	for _, m := range modes {
		out = append(out, string(m))
	}
	return out
}
