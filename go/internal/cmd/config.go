package main

import (
	"flag"
	"os"
	"strings"

	"github.com/mcdev12/skirmish/go/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// loadConfig reads the config file named by -config or CONFIG_PATH. A missing
// default file falls back to built-in defaults.
func loadConfig() (*config.Config, error) {
	path := flag.String("config", getEnv("CONFIG_PATH", "config.yaml"), "path to the YAML config file")
	flag.Parse()

	if _, err := os.Stat(*path); err != nil {
		log.Warn().Str("path", *path).Msg("config file not found, using defaults")
		return config.Load("")
	}
	return config.Load(*path)
}

func setupLogging(level string) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
