package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mcdev12/skirmish/go/internal/models"
	"gopkg.in/yaml.v3"
)

// ModeConfig holds the limits of one match mode.
type ModeConfig struct {
	Enabled    bool `yaml:"enabled"`
	TeamSize   int  `yaml:"team_size"`
	MinPlayers int  `yaml:"min_players"`
	MaxPlayers int  `yaml:"max_players"`
}

// QueueConfig controls the waiting pool of every mode.
type QueueConfig struct {
	LobbyCountdownSec  int              `yaml:"lobby_countdown_sec"`
	AnnounceAt         []int            `yaml:"announce_at"`
	MapsToVote         int              `yaml:"maps_to_vote"`
	WaitingTipInterval int              `yaml:"waiting_tip_interval_sec"`
	LobbySpawn         *models.Position `yaml:"lobby_spawn"`
}

// MatchConfig controls the match lifecycle.
type MatchConfig struct {
	CageCountdownSec int `yaml:"cage_countdown_sec"`
	MaxGameTimeSec   int `yaml:"max_game_time_sec"`
	EndDelaySec      int `yaml:"end_delay_sec"`
}

// ServerConfig controls the HTTP and websocket listener.
type ServerConfig struct {
	Port           string   `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// NATSConfig controls the lifecycle event stream.
type NATSConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	StreamName    string `yaml:"stream_name"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// Config is the service configuration.
type Config struct {
	LogLevel string                     `yaml:"log_level"`
	TickMS   int                        `yaml:"tick_ms"`
	ArenaDir string                     `yaml:"arena_dir"`
	Queue    QueueConfig                `yaml:"queue"`
	Match    MatchConfig                `yaml:"match"`
	Modes    map[models.Mode]ModeConfig `yaml:"modes"`
	Server   ServerConfig               `yaml:"server"`
	NATS     NATSConfig                 `yaml:"nats"`
}

// Default returns the built-in configuration.
func Default() *Config {
	modes := make(map[models.Mode]ModeConfig, len(models.AllModes))
	for _, m := range models.AllModes {
		modes[m] = ModeConfig{
			Enabled:    true,
			TeamSize:   m.DefaultTeamSize(),
			MinPlayers: 3,
			MaxPlayers: m.DefaultMaxPlayers(),
		}
	}

	return &Config{
		LogLevel: "info",
		TickMS:   1000,
		ArenaDir: "arenas",
		Queue: QueueConfig{
			LobbyCountdownSec:  30,
			AnnounceAt:         []int{30, 20, 10, 5, 4, 3, 2, 1},
			MapsToVote:         3,
			WaitingTipInterval: 5,
		},
		Match: MatchConfig{
			CageCountdownSec: 5,
			MaxGameTimeSec:   600,
			EndDelaySec:      3,
		},
		Modes: modes,
		Server: ServerConfig{
			Port:           "8080",
			AllowedOrigins: []string{"*"},
		},
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			StreamName:    "SKIRMISH_EVENTS",
			SubjectPrefix: "skirmish",
		},
	}
}

// Load reads the YAML file at path on top of the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.fillModeDefaults()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// fillModeDefaults completes mode entries that only set some fields.
func (c *Config) fillModeDefaults() {
	for mode, mc := range c.Modes {
		if mc.TeamSize == 0 {
			mc.TeamSize = mode.DefaultTeamSize()
		}
		if mc.MaxPlayers == 0 {
			mc.MaxPlayers = mode.DefaultMaxPlayers()
		}
		if mc.MinPlayers == 0 {
			mc.MinPlayers = 3
		}
		c.Modes[mode] = mc
	}
}

func (c *Config) applyEnv() {
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.ArenaDir = getEnv("ARENA_DIR", c.ArenaDir)
	c.TickMS = getEnvAsInt("TICK_MS", c.TickMS)
	c.Server.Port = getEnv("PORT", c.Server.Port)
	if origins := getEnv("ALLOWED_ORIGINS", ""); origins != "" {
		c.Server.AllowedOrigins = strings.Split(origins, ",")
	}
	c.Queue.LobbyCountdownSec = getEnvAsInt("LOBBY_COUNTDOWN_SEC", c.Queue.LobbyCountdownSec)
	c.Match.CageCountdownSec = getEnvAsInt("CAGE_COUNTDOWN_SEC", c.Match.CageCountdownSec)
	c.Match.MaxGameTimeSec = getEnvAsInt("MAX_GAME_TIME_SEC", c.Match.MaxGameTimeSec)
	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	if v := getEnv("NATS_ENABLED", ""); v != "" {
		c.NATS.Enabled, _ = strconv.ParseBool(v)
	}
}

// Validate rejects configurations the matchmaking engine cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.TickMS <= 0 {
		errs = append(errs, fmt.Errorf("tick_ms must be positive, got %d", c.TickMS))
	}
	if c.Queue.LobbyCountdownSec < 0 {
		errs = append(errs, fmt.Errorf("queue.lobby_countdown_sec must not be negative"))
	}
	if c.Queue.MapsToVote < 1 {
		errs = append(errs, fmt.Errorf("queue.maps_to_vote must be at least 1"))
	}
	if c.Queue.WaitingTipInterval < 1 {
		errs = append(errs, fmt.Errorf("queue.waiting_tip_interval_sec must be at least 1"))
	}
	if c.Match.CageCountdownSec < 0 || c.Match.EndDelaySec < 0 || c.Match.MaxGameTimeSec < 0 {
		errs = append(errs, fmt.Errorf("match durations must not be negative"))
	}

	enabled := 0
	for mode, mc := range c.Modes {
		if !mode.Valid() {
			errs = append(errs, fmt.Errorf("unknown mode %q", mode))
			continue
		}
		if !mc.Enabled {
			continue
		}
		enabled++
		if mc.TeamSize < 1 {
			errs = append(errs, fmt.Errorf("mode %s: team_size must be at least 1", mode))
		}
		if mc.MinPlayers < 1 {
			errs = append(errs, fmt.Errorf("mode %s: min_players must be at least 1", mode))
		}
		if mc.MinPlayers > mc.MaxPlayers {
			errs = append(errs, fmt.Errorf("mode %s: min_players %d exceeds max_players %d", mode, mc.MinPlayers, mc.MaxPlayers))
		}
	}
	if enabled == 0 {
		errs = append(errs, errors.New("no mode is enabled"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// EnabledModes returns the enabled modes in display order.
func (c *Config) EnabledModes() []models.Mode {
	var out []models.Mode
	for _, m := range models.AllModes {
		if mc, ok := c.Modes[m]; ok && mc.Enabled {
			out = append(out, m)
		}
	}
	return out
}

// Tick returns the scheduling period of countdowns.
func (c *Config) Tick() time.Duration {
	return time.Duration(c.TickMS) * time.Millisecond
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
