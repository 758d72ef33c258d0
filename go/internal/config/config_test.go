package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mcdev12/skirmish/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 30, cfg.Queue.LobbyCountdownSec)
	assert.Equal(t, 5, cfg.Match.CageCountdownSec)
	assert.Equal(t, 600, cfg.Match.MaxGameTimeSec)
	assert.Equal(t, 3, cfg.Queue.MapsToVote)
	assert.Equal(t, time.Second, cfg.Tick())
	assert.Equal(t, []models.Mode{models.ModeSolo, models.ModeDuos, models.ModeSquads}, cfg.EnabledModes())
	assert.Equal(t, 4, cfg.Modes[models.ModeSquads].TeamSize)
	assert.Equal(t, 12, cfg.Modes[models.ModeSolo].MaxPlayers)
}

func TestLoadFileMergesWithDefaults(t *testing.T) {
	path := writeConfig(t, `
queue:
  lobby_countdown_sec: 10
  maps_to_vote: 2
  waiting_tip_interval_sec: 5
modes:
  duos:
    enabled: false
  solo:
    enabled: true
    min_players: 2
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Queue.LobbyCountdownSec)
	assert.Equal(t, 2, cfg.Queue.MapsToVote)
	assert.Equal(t, []models.Mode{models.ModeSolo, models.ModeSquads}, cfg.EnabledModes())
	assert.Equal(t, 2, cfg.Modes[models.ModeSolo].MinPlayers)
	assert.Equal(t, 1, cfg.Modes[models.ModeSolo].TeamSize)
	assert.Equal(t, 12, cfg.Modes[models.ModeSolo].MaxPlayers)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("LOBBY_COUNTDOWN_SEC", "15")
	t.Setenv("NATS_ENABLED", "true")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test,http://b.test")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 15, cfg.Queue.LobbyCountdownSec)
	assert.True(t, cfg.NATS.Enabled)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.AllowedOrigins)
}

func TestValidateRejectsBadModes(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "min exceeds max",
			body: "modes:\n  solo:\n    enabled: true\n    min_players: 13\n    max_players: 12\n",
		},
		{
			name: "unknown mode",
			body: "modes:\n  trios:\n    enabled: true\n",
		},
		{
			name: "nothing enabled",
			body: "modes:\n  solo: {enabled: false}\n  duos: {enabled: false}\n  squads: {enabled: false}\n",
		},
		{
			name: "zero tick",
			body: "tick_ms: -1\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
