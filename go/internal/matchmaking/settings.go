package matchmaking

import (
	"fmt"
	"time"

	"github.com/mcdev12/skirmish/go/internal/config"
	"github.com/mcdev12/skirmish/go/internal/models"
	"github.com/mcdev12/skirmish/go/internal/schedule"
	"github.com/mcdev12/skirmish/go/internal/session"
)

// ModeSettings holds the participant limits of one mode.
type ModeSettings struct {
	Mode       models.Mode
	TeamSize   int
	MinPlayers int
	MaxPlayers int
}

// Settings holds the timings shared by every queue and match.
// Countdown lengths are whole seconds stepped once per Tick.
type Settings struct {
	Tick               time.Duration
	LobbyCountdown     int
	AnnounceAt         []int
	MapsToVote         int
	WaitingTipInterval time.Duration
	LobbySpawn         *models.Position
	CageCountdown      int
	MaxGameTime        int
	EndDelay           time.Duration
	Modes              []ModeSettings
}

// SettingsFromConfig converts the loaded configuration, keeping only enabled modes.
func SettingsFromConfig(cfg *config.Config) Settings {
	s := Settings{
		Tick:               cfg.Tick(),
		LobbyCountdown:     cfg.Queue.LobbyCountdownSec,
		AnnounceAt:         append([]int(nil), cfg.Queue.AnnounceAt...),
		MapsToVote:         cfg.Queue.MapsToVote,
		WaitingTipInterval: time.Duration(cfg.Queue.WaitingTipInterval) * time.Second,
		LobbySpawn:         cfg.Queue.LobbySpawn,
		CageCountdown:      cfg.Match.CageCountdownSec,
		MaxGameTime:        cfg.Match.MaxGameTimeSec,
		EndDelay:           time.Duration(cfg.Match.EndDelaySec) * time.Second,
	}
	for _, mode := range cfg.EnabledModes() {
		mc := cfg.Modes[mode]
		s.Modes = append(s.Modes, ModeSettings{
			Mode:       mode,
			TeamSize:   mc.TeamSize,
			MinPlayers: mc.MinPlayers,
			MaxPlayers: mc.MaxPlayers,
		})
	}
	return s
}

func (s Settings) announces(remaining int) bool {
	for _, at := range s.AnnounceAt {
		if at == remaining {
			return true
		}
	}
	return false
}

// Deps are the collaborators of the registry. Events and Random are optional.
type Deps struct {
	Directory *session.Directory
	Scheduler schedule.Scheduler
	Actions   PlayerActions
	Notifier  Notifier
	Catalog   Catalog
	Events    EventSink
	Random    Random
}

func (d Deps) validate() error {
	switch {
	case d.Directory == nil:
		return fmt.Errorf("directory is required")
	case d.Scheduler == nil:
		return fmt.Errorf("scheduler is required")
	case d.Actions == nil:
		return fmt.Errorf("player actions are required")
	case d.Notifier == nil:
		return fmt.Errorf("notifier is required")
	case d.Catalog == nil:
		return fmt.Errorf("catalog is required")
	}
	return nil
}
