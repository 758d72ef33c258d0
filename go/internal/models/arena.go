package models

// Position is a point in a named world.
type Position struct {
	World string  `json:"world" yaml:"world"`
	X     float64 `json:"x" yaml:"x"`
	Y     float64 `json:"y" yaml:"y"`
	Z     float64 `json:"z" yaml:"z"`
	Yaw   float32 `json:"yaw,omitempty" yaml:"yaw,omitempty"`
	Pitch float32 `json:"pitch,omitempty" yaml:"pitch,omitempty"`
}

// Arena is a play-space definition a match can be hosted on.
type Arena struct {
	Name           string     `json:"name" yaml:"name"`
	DisplayName    string     `json:"display_name" yaml:"display_name"`
	World          string     `json:"world" yaml:"world"`
	StartPositions []Position `json:"start_positions" yaml:"start_positions"`
	Spectator      *Position  `json:"spectator,omitempty" yaml:"spectator,omitempty"`
	Modes          []Mode     `json:"modes" yaml:"modes"`
	Enabled        bool       `json:"enabled" yaml:"enabled"`
}

// Supports reports whether the arena can host the given mode.
func (a Arena) Supports(mode Mode) bool {
	for _, m := range a.Modes {
		if m == mode {
			return true
		}
	}
	return false
}

// Label returns the display name, falling back to the name.
func (a Arena) Label() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.Name
}

// SpectatorPosition returns the spectator point, or the first start position when unset.
func (a Arena) SpectatorPosition() Position {
	if a.Spectator != nil {
		return *a.Spectator
	}
	if len(a.StartPositions) > 0 {
		return a.StartPositions[0]
	}
	return Position{World: a.World}
}
