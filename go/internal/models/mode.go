package models

// Mode defines a match variant.
type Mode string

const (
	ModeSolo   Mode = "solo"
	ModeDuos   Mode = "duos"
	ModeSquads Mode = "squads"
)

// AllModes lists every known mode in display order.
var AllModes = []Mode{ModeSolo, ModeDuos, ModeSquads}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeSolo, ModeDuos, ModeSquads:
		return true
	}
	return false
}

// DefaultTeamSize returns the fixed team size for the mode.
func (m Mode) DefaultTeamSize() int {
	switch m {
	case ModeDuos:
		return 2
	case ModeSquads:
		return 4
	default:
		return 1
	}
}

// DefaultMaxPlayers returns the participant cap for the mode.
func (m Mode) DefaultMaxPlayers() int {
	switch m {
	case ModeDuos, ModeSquads:
		return 16
	default:
		return 12
	}
}
