package arena

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/mcdev12/skirmish/go/internal/models"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

var (
	ErrNotFound = errors.New("arena not found")
	ErrExists   = errors.New("arena already registered")
	ErrInvalid  = errors.New("invalid arena")
)

// Catalog holds the arenas matches can be hosted on. Arenas are validated
// against the participant limits of every mode they support when registered.
type Catalog struct {
	mu         sync.RWMutex
	arenas     map[string]models.Arena
	maxPlayers map[models.Mode]int
}

// NewCatalog creates an empty catalog. maxPlayers is the participant cap per mode.
func NewCatalog(maxPlayers map[models.Mode]int) *Catalog {
	limits := make(map[models.Mode]int, len(maxPlayers))
	for m, n := range maxPlayers {
		limits[m] = n
	}
	return &Catalog{
		arenas:     make(map[string]models.Arena),
		maxPlayers: limits,
	}
}

// Validate checks an arena definition.
func (c *Catalog) Validate(a models.Arena) error {
	if a.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if len(a.Modes) == 0 {
		return fmt.Errorf("%w: %s supports no mode", ErrInvalid, a.Name)
	}
	for _, m := range a.Modes {
		if !m.Valid() {
			return fmt.Errorf("%w: %s lists unknown mode %q", ErrInvalid, a.Name, m)
		}
		if need := c.maxPlayers[m]; len(a.StartPositions) < need {
			return fmt.Errorf("%w: %s has %d start positions, mode %s needs %d",
				ErrInvalid, a.Name, len(a.StartPositions), m, need)
		}
	}
	return nil
}

// Register adds a validated arena.
func (c *Catalog) Register(a models.Arena) error {
	if err := c.Validate(a); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.arenas[a.Name]; exists {
		return fmt.Errorf("%w: %q", ErrExists, a.Name)
	}
	if a.World == "" && len(a.StartPositions) > 0 {
		a.World = a.StartPositions[0].World
	}
	c.arenas[a.Name] = a
	return nil
}

// Remove deletes an arena by name.
func (c *Catalog) Remove(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.arenas[name]; !exists {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	delete(c.arenas, name)
	return nil
}

// SetEnabled toggles whether an arena is offered to queues.
func (c *Catalog) SetEnabled(name string, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, exists := c.arenas[name]
	if !exists {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	a.Enabled = enabled
	c.arenas[name] = a
	return nil
}

// Get retrieves an arena by name.
func (c *Catalog) Get(name string) (models.Arena, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, exists := c.arenas[name]
	if !exists {
		return models.Arena{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return a, nil
}

// All returns every arena ordered by name.
func (c *Catalog) All() []models.Arena {
	c.mu.RLock()
	out := make([]models.Arena, 0, len(c.arenas))
	for _, a := range c.arenas {
		out = append(out, a)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ListAvailable returns the enabled arenas supporting mode, ordered by name.
func (c *Catalog) ListAvailable(mode models.Mode) []models.Arena {
	var out []models.Arena
	for _, a := range c.All() {
		if a.Enabled && a.Supports(mode) {
			out = append(out, a)
		}
	}
	return out
}

// LoadDir registers every *.yml and *.yaml file in dir. A missing directory
// loads nothing. Invalid files are logged and skipped; the count of loaded
// arenas is returned.
func (c *Catalog) LoadDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		log.Warn().Str("dir", dir).Msg("arena directory does not exist")
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read arena directory: %w", err)
	}

	loaded := 0
	for _, entry := range entries {
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if entry.IsDir() || (ext != ".yml" && ext != ".yaml") {
			continue
		}
		path := filepath.Join(dir, entry.Name())

		a, err := LoadFile(path)
		if err != nil {
			log.Error().Err(err).Str("file", path).Msg("failed to load arena")
			continue
		}
		if err := c.Register(a); err != nil {
			log.Error().Err(err).Str("file", path).Msg("rejected arena")
			continue
		}
		loaded++
		log.Info().Str("arena", a.Name).Int("start_positions", len(a.StartPositions)).Msg("loaded arena")
	}
	return loaded, nil
}

// LoadFile parses one arena definition. The name defaults to the file name.
func LoadFile(path string) (models.Arena, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Arena{}, fmt.Errorf("failed to read arena file: %w", err)
	}

	a := models.Arena{Enabled: true}
	if err := yaml.Unmarshal(data, &a); err != nil {
		return models.Arena{}, fmt.Errorf("failed to parse arena file: %w", err)
	}
	if a.Name == "" {
		a.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return a, nil
}
