package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mcdev12/skirmish/go/internal/arena"
	"github.com/mcdev12/skirmish/go/internal/config"
	"github.com/mcdev12/skirmish/go/internal/models"
)

// check_arenas validates every arena file against the configured mode limits
// and prints which modes each arena can host.
func main() {
	configPath := flag.String("config", "", "optional YAML config providing mode limits")
	dir := flag.String("dir", "arenas", "directory of arena definitions")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	limits := make(map[models.Mode]int)
	for mode, mc := range cfg.Modes {
		if mc.Enabled {
			limits[mode] = mc.MaxPlayers
		}
	}
	catalog := arena.NewCatalog(limits)

	files, err := filepath.Glob(filepath.Join(*dir, "*.y*ml"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "list arenas: %v\n", err)
		os.Exit(1)
	}
	sort.Strings(files)

	failed := 0
	for _, f := range files {
		a, err := arena.LoadFile(f)
		if err == nil {
			err = catalog.Register(a)
		}
		if err != nil {
			fmt.Printf("FAIL %s: %v\n", f, err)
			failed++
			continue
		}
		modes := make([]string, 0, len(a.Modes))
		for _, m := range a.Modes {
			modes = append(modes, string(m))
		}
		fmt.Printf("ok   %-20s %2d start positions  modes: %s\n", a.Name, len(a.StartPositions), strings.Join(modes, ","))
	}

	disabled := 0
	for _, a := range catalog.All() {
		if !a.Enabled {
			disabled++
		}
	}
	fmt.Printf("%d arena(s) registered, %d disabled, %d failed\n", len(catalog.All()), disabled, failed)

	for _, mode := range cfg.EnabledModes() {
		fmt.Printf("%-7s %d arena(s) available\n", mode, len(catalog.ListAvailable(mode)))
	}
	if failed > 0 {
		os.Exit(1)
	}
}
