package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/skirmish/go/internal/dbconfig"
	"github.com/mcdev12/skirmish/go/internal/models"
	"github.com/mcdev12/skirmish/go/internal/stats"
)

// Entry mirrors one participant in the JSON snapshot.
type Entry struct {
	ParticipantID string `json:"participant_id"`
	TotalKills    int    `json:"total_kills"`
	Deaths        int    `json:"deaths"`
	Wins          int    `json:"wins"`
	GamesPlayed   int    `json:"games_played"`
}

func main() {
	path := flag.String("file", "stats.json", "JSON snapshot of participant stats")
	flag.Parse()

	// 1) Load the JSON snapshot
	data, err := os.ReadFile(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read JSON: %v\n", err)
		os.Exit(1)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		fmt.Fprintf(os.Stderr, "unmarshal JSON: %v\n", err)
		os.Exit(1)
	}

	all := make(map[models.ParticipantID]models.Stats, len(entries))
	skipped := 0
	for _, e := range entries {
		if e.ParticipantID == "" {
			skipped++
			continue
		}
		all[models.ParticipantID(e.ParticipantID)] = models.Stats{
			TotalKills:  e.TotalKills,
			Deaths:      e.Deaths,
			Wins:        e.Wins,
			GamesPlayed: e.GamesPlayed,
		}
	}

	// 2) Connect using shared dbconfig
	ctx := context.Background()
	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// 3) Create the schema and upsert in one transaction
	repo := stats.NewRepository(pool)
	if err := repo.Migrate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}
	if err := repo.SaveMany(ctx, all); err != nil {
		fmt.Fprintf(os.Stderr, "save stats: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Seed complete: %d entries, %d upserted, %d skipped\n", len(entries), len(all), skipped)
}
