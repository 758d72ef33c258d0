package stats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/mcdev12/skirmish/go/internal/models"
	"github.com/mcdev12/skirmish/go/internal/sqlutil"
)

// DB is satisfied by *pgxpool.Pool.
type DB interface {
	sqlutil.TxStarter
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var ErrResultNotFound = errors.New("match result not found")

var schema = []string{
	`CREATE TABLE IF NOT EXISTS participant_stats (
		participant_id TEXT PRIMARY KEY,
		total_kills    INTEGER NOT NULL DEFAULT 0,
		deaths         INTEGER NOT NULL DEFAULT 0,
		wins           INTEGER NOT NULL DEFAULT 0,
		games_played   INTEGER NOT NULL DEFAULT 0,
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS match_results (
		match_id     UUID PRIMARY KEY,
		mode         TEXT NOT NULL,
		arena        TEXT NOT NULL,
		winner       TEXT,
		winning_team INTEGER,
		reason       TEXT NOT NULL,
		elapsed_secs INTEGER NOT NULL,
		ended_at     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS match_result_winners (
		match_id       UUID NOT NULL REFERENCES match_results(match_id) ON DELETE CASCADE,
		participant_id TEXT NOT NULL,
		PRIMARY KEY (match_id, participant_id)
	)`,
}

const (
	loadStatsSQL = `SELECT total_kills, deaths, wins, games_played
		FROM participant_stats WHERE participant_id = $1`

	saveStatsSQL = `INSERT INTO participant_stats (participant_id, total_kills, deaths, wins, games_played, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (participant_id) DO UPDATE SET
			total_kills  = EXCLUDED.total_kills,
			deaths       = EXCLUDED.deaths,
			wins         = EXCLUDED.wins,
			games_played = EXCLUDED.games_played,
			updated_at   = EXCLUDED.updated_at`

	insertResultSQL = `INSERT INTO match_results (match_id, mode, arena, winner, winning_team, reason, elapsed_secs, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (match_id) DO NOTHING`

	insertWinnerSQL = `INSERT INTO match_result_winners (match_id, participant_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`

	getResultSQL = `SELECT match_id, mode, arena, winner, winning_team, reason, elapsed_secs, ended_at
		FROM match_results WHERE match_id = $1`
)

// MatchResult is the persisted outcome of a finished match.
type MatchResult struct {
	MatchID     uuid.UUID
	Mode        models.Mode
	Arena       string
	Winner      *models.ParticipantID
	WinningTeam *int
	Credited    []models.ParticipantID
	Reason      string
	ElapsedSecs int
	EndedAt     time.Time
}

// Repository stores lifetime participant statistics and match results in
// Postgres. It implements session.StatsStore.
type Repository struct {
	db DB
}

func NewRepository(db DB) *Repository {
	return &Repository{db: db}
}

// Migrate creates the tables when they do not exist.
func (r *Repository) Migrate(ctx context.Context) error {
	return sqlutil.Run(ctx, r.db, func(tx pgx.Tx) error {
		for _, stmt := range schema {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("failed to apply schema: %w", err)
			}
		}
		return nil
	})
}

// Load returns the lifetime stats of id. Unknown participants have zero stats.
func (r *Repository) Load(ctx context.Context, id models.ParticipantID) (models.Stats, error) {
	var st models.Stats
	err := r.db.QueryRow(ctx, loadStatsSQL, string(id)).Scan(&st.TotalKills, &st.Deaths, &st.Wins, &st.GamesPlayed)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Stats{}, nil
	}
	if err != nil {
		return models.Stats{}, fmt.Errorf("failed to load stats for %s: %w", id, err)
	}
	return st, nil
}

// Save upserts the lifetime stats of id. The current-match kill count is not
// stored.
func (r *Repository) Save(ctx context.Context, id models.ParticipantID, st models.Stats) error {
	if _, err := r.db.Exec(ctx, saveStatsSQL, string(id), st.TotalKills, st.Deaths, st.Wins, st.GamesPlayed); err != nil {
		return fmt.Errorf("failed to save stats for %s: %w", id, err)
	}
	return nil
}

// SaveMany upserts several participants in one transaction.
func (r *Repository) SaveMany(ctx context.Context, all map[models.ParticipantID]models.Stats) error {
	return sqlutil.Run(ctx, r.db, func(tx pgx.Tx) error {
		for id, st := range all {
			if _, err := tx.Exec(ctx, saveStatsSQL, string(id), st.TotalKills, st.Deaths, st.Wins, st.GamesPlayed); err != nil {
				return fmt.Errorf("failed to save stats for %s: %w", id, err)
			}
		}
		return nil
	})
}

// RecordResult stores a match outcome and its credited winners. Recording the
// same match twice is a no-op.
func (r *Repository) RecordResult(ctx context.Context, res MatchResult) error {
	var winner pgtype.Text
	if res.Winner != nil {
		winner = pgtype.Text{String: string(*res.Winner), Valid: true}
	}
	var team pgtype.Int4
	if res.WinningTeam != nil {
		team = sqlutil.ToPgInt4(*res.WinningTeam)
	}

	return sqlutil.Run(ctx, r.db, func(tx pgx.Tx) error {
		matchID := sqlutil.ToPgUUID(&res.MatchID)
		_, err := tx.Exec(ctx, insertResultSQL,
			matchID, string(res.Mode), res.Arena, winner, team, res.Reason, res.ElapsedSecs, res.EndedAt)
		if err != nil {
			return fmt.Errorf("failed to insert match result: %w", err)
		}
		for _, p := range res.Credited {
			if _, err := tx.Exec(ctx, insertWinnerSQL, matchID, string(p)); err != nil {
				return fmt.Errorf("failed to insert match winner: %w", err)
			}
		}
		return nil
	})
}

// GetResult returns the stored outcome of a match without its winners list.
func (r *Repository) GetResult(ctx context.Context, matchID uuid.UUID) (*MatchResult, error) {
	var (
		id     pgtype.UUID
		mode   string
		winner pgtype.Text
		team   pgtype.Int4
		res    MatchResult
	)
	err := r.db.QueryRow(ctx, getResultSQL, sqlutil.ToPgUUID(&matchID)).
		Scan(&id, &mode, &res.Arena, &winner, &team, &res.Reason, &res.ElapsedSecs, &res.EndedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrResultNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get match result: %w", err)
	}

	if parsed := sqlutil.FromPgUUID(id); parsed != nil {
		res.MatchID = *parsed
	}
	res.Mode = models.Mode(mode)
	if winner.Valid {
		w := models.ParticipantID(winner.String)
		res.Winner = &w
	}
	if team.Valid {
		t := sqlutil.FromPgInt4(team)
		res.WinningTeam = &t
	}
	return &res, nil
}
