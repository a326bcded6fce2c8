package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"cashgame-ledger-bot/internal/model"
	"cashgame-ledger-bot/internal/pkg/db"
)

// DateWindow restricts an aggregate query to games whose date falls in the
// half-open interval [From, To). A nil bound is unbounded; both nil means
// no date restriction at all. Games without a date only match the
// unrestricted window.
type DateWindow struct {
	From *time.Time
	To   *time.Time
}

// All is the unrestricted window.
func All() DateWindow {
	return DateWindow{}
}

// Since restricts to games dated from the given instant onwards.
func Since(from time.Time) DateWindow {
	return DateWindow{From: &from}
}

// Year restricts to games dated within the given calendar year.
func Year(year int) DateWindow {
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(1, 0, 0)
	return DateWindow{From: &from, To: &to}
}

// StatsRepository computes per-participant aggregates. Live queries group
// over the raw transactions joined through their game's date; the
// recompute path rebuilds the denormalized user_stats snapshot. Both use
// the same ordering: net score descending, username ascending on ties.
type StatsRepository struct {
	pool *pgxpool.Pool
}

// NewStatsRepository creates a new StatsRepository instance.
func NewStatsRepository(pool *pgxpool.Pool) *StatsRepository {
	return &StatsRepository{pool: pool}
}

// scoreExpr is the net score of a grouped username: cash-outs count
// positive, buy-ins negative.
const scoreExpr = `SUM(CASE WHEN t.type = 'out' THEN t.amount ELSE -t.amount END)`

// windowClause renders the WHERE clause for a date window.
func windowClause(w DateWindow) (string, []any) {
	var conds []string
	var args []any

	if w.From != nil {
		args = append(args, *w.From)
		conds = append(conds, fmt.Sprintf("g.game_date >= $%d", len(args)))
	}
	if w.To != nil {
		args = append(args, *w.To)
		conds = append(conds, fmt.Sprintf("g.game_date < $%d", len(args)))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// FilteredStats returns one row per participant with buy-in and cash-out
// totals and the count of distinct games inside the window.
func (r *StatsRepository) FilteredStats(ctx context.Context, window DateWindow) ([]*model.UserStat, error) {
	where, args := windowClause(window)
	query := `
		SELECT t.username,
		       COALESCE(SUM(CASE WHEN t.type = 'in' THEN t.amount ELSE 0 END), 0) AS total_in,
		       COALESCE(SUM(CASE WHEN t.type = 'out' THEN t.amount ELSE 0 END), 0) AS total_out,
		       COUNT(DISTINCT t.game_id) AS games_count
		FROM transactions t
		JOIN games g ON g.id = t.game_id` + where + `
		GROUP BY t.username
		ORDER BY ` + scoreExpr + ` DESC, t.username ASC
	`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}
	defer rows.Close()

	return scanStats(rows)
}

// FilteredScores returns one row per participant with the net score inside
// the window.
func (r *StatsRepository) FilteredScores(ctx context.Context, window DateWindow) ([]*model.UserScore, error) {
	where, args := windowClause(window)
	query := `
		SELECT t.username, ` + scoreExpr + ` AS score
		FROM transactions t
		JOIN games g ON g.id = t.game_id` + where + `
		GROUP BY t.username
		ORDER BY score DESC, t.username ASC
	`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query scores: %w", err)
	}
	defer rows.Close()

	var scores []*model.UserScore
	for rows.Next() {
		var s model.UserScore
		if err := rows.Scan(&s.Username, &s.Score); err != nil {
			return nil, fmt.Errorf("failed to scan score: %w", err)
		}
		scores = append(scores, &s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scores: %w", err)
	}

	return scores, nil
}

// Recompute rebuilds the user_stats snapshot from the entire transaction
// history. The drop and rebuild run in one transaction, so concurrent
// readers see either the old snapshot or the new one, never a partial mix.
func (r *StatsRepository) Recompute(ctx context.Context) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM user_stats`); err != nil {
			return fmt.Errorf("failed to clear user_stats: %w", err)
		}

		result, err := tx.Exec(ctx, `
			INSERT INTO user_stats (username, total_in, total_out, games_count)
			SELECT t.username,
			       COALESCE(SUM(CASE WHEN t.type = 'in' THEN t.amount ELSE 0 END), 0),
			       COALESCE(SUM(CASE WHEN t.type = 'out' THEN t.amount ELSE 0 END), 0),
			       COUNT(DISTINCT t.game_id)
			FROM transactions t
			GROUP BY t.username
		`)
		if err != nil {
			return fmt.Errorf("failed to rebuild user_stats: %w", err)
		}

		log.Info().Int64("rows", result.RowsAffected()).Msg("Recomputed user stats snapshot")
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to recompute stats: %w", err)
	}

	return nil
}

// Snapshot reads the denormalized all-time aggregate produced by the last
// Recompute, ordered like the live queries.
func (r *StatsRepository) Snapshot(ctx context.Context) ([]*model.UserStat, error) {
	const query = `
		SELECT username, total_in, total_out, games_count
		FROM user_stats
		ORDER BY (total_out - total_in) DESC, username ASC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to read stats snapshot: %w", err)
	}
	defer rows.Close()

	return scanStats(rows)
}

func scanStats(rows pgx.Rows) ([]*model.UserStat, error) {
	var stats []*model.UserStat
	for rows.Next() {
		var s model.UserStat
		if err := rows.Scan(&s.Username, &s.TotalIn, &s.TotalOut, &s.GamesCount); err != nil {
			return nil, fmt.Errorf("failed to scan stat: %w", err)
		}
		stats = append(stats, &s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stats: %w", err)
	}

	return stats, nil
}
