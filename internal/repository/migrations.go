package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Migrate applies the database schema. Statements are idempotent so the
// bot can run them on every startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	log.Info().Msg("Running database migrations...")

	// Migration 1: games table
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS games (
			id BIGSERIAL PRIMARY KEY,
			chat_id BIGINT NOT NULL,
			message_id BIGINT,
			game_date DATE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_games_origin ON games(chat_id, message_id) WHERE message_id IS NOT NULL;
		CREATE INDEX IF NOT EXISTS idx_games_date ON games(game_date);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 1: games table created")

	// Migration 2: transactions table
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS transactions (
			id BIGSERIAL PRIMARY KEY,
			game_id BIGINT NOT NULL REFERENCES games(id) ON DELETE CASCADE,
			username TEXT NOT NULL CHECK (username <> ''),
			amount BIGINT NOT NULL CHECK (amount > 0),
			type VARCHAR(10) NOT NULL CHECK (type IN ('in', 'out')),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_transactions_game ON transactions(game_id);
		CREATE INDEX IF NOT EXISTS idx_transactions_username ON transactions(username);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 2: transactions table created")

	// Migration 3: user_stats snapshot
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS user_stats (
			username TEXT PRIMARY KEY,
			total_in BIGINT NOT NULL DEFAULT 0,
			total_out BIGINT NOT NULL DEFAULT 0,
			games_count BIGINT NOT NULL DEFAULT 0
		);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 3: user_stats table created")

	log.Info().Msg("All migrations completed successfully")
	return nil
}
