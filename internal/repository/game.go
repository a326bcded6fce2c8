// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"cashgame-ledger-bot/internal/model"
)

// Common errors for repository operations.
var (
	ErrGameNotFound = errors.New("game not found")
	ErrConstraint   = errors.New("constraint violation")
)

// querier abstracts over a pool and a transaction so that every repository
// method can run either standalone or inside an enclosing transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// GameRepository handles game session persistence.
type GameRepository struct {
	db querier
}

// NewGameRepository creates a new GameRepository instance.
func NewGameRepository(pool *pgxpool.Pool) *GameRepository {
	return &GameRepository{db: pool}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *GameRepository) WithTx(tx pgx.Tx) *GameRepository {
	return &GameRepository{db: tx}
}

// Create inserts a new game. messageID is nil for games created
// programmatically (imports) rather than from a chat message; date is nil
// when no date is known yet. A second game for the same (chatID, messageID)
// pair violates the unique origin index and returns ErrConstraint.
func (r *GameRepository) Create(ctx context.Context, chatID int64, messageID *int64, date *time.Time) (*model.Game, error) {
	const query = `
		INSERT INTO games (chat_id, message_id, game_date, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, chat_id, message_id, game_date, created_at
	`

	var game model.Game
	err := r.db.QueryRow(ctx, query, chatID, messageID, date).Scan(
		&game.ID,
		&game.ChatID,
		&game.MessageID,
		&game.GameDate,
		&game.CreatedAt,
	)
	if err != nil {
		if isIntegrityViolation(err) {
			return nil, fmt.Errorf("%w: %v", ErrConstraint, err)
		}
		return nil, fmt.Errorf("failed to create game: %w", err)
	}

	return &game, nil
}

// FindByOrigin retrieves the game created from the given chat message.
// Returns ErrGameNotFound if no such game exists. The unique origin index
// guarantees at most one game per (chatID, messageID) pair.
func (r *GameRepository) FindByOrigin(ctx context.Context, chatID, messageID int64) (*model.Game, error) {
	const query = `
		SELECT id, chat_id, message_id, game_date, created_at
		FROM games
		WHERE chat_id = $1 AND message_id = $2
	`

	var game model.Game
	err := r.db.QueryRow(ctx, query, chatID, messageID).Scan(
		&game.ID,
		&game.ChatID,
		&game.MessageID,
		&game.GameDate,
		&game.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGameNotFound
		}
		return nil, fmt.Errorf("failed to find game by origin: %w", err)
	}

	return &game, nil
}

// GetByID retrieves a game by its ID.
// Returns ErrGameNotFound if the game does not exist.
func (r *GameRepository) GetByID(ctx context.Context, gameID int64) (*model.Game, error) {
	const query = `
		SELECT id, chat_id, message_id, game_date, created_at
		FROM games
		WHERE id = $1
	`

	var game model.Game
	err := r.db.QueryRow(ctx, query, gameID).Scan(
		&game.ID,
		&game.ChatID,
		&game.MessageID,
		&game.GameDate,
		&game.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGameNotFound
		}
		return nil, fmt.Errorf("failed to get game: %w", err)
	}

	return &game, nil
}

// UpdateDate sets the game's calendar date.
func (r *GameRepository) UpdateDate(ctx context.Context, gameID int64, date time.Time) error {
	const query = `UPDATE games SET game_date = $2 WHERE id = $1`

	result, err := r.db.Exec(ctx, query, gameID, date)
	if err != nil {
		return fmt.Errorf("failed to update game date: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrGameNotFound
	}

	return nil
}

// Delete removes a game. Any remaining transactions cascade away with it;
// used to roll back a provisional game that ended up empty.
func (r *GameRepository) Delete(ctx context.Context, gameID int64) error {
	const query = `DELETE FROM games WHERE id = $1`

	result, err := r.db.Exec(ctx, query, gameID)
	if err != nil {
		return fmt.Errorf("failed to delete game: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrGameNotFound
	}

	return nil
}
