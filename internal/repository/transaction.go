package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"cashgame-ledger-bot/internal/model"
)

// TransactionRepository handles ledger line persistence. Transactions are
// append-only; the only supported correction is bulk deletion by game,
// which the edit reconciler uses before replaying a message.
type TransactionRepository struct {
	db querier
}

// NewTransactionRepository creates a new TransactionRepository instance.
func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{db: pool}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *TransactionRepository) WithTx(tx pgx.Tx) *TransactionRepository {
	return &TransactionRepository{db: tx}
}

// Create appends one ledger line to a game. Returns ErrConstraint when the
// amount is not positive, the direction is unknown, or the game does not
// exist; the database enforces the same rules as a backstop.
func (r *TransactionRepository) Create(ctx context.Context, gameID int64, username string, amount int64, direction model.Direction) (*model.Transaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive, got %d", ErrConstraint, amount)
	}
	if !direction.Valid() {
		return nil, fmt.Errorf("%w: unknown direction %q", ErrConstraint, direction)
	}

	const query = `
		INSERT INTO transactions (game_id, username, amount, type, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, game_id, username, amount, type, created_at
	`

	var tx model.Transaction
	err := r.db.QueryRow(ctx, query, gameID, username, amount, direction).Scan(
		&tx.ID,
		&tx.GameID,
		&tx.Username,
		&tx.Amount,
		&tx.Type,
		&tx.CreatedAt,
	)
	if err != nil {
		if isIntegrityViolation(err) {
			return nil, fmt.Errorf("%w: %v", ErrConstraint, err)
		}
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	return &tx, nil
}

// DeleteByGame removes all transactions of a game and returns how many
// rows were deleted.
func (r *TransactionRepository) DeleteByGame(ctx context.Context, gameID int64) (int64, error) {
	const query = `DELETE FROM transactions WHERE game_id = $1`

	result, err := r.db.Exec(ctx, query, gameID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete transactions: %w", err)
	}

	return result.RowsAffected(), nil
}

// GetByGame retrieves all transactions of a game in insertion order.
func (r *TransactionRepository) GetByGame(ctx context.Context, gameID int64) ([]*model.Transaction, error) {
	const query = `
		SELECT id, game_id, username, amount, type, created_at
		FROM transactions
		WHERE game_id = $1
		ORDER BY id
	`

	rows, err := r.db.Query(ctx, query, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*model.Transaction
	for rows.Next() {
		var tx model.Transaction
		err := rows.Scan(
			&tx.ID,
			&tx.GameID,
			&tx.Username,
			&tx.Amount,
			&tx.Type,
			&tx.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, &tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return transactions, nil
}

// isIntegrityViolation reports whether err is a PostgreSQL integrity
// constraint violation (SQLSTATE class 23).
func isIntegrityViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return len(pgErr.Code) >= 2 && pgErr.Code[:2] == "23"
	}
	return false
}
