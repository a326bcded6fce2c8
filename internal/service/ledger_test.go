// Package service provides business logic implementations.
// Tests use testcontainers-go to spin up a PostgreSQL container.
package service

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"cashgame-ledger-bot/internal/model"
	"cashgame-ledger-bot/internal/parser"
	"cashgame-ledger-bot/internal/repository"
)

// checkDockerAvailable checks if Docker is available and running
func checkDockerAvailable() bool {
	cmd := exec.Command("docker", "info")
	err := cmd.Run()
	return err == nil
}

// setupTestDB creates a PostgreSQL container and returns a connection pool
// Skips the test if Docker is not available
func setupTestDB(t *testing.T) (*pgxpool.Pool, func()) {
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	err = repository.Migrate(ctx, pool)
	require.NoError(t, err)

	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
	}

	return pool, cleanup
}

// newLedger wires a LedgerService with its repositories for tests.
func newLedger(pool *pgxpool.Pool) (*LedgerService, *repository.GameRepository, *repository.TransactionRepository) {
	games := repository.NewGameRepository(pool)
	txs := repository.NewTransactionRepository(pool)
	return NewLedgerService(pool, games, txs), games, txs
}

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func ptr[T any](v T) *T { return &v }

var fixtureLines = []string{
	"Вход:",
	"+500 | Тема",
	"+700 | User2",
	"Выход:",
	"+1840 | User3",
}

func TestLedgerService_SubmitMessage(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ledger, games, txs := newLedger(pool)
	ctx := context.Background()

	result, err := ledger.SubmitMessage(ctx, -1, 10, ptr(day(2024, time.March, 5)), fixtureLines)
	require.NoError(t, err)
	assert.NotZero(t, result.GameID)
	assert.Equal(t, 3, result.SavedCount)

	game, err := games.FindByOrigin(ctx, -1, 10)
	require.NoError(t, err)
	assert.Equal(t, result.GameID, game.ID)
	require.NotNil(t, game.GameDate)
	assert.Equal(t, "2024-03-05", game.GameDate.Format("2006-01-02"))

	recorded, err := txs.GetByGame(ctx, result.GameID)
	require.NoError(t, err)
	require.Len(t, recorded, 3)
	assert.Equal(t, "Тема", recorded[0].Username)
	assert.Equal(t, model.DirectionIn, recorded[0].Type)
	assert.Equal(t, "User3", recorded[2].Username)
	assert.Equal(t, model.DirectionOut, recorded[2].Type)
}

func TestLedgerService_SubmitMessage_DefaultsToProcessingDate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ledger, games, _ := newLedger(pool)
	ledger.now = func() time.Time { return time.Date(2024, time.July, 15, 21, 30, 0, 0, time.UTC) }
	ctx := context.Background()

	result, err := ledger.SubmitMessage(ctx, -1, 11, nil, fixtureLines)
	require.NoError(t, err)

	game, err := games.GetByID(ctx, result.GameID)
	require.NoError(t, err)
	require.NotNil(t, game.GameDate)
	assert.Equal(t, "2024-07-15", game.GameDate.Format("2006-01-02"))
}

func TestLedgerService_SubmitMessage_NoEntriesKeepsGame(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ledger, games, _ := newLedger(pool)
	ctx := context.Background()

	result, err := ledger.SubmitMessage(ctx, -1, 12, nil, []string{"просто болтовня"})
	require.NoError(t, err)
	assert.Zero(t, result.SavedCount)
	assert.NotZero(t, result.GameID)

	// A fresh message keeps its game even when nothing parsed;
	// only the edit path rolls empty games back.
	_, err = games.FindByOrigin(ctx, -1, 12)
	require.NoError(t, err)
}

func TestLedgerService_SubmitMessage_CountsSkippedLines(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ledger, _, _ := newLedger(pool)
	ctx := context.Background()

	// Two rejected lines, one well-formed one.
	result, err := ledger.SubmitMessage(ctx, -1, 13, nil,
		[]string{"Вход:", "+0 | Тема", "junk", "+500 | User2"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.SavedCount)
	assert.Equal(t, 2, result.SkippedCount)

	// A clean message reports no skips.
	result, err = ledger.SubmitMessage(ctx, -1, 14, nil, fixtureLines)
	require.NoError(t, err)
	assert.Zero(t, result.SkippedCount)
}

func TestLedgerService_SubmitEdit_CountsSkippedLines(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ledger, _, _ := newLedger(pool)
	ctx := context.Background()

	_, err := ledger.SubmitMessage(ctx, -1, 15, nil, fixtureLines)
	require.NoError(t, err)

	result, err := ledger.SubmitEdit(ctx, -1, 15, nil,
		[]string{"Вход:", "+500 | Тема", "не считается"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.SavedCount)
	assert.Equal(t, 1, result.SkippedCount)
}

func TestLedgerService_SubmitEdit_ReplacesExisting(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ledger, games, txs := newLedger(pool)
	ctx := context.Background()

	original, err := ledger.SubmitMessage(ctx, -1, 20, ptr(day(2024, time.March, 5)), fixtureLines)
	require.NoError(t, err)

	edited := []string{
		"Вход:",
		"+900 | Тема",
		"Выход:",
		"+300 | User4",
	}
	result, err := ledger.SubmitEdit(ctx, -1, 20, ptr(day(2024, time.March, 6)), edited)
	require.NoError(t, err)
	assert.Equal(t, original.GameID, result.GameID)
	assert.Equal(t, 2, result.SavedCount)

	// The transaction set equals exactly what the edited text parses to
	recorded, err := txs.GetByGame(ctx, result.GameID)
	require.NoError(t, err)
	require.Len(t, recorded, 2)
	assert.Equal(t, "Тема", recorded[0].Username)
	assert.Equal(t, int64(900), recorded[0].Amount)
	assert.Equal(t, "User4", recorded[1].Username)
	assert.Equal(t, model.DirectionOut, recorded[1].Type)

	game, err := games.GetByID(ctx, result.GameID)
	require.NoError(t, err)
	require.NotNil(t, game.GameDate)
	assert.Equal(t, "2024-03-06", game.GameDate.Format("2006-01-02"))
}

func TestLedgerService_SubmitEdit_KeepsDateWithoutDirective(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ledger, games, _ := newLedger(pool)
	ctx := context.Background()

	original, err := ledger.SubmitMessage(ctx, -1, 21, ptr(day(2024, time.March, 5)), fixtureLines)
	require.NoError(t, err)

	_, err = ledger.SubmitEdit(ctx, -1, 21, nil, []string{"Вход:", "+100 | Тема"})
	require.NoError(t, err)

	game, err := games.GetByID(ctx, original.GameID)
	require.NoError(t, err)
	require.NotNil(t, game.GameDate)
	assert.Equal(t, "2024-03-05", game.GameDate.Format("2006-01-02"))
}

func TestLedgerService_SubmitEdit_Idempotent(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ledger, _, _ := newLedger(pool)
	stats := NewStatsService(repository.NewStatsRepository(pool))
	ctx := context.Background()

	_, err := ledger.SubmitMessage(ctx, -1, 22, ptr(day(2024, time.March, 5)), fixtureLines)
	require.NoError(t, err)

	before, err := stats.QueryStats(ctx, Filter{All: true})
	require.NoError(t, err)

	// Re-editing with byte-identical content changes nothing observable
	result, err := ledger.SubmitEdit(ctx, -1, 22, ptr(day(2024, time.March, 5)), fixtureLines)
	require.NoError(t, err)
	assert.Equal(t, 3, result.SavedCount)

	after, err := stats.QueryStats(ctx, Filter{All: true})
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestLedgerService_SubmitEdit_ProvisionsNewGame(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ledger, games, txs := newLedger(pool)
	ctx := context.Background()

	// No game was ever recorded for this message
	result, err := ledger.SubmitEdit(ctx, -1, 30, ptr(day(2024, time.April, 1)), fixtureLines)
	require.NoError(t, err)
	assert.NotZero(t, result.GameID)
	assert.Equal(t, 3, result.SavedCount)

	game, err := games.FindByOrigin(ctx, -1, 30)
	require.NoError(t, err)
	assert.Equal(t, result.GameID, game.ID)

	recorded, err := txs.GetByGame(ctx, result.GameID)
	require.NoError(t, err)
	assert.Len(t, recorded, 3)
}

func TestLedgerService_SubmitEdit_RollsBackEmptyProvisionalGame(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ledger, games, _ := newLedger(pool)
	ctx := context.Background()

	result, err := ledger.SubmitEdit(ctx, -1, 31, nil, []string{"ничего полезного", "+x | кто-то"})
	require.NoError(t, err)
	assert.Zero(t, result.GameID)
	assert.Zero(t, result.SavedCount)

	// No orphan game survives the rollback
	_, err = games.FindByOrigin(ctx, -1, 31)
	assert.ErrorIs(t, err, repository.ErrGameNotFound)
}

func TestLedgerService_ImportGame(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ledger, games, txs := newLedger(pool)
	ctx := context.Background()

	entries := []parser.Entry{
		{Username: "Тема", Amount: 500, Direction: model.DirectionIn},
		{Username: "User3", Amount: 1840, Direction: model.DirectionOut},
	}

	result, err := ledger.ImportGame(ctx, -7, ptr(day(2022, time.November, 11)), entries)
	require.NoError(t, err)
	assert.Equal(t, 2, result.SavedCount)

	game, err := games.GetByID(ctx, result.GameID)
	require.NoError(t, err)
	assert.Nil(t, game.MessageID)
	require.NotNil(t, game.GameDate)
	assert.Equal(t, "2022-11-11", game.GameDate.Format("2006-01-02"))

	recorded, err := txs.GetByGame(ctx, result.GameID)
	require.NoError(t, err)
	assert.Len(t, recorded, 2)
}
