// Package service provides business logic implementations.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"cashgame-ledger-bot/internal/parser"
	"cashgame-ledger-bot/internal/pkg/db"
	"cashgame-ledger-bot/internal/repository"
)

// Result reports the outcome of a submitted or reconciled message.
// GameID is zero when a provisional game was rolled back because the
// message parsed to nothing. SkippedCount counts the lines the grammar
// rejected; the lines themselves go to the debug log.
type Result struct {
	GameID       int64
	SavedCount   int
	SkippedCount int
}

// logSkippedLines records the lines the grammar rejected so a malformed
// message leaves a trace even when nothing was saved.
func logSkippedLines(chatID int64, skipped []string) {
	if len(skipped) == 0 {
		return
	}
	log.Debug().
		Int64("chat_id", chatID).
		Int("skipped", len(skipped)).
		Strs("lines", skipped).
		Msg("Skipped lines that matched no grammar rule")
}

// LedgerService turns parsed chat messages into games and transactions,
// and reconciles them when the originating message is edited.
type LedgerService struct {
	pool  *pgxpool.Pool
	games *repository.GameRepository
	txs   *repository.TransactionRepository
	now   func() time.Time
}

// NewLedgerService creates a new LedgerService instance.
func NewLedgerService(
	pool *pgxpool.Pool,
	games *repository.GameRepository,
	txs *repository.TransactionRepository,
) *LedgerService {
	return &LedgerService{
		pool:  pool,
		games: games,
		txs:   txs,
		now:   time.Now,
	}
}

// SubmitMessage records a fresh message: it creates a game dated by the
// directive date (or today's processing date) and appends every entry the
// lines parse to. Store failures on individual lines are logged and
// skipped; SavedCount reflects successes only.
func (s *LedgerService) SubmitMessage(ctx context.Context, chatID, messageID int64, date *time.Time, lines []string) (Result, error) {
	entries, skipped := parser.Parse(lines)
	logSkippedLines(chatID, skipped)

	gameDate := s.resolveDate(date)

	game, err := s.games.Create(ctx, chatID, &messageID, &gameDate)
	if err != nil {
		return Result{}, fmt.Errorf("failed to submit message: %w", err)
	}

	saved := s.appendEntries(ctx, s.txs, game.ID, entries)

	log.Info().
		Int64("chat_id", chatID).
		Int64("game_id", game.ID).
		Time("game_date", gameDate).
		Int("saved", saved).
		Int("skipped", len(skipped)).
		Msg("Game recorded from message")

	return Result{GameID: game.ID, SavedCount: saved, SkippedCount: len(skipped)}, nil
}

// SubmitEdit reconciles an edited message. When a game already exists for
// (chatID, messageID) its transaction set is replaced with exactly what
// the edited text parses to; otherwise the edit is treated as a fresh
// submission, rolled back if it parses to nothing. Either path is a single
// database transaction, so readers never observe the intermediate empty
// state.
func (s *LedgerService) SubmitEdit(ctx context.Context, chatID, messageID int64, date *time.Time, lines []string) (Result, error) {
	entries, skipped := parser.Parse(lines)
	logSkippedLines(chatID, skipped)

	game, err := s.games.FindByOrigin(ctx, chatID, messageID)
	var result Result
	switch {
	case err == nil:
		result, err = s.replay(ctx, game.ID, date, entries)
	case errors.Is(err, repository.ErrGameNotFound):
		result, err = s.provision(ctx, chatID, messageID, date, entries)
	default:
		return Result{}, fmt.Errorf("failed to submit edit: %w", err)
	}
	if err != nil {
		return Result{}, err
	}

	result.SkippedCount = len(skipped)
	return result, nil
}

// ImportGame records a game that did not originate from a chat message,
// e.g. a bulk import of historic sessions. The game stands even when the
// entry list is empty.
func (s *LedgerService) ImportGame(ctx context.Context, chatID int64, date *time.Time, entries []parser.Entry) (Result, error) {
	game, err := s.games.Create(ctx, chatID, nil, date)
	if err != nil {
		return Result{}, fmt.Errorf("failed to import game: %w", err)
	}

	saved := s.appendEntries(ctx, s.txs, game.ID, entries)

	log.Info().
		Int64("chat_id", chatID).
		Int64("game_id", game.ID).
		Int("saved", saved).
		Msg("Game imported")

	return Result{GameID: game.ID, SavedCount: saved}, nil
}

// replay replaces an existing game's transactions with what the edited
// text parses to. The date moves only when the message carries a
// directive; otherwise the previously stored date stays. The replay is
// all-or-nothing: a store failure aborts the whole reconciliation rather
// than leaving a partial transaction set.
func (s *LedgerService) replay(ctx context.Context, gameID int64, date *time.Time, entries []parser.Entry) (Result, error) {
	var saved int
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		games := s.games.WithTx(tx)
		txs := s.txs.WithTx(tx)

		if date != nil {
			if err := games.UpdateDate(ctx, gameID, *date); err != nil {
				return err
			}
		}

		deleted, err := txs.DeleteByGame(ctx, gameID)
		if err != nil {
			return err
		}

		for _, e := range entries {
			if _, err := txs.Create(ctx, gameID, e.Username, e.Amount, e.Direction); err != nil {
				return err
			}
			saved++
		}

		log.Info().
			Int64("game_id", gameID).
			Int64("deleted", deleted).
			Int("saved", saved).
			Msg("Game reconciled after edit")
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to reconcile game %d: %w", gameID, err)
	}

	return Result{GameID: gameID, SavedCount: saved}, nil
}

// provision handles an edit of a message no game was recorded for: create
// one as if the message were fresh, and delete it again inside the same
// transaction when nothing parsed, so no orphan empty game is ever
// visible.
func (s *LedgerService) provision(ctx context.Context, chatID, messageID int64, date *time.Time, entries []parser.Entry) (Result, error) {
	gameDate := s.resolveDate(date)

	var result Result
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		games := s.games.WithTx(tx)
		txs := s.txs.WithTx(tx)

		game, err := games.Create(ctx, chatID, &messageID, &gameDate)
		if err != nil {
			return err
		}

		for _, e := range entries {
			if _, err := txs.Create(ctx, game.ID, e.Username, e.Amount, e.Direction); err != nil {
				return err
			}
			result.SavedCount++
		}

		if result.SavedCount == 0 {
			log.Info().
				Int64("chat_id", chatID).
				Int64("message_id", messageID).
				Msg("Edited message parsed to nothing, rolling back provisional game")
			return games.Delete(ctx, game.ID)
		}

		result.GameID = game.ID
		log.Info().
			Int64("chat_id", chatID).
			Int64("game_id", game.ID).
			Int("saved", result.SavedCount).
			Msg("Game recorded from edited message")
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to provision game from edit: %w", err)
	}

	return result, nil
}

// appendEntries appends entries one by one outside any enclosing
// transaction. A failed line does not abort the batch; the returned count
// reflects successes only.
func (s *LedgerService) appendEntries(ctx context.Context, txs *repository.TransactionRepository, gameID int64, entries []parser.Entry) int {
	saved := 0
	for _, e := range entries {
		if _, err := txs.Create(ctx, gameID, e.Username, e.Amount, e.Direction); err != nil {
			log.Error().
				Err(err).
				Int64("game_id", gameID).
				Str("username", e.Username).
				Msg("Failed to save ledger entry, skipping line")
			continue
		}
		saved++
	}
	return saved
}

// resolveDate picks the directive date when present, else today's
// processing date truncated to a calendar day.
func (s *LedgerService) resolveDate(date *time.Time) time.Time {
	if date != nil {
		return *date
	}
	now := s.now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
