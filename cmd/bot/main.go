// Package main is the entry point for the cash-game ledger bot.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"cashgame-ledger-bot/internal/bot"
	"cashgame-ledger-bot/internal/config"
	"cashgame-ledger-bot/internal/pkg/db"
	"cashgame-ledger-bot/internal/pkg/lock"
	"cashgame-ledger-bot/internal/repository"
	"cashgame-ledger-bot/internal/service"
	"cashgame-ledger-bot/internal/web"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().Msg("Configuration loaded successfully")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	// Run database migrations
	if err := repository.Migrate(ctx, dbPool.Pool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Initialize repositories
	gameRepo := repository.NewGameRepository(dbPool.Pool)
	txRepo := repository.NewTransactionRepository(dbPool.Pool)
	statsRepo := repository.NewStatsRepository(dbPool.Pool)

	// Initialize services
	ledgerService := service.NewLedgerService(dbPool.Pool, gameRepo, txRepo)
	statsService := service.NewStatsService(statsRepo)

	// Per-chat lock keeps message processing ordered within a chat
	chatLock := lock.NewChatLock()

	// Create bot dependencies
	deps := &bot.Dependencies{
		Config:        cfg,
		LedgerService: ledgerService,
		StatsService:  statsService,
		ChatLock:      chatLock,
	}

	// Initialize bot
	ledgerBot, err := bot.New(deps)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bot")
	}

	// Initialize leaderboard API
	var apiServer *web.Server
	if cfg.HTTP.Enabled {
		apiServer = web.New(&cfg.HTTP, statsService, dbPool)
		go func() {
			if err := apiServer.Start(); err != nil {
				log.Error().Err(err).Msg("Leaderboard API stopped with error")
			}
		}()
	}

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start bot in a goroutine
	go func() {
		log.Info().Msg("Bot is starting...")
		ledgerBot.Start()
	}()

	// Wait for shutdown signal
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	// Graceful shutdown
	ledgerBot.Stop()
	if apiServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Leaderboard API shutdown failed")
		}
	}
	log.Info().Msg("Bot stopped gracefully")
}
