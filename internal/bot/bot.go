// Package bot provides the Telegram bot initialization and handler registration.
package bot

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"cashgame-ledger-bot/internal/config"
	"cashgame-ledger-bot/internal/handler"
	"cashgame-ledger-bot/internal/pkg/lock"
	"cashgame-ledger-bot/internal/service"
)

// Bot wraps the telebot instance with application dependencies.
type Bot struct {
	bot *tele.Bot
	cfg *config.Config

	statsHandler *handler.StatsHandler
	gameHandler  *handler.GameHandler
}

// Dependencies holds all the dependencies needed by the bot handlers.
type Dependencies struct {
	Config        *config.Config
	LedgerService *service.LedgerService
	StatsService  *service.StatsService
	ChatLock      *lock.ChatLock
}

// New creates a new Bot instance with the given dependencies.
func New(deps *Dependencies) (*Bot, error) {
	if deps.Config.Bot.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	pollerTimeout := deps.Config.Bot.LongPollerTimeout
	if pollerTimeout <= 0 {
		pollerTimeout = 10 * time.Second
	}

	pref := tele.Settings{
		Token:  deps.Config.Bot.Token,
		Poller: &tele.LongPoller{Timeout: pollerTimeout},
	}

	teleBot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := &Bot{
		bot: teleBot,
		cfg: deps.Config,
	}

	// Initialize handlers
	b.statsHandler = handler.NewStatsHandler(
		deps.StatsService,
		deps.Config.Stats.StatsLimit,
		deps.Config.Stats.TopLimit,
		deps.Config.Bot.ReplyTTL,
	)
	b.gameHandler = handler.NewGameHandler(
		deps.LedgerService,
		deps.ChatLock,
		deps.Config.Bot.ReplyTTL,
	)

	// Register middleware
	b.registerMiddleware()

	// Register handlers
	b.registerHandlers()

	return b, nil
}

// registerMiddleware registers all middleware.
func (b *Bot) registerMiddleware() {
	// Whitelist middleware - check if chat is allowed
	b.bot.Use(WhitelistMiddleware(b.cfg))

	// Logging middleware
	b.bot.Use(LoggingMiddleware())
}

// registerHandlers registers all command and message handlers.
func (b *Bot) registerHandlers() {
	// Leaderboard commands
	b.bot.Handle("/stats", b.statsHandler.HandleStats)
	b.bot.Handle("/top", b.statsHandler.HandleTop)
	b.bot.Handle("/stats_update", b.statsHandler.HandleRecompute)
	b.bot.Handle("/help", b.statsHandler.HandleHelp)

	// Game registration: text, photo captions, and edits of either
	b.bot.Handle(tele.OnText, b.gameHandler.HandleText)
	b.bot.Handle(tele.OnPhoto, b.gameHandler.HandlePhoto)
	b.bot.Handle(tele.OnEdited, b.gameHandler.HandleEdited)
	b.bot.Handle(tele.OnEditedChannelPost, b.gameHandler.HandleEdited)
}

// Start starts the bot polling.
func (b *Bot) Start() {
	log.Info().Msg("Starting bot...")
	b.bot.Start()
}

// Stop stops the bot gracefully.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot...")
	b.bot.Stop()
}
