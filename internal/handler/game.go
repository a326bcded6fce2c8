package handler

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"cashgame-ledger-bot/internal/parser"
	"cashgame-ledger-bot/internal/pkg/lock"
	"cashgame-ledger-bot/internal/service"
)

// GameHandler ingests game registration messages: fresh text, photo
// captions, and edits of either. Processing within one chat is serialized
// by the chat lock, so edits never race the original submission.
type GameHandler struct {
	ledgerService *service.LedgerService
	chatLock      *lock.ChatLock
	replyTTL      time.Duration
}

// NewGameHandler creates a new GameHandler.
func NewGameHandler(ledgerService *service.LedgerService, chatLock *lock.ChatLock, replyTTL time.Duration) *GameHandler {
	return &GameHandler{
		ledgerService: ledgerService,
		chatLock:      chatLock,
		replyTTL:      replyTTL,
	}
}

// HandleText processes plain text messages. A message mentioning the bot
// with the "game" keyword registers a game explicitly and gets a reply;
// any other non-command text is scanned opportunistically and recorded in
// silence when it contains ledger lines.
func (h *GameHandler) HandleText(c tele.Context) error {
	m := c.Message()
	if m == nil {
		return nil
	}

	if isGameCommand(m, c.Bot().Me.Username) {
		deleteCommandMessage(c)
		return h.register(c, m, m.Text)
	}

	// Slash commands are dispatched to their own handlers.
	if strings.HasPrefix(m.Text, "/") {
		return nil
	}

	lines := parser.SplitLines(m.Text)
	result, err := h.submit(c.Chat().ID, int64(m.ID), nil, lines)
	if err != nil {
		log.Error().Err(err).Int64("chat_id", c.Chat().ID).Msg("Failed to process text message")
		return nil
	}

	if result.SavedCount > 0 {
		log.Info().
			Int64("chat_id", c.Chat().ID).
			Int("saved", result.SavedCount).
			Msg("Recorded ledger lines from plain message")
	}
	return nil
}

// HandlePhoto processes photo posts: the caption may carry a game
// registration. The photo message itself is kept in the chat.
func (h *GameHandler) HandlePhoto(c tele.Context) error {
	m := c.Message()
	if m == nil || m.Caption == "" {
		return nil
	}

	if !isGameCommand(m, c.Bot().Me.Username) {
		return nil
	}

	return h.register(c, m, m.Caption)
}

// HandleEdited reconciles an edited message (text or caption) with the
// ledger: the game's transactions are replaced by whatever the current
// text parses to, or a new game is provisioned when none was recorded.
func (h *GameHandler) HandleEdited(c tele.Context) error {
	m := c.Message()
	if m == nil {
		return nil
	}

	text := m.Text
	if text == "" {
		text = m.Caption
	}
	if text == "" {
		return nil
	}

	var date *time.Time
	if d, ok := parser.ExtractDate(text); ok {
		date = &d
	}

	lines := parser.DataLines(parser.SplitLines(text))

	var result service.Result
	err := h.chatLock.WithLock(c.Chat().ID, func() error {
		var err error
		result, err = h.ledgerService.SubmitEdit(context.Background(), c.Chat().ID, int64(m.ID), date, lines)
		return err
	})
	if err != nil {
		log.Error().Err(err).Int64("chat_id", c.Chat().ID).Int("message_id", m.ID).Msg("Failed to reconcile edited message")
		return replyWithAutoDelete(c, h.replyTTL, "❌ Не удалось обработать отредактированное сообщение.")
	}

	if result.GameID == 0 {
		// Parsed to nothing and the provisional game was rolled back.
		return nil
	}

	return replyWithAutoDelete(c, h.replyTTL,
		fmt.Sprintf("✏️ Игра обновлена. Добавлено записей: %d", result.SavedCount))
}

// register handles an explicit game registration (text or caption).
func (h *GameHandler) register(c tele.Context, m *tele.Message, text string) error {
	lines := parser.SplitLines(text)
	if parser.CommandLineIndex(lines) == -1 {
		return replyWithAutoDelete(c, h.replyTTL, "❌ Не удалось определить команду.")
	}

	var date *time.Time
	if d, ok := parser.ExtractDate(text); ok {
		date = &d
	}

	result, err := h.submit(c.Chat().ID, int64(m.ID), date, parser.DataLines(lines))
	if err != nil {
		log.Error().Err(err).Int64("chat_id", c.Chat().ID).Msg("Failed to register game")
		return replyWithAutoDelete(c, h.replyTTL, "❌ Ошибка при создании игры.")
	}

	dateLabel := "сегодня"
	if date != nil {
		dateLabel = date.Format("02.01.2006")
	}

	if result.SavedCount == 0 {
		return replyWithAutoDelete(c, h.replyTTL,
			"⚠️ Не найдено ни одной корректной записи. Игра создана без транзакций.")
	}
	return replyWithAutoDelete(c, h.replyTTL,
		fmt.Sprintf("✅ Игра от %s успешно создана. Добавлено записей: %d", dateLabel, result.SavedCount))
}

// submit runs SubmitMessage under the chat lock.
func (h *GameHandler) submit(chatID, messageID int64, date *time.Time, lines []string) (service.Result, error) {
	var result service.Result
	err := h.chatLock.WithLock(chatID, func() error {
		var err error
		result, err = h.ledgerService.SubmitMessage(context.Background(), chatID, messageID, date, lines)
		return err
	})
	return result, err
}

// isGameCommand reports whether the message mentions the bot and carries
// the "game" keyword, in either its text or its caption. The mention must
// be exact: a mention of some other account, or of a bot whose name merely
// starts with ours, does not count.
func isGameCommand(m *tele.Message, botUsername string) bool {
	text := m.Text
	entities := m.Entities
	if text == "" {
		text = m.Caption
		entities = m.CaptionEntities
	}
	if text == "" {
		return false
	}

	mentioned := false
	for _, e := range entities {
		if e.Type == tele.EntityMention && entityText(text, e) == "@"+botUsername {
			mentioned = true
			break
		}
	}
	if !mentioned {
		return false
	}

	return strings.Contains(text, "game")
}

// entityText extracts the substring an entity covers. Telegram entity
// offsets and lengths count UTF-16 code units, not bytes or runes.
func entityText(text string, e tele.MessageEntity) string {
	units := utf16.Encode([]rune(text))
	if e.Offset < 0 || e.Length < 0 || e.Offset+e.Length > len(units) {
		return ""
	}
	return string(utf16.Decode(units[e.Offset : e.Offset+e.Length]))
}
