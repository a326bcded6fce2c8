package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"cashgame-ledger-bot/internal/service"
)

const invalidFilterReply = "❌ Неверный формат. Используйте `all`, год (например `2024`) или без аргумента для последнего года."

// StatsHandler handles the leaderboard commands.
type StatsHandler struct {
	statsService *service.StatsService
	statsLimit   int
	topLimit     int
	replyTTL     time.Duration
}

// NewStatsHandler creates a new StatsHandler.
func NewStatsHandler(statsService *service.StatsService, statsLimit, topLimit int, replyTTL time.Duration) *StatsHandler {
	return &StatsHandler{
		statsService: statsService,
		statsLimit:   statsLimit,
		topLimit:     topLimit,
		replyTTL:     replyTTL,
	}
}

// HandleStats handles the /stats command: the detailed per-participant
// table for the requested window.
func (h *StatsHandler) HandleStats(c tele.Context) error {
	raw := c.Message().Payload
	deleteCommandMessage(c)

	filter, err := service.ParseFilter(raw)
	if err != nil {
		return replyWithAutoDelete(c, h.replyTTL, invalidFilterReply, tele.ModeMarkdown)
	}

	stats, err := h.statsService.QueryStats(context.Background(), filter)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load stats")
		return replyWithAutoDelete(c, h.replyTTL, "❌ Ошибка при загрузке статистики.")
	}

	if len(stats) == 0 {
		return replyWithAutoDelete(c, h.replyTTL, "📊 Пока нет данных для отображения за указанный период.")
	}

	if len(stats) > h.statsLimit {
		stats = stats[:h.statsLimit]
	}

	var b strings.Builder
	b.WriteString("📊 Статистика участников" + filterLabel(filter) + ":\n```\n")
	b.WriteString("№    Участник           Игр    Вход    Выход   Разница\n")
	b.WriteString("-------------------------------------------------------\n")
	for i, s := range stats {
		diff := s.Score()
		diffStr := fmt.Sprintf("%d", diff)
		if diff >= 0 {
			diffStr = "+" + diffStr
		}
		b.WriteString(fmt.Sprintf("%-4d %-18s %4d %6d %6d %7s\n",
			i+1, s.Username, s.GamesCount, s.TotalIn, s.TotalOut, diffStr))
	}
	b.WriteString("```")

	return replyWithAutoDelete(c, h.replyTTL, b.String(), tele.ModeMarkdown)
}

// HandleTop handles the /top command: the short leaderboard by net score.
func (h *StatsHandler) HandleTop(c tele.Context) error {
	raw := c.Message().Payload
	deleteCommandMessage(c)

	filter, err := service.ParseFilter(raw)
	if err != nil {
		return replyWithAutoDelete(c, h.replyTTL, invalidFilterReply, tele.ModeMarkdown)
	}

	scores, err := h.statsService.QueryScores(context.Background(), filter)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load scores")
		return replyWithAutoDelete(c, h.replyTTL, "❌ Ошибка при загрузке топа.")
	}

	if len(scores) == 0 {
		return replyWithAutoDelete(c, h.replyTTL, "📊 Пока нет данных за указанный период.")
	}

	if len(scores) > h.topLimit {
		scores = scores[:h.topLimit]
	}

	var b strings.Builder
	b.WriteString("🏆 Топ участников" + filterLabel(filter) + ":\n")
	for i, s := range scores {
		sign := ""
		if s.Score >= 0 {
			sign = "+"
		}
		b.WriteString(fmt.Sprintf("%d. %s — %s%d\n", i+1, s.Username, sign, s.Score))
	}

	return replyWithAutoDelete(c, h.replyTTL, b.String())
}

// HandleRecompute handles the /stats_update command: rebuild the all-time
// snapshot from the full transaction history.
func (h *StatsHandler) HandleRecompute(c tele.Context) error {
	deleteCommandMessage(c)

	if err := h.statsService.RecomputeAll(context.Background()); err != nil {
		log.Error().Err(err).Msg("Failed to recompute stats")
		return replyWithAutoDelete(c, h.replyTTL, "❌ Ошибка при пересчёте.")
	}

	return replyWithAutoDelete(c, h.replyTTL, "✅ Статистика успешно пересчитана!")
}

// HandleHelp handles the /help command.
func (h *StatsHandler) HandleHelp(c tele.Context) error {
	deleteCommandMessage(c)

	help := strings.Join([]string{
		"📚 **Список доступных команд:**",
		"/stats — Показать детальную статистику всех участников (входы, выходы, разница)",
		"/top — Топ участников по разнице (выход минус вход)",
		"/stats\\_update — Пересчитать статистику заново",
		"/help — Показать это сообщение",
		"ℹ️ **Как добавлять данные:**",
		"Сообщения должны содержать строки вида:",
		"`+<сумма> | <ник>`",
		"Секции помечаются как `Вход:` и `Выход:`",
		"Пример:",
		"```",
		"Вход:",
		"+500 | Тема",
		"+700 | @Rabotyaga3000",
		"Выход:",
		"+1840 | @EgorVaganov1111",
		"```",
	}, "\n")

	return replyWithAutoDelete(c, h.replyTTL, help, tele.ModeMarkdown)
}

// filterLabel renders the window suffix for reply titles.
func filterLabel(f service.Filter) string {
	switch {
	case f.All:
		return " (всё время)"
	case f.Year != 0:
		return fmt.Sprintf(" (%d год)", f.Year)
	default:
		return " (последний год)"
	}
}
