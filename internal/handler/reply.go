// Package handler provides Telegram bot command and message handlers.
package handler

import (
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"
)

// replyWithAutoDelete sends a reply and schedules its deletion after ttl,
// so the chat does not fill up with stale leaderboards.
func replyWithAutoDelete(c tele.Context, ttl time.Duration, text string, opts ...any) error {
	msg, err := c.Bot().Send(c.Chat(), text, opts...)
	if err != nil {
		log.Error().Err(err).Int64("chat_id", c.Chat().ID).Msg("Failed to send reply")
		return err
	}

	time.AfterFunc(ttl, func() {
		if err := c.Bot().Delete(msg); err != nil {
			log.Error().Err(err).Int("message_id", msg.ID).Msg("Failed to auto-delete reply")
		}
	})

	return nil
}

// deleteCommandMessage removes the user's command message after handling.
// Deletion can fail when the bot lacks rights; that is logged and ignored.
func deleteCommandMessage(c tele.Context) {
	if c.Message() == nil {
		return
	}
	if err := c.Delete(); err != nil {
		log.Warn().Err(err).Int("message_id", c.Message().ID).Msg("Failed to delete command message")
	}
}
