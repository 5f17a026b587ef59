// Package notify pushes operational alerts to a Telegram channel: log
// records above the configured level and giveaway winner announcements.
// It is a one-way sender; the conversational bot lives outside this
// service.
package notify

import (
	"fmt"
	"log/slog"
	"strings"

	"credpool/entity"
	"credpool/lib/sl"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
)

type Telegram struct {
	api      *tgbotapi.Bot
	chatId   int64
	minLevel slog.Level
	log      *slog.Logger
}

func NewTelegram(apiKey string, chatId int64, minLevel slog.Level, log *slog.Logger) (*Telegram, error) {
	api, err := tgbotapi.NewBot(apiKey, nil)
	if err != nil {
		return nil, fmt.Errorf("creating api instance: %v", err)
	}
	return &Telegram{
		api:      api,
		chatId:   chatId,
		minLevel: minLevel,
		log:      log.With(sl.Module("notify")),
	}, nil
}

// SendMessageWithLevel delivers one log alert; messages below the
// minimum level are dropped.
func (t *Telegram) SendMessageWithLevel(msg string, level slog.Level) {
	if level < t.minLevel {
		return
	}
	t.send(msg)
}

// WinnerSelected announces the giveaway winner of a fully-used key.
// Announcements are not subject to the alert level filter.
func (t *Telegram) WinnerSelected(key *entity.RedemptionKey) {
	t.send(fmt.Sprintf("*Giveaway winner*\nplatform: %s\nkey: `%s`\nwinner: %s",
		Sanitize(key.Platform), Sanitize(key.KeyCode), Sanitize(key.GiveawayWinner)))
}

// send falls back to plain text when the markdown payload is rejected.
func (t *Telegram) send(msg string) {
	_, err := t.api.SendMessage(t.chatId, msg, &tgbotapi.SendMessageOpts{
		ParseMode: "MarkdownV2",
	})
	if err != nil {
		t.log.Warn("sending alert", sl.Err(err))
		if _, err = t.api.SendMessage(t.chatId, msg, &tgbotapi.SendMessageOpts{}); err != nil {
			t.log.Error("sending safe alert", sl.Err(err))
		}
	}
}

// Sanitize escapes MarkdownV2 reserved characters.
func Sanitize(input string) string {
	reservedChars := "\\_{}#+-.!|()[]=*"
	sanitized := ""
	for _, char := range input {
		if strings.ContainsRune(reservedChars, char) {
			sanitized += "\\" + string(char)
		} else {
			sanitized += string(char)
		}
	}
	return sanitized
}
