// Package notifier delivers the late result of a linking attempt back to
// the chat message that started it.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type Outcome int

const (
	OutcomeInfo Outcome = iota
	OutcomeSuccess
	OutcomeFailure
)

func (o Outcome) emoji() string {
	switch o {
	case OutcomeSuccess:
		return "💜"
	case OutcomeFailure:
		return "❌"
	default:
		return "ℹ️"
	}
}

type Message struct {
	Title       string
	Description string
	Outcome     Outcome
}

// Render formats m as plain text.
func Render(m Message) string {
	var b strings.Builder
	b.WriteString(m.Outcome.emoji())
	b.WriteString(" ")
	b.WriteString(m.Title)
	if m.Description != "" {
		b.WriteString("\n\n")
		b.WriteString(m.Description)
	}
	return b.String()
}

type Notifier interface {
	Notify(ctx context.Context, handle string, msg Message) error
}

var ErrBadHandle = errors.New("notifier: malformed callback handle")

// NewHandle encodes the message to edit later as "chatID:messageID".
func NewHandle(chatID int64, messageID int) string {
	return strconv.FormatInt(chatID, 10) + ":" + strconv.Itoa(messageID)
}

func ParseHandle(h string) (int64, int, error) {
	chat, msg, ok := strings.Cut(h, ":")
	if !ok {
		return 0, 0, ErrBadHandle
	}
	chatID, err := strconv.ParseInt(chat, 10, 64)
	if err != nil || chatID == 0 {
		return 0, 0, ErrBadHandle
	}
	messageID, err := strconv.Atoi(msg)
	if err != nil || messageID <= 0 {
		return 0, 0, ErrBadHandle
	}
	return chatID, messageID, nil
}

// Sender is the part of *tgbotapi.BotAPI the notifier needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram edits the placeholder message the bot posted when the link was
// requested. Editing without a reply markup also drops the authorize button.
type Telegram struct {
	bot    Sender
	logger *slog.Logger
}

func NewTelegram(bot Sender, logger *slog.Logger) *Telegram {
	if logger == nil {
		logger = slog.Default()
	}
	return &Telegram{bot: bot, logger: logger}
}

func (t *Telegram) Notify(ctx context.Context, handle string, msg Message) error {
	chatID, messageID, err := ParseHandle(handle)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	edit := tgbotapi.NewEditMessageText(chatID, messageID, Render(msg))
	if _, err := t.bot.Send(edit); err != nil {
		return fmt.Errorf("edit message %d in chat %d: %w", messageID, chatID, err)
	}
	t.logger.Debug("notified", "chat_id", chatID, "message_id", messageID, "title", msg.Title)
	return nil
}

var _ Notifier = (*Telegram)(nil)
