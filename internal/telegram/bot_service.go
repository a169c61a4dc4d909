// Package telegram turns chat commands into moderation actions, case
// lookups and donor-linking requests.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"zahra/backend/internal/ledger"
	"zahra/backend/internal/linking"
	"zahra/backend/internal/localization"
	"zahra/backend/internal/models"
	"zahra/backend/internal/users"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// API is the part of *tgbotapi.BotAPI the bot uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error)
}

// BotService routes incoming updates to command handlers.
type BotService struct {
	API       API
	Cases     *ledger.Service
	Links     *linking.Service
	Users     *users.Service
	Localizer *localization.Localizer
	Logger    *slog.Logger

	// OwnerID may run /admin.
	OwnerID string
	// SponsorLogin is shown in the GitHub /link prompt.
	SponsorLogin string
}

func NewBotService(api API, cases *ledger.Service, links *linking.Service, us *users.Service, texts *localization.Localizer, logger *slog.Logger) *BotService {
	if logger == nil {
		logger = slog.Default()
	}
	return &BotService{
		API:       api,
		Cases:     cases,
		Links:     links,
		Users:     us,
		Localizer: texts,
		Logger:    logger,
	}
}

// Run handles updates until ctx is cancelled or the channel closes.
// Each update is processed on its own goroutine.
func (s *BotService) Run(ctx context.Context, updates <-chan tgbotapi.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			go s.HandleMessage(ctx, update.Message)
		}
	}
}

// HandleMessage dispatches a single command message.
func (s *BotService) HandleMessage(ctx context.Context, msg *tgbotapi.Message) {
	defer func() {
		if r := recover(); r != nil {
			s.Logger.Error("panic while handling command", "command", msg.Command(), "panic", r)
		}
	}()

	if msg.From == nil {
		return
	}

	switch cmd := msg.Command(); cmd {
	case "ban", "unban", "kick", "warn", "mute", "unmute":
		s.handleModeration(ctx, msg, models.ActionType(cmd))
	case "case":
		s.handleCase(ctx, msg)
	case "cases":
		s.handleCases(ctx, msg)
	case "pardon":
		s.handlePardon(ctx, msg)
	case "link":
		s.handleLink(ctx, msg)
	case "userinfo":
		s.handleUserInfo(ctx, msg)
	case "admin":
		s.handleAdmin(ctx, msg)
	case "help", "start":
		s.reply(msg, s.Localizer.T("help"))
	}
}

func (s *BotService) reply(msg *tgbotapi.Message, text string) (tgbotapi.Message, error) {
	out := tgbotapi.NewMessage(msg.Chat.ID, text)
	out.ReplyParameters.MessageID = msg.MessageID
	sent, err := s.API.Send(out)
	if err != nil {
		s.Logger.Warn("failed to send reply", "chat_id", msg.Chat.ID, "error", err)
	}
	return sent, err
}

func (s *BotService) call(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error) {
	resp, err := s.API.MakeRequest(endpoint, params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", endpoint, err)
	}
	return resp, nil
}

func chatParams(chatID, userID int64) tgbotapi.Params {
	return tgbotapi.Params{
		"chat_id": strconv.FormatInt(chatID, 10),
		"user_id": strconv.FormatInt(userID, 10),
	}
}

// isChatAdmin asks Telegram whether userID administers chatID.
func (s *BotService) isChatAdmin(chatID, userID int64) bool {
	resp, err := s.call("getChatMember", chatParams(chatID, userID))
	if err != nil {
		s.Logger.Warn("could not check chat member", "chat_id", chatID, "user_id", userID, "error", err)
		return false
	}
	var member struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(resp.Result, &member); err != nil {
		return false
	}
	return member.Status == "creator" || member.Status == "administrator"
}
