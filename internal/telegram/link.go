package telegram

import (
	"context"
	"errors"

	"zahra/backend/internal/linking"
	"zahra/backend/internal/models"
	"zahra/backend/internal/notifier"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// handleLink posts a placeholder, issues a token bound to that message and
// then edits the placeholder into the authorization prompt. The linking
// service later edits the same message with the outcome.
func (s *BotService) handleLink(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat.Type != "private" {
		s.reply(msg, s.Localizer.T("link_private_only"))
		return
	}
	arg, _ := splitFirst(msg.CommandArguments())
	platform, err := models.ParsePlatform(arg)
	if err != nil {
		s.reply(msg, s.Localizer.T("link_usage"))
		return
	}

	placeholder, err := s.reply(msg, s.Localizer.T("link_preparing"))
	if err != nil {
		return
	}

	res, err := s.Links.Issue(ctx, linking.IssueRequest{
		UserID:         userID(msg.From),
		DisplayName:    displayName(msg.From),
		Platform:       platform,
		CallbackHandle: notifier.NewHandle(msg.Chat.ID, placeholder.MessageID),
	})
	switch {
	case errors.Is(err, linking.ErrUnknownPlatform):
		s.edit(msg.Chat.ID, placeholder.MessageID, s.Localizer.T("link_unavailable", platform.Label()))
		return
	case err != nil:
		s.Logger.Error("failed to issue linking token", "user_id", msg.From.ID, "platform", platform, "error", err)
		s.edit(msg.Chat.ID, placeholder.MessageID, s.Localizer.T("error_generic"))
		return
	case res.Existing != nil:
		s.edit(msg.Chat.ID, placeholder.MessageID, s.Localizer.T("link_already", platform.Label(), res.Existing.PlatformUsername))
		return
	}

	note := s.Localizer.T("link_note_patreon")
	if platform == models.PlatformGitHub {
		note = s.Localizer.T("link_note_github", s.SponsorLogin)
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL(s.Localizer.T("link_button", platform.Label()), res.AuthURL),
		),
	)
	prompt := tgbotapi.NewEditMessageTextAndMarkup(msg.Chat.ID, placeholder.MessageID, s.Localizer.T("link_prompt", platform.Label(), note), markup)
	if _, err := s.API.Send(prompt); err != nil {
		s.Logger.Warn("failed to show link prompt", "chat_id", msg.Chat.ID, "error", err)
	}
}

func (s *BotService) edit(chatID int64, messageID int, text string) {
	if _, err := s.API.Send(tgbotapi.NewEditMessageText(chatID, messageID, text)); err != nil {
		s.Logger.Warn("failed to edit message", "chat_id", chatID, "message_id", messageID, "error", err)
	}
}
