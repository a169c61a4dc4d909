package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"zahra/backend/internal/ledger"
	"zahra/backend/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

var (
	mutedPermissions = map[string]bool{
		"can_send_messages":         false,
		"can_send_audios":           false,
		"can_send_documents":        false,
		"can_send_photos":           false,
		"can_send_videos":           false,
		"can_send_video_notes":      false,
		"can_send_voice_notes":      false,
		"can_send_polls":            false,
		"can_send_other_messages":   false,
		"can_add_web_page_previews": false,
	}
	unmutedPermissions = map[string]bool{
		"can_send_messages":         true,
		"can_send_audios":           true,
		"can_send_documents":        true,
		"can_send_photos":           true,
		"can_send_videos":           true,
		"can_send_video_notes":      true,
		"can_send_voice_notes":      true,
		"can_send_polls":            true,
		"can_send_other_messages":   true,
		"can_add_web_page_previews": true,
	}
)

// handleModeration applies action to the author of the replied-to message
// and records a case once Telegram has accepted it.
func (s *BotService) handleModeration(ctx context.Context, msg *tgbotapi.Message, action models.ActionType) {
	if !isGroup(msg.Chat) {
		s.reply(msg, s.Localizer.T("group_only"))
		return
	}
	if !s.isChatAdmin(msg.Chat.ID, msg.From.ID) {
		s.reply(msg, s.Localizer.T("not_permitted"))
		return
	}

	var target *tgbotapi.User
	if msg.ReplyToMessage != nil {
		target = msg.ReplyToMessage.From
	}
	if target == nil {
		if action == models.ActionMute {
			s.reply(msg, s.Localizer.T("mute_usage"))
		} else {
			s.reply(msg, s.Localizer.T("mod_usage", action))
		}
		return
	}
	if target.ID == msg.From.ID {
		s.reply(msg, s.Localizer.T("mod_self", action))
		return
	}
	if target.IsBot {
		s.reply(msg, s.Localizer.T("mod_bot", action))
		return
	}

	reason := msg.CommandArguments()
	var duration *time.Duration
	if action == models.ActionMute {
		raw, rest := splitFirst(reason)
		if raw == "" {
			s.reply(msg, s.Localizer.T("mute_usage"))
			return
		}
		d, err := ParseDuration(raw)
		if err != nil {
			s.reply(msg, s.Localizer.T("mute_bad_duration", raw))
			return
		}
		duration, reason = &d, rest
	}

	if err := s.apply(msg.Chat.ID, target.ID, action, duration); err != nil {
		s.Logger.Warn("moderation action rejected", "action", action, "chat_id", msg.Chat.ID, "target", target.ID, "error", err)
		s.reply(msg, s.Localizer.T("mod_failed", err.Error()))
		return
	}

	targetName := displayName(target)
	if _, err := s.Users.Remember(ctx, userID(target), targetName); err != nil {
		s.Logger.Warn("failed to record user", "user_id", target.ID, "error", err)
	}

	c, err := s.Cases.CreateCase(ctx, ledger.NewCase{
		CommunityID:   strconv.FormatInt(msg.Chat.ID, 10),
		ActionType:    action,
		TargetID:      userID(target),
		TargetDisplay: targetName,
		ActorID:       userID(msg.From),
		ActorDisplay:  displayName(msg.From),
		Reason:        reason,
		Duration:      duration,
	})
	if err != nil {
		// the action itself already went through
		s.Logger.Error("failed to record case", "action", action, "chat_id", msg.Chat.ID, "target", target.ID, "error", err)
		if errors.Is(err, ledger.ErrCapacityExhausted) {
			s.reply(msg, s.Localizer.T("case_capacity"))
		} else {
			s.reply(msg, s.Localizer.T("error_generic"))
		}
		return
	}

	label := s.Localizer.T("action_" + string(action))
	if duration != nil {
		s.reply(msg, s.Localizer.T("mod_done_mute", label, targetName, FormatDuration(*duration), c.Reason, c.DisplayID()))
		return
	}
	s.reply(msg, s.Localizer.T("mod_done", label, targetName, c.Reason, c.DisplayID()))
}

// apply performs the action through the Bot API. Warnings need no call.
func (s *BotService) apply(chatID, targetID int64, action models.ActionType, duration *time.Duration) error {
	params := chatParams(chatID, targetID)

	switch action {
	case models.ActionBan:
		_, err := s.call("banChatMember", params)
		return err
	case models.ActionUnban:
		params["only_if_banned"] = "true"
		_, err := s.call("unbanChatMember", params)
		return err
	case models.ActionKick:
		if _, err := s.call("banChatMember", params); err != nil {
			return err
		}
		// unbanning right away turns the ban into a kick
		params["only_if_banned"] = "true"
		_, err := s.call("unbanChatMember", params)
		return err
	case models.ActionMute, models.ActionUnmute:
		perms := unmutedPermissions
		if action == models.ActionMute {
			perms = mutedPermissions
			params["until_date"] = strconv.FormatInt(time.Now().Add(*duration).Unix(), 10)
		}
		b, err := json.Marshal(perms)
		if err != nil {
			return err
		}
		params["permissions"] = string(b)
		params["use_independent_chat_permissions"] = "true"
		_, err = s.call("restrictChatMember", params)
		return err
	}
	return nil
}
