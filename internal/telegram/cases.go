package telegram

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"zahra/backend/internal/ledger"
	"zahra/backend/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const caseDateLayout = "2006-01-02 15:04 UTC"

// handleCase shows one case to the admins of the chat that owns it.
func (s *BotService) handleCase(ctx context.Context, msg *tgbotapi.Message) {
	if !isGroup(msg.Chat) {
		s.reply(msg, s.Localizer.T("group_only"))
		return
	}
	if !s.isChatAdmin(msg.Chat.ID, msg.From.ID) {
		s.reply(msg, s.Localizer.T("not_permitted"))
		return
	}
	raw, _ := splitFirst(msg.CommandArguments())
	if raw == "" {
		s.reply(msg, s.Localizer.T("case_usage"))
		return
	}

	c, err := s.Cases.GetCaseInCommunity(ctx, raw, strconv.FormatInt(msg.Chat.ID, 10))
	if err != nil {
		s.caseError(msg, raw, err)
		return
	}
	s.reply(msg, s.formatCase(c))
}

func (s *BotService) handleCases(ctx context.Context, msg *tgbotapi.Message) {
	if !isGroup(msg.Chat) {
		s.reply(msg, s.Localizer.T("group_only"))
		return
	}
	if !s.isChatAdmin(msg.Chat.ID, msg.From.ID) {
		s.reply(msg, s.Localizer.T("not_permitted"))
		return
	}
	if msg.ReplyToMessage == nil || msg.ReplyToMessage.From == nil {
		s.reply(msg, s.Localizer.T("cases_usage"))
		return
	}

	target := msg.ReplyToMessage.From
	cases, err := s.Cases.ListCasesForUser(ctx, strconv.FormatInt(msg.Chat.ID, 10), userID(target))
	if err != nil {
		s.Logger.Error("failed to list cases", "chat_id", msg.Chat.ID, "target", target.ID, "error", err)
		s.reply(msg, s.Localizer.T("error_generic"))
		return
	}
	if len(cases) == 0 {
		s.reply(msg, s.Localizer.T("cases_none", displayName(target)))
		return
	}

	var b strings.Builder
	b.WriteString(s.Localizer.T("cases_header", displayName(target)))
	for i := range cases {
		c := &cases[i]
		b.WriteString("\n")
		b.WriteString(s.Localizer.T("cases_line",
			c.DisplayID(),
			c.CreatedAt.Format("2006-01-02"),
			strings.ToUpper(string(c.ActionType)),
			c.Reason,
		))
		if !c.Active {
			b.WriteString(" (" + s.Localizer.T("case_pardoned") + ")")
		}
	}
	s.reply(msg, b.String())
}

func (s *BotService) handlePardon(ctx context.Context, msg *tgbotapi.Message) {
	if !isGroup(msg.Chat) {
		s.reply(msg, s.Localizer.T("group_only"))
		return
	}
	if !s.isChatAdmin(msg.Chat.ID, msg.From.ID) {
		s.reply(msg, s.Localizer.T("not_permitted"))
		return
	}
	raw, reason := splitFirst(msg.CommandArguments())
	if raw == "" {
		s.reply(msg, s.Localizer.T("pardon_usage"))
		return
	}

	c, err := s.Cases.Pardon(ctx, raw, strconv.FormatInt(msg.Chat.ID, 10))
	if err != nil {
		s.caseError(msg, raw, err)
		return
	}
	s.Logger.Info("case pardoned", "case_id", c.CaseID, "by", msg.From.ID, "reason", reason)
	s.reply(msg, s.Localizer.T("pardon_done", c.DisplayID()))
}

func (s *BotService) caseError(msg *tgbotapi.Message, raw string, err error) {
	id := models.CaseIDPrefix + models.NormalizeCaseID(raw)
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		s.reply(msg, s.Localizer.T("case_not_found", id))
	case errors.Is(err, ledger.ErrWrongScope):
		s.reply(msg, s.Localizer.T("case_wrong_scope", id))
	case errors.Is(err, ledger.ErrAlreadyInactive):
		s.reply(msg, s.Localizer.T("case_already_inactive", id))
	default:
		s.Logger.Error("case command failed", "case_id", id, "error", err)
		s.reply(msg, s.Localizer.T("error_generic"))
	}
}

func (s *BotService) formatCase(c *models.Case) string {
	status := s.Localizer.T("case_active")
	if !c.Active {
		status = s.Localizer.T("case_pardoned")
	}
	text := s.Localizer.T("case_detail",
		c.DisplayID(),
		strings.ToUpper(string(c.ActionType)),
		c.TargetDisplay+" ("+c.TargetID+")",
		c.ActorDisplay+" ("+c.ActorID+")",
		c.Reason,
		c.CreatedAt.UTC().Format(caseDateLayout),
		status,
	)
	if c.Duration != nil {
		text += "\n" + s.Localizer.T("case_duration", FormatDuration(time.Duration(*c.Duration)*time.Second))
	}
	return text
}
