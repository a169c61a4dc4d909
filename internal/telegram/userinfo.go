package telegram

import (
	"context"
	"errors"
	"strings"

	"zahra/backend/internal/models"
	"zahra/backend/internal/users"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// handleUserInfo shows the public card of the replied-to user, or of the
// caller. Anyone may run it; stored notes and account ids stay private.
func (s *BotService) handleUserInfo(ctx context.Context, msg *tgbotapi.Message) {
	target := msg.From
	if msg.ReplyToMessage != nil && msg.ReplyToMessage.From != nil {
		target = msg.ReplyToMessage.From
	}
	id := userID(target)

	p, err := s.Users.GetProfile(ctx, id)
	if err != nil && !errors.Is(err, users.ErrNotFound) {
		s.Logger.Error("failed to load user card", "user_id", id, "error", err)
		s.reply(msg, s.Localizer.T("error_generic"))
		return
	}

	var u *models.User
	var links []string
	if p != nil {
		u = p.User
		for _, l := range p.Links {
			links = append(links, l.Platform.Label()+": "+l.PlatformUsername)
		}
	}

	isBot := s.Localizer.T("no")
	if target.IsBot {
		isBot = s.Localizer.T("yes")
	}
	s.reply(msg, s.Localizer.T("userinfo_card",
		displayName(target),
		id,
		isBot,
		s.orNone(strings.Join(s.badges(u, id == s.OwnerID), "\n")),
		s.orNone(strings.Join(links, "\n")),
	))
}

// badges renders u's group flags in display order. u is nil for users the
// bot has never stored.
func (s *BotService) badges(u *models.User, isOwner bool) []string {
	var out []string
	if isOwner {
		out = append(out, s.Localizer.T("badge_owner"))
	}
	if u == nil {
		return out
	}
	if u.IsDonor {
		out = append(out, s.Localizer.T("badge_donor"))
	}
	if u.IsFriend {
		out = append(out, s.Localizer.T("badge_friend"))
	}
	// one badge covers every girls network role
	if u.IsGirlsNetwork || u.IsGirlsMod || u.IsGirlsBot {
		out = append(out, s.Localizer.T("badge_girls_network"))
	}
	return out
}
