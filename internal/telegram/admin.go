package telegram

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"zahra/backend/internal/models"
	"zahra/backend/internal/users"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// handleAdmin serves the owner-only user management subcommands:
//
//	/admin adduser <user_id> <group> [platform] [platform_username]
//	/admin removeuser <user_id> <group>
//	/admin userinfo <user_id>
func (s *BotService) handleAdmin(ctx context.Context, msg *tgbotapi.Message) {
	if s.OwnerID == "" || userID(msg.From) != s.OwnerID {
		s.reply(msg, s.Localizer.T("not_permitted"))
		return
	}

	args := strings.Fields(msg.CommandArguments())
	if len(args) < 2 {
		s.reply(msg, s.Localizer.T("admin_usage"))
		return
	}
	sub, target := args[0], args[1]
	if _, err := strconv.ParseInt(target, 10, 64); err != nil {
		s.reply(msg, s.Localizer.T("admin_usage"))
		return
	}

	switch sub {
	case "adduser":
		if len(args) < 3 {
			s.reply(msg, s.Localizer.T("admin_usage"))
			return
		}
		s.adminAdd(ctx, msg, target, args[2], args[3:])
	case "removeuser":
		if len(args) < 3 {
			s.reply(msg, s.Localizer.T("admin_usage"))
			return
		}
		s.adminRemove(ctx, msg, target, args[2])
	case "userinfo":
		s.adminInfo(ctx, msg, target)
	default:
		s.reply(msg, s.Localizer.T("admin_usage"))
	}
}

func (s *BotService) adminAdd(ctx context.Context, msg *tgbotapi.Message, target, group string, rest []string) {
	flag, err := models.ParseGroupFlag(group)
	if err != nil {
		s.reply(msg, s.Localizer.T("admin_unknown_group", group))
		return
	}

	// an empty display name keeps the stored one
	if flag == models.FlagDonor && len(rest) > 0 {
		platform, err := models.ParsePlatform(rest[0])
		if err != nil {
			s.reply(msg, s.Localizer.T("admin_unknown_platform", rest[0]))
			return
		}
		username := ""
		if len(rest) > 1 {
			username = rest[1]
		}
		if _, err := s.Users.GrantDonor(ctx, target, "", platform, username, nil); err != nil {
			s.adminError(msg, target, err)
			return
		}
	} else if _, err := s.Users.AddToGroup(ctx, target, "", flag, nil); err != nil {
		s.adminError(msg, target, err)
		return
	}
	s.reply(msg, s.Localizer.T("admin_user_added", target, flag))
}

func (s *BotService) adminRemove(ctx context.Context, msg *tgbotapi.Message, target, group string) {
	flag, err := models.ParseGroupFlag(group)
	if err != nil {
		s.reply(msg, s.Localizer.T("admin_unknown_group", group))
		return
	}
	if _, err := s.Users.RemoveFromGroup(ctx, target, flag); err != nil {
		s.adminError(msg, target, err)
		return
	}
	s.reply(msg, s.Localizer.T("admin_user_removed", target, flag))
}

func (s *BotService) adminInfo(ctx context.Context, msg *tgbotapi.Message, target string) {
	p, err := s.Users.GetProfile(ctx, target)
	if err != nil {
		s.adminError(msg, target, err)
		return
	}

	var groups []string
	for _, f := range models.GroupFlags {
		if p.User.Has(f) {
			groups = append(groups, f.String())
		}
	}
	var links []string
	for _, l := range p.Links {
		links = append(links, l.Platform.Label()+": "+l.PlatformUsername+" ("+l.PlatformAccountID+")")
	}
	notes := s.Localizer.T("none")
	if p.User.Notes != nil && *p.User.Notes != "" {
		notes = *p.User.Notes
	}

	s.reply(msg, s.Localizer.T("admin_userinfo",
		p.User.DisplayName,
		p.User.UserID,
		s.orNone(strings.Join(groups, ", ")),
		s.orNone(strings.Join(links, "; ")),
		notes,
	))
}

func (s *BotService) orNone(v string) string {
	if v == "" {
		return s.Localizer.T("none")
	}
	return v
}

func (s *BotService) adminError(msg *tgbotapi.Message, target string, err error) {
	if errors.Is(err, users.ErrNotFound) {
		s.reply(msg, s.Localizer.T("admin_user_not_found", target))
		return
	}
	s.Logger.Error("admin command failed", "target", target, "error", err)
	s.reply(msg, s.Localizer.T("error_generic"))
}
