package telegram_test

import (
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"zahra/backend/internal/cache"
	"zahra/backend/internal/ledger"
	"zahra/backend/internal/linking"
	"zahra/backend/internal/localization"
	"zahra/backend/internal/metrics"
	"zahra/backend/internal/models"
	"zahra/backend/internal/storage"
	"zahra/backend/internal/storage/storagetest"
	"zahra/backend/internal/telegram"
	"zahra/backend/internal/users"
	"zahra/backend/internal/verifier"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const groupID int64 = -100123

var (
	mod    = &tgbotapi.User{ID: 1, FirstName: "Mod", UserName: "mod"}
	bob    = &tgbotapi.User{ID: 7, FirstName: "Bob", UserName: "bob"}
	owner  = &tgbotapi.User{ID: 99, FirstName: "Owner"}
	robot  = &tgbotapi.User{ID: 8, FirstName: "Bot", IsBot: true}
	nobody = &tgbotapi.User{ID: 5, FirstName: "Jane", LastName: "Doe"}
)

type fixture struct {
	bot    *telegram.BotService
	api    *fakeAPI
	store  *storage.Service
	mem    *cache.Memory
	github *stubVerifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	texts, err := localization.New()
	require.NoError(t, err)
	store := storagetest.NewStore(t)
	mem := cache.NewMemory(100, time.Hour)

	f := &fixture{
		api:    &fakeAPI{status: "administrator"},
		store:  store,
		mem:    mem,
		github: &stubVerifier{platform: models.PlatformGitHub},
	}
	cases := ledger.NewService(store, mem, metrics.Nop{}, nil)
	links := linking.NewService(store, mem, verifier.NewSet(f.github), nil, texts, nil)
	us := users.NewService(store, mem, metrics.Nop{}, nil)

	f.bot = telegram.NewBotService(f.api, cases, links, us, texts, nil)
	f.bot.OwnerID = "99"
	f.bot.SponsorLogin = "doughmination"
	return f
}

func command(chat tgbotapi.Chat, from *tgbotapi.User, text string, replyTo *tgbotapi.User) *tgbotapi.Message {
	n := strings.IndexByte(text, ' ')
	if n < 0 {
		n = len(text)
	}
	msg := &tgbotapi.Message{
		MessageID: 50,
		From:      from,
		Chat:      chat,
		Text:      text,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: n}},
	}
	if replyTo != nil {
		msg.ReplyToMessage = &tgbotapi.Message{MessageID: 49, From: replyTo, Chat: chat, Text: "spam spam"}
	}
	return msg
}

func group() tgbotapi.Chat   { return tgbotapi.Chat{ID: groupID, Type: "supergroup"} }
func private() tgbotapi.Chat { return tgbotapi.Chat{ID: 555, Type: "private"} }

func (f *fixture) handle(msg *tgbotapi.Message) {
	f.bot.HandleMessage(context.Background(), msg)
}

func (f *fixture) cases(t *testing.T, target string) []models.Case {
	t.Helper()
	cs, err := f.store.ListCasesByUser(context.Background(), "-100123", target, 25)
	require.NoError(t, err)
	return cs
}

func TestBan_RecordsCaseAfterTelegramAccepts(t *testing.T) {
	f := newFixture(t)

	f.handle(command(group(), mod, "/ban being rude", bob))

	call, ok := f.api.call("banChatMember")
	require.True(t, ok)
	assert.Equal(t, "-100123", call.params["chat_id"])
	assert.Equal(t, "7", call.params["user_id"])

	cs := f.cases(t, "7")
	require.Len(t, cs, 1)
	assert.Equal(t, models.ActionBan, cs[0].ActionType)
	assert.Equal(t, "@bob", cs[0].TargetDisplay)
	assert.Equal(t, "@mod", cs[0].ActorDisplay)
	assert.Equal(t, "being rude", cs[0].Reason)
	assert.Contains(t, f.api.lastText(), "Banned @bob")
	assert.Contains(t, f.api.lastText(), cs[0].DisplayID())

	u, err := f.store.GetUserByID(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, "@bob", u.DisplayName)
}

func TestModeration_Guards(t *testing.T) {
	tests := []struct {
		name     string
		chat     tgbotapi.Chat
		status   string
		text     string
		replyTo  *tgbotapi.User
		wantText string
	}{
		{"private chat", private(), "administrator", "/ban", bob, "only works in groups"},
		{"not an admin", group(), "member", "/ban", bob, "not allowed"},
		{"no reply", group(), "administrator", "/kick", nil, "/kick [reason]"},
		{"self", group(), "creator", "/warn", mod, "cannot warn yourself"},
		{"bot", group(), "administrator", "/ban", robot, "cannot ban a bot"},
		{"mute without duration", group(), "administrator", "/mute", bob, "/mute <duration>"},
		{"mute bad duration", group(), "administrator", "/mute forever spam", bob, `Invalid duration "forever"`},
		{"mute too long", group(), "administrator", "/mute 29d", bob, "up to 28 days"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.api.status = tt.status

			f.handle(command(tt.chat, mod, tt.text, tt.replyTo))

			assert.Contains(t, f.api.lastText(), tt.wantText)
			assert.Empty(t, f.api.endpoints())
			assert.Empty(t, f.cases(t, "7"))
		})
	}
}

func TestMute_RestrictsAndStoresDuration(t *testing.T) {
	f := newFixture(t)
	before := time.Now()

	f.handle(command(group(), mod, "/mute 1h30m flooding", bob))

	call, ok := f.api.call("restrictChatMember")
	require.True(t, ok)
	assert.Contains(t, call.params["permissions"], `"can_send_messages":false`)
	until, err := strconv.ParseInt(call.params["until_date"], 10, 64)
	require.NoError(t, err)
	assert.WithinDuration(t, before.Add(90*time.Minute), time.Unix(until, 0), 5*time.Second)

	cs := f.cases(t, "7")
	require.Len(t, cs, 1)
	require.NotNil(t, cs[0].Duration)
	assert.Equal(t, int64(5400), *cs[0].Duration)
	assert.Equal(t, "flooding", cs[0].Reason)
	assert.Contains(t, f.api.lastText(), "for 1h30m")
}

func TestUnmute_LiftsRestrictions(t *testing.T) {
	f := newFixture(t)

	f.handle(command(group(), mod, "/unmute", bob))

	call, ok := f.api.call("restrictChatMember")
	require.True(t, ok)
	assert.Contains(t, call.params["permissions"], `"can_send_messages":true`)
	assert.NotContains(t, call.params, "until_date")

	cs := f.cases(t, "7")
	require.Len(t, cs, 1)
	assert.Equal(t, models.ActionUnmute, cs[0].ActionType)
	assert.Nil(t, cs[0].Duration)
}

func TestKickAndWarn(t *testing.T) {
	f := newFixture(t)

	f.handle(command(group(), mod, "/kick", bob))
	assert.Equal(t, []string{"banChatMember", "unbanChatMember"}, f.api.endpoints())

	f.handle(command(group(), mod, "/warn be nice", bob))
	assert.Len(t, f.api.endpoints(), 2, "warnings only record a case")

	cs := f.cases(t, "7")
	require.Len(t, cs, 2)
	assert.Equal(t, models.ActionWarn, cs[0].ActionType)
	assert.Equal(t, models.ActionKick, cs[1].ActionType)
	assert.Equal(t, "No reason provided.", cs[1].Reason)
}

func TestModeration_RejectedByTelegram(t *testing.T) {
	f := newFixture(t)
	f.api.failOn = "banChatMember"

	f.handle(command(group(), mod, "/ban", bob))

	assert.Contains(t, f.api.lastText(), "Telegram refused the action")
	assert.Empty(t, f.cases(t, "7"), "no case without a successful action")
}

func TestCaseCommands(t *testing.T) {
	f := newFixture(t)
	f.handle(command(group(), mod, "/mute 2d spam", bob))
	cs := f.cases(t, "7")
	require.Len(t, cs, 1)
	id := cs[0].DisplayID()

	f.handle(command(group(), mod, "/case "+strings.ToUpper(id), nil))
	text := f.api.lastText()
	assert.Contains(t, text, "Case "+id+" (MUTE)")
	assert.Contains(t, text, "@bob (7)")
	assert.Contains(t, text, "Duration: 2d")
	assert.Contains(t, text, "active")

	other := tgbotapi.Chat{ID: -200, Type: "group"}
	f.handle(command(other, mod, "/case "+id, nil))
	assert.Equal(t, "Case "+id+" was not found.", f.api.lastText(), "other chats never learn the case exists")

	f.handle(command(other, mod, "/pardon "+id, nil))
	assert.Contains(t, f.api.lastText(), "belongs to another community")

	f.handle(command(group(), mod, "/pardon "+id+" appeal accepted", nil))
	assert.Contains(t, f.api.lastText(), "has been pardoned")

	f.handle(command(group(), mod, "/pardon "+id, nil))
	assert.Contains(t, f.api.lastText(), "already pardoned")

	f.handle(command(group(), mod, "/case #0000000", nil))
	assert.Contains(t, f.api.lastText(), "#0000000 was not found")

	f.handle(command(group(), mod, "/cases", bob))
	assert.Contains(t, f.api.lastText(), "Cases for @bob")
	assert.Contains(t, f.api.lastText(), id+" ")
	assert.Contains(t, f.api.lastText(), "(pardoned)")

	f.handle(command(group(), mod, "/cases", nobody))
	assert.Contains(t, f.api.lastText(), "No cases recorded for Jane Doe")
}

func TestCase_OnlyChatAdminsSeeCases(t *testing.T) {
	f := newFixture(t)
	f.handle(command(group(), mod, "/mute 2d spam", bob))
	cs := f.cases(t, "7")
	require.Len(t, cs, 1)
	id := cs[0].DisplayID()
	before := len(f.api.sent)

	f.handle(command(private(), nobody, "/case "+id, nil))
	assert.Equal(t, "This command only works in groups.", f.api.lastText())

	f.api.status = "member"
	f.handle(command(group(), nobody, "/case "+id, nil))
	assert.Equal(t, "You are not allowed to use this command.", f.api.lastText())

	for _, m := range f.api.sent[before:] {
		assert.NotContains(t, textOf(m), "spam")
	}
}

func TestLink_BindsTokenToPlaceholder(t *testing.T) {
	f := newFixture(t)

	f.handle(command(private(), bob, "/link github", nil))

	require.Len(t, f.api.sent, 2)
	assert.Equal(t, "Preparing your link...", textOf(f.api.sent[0]))
	prompt, ok := f.api.sent[1].(tgbotapi.EditMessageTextConfig)
	require.True(t, ok)
	assert.Contains(t, prompt.Text, "sponsoring doughmination")

	state := f.github.state()
	require.NotEmpty(t, state)
	tok, err := f.bot.Links.Consume(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, "7", tok.UserID)
	assert.Equal(t, "555:1", tok.CallbackHandle, "handle points at the placeholder")
}

func TestLink_Refusals(t *testing.T) {
	f := newFixture(t)

	f.handle(command(group(), bob, "/link github", nil))
	assert.Contains(t, f.api.lastText(), "private chat")

	f.handle(command(private(), bob, "/link discord", nil))
	assert.Contains(t, f.api.lastText(), "Usage: /link")

	f.handle(command(private(), bob, "/link patreon", nil))
	assert.Contains(t, f.api.lastText(), "Patreon linking is not configured")

	_, err := f.store.LinkDonor(context.Background(), models.UserUpsert{UserID: "7"}, &models.IdentityLink{
		UserID: "7", Platform: models.PlatformGitHub, PlatformAccountID: "42", PlatformUsername: "bobgh", VerifiedAt: time.Now(),
	})
	require.NoError(t, err)
	f.handle(command(private(), bob, "/link github", nil))
	assert.Contains(t, f.api.lastText(), "account bobgh is already verified")
}

func TestAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.handle(command(private(), bob, "/admin userinfo 7", nil))
	assert.Contains(t, f.api.lastText(), "not allowed")

	f.handle(command(private(), owner, "/admin", nil))
	assert.Contains(t, f.api.lastText(), "Usage:")

	f.handle(command(private(), owner, "/admin adduser 7 wizards", nil))
	assert.Contains(t, f.api.lastText(), `Unknown group "wizards"`)

	f.handle(command(private(), owner, "/admin adduser 7 donor github bobgh", nil))
	assert.Contains(t, f.api.lastText(), "Added 7 to is_donor")

	f.handle(command(private(), owner, "/admin adduser 7 friend", nil))
	u, err := f.store.GetUserByID(ctx, "7")
	require.NoError(t, err)
	assert.True(t, u.IsDonor)
	assert.True(t, u.IsFriend)

	f.handle(command(private(), owner, "/admin userinfo 7", nil))
	text := f.api.lastText()
	assert.Contains(t, text, "is_donor, is_friend")
	assert.Contains(t, text, "GitHub Sponsors: bobgh (manual:7)")

	f.handle(command(private(), owner, "/admin removeuser 7 friend", nil))
	assert.Contains(t, f.api.lastText(), "Removed 7 from is_friend")

	f.handle(command(private(), owner, "/admin removeuser 404 friend", nil))
	assert.Contains(t, f.api.lastText(), "User 404 was not found")
}

func TestUserInfo_ShowsBadgesFromCachedUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.handle(command(private(), bob, "/userinfo", nil))
	text := f.api.lastText()
	assert.Contains(t, text, "👤 @bob\nUser ID: 7\nBot: no")
	assert.Contains(t, text, "Badges:\nnone")
	assert.Contains(t, text, "Linked accounts:\nnone")

	_, err := f.store.LinkDonor(ctx, models.UserUpsert{UserID: "7", DisplayName: "@bob", Add: []models.GroupFlag{models.FlagGirlsMod}}, &models.IdentityLink{
		UserID: "7", Platform: models.PlatformGitHub, PlatformAccountID: "4242", PlatformUsername: "bobgh", VerifiedAt: time.Now(),
	})
	require.NoError(t, err)

	f.api.status = "member"
	f.handle(command(group(), nobody, "/userinfo", bob))
	text = f.api.lastText()
	assert.Contains(t, text, "User ID: 7")
	assert.Contains(t, text, "💜 Donor\n🌸 Girls Network")
	assert.Contains(t, text, "GitHub Sponsors: bobgh")
	assert.NotContains(t, text, "4242", "account ids stay private")

	var cached models.User
	require.NoError(t, f.mem.Get(ctx, cache.UserKey("7"), &cached), "the card reads through the user cache")
	assert.True(t, cached.IsDonor)

	f.handle(command(private(), owner, "/userinfo", nil))
	assert.Contains(t, f.api.lastText(), "👑 Zahra Bot Owner")

	f.handle(command(group(), mod, "/userinfo", robot))
	assert.Contains(t, f.api.lastText(), "Bot: yes")
}

func TestHelp(t *testing.T) {
	f := newFixture(t)
	f.handle(command(private(), bob, "/help", nil))
	assert.Contains(t, f.api.lastText(), "/pardon")

	require.Len(t, f.api.sent, 1)
	out, ok := f.api.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, 50, out.ReplyParameters.MessageID, "replies quote the command")
}
