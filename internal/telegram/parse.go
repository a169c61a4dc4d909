package telegram

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"zahra/backend/internal/config"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

var (
	ErrBadDuration = errors.New("invalid duration")

	durationRe = regexp.MustCompile(`(?i)^(?:(\d+)d)?(?:(\d+)h)?(?:(\d+)m)?$`)
)

// ParseDuration accepts mute lengths such as "30m", "1h", "1h30m" or "2d".
// The result is at least a minute and at most config.MaxMuteDuration.
func ParseDuration(s string) (time.Duration, error) {
	m := durationRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil || (m[1] == "" && m[2] == "" && m[3] == "") {
		return 0, fmt.Errorf("%w: %q", ErrBadDuration, s)
	}

	var d time.Duration
	for i, unit := range []time.Duration{24 * time.Hour, time.Hour, time.Minute} {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.ParseInt(m[i+1], 10, 64)
		// anything this large is over the cap anyway
		if err != nil || n > 100000 {
			return 0, fmt.Errorf("%w: %q", ErrBadDuration, s)
		}
		d += time.Duration(n) * unit
	}
	if d <= 0 || d > config.MaxMuteDuration {
		return 0, fmt.Errorf("%w: %q", ErrBadDuration, s)
	}
	return d, nil
}

// FormatDuration renders d in the same compact form ParseDuration reads.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return d.Round(time.Second).String()
	}
	var b strings.Builder
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	if days > 0 {
		fmt.Fprintf(&b, "%dd", int64(days))
	}
	if hours > 0 {
		fmt.Fprintf(&b, "%dh", int64(hours))
	}
	if minutes > 0 {
		fmt.Fprintf(&b, "%dm", int64(minutes))
	}
	return b.String()
}

// splitFirst returns the first whitespace-separated word and the trimmed rest.
func splitFirst(s string) (string, string) {
	s = strings.TrimSpace(s)
	i := strings.IndexFunc(s, func(r rune) bool { return r == ' ' || r == '\n' || r == '\t' })
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i:])
}

func displayName(u *tgbotapi.User) string {
	if u == nil {
		return ""
	}
	if u.UserName != "" {
		return "@" + u.UserName
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func userID(u *tgbotapi.User) string {
	return strconv.FormatInt(u.ID, 10)
}

func isGroup(chat tgbotapi.Chat) bool {
	return chat.Type == "group" || chat.Type == "supergroup"
}
