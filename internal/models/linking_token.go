package models

import "time"

// LinkingToken is a single-use, time-boxed capability binding a /link request
// to the OAuth callback that eventually answers it. It lives only in the cache.
type LinkingToken struct {
	Token       string   `json:"token"`
	UserID      string   `json:"user_id"`
	DisplayName string   `json:"display_name"`
	Platform    Platform `json:"platform"`
	// CallbackHandle lets the notifier reach the original requester later.
	CallbackHandle string    `json:"callback_handle"`
	IssuedAt       time.Time `json:"issued_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// ExpiredAt reports whether the token's logical lifetime has ended at now.
func (t *LinkingToken) ExpiredAt(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
