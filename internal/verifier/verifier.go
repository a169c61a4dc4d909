// Package verifier checks, through a platform's OAuth flow, that a user is
// currently supporting the project on that platform.
package verifier

import (
	"context"
	"errors"
	"fmt"

	"zahra/backend/internal/models"
)

// Reason classifies a failed verification. Each reason gets its own user-facing message.
type Reason string

const (
	ReasonExchangeFailed     Reason = "exchange_failed"
	ReasonProfileUnavailable Reason = "profile_unavailable"
	ReasonNotSponsor         Reason = "not_sponsor"
	ReasonServiceError       Reason = "service_error"
)

// Error is returned by Verify for every unsuccessful outcome.
type Error struct {
	Reason   Reason
	Platform models.Platform
	// Username is the platform account, when known, for not_sponsor messages.
	Username string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s verification failed (%s): %v", e.Platform, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s verification failed (%s)", e.Platform, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// ReasonOf extracts the Reason from err, or "" if err is not an *Error.
func ReasonOf(err error) Reason {
	var verr *Error
	if errors.As(err, &verr) {
		return verr.Reason
	}
	return ""
}

// Identity is a verified platform account.
type Identity struct {
	AccountID string
	Username  string
}

// Verifier runs one platform's OAuth flow. AuthURL builds the consent link
// that carries state; Verify exchanges the returned code and checks support.
type Verifier interface {
	Platform() models.Platform
	// AuthURL is where the user is sent to authorize; state comes back on the callback.
	AuthURL(state string) string
	// Verify exchanges an authorization code and checks for active support.
	Verify(ctx context.Context, code string) (*Identity, error)
}

// Set holds one Verifier per platform.
type Set map[models.Platform]Verifier

// NewSet indexes vs by their Platform.
func NewSet(vs ...Verifier) Set {
	s := make(Set, len(vs))
	for _, v := range vs {
		s[v.Platform()] = v
	}
	return s
}

// Get returns the verifier for p, if one is configured.
func (s Set) Get(p models.Platform) (Verifier, bool) {
	v, ok := s[p]
	return v, ok
}
