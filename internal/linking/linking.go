// Package linking runs the donor linking handshake: a /link request issues
// a single-use token, the platform's OAuth callback later presents it back,
// and the outcome is written to the store and reported to the requester.
//
// Issue and Complete never share a call stack. The only thing connecting
// them is the token, and the CallbackHandle stored inside it.
package linking

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"zahra/backend/internal/cache"
	"zahra/backend/internal/config"
	"zahra/backend/internal/localization"
	"zahra/backend/internal/metrics"
	"zahra/backend/internal/models"
	"zahra/backend/internal/notifier"
	"zahra/backend/internal/storage"
	"zahra/backend/internal/verifier"
)

// Errors returned by Issue and Complete.
var (
	ErrTokenNotFound    = errors.New("linking token not found")
	ErrTokenExpired     = errors.New("linking token expired")
	ErrPlatformMismatch = errors.New("linking token was issued for another platform")
	ErrUnknownPlatform  = errors.New("platform is not configured")
	ErrMissingParams    = errors.New("missing code or state")
)

// Status is the outcome of a completed handshake.
type Status string

const (
	StatusLinked        Status = "linked"
	StatusAlreadyLinked Status = "already_linked"
	StatusFailed        Status = "failed"
	StatusExpired       Status = "expired"
	StatusCancelled     Status = "cancelled"
)

// IssueRequest asks for a linking token for UserID on Platform.
// CallbackHandle says where the outcome is reported.
type IssueRequest struct {
	UserID         string
	DisplayName    string
	Platform       models.Platform
	CallbackHandle string
}

// IssueResult carries either a fresh token or, when the platform is already
// linked, the existing link and no token.
type IssueResult struct {
	Token     string
	AuthURL   string
	ExpiresAt time.Time
	Existing  *models.IdentityLink
}

// Callback is what the platform sends back to /oauth/:platform/callback.
type Callback struct {
	Platform models.Platform
	Code     string
	State    string
	// Error is set instead of Code when the user declined, e.g. "access_denied".
	Error string
}

// Result describes how Complete ended.
type Result struct {
	Status   Status
	Platform models.Platform
	// Reason and Username are set for StatusFailed.
	Reason   verifier.Reason
	Username string
	Identity *verifier.Identity
	User     *models.User
}

// Service issues and completes linking handshakes.
type Service struct {
	store     storage.Storage
	cache     cache.Cache
	aside     cache.Aside
	verifiers verifier.Set
	notifier  notifier.Notifier
	texts     *localization.Localizer
	metrics   metrics.MetricsCollector
	logger    *slog.Logger

	verifyTimeout time.Duration
	now           func() time.Time
}

type Option func(*Service)

// WithClock sets the time source used for token expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithVerifyTimeout bounds a single call to the platform verifier.
func WithVerifyTimeout(d time.Duration) Option {
	return func(s *Service) { s.verifyTimeout = d }
}

func WithMetrics(m metrics.MetricsCollector) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(store storage.Storage, c cache.Cache, vs verifier.Set, n notifier.Notifier, texts *localization.Localizer, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:         store,
		cache:         c,
		aside:         cache.NewAside(c, logger),
		verifiers:     vs,
		notifier:      n,
		texts:         texts,
		metrics:       metrics.Nop{},
		logger:        logger,
		verifyTimeout: config.DefaultVerifyTimeout,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewToken returns LinkTokenBytes random bytes, hex encoded.
func NewToken() (string, error) {
	b := make([]byte, config.LinkTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Issue starts a handshake for req.UserID on req.Platform.
func (s *Service) Issue(ctx context.Context, req IssueRequest) (*IssueResult, error) {
	v, ok := s.verifiers.Get(req.Platform)
	if !ok {
		return nil, ErrUnknownPlatform
	}

	links, err := s.store.GetIdentityLinks(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	for i := range links {
		if links[i].Platform == req.Platform {
			s.metrics.RecordLinkOutcome(string(req.Platform), string(StatusAlreadyLinked))
			return &IssueResult{Existing: &links[i]}, nil
		}
	}

	token, err := NewToken()
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	now := s.now().UTC()
	tok := models.LinkingToken{
		Token:          token,
		UserID:         req.UserID,
		DisplayName:    req.DisplayName,
		Platform:       req.Platform,
		CallbackHandle: req.CallbackHandle,
		IssuedAt:       now,
		ExpiresAt:      now.Add(config.LinkTokenTTL),
	}
	// the token lives only in the cache, so this write is not advisory
	if err := s.cache.Put(ctx, cache.LinkKey(token), &tok, config.LinkTokenTTL); err != nil {
		return nil, fmt.Errorf("store linking token: %w", err)
	}

	s.metrics.RecordLinkIssued(string(req.Platform))
	s.logger.Info("linking token issued", "user_id", req.UserID, "platform", req.Platform)
	return &IssueResult{Token: token, AuthURL: v.AuthURL(token), ExpiresAt: tok.ExpiresAt}, nil
}

// Consume removes the token and returns it. Of any number of concurrent
// callers at most one gets the token. A token whose ExpiresAt has passed is
// rejected even if the cache still held it.
func (s *Service) Consume(ctx context.Context, token string) (*models.LinkingToken, error) {
	if token == "" {
		return nil, ErrTokenNotFound
	}
	var tok models.LinkingToken
	err := s.cache.Take(ctx, cache.LinkKey(token), &tok)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("consume linking token: %w", err)
	}
	if tok.ExpiredAt(s.now()) {
		return &tok, ErrTokenExpired
	}
	return &tok, nil
}

// Complete resolves a callback. User-facing outcomes, including failed
// verification, cancellation and expired tokens, come back as a Result with a
// nil error. ErrMissingParams, ErrPlatformMismatch and infrastructure
// failures are errors.
func (s *Service) Complete(ctx context.Context, cb Callback) (*Result, error) {
	if cb.Error == "" && (cb.Code == "" || cb.State == "") {
		return nil, ErrMissingParams
	}

	tok, res, err := s.claim(ctx, cb)
	if res != nil || err != nil {
		return res, err
	}
	if cb.Error != "" {
		return s.cancel(ctx, tok), nil
	}

	v, ok := s.verifiers.Get(tok.Platform)
	if !ok {
		return nil, ErrUnknownPlatform
	}

	vctx, cancel := context.WithTimeout(ctx, s.verifyTimeout)
	id, err := v.Verify(vctx, cb.Code)
	cancel()
	if err != nil {
		return s.fail(ctx, tok, err), nil
	}

	return s.resolve(ctx, tok, id)
}

func (s *Service) resolve(ctx context.Context, tok *models.LinkingToken, id *verifier.Identity) (*Result, error) {
	user, err := s.store.LinkDonor(ctx,
		models.UserUpsert{UserID: tok.UserID, DisplayName: tok.DisplayName},
		&models.IdentityLink{
			UserID:            tok.UserID,
			Platform:          tok.Platform,
			PlatformAccountID: id.AccountID,
			PlatformUsername:  id.Username,
			VerifiedAt:        s.now().UTC(),
		},
	)
	if err != nil {
		s.logger.Error("failed to record donor link", "user_id", tok.UserID, "platform", tok.Platform, "error", err)
		s.notify(ctx, tok.CallbackHandle, notifier.Message{
			Title:       s.texts.T("link_failed_title", tok.Platform.Label()),
			Description: s.texts.T("error_generic"),
			Outcome:     notifier.OutcomeFailure,
		})
		return nil, err
	}

	s.aside.Put(ctx, cache.UserKey(user.UserID), user, config.UserCacheTTL)
	s.notify(ctx, tok.CallbackHandle, notifier.Message{
		Title:       s.texts.T("link_verified_title", tok.Platform.Label()),
		Description: s.texts.T("link_verified_body", tok.Platform.Label(), id.Username),
		Outcome:     notifier.OutcomeSuccess,
	})
	s.metrics.RecordLinkOutcome(string(tok.Platform), string(StatusLinked))
	s.logger.Info("donor linked", "user_id", tok.UserID, "platform", tok.Platform, "account", id.Username)

	return &Result{Status: StatusLinked, Platform: tok.Platform, Identity: id, User: user}, nil
}

func (s *Service) fail(ctx context.Context, tok *models.LinkingToken, err error) *Result {
	reason := verifier.ReasonOf(err)
	if reason == "" {
		reason = verifier.ReasonServiceError
	}
	var username string
	var verr *verifier.Error
	if errors.As(err, &verr) {
		username = verr.Username
	}

	s.logger.Info("verification failed", "user_id", tok.UserID, "platform", tok.Platform, "reason", reason, "error", err)
	s.notify(ctx, tok.CallbackHandle, notifier.Message{
		Title:       s.texts.T("link_failed_title", tok.Platform.Label()),
		Description: s.ReasonText(tok.Platform, reason, username),
		Outcome:     notifier.OutcomeFailure,
	})
	s.metrics.RecordLinkOutcome(string(tok.Platform), string(StatusFailed))
	return &Result{Status: StatusFailed, Platform: tok.Platform, Reason: reason, Username: username}
}

// ReasonText is the user-facing explanation for a failed verification.
func (s *Service) ReasonText(p models.Platform, reason verifier.Reason, username string) string {
	switch reason {
	case verifier.ReasonExchangeFailed:
		return s.texts.T("link_reason_exchange_failed", p.Label())
	case verifier.ReasonProfileUnavailable:
		return s.texts.T("link_reason_profile_unavailable", p.Label())
	case verifier.ReasonNotSponsor:
		if p == models.PlatformPatreon {
			return s.texts.T("link_reason_not_sponsor_patreon", username)
		}
		return s.texts.T("link_reason_not_sponsor_github", username)
	default:
		return s.texts.T("link_reason_service_error", p.Label())
	}
}

// claim spends the callback's token and checks it was issued for the
// callback's platform. When the token is missing or expired it returns the
// StatusExpired result instead of a token.
func (s *Service) claim(ctx context.Context, cb Callback) (*models.LinkingToken, *Result, error) {
	tok, err := s.Consume(ctx, cb.State)
	switch {
	case errors.Is(err, ErrTokenExpired):
		s.notify(ctx, tok.CallbackHandle, notifier.Message{
			Title:       s.texts.T("link_expired_title"),
			Description: s.texts.T("link_expired_body"),
			Outcome:     notifier.OutcomeFailure,
		})
		fallthrough
	case errors.Is(err, ErrTokenNotFound):
		s.metrics.RecordLinkOutcome(string(cb.Platform), string(StatusExpired))
		return nil, &Result{Status: StatusExpired, Platform: cb.Platform}, nil
	case err != nil:
		return nil, nil, err
	}

	if tok.Platform != cb.Platform {
		s.logger.Warn("linking callback on wrong platform", "token_platform", tok.Platform, "callback_platform", cb.Platform, "user_id", tok.UserID)
		s.notify(ctx, tok.CallbackHandle, notifier.Message{
			Title:       s.texts.T("link_failed_title", tok.Platform.Label()),
			Description: s.texts.T("link_reason_platform_mismatch"),
			Outcome:     notifier.OutcomeFailure,
		})
		s.metrics.RecordLinkOutcome(string(tok.Platform), string(StatusFailed))
		return nil, nil, ErrPlatformMismatch
	}
	return tok, nil, nil
}

// cancel reports a declined authorization for an already spent token.
func (s *Service) cancel(ctx context.Context, tok *models.LinkingToken) *Result {
	s.notify(ctx, tok.CallbackHandle, notifier.Message{
		Title:       s.texts.T("link_cancelled_title", tok.Platform.Label()),
		Description: s.texts.T("link_cancelled_body"),
		Outcome:     notifier.OutcomeInfo,
	})
	s.metrics.RecordLinkOutcome(string(tok.Platform), string(StatusCancelled))
	return &Result{Status: StatusCancelled, Platform: tok.Platform}
}

// notify is best effort; the handle may be stale by the time we get here.
func (s *Service) notify(ctx context.Context, handle string, msg notifier.Message) {
	if s.notifier == nil || handle == "" {
		return
	}
	if err := s.notifier.Notify(ctx, handle, msg); err != nil {
		s.logger.Warn("failed to notify requester", "handle", handle, "error", err)
	}
}
