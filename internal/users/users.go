// Package users manages group membership and donor records on top of the Store.
package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"zahra/backend/internal/cache"
	"zahra/backend/internal/config"
	"zahra/backend/internal/metrics"
	"zahra/backend/internal/models"
	"zahra/backend/internal/storage"
)

var (
	ErrNotFound    = errors.New("user not found")
	ErrInvalidUser = errors.New("invalid user")
)

// Profile is a user together with their active identity links.
type Profile struct {
	User  *models.User
	Links []models.IdentityLink
}

// Service manages user group membership and identity links.
type Service struct {
	store   storage.Storage
	cache   cache.Aside
	metrics metrics.MetricsCollector
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(store storage.Storage, c cache.Cache, m metrics.MetricsCollector, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.Nop{}
	}
	return &Service{
		store:   store,
		cache:   cache.NewAside(c, logger),
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// GetUser serves the user from cache, falling back to the Store.
func (s *Service) GetUser(ctx context.Context, userID string) (*models.User, error) {
	u, hit, err := cache.Fetch(ctx, s.cache, cache.UserKey(userID), config.UserCacheTTL,
		func(ctx context.Context) (*models.User, error) {
			return s.store.GetUserByID(ctx, userID)
		})
	s.metrics.RecordCacheLookup("user", hit)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", userID, err)
	}
	return u, nil
}

// GetProfile returns the user, through the cache like GetUser, and their
// active links read from the Store.
func (s *Service) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	links, err := s.store.GetIdentityLinks(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get links for %s: %w", userID, err)
	}
	return &Profile{User: u, Links: links}, nil
}

// Remember records a user the first time they are referenced, refreshing the
// display name on later calls. Flags are left alone. An empty displayName
// keeps whatever is stored, or the user id for a new row.
func (s *Service) Remember(ctx context.Context, userID, displayName string) (*models.User, error) {
	return s.upsert(ctx, models.UserUpsert{UserID: userID, DisplayName: displayName})
}

// AddToGroup sets flag on the user, creating them if needed. A non-nil notes
// overwrites the stored notes.
func (s *Service) AddToGroup(ctx context.Context, userID, displayName string, flag models.GroupFlag, notes *string) (*models.User, error) {
	return s.upsert(ctx, models.UserUpsert{
		UserID:      userID,
		DisplayName: displayName,
		Add:         []models.GroupFlag{flag},
		Notes:       notes,
	})
}

// RemoveFromGroup clears flag. It does not create unknown users.
func (s *Service) RemoveFromGroup(ctx context.Context, userID string, flag models.GroupFlag) (*models.User, error) {
	u, err := s.store.SetUserFlag(ctx, userID, flag, false)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("remove %s from %s: %w", userID, flag, err)
	}
	s.cache.Put(ctx, cache.UserKey(u.UserID), u, config.UserCacheTTL)
	return u, nil
}

// GrantDonor marks the user as a donor and records a manual identity link for
// platform. The account id is synthetic so it never collides with a verified one.
func (s *Service) GrantDonor(ctx context.Context, userID, displayName string, platform models.Platform, platformUsername string, notes *string) (*models.User, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: empty user id", ErrInvalidUser)
	}
	if platformUsername == "" {
		platformUsername = displayName
	}
	if platformUsername == "" {
		platformUsername = userID
	}
	link := &models.IdentityLink{
		UserID:            userID,
		Platform:          platform,
		PlatformAccountID: config.ManualAccountPrefix + userID,
		PlatformUsername:  platformUsername,
		VerifiedAt:        s.now().UTC(),
		Active:            true,
	}
	u, err := s.store.LinkDonor(ctx, models.UserUpsert{UserID: userID, DisplayName: displayName, Notes: notes}, link)
	if err != nil {
		return nil, fmt.Errorf("grant donor to %s: %w", userID, err)
	}
	s.cache.Put(ctx, cache.UserKey(u.UserID), u, config.UserCacheTTL)
	s.logger.Info("donor granted manually", "user_id", userID, "platform", platform)
	return u, nil
}

// Unlink deactivates the user's link for platform. It reports false when
// there was no active link. The donor flag is managed separately.
func (s *Service) Unlink(ctx context.Context, userID string, platform models.Platform) (bool, error) {
	ok, err := s.store.DeactivateIdentityLink(ctx, userID, platform)
	if err != nil {
		return false, fmt.Errorf("unlink %s from %s: %w", userID, platform, err)
	}
	if ok {
		s.logger.Info("identity link deactivated", "user_id", userID, "platform", platform)
	}
	return ok, nil
}

func (s *Service) upsert(ctx context.Context, in models.UserUpsert) (*models.User, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return nil, fmt.Errorf("%w: empty user id", ErrInvalidUser)
	}
	u, err := s.store.UpsertUser(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("upsert user %s: %w", in.UserID, err)
	}
	s.cache.Put(ctx, cache.UserKey(u.UserID), u, config.UserCacheTTL)
	return u, nil
}
