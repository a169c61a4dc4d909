// Package ledger records moderation actions as uniquely identified cases
// and serves them back through a read-through cache.
package ledger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
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
	ErrNotFound          = errors.New("case not found")
	ErrWrongScope        = errors.New("case belongs to another community")
	ErrAlreadyInactive   = errors.New("case is already inactive")
	ErrCapacityExhausted = errors.New("could not allocate a unique case id")
	ErrInvalidCase       = errors.New("invalid case")
)

// NewCase is the input to CreateCase.
type NewCase struct {
	CommunityID   string
	ActionType    models.ActionType
	TargetID      string
	TargetDisplay string
	ActorID       string
	ActorDisplay  string
	Reason        string
	// Duration is required for mutes and must be nil otherwise.
	Duration *time.Duration
}

// Service creates, reads and pardons cases. Reads go through the cache;
// writes go to the store first and refresh the cache afterwards.
type Service struct {
	store   storage.Storage
	cache   cache.Aside
	metrics metrics.MetricsCollector
	logger  *slog.Logger

	newID func() (string, error)
	now   func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithIDGenerator replaces the random case id source.
func WithIDGenerator(gen func() (string, error)) Option {
	return func(s *Service) { s.newID = gen }
}

// WithClock sets the time source used for case timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store storage.Storage, c cache.Cache, m metrics.MetricsCollector, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.Nop{}
	}
	s := &Service{
		store:   store,
		cache:   cache.NewAside(c, logger),
		metrics: m,
		logger:  logger,
		newID:   GenerateCaseID,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GenerateCaseID returns CaseIDLength lowercase hex characters from crypto/rand.
func GenerateCaseID() (string, error) {
	b := make([]byte, (config.CaseIDLength+1)/2)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b)[:config.CaseIDLength], nil
}

// ValidCaseID reports whether id is in stored form.
func ValidCaseID(id string) bool {
	if len(id) != config.CaseIDLength {
		return false
	}
	for _, r := range id {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

func (s *Service) build(in NewCase) (*models.Case, error) {
	if !in.ActionType.Valid() {
		return nil, fmt.Errorf("%w: unknown action %q", ErrInvalidCase, in.ActionType)
	}
	if in.CommunityID == "" || in.TargetID == "" || in.ActorID == "" {
		return nil, fmt.Errorf("%w: community, target and actor are required", ErrInvalidCase)
	}

	c := &models.Case{
		CommunityID:   in.CommunityID,
		ActionType:    in.ActionType,
		TargetID:      in.TargetID,
		TargetDisplay: orDefault(in.TargetDisplay, in.TargetID),
		ActorID:       in.ActorID,
		ActorDisplay:  orDefault(in.ActorDisplay, in.ActorID),
		Reason:        orDefault(strings.TrimSpace(in.Reason), config.DefaultCaseReason),
		CreatedAt:     s.now().UTC().Truncate(time.Microsecond),
		Active:        true,
	}

	switch {
	case in.ActionType == models.ActionMute && in.Duration == nil:
		return nil, fmt.Errorf("%w: mute requires a duration", ErrInvalidCase)
	case in.ActionType != models.ActionMute && in.Duration != nil:
		return nil, fmt.Errorf("%w: only mutes carry a duration", ErrInvalidCase)
	case in.Duration != nil:
		d := *in.Duration
		if d < time.Second || d > config.MaxMuteDuration {
			return nil, fmt.Errorf("%w: mute duration %s out of range", ErrInvalidCase, d)
		}
		secs := int64(d / time.Second)
		c.Duration = &secs
	}
	return c, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// CreateCase allocates a fresh case id and writes the case. An id that
// already exists, or that another writer claims between the existence check
// and the insert, costs one attempt; after CaseIDMaxRetries retries the call
// fails with ErrCapacityExhausted.
func (s *Service) CreateCase(ctx context.Context, in NewCase) (*models.Case, error) {
	c, err := s.build(in)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt <= config.CaseIDMaxRetries; attempt++ {
		id, err := s.newID()
		if err != nil {
			return nil, fmt.Errorf("generate case id: %w", err)
		}

		exists, err := s.store.CaseExists(ctx, id)
		if err != nil {
			return nil, err
		}
		if exists {
			s.metrics.RecordCaseIDCollision()
			s.logger.Debug("case id collision", "case_id", id, "attempt", attempt)
			continue
		}

		c.ID = 0
		c.CaseID = id
		err = s.store.CreateCase(ctx, c)
		if errors.Is(err, storage.ErrDuplicateCaseID) {
			s.metrics.RecordCaseIDCollision()
			s.logger.Debug("case id taken during insert", "case_id", id, "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, err
		}

		s.metrics.RecordCaseCreated(string(c.ActionType))
		s.cache.Put(ctx, cache.CaseKey(c.CaseID), c, config.CaseCacheTTL)
		s.logger.Info("case created",
			"case_id", c.CaseID,
			"community_id", c.CommunityID,
			"action", c.ActionType,
			"target_id", c.TargetID,
			"actor_id", c.ActorID,
		)
		return c, nil
	}

	s.metrics.RecordCaseIDExhausted()
	s.logger.Warn("case id space exhausted",
		"attempts", config.CaseIDMaxRetries+1,
		"community_id", c.CommunityID,
	)
	return nil, ErrCapacityExhausted
}

// GetCase looks a case up by id in any display form ("#A3F9B2C", "a3f9b2c").
func (s *Service) GetCase(ctx context.Context, rawID string) (*models.Case, error) {
	id := models.NormalizeCaseID(rawID)
	if !ValidCaseID(id) {
		return nil, ErrNotFound
	}

	c, hit, err := cache.Fetch(ctx, s.cache, cache.CaseKey(id), config.CaseCacheTTL, func(ctx context.Context) (*models.Case, error) {
		c, err := s.store.GetCaseByID(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return c, err
	})
	s.metrics.RecordCacheLookup("case", hit)
	return c, err
}

// GetCaseInCommunity is GetCase restricted to one community. A case owned by
// another community is reported as ErrNotFound, so its existence is not revealed.
func (s *Service) GetCaseInCommunity(ctx context.Context, rawID, communityID string) (*models.Case, error) {
	id := models.NormalizeCaseID(rawID)
	if !ValidCaseID(id) {
		return nil, ErrNotFound
	}

	c, hit, err := cache.Fetch(ctx, s.cache, cache.CaseKey(id), config.CaseCacheTTL, func(ctx context.Context) (*models.Case, error) {
		c, err := s.store.GetCaseInCommunity(ctx, id, communityID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return c, err
	})
	s.metrics.RecordCacheLookup("case", hit)
	if err != nil {
		return nil, err
	}
	// a cached copy may belong to anyone
	if c.CommunityID != communityID {
		return nil, ErrNotFound
	}
	return c, nil
}

// ListCasesForUser returns the most recent cases against targetID in the community.
func (s *Service) ListCasesForUser(ctx context.Context, communityID, targetID string) ([]models.Case, error) {
	return s.store.ListCasesByUser(ctx, communityID, targetID, config.CaseHistoryLimit)
}

// Pardon deactivates a case owned by communityID. It reads the Store rather
// than the cache so scope and state checks never act on a stale copy.
func (s *Service) Pardon(ctx context.Context, rawID, communityID string) (*models.Case, error) {
	id := models.NormalizeCaseID(rawID)
	if !ValidCaseID(id) {
		return nil, ErrNotFound
	}

	c, err := s.store.GetCaseByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if c.CommunityID != communityID {
		return nil, ErrWrongScope
	}
	if !c.Active {
		return nil, ErrAlreadyInactive
	}

	changed, err := s.store.DeactivateCase(ctx, id, communityID)
	if err != nil {
		return nil, err
	}
	if !changed {
		// someone else pardoned it between our read and the update
		s.cache.Drop(ctx, cache.CaseKey(id))
		return nil, ErrAlreadyInactive
	}

	c.Active = false
	s.cache.Put(ctx, cache.CaseKey(id), c, config.CaseCacheTTL)
	s.logger.Info("case pardoned", "case_id", id, "community_id", communityID)
	return c, nil
}
