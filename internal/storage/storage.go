// Package storage is the durable source of truth for cases, users and
// identity links. Everything is backed by gorm; production runs on
// PostgreSQL with the schema from migrations/, tests run on SQLite.
package storage

import (
	"context"
	"errors"
	"fmt"

	"zahra/backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound        = errors.New("storage: record not found")
	ErrDuplicateCaseID = errors.New("storage: case id already exists")
	// ErrUnavailable wraps any driver failure the caller cannot act on.
	ErrUnavailable = errors.New("storage: unavailable")
)

type Storage interface {
	CaseExists(ctx context.Context, caseID string) (bool, error)
	CreateCase(ctx context.Context, c *models.Case) error
	GetCaseByID(ctx context.Context, caseID string) (*models.Case, error)
	GetCaseInCommunity(ctx context.Context, caseID, communityID string) (*models.Case, error)
	ListCasesByUser(ctx context.Context, communityID, targetID string, limit int) ([]models.Case, error)
	DeactivateCase(ctx context.Context, caseID, communityID string) (bool, error)

	UpsertUser(ctx context.Context, u models.UserUpsert) (*models.User, error)
	SetUserFlag(ctx context.Context, userID string, flag models.GroupFlag, value bool) (*models.User, error)
	GetUserByID(ctx context.Context, userID string) (*models.User, error)

	UpsertIdentityLink(ctx context.Context, link *models.IdentityLink) error
	LinkDonor(ctx context.Context, u models.UserUpsert, link *models.IdentityLink) (*models.User, error)
	GetIdentityLinks(ctx context.Context, userID string) ([]models.IdentityLink, error)
	DeactivateIdentityLink(ctx context.Context, userID string, platform models.Platform) (bool, error)

	Ping(ctx context.Context) error
}

type Service struct {
	DB *gorm.DB
}

// NewStorageService wraps an open gorm handle. The handle must have been
// opened with TranslateError so unique violations surface as gorm.ErrDuplicatedKey.
func NewStorageService(db *gorm.DB) *Service {
	return &Service{DB: db}
}

// translate maps driver errors onto the package's sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}

// --- Cases ---

func (s *Service) CaseExists(ctx context.Context, caseID string) (bool, error) {
	var n int64
	err := s.DB.WithContext(ctx).Model(&models.Case{}).
		Where("case_id = ?", caseID).
		Count(&n).Error
	if err != nil {
		return false, translate(err)
	}
	return n > 0, nil
}

// CreateCase inserts c. The unique index on case_id is the final arbiter:
// losing a race to another writer yields ErrDuplicateCaseID and nothing is written.
func (s *Service) CreateCase(ctx context.Context, c *models.Case) error {
	err := s.DB.WithContext(ctx).Create(c).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateCaseID
	}
	return translate(err)
}

func (s *Service) GetCaseByID(ctx context.Context, caseID string) (*models.Case, error) {
	var c models.Case
	if err := s.DB.WithContext(ctx).Where("case_id = ?", caseID).First(&c).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (s *Service) GetCaseInCommunity(ctx context.Context, caseID, communityID string) (*models.Case, error) {
	var c models.Case
	err := s.DB.WithContext(ctx).
		Where("case_id = ? AND community_id = ?", caseID, communityID).
		First(&c).Error
	if err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

// ListCasesByUser returns the newest cases against targetID first.
func (s *Service) ListCasesByUser(ctx context.Context, communityID, targetID string, limit int) ([]models.Case, error) {
	cases := []models.Case{}
	err := s.DB.WithContext(ctx).
		Where("community_id = ? AND target_id = ?", communityID, targetID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&cases).Error
	if err != nil {
		return nil, translate(err)
	}
	return cases, nil
}

// DeactivateCase flips active to false only if the case belongs to
// communityID and is still active. It reports whether a row changed.
func (s *Service) DeactivateCase(ctx context.Context, caseID, communityID string) (bool, error) {
	res := s.DB.WithContext(ctx).Model(&models.Case{}).
		Where("case_id = ? AND community_id = ? AND active = ?", caseID, communityID, true).
		Update("active", false)
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected == 1, nil
}

// --- Users ---

// upsertUser only ever assigns the columns the caller asked for, so two
// writers touching different flags on the same user cannot undo each other.
func upsertUser(tx *gorm.DB, u models.UserUpsert) error {
	row := models.User{UserID: u.UserID, DisplayName: u.DisplayName, Notes: u.Notes}
	cols := []string{"updated_at"}
	if u.DisplayName != "" {
		cols = append(cols, "display_name")
	} else {
		row.DisplayName = u.UserID
	}
	for _, f := range u.Add {
		row.Set(f, true)
		cols = append(cols, f.Column())
	}
	if u.Notes != nil {
		cols = append(cols, "notes")
	}

	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns(cols),
	}).Create(&row).Error
}

func (s *Service) UpsertUser(ctx context.Context, u models.UserUpsert) (*models.User, error) {
	db := s.DB.WithContext(ctx)
	if err := upsertUser(db, u); err != nil {
		return nil, translate(err)
	}
	return s.GetUserByID(ctx, u.UserID)
}

// SetUserFlag writes a single flag column on an existing user.
func (s *Service) SetUserFlag(ctx context.Context, userID string, flag models.GroupFlag, value bool) (*models.User, error) {
	res := s.DB.WithContext(ctx).Model(&models.User{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{flag.Column(): value})
	if res.Error != nil {
		return nil, translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.GetUserByID(ctx, userID)
}

func (s *Service) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	var u models.User
	if err := s.DB.WithContext(ctx).Where("user_id = ?", userID).First(&u).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

// --- Identity links ---

func upsertIdentityLink(tx *gorm.DB, link *models.IdentityLink) error {
	link.Active = true
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "platform"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"platform_account_id", "platform_username", "verified_at", "active",
		}),
	}).Create(link).Error
}

// UpsertIdentityLink creates the (user, platform) link or replaces the
// account on the existing one and re-activates it.
func (s *Service) UpsertIdentityLink(ctx context.Context, link *models.IdentityLink) error {
	return translate(upsertIdentityLink(s.DB.WithContext(ctx), link))
}

// LinkDonor records a successful verification: the donor flag and the
// identity link are written together or not at all.
func (s *Service) LinkDonor(ctx context.Context, u models.UserUpsert, link *models.IdentityLink) (*models.User, error) {
	u.Add = append(u.Add, models.FlagDonor)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := upsertUser(tx, u); err != nil {
			return err
		}
		return upsertIdentityLink(tx, link)
	})
	if err != nil {
		return nil, translate(err)
	}
	return s.GetUserByID(ctx, u.UserID)
}

// GetIdentityLinks returns the user's active links.
func (s *Service) GetIdentityLinks(ctx context.Context, userID string) ([]models.IdentityLink, error) {
	links := []models.IdentityLink{}
	err := s.DB.WithContext(ctx).
		Where("user_id = ? AND active = ?", userID, true).
		Order("platform").
		Find(&links).Error
	if err != nil {
		return nil, translate(err)
	}
	return links, nil
}

func (s *Service) DeactivateIdentityLink(ctx context.Context, userID string, platform models.Platform) (bool, error) {
	res := s.DB.WithContext(ctx).Model(&models.IdentityLink{}).
		Where("user_id = ? AND platform = ? AND active = ?", userID, platform, true).
		Update("active", false)
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *Service) Ping(ctx context.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return translate(err)
	}
	return translate(sqlDB.PingContext(ctx))
}

var _ Storage = (*Service)(nil)
