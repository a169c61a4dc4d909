package models

import (
	"fmt"
	"time"
)

// Platform is an external sponsorship platform a user can link.
type Platform string

const (
	PlatformGitHub  Platform = "github"
	PlatformPatreon Platform = "patreon"
)

// Platforms lists the supported platforms.
var Platforms = []Platform{PlatformGitHub, PlatformPatreon}

// ParsePlatform validates a platform name coming from a command or URL.
func ParsePlatform(s string) (Platform, error) {
	switch Platform(s) {
	case PlatformGitHub, PlatformPatreon:
		return Platform(s), nil
	}
	return "", fmt.Errorf("unknown platform %q", s)
}

// Label is the human-readable platform name.
func (p Platform) Label() string {
	switch p {
	case PlatformGitHub:
		return "GitHub Sponsors"
	case PlatformPatreon:
		return "Patreon"
	}
	return string(p)
}

// IdentityLink is a verified association between a user and one external
// sponsorship account. There is at most one row per (UserID, Platform).
type IdentityLink struct {
	ID                uint      `gorm:"primaryKey" json:"-"`
	UserID            string    `gorm:"type:varchar(32);not null;uniqueIndex:idx_identity_links_user_platform;index" json:"user_id"`
	Platform          Platform  `gorm:"type:varchar(20);not null;uniqueIndex:idx_identity_links_user_platform;index:idx_identity_links_platform_account" json:"platform"`
	PlatformAccountID string    `gorm:"type:varchar(100);not null;index:idx_identity_links_platform_account" json:"platform_account_id"`
	PlatformUsername  string    `gorm:"type:varchar(100);not null" json:"platform_username"`
	VerifiedAt        time.Time `gorm:"not null" json:"verified_at"`
	Active            bool      `gorm:"not null;default:true" json:"active"`
}
