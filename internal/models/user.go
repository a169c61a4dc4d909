package models

import (
	"fmt"
	"time"
)

// GroupFlag names one of the fixed boolean groups a user can belong to.
type GroupFlag int

const (
	FlagDonor GroupFlag = iota
	FlagFriend
	FlagGirlsNetwork
	FlagGirlsMod
	FlagGirlsBot
)

// GroupFlags lists every flag; handy for building choice lists.
var GroupFlags = []GroupFlag{FlagDonor, FlagFriend, FlagGirlsNetwork, FlagGirlsMod, FlagGirlsBot}

// Column returns the users table column backing the flag.
func (f GroupFlag) Column() string {
	switch f {
	case FlagDonor:
		return "is_donor"
	case FlagFriend:
		return "is_friend"
	case FlagGirlsNetwork:
		return "is_girls_network"
	case FlagGirlsMod:
		return "is_girls_mod"
	case FlagGirlsBot:
		return "is_girls_bot"
	}
	panic(fmt.Sprintf("models: unknown group flag %d", int(f)))
}

func (f GroupFlag) String() string {
	return f.Column()
}

// ParseGroupFlag accepts either the column name ("is_donor") or the short form ("donor").
func ParseGroupFlag(s string) (GroupFlag, error) {
	for _, f := range GroupFlags {
		col := f.Column()
		if s == col || "is_"+s == col {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown group %q", s)
}

// User holds per-identity flags and metadata.
type User struct {
	ID             uint      `gorm:"primaryKey" json:"-"`
	UserID         string    `gorm:"type:varchar(32);not null;uniqueIndex" json:"user_id"`
	DisplayName    string    `gorm:"type:varchar(100);not null" json:"display_name"`
	IsDonor        bool      `gorm:"not null;default:false" json:"is_donor"`
	IsFriend       bool      `gorm:"not null;default:false" json:"is_friend"`
	IsGirlsNetwork bool      `gorm:"not null;default:false" json:"is_girls_network"`
	IsGirlsMod     bool      `gorm:"not null;default:false" json:"is_girls_mod"`
	IsGirlsBot     bool      `gorm:"not null;default:false" json:"is_girls_bot"`
	Notes          *string   `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Has reports whether the user belongs to the given group.
func (u *User) Has(f GroupFlag) bool {
	switch f {
	case FlagDonor:
		return u.IsDonor
	case FlagFriend:
		return u.IsFriend
	case FlagGirlsNetwork:
		return u.IsGirlsNetwork
	case FlagGirlsMod:
		return u.IsGirlsMod
	case FlagGirlsBot:
		return u.IsGirlsBot
	}
	return false
}

// Set flips a single flag on the in-memory record.
func (u *User) Set(f GroupFlag, v bool) {
	switch f {
	case FlagDonor:
		u.IsDonor = v
	case FlagFriend:
		u.IsFriend = v
	case FlagGirlsNetwork:
		u.IsGirlsNetwork = v
	case FlagGirlsMod:
		u.IsGirlsMod = v
	case FlagGirlsBot:
		u.IsGirlsBot = v
	}
}

// UserUpsert describes a field-scoped write: DisplayName is refreshed when
// non-empty, each flag in Add is set to true, Notes is written only when non-nil.
// Flags not listed in Add are never touched on an existing row.
type UserUpsert struct {
	UserID      string
	DisplayName string
	Add         []GroupFlag
	Notes       *string
}
