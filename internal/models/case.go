package models

import (
	"strings"
	"time"
)

// ActionType is the kind of moderation action a Case records.
type ActionType string

const (
	ActionBan    ActionType = "ban"
	ActionUnban  ActionType = "unban"
	ActionKick   ActionType = "kick"
	ActionWarn   ActionType = "warn"
	ActionMute   ActionType = "mute"
	ActionUnmute ActionType = "unmute"
)

// ActionTypes lists every supported action in display order.
var ActionTypes = []ActionType{ActionBan, ActionUnban, ActionKick, ActionWarn, ActionMute, ActionUnmute}

// Valid reports whether a is one of the supported actions.
func (a ActionType) Valid() bool {
	switch a {
	case ActionBan, ActionUnban, ActionKick, ActionWarn, ActionMute, ActionUnmute:
		return true
	}
	return false
}

// CaseIDPrefix is shown in front of case ids but never stored.
const CaseIDPrefix = "#"

// Case is an immutable audit record of one moderation action.
// Only Active ever changes after creation, and only from true to false.
type Case struct {
	// ID is the surrogate primary key; CaseID is the public identifier.
	ID uint `gorm:"primaryKey" json:"-"`

	CaseID        string     `gorm:"type:varchar(8);not null;uniqueIndex" json:"case_id"`
	CommunityID   string     `gorm:"type:varchar(32);not null;index:idx_cases_community_target" json:"community_id"`
	ActionType    ActionType `gorm:"type:varchar(10);not null" json:"action_type"`
	TargetID      string     `gorm:"type:varchar(32);not null;index:idx_cases_community_target" json:"target_id"`
	TargetDisplay string     `gorm:"type:varchar(100);not null" json:"target_display"`
	ActorID       string     `gorm:"type:varchar(32);not null" json:"actor_id"`
	ActorDisplay  string     `gorm:"type:varchar(100);not null" json:"actor_display"`
	Reason        string     `gorm:"type:text;not null" json:"reason"`
	// Duration is the mute length in seconds. Set only for mutes.
	Duration  *int64    `json:"duration,omitempty"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	Active    bool      `gorm:"not null" json:"active"`
}

// DisplayID returns the case id with its display prefix, e.g. "#a3f9b2c".
func (c *Case) DisplayID() string {
	return CaseIDPrefix + c.CaseID
}

// NormalizeCaseID turns user input such as " #A3F9B2C" into the stored form.
func NormalizeCaseID(raw string) string {
	id := strings.TrimSpace(raw)
	id = strings.TrimPrefix(id, CaseIDPrefix)
	return strings.ToLower(id)
}
