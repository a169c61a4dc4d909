package config

import "time"

const (
	// Cases
	CaseIDLength      = 7
	CaseIDMaxRetries  = 10
	CaseCacheTTL      = 1 * time.Hour
	CaseHistoryLimit  = 25
	DefaultCaseReason = "No reason provided."
	MaxMuteDuration   = 28 * 24 * time.Hour

	// Users
	UserCacheTTL = 1 * time.Hour

	// Linking
	LinkTokenTTL         = 10 * time.Minute
	LinkTokenBytes       = 24
	DefaultVerifyTimeout = 15 * time.Second
	ManualAccountPrefix  = "manual:"
)
