package domain

import (
	"slices"
	"time"
)

// MatchType names which license record category produced the current
// entitlement decision.
type MatchType string

const (
	MatchUser   MatchType = "user"
	MatchDomain MatchType = "domain"
	MatchNone   MatchType = "none"
)

// Entitlement is the computed license decision for the current domain/user
// pair. Recomputed on each validation pass, never patched in place.
type Entitlement struct {
	Valid         bool       `json:"valid"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	Features      []string   `json:"features"`
	MatchType     MatchType  `json:"match_type"`
	DaysRemaining int        `json:"days_remaining"`
	CheckedAt     time.Time  `json:"checked_at"`
}

// HasFeature reports whether the entitlement grants the named feature.
func (e Entitlement) HasFeature(name string) bool {
	return slices.Contains(e.Features, name)
}

// DaysUntil computes whole days remaining until expiry, rounding up. A nil
// or past expiry yields zero.
func DaysUntil(expiry *time.Time, now time.Time) int {
	if expiry == nil {
		return 0
	}

	remaining := expiry.Sub(now)
	if remaining <= 0 {
		return 0
	}

	days := int(remaining / (24 * time.Hour))
	if remaining%(24*time.Hour) != 0 {
		days++
	}
	return days
}
