package domain

import (
	"slices"
	"time"
)

// Identity is the user profile derived from the identity endpoint.
type Identity struct {
	UserID          string `json:"user_id"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	DisplayAlias    string `json:"display_alias"`
	Email           string `json:"email"`
	OrganizationID  string `json:"organization_id"`
	Role            string `json:"role"`
	PermissionCodes []int  `json:"permission_codes"`
}

// Session is the derived authentication state. Recreated wholesale on each
// successful identity fetch, never partially mutated.
type Session struct {
	Authenticated  bool                `json:"authenticated"`
	Identity       *Identity           `json:"identity,omitempty"`
	Capabilities   map[string]struct{} `json:"-"`
	StartedAt      time.Time           `json:"started_at"`
	LastActivityAt time.Time           `json:"last_activity_at"`
}

// Unauthenticated is the explicit signed-out session. Returned instead of a
// nil session so callers never have to nil-check across the public boundary.
func Unauthenticated(now time.Time) Session {
	return Session{
		Authenticated:  false,
		Capabilities:   map[string]struct{}{},
		StartedAt:      now,
		LastActivityAt: now,
	}
}

// Age returns how long ago the session started.
func (s Session) Age(now time.Time) time.Duration {
	return now.Sub(s.StartedAt)
}

// HasPermissionCode checks raw numeric permission-code membership.
func (s Session) HasPermissionCode(code int) bool {
	if s.Identity == nil {
		return false
	}
	return slices.Contains(s.Identity.PermissionCodes, code)
}

// HasCapability checks membership in the derived capability set.
func (s Session) HasCapability(name string) bool {
	_, ok := s.Capabilities[name]
	return ok
}

// CapabilityList returns the capability set as a sorted slice for stable
// JSON output.
func (s Session) CapabilityList() []string {
	caps := make([]string, 0, len(s.Capabilities))
	for c := range s.Capabilities {
		caps = append(caps, c)
	}
	slices.Sort(caps)
	return caps
}
