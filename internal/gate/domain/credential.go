package domain

import "time"

// StaleThreshold is the pre-expiry window in which a credential is still
// served but a background refresh gets scheduled.
const StaleThreshold = 5 * time.Minute

// Credential is the bearer token extracted from host-page storage, plus the
// policy inputs around it. Immutable once constructed: refresh and
// re-extraction produce a new Credential, never mutate one in place.
type Credential struct {
	Raw          string    `json:"raw"`
	ExpiresAt    time.Time `json:"expires_at"`
	RefreshToken string    `json:"refresh_token,omitempty"`

	// Source names the host-storage candidate the credential came from,
	// or "refresh" when minted by a refresh cycle. Diagnostic only.
	Source string `json:"source,omitempty"`
}

// Valid reports whether the credential can authenticate a call right now:
// it exists and its expiry is strictly in the future.
func (c *Credential) Valid(now time.Time) bool {
	return c != nil && c.Raw != "" && now.Before(c.ExpiresAt)
}

// Expired reports whether the credential's expiry has passed.
func (c *Credential) Expired(now time.Time) bool {
	return c != nil && !now.Before(c.ExpiresAt)
}

// Stale reports whether the credential is still valid but inside the
// pre-expiry refresh window.
func (c *Credential) Stale(now time.Time, threshold time.Duration) bool {
	if !c.Valid(now) {
		return false
	}
	return now.Add(threshold).After(c.ExpiresAt)
}
