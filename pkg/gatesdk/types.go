package gatesdk

import "time"

// Message types accepted by POST /v1/message. The vocabulary is closed: any
// other type is answered with an unknown_action error rather than silently
// dropped.
const (
	MessageStoreToken  = "STORE_TOKEN"
	MessageGetToken    = "GET_TOKEN"
	MessageRevokeToken = "REVOKE_TOKEN"
	MessageGetStatus   = "GET_STATUS"
)

// Message is the request envelope of the message API. Token, ExpiresAt and
// RefreshToken are only meaningful for STORE_TOKEN; ExpiresAt is epoch
// milliseconds, zero when the relaying side had no expiry.
type Message struct {
	Type         string `json:"type"`
	Token        string `json:"token,omitempty"`
	ExpiresAt    int64  `json:"expiresAt,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// StoreTokenResult acknowledges a STORE_TOKEN message.
type StoreTokenResult struct {
	Success bool `json:"success"`
}

// TokenResult is the GET_TOKEN response. ExpiresAt is epoch milliseconds.
type TokenResult struct {
	Token        string `json:"token"`
	ExpiresAt    int64  `json:"expiresAt,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// Identity mirrors the profile fields of an authenticated session.
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

// SessionView is the read-only session projection served over HTTP.
// Capabilities are sorted.
type SessionView struct {
	Authenticated  bool      `json:"authenticated"`
	Identity       *Identity `json:"identity,omitempty"`
	Capabilities   []string  `json:"capabilities"`
	StartedAt      time.Time `json:"started_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// EntitlementView is the read-only entitlement projection served over HTTP.
type EntitlementView struct {
	Valid         bool       `json:"valid"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	Features      []string   `json:"features"`
	MatchType     string     `json:"match_type"`
	DaysRemaining int        `json:"days_remaining"`
	CheckedAt     time.Time  `json:"checked_at"`
	NeedsRenewal  bool       `json:"needs_renewal"`
}

// CredentialStatus summarises the held credential without exposing its raw
// value.
type CredentialStatus struct {
	Present   bool       `json:"present"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Stale     bool       `json:"stale"`
	Source    string     `json:"source,omitempty"`
	Exhausted bool       `json:"exhausted"`
}

// StatusResult is the GET_STATUS response aggregating all three state
// machines.
type StatusResult struct {
	Credential  CredentialStatus `json:"credential"`
	Session     SessionView      `json:"session"`
	Entitlement EntitlementView  `json:"entitlement"`
	Uptime      string           `json:"uptime"`
	Version     string           `json:"version"`
}

// HealthChecks reports per-dependency readiness.
type HealthChecks struct {
	Database string `json:"database"`
}

// HealthResponse is returned by the livez and readyz endpoints.
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

// ErrorResponse is the gate's error envelope.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}
