package credential

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nanolos/gate/internal/gate/domain"
)

// ErrNoToken means a host-storage snapshot parsed fine but held no usable
// token. The candidate is skipped, not fatal.
var ErrNoToken = errors.New("credential: no token in snapshot")

// Source is one prioritized host-storage candidate: the storage key the host
// page writes, and the shape parser for the value found under it. The host's
// key formats are an external, semi-stable contract; each known shape gets
// its own parser and new shapes get appended here.
type Source struct {
	Key   string
	Parse func(data []byte, now time.Time) (*domain.Credential, error)
}

// DefaultSources returns the known candidate locations in priority order.
// The first candidate yielding a structurally valid, non-expired credential
// wins, even when a later candidate would be longer-lived.
func DefaultSources() []Source {
	return []Source{
		{Key: "nanolos.auth", Parse: parseFlat},
		{Key: "nanolos.session", Parse: parseNested},
		{Key: "nanolos.auth.tokens", Parse: parseAlternate},
		{Key: "nanolos.legacy.auth", Parse: parseAlternate},
	}
}

// parseFlat handles the plain { token, refreshToken } shape. Carries no
// expiry hint; the manager falls back to the claims exp or default lifetime.
func parseFlat(data []byte, _ time.Time) (*domain.Credential, error) {
	var snapshot struct {
		Token        string `json:"token"`
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("credential: flat snapshot: %w", err)
	}
	if snapshot.Token == "" {
		return nil, ErrNoToken
	}

	return &domain.Credential{
		Raw:          snapshot.Token,
		RefreshToken: snapshot.RefreshToken,
	}, nil
}

// parseNested handles the { authenticated: { idToken, expiresAt,
// refreshToken } } shape. expiresAt is epoch milliseconds.
func parseNested(data []byte, _ time.Time) (*domain.Credential, error) {
	var snapshot struct {
		Authenticated struct {
			IDToken      string `json:"idToken"`
			ExpiresAt    int64  `json:"expiresAt"`
			RefreshToken string `json:"refreshToken"`
		} `json:"authenticated"`
	}
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("credential: nested snapshot: %w", err)
	}
	if snapshot.Authenticated.IDToken == "" {
		return nil, ErrNoToken
	}

	cred := &domain.Credential{
		Raw:          snapshot.Authenticated.IDToken,
		RefreshToken: snapshot.Authenticated.RefreshToken,
	}
	if snapshot.Authenticated.ExpiresAt > 0 {
		cred.ExpiresAt = time.UnixMilli(snapshot.Authenticated.ExpiresAt)
	}
	return cred, nil
}

// parseAlternate handles the two alternate flat shapes: the token may appear
// under token, idToken, or accessToken, and expiry as absolute epoch
// milliseconds (expiresAt) or relative seconds (expiresIn, converted to an
// absolute timestamp at read time).
func parseAlternate(data []byte, now time.Time) (*domain.Credential, error) {
	var snapshot struct {
		Token        string `json:"token"`
		IDToken      string `json:"idToken"`
		AccessToken  string `json:"accessToken"`
		ExpiresAt    int64  `json:"expiresAt"`
		ExpiresIn    int64  `json:"expiresIn"`
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("credential: alternate snapshot: %w", err)
	}

	raw := snapshot.Token
	if raw == "" {
		raw = snapshot.IDToken
	}
	if raw == "" {
		raw = snapshot.AccessToken
	}
	if raw == "" {
		return nil, ErrNoToken
	}

	cred := &domain.Credential{
		Raw:          raw,
		RefreshToken: snapshot.RefreshToken,
	}
	switch {
	case snapshot.ExpiresAt > 0:
		cred.ExpiresAt = time.UnixMilli(snapshot.ExpiresAt)
	case snapshot.ExpiresIn > 0:
		cred.ExpiresAt = now.Add(time.Duration(snapshot.ExpiresIn) * time.Second)
	}
	return cred, nil
}
