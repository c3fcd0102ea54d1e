package entitlement

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/nanolos/gate/internal/gate/domain"
	"github.com/nanolos/gate/internal/gate/store/drivers/memory"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSessions struct {
	session domain.Session
}

func (f *fakeSessions) Current(ctx context.Context) domain.Session {
	return f.session
}

type fakeSource struct {
	mu     sync.Mutex
	result *Result
	err    error
	calls  int
}

func (f *fakeSource) Load(ctx context.Context, host, email string) (*Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeSource) set(result *Result, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.result, f.err = result, err
}

func authenticated(email string) domain.Session {
	now := time.Now()
	return domain.Session{
		Authenticated:  true,
		Identity:       &domain.Identity{UserID: "user-1", Email: email},
		Capabilities:   map[string]struct{}{},
		StartedAt:      now,
		LastActivityAt: now,
	}
}

func docFromJSON(t *testing.T, raw string) *domain.LicenseDocument {
	t.Helper()

	var doc domain.LicenseDocument
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))
	return &doc
}

type engineFixture struct {
	engine *Engine
	source *fakeSource
	now    time.Time
}

func newEngineFixture(t *testing.T, host string, sess domain.Session, cfg Config) *engineFixture {
	t.Helper()

	mem := memory.NewStore()
	cfg.Host = host
	src := &fakeSource{}

	f := &engineFixture{
		source: src,
		now:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.engine = NewEngine(&fakeSessions{session: sess}, src, mem.Entitlements(), discardLogger(), cfg)
	f.engine.now = func() time.Time { return f.now }
	return f
}

func TestMatchesDomain(t *testing.T) {
	t.Parallel()

	require.True(t, matchesDomain("*.nanolos.com", "app.nanolos.com"))
	require.True(t, matchesDomain("*.nanolos.com", "api.nanolos.com"))
	require.True(t, matchesDomain("*.nanolos.com", "nanolos.com"))
	require.False(t, matchesDomain("*.nanolos.com", "other.com"))
	require.False(t, matchesDomain("*.nanolos.com", "evilnanolos.com"))

	require.True(t, matchesDomain("app.nanolos.com", "app.nanolos.com"))
	require.False(t, matchesDomain("app.nanolos.com", "api.nanolos.com"))
}

func TestValidateDomainLicenseScenario(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t, "app.example.com", authenticated("user@example.com"), Config{})
	expires := f.now.Add(30 * 24 * time.Hour)

	f.source.set(&Result{Document: docFromJSON(t, fmt.Sprintf(`{
		"enabled": true,
		"domain_licenses": {
			"*.example.com": {"valid": true, "expires": %q, "features": ["search", "export"]}
		},
		"user_licenses": {},
		"default_features": ["search"]
	}`, expires.Format(time.RFC3339)))}, nil)

	ent := f.engine.Validate(context.Background())
	require.True(t, ent.Valid)
	require.Equal(t, domain.MatchDomain, ent.MatchType)
	require.Equal(t, []string{"search", "export"}, ent.Features)
	require.Equal(t, 30, ent.DaysRemaining)
}

func TestKillSwitchOverridesMatchingRecords(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t, "app.example.com", authenticated("user@example.com"), Config{})
	expires := f.now.Add(30 * 24 * time.Hour).Format(time.RFC3339)

	f.source.set(&Result{Document: docFromJSON(t, fmt.Sprintf(`{
		"enabled": false,
		"domain_licenses": {
			"*.example.com": {"valid": true, "expires": %q, "features": ["search", "export"]}
		},
		"user_licenses": {},
		"default_features": ["search"]
	}`, expires))}, nil)

	ent := f.engine.Validate(context.Background())
	require.False(t, ent.Valid)
	require.Equal(t, domain.MatchNone, ent.MatchType)
	require.Empty(t, ent.Features)
}

func TestUserLicenseBeatsDomainLicense(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t, "app.example.com", authenticated("vip@example.com"), Config{})
	expires := f.now.Add(60 * 24 * time.Hour).Format(time.RFC3339)

	f.source.set(&Result{Document: docFromJSON(t, fmt.Sprintf(`{
		"enabled": true,
		"domain_licenses": {
			"*.example.com": {"valid": true, "expires": %q, "features": ["search"]}
		},
		"user_licenses": {
			"vip@example.com": {"valid": true, "expires": %q, "features": ["search", "export", "api"]}
		},
		"default_features": ["search"]
	}`, expires, expires))}, nil)

	ent := f.engine.Validate(context.Background())
	require.True(t, ent.Valid)
	require.Equal(t, domain.MatchUser, ent.MatchType)
	require.Equal(t, []string{"search", "export", "api"}, ent.Features)
}

func TestFirstMatchingDomainRecordWins(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t, "app.example.com", authenticated(""), Config{})
	expires := f.now.Add(30 * 24 * time.Hour).Format(time.RFC3339)

	f.source.set(&Result{Document: docFromJSON(t, fmt.Sprintf(`{
		"enabled": true,
		"domain_licenses": {
			"*.example.com": {"valid": true, "expires": %q, "features": ["first"]},
			"app.example.com": {"valid": true, "expires": %q, "features": ["second"]}
		},
		"user_licenses": {},
		"default_features": []
	}`, expires, expires))}, nil)

	ent := f.engine.Validate(context.Background())
	require.True(t, ent.Valid)
	require.Equal(t, []string{"first"}, ent.Features)
}

func TestUnusableRecordsAreSkipped(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t, "app.example.com", authenticated(""), Config{})
	future := f.now.Add(30 * 24 * time.Hour).Format(time.RFC3339)
	past := f.now.Add(-24 * time.Hour).Format(time.RFC3339)

	f.source.set(&Result{Document: docFromJSON(t, fmt.Sprintf(`{
		"enabled": true,
		"domain_licenses": {
			"app.example.com": {"valid": false, "expires": %q, "features": ["invalid-record"]},
			"*.example.com": {"valid": true, "expires": %q, "features": ["expired-record"]},
			"example.com": {"valid": true, "expires": %q, "features": ["live"]}
		},
		"user_licenses": {},
		"default_features": []
	}`, future, past, future))}, nil)

	// app.example.com does not match "example.com" exactly, so nothing
	// usable matches: record one invalid, record two expired.
	ent := f.engine.Validate(context.Background())
	require.False(t, ent.Valid)
	require.Equal(t, domain.MatchNone, ent.MatchType)
}

func TestDefaultFeaturesAsDegradedTier(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t, "unlicensed.com", authenticated("nobody@unlicensed.com"), Config{})

	f.source.set(&Result{Document: docFromJSON(t, `{
		"enabled": true,
		"domain_licenses": {},
		"user_licenses": {},
		"default_features": ["search"]
	}`)}, nil)

	ent := f.engine.Validate(context.Background())
	require.False(t, ent.Valid)
	require.Equal(t, domain.MatchNone, ent.MatchType)
	require.Equal(t, []string{"search"}, ent.Features)
	require.Zero(t, ent.DaysRemaining)
}

func TestFetchFailureFallsBack(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t, "app.example.com", authenticated(""), Config{})
	f.source.set(nil, fmt.Errorf("network down"))

	ent := f.engine.Validate(context.Background())
	require.False(t, ent.Valid)
	require.Equal(t, domain.MatchNone, ent.MatchType)
	require.Equal(t, []string{"search"}, ent.Features)
}

func TestFetchFailureKeepsPreviousDecision(t *testing.T) {
	t.Parallel()

	// DocumentTTL of one nanosecond forces a re-fetch on every pass.
	f := newEngineFixture(t, "app.example.com", authenticated(""), Config{DocumentTTL: time.Nanosecond})
	expires := f.now.Add(30 * 24 * time.Hour).Format(time.RFC3339)

	f.source.set(&Result{Document: docFromJSON(t, fmt.Sprintf(`{
		"enabled": true,
		"domain_licenses": {
			"*.example.com": {"valid": true, "expires": %q, "features": ["search", "export"]}
		},
		"user_licenses": {},
		"default_features": []
	}`, expires))}, nil)

	first := f.engine.Validate(context.Background())
	require.True(t, first.Valid)

	f.now = f.now.Add(time.Minute)
	f.source.set(nil, fmt.Errorf("network down"))

	second := f.engine.Validate(context.Background())
	require.True(t, second.Valid) // stale-but-valid preferred
	require.Equal(t, first.Features, second.Features)
}

func TestDocumentReusedInsideTTL(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t, "app.example.com", authenticated(""), Config{DocumentTTL: time.Hour})
	expires := f.now.Add(30 * 24 * time.Hour).Format(time.RFC3339)

	f.source.set(&Result{Document: docFromJSON(t, fmt.Sprintf(`{
		"enabled": true,
		"domain_licenses": {
			"*.example.com": {"valid": true, "expires": %q, "features": ["search"]}
		},
		"user_licenses": {},
		"default_features": []
	}`, expires))}, nil)

	f.engine.Validate(context.Background())
	f.engine.Validate(context.Background())
	require.Equal(t, 1, f.source.calls)

	f.now = f.now.Add(2 * time.Hour)
	f.engine.Validate(context.Background())
	require.Equal(t, 2, f.source.calls)
}

func TestPrecomputedEntitlementSource(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t, "app.example.com", authenticated("user@example.com"), Config{})
	expires := f.now.Add(10 * 24 * time.Hour)

	f.source.set(&Result{Precomputed: &domain.Entitlement{
		Valid:     true,
		ExpiresAt: &expires,
		Features:  []string{"search", "export"},
		MatchType: domain.MatchUser,
	}}, nil)

	ent := f.engine.Validate(context.Background())
	require.True(t, ent.Valid)
	require.Equal(t, 10, ent.DaysRemaining)
	require.Equal(t, f.now, ent.CheckedAt)
}

func TestNeedsRenewal(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		days int
		want bool
	}{
		{"far out", 90, false},
		{"inside window", 12, true},
		{"boundary", 30, true},
		{"expired", 0, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newEngineFixture(t, "app.example.com", authenticated(""), Config{RenewalWarningDays: 30})
			expires := f.now.Add(time.Duration(tc.days) * 24 * time.Hour).Format(time.RFC3339)

			valid := "true"
			if tc.days == 0 {
				valid = "false"
			}
			f.source.set(&Result{Document: docFromJSON(t, fmt.Sprintf(`{
				"enabled": true,
				"domain_licenses": {
					"*.example.com": {"valid": %s, "expires": %q, "features": ["search"]}
				},
				"user_licenses": {},
				"default_features": []
			}`, valid, expires))}, nil)

			require.Equal(t, tc.want, f.engine.NeedsRenewal(context.Background()))
		})
	}
}

func TestUnknownPrincipalStillMatchesDomain(t *testing.T) {
	t.Parallel()

	unauth := domain.Unauthenticated(time.Now())
	f := newEngineFixture(t, "app.example.com", unauth, Config{})
	expires := f.now.Add(30 * 24 * time.Hour).Format(time.RFC3339)

	f.source.set(&Result{Document: docFromJSON(t, fmt.Sprintf(`{
		"enabled": true,
		"domain_licenses": {
			"*.example.com": {"valid": true, "expires": %q, "features": ["search"]}
		},
		"user_licenses": {
			"someone@example.com": {"valid": true, "expires": %q, "features": ["personal"]}
		},
		"default_features": []
	}`, expires, expires))}, nil)

	// Without an authenticated identity no user license can apply, but
	// domain licensing keys on the host alone.
	ent := f.engine.Validate(context.Background())
	require.True(t, ent.Valid)
	require.Equal(t, domain.MatchDomain, ent.MatchType)
	require.Equal(t, []string{"search"}, ent.Features)
}

func TestListenersNotifiedOnValidation(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t, "app.example.com", authenticated(""), Config{})
	expires := f.now.Add(30 * 24 * time.Hour).Format(time.RFC3339)

	f.source.set(&Result{Document: docFromJSON(t, fmt.Sprintf(`{
		"enabled": true,
		"domain_licenses": {
			"*.example.com": {"valid": true, "expires": %q, "features": ["search"]}
		},
		"user_licenses": {},
		"default_features": []
	}`, expires))}, nil)

	var got []domain.Entitlement
	f.engine.Subscribe(func(ent domain.Entitlement) { got = append(got, ent) })

	f.engine.Validate(context.Background())
	require.Len(t, got, 1)
	require.True(t, got[0].Valid)

	// Late subscriber sees the cached decision immediately.
	var late *domain.Entitlement
	f.engine.Subscribe(func(ent domain.Entitlement) { late = &ent })
	require.NotNil(t, late)
	require.True(t, late.Valid)
}
