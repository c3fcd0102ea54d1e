package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDomainLicensesPreserveJSONOrder(t *testing.T) {
	t.Parallel()

	doc := []byte(`{
		"enabled": true,
		"domain_licenses": {
			"zeta.com": {"valid": true, "expires": "2099-01-01", "features": ["a"]},
			"*.nanolos.com": {"valid": true, "expires": "2099-01-01", "features": ["b"]},
			"alpha.com": {"valid": false, "expires": "2099-01-01", "features": ["c"]}
		},
		"user_licenses": {},
		"default_features": ["search"]
	}`)

	var parsed LicenseDocument
	require.NoError(t, json.Unmarshal(doc, &parsed))

	require.Len(t, parsed.DomainLicenses, 3)
	require.Equal(t, "zeta.com", parsed.DomainLicenses[0].Pattern)
	require.Equal(t, "*.nanolos.com", parsed.DomainLicenses[1].Pattern)
	require.Equal(t, "alpha.com", parsed.DomainLicenses[2].Pattern)
	require.Equal(t, []string{"search"}, parsed.DefaultFeatures)
}

func TestDomainLicensesPreserveYAMLOrder(t *testing.T) {
	t.Parallel()

	doc := []byte(`
enabled: true
domain_licenses:
  zeta.com:
    valid: true
    expires: "2099-01-01"
    features: [a]
  alpha.com:
    valid: true
    expires: "2099-01-01"
    features: [c]
user_licenses: {}
default_features: [search]
`)

	var parsed LicenseDocument
	require.NoError(t, yaml.Unmarshal(doc, &parsed))

	require.Len(t, parsed.DomainLicenses, 2)
	require.Equal(t, "zeta.com", parsed.DomainLicenses[0].Pattern)
	require.Equal(t, "alpha.com", parsed.DomainLicenses[1].Pattern)
}

func TestDomainLicensesRoundTripJSON(t *testing.T) {
	t.Parallel()

	in := DomainLicenses{
		{Pattern: "b.com", Record: LicenseRecord{Valid: true}},
		{Pattern: "a.com", Record: LicenseRecord{Valid: false}},
	}

	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out DomainLicenses
	require.NoError(t, json.Unmarshal(data, &out))
	require.Equal(t, "b.com", out[0].Pattern)
	require.Equal(t, "a.com", out[1].Pattern)
}

func TestExpiryDateForms(t *testing.T) {
	t.Parallel()

	t.Run("bare date runs to end of day", func(t *testing.T) {
		var e ExpiryDate
		require.NoError(t, json.Unmarshal([]byte(`"2030-06-15"`), &e))
		require.Equal(t, 2030, e.Year())
		require.Equal(t, 23, e.Hour())
	})

	t.Run("rfc3339", func(t *testing.T) {
		var e ExpiryDate
		require.NoError(t, json.Unmarshal([]byte(`"2030-06-15T12:00:00Z"`), &e))
		require.Equal(t, 12, e.UTC().Hour())
	})

	t.Run("epoch seconds", func(t *testing.T) {
		var e ExpiryDate
		require.NoError(t, json.Unmarshal([]byte(`4102444800`), &e))
		require.Equal(t, time.Unix(4102444800, 0).UTC(), e.Time)
	})

	t.Run("garbage rejected", func(t *testing.T) {
		var e ExpiryDate
		require.Error(t, json.Unmarshal([]byte(`"soon"`), &e))
	})
}

func TestDaysUntil(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	exact := now.Add(30 * 24 * time.Hour)
	require.Equal(t, 30, DaysUntil(&exact, now))

	partial := now.Add(29*24*time.Hour + time.Minute)
	require.Equal(t, 30, DaysUntil(&partial, now))

	past := now.Add(-time.Hour)
	require.Equal(t, 0, DaysUntil(&past, now))

	require.Equal(t, 0, DaysUntil(nil, now))
}

func TestCredentialPolicy(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	fresh := &Credential{Raw: "a.b.c", ExpiresAt: now.Add(time.Hour)}
	require.True(t, fresh.Valid(now))
	require.False(t, fresh.Stale(now, StaleThreshold))
	require.False(t, fresh.Expired(now))

	stale := &Credential{Raw: "a.b.c", ExpiresAt: now.Add(2 * time.Minute)}
	require.True(t, stale.Valid(now))
	require.True(t, stale.Stale(now, StaleThreshold))

	expired := &Credential{Raw: "a.b.c", ExpiresAt: now.Add(-time.Second)}
	require.False(t, expired.Valid(now))
	require.True(t, expired.Expired(now))
	require.False(t, expired.Stale(now, StaleThreshold))

	var missing *Credential
	require.False(t, missing.Valid(now))
	require.False(t, missing.Expired(now))
}
