package entitlement

import (
	"strings"
	"time"

	"github.com/nanolos/gate/internal/gate/domain"
)

// matchesDomain applies the license pattern rules: a pattern prefixed "*."
// matches any subdomain of the suffix and the bare apex itself; any other
// pattern matches only on exact equality.
func matchesDomain(pattern, host string) bool {
	if suffix, ok := strings.CutPrefix(pattern, "*."); ok {
		return host == suffix || strings.HasSuffix(host, "."+suffix)
	}
	return pattern == host
}

// evaluate runs the matching algorithm against a license document.
// Priority: exact user record, then domain records in document insertion
// order, then the degraded default tier. The document's enabled flag is a
// global kill switch that overrides per-record state.
func evaluate(doc *domain.LicenseDocument, host, email string, now time.Time) domain.Entitlement {
	if !doc.Enabled {
		return domain.Entitlement{
			Valid:     false,
			Features:  []string{},
			MatchType: domain.MatchNone,
			CheckedAt: now,
		}
	}

	if email != "" {
		if record, ok := doc.UserLicenses[email]; ok && record.Usable(now) {
			expires := record.Expires.Time
			return domain.Entitlement{
				Valid:         true,
				ExpiresAt:     &expires,
				Features:      record.Features,
				MatchType:     domain.MatchUser,
				DaysRemaining: domain.DaysUntil(&expires, now),
				CheckedAt:     now,
			}
		}
	}

	for _, lic := range doc.DomainLicenses {
		if !matchesDomain(lic.Pattern, host) {
			continue
		}
		if !lic.Record.Usable(now) {
			continue
		}

		expires := lic.Record.Expires.Time
		return domain.Entitlement{
			Valid:         true,
			ExpiresAt:     &expires,
			Features:      lic.Record.Features,
			MatchType:     domain.MatchDomain,
			DaysRemaining: domain.DaysUntil(&expires, now),
			CheckedAt:     now,
		}
	}

	// Default features are still advertised without a license, as a
	// degraded tier.
	features := doc.DefaultFeatures
	if features == nil {
		features = []string{}
	}
	return domain.Entitlement{
		Valid:     false,
		Features:  features,
		MatchType: domain.MatchNone,
		CheckedAt: now,
	}
}
