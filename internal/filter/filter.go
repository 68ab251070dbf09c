// Package filter implements per-user blocked/trusted service gating and
// the trust-boost confidence adjustment applied after semantic ranking.
package filter

import (
	"sort"

	"github.com/unicitynetwork/unicity-orchestrator/internal/model"
)

// DefaultTrustBoost is the multiplicative trust factor applied to
// candidates from a trusted service: confidence *= 1 + trust_boost.
const DefaultTrustBoost = 0.15

// Candidate mirrors the fields of a model.Selection that the filter needs;
// it operates on model.Selection directly but is named here for clarity at
// call sites.
type Candidate = model.Selection

// ServiceNamer resolves a candidate's owning service name. Selections
// carry ServiceID, but blocked/trusted sets in UserPreferences are keyed by
// service *name*, so callers must supply the ID->name mapping.
type ServiceNamer func(serviceID string) string

// Apply filters and re-scores candidates against prefs: - remove candidates
// whose service is blocked - multiply confidence by (1+trustBoost) for
// trusted-service candidates, clamped to 1.0 - preserve relative order on
// ties includeBlocked, when true, skips the removal step (used by the
// unicity.debug.list_tools tool "Blocked exclusion" invariant).
func Apply(candidates []Candidate, prefs model.UserPreferences, namer ServiceNamer, trustBoost float64, includeBlocked bool) []Candidate {
	if trustBoost <= 0 {
		trustBoost = DefaultTrustBoost
	}

	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		name := namer(c.ServiceID)

		if !includeBlocked {
			if _, blocked := prefs.BlockedServices[name]; blocked {
				continue
			}
		}

		if _, trusted := prefs.TrustedServices[name]; trusted {
			c.Confidence = clamp(c.Confidence*(1+trustBoost), 1.0)
		}

		out = append(out, c)
	}

	// Stable sort descending by confidence; ties keep relative input order.
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })

	return out
}

func clamp(v, max float64) float64 {
	if v > max {
		return max
	}
	return v
}
