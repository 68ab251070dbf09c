package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unicitynetwork/unicity-orchestrator/internal/model"
)

func namer(names map[string]string) ServiceNamer {
	return func(id string) string { return names[id] }
}

func TestApplyRemovesBlockedServices(t *testing.T) {
	prefs := model.DefaultPreferences("u1")
	prefs.BlockedServices["github"] = struct{}{}

	candidates := []Candidate{
		{ServiceID: "svc-github", ToolName: "list_issues", Confidence: 0.9},
		{ServiceID: "svc-gitea", ToolName: "list_issues", Confidence: 0.8},
	}
	names := map[string]string{"svc-github": "github", "svc-gitea": "gitea"}

	out := Apply(candidates, prefs, namer(names), 0, false)
	require.Len(t, out, 1)
	assert.Equal(t, "svc-gitea", out[0].ServiceID)
}

func TestApplyTrustBoostMultiplicativeClamped(t *testing.T) {
	prefs := model.DefaultPreferences("u1")
	prefs.TrustedServices["fs"] = struct{}{}

	candidates := []Candidate{{ServiceID: "svc-fs", Confidence: 0.95}}
	names := map[string]string{"svc-fs": "fs"}

	out := Apply(candidates, prefs, namer(names), DefaultTrustBoost, false)
	require.Len(t, out, 1)
	assert.InDelta(t, 1.0, out[0].Confidence, 1e-9, "0.95*1.15 exceeds 1.0 and must clamp")
}

func TestApplyTrustBoostPreservesNonTrustedRelativeOrder(t *testing.T) {
	prefs := model.DefaultPreferences("u1")
	prefs.TrustedServices["trusted"] = struct{}{}

	candidates := []Candidate{
		{ServiceID: "svc-trusted", Confidence: 0.5},
		{ServiceID: "svc-a", Confidence: 0.6},
		{ServiceID: "svc-b", Confidence: 0.4},
	}
	names := map[string]string{"svc-trusted": "trusted", "svc-a": "a", "svc-b": "b"}

	out := Apply(candidates, prefs, namer(names), DefaultTrustBoost, false)
	require.Len(t, out, 3)
	// trusted candidate's boosted confidence (0.575) still trails svc-a's 0.6
	// only if boost doesn't overtake; assert relative order of untouched pair.
	var aIdx, bIdx int
	for i, c := range out {
		if c.ServiceID == "svc-a" {
			aIdx = i
		}
		if c.ServiceID == "svc-b" {
			bIdx = i
		}
	}
	assert.Less(t, aIdx, bIdx)
}

func TestApplyIncludeBlockedSkipsRemoval(t *testing.T) {
	prefs := model.DefaultPreferences("u1")
	prefs.BlockedServices["github"] = struct{}{}
	candidates := []Candidate{{ServiceID: "svc-github", Confidence: 0.9}}
	names := map[string]string{"svc-github": "github"}

	out := Apply(candidates, prefs, namer(names), 0, true)
	assert.Len(t, out, 1)
}
