package registry

import (
	"context"
	"fmt"
	"sort"

	"github.com/unicitynetwork/unicity-orchestrator/internal/filter"
	"github.com/unicitynetwork/unicity-orchestrator/internal/model"
)

const (
	defaultSelectK         = 32
	defaultSelectThreshold = 0.25
)

// boostConfidencePredicate / suggestFollowingToolPredicate are the fact
// names select_tool looks for after forward chaining. Rule authors (via
// UpsertRule) are expected to derive facts under these names to influence
// ranking.
const (
	boostConfidencePredicate       = "boost_confidence"
	suggestFollowingToolPredicate  = "suggest_following_tool"
)

// SelectTool ranks candidate tools against a natural-language query.
func (r *Registry) SelectTool(ctx context.Context, query string, queryContext map[string]any, k int, threshold float64, prefs model.UserPreferences) ([]model.Selection, error) {
	if k <= 0 {
		k = defaultSelectK
	}
	if threshold <= 0 {
		threshold = defaultSelectThreshold
	}

	vector, err := r.embed.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	scored, err := r.embed.TopK(ctx, vector, k)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	wm := model.NewWorkingMemory()
	candidates := make(map[string]*model.Selection)

	for _, s := range scored {
		if s.Similarity < threshold {
			continue
		}
		t, err := r.st.GetTool(ctx, s.ToolID)
		if err != nil || t == nil {
			continue
		}
		sel := &model.Selection{
			ToolID:       t.ToolID,
			ToolName:     t.ToolName,
			ServiceID:    t.ServiceID,
			Confidence:   s.Similarity,
			Reasoning:    fmt.Sprintf("similarity=%.3f against query %q", s.Similarity, query),
			InputSchema:  t.InputSchema,
			OutputSchema: t.OutputSchema,
		}
		candidates[t.ToolID] = sel
		wm.AddFact("candidate", s.Similarity, model.Lit(t.ToolID), model.Lit(s.Similarity))
		wm.ToolStates[t.ToolID] = model.ToolStateAvailable
	}

	snap := r.cur.Load()
	if snap.engine != nil {
		snap.engine.ForwardChain(wm)
	}

	applyBoosts(wm, candidates)
	if err := applySuggestions(ctx, r, wm, candidates); err != nil {
		return nil, err
	}

	out := make([]model.Selection, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, *c)
	}

	namer := filter.ServiceNamer(r.ServiceName)
	filtered := filter.Apply(out, prefs, namer, filter.DefaultTrustBoost, false)

	sort.SliceStable(filtered, func(i, j int) bool {
		if filtered[i].Confidence != filtered[j].Confidence {
			return filtered[i].Confidence > filtered[j].Confidence
		}
		return filtered[i].ToolName < filtered[j].ToolName
	})

	return filtered, nil
}

// applyBoosts adjusts confidence for every boost_confidence(tool_id, delta)
// fact derived by forward chaining, clamped to [0,1].
func applyBoosts(wm *model.WorkingMemory, candidates map[string]*model.Selection) {
	for _, fe := range wm.Facts[boostConfidencePredicate] {
		if len(fe.Args) < 2 {
			continue
		}
		toolID, ok := literalString(fe.Args[0])
		if !ok {
			continue
		}
		delta, ok := literalFloat(fe.Args[1])
		if !ok {
			continue
		}
		c, ok := candidates[toolID]
		if !ok {
			continue
		}
		c.Confidence = clamp01(c.Confidence + delta)
	}
}

// applySuggestions inserts any suggest_following_tool(tool_id) fact's target
// that isn't already a candidate, with confidence = the fact's own derived
// confidence.
func applySuggestions(ctx context.Context, r *Registry, wm *model.WorkingMemory, candidates map[string]*model.Selection) error {
	for _, fe := range wm.Facts[suggestFollowingToolPredicate] {
		if len(fe.Args) < 1 {
			continue
		}
		toolID, ok := literalString(fe.Args[0])
		if !ok {
			continue
		}
		if _, exists := candidates[toolID]; exists {
			continue
		}
		t, err := r.st.GetTool(ctx, toolID)
		if err != nil || t == nil {
			continue
		}
		candidates[toolID] = &model.Selection{
			ToolID:       t.ToolID,
			ToolName:     t.ToolName,
			ServiceID:    t.ServiceID,
			Confidence:   fe.Confidence,
			Reasoning:    "suggested by rule firing (suggest_following_tool)",
			InputSchema:  t.InputSchema,
			OutputSchema: t.OutputSchema,
		}
	}
	return nil
}

func literalString(e model.SymbolicExpression) (string, bool) {
	if e.Kind != model.ExprLiteral {
		return "", false
	}
	s, ok := e.Literal.(string)
	return s, ok
}

func literalFloat(e model.SymbolicExpression) (float64, bool) {
	if e.Kind != model.ExprLiteral {
		return 0, false
	}
	switch v := e.Literal.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
