package registry

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/unicitynetwork/unicity-orchestrator/internal/model"
)

const (
	maxPlanSteps    = 8
	planWallClock   = 30 * time.Second
)

// PlanTools builds a multi-step tool chain: it alternates a select_tool call
// against the current goal with a graph traversal of DataFlow edges from the
// previous step's tool, preferring the traversal when it finds an immediate
// successor so the chain follows declared type compatibility rather than re-
// embedding every step. See DESIGN.md for why this reading of "alternating"
// was chosen.
func (r *Registry) PlanTools(ctx context.Context, query string, queryContext map[string]any, prefs model.UserPreferences) (*model.Plan, error) {
	ctx, cancel := context.WithTimeout(ctx, planWallClock)
	defer cancel()

	var steps []model.PlanStep
	var confidences []float64

	goal := query
	var lastToolID string

	for len(steps) < maxPlanSteps {
		if err := ctx.Err(); err != nil {
			break
		}

		var (
			toolID, toolName, serviceID, reasoning string
			confidence                             float64
			found                                  bool
		)

		if lastToolID != "" {
			toolID, toolName, serviceID, confidence, found = r.nextByDataFlow(lastToolID)
		}

		if !found {
			selections, err := r.SelectTool(ctx, goal, queryContext, defaultSelectK, defaultSelectThreshold, prefs)
			if err != nil {
				return nil, fmt.Errorf("plan_tools select_tool: %w", err)
			}
			selections = excludeUsed(selections, steps)
			if len(selections) == 0 {
				break
			}
			top := selections[0]
			toolID, toolName, serviceID, confidence = top.ToolID, top.ToolName, top.ServiceID, top.Confidence
			reasoning = top.Reasoning
			found = true
		}

		if !found || toolID == "" {
			break
		}

		var inputs []string
		if len(steps) > 0 {
			inputs = []string{steps[len(steps)-1].ToolName}
		}

		desc := reasoning
		if desc == "" {
			desc = fmt.Sprintf("follows %s via declared data-flow compatibility", lastToolNameOf(steps))
		}

		steps = append(steps, model.PlanStep{
			Description: desc,
			ServiceID:   serviceID,
			ToolName:    toolName,
			Inputs:      inputs,
		})
		confidences = append(confidences, confidence)

		lastToolID = toolID
		goal = toolName
	}

	if len(steps) == 0 {
		return &model.Plan{Steps: nil, Confidence: 0}, nil
	}

	return &model.Plan{Steps: steps, Confidence: minOf(confidences)}, nil
}

// nextByDataFlow finds the highest-weight DataFlow edge out of lastToolID's
// node, ties broken by ascending target node id.
func (r *Registry) nextByDataFlow(lastToolID string) (toolID, toolName, serviceID string, confidence float64, found bool) {
	snap := r.cur.Load()
	if snap.graph == nil {
		return "", "", "", 0, false
	}
	edges := snap.graph.Edges("tool:"+lastToolID, model.EdgeDataFlow)
	if len(edges) == 0 {
		return "", "", "", 0, false
	}

	sort.SliceStable(edges, func(i, j int) bool {
		if edges[i].Weight != edges[j].Weight {
			return edges[i].Weight > edges[j].Weight
		}
		return edges[i].To < edges[j].To
	})

	best := edges[0]
	const prefix = "tool:"
	id := best.To
	if len(id) > len(prefix) && id[:len(prefix)] == prefix {
		id = id[len(prefix):]
	}
	t, ok := snap.tools[id]
	if !ok {
		return "", "", "", 0, false
	}
	return t.ToolID, t.ToolName, t.ServiceID, best.Weight, true
}

func excludeUsed(selections []model.Selection, steps []model.PlanStep) []model.Selection {
	used := make(map[string]struct{}, len(steps))
	for _, s := range steps {
		used[s.ToolName] = struct{}{}
	}
	out := selections[:0:0]
	for _, s := range selections {
		if _, skip := used[s.ToolName]; skip {
			continue
		}
		out = append(out, s)
	}
	return out
}

func lastToolNameOf(steps []model.PlanStep) string {
	if len(steps) == 0 {
		return "the query"
	}
	return steps[len(steps)-1].ToolName
}

func minOf(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	m := vs[0]
	for _, v := range vs[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
