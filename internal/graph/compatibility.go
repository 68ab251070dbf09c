package graph

import "github.com/unicitynetwork/unicity-orchestrator/internal/model"

// TypeSystem resolves compat(a, b) -> confidence: identity (1.0); otherwise
// a custom rule for the exact pair (confidence as declared), which overrides
// the inheritance result; otherwise the inheritance-chain walk (confidence
// decays multiplicatively by 0.8 per hop). Cycles are broken by a visited
// set.
type TypeSystem struct {
	// parents maps a type to its declared parent (inheritance chain).
	parents map[string]string
	// custom holds explicit (parent,child)->confidence rules that override
	// the default inheritance decay.
	custom map[[2]string]float64
}

func NewTypeSystem() *TypeSystem {
	return &TypeSystem{
		parents: make(map[string]string),
		custom:  make(map[[2]string]float64),
	}
}

// AddInheritance declares child's parent type.
func (ts *TypeSystem) AddInheritance(child, parent string) {
	ts.parents[child] = parent
}

// AddRule installs a custom compatibility rule, taking precedence over the
// default inheritance decay for that exact (parent, child) pair.
func (ts *TypeSystem) AddRule(rule model.TypeCompatibilityRule) {
	ts.custom[[2]string{rule.Parent, rule.Child}] = rule.Confidence
}

// Compatible returns the confidence that a value of type `from` can feed a
// parameter of type `to`. 0 means incompatible.
func (ts *TypeSystem) Compatible(from, to string) float64 {
	if from == to {
		return model.IdentityConfidence
	}

	if conf, ok := ts.custom[[2]string{to, from}]; ok {
		return conf
	}

	visited := map[string]struct{}{from: {}}
	confidence := 1.0
	cur := from
	for {
		parent, ok := ts.parents[cur]
		if !ok {
			return 0
		}
		confidence *= model.InheritanceHopDecay
		if parent == to {
			return confidence
		}
		if _, seen := visited[parent]; seen {
			return 0 // cycle, no compatibility found
		}
		visited[parent] = struct{}{}
		cur = parent
	}
}
