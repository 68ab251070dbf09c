package reasoner

import (
	"sort"

	"github.com/unicitynetwork/unicity-orchestrator/internal/model"
)

// Engine runs forward/backward chaining over a fixed rule set.
type Engine struct {
	rules     []model.SymbolicRule
	maxRounds int
}

// NewEngine builds an Engine from rules, sorted descending by priority so
// ForwardChain's "for each rule in descending priority" clause is a plain
// linear scan.
func NewEngine(rules []model.SymbolicRule, maxRounds int) *Engine {
	if maxRounds <= 0 {
		maxRounds = model.DefaultMaxRounds
	}
	sorted := append([]model.SymbolicRule(nil), rules...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority > sorted[j].Priority })
	return &Engine{rules: sorted, maxRounds: maxRounds}
}

// ForwardChain runs the engine to fixpoint (or the round bound) against wm,
// mutating it in place with derived facts: while the working memory changed
// in the previous round, for each rule in descending priority, attempt to
// unify each antecedent against the current fact base; on full unification,
// instantiate consequents with the resulting substitution and add them with
// confidence = rule.confidence * min(matched antecedent confidences). Halts
// after Engine.maxRounds rounds regardless of convergence, guaranteeing
// termination for any rule set.
func (e *Engine) ForwardChain(wm *model.WorkingMemory) int {
	rounds := 0
	for rounds < e.maxRounds {
		changed := false
		for _, rule := range e.rules {
			for _, derivation := range e.fireRule(rule, wm) {
				if addFactOnce(wm, derivation) {
					changed = true
				}
			}
		}
		rounds++
		if !changed {
			break
		}
	}
	return rounds
}

type derivedFact struct {
	predicate  string
	args       []model.SymbolicExpression
	confidence float64
}

func (e *Engine) fireRule(rule model.SymbolicRule, wm *model.WorkingMemory) []derivedFact {
	conjunction := model.SymbolicExpression{Kind: model.ExprAnd, Args: rule.Antecedents}
	matches := Match(conjunction, wm, Binding{})

	var out []derivedFact
	for _, m := range matches {
		for _, consequent := range rule.Consequents {
			instantiated := Substitute(consequent, m.bindings)
			if instantiated.Kind != model.ExprFact {
				continue
			}
			out = append(out, derivedFact{
				predicate:  instantiated.Predicate,
				args:       instantiated.Args,
				confidence: rule.Confidence * m.confidence,
			})
		}
	}
	return out
}

// addFactOnce adds a fact if an equal one (same predicate+args) is not
// already present, and reports whether the fact base changed.
func addFactOnce(wm *model.WorkingMemory, f derivedFact) bool {
	for _, existing := range wm.Facts[f.predicate] {
		if factArgsEqual(existing.Args, f.args) {
			return false
		}
	}
	wm.AddFact(f.predicate, f.confidence, f.args...)
	return true
}

func factArgsEqual(a, b []model.SymbolicExpression) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Kind != b[i].Kind {
			return false
		}
		switch a[i].Kind {
		case model.ExprLiteral:
			if !deepEqual(a[i].Literal, b[i].Literal) {
				return false
			}
		case model.ExprVariable:
			if a[i].VarName != b[i].VarName {
				return false
			}
		}
	}
	return true
}

// BackwardChain finds every substitution that satisfies goal,: find rules
// whose consequents unify with goal, recurse on their antecedents, and
// return the union of substitutions. depth bounds recursion the same way
// maxRounds bounds ForwardChain.
func (e *Engine) BackwardChain(goal model.SymbolicExpression, wm *model.WorkingMemory) []Binding {
	return e.backward(goal, wm, Binding{}, e.maxRounds)
}

func (e *Engine) backward(goal model.SymbolicExpression, wm *model.WorkingMemory, bindings Binding, depth int) []Binding {
	// A goal already present as a fact is trivially satisfied.
	var results []Binding
	for _, m := range Match(goal, wm, bindings) {
		results = append(results, m.bindings)
	}
	if depth <= 0 {
		return results
	}

	for _, rule := range e.rules {
		for _, consequent := range rule.Consequents {
			next, ok := Unify(consequent, goal, bindings)
			if !ok {
				continue
			}
			subResults := [][]Binding{{next}}
			for _, ant := range rule.Antecedents {
				var expanded []Binding
				for _, prior := range subResults[len(subResults)-1] {
					expanded = append(expanded, e.backward(ant, wm, prior, depth-1)...)
				}
				subResults = append(subResults, expanded)
			}
			results = append(results, subResults[len(subResults)-1]...)
		}
	}
	return results
}
