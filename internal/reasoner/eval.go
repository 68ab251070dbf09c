package reasoner

import (
	"fmt"

	"github.com/unicitynetwork/unicity-orchestrator/internal/model"
)

// Match attempts to satisfy antecedent against wm's current fact base,
// returning every binding set (with its matched confidence) that makes it
// true. Compound expressions (And/Or/Not/Comparison/Quantified) are
// resolved against the substituted facts.
func Match(expr model.SymbolicExpression, wm *model.WorkingMemory, bindings Binding) []matched {
	switch expr.Kind {
	case model.ExprFact:
		return matchFact(expr, wm, bindings)

	case model.ExprAnd:
		return matchAnd(expr.Args, wm, bindings)

	case model.ExprOr:
		var out []matched
		for _, a := range expr.Args {
			out = append(out, Match(a, wm, bindings)...)
		}
		return out

	case model.ExprNot:
		if len(Match(*expr.Operand, wm, bindings)) == 0 {
			return []matched{{bindings: bindings, confidence: 1.0}}
		}
		return nil

	case model.ExprComparison:
		return matchComparison(expr, bindings)

	case model.ExprQuantified:
		return matchQuantified(expr, wm, bindings)

	default:
		return nil
	}
}

type matched struct {
	bindings   Binding
	confidence float64
}

func matchFact(pattern model.SymbolicExpression, wm *model.WorkingMemory, bindings Binding) []matched {
	var out []matched
	for _, fe := range wm.Facts[pattern.Predicate] {
		factExpr := model.Fact(fe.Predicate, nil, fe.Args...)
		if next, ok := Unify(Substitute(pattern, bindings), factExpr, bindings); ok {
			out = append(out, matched{bindings: next, confidence: fe.Confidence})
		}
	}
	return out
}

func matchAnd(conjuncts []model.SymbolicExpression, wm *model.WorkingMemory, bindings Binding) []matched {
	if len(conjuncts) == 0 {
		return []matched{{bindings: bindings, confidence: 1.0}}
	}
	head, rest := conjuncts[0], conjuncts[1:]
	var out []matched
	for _, hm := range Match(head, wm, bindings) {
		for _, tm := range matchAnd(rest, wm, hm.bindings) {
			out = append(out, matched{bindings: tm.bindings, confidence: minConfidence(hm.confidence, tm.confidence)})
		}
	}
	return out
}

func minConfidence(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func matchComparison(expr model.SymbolicExpression, bindings Binding) []matched {
	lhs := Substitute(*expr.LHS, bindings)
	rhs := Substitute(*expr.RHS, bindings)
	if lhs.Kind != model.ExprLiteral || rhs.Kind != model.ExprLiteral {
		return nil
	}
	if compare(expr.Op, lhs.Literal, rhs.Literal) {
		return []matched{{bindings: bindings, confidence: 1.0}}
	}
	return nil
}

func compare(op model.CompareOp, a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch op {
		case model.CmpEq:
			return af == bf
		case model.CmpNe:
			return af != bf
		case model.CmpLt:
			return af < bf
		case model.CmpLe:
			return af <= bf
		case model.CmpGt:
			return af > bf
		case model.CmpGe:
			return af >= bf
		}
	}
	as, bs := fmt.Sprint(a), fmt.Sprint(b)
	switch op {
	case model.CmpEq:
		return as == bs
	case model.CmpNe:
		return as != bs
	default:
		return false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// matchQuantified expands a Quantified expression against the current fact
// base,: exists succeeds on any binding of Var that satisfies Body; forall
// requires every candidate binding to satisfy Body. Candidate bindings for
// Var are drawn from every fact argument position currently bound in working
// memory (a closed-world enumeration, since the expression language forbids
// unbounded domains).
func matchQuantified(expr model.SymbolicExpression, wm *model.WorkingMemory, bindings Binding) []matched {
	candidates := candidateValues(wm)

	switch expr.Quantifier {
	case model.QuantifierExists:
		for _, c := range candidates {
			next := bindings.clone()
			next[expr.Var] = c
			if len(Match(*expr.Body, wm, next)) > 0 {
				return []matched{{bindings: bindings, confidence: 1.0}}
			}
		}
		return nil

	case model.QuantifierForAll:
		if len(candidates) == 0 {
			return []matched{{bindings: bindings, confidence: 1.0}}
		}
		for _, c := range candidates {
			next := bindings.clone()
			next[expr.Var] = c
			if len(Match(*expr.Body, wm, next)) == 0 {
				return nil
			}
		}
		return []matched{{bindings: bindings, confidence: 1.0}}

	default:
		return nil
	}
}

func candidateValues(wm *model.WorkingMemory) []model.SymbolicExpression {
	var out []model.SymbolicExpression
	for _, entries := range wm.Facts {
		for _, fe := range entries {
			for _, a := range fe.Args {
				if a.Kind == model.ExprLiteral {
					out = append(out, a)
				}
			}
		}
	}
	return out
}
