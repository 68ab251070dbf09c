// Package reasoner implements a working-memory + rule engine doing forward
// and backward chaining with unification over model.SymbolicExpression,
// dispatching by tag: a single switch over model.ExprKind rather than a
// type hierarchy.
package reasoner

import (
	"fmt"

	"github.com/unicitynetwork/unicity-orchestrator/internal/model"
)

// Binding is a variable substitution accumulated during unification.
type Binding map[string]model.SymbolicExpression

// clone returns a shallow copy of b so speculative unification attempts
// never mutate a binding still in use by a sibling rule attempt.
func (b Binding) clone() Binding {
	out := make(Binding, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// Unify attempts to unify pattern against value under the given bindings,
// : Literal-Literal by deep equality, Variable-anything binds (occurs-check
// is not required, the expression language forbids recursion through
// variables). Returns the extended binding set, or ok=false.
func Unify(pattern, value model.SymbolicExpression, bindings Binding) (Binding, bool) {
	switch pattern.Kind {
	case model.ExprVariable:
		if existing, bound := bindings[pattern.VarName]; bound {
			return Unify(existing, value, bindings)
		}
		next := bindings.clone()
		next[pattern.VarName] = value
		return next, true

	case model.ExprLiteral:
		if value.Kind == model.ExprVariable {
			return Unify(value, pattern, bindings)
		}
		if value.Kind != model.ExprLiteral {
			return nil, false
		}
		if !deepEqual(pattern.Literal, value.Literal) {
			return nil, false
		}
		return bindings, true

	case model.ExprFact:
		if value.Kind == model.ExprVariable {
			return Unify(value, pattern, bindings)
		}
		if value.Kind != model.ExprFact || value.Predicate != pattern.Predicate || len(value.Args) != len(pattern.Args) {
			return nil, false
		}
		cur := bindings
		for i := range pattern.Args {
			next, ok := Unify(pattern.Args[i], value.Args[i], cur)
			if !ok {
				return nil, false
			}
			cur = next
		}
		return cur, true

	default:
		return nil, false
	}
}

func deepEqual(a, b any) bool {
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// Substitute replaces every bound Variable in expr with its binding,
// recursively. Unbound variables are left as-is.
func Substitute(expr model.SymbolicExpression, bindings Binding) model.SymbolicExpression {
	switch expr.Kind {
	case model.ExprVariable:
		if v, ok := bindings[expr.VarName]; ok {
			return v
		}
		return expr
	case model.ExprFact:
		args := make([]model.SymbolicExpression, len(expr.Args))
		for i, a := range expr.Args {
			args[i] = Substitute(a, bindings)
		}
		out := expr
		out.Args = args
		return out
	case model.ExprAnd, model.ExprOr:
		args := make([]model.SymbolicExpression, len(expr.Args))
		for i, a := range expr.Args {
			args[i] = Substitute(a, bindings)
		}
		out := expr
		out.Args = args
		return out
	case model.ExprNot:
		sub := Substitute(*expr.Operand, bindings)
		out := expr
		out.Operand = &sub
		return out
	case model.ExprImplies:
		ant := Substitute(*expr.Antecedent, bindings)
		con := Substitute(*expr.Consequent, bindings)
		out := expr
		out.Antecedent, out.Consequent = &ant, &con
		return out
	case model.ExprComparison:
		lhs := Substitute(*expr.LHS, bindings)
		rhs := Substitute(*expr.RHS, bindings)
		out := expr
		out.LHS, out.RHS = &lhs, &rhs
		return out
	case model.ExprQuantified:
		body := Substitute(*expr.Body, bindings)
		out := expr
		out.Body = &body
		return out
	default:
		return expr
	}
}
