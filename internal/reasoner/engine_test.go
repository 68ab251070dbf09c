package reasoner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unicitynetwork/unicity-orchestrator/internal/model"
)

func TestForwardChainDerivesBoostConfidence(t *testing.T) {
	// tool_selected(X) -> boost_confidence(X, 0.1)
	rule := model.SymbolicRule{
		RuleID:   "r1",
		Priority: 1,
		Confidence: 1.0,
		Antecedents: []model.SymbolicExpression{
			model.Fact("tool_selected", nil, model.Var("x")),
		},
		Consequents: []model.SymbolicExpression{
			model.Fact("boost_confidence", nil, model.Var("x"), model.Lit(0.1)),
		},
	}
	engine := NewEngine([]model.SymbolicRule{rule}, 16)

	wm := model.NewWorkingMemory()
	conf := 0.8
	wm.AddFact("tool_selected", conf, model.Lit("fs.read_file"))

	rounds := engine.ForwardChain(wm)
	assert.LessOrEqual(t, rounds, 16)

	boosts := wm.Facts["boost_confidence"]
	require.Len(t, boosts, 1)
	assert.Equal(t, "fs.read_file", boosts[0].Args[0].Literal)
	assert.InDelta(t, conf, boosts[0].Confidence, 1e-9)
}

func TestForwardChainTerminatesWithinRoundBound(t *testing.T) {
	// A rule that keeps "deriving" the same fact must not loop forever.
	rule := model.SymbolicRule{
		RuleID:   "loop",
		Priority: 1,
		Confidence: 1.0,
		Antecedents: []model.SymbolicExpression{
			model.Fact("seen", nil, model.Var("x")),
		},
		Consequents: []model.SymbolicExpression{
			model.Fact("seen", nil, model.Var("x")),
		},
	}
	engine := NewEngine([]model.SymbolicRule{rule}, 16)
	wm := model.NewWorkingMemory()
	wm.AddFact("seen", 1.0, model.Lit("x"))

	rounds := engine.ForwardChain(wm)
	assert.LessOrEqual(t, rounds, 16)
}

func TestUnifyVariableBindsToLiteral(t *testing.T) {
	pattern := model.Var("x")
	value := model.Lit("fs.read_file")
	bindings, ok := Unify(pattern, value, Binding{})
	require.True(t, ok)
	assert.Equal(t, "fs.read_file", bindings["x"].Literal)
}

func TestUnifyLiteralMismatchFails(t *testing.T) {
	_, ok := Unify(model.Lit("a"), model.Lit("b"), Binding{})
	assert.False(t, ok)
}

func TestComparisonOperators(t *testing.T) {
	wm := model.NewWorkingMemory()
	expr := model.SymbolicExpression{
		Kind: model.ExprComparison,
		Op:   model.CmpGe,
		LHS:  ptr(model.Lit(0.8)),
		RHS:  ptr(model.Lit(0.5)),
	}
	matches := Match(expr, wm, Binding{})
	assert.Len(t, matches, 1)
}

func ptr(e model.SymbolicExpression) *model.SymbolicExpression { return &e }
