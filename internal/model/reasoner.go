package model

// ExprKind tags the variant of a SymbolicExpression.
type ExprKind string

const (
	ExprFact       ExprKind = "Fact"
	ExprAnd        ExprKind = "And"
	ExprOr         ExprKind = "Or"
	ExprNot        ExprKind = "Not"
	ExprImplies    ExprKind = "Implies"
	ExprQuantified ExprKind = "Quantified"
	ExprComparison ExprKind = "Comparison"
	ExprVariable   ExprKind = "Variable"
	ExprLiteral    ExprKind = "Literal"
)

// Quantifier is the closed set of Quantified binders.
type Quantifier string

const (
	QuantifierForAll Quantifier = "forall"
	QuantifierExists Quantifier = "exists"
)

// CompareOp is the closed set of Comparison operators.
type CompareOp string

const (
	CmpEq CompareOp = "="
	CmpNe CompareOp = "!="
	CmpLt CompareOp = "<"
	CmpLe CompareOp = "<="
	CmpGt CompareOp = ">"
	CmpGe CompareOp = ">="
)

// SymbolicExpression is the tagged union over Fact/And/Or/Not/Implies/
// Quantified/Comparison/Variable/Literal described in. Exactly the fields
// relevant to Kind are populated; callers must switch on Kind.
type SymbolicExpression struct {
	Kind ExprKind

	// Fact
	Predicate  string
	Args       []SymbolicExpression
	Confidence *float64 // optional, Fact only

	// And/Or: Args used as the operand list (reusing the Fact slice field
	// keeps the type small; Predicate is unused for these kinds)
	// Not
	Operand *SymbolicExpression

	// Implies
	Antecedent *SymbolicExpression
	Consequent *SymbolicExpression

	// Quantified
	Quantifier Quantifier
	Var        string
	Body       *SymbolicExpression

	// Comparison
	Op  CompareOp
	LHS *SymbolicExpression
	RHS *SymbolicExpression

	// Variable
	VarName string

	// Literal
	Literal any
}

// Fact builds a Fact expression.
func Fact(predicate string, confidence *float64, args ...SymbolicExpression) SymbolicExpression {
	return SymbolicExpression{Kind: ExprFact, Predicate: predicate, Args: args, Confidence: confidence}
}

// Var builds a Variable expression.
func Var(name string) SymbolicExpression {
	return SymbolicExpression{Kind: ExprVariable, VarName: name}
}

// Lit builds a Literal expression.
func Lit(v any) SymbolicExpression {
	return SymbolicExpression{Kind: ExprLiteral, Literal: v}
}

// SymbolicRule is one forward/backward chaining rule.
type SymbolicRule struct {
	RuleID       string
	Name         string
	Description  string
	Antecedents  []SymbolicExpression
	Consequents  []SymbolicExpression
	Confidence   float64
	Priority     int
}

// ToolState is a per-tool state in the working memory.
type ToolState string

const (
	ToolStateAvailable ToolState = "Available"
	ToolStateExecuting ToolState = "Executing"
	ToolStateCompleted ToolState = "Completed"
	ToolStateFailed    ToolState = "Failed"
	ToolStateBlocked   ToolState = "Blocked"
)

// FactEntry is one grounded fact in working memory, with its derived
// confidence.
type FactEntry struct {
	Predicate  string
	Args       []SymbolicExpression
	Confidence float64
}

// WorkingMemory is the transient, per-query fact base and rule-engine
// scratch state the symbolic reasoner operates on. Never shared across
// queries.
type WorkingMemory struct {
	// Facts groups grounded facts by predicate name for fast antecedent
	// matching.
	Facts map[string][]FactEntry
	// Bindings is a scratch variable-substitution map. The reasoner keeps
	// its unification bindings locally and neither reads nor writes this
	// field.
	Bindings map[string]SymbolicExpression
	// ToolStates tracks each candidate tool's lifecycle state for this query.
	ToolStates map[string]ToolState
}

// NewWorkingMemory returns an empty working memory ready for seeding.
func NewWorkingMemory() *WorkingMemory {
	return &WorkingMemory{
		Facts:      make(map[string][]FactEntry),
		Bindings:   make(map[string]SymbolicExpression),
		ToolStates: make(map[string]ToolState),
	}
}

// AddFact appends a grounded fact to working memory.
func (wm *WorkingMemory) AddFact(predicate string, confidence float64, args ...SymbolicExpression) {
	wm.Facts[predicate] = append(wm.Facts[predicate], FactEntry{
		Predicate:  predicate,
		Args:       args,
		Confidence: confidence,
	})
}

// DefaultMaxRounds bounds forward chaining so it always terminates.
const DefaultMaxRounds = 16
