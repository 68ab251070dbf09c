package model

// NodeKind is the closed set of knowledge-graph node kinds.
type NodeKind string

const (
	NodeService  NodeKind = "Service"
	NodeTool     NodeKind = "Tool"
	NodeType     NodeKind = "Type"
	NodeConcept  NodeKind = "Concept"
	NodeRegistry NodeKind = "Registry"
)

// GraphNode is a node in the knowledge graph. Payload carries kind-specific
// data (e.g. the Tool or Service record) as a JSON-compatible value so the
// graph package stays decoupled from the exact entity shapes.
type GraphNode struct {
	NodeID  string
	Kind    NodeKind
	Payload any
	// Embedding is present only on Tool nodes that have a live embedding.
	Embedding []float32
}

// EdgeKind is the closed set of typed edges.
type EdgeKind string

const (
	EdgeDataFlow           EdgeKind = "DataFlow"
	EdgeSemanticSimilarity EdgeKind = "SemanticSimilarity"
	EdgeSequential         EdgeKind = "Sequential"
	EdgeParallel           EdgeKind = "Parallel"
	EdgeConditional        EdgeKind = "Conditional"
	EdgeTransform          EdgeKind = "Transform"
	EdgeBelongsTo          EdgeKind = "BelongsTo"
	EdgeTypeRelation       EdgeKind = "TypeRelation"
	EdgeConceptRelation    EdgeKind = "ConceptRelation"
)

// GraphEdge connects two nodes by ID. Weight is confidence/strength in
// [0,1]. Invariants (held by the code that creates edges, not checked by
// this type or by graph.Builder.AddEdge): graph.Build creates BelongsTo
// edges Tool -> Service; internal/registry only derives DataFlow(a->b) when
// compatible(a.output_ty, b.input_ty) under the type system.
type GraphEdge struct {
	From   string
	To     string
	Kind   EdgeKind
	Weight float64
}

// TypeCompatibilityRule is a (parent, child, confidence) triple used by the
// type compatibility checker.
type TypeCompatibilityRule struct {
	Parent     string
	Child      string
	Confidence float64
}

// Built-in confidence constants from.
const (
	IdentityConfidence        = 1.0
	InheritanceHopDecay       = 0.8
)
