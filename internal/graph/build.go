package graph

import "github.com/unicitynetwork/unicity-orchestrator/internal/model"

// Build constructs a fresh Graph from persisted records,: a Service node per
// service, a Tool node plus a BelongsTo edge per tool, and a DataFlow edge
// per persisted compatibility record. Embeddings are attached to Tool nodes
// by lookup via embeddingOf.
func Build(services []model.Service, tools []model.Tool, dataFlows []model.GraphEdge, embeddingOf func(toolID string) []float32) *Graph {
	b := NewBuilder()

	for _, s := range services {
		b.AddNode(model.GraphNode{NodeID: serviceNodeID(s.ServiceID), Kind: model.NodeService, Payload: s})
	}

	for _, t := range tools {
		node := model.GraphNode{NodeID: toolNodeID(t.ToolID), Kind: model.NodeTool, Payload: t}
		if embeddingOf != nil {
			node.Embedding = embeddingOf(t.ToolID)
		}
		b.AddNode(node)
		b.AddEdge(model.GraphEdge{
			From:   toolNodeID(t.ToolID),
			To:     serviceNodeID(t.ServiceID),
			Kind:   model.EdgeBelongsTo,
			Weight: 1.0,
		})
	}

	for _, e := range dataFlows {
		b.AddEdge(e)
	}

	return b.Build()
}

func serviceNodeID(serviceID string) string { return "service:" + serviceID }
func toolNodeID(toolID string) string        { return "tool:" + toolID }
