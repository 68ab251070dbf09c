// Package graph implements a typed knowledge graph of services, tools and
// types, built at warmup and swapped atomically on rediscovery. Traversal
// is a bounded BFS that scores each discovered path by length, generalizing
// a plain dependency walk into "traverse and score arbitrary paths between
// nodes".
package graph

import (
	"sort"

	"github.com/unicitynetwork/unicity-orchestrator/internal/model"
)

// Graph is an immutable snapshot of the knowledge graph. A new Graph is
// built wholesale on every warmup/rediscovery and swapped in atomically by
// the holder (internal/registry), never mutated in place — no query ever
// observes a half-built graph.
type Graph struct {
	nodes map[string]model.GraphNode
	// adjacency maps a node id to its outgoing edges.
	adjacency map[string][]model.GraphEdge
}

// Builder accumulates nodes/edges before Build() freezes them into a Graph.
type Builder struct {
	nodes map[string]model.GraphNode
	edges []model.GraphEdge
}

func NewBuilder() *Builder {
	return &Builder{nodes: make(map[string]model.GraphNode)}
}

func (b *Builder) AddNode(n model.GraphNode) *Builder {
	b.nodes[n.NodeID] = n
	return b
}

func (b *Builder) AddEdge(e model.GraphEdge) *Builder {
	b.edges = append(b.edges, e)
	return b
}

func (b *Builder) Build() *Graph {
	adjacency := make(map[string][]model.GraphEdge, len(b.nodes))
	for _, e := range b.edges {
		adjacency[e.From] = append(adjacency[e.From], e)
	}
	return &Graph{nodes: b.nodes, adjacency: adjacency}
}

// Node returns the node with the given id, or false if absent.
func (g *Graph) Node(id string) (model.GraphNode, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Edges returns the outgoing edges from id, optionally filtered to kinds.
func (g *Graph) Edges(id string, kinds ...model.EdgeKind) []model.GraphEdge {
	all := g.adjacency[id]
	if len(kinds) == 0 {
		return all
	}
	allowed := make(map[model.EdgeKind]struct{}, len(kinds))
	for _, k := range kinds {
		allowed[k] = struct{}{}
	}
	out := make([]model.GraphEdge, 0, len(all))
	for _, e := range all {
		if _, ok := allowed[e.Kind]; ok {
			out = append(out, e)
		}
	}
	return out
}

// NodeCount reports the number of nodes, used by admin/observability.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// Path is one traversal result from BFS.
type Path struct {
	Nodes []string
	Score float64
}

// BFS performs a bounded breadth-first search from start, returning every
// path discovered within maxDepth hops, filtered to the optional edge-kind
// allow-list, ordered by decreasing score and ties broken by lexical
// node-id order.
func (g *Graph) BFS(start string, allowKinds []model.EdgeKind, maxDepth int) []Path {
	if _, ok := g.nodes[start]; !ok {
		return nil
	}

	type frame struct {
		path []string
	}

	var results []Path
	queue := []frame{{path: []string{start}}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		last := cur.path[len(cur.path)-1]
		if len(cur.path) > 1 {
			results = append(results, Path{
				Nodes: append([]string(nil), cur.path...),
				Score: PathSimilarity(len(cur.path) - 1),
			})
		}

		if len(cur.path)-1 >= maxDepth {
			continue
		}

		for _, e := range g.Edges(last, allowKinds...) {
			if containsNode(cur.path, e.To) {
				continue // avoid cycles within a single path
			}
			next := append(append([]string(nil), cur.path...), e.To)
			queue = append(queue, frame{path: next})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return lessNodePath(results[i].Nodes, results[j].Nodes)
	})

	return results
}

func containsNode(path []string, id string) bool {
	for _, n := range path {
		if n == id {
			return true
		}
	}
	return false
}

func lessNodePath(a, b []string) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// PathSimilarity is the scoring function: 1.0 / (1.0 + path_length).
func PathSimilarity(pathLength int) float64 {
	return 1.0 / (1.0 + float64(pathLength))
}
