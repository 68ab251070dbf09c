// Package registry implements the tool selector and the prompt/resource
// registries: it owns the atomically-swappable knowledge graph and reasoner
// built at warmup/rediscovery, and the aliasing tables built from every
// child service's advertised prompts and resources.
//
// The rebuild-then-swap discovery loop builds a freshly built
// *graph.Graph/*reasoner.Engine pair and swaps it in wholesale so
// concurrent selections never observe a half-built graph.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"

	"github.com/unicitynetwork/unicity-orchestrator/internal/embedding"
	"github.com/unicitynetwork/unicity-orchestrator/internal/graph"
	"github.com/unicitynetwork/unicity-orchestrator/internal/model"
	"github.com/unicitynetwork/unicity-orchestrator/internal/reasoner"
	"github.com/unicitynetwork/unicity-orchestrator/internal/schema"
	"github.com/unicitynetwork/unicity-orchestrator/internal/store"
	"github.com/unicitynetwork/unicity-orchestrator/internal/supervisor"
	"github.com/unicitynetwork/unicity-orchestrator/pkg/mcp"
)

// snapshot is the atomically-swapped bundle rebuilt on every Discover.
type snapshot struct {
	graph    *graph.Graph
	engine   *reasoner.Engine
	types    *graph.TypeSystem
	services map[string]model.Service // serviceID -> Service, for name resolution
	tools    map[string]model.Tool    // toolID -> Tool
}

// Registry ties the embedding manager, the supervisor, and the store
// together into the selector and the prompt/resource catalog. All exported
// methods are safe for concurrent use; Discover is the only writer and may
// run concurrently with readers (the old snapshot stays live until the new
// one is published).
type Registry struct {
	embed *embedding.Manager
	super *supervisor.Supervisor
	st    store.Store

	cur atomic.Pointer[snapshot]

	catalog *catalog
}

func New(embed *embedding.Manager, super *supervisor.Supervisor, st store.Store) *Registry {
	r := &Registry{embed: embed, super: super, st: st, catalog: newCatalog()}
	r.cur.Store(&snapshot{
		services: map[string]model.Service{},
		tools:    map[string]model.Tool{},
	})
	return r
}

// Discover runs a full warmup + index + rebuild pass: start/attach every
// configured child, normalize and embed its tools, persist the catalog,
// and swap in a fresh graph/reasoner snapshot.
func (r *Registry) Discover(ctx context.Context) error {
	r.super.Warmup(ctx)

	services := r.super.Services()
	for _, svc := range services {
		if err := r.st.UpsertService(ctx, svc); err != nil {
			return fmt.Errorf("persist service %s: %w", svc.Name, err)
		}
	}

	for _, svc := range services {
		state := r.super.State(svc.ServiceID)
		if state != model.ServiceReady && state != model.ServiceIndexed {
			continue
		}
		if err := r.indexService(ctx, svc); err != nil {
			slog.Error("registry: index service failed", "service", svc.Name, "error", err)
		}
	}

	return r.rebuild(ctx, services)
}

func (r *Registry) indexService(ctx context.Context, svc model.Service) error {
	rawTools, err := r.super.ListTools(svc.ServiceID)
	if err != nil {
		return err
	}

	if err := r.st.DeleteToolsByService(ctx, svc.ServiceID); err != nil {
		return fmt.Errorf("clear prior tools: %w", err)
	}

	for _, rt := range rawTools {
		t := model.Tool{
			ToolID:       toolID(svc.ServiceID, rt.Name),
			ToolName:     rt.Name,
			ServiceID:    svc.ServiceID,
			Description:  rt.Description,
			InputSchema:  schema.Normalize(rt.InputSchema),
			OutputSchema: nil,
			InputTy:      extensionType(rt.InputSchema, "x-input-type"),
			OutputTy:     extensionType(rt.InputSchema, "x-output-type"),
		}

		text, err := embedding.CompositeText(t)
		if err != nil {
			slog.Warn("registry: composite text failed, skipping embed", "tool", rt.Name, "error", err)
		} else {
			t.ContentHash = embedding.ContentHash(text)
		}

		if err := r.st.UpsertTool(ctx, t); err != nil {
			return fmt.Errorf("persist tool %s: %w", rt.Name, err)
		}
		if _, err := r.embed.EnsureEmbedded(ctx, t); err != nil {
			slog.Error("registry: embed tool failed", "tool", rt.Name, "error", err)
		}
	}

	rawPrompts, _ := r.super.ListPrompts(svc.ServiceID)
	for _, p := range rawPrompts {
		r.catalog.registerPrompt(svc.ServiceID, p)
	}
	if err := r.catalog.persistPrompts(ctx, r.st); err != nil {
		slog.Error("registry: persist prompt registry failed", "error", err)
	}

	rawResources, _ := r.super.ListResources(svc.ServiceID)
	for _, res := range rawResources {
		r.catalog.registerResource(svc.ServiceID, res)
	}
	if err := r.catalog.persistResources(ctx, r.st); err != nil {
		slog.Error("registry: persist resource registry failed", "error", err)
	}

	return nil
}

// rebuild constructs a fresh graph+reasoner pair from whatever is now
// persisted and swaps it in atomically.
func (r *Registry) rebuild(ctx context.Context, services []model.Service) error {
	tools, err := r.st.ListTools(ctx)
	if err != nil {
		return fmt.Errorf("list tools: %w", err)
	}

	compatRules, err := r.st.ListTypeCompatibility(ctx)
	if err != nil {
		return fmt.Errorf("list type compatibility: %w", err)
	}
	types := graph.NewTypeSystem()
	for _, rule := range compatRules {
		types.AddRule(rule)
	}

	edges := dataFlowEdges(tools, types)

	sequences, err := r.st.ListToolSequences(ctx)
	if err != nil {
		return fmt.Errorf("list tool sequences: %w", err)
	}
	for _, s := range sequences {
		edges = append(edges, model.GraphEdge{From: "tool:" + s.FromToolID, To: "tool:" + s.ToToolID, Kind: model.EdgeSequential, Weight: s.Confidence})
	}

	embeddingOf := func(toolID string) []float32 {
		e, err := r.embed.EnsureEmbedded(ctx, toolByID(tools, toolID))
		if err != nil {
			return nil
		}
		return e.Vector
	}
	g := graph.Build(services, tools, edges, embeddingOf)

	rules, err := r.st.ListRules(ctx)
	if err != nil {
		return fmt.Errorf("list rules: %w", err)
	}
	engine := reasoner.NewEngine(rules, model.DefaultMaxRounds)

	svcByID := make(map[string]model.Service, len(services))
	for _, s := range services {
		svcByID[s.ServiceID] = s
	}
	toolByIDMap := make(map[string]model.Tool, len(tools))
	for _, t := range tools {
		toolByIDMap[t.ToolID] = t
	}

	r.cur.Store(&snapshot{graph: g, engine: engine, types: types, services: svcByID, tools: toolByIDMap})
	return nil
}

// LoadSnapshot rebuilds the graph/reasoner snapshot from whatever is already
// persisted, without starting or re-listing any child service — used by a
// read-only query path against a previously discovered store, where super
// may even be nil.
func (r *Registry) LoadSnapshot(ctx context.Context) error {
	services, err := r.st.ListServices(ctx)
	if err != nil {
		return fmt.Errorf("list services: %w", err)
	}
	return r.rebuild(ctx, services)
}

func toolByID(tools []model.Tool, id string) model.Tool {
	// graph.Build passes the plain tool id; a "tool:" node-id prefix is
	// stripped if present.
	const prefix = "tool:"
	if len(id) > len(prefix) && id[:len(prefix)] == prefix {
		id = id[len(prefix):]
	}
	for _, t := range tools {
		if t.ToolID == id {
			return t
		}
	}
	return model.Tool{}
}

// dataFlowEdges derives Tool->Tool DataFlow edges for every pair whose
// output_ty is compatible with the other's input_ty under the persisted
// type system.
func dataFlowEdges(tools []model.Tool, types *graph.TypeSystem) []model.GraphEdge {
	var edges []model.GraphEdge
	for _, from := range tools {
		if from.OutputTy == "" {
			continue
		}
		for _, to := range tools {
			if from.ToolID == to.ToolID || to.InputTy == "" {
				continue
			}
			if conf := types.Compatible(from.OutputTy, to.InputTy); conf > 0 {
				edges = append(edges, model.GraphEdge{
					From:   "tool:" + from.ToolID,
					To:     "tool:" + to.ToolID,
					Kind:   model.EdgeDataFlow,
					Weight: conf,
				})
			}
		}
	}
	return edges
}

func toolID(serviceID, toolName string) string {
	return serviceID + ":" + toolName
}

// extensionType reads a non-standard "x-input-type"/"x-output-type" string
// key from a tool's raw input schema fragment, the orchestrator's chosen
// encoding for the optional input_ty/output_ty type tags since the MCP tool
// wire shape has no dedicated field for them (see DESIGN.md).
func extensionType(fragment map[string]any, key string) string {
	if fragment == nil {
		return ""
	}
	if v, ok := fragment[key].(string); ok {
		return v
	}
	return ""
}

// ServiceName resolves a service id to its display name, for the per-user
// filter (which keys blocked/trusted sets by name, not id).
func (r *Registry) ServiceName(serviceID string) string {
	snap := r.cur.Load()
	if svc, ok := snap.services[serviceID]; ok {
		return svc.Name
	}
	return serviceID
}

// Resolve looks up a tool and its owning service by tool_id, for the
// execution coordinator.
func (r *Registry) Resolve(ctx context.Context, toolID string) (*model.Tool, *model.Service, error) {
	t, err := r.st.GetTool(ctx, toolID)
	if err != nil {
		return nil, nil, err
	}
	if t == nil {
		return nil, nil, model.NewError(model.ErrUnknownTool, "unknown tool %q", toolID)
	}
	svc, err := r.st.GetService(ctx, t.ServiceID)
	if err != nil {
		return nil, nil, err
	}
	if svc == nil {
		return nil, nil, model.NewError(model.ErrServiceUnavailable, "tool %q has no owning service", toolID)
	}
	return t, svc, nil
}

// DebugListTools returns every currently indexed tool, for
// unicity.debug.list_tools, unfiltered by the per-user filter.
func (r *Registry) DebugListTools(ctx context.Context) ([]model.Tool, error) {
	tools, err := r.st.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].ToolName < tools[j].ToolName })
	return tools, nil
}

// mcpToolOf is a small seam kept for callers that need to round-trip a
// stored Tool back into the wire Tool shape (e.g. an MCP tools/list served
// over the aggregate /mcp endpoint).
func mcpToolOf(t model.Tool) mcp.Tool {
	return mcp.Tool{Name: t.ToolName, Description: t.Description}
}
