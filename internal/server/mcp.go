package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/oklog/ulid/v2"

	"github.com/unicitynetwork/unicity-orchestrator/internal/auth"
	"github.com/unicitynetwork/unicity-orchestrator/internal/exec"
	"github.com/unicitynetwork/unicity-orchestrator/internal/model"
	"github.com/unicitynetwork/unicity-orchestrator/pkg/mcp"
)

// mcpSessionHeader is the MCP-over-HTTP session id header. pkg/mcp's
// ToolHandler/ResourceHandler/PromptHandler carry no context or per-request
// identity, so this package binds a caller's resolved auth.Identity into a
// fresh *mcp.MCP built for that one request rather than threading it through
// pkg/mcp itself; the session id is only used to keep catalog subscriptions
// stable across a client's requests (see DESIGN.md).
const mcpSessionHeader = "Mcp-Session-Id"

// MCP handles the aggregate MCP-over-HTTP endpoint: unicity.select_tool,
// unicity.plan_tools, unicity.execute_tool, unicity.debug.list_tools, and
// every forwarded child prompt/resource, behind the auth chain.
func (s *Server) MCP(w http.ResponseWriter, r *http.Request) {
	id, err := s.identity(r)
	if err != nil {
		writeError(w, err)
		return
	}

	sessionID := r.Header.Get(mcpSessionHeader)
	if sessionID == "" {
		sessionID = ulid.Make().String()
	}
	w.Header().Set(mcpSessionHeader, sessionID)

	instance := s.buildMCP(r.Context(), id, sessionID, r)
	instance.ServeHTTP(w, r)
}

// buildMCP constructs a fresh *mcp.MCP for one HTTP request: the three meta
// selection/planning/execution tools, plus every prompt/resource currently
// registered in the catalog forwarded to its owning child service.
func (s *Server) buildMCP(ctx context.Context, id auth.Identity, sessionID string, r *http.Request) *mcp.MCP {
	m := mcp.New()
	m.Name = "unicity-orchestrator"

	s.addSelectToolHandler(m, id)
	s.addPlanToolsHandler(m, id)
	s.addExecuteToolHandler(m, id, r)
	s.addDebugListToolsHandler(m)

	for _, entry := range s.registry.ListPrompts() {
		s.addForwardedPrompt(m, entry)
	}
	for _, entry := range s.registry.ListResources() {
		s.addForwardedResource(m, entry, sessionID)
	}

	return m
}

func (s *Server) addSelectToolHandler(m *mcp.MCP, id auth.Identity) {
	m.AddTool(mcp.Tool{
		Name:        "unicity.select_tool",
		Description: "Rank the child tools best matching a natural-language query",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query":     map[string]any{"type": "string"},
				"context":   map[string]any{"type": "object"},
				"k":         map[string]any{"type": "integer"},
				"threshold": map[string]any{"type": "number"},
			},
			"required": []string{"query"},
		},
	}, func(args map[string]any) (any, error) {
		query, _ := args["query"].(string)
		queryCtx, _ := args["context"].(map[string]any)
		k := intArg(args, "k")
		threshold := floatArg(args, "threshold")

		selections, err := s.registry.SelectTool(context.Background(), query, queryCtx, k, threshold, id.Prefs)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"content":    []map[string]any{{"type": "text", "text": fmt.Sprintf("%d candidate(s) found", len(selections))}},
			"selections": selections,
		}, nil
	})
}

func (s *Server) addPlanToolsHandler(m *mcp.MCP, id auth.Identity) {
	m.AddTool(mcp.Tool{
		Name:        "unicity.plan_tools",
		Description: "Build a multi-step tool chain toward a goal",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query":   map[string]any{"type": "string"},
				"context": map[string]any{"type": "object"},
			},
			"required": []string{"query"},
		},
	}, func(args map[string]any) (any, error) {
		query, _ := args["query"].(string)
		queryCtx, _ := args["context"].(map[string]any)

		plan, err := s.registry.PlanTools(context.Background(), query, queryCtx, id.Prefs)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"content": []map[string]any{{"type": "text", "text": fmt.Sprintf("%d step(s) planned", len(plan.Steps))}},
			"plan":    plan,
		}, nil
	})
}

func (s *Server) addExecuteToolHandler(m *mcp.MCP, id auth.Identity, r *http.Request) {
	m.AddTool(mcp.Tool{
		Name:        "unicity.execute_tool",
		Description: "Execute a resolved child tool by tool_id, subject to permission gating",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"tool_id":   map[string]any{"type": "string"},
				"arguments": map[string]any{"type": "object"},
			},
			"required": []string{"tool_id"},
		},
	}, func(args map[string]any) (any, error) {
		toolID, _ := args["tool_id"].(string)
		arguments, _ := args["arguments"].(map[string]any)
		if toolID == "" {
			return nil, model.NewError(model.ErrUnknownTool, "tool_id is required")
		}

		res, err := s.execu.Execute(context.Background(), exec.Request{
			UserID:    id.User.UserID,
			Prefs:     id.Prefs,
			ToolID:    toolID,
			Arguments: arguments,
			IP:        clientIP(r),
			UserAgent: r.UserAgent(),
		})
		switch model.CodeOf(err) {
		case model.ErrElicitationDeclined, model.ErrElicitationTimeout:
			return nil, &mcp.Error{Code: mcp.CodeElicitationDeclined, Message: err.Error()}
		case model.ErrElicitationNotFound:
			return nil, &mcp.Error{Code: mcp.CodeNotFound, Message: err.Error()}
		case model.ErrUrlRedirectRequired:
			return nil, &mcp.Error{Code: mcp.CodeURLRedirectRequired, Message: err.Error()}
		}
		return res, err
	})
}

func (s *Server) addDebugListToolsHandler(m *mcp.MCP) {
	m.AddTool(mcp.Tool{
		Name:        "unicity.debug.list_tools",
		Description: "List every currently indexed tool, unfiltered by per-user blocking",
		InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
	}, func(args map[string]any) (any, error) {
		tools, err := s.registry.DebugListTools(context.Background())
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"content": []map[string]any{{"type": "text", "text": fmt.Sprintf("%d tool(s) indexed", len(tools))}},
			"tools":   tools,
		}, nil
	})
}

// BuildStdioMCP builds an *mcp.MCP bound to an anonymous identity, for
// cmd/orchestrator's mcp-stdio subcommand: a single local client has no
// HTTP session or auth chain to resolve, so it gets the same default
// preferences an anonymous HTTP caller would.
func (s *Server) BuildStdioMCP(ctx context.Context) *mcp.MCP {
	id := auth.Identity{Prefs: model.DefaultPreferences("")}
	r, _ := http.NewRequest(http.MethodPost, "stdio://local", nil)
	return s.buildMCP(ctx, id, "stdio", r)
}

// addForwardedPrompt registers entry as an MCP prompt whose handler forwards
// prompts/get to its owning child service.
func (s *Server) addForwardedPrompt(m *mcp.MCP, entry model.RegistryEntry) {
	name := entry.Name
	serviceID := entry.ServiceID
	m.AddPrompt(mcp.Prompt{Name: name}, func(args map[string]string) (mcp.GetPromptResult, error) {
		return s.super.GetPrompt(context.Background(), serviceID, name, args)
	})
}

// addForwardedResource registers entry as an MCP resource whose handler
// forwards resources/read to its owning child service, and records sessionID
// as a subscriber so a later resources/updated notification (driven by
// internal/registry.Subscribers) can find it.
func (s *Server) addForwardedResource(m *mcp.MCP, entry model.RegistryEntry, sessionID string) {
	uri := entry.Name
	serviceID := entry.ServiceID
	s.registry.Subscribe(sessionID, uri)
	m.AddResource(mcp.Resource{URI: uri}, func(requestedURI string) (any, error) {
		return s.super.ReadResource(context.Background(), serviceID, requestedURI)
	})
}

func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func floatArg(args map[string]any, key string) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

var _ = json.Marshal // keep encoding/json import if no other user is added later
