// Package exec resolves a tool call to its owning service, gates it behind
// a standing or just-elicited permission, dispatches it through the
// supervisor, and stamps the result with the calling service's provenance
// prefix before it reaches the caller.
//
// Transport errors are retried exactly once. The permission precedence is
// AutoApprove > explicit Blocked > standing Permission > TrustedServices >
// DefaultApprovalMode.
package exec

import (
	"context"
	"fmt"
	"time"

	"github.com/unicitynetwork/unicity-orchestrator/internal/elicitation"
	"github.com/unicitynetwork/unicity-orchestrator/internal/model"
	"github.com/unicitynetwork/unicity-orchestrator/internal/store"
	"github.com/unicitynetwork/unicity-orchestrator/internal/supervisor"
	"github.com/unicitynetwork/unicity-orchestrator/internal/userstore"
)

// Resolver looks up a tool_id's owning tool and service, satisfied by
// internal/registry.Registry.Resolve.
type Resolver interface {
	Resolve(ctx context.Context, toolID string) (*model.Tool, *model.Service, error)
}

// Caller dispatches a tool call to a live child service, satisfied by
// internal/supervisor.Supervisor.CallTool.
type Caller interface {
	CallTool(ctx context.Context, serviceID, name string, args map[string]any) (any, error)
}

const defaultCallBudget = 60 * time.Second

// Coordinator is the execution path every unicity.execute_tool call (and
// every direct child tool call made on its behalf) goes through.
type Coordinator struct {
	resolver Resolver
	caller   Caller
	store    store.Store
	elic     *elicitation.Coordinator
	users    *userstore.UserStore
}

func New(resolver Resolver, caller Caller, st store.Store, elic *elicitation.Coordinator, users *userstore.UserStore) *Coordinator {
	return &Coordinator{resolver: resolver, caller: caller, store: st, elic: elic, users: users}
}

// Request is one execute_tool invocation.
type Request struct {
	UserID    string
	Prefs     model.UserPreferences
	ToolID    string
	Arguments map[string]any
	IP        string
	UserAgent string
}

// Execute runs the full pipeline: resolve, authorize (consulting or creating
// a permission), dispatch, wrap provenance, audit.
func (c *Coordinator) Execute(ctx context.Context, req Request) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultCallBudget)
	defer cancel()

	tool, svc, err := c.resolver.Resolve(ctx, req.ToolID)
	if err != nil {
		return nil, err
	}

	if err := c.authorize(ctx, req, *tool, *svc); err != nil {
		c.users.Audit(ctx, req.UserID, model.ActionPermissionDenied, svc.Name+":"+tool.ToolName, req.IP, req.UserAgent)
		return nil, err
	}

	result, err := c.dispatch(ctx, svc.ServiceID, tool.ToolName, req.Arguments)
	if err != nil {
		return nil, err
	}

	wrapped := wrapProvenance(svc.Name, result)
	c.users.Audit(ctx, req.UserID, model.ActionToolExecuted, svc.Name+":"+tool.ToolName, req.IP, req.UserAgent)
	return wrapped, nil
}

// authorize implements the permission precedence: a service's AutoApprove
// list always wins; an explicit Blocked entry always denies; a standing
// Granted permission (consumed if OneShot) is honored next; a service in the
// user's TrustedServices proceeds without approval; otherwise the user's
// DefaultApprovalMode decides whether to proceed silently, deny outright, or
// elicit an Approval decision and act on it.
func (c *Coordinator) authorize(ctx context.Context, req Request, tool model.Tool, svc model.Service) error {
	if _, ok := svc.AutoApprove[tool.ToolName]; ok {
		return nil
	}

	if _, blocked := req.Prefs.BlockedServices[svc.Name]; blocked {
		return model.NewError(model.ErrPermissionDenied, "service %q is blocked for this user", svc.Name)
	}

	perm, err := c.store.FindPermission(ctx, req.UserID, svc.Name, tool.ToolName)
	if err != nil && err != store.ErrNotFound {
		return fmt.Errorf("find permission: %w", err)
	}
	if perm != nil && perm.Status == model.PermissionGranted {
		if perm.Expiry != nil && perm.Expiry.Before(time.Now()) {
			// fall through to re-elicit; an Expired permission behaves like none
		} else {
			if perm.Scope == model.ScopeOneShot {
				_ = c.store.ConsumePermission(ctx, perm.PermissionID)
			}
			return nil
		}
	}

	if _, trusted := req.Prefs.TrustedServices[svc.Name]; trusted {
		return nil
	}

	switch req.Prefs.DefaultApprovalMode {
	case model.ApprovalModeAllow:
		return nil
	case model.ApprovalModeDeny:
		return model.NewError(model.ErrPermissionDenied, "default_approval_mode is deny for %q", svc.Name)
	default:
		return c.elicitApproval(ctx, req, tool, svc)
	}
}

// elicitApproval runs the Approval flow. allow_once lets this one call
// through without storing a permission; always_allow persists a Granted
// permission. Open-question resolution: remember_decisions == false
// downgrades an always_allow answer to a OneShot permission instead of a
// Persistent one (see DESIGN.md).
func (c *Coordinator) elicitApproval(ctx context.Context, req Request, tool model.Tool, svc model.Service) error {
	el, err := c.elic.RequestApproval(ctx, req.UserID, svc.Name, tool.ToolName, req.Prefs.ElicitationTimeoutSeconds)
	if err != nil {
		return err
	}
	c.users.Audit(ctx, req.UserID, model.ActionElicitationRequested, svc.Name+":"+tool.ToolName, req.IP, req.UserAgent)

	resp, status, err := c.elic.Await(ctx, el.ElicitationID)
	if err != nil {
		return err
	}
	c.users.Audit(ctx, req.UserID, model.ActionElicitationCompleted, svc.Name+":"+tool.ToolName, req.IP, req.UserAgent)

	if status != model.ElicitationCompleted {
		return model.NewError(model.ErrElicitationDeclined, "approval for %q was %s", svc.Name, status)
	}

	switch resp.Decision {
	case model.DecisionDeny:
		return model.NewError(model.ErrPermissionDenied, "user denied %q", svc.Name)
	case model.DecisionAllowOnce:
		return nil
	case model.DecisionAlwaysAllow:
		scope := model.ScopePersistent
		if !req.Prefs.RememberDecisions {
			scope = model.ScopeOneShot
		}
		perm := model.Permission{
			PermissionID: svc.ServiceID + ":" + tool.ToolName + ":" + req.UserID,
			UserID:       req.UserID,
			ServiceName:  svc.Name,
			ToolName:     tool.ToolName,
			Status:       model.PermissionGranted,
			Scope:        scope,
		}
		if err := c.store.UpsertPermission(ctx, perm); err != nil {
			return fmt.Errorf("persist permission: %w", err)
		}
		c.users.Audit(ctx, req.UserID, model.ActionPermissionGranted, svc.Name+":"+tool.ToolName, req.IP, req.UserAgent)
		return nil
	default:
		return model.NewError(model.ErrPermissionDenied, "unrecognized approval decision %q", resp.Decision)
	}
}

// dispatch calls through the supervisor, retrying exactly once if the
// failure was a TransportError.
func (c *Coordinator) dispatch(ctx context.Context, serviceID, toolName string, args map[string]any) (any, error) {
	result, err := c.caller.CallTool(ctx, serviceID, toolName, args)
	if err == nil {
		return result, nil
	}
	if model.CodeOf(err) != model.ErrTransportError {
		return nil, err
	}
	return c.caller.CallTool(ctx, serviceID, toolName, args)
}

// wrapProvenance prepends "[service_name] " to the first text content block
// of a tool call result. Results that don't match the expected
// {"content":[{"type":"text","text":...}]} shape pass through unmodified.
func wrapProvenance(serviceName string, result any) any {
	top, ok := result.(map[string]any)
	if !ok {
		return result
	}
	content, ok := top["content"].([]any)
	if !ok {
		return result
	}
	for _, block := range content {
		b, ok := block.(map[string]any)
		if !ok {
			continue
		}
		if b["type"] != "text" {
			continue
		}
		text, ok := b["text"].(string)
		if !ok {
			continue
		}
		b["text"] = fmt.Sprintf("[%s] %s", serviceName, text)
		return top
	}
	return top
}
