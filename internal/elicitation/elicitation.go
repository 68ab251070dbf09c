// Package elicitation implements the rendezvous between a tool call that
// needs a user decision (Form, Approval, or Url) and the out-of-band channel
// that decision arrives on: a mutex-guarded map of pending flows keyed by a
// generated id, a background goroutine that expires entries past their
// deadline, and a resolve call fed by internal/server's elicitation REST
// endpoints.
package elicitation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/unicitynetwork/unicity-orchestrator/internal/model"
)

// Response is what the out-of-band resolver supplies back into a pending
// elicitation.
type Response struct {
	// Form
	FormData map[string]any
	// Approval
	Decision model.ApprovalDecision
	// Url
	OAuthError string
}

// pending tracks one in-flight elicitation and the channel its resolution
// arrives on. Exactly one of Resolve/Decline/Cancel/expire ever closes done.
type pending struct {
	el   model.Elicitation
	resp Response
	err  error
	done chan struct{}
	once sync.Once
}

func (p *pending) finish(resp Response, status model.ElicitationStatus, err error) {
	p.once.Do(func() {
		p.resp = resp
		p.el.Status = status
		p.err = err
		close(p.done)
	})
}

// Coordinator owns every pending elicitation for the process. It is a single
// in-memory table: elicitations are a rendezvous, never durable state, so
// they do not survive a restart.
type Coordinator struct {
	mu      sync.Mutex
	pending map[string]*pending

	compiler func() *jsonschema.Compiler
	oauth    OAuthResolver
}

// OAuthResolver resolves a named OAuth provider (from mcp.json or config) to
// its authorization endpoint configuration, for the Url flow. Implementing
// internal/server wires this to whatever provider table the deployment
// configures.
type OAuthResolver func(provider string) (*OAuthProvider, error)

func New(oauth OAuthResolver) *Coordinator {
	return &Coordinator{
		pending:  make(map[string]*pending),
		compiler: jsonschema.NewCompiler,
		oauth:    oauth,
	}
}

func newDeadline(timeoutSeconds int) time.Time {
	if timeoutSeconds <= 0 {
		timeoutSeconds = model.DefaultElicitationTimeoutSeconds
	}
	return time.Now().Add(time.Duration(timeoutSeconds) * time.Second)
}

// RequestForm starts a Form elicitation: the caller blocks in Await until the
// user supplies form_data validating against rawSchema, the deadline passes,
// or ctx is canceled.
func (c *Coordinator) RequestForm(ctx context.Context, userID, serviceName, toolName string, rawSchema map[string]any, timeoutSeconds int) (*model.Elicitation, error) {
	el := model.Elicitation{
		ElicitationID: ulid.Make().String(),
		UserID:        userID,
		ServiceName:   serviceName,
		ToolName:      toolName,
		Kind:          model.ElicitationForm,
		Status:        model.ElicitationPending,
		Deadline:      newDeadline(timeoutSeconds),
		RawSchema:     rawSchema,
	}
	return c.register(el)
}

// RequestApproval starts an Approval elicitation asking whether serviceName
// (optionally scoped to toolName) may run.
func (c *Coordinator) RequestApproval(ctx context.Context, userID, serviceName, toolName string, timeoutSeconds int) (*model.Elicitation, error) {
	el := model.Elicitation{
		ElicitationID: ulid.Make().String(),
		UserID:        userID,
		ServiceName:   serviceName,
		ToolName:      toolName,
		Kind:          model.ElicitationApproval,
		Status:        model.ElicitationPending,
		Deadline:      newDeadline(timeoutSeconds),
	}
	return c.register(el)
}

// RequestURL starts a Url (OAuth-style) elicitation: the caller is expected
// to surface the AuthorizationURL to the user (via MCP error code -32042, or
// an equivalent REST redirect) and wait on Await while the provider's
// callback drives Complete.
func (c *Coordinator) RequestURL(ctx context.Context, userID, serviceName, toolName, provider string, timeoutSeconds int) (*model.Elicitation, string, error) {
	if c.oauth == nil {
		return nil, "", model.NewError(model.ErrInternal, "no OAuth provider configured")
	}
	p, err := c.oauth(provider)
	if err != nil {
		return nil, "", err
	}

	state := ulid.Make().String()
	el := model.Elicitation{
		ElicitationID: ulid.Make().String(),
		UserID:        userID,
		ServiceName:   serviceName,
		ToolName:      toolName,
		Kind:          model.ElicitationURL,
		Status:        model.ElicitationPending,
		Deadline:      newDeadline(timeoutSeconds),
		Provider:      provider,
		State:         state,
	}
	registered, err := c.register(el)
	if err != nil {
		return nil, "", err
	}

	authURL := p.Config.AuthCodeURL(state)
	return registered, authURL, nil
}

func (c *Coordinator) register(el model.Elicitation) (*model.Elicitation, error) {
	p := &pending{el: el, done: make(chan struct{})}

	c.mu.Lock()
	c.pending[el.ElicitationID] = p
	c.mu.Unlock()

	go c.expireAfterDeadline(el.ElicitationID, el.Deadline)

	out := el
	return &out, nil
}

func (c *Coordinator) expireAfterDeadline(id string, deadline time.Time) {
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()
	<-timer.C

	c.mu.Lock()
	p, ok := c.pending[id]
	c.mu.Unlock()
	if !ok {
		return
	}
	p.finish(Response{}, model.ElicitationExpired, model.NewError(model.ErrElicitationTimeout, "elicitation %s expired", id))
}

// Await blocks until elicitationID resolves, its deadline passes, or ctx is
// canceled, whichever comes first.
func (c *Coordinator) Await(ctx context.Context, elicitationID string) (Response, model.ElicitationStatus, error) {
	c.mu.Lock()
	p, ok := c.pending[elicitationID]
	c.mu.Unlock()
	if !ok {
		return Response{}, "", model.NewError(model.ErrElicitationNotFound, "unknown elicitation %q", elicitationID)
	}

	select {
	case <-p.done:
		return p.resp, p.el.Status, p.err
	case <-ctx.Done():
		p.finish(Response{}, model.ElicitationCanceled, model.NewError(model.ErrElicitationDeclined, "elicitation %s canceled: %v", elicitationID, ctx.Err()))
		return p.resp, p.el.Status, p.err
	}
}

// Get returns the current (possibly still-pending) state of an elicitation,
// for a status-polling REST endpoint.
func (c *Coordinator) Get(elicitationID string) (model.Elicitation, bool) {
	c.mu.Lock()
	p, ok := c.pending[elicitationID]
	c.mu.Unlock()
	if !ok {
		return model.Elicitation{}, false
	}
	return p.el, true
}

// CompleteForm validates formData against the elicitation's stored schema
// and, if it validates, resolves the rendezvous.
func (c *Coordinator) CompleteForm(elicitationID string, formData map[string]any) error {
	c.mu.Lock()
	p, ok := c.pending[elicitationID]
	c.mu.Unlock()
	if !ok {
		return model.NewError(model.ErrElicitationNotFound, "unknown elicitation %q", elicitationID)
	}
	if p.el.Kind != model.ElicitationForm {
		return model.NewError(model.ErrInternal, "elicitation %q is not a Form flow", elicitationID)
	}

	if err := c.validateForm(p.el.RawSchema, formData); err != nil {
		return model.NewError(model.ErrSchemaValidationFailed, "form_data failed validation: %v", err).WithRetryable(false)
	}

	p.finish(Response{FormData: formData}, model.ElicitationCompleted, nil)
	return nil
}

// validateForm compiles rawSchema with jsonschema/v6 and validates payload
// against it, grounded on the goadesign registry tool-spec validator
// (jsonschema.NewCompiler / AddResource / Compile / Validate over an
// already-unmarshalled document, not a reader).
func (c *Coordinator) validateForm(rawSchema map[string]any, payload map[string]any) error {
	if rawSchema == nil {
		return nil
	}
	compiler := c.compiler()
	if err := compiler.AddResource("elicitation.json", rawSchema); err != nil {
		return fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile("elicitation.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	// Round-trip through JSON so payload's map[string]any matches the shape
	// jsonschema/v6 expects after json.Unmarshal (numbers as float64, etc.).
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	return schema.Validate(doc)
}

// CompleteApproval resolves an Approval elicitation with the user's decision.
func (c *Coordinator) CompleteApproval(elicitationID string, decision model.ApprovalDecision) error {
	c.mu.Lock()
	p, ok := c.pending[elicitationID]
	c.mu.Unlock()
	if !ok {
		return model.NewError(model.ErrElicitationNotFound, "unknown elicitation %q", elicitationID)
	}
	if p.el.Kind != model.ElicitationApproval {
		return model.NewError(model.ErrInternal, "elicitation %q is not an Approval flow", elicitationID)
	}

	if decision == model.DecisionDeny {
		p.finish(Response{Decision: decision}, model.ElicitationDeclined, model.NewError(model.ErrElicitationDeclined, "user denied"))
		return nil
	}
	p.finish(Response{Decision: decision}, model.ElicitationCompleted, nil)
	return nil
}

// ProviderForState finds the OAuthProvider configuration of the pending Url
// elicitation matching state, so internal/server's callback handler can
// exchange the authorization code before calling CompleteURL.
func (c *Coordinator) ProviderForState(state string) (*OAuthProvider, error) {
	c.mu.Lock()
	var providerName string
	found := false
	for _, candidate := range c.pending {
		if candidate.el.Kind == model.ElicitationURL && candidate.el.State == state {
			providerName = candidate.el.Provider
			found = true
			break
		}
	}
	c.mu.Unlock()
	if !found {
		return nil, model.NewError(model.ErrElicitationNotFound, "unknown oauth state %q", state)
	}
	if c.oauth == nil {
		return nil, model.NewError(model.ErrInternal, "no OAuth provider configured")
	}
	return c.oauth(providerName)
}

// CompleteURL resolves a Url elicitation once the OAuth callback has
// exchanged its code (internal/server's callback handler owns the Exchange
// call; this only records the outcome against the matching state).
func (c *Coordinator) CompleteURL(state string, oauthErr error) error {
	c.mu.Lock()
	var p *pending
	for _, candidate := range c.pending {
		if candidate.el.Kind == model.ElicitationURL && candidate.el.State == state {
			p = candidate
			break
		}
	}
	c.mu.Unlock()
	if p == nil {
		return model.NewError(model.ErrElicitationNotFound, "unknown oauth state %q", state)
	}

	if oauthErr != nil {
		p.finish(Response{OAuthError: oauthErr.Error()}, model.ElicitationDeclined, model.NewError(model.ErrElicitationDeclined, "oauth failed: %v", oauthErr))
		return nil
	}
	p.finish(Response{}, model.ElicitationCompleted, nil)
	return nil
}

// Decline resolves elicitationID as user-declined, for an explicit "decline"
// REST action distinct from letting the deadline pass.
func (c *Coordinator) Decline(elicitationID string) error {
	c.mu.Lock()
	p, ok := c.pending[elicitationID]
	c.mu.Unlock()
	if !ok {
		return model.NewError(model.ErrElicitationNotFound, "unknown elicitation %q", elicitationID)
	}
	p.finish(Response{}, model.ElicitationDeclined, model.NewError(model.ErrElicitationDeclined, "user declined"))
	return nil
}

// sweep removes finished entries whose deadline passed more than an hour
// ago, kept out of the hot path behind the ticker started by StartSweep.
// Nothing in cmd/orchestrator calls StartSweep.
func (c *Coordinator) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := time.Now().Add(-time.Hour)
	for id, p := range c.pending {
		select {
		case <-p.done:
			if p.el.Deadline.Before(cutoff) {
				delete(c.pending, id)
			}
		default:
		}
	}
}

// StartSweep runs sweep on interval until ctx is canceled.
func (c *Coordinator) StartSweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.sweep()
			}
		}
	}()
}
