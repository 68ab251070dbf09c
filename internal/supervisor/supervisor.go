package supervisor

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/unicitynetwork/unicity-orchestrator/internal/model"
	"github.com/unicitynetwork/unicity-orchestrator/pkg/mcp"
)

// childCallSoftCap is the per-service queued-call backpressure limit: excess
// calls are rejected with ServiceBusy rather than queued unbounded.
const childCallSoftCap = 64

// defaultChildCallTimeout bounds a single call_tool round trip.
const defaultChildCallTimeout = 60 * time.Second

// instance tracks one child service's live transport, state, and the
// serialization queue that enforces "strictly one in-flight request per
// child for stdio children".
type instance struct {
	svc   model.Service
	queue chan struct{} // buffered size 1: holds the per-service logical lock

	mu        sync.RWMutex
	state     model.ServiceState
	transport Transport
	tools     []mcp.Tool
	prompts   []mcp.Prompt
	resources []mcp.Resource
	pending   int // count of queued-or-running calls, for the soft cap

	backoff *backoff.ExponentialBackOff
}

func newInstance(svc model.Service) *instance {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0 // never give up on its own; Reconnecting is driven externally

	state := model.ServiceStarting
	if svc.Disabled {
		state = model.ServiceDisabled
	}

	return &instance{
		svc:     svc,
		queue:   make(chan struct{}, 1),
		state:   state,
		backoff: b,
	}
}

func (in *instance) State() model.ServiceState {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.state
}

func (in *instance) setState(s model.ServiceState) {
	in.mu.Lock()
	in.state = s
	in.mu.Unlock()
}

// Supervisor owns every configured child service and drives its lifecycle
// state machine.
type Supervisor struct {
	mu        sync.RWMutex
	instances map[string]*instance
}

func New(services []model.Service) *Supervisor {
	s := &Supervisor{instances: make(map[string]*instance, len(services))}
	for _, svc := range services {
		s.instances[svc.ServiceID] = newInstance(svc)
	}
	return s
}

// Warmup starts (or attaches to) every non-disabled service in parallel;
// within a service, list_tools -> list_prompts -> list_resources runs
// serially. A failing child does not abort warmup.
func (s *Supervisor) Warmup(ctx context.Context) {
	s.mu.RLock()
	all := make([]*instance, 0, len(s.instances))
	for _, in := range s.instances {
		all = append(all, in)
	}
	s.mu.RUnlock()

	var wg sync.WaitGroup
	for _, in := range all {
		if in.State() == model.ServiceDisabled {
			continue
		}
		wg.Add(1)
		go func(in *instance) {
			defer wg.Done()
			s.startOne(ctx, in)
		}(in)
	}
	wg.Wait()
}

func (s *Supervisor) startOne(ctx context.Context, in *instance) {
	in.setState(model.ServiceStarting)

	transport, err := transportFactory(ctx, in.svc)
	if err != nil {
		slog.Error("service start failed", "service", in.svc.Name, "error", err)
		in.setState(model.ServiceFailed)
		return
	}

	if _, err := transport.Initialize(ctx); err != nil {
		slog.Error("service initialize failed", "service", in.svc.Name, "error", err)
		in.setState(model.ServiceFailed)
		_ = transport.Close()
		return
	}

	in.mu.Lock()
	in.transport = transport
	in.mu.Unlock()
	in.setState(model.ServiceReady)

	tools, err := transport.ListTools(ctx)
	if err != nil {
		slog.Error("service list_tools failed", "service", in.svc.Name, "error", err)
		in.setState(model.ServiceFailed)
		return
	}
	prompts, _ := transport.ListPrompts(ctx)
	resources, _ := transport.ListResources(ctx)

	in.mu.Lock()
	in.tools = filterDisabledTools(tools, in.svc.DisabledTools)
	in.prompts = prompts
	in.resources = resources
	in.mu.Unlock()

	in.backoff.Reset()
	in.setState(model.ServiceIndexed)
}

func filterDisabledTools(tools []mcp.Tool, disabled map[string]struct{}) []mcp.Tool {
	if len(disabled) == 0 {
		return tools
	}
	out := make([]mcp.Tool, 0, len(tools))
	for _, t := range tools {
		if _, skip := disabled[t.Name]; skip {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Services lists every configured service in stable (lexical by ID) order.
func (s *Supervisor) Services() []model.Service {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Service, 0, len(s.instances))
	for _, in := range s.instances {
		out = append(out, in.svc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ServiceID < out[j].ServiceID })
	return out
}

// State reports the current lifecycle state of serviceID, or "" if unknown.
func (s *Supervisor) State(serviceID string) model.ServiceState {
	s.mu.RLock()
	in, ok := s.instances[serviceID]
	s.mu.RUnlock()
	if !ok {
		return ""
	}
	return in.State()
}

// ListTools returns the indexed tools for serviceID.
func (s *Supervisor) ListTools(serviceID string) ([]mcp.Tool, error) {
	in, err := s.get(serviceID)
	if err != nil {
		return nil, err
	}
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.tools, nil
}

// ListPrompts returns the indexed prompts for serviceID.
func (s *Supervisor) ListPrompts(serviceID string) ([]mcp.Prompt, error) {
	in, err := s.get(serviceID)
	if err != nil {
		return nil, err
	}
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.prompts, nil
}

// ListResources returns the indexed resources for serviceID.
func (s *Supervisor) ListResources(serviceID string) ([]mcp.Resource, error) {
	in, err := s.get(serviceID)
	if err != nil {
		return nil, err
	}
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.resources, nil
}

func (s *Supervisor) get(serviceID string) (*instance, error) {
	s.mu.RLock()
	in, ok := s.instances[serviceID]
	s.mu.RUnlock()
	if !ok {
		return nil, model.NewError(model.ErrServiceUnavailable, "unknown service %q", serviceID)
	}
	return in, nil
}

// GetPrompt forwards a prompts/get call to serviceID, under the same
// per-service serialization as CallTool.
func (s *Supervisor) GetPrompt(ctx context.Context, serviceID, name string, args map[string]string) (mcp.GetPromptResult, error) {
	in, err := s.get(serviceID)
	if err != nil {
		return mcp.GetPromptResult{}, err
	}
	if state := in.State(); state != model.ServiceReady && state != model.ServiceIndexed {
		return mcp.GetPromptResult{}, model.NewError(model.ErrServiceUnavailable, "service %q is %s", in.svc.Name, state)
	}

	select {
	case in.queue <- struct{}{}:
	case <-ctx.Done():
		return mcp.GetPromptResult{}, model.NewError(model.ErrTransportError, "canceled waiting for service lock: %v", ctx.Err()).WithRetryable(true)
	}
	defer func() { <-in.queue }()

	callCtx, cancel := context.WithTimeout(ctx, defaultChildCallTimeout)
	defer cancel()

	in.mu.RLock()
	transport := in.transport
	in.mu.RUnlock()
	if transport == nil {
		return mcp.GetPromptResult{}, model.NewError(model.ErrServiceUnavailable, "service %q has no live transport", in.svc.Name)
	}

	result, err := transport.GetPrompt(callCtx, name, args)
	if err != nil && model.CodeOf(err) == model.ErrTransportError {
		s.reconnect(in)
	}
	return result, err
}

// ReadResource forwards a resources/read call to serviceID.
func (s *Supervisor) ReadResource(ctx context.Context, serviceID, uri string) (any, error) {
	in, err := s.get(serviceID)
	if err != nil {
		return nil, err
	}
	if state := in.State(); state != model.ServiceReady && state != model.ServiceIndexed {
		return nil, model.NewError(model.ErrServiceUnavailable, "service %q is %s", in.svc.Name, state)
	}

	select {
	case in.queue <- struct{}{}:
	case <-ctx.Done():
		return nil, model.NewError(model.ErrTransportError, "canceled waiting for service lock: %v", ctx.Err()).WithRetryable(true)
	}
	defer func() { <-in.queue }()

	callCtx, cancel := context.WithTimeout(ctx, defaultChildCallTimeout)
	defer cancel()

	in.mu.RLock()
	transport := in.transport
	in.mu.RUnlock()
	if transport == nil {
		return nil, model.NewError(model.ErrServiceUnavailable, "service %q has no live transport", in.svc.Name)
	}

	result, err := transport.ReadResource(callCtx, uri)
	if err != nil && model.CodeOf(err) == model.ErrTransportError {
		s.reconnect(in)
	}
	return result, err
}

// CallTool dispatches name/args to serviceID, enforcing per-service
// serialization and the soft backpressure cap. A transport error transitions
// the service to Reconnecting and is itself retryable by the caller (the
// execution coordinator retries once).
func (s *Supervisor) CallTool(ctx context.Context, serviceID, name string, args map[string]any) (any, error) {
	in, err := s.get(serviceID)
	if err != nil {
		return nil, err
	}

	if state := in.State(); state != model.ServiceReady && state != model.ServiceIndexed {
		return nil, model.NewError(model.ErrServiceUnavailable, "service %q is %s", in.svc.Name, state)
	}

	in.mu.Lock()
	if in.pending >= childCallSoftCap {
		in.mu.Unlock()
		return nil, model.NewError(model.ErrServiceBusy, "service %q has %d calls queued", in.svc.Name, in.pending)
	}
	in.pending++
	in.mu.Unlock()

	defer func() {
		in.mu.Lock()
		in.pending--
		in.mu.Unlock()
	}()

	select {
	case in.queue <- struct{}{}:
	case <-ctx.Done():
		return nil, model.NewError(model.ErrTransportError, "canceled waiting for service lock: %v", ctx.Err()).WithRetryable(true)
	}
	defer func() { <-in.queue }()

	callCtx, cancel := context.WithTimeout(ctx, defaultChildCallTimeout)
	defer cancel()

	in.mu.RLock()
	transport := in.transport
	in.mu.RUnlock()
	if transport == nil {
		return nil, model.NewError(model.ErrServiceUnavailable, "service %q has no live transport", in.svc.Name)
	}

	result, err := transport.CallTool(callCtx, name, args)
	if err != nil {
		if model.CodeOf(err) == model.ErrTransportError {
			s.reconnect(in)
		}
		return nil, err
	}
	return result, nil
}

// reconnect transitions a Ready/Indexed service to Reconnecting and retries
// the start sequence in the background with exponential backoff.
func (s *Supervisor) reconnect(in *instance) {
	in.setState(model.ServiceReconnecting)
	go func() {
		delay := in.backoff.NextBackOff()
		if delay == backoff.Stop {
			in.setState(model.ServiceFailed)
			return
		}
		time.Sleep(delay)

		in.mu.Lock()
		if in.transport != nil {
			_ = in.transport.Close()
			in.transport = nil
		}
		in.mu.Unlock()

		s.startOne(context.Background(), in)
	}()
}

// Rediscover restarts every service from Starting, implementing admin
// `POST /discover`'s "Failed is terminal for the current warmup; admin
// POST /discover restarts from Starting" clause.
func (s *Supervisor) Rediscover(ctx context.Context) {
	s.Warmup(ctx)
}

// Close tears down every live transport.
func (s *Supervisor) Close() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, in := range s.instances {
		in.mu.Lock()
		if in.transport != nil {
			_ = in.transport.Close()
		}
		in.mu.Unlock()
	}
}
