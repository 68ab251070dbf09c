package registry

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"github.com/unicitynetwork/unicity-orchestrator/internal/model"
	"github.com/unicitynetwork/unicity-orchestrator/internal/store"
	"github.com/unicitynetwork/unicity-orchestrator/pkg/mcp"
)

// promptNamePattern is the name character set.
var promptNamePattern = regexp.MustCompile(`^[A-Za-z0-9_\-:]{1,256}$`)

const maxPromptArguments = 100

// catalog is the prompt and resource registries, aggregated from every
// child service's advertisements with first-writer-wins aliasing, plus the
// per-session subscription sets.
type catalog struct {
	mu sync.RWMutex

	// prompts/resources are keyed by the conflict key (lowercase name, or
	// URI verbatim) for the bare-name/URI owner, and separately by alias
	// ("service:name") for every later publisher of the same name.
	prompts   map[string]model.RegistryEntry
	aliases   map[string]model.RegistryEntry
	resources map[string]model.RegistryEntry

	// subs maps session id -> subscribed resource URIs.
	subs map[string]map[string]struct{}

	onChange func(kind model.RegistryKind)
}

func newCatalog() *catalog {
	return &catalog{
		prompts:   make(map[string]model.RegistryEntry),
		aliases:   make(map[string]model.RegistryEntry),
		resources: make(map[string]model.RegistryEntry),
		subs:      make(map[string]map[string]struct{}),
	}
}

// OnChange installs the callback fired whenever the prompt or resource
// registry gains a new entry, letting internal/server emit the MCP
// listChanged notification without this package knowing about sessions.
func (r *Registry) OnChange(fn func(kind model.RegistryKind)) {
	r.catalog.mu.Lock()
	r.catalog.onChange = fn
	r.catalog.mu.Unlock()
}

func (c *catalog) notify(kind model.RegistryKind) {
	if c.onChange != nil {
		c.onChange(kind)
	}
}

func validPromptName(name string) bool {
	return promptNamePattern.MatchString(name)
}

func validPromptArguments(args []mcp.PromptArg) bool {
	if len(args) > maxPromptArguments {
		return false
	}
	for _, a := range args {
		if !promptNamePattern.MatchString(a.Name) {
			return false
		}
	}
	return true
}

// validResourceURI enforces: contains "://", at most 4096 bytes, no ".."
// traversal, no NUL byte.
func validResourceURI(uri string) bool {
	if len(uri) == 0 || len(uri) > 4096 {
		return false
	}
	if !strings.Contains(uri, "://") {
		return false
	}
	if strings.Contains(uri, "..") {
		return false
	}
	if strings.ContainsRune(uri, 0) {
		return false
	}
	return true
}

func (c *catalog) registerPrompt(serviceID string, p mcp.Prompt) {
	if !validPromptName(p.Name) || !validPromptArguments(p.Arguments) {
		return
	}

	key := strings.ToLower(p.Name)

	c.mu.Lock()
	defer c.mu.Unlock()

	existing, ok := c.prompts[key]
	switch {
	case !ok:
		c.prompts[key] = model.RegistryEntry{Kind: model.RegistryPrompt, Key: key, ServiceID: serviceID, Name: p.Name}
		c.notify(model.RegistryPrompt)
	case existing.ServiceID == serviceID:
		// re-registration on rediscovery, nothing to change
	default:
		alias := serviceID + ":" + p.Name
		if _, aliased := c.aliases[alias]; !aliased {
			c.aliases[alias] = model.RegistryEntry{Kind: model.RegistryPrompt, Key: key, Alias: alias, ServiceID: serviceID, Name: p.Name}
			c.notify(model.RegistryPrompt)
		}
	}
}

func (c *catalog) registerResource(serviceID string, res mcp.Resource) {
	if !validResourceURI(res.URI) {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.resources[res.URI]; ok {
		return
	}
	c.resources[res.URI] = model.RegistryEntry{Kind: model.RegistryResource, Key: res.URI, ServiceID: serviceID, Name: res.URI}
	c.notify(model.RegistryResource)
}

func (c *catalog) persistPrompts(ctx context.Context, st store.Store) error {
	c.mu.RLock()
	entries := make([]model.RegistryEntry, 0, len(c.prompts)+len(c.aliases))
	for _, e := range c.prompts {
		entries = append(entries, e)
	}
	for _, e := range c.aliases {
		entries = append(entries, e)
	}
	c.mu.RUnlock()

	for _, e := range entries {
		if err := st.UpsertRegistryEntry(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (c *catalog) persistResources(ctx context.Context, st store.Store) error {
	c.mu.RLock()
	entries := make([]model.RegistryEntry, 0, len(c.resources))
	for _, e := range c.resources {
		entries = append(entries, e)
	}
	c.mu.RUnlock()

	for _, e := range entries {
		if err := st.UpsertRegistryEntry(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// ResolvePrompt resolves a prompt name in order: exact bare-name match,
// alias table ("service:name" form given verbatim), service:name parse
// (splitting the query on the first ':'), then a case-insensitive fallback
// over the bare-name table.
func (r *Registry) ResolvePrompt(name string) (model.RegistryEntry, bool) {
	c := r.catalog
	c.mu.RLock()
	defer c.mu.RUnlock()

	if e, ok := c.prompts[name]; ok {
		return e, true
	}
	if e, ok := c.aliases[name]; ok {
		return e, true
	}
	if idx := strings.IndexByte(name, ':'); idx > 0 {
		if e, ok := c.aliases[name]; ok {
			return e, true
		}
		if e, ok := c.prompts[strings.ToLower(name[idx+1:])]; ok {
			return e, true
		}
	}
	if e, ok := c.prompts[strings.ToLower(name)]; ok {
		return e, true
	}
	return model.RegistryEntry{}, false
}

// ResolveResource looks up a resource by exact URI.
func (r *Registry) ResolveResource(uri string) (model.RegistryEntry, bool) {
	c := r.catalog
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.resources[uri]
	return e, ok
}

// ListPrompts/ListResources return every registered entry, for the
// aggregate MCP prompts/list and resources/list handlers.
func (r *Registry) ListPrompts() []model.RegistryEntry {
	c := r.catalog
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.RegistryEntry, 0, len(c.prompts)+len(c.aliases))
	for _, e := range c.prompts {
		out = append(out, e)
	}
	for _, e := range c.aliases {
		out = append(out, e)
	}
	return out
}

func (r *Registry) ListResources() []model.RegistryEntry {
	c := r.catalog
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.RegistryEntry, 0, len(c.resources))
	for _, e := range c.resources {
		out = append(out, e)
	}
	return out
}

// Subscribe/Unsubscribe maintain a per-session resource URI set. The caller
// (internal/server) is responsible for tearing down a session's set on
// disconnect.
func (r *Registry) Subscribe(sessionID, uri string) {
	c := r.catalog
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subs[sessionID] == nil {
		c.subs[sessionID] = make(map[string]struct{})
	}
	c.subs[sessionID][uri] = struct{}{}
}

func (r *Registry) Unsubscribe(sessionID, uri string) {
	c := r.catalog
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subs[sessionID], uri)
}

// EndSession drops every subscription held by sessionID.
func (r *Registry) EndSession(sessionID string) {
	c := r.catalog
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subs, sessionID)
}

// Subscribers returns the session ids currently subscribed to uri.
func (r *Registry) Subscribers(uri string) []string {
	c := r.catalog
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []string
	for sess, uris := range c.subs {
		if _, ok := uris[uri]; ok {
			out = append(out, sess)
		}
	}
	return out
}
