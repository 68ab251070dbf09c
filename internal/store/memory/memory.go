// Package memory is the in-process Store backend: no durability, used by
// the "memory" driver default, ad hoc local runs, and tests. It keeps
// mutex-guarded maps and sorts slices on each listing call.
package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/unicitynetwork/unicity-orchestrator/internal/model"
)

// Memory is an in-memory implementation of store.Store. Data does not
// survive process restarts.
type Memory struct {
	mu sync.RWMutex

	services map[string]model.Service
	tools    map[string]model.Tool

	typeCompat    []model.TypeCompatibilityRule
	toolSequences []model.ToolSequenceEdge

	registry  map[model.RegistryKind]map[string]model.RegistryEntry
	manifests []model.Manifest

	rules map[string]model.SymbolicRule

	permissions map[string]model.Permission // permission_id -> permission

	users       map[string]model.User // user_id -> user
	usersByExt  map[string]string     // provider|external_id -> user_id
	preferences map[string]model.UserPreferences

	audit []model.AuditEntry

	apiKeys       map[string]model.ApiKey // prefix -> key
	apiKeysByHash map[string]string       // key_hash -> prefix
}

func New() *Memory {
	slog.Info("using in-memory store (data will not persist across restarts)")

	return &Memory{
		services:      make(map[string]model.Service),
		tools:         make(map[string]model.Tool),
		registry:      map[model.RegistryKind]map[string]model.RegistryEntry{
			model.RegistryPrompt:   make(map[string]model.RegistryEntry),
			model.RegistryResource: make(map[string]model.RegistryEntry),
		},
		rules:         make(map[string]model.SymbolicRule),
		permissions:   make(map[string]model.Permission),
		users:         make(map[string]model.User),
		usersByExt:    make(map[string]string),
		preferences:   make(map[string]model.UserPreferences),
		apiKeys:       make(map[string]model.ApiKey),
		apiKeysByHash: make(map[string]string),
	}
}

func (m *Memory) Close() {}

// ─── Services ───

func (m *Memory) UpsertService(_ context.Context, svc model.Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services[svc.ServiceID] = svc
	return nil
}

func (m *Memory) GetService(_ context.Context, serviceID string) (*model.Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	svc, ok := m.services[serviceID]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &svc, nil
}

func (m *Memory) ListServices(_ context.Context) ([]model.Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Service, 0, len(m.services))
	for _, svc := range m.services {
		out = append(out, svc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ServiceID < out[j].ServiceID })
	return out, nil
}

func (m *Memory) DeleteService(_ context.Context, serviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.services, serviceID)
	return nil
}

// ─── Tools ───

func (m *Memory) UpsertTool(_ context.Context, t model.Tool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tools[t.ToolID] = t
	return nil
}

func (m *Memory) GetTool(_ context.Context, toolID string) (*model.Tool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tools[toolID]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &t, nil
}

func (m *Memory) ListTools(_ context.Context) ([]model.Tool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Tool, 0, len(m.tools))
	for _, t := range m.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ToolID < out[j].ToolID })
	return out, nil
}

func (m *Memory) ListToolsByService(_ context.Context, serviceID string) ([]model.Tool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Tool
	for _, t := range m.tools {
		if t.ServiceID == serviceID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ToolName < out[j].ToolName })
	return out, nil
}

func (m *Memory) DeleteToolsByService(_ context.Context, serviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range m.tools {
		if t.ServiceID == serviceID {
			delete(m.tools, id)
		}
	}
	return nil
}

// ─── Tool compatibility ───

func (m *Memory) UpsertTypeCompatibility(_ context.Context, rule model.TypeCompatibilityRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.typeCompat {
		if r.Parent == rule.Parent && r.Child == rule.Child {
			m.typeCompat[i] = rule
			return nil
		}
	}
	m.typeCompat = append(m.typeCompat, rule)
	return nil
}

func (m *Memory) ListTypeCompatibility(_ context.Context) ([]model.TypeCompatibilityRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.TypeCompatibilityRule(nil), m.typeCompat...), nil
}

// ─── Tool sequences ───

func (m *Memory) ReplaceToolSequences(_ context.Context, edges []model.ToolSequenceEdge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.toolSequences = append([]model.ToolSequenceEdge(nil), edges...)
	return nil
}

func (m *Memory) ListToolSequences(_ context.Context) ([]model.ToolSequenceEdge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.ToolSequenceEdge(nil), m.toolSequences...), nil
}

// ─── Registry ───

func (m *Memory) UpsertRegistryEntry(_ context.Context, e model.RegistryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := e.Key
	if e.Alias != "" {
		key = e.Alias
	}
	m.registry[e.Kind][key] = e
	return nil
}

func (m *Memory) ListRegistryEntries(_ context.Context, kind model.RegistryKind) ([]model.RegistryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.RegistryEntry, 0, len(m.registry[kind]))
	for _, e := range m.registry[kind] {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// ─── Manifest ───

func (m *Memory) SaveManifest(_ context.Context, man model.Manifest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if man.ManifestID == "" {
		man.ManifestID = ulid.Make().String()
	}
	m.manifests = append(m.manifests, man)
	return nil
}

func (m *Memory) LatestManifest(_ context.Context) (*model.Manifest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.manifests) == 0 {
		return nil, model.ErrNotFound
	}
	latest := m.manifests[0]
	for _, man := range m.manifests[1:] {
		if man.LoadedAt.After(latest.LoadedAt) {
			latest = man
		}
	}
	return &latest, nil
}

// ─── Symbolic rules ───

func (m *Memory) UpsertRule(_ context.Context, r model.SymbolicRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.RuleID == "" {
		r.RuleID = ulid.Make().String()
	}
	m.rules[r.RuleID] = r
	return nil
}

func (m *Memory) ListRules(_ context.Context) ([]model.SymbolicRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.SymbolicRule, 0, len(m.rules))
	for _, r := range m.rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].RuleID < out[j].RuleID
	})
	return out, nil
}

func (m *Memory) DeleteRule(_ context.Context, ruleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rules, ruleID)
	return nil
}

// ─── Permissions ───

func (m *Memory) UpsertPermission(_ context.Context, p model.Permission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.PermissionID == "" {
		p.PermissionID = ulid.Make().String()
	}
	m.permissions[p.PermissionID] = p
	return nil
}

func (m *Memory) FindPermission(_ context.Context, userID, serviceName, toolName string) (*model.Permission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	var best *model.Permission
	for _, p := range m.permissions {
		if p.UserID != userID || p.ServiceName != serviceName {
			continue
		}
		if p.ToolName != "" && p.ToolName != toolName {
			continue
		}
		if p.Status != model.PermissionGranted {
			continue
		}
		if p.Expiry != nil && p.Expiry.Before(now) {
			continue
		}
		pc := p
		// Prefer a tool-specific grant over a whole-service grant.
		if best == nil || (pc.ToolName != "" && best.ToolName == "") {
			best = &pc
		}
	}
	if best == nil {
		return nil, model.ErrNotFound
	}
	return best, nil
}

func (m *Memory) ListPermissions(_ context.Context, userID string) ([]model.Permission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Permission
	for _, p := range m.permissions {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PermissionID < out[j].PermissionID })
	return out, nil
}

func (m *Memory) ConsumePermission(_ context.Context, permissionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.permissions[permissionID]
	if !ok {
		return model.ErrNotFound
	}
	if p.Scope == model.ScopeOneShot {
		delete(m.permissions, permissionID)
	}
	return nil
}

// ─── Users ───

func (m *Memory) GetOrCreateUser(_ context.Context, externalID, provider, email, displayName string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	extKey := provider + "|" + externalID
	if userID, ok := m.usersByExt[extKey]; ok {
		u := m.users[userID]
		return &u, nil
	}

	u := model.User{
		UserID:           ulid.Make().String(),
		ExternalID:       externalID,
		IdentityProvider: provider,
		Email:            email,
		DisplayName:      displayName,
		Active:           true,
	}
	m.users[u.UserID] = u
	m.usersByExt[extKey] = u.UserID
	m.preferences[u.UserID] = model.DefaultPreferences(u.UserID)
	return &u, nil
}

func (m *Memory) GetUser(_ context.Context, userID string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &u, nil
}

// ─── User preferences ───

func (m *Memory) GetPreferences(_ context.Context, userID string) (*model.UserPreferences, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.preferences[userID]
	if !ok {
		p = model.DefaultPreferences(userID)
		m.preferences[userID] = p
	}
	return &p, nil
}

func (m *Memory) SavePreferences(_ context.Context, p model.UserPreferences) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.preferences[p.UserID] = p
	return nil
}

// ─── Audit log ───

func (m *Memory) AppendAudit(_ context.Context, e model.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.EntryID == "" {
		e.EntryID = ulid.Make().String()
	}
	m.audit = append(m.audit, e)
	return nil
}

func (m *Memory) ListAudit(_ context.Context, userID string, limit int) ([]model.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.AuditEntry
	for i := len(m.audit) - 1; i >= 0; i-- {
		e := m.audit[i]
		if userID != "" && e.UserID != userID {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// ─── API keys ───

func hashKey(fullKey string) string {
	sum := sha256.Sum256([]byte(fullKey))
	return hex.EncodeToString(sum[:])
}

func (m *Memory) CreateApiKey(_ context.Context, key model.ApiKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.apiKeys[key.Prefix]; exists {
		return fmt.Errorf("api key prefix %q already exists", key.Prefix)
	}
	m.apiKeys[key.Prefix] = key
	m.apiKeysByHash[key.KeyHash] = key.Prefix
	return nil
}

func (m *Memory) GetApiKeyByHash(_ context.Context, keyHash string) (*model.ApiKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	prefix, ok := m.apiKeysByHash[keyHash]
	if !ok {
		return nil, model.ErrNotFound
	}
	key := m.apiKeys[prefix]
	return &key, nil
}

func (m *Memory) ListApiKeys(_ context.Context, userID string) ([]model.ApiKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.ApiKey
	for _, k := range m.apiKeys {
		if k.UserID == userID {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Prefix < out[j].Prefix })
	return out, nil
}

func (m *Memory) RevokeApiKey(_ context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := m.apiKeys[prefix]
	if !ok {
		return model.ErrNotFound
	}
	key.Active = false
	m.apiKeys[prefix] = key
	return nil
}

func (m *Memory) TouchApiKey(_ context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, ok := m.apiKeys[prefix]
	if !ok {
		return model.ErrNotFound
	}
	now := time.Now().UTC()
	key.LastUsedAt = &now
	m.apiKeys[prefix] = key
	return nil
}
