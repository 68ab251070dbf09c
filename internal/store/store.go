// Package store persists the twelve relational tables (every table except
// embedding, which internal/embedding.Store owns). Three backends implement
// Store: memory (the default, no durability), postgres, and sqlite3 —
// selected by internal/config.Store.Driver.
package store

import (
	"context"
	"fmt"

	"github.com/unicitynetwork/unicity-orchestrator/internal/config"
	"github.com/unicitynetwork/unicity-orchestrator/internal/model"
	"github.com/unicitynetwork/unicity-orchestrator/internal/store/memory"
	"github.com/unicitynetwork/unicity-orchestrator/internal/store/postgres"
	"github.com/unicitynetwork/unicity-orchestrator/internal/store/sqlite3"
)

// ErrNotFound is returned by single-row lookups that find nothing; an alias
// of model.ErrNotFound so callers outside internal/store can match either.
var ErrNotFound = model.ErrNotFound

// Store is the persistence boundary every backend implements.
type Store interface {
	Close()

	// Services
	UpsertService(ctx context.Context, svc model.Service) error
	GetService(ctx context.Context, serviceID string) (*model.Service, error)
	ListServices(ctx context.Context) ([]model.Service, error)
	DeleteService(ctx context.Context, serviceID string) error

	// Tools
	UpsertTool(ctx context.Context, t model.Tool) error
	GetTool(ctx context.Context, toolID string) (*model.Tool, error)
	ListTools(ctx context.Context) ([]model.Tool, error)
	ListToolsByService(ctx context.Context, serviceID string) ([]model.Tool, error)
	DeleteToolsByService(ctx context.Context, serviceID string) error

	// Tool compatibility
	UpsertTypeCompatibility(ctx context.Context, rule model.TypeCompatibilityRule) error
	ListTypeCompatibility(ctx context.Context) ([]model.TypeCompatibilityRule, error)

	// Tool sequences
	ReplaceToolSequences(ctx context.Context, edges []model.ToolSequenceEdge) error
	ListToolSequences(ctx context.Context) ([]model.ToolSequenceEdge, error)

	// Prompt/resource registry
	UpsertRegistryEntry(ctx context.Context, e model.RegistryEntry) error
	ListRegistryEntries(ctx context.Context, kind model.RegistryKind) ([]model.RegistryEntry, error)

	// Manifest snapshots
	SaveManifest(ctx context.Context, m model.Manifest) error
	LatestManifest(ctx context.Context) (*model.Manifest, error)

	// Symbolic rules
	UpsertRule(ctx context.Context, r model.SymbolicRule) error
	ListRules(ctx context.Context) ([]model.SymbolicRule, error)
	DeleteRule(ctx context.Context, ruleID string) error

	// Permissions
	UpsertPermission(ctx context.Context, p model.Permission) error
	FindPermission(ctx context.Context, userID, serviceName, toolName string) (*model.Permission, error)
	ListPermissions(ctx context.Context, userID string) ([]model.Permission, error)
	ConsumePermission(ctx context.Context, permissionID string) error

	// Users
	GetOrCreateUser(ctx context.Context, externalID, provider, email, displayName string) (*model.User, error)
	GetUser(ctx context.Context, userID string) (*model.User, error)

	// User preferences
	GetPreferences(ctx context.Context, userID string) (*model.UserPreferences, error)
	SavePreferences(ctx context.Context, p model.UserPreferences) error

	// Audit log
	AppendAudit(ctx context.Context, e model.AuditEntry) error
	ListAudit(ctx context.Context, userID string, limit int) ([]model.AuditEntry, error)

	// API keys
	CreateApiKey(ctx context.Context, key model.ApiKey) error
	GetApiKeyByHash(ctx context.Context, keyHash string) (*model.ApiKey, error)
	ListApiKeys(ctx context.Context, userID string) ([]model.ApiKey, error)
	RevokeApiKey(ctx context.Context, prefix string) error
	TouchApiKey(ctx context.Context, prefix string) error
}

// New builds the Store selected by cfg.Driver. "memory" (the zero value)
// needs no further configuration; "postgres"/"sqlite" run migrations and
// open a connection pool.
func New(ctx context.Context, cfg config.Store, encKey []byte) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return memory.New(), nil
	case "postgres":
		return postgres.New(ctx, cfg.Postgres, encKey)
	case "sqlite", "sqlite3":
		return sqlite3.New(ctx, cfg.SQLite, encKey)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
