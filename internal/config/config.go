// Package config loads the orchestrator's ambient configuration: store
// selection, HTTP server/admin ports, telemetry, clustering, and the
// authentication settings for mcp-http. The child-service manifest
// (mcp.json) is a separate, fixed-shape loader (internal/supervisor.Load) —
// everything else here goes through github.com/rakunlabs/chu.
package config

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rakunlabs/alan"
	_ "github.com/rakunlabs/chu/loader/external/loaderconsul"
	_ "github.com/rakunlabs/chu/loader/external/loadervault"
	"github.com/rakunlabs/chu/loader/loaderenv"
	"github.com/rakunlabs/logi"

	"github.com/rakunlabs/chu"
	"github.com/rakunlabs/tell"
)

// Service names this binary in telemetry/log lines.
var Service = "unicity-orchestrator"

// Config is the root ambient configuration, loaded once per process
// regardless of which cmd/orchestrator subcommand is running.
type Config struct {
	LogLevel string `cfg:"log_level,no_prefix" default:"info"`

	Store  Store  `cfg:"store"`
	Server Server `cfg:"server"`
	Auth   Auth   `cfg:"auth"`

	// EmbeddingModel names the langchaingo-backed embedding model in use,
	// recorded on every stored Embedding so a model swap is detectable.
	EmbeddingModel string `cfg:"embedding_model" default:"orchestrator-default"`

	// OAuth names the authorization-code providers the Url elicitation flow
	// can redirect a caller to, keyed by the provider name a child service or
	// client refers to in an elicitation request.
	OAuth map[string]OAuthProvider `cfg:"oauth"`

	Telemetry tell.Config `cfg:"telemetry,noprefix"`
}

// OAuthProvider is one named authorization-code endpoint for the Url
// elicitation flow.
type OAuthProvider struct {
	ClientID     string   `cfg:"client_id"`
	ClientSecret string   `cfg:"client_secret" log:"-"`
	AuthURL      string   `cfg:"auth_url"`
	TokenURL     string   `cfg:"token_url"`
	RedirectURL  string   `cfg:"redirect_url"`
	Scopes       []string `cfg:"scopes"`
}

// Server configures the public REST/MCP-over-HTTP surface and the
// admin-only surface.
type Server struct {
	Host string `cfg:"host"`
	Port string `cfg:"port" default:"8080"`

	// AdminPort serves /discover and /sync, separate from the public port
	// the server subcommand's --port exposes.
	AdminPort string `cfg:"admin_port" default:"8081"`

	// Bind is the mcp-http listen address, e.g. "0.0.0.0:3942".
	Bind string `cfg:"bind" default:"0.0.0.0:3942"`

	// AllowAnonymous permits unauthenticated MCP-over-HTTP requests when no
	// JWT/API key is presented.
	AllowAnonymous bool `cfg:"allow_anonymous"`

	// Alan, if set, enables distributed clustering via UDP peer discovery,
	// used here to broadcast knowledge-graph rebuild generations across
	// instances on POST /discover.
	Alan *alan.Config `cfg:"alan"`
}

// Auth configures the HTTP authentication chain: Bearer-JWT (if JWKS
// configured), X-API-Key (static or DB-backed), then anonymous (if
// Server.AllowAnonymous).
type Auth struct {
	// StaticAPIKey is a single operator-configured key matched verbatim,
	// distinct from DB-backed api_key rows.
	StaticAPIKey string `cfg:"static_api_key" log:"-"`

	// EnableDBAPIKeys turns on SHA-256(full_key)-against-api_key.key_hash
	// lookups.
	EnableDBAPIKeys bool `cfg:"enable_db_api_keys"`

	JWKSURL     string `cfg:"jwks_url"`
	JWTIssuer   string `cfg:"jwt_issuer"`
	JWTAudience string `cfg:"jwt_audience"`
}

// Store selects and configures the persistent backend. "memory" is the
// zero-value/default, matching the legacy SURREALDB_URL default of "memory":
// an in-process store with no durability, used by init/tests and ad hoc
// local runs.
type Store struct {
	Driver string `cfg:"driver" default:"memory"` // "memory", "postgres", "sqlite"

	Postgres *StorePostgres `cfg:"postgres"`
	SQLite   *StoreSQLite   `cfg:"sqlite"`

	// MilvusAddr, if set, backs the embedding table's similarity search
	// with Milvus instead of the in-memory flat scan.
	MilvusAddr       string `cfg:"milvus_addr"`
	MilvusCollection string `cfg:"milvus_collection" default:"tool_embeddings"`

	// EncryptionKey, if set, enables AES-256-GCM encryption of child-service
	// spawn environment values at rest. API keys are stored only as SHA-256
	// hashes and remote headers are stored as plain text.
	EncryptionKey string `cfg:"encryption_key" log:"-"`
}

type StorePostgres struct {
	TablePrefix     *string        `cfg:"table_prefix"`
	Datasource      string         `cfg:"datasource" log:"-"`
	Schema          string         `cfg:"schema"`
	ConnMaxLifetime *time.Duration `cfg:"conn_max_lifetime"`
	MaxIdleConns    *int           `cfg:"max_idle_conns"`
	MaxOpenConns    *int           `cfg:"max_open_conns"`

	Migrate Migrate `cfg:"migrate"`
}

type StoreSQLite struct {
	TablePrefix *string `cfg:"table_prefix"`
	Datasource  string  `cfg:"datasource" default:"orchestrator.db"`

	Migrate Migrate `cfg:"migrate"`
}

type Migrate struct {
	Datasource string            `cfg:"datasource" log:"-"`
	Schema     string            `cfg:"schema"`
	DBTable    string            `cfg:"table" default:"migrations"`
	Values     map[string]string `cfg:"values"`
}

// Load reads ambient configuration from the chu sources (file at path, then
// ORCH_-prefixed environment, optionally Consul/Vault), sets the global log
// level, and returns the populated Config.
//
// The long-documented SURREALDB_URL, SURREALDB_NAMESPACE, SURREALDB_DATABASE
// and ORCHESTRATOR_API_KEY variables are layered on top of the ORCH_-prefixed
// chu loader by ApplyLegacyEnv so operators following those historical
// variable names still work; the backing engine is postgres/sqlite/memory
// rather than a literal SurrealDB driver. SURREALDB_USERNAME and
// SURREALDB_PASSWORD are not read.
func Load(ctx context.Context, path string) (*Config, error) {
	var cfg Config
	if err := chu.Load(ctx, path, &cfg, chu.WithLoaderOption(loaderenv.New(loaderenv.WithPrefix("ORCH_")))); err != nil {
		return nil, err
	}

	ApplyLegacyEnv(&cfg)

	if err := logi.SetLogLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("set log level %s: %w", cfg.LogLevel, err)
	}

	slog.Info("loaded configuration", "config", chu.MarshalMap(cfg))

	return &cfg, nil
}
