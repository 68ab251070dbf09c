package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/unicitynetwork/unicity-orchestrator/internal/config"
	"github.com/unicitynetwork/unicity-orchestrator/internal/crypto"
	"github.com/unicitynetwork/unicity-orchestrator/internal/elicitation"
	"github.com/unicitynetwork/unicity-orchestrator/internal/embedding"
	"github.com/unicitynetwork/unicity-orchestrator/internal/model"
	"github.com/unicitynetwork/unicity-orchestrator/internal/store"
	"github.com/unicitynetwork/unicity-orchestrator/internal/supervisor"
)

// defaultCacheSweepInterval drives the embedding manager's local cache
// expiry sweep.
const defaultCacheSweepInterval = 5 * time.Minute

// exitCode is a sentinel that lets a subcommand's run function request a
// specific process exit code without the caller having to inspect error
// strings.
type exitCode struct {
	code int
	err  error
}

func (e *exitCode) Error() string { return e.err.Error() }
func (e *exitCode) Unwrap() error { return e.err }

func errConfig(format string, args ...any) error {
	return &exitCode{code: 1, err: fmt.Errorf(format, args...)}
}

func errMissingEnv(format string, args ...any) error {
	return &exitCode{code: 2, err: fmt.Errorf(format, args...)}
}

func errBackend(format string, args ...any) error {
	return &exitCode{code: 3, err: fmt.Errorf(format, args...)}
}

// codeOf returns the process exit code an error should produce: the
// sentinel's code if err carries one, 1 for any other non-nil error, 0 for
// nil.
func codeOf(err error) int {
	if err == nil {
		return 0
	}
	var ec *exitCode
	if ok := asExitCode(err, &ec); ok {
		return ec.code
	}
	return 1
}

func asExitCode(err error, target **exitCode) bool {
	for err != nil {
		if ec, ok := err.(*exitCode); ok {
			*target = ec
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// applyDBURL overrides cfg.Store from the --db-url flag shared across the
// CLI surface, accepting a postgres://, sqlite:// or bare file-path/"memory"
// value; the SURREALDB_URL naming is honored separately by
// internal/config.ApplyLegacyEnv for the environment form.
func applyDBURL(cfg *config.Config, dbURL string) {
	if dbURL == "" {
		return
	}
	switch {
	case dbURL == "memory":
		cfg.Store.Driver = "memory"
	case strings.HasPrefix(dbURL, "postgres://"), strings.HasPrefix(dbURL, "postgresql://"):
		cfg.Store.Driver = "postgres"
		if cfg.Store.Postgres == nil {
			cfg.Store.Postgres = &config.StorePostgres{}
		}
		cfg.Store.Postgres.Datasource = dbURL
	case strings.HasPrefix(dbURL, "sqlite://"):
		cfg.Store.Driver = "sqlite"
		if cfg.Store.SQLite == nil {
			cfg.Store.SQLite = &config.StoreSQLite{}
		}
		cfg.Store.SQLite.Datasource = strings.TrimPrefix(dbURL, "sqlite://")
	default:
		cfg.Store.Driver = "sqlite"
		if cfg.Store.SQLite == nil {
			cfg.Store.SQLite = &config.StoreSQLite{}
		}
		cfg.Store.SQLite.Datasource = dbURL
	}
}

// encryptionKey derives the AES-256 key from cfg.Store.EncryptionKey, or
// nil when encryption is disabled (the default).
func encryptionKey(cfg *config.Config) ([]byte, error) {
	if cfg.Store.EncryptionKey == "" {
		return nil, nil
	}
	key, err := crypto.DeriveKey(cfg.Store.EncryptionKey)
	if err != nil {
		return nil, errConfig("derive encryption key: %v", err)
	}
	return key, nil
}

// buildStore opens the configured Store backend, translating a connection
// failure into the "3 backend unavailable" exit code.
func buildStore(ctx context.Context, cfg *config.Config) (store.Store, []byte, error) {
	encKey, err := encryptionKey(cfg)
	if err != nil {
		return nil, nil, err
	}
	st, err := store.New(ctx, cfg.Store, encKey)
	if err != nil {
		return nil, nil, errBackend("open store (driver=%s): %v", cfg.Store.Driver, err)
	}
	return st, encKey, nil
}

// buildEmbeddingManager wires the embedding manager against the configured
// vector backend:
// Milvus when cfg.Store.MilvusAddr is set, the in-memory flat scan
// otherwise. The embedding client is always the local deterministic fill;
// no other langchaingo provider is wired here.
func buildEmbeddingManager(ctx context.Context, cfg *config.Config) (*embedding.Manager, error) {
	var embedStore embedding.Store
	if cfg.Store.MilvusAddr != "" {
		ms, err := embedding.NewMilvusStore(ctx, cfg.Store.MilvusAddr, cfg.Store.MilvusCollection, model.DefaultEmbeddingDimension)
		if err != nil {
			return nil, errBackend("connect milvus: %v", err)
		}
		embedStore = ms
	} else {
		embedStore = embedding.NewMemoryStore()
	}

	client := embedding.NewLocalDeterministicClient()
	mgr := embedding.NewManager(client, embedStore, cfg.EmbeddingModel)
	mgr.StartCacheSweep(ctx, defaultCacheSweepInterval)
	return mgr, nil
}

// buildSupervisor loads the mcp.json child-service manifest and constructs
// the supervisor over it, without warming it up.
func buildSupervisor(mcpConfigPath string) (*supervisor.Supervisor, error) {
	path := mcpConfigPath
	if path == "" {
		path, _ = supervisor.ResolveConfigPath()
	}
	services, err := supervisor.Load(path)
	if err != nil {
		return nil, errConfig("load mcp.json at %s: %v", path, err)
	}
	return supervisor.New(services), nil
}

// buildOAuthResolver adapts the config-file-declared OAuth providers into
// the elicitation.OAuthResolver seam.
func buildOAuthResolver(cfg *config.Config) elicitation.OAuthResolver {
	return func(provider string) (*elicitation.OAuthProvider, error) {
		p, ok := cfg.OAuth[provider]
		if !ok {
			return nil, model.NewError(model.ErrConfigInvalid, "unknown oauth provider %q", provider)
		}
		return &elicitation.OAuthProvider{
			Name: provider,
			Config: &oauth2.Config{
				ClientID:     p.ClientID,
				ClientSecret: p.ClientSecret,
				Endpoint: oauth2.Endpoint{
					AuthURL:  p.AuthURL,
					TokenURL: p.TokenURL,
				},
				RedirectURL: p.RedirectURL,
				Scopes:      p.Scopes,
			},
		}, nil
	}
}
