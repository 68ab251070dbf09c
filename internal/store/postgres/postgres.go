// Package postgres is the Postgres Store backend: goqu query building over
// database/sql + pgx, ulid primary keys, and muz-driven migrations across
// the twelve orchestrator tables.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"

	"github.com/unicitynetwork/unicity-orchestrator/internal/config"
)

var (
	ConnMaxLifetime = 15 * time.Minute
	MaxIdleConns    = 3
	MaxOpenConns    = 3

	DefaultTablePrefix = "orch_"
)

// Postgres implements store.Store against a PostgreSQL database.
type Postgres struct {
	db   *sql.DB
	goqu *goqu.Database

	tableServices     exp.IdentifierExpression
	tableTools        exp.IdentifierExpression
	tableTypeCompat   exp.IdentifierExpression
	tableToolSequence exp.IdentifierExpression
	tableRegistry     exp.IdentifierExpression
	tableManifest     exp.IdentifierExpression
	tableRules        exp.IdentifierExpression
	tablePermissions  exp.IdentifierExpression
	tableUsers        exp.IdentifierExpression
	tablePreferences  exp.IdentifierExpression
	tableAudit        exp.IdentifierExpression
	tableApiKeys      exp.IdentifierExpression

	// encKey is the AES-256 key used to encrypt/decrypt spawn-env values at
	// rest (API keys are stored only as SHA-256 hashes). nil means
	// encryption is disabled.
	encKey   []byte
	encKeyMu sync.RWMutex
}

func New(ctx context.Context, cfg *config.StorePostgres, encKey []byte) (*Postgres, error) {
	if cfg == nil {
		return nil, errors.New("postgres configuration is nil")
	}
	if cfg.Datasource == "" {
		return nil, errors.New("postgres datasource is required")
	}

	tablePrefix := DefaultTablePrefix
	if cfg.TablePrefix != nil {
		tablePrefix = *cfg.TablePrefix
	}

	migrate := cfg.Migrate
	if migrate.DBTable == "" {
		migrate.DBTable = "migrations"
	}
	if migrate.Datasource == "" {
		migrate.Datasource = cfg.Datasource
	}
	if migrate.Schema == "" {
		migrate.Schema = cfg.Schema
	}
	migrate.DBTable = tablePrefix + migrate.DBTable
	if migrate.Values == nil {
		migrate.Values = make(map[string]string)
	}
	migrate.Values["TABLE_PREFIX"] = tablePrefix

	db, err := sql.Open("pgx", cfg.Datasource)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err := MigrateDB(ctx, &migrate, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate store postgres: %w", err)
	}

	if cfg.Schema != "" {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("SET search_path TO %s", cfg.Schema)); err != nil {
			db.Close()
			return nil, fmt.Errorf("set search_path: %w", err)
		}
	}

	if cfg.ConnMaxLifetime != nil {
		ConnMaxLifetime = *cfg.ConnMaxLifetime
	}
	if cfg.MaxIdleConns != nil {
		MaxIdleConns = *cfg.MaxIdleConns
	}
	if cfg.MaxOpenConns != nil {
		MaxOpenConns = *cfg.MaxOpenConns
	}

	db.SetConnMaxLifetime(ConnMaxLifetime)
	db.SetMaxIdleConns(MaxIdleConns)
	db.SetMaxOpenConns(MaxOpenConns)

	slog.Info("connected to store postgres")

	dbGoqu := goqu.New("postgres", db)

	return &Postgres{
		db:                db,
		goqu:              dbGoqu,
		tableServices:     goqu.T(tablePrefix + "service"),
		tableTools:        goqu.T(tablePrefix + "tool"),
		tableTypeCompat:   goqu.T(tablePrefix + "tool_compatibility"),
		tableToolSequence: goqu.T(tablePrefix + "tool_sequence"),
		tableRegistry:     goqu.T(tablePrefix + "registry"),
		tableManifest:     goqu.T(tablePrefix + "manifest"),
		tableRules:        goqu.T(tablePrefix + "symbolic_rule"),
		tablePermissions:  goqu.T(tablePrefix + "permission"),
		tableUsers:        goqu.T(tablePrefix + "user"),
		tablePreferences:  goqu.T(tablePrefix + "user_preferences"),
		tableAudit:        goqu.T(tablePrefix + "audit_log"),
		tableApiKeys:      goqu.T(tablePrefix + "api_key"),
		encKey:            encKey,
	}, nil
}

func (p *Postgres) Close() {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			slog.Error("close store postgres connection", "error", err)
		}
	}
}
