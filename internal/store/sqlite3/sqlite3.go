// Package sqlite3 is the SQLite Store backend: the same goqu/ulid/muz idiom
// as internal/store/postgres, with a single-writer connection pool, WAL
// mode, and foreign keys on, across the twelve orchestrator tables.
package sqlite3

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/doug-martin/goqu/v9/exp"

	"github.com/unicitynetwork/unicity-orchestrator/internal/config"
)

var DefaultTablePrefix = "orch_"

// SQLite implements store.Store against a SQLite database.
type SQLite struct {
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

func New(ctx context.Context, cfg *config.StoreSQLite, encKey []byte) (*SQLite, error) {
	if cfg == nil {
		return nil, errors.New("sqlite configuration is nil")
	}
	if cfg.Datasource == "" {
		return nil, errors.New("sqlite datasource is required")
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
	migrate.DBTable = tablePrefix + migrate.DBTable
	if migrate.Values == nil {
		migrate.Values = make(map[string]string)
	}
	migrate.Values["TABLE_PREFIX"] = tablePrefix

	db, err := sql.Open("sqlite", cfg.Datasource)
	if err != nil {
		return nil, fmt.Errorf("open sqlite connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	// SQLite is single-writer; limit connections accordingly.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := MigrateDB(ctx, &migrate, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate store sqlite: %w", err)
	}

	slog.Info("connected to store sqlite")

	dbGoqu := goqu.New("sqlite3", db)

	return &SQLite{
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

func (s *SQLite) Close() {
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			slog.Error("close store sqlite connection", "error", err)
		}
	}
}
