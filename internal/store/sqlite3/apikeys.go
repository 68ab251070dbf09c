package sqlite3

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/unicitynetwork/unicity-orchestrator/internal/model"
)

type apiKeyRow struct {
	Prefix     string          `db:"prefix"`
	KeyHash    string          `db:"key_hash"`
	UserID     string          `db:"user_id"`
	Name       string          `db:"name"`
	Active     bool            `db:"active"`
	Expiry     sql.NullTime    `db:"expiry"`
	Scopes     json.RawMessage `db:"scopes"`
	CreatedAt  time.Time       `db:"created_at"`
	LastUsedAt sql.NullTime    `db:"last_used_at"`
}

func apiKeyColumns() []any {
	return []any{"prefix", "key_hash", "user_id", "name", "active", "expiry", "scopes", "created_at", "last_used_at"}
}

func rowToApiKey(row apiKeyRow) (*model.ApiKey, error) {
	k := &model.ApiKey{
		Prefix:    row.Prefix,
		KeyHash:   row.KeyHash,
		UserID:    row.UserID,
		Name:      row.Name,
		Active:    row.Active,
		CreatedAt: row.CreatedAt,
	}
	if row.Expiry.Valid {
		k.Expiry = &row.Expiry.Time
	}
	if row.LastUsedAt.Valid {
		k.LastUsedAt = &row.LastUsedAt.Time
	}
	if len(row.Scopes) > 0 {
		if err := json.Unmarshal(row.Scopes, &k.Scopes); err != nil {
			return nil, fmt.Errorf("unmarshal scopes: %w", err)
		}
	}
	return k, nil
}

func (s *SQLite) CreateApiKey(ctx context.Context, key model.ApiKey) error {
	scopes, err := json.Marshal(key.Scopes)
	if err != nil {
		return fmt.Errorf("marshal scopes: %w", err)
	}
	query, _, err := s.goqu.Insert(s.tableApiKeys).Rows(goqu.Record{
		"prefix": key.Prefix, "key_hash": key.KeyHash, "user_id": key.UserID, "name": key.Name,
		"active": key.Active, "expiry": key.Expiry, "scopes": scopes, "created_at": key.CreatedAt,
		"last_used_at": key.LastUsedAt,
	}).ToSQL()
	if err != nil {
		return fmt.Errorf("build create api key query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create api key %q: %w", key.Prefix, err)
	}
	return nil
}

func (s *SQLite) GetApiKeyByHash(ctx context.Context, keyHash string) (*model.ApiKey, error) {
	query, _, err := s.goqu.From(s.tableApiKeys).
		Select(apiKeyColumns()...).
		Where(goqu.I("key_hash").Eq(keyHash)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build get api key query: %w", err)
	}

	var row apiKeyRow
	err = s.db.QueryRowContext(ctx, query).Scan(
		&row.Prefix, &row.KeyHash, &row.UserID, &row.Name, &row.Active,
		&row.Expiry, &row.Scopes, &row.CreatedAt, &row.LastUsedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get api key: %w", err)
	}
	return rowToApiKey(row)
}

func (s *SQLite) ListApiKeys(ctx context.Context, userID string) ([]model.ApiKey, error) {
	query, _, err := s.goqu.From(s.tableApiKeys).
		Select(apiKeyColumns()...).
		Where(goqu.I("user_id").Eq(userID)).
		Order(goqu.I("created_at").Desc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list api keys query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list api keys for %q: %w", userID, err)
	}
	defer rows.Close()

	var out []model.ApiKey
	for rows.Next() {
		var row apiKeyRow
		if err := rows.Scan(&row.Prefix, &row.KeyHash, &row.UserID, &row.Name, &row.Active,
			&row.Expiry, &row.Scopes, &row.CreatedAt, &row.LastUsedAt); err != nil {
			return nil, fmt.Errorf("scan api key row: %w", err)
		}
		k, err := rowToApiKey(row)
		if err != nil {
			return nil, err
		}
		out = append(out, *k)
	}
	return out, rows.Err()
}

func (s *SQLite) RevokeApiKey(ctx context.Context, prefix string) error {
	query, _, err := s.goqu.Update(s.tableApiKeys).
		Set(goqu.Record{"active": false}).
		Where(goqu.I("prefix").Eq(prefix)).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build revoke api key query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("revoke api key %q: %w", prefix, err)
	}
	return nil
}

func (s *SQLite) TouchApiKey(ctx context.Context, prefix string) error {
	query, _, err := s.goqu.Update(s.tableApiKeys).
		Set(goqu.Record{"last_used_at": time.Now().UTC()}).
		Where(goqu.I("prefix").Eq(prefix)).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build touch api key query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("touch api key %q: %w", prefix, err)
	}
	return nil
}
