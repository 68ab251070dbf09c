package sqlite3

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"

	"github.com/unicitynetwork/unicity-orchestrator/internal/model"
)

type permissionRow struct {
	PermissionID string       `db:"permission_id"`
	UserID       string       `db:"user_id"`
	ServiceName  string       `db:"service_name"`
	ToolName     string       `db:"tool_name"`
	Status       string       `db:"status"`
	Scope        string       `db:"scope"`
	Expiry       sql.NullTime `db:"expiry"`
}

func permissionColumns() []any {
	return []any{"permission_id", "user_id", "service_name", "tool_name", "status", "scope", "expiry"}
}

func rowToPermission(row permissionRow) model.Permission {
	p := model.Permission{
		PermissionID: row.PermissionID,
		UserID:       row.UserID,
		ServiceName:  row.ServiceName,
		ToolName:     row.ToolName,
		Status:       model.PermissionStatus(row.Status),
		Scope:        model.PermissionScope(row.Scope),
	}
	if row.Expiry.Valid {
		p.Expiry = &row.Expiry.Time
	}
	return p
}

func (s *SQLite) UpsertPermission(ctx context.Context, perm model.Permission) error {
	record := goqu.Record{
		"permission_id": perm.PermissionID,
		"user_id":       perm.UserID,
		"service_name":  perm.ServiceName,
		"tool_name":     perm.ToolName,
		"status":        string(perm.Status),
		"scope":         string(perm.Scope),
		"expiry":        perm.Expiry,
	}

	del, _, err := s.goqu.Delete(s.tablePermissions).Where(goqu.I("permission_id").Eq(perm.PermissionID)).ToSQL()
	if err != nil {
		return fmt.Errorf("build delete permission query: %w", err)
	}
	ins, _, err := s.goqu.Insert(s.tablePermissions).Rows(record).ToSQL()
	if err != nil {
		return fmt.Errorf("build insert permission query: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck
	if _, err := tx.ExecContext(ctx, del); err != nil {
		return fmt.Errorf("delete existing permission %q: %w", perm.PermissionID, err)
	}
	if _, err := tx.ExecContext(ctx, ins); err != nil {
		return fmt.Errorf("insert permission %q: %w", perm.PermissionID, err)
	}
	return tx.Commit()
}

func (s *SQLite) FindPermission(ctx context.Context, userID, serviceName, toolName string) (*model.Permission, error) {
	query, _, err := s.goqu.From(s.tablePermissions).
		Select(permissionColumns()...).
		Where(
			goqu.I("user_id").Eq(userID),
			goqu.I("service_name").Eq(serviceName),
			goqu.Or(goqu.I("tool_name").Eq(toolName), goqu.I("tool_name").Eq("")),
		).
		Order(goqu.I("tool_name").Desc()).
		Limit(1).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build find permission query: %w", err)
	}

	var row permissionRow
	err = s.db.QueryRowContext(ctx, query).Scan(
		&row.PermissionID, &row.UserID, &row.ServiceName, &row.ToolName, &row.Status, &row.Scope, &row.Expiry,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find permission for %q/%q/%q: %w", userID, serviceName, toolName, err)
	}
	perm := rowToPermission(row)
	return &perm, nil
}

func (s *SQLite) ListPermissions(ctx context.Context, userID string) ([]model.Permission, error) {
	query, _, err := s.goqu.From(s.tablePermissions).
		Select(permissionColumns()...).
		Where(goqu.I("user_id").Eq(userID)).
		Order(goqu.I("service_name").Asc(), goqu.I("tool_name").Asc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list permissions query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list permissions for %q: %w", userID, err)
	}
	defer rows.Close()

	var out []model.Permission
	for rows.Next() {
		var row permissionRow
		if err := rows.Scan(&row.PermissionID, &row.UserID, &row.ServiceName, &row.ToolName,
			&row.Status, &row.Scope, &row.Expiry); err != nil {
			return nil, fmt.Errorf("scan permission row: %w", err)
		}
		out = append(out, rowToPermission(row))
	}
	return out, rows.Err()
}

func (s *SQLite) ConsumePermission(ctx context.Context, permissionID string) error {
	query, _, err := s.goqu.Delete(s.tablePermissions).
		Where(goqu.I("permission_id").Eq(permissionID), goqu.I("scope").Eq(string(model.ScopeOneShot))).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build consume permission query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("consume permission %q: %w", permissionID, err)
	}
	return nil
}
