package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/oklog/ulid/v2"

	"github.com/unicitynetwork/unicity-orchestrator/internal/model"
)

func (p *Postgres) AppendAudit(ctx context.Context, e model.AuditEntry) error {
	if e.EntryID == "" {
		e.EntryID = ulid.Make().String()
	}
	query, _, err := p.goqu.Insert(p.tableAudit).Rows(goqu.Record{
		"entry_id": e.EntryID, "user_id": e.UserID, "action": string(e.Action),
		"resource": e.Resource, "ip": e.IP, "user_agent": e.UserAgent, "timestamp": e.Timestamp,
	}).ToSQL()
	if err != nil {
		return fmt.Errorf("build append audit query: %w", err)
	}
	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

func (p *Postgres) ListAudit(ctx context.Context, userID string, limit int) ([]model.AuditEntry, error) {
	ds := p.goqu.From(p.tableAudit).
		Select("entry_id", "user_id", "action", "resource", "ip", "user_agent", "timestamp").
		Order(goqu.I("timestamp").Desc())
	if userID != "" {
		ds = ds.Where(goqu.I("user_id").Eq(userID))
	}
	if limit > 0 {
		ds = ds.Limit(uint(limit))
	}

	query, _, err := ds.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list audit query: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	defer rows.Close()

	var out []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		var action string
		var resource, ip, userAgent sql.NullString
		if err := rows.Scan(&e.EntryID, &e.UserID, &action, &resource, &ip, &userAgent, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		e.Action = model.AuditAction(action)
		e.Resource = resource.String
		e.IP = ip.String
		e.UserAgent = userAgent.String
		out = append(out, e)
	}
	return out, rows.Err()
}
