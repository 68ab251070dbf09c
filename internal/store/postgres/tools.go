package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"

	"github.com/unicitynetwork/unicity-orchestrator/internal/model"
)

type toolRow struct {
	ToolID       string          `db:"tool_id"`
	ToolName     string          `db:"tool_name"`
	ServiceID    string          `db:"service_id"`
	Description  sql.NullString  `db:"description"`
	InputSchema  json.RawMessage `db:"input_schema"`
	OutputSchema json.RawMessage `db:"output_schema"`
	InputTy      sql.NullString  `db:"input_ty"`
	OutputTy     sql.NullString  `db:"output_ty"`
	ContentHash  string          `db:"content_hash"`
}

func toolColumns() []any {
	return []any{"tool_id", "tool_name", "service_id", "description", "input_schema", "output_schema", "input_ty", "output_ty", "content_hash"}
}

func rowToTool(row toolRow) (*model.Tool, error) {
	t := &model.Tool{
		ToolID:      row.ToolID,
		ToolName:    row.ToolName,
		ServiceID:   row.ServiceID,
		Description: row.Description.String,
		InputTy:     row.InputTy.String,
		OutputTy:    row.OutputTy.String,
		ContentHash: row.ContentHash,
	}
	if len(row.InputSchema) > 0 {
		if err := json.Unmarshal(row.InputSchema, &t.InputSchema); err != nil {
			return nil, fmt.Errorf("unmarshal input_schema: %w", err)
		}
	}
	if len(row.OutputSchema) > 0 {
		if err := json.Unmarshal(row.OutputSchema, &t.OutputSchema); err != nil {
			return nil, fmt.Errorf("unmarshal output_schema: %w", err)
		}
	}
	return t, nil
}

func (p *Postgres) UpsertTool(ctx context.Context, t model.Tool) error {
	inputSchema, err := json.Marshal(t.InputSchema)
	if err != nil {
		return fmt.Errorf("marshal input_schema: %w", err)
	}
	outputSchema, err := json.Marshal(t.OutputSchema)
	if err != nil {
		return fmt.Errorf("marshal output_schema: %w", err)
	}

	record := goqu.Record{
		"tool_id":       t.ToolID,
		"tool_name":     t.ToolName,
		"service_id":    t.ServiceID,
		"description":   t.Description,
		"input_schema":  inputSchema,
		"output_schema": outputSchema,
		"input_ty":      t.InputTy,
		"output_ty":     t.OutputTy,
		"content_hash":  t.ContentHash,
	}

	del, _, err := p.goqu.Delete(p.tableTools).Where(goqu.I("tool_id").Eq(t.ToolID)).ToSQL()
	if err != nil {
		return fmt.Errorf("build delete tool query: %w", err)
	}
	ins, _, err := p.goqu.Insert(p.tableTools).Rows(record).ToSQL()
	if err != nil {
		return fmt.Errorf("build insert tool query: %w", err)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, del); err != nil {
		return fmt.Errorf("delete existing tool %q: %w", t.ToolID, err)
	}
	if _, err := tx.ExecContext(ctx, ins); err != nil {
		return fmt.Errorf("insert tool %q: %w", t.ToolID, err)
	}
	return tx.Commit()
}

func (p *Postgres) GetTool(ctx context.Context, toolID string) (*model.Tool, error) {
	query, _, err := p.goqu.From(p.tableTools).
		Select(toolColumns()...).
		Where(goqu.I("tool_id").Eq(toolID)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build get tool query: %w", err)
	}

	var row toolRow
	err = p.db.QueryRowContext(ctx, query).Scan(
		&row.ToolID, &row.ToolName, &row.ServiceID, &row.Description,
		&row.InputSchema, &row.OutputSchema, &row.InputTy, &row.OutputTy, &row.ContentHash,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tool %q: %w", toolID, err)
	}
	return rowToTool(row)
}

func (p *Postgres) listToolsWhere(ctx context.Context, where goqu.Expression) ([]model.Tool, error) {
	ds := p.goqu.From(p.tableTools).Select(toolColumns()...).Order(goqu.I("tool_id").Asc())
	if where != nil {
		ds = ds.Where(where)
	}
	query, _, err := ds.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list tools query: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	defer rows.Close()

	var out []model.Tool
	for rows.Next() {
		var row toolRow
		if err := rows.Scan(
			&row.ToolID, &row.ToolName, &row.ServiceID, &row.Description,
			&row.InputSchema, &row.OutputSchema, &row.InputTy, &row.OutputTy, &row.ContentHash,
		); err != nil {
			return nil, fmt.Errorf("scan tool row: %w", err)
		}
		t, err := rowToTool(row)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (p *Postgres) ListTools(ctx context.Context) ([]model.Tool, error) {
	return p.listToolsWhere(ctx, nil)
}

func (p *Postgres) ListToolsByService(ctx context.Context, serviceID string) ([]model.Tool, error) {
	return p.listToolsWhere(ctx, goqu.I("service_id").Eq(serviceID))
}

func (p *Postgres) DeleteToolsByService(ctx context.Context, serviceID string) error {
	query, _, err := p.goqu.Delete(p.tableTools).Where(goqu.I("service_id").Eq(serviceID)).ToSQL()
	if err != nil {
		return fmt.Errorf("build delete tools query: %w", err)
	}
	_, err = p.db.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("delete tools for service %q: %w", serviceID, err)
	}
	return nil
}
