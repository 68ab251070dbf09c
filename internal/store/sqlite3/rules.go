package sqlite3

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/doug-martin/goqu/v9"

	"github.com/unicitynetwork/unicity-orchestrator/internal/model"
)

type ruleRow struct {
	RuleID      string          `db:"rule_id"`
	Name        string          `db:"name"`
	Description sql.NullString  `db:"description"`
	Antecedents json.RawMessage `db:"antecedents"`
	Consequents json.RawMessage `db:"consequents"`
	Confidence  float64         `db:"confidence"`
	Priority    int             `db:"priority"`
}

func ruleColumns() []any {
	return []any{"rule_id", "name", "description", "antecedents", "consequents", "confidence", "priority"}
}

func rowToRule(row ruleRow) (*model.SymbolicRule, error) {
	r := &model.SymbolicRule{
		RuleID:      row.RuleID,
		Name:        row.Name,
		Description: row.Description.String,
		Confidence:  row.Confidence,
		Priority:    row.Priority,
	}
	if len(row.Antecedents) > 0 {
		if err := json.Unmarshal(row.Antecedents, &r.Antecedents); err != nil {
			return nil, fmt.Errorf("unmarshal antecedents: %w", err)
		}
	}
	if len(row.Consequents) > 0 {
		if err := json.Unmarshal(row.Consequents, &r.Consequents); err != nil {
			return nil, fmt.Errorf("unmarshal consequents: %w", err)
		}
	}
	return r, nil
}

func (s *SQLite) UpsertRule(ctx context.Context, rule model.SymbolicRule) error {
	antecedents, err := json.Marshal(rule.Antecedents)
	if err != nil {
		return fmt.Errorf("marshal antecedents: %w", err)
	}
	consequents, err := json.Marshal(rule.Consequents)
	if err != nil {
		return fmt.Errorf("marshal consequents: %w", err)
	}

	record := goqu.Record{
		"rule_id":     rule.RuleID,
		"name":        rule.Name,
		"description": rule.Description,
		"antecedents": antecedents,
		"consequents": consequents,
		"confidence":  rule.Confidence,
		"priority":    rule.Priority,
	}

	del, _, err := s.goqu.Delete(s.tableRules).Where(goqu.I("rule_id").Eq(rule.RuleID)).ToSQL()
	if err != nil {
		return fmt.Errorf("build delete rule query: %w", err)
	}
	ins, _, err := s.goqu.Insert(s.tableRules).Rows(record).ToSQL()
	if err != nil {
		return fmt.Errorf("build insert rule query: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck
	if _, err := tx.ExecContext(ctx, del); err != nil {
		return fmt.Errorf("delete existing rule %q: %w", rule.RuleID, err)
	}
	if _, err := tx.ExecContext(ctx, ins); err != nil {
		return fmt.Errorf("insert rule %q: %w", rule.RuleID, err)
	}
	return tx.Commit()
}

func (s *SQLite) ListRules(ctx context.Context) ([]model.SymbolicRule, error) {
	query, _, err := s.goqu.From(s.tableRules).
		Select(ruleColumns()...).
		Order(goqu.I("priority").Desc(), goqu.I("rule_id").Asc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list rules query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var out []model.SymbolicRule
	for rows.Next() {
		var row ruleRow
		if err := rows.Scan(&row.RuleID, &row.Name, &row.Description, &row.Antecedents,
			&row.Consequents, &row.Confidence, &row.Priority); err != nil {
			return nil, fmt.Errorf("scan rule row: %w", err)
		}
		r, err := rowToRule(row)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *SQLite) DeleteRule(ctx context.Context, ruleID string) error {
	query, _, err := s.goqu.Delete(s.tableRules).Where(goqu.I("rule_id").Eq(ruleID)).ToSQL()
	if err != nil {
		return fmt.Errorf("build delete rule query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("delete rule %q: %w", ruleID, err)
	}
	return nil
}
