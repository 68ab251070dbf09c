package sqlite3

import (
	"context"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/oklog/ulid/v2"

	"github.com/unicitynetwork/unicity-orchestrator/internal/model"
)

// ─── Tool compatibility ───

func (s *SQLite) UpsertTypeCompatibility(ctx context.Context, rule model.TypeCompatibilityRule) error {
	del, _, err := s.goqu.Delete(s.tableTypeCompat).
		Where(goqu.I("parent").Eq(rule.Parent), goqu.I("child").Eq(rule.Child)).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build delete compatibility query: %w", err)
	}
	ins, _, err := s.goqu.Insert(s.tableTypeCompat).Rows(goqu.Record{
		"parent": rule.Parent, "child": rule.Child, "confidence": rule.Confidence,
	}).ToSQL()
	if err != nil {
		return fmt.Errorf("build insert compatibility query: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck
	if _, err := tx.ExecContext(ctx, del); err != nil {
		return fmt.Errorf("delete compatibility %s->%s: %w", rule.Parent, rule.Child, err)
	}
	if _, err := tx.ExecContext(ctx, ins); err != nil {
		return fmt.Errorf("insert compatibility %s->%s: %w", rule.Parent, rule.Child, err)
	}
	return tx.Commit()
}

func (s *SQLite) ListTypeCompatibility(ctx context.Context) ([]model.TypeCompatibilityRule, error) {
	query, _, err := s.goqu.From(s.tableTypeCompat).
		Select("parent", "child", "confidence").
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list compatibility query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list compatibility: %w", err)
	}
	defer rows.Close()

	var out []model.TypeCompatibilityRule
	for rows.Next() {
		var r model.TypeCompatibilityRule
		if err := rows.Scan(&r.Parent, &r.Child, &r.Confidence); err != nil {
			return nil, fmt.Errorf("scan compatibility row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ─── Tool sequences ───

func (s *SQLite) ReplaceToolSequences(ctx context.Context, edges []model.ToolSequenceEdge) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	truncate, _, err := s.goqu.Delete(s.tableToolSequence).ToSQL()
	if err != nil {
		return fmt.Errorf("build truncate sequences query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, truncate); err != nil {
		return fmt.Errorf("truncate tool_sequence: %w", err)
	}

	for _, e := range edges {
		ins, _, err := s.goqu.Insert(s.tableToolSequence).Rows(goqu.Record{
			"from_tool_id": e.FromToolID, "to_tool_id": e.ToToolID, "confidence": e.Confidence,
		}).ToSQL()
		if err != nil {
			return fmt.Errorf("build insert sequence query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, ins); err != nil {
			return fmt.Errorf("insert sequence %s->%s: %w", e.FromToolID, e.ToToolID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLite) ListToolSequences(ctx context.Context) ([]model.ToolSequenceEdge, error) {
	query, _, err := s.goqu.From(s.tableToolSequence).
		Select("from_tool_id", "to_tool_id", "confidence").
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list sequences query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list sequences: %w", err)
	}
	defer rows.Close()

	var out []model.ToolSequenceEdge
	for rows.Next() {
		var e model.ToolSequenceEdge
		if err := rows.Scan(&e.FromToolID, &e.ToToolID, &e.Confidence); err != nil {
			return nil, fmt.Errorf("scan sequence row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ─── Prompt/resource registry ───

func (s *SQLite) UpsertRegistryEntry(ctx context.Context, e model.RegistryEntry) error {
	key := e.Key
	if e.Alias != "" {
		key = e.Alias
	}

	del, _, err := s.goqu.Delete(s.tableRegistry).
		Where(goqu.I("kind").Eq(string(e.Kind)), goqu.I("key").Eq(key)).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build delete registry query: %w", err)
	}
	ins, _, err := s.goqu.Insert(s.tableRegistry).Rows(goqu.Record{
		"kind": string(e.Kind), "key": key, "alias": e.Alias, "service_id": e.ServiceID, "name": e.Name,
	}).ToSQL()
	if err != nil {
		return fmt.Errorf("build insert registry query: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck
	if _, err := tx.ExecContext(ctx, del); err != nil {
		return fmt.Errorf("delete registry entry %q: %w", key, err)
	}
	if _, err := tx.ExecContext(ctx, ins); err != nil {
		return fmt.Errorf("insert registry entry %q: %w", key, err)
	}
	return tx.Commit()
}

func (s *SQLite) ListRegistryEntries(ctx context.Context, kind model.RegistryKind) ([]model.RegistryEntry, error) {
	query, _, err := s.goqu.From(s.tableRegistry).
		Select("kind", "key", "alias", "service_id", "name").
		Where(goqu.I("kind").Eq(string(kind))).
		Order(goqu.I("key").Asc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list registry query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list registry entries: %w", err)
	}
	defer rows.Close()

	var out []model.RegistryEntry
	for rows.Next() {
		var e model.RegistryEntry
		var kindStr, alias string
		if err := rows.Scan(&kindStr, &e.Key, &alias, &e.ServiceID, &e.Name); err != nil {
			return nil, fmt.Errorf("scan registry row: %w", err)
		}
		e.Kind = model.RegistryKind(kindStr)
		e.Alias = alias
		out = append(out, e)
	}
	return out, rows.Err()
}

// ─── Manifest snapshots ───

func (s *SQLite) SaveManifest(ctx context.Context, man model.Manifest) error {
	if man.ManifestID == "" {
		man.ManifestID = ulid.Make().String()
	}
	query, _, err := s.goqu.Insert(s.tableManifest).Rows(goqu.Record{
		"manifest_id": man.ManifestID, "source": man.Source, "raw": man.Raw, "loaded_at": man.LoadedAt,
	}).ToSQL()
	if err != nil {
		return fmt.Errorf("build insert manifest query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("save manifest: %w", err)
	}
	return nil
}

func (s *SQLite) LatestManifest(ctx context.Context) (*model.Manifest, error) {
	query, _, err := s.goqu.From(s.tableManifest).
		Select("manifest_id", "source", "raw", "loaded_at").
		Order(goqu.I("loaded_at").Desc()).
		Limit(1).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build latest manifest query: %w", err)
	}
	var m model.Manifest
	err = s.db.QueryRowContext(ctx, query).Scan(&m.ManifestID, &m.Source, &m.Raw, &m.LoadedAt)
	if err != nil {
		return nil, model.ErrNotFound
	}
	return &m, nil
}
