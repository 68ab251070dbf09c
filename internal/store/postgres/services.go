package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"

	atcrypto "github.com/unicitynetwork/unicity-orchestrator/internal/crypto"
	"github.com/unicitynetwork/unicity-orchestrator/internal/model"
)

type serviceRow struct {
	ServiceID     string          `db:"service_id"`
	Name          string          `db:"name"`
	Transport     string          `db:"transport"`
	SpawnCommand  sql.NullString  `db:"spawn_command"`
	SpawnArgs     json.RawMessage `db:"spawn_args"`
	SpawnEnv      json.RawMessage `db:"spawn_env"`
	RemoteURL     sql.NullString  `db:"remote_url"`
	RemoteHeaders json.RawMessage `db:"remote_headers"`
	Disabled      bool            `db:"disabled"`
	AutoApprove   json.RawMessage `db:"auto_approve"`
	DisabledTools json.RawMessage `db:"disabled_tools"`
}

func setToSlice(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func sliceToSet(s []string) map[string]struct{} {
	if len(s) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(s))
	for _, v := range s {
		out[v] = struct{}{}
	}
	return out
}

func (p *Postgres) serviceToRecord(svc model.Service) (goqu.Record, error) {
	p.encKeyMu.RLock()
	encKey := p.encKey
	p.encKeyMu.RUnlock()

	record := goqu.Record{
		"service_id": svc.ServiceID,
		"name":       svc.Name,
		"transport":  string(svc.Transport),
		"disabled":   svc.Disabled,
	}

	autoApprove, err := json.Marshal(setToSlice(svc.AutoApprove))
	if err != nil {
		return nil, fmt.Errorf("marshal auto_approve: %w", err)
	}
	record["auto_approve"] = autoApprove

	disabledTools, err := json.Marshal(setToSlice(svc.DisabledTools))
	if err != nil {
		return nil, fmt.Errorf("marshal disabled_tools: %w", err)
	}
	record["disabled_tools"] = disabledTools

	if svc.Spawn != nil {
		spawn, err := atcrypto.EncryptSpawnSpec(*svc.Spawn, encKey)
		if err != nil {
			return nil, fmt.Errorf("encrypt spawn env: %w", err)
		}
		args, err := json.Marshal(spawn.Args)
		if err != nil {
			return nil, fmt.Errorf("marshal spawn args: %w", err)
		}
		env, err := json.Marshal(spawn.Env)
		if err != nil {
			return nil, fmt.Errorf("marshal spawn env: %w", err)
		}
		record["spawn_command"] = spawn.Command
		record["spawn_args"] = args
		record["spawn_env"] = env
	}

	if svc.Remote != nil {
		headers, err := json.Marshal(svc.Remote.Headers)
		if err != nil {
			return nil, fmt.Errorf("marshal remote headers: %w", err)
		}
		record["remote_url"] = svc.Remote.URL
		record["remote_headers"] = headers
	}

	return record, nil
}

func (p *Postgres) rowToService(row serviceRow) (*model.Service, error) {
	p.encKeyMu.RLock()
	encKey := p.encKey
	p.encKeyMu.RUnlock()

	svc := model.Service{
		ServiceID:     row.ServiceID,
		Name:          row.Name,
		Transport:     model.Transport(row.Transport),
		Disabled:      row.Disabled,
		AutoApprove:   make(map[string]struct{}),
		DisabledTools: make(map[string]struct{}),
	}

	var autoApprove, disabledTools []string
	if len(row.AutoApprove) > 0 {
		if err := json.Unmarshal(row.AutoApprove, &autoApprove); err != nil {
			return nil, fmt.Errorf("unmarshal auto_approve: %w", err)
		}
	}
	if len(row.DisabledTools) > 0 {
		if err := json.Unmarshal(row.DisabledTools, &disabledTools); err != nil {
			return nil, fmt.Errorf("unmarshal disabled_tools: %w", err)
		}
	}
	svc.AutoApprove = sliceToSet(autoApprove)
	svc.DisabledTools = sliceToSet(disabledTools)

	if row.SpawnCommand.Valid {
		spawn := model.SpawnSpec{Command: row.SpawnCommand.String}
		if len(row.SpawnArgs) > 0 {
			if err := json.Unmarshal(row.SpawnArgs, &spawn.Args); err != nil {
				return nil, fmt.Errorf("unmarshal spawn args: %w", err)
			}
		}
		if len(row.SpawnEnv) > 0 {
			if err := json.Unmarshal(row.SpawnEnv, &spawn.Env); err != nil {
				return nil, fmt.Errorf("unmarshal spawn env: %w", err)
			}
		}
		decrypted, err := atcrypto.DecryptSpawnSpec(spawn, encKey)
		if err != nil {
			return nil, fmt.Errorf("decrypt spawn env: %w", err)
		}
		svc.Spawn = &decrypted
	}

	if row.RemoteURL.Valid {
		remote := model.RemoteSpec{URL: row.RemoteURL.String}
		if len(row.RemoteHeaders) > 0 {
			if err := json.Unmarshal(row.RemoteHeaders, &remote.Headers); err != nil {
				return nil, fmt.Errorf("unmarshal remote headers: %w", err)
			}
		}
		svc.Remote = &remote
	}

	return &svc, nil
}

func (p *Postgres) UpsertService(ctx context.Context, svc model.Service) error {
	record, err := p.serviceToRecord(svc)
	if err != nil {
		return err
	}

	del, _, err := p.goqu.Delete(p.tableServices).Where(goqu.I("service_id").Eq(svc.ServiceID)).ToSQL()
	if err != nil {
		return fmt.Errorf("build delete service query: %w", err)
	}
	ins, _, err := p.goqu.Insert(p.tableServices).Rows(record).ToSQL()
	if err != nil {
		return fmt.Errorf("build insert service query: %w", err)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, del); err != nil {
		return fmt.Errorf("delete existing service %q: %w", svc.ServiceID, err)
	}
	if _, err := tx.ExecContext(ctx, ins); err != nil {
		return fmt.Errorf("insert service %q: %w", svc.ServiceID, err)
	}
	return tx.Commit()
}

func (p *Postgres) GetService(ctx context.Context, serviceID string) (*model.Service, error) {
	query, _, err := p.goqu.From(p.tableServices).
		Select("service_id", "name", "transport", "spawn_command", "spawn_args", "spawn_env",
			"remote_url", "remote_headers", "disabled", "auto_approve", "disabled_tools").
		Where(goqu.I("service_id").Eq(serviceID)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build get service query: %w", err)
	}

	var row serviceRow
	err = p.db.QueryRowContext(ctx, query).Scan(
		&row.ServiceID, &row.Name, &row.Transport, &row.SpawnCommand, &row.SpawnArgs, &row.SpawnEnv,
		&row.RemoteURL, &row.RemoteHeaders, &row.Disabled, &row.AutoApprove, &row.DisabledTools,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get service %q: %w", serviceID, err)
	}
	return p.rowToService(row)
}

func (p *Postgres) ListServices(ctx context.Context) ([]model.Service, error) {
	query, _, err := p.goqu.From(p.tableServices).
		Select("service_id", "name", "transport", "spawn_command", "spawn_args", "spawn_env",
			"remote_url", "remote_headers", "disabled", "auto_approve", "disabled_tools").
		Order(goqu.I("service_id").Asc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list services query: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	var out []model.Service
	for rows.Next() {
		var row serviceRow
		if err := rows.Scan(
			&row.ServiceID, &row.Name, &row.Transport, &row.SpawnCommand, &row.SpawnArgs, &row.SpawnEnv,
			&row.RemoteURL, &row.RemoteHeaders, &row.Disabled, &row.AutoApprove, &row.DisabledTools,
		); err != nil {
			return nil, fmt.Errorf("scan service row: %w", err)
		}
		svc, err := p.rowToService(row)
		if err != nil {
			return nil, err
		}
		out = append(out, *svc)
	}
	return out, rows.Err()
}

func (p *Postgres) DeleteService(ctx context.Context, serviceID string) error {
	query, _, err := p.goqu.Delete(p.tableServices).Where(goqu.I("service_id").Eq(serviceID)).ToSQL()
	if err != nil {
		return fmt.Errorf("build delete service query: %w", err)
	}
	_, err = p.db.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("delete service %q: %w", serviceID, err)
	}
	return nil
}
