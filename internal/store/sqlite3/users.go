package sqlite3

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/oklog/ulid/v2"

	"github.com/unicitynetwork/unicity-orchestrator/internal/model"
)

type userRow struct {
	UserID           string         `db:"user_id"`
	ExternalID       string         `db:"external_id"`
	IdentityProvider string         `db:"identity_provider"`
	Email            sql.NullString `db:"email"`
	DisplayName      sql.NullString `db:"display_name"`
	Active           bool           `db:"active"`
}

func userColumns() []any {
	return []any{"user_id", "external_id", "identity_provider", "email", "display_name", "active"}
}

func rowToUser(row userRow) *model.User {
	return &model.User{
		UserID:           row.UserID,
		ExternalID:       row.ExternalID,
		IdentityProvider: row.IdentityProvider,
		Email:            row.Email.String,
		DisplayName:      row.DisplayName.String,
		Active:           row.Active,
	}
}

func (s *SQLite) GetOrCreateUser(ctx context.Context, externalID, provider, email, displayName string) (*model.User, error) {
	query, _, err := s.goqu.From(s.tableUsers).
		Select(userColumns()...).
		Where(goqu.I("identity_provider").Eq(provider), goqu.I("external_id").Eq(externalID)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build get user query: %w", err)
	}

	var row userRow
	err = s.db.QueryRowContext(ctx, query).Scan(
		&row.UserID, &row.ExternalID, &row.IdentityProvider, &row.Email, &row.DisplayName, &row.Active,
	)
	if err == nil {
		return rowToUser(row), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get user %q/%q: %w", provider, externalID, err)
	}

	user := model.User{
		UserID:           ulid.Make().String(),
		ExternalID:       externalID,
		IdentityProvider: provider,
		Email:            email,
		DisplayName:      displayName,
		Active:           true,
	}
	ins, _, err := s.goqu.Insert(s.tableUsers).Rows(goqu.Record{
		"user_id": user.UserID, "external_id": user.ExternalID, "identity_provider": user.IdentityProvider,
		"email": user.Email, "display_name": user.DisplayName, "active": user.Active,
	}).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build insert user query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, ins); err != nil {
		return nil, fmt.Errorf("create user %q/%q: %w", provider, externalID, err)
	}
	return &user, nil
}

func (s *SQLite) GetUser(ctx context.Context, userID string) (*model.User, error) {
	query, _, err := s.goqu.From(s.tableUsers).
		Select(userColumns()...).
		Where(goqu.I("user_id").Eq(userID)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build get user query: %w", err)
	}

	var row userRow
	err = s.db.QueryRowContext(ctx, query).Scan(
		&row.UserID, &row.ExternalID, &row.IdentityProvider, &row.Email, &row.DisplayName, &row.Active,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user %q: %w", userID, err)
	}
	return rowToUser(row), nil
}

type preferencesRow struct {
	UserID                    string          `db:"user_id"`
	DefaultApprovalMode       string          `db:"default_approval_mode"`
	TrustedServices           json.RawMessage `db:"trusted_services"`
	BlockedServices           json.RawMessage `db:"blocked_services"`
	ElicitationTimeoutSeconds int             `db:"elicitation_timeout_seconds"`
	RememberDecisions         bool            `db:"remember_decisions"`
	NotifyOnElicitation       bool            `db:"notify_on_elicitation"`
	NotifyOnPermissionChange  bool            `db:"notify_on_permission_change"`
}

func preferencesColumns() []any {
	return []any{"user_id", "default_approval_mode", "trusted_services", "blocked_services",
		"elicitation_timeout_seconds", "remember_decisions", "notify_on_elicitation", "notify_on_permission_change"}
}

func rowToPreferences(row preferencesRow) (*model.UserPreferences, error) {
	prefs := &model.UserPreferences{
		UserID:                    row.UserID,
		DefaultApprovalMode:       model.ApprovalMode(row.DefaultApprovalMode),
		ElicitationTimeoutSeconds: row.ElicitationTimeoutSeconds,
		RememberDecisions:         row.RememberDecisions,
		NotifyOnElicitation:       row.NotifyOnElicitation,
		NotifyOnPermissionChange:  row.NotifyOnPermissionChange,
	}
	var trusted, blocked []string
	if len(row.TrustedServices) > 0 {
		if err := json.Unmarshal(row.TrustedServices, &trusted); err != nil {
			return nil, fmt.Errorf("unmarshal trusted_services: %w", err)
		}
	}
	if len(row.BlockedServices) > 0 {
		if err := json.Unmarshal(row.BlockedServices, &blocked); err != nil {
			return nil, fmt.Errorf("unmarshal blocked_services: %w", err)
		}
	}
	prefs.TrustedServices = sliceToSet(trusted)
	prefs.BlockedServices = sliceToSet(blocked)
	return prefs, nil
}

func (s *SQLite) GetPreferences(ctx context.Context, userID string) (*model.UserPreferences, error) {
	query, _, err := s.goqu.From(s.tablePreferences).
		Select(preferencesColumns()...).
		Where(goqu.I("user_id").Eq(userID)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build get preferences query: %w", err)
	}

	var row preferencesRow
	err = s.db.QueryRowContext(ctx, query).Scan(
		&row.UserID, &row.DefaultApprovalMode, &row.TrustedServices, &row.BlockedServices,
		&row.ElicitationTimeoutSeconds, &row.RememberDecisions, &row.NotifyOnElicitation, &row.NotifyOnPermissionChange,
	)
	if errors.Is(err, sql.ErrNoRows) {
		prefs := model.DefaultPreferences(userID)
		if err := s.SavePreferences(ctx, prefs); err != nil {
			return nil, fmt.Errorf("materialise default preferences for %q: %w", userID, err)
		}
		return &prefs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get preferences for %q: %w", userID, err)
	}
	return rowToPreferences(row)
}

func (s *SQLite) SavePreferences(ctx context.Context, prefs model.UserPreferences) error {
	trusted, err := json.Marshal(setToSlice(prefs.TrustedServices))
	if err != nil {
		return fmt.Errorf("marshal trusted_services: %w", err)
	}
	blocked, err := json.Marshal(setToSlice(prefs.BlockedServices))
	if err != nil {
		return fmt.Errorf("marshal blocked_services: %w", err)
	}

	record := goqu.Record{
		"user_id":                      prefs.UserID,
		"default_approval_mode":        string(prefs.DefaultApprovalMode),
		"trusted_services":             trusted,
		"blocked_services":             blocked,
		"elicitation_timeout_seconds":  prefs.ElicitationTimeoutSeconds,
		"remember_decisions":           prefs.RememberDecisions,
		"notify_on_elicitation":        prefs.NotifyOnElicitation,
		"notify_on_permission_change":  prefs.NotifyOnPermissionChange,
	}

	del, _, err := s.goqu.Delete(s.tablePreferences).Where(goqu.I("user_id").Eq(prefs.UserID)).ToSQL()
	if err != nil {
		return fmt.Errorf("build delete preferences query: %w", err)
	}
	ins, _, err := s.goqu.Insert(s.tablePreferences).Rows(record).ToSQL()
	if err != nil {
		return fmt.Errorf("build insert preferences query: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck
	if _, err := tx.ExecContext(ctx, del); err != nil {
		return fmt.Errorf("delete existing preferences for %q: %w", prefs.UserID, err)
	}
	if _, err := tx.ExecContext(ctx, ins); err != nil {
		return fmt.Errorf("insert preferences for %q: %w", prefs.UserID, err)
	}
	return tx.Commit()
}
