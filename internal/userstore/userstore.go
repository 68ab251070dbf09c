// Package userstore implements identity resolution, lazily materialised
// preferences, and best-effort audit writes, treating internal/store.Store
// as the single source of truth.
package userstore

import (
	"context"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/unicitynetwork/unicity-orchestrator/internal/model"
	"github.com/unicitynetwork/unicity-orchestrator/internal/store"
)

// UserStore resolves external identities to orchestrator users and records
// audit entries.
type UserStore struct {
	store store.Store
}

func New(s store.Store) *UserStore {
	return &UserStore{store: s}
}

// GetOrCreateUser returns the same user_id on subsequent calls for a given
// (provider, external_id) pair.
func (u *UserStore) GetOrCreateUser(ctx context.Context, externalID, provider, email, displayName string) (*model.User, error) {
	return u.store.GetOrCreateUser(ctx, externalID, provider, email, displayName)
}

// Preferences lazily materialises defaults on first access.
func (u *UserStore) Preferences(ctx context.Context, userID string) (*model.UserPreferences, error) {
	return u.store.GetPreferences(ctx, userID)
}

func (u *UserStore) SavePreferences(ctx context.Context, prefs model.UserPreferences) error {
	return u.store.SavePreferences(ctx, prefs)
}

// Audit appends an audit entry. Writes are best-effort: a failure is logged,
// never surfaced to the caller, and never blocks the operation it describes.
func (u *UserStore) Audit(ctx context.Context, userID string, action model.AuditAction, resource, ip, userAgent string) {
	entry := model.AuditEntry{
		EntryID:   ulid.Make().String(),
		UserID:    userID,
		Action:    action,
		Resource:  resource,
		IP:        ip,
		UserAgent: userAgent,
		Timestamp: time.Now().UTC(),
	}
	if err := u.store.AppendAudit(ctx, entry); err != nil {
		slog.Error("audit write failed", "action", action, "resource", resource, "error", err)
	}
}

func (u *UserStore) ListAudit(ctx context.Context, userID string, limit int) ([]model.AuditEntry, error) {
	return u.store.ListAudit(ctx, userID, limit)
}
