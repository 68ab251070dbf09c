// Package auth implements the mcp-http authentication chain: Bearer-JWT (if
// JWKS configured), then X-API-Key (static or DB-backed), then anonymous if
// the server allows it.
package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/unicitynetwork/unicity-orchestrator/internal/model"
	"github.com/unicitynetwork/unicity-orchestrator/internal/store"
	"github.com/unicitynetwork/unicity-orchestrator/internal/userstore"
)

// Config is the subset of internal/config.Auth/Server the authenticator
// needs, kept decoupled from internal/config to avoid an import cycle.
type Config struct {
	StaticAPIKey    string
	EnableDBAPIKeys bool
	JWKSURL         string
	JWTIssuer       string
	JWTAudience     string
	AllowAnonymous  bool
}

// Authenticator runs the chain against an incoming HTTP request.
type Authenticator struct {
	cfg   Config
	store store.Store
	users *userstore.UserStore
	jwks  *jwksCache
}

func New(cfg Config, st store.Store, users *userstore.UserStore) *Authenticator {
	a := &Authenticator{cfg: cfg, store: st, users: users}
	if cfg.JWKSURL != "" {
		a.jwks = newJWKSCache(cfg.JWKSURL)
	}
	return a
}

// Identity is the resolved caller: a real user record plus materialised
// preferences, or the zero UserID for an anonymous caller.
type Identity struct {
	User  model.User
	Prefs model.UserPreferences
}

// Authenticate runs Bearer-JWT, then X-API-Key, then anonymous, returning
// the first leg that accepts the request.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) (Identity, error) {
	if bearer := bearerToken(r); bearer != "" {
		if a.jwks == nil {
			return Identity{}, model.NewError(model.ErrUnauthenticated, "bearer token presented but no JWKS configured")
		}
		return a.authenticateJWT(ctx, bearer)
	}

	if key := r.Header.Get("X-API-Key"); key != "" {
		return a.authenticateApiKey(ctx, key)
	}

	if a.cfg.AllowAnonymous {
		return Identity{Prefs: model.DefaultPreferences("")}, nil
	}

	return Identity{}, model.NewError(model.ErrUnauthenticated, "no credentials presented")
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if strings.HasPrefix(h, prefix) {
		return strings.TrimPrefix(h, prefix)
	}
	return ""
}

func (a *Authenticator) authenticateJWT(ctx context.Context, raw string) (Identity, error) {
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unsupported signing method %v", t.Header["alg"])
		}
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("token has no kid header")
		}
		return a.jwks.key(ctx, kid)
	},
		jwt.WithIssuer(a.cfg.JWTIssuer),
		jwt.WithAudience(a.cfg.JWTAudience),
		jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"}),
	)
	if err != nil || !parsed.Valid {
		return Identity{}, model.NewError(model.ErrInvalidToken, "jwt validation failed: %v", err)
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return Identity{}, model.NewError(model.ErrInvalidToken, "jwt missing sub claim")
	}
	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)

	user, err := a.users.GetOrCreateUser(ctx, sub, "jwt", email, name)
	if err != nil {
		return Identity{}, fmt.Errorf("resolve jwt user: %w", err)
	}
	if !user.Active {
		return Identity{}, model.NewError(model.ErrUserDeactivated, "user %q is deactivated", user.UserID)
	}

	prefs, err := a.users.Preferences(ctx, user.UserID)
	if err != nil {
		return Identity{}, fmt.Errorf("load preferences: %w", err)
	}
	return Identity{User: *user, Prefs: *prefs}, nil
}

func (a *Authenticator) authenticateApiKey(ctx context.Context, key string) (Identity, error) {
	if a.cfg.StaticAPIKey != "" && subtle.ConstantTimeCompare([]byte(key), []byte(a.cfg.StaticAPIKey)) == 1 {
		return Identity{Prefs: model.DefaultPreferences("")}, nil
	}

	if !a.cfg.EnableDBAPIKeys {
		return Identity{}, model.NewError(model.ErrInvalidApiKey, "invalid api key")
	}

	if !KeyDisplayPattern.MatchString(key) {
		return Identity{}, model.NewError(model.ErrInvalidApiKey, "malformed api key")
	}

	hash := HashApiKey(key)
	record, err := a.store.GetApiKeyByHash(ctx, hash)
	if err != nil {
		if err == model.ErrNotFound {
			return Identity{}, model.NewError(model.ErrInvalidApiKey, "invalid api key")
		}
		return Identity{}, fmt.Errorf("lookup api key: %w", err)
	}
	if !record.Active {
		return Identity{}, model.NewError(model.ErrApiKeyRevoked, "api key %q was revoked", record.Prefix)
	}
	if record.Expiry != nil && record.Expiry.Before(time.Now()) {
		return Identity{}, model.NewError(model.ErrApiKeyExpired, "api key %q expired", record.Prefix)
	}

	_ = a.store.TouchApiKey(ctx, record.Prefix)

	// A key minted without an owner (create-api-key) is system-level, like
	// the static key.
	if record.UserID == "" {
		return Identity{Prefs: model.DefaultPreferences("")}, nil
	}

	user, err := a.store.GetUser(ctx, record.UserID)
	if err != nil {
		return Identity{}, fmt.Errorf("load api key owner: %w", err)
	}
	if user == nil {
		return Identity{}, model.NewError(model.ErrInvalidApiKey, "api key owner %q not found", record.UserID)
	}
	if !user.Active {
		return Identity{}, model.NewError(model.ErrUserDeactivated, "user %q is deactivated", user.UserID)
	}

	prefs, err := a.users.Preferences(ctx, user.UserID)
	if err != nil {
		return Identity{}, fmt.Errorf("load preferences: %w", err)
	}
	return Identity{User: *user, Prefs: *prefs}, nil
}
