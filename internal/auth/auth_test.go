package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unicitynetwork/unicity-orchestrator/internal/model"
	"github.com/unicitynetwork/unicity-orchestrator/internal/store/memory"
	"github.com/unicitynetwork/unicity-orchestrator/internal/userstore"
)

func TestAuthenticate_StaticAPIKey(t *testing.T) {
	st := memory.New()
	a := New(Config{StaticAPIKey: "secret-key", AllowAnonymous: false}, st, userstore.New(st))

	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.Header.Set("X-API-Key", "secret-key")

	id, err := a.Authenticate(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, "", id.User.UserID)
}

func TestAuthenticate_InvalidStaticKeyRejected(t *testing.T) {
	st := memory.New()
	a := New(Config{StaticAPIKey: "secret-key"}, st, userstore.New(st))

	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.Header.Set("X-API-Key", "wrong-key")

	_, err := a.Authenticate(context.Background(), r)
	require.Error(t, err)
	assert.Equal(t, model.ErrInvalidApiKey, model.CodeOf(err))
}

func TestAuthenticate_DBBackedAPIKey(t *testing.T) {
	st := memory.New()
	a := New(Config{EnableDBAPIKeys: true}, st, userstore.New(st))

	user, err := st.GetOrCreateUser(context.Background(), "ext-1", "test", "a@b.com", "Alice")
	require.NoError(t, err)

	full, key, err := GenerateApiKey(user.UserID, "ci key")
	require.NoError(t, err)
	require.NoError(t, st.CreateApiKey(context.Background(), key))

	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.Header.Set("X-API-Key", full)

	id, err := a.Authenticate(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, user.UserID, id.User.UserID)
}

func TestAuthenticate_AnonymousFallback(t *testing.T) {
	st := memory.New()
	a := New(Config{AllowAnonymous: true}, st, userstore.New(st))

	r := httptest.NewRequest(http.MethodPost, "/", nil)
	id, err := a.Authenticate(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, "", id.User.UserID)
}

func TestAuthenticate_NoCredentialsRejectedWithoutAnonymous(t *testing.T) {
	st := memory.New()
	a := New(Config{AllowAnonymous: false}, st, userstore.New(st))

	r := httptest.NewRequest(http.MethodPost, "/", nil)
	_, err := a.Authenticate(context.Background(), r)
	require.Error(t, err)
	assert.Equal(t, model.ErrUnauthenticated, model.CodeOf(err))
}
