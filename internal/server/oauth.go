package server

import (
	"net/http"

	"github.com/unicitynetwork/unicity-orchestrator/internal/model"
)

// OAuthCallback handles GET /oauth/callback?code=&state=&error=: the
// redirect target of the Url elicitation flow. It exchanges the
// authorization code against the provider that issued state, then resolves
// the matching pending elicitation.
func (s *Server) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	if state == "" {
		httpResponse(w, "state is required", http.StatusBadRequest)
		return
	}

	if oauthErr := r.URL.Query().Get("error"); oauthErr != "" {
		_ = s.elic.CompleteURL(state, model.NewError(model.ErrElicitationDeclined, "%s", oauthErr))
		httpResponseJSON(w, responseMessage{Message: "authorization declined"}, http.StatusOK)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		httpResponse(w, "code is required", http.StatusBadRequest)
		return
	}

	provider, err := s.elic.ProviderForState(state)
	if err != nil {
		writeError(w, err)
		return
	}

	if _, err := provider.Exchange(r.Context(), code); err != nil {
		_ = s.elic.CompleteURL(state, model.NewError(model.ErrElicitationDeclined, "token exchange failed: %v", err))
		writeError(w, model.NewError(model.ErrElicitationDeclined, "token exchange failed: %v", err))
		return
	}

	if err := s.elic.CompleteURL(state, nil); err != nil {
		writeError(w, err)
		return
	}

	httpResponseJSON(w, responseMessage{Message: "authorization complete"}, http.StatusOK)
}
