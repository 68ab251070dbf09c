package server

import (
	"encoding/json"
	"net/http"

	"github.com/unicitynetwork/unicity-orchestrator/internal/model"
)

// GetElicitation handles GET /elicitations/{id}: the current (possibly still
// pending) state of a rendezvous, for a client polling instead of blocking
// on the tool call that raised it.
func (s *Server) GetElicitation(w http.ResponseWriter, r *http.Request) {
	if _, err := s.identity(r); err != nil {
		writeError(w, err)
		return
	}

	id := r.PathValue("id")
	el, ok := s.elic.Get(id)
	if !ok {
		writeError(w, model.NewError(model.ErrElicitationNotFound, "unknown elicitation %q", id))
		return
	}
	httpResponseJSON(w, el, http.StatusOK)
}

type completeFormRequest struct {
	FormData map[string]any `json:"form_data"`
}

// CompleteForm handles POST /elicitations/{id}/form: resolves a Form
// elicitation once form_data validates against its stored schema.
func (s *Server) CompleteForm(w http.ResponseWriter, r *http.Request) {
	id, err := s.identity(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req completeFormRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpResponse(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	elicitationID := r.PathValue("id")
	if err := s.elic.CompleteForm(elicitationID, req.FormData); err != nil {
		writeError(w, err)
		return
	}

	s.users.Audit(r.Context(), id.User.UserID, model.ActionElicitationCompleted, elicitationID, clientIP(r), r.UserAgent())
	httpResponseJSON(w, responseMessage{Message: "form accepted"}, http.StatusOK)
}

type completeApprovalRequest struct {
	Decision model.ApprovalDecision `json:"decision"`
}

// CompleteApproval handles POST /elicitations/{id}/approval: resolves an
// Approval elicitation with the user's decision.
func (s *Server) CompleteApproval(w http.ResponseWriter, r *http.Request) {
	id, err := s.identity(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req completeApprovalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpResponse(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	switch req.Decision {
	case model.DecisionAllowOnce, model.DecisionAlwaysAllow, model.DecisionDeny:
	default:
		httpResponse(w, "decision must be allow_once, always_allow, or deny", http.StatusBadRequest)
		return
	}

	elicitationID := r.PathValue("id")
	if err := s.elic.CompleteApproval(elicitationID, req.Decision); err != nil {
		writeError(w, err)
		return
	}

	s.users.Audit(r.Context(), id.User.UserID, model.ActionElicitationCompleted, elicitationID, clientIP(r), r.UserAgent())
	httpResponseJSON(w, responseMessage{Message: "approval recorded"}, http.StatusOK)
}

// DeclineElicitation handles POST /elicitations/{id}/decline: an explicit
// decline distinct from letting the deadline pass.
func (s *Server) DeclineElicitation(w http.ResponseWriter, r *http.Request) {
	id, err := s.identity(r)
	if err != nil {
		writeError(w, err)
		return
	}

	elicitationID := r.PathValue("id")
	if err := s.elic.Decline(elicitationID); err != nil {
		writeError(w, err)
		return
	}

	s.users.Audit(r.Context(), id.User.UserID, model.ActionElicitationCompleted, elicitationID, clientIP(r), r.UserAgent())
	httpResponseJSON(w, responseMessage{Message: "elicitation declined"}, http.StatusOK)
}
