package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/unicitynetwork/unicity-orchestrator/internal/auth"
	"github.com/unicitynetwork/unicity-orchestrator/internal/exec"
	"github.com/unicitynetwork/unicity-orchestrator/internal/model"
)

// identity authenticates r through the auth.Authenticator chain and records
// no audit entry; REST handlers call this instead of duplicating the chain.
func (s *Server) identity(r *http.Request) (auth.Identity, error) {
	return s.authn.Authenticate(r.Context(), r)
}

func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return ip
	}
	return r.RemoteAddr
}

// Health handles GET /health.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	httpResponseJSON(w, map[string]any{"status": "ok"}, http.StatusOK)
}

type queryRequest struct {
	Query     string         `json:"query"`
	Context   map[string]any `json:"context"`
	K         int            `json:"k"`
	Threshold float64        `json:"threshold"`
}

// Query handles POST /query, the REST mirror of unicity.select_tool.
func (s *Server) Query(w http.ResponseWriter, r *http.Request) {
	id, err := s.identity(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpResponse(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		httpResponse(w, "query is required", http.StatusBadRequest)
		return
	}

	selections, err := s.registry.SelectTool(r.Context(), req.Query, req.Context, req.K, req.Threshold, id.Prefs)
	if err != nil {
		writeError(w, err)
		return
	}

	httpResponseJSON(w, map[string]any{"selections": selections}, http.StatusOK)
}

// Plan handles POST /plan, the REST mirror of unicity.plan_tools.
func (s *Server) Plan(w http.ResponseWriter, r *http.Request) {
	id, err := s.identity(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpResponse(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		httpResponse(w, "query is required", http.StatusBadRequest)
		return
	}

	plan, err := s.registry.PlanTools(r.Context(), req.Query, req.Context, id.Prefs)
	if err != nil {
		writeError(w, err)
		return
	}

	httpResponseJSON(w, plan, http.StatusOK)
}

type executeRequest struct {
	ToolID    string         `json:"tool_id"`
	Arguments map[string]any `json:"arguments"`
}

// ExecuteTool handles POST /execute, the REST mirror of unicity.execute_tool.
func (s *Server) ExecuteTool(w http.ResponseWriter, r *http.Request) {
	id, err := s.identity(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpResponse(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.ToolID == "" {
		httpResponse(w, "tool_id is required", http.StatusBadRequest)
		return
	}

	result, err := s.execu.Execute(r.Context(), exec.Request{
		UserID:    id.User.UserID,
		Prefs:     id.Prefs,
		ToolID:    req.ToolID,
		Arguments: req.Arguments,
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	httpResponseJSON(w, result, http.StatusOK)
}

// ListServices handles GET /services: every configured child service and its
// current lifecycle state.
func (s *Server) ListServices(w http.ResponseWriter, r *http.Request) {
	if _, err := s.identity(r); err != nil {
		writeError(w, err)
		return
	}

	type serviceView struct {
		ServiceID string `json:"service_id"`
		Name      string `json:"name"`
		Transport string `json:"transport"`
		State     string `json:"state"`
	}

	services := s.super.Services()
	out := make([]serviceView, 0, len(services))
	for _, svc := range services {
		out = append(out, serviceView{
			ServiceID: svc.ServiceID,
			Name:      svc.Name,
			Transport: string(svc.Transport),
			State:     string(s.super.State(svc.ServiceID)),
		})
	}

	httpResponseJSON(w, map[string]any{"services": out}, http.StatusOK)
}

// ListAudit handles GET /audit?user_id=&limit= on the admin mux.
func (s *Server) ListAudit(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	limit := 100
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}

	entries, err := s.users.ListAudit(r.Context(), userID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	httpResponseJSON(w, map[string]any{"entries": entries}, http.StatusOK)
}

// writeError maps a model.Error's code to an HTTP status, falling back to
// 500 for anything that isn't one of ours.
func writeError(w http.ResponseWriter, err error) {
	code := model.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case model.ErrUnauthenticated, model.ErrInvalidApiKey, model.ErrInvalidToken:
		status = http.StatusUnauthorized
	case model.ErrUserDeactivated, model.ErrApiKeyRevoked, model.ErrApiKeyExpired, model.ErrPermissionDenied:
		status = http.StatusForbidden
	case model.ErrUnknownTool, model.ErrElicitationNotFound:
		status = http.StatusNotFound
	case model.ErrServiceBusy:
		status = http.StatusTooManyRequests
	case model.ErrServiceUnavailable, model.ErrTransportError:
		status = http.StatusBadGateway
	case model.ErrSchemaValidationFailed, model.ErrConfigInvalid:
		status = http.StatusBadRequest
	case model.ErrElicitationDeclined, model.ErrElicitationTimeout:
		status = http.StatusConflict
	}
	httpResponse(w, err.Error(), status)
}
