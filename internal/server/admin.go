package server

import (
	"net/http"

	"github.com/unicitynetwork/unicity-orchestrator/internal/model"
)

// Discover handles POST /discover on the admin mux: runs a full warmup +
// index + graph rebuild pass and, if clustering is enabled, broadcasts the
// new generation to every peer so they rebuild from the same persisted
// state instead of serving a stale snapshot.
func (s *Server) Discover(w http.ResponseWriter, r *http.Request) {
	if s.cluster != nil {
		if err := s.cluster.Lock(r.Context()); err != nil {
			writeError(w, model.NewError(model.ErrServiceUnavailable, "acquire discover lock: %v", err))
			return
		}
		defer s.cluster.Unlock()
	}

	if err := s.registry.Discover(r.Context()); err != nil {
		writeError(w, err)
		return
	}

	generation := s.generation.Add(1)

	if s.cluster != nil {
		if err := s.cluster.BroadcastGeneration(r.Context(), generation); err != nil {
			httpResponseJSON(w, map[string]any{
				"status":     "discovered",
				"generation": generation,
				"warning":    "broadcast to peers failed: " + err.Error(),
			}, http.StatusOK)
			return
		}
	}

	httpResponseJSON(w, map[string]any{"status": "discovered", "generation": generation}, http.StatusOK)
}

// Sync handles POST /sync on the admin mux. The orchestrator's knowledge
// graph is rebuilt wholesale by Discover rather than synchronized
// incrementally, so this endpoint is a documented no-op kept for clients
// that still call it (see DESIGN.md).
func (s *Server) Sync(w http.ResponseWriter, r *http.Request) {
	httpResponseJSON(w, map[string]any{"status": "not_implemented"}, http.StatusAccepted)
}
