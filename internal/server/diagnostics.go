package server

import (
	"net/http"
)

// GET /api/diagnostics/health
// Serves the monitor's last check, checking once if it has not run yet.
func (s *Server) handleBackendHealth(w http.ResponseWriter, r *http.Request) {
	st := s.deps.Monitor.Latest()
	if st.CheckedAt.IsZero() {
		st = s.deps.Monitor.Check(r.Context())
	}
	writeJSON(w, http.StatusOK, st)
}

// GET /api/diagnostics/overview
func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	ov, err := s.deps.Monitor.Overview(r.Context(), s.client(identityFrom(r.Context())), s.deps.EventLog)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}
