package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"ragconsole/internal/backend"
	"ragconsole/internal/ingestion"
	"ragconsole/internal/interpret"
	"ragconsole/internal/types"
)

func (s *Server) ingestion(r *http.Request) *ingestion.Service {
	return ingestion.NewService(s.client(identityFrom(r.Context())),
		ingestion.WithTracker(s.deps.Tracker),
		ingestion.WithSourceTypes(s.deps.Profile.Ingestion.SourceTypes),
		ingestion.WithPollInterval(s.deps.Config.JobPollEvery),
		ingestion.WithLogger(s.log),
	)
}

// POST /api/ingestion/jobs {source_types}
func (s *Server) handleStartSync(w http.ResponseWriter, r *http.Request) {
	var req types.SyncRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	acc, err := s.ingestion(r).StartSync(r.Context(), req.SourceTypes)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, acc)
}

// GET /api/ingestion/jobs?limit=
func (s *Server) handleRecentJobs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			s.writeError(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = n
	}
	jobs, err := s.ingestion(r).Recent(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types.JobsResponse{Jobs: jobs})
}

// GET /api/ingestion/jobs/{jobID}
func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.ingestion(r).Status(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// GET /api/ingestion/jobs/{jobID}/watch
// Streams server-sent events: "status" per poll, "error" for a failed poll
// and a final "done" once the job is terminal.
func (s *Server) handleWatchJob(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	jobID := chi.URLParam(r, "jobID")
	job, err := s.ingestion(r).Watch(r.Context(), jobID, func(j backend.Job, err error) {
		if err != nil {
			writeEvent(w, "error", types.ErrorResponse{Error: interpret.FriendlyMessage(err)})
		} else {
			writeEvent(w, "status", j)
		}
		flusher.Flush()
	})
	if err != nil {
		// client went away
		return
	}
	writeEvent(w, "done", job)
	flusher.Flush()
}

func writeEvent(w http.ResponseWriter, event string, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, b)
}
