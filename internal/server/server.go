package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"

	"ragconsole/internal/backend"
	"ragconsole/internal/clarify"
	"ragconsole/internal/config"
	"ragconsole/internal/conversation"
	"ragconsole/internal/diagnostics"
	"ragconsole/internal/ingestion"
	"ragconsole/internal/interpret"
	"ragconsole/internal/logger"
	"ragconsole/internal/store"
	"ragconsole/internal/telemetry"
	"ragconsole/internal/types"
)

// Deps are the long-lived collaborators the HTTP layer is built on.
type Deps struct {
	Config    config.Config
	Profile   config.Profile
	Transport *backend.Transport
	Sessions  *store.SessionStore
	Tracker   *ingestion.Tracker
	Monitor   *diagnostics.Monitor
	Events    telemetry.Emitter
	// EventLog is nil when no database is configured.
	EventLog diagnostics.EventReader
	Logger   logger.ILogger
}

type Server struct {
	router *chi.Mux
	deps   Deps
	engine *clarify.Engine
	log    logger.ILogger
}

func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = logger.NewNop()
	}
	if deps.Events == nil {
		deps.Events = telemetry.Nop
	}
	if deps.Sessions == nil {
		deps.Sessions = store.NewSessionStore(deps.Config.SessionTTL)
	}
	deps.Profile = deps.Profile.WithDefaults()
	if deps.Monitor == nil {
		health := backend.NewClient(deps.Transport, deps.Config.DefaultTenantID, backend.WithEmitter(deps.Events))
		deps.Monitor = diagnostics.NewMonitor(health, deps.Config.HealthPollEvery, deps.Logger)
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{deps.Config.AllowedOrigin},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Session-Id", "X-Tenant-Id", "X-User-Id", "X-User-Roles"},
		ExposedHeaders:   []string{"X-Session-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s := &Server{
		router: r,
		deps:   deps,
		engine: clarify.NewEngine(deps.Profile.Clarification.Markers, deps.Profile.Clarification.MaxOptions),
		log:    deps.Logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Get("/api/health", s.handleHealth)

	s.router.Group(func(r chi.Router) {
		r.Use(s.identity)
		r.Get("/api/conversation", s.handleConversation)
		r.Delete("/api/conversation", s.handleEndConversation)
		r.Post("/api/conversation/messages", s.handleSubmit)
		r.Post("/api/conversation/clarification", s.handleSelectClarification)
		r.Delete("/api/conversation/clarification", s.handleCancelClarification)
		r.Post("/api/conversation/reset", s.handleReset)
		r.Put("/api/conversation/debug", s.handleDebug)
		r.Put("/api/conversation/preview", s.handleSelectCitation)
		r.Delete("/api/conversation/preview", s.handleClosePreview)

		r.Post("/api/ingestion/jobs", s.handleStartSync)
		r.Get("/api/ingestion/jobs", s.handleRecentJobs)
		r.Get("/api/ingestion/jobs/{jobID}", s.handleJob)
		r.Get("/api/ingestion/jobs/{jobID}/watch", s.handleWatchJob)

		r.Get("/api/diagnostics/overview", s.handleOverview)
	})
	s.router.Get("/api/diagnostics/health", s.handleBackendHealth)
}

func (s *Server) Router() http.Handler { return s.router }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
}

// client returns a backend client bound to the caller's tenant.
func (s *Server) client(id conversation.Identity) *backend.Client {
	return backend.NewClient(s.deps.Transport, id.TenantID,
		backend.WithTopK(s.deps.Config.TopK),
		backend.WithEmitter(s.deps.Events),
	)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, types.ErrorResponse{Error: msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// fail maps an operation error to a status and a message that is safe to
// show. Backend failures never expose raw backend text.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code, msg := http.StatusInternalServerError, interpret.MsgGeneric
	var (
		terr *backend.TransportError
		verr *backend.ValidationError
		vals validator.ValidationErrors
	)
	switch {
	case errors.Is(err, conversation.ErrEmptyQuery),
		errors.Is(err, conversation.ErrUnknownOption),
		errors.Is(err, ingestion.ErrNoSourceTypes),
		errors.Is(err, ingestion.ErrUnknownSourceType):
		code, msg = http.StatusBadRequest, err.Error()
	case errors.As(err, &vals):
		code, msg = http.StatusBadRequest, "invalid request"
	case errors.Is(err, conversation.ErrBusy),
		errors.Is(err, conversation.ErrNoPendingClarification):
		code, msg = http.StatusConflict, err.Error()
	case errors.Is(err, conversation.ErrNoSuchCitation):
		code, msg = http.StatusNotFound, err.Error()
	case errors.As(err, &terr), errors.As(err, &verr):
		code, msg = http.StatusBadGateway, interpret.FriendlyMessage(err)
	}
	if code >= http.StatusInternalServerError {
		details := map[string]interface{}{
			"path":       r.URL.Path,
			"request_id": middleware.GetReqID(r.Context()),
			"error":      err.Error(),
		}
		if verr != nil {
			details["error"] = err
			s.log.Error("server", "backend contract violation", details)
		} else {
			s.log.Warn("server", "request failed", details)
		}
	}
	s.writeError(w, code, msg)
}
