package server

import (
	"context"
	"net/http"

	"ragconsole/internal/conversation"
	"ragconsole/internal/types"
)

// session returns the caller's conversation, creating it on first use.
func (s *Server) session(w http.ResponseWriter, r *http.Request) *conversation.Session {
	sid := getOrCreateSessionID(w, r)
	id := identityFrom(r.Context())
	return s.deps.Sessions.GetOrCreate(sid, id.TenantID, func() *conversation.Session {
		s.log.Info("server", "conversation started", map[string]interface{}{
			"tenant_id": id.TenantID,
			"user_id":   id.UserID,
		})
		return conversation.NewSession(id, s.client(id),
			conversation.WithEngine(s.engine),
			conversation.WithDepthBound(s.deps.Profile.Clarification.DepthBound),
			conversation.WithEmitter(s.deps.Events),
			conversation.WithLogger(s.log),
		)
	})
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, snap conversation.Snapshot, err error) {
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap.ForView())
}

// GET /api/conversation
func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, s.session(w, r).Snapshot(), nil)
}

// DELETE /api/conversation
// Drops the session and its cookie; the next request starts a new one.
func (s *Server) handleEndConversation(w http.ResponseWriter, r *http.Request) {
	if sid := sessionID(r); sid != "" {
		s.deps.Sessions.Delete(sid, identityFrom(r.Context()).TenantID)
	}
	ClearSessionCookie(w, r)
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/conversation/messages {query}
// The backend call outlives a dropped client connection so the answer still
// lands in the log.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req types.SubmitRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	sess := s.session(w, r)
	snap, err := sess.Submit(context.WithoutCancel(r.Context()), req.Query)
	s.respond(w, r, snap, err)
}

// POST /api/conversation/clarification {option}
func (s *Server) handleSelectClarification(w http.ResponseWriter, r *http.Request) {
	var req types.ClarificationRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	snap, err := s.session(w, r).SelectClarification(context.WithoutCancel(r.Context()), req.Option)
	s.respond(w, r, snap, err)
}

// DELETE /api/conversation/clarification
func (s *Server) handleCancelClarification(w http.ResponseWriter, r *http.Request) {
	snap, err := s.session(w, r).CancelClarification()
	s.respond(w, r, snap, err)
}

// POST /api/conversation/reset
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, s.session(w, r).Reset(), nil)
}

// PUT /api/conversation/debug {enabled}
func (s *Server) handleDebug(w http.ResponseWriter, r *http.Request) {
	var req types.DebugRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	s.respond(w, r, s.session(w, r).SetDebug(req.Enabled), nil)
}

// PUT /api/conversation/preview {index}
func (s *Server) handleSelectCitation(w http.ResponseWriter, r *http.Request) {
	var req types.PreviewRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	snap, err := s.session(w, r).SelectCitation(req.Index)
	s.respond(w, r, snap, err)
}

// DELETE /api/conversation/preview
func (s *Server) handleClosePreview(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, s.session(w, r).ClosePreview(), nil)
}
