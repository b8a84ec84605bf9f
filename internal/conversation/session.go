// Package conversation is the console's question/answer loop: it echoes user
// input, asks for clarification when a question is ambiguous, dispatches the
// query and turns the backend outcome into chat messages.
package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"

	"ragconsole/internal/access"
	"ragconsole/internal/backend"
	"ragconsole/internal/clarify"
	"ragconsole/internal/interpret"
	"ragconsole/internal/logger"
	"ragconsole/internal/telemetry"
)

// Querier is the part of backend.Client a session needs.
type Querier interface {
	Query(ctx context.Context, query string) (backend.QueryResponse, error)
}

type Option func(*Session)

func WithEngine(e *clarify.Engine) Option {
	return func(s *Session) {
		if e != nil {
			s.engine = e
		}
	}
}

// WithDepthBound caps consecutive clarification prompts before a query is
// forced through.
func WithDepthBound(n int) Option {
	return func(s *Session) {
		if n >= 0 {
			s.bound = n
		}
	}
}

func WithEmitter(e telemetry.Emitter) Option {
	return func(s *Session) {
		if e != nil {
			s.events = e
		}
	}
}

func WithLogger(l logger.ILogger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

func WithIDFunc(f func() string) Option {
	return func(s *Session) {
		if f != nil {
			s.newID = f
		}
	}
}

// Session holds one conversation. The mutex is never held while the backend
// is being called; results from before the latest Reset are dropped.
type Session struct {
	identity Identity
	querier  Querier
	engine   *clarify.Engine
	bound    int
	events   telemetry.Emitter
	log      logger.ILogger
	newID    func() string

	mu       sync.Mutex
	state    State
	messages []Message
	options  []string
	depth    int
	selected *citationRef
	debug    bool
	epoch    uint64
}

type citationRef struct {
	messageID string
	index     int
}

func NewSession(id Identity, q Querier, opts ...Option) *Session {
	s := &Session{
		identity: id,
		querier:  q,
		engine:   clarify.NewEngine(nil, 0),
		bound:    clarify.DefaultDepthBound,
		events:   telemetry.Nop,
		log:      logger.NewNop(),
		newID:    uuid.NewString,
		state:    StateIdle,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Session) Identity() Identity { return s.identity }

// Submit echoes query into the log and either suspends on a clarification
// prompt or calls the backend and waits for the outcome.
func (s *Session) Submit(ctx context.Context, query string) (Snapshot, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return s.Snapshot(), ErrEmptyQuery
	}
	s.mu.Lock()
	if s.state == StateSubmitting {
		s.mu.Unlock()
		return s.Snapshot(), ErrBusy
	}
	return s.decideLocked(ctx, q)
}

// SelectClarification resubmits one of the pending options verbatim.
func (s *Session) SelectClarification(ctx context.Context, option string) (Snapshot, error) {
	s.mu.Lock()
	if s.state != StateAwaitingClarification {
		s.mu.Unlock()
		return s.Snapshot(), ErrNoPendingClarification
	}
	if !contains(s.options, option) {
		s.mu.Unlock()
		return s.Snapshot(), ErrUnknownOption
	}
	return s.decideLocked(ctx, option)
}

// decideLocked is entered with s.mu held and releases it.
func (s *Session) decideLocked(ctx context.Context, q string) (Snapshot, error) {
	s.appendLocked(Message{ID: s.newID(), Role: RoleUser, Text: q})
	s.options = nil

	if s.depth < s.bound {
		if opts := s.engine.BuildOptions(q); len(opts) >= 2 {
			s.options = opts
			s.depth++
			s.state = StateAwaitingClarification
			snap := s.snapshotLocked()
			s.mu.Unlock()
			s.log.Debug("conversation", "clarification requested", map[string]interface{}{
				"tenant_id": s.identity.TenantID,
				"options":   len(opts),
				"depth":     snap.Depth,
			})
			return snap, nil
		}
	} else {
		s.depth = 0
	}

	s.state = StateSubmitting
	epoch := s.epoch
	s.mu.Unlock()

	resp, err := s.querier.Query(ctx, q)
	return s.resolve(epoch, q, interpret.Classify(resp, err)), nil
}

func (s *Session) resolve(epoch uint64, q string, out interpret.Outcome) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		s.log.Debug("conversation", "stale result dropped", map[string]interface{}{
			"tenant_id":      s.identity.TenantID,
			"correlation_id": out.CorrelationID,
		})
		return s.snapshotLocked()
	}

	switch out.Kind {
	case interpret.KindAnswer:
		payload := Project(q, *out.Response)
		s.appendLocked(Message{ID: s.newID(), Role: RoleAssistant, Text: out.Response.Answer, Assistant: &payload, Raw: out.Response})
		s.state = StateDisplayed
		s.depth = 0
	case interpret.KindEmbeddedRefusal:
		s.appendLocked(Message{ID: s.newID(), Role: RoleAssistant, Text: out.DisplayText(), Raw: out.Response})
		s.state = StateDisplayed
		s.depth = 0
		s.events.Emit(telemetry.QueryRefusal, map[string]interface{}{"correlationId": out.CorrelationID})
	case interpret.KindHTTPRefusal:
		s.appendLocked(Message{ID: s.newID(), Role: RoleError, Text: out.DisplayText()})
		s.state = StateErrored
		s.events.Emit(telemetry.QueryRefusal, map[string]interface{}{"correlationId": out.CorrelationID})
	default:
		s.appendLocked(Message{ID: s.newID(), Role: RoleError, Text: out.DisplayText()})
		s.state = StateErrored
		s.events.Emit(telemetry.QueryError, map[string]interface{}{"message": out.Message})
		s.logFailure(out)
	}
	return s.snapshotLocked()
}

func (s *Session) logFailure(out interpret.Outcome) {
	details := map[string]interface{}{
		"tenant_id":      s.identity.TenantID,
		"correlation_id": out.CorrelationID,
		"error":          out.Err.Error(),
	}
	var verr *backend.ValidationError
	if errors.As(out.Err, &verr) {
		details["error"] = out.Err
		s.log.Error("conversation", "backend broke the response contract", details)
		return
	}
	s.log.Warn("conversation", "query failed", details)
}

// CancelClarification drops the pending prompt without contacting the backend.
func (s *Session) CancelClarification() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAwaitingClarification {
		return s.snapshotLocked(), ErrNoPendingClarification
	}
	s.options = nil
	s.state = StateIdle
	return s.snapshotLocked(), nil
}

// Reset starts a new dialog. A query still in flight will not touch the new
// log. The debug toggle survives.
func (s *Session) Reset() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	s.messages = nil
	s.options = nil
	s.depth = 0
	s.selected = nil
	s.state = StateIdle
	return s.snapshotLocked()
}

// SelectCitation opens the preview for source i of the latest answer that has
// sources.
func (s *Session) SelectCitation(i int) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.latestWithSourcesLocked()
	if m == nil || i < 0 || i >= len(m.Assistant.Sources) {
		return s.snapshotLocked(), ErrNoSuchCitation
	}
	s.selected = &citationRef{messageID: m.ID, index: i}
	return s.snapshotLocked(), nil
}

func (s *Session) ClosePreview() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = nil
	return s.snapshotLocked()
}

func (s *Session) SetDebug(enabled bool) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.debug = enabled
	return s.snapshotLocked()
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) appendLocked(m Message) {
	if m.Role == RoleAssistant {
		s.selected = nil
	}
	s.messages = append(s.messages, m)
}

func (s *Session) latestWithSourcesLocked() *Message {
	for i := len(s.messages) - 1; i >= 0; i-- {
		m := &s.messages[i]
		if m.Role == RoleAssistant && m.Assistant != nil && len(m.Assistant.Sources) > 0 {
			return m
		}
	}
	return nil
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:        s.state,
		Messages:     append([]Message(nil), s.messages...),
		Options:      append([]string(nil), s.options...),
		Depth:        s.depth,
		DebugEnabled: s.debug,
		CanShowDebug: access.CanShowDebug(s.identity.Roles, s.identity.UIMode),
	}
	if s.selected != nil {
		if m := s.latestWithSourcesLocked(); m != nil && m.ID == s.selected.messageID {
			idx := s.selected.index
			c := m.Assistant.Sources[idx]
			snap.SelectedCitation = &idx
			snap.Preview = &c
		}
	}
	return snap
}

// ForView hides the debug block of every answer unless debug output is both
// permitted and switched on.
func (s Snapshot) ForView() Snapshot {
	if s.ShowDebug() {
		return s
	}
	out := s
	out.Messages = make([]Message, len(s.Messages))
	for i, m := range s.Messages {
		if m.Assistant != nil && m.Assistant.Debug != nil {
			p := *m.Assistant
			p.Debug = nil
			m.Assistant = &p
		}
		out.Messages[i] = m
	}
	return out
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
