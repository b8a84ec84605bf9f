package conversation

import (
	"errors"

	"ragconsole/internal/access"
	"ragconsole/internal/backend"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleError     Role = "error"
)

// Message is immutable once appended to the log.
type Message struct {
	ID        string                 `json:"id"`
	Role      Role                   `json:"role"`
	Text      string                 `json:"text,omitempty"`
	Assistant *AssistantPayload      `json:"assistant,omitempty"`
	Raw       *backend.QueryResponse `json:"raw,omitempty"`
}

type TraceStep struct {
	Stage     string  `json:"stage"`
	LatencyMS float64 `json:"latencyMs"`
}

type Debug struct {
	InterpretedQuery   string      `json:"interpretedQuery"`
	DynamicTopK        int         `json:"dynamicTopK"`
	ChunksUsed         int         `json:"chunksUsed"`
	CoverageRatio      float64     `json:"coverageRatio"`
	ModelContextWindow int         `json:"modelContextWindow"`
	Confidence         float64     `json:"confidence"`
	AgentTrace         []TraceStep `json:"agentTrace"`
}

type AssistantPayload struct {
	Summary string             `json:"summary"`
	Details string             `json:"details"`
	Sources []backend.Citation `json:"sources"`
	Debug   *Debug             `json:"debug,omitempty"`
}

type State string

const (
	StateIdle                  State = "idle"
	StateAwaitingClarification State = "awaiting_clarification"
	StateSubmitting            State = "submitting"
	StateDisplayed             State = "displayed"
	StateErrored               State = "errored"
)

// Identity is the already-resolved caller context a session runs under.
type Identity struct {
	TenantID string
	UserID   string
	Roles    []access.Role
	UIMode   access.UIMode
}

// Snapshot is a copy of the session state; mutating it has no effect on the
// session.
type Snapshot struct {
	State            State             `json:"state"`
	Messages         []Message         `json:"messages"`
	Options          []string          `json:"options"`
	Depth            int               `json:"depth"`
	SelectedCitation *int              `json:"selectedCitation,omitempty"`
	Preview          *backend.Citation `json:"preview,omitempty"`
	DebugEnabled     bool              `json:"debugEnabled"`
	CanShowDebug     bool              `json:"canShowDebug"`
}

// ShowDebug is true only when the role/mode gate and the user toggle agree.
func (s Snapshot) ShowDebug() bool {
	return s.CanShowDebug && s.DebugEnabled
}

var (
	ErrEmptyQuery             = errors.New("query is empty")
	ErrBusy                   = errors.New("a query is already in flight")
	ErrNoPendingClarification = errors.New("no clarification is pending")
	ErrUnknownOption          = errors.New("option is not one of the pending choices")
	ErrNoSuchCitation         = errors.New("no such citation in the latest answer")
)
