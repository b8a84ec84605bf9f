// Package interpret turns the result of a backend query into one outcome the
// conversation can render: an answer, a policy refusal, or a failure with a
// fixed user-facing message.
package interpret

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"ragconsole/internal/backend"
)

type Kind int

const (
	KindAnswer Kind = iota
	KindEmbeddedRefusal
	KindHTTPRefusal
	KindGenericError
)

func (k Kind) String() string {
	switch k {
	case KindAnswer:
		return "answer"
	case KindEmbeddedRefusal:
		return "embedded_refusal"
	case KindHTTPRefusal:
		return "http_refusal"
	case KindGenericError:
		return "generic_error"
	}
	return "unknown"
}

// User-facing messages for the generic branch. Backend text never reaches the
// user through here.
const (
	MsgContextWindow = "The question and retrieved context are too large for the model. Try a narrower question."
	MsgRateLimited   = "Too many requests right now. Please wait a moment and try again."
	MsgTimeout       = "The backend took too long to answer. Please try again."
	MsgConnectivity  = "Cannot reach the RAG backend. Check your connection and try again."
	MsgContract      = "The backend returned an unexpected response. The incident has been logged."
	MsgGeneric       = "Something went wrong while answering. Please try again."
)

const (
	codeContextWindow = "CONTEXT_WINDOW_EXCEEDED"
	codeRateLimit     = "RATE_LIMIT_EXCEEDED"
)

type Outcome struct {
	Kind Kind
	// Response is set for KindAnswer and KindEmbeddedRefusal.
	Response *backend.QueryResponse
	// Message is the refusal text for refusals and the friendly text for
	// generic errors.
	Message       string
	CorrelationID string
	Err           error
}

func (o Outcome) IsRefusal() bool {
	return o.Kind == KindEmbeddedRefusal || o.Kind == KindHTTPRefusal
}

// DisplayText is what the conversation shows for non-answer outcomes.
func (o Outcome) DisplayText() string {
	if o.IsRefusal() {
		return RefusalText(o.Message)
	}
	return o.Message
}

func RefusalText(msg string) string {
	return "Refusal: " + msg
}

// Classify never panics and never returns raw backend error text for the
// generic branch.
func Classify(resp backend.QueryResponse, err error) Outcome {
	if err != nil {
		return classifyError(err)
	}
	if resp.OnlySourcesVerdict == backend.VerdictFail {
		if env, ok := EmbeddedRefusal(resp.Answer); ok {
			r := resp
			return Outcome{
				Kind:          KindEmbeddedRefusal,
				Response:      &r,
				Message:       env.Error.Message,
				CorrelationID: env.Error.CorrelationID,
			}
		}
	}
	r := resp
	return Outcome{Kind: KindAnswer, Response: &r, CorrelationID: resp.CorrelationID}
}

// EmbeddedRefusal reports whether answer is itself a refusal envelope
// serialized as a JSON string.
func EmbeddedRefusal(answer string) (backend.ErrorEnvelope, bool) {
	s := strings.TrimSpace(answer)
	if !strings.HasPrefix(s, "{") || !json.Valid([]byte(s)) {
		return backend.ErrorEnvelope{}, false
	}
	env, err := backend.ValidateRefusal(json.RawMessage(s))
	return env, err == nil
}

func classifyError(err error) Outcome {
	var terr *backend.TransportError
	if errors.As(err, &terr) && terr.Payload.IsJSON() {
		if env, verr := backend.ValidateRefusal(terr.Payload.Raw); verr == nil {
			return Outcome{
				Kind:          KindHTTPRefusal,
				Message:       env.Error.Message,
				CorrelationID: env.Error.CorrelationID,
				Err:           err,
			}
		}
	}
	out := Outcome{Kind: KindGenericError, Message: FriendlyMessage(err), Err: err}
	if terr != nil {
		if env, ok := terr.Envelope(); ok {
			out.CorrelationID = env.Error.CorrelationID
		}
	}
	return out
}

// FriendlyMessage picks the fixed user-facing text for a failure.
func FriendlyMessage(err error) string {
	var verr *backend.ValidationError
	if errors.As(err, &verr) {
		return MsgContract
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return MsgTimeout
	}
	var terr *backend.TransportError
	if !errors.As(err, &terr) {
		return MsgGeneric
	}
	if env, ok := terr.Envelope(); ok {
		switch env.Error.Code {
		case codeContextWindow:
			return MsgContextWindow
		case codeRateLimit:
			return MsgRateLimited
		}
	}
	switch terr.Status {
	case 0, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return MsgConnectivity
	case http.StatusTooManyRequests:
		return MsgRateLimited
	case http.StatusRequestEntityTooLarge:
		return MsgContextWindow
	}
	return MsgGeneric
}
