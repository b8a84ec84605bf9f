package interpret

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragconsole/internal/backend"
)

const refusalJSON = `{"error":{"code":"ONLY_SOURCES_VIOLATION","message":"Use only provided sources","correlation_id":"corr-1","retryable":false,"timestamp":"2024-01-01T00:00:00Z"}}`

func envelopeErr(status int, code, msg string) error {
	body := fmt.Sprintf(`{"error":{"code":%q,"message":%q,"correlation_id":"corr-x","retryable":false,"timestamp":"2024-01-01T00:00:00Z"}}`, code, msg)
	return &backend.TransportError{
		Method: http.MethodPost, Path: "/v1/query", Status: status, Message: msg,
		Payload: backend.Payload{Raw: json.RawMessage(body)},
	}
}

func TestPassNeverRefuses(t *testing.T) {
	for _, answer := range []string{"Plain answer", refusalJSON, "{not json"} {
		out := Classify(backend.QueryResponse{Answer: answer, OnlySourcesVerdict: backend.VerdictPass, CorrelationID: "c"}, nil)
		assert.Equal(t, KindAnswer, out.Kind, answer)
		assert.Empty(t, out.Message)
		require.NotNil(t, out.Response)
	}
}

func TestEmbeddedRefusal(t *testing.T) {
	out := Classify(backend.QueryResponse{Answer: refusalJSON, OnlySourcesVerdict: backend.VerdictFail, CorrelationID: "c"}, nil)

	assert.Equal(t, KindEmbeddedRefusal, out.Kind)
	assert.Equal(t, "Use only provided sources", out.Message)
	assert.Equal(t, "corr-1", out.CorrelationID)
	assert.Equal(t, "Refusal: Use only provided sources", out.DisplayText())
	require.NotNil(t, out.Response)
}

func TestFailVerdictWithoutEnvelopeIsAnswer(t *testing.T) {
	tests := []string{
		"Sources do not cover this.",
		`{"error":{"code":"ONLY_SOURCES_VIOLATION"`,
		`{"error":{"code":"INTERNAL","message":"m","correlation_id":"c","retryable":false,"timestamp":"t"}}`,
		`[1,2,3]`,
	}
	for _, answer := range tests {
		assert.NotPanics(t, func() {
			out := Classify(backend.QueryResponse{Answer: answer, OnlySourcesVerdict: backend.VerdictFail}, nil)
			assert.Equal(t, KindAnswer, out.Kind, answer)
		})
	}
}

func TestHTTPRefusal(t *testing.T) {
	out := Classify(backend.QueryResponse{}, envelopeErr(http.StatusConflict, "ONLY_SOURCES_VIOLATION", "Policy blocked"))

	assert.Equal(t, KindHTTPRefusal, out.Kind)
	assert.Equal(t, "Refusal: Policy blocked", out.DisplayText())
	assert.Equal(t, "corr-x", out.CorrelationID)
}

func TestGenericDecisionTable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"context window", envelopeErr(http.StatusBadRequest, "CONTEXT_WINDOW_EXCEEDED", "prompt too long: 70123 tokens"), MsgContextWindow},
		{"rate limit code", envelopeErr(http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "quota"), MsgRateLimited},
		{"plain 503", &backend.TransportError{Status: http.StatusServiceUnavailable, Message: backend.MessageRequestFailed, Payload: backend.Payload{Text: "upstream unavailable"}}, MsgConnectivity},
		{"network", &backend.TransportError{Message: backend.MessageRequestFailed, Err: errors.New("dial tcp: connection refused")}, MsgConnectivity},
		{"deadline", &backend.TransportError{Message: backend.MessageRequestFailed, Err: context.DeadlineExceeded}, MsgTimeout},
		{"contract", &backend.ValidationError{Schema: "QueryResponse", Field: "answer", Reason: "required"}, MsgContract},
		{"internal", envelopeErr(http.StatusInternalServerError, "INTERNAL", "Traceback (most recent call last)"), MsgGeneric},
		{"malformed refusal", &backend.TransportError{Status: http.StatusConflict, Payload: backend.Payload{Raw: json.RawMessage(`{"error":"ONLY_SOURCES_VIOLATION"}`)}}, MsgGeneric},
		{"unknown", errors.New("boom"), MsgGeneric},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Classify(backend.QueryResponse{}, tt.err)
			assert.Equal(t, KindGenericError, out.Kind)
			assert.Equal(t, tt.want, out.Message)
			assert.Equal(t, tt.want, out.DisplayText())
			assert.ErrorIs(t, out.Err, tt.err)
		})
	}
}

func TestPlainTextFailureKeepsPayload(t *testing.T) {
	terr := &backend.TransportError{Status: http.StatusServiceUnavailable, Message: backend.MessageRequestFailed, Payload: backend.Payload{Text: "upstream unavailable"}}

	out := Classify(backend.QueryResponse{}, terr)

	var got *backend.TransportError
	require.ErrorAs(t, out.Err, &got)
	assert.Equal(t, "upstream unavailable", got.Payload.Text)
	assert.Equal(t, backend.MessageRequestFailed, got.Message)
	assert.Equal(t, http.StatusServiceUnavailable, got.Status)
	assert.NotContains(t, out.DisplayText(), "upstream unavailable")
}
