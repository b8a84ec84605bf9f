package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// MessageRequestFailed is surfaced when a failed response carries no error
// envelope.
const MessageRequestFailed = "Request failed"

// MaxResponseBytes caps how much of a response body is read.
const MaxResponseBytes = 4 << 20

var ErrResponseTooLarge = fmt.Errorf("response body exceeds %d bytes", MaxResponseBytes)

// Payload is a response body as read off the wire. Raw is set when the body
// parsed as JSON, Text when it did not. Both are empty for a blank body.
type Payload struct {
	Raw  json.RawMessage
	Text string
}

func (p Payload) Empty() bool { return len(p.Raw) == 0 && p.Text == "" }

func (p Payload) IsJSON() bool { return len(p.Raw) > 0 }

func (p Payload) String() string {
	if p.IsJSON() {
		return string(p.Raw)
	}
	return p.Text
}

// TransportError is a non-2xx answer, or no answer at all (Status 0).
type TransportError struct {
	Method  string
	Path    string
	Status  int
	Message string
	Payload Payload
	Err     error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %s: %v", e.Method, e.Path, e.Message, e.Err)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Message)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Envelope returns the error envelope carried by the failed response, if any.
func (e *TransportError) Envelope() (ErrorEnvelope, bool) {
	if !e.Payload.IsJSON() {
		return ErrorEnvelope{}, false
	}
	env, err := ValidateErrorEnvelope(e.Payload.Raw)
	return env, err == nil
}

// Transport performs JSON calls against the RAG backend. It does not retry
// and does not cache.
type Transport struct {
	httpClient *http.Client
	baseURL    string
}

func NewTransport(baseURL string, httpClient *http.Client) *Transport {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Transport{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

func (t *Transport) BaseURL() string { return t.baseURL }

func (t *Transport) do(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s body: %w", method, path, err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return t.httpClient.Do(req)
}

// readPayload ignores Content-Type on purpose: backends and proxies label
// bodies inconsistently, so JSON is tried first and text is the fallback.
func readPayload(r io.Reader) (Payload, error) {
	b, err := io.ReadAll(io.LimitReader(r, MaxResponseBytes+1))
	if err != nil {
		return Payload{}, err
	}
	if len(b) > MaxResponseBytes {
		return Payload{}, ErrResponseTooLarge
	}
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return Payload{}, nil
	}
	if json.Valid(b) {
		return Payload{Raw: json.RawMessage(b)}, nil
	}
	return Payload{Text: string(b)}, nil
}

// Send performs one call and validates a 2xx payload with schema. Failed
// responses become *TransportError, contract breaks *ValidationError.
func Send[T any](ctx context.Context, t *Transport, method, path string, body interface{}, schema Schema[T]) (T, error) {
	var zero T
	resp, err := t.do(ctx, method, path, body)
	if err != nil {
		return zero, &TransportError{Method: method, Path: path, Message: MessageRequestFailed, Err: err}
	}
	defer resp.Body.Close()

	payload, err := readPayload(resp.Body)
	if err != nil {
		return zero, &TransportError{Method: method, Path: path, Status: resp.StatusCode, Message: MessageRequestFailed, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		terr := &TransportError{Method: method, Path: path, Status: resp.StatusCode, Message: MessageRequestFailed, Payload: payload}
		if env, ok := terr.Envelope(); ok {
			terr.Message = env.Error.Message
		}
		return zero, terr
	}

	if !payload.IsJSON() {
		reason := "expected JSON body, got empty body"
		if payload.Text != "" {
			reason = "expected JSON body, got text"
		}
		return zero, &ValidationError{Schema: method + " " + path, Reason: reason}
	}
	return schema(payload.Raw)
}
