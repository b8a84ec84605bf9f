package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragconsole/internal/backend"
	"ragconsole/internal/config"
	"ragconsole/internal/conversation"
	"ragconsole/internal/ingestion"
	"ragconsole/internal/types"
)

type fakeBackend struct {
	queries  int32
	jobPolls int32
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/v1/query":
		atomic.AddInt32(&f.queries, 1)
		var req backend.QueryRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if strings.Contains(req.Query, "forbidden") {
			w.WriteHeader(http.StatusConflict)
			_, _ = io.WriteString(w, `{"error":{"code":"ONLY_SOURCES_VIOLATION","message":"Policy blocked","correlation_id":"c-r","retryable":false,"timestamp":"2024-01-01T00:00:00Z"}}`)
			return
		}
		if strings.Contains(req.Query, "outage") {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = io.WriteString(w, "upstream unavailable")
			return
		}
		_, _ = io.WriteString(w, `{"answer":"Answer line\nMore","only_sources_verdict":"PASS","correlation_id":"c-1",
			"citations":[{"chunk_id":"k1","document_id":"d1","title":"Policy","url":"https://wiki/p","snippet":"..."}],
			"timings_ms":{"t_total_ms":42}}`)
	case r.URL.Path == "/v1/ingest/sources/sync":
		_, _ = io.WriteString(w, `{"job_id":"job-1","job_status":"queued"}`)
	case r.URL.Path == "/v1/jobs/recent":
		_, _ = io.WriteString(w, `{"jobs":[{"job_id":"job-1","tenant_id":"tenant-a","job_type":"sync","job_status":"done","requested_by":"u","started_at":"s"}]}`)
	case strings.HasPrefix(r.URL.Path, "/v1/jobs/"):
		status := "processing"
		if atomic.AddInt32(&f.jobPolls, 1) >= 3 {
			status = "done"
		}
		_, _ = io.WriteString(w, `{"job_id":"job-1","tenant_id":"tenant-a","job_type":"sync","job_status":"`+status+`","requested_by":"u","started_at":"s"}`)
	case r.URL.Path == "/v1/health":
		_, _ = io.WriteString(w, `{"status":"ok","service":"rag-api","version":"3.1"}`)
	default:
		http.NotFound(w, r)
	}
}

func newTestServer(t *testing.T) (*httptest.Server, *fakeBackend) {
	t.Helper()
	return newTestServerWithProfile(t, config.DefaultProfile())
}

func newTestServerWithProfile(t *testing.T, profile config.Profile) (*httptest.Server, *fakeBackend) {
	t.Helper()
	fb := &fakeBackend{}
	upstream := httptest.NewServer(fb)
	t.Cleanup(upstream.Close)

	tracker, err := ingestion.NewTracker(16)
	require.NoError(t, err)
	srv := NewServer(Deps{
		Config: config.Config{
			AllowedOrigin:   "*",
			TopK:            10,
			UIMode:          "prod",
			DefaultRoles:    []string{"viewer"},
			SessionTTL:      time.Minute,
			JobPollEvery:    time.Millisecond,
			HealthPollEvery: time.Hour,
		},
		Profile:   profile,
		Transport: backend.NewTransport(upstream.URL, upstream.Client()),
		Tracker:   tracker,
	})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, fb
}

type caller struct {
	t      *testing.T
	base   string
	tenant string
	roles  string
	sid    string
}

func (c *caller) do(method, path, body string) (*http.Response, []byte) {
	c.t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, c.base+path, rdr)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	if c.tenant != "" {
		req.Header.Set("X-Tenant-Id", c.tenant)
	}
	if c.roles != "" {
		req.Header.Set("X-User-Roles", c.roles)
	}
	if c.sid != "" {
		req.Header.Set("X-Session-Id", c.sid)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	if sid := resp.Header.Get("X-Session-Id"); sid != "" {
		c.sid = sid
	}
	return resp, b
}

func (c *caller) snapshot(method, path, body string, wantCode int) conversation.Snapshot {
	c.t.Helper()
	resp, b := c.do(method, path, body)
	require.Equal(c.t, wantCode, resp.StatusCode, string(b))
	var snap conversation.Snapshot
	require.NoError(c.t, json.Unmarshal(b, &snap))
	return snap
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t)
	c := &caller{t: t, base: ts.URL}

	resp, body := c.do(http.MethodGet, "/api/health", "")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"status":"ok"`)
}

func TestConversationRequiresTenant(t *testing.T) {
	ts, _ := newTestServer(t)
	c := &caller{t: t, base: ts.URL}

	resp, body := c.do(http.MethodGet, "/api/conversation", "")

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.JSONEq(t, `{"error":"tenant is required"}`, string(body))
}

func TestClarificationFlow(t *testing.T) {
	ts, fb := newTestServer(t)
	c := &caller{t: t, base: ts.URL, tenant: "tenant-a"}

	snap := c.snapshot(http.MethodPost, "/api/conversation/messages", `{"query":"vacation/sick leave"}`, http.StatusOK)
	assert.Equal(t, conversation.StateAwaitingClarification, snap.State)
	assert.Equal(t, []string{"vacation", "sick leave"}, snap.Options)
	assert.Zero(t, atomic.LoadInt32(&fb.queries))
	require.NotEmpty(t, c.sid)

	resp, _ := c.do(http.MethodPost, "/api/conversation/clarification", `{"option":"holiday"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	snap = c.snapshot(http.MethodPost, "/api/conversation/clarification", `{"option":"vacation"}`, http.StatusOK)
	assert.Equal(t, conversation.StateDisplayed, snap.State)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fb.queries))
	require.Len(t, snap.Messages, 3)
	last := snap.Messages[2]
	require.NotNil(t, last.Assistant)
	assert.Equal(t, "Answer line", last.Assistant.Summary)
	assert.Nil(t, last.Assistant.Debug)

	resp, _ = c.do(http.MethodDelete, "/api/conversation/clarification", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	snap = c.snapshot(http.MethodPut, "/api/conversation/preview", `{"index":0}`, http.StatusOK)
	require.NotNil(t, snap.Preview)
	assert.Equal(t, "k1", snap.Preview.ChunkID)
	resp, _ = c.do(http.MethodPut, "/api/conversation/preview", `{"index":4}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	snap = c.snapshot(http.MethodPost, "/api/conversation/reset", "", http.StatusOK)
	assert.Empty(t, snap.Messages)
	assert.Equal(t, conversation.StateIdle, snap.State)
}

func TestSessionsAreIsolated(t *testing.T) {
	ts, _ := newTestServer(t)
	a := &caller{t: t, base: ts.URL, tenant: "tenant-a"}
	b := &caller{t: t, base: ts.URL, tenant: "tenant-a"}

	a.snapshot(http.MethodPost, "/api/conversation/messages", `{"query":"what is rag?"}`, http.StatusOK)
	snap := b.snapshot(http.MethodGet, "/api/conversation", "", http.StatusOK)

	assert.NotEqual(t, a.sid, b.sid)
	assert.Empty(t, snap.Messages)
}

func TestEndConversationDropsSession(t *testing.T) {
	ts, _ := newTestServer(t)
	c := &caller{t: t, base: ts.URL, tenant: "tenant-a"}

	c.snapshot(http.MethodPost, "/api/conversation/messages", `{"query":"what is rag?"}`, http.StatusOK)
	resp, _ := c.do(http.MethodDelete, "/api/conversation", "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	snap := c.snapshot(http.MethodGet, "/api/conversation", "", http.StatusOK)
	assert.Empty(t, snap.Messages)
}

func TestDebugVisibleOnlyWhenAllowedAndEnabled(t *testing.T) {
	ts, _ := newTestServer(t)
	c := &caller{t: t, base: ts.URL, tenant: "tenant-a", roles: "admin"}

	snap := c.snapshot(http.MethodPost, "/api/conversation/messages", `{"query":"what is rag?"}`, http.StatusOK)
	assert.True(t, snap.CanShowDebug)
	assert.Nil(t, snap.Messages[1].Assistant.Debug)

	snap = c.snapshot(http.MethodPut, "/api/conversation/debug", `{"enabled":true}`, http.StatusOK)
	require.NotNil(t, snap.Messages[1].Assistant.Debug)
	assert.Equal(t, 1, snap.Messages[1].Assistant.Debug.ChunksUsed)
	assert.Equal(t, "t_total_ms", snap.Messages[1].Assistant.Debug.AgentTrace[0].Stage)
}

func TestBackendFailuresBecomeMessages(t *testing.T) {
	ts, _ := newTestServer(t)
	c := &caller{t: t, base: ts.URL, tenant: "tenant-a"}

	snap := c.snapshot(http.MethodPost, "/api/conversation/messages", `{"query":"forbidden topic"}`, http.StatusOK)
	assert.Equal(t, conversation.StateErrored, snap.State)
	assert.Equal(t, "Refusal: Policy blocked", snap.Messages[1].Text)

	snap = c.snapshot(http.MethodPost, "/api/conversation/messages", `{"query":"outage please"}`, http.StatusOK)
	assert.Equal(t, conversation.RoleError, snap.Messages[3].Role)
	assert.NotContains(t, snap.Messages[3].Text, "upstream unavailable")
}

func TestSubmitRejectsBadInput(t *testing.T) {
	ts, _ := newTestServer(t)
	c := &caller{t: t, base: ts.URL, tenant: "tenant-a"}

	resp, _ := c.do(http.MethodPost, "/api/conversation/messages", `{"query":"   "}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = c.do(http.MethodPost, "/api/conversation/messages", `{"question":"x"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestIngestionEndpoints(t *testing.T) {
	ts, _ := newTestServer(t)
	c := &caller{t: t, base: ts.URL, tenant: "tenant-a"}

	resp, body := c.do(http.MethodPost, "/api/ingestion/jobs", `{"source_types":["confluence_page"]}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))
	var acc backend.JobAccepted
	require.NoError(t, json.Unmarshal(body, &acc))
	assert.Equal(t, "job-1", acc.JobID)

	resp, _ = c.do(http.MethodPost, "/api/ingestion/jobs", `{"source_types":["SHAREPOINT"]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = c.do(http.MethodGet, "/api/ingestion/jobs", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var jobs types.JobsResponse
	require.NoError(t, json.Unmarshal(body, &jobs))
	assert.Len(t, jobs.Jobs, 1)

	resp, _ = c.do(http.MethodGet, "/api/ingestion/jobs?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = c.do(http.MethodGet, "/api/ingestion/jobs/job-1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"job_status":"done"`)
}

func TestWatchJobStreamsUntilDone(t *testing.T) {
	ts, _ := newTestServer(t)
	c := &caller{t: t, base: ts.URL, tenant: "tenant-a"}

	resp, body := c.do(http.MethodGet, "/api/ingestion/jobs/job-9/watch", "")

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	out := string(body)
	assert.Equal(t, 3, strings.Count(out, "event: status"))
	assert.True(t, strings.HasSuffix(strings.TrimSpace(out), `"started_at":"s"}`))
	assert.Contains(t, out, "event: done")
}

func TestDiagnostics(t *testing.T) {
	ts, _ := newTestServer(t)
	c := &caller{t: t, base: ts.URL, tenant: "tenant-a"}

	resp, body := c.do(http.MethodGet, "/api/diagnostics/health", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"healthy":true`)
	assert.Contains(t, string(body), `"version":"3.1"`)

	resp, body = c.do(http.MethodGet, "/api/diagnostics/overview", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Contains(t, string(body), `"latestErrors":[]`)
}

func TestPartialProfileKeepsOperatorSettings(t *testing.T) {
	var profile config.Profile
	profile.Clarification.Markers = []string{"or"}
	profile.Clarification.DepthBound = 1
	profile.Ingestion.SourceTypes = []string{"CONFLUENCE_PAGE"}
	ts, fb := newTestServerWithProfile(t, profile)
	c := &caller{t: t, base: ts.URL, tenant: "tenant-a"}

	snap := c.snapshot(http.MethodPost, "/api/conversation/messages", `{"query":"vacation or sick leave"}`, http.StatusOK)
	assert.Equal(t, []string{"vacation", "sick leave"}, snap.Options)

	snap = c.snapshot(http.MethodPost, "/api/conversation/messages", `{"query":"leave or travel"}`, http.StatusOK)
	assert.Equal(t, conversation.StateDisplayed, snap.State)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fb.queries))

	resp, _ := c.do(http.MethodPost, "/api/ingestion/jobs", `{"source_types":["FILE_CATALOG_OBJECT"]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
