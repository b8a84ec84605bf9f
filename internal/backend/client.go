package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"ragconsole/internal/telemetry"
)

var validate = validator.New()

// Client is the typed RAG backend API, bound to one tenant.
type Client struct {
	transport *Transport
	tenantID  string
	topK      int
	events    telemetry.Emitter
}

type ClientOption func(*Client)

func WithTopK(k int) ClientOption {
	return func(c *Client) {
		if k > 0 {
			c.topK = k
		}
	}
}

func WithEmitter(e telemetry.Emitter) ClientOption {
	return func(c *Client) {
		if e != nil {
			c.events = e
		}
	}
}

func NewClient(t *Transport, tenantID string, opts ...ClientOption) *Client {
	c := &Client{
		transport: t,
		tenantID:  strings.TrimSpace(tenantID),
		topK:      DefaultTopK,
		events:    telemetry.Nop,
	}
	for _, o := range opts {
		o(c)
	}
	if c.topK > MaxTopK {
		c.topK = MaxTopK
	}
	return c
}

func (c *Client) TenantID() string { return c.tenantID }

// Query asks the backend a question. The query is trimmed; an empty query or
// missing tenant is rejected before any network call.
func (c *Client) Query(ctx context.Context, query string) (QueryResponse, error) {
	req := QueryRequest{
		TenantID:  c.tenantID,
		Query:     strings.TrimSpace(query),
		TopK:      c.topK,
		Citations: true,
	}
	if err := validate.Struct(req); err != nil {
		return QueryResponse{}, fmt.Errorf("invalid query request: %w", err)
	}
	c.events.Emit(telemetry.QuerySubmitted, map[string]interface{}{
		"tenantId":    c.tenantID,
		"queryLength": utf8.RuneCountInString(req.Query),
	})
	resp, err := Send(ctx, c.transport, http.MethodPost, "/v1/query", req, ValidateQueryResponse)
	if err != nil {
		return QueryResponse{}, err
	}
	c.events.Emit(telemetry.QuerySuccess, map[string]interface{}{
		"tenantId":  c.tenantID,
		"citations": len(resp.Citations),
	})
	return resp, nil
}

func (c *Client) StartSync(ctx context.Context, sourceTypes []string) (JobAccepted, error) {
	req := SyncRequest{TenantID: c.tenantID, SourceTypes: sourceTypes}
	if err := validate.Struct(req); err != nil {
		return JobAccepted{}, fmt.Errorf("invalid sync request: %w", err)
	}
	resp, err := Send(ctx, c.transport, http.MethodPost, "/v1/ingest/sources/sync", req, ValidateJobAccepted)
	if err != nil {
		return JobAccepted{}, err
	}
	c.events.Emit(telemetry.IngestionStarted, map[string]interface{}{
		"tenantId": c.tenantID,
		"jobId":    resp.JobID,
	})
	return resp, nil
}

func (c *Client) Job(ctx context.Context, jobID string) (Job, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return Job{}, fmt.Errorf("job id is required")
	}
	job, err := Send(ctx, c.transport, http.MethodGet, "/v1/jobs/"+url.PathEscape(jobID), nil, ValidateJob)
	if err != nil {
		return Job{}, err
	}
	c.events.Emit(telemetry.IngestionStatus, map[string]interface{}{
		"jobId":  jobID,
		"status": string(job.JobStatus),
	})
	return job, nil
}

func (c *Client) RecentJobs(ctx context.Context, limit int) (JobList, error) {
	if limit <= 0 {
		limit = 20
	}
	q := url.Values{}
	q.Set("tenant_id", c.tenantID)
	q.Set("limit", strconv.Itoa(limit))
	return Send(ctx, c.transport, http.MethodGet, "/v1/jobs/recent?"+q.Encode(), nil, ValidateJobList)
}

func (c *Client) Health(ctx context.Context) (Health, error) {
	h, err := Send(ctx, c.transport, http.MethodGet, "/v1/health", nil, ValidateHealth)
	if err != nil {
		return Health{}, err
	}
	c.events.Emit(telemetry.HealthLoaded, map[string]interface{}{
		"service": h.Service,
		"version": h.Version,
	})
	return h, nil
}
