package backend

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Schema turns a raw JSON payload into a trusted value or a *ValidationError.
type Schema[T any] func(raw json.RawMessage) (T, error)

// ValidationError means the backend answered with a shape that breaks the
// API contract. It is never retried or papered over.
type ValidationError struct {
	Schema string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid %s payload: %s", e.Schema, e.Reason)
	}
	return fmt.Sprintf("invalid %s payload: %s: %s", e.Schema, e.Field, e.Reason)
}

type checker struct {
	schema string
	err    *ValidationError
}

func (c *checker) fail(field, reason string) {
	if c.err == nil {
		c.err = &ValidationError{Schema: c.schema, Field: field, Reason: reason}
	}
}

func (c *checker) require(field string, present bool) {
	if !present {
		c.fail(field, "required")
	}
}

func (c *checker) result() error {
	if c.err == nil {
		return nil
	}
	return c.err
}

func (c *checker) decode(field string, raw json.RawMessage, dst interface{}) bool {
	if c.err != nil {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		var te *json.UnmarshalTypeError
		if errors.As(err, &te) {
			c.fail(join(field, te.Field), fmt.Sprintf("expected %s, got %s", te.Type, te.Value))
		} else {
			c.fail(field, err.Error())
		}
		return false
	}
	return true
}

func join(prefix, field string) string {
	switch {
	case prefix == "":
		return field
	case field == "":
		return prefix
	}
	return prefix + "." + field
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// ---- query ----

type wireScoreBreakdown struct {
	LexScore    *float64            `json:"lex_score"`
	VecScore    *float64            `json:"vec_score"`
	RerankScore *float64            `json:"rerank_score"`
	Boosts      map[string]*float64 `json:"boosts"`
	FinalScore  *float64            `json:"final_score"`
}

type wireCitation struct {
	ChunkID        *string             `json:"chunk_id"`
	DocumentID     *string             `json:"document_id"`
	Title          *string             `json:"title"`
	URL            *string             `json:"url"`
	Snippet        *string             `json:"snippet"`
	ScoreBreakdown *wireScoreBreakdown `json:"score_breakdown"`
	FilePath       *string             `json:"file_path"`
	HeadingsPath   []*string           `json:"headings_path"`
}

type wireQueryResponse struct {
	Answer             *string             `json:"answer"`
	OnlySourcesVerdict *string             `json:"only_sources_verdict"`
	Citations          []*wireCitation     `json:"citations"`
	CorrelationID      *string             `json:"correlation_id"`
	TimingsMS          map[string]*float64 `json:"timings_ms"`
}

// ValidateQueryResponse checks a /v1/query success payload. A missing
// citations list defaults to empty.
func ValidateQueryResponse(raw json.RawMessage) (QueryResponse, error) {
	c := &checker{schema: "QueryResponse"}
	var w wireQueryResponse
	if !c.decode("", raw, &w) {
		return QueryResponse{}, c.result()
	}
	c.require("answer", w.Answer != nil)
	c.require("only_sources_verdict", w.OnlySourcesVerdict != nil)
	c.require("correlation_id", w.CorrelationID != nil)
	if c.err != nil {
		return QueryResponse{}, c.result()
	}
	if v := *w.OnlySourcesVerdict; v != VerdictPass && v != VerdictFail {
		c.fail("only_sources_verdict", fmt.Sprintf("unexpected value %q", v))
	}

	out := QueryResponse{
		Answer:             *w.Answer,
		OnlySourcesVerdict: *w.OnlySourcesVerdict,
		CorrelationID:      *w.CorrelationID,
		Citations:          make([]Citation, 0, len(w.Citations)),
	}
	for i, wc := range w.Citations {
		out.Citations = append(out.Citations, c.citation(fmt.Sprintf("citations.%d", i), wc))
	}
	if w.TimingsMS != nil {
		out.TimingsMS = make(map[string]float64, len(w.TimingsMS))
		for k, v := range w.TimingsMS {
			if v == nil {
				c.fail("timings_ms."+k, "expected number, got null")
				continue
			}
			out.TimingsMS[k] = *v
		}
	}
	if err := c.result(); err != nil {
		return QueryResponse{}, err
	}
	return out, nil
}

func (c *checker) citation(field string, w *wireCitation) Citation {
	if w == nil {
		c.fail(field, "required")
		return Citation{}
	}
	c.require(field+".chunk_id", w.ChunkID != nil)
	c.require(field+".document_id", w.DocumentID != nil)
	c.require(field+".title", w.Title != nil)
	c.require(field+".url", w.URL != nil)
	c.require(field+".snippet", w.Snippet != nil)
	if c.err != nil {
		return Citation{}
	}
	out := Citation{
		ChunkID:    *w.ChunkID,
		DocumentID: *w.DocumentID,
		Title:      *w.Title,
		URL:        *w.URL,
		Snippet:    *w.Snippet,
	}
	if w.FilePath != nil {
		out.FilePath = *w.FilePath
	}
	for i, h := range w.HeadingsPath {
		if h == nil {
			c.fail(fmt.Sprintf("%s.headings_path.%d", field, i), "expected string, got null")
			continue
		}
		out.HeadingsPath = append(out.HeadingsPath, *h)
	}
	if sb := w.ScoreBreakdown; sb != nil {
		f := field + ".score_breakdown"
		c.require(f+".lex_score", sb.LexScore != nil)
		c.require(f+".vec_score", sb.VecScore != nil)
		c.require(f+".rerank_score", sb.RerankScore != nil)
		c.require(f+".boosts", sb.Boosts != nil)
		c.require(f+".final_score", sb.FinalScore != nil)
		if c.err != nil {
			return Citation{}
		}
		boosts := make(map[string]float64, len(sb.Boosts))
		for k, v := range sb.Boosts {
			if v == nil {
				c.fail(f+".boosts."+k, "expected number, got null")
				continue
			}
			boosts[k] = *v
		}
		out.ScoreBreakdown = &ScoreBreakdown{
			LexScore:    *sb.LexScore,
			VecScore:    *sb.VecScore,
			RerankScore: *sb.RerankScore,
			Boosts:      boosts,
			FinalScore:  *sb.FinalScore,
		}
	}
	return out
}

// ---- error envelope ----

type wireErrorBody struct {
	Code          *string                `json:"code"`
	Message       *string                `json:"message"`
	Details       map[string]interface{} `json:"details"`
	CorrelationID *string                `json:"correlation_id"`
	Retryable     *bool                  `json:"retryable"`
	Timestamp     *string                `json:"timestamp"`
}

type wireEnvelope struct {
	Error json.RawMessage `json:"error"`
}

func (c *checker) errorBody(field string, w wireErrorBody) ErrorBody {
	c.require(field+".code", w.Code != nil)
	c.require(field+".message", w.Message != nil)
	c.require(field+".correlation_id", w.CorrelationID != nil)
	c.require(field+".retryable", w.Retryable != nil)
	c.require(field+".timestamp", w.Timestamp != nil)
	if c.err != nil {
		return ErrorBody{}
	}
	return ErrorBody{
		Code:          *w.Code,
		Message:       *w.Message,
		Details:       w.Details,
		CorrelationID: *w.CorrelationID,
		Retryable:     *w.Retryable,
		Timestamp:     *w.Timestamp,
	}
}

func (c *checker) envelope(field string, raw json.RawMessage) ErrorEnvelope {
	var w wireEnvelope
	if !c.decode(field, raw, &w) {
		return ErrorEnvelope{}
	}
	f := join(field, "error")
	if len(w.Error) == 0 || isNull(w.Error) {
		c.fail(f, "required")
		return ErrorEnvelope{}
	}
	var body wireErrorBody
	if !c.decode(f, w.Error, &body) {
		return ErrorEnvelope{}
	}
	return ErrorEnvelope{Error: c.errorBody(f, body)}
}

// ValidateErrorEnvelope accepts any {"error": {...}} body with the required
// fields; unknown keys are ignored.
func ValidateErrorEnvelope(raw json.RawMessage) (ErrorEnvelope, error) {
	c := &checker{schema: "ErrorEnvelope"}
	env := c.envelope("", raw)
	if err := c.result(); err != nil {
		return ErrorEnvelope{}, err
	}
	return env, nil
}

// ValidateRefusal is the strict variant used for policy refusals: the error
// object may not carry unknown keys and its code must be
// ONLY_SOURCES_VIOLATION.
func ValidateRefusal(raw json.RawMessage) (ErrorEnvelope, error) {
	c := &checker{schema: "Refusal"}
	var w wireEnvelope
	if !c.decode("", raw, &w) {
		return ErrorEnvelope{}, c.result()
	}
	if len(w.Error) == 0 || isNull(w.Error) {
		c.fail("error", "required")
		return ErrorEnvelope{}, c.result()
	}
	dec := json.NewDecoder(bytes.NewReader(w.Error))
	dec.DisallowUnknownFields()
	var body wireErrorBody
	if err := dec.Decode(&body); err != nil {
		c.fail("error", err.Error())
		return ErrorEnvelope{}, c.result()
	}
	env := ErrorEnvelope{Error: c.errorBody("error", body)}
	if c.err == nil && env.Error.Code != CodeOnlySourcesViolation {
		c.fail("error.code", fmt.Sprintf("expected %s, got %q", CodeOnlySourcesViolation, env.Error.Code))
	}
	if err := c.result(); err != nil {
		return ErrorEnvelope{}, err
	}
	return env, nil
}

// ---- jobs ----

type wireJobAccepted struct {
	JobID     *string `json:"job_id"`
	JobStatus *string `json:"job_status"`
}

func (c *checker) jobStatus(field string, s *string) JobStatus {
	c.require(field, s != nil)
	if s == nil {
		return ""
	}
	st := JobStatus(*s)
	if !jobStatuses[st] {
		c.fail(field, fmt.Sprintf("unexpected value %q", *s))
	}
	return st
}

func ValidateJobAccepted(raw json.RawMessage) (JobAccepted, error) {
	c := &checker{schema: "JobAccepted"}
	var w wireJobAccepted
	if !c.decode("", raw, &w) {
		return JobAccepted{}, c.result()
	}
	c.require("job_id", w.JobID != nil)
	st := c.jobStatus("job_status", w.JobStatus)
	if err := c.result(); err != nil {
		return JobAccepted{}, err
	}
	return JobAccepted{JobID: *w.JobID, JobStatus: st}, nil
}

type wireJob struct {
	JobID       *string         `json:"job_id"`
	TenantID    *string         `json:"tenant_id"`
	JobType     *string         `json:"job_type"`
	JobStatus   *string         `json:"job_status"`
	RequestedBy *string         `json:"requested_by"`
	StartedAt   *string         `json:"started_at"`
	FinishedAt  *string         `json:"finished_at"`
	Error       json.RawMessage `json:"error"`
}

func (c *checker) job(field string, raw json.RawMessage) Job {
	var w wireJob
	if !c.decode(field, raw, &w) {
		return Job{}
	}
	c.require(join(field, "job_id"), w.JobID != nil)
	c.require(join(field, "tenant_id"), w.TenantID != nil)
	c.require(join(field, "job_type"), w.JobType != nil)
	st := c.jobStatus(join(field, "job_status"), w.JobStatus)
	c.require(join(field, "requested_by"), w.RequestedBy != nil)
	c.require(join(field, "started_at"), w.StartedAt != nil)
	if c.err != nil {
		return Job{}
	}
	out := Job{
		JobID:       *w.JobID,
		TenantID:    *w.TenantID,
		JobType:     *w.JobType,
		JobStatus:   st,
		RequestedBy: *w.RequestedBy,
		StartedAt:   *w.StartedAt,
		FinishedAt:  w.FinishedAt,
	}
	switch {
	case len(w.Error) == 0:
	case isNull(w.Error):
		c.fail(join(field, "error"), "expected object, got null")
	default:
		env := c.envelope(join(field, "error"), w.Error)
		out.Error = &env
	}
	return out
}

func ValidateJob(raw json.RawMessage) (Job, error) {
	c := &checker{schema: "JobStatus"}
	j := c.job("", raw)
	if err := c.result(); err != nil {
		return Job{}, err
	}
	return j, nil
}

func ValidateJobList(raw json.RawMessage) (JobList, error) {
	c := &checker{schema: "JobList"}
	var w struct {
		Jobs *[]json.RawMessage `json:"jobs"`
	}
	if !c.decode("", raw, &w) {
		return JobList{}, c.result()
	}
	c.require("jobs", w.Jobs != nil)
	if c.err != nil {
		return JobList{}, c.result()
	}
	out := JobList{Jobs: make([]Job, 0, len(*w.Jobs))}
	for i, jr := range *w.Jobs {
		out.Jobs = append(out.Jobs, c.job(fmt.Sprintf("jobs.%d", i), jr))
	}
	if err := c.result(); err != nil {
		return JobList{}, err
	}
	return out, nil
}

// ---- health ----

func ValidateHealth(raw json.RawMessage) (Health, error) {
	c := &checker{schema: "Health"}
	var w struct {
		Status  *string `json:"status"`
		Service *string `json:"service"`
		Version *string `json:"version"`
	}
	if !c.decode("", raw, &w) {
		return Health{}, c.result()
	}
	c.require("status", w.Status != nil)
	c.require("service", w.Service != nil)
	c.require("version", w.Version != nil)
	if c.err == nil && *w.Status != "ok" {
		c.fail("status", fmt.Sprintf("expected \"ok\", got %q", *w.Status))
	}
	if err := c.result(); err != nil {
		return Health{}, err
	}
	return Health{Status: *w.Status, Service: *w.Service, Version: *w.Version}, nil
}
