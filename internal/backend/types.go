package backend

// Wire types of the RAG backend API. They are only produced by the
// validators in schema.go, so callers can rely on required fields being set.

const (
	VerdictPass = "PASS"
	VerdictFail = "FAIL"

	// CodeOnlySourcesViolation marks a policy refusal rather than a failure.
	CodeOnlySourcesViolation = "ONLY_SOURCES_VIOLATION"

	DefaultTopK = 10
	MaxTopK     = 50
)

type QueryRequest struct {
	TenantID  string `json:"tenant_id" validate:"required"`
	Query     string `json:"query" validate:"required"`
	TopK      int    `json:"top_k" validate:"min=1,max=50"`
	Citations bool   `json:"citations"`
}

type ScoreBreakdown struct {
	LexScore    float64            `json:"lex_score"`
	VecScore    float64            `json:"vec_score"`
	RerankScore float64            `json:"rerank_score"`
	Boosts      map[string]float64 `json:"boosts"`
	FinalScore  float64            `json:"final_score"`
}

type Citation struct {
	ChunkID        string          `json:"chunk_id"`
	DocumentID     string          `json:"document_id"`
	Title          string          `json:"title"`
	URL            string          `json:"url"`
	Snippet        string          `json:"snippet"`
	ScoreBreakdown *ScoreBreakdown `json:"score_breakdown,omitempty"`
	FilePath       string          `json:"file_path,omitempty"`
	HeadingsPath   []string        `json:"headings_path,omitempty"`
}

type QueryResponse struct {
	Answer             string             `json:"answer"`
	OnlySourcesVerdict string             `json:"only_sources_verdict"`
	Citations          []Citation         `json:"citations"`
	CorrelationID      string             `json:"correlation_id"`
	TimingsMS          map[string]float64 `json:"timings_ms,omitempty"`
}

type ErrorBody struct {
	Code          string                 `json:"code"`
	Message       string                 `json:"message"`
	Details       map[string]interface{} `json:"details,omitempty"`
	CorrelationID string                 `json:"correlation_id"`
	Retryable     bool                   `json:"retryable"`
	Timestamp     string                 `json:"timestamp"`
}

type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobRetrying   JobStatus = "retrying"
	JobDone       JobStatus = "done"
	JobError      JobStatus = "error"
	JobCanceled   JobStatus = "canceled"
	JobExpired    JobStatus = "expired"
)

var jobStatuses = map[JobStatus]bool{
	JobQueued: true, JobProcessing: true, JobRetrying: true,
	JobDone: true, JobError: true, JobCanceled: true, JobExpired: true,
}

// Terminal reports whether the job will not change status any more.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobDone, JobError, JobCanceled, JobExpired:
		return true
	}
	return false
}

type SyncRequest struct {
	TenantID    string   `json:"tenant_id" validate:"required"`
	SourceTypes []string `json:"source_types" validate:"min=1,dive,required"`
}

type JobAccepted struct {
	JobID     string    `json:"job_id"`
	JobStatus JobStatus `json:"job_status"`
}

type Job struct {
	JobID       string         `json:"job_id"`
	TenantID    string         `json:"tenant_id"`
	JobType     string         `json:"job_type"`
	JobStatus   JobStatus      `json:"job_status"`
	RequestedBy string         `json:"requested_by"`
	StartedAt   string         `json:"started_at"`
	FinishedAt  *string        `json:"finished_at,omitempty"`
	Error       *ErrorEnvelope `json:"error,omitempty"`
}

type JobList struct {
	Jobs []Job `json:"jobs"`
}

type Health struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}
