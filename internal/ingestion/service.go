// Package ingestion starts source syncs on the backend and follows the
// resulting jobs.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ragconsole/internal/backend"
	"ragconsole/internal/logger"
	"ragconsole/internal/poll"
)

const (
	SourceConfluencePage       = "CONFLUENCE_PAGE"
	SourceConfluenceAttachment = "CONFLUENCE_ATTACHMENT"
	SourceFileCatalogObject    = "FILE_CATALOG_OBJECT"

	DefaultRecentLimit  = 20
	DefaultPollInterval = 3 * time.Second
)

var DefaultSourceTypes = []string{SourceConfluencePage, SourceConfluenceAttachment, SourceFileCatalogObject}

var (
	ErrNoSourceTypes     = errors.New("at least one source type is required")
	ErrUnknownSourceType = errors.New("unknown source type")
)

// API is the slice of backend.Client used here.
type API interface {
	TenantID() string
	StartSync(ctx context.Context, sourceTypes []string) (backend.JobAccepted, error)
	Job(ctx context.Context, jobID string) (backend.Job, error)
	RecentJobs(ctx context.Context, limit int) (backend.JobList, error)
}

type Service struct {
	api      API
	tracker  *Tracker
	allowed  map[string]bool
	interval time.Duration
	log      logger.ILogger
}

type Option func(*Service)

func WithTracker(t *Tracker) Option {
	return func(s *Service) { s.tracker = t }
}

// WithSourceTypes restricts which source types may be synced.
func WithSourceTypes(types []string) Option {
	return func(s *Service) {
		if len(types) == 0 {
			return
		}
		s.allowed = make(map[string]bool, len(types))
		for _, t := range types {
			s.allowed[strings.ToUpper(strings.TrimSpace(t))] = true
		}
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithLogger(l logger.ILogger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func NewService(api API, opts ...Option) *Service {
	s := &Service{api: api, interval: DefaultPollInterval, log: logger.NewNop()}
	WithSourceTypes(DefaultSourceTypes)(s)
	for _, o := range opts {
		o(s)
	}
	return s
}

// NormalizeSourceTypes upper-cases, trims and de-duplicates while keeping the
// first-seen order.
func (s *Service) NormalizeSourceTypes(types []string) ([]string, error) {
	seen := make(map[string]bool, len(types))
	out := make([]string, 0, len(types))
	for _, t := range types {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		if !s.allowed[t] {
			return nil, fmt.Errorf("%w %q", ErrUnknownSourceType, t)
		}
		seen[t] = true
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil, ErrNoSourceTypes
	}
	return out, nil
}

func (s *Service) StartSync(ctx context.Context, sourceTypes []string) (backend.JobAccepted, error) {
	types, err := s.NormalizeSourceTypes(sourceTypes)
	if err != nil {
		return backend.JobAccepted{}, err
	}
	acc, err := s.api.StartSync(ctx, types)
	if err != nil {
		return backend.JobAccepted{}, err
	}
	s.log.Info("ingestion", "sync started", map[string]interface{}{
		"tenant_id":    s.api.TenantID(),
		"job_id":       acc.JobID,
		"source_types": types,
	})
	return acc, nil
}

func (s *Service) Status(ctx context.Context, jobID string) (backend.Job, error) {
	if s.tracker != nil {
		if job, ok := s.tracker.Get(s.api.TenantID(), jobID); ok {
			return job, nil
		}
	}
	job, err := s.api.Job(ctx, jobID)
	if err != nil {
		return backend.Job{}, err
	}
	s.remember(job)
	return job, nil
}

func (s *Service) Recent(ctx context.Context, limit int) ([]backend.Job, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	list, err := s.api.RecentJobs(ctx, limit)
	if err != nil {
		return nil, err
	}
	for _, j := range list.Jobs {
		s.remember(j)
	}
	return list.Jobs, nil
}

// Watch polls the job until it reaches a terminal status or ctx ends. Fetch
// failures are reported to onUpdate and polling continues.
func (s *Service) Watch(ctx context.Context, jobID string, onUpdate func(backend.Job, error)) (backend.Job, error) {
	var last backend.Job
	err := poll.Until(ctx, s.interval, func(c context.Context) (backend.Job, error) {
		return s.Status(c, jobID)
	}, func(j backend.Job) bool {
		return j.JobStatus.Terminal()
	}, func(j backend.Job, err error) {
		if err == nil {
			last = j
		} else {
			s.log.Warn("ingestion", "job status poll failed", map[string]interface{}{
				"job_id": jobID,
				"error":  err.Error(),
			})
		}
		if onUpdate != nil {
			onUpdate(j, err)
		}
	})
	return last, err
}

func (s *Service) remember(j backend.Job) {
	if s.tracker != nil {
		s.tracker.Remember(s.api.TenantID(), j)
	}
}
