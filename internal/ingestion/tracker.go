package ingestion

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"ragconsole/internal/backend"
)

// Tracker remembers jobs that reached a terminal status so repeated lookups
// do not hit the backend. Non-terminal jobs are never cached.
type Tracker struct {
	jobs *lru.Cache[string, backend.Job]
}

func NewTracker(size int) (*Tracker, error) {
	if size <= 0 {
		size = 512
	}
	cache, err := lru.New[string, backend.Job](size)
	if err != nil {
		return nil, err
	}
	return &Tracker{jobs: cache}, nil
}

func trackerKey(tenantID, jobID string) string {
	return tenantID + "/" + jobID
}

func (t *Tracker) Get(tenantID, jobID string) (backend.Job, bool) {
	return t.jobs.Get(trackerKey(tenantID, jobID))
}

func (t *Tracker) Remember(tenantID string, job backend.Job) {
	if !job.JobStatus.Terminal() {
		return
	}
	t.jobs.Add(trackerKey(tenantID, job.JobID), job)
}

func (t *Tracker) Len() int { return t.jobs.Len() }
