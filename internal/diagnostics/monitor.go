// Package diagnostics keeps track of backend health and assembles the
// diagnostics overview page.
package diagnostics

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"ragconsole/internal/backend"
	"ragconsole/internal/interpret"
	"ragconsole/internal/logger"
	"ragconsole/internal/poll"
	"ragconsole/internal/telemetry"
)

const (
	DefaultInterval = 30 * time.Second
	overviewJobs    = 10
	overviewErrors  = 10
)

type HealthAPI interface {
	Health(ctx context.Context) (backend.Health, error)
}

type JobsAPI interface {
	RecentJobs(ctx context.Context, limit int) (backend.JobList, error)
}

// EventReader returns the most recent persisted failure events.
type EventReader interface {
	RecentEvents(ctx context.Context, events []telemetry.Event, limit int) ([]telemetry.Record, error)
}

// Status is the result of one health check. Error holds a user-facing
// message, never raw backend text.
type Status struct {
	Healthy   bool            `json:"healthy"`
	Health    *backend.Health `json:"health,omitempty"`
	Error     string          `json:"error,omitempty"`
	CheckedAt time.Time       `json:"checkedAt"`
}

type Overview struct {
	Health       Status             `json:"health"`
	Jobs         []backend.Job      `json:"jobs"`
	LatestErrors []telemetry.Record `json:"latestErrors"`
}

type Monitor struct {
	api      HealthAPI
	interval time.Duration
	log      logger.ILogger
	now      func() time.Time

	mu     sync.RWMutex
	latest Status
}

func NewMonitor(api HealthAPI, interval time.Duration, log logger.ILogger) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Monitor{api: api, interval: interval, log: log, now: time.Now}
}

// Run checks health immediately and then every interval until ctx ends.
func (m *Monitor) Run(ctx context.Context) {
	m.log.Info("diagnostics", "health monitor started", map[string]interface{}{"interval": m.interval.String()})
	poll.Every(ctx, m.interval, func(c context.Context) { m.Check(c) })
}

// Check runs one health call and records it as the latest status, unless ctx
// ended before the call returned.
func (m *Monitor) Check(ctx context.Context) Status {
	h, err := m.api.Health(ctx)
	st := Status{CheckedAt: m.now().UTC()}
	if err != nil {
		st.Error = interpret.FriendlyMessage(err)
		if ctx.Err() != nil {
			// the caller gave up; that says nothing about the backend
			return st
		}
		m.log.Warn("diagnostics", "health check failed", map[string]interface{}{"error": err.Error()})
	} else {
		st.Healthy = true
		st.Health = &h
	}
	m.mu.Lock()
	m.latest = st
	m.mu.Unlock()
	return st
}

// Latest returns the last recorded check; CheckedAt is zero before the first.
func (m *Monitor) Latest() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest
}

// Overview runs a fresh health check alongside the recent jobs and error
// events. Only a jobs failure fails the whole overview; events is optional.
func (m *Monitor) Overview(ctx context.Context, jobs JobsAPI, events EventReader) (Overview, error) {
	var out Overview
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out.Health = m.Check(gctx)
		return nil
	})
	g.Go(func() error {
		list, err := jobs.RecentJobs(gctx, overviewJobs)
		if err != nil {
			return err
		}
		out.Jobs = list.Jobs
		return nil
	})
	g.Go(func() error {
		out.LatestErrors = []telemetry.Record{}
		if events == nil {
			return nil
		}
		recs, err := events.RecentEvents(gctx, []telemetry.Event{telemetry.QueryError, telemetry.QueryRefusal}, overviewErrors)
		if err != nil {
			m.log.Warn("diagnostics", "loading recent error events failed", map[string]interface{}{"error": err.Error()})
			return nil
		}
		out.LatestErrors = recs
		return nil
	})
	if err := g.Wait(); err != nil {
		return Overview{}, err
	}
	return out, nil
}
