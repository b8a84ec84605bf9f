// Package telemetry carries the console's named UI events to whatever sinks
// are configured. Emitting never blocks the caller and never fails.
package telemetry

import (
	"context"
	"sync"
	"time"

	"ragconsole/internal/logger"
)

type Event string

const (
	QuerySubmitted   Event = "query_submitted"
	QuerySuccess     Event = "query_success"
	QueryRefusal     Event = "query_refusal"
	QueryError       Event = "query_error"
	IngestionStarted Event = "ingestion_started"
	IngestionStatus  Event = "ingestion_status"
	HealthLoaded     Event = "health_loaded"
)

// Record is one emitted event as it is persisted.
type Record struct {
	Event   Event                  `json:"event"`
	Payload map[string]interface{} `json:"payload"`
	At      time.Time              `json:"ts"`
}

type Emitter interface {
	Emit(event Event, payload map[string]interface{})
}

type EmitterFunc func(event Event, payload map[string]interface{})

func (f EmitterFunc) Emit(event Event, payload map[string]interface{}) { f(event, payload) }

// Nop drops everything.
var Nop Emitter = EmitterFunc(func(Event, map[string]interface{}) {})

type fanout []Emitter

func (f fanout) Emit(event Event, payload map[string]interface{}) {
	for _, e := range f {
		e.Emit(event, payload)
	}
}

// Fanout sends each event to every non-nil emitter in order.
func Fanout(emitters ...Emitter) Emitter {
	out := make(fanout, 0, len(emitters))
	for _, e := range emitters {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

// LogEmitter writes events as structured log lines under the "telemetry" module.
type LogEmitter struct {
	log logger.ILogger
}

func NewLogEmitter(log logger.ILogger) *LogEmitter {
	return &LogEmitter{log: log}
}

func (e *LogEmitter) Emit(event Event, payload map[string]interface{}) {
	details := make(map[string]interface{}, len(payload)+1)
	for k, v := range payload {
		details[k] = v
	}
	details["event"] = string(event)
	e.log.Info("telemetry", string(event), details)
}

// EventWriter persists records; implemented by store.EventStore.
type EventWriter interface {
	SaveEvent(ctx context.Context, rec Record) error
}

// StoreEmitter persists events in the background. Write failures are logged
// and otherwise ignored. Events emitted after Close are dropped.
type StoreEmitter struct {
	writer  EventWriter
	log     logger.ILogger
	timeout time.Duration
	now     func() time.Time

	mu      sync.Mutex
	closed  bool
	pending sync.WaitGroup
}

func NewStoreEmitter(writer EventWriter, log logger.ILogger) *StoreEmitter {
	return &StoreEmitter{writer: writer, log: log, timeout: 5 * time.Second, now: time.Now}
}

func (e *StoreEmitter) Emit(event Event, payload map[string]interface{}) {
	rec := Record{Event: event, Payload: copyPayload(payload), At: e.now().UTC()}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.pending.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		defer cancel()
		if err := e.writer.SaveEvent(ctx, rec); err != nil {
			e.log.Warn("telemetry", "event persist failed", map[string]interface{}{
				"event": string(event),
				"error": err.Error(),
			})
		}
	}()
}

// Close stops accepting events and waits for in-flight writes, or until ctx
// is done. The writer must stay usable until Close returns.
func (e *StoreEmitter) Close(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func copyPayload(p map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
