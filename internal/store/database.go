package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"ragconsole/internal/db"
	"ragconsole/internal/telemetry"
)

// EventStore persists telemetry events in the console_events table.
type EventStore struct {
	db *db.DB
}

func NewEventStore(database *db.DB) *EventStore {
	return &EventStore{db: database}
}

// SaveEvent inserts one record. The tenant is lifted out of the payload into
// its own column when present.
func (es *EventStore) SaveEvent(ctx context.Context, rec telemetry.Record) error {
	if rec.Event == "" {
		return fmt.Errorf("event name is required")
	}
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode event payload: %w", err)
	}
	var tenant *string
	if t, ok := rec.Payload["tenantId"].(string); ok && t != "" {
		tenant = &t
	}
	at := rec.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	_, err = es.db.ExecContext(ctx, `
		INSERT INTO console_events (event, payload, tenant_id, created_at)
		VALUES ($1, $2, $3, $4)
	`, string(rec.Event), payload, tenant, at)
	if err != nil {
		return fmt.Errorf("failed to save event: %w", err)
	}
	return nil
}

// RecentEvents returns the newest records whose name is in events, newest
// first.
func (es *EventStore) RecentEvents(ctx context.Context, events []telemetry.Event, limit int) ([]telemetry.Record, error) {
	if limit <= 0 {
		limit = 20
	}
	names := make([]string, 0, len(events))
	for _, e := range events {
		names = append(names, string(e))
	}

	rows, err := es.db.QueryContext(ctx, `
		SELECT event, payload, created_at
		FROM console_events
		WHERE event = ANY($1)
		ORDER BY created_at DESC
		LIMIT $2
	`, pq.Array(names), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	out := make([]telemetry.Record, 0, limit)
	for rows.Next() {
		var (
			name    string
			payload []byte
			rec     telemetry.Record
		)
		if err := rows.Scan(&name, &payload, &rec.At); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		rec.Event = telemetry.Event(name)
		if err := json.Unmarshal(payload, &rec.Payload); err != nil {
			return nil, fmt.Errorf("failed to decode event payload: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
