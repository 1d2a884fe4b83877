package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/syzygy-germany/crossmedia-fourallportal/internal/model"
)

const eventColumns = `id, module_id, event_id, object_id, event_type, status,
	retries, next_retry, skip_until, message, bean_data, headers, url, response, payload`

// AppendEvent inserts a new event into the log. The event's local ID is
// assigned on insert.
func (s *Store) AppendEvent(ctx context.Context, ev *model.Event) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO events
		(module_id, event_id, object_id, event_type, status, retries, next_retry,
		 skip_until, message, bean_data, headers, url, response, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		ev.ModuleID,
		ev.EventID,
		ev.ObjectID,
		string(ev.EventType),
		string(ev.Status),
		ev.Retries,
		ev.NextRetry,
		ev.SkipUntil,
		ev.Message,
		ev.BeanData,
		ev.Headers,
		ev.URL,
		ev.Response,
		ev.Payload,
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}

	ev.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("append event: last insert id: %w", err)
	}
	return nil
}

// UpdateEvent persists the full mutable state of an event. Called after
// every execution attempt so a crash between events loses no progress.
func (s *Store) UpdateEvent(ctx context.Context, ev *model.Event) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE events SET
			status = ?, retries = ?, next_retry = ?, skip_until = ?, message = ?,
			headers = ?, url = ?, response = ?, payload = ?
		WHERE id = ?
	`,
		string(ev.Status),
		ev.Retries,
		ev.NextRetry,
		ev.SkipUntil,
		ev.Message,
		ev.Headers,
		ev.URL,
		ev.Response,
		ev.Payload,
		ev.ID,
	)
	if err != nil {
		return fmt.Errorf("update event %d: %w", ev.ID, err)
	}
	return nil
}

// RemoveEvent deletes a single event from the log.
func (s *Store) RemoveEvent(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id); err != nil {
		return fmt.Errorf("remove event %d: %w", id, err)
	}
	return nil
}

// RemoveEventsForModule deletes all events of a module. Used by full resync.
func (s *Store) RemoveEventsForModule(ctx context.Context, moduleID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE module_id = ?`, moduleID); err != nil {
		return fmt.Errorf("remove events for module %d: %w", moduleID, err)
	}
	return nil
}

// EventsByStatus returns all events with the given status, ordered by
// remote event id ascending. Within a module this is the pending-stream
// processing order.
func (s *Store) EventsByStatus(ctx context.Context, status model.EventStatus) ([]*model.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE status = ?
		ORDER BY event_id ASC, id ASC
	`, string(status))
	if err != nil {
		return nil, fmt.Errorf("query events by status %q: %w", status, err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

// DeferredEvents returns all deferred events ordered by module then remote
// event id, so the oldest module configuration drains first.
func (s *Store) DeferredEvents(ctx context.Context) ([]*model.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE status = ?
		ORDER BY module_id ASC, event_id ASC, id ASC
	`, string(model.StatusDeferred))
	if err != nil {
		return nil, fmt.Errorf("query deferred events: %w", err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

// DeferredEventsForObject returns the deferred events of a module matching
// one object id. Sync removes these when a newer remote state supersedes
// the stale deferral.
func (s *Store) DeferredEventsForObject(ctx context.Context, moduleID int64, objectID string) ([]*model.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE status = ? AND module_id = ? AND object_id = ?
		ORDER BY event_id ASC, id ASC
	`, string(model.StatusDeferred), moduleID, objectID)
	if err != nil {
		return nil, fmt.Errorf("query deferred events for object %q: %w", objectID, err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

// RecentEvents returns the most recent events of a module by remote event
// id descending, optionally restricted to one object id. Used by replay.
func (s *Store) RecentEvents(ctx context.Context, moduleID int64, objectID string, limit int) ([]*model.Event, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM events
		WHERE module_id = ?`
	args := []any{moduleID}
	if objectID != "" {
		query += ` AND object_id = ?`
		args = append(args, objectID)
	}
	query += ` ORDER BY event_id DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query recent events for module %d: %w", moduleID, err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

// EventStatusCount is one row of the per-module status summary.
type EventStatusCount struct {
	ModuleID int64
	Status   model.EventStatus
	Count    int
}

// CountEventsByStatus summarises the event log per module and status.
func (s *Store) CountEventsByStatus(ctx context.Context) ([]EventStatusCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT module_id, status, COUNT(*)
		FROM events
		GROUP BY module_id, status
		ORDER BY module_id ASC, status ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("count events by status: %w", err)
	}
	defer rows.Close()

	var counts []EventStatusCount
	for rows.Next() {
		var c EventStatusCount
		var status string
		if err := rows.Scan(&c.ModuleID, &status, &c.Count); err != nil {
			return nil, fmt.Errorf("scan event count: %w", err)
		}
		c.Status = model.EventStatus(status)
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event counts: %w", err)
	}
	return counts, nil
}

func collectEvents(rows *sql.Rows) ([]*model.Event, error) {
	var events []*model.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func scanEvent(rows *sql.Rows) (*model.Event, error) {
	var ev model.Event
	var eventType, status string
	var beanData []byte
	err := rows.Scan(
		&ev.ID,
		&ev.ModuleID,
		&ev.EventID,
		&ev.ObjectID,
		&eventType,
		&status,
		&ev.Retries,
		&ev.NextRetry,
		&ev.SkipUntil,
		&ev.Message,
		&beanData,
		&ev.Headers,
		&ev.URL,
		&ev.Response,
		&ev.Payload,
	)
	if err != nil {
		return nil, fmt.Errorf("scan event: %w", err)
	}
	ev.EventType = model.EventType(eventType)
	ev.Status = model.EventStatus(status)
	ev.BeanData = beanData
	return &ev, nil
}
