package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

// Execer is satisfied by *sql.DB and *sql.Tx
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Enqueue writes an event through exec, normally the caller's transaction.
// payload is marshalled to JSON. The returned event carries its message ID.
func Enqueue(ctx context.Context, exec Execer, aggregate string, aggregateID int64, eventType string, payload interface{}) (*Event, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal outbox payload: %w", err)
	}

	ev := &Event{
		MessageID:   uuid.New().String(),
		Aggregate:   aggregate,
		AggregateID: aggregateID,
		EventType:   eventType,
		Payload:     body,
		CreatedAt:   time.Now().UTC().Truncate(time.Second),
	}

	query, args, err := squirrel.Insert("outbox_events").
		Columns("message_id", "aggregate", "aggregate_id", "event_type", "payload", "created_at").
		Values(ev.MessageID, ev.Aggregate, ev.AggregateID, ev.EventType, string(ev.Payload), ev.CreatedAt).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build outbox insert: %w", err)
	}

	if _, err := exec.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("failed to enqueue outbox event: %w", err)
	}
	return ev, nil
}

// Store reads and updates outbox rows for dispatch
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a new outbox store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// FetchPending returns undispatched events with fewer than maxAttempts
// failed attempts, oldest first
func (s *Store) FetchPending(ctx context.Context, limit uint64, maxAttempts int) ([]Event, error) {
	query, args, err := squirrel.Select(
		"id", "message_id", "aggregate", "aggregate_id", "event_type", "payload",
		"attempts", "last_error", "created_at", "dispatched_at",
	).
		From("outbox_events").
		Where(squirrel.Eq{"dispatched_at": nil}).
		Where(squirrel.Lt{"attempts": maxAttempts}).
		OrderBy("id").
		Limit(limit).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var (
			ev           Event
			payload      string
			lastError    sql.NullString
			dispatchedAt sql.NullTime
		)
		if err := rows.Scan(&ev.ID, &ev.MessageID, &ev.Aggregate, &ev.AggregateID, &ev.EventType, &payload,
			&ev.Attempts, &lastError, &ev.CreatedAt, &dispatchedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		ev.Payload = json.RawMessage(payload)
		ev.LastError = lastError.String
		if dispatchedAt.Valid {
			t := dispatchedAt.Time
			ev.DispatchedAt = &t
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate outbox events: %w", err)
	}
	return events, nil
}

// MarkDispatched records a successful publish
func (s *Store) MarkDispatched(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE outbox_events SET dispatched_at = $1, attempts = attempts + 1, last_error = NULL WHERE id = $2`,
		s.now().UTC().Truncate(time.Second), id)
	if err != nil {
		return fmt.Errorf("failed to mark event dispatched: %w", err)
	}
	return nil
}

// MarkFailed records a failed publish attempt
func (s *Store) MarkFailed(ctx context.Context, id int64, cause error) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE outbox_events SET attempts = attempts + 1, last_error = $1 WHERE id = $2`,
		cause.Error(), id)
	if err != nil {
		return fmt.Errorf("failed to mark event failed: %w", err)
	}
	return nil
}

// PendingCount returns the number of undispatched events
func (s *Store) PendingCount(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox_events WHERE dispatched_at IS NULL`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count pending events: %w", err)
	}
	return n, nil
}
