package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// DBLogger implements audit logging to the audit_events table
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a new database-based audit logger
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &DBLogger{db: db}, nil
}

// Log logs an audit event to the database
func (l *DBLogger) Log(ctx context.Context, event *AuditEvent) error {
	var metadataJSON sql.NullString
	if event.Metadata != nil {
		data, err := json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metadataJSON = sql.NullString{String: string(data), Valid: true}
	}

	query := `
		INSERT INTO audit_events (
			event_type, actor_user_id, resource_type, resource_id,
			status, message, metadata, request_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	err := l.db.QueryRowContext(ctx, query,
		string(event.EventType),
		nullString(event.ActorIdentity),
		string(event.ResourceType),
		event.ResourceID,
		string(event.Status),
		event.Message,
		metadataJSON,
		nullString(event.RequestID),
		event.Timestamp,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}

	return nil
}

// ListByResource returns the events for one resource, newest first
func (l *DBLogger) ListByResource(ctx context.Context, resourceType ResourceType, resourceID string, limit int) ([]*AuditEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, event_type, actor_user_id, resource_type, resource_id,
		       status, message, metadata, request_id, created_at
		FROM audit_events
		WHERE resource_type = $1 AND resource_id = $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`

	rows, err := l.db.QueryContext(ctx, query, string(resourceType), resourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []*AuditEvent
	for rows.Next() {
		var (
			event                      AuditEvent
			eventType, resType, status string
			actor, metadata, requestID sql.NullString
			createdAt                  time.Time
		)
		if err := rows.Scan(&event.ID, &eventType, &actor, &resType, &event.ResourceID,
			&status, &event.Message, &metadata, &requestID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}

		event.EventType = EventType(eventType)
		event.ResourceType = ResourceType(resType)
		event.Status = EventStatus(status)
		event.ActorIdentity = actor.String
		event.RequestID = requestID.String
		event.Timestamp = createdAt
		if metadata.Valid {
			if err := json.Unmarshal([]byte(metadata.String), &event.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		events = append(events, &event)
	}

	return events, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
