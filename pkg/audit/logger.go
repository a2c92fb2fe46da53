package audit

import (
	"context"
	"sync"
	"time"

	"github.com/formulafinance/licensehub/pkg/contextkeys"
	"github.com/formulafinance/licensehub/pkg/observability"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log persists an audit event
	Log(ctx context.Context, event *AuditEvent) error
}

// NoopLogger discards events
type NoopLogger struct{}

// Log implements Logger
func (NoopLogger) Log(ctx context.Context, event *AuditEvent) error {
	return nil
}

// MemoryLogger keeps events in memory. Used by tests.
type MemoryLogger struct {
	mu     sync.Mutex
	events []*AuditEvent
}

// Log implements Logger
func (m *MemoryLogger) Log(ctx context.Context, event *AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// Events returns a copy of the recorded events
func (m *MemoryLogger) Events() []*AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*AuditEvent, len(m.events))
	copy(out, m.events)
	return out
}

// Record fills actor, request ID, timestamp and status from ctx and logs the
// event. Write failures are logged and swallowed.
func Record(ctx context.Context, logger Logger, event *AuditEvent) {
	if logger == nil {
		return
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC().Truncate(time.Second)
	}
	if event.Status == "" {
		event.Status = EventStatusSuccess
	}
	if event.ActorIdentity == "" {
		event.ActorIdentity = contextkeys.GetIdentity(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = contextkeys.GetRequestID(ctx)
	}

	if err := logger.Log(ctx, event); err != nil {
		observability.FromContext(ctx).WithError(err).WithFields(map[string]interface{}{
			"event_type":    event.EventType,
			"resource_type": event.ResourceType,
			"resource_id":   event.ResourceID,
		}).Warn("Failed to record audit event")
	}
}
