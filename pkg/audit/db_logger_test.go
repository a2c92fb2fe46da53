package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formulafinance/licensehub/pkg/contextkeys"
	"github.com/formulafinance/licensehub/pkg/storage/storagetest"
)

func TestNewDBLogger_NilDB(t *testing.T) {
	_, err := NewDBLogger(nil)
	assert.Error(t, err)
}

func TestDBLogger_RoundTrip(t *testing.T) {
	db := storagetest.NewSQLiteDB(t)
	logger, err := NewDBLogger(db)
	require.NoError(t, err)

	ctx := contextkeys.WithIdentity(context.Background(), "admin-1")
	ctx = contextkeys.WithRequestID(ctx, "req-42")

	Record(ctx, logger, &AuditEvent{
		EventType:    EventTypeAssociationCreate,
		ResourceType: ResourceTypeAssociation,
		ResourceID:   "7",
		Message:      "association created",
		Metadata:     map[string]interface{}{"parent_customer_id": float64(1)},
	})
	Record(ctx, logger, &AuditEvent{
		EventType:    EventTypeAssociationDelete,
		ResourceType: ResourceTypeAssociation,
		ResourceID:   "7",
		Timestamp:    time.Now().UTC().Add(time.Minute).Truncate(time.Second),
	})

	events, err := logger.ListByResource(context.Background(), ResourceTypeAssociation, "7", 10)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, EventTypeAssociationDelete, events[0].EventType)
	created := events[1]
	assert.Equal(t, EventTypeAssociationCreate, created.EventType)
	assert.Equal(t, EventStatusSuccess, created.Status)
	assert.Equal(t, "admin-1", created.ActorIdentity)
	assert.Equal(t, "req-42", created.RequestID)
	assert.Equal(t, float64(1), created.Metadata["parent_customer_id"])
}

func TestRecord_SwallowsWriteErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("INSERT INTO audit_events").WillReturnError(errors.New("disk full"))

	logger, err := NewDBLogger(db)
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		Record(context.Background(), logger, &AuditEvent{
			EventType:    EventTypeLicenseConsume,
			ResourceType: ResourceTypeLicense,
			ResourceID:   "3",
		})
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecord_NilLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		Record(context.Background(), nil, &AuditEvent{})
	})
}

func TestMemoryLogger(t *testing.T) {
	m := &MemoryLogger{}
	Record(context.Background(), m, &AuditEvent{EventType: EventTypeRoleAssign, ResourceType: ResourceTypeRole, ResourceID: "u1"})

	events := m.Events()
	require.Len(t, events, 1)
	assert.False(t, events[0].Timestamp.IsZero())
	assert.Equal(t, EventStatusSuccess, events[0].Status)

	assert.NoError(t, NoopLogger{}.Log(context.Background(), events[0]))
}
