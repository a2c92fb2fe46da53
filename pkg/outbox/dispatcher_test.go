package outbox

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formulafinance/licensehub/pkg/observability"
	"github.com/formulafinance/licensehub/pkg/storage/storagetest"
)

type fakePublisher struct {
	mu        sync.Mutex
	published []Event
	failFor   map[int64]bool
}

func (p *fakePublisher) Publish(ctx context.Context, ev Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failFor[ev.AggregateID] {
		return errors.New("nack")
	}
	p.published = append(p.published, ev)
	return nil
}

func TestDispatcher_DispatchPending(t *testing.T) {
	db := storagetest.NewSQLiteDB(t)
	store := NewStore(db)
	ctx := context.Background()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	logger := observability.NewLogger(observability.DebugLevel, io.Discard)

	for i := int64(1); i <= 3; i++ {
		_, err := Enqueue(ctx, db, "report", i, EventReportCreated, map[string]int64{"reportId": i})
		require.NoError(t, err)
	}

	publisher := &fakePublisher{failFor: map[int64]bool{2: true}}
	d := NewDispatcher(store, publisher, DispatcherConfig{BatchSize: 10, MaxAttempts: 3}, logger, metrics)

	n, err := d.DispatchPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, publisher.published, 2)
	assert.Equal(t, int64(1), publisher.published[0].AggregateID)
	assert.Equal(t, int64(3), publisher.published[1].AggregateID)

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.OutboxDispatchedTotal.WithLabelValues(EventReportCreated, "dispatched")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.OutboxDispatchedTotal.WithLabelValues(EventReportCreated, "failed")))

	// The failed event is retried until it succeeds
	publisher.failFor = nil
	n, err = d.DispatchPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	pending, err := store.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)

	n, err = d.DispatchPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDispatcher_StopsOnCancelledContext(t *testing.T) {
	db := storagetest.NewSQLiteDB(t)
	store := NewStore(db)
	_, err := Enqueue(context.Background(), db, "report", 1, EventReportCreated, map[string]int64{"reportId": 1})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := NewDispatcher(store, &fakePublisher{}, DispatcherConfig{}, observability.NewLogger(observability.InfoLevel, io.Discard), nil)
	_, err = d.DispatchPending(ctx)
	assert.Error(t, err)
}

func TestDispatcher_Schedule(t *testing.T) {
	db := storagetest.NewSQLiteDB(t)
	d := NewDispatcher(NewStore(db), &fakePublisher{}, DispatcherConfig{}, observability.NewLogger(observability.InfoLevel, io.Discard), nil)
	c := cron.New()

	id, err := d.Schedule(context.Background(), c, "@every 5s")
	require.NoError(t, err)
	assert.NotZero(t, id)
	assert.Len(t, c.Entries(), 1)

	_, err = d.Schedule(context.Background(), c, "not a schedule")
	assert.Error(t, err)
}
