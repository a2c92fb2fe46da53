package outbox

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/formulafinance/licensehub/pkg/observability"
)

// DispatcherConfig controls batch size and retry ceiling
type DispatcherConfig struct {
	BatchSize   int
	MaxAttempts int
}

// Dispatcher drains pending outbox events to a Publisher
type Dispatcher struct {
	store     *Store
	publisher Publisher
	config    DispatcherConfig
	logger    *observability.Logger
	metrics   *observability.Metrics
}

// NewDispatcher creates a dispatcher. metrics may be nil.
func NewDispatcher(store *Store, publisher Publisher, config DispatcherConfig, logger *observability.Logger, metrics *observability.Metrics) *Dispatcher {
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 10
	}
	return &Dispatcher{store: store, publisher: publisher, config: config, logger: logger, metrics: metrics}
}

// DispatchPending publishes one batch and returns how many events were published.
// A failed publish is recorded on its row and does not stop the batch.
func (d *Dispatcher) DispatchPending(ctx context.Context) (int, error) {
	events, err := d.store.FetchPending(ctx, uint64(d.config.BatchSize), d.config.MaxAttempts)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return published, err
		}

		if err := d.publisher.Publish(ctx, ev); err != nil {
			d.record(ev.EventType, "failed")
			d.logger.WithError(err).WithFields(map[string]interface{}{
				"message_id": ev.MessageID,
				"event_type": ev.EventType,
				"attempts":   ev.Attempts + 1,
			}).Warn("Failed to publish outbox event")

			if markErr := d.store.MarkFailed(ctx, ev.ID, err); markErr != nil {
				return published, markErr
			}
			continue
		}

		if err := d.store.MarkDispatched(ctx, ev.ID); err != nil {
			return published, err
		}
		d.record(ev.EventType, "dispatched")
		published++
	}

	if len(events) > 0 {
		d.logger.Infof("Dispatched %d of %d outbox events", published, len(events))
	}
	return published, nil
}

// Schedule registers DispatchPending on c under spec
func (d *Dispatcher) Schedule(ctx context.Context, c *cron.Cron, spec string) (cron.EntryID, error) {
	id, err := c.AddFunc(spec, func() {
		defer observability.RecoverPanic(d.logger, "outbox dispatcher")
		if _, err := d.DispatchPending(ctx); err != nil {
			d.logger.WithError(err).Error("Outbox dispatch failed")
		}
	})
	if err != nil {
		return 0, fmt.Errorf("invalid outbox schedule %q: %w", spec, err)
	}
	return id, nil
}

func (d *Dispatcher) record(eventType, status string) {
	if d.metrics != nil {
		d.metrics.OutboxDispatchedTotal.WithLabelValues(eventType, status).Inc()
	}
}
