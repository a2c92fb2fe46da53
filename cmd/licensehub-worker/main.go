package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"github.com/formulafinance/licensehub/pkg/config"
	"github.com/formulafinance/licensehub/pkg/licenses"
	"github.com/formulafinance/licensehub/pkg/observability"
	"github.com/formulafinance/licensehub/pkg/outbox"
	"github.com/formulafinance/licensehub/pkg/rbac"
	"github.com/formulafinance/licensehub/pkg/storage"
)

var (
	version = "dev"
	runOnce = flag.Bool("run-once", false, "Run the expiry sweep and one outbox batch, then exit")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.Outbox.AMQPURL == "" {
		log.Fatalf("LICENSEHUB_AMQP_URL is required for the worker")
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).WithField("service", "licensehub-worker")
	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("Worker stopped with an error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	conn, err := storage.NewConnectionManager(ctx, cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conn.Close()

	publisher, err := outbox.NewRabbitPublisher(cfg.Outbox.AMQPURL, cfg.Outbox.Exchange)
	if err != nil {
		return err
	}
	defer publisher.Close()

	dispatcher := outbox.NewDispatcher(outbox.NewStore(conn.Primary()), publisher, outbox.DispatcherConfig{
		BatchSize:   cfg.Outbox.BatchSize,
		MaxAttempts: cfg.Outbox.MaxAttempts,
	}, logger.WithField("job", "outbox"), metrics)
	licenseStore := licenses.NewStore(conn)

	if *runOnce {
		if err := expireLicenses(ctx, licenseStore, logger); err != nil {
			return err
		}
		_, err := dispatcher.DispatchPending(ctx)
		return err
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := dispatcher.Schedule(ctx, c, cfg.Worker.OutboxSchedule); err != nil {
		return err
	}
	if _, err := c.AddFunc(cfg.Worker.ExpirySchedule, func() {
		defer observability.RecoverPanic(logger, "license expiry sweep")
		if err := expireLicenses(ctx, licenseStore, logger); err != nil {
			logger.WithError(err).Error("License expiry sweep failed")
		}
	}); err != nil {
		return fmt.Errorf("invalid expiry schedule %q: %w", cfg.Worker.ExpirySchedule, err)
	}

	healthRouter := mux.NewRouter()
	observability.RegisterHealthRoutes(healthRouter, observability.NewHealthChecker(conn, nil, version))
	healthRouter.Handle("/metrics", observability.MetricsHandler(registry)).Methods(http.MethodGet).Name(rbac.RouteMetrics)
	healthServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:      healthRouter,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, healthServer)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		select {
		case <-c.Stop().Done():
			return nil
		case <-ctx.Done():
			return fmt.Errorf("cron jobs still running: %w", ctx.Err())
		}
	})

	go func() {
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("Health server failed")
			cancel()
		}
	}()

	c.Start()
	logger.WithFields(map[string]interface{}{
		"outbox_schedule": cfg.Worker.OutboxSchedule,
		"expiry_schedule": cfg.Worker.ExpirySchedule,
	}).Info("Worker started")

	return shutdown.WaitForSignal(ctx)
}

func expireLicenses(ctx context.Context, store *licenses.Store, logger *observability.Logger) error {
	ids, err := store.ExpireLapsed(ctx, time.Now())
	if err != nil {
		return err
	}
	if len(ids) > 0 {
		logger.WithField("license_ids", ids).Infof("Expired %d lapsed licenses", len(ids))
	}
	return nil
}
