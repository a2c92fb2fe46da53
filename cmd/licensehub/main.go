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

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/formulafinance/licensehub/pkg/api"
	"github.com/formulafinance/licensehub/pkg/async"
	"github.com/formulafinance/licensehub/pkg/audit"
	"github.com/formulafinance/licensehub/pkg/auth"
	"github.com/formulafinance/licensehub/pkg/config"
	"github.com/formulafinance/licensehub/pkg/licenses"
	"github.com/formulafinance/licensehub/pkg/middleware"
	"github.com/formulafinance/licensehub/pkg/observability"
	"github.com/formulafinance/licensehub/pkg/rbac"
	"github.com/formulafinance/licensehub/pkg/storage"
)

var version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "Print the version and exit")
	flag.Parse()
	if *showVersion {
		fmt.Println(version)
		return
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).
		WithField("service", cfg.Observability.OTelServiceName)

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("licensehub stopped with an error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	conn, err := storage.NewConnectionManager(ctx, cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = newRedisClient(ctx, cfg.Redis)
		if err != nil {
			conn.Close()
			return err
		}
	}

	verifier, err := newVerifier(ctx, cfg.Auth)
	if err != nil {
		conn.Close()
		return err
	}

	auditLogger, err := audit.NewDBLogger(conn.Primary())
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create audit logger: %w", err)
	}

	policy, err := licenses.ParseSelectionPolicy(cfg.Ledger.SelectionPolicy)
	if err != nil {
		conn.Close()
		return err
	}

	rateConfig := &middleware.RateLimitConfig{
		RequestsPerWindow: cfg.Redis.ReportRateLimit,
		WindowDuration:    cfg.Redis.ReportRateInterval,
	}
	var limiter middleware.Limiter
	if redisClient != nil {
		limiter = middleware.NewDistributedRateLimiter(redisClient, rateConfig, "reports")
	} else {
		local := middleware.NewRateLimiter(rateConfig)
		go async.Every(ctx, rateConfig.WindowDuration, "rate limiter cleanup", logger, func(context.Context) error {
			local.Cleanup()
			return nil
		})
		limiter = local
	}

	roles := rbac.NewCachedStore(rbac.NewStore(conn.Primary()), cfg.Auth.RoleCacheSize, cfg.Auth.RoleCacheTTL, metrics)

	server := api.NewServer(api.Options{
		Conn:            conn,
		Verifier:        verifier,
		Roles:           roles,
		AuditLogger:     auditLogger,
		Logger:          logger,
		Metrics:         metrics,
		ReportLimiter:   limiter,
		SelectionPolicy: policy,
		CORSOrigins:     cfg.Server.CORSOrigins,
		MaxBodyBytes:    cfg.Server.MaxBodyBytes,
	})

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      otelhttp.NewHandler(server, "licensehub"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthRouter := mux.NewRouter()
	observability.RegisterHealthRoutes(healthRouter, observability.NewHealthChecker(conn, redisClient, version))
	if cfg.Observability.MetricsEnabled {
		healthRouter.Handle("/metrics", observability.MetricsHandler(registry)).Methods(http.MethodGet).Name(rbac.RouteMetrics)
	}
	healthServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:      healthRouter,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, apiServer, healthServer)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return observability.ShutdownTracing(ctx, tp)
	})
	if redisClient != nil {
		shutdown.RegisterShutdownFunc(func(context.Context) error { return redisClient.Close() })
	}
	shutdown.RegisterShutdownFunc(func(context.Context) error { return conn.Close() })

	go async.Every(ctx, 15*time.Second, "db stats", logger, func(context.Context) error {
		metrics.RecordDBStats(conn.Primary().Stats())
		return nil
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("API listening on %s", apiServer.Addr)
		return listen(apiServer)
	})
	g.Go(func() error {
		logger.Infof("Health and metrics listening on %s", healthServer.Addr)
		return listen(healthServer)
	})
	g.Go(func() error {
		return shutdown.WaitForSignal(gctx)
	})

	return g.Wait()
}

func listen(server *http.Server) error {
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server %s failed: %w", server.Addr, err)
	}
	return nil
}

func newRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}
	opts.PoolSize = cfg.PoolSize

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func newVerifier(ctx context.Context, cfg config.AuthConfig) (auth.TokenVerifier, error) {
	if cfg.OIDCIssuerURL != "" {
		v, err := auth.NewOIDCVerifier(ctx, cfg.OIDCIssuerURL, cfg.OIDCClientID)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
	return auth.NewHMACVerifier(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience), nil
}
