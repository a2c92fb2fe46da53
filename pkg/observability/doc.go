// Package observability provides structured logging, Prometheus metrics,
// health probes and OpenTelemetry tracing for licensehub.
//
// # Structured Logging
//
// Logger wraps logrus with a JSON formatter:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("customer_id", id).Info("Report requested")
//
// Request-scoped loggers carry the request ID and caller identity:
//
//	observability.FromContext(r.Context()).WithError(err).Error("Ledger failure")
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.LicenseDenialsTotal.WithLabelValues("license_expired").Inc()
//
// # Health
//
// HealthChecker exposes /healthz (liveness) and /readyz (database and Redis).
//
// # Tracing
//
// InitTracing installs an OTLP/gRPC tracer provider; StartSpan is used around
// the association and ledger transactions.
package observability
