package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/formulafinance/licensehub/pkg/observability"
	"github.com/formulafinance/licensehub/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Storage configuration
	Storage storage.Config

	// Redis configuration (rate limiting, readiness)
	Redis RedisConfig

	// Auth configuration
	Auth AuthConfig

	// Ledger configuration
	Ledger LedgerConfig

	// Outbox/AMQP configuration
	Outbox OutboxConfig

	// Worker schedules
	Worker WorkerConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
	CORSOrigins     []string

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// RedisConfig holds Redis connection and rate limit settings
type RedisConfig struct {
	URL                string
	Password           string
	DB                 int
	PoolSize           int
	ReportRateLimit    int
	ReportRateInterval time.Duration
}

// Enabled reports whether a Redis URL was configured
func (r RedisConfig) Enabled() bool {
	return r.URL != ""
}

// AuthConfig holds bearer token verification settings
type AuthConfig struct {
	// HS256 shared secret; used when no OIDC issuer is set
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string

	OIDCIssuerURL string
	OIDCClientID  string

	RoleCacheSize int
	RoleCacheTTL  time.Duration
}

// LedgerConfig holds license consumption settings
type LedgerConfig struct {
	// SelectionPolicy picks among several active licenses: latest_expiring or soonest_expiring
	SelectionPolicy string
}

// OutboxConfig holds event publishing settings
type OutboxConfig struct {
	AMQPURL     string
	Exchange    string
	BatchSize   int
	MaxAttempts int
}

// WorkerConfig holds cron schedules for background jobs
type WorkerConfig struct {
	OutboxSchedule string
	ExpirySchedule string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
}

// LoadConfig loads configuration from environment variables, reading an
// optional .env file first. Variables already set in the environment win.
func LoadConfig() (*Config, error) {
	if err := loadDotEnv(getEnv("LICENSEHUB_ENV_FILE", ".env")); err != nil {
		return nil, err
	}

	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Redis:         loadRedisConfig(),
		Auth:          loadAuthConfig(),
		Ledger:        LedgerConfig{SelectionPolicy: getEnv("LICENSEHUB_LICENSE_SELECTION_POLICY", "latest_expiring")},
		Outbox:        loadOutboxConfig(),
		Worker:        loadWorkerConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadDotEnv loads path if it exists
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("LICENSEHUB_HOST", "0.0.0.0"),
		Port:            getEnv("LICENSEHUB_PORT", "8080"),
		ReadTimeout:     getEnvDuration("LICENSEHUB_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("LICENSEHUB_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("LICENSEHUB_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("LICENSEHUB_SHUTDOWN_TIMEOUT", 30*time.Second),
		MaxBodyBytes:    getEnvInt64("LICENSEHUB_MAX_BODY_BYTES", 1<<20),
		CORSOrigins:     splitList(getEnv("LICENSEHUB_CORS_ORIGINS", "")),
		HealthPort:      getEnv("LICENSEHUB_HEALTH_PORT", "9090"),
	}
}

// loadStorageConfig loads storage configuration from environment
func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	if driver := getEnv("LICENSEHUB_DB_DRIVER", ""); driver != "" {
		cfg.Driver = driver
	}
	if url := getEnv("LICENSEHUB_DB_URL", ""); url != "" {
		cfg.PrimaryURL = url
	}
	cfg.ReplicaURLs = storage.ParseReplicaURLs(getEnv("LICENSEHUB_DB_REPLICA_URLS", ""))
	if maxConns := getEnvInt("LICENSEHUB_DB_MAX_CONNS", 0); maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if minConns := getEnvInt("LICENSEHUB_DB_MIN_CONNS", 0); minConns > 0 {
		cfg.MinConns = minConns
	}
	if timeout := getEnvDuration("LICENSEHUB_DB_TIMEOUT", 0); timeout > 0 {
		cfg.Timeout = timeout
	}
	cfg.AutoMigrate = getEnvBool("LICENSEHUB_DB_AUTO_MIGRATE", cfg.AutoMigrate)

	return cfg
}

// loadRedisConfig loads redis configuration from environment
func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:                getEnv("LICENSEHUB_REDIS_URL", ""),
		Password:           getEnv("LICENSEHUB_REDIS_PASSWORD", ""),
		DB:                 getEnvInt("LICENSEHUB_REDIS_DB", 0),
		PoolSize:           getEnvInt("LICENSEHUB_REDIS_POOL_SIZE", 10),
		ReportRateLimit:    getEnvInt("LICENSEHUB_REPORT_RATE_LIMIT", 30),
		ReportRateInterval: getEnvDuration("LICENSEHUB_REPORT_RATE_INTERVAL", time.Minute),
	}
}

// loadAuthConfig loads token verification configuration from environment
func loadAuthConfig() AuthConfig {
	return AuthConfig{
		JWTSecret:     getEnv("LICENSEHUB_JWT_SECRET", ""),
		JWTIssuer:     getEnv("LICENSEHUB_JWT_ISSUER", ""),
		JWTAudience:   getEnv("LICENSEHUB_JWT_AUDIENCE", ""),
		OIDCIssuerURL: getEnv("LICENSEHUB_OIDC_ISSUER_URL", ""),
		OIDCClientID:  getEnv("LICENSEHUB_OIDC_CLIENT_ID", ""),
		RoleCacheSize: getEnvInt("LICENSEHUB_ROLE_CACHE_SIZE", 1024),
		RoleCacheTTL:  getEnvDuration("LICENSEHUB_ROLE_CACHE_TTL", 30*time.Second),
	}
}

// loadOutboxConfig loads outbox publishing configuration from environment
func loadOutboxConfig() OutboxConfig {
	return OutboxConfig{
		AMQPURL:     getEnv("LICENSEHUB_AMQP_URL", ""),
		Exchange:    getEnv("LICENSEHUB_AMQP_EXCHANGE", "licensehub.events"),
		BatchSize:   getEnvInt("LICENSEHUB_OUTBOX_BATCH_SIZE", 100),
		MaxAttempts: getEnvInt("LICENSEHUB_OUTBOX_MAX_ATTEMPTS", 10),
	}
}

// loadWorkerConfig loads worker schedules from environment
func loadWorkerConfig() WorkerConfig {
	return WorkerConfig{
		OutboxSchedule: getEnv("LICENSEHUB_OUTBOX_SCHEDULE", "@every 5s"),
		ExpirySchedule: getEnv("LICENSEHUB_EXPIRY_SCHEDULE", "0 * * * *"),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           parseLogLevel(getEnv("LICENSEHUB_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("LICENSEHUB_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("LICENSEHUB_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("LICENSEHUB_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("LICENSEHUB_OTEL_SERVICE_NAME", "licensehub"),
		OTelServiceVersion: getEnv("LICENSEHUB_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("LICENSEHUB_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	switch c.Storage.Driver {
	case storage.DriverPostgres, storage.DriverSQLite:
	default:
		return fmt.Errorf("invalid database driver: %s (must be postgres or sqlite3)", c.Storage.Driver)
	}
	if c.Storage.PrimaryURL == "" {
		return fmt.Errorf("database URL is required")
	}

	if c.Auth.JWTSecret == "" && c.Auth.OIDCIssuerURL == "" {
		return fmt.Errorf("either LICENSEHUB_JWT_SECRET or LICENSEHUB_OIDC_ISSUER_URL is required")
	}
	if c.Auth.OIDCIssuerURL != "" && c.Auth.OIDCClientID == "" {
		return fmt.Errorf("OIDC client ID is required when an OIDC issuer is set")
	}

	switch c.Ledger.SelectionPolicy {
	case "latest_expiring", "soonest_expiring":
	default:
		return fmt.Errorf("invalid license selection policy: %s (must be latest_expiring or soonest_expiring)", c.Ledger.SelectionPolicy)
	}

	if c.Redis.Enabled() && (c.Redis.ReportRateLimit <= 0 || c.Redis.ReportRateInterval <= 0) {
		return fmt.Errorf("report rate limit and interval must be positive")
	}

	if c.Outbox.BatchSize <= 0 {
		return fmt.Errorf("outbox batch size must be positive")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// splitList splits a comma-separated value, dropping blanks
func splitList(value string) []string {
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
