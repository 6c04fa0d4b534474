package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Environment   string
	AWS           AWSConfig
	Database      DatabaseConfig
	API           APIConfig
	Worker        WorkerConfig
	Queue         QueueConfig
	Observability ObservabilityConfig
	CORS          CORSConfig
}

// AWSConfig holds AWS-specific configuration.
type AWSConfig struct {
	Region      string
	Bucket      string
	SQSQueueURL string
}

// DatabaseConfig holds Postgres configuration.
type DatabaseConfig struct {
	URL string
}

// APIConfig holds API server configuration.
type APIConfig struct {
	Port          string
	Username      string
	Password      string
	JWTSecret     string
	SignedURLTTL  time.Duration
}

// WorkerConfig holds worker-specific configuration.
type WorkerConfig struct {
	MaxConcurrentJobs int
	MetricsPort       int
	ScratchDir        string
	ScratchMaxAge     time.Duration
	CleanupInterval   time.Duration
}

// QueueConfig holds job retry policy configuration.
type QueueConfig struct {
	MaxAttempts    int
	BackoffBase    time.Duration
	HistorySuccess int
	HistoryFailed  int
}

// ObservabilityConfig holds observability configuration.
type ObservabilityConfig struct {
	OTLPEndpoint string
}

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	AllowedOrigins []string
}

// Default values
const (
	DefaultPort              = "8080"
	DefaultMetricsPort       = 2112
	DefaultMaxConcurrentJobs = 2
	DefaultOTLPEndpoint      = "localhost:4317"
	DefaultRegion            = "us-west-2"
	DefaultScratchDir        = "/tmp/classtream"
	DefaultScratchMaxAge     = 24 * time.Hour
	DefaultCleanupInterval   = 24 * time.Hour
	DefaultSignedURLTTL      = time.Hour
	DefaultMaxAttempts       = 3
	DefaultBackoffBase       = 2 * time.Second
	DefaultHistorySuccess    = 10
	DefaultHistoryFailed     = 5
)

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("ENV", "dev"),
		AWS: AWSConfig{
			Region:      getEnv("AWS_REGION", DefaultRegion),
			Bucket:      os.Getenv("S3_BUCKET"),
			SQSQueueURL: os.Getenv("SQS_QUEUE_URL"),
		},
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		API: APIConfig{
			Port:         getEnv("PORT", DefaultPort),
			Username:     os.Getenv("API_USERNAME"),
			Password:     os.Getenv("API_PASSWORD"),
			JWTSecret:    os.Getenv("JWT_SECRET"),
			SignedURLTTL: getEnvDuration("SIGNED_URL_TTL", DefaultSignedURLTTL),
		},
		Worker: WorkerConfig{
			MaxConcurrentJobs: getEnvInt("MAX_CONCURRENT_JOBS", DefaultMaxConcurrentJobs),
			MetricsPort:       getEnvInt("METRICS_PORT", DefaultMetricsPort),
			ScratchDir:        getEnv("SCRATCH_DIR", DefaultScratchDir),
			ScratchMaxAge:     getEnvDuration("SCRATCH_MAX_AGE", DefaultScratchMaxAge),
			CleanupInterval:   getEnvDuration("CLEANUP_INTERVAL", DefaultCleanupInterval),
		},
		Queue: QueueConfig{
			MaxAttempts:    getEnvInt("JOB_MAX_ATTEMPTS", DefaultMaxAttempts),
			BackoffBase:    getEnvDuration("JOB_BACKOFF_BASE", DefaultBackoffBase),
			HistorySuccess: DefaultHistorySuccess,
			HistoryFailed:  DefaultHistoryFailed,
		},
		Observability: ObservabilityConfig{
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", DefaultOTLPEndpoint),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvSlice("CORS_ALLOWED_ORIGINS", []string{
				"https://app.classtream.io",
			}),
		},
	}

	return cfg, nil
}

// LoadAPI loads configuration required for the API service.
func LoadAPI() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateAPI(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadWorker loads configuration required for the Worker service.
func LoadWorker() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateWorker(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ValidateAPI validates configuration required for the API service.
// SQS_QUEUE_URL is deliberately not required: an empty value selects the
// degraded no-op queue at startup.
func (c *Config) ValidateAPI() error {
	var errs []string

	if c.AWS.Bucket == "" {
		errs = append(errs, "S3_BUCKET is required")
	}
	if c.Database.URL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}

	if c.IsProduction() {
		if c.API.Username == "" {
			errs = append(errs, "API_USERNAME is required in production")
		}
		if c.API.Password == "" {
			errs = append(errs, "API_PASSWORD is required in production")
		}
		if c.API.JWTSecret == "" {
			errs = append(errs, "JWT_SECRET is required in production")
		}
		if len(c.API.JWTSecret) < 32 {
			errs = append(errs, "JWT_SECRET must be at least 32 characters in production")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ValidateWorker validates configuration required for the Worker service.
func (c *Config) ValidateWorker() error {
	var errs []string

	if c.AWS.Bucket == "" {
		errs = append(errs, "S3_BUCKET is required")
	}
	if c.AWS.SQSQueueURL == "" {
		errs = append(errs, "SQS_QUEUE_URL is required")
	}
	if c.Database.URL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// QueueEnabled reports whether a real queue backend is configured. The
// API substitutes the no-op queue when this is false; job processing is
// skipped until the queue returns.
func (c *Config) QueueEnabled() bool {
	return c.AWS.SQSQueueURL != ""
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Environment)
	return env == "prod" || env == "production"
}

// GetAPICredentials returns API credentials with fallback for development.
func (c *Config) GetAPICredentials() (username, password string, err error) {
	username = c.API.Username
	password = c.API.Password

	if username == "" || password == "" {
		if c.IsProduction() {
			return "", "", fmt.Errorf("API credentials not configured")
		}
		// Development fallback
		return "admin", "secret", nil
	}

	return username, password, nil
}

// GetJWTSecret returns the JWT secret.
func (c *Config) GetJWTSecret() ([]byte, error) {
	secret := c.API.JWTSecret

	if secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required (set it even for development)")
	}

	if len(secret) < 32 && c.IsProduction() {
		return nil, fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}

	return []byte(secret), nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil && intVal > 0 {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
