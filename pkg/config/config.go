package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Upstream    UpstreamConfig
	Collector   CollectorConfig
	Aggregation AggregationConfig
	Shame       ShameConfig
	RateLimit   RateLimitConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port           string
	Environment    string
	ServiceName    string
	ReadTimeout    int
	WriteTimeout   int
	RequestTimeout int // seconds
	CORSOrigins    string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// UpstreamConfig holds the ride-status API client configuration
type UpstreamConfig struct {
	BaseURL        string
	TimeoutSeconds int
	MaxRetries     int
	APIKey         string
}

// CollectorConfig holds snapshot collection configuration
type CollectorConfig struct {
	SnapshotIntervalMinutes int
	Concurrency             int
}

// AggregationConfig holds aggregation pipeline configuration
type AggregationConfig struct {
	// UseAggregates selects the fast path (pre-aggregated tables) for
	// TODAY/YESTERDAY/7-day/30-day queries. When false every period is
	// recomputed from raw snapshots.
	UseAggregates   bool
	RetentionHours  int // raw snapshots older than this are prunable once aggregated
	StaleSLAMinutes int // aggregates older than this are surfaced as stale
	HourlyDelayMin  int // minutes past the hour before the hourly job fires
	MetricsVersion  string
}

// ShameConfig holds shame-score semantics configuration
type ShameConfig struct {
	DisneyWindowDays int
	OtherWindowDays  int
	// FullRosterWeight disables the recently-operated window and counts
	// every active attraction in the denominator. Rollback switch for the
	// effective-weight semantics.
	FullRosterWeight bool
	// SimilarOperators lists operators that use Disney/Universal DOWN
	// semantics (CLOSED means scheduled, not broken).
	SimilarOperators []string
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool
	WindowSeconds     int
	DefaultLimit      int
	DefaultBurst      int
	AnonymousLimit    int
	AnonymousBurst    int
	RedisPrefix       string
	EndpointOverrides map[string]EndpointRateLimitConfig
}

// EndpointRateLimitConfig allows customizing limits per endpoint
type EndpointRateLimitConfig struct {
	Limit         int `json:"limit"`
	Burst         int `json:"burst"`
	WindowSeconds int `json:"window_seconds"`
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Environment:    getEnv("ENVIRONMENT", "development"),
			ServiceName:    serviceName,
			ReadTimeout:    getEnvAsInt("READ_TIMEOUT", 10),
			WriteTimeout:   getEnvAsInt("WRITE_TIMEOUT", 10),
			RequestTimeout: getEnvAsInt("REQUEST_TIMEOUT", 30),
			CORSOrigins:    getEnv("CORS_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "parkpulse"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns: getEnvAsInt("DB_MIN_CONNS", 2),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Upstream: UpstreamConfig{
			BaseURL:        getEnv("UPSTREAM_BASE_URL", "https://api.themeparks.wiki/v1"),
			TimeoutSeconds: getEnvAsInt("UPSTREAM_TIMEOUT_SECONDS", 15),
			MaxRetries:     getEnvAsInt("UPSTREAM_MAX_RETRIES", 2),
			APIKey:         getEnv("UPSTREAM_API_KEY", ""),
		},
		Collector: CollectorConfig{
			SnapshotIntervalMinutes: getEnvAsInt("SNAPSHOT_INTERVAL_MINUTES", 10),
			Concurrency:             getEnvAsInt("COLLECTOR_CONCURRENCY", 5),
		},
		Aggregation: AggregationConfig{
			UseAggregates:   getEnvAsBool("USE_AGGREGATES", true),
			RetentionHours:  getEnvAsInt("SNAPSHOT_RETENTION_HOURS", 48),
			StaleSLAMinutes: getEnvAsInt("AGGREGATE_STALE_SLA_MINUTES", 120),
			HourlyDelayMin:  getEnvAsInt("HOURLY_DELAY_MINUTES", 5),
			MetricsVersion:  getEnv("METRICS_VERSION", "v1"),
		},
		Shame: ShameConfig{
			DisneyWindowDays: getEnvAsInt("SHAME_DISNEY_WINDOW_DAYS", 7),
			OtherWindowDays:  getEnvAsInt("SHAME_OTHER_WINDOW_DAYS", 3),
			FullRosterWeight: getEnvAsBool("SHAME_FULL_ROSTER_WEIGHT", false),
			SimilarOperators: getEnvAsList("SHAME_SIMILAR_OPERATORS", "Dollywood"),
		},
		RateLimit: RateLimitConfig{
			Enabled:        getEnvAsBool("RATE_LIMIT_ENABLED", false),
			WindowSeconds:  getEnvAsInt("RATE_LIMIT_WINDOW_SECONDS", 60),
			DefaultLimit:   getEnvAsInt("RATE_LIMIT_DEFAULT_LIMIT", 120),
			DefaultBurst:   getEnvAsInt("RATE_LIMIT_DEFAULT_BURST", 40),
			AnonymousLimit: getEnvAsInt("RATE_LIMIT_ANON_LIMIT", 60),
			AnonymousBurst: getEnvAsInt("RATE_LIMIT_ANON_BURST", 20),
			RedisPrefix:    getEnv("RATE_LIMIT_REDIS_PREFIX", "rate-limit"),
		},
	}

	if overrides := getEnv("RATE_LIMIT_ENDPOINTS", ""); overrides != "" {
		var endpointConfig map[string]EndpointRateLimitConfig
		if err := json.Unmarshal([]byte(overrides), &endpointConfig); err != nil {
			return nil, fmt.Errorf("invalid RATE_LIMIT_ENDPOINTS value: %w", err)
		}
		cfg.RateLimit.EndpointOverrides = endpointConfig
	}

	if cfg.RateLimit.WindowSeconds <= 0 {
		cfg.RateLimit.WindowSeconds = int((time.Minute).Seconds())
	}

	if cfg.Collector.SnapshotIntervalMinutes <= 0 {
		cfg.Collector.SnapshotIntervalMinutes = 10
	}

	if cfg.Collector.Concurrency <= 0 {
		cfg.Collector.Concurrency = 5
	}

	if cfg.Shame.DisneyWindowDays <= 0 {
		cfg.Shame.DisneyWindowDays = 7
	}

	if cfg.Shame.OtherWindowDays <= 0 {
		cfg.Shame.OtherWindowDays = 3
	}

	return cfg, nil
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// MigrateURL returns the connection URL used by golang-migrate
func (c *DatabaseConfig) MigrateURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// SnapshotInterval returns the collection cadence as a duration
func (c CollectorConfig) SnapshotInterval() time.Duration {
	return time.Duration(c.SnapshotIntervalMinutes) * time.Minute
}

// Timeout returns the upstream request timeout as a duration
func (c UpstreamConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// StaleSLA returns the aggregate freshness SLA as a duration
func (c AggregationConfig) StaleSLA() time.Duration {
	return time.Duration(c.StaleSLAMinutes) * time.Minute
}

// Window returns the configured rate limit window duration
func (c RateLimitConfig) Window() time.Duration {
	if c.WindowSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.WindowSeconds) * time.Second
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
