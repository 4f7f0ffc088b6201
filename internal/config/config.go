package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// JWT verification configuration
	JWT JWTConfig

	// Rate limiting configuration
	RateLimit RateLimitConfig

	// WebSocket configuration
	WebSocket WebSocketConfig

	// Presence tracking
	Presence PresenceConfig

	// Offline fallback worker
	Fallback FallbackConfig

	// NATS broker and presence store
	NATS NATSConfig

	// Update rules
	Updates UpdatesConfig

	// Logging configuration
	Logging LoggingConfig

	// Application metadata
	App AppConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	// RunWorker starts the fallback worker inside the serve process.
	RunWorker bool
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MinConns        int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	MigrationsPath  string
}

// JWTConfig holds JWT configuration. Tokens are issued elsewhere.
type JWTConfig struct {
	Secret string
	Issuer string
	Leeway time.Duration
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerSecond float64 // per-IP token bucket
	BurstSize         int
	CreatePerHour     int
	ReactionsPerMin   int
	APIPerMin         int
	SweepInterval     time.Duration
}

// WebSocketConfig holds WebSocket configuration
type WebSocketConfig struct {
	AllowedOrigins  []string
	ReadBufferSize  int
	WriteBufferSize int
	PingInterval    time.Duration
	PongWait        time.Duration
	MaxMessageSize  int64
	SendBufferSize  int
}

// PresenceConfig holds presence tracking configuration
type PresenceConfig struct {
	TTL time.Duration
	// Heartbeat throttles presence refreshes driven by websocket pongs.
	Heartbeat time.Duration
}

// FallbackConfig holds fallback worker configuration
type FallbackConfig struct {
	PollInterval time.Duration
	Lease        time.Duration
	BatchSize    int
	Concurrency  int
	MaxAttempts  int
	BaseBackoff  time.Duration
	MaxBackoff   time.Duration
}

// NATSConfig holds NATS configuration. When disabled, the process uses the
// in-memory broker and presence tracker and cannot be scaled out.
type NATSConfig struct {
	Enabled        bool
	URL            string
	Name           string
	ConnectTimeout time.Duration
}

// UpdatesConfig holds update rules
type UpdatesConfig struct {
	EditWindow time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, text
	// File, when set, receives a rotated copy of every log line.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string
	Version     string
	Environment string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", ":8080"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getDurationOrDefault("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			RunWorker:       getBoolOrDefault("SERVER_RUN_WORKER", true),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    getIntOrDefault("DB_MAX_OPEN_CONNS", 25),
			MinConns:        getIntOrDefault("DB_MIN_CONNS", 2),
			ConnMaxLifetime: getDurationOrDefault("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: getDurationOrDefault("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			MigrationsPath:  getEnvOrDefault("DB_MIGRATIONS_PATH", "migrations"),
		},
		JWT: JWTConfig{
			Secret: os.Getenv("JWT_SECRET"),
			Issuer: os.Getenv("JWT_ISSUER"),
			Leeway: getDurationOrDefault("JWT_LEEWAY", 30*time.Second),
		},
		RateLimit: RateLimitConfig{
			Enabled:           getBoolOrDefault("RATE_LIMIT_ENABLED", true),
			RequestsPerSecond: getFloatOrDefault("RATE_LIMIT_RPS", 10),
			BurstSize:         getIntOrDefault("RATE_LIMIT_BURST", 20),
			CreatePerHour:     getIntOrDefault("RATE_LIMIT_CREATE_PER_HOUR", 10),
			ReactionsPerMin:   getIntOrDefault("RATE_LIMIT_REACTIONS_PER_MIN", 30),
			APIPerMin:         getIntOrDefault("RATE_LIMIT_API_PER_MIN", 120),
			SweepInterval:     getDurationOrDefault("RATE_LIMIT_SWEEP_INTERVAL", 5*time.Minute),
		},
		WebSocket: WebSocketConfig{
			AllowedOrigins:  getStringSliceOrDefault("WS_ALLOWED_ORIGINS", []string{}),
			ReadBufferSize:  getIntOrDefault("WS_READ_BUFFER_SIZE", 1024),
			WriteBufferSize: getIntOrDefault("WS_WRITE_BUFFER_SIZE", 1024),
			PingInterval:    getDurationOrDefault("WS_PING_INTERVAL", 54*time.Second),
			PongWait:        getDurationOrDefault("WS_PONG_WAIT", 60*time.Second),
			MaxMessageSize:  int64(getIntOrDefault("WS_MAX_MESSAGE_SIZE", 16*1024)),
			SendBufferSize:  getIntOrDefault("WS_SEND_BUFFER_SIZE", 256),
		},
		Presence: PresenceConfig{
			TTL:       getDurationOrDefault("PRESENCE_TTL", 120*time.Second),
			Heartbeat: getDurationOrDefault("PRESENCE_HEARTBEAT", 45*time.Second),
		},
		Fallback: FallbackConfig{
			PollInterval: getDurationOrDefault("FALLBACK_POLL_INTERVAL", 2*time.Second),
			Lease:        getDurationOrDefault("FALLBACK_LEASE", time.Minute),
			BatchSize:    getIntOrDefault("FALLBACK_BATCH_SIZE", 20),
			Concurrency:  getIntOrDefault("FALLBACK_CONCURRENCY", 4),
			MaxAttempts:  getIntOrDefault("FALLBACK_MAX_ATTEMPTS", 5),
			BaseBackoff:  getDurationOrDefault("FALLBACK_BASE_BACKOFF", 2*time.Second),
			MaxBackoff:   getDurationOrDefault("FALLBACK_MAX_BACKOFF", 5*time.Minute),
		},
		NATS: NATSConfig{
			Enabled:        getBoolOrDefault("NATS_ENABLED", false),
			URL:            getEnvOrDefault("NATS_URL", "nats://127.0.0.1:4222"),
			Name:           getEnvOrDefault("NATS_NAME", "event-updates"),
			ConnectTimeout: getDurationOrDefault("NATS_CONNECT_TIMEOUT", 30*time.Second),
		},
		Updates: UpdatesConfig{
			EditWindow: getDurationOrDefault("UPDATES_EDIT_WINDOW", 5*time.Minute),
		},
		Logging: LoggingConfig{
			Level:      getEnvOrDefault("LOG_LEVEL", "info"),
			Format:     getEnvOrDefault("LOG_FORMAT", "json"),
			File:       os.Getenv("LOG_FILE"),
			MaxSizeMB:  getIntOrDefault("LOG_MAX_SIZE_MB", 100),
			MaxBackups: getIntOrDefault("LOG_MAX_BACKUPS", 5),
			MaxAgeDays: getIntOrDefault("LOG_MAX_AGE_DAYS", 28),
		},
		App: AppConfig{
			Name:        getEnvOrDefault("APP_NAME", "event-updates"),
			Version:     getEnvOrDefault("APP_VERSION", "dev"),
			Environment: getEnvOrDefault("APP_ENV", "development"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates settings every command needs.
func (c *Config) Validate() error {
	var errs []string

	if c.Database.URL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}

	if c.Database.MinConns > c.Database.MaxOpenConns {
		errs = append(errs, "DB_MIN_CONNS cannot be greater than DB_MAX_OPEN_CONNS")
	}

	if c.Presence.TTL <= 0 {
		errs = append(errs, "PRESENCE_TTL must be positive")
	}

	if c.Presence.Heartbeat <= 0 || c.Presence.Heartbeat >= c.Presence.TTL {
		errs = append(errs, "PRESENCE_HEARTBEAT must be positive and less than PRESENCE_TTL")
	}

	if c.Fallback.MaxAttempts < 1 {
		errs = append(errs, "FALLBACK_MAX_ATTEMPTS must be at least 1")
	}

	if c.Fallback.BaseBackoff > c.Fallback.MaxBackoff {
		errs = append(errs, "FALLBACK_BASE_BACKOFF cannot be greater than FALLBACK_MAX_BACKOFF")
	}

	if c.Updates.EditWindow <= 0 {
		errs = append(errs, "UPDATES_EDIT_WINDOW must be positive")
	}

	return joinErrors(errs)
}

// ValidateServer adds the checks only the HTTP server needs.
func (c *Config) ValidateServer() error {
	var errs []string

	if c.JWT.Secret == "" {
		errs = append(errs, "JWT_SECRET is required")
	}

	// Security validations
	if c.App.Environment == "production" {
		if len(c.JWT.Secret) < 32 {
			errs = append(errs, "JWT_SECRET must be at least 32 characters in production")
		}

		if len(c.WebSocket.AllowedOrigins) == 0 {
			errs = append(errs, "WS_ALLOWED_ORIGINS must be set in production")
		}
	}

	if c.WebSocket.PingInterval >= c.WebSocket.PongWait {
		errs = append(errs, "WS_PING_INTERVAL must be shorter than WS_PONG_WAIT")
	}

	return joinErrors(errs)
}

func joinErrors(errs []string) error {
	if len(errs) > 0 {
		return errors.New("configuration errors:\n  - " + strings.Join(errs, "\n  - "))
	}
	return nil
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// Helper functions

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

// String returns a redacted string representation of the config (safe for logging)
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Server: %s, DB: %s, JWT: [REDACTED], NATS: %v (%s), RateLimit: %v, Environment: %s}",
		c.Server.Port,
		redactURL(c.Database.URL),
		c.NATS.Enabled,
		redactURL(c.NATS.URL),
		c.RateLimit.Enabled,
		c.App.Environment,
	)
}

// redactURL hides credentials in a connection URL
func redactURL(url string) string {
	if url == "" {
		return ""
	}
	if idx := strings.Index(url, "@"); idx > 0 {
		return "[REDACTED]" + url[idx:]
	}
	if scheme := strings.Index(url, "://"); scheme > 0 {
		return url
	}
	return "[REDACTED]"
}
