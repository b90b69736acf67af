// Package config provides centralized configuration management for the survey portal.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Import   ImportConfig
	OTP      OTPConfig
	Mail     MailConfig
	Rate     RateLimitConfig
	Redis    RedisConfig
	Security SecurityConfig
	Survey   SurveyConfig
	RefData  RefDataConfig
	Logging  LoggingConfig
	Sweeper  SweeperConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 30s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"30s"`

	// WriteTimeout is the maximum duration for writing response (default: 0, exports stream)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for non-import requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	// Supports both DATABASE_URL and DB_URL env vars
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"20"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// AutoMigrate applies the embedded schema on startup (default: true)
	AutoMigrate bool `env:"DB_AUTO_MIGRATE" default:"true"`
}

// ImportConfig holds CSV import settings.
type ImportConfig struct {
	// MaxFileSize is the maximum upload size in bytes (default: 5MB)
	MaxFileSize int64 `env:"IMPORT_MAX_FILE_SIZE" default:"5242880"`

	// MaxRows is the maximum number of data rows processed (default: 5000)
	MaxRows int `env:"IMPORT_MAX_ROWS" default:"5000"`

	// MaxLineBytes caps a single physical line (default: 200KB)
	MaxLineBytes int `env:"IMPORT_MAX_LINE_BYTES" default:"204800"`

	// MaxErrors caps the row errors returned in a result (default: 200)
	MaxErrors int `env:"IMPORT_MAX_ERRORS" default:"200"`

	// MaxConcurrent is the maximum number of parallel imports (default: 3)
	MaxConcurrent int `env:"IMPORT_MAX_CONCURRENT" default:"3"`

	// MaxWaitTime is how long to wait for an import slot (default: 30s)
	MaxWaitTime time.Duration `env:"IMPORT_MAX_WAIT_TIME" default:"30s"`

	// Timeout bounds a single import (default: 10m)
	Timeout time.Duration `env:"IMPORT_TIMEOUT" default:"10m"`
}

// OTPConfig holds one-time code settings.
type OTPConfig struct {
	// Secret keys the code digests (required, at least 32 bytes)
	Secret string `env:"OTP_SECRET" required:"true"`

	TTL         time.Duration `env:"OTP_TTL" default:"10m"`
	MaxAttempts int           `env:"OTP_MAX_ATTEMPTS" default:"5"`
	Cooldown    time.Duration `env:"OTP_RESEND_COOLDOWN" default:"60s"`

	// Issuance buckets per Window
	IPEmailLimit int           `env:"OTP_LIMIT_IP_EMAIL" default:"5"`
	EmailLimit   int           `env:"OTP_LIMIT_EMAIL" default:"20"`
	IPLimit      int           `env:"OTP_LIMIT_IP" default:"60"`
	Window       time.Duration `env:"OTP_LIMIT_WINDOW" default:"1h"`
}

// MailConfig holds SMTP settings. With no host, emails are logged instead of sent.
type MailConfig struct {
	Host     string `env:"SMTP_HOST"`
	Port     int    `env:"SMTP_PORT" default:"587"`
	Username string `env:"SMTP_USERNAME"`
	Password string `env:"SMTP_PASSWORD"`
	From     string `env:"MAIL_FROM" default:"no-reply@eteeap.local"`
	FromName string `env:"MAIL_FROM_NAME" default:"ETEEAP Survey"`
}

// RateLimitConfig holds HTTP rate limiting settings.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// SubmitLimit is requests per minute for survey submissions (default: 10)
	SubmitLimit int `env:"RATE_LIMIT_SUBMIT" default:"10"`

	// LoginLimit is requests per minute for admin sign-in (default: 10)
	LoginLimit int `env:"RATE_LIMIT_LOGIN" default:"10"`

	// Backend stores the counters: memory, postgres or redis (default: memory)
	Backend string `env:"RATE_LIMIT_BACKEND" default:"memory"`
}

// RedisConfig holds the Redis connection used by the redis rate limit backend.
type RedisConfig struct {
	URL    string `env:"REDIS_URL"`
	Prefix string `env:"REDIS_PREFIX" default:"eteeap:rl:"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`

	// JWTSecret signs admin tokens (required, at least 32 bytes)
	JWTSecret string `env:"ADMIN_JWT_SECRET" required:"true"`

	// TokenTTL is the admin session lifetime (default: 8h)
	TokenTTL time.Duration `env:"ADMIN_TOKEN_TTL" default:"8h"`

	// SessionKey authenticates the wizard cookie (required, at least 32 bytes)
	SessionKey string `env:"SESSION_KEY" required:"true"`

	// SecureCookies sets the Secure flag on cookies (default: true)
	SecureCookies bool `env:"SECURE_COOKIES" default:"true"`
}

// SurveyConfig holds wizard settings.
type SurveyConfig struct {
	DraftTTL                 time.Duration `env:"SURVEY_DRAFT_TTL" default:"24h"`
	RequireEmailVerification bool          `env:"SURVEY_REQUIRE_EMAIL_VERIFICATION" default:"true"`
}

// RefDataConfig locates the reference CSV files.
type RefDataConfig struct {
	Dir string `env:"REFDATA_DIR" default:"./refdata"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// SweeperConfig holds the maintenance job settings.
type SweeperConfig struct {
	// Interval is how often expired rows are cleaned up (default: 15m)
	Interval time.Duration `env:"SWEEPER_INTERVAL" default:"15m"`

	// Retention keeps ended challenges and rate buckets this long (default: 24h)
	Retention time.Duration `env:"SWEEPER_RETENTION" default:"24h"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
