package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// minSecretLen is the minimum length of every signing secret.
const minSecretLen = 32

var durationType = reflect.TypeOf(time.Duration(0))

// Load reads configuration from environment variables, applies tag defaults
// and validates the result. Every missing or malformed variable is reported
// in the returned error, not only the first.
func Load() (*Config, error) {
	cfg := &Config{}

	var problems []string
	walkEnv(reflect.ValueOf(cfg).Elem(), &problems)
	if len(problems) > 0 {
		return nil, fmt.Errorf("config load: %s", strings.Join(problems, "; "))
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// envTag is the parsed form of a field's env, envAlt, default and required tags.
type envTag struct {
	names    []string
	fallback string
	required bool
}

func parseEnvTag(f reflect.StructField) (envTag, bool) {
	name := f.Tag.Get("env")
	if name == "" {
		return envTag{}, false
	}
	tag := envTag{
		names:    []string{name},
		fallback: f.Tag.Get("default"),
		required: f.Tag.Get("required") == "true",
	}
	if alt := f.Tag.Get("envAlt"); alt != "" {
		tag.names = append(tag.names, alt)
	}
	return tag, true
}

// lookup returns the first non-empty variable among names, then the default.
func (t envTag) lookup() (string, bool) {
	for _, n := range t.names {
		if v := os.Getenv(n); v != "" {
			return v, true
		}
	}
	return t.fallback, t.fallback != ""
}

// walkEnv fills the tagged fields of v, descending into nested config groups.
func walkEnv(v reflect.Value, problems *[]string) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field, fv := t.Field(i), v.Field(i)
		if !fv.CanSet() {
			continue
		}
		if field.Type.Kind() == reflect.Struct {
			walkEnv(fv, problems)
			continue
		}

		tag, ok := parseEnvTag(field)
		if !ok {
			continue
		}
		raw, found := tag.lookup()
		switch {
		case !found && tag.required:
			*problems = append(*problems, fmt.Sprintf("%s is required", tag.names[0]))
		case !found:
		default:
			if err := assign(fv, raw); err != nil {
				*problems = append(*problems, fmt.Sprintf("%s=%q: %v", tag.names[0], raw, err))
			}
		}
	}
}

var errUnsupported = errors.New("unsupported field type")

// assign parses raw into the field's kind.
func assign(fv reflect.Value, raw string) error {
	switch {
	case fv.Type() == durationType:
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		fv.SetInt(int64(d))
	case fv.Kind() == reflect.String:
		fv.SetString(raw)
	case fv.Kind() == reflect.Int, fv.Kind() == reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		fv.SetInt(n)
	case fv.Kind() == reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		fv.SetBool(b)
	case fv.Kind() == reflect.Slice && fv.Type().Elem().Kind() == reflect.String:
		fv.Set(reflect.ValueOf(splitList(raw)))
	default:
		return fmt.Errorf("%w %s", errUnsupported, fv.Type())
	}
	return nil
}

// splitList splits a comma-separated value, dropping blank items.
func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	// Database validation
	if c.Database.URL == "" {
		add("DATABASE_URL is required")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		add("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)", c.Database.MaxConns, c.Database.MinConns)
	}
	if c.Database.MaxConns <= 0 {
		add("DB_MAX_CONNS must be positive")
	}
	if c.Database.MinConns < 0 {
		add("DB_MIN_CONNS must be non-negative")
	}

	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		add("SERVER_PORT (%d) must be 1-65535", c.Server.Port)
	}
	if c.Server.ReadTimeout < 0 {
		add("SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		add("SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	// Import validation
	if c.Import.MaxFileSize <= 0 {
		add("IMPORT_MAX_FILE_SIZE must be positive")
	}
	if c.Import.MaxRows <= 0 {
		add("IMPORT_MAX_ROWS must be positive")
	}
	if c.Import.MaxLineBytes <= 0 {
		add("IMPORT_MAX_LINE_BYTES must be positive")
	}
	if c.Import.MaxConcurrent <= 0 {
		add("IMPORT_MAX_CONCURRENT must be positive")
	}
	if c.Import.MaxWaitTime <= 0 {
		add("IMPORT_MAX_WAIT_TIME must be positive")
	}
	if c.Import.Timeout <= 0 {
		add("IMPORT_TIMEOUT must be positive")
	}

	// OTP validation
	if len(c.OTP.Secret) < minSecretLen {
		add("OTP_SECRET must be at least %d bytes", minSecretLen)
	}
	if c.OTP.TTL <= 0 {
		add("OTP_TTL must be positive")
	}
	if c.OTP.MaxAttempts <= 0 {
		add("OTP_MAX_ATTEMPTS must be positive")
	}
	if c.OTP.Cooldown < 0 {
		add("OTP_RESEND_COOLDOWN must be non-negative")
	}
	if c.OTP.Window <= 0 || c.OTP.EmailLimit <= 0 || c.OTP.IPEmailLimit <= 0 || c.OTP.IPLimit <= 0 {
		add("OTP_LIMIT_* values and OTP_LIMIT_WINDOW must be positive")
	}

	// Mail validation
	if c.Mail.Host != "" && (c.Mail.Port <= 0 || c.Mail.Port > 65535) {
		add("SMTP_PORT (%d) must be 1-65535", c.Mail.Port)
	}

	// Rate limit validation
	if c.Rate.Enabled && c.Rate.RequestsPerMinute <= 0 {
		add("RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
	}
	switch strings.ToLower(c.Rate.Backend) {
	case "memory", "postgres":
	case "redis":
		if c.Redis.URL == "" {
			add("REDIS_URL is required when RATE_LIMIT_BACKEND is redis")
		}
	default:
		add("RATE_LIMIT_BACKEND (%q) must be one of: memory, postgres, redis", c.Rate.Backend)
	}

	// Security validation
	if len(c.Security.JWTSecret) < minSecretLen {
		add("ADMIN_JWT_SECRET must be at least %d bytes", minSecretLen)
	}
	if len(c.Security.SessionKey) < minSecretLen {
		add("SESSION_KEY must be at least %d bytes", minSecretLen)
	}
	if c.Security.TokenTTL <= 0 {
		add("ADMIN_TOKEN_TTL must be positive")
	}

	// Survey validation
	if c.Survey.DraftTTL <= 0 {
		add("SURVEY_DRAFT_TTL must be positive")
	}

	// Sweeper validation
	if c.Sweeper.Interval <= 0 {
		add("SWEEPER_INTERVAL must be positive")
	}
	if c.Sweeper.Retention <= 0 {
		add("SWEEPER_RETENTION must be positive")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		add("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level)
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		add("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format)
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// Secrets and the database URL are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port)
	fmt.Fprintf(&b, "Database: {URL: [MASKED], MaxConns: %d, MinConns: %d}, ",
		c.Database.MaxConns, c.Database.MinConns)
	fmt.Fprintf(&b, "Import: {MaxFileSize: %d, MaxRows: %d, MaxConcurrent: %d}, ",
		c.Import.MaxFileSize, c.Import.MaxRows, c.Import.MaxConcurrent)
	fmt.Fprintf(&b, "OTP: {Secret: [MASKED], TTL: %s, MaxAttempts: %d}, ", c.OTP.TTL, c.OTP.MaxAttempts)
	fmt.Fprintf(&b, "Mail: {Host: %q, Port: %d, From: %q}, ", c.Mail.Host, c.Mail.Port, c.Mail.From)
	fmt.Fprintf(&b, "Rate: {Enabled: %v, RequestsPerMinute: %d, Backend: %q}, ",
		c.Rate.Enabled, c.Rate.RequestsPerMinute, c.Rate.Backend)
	fmt.Fprintf(&b, "Survey: {DraftTTL: %s, RequireEmailVerification: %v}, ",
		c.Survey.DraftTTL, c.Survey.RequireEmailVerification)
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format)
	b.WriteString("}")
	return b.String()
}
