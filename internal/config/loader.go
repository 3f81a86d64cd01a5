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

// Load reads configuration from environment variables.
// It applies defaults for unset values and validates the result.
// Returns an error if required values are missing or validation fails.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// parsers convert an env value into a field of the given kind.
var parsers = map[reflect.Kind]func(field reflect.Value, value string) error{
	reflect.String: func(field reflect.Value, value string) error {
		field.SetString(value)
		return nil
	},
	reflect.Int:   parseInt,
	reflect.Int64: parseInt,
	reflect.Bool: func(field reflect.Value, value string) error {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)
		return nil
	},
	reflect.Slice: func(field reflect.Value, value string) error {
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}
		// Comma-separated; blanks are dropped.
		var items []string
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		field.Set(reflect.ValueOf(items))
		return nil
	},
}

func parseInt(field reflect.Value, value string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		field.SetInt(int64(d))
		return nil
	}
	i, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid integer: %w", err)
	}
	field.SetInt(i)
	return nil
}

// loadStruct fills tagged fields of v from the environment, descending into
// nested section structs. Every bad variable is reported, not just the first.
func loadStruct(v reflect.Value) error {
	var errs []error
	for i := range v.NumField() {
		sf, fv := v.Type().Field(i), v.Field(i)
		if !fv.CanSet() {
			continue
		}
		if sf.Type.Kind() == reflect.Struct {
			errs = append(errs, loadStruct(fv))
			continue
		}
		errs = append(errs, loadField(sf, fv))
	}
	return errors.Join(errs...)
}

func loadField(sf reflect.StructField, fv reflect.Value) error {
	name := sf.Tag.Get("env")
	if name == "" {
		return nil
	}

	value, source := lookupEnv(name, sf.Tag.Get("envAlt"))
	if value == "" {
		if sf.Tag.Get("required") == "true" {
			return fmt.Errorf("required environment variable %s is not set", name)
		}
		value, source = sf.Tag.Get("default"), name
	}
	if value == "" {
		return nil
	}

	parse, ok := parsers[fv.Kind()]
	if !ok {
		return fmt.Errorf("%s: unsupported field type %s", source, fv.Kind())
	}
	if err := parse(fv, value); err != nil {
		return fmt.Errorf("invalid value for %s=%q: %w", source, value, err)
	}
	return nil
}

// lookupEnv returns the first non-empty value of name or alt, and which one it was.
func lookupEnv(name, alt string) (string, string) {
	if v := os.Getenv(name); v != "" {
		return v, name
	}
	if alt != "" {
		if v := os.Getenv(alt); v != "" {
			return v, alt
		}
	}
	return "", name
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Store validation
	switch strings.ToLower(c.Store.Driver) {
	case "postgres":
		if c.Store.URL == "" {
			errs = append(errs, "DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			errs = append(errs, "SQLITE_PATH is required when STORE_DRIVER=sqlite")
		}
	default:
		errs = append(errs, fmt.Sprintf("STORE_DRIVER (%q) must be one of: postgres, sqlite", c.Store.Driver))
	}
	if c.Store.MaxConns < c.Store.MinConns {
		errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
			c.Store.MaxConns, c.Store.MinConns))
	}
	if c.Store.MaxConns <= 0 {
		errs = append(errs, "DB_MAX_CONNS must be positive")
	}
	if c.Store.MinConns < 0 {
		errs = append(errs, "DB_MIN_CONNS must be non-negative")
	}

	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	// Ingest validation
	if c.Ingest.MaxConcurrentJobs <= 0 {
		errs = append(errs, "INGEST_MAX_CONCURRENT_JOBS must be positive")
	}
	if c.Ingest.MaxFileSize <= 0 {
		errs = append(errs, "INGEST_MAX_FILE_SIZE must be positive")
	}
	if c.Ingest.FileTimeout <= 0 {
		errs = append(errs, "INGEST_FILE_TIMEOUT must be positive")
	}
	validPolicies := map[string]bool{"skip": true, "halt": true}
	if !validPolicies[strings.ToLower(c.Ingest.ErrorPolicy)] {
		errs = append(errs, fmt.Sprintf("INGEST_ERROR_POLICY (%q) must be one of: skip, halt", c.Ingest.ErrorPolicy))
	}
	if c.Ingest.PersistRetries < 0 {
		errs = append(errs, "INGEST_PERSIST_RETRIES must be non-negative")
	}
	if c.Ingest.RetryInitialInterval <= 0 || c.Ingest.RetryMaxInterval < c.Ingest.RetryInitialInterval {
		errs = append(errs, "INGEST_RETRY_INITIAL_INTERVAL must be positive and <= INGEST_RETRY_MAX_INTERVAL")
	}
	if c.Ingest.JobRetention <= 0 {
		errs = append(errs, "INGEST_JOB_RETENTION must be positive")
	}

	// Watch validation
	if c.Watch.Enabled && c.Watch.Interval < time.Second {
		errs = append(errs, "WATCH_INTERVAL must be at least 1s when the watch scheduler is enabled")
	}

	// Rate limit validation
	if c.Rate.Enabled && c.Rate.RequestsPerMinute <= 0 {
		errs = append(errs, "RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
	}
	if c.Rate.Enabled && c.Rate.StartLimit <= 0 {
		errs = append(errs, "RATE_LIMIT_START must be positive when rate limiting is enabled")
	}

	// Security validation
	if c.Security.RequireAPIKey && len(c.Security.APIKeys) == 0 {
		errs = append(errs, "REQUIRE_API_KEY is true but API_KEYS is empty; configure at least one API key or disable auth")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// Sensitive values like database URLs and API keys are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port))
	b.WriteString(fmt.Sprintf("Store: {Driver: %q, URL: [MASKED], MaxConns: %d, MinConns: %d}, ",
		c.Store.Driver, c.Store.MaxConns, c.Store.MinConns))
	b.WriteString(fmt.Sprintf("Ingest: {MaxConcurrentJobs: %d, MaxFileSize: %d, ErrorPolicy: %q}, ",
		c.Ingest.MaxConcurrentJobs, c.Ingest.MaxFileSize, c.Ingest.ErrorPolicy))
	b.WriteString(fmt.Sprintf("Watch: {Enabled: %v, Interval: %s}, ", c.Watch.Enabled, c.Watch.Interval))
	b.WriteString(fmt.Sprintf("Rate: {Enabled: %v, RequestsPerMinute: %d}, ",
		c.Rate.Enabled, c.Rate.RequestsPerMinute))
	b.WriteString(fmt.Sprintf("Security: {RequireAPIKey: %v, APIKeys: %d configured}, ",
		c.Security.RequireAPIKey, len(c.Security.APIKeys)))
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q}",
		c.Logging.Level, c.Logging.Format))
	b.WriteString("}")
	return b.String()
}
