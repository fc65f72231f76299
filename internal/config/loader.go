package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Load builds the configuration from the environment: every section of
// Config is read from its env tags, unset fields take their defaults, and the
// result is validated. Fields that fail to parse are all reported together.
// Command-line flags are applied by the caller on top of the Build section.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := loadSection(reflect.ValueOf(cfg).Elem(), ""); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// loadSection fills the tagged fields of one config section and recurses into
// nested sections. path names the section in error messages, e.g. "Build".
//
// Tags:
//
//	env       primary variable name
//	envAlt    fallback variable name (DB_URL, MINIO_ACCESS_KEY)
//	default   value used when neither variable is set
//	required  "true" rejects an unset variable
//	unit      "bytes" accepts sizes such as 512MiB or 64MB
func loadSection(v reflect.Value, path string) error {
	t := v.Type()

	var errs []error
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)
		if !fieldVal.CanSet() {
			continue
		}

		name := field.Name
		if path != "" {
			name = path + "." + field.Name
		}

		if field.Type.Kind() == reflect.Struct {
			if err := loadSection(fieldVal, name); err != nil {
				errs = append(errs, err)
			}
			continue
		}

		envName := field.Tag.Get("env")
		if envName == "" {
			continue
		}

		value, ok := lookupEnv(envName, field.Tag.Get("envAlt"))
		if !ok {
			if field.Tag.Get("required") == "true" {
				errs = append(errs, fmt.Errorf("%s: required environment variable %s is not set", name, envName))
				continue
			}
			value = field.Tag.Get("default")
		}
		if value == "" {
			continue
		}

		if err := setField(fieldVal, value, field.Tag.Get("unit")); err != nil {
			errs = append(errs, fmt.Errorf("%s: invalid value for %s=%q: %w", name, envName, value, err))
		}
	}

	return errors.Join(errs...)
}

// lookupEnv returns the first non-empty value of the primary and alternate
// variables.
func lookupEnv(name, alt string) (string, bool) {
	if v := os.Getenv(name); v != "" {
		return v, true
	}
	if alt != "" {
		if v := os.Getenv(alt); v != "" {
			return v, true
		}
	}
	return "", false
}

// setField parses value into field. Durations use time.ParseDuration, byte
// sizes go-humanize, and string slices are comma separated with blanks
// dropped.
func setField(field reflect.Value, value, unit string) error {
	switch {
	case field.Type() == reflect.TypeOf(time.Duration(0)):
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		field.SetInt(int64(d))

	case unit == "bytes":
		n, err := humanize.ParseBytes(value)
		if err != nil {
			return fmt.Errorf("invalid size: %w", err)
		}
		if n > math.MaxInt64 {
			return fmt.Errorf("size %s is too large", value)
		}
		field.SetInt(int64(n))

	case field.Kind() == reflect.String:
		field.SetString(value)

	case field.Kind() == reflect.Int || field.Kind() == reflect.Int64:
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		field.SetInt(i)

	case field.Kind() == reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case field.Kind() == reflect.Slice && field.Type().Elem().Kind() == reflect.String:
		var items []string
		for _, p := range strings.Split(value, ",") {
			if p = strings.TrimSpace(p); p != "" {
				items = append(items, p)
			}
		}
		field.Set(reflect.ValueOf(items))

	default:
		return fmt.Errorf("unsupported field type: %s", field.Type())
	}

	return nil
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Build validation
	if strings.TrimSpace(c.Build.WorkDir) == "" {
		errs = append(errs, "IMPORTSET_WORKDIR must not be empty")
	}
	if c.Build.MaxEntryBytes <= 0 {
		errs = append(errs, "IMPORTSET_MAX_ENTRY_BYTES must be positive")
	}

	// Database validation, only when history is enabled
	if c.Database.Enabled() {
		if c.Database.MaxConns < c.Database.MinConns {
			errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
				c.Database.MaxConns, c.Database.MinConns))
		}
		if c.Database.MaxConns <= 0 {
			errs = append(errs, "DB_MAX_CONNS must be positive")
		}
		if c.Database.MinConns < 0 {
			errs = append(errs, "DB_MIN_CONNS must be non-negative")
		}
	}

	// Publish validation, only when publishing is enabled
	if c.Publish.Enabled() {
		if c.Publish.AccessKey == "" || c.Publish.SecretKey == "" {
			errs = append(errs, "PUBLISH_ACCESS_KEY and PUBLISH_SECRET_KEY are required when PUBLISH_ENDPOINT is set")
		}
		if c.Publish.Bucket == "" {
			errs = append(errs, "PUBLISH_BUCKET must not be empty")
		}
		if strings.Contains(c.Publish.Endpoint, "://") {
			errs = append(errs, fmt.Sprintf("PUBLISH_ENDPOINT (%q) must be host[:port] without a scheme", c.Publish.Endpoint))
		}
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
	if c.Server.MaxConcurrentBuilds <= 0 {
		errs = append(errs, "SERVER_MAX_CONCURRENT_BUILDS must be positive")
	}
	if c.Server.MaxWaitTime <= 0 {
		errs = append(errs, "SERVER_MAX_WAIT_TIME must be positive")
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
// Sensitive values like database URLs and storage keys are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("Build: {WorkDir: %q, Imports: %q, Keep: %v, MaxEntryBytes: %s}, ",
		c.Build.WorkDir, c.Build.ImportsPath, c.Build.KeepAllSubs, humanize.IBytes(uint64(max(c.Build.MaxEntryBytes, 0)))))
	b.WriteString(fmt.Sprintf("Database: {Enabled: %v, URL: %s, MaxConns: %d}, ",
		c.Database.Enabled(), mask(c.Database.URL), c.Database.MaxConns))
	b.WriteString(fmt.Sprintf("Publish: {Endpoint: %q, Bucket: %q, AccessKey: %s, SecretKey: %s}, ",
		c.Publish.Endpoint, c.Publish.Bucket, mask(c.Publish.AccessKey), mask(c.Publish.SecretKey)))
	b.WriteString(fmt.Sprintf("Server: {Host: %q, Port: %d, MaxConcurrentBuilds: %d}, ",
		c.Server.Host, c.Server.Port, c.Server.MaxConcurrentBuilds))
	b.WriteString(fmt.Sprintf("Security: {RequireAPIKey: %v, APIKeys: %d, TrustedProxies: %d}, ",
		c.Security.RequireAPIKey, len(c.Security.APIKeys), len(c.Security.TrustedProxies)))
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q}",
		c.Logging.Level, c.Logging.Format))
	b.WriteString("}")
	return b.String()
}

func mask(s string) string {
	if s == "" {
		return "[UNSET]"
	}
	return "[MASKED]"
}
