package config

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
//
// Validate covers everything a non-serving command (migrate, version) needs.
// ValidateServe adds the checks that only matter when talking to Gemini.
func (c *Config) Validate() error {
	// 0. Check for nil config (defensive programming)
	if c == nil {
		return ErrConfigNil
	}

	// 1. Model configuration validation
	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name cannot be empty", ErrInvalidModelName)
	}
	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidEmbedderModel)
	}

	// 2. HTTP server validation
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidServerPort, c.Port)
	}

	// 3. PostgreSQL configuration validation
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}
	if c.PostgresPassword == "" {
		return fmt.Errorf("%w: postgres_password must be set in config.yaml",
			ErrInvalidPostgresPassword)
	}

	// Warn if using default dev password (but don't block - user might be in dev)
	if c.PostgresPassword == "chalssak_dev_password" {
		slog.Warn("Using default development password for PostgreSQL",
			"warning", "Change postgres_password in config.yaml for production deployments")
	}

	// 4. PostgreSQL SSL mode validation
	// Modern SSL modes only - exclude deprecated allow/prefer (MITM vulnerable)
	// Reference: https://www.postgresql.org/docs/current/libpq-ssl.html
	validSSLModes := []string{"disable", "require", "verify-ca", "verify-full"}
	if c.PostgresSSLMode == "" {
		return fmt.Errorf("%w: postgres_ssl_mode is empty (should have default from setDefaults)",
			ErrInvalidPostgresSSLMode)
	}
	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: %q is not valid, must be one of: %v\n"+
			"Note: 'allow' and 'prefer' modes are deprecated (vulnerable to MITM attacks)",
			ErrInvalidPostgresSSLMode, c.PostgresSSLMode, validSSLModes)
	}

	// 5. Upload limits validation
	if err := c.Limits.validate(); err != nil {
		return err
	}

	// 6. Lifecycle thresholds: a channel must pass through IDLE before it can
	// become INACTIVE, so inactive_days >= idle_days.
	if c.Lifecycle.IdleDays < 1 {
		return fmt.Errorf("%w: idle_days must be at least 1, got %d",
			ErrInvalidLifecycle, c.Lifecycle.IdleDays)
	}
	if c.Lifecycle.InactiveDays < c.Lifecycle.IdleDays {
		return fmt.Errorf("%w: inactive_days (%d) must be >= idle_days (%d)",
			ErrInvalidLifecycle, c.Lifecycle.InactiveDays, c.Lifecycle.IdleDays)
	}

	// 7. Trash retention validation
	if c.Trash.RetentionDays < 1 {
		return fmt.Errorf("%w: retention_days must be at least 1, got %d",
			ErrInvalidRetention, c.Trash.RetentionDays)
	}

	// 8. Scheduler intervals (only checked when the scheduler is enabled)
	if c.Scheduler.Enabled {
		for name, iv := range map[string]time.Duration{
			"scan_interval":    c.Scheduler.ScanInterval,
			"stats_interval":   c.Scheduler.StatsInterval,
			"cleanup_interval": c.Scheduler.CleanupInterval,
		} {
			if iv < time.Minute {
				return fmt.Errorf("%w: %s must be at least 1m, got %s", ErrInvalidInterval, name, iv)
			}
		}
	}

	return nil
}

// validate checks the upload limit values for internal consistency.
func (l LimitsConfig) validate() error {
	if l.MaxFilesPerChannel < 1 {
		return fmt.Errorf("%w: max_files_per_channel must be at least 1, got %d",
			ErrInvalidLimits, l.MaxFilesPerChannel)
	}
	if l.MaxChannelSizeMB < 1 {
		return fmt.Errorf("%w: max_channel_size_mb must be at least 1, got %d",
			ErrInvalidLimits, l.MaxChannelSizeMB)
	}
	if l.MaxFileSizeMB < 1 {
		return fmt.Errorf("%w: max_file_size_mb must be at least 1, got %d",
			ErrInvalidLimits, l.MaxFileSizeMB)
	}
	if l.MaxFileSizeMB > l.MaxChannelSizeMB {
		return fmt.Errorf("%w: max_file_size_mb (%d) cannot exceed max_channel_size_mb (%d)",
			ErrInvalidLimits, l.MaxFileSizeMB, l.MaxChannelSizeMB)
	}
	if len(l.AllowedExtensions) == 0 {
		return fmt.Errorf("%w: allowed_extensions cannot be empty", ErrInvalidLimits)
	}
	for _, ext := range l.AllowedExtensions {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			return fmt.Errorf("%w: extension %q must start with a dot", ErrInvalidLimits, ext)
		}
	}
	return nil
}

// ValidateServe validates configuration required for serve mode.
// Runs Validate first, then checks the Gemini API key, which every
// gateway call (store CRUD, generation, embeddings) depends on.
func (c *Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.GeminiAPIKey == "" && os.Getenv("GEMINI_API_KEY") == "" {
		return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required\n"+
			"Get your API key at: https://ai.google.dev/gemini-api/docs/api-key",
			ErrMissingAPIKey)
	}

	return nil
}

// APIKey returns the Gemini API key from config, falling back to the
// GEMINI_API_KEY environment variable.
func (c *Config) APIKey() string {
	if c.GeminiAPIKey != "" {
		return c.GeminiAPIKey
	}
	return os.Getenv("GEMINI_API_KEY")
}
