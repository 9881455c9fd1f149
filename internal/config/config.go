// Package config provides application configuration management with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.chalssak/config.yaml)
//  3. Default values (sensible defaults for quick start)
//
// Main configuration categories:
//   - Gemini: model selection and File Search defaults
//   - Storage: PostgreSQL connection (see storage.go)
//   - Limits: upload capacity enforcement per channel
//   - Lifecycle/Trash: activity thresholds and retention window
//   - Scheduler: background job intervals
//   - Observability: OTLP trace export (see observability.go)
//
// Security: Sensitive data (passwords, API keys) are never logged; config
// directory uses 0750 permissions.
// Validation: Comprehensive range checks in validation.go with clear error messages.
//
// Error Handling:
//   - Uses sentinel errors for Go-idiomatic error checking with errors.Is()
//   - Wrap with context using fmt.Errorf("%w: details", ErrXxx)
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidServerPort indicates the HTTP listen port is out of range.
	ErrInvalidServerPort = errors.New("invalid server port")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresPassword indicates the PostgreSQL password is invalid.
	ErrInvalidPostgresPassword = errors.New("invalid PostgreSQL password")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidLimits indicates an upload limit value is out of range.
	ErrInvalidLimits = errors.New("invalid upload limits")

	// ErrInvalidLifecycle indicates the lifecycle thresholds are inconsistent.
	ErrInvalidLifecycle = errors.New("invalid lifecycle thresholds")

	// ErrInvalidRetention indicates the trash retention window is out of range.
	ErrInvalidRetention = errors.New("invalid trash retention")

	// ErrInvalidInterval indicates a scheduler interval is out of range.
	ErrInvalidInterval = errors.New("invalid scheduler interval")
)

const (
	// DefaultModelName is the Gemini model used for grounded generation.
	DefaultModelName = "gemini-2.5-flash"

	// DefaultEmbedderModel is the Gemini embedder model for note search.
	// gemini-embedding-001 outputs 3072 dimensions by default, but supports
	// truncation to 768 via OutputDimensionality (Matryoshka Representation
	// Learning). The pgvector schema uses 768 dimensions; see note.VectorDimension.
	DefaultEmbedderModel = "gemini-embedding-001"
)

// LimitsConfig controls per-channel upload capacity enforcement.
type LimitsConfig struct {
	// MaxFilesPerChannel caps the number of documents in one channel.
	MaxFilesPerChannel int `mapstructure:"max_files_per_channel" json:"max_files_per_channel"`
	// MaxChannelSizeMB caps the summed document size in one channel.
	MaxChannelSizeMB int `mapstructure:"max_channel_size_mb" json:"max_channel_size_mb"`
	// MaxFileSizeMB caps a single uploaded file.
	MaxFileSizeMB int `mapstructure:"max_file_size_mb" json:"max_file_size_mb"`
	// AllowedExtensions whitelists upload file extensions (lowercase, with dot).
	AllowedExtensions []string `mapstructure:"allowed_extensions" json:"allowed_extensions"`
}

// MaxChannelSizeBytes returns the channel size limit in bytes.
func (l LimitsConfig) MaxChannelSizeBytes() int64 {
	return int64(l.MaxChannelSizeMB) * 1024 * 1024
}

// MaxFileSizeBytes returns the single-file size limit in bytes.
func (l LimitsConfig) MaxFileSizeBytes() int64 {
	return int64(l.MaxFileSizeMB) * 1024 * 1024
}

// LifecycleConfig holds the channel activity thresholds.
// A channel is IDLE after IdleDays without access and INACTIVE
// (cleanup-eligible) after InactiveDays. InactiveDays must be >= IdleDays.
type LifecycleConfig struct {
	IdleDays     int `mapstructure:"idle_days" json:"idle_days"`
	InactiveDays int `mapstructure:"inactive_days" json:"inactive_days"`
}

// TrashConfig holds soft-delete retention settings.
type TrashConfig struct {
	// RetentionDays is how long trashed items stay restorable.
	RetentionDays int `mapstructure:"retention_days" json:"retention_days"`
}

// SchedulerConfig holds background job intervals.
type SchedulerConfig struct {
	Enabled         bool          `mapstructure:"enabled" json:"enabled"`
	ScanInterval    time.Duration `mapstructure:"scan_interval" json:"scan_interval"`
	StatsInterval   time.Duration `mapstructure:"stats_interval" json:"stats_interval"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" json:"cleanup_interval"`
}

// RateConfig holds per-IP request rate limits.
// ChatPerMinute and UploadPerHour gate the expensive endpoints separately
// from the default bucket. GatewayPerSecond paces outbound Gemini calls
// rather than inbound requests; zero disables client-side pacing.
type RateConfig struct {
	DefaultPerSecond float64 `mapstructure:"default_per_second" json:"default_per_second"`
	DefaultBurst     int     `mapstructure:"default_burst" json:"default_burst"`
	ChatPerMinute    int     `mapstructure:"chat_per_minute" json:"chat_per_minute"`
	UploadPerHour    int     `mapstructure:"upload_per_hour" json:"upload_per_hour"`
	GatewayPerSecond float64 `mapstructure:"gateway_per_second" json:"gateway_per_second"`
}

// Config stores application configuration.
// SECURITY: Sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields (passwords, API keys, tokens), update MarshalJSON.
type Config struct {
	// Gemini model configuration
	GeminiAPIKey  string `mapstructure:"gemini_api_key" json:"gemini_api_key"` // SENSITIVE: masked in MarshalJSON
	ModelName     string `mapstructure:"model_name" json:"model_name"`
	EmbedderModel string `mapstructure:"embedder_model" json:"embedder_model"`

	// HTTP server configuration
	Host        string   `mapstructure:"host" json:"host"`
	Port        int      `mapstructure:"port" json:"port"`
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins"`
	TrustProxy  bool     `mapstructure:"trust_proxy" json:"trust_proxy"` // Trust X-Real-IP/X-Forwarded-For headers (set true behind reverse proxy)

	// Storage configuration (see storage.go for documentation)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Domain configuration
	Limits    LimitsConfig    `mapstructure:"limits" json:"limits"`
	Lifecycle LifecycleConfig `mapstructure:"lifecycle" json:"lifecycle"`
	Trash     TrashConfig     `mapstructure:"trash" json:"trash"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" json:"scheduler"`
	Rates     RateConfig      `mapstructure:"rates" json:"rates"`

	// Observability configuration (see observability.go for type definition)
	Observability ObservabilityConfig `mapstructure:"observability" json:"observability"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	// Configuration directory: ~/.chalssak/
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".chalssak")

	// Ensure directory exists (use 0750 permission for better security)
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	// Configure Viper
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".") // Also support current directory

	// Set default values
	setDefaults()

	// Bind environment variables
	bindEnvVariables()

	// Read configuration file (if exists)
	if err := viper.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."},
			"config_name", "config.yaml")
	}

	// Use Unmarshal to automatically map to struct (type-safe)
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// Parse DATABASE_URL if set (highest priority for PostgreSQL config)
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	// CRITICAL: Validate immediately (fail-fast)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// Gemini defaults
	viper.SetDefault("model_name", DefaultModelName)
	viper.SetDefault("embedder_model", DefaultEmbedderModel)

	// Server defaults
	viper.SetDefault("host", "127.0.0.1")
	viper.SetDefault("port", 8000)
	viper.SetDefault("cors_origins", []string{"http://localhost:5173"})
	// Proxy trust (default: false — safe for direct exposure; set true behind reverse proxy)
	viper.SetDefault("trust_proxy", false)

	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "chalssak")
	viper.SetDefault("postgres_password", "chalssak_dev_password")
	viper.SetDefault("postgres_db_name", "chalssak")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// Upload limits
	viper.SetDefault("limits.max_files_per_channel", 100)
	viper.SetDefault("limits.max_channel_size_mb", 500)
	viper.SetDefault("limits.max_file_size_mb", 50)
	viper.SetDefault("limits.allowed_extensions", []string{".pdf", ".txt", ".docx"})

	// Lifecycle thresholds
	viper.SetDefault("lifecycle.idle_days", 30)
	viper.SetDefault("lifecycle.inactive_days", 90)

	// Trash retention
	viper.SetDefault("trash.retention_days", 30)

	// Scheduler intervals
	viper.SetDefault("scheduler.enabled", true)
	viper.SetDefault("scheduler.scan_interval", "24h")
	viper.SetDefault("scheduler.stats_interval", "6h")
	viper.SetDefault("scheduler.cleanup_interval", "24h")

	// Rate limits
	viper.SetDefault("rates.default_per_second", 1.67) // ~100/minute
	viper.SetDefault("rates.default_burst", 100)
	viper.SetDefault("rates.chat_per_minute", 10)
	viper.SetDefault("rates.upload_per_hour", 20)
	viper.SetDefault("rates.gateway_per_second", 10.0)

	// Observability defaults
	viper.SetDefault("observability.enabled", false)
	viper.SetDefault("observability.endpoint", "localhost:4318")
	viper.SetDefault("observability.environment", "dev")
	viper.SetDefault("observability.service_name", "chalssak")
}

// bindEnvVariables binds environment variables explicitly.
func bindEnvVariables() {
	// Helper to panic on unexpected bind errors (hardcoded strings can't fail)
	// If this panics, it's a BUG in our code, not a runtime error
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	// Gemini API key (required for serve mode)
	mustBind("gemini_api_key", "GEMINI_API_KEY")

	// Model overrides
	mustBind("model_name", "CHALSSAK_MODEL_NAME")
	mustBind("embedder_model", "CHALSSAK_EMBEDDER_MODEL")

	// Server overrides
	mustBind("host", "CHALSSAK_HOST")
	mustBind("port", "CHALSSAK_PORT")
	mustBind("cors_origins", "CHALSSAK_CORS_ORIGINS")
	mustBind("trust_proxy", "CHALSSAK_TRUST_PROXY")

	// Scheduler toggle (useful for running API-only replicas)
	mustBind("scheduler.enabled", "CHALSSAK_SCHEDULER_ENABLED")
}

// maskedValue is the placeholder for masked sensitive data.
// Using ████████ (full-width blocks U+2588) to avoid substring matching
// Previous attempts:
// - "****" failed: passwords with "*" leaked
// - "[REDACTED]" failed: passwords with "A", "D", "E", etc. leaked
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Shows first 2 and last 2 characters, masks the rest.
// SECURITY: For secrets <=8 chars, fully masks to prevent substring attacks.
// For longer secrets, shows partial chars with unique separator.
//
// THREAT MODEL: This defends against accidental logging of real secrets.
// It is NOT cryptographically secure - if logs are compromised, rotate secrets.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	// Fully mask short secrets to prevent substring matching attacks
	// Example attack: input "00***" → output "00******" contains "00***"
	if len(s) <= 8 {
		return maskedValue
	}
	// For longer secrets, show first/last 2 chars for debug utility
	// Example: "my_long_secret_key_123" → "my<████████>23"
	prefix := make([]byte, 2)
	suffix := make([]byte, 2)
	copy(prefix, s[:2])
	copy(suffix, s[len(s)-2:])
	return string(prefix) + "<" + maskedValue + ">" + string(suffix)
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
//
// Sensitive fields masked:
//   - GeminiAPIKey
//   - PostgresPassword
//
// When adding new sensitive fields, update this method or the nested struct's
// MarshalJSON. The compiler will remind you when tests fail.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.GeminiAPIKey = maskSecret(a.GeminiAPIKey)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
