// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.sqlsage/config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - AI: provider and per-role model selection (SQL, code, conversation),
//     embedder model, temperature
//   - Database: PostgreSQL connection for schema extraction and execution
//   - Index: persistence directory for the vector indices
//   - Gateway: admission limit and retry policy for model calls
//   - Router: result cache sizing and TTL
//
// Security: sensitive values (the database password) are masked in
// MarshalJSON and String. Validation is fail-fast with sentinel errors
// usable via errors.Is().
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidModelName indicates a model name is empty or malformed.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidRetryPolicy indicates the gateway retry settings are invalid.
	ErrInvalidRetryPolicy = errors.New("invalid retry policy")

	// ErrInvalidCacheSize indicates the result cache size is invalid.
	ErrInvalidCacheSize = errors.New("invalid cache size")

	// ErrInvalidTopK indicates the retrieval top-k is out of range.
	ErrInvalidTopK = errors.New("invalid retrieval top-k")
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderGemini   = "gemini"
	ProviderGoogleAI = "googleai"
)

const (
	// DefaultEmbedderModel is the default Gemini embedder model.
	DefaultEmbedderModel = "gemini-embedding-001"

	// DefaultSearchTopK is the number of index chunks retrieved per prompt.
	DefaultSearchTopK = 3

	// DefaultSummarizeThreshold is the number of meaningful history turns
	// above which absorption summarizes before embedding.
	DefaultSummarizeThreshold = 20
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
type Config struct {
	// AI provider and model configuration. The three model roles mirror the
	// three call sites: SQL generation, code/script generation, and
	// classification plus general conversation.
	Provider    string  `mapstructure:"provider" json:"provider"`
	SQLModel    string  `mapstructure:"sql_model" json:"sql_model"`
	CodeModel   string  `mapstructure:"code_model" json:"code_model"`
	ChatModel   string  `mapstructure:"chat_model" json:"chat_model"`
	Temperature float32 `mapstructure:"temperature" json:"temperature"`

	// Retrieval configuration
	EmbedderModel      string `mapstructure:"embedder_model" json:"embedder_model"`
	IndexDir           string `mapstructure:"index_dir" json:"index_dir"`
	SearchTopK         int    `mapstructure:"search_top_k" json:"search_top_k"`
	SummarizeHistory   bool   `mapstructure:"summarize_history" json:"summarize_history"`
	SummarizeThreshold int    `mapstructure:"summarize_threshold" json:"summarize_threshold"`

	// Gateway configuration (model-call admission and retry)
	MaxConcurrentCalls int  `mapstructure:"max_concurrent_calls" json:"max_concurrent_calls"` // 0 = available parallelism
	MaxAttempts        int  `mapstructure:"max_attempts" json:"max_attempts"`
	BackoffBaseSeconds int  `mapstructure:"backoff_base_seconds" json:"backoff_base_seconds"`
	Jitter             bool `mapstructure:"jitter" json:"jitter"`
	RequestsPerMinute  int  `mapstructure:"requests_per_minute" json:"requests_per_minute"` // 0 = no proactive rate limit

	// Router configuration
	CacheSize int           `mapstructure:"cache_size" json:"cache_size"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl" json:"cache_ttl"` // 0 = entries never expire

	// Conversation memory configuration
	MaxSessions int `mapstructure:"max_sessions" json:"max_sessions"`

	// Database configuration
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".sqlsage")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults(configDir)
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// Missing config file is not an error; defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(configDir string) {
	viper.SetDefault("provider", ProviderGemini)
	viper.SetDefault("sql_model", "gemini-2.5-flash")
	viper.SetDefault("code_model", "gemini-2.5-flash")
	viper.SetDefault("chat_model", "gemini-2.5-flash-lite")
	viper.SetDefault("temperature", 0.0)

	viper.SetDefault("embedder_model", DefaultEmbedderModel)
	viper.SetDefault("index_dir", filepath.Join(configDir, "index"))
	viper.SetDefault("search_top_k", DefaultSearchTopK)
	viper.SetDefault("summarize_history", true)
	viper.SetDefault("summarize_threshold", DefaultSummarizeThreshold)

	viper.SetDefault("max_concurrent_calls", 0)
	viper.SetDefault("max_attempts", 3)
	viper.SetDefault("backoff_base_seconds", 2)
	viper.SetDefault("jitter", true)
	viper.SetDefault("requests_per_minute", 0)

	viper.SetDefault("cache_size", 100)
	viper.SetDefault("cache_ttl", time.Duration(0))

	viper.SetDefault("max_sessions", 1000)

	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "sqlsage")
	viper.SetDefault("postgres_password", "")
	viper.SetDefault("postgres_db_name", "sqlsage")
	viper.SetDefault("postgres_ssl_mode", "disable")
}

// bindEnvVariables binds environment variables explicitly.
// GEMINI_API_KEY is read directly by Genkit, not via viper.
func bindEnvVariables() {
	// Hardcoded keys cannot fail to bind; a panic here is a bug, not a
	// runtime condition.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("provider", "SQLSAGE_PROVIDER")
	mustBind("sql_model", "SQLSAGE_SQL_MODEL")
	mustBind("code_model", "SQLSAGE_CODE_MODEL")
	mustBind("chat_model", "SQLSAGE_CHAT_MODEL")
	mustBind("index_dir", "SQLSAGE_INDEX_DIR")

	mustBind("postgres_host", "SQLSAGE_PG_HOST")
	mustBind("postgres_port", "SQLSAGE_PG_PORT")
	mustBind("postgres_user", "SQLSAGE_PG_USER")
	mustBind("postgres_password", "SQLSAGE_PG_PASSWORD")
	mustBind("postgres_db_name", "SQLSAGE_PG_DBNAME")
	mustBind("postgres_ssl_mode", "SQLSAGE_PG_SSLMODE")
}

// ConnString assembles the PostgreSQL connection string for pgx.
func (c *Config) ConnString() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", c.PostgresHost, c.PostgresPort),
		Path:   c.PostgresDBName,
	}
	if c.PostgresUser != "" {
		if c.PostgresPassword != "" {
			u.User = url.UserPassword(c.PostgresUser, c.PostgresPassword)
		} else {
			u.User = url.User(c.PostgresUser)
		}
	}
	q := url.Values{}
	q.Set("sslmode", c.PostgresSSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging. Short secrets are fully
// masked to prevent substring matching; longer ones keep the first and last
// two characters for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with sensitive field masking.
// When adding new sensitive fields, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
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
