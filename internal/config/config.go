// Package config provides application configuration with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.groundbot/config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - AI: provider, model, embedder
//   - Storage: PostgreSQL connection (see storage.go)
//   - Crawler: on-demand documentation ingestion limits
//   - Retrieval: top-k, pre-fetch factor, confidence threshold
//   - Tracing: OTLP trace export
//
// Validation lives in validation.go and uses sentinel errors so callers can
// check failure categories with errors.Is().
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidOllamaHost indicates the Ollama host is invalid.
	ErrInvalidOllamaHost = errors.New("invalid Ollama host")

	// ErrInvalidCrawler indicates a crawler setting is out of range.
	ErrInvalidCrawler = errors.New("invalid crawler setting")

	// ErrInvalidRetrieval indicates a retrieval setting is out of range.
	ErrInvalidRetrieval = errors.New("invalid retrieval setting")
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// DefaultGeminiEmbedderModel is the default Gemini embedder model.
// gemini-embedding-001 outputs 3072 dimensions by default but supports
// truncation to 768 via OutputDimensionality; the chunks table stores
// vector(768), see index.VectorDimension.
const DefaultGeminiEmbedderModel = "gemini-embedding-001"

// CrawlerConfig controls the on-demand documentation crawler.
type CrawlerConfig struct {
	Parallelism    int    `mapstructure:"parallelism" json:"parallelism"`
	DelayMs        int    `mapstructure:"delay_ms" json:"delay_ms"`
	TimeoutMs      int    `mapstructure:"timeout_ms" json:"timeout_ms"`
	MaxPagesStageA int    `mapstructure:"max_pages_stage_a" json:"max_pages_stage_a"`
	MaxPagesStageB int    `mapstructure:"max_pages_stage_b" json:"max_pages_stage_b"`
	UserAgent      string `mapstructure:"user_agent" json:"user_agent"`
}

// RetrievalConfig controls retrieval and answer grounding.
type RetrievalConfig struct {
	// TopK is the number of snippets handed to the model.
	TopK int `mapstructure:"top_k" json:"top_k"`
	// MaxCitations caps the citations surfaced on the final answer.
	MaxCitations int `mapstructure:"max_citations" json:"max_citations"`
	// MinConfidence is the classification confidence below which the turn
	// falls back to a clarifying question.
	MinConfidence float64 `mapstructure:"min_confidence" json:"min_confidence"`
	// ChunkSize / ChunkOverlap configure the ingest chunker (characters).
	ChunkSize    int `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap" json:"chunk_overlap"`
	// LLMRerank enables the optional model-scored rerank pass on top of
	// reciprocal rank fusion.
	LLMRerank bool `mapstructure:"llm_rerank" json:"llm_rerank"`
}

// TracingConfig controls OTLP trace export to a local collector agent.
type TracingConfig struct {
	AgentHost   string `mapstructure:"agent_host" json:"agent_host"`
	ServiceName string `mapstructure:"service_name" json:"service_name"`
	Environment string `mapstructure:"environment" json:"environment"`
}

// Config stores application configuration.
type Config struct {
	// AI provider and model configuration
	Provider      string  `mapstructure:"provider" json:"provider"`     // "gemini" (default), "ollama", "openai"
	ModelName     string  `mapstructure:"model_name" json:"model_name"` // provider-qualified, e.g. "googleai/gemini-2.5-flash"
	Temperature   float32 `mapstructure:"temperature" json:"temperature"`
	EmbedderModel string  `mapstructure:"embedder_model" json:"embedder_model"`

	// Ollama configuration (only used when provider is "ollama")
	OllamaHost string `mapstructure:"ollama_host" json:"ollama_host"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: never logged
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// DocPack lifecycle
	PackTTLDays int `mapstructure:"pack_ttl_days" json:"pack_ttl_days"`

	// Pipeline configuration
	Crawler   CrawlerConfig   `mapstructure:"crawler" json:"crawler"`
	Retrieval RetrievalConfig `mapstructure:"retrieval" json:"retrieval"`
	Tracing   TracingConfig   `mapstructure:"tracing" json:"tracing"`

	// Serve-mode configuration
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins"`
	TrustProxy  bool     `mapstructure:"trust_proxy" json:"trust_proxy"`
	RateBurst   int      `mapstructure:"rate_burst" json:"rate_burst"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".groundbot")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// Missing config file is fine; defaults apply.
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL has highest priority for PostgreSQL settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// AI defaults
	viper.SetDefault("provider", ProviderGemini)
	viper.SetDefault("model_name", "googleai/gemini-2.5-flash")
	viper.SetDefault("temperature", 0.0)
	viper.SetDefault("embedder_model", DefaultGeminiEmbedderModel)

	// Ollama defaults
	viper.SetDefault("ollama_host", "http://localhost:11434")

	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "groundbot")
	viper.SetDefault("postgres_password", "groundbot_dev_password")
	viper.SetDefault("postgres_db_name", "groundbot")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// DocPack defaults
	viper.SetDefault("pack_ttl_days", 14)

	// Crawler defaults
	viper.SetDefault("crawler.parallelism", 2)
	viper.SetDefault("crawler.delay_ms", 500)
	viper.SetDefault("crawler.timeout_ms", 20000)
	viper.SetDefault("crawler.max_pages_stage_a", 15)
	viper.SetDefault("crawler.max_pages_stage_b", 30)
	viper.SetDefault("crawler.user_agent", "groundbot/1")

	// Retrieval defaults
	viper.SetDefault("retrieval.top_k", 20)
	viper.SetDefault("retrieval.max_citations", 4)
	viper.SetDefault("retrieval.min_confidence", 0.35)
	viper.SetDefault("retrieval.chunk_size", 1000)
	viper.SetDefault("retrieval.chunk_overlap", 200)
	viper.SetDefault("retrieval.llm_rerank", false)

	// Tracing defaults
	viper.SetDefault("tracing.agent_host", "localhost:4318")
	viper.SetDefault("tracing.environment", "dev")
	viper.SetDefault("tracing.service_name", "groundbot")

	// Serve-mode defaults
	viper.SetDefault("cors_origins", []string{})
	viper.SetDefault("trust_proxy", false)
	viper.SetDefault("rate_burst", 60)
}

// bindEnvVariables binds environment overrides explicitly.
// GEMINI_API_KEY and OPENAI_API_KEY are read directly by the Genkit plugins,
// not via viper; Validate() checks their presence per provider.
func bindEnvVariables() {
	// Hardcoded keys cannot fail to bind; a panic here is a bug, not a
	// runtime error.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("provider", "GROUNDBOT_PROVIDER")
	mustBind("model_name", "GROUNDBOT_MODEL_NAME")
	mustBind("embedder_model", "GROUNDBOT_EMBEDDER_MODEL")
	mustBind("ollama_host", "GROUNDBOT_OLLAMA_HOST")
	mustBind("cors_origins", "GROUNDBOT_CORS_ORIGINS")
	mustBind("trust_proxy", "GROUNDBOT_TRUST_PROXY")
	mustBind("rate_burst", "GROUNDBOT_RATE_BURST")
	mustBind("tracing.agent_host", "GROUNDBOT_OTLP_AGENT_HOST")
}
