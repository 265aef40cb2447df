package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	// Server
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Environment string `json:"environment"`
	APIPrefix   string `json:"api_prefix"`
	LogLevel    string `json:"log_level"`

	// CORS
	CORSOrigins []string `json:"cors_origins"`

	// Auth
	APIKeyHeader string   `json:"api_key_header"`
	APIKeys      []string `json:"api_keys"`
	EnableAuth   bool     `json:"enable_auth"`

	// Rate Limiting
	RateLimitPerMinute int `json:"rate_limit_per_minute"`

	// Database backend: "postgres" or "bigquery"
	Backend     string `json:"backend"`
	PostgresDSN string `json:"postgres_dsn"`

	// BigQuery
	GCPProjectID                 string `json:"gcp_project_id"`
	GoogleApplicationCredentials string `json:"google_application_credentials"`
	BigQueryDataset              string `json:"bigquery_dataset"`
	BigQueryLocation             string `json:"bigquery_location"`

	// Schema knowledge cache enrichment (business terms, tiers, date aliases)
	SchemaMetadataFile string `json:"schema_metadata_file"`

	// AI / LLM
	AnthropicAPIKey  string `json:"anthropic_api_key"`
	AnthropicBaseURL string `json:"anthropic_base_url"` // override for compatible proxies
	AnthropicModel   string `json:"anthropic_model"`

	// Pipeline policy
	Pipeline PipelineConfig `json:"pipeline"`
}

// PipelineConfig holds the tunable pipeline policy knobs. The ambiguity
// margin and the clarification bound are deliberately configuration, not
// constants: the right values depend on the domain vocabulary.
type PipelineConfig struct {
	AmbiguityMargin        float64  `json:"ambiguity_margin"` // fraction of top score
	MaxClarificationRounds int      `json:"max_clarification_rounds"`
	MaxInteractions        int      `json:"max_interactions"` // per conversation
	HistoryWindow          int      `json:"history_window"`   // turns scanned by the resolver
	MaxRegenerations       int      `json:"max_regenerations"`
	CompletionRetries      int      `json:"completion_retries"`
	CompletionTimeoutSec   int      `json:"completion_timeout_sec"`
	ExecutionTimeoutSec    int      `json:"execution_timeout_sec"`
	PageSize               int      `json:"page_size"`
	MaxWorkers             int      `json:"max_workers"` // concurrent pipeline runs
	UnambiguousShapes      []string `json:"unambiguous_shapes"`
	PatternFile            string   `json:"pattern_file"` // domain SQL templates
}

func Load() (*Config, error) {
	cfg := &Config{
		Host:               DefaultHost,
		Port:               DefaultPort,
		Environment:        DefaultEnvironment,
		APIPrefix:          DefaultAPIPrefix,
		LogLevel:           DefaultLogLevel,
		CORSOrigins:        DefaultCORSOrigins,
		APIKeyHeader:       "X-API-Key",
		EnableAuth:         true,
		RateLimitPerMinute: DefaultRateLimitPerMinute,
		Backend:            DefaultBackend,
		BigQueryLocation:   DefaultBigQueryLocation,
		AnthropicModel:     DefaultAnthropicModel,
		Pipeline:           DefaultPipelineConfig(),
	}

	// Load from JSON config file if specified
	if path := getEnv("QUERYLINE_CONFIG", ""); path != "" {
		if err := loadJSON(path, cfg); err != nil {
			return nil, fmt.Errorf("load config %q: %w", path, err)
		}
	}

	// Environment overrides
	applyEnvOverrides(cfg)

	cfg.Pipeline.Clamp()

	return cfg, nil
}

// DefaultPipelineConfig returns the pipeline policy defaults.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		AmbiguityMargin:        DefaultAmbiguityMargin,
		MaxClarificationRounds: DefaultMaxClarificationRounds,
		MaxInteractions:        DefaultMaxInteractions,
		HistoryWindow:          DefaultHistoryWindow,
		MaxRegenerations:       DefaultMaxRegenerations,
		CompletionRetries:      DefaultCompletionRetries,
		CompletionTimeoutSec:   DefaultCompletionTimeoutSec,
		ExecutionTimeoutSec:    DefaultExecutionTimeoutSec,
		PageSize:               DefaultPageSize,
		MaxWorkers:             DefaultMaxWorkers,
		UnambiguousShapes:      DefaultUnambiguousShapes,
	}
}

// Clamp forces out-of-range policy values back into sane bounds.
func (p *PipelineConfig) Clamp() {
	if p.AmbiguityMargin <= 0 || p.AmbiguityMargin >= 1 {
		p.AmbiguityMargin = DefaultAmbiguityMargin
	}
	if p.MaxClarificationRounds < 1 {
		p.MaxClarificationRounds = DefaultMaxClarificationRounds
	}
	if p.MaxInteractions < 1 {
		p.MaxInteractions = DefaultMaxInteractions
	}
	if p.HistoryWindow < 1 {
		p.HistoryWindow = DefaultHistoryWindow
	}
	if p.MaxRegenerations < 0 {
		p.MaxRegenerations = DefaultMaxRegenerations
	}
	if p.CompletionRetries < 0 {
		p.CompletionRetries = DefaultCompletionRetries
	}
	if p.CompletionTimeoutSec < 1 {
		p.CompletionTimeoutSec = DefaultCompletionTimeoutSec
	}
	if p.ExecutionTimeoutSec < 1 {
		p.ExecutionTimeoutSec = DefaultExecutionTimeoutSec
	}
	if p.PageSize < 1 {
		p.PageSize = DefaultPageSize
	}
	if p.MaxWorkers < 1 {
		p.MaxWorkers = DefaultMaxWorkers
	}
	if len(p.UnambiguousShapes) == 0 {
		p.UnambiguousShapes = DefaultUnambiguousShapes
	}
}

func loadJSON(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, cfg)
}

func applyEnvOverrides(cfg *Config) {
	if v := getEnv("QUERYLINE_HOST", ""); v != "" {
		cfg.Host = v
	}
	if v := getEnv("QUERYLINE_PORT", ""); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = p
		}
	}
	if v := getEnv("QUERYLINE_ENV", ""); v != "" {
		cfg.Environment = v
	}
	if v := getEnv("QUERYLINE_LOG_LEVEL", ""); v != "" {
		cfg.LogLevel = v
	}
	if v := getEnv("QUERYLINE_API_KEYS", ""); v != "" {
		cfg.APIKeys = strings.Split(v, ",")
	}
	if v := getEnv("QUERYLINE_BACKEND", ""); v != "" {
		cfg.Backend = v
	}
	if v := getEnv("QUERYLINE_POSTGRES_DSN", ""); v != "" {
		cfg.PostgresDSN = v
	}
	if v := getEnv("QUERYLINE_SCHEMA_METADATA", ""); v != "" {
		cfg.SchemaMetadataFile = v
	}
	if v := getEnv("GCP_PROJECT_ID", ""); v != "" {
		cfg.GCPProjectID = v
	}
	if v := getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""); v != "" {
		cfg.GoogleApplicationCredentials = v
	}
	if v := getEnv("BIGQUERY_DATASET", ""); v != "" {
		cfg.BigQueryDataset = v
	}
	if v := getEnv("ANTHROPIC_API_KEY", ""); v != "" {
		cfg.AnthropicAPIKey = v
	}
	if v := getEnv("ANTHROPIC_BASE_URL", ""); v != "" {
		cfg.AnthropicBaseURL = v
	}
	if v := getEnv("ANTHROPIC_MODEL", ""); v != "" {
		cfg.AnthropicModel = v
	}
	if v := getEnv("RATE_LIMIT_PER_MINUTE", ""); v != "" {
		if r, err := strconv.Atoi(v); err == nil {
			cfg.RateLimitPerMinute = r
		}
	}
	if v := getEnv("ENABLE_AUTH", ""); v != "" {
		cfg.EnableAuth = v == "true" || v == "1"
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}
