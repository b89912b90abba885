// Package config loads orchestrator configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration for both the server and worker
// binaries. It is loaded once at startup and passed explicitly rather than
// held as a package-level singleton.
type Config struct {
	Env  string
	Port string

	DB       DBConfig
	Redis    RedisConfig
	OTel     OTelConfig
	LLM      LLMConfig
	Embed    EmbedConfig
	GitLab   GitLabConfig
	Budget   BudgetConfig
	Context  ContextConfig
	Memory   MemoryConfig
	Retrieve RetrieveConfig

	DryRun       bool
	DataDir      string
	ArtifactsDir string
	AgentsFile   string
	PricingFile  string
	LogLevel     string
}

type DBConfig struct {
	DSN      string
	MaxConns int32
	MinConns int32
}

type RedisConfig struct {
	URL           string
	JobStream     string
	JobGroup      string
	JobConsumer   string
	JobDLQStream  string
	EventsChannel string
}

type OTelConfig struct {
	Endpoint       string
	ServiceName    string
	ServiceVersion string
	Headers        string
}

func (c OTelConfig) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != ""
}

type LLMConfig struct {
	APIKey      string
	BaseURL     string
	ModelCTO    string
	ModelCoder  string
}

func (c LLMConfig) Enabled() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

type EmbedConfig struct {
	APIKey string
	Model  string
}

func (c EmbedConfig) Enabled() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

type GitLabConfig struct {
	Token   string
	BaseURL string
}

type BudgetConfig struct {
	DefaultBudgetUSD     float64
	DefaultMaxRequests   int
	DefaultMaxMinutes    int
	AllowDirectPush      bool
	AllowUnsafeAutomerge bool
	MergeConflictBehavior string
}

type ContextConfig struct {
	Enabled               bool
	BudgetTokens          int
	OutputReserveTokens   int
	HardCapTokens         int
	CompactThresholdRatio float64
	CuratorTopK           int
	CuratorMinScore       float64
	JITEnabled            bool
}

type MemoryConfig struct {
	MaxItemsPerJob  int
	MaxBytesPerItem int
}

type RetrieveConfig struct {
	MaxFiles            int
	MaxSnippetTokens    int
}

// Load reads configuration from the environment, applying development
// defaults for anything unset.
func Load() (Config, error) {
	cfg := Config{
		Env:  getEnv("APP_ENV", "development"),
		Port: getEnv("PORT", "8080"),
		DB: DBConfig{
			DSN:      buildDSN(),
			MaxConns: int32(getEnvInt("DB_MAX_CONNS", 10)),
			MinConns: int32(getEnvInt("DB_MIN_CONNS", 2)),
		},
		Redis: RedisConfig{
			URL:           getEnv("REDIS_URL", "redis://localhost:6379/0"),
			JobStream:     getEnv("JOB_STREAM", "orchestrator:jobs"),
			JobGroup:      getEnv("JOB_GROUP", "orchestrator-workers"),
			JobConsumer:   getEnv("JOB_CONSUMER", hostnameOrDefault("worker-1")),
			JobDLQStream:  getEnv("JOB_DLQ_STREAM", "orchestrator:jobs:dlq"),
			EventsChannel: getEnv("JOB_EVENTS_CHANNEL", "job-events"),
		},
		OTel: OTelConfig{
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "autodev-orchestrator"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
			Headers:        getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
		},
		LLM: LLMConfig{
			APIKey:     getEnv("OPENAI_API_KEY", ""),
			BaseURL:    getEnv("OPENAI_BASE_URL", ""),
			ModelCTO:   getEnv("MODEL_CTO", "gpt-5"),
			ModelCoder: getEnv("MODEL_CODER", "gpt-5-codex"),
		},
		Embed: EmbedConfig{
			APIKey: getEnv("EMBEDDING_API_KEY", getEnv("OPENAI_API_KEY", "")),
			Model:  getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		},
		GitLab: GitLabConfig{
			Token:   getEnv("GITLAB_TOKEN", ""),
			BaseURL: getEnv("GITLAB_BASE_URL", "https://gitlab.com"),
		},
		Budget: BudgetConfig{
			DefaultBudgetUSD:      getEnvFloat("BUDGET_USD_MAX", 5.0),
			DefaultMaxRequests:    getEnvInt("MAX_REQUESTS", 200),
			DefaultMaxMinutes:     getEnvInt("MAX_WALLCLOCK_MINUTES", 60),
			AllowDirectPush:       getEnvBool("ALLOW_DIRECT_PUSH", false),
			AllowUnsafeAutomerge:  getEnvBool("ALLOW_UNSAFE_AUTOMERGE", false),
			MergeConflictBehavior: getEnv("MERGE_CONFLICT_BEHAVIOR", "fail"),
		},
		Context: ContextConfig{
			Enabled:               getEnvBool("CONTEXT_ENGINE_ENABLED", true),
			BudgetTokens:          getEnvInt("CONTEXT_BUDGET_TOKENS", 64000),
			OutputReserveTokens:   getEnvInt("CONTEXT_OUTPUT_RESERVE_TOKENS", 8000),
			HardCapTokens:         getEnvInt("CONTEXT_HARD_CAP_TOKENS", 70000),
			CompactThresholdRatio: getEnvFloat("CONTEXT_COMPACT_THRESHOLD_RATIO", 0.6),
			CuratorTopK:           getEnvInt("CURATOR_TOPK", 12),
			CuratorMinScore:       getEnvFloat("CURATOR_MIN_SCORE", 0.12),
			JITEnabled:            getEnvBool("CONTEXT_JIT_ENABLE", true),
		},
		Memory: MemoryConfig{
			MaxItemsPerJob:  getEnvInt("MEMORY_MAX_ITEMS_PER_JOB", 2000),
			MaxBytesPerItem: getEnvInt("MEMORY_MAX_BYTES_PER_ITEM", 20000),
		},
		Retrieve: RetrieveConfig{
			MaxFiles:         getEnvInt("RETRIEVER_MAX_FILES", 200),
			MaxSnippetTokens: getEnvInt("RETRIEVER_MAX_SNIPPET_TOKENS", 2000),
		},
		DryRun:       getEnvBool("DRY_RUN", false),
		DataDir:      getEnv("DATA_DIR", "./data/repos"),
		ArtifactsDir: getEnv("ARTIFACTS_DIR", "./data/artifacts"),
		AgentsFile:   getEnv("AGENTS_FILE", "agents.md"),
		PricingFile:  getEnv("PRICING_FILE", "pricing.json"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
	}

	if !cfg.DryRun && !cfg.LLM.Enabled() {
		return Config{}, fmt.Errorf("OPENAI_API_KEY is required unless DRY_RUN is set")
	}

	return cfg, nil
}

func buildDSN() string {
	host := getEnv("DATABASE_HOST", "localhost")
	port := getEnv("DATABASE_PORT", "5432")
	user := getEnv("DATABASE_USER", "postgres")
	password := getEnv("DATABASE_PASSWORD", "postgres")
	name := getEnv("DATABASE_NAME", "orchestrator")
	sslMode := getEnv("DATABASE_SSLMODE", "disable")

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		user, password, host, port, name, sslMode,
	)
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func hostnameOrDefault(fallback string) string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return fallback
}
