package am

import (
	"time"

	"go.uber.org/zap/zapcore"
)

// Config represents the quotesearch configuration
type Config struct {
	Database       DatabaseConfig       `mapstructure:"database" toml:"database" yaml:"database" json:"database"`
	Jobs           JobsConfig           `mapstructure:"jobs" toml:"jobs" yaml:"jobs" json:"jobs"`
	Extractor      ExtractorConfig      `mapstructure:"extractor" toml:"extractor" yaml:"extractor" json:"extractor"`
	Discovery      DiscoveryConfig      `mapstructure:"discovery" toml:"discovery" yaml:"discovery" json:"discovery"`
	Scoring        ScoringConfig        `mapstructure:"scoring" toml:"scoring" yaml:"scoring" json:"scoring"`
	OpenRouter     OpenRouterConfig     `mapstructure:"openrouter" toml:"openrouter" yaml:"openrouter" json:"openrouter"`
	LocalInference LocalInferenceConfig `mapstructure:"local_inference" toml:"local_inference" yaml:"local_inference" json:"local_inference"`
	Server         ServerConfig         `mapstructure:"server" toml:"server" yaml:"server" json:"server"`
	Log            LogConfig            `mapstructure:"log" toml:"log" yaml:"log" json:"log"`
}

// DatabaseConfig configures the SQLite database holding suppliers, products and jobs
type DatabaseConfig struct {
	Path string `mapstructure:"path" toml:"path" yaml:"path" json:"path"`
}

// JobsConfig configures the background search-job manager
type JobsConfig struct {
	Store                string        `mapstructure:"store" toml:"store" yaml:"store" json:"store"`                                                       // "memory" or "sqlite"
	MaxConcurrentWorkers int           `mapstructure:"max_concurrent_workers" toml:"max_concurrent_workers" yaml:"max_concurrent_workers" json:"max_concurrent_workers"` // worker processes running at once
	RetentionDays        int           `mapstructure:"retention_days" toml:"retention_days" yaml:"retention_days" json:"retention_days"`                   // terminal jobs older than this are purged
	PurgeInterval        time.Duration `mapstructure:"purge_interval" toml:"purge_interval" yaml:"purge_interval" json:"purge_interval"`                   // 0 disables the purge ticker
	CancelGrace          time.Duration `mapstructure:"cancel_grace" toml:"cancel_grace" yaml:"cancel_grace" json:"cancel_grace"`                           // interrupt-to-kill delay
	WorkerCommand        string        `mapstructure:"worker_command" toml:"worker_command" yaml:"worker_command" json:"worker_command"`                   // empty = this binary's "worker" subcommand
}

// ExtractorConfig configures the remote product extraction API (Firecrawl)
type ExtractorConfig struct {
	BaseURL           string `mapstructure:"base_url" toml:"base_url" yaml:"base_url" json:"base_url"`
	APIKey            string `mapstructure:"api_key" toml:"api_key" yaml:"api_key" json:"-"`
	TimeoutSeconds    int    `mapstructure:"timeout_seconds" toml:"timeout_seconds" yaml:"timeout_seconds" json:"timeout_seconds"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute" toml:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"` // 0 = unlimited
	AllowPrivateHosts bool   `mapstructure:"allow_private_hosts" toml:"allow_private_hosts" yaml:"allow_private_hosts" json:"allow_private_hosts"`
}

// DiscoveryConfig configures the site-suggestion fallback
type DiscoveryConfig struct {
	Enabled       bool   `mapstructure:"enabled" toml:"enabled" yaml:"enabled" json:"enabled"`
	BaseURL       string `mapstructure:"base_url" toml:"base_url" yaml:"base_url" json:"base_url"`
	APIKey        string `mapstructure:"api_key" toml:"api_key" yaml:"api_key" json:"-"`
	Limit         int    `mapstructure:"limit" toml:"limit" yaml:"limit" json:"limit"`
	LocationHint  string `mapstructure:"location_hint" toml:"location_hint" yaml:"location_hint" json:"location_hint"`
	MaxDepth      int    `mapstructure:"max_depth" toml:"max_depth" yaml:"max_depth" json:"max_depth"` // discovery re-attempts per job
	FilterWithLLM bool   `mapstructure:"filter_with_llm" toml:"filter_with_llm" yaml:"filter_with_llm" json:"filter_with_llm"`
}

// ScoringConfig selects and throttles the engine used by the arbiter
type ScoringConfig struct {
	Provider          string `mapstructure:"provider" toml:"provider" yaml:"provider" json:"provider"` // "openrouter" or "local"
	MaxCallsPerMinute int    `mapstructure:"max_calls_per_minute" toml:"max_calls_per_minute" yaml:"max_calls_per_minute" json:"max_calls_per_minute"`
}

// OpenRouterConfig configures OpenRouter.ai API access
type OpenRouterConfig struct {
	APIKey      string   `mapstructure:"api_key" toml:"api_key" yaml:"api_key" json:"-"`
	Model       string   `mapstructure:"model" toml:"model" yaml:"model" json:"model"`
	Temperature *float64 `mapstructure:"temperature" toml:"temperature" yaml:"temperature" json:"temperature"` // nil = default 0.2
	MaxTokens   *int     `mapstructure:"max_tokens" toml:"max_tokens" yaml:"max_tokens" json:"max_tokens"`     // nil = default 1000
}

// LocalInferenceConfig configures an OpenAI-compatible local endpoint (Ollama, LocalAI)
type LocalInferenceConfig struct {
	BaseURL        string `mapstructure:"base_url" toml:"base_url" yaml:"base_url" json:"base_url"`
	Model          string `mapstructure:"model" toml:"model" yaml:"model" json:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" toml:"timeout_seconds" yaml:"timeout_seconds" json:"timeout_seconds"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Port           int      `mapstructure:"port" toml:"port" yaml:"port" json:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins" toml:"allowed_origins" yaml:"allowed_origins" json:"allowed_origins"`
}

// LogConfig sets CLI logging when no -v or --json-logs flag is given
type LogConfig struct {
	Level string `mapstructure:"level" toml:"level" yaml:"level" json:"level"` // debug, info, warn, error; empty = warn
	JSON  bool   `mapstructure:"json" toml:"json" yaml:"json" json:"json"`
}

// ZapLevel parses Level. ok is false when Level is empty or unknown.
func (c LogConfig) ZapLevel() (level zapcore.Level, ok bool) {
	if c.Level == "" {
		return level, false
	}
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return level, false
	}
	return level, true
}

// Server port constants
const (
	DefaultServerPort = 8787
)

// Job store backends
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Scoring providers
const (
	ProviderOpenRouter = "openrouter"
	ProviderLocal      = "local"
)

// File system constants
const (
	DefaultDirPermissions  = 0755
	DefaultFilePermissions = 0644
)
