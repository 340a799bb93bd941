package am

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Upper bounds for the discovery fallback. Suggestions are capped at five per
// attempt and a job never re-searches more than MaxDiscoveryDepth times.
const (
	MaxDiscoveryLimit = 5
	MaxDiscoveryDepth = 3
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "quotesearch.db")

	// Job manager defaults
	v.SetDefault("jobs.store", StoreMemory)
	v.SetDefault("jobs.max_concurrent_workers", 4)
	v.SetDefault("jobs.retention_days", 7)
	v.SetDefault("jobs.purge_interval", "6h")
	v.SetDefault("jobs.cancel_grace", "5s")
	v.SetDefault("jobs.worker_command", "")

	// Firecrawl extraction
	v.SetDefault("extractor.base_url", "https://api.firecrawl.dev")
	v.SetDefault("extractor.timeout_seconds", 120) // extraction crawls the page, slow by nature
	v.SetDefault("extractor.requests_per_minute", 60)
	v.SetDefault("extractor.allow_private_hosts", false)

	// Site discovery fallback
	v.SetDefault("discovery.enabled", true)
	v.SetDefault("discovery.base_url", "https://api.firecrawl.dev")
	v.SetDefault("discovery.limit", 5)
	v.SetDefault("discovery.location_hint", "Angola")
	v.SetDefault("discovery.max_depth", 1)
	v.SetDefault("discovery.filter_with_llm", true)

	// Scoring engine
	v.SetDefault("scoring.provider", ProviderOpenRouter)
	v.SetDefault("scoring.max_calls_per_minute", 20)

	v.SetDefault("openrouter.model", "openai/gpt-4o-mini")
	v.SetDefault("openrouter.temperature", 0.2)
	v.SetDefault("openrouter.max_tokens", 2000) // ranked report with five entries

	v.SetDefault("local_inference.base_url", "http://localhost:11434")
	v.SetDefault("local_inference.model", "llama3.2:3b")
	v.SetDefault("local_inference.timeout_seconds", 300)

	v.SetDefault("log.level", "")
	v.SetDefault("log.json", false)

	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.allowed_origins", []string{
		"http://localhost",
		"https://localhost",
		"http://127.0.0.1",
		"https://127.0.0.1",
	})
}

// BindSensitiveEnvVars binds API keys to their conventional unprefixed names
// in addition to the QUOTESEARCH_* forms.
func BindSensitiveEnvVars(v *viper.Viper) {
	_ = v.BindEnv("extractor.api_key", "QUOTESEARCH_EXTRACTOR_API_KEY", "FIRECRAWL_API_KEY")
	_ = v.BindEnv("discovery.api_key", "QUOTESEARCH_DISCOVERY_API_KEY", "FIRECRAWL_API_KEY")
	_ = v.BindEnv("openrouter.api_key", "QUOTESEARCH_OPENROUTER_API_KEY", "OPENROUTER_API_KEY")
	_ = v.BindEnv("database.path", "QUOTESEARCH_DATABASE_PATH")
}

// GetDatabasePath returns the configured database path
func (c *Config) GetDatabasePath() string {
	if c.Database.Path == "" {
		return "quotesearch.db"
	}
	return c.Database.Path
}

// GetServerPort returns the configured port or DefaultServerPort
func (c *Config) GetServerPort() int {
	if c.Server.Port == 0 {
		return DefaultServerPort
	}
	return c.Server.Port
}

// GetServerAllowedOrigins returns the allowed WebSocket/CORS origins
func (c *Config) GetServerAllowedOrigins() []string {
	if len(c.Server.AllowedOrigins) == 0 {
		return []string{
			"http://localhost",
			"https://localhost",
			"http://127.0.0.1",
			"https://127.0.0.1",
		}
	}
	return c.Server.AllowedOrigins
}

// GetDiscoveryMaxDepth returns the discovery recursion cap within
// 0..MaxDiscoveryDepth
func (c *Config) GetDiscoveryMaxDepth() int {
	return min(max(c.Discovery.MaxDepth, 0), MaxDiscoveryDepth)
}

// GetJobRetention returns jobs.retention_days as a duration; 0 keeps jobs forever
func (c *Config) GetJobRetention() time.Duration {
	if c.Jobs.RetentionDays <= 0 {
		return 0
	}
	return time.Duration(c.Jobs.RetentionDays) * 24 * time.Hour
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Database: %s, Jobs: {Store: %s, Workers: %d}, Scoring: %s}",
		c.Database.Path, c.Jobs.Store, c.Jobs.MaxConcurrentWorkers, c.Scoring.Provider)
}
