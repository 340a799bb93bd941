package am

import "github.com/teranos/quotesearch/errors"

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if _, ok := c.Log.ZapLevel(); c.Log.Level != "" && !ok {
		return errors.Newf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}

	if c.Server.Port < 0 {
		return errors.Newf("server.port must be positive, got %d", c.Server.Port)
	}

	switch c.Jobs.Store {
	case "", StoreMemory, StoreSQLite:
	default:
		return errors.Newf("jobs.store must be %q or %q, got %q", StoreMemory, StoreSQLite, c.Jobs.Store)
	}

	// Zero workers would leave every job pending forever
	if c.Jobs.MaxConcurrentWorkers < 1 {
		return errors.Newf("jobs.max_concurrent_workers must be >= 1, got %d", c.Jobs.MaxConcurrentWorkers)
	}
	if c.Jobs.RetentionDays < 0 {
		return errors.Newf("jobs.retention_days must be >= 0, got %d", c.Jobs.RetentionDays)
	}
	if c.Jobs.PurgeInterval < 0 {
		return errors.Newf("jobs.purge_interval must be >= 0, got %s", c.Jobs.PurgeInterval)
	}
	if c.Jobs.CancelGrace < 0 {
		return errors.Newf("jobs.cancel_grace must be >= 0, got %s", c.Jobs.CancelGrace)
	}

	if c.Extractor.BaseURL == "" {
		return errors.New("extractor.base_url cannot be empty")
	}
	if c.Extractor.TimeoutSeconds <= 0 {
		return errors.Newf("extractor.timeout_seconds must be > 0, got %d", c.Extractor.TimeoutSeconds)
	}
	if c.Extractor.RequestsPerMinute < 0 {
		return errors.Newf("extractor.requests_per_minute must be >= 0, got %d", c.Extractor.RequestsPerMinute)
	}

	if c.Discovery.Enabled {
		if c.Discovery.BaseURL == "" {
			return errors.New("discovery.base_url cannot be empty when enabled")
		}
		if c.Discovery.Limit <= 0 || c.Discovery.Limit > MaxDiscoveryLimit {
			return errors.Newf("discovery.limit must be between 1 and %d, got %d", MaxDiscoveryLimit, c.Discovery.Limit)
		}
	}
	if c.Discovery.MaxDepth < 0 || c.Discovery.MaxDepth > MaxDiscoveryDepth {
		return errors.Newf("discovery.max_depth must be between 0 and %d, got %d", MaxDiscoveryDepth, c.Discovery.MaxDepth)
	}

	switch c.Scoring.Provider {
	case ProviderOpenRouter, ProviderLocal:
	default:
		return errors.Newf("scoring.provider must be %q or %q, got %q", ProviderOpenRouter, ProviderLocal, c.Scoring.Provider)
	}
	if c.Scoring.MaxCallsPerMinute < 0 {
		return errors.Newf("scoring.max_calls_per_minute must be >= 0, got %d", c.Scoring.MaxCallsPerMinute)
	}
	if c.Scoring.Provider == ProviderLocal {
		if c.LocalInference.BaseURL == "" {
			return errors.New("local_inference.base_url cannot be empty when scoring.provider is local")
		}
		if c.LocalInference.TimeoutSeconds <= 0 {
			return errors.Newf("local_inference.timeout_seconds must be > 0, got %d", c.LocalInference.TimeoutSeconds)
		}
	}

	return nil
}
