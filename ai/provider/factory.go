package provider

import (
	"go.uber.org/zap"

	"github.com/teranos/quotesearch/ai/openrouter"
	"github.com/teranos/quotesearch/am"
	"github.com/teranos/quotesearch/errors"
)

// NewAIClient creates the scoring engine named by cfg.Scoring.Provider.
// OpenRouter without an API key is refused up front so a job fails before
// any extraction spend rather than at the arbitration step.
func NewAIClient(cfg *am.Config, logger *zap.SugaredLogger) (AIClient, error) {
	p, err := ParseProvider(cfg.Scoring.Provider)
	if err != nil {
		return nil, err
	}
	return NewAIClientWithProvider(cfg, p, logger)
}

// NewAIClientWithProvider creates an AI client for a specific provider
func NewAIClientWithProvider(cfg *am.Config, p Provider, logger *zap.SugaredLogger) (AIClient, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	switch p {
	case ProviderLocal:
		if cfg.LocalInference.BaseURL == "" {
			return nil, errors.WithHint(
				errors.Wrap(errors.ErrInvalidRequest, "local inference base_url not configured"),
				"set local_inference.base_url in am.toml")
		}
		local := NewLocalClient(cfg.LocalInference, logger)
		logger.Debugw("Using local inference", "base_url", cfg.LocalInference.BaseURL, "model", local.ModelName())
		return local, nil
	case ProviderOpenRouter:
		if cfg.OpenRouter.APIKey == "" {
			return nil, errors.WithHint(
				errors.Wrap(errors.ErrMissingCredentials, "OpenRouter API key not configured"),
				"export OPENROUTER_API_KEY or set openrouter.api_key in am.toml")
		}
		return openrouter.NewClient(openrouter.Config{
			APIKey:      cfg.OpenRouter.APIKey,
			Model:       cfg.OpenRouter.Model,
			Temperature: cfg.OpenRouter.Temperature,
			MaxTokens:   cfg.OpenRouter.MaxTokens,
			Logger:      logger,
		}), nil
	default:
		return nil, errors.Wrapf(errors.ErrInvalidRequest, "unknown provider: %s", p)
	}
}

// GetAvailableProviders returns a list of configured/available providers
func GetAvailableProviders(cfg *am.Config) []Provider {
	var providers []Provider
	if cfg.LocalInference.BaseURL != "" {
		providers = append(providers, ProviderLocal)
	}
	if cfg.OpenRouter.APIKey != "" {
		providers = append(providers, ProviderOpenRouter)
	}
	return providers
}

// Verify interfaces are implemented
var _ AIClient = (*openrouter.Client)(nil)
var _ AIClient = (*LocalClient)(nil)
