package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/quotesearch/ai/openrouter"
	"github.com/teranos/quotesearch/am"
	"github.com/teranos/quotesearch/errors"
)

func TestParseProvider(t *testing.T) {
	tests := []struct {
		in      string
		want    Provider
		wantErr bool
	}{
		{"openrouter", ProviderOpenRouter, false},
		{"", ProviderOpenRouter, false},
		{"OR", ProviderOpenRouter, false},
		{"ollama", ProviderLocal, false},
		{" local ", ProviderLocal, false},
		{"anthropic", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseProvider(tt.in)
			if tt.wantErr {
				assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewAIClient(t *testing.T) {
	t.Run("openrouter without key is refused", func(t *testing.T) {
		cfg := &am.Config{Scoring: am.ScoringConfig{Provider: "openrouter"}}
		_, err := NewAIClient(cfg, nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrMissingCredentials))
		assert.NotEmpty(t, errors.GetAllHints(err))
	})

	t.Run("openrouter with key", func(t *testing.T) {
		cfg := &am.Config{
			Scoring:    am.ScoringConfig{Provider: "openrouter"},
			OpenRouter: am.OpenRouterConfig{APIKey: "k", Model: "m"},
		}
		client, err := NewAIClient(cfg, nil)
		require.NoError(t, err)
		_, ok := client.(*openrouter.Client)
		assert.True(t, ok)
	})

	t.Run("local", func(t *testing.T) {
		cfg := &am.Config{
			Scoring:        am.ScoringConfig{Provider: "local"},
			LocalInference: am.LocalInferenceConfig{BaseURL: "http://localhost:11434/", Model: "llama3.2:3b"},
		}
		client, err := NewAIClient(cfg, nil)
		require.NoError(t, err)
		local, ok := client.(*LocalClient)
		require.True(t, ok)
		assert.Equal(t, "llama3.2:3b", local.ModelName())
		assert.Equal(t, "http://localhost:11434", local.baseURL)
	})

	t.Run("local without base url", func(t *testing.T) {
		cfg := &am.Config{Scoring: am.ScoringConfig{Provider: "local"}}
		_, err := NewAIClient(cfg, nil)
		assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
	})

	t.Run("unknown provider", func(t *testing.T) {
		cfg := &am.Config{Scoring: am.ScoringConfig{Provider: "bedrock"}}
		_, err := NewAIClient(cfg, nil)
		assert.Error(t, err)
	})
}

func TestGetAvailableProviders(t *testing.T) {
	assert.Empty(t, GetAvailableProviders(&am.Config{}))

	cfg := &am.Config{
		LocalInference: am.LocalInferenceConfig{BaseURL: "http://localhost:11434"},
		OpenRouter:     am.OpenRouterConfig{APIKey: "k"},
	}
	assert.Equal(t, []Provider{ProviderLocal, ProviderOpenRouter}, GetAvailableProviders(cfg))
}
