// Package provider selects the chat engine used to score candidates and
// filter discovered links.
package provider

import (
	"context"
	"strings"

	"github.com/teranos/quotesearch/ai/openrouter"
	"github.com/teranos/quotesearch/errors"
)

// Provider represents an LLM provider type
type Provider string

const (
	// ProviderLocal uses local inference (Ollama, LocalAI)
	ProviderLocal Provider = "local"
	// ProviderOpenRouter uses OpenRouter.ai API
	ProviderOpenRouter Provider = "openrouter"
)

// AIClient is satisfied by every chat engine
type AIClient interface {
	Chat(ctx context.Context, req openrouter.ChatRequest) (*openrouter.ChatResponse, error)
}

// ParseProvider converts a string to a Provider type
func ParseProvider(s string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "local", "ollama", "localai":
		return ProviderLocal, nil
	case "openrouter", "or", "":
		return ProviderOpenRouter, nil
	default:
		return "", errors.Wrapf(errors.ErrInvalidRequest, "unknown provider: %s (valid: local, openrouter)", s)
	}
}
