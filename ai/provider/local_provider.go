package provider

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/quotesearch/ai/openrouter"
	"github.com/teranos/quotesearch/am"
	"github.com/teranos/quotesearch/errors"
	"github.com/teranos/quotesearch/internal/httpclient"
)

// LocalClient talks to an OpenAI-compatible local inference server
// (Ollama, LocalAI). Local endpoints live on private addresses, so the plain
// HTTP client is used instead of the SSRF-guarded one.
type LocalClient struct {
	baseURL    string
	model      string
	httpClient httpclient.Doer
	logger     *zap.SugaredLogger
}

// NewLocalClient creates a client for local inference
func NewLocalClient(cfg am.LocalInferenceConfig, logger *zap.SugaredLogger) *LocalClient {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return &LocalClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type localRequest struct {
	Model    string               `json:"model"`
	Messages []openrouter.Message `json:"messages"`
	Stream   bool                 `json:"stream"`
	Options  *localOptions        `json:"options,omitempty"` // Ollama-specific options
}

type localOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"num_predict,omitempty"` // Ollama uses num_predict
}

// Chat implements AIClient for local inference
func (c *LocalClient) Chat(ctx context.Context, req openrouter.ChatRequest) (*openrouter.ChatResponse, error) {
	model := c.model
	if req.Model != nil && *req.Model != "" {
		model = *req.Model
	}

	opts := &localOptions{Temperature: 0.2, MaxTokens: 4096}
	if req.Temperature != nil {
		opts.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		opts.MaxTokens = *req.MaxTokens
	}

	body := localRequest{Model: model, Messages: openrouter.BuildMessages(req.SystemPrompt, req.UserPrompt), Options: opts}

	var completion openrouter.CompletionResponse
	err := httpclient.DoJSON(ctx, c.httpClient, http.MethodPost, c.baseURL+"/v1/chat/completions", nil, body, &completion)
	if err != nil {
		return nil, errors.Wrapf(err, "local inference request to %s failed", c.baseURL)
	}
	if len(completion.Choices) == 0 {
		return nil, errors.New("no completion choices returned")
	}

	c.logger.Debugw("Local inference response",
		"model", model,
		"content_length", len(completion.Choices[0].Message.Content))

	return &openrouter.ChatResponse{
		Content: strings.TrimSpace(completion.Choices[0].Message.Content),
		Usage:   completion.Usage,
	}, nil
}

// ModelName returns the configured local model name
func (c *LocalClient) ModelName() string {
	return c.model
}
