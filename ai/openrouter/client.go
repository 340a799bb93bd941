// Package openrouter is the OpenRouter.ai chat-completions client used as the
// scoring engine for candidate arbitration and link filtering.
package openrouter

import (
	"context"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/teranos/quotesearch/errors"
	"github.com/teranos/quotesearch/internal/httpclient"
)

const (
	// DefaultModel must stay in sync with openrouter.model in am/defaults.go
	DefaultModel = "openai/gpt-4o-mini"

	DefaultBaseURL = "https://openrouter.ai/api/v1"

	defaultTemperature = 0.2
	defaultMaxTokens   = 1000
	requestTimeout     = 120 * time.Second
	maxAttempts        = 3
)

// Config holds the scoring engine settings
type Config struct {
	APIKey      string
	Model       string
	Temperature *float64 // nil = 0.2
	MaxTokens   *int     // nil = 1000
	BaseURL     string   // empty = DefaultBaseURL
	Title       string   // X-Title shown in the OpenRouter dashboard
	Logger      *zap.SugaredLogger
}

// Client talks to OpenRouter's /chat/completions endpoint
type Client struct {
	config     Config
	baseURL    string
	httpClient httpclient.Doer
	logger     *zap.SugaredLogger
	retryDelay time.Duration
}

// NewClient fills unset config values with defaults
func NewClient(config Config) *Client {
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.Temperature == nil {
		t := defaultTemperature
		config.Temperature = &t
	}
	if config.MaxTokens == nil {
		n := defaultMaxTokens
		config.MaxTokens = &n
	}
	if config.Title == "" {
		config.Title = "quotesearch"
	}

	c := &Client{
		config:     config,
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		httpClient: httpclient.NewSaferClient(requestTimeout),
		logger:     config.Logger,
		retryDelay: time.Second,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.logger == nil {
		c.logger = zap.NewNop().Sugar()
	}
	return c
}

// IsConfigured reports whether an API key is present
func (c *Client) IsConfigured() bool {
	return c.config.APIKey != ""
}

// SetHTTPClient replaces the SSRF-safer transport; tests use it to reach httptest servers.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = httpclient.WrapClient(client)
}

// ChatRequest is one system+user exchange. Nil overrides fall back to Config.
type ChatRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  *float64
	MaxTokens    *int
	Model        *string
}

// ChatResponse is the trimmed assistant reply
type ChatResponse struct {
	Content string
	Usage   Usage
}

// Message is one chat turn on the wire
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the /chat/completions request body
type CompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// CompletionResponse is the /chat/completions response body
type CompletionResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Usage is the token accounting OpenRouter returns
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// BuildMessages puts the system prompt, when present, ahead of the user prompt
func BuildMessages(system, user string) []Message {
	if system == "" {
		return []Message{{Role: "user", Content: user}}
	}
	return []Message{{Role: "system", Content: system}, {Role: "user", Content: user}}
}

// completionFor applies per-request overrides on top of the client config
func (c *Client) completionFor(req ChatRequest) CompletionRequest {
	out := CompletionRequest{
		Model:       c.config.Model,
		Messages:    BuildMessages(req.SystemPrompt, req.UserPrompt),
		Temperature: *c.config.Temperature,
		MaxTokens:   *c.config.MaxTokens,
	}
	if req.Model != nil {
		out.Model = *req.Model
	}
	if req.Temperature != nil {
		out.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		out.MaxTokens = *req.MaxTokens
	}
	return out
}

// Complete posts a single completion request without retries
func (c *Client) Complete(ctx context.Context, body CompletionRequest) (*CompletionResponse, error) {
	headers := map[string]string{
		"Authorization": "Bearer " + c.config.APIKey,
		"X-Title":       c.config.Title,
	}
	var out CompletionResponse
	if err := httpclient.DoJSON(ctx, c.httpClient, http.MethodPost, c.baseURL+"/chat/completions", headers, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Chat sends req, retrying transport failures up to three attempts in total.
// HTTP error statuses are returned immediately.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if !c.IsConfigured() {
		return nil, errors.Wrap(errors.ErrMissingCredentials, "OpenRouter API key not configured")
	}

	body := c.completionFor(req)
	c.logger.Debugw("Scoring request",
		"model", body.Model,
		"temperature", body.Temperature,
		"max_tokens", body.MaxTokens,
		"prompt_length", len(req.SystemPrompt)+len(req.UserPrompt),
	)

	var (
		resp     *CompletionResponse
		attempts int
	)
	send := func() error {
		attempts++
		var err error
		if resp, err = c.Complete(ctx, body); err == nil {
			return nil
		}
		c.logger.Warnw("OpenRouter call failed", "attempt", attempts, "model", body.Model, "error", err)
		if !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	schedule := backoff.WithMaxRetries(backoff.NewConstantBackOff(c.retryDelay), maxAttempts-1)
	if err := backoff.Retry(send, backoff.WithContext(schedule, ctx)); err != nil {
		return nil, errors.Wrapf(err, "OpenRouter API error after %d attempt(s)", attempts)
	}
	if attempts > 1 {
		c.logger.Infow("OpenRouter call recovered", "attempts", attempts)
	}

	if len(resp.Choices) == 0 {
		return nil, errors.New("no response choices from OpenRouter")
	}
	c.logger.Debugw("Scoring response", "total_tokens", resp.Usage.TotalTokens)

	return &ChatResponse{
		Content: strings.TrimSpace(resp.Choices[0].Message.Content),
		Usage:   resp.Usage,
	}, nil
}

var transientMessages = []string{
	"connection reset by peer",
	"connection refused",
	"network is unreachable",
	"temporary failure",
	"timeout",
}

// retryable is true for timeouts, refused or reset connections and errors
// whose text says as much.
func retryable(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.ETIMEDOUT:
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	for _, s := range transientMessages {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
