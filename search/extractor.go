package search

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/quotesearch/errors"
	"github.com/teranos/quotesearch/internal/httpclient"
	"github.com/teranos/quotesearch/logger"
)

// Extractor performs one remote extraction call against a site and returns
// at most limit candidates. Implementations hold no per-call state.
type Extractor interface {
	Extract(ctx context.Context, term string, site Site, limit int) ([]Candidate, error)
}

// DefaultFirecrawlURL is the hosted Firecrawl API
const DefaultFirecrawlURL = "https://api.firecrawl.dev"

const extractionSystemPrompt = `You are a precise data extraction agent. ` +
	`Extract only products that are actually listed on the given pages. ` +
	`If no product matches the request, return an empty 'products' array. ` +
	`DO NOT invent products, prices or URLs.`

// extractionSchema is the JSON schema sent with every extract request
var extractionSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"products": map[string]interface{}{
			"type": "array",
			"items": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"name":        map[string]interface{}{"type": "string"},
					"price":       map[string]interface{}{"type": []string{"string", "null"}},
					"image_url":   map[string]interface{}{"type": []string{"string", "null"}},
					"description": map[string]interface{}{"type": []string{"string", "null"}},
					"product_url": map[string]interface{}{"type": "string"},
				},
				"required": []string{"name", "product_url"},
			},
		},
	},
	"required": []string{"products"},
}

type extractRequest struct {
	URLs            []string               `json:"urls"`
	Prompt          string                 `json:"prompt"`
	SystemPrompt    string                 `json:"systemPrompt"`
	Schema          map[string]interface{} `json:"schema"`
	EnableWebSearch bool                   `json:"enableWebSearch"`
}

type extractedProduct struct {
	Name        string  `json:"name"`
	Price       *string `json:"price"`
	ImageURL    *string `json:"image_url"`
	Description *string `json:"description"`
	ProductURL  string  `json:"product_url"`
}

type extractResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Data    struct {
		Products []extractedProduct `json:"products"`
	} `json:"data"`
}

// FirecrawlConfig configures a FirecrawlExtractor
type FirecrawlConfig struct {
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	RequestsPerMinute int  // 0 = unlimited
	AllowPrivateHosts bool // tests and self-hosted Firecrawl on a private network
	Logger            *zap.SugaredLogger
}

// FirecrawlExtractor extracts products through the Firecrawl /v1/extract API
type FirecrawlExtractor struct {
	baseURL    string
	apiKey     string
	httpClient httpclient.Doer
	limiter    *rate.Limiter
	logger     *zap.SugaredLogger
}

// NewFirecrawlExtractor creates an extractor. The API key is required.
func NewFirecrawlExtractor(cfg FirecrawlConfig) (*FirecrawlExtractor, error) {
	if cfg.APIKey == "" {
		return nil, errors.WithHint(
			errors.Wrap(errors.ErrMissingCredentials, "extractor.api_key"),
			"set FIRECRAWL_API_KEY or extractor.api_key in am.toml")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultFirecrawlURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	blockPrivate := !cfg.AllowPrivateHosts
	e := &FirecrawlExtractor{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: httpclient.NewSaferClientWithOptions(cfg.Timeout, httpclient.SaferClientOptions{
			BlockPrivateIP: &blockPrivate,
		}),
		logger: log,
	}
	if cfg.RequestsPerMinute > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), 1)
	}
	return e, nil
}

// SetHTTPClient replaces the HTTP client (for tests)
func (e *FirecrawlExtractor) SetHTTPClient(client httpclient.Doer) {
	e.httpClient = client
}

// Extract asks Firecrawl for exactly limit products matching term on site
func (e *FirecrawlExtractor) Extract(ctx context.Context, term string, site Site, limit int) ([]Candidate, error) {
	if limit <= 0 {
		limit = 1
	}
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, "extraction rate limit wait")
		}
	}

	req := extractRequest{
		URLs:            []string{site.Pattern},
		Prompt:          fmt.Sprintf("Extract EXACTLY %d products that match %q.", limit, term),
		SystemPrompt:    extractionSystemPrompt,
		Schema:          extractionSchema,
		EnableWebSearch: false,
	}

	var resp extractResponse
	headers := map[string]string{"Authorization": "Bearer " + e.apiKey}
	start := time.Now()
	if err := httpclient.DoJSON(ctx, e.httpClient, http.MethodPost, e.baseURL+"/v1/extract", headers, req, &resp); err != nil {
		return nil, errors.Wrapf(err, "extract from %s", site.Pattern)
	}
	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "extraction unsuccessful"
		}
		return nil, errors.Newf("extract from %s: %s", site.Pattern, msg)
	}

	products := resp.Data.Products
	if len(products) > limit {
		products = products[:limit]
	}

	candidates := make([]Candidate, 0, len(products))
	for _, p := range products {
		candidates = append(candidates, toCandidate(p, site))
	}

	e.logger.Debugw("Extraction finished",
		logger.FieldSite, site.Pattern,
		"count", len(candidates),
		"duration_ms", time.Since(start).Milliseconds())

	return candidates, nil
}

func toCandidate(p extractedProduct, site Site) Candidate {
	c := Candidate{
		Name:        strings.TrimSpace(p.Name),
		Price:       PriceUnavailable,
		Description: DescriptionUnavailable,
		ProductURL:  strings.TrimSpace(p.ProductURL),
		Site:        site.Pattern,
		SupplierID:  site.SupplierID,
		MarketScale: site.MarketScale,
	}
	if p.Price != nil && strings.TrimSpace(*p.Price) != "" {
		c.Price = strings.TrimSpace(*p.Price)
	}
	if p.Description != nil && strings.TrimSpace(*p.Description) != "" {
		c.Description = strings.TrimSpace(*p.Description)
	}
	if p.ImageURL != nil {
		c.ImageURL = strings.TrimSpace(*p.ImageURL)
	}
	if c.MarketScale == "" {
		c.MarketScale = MarketLocal
	}
	return c
}
