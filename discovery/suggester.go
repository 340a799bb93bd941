// Package discovery finds new supplier sites when a search yields no winner.
//
// A Suggester proposes links for a term, a LinkFilter keeps the ones that
// look like online stores, and Fallback turns the survivors into extraction
// patterns. Discovery is best effort: every failure degrades to an empty list.
package discovery

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/teranos/quotesearch/errors"
	"github.com/teranos/quotesearch/internal/httpclient"
)

// Site is one suggested link
type Site struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// Suggester proposes sites likely to sell term
type Suggester interface {
	Suggest(ctx context.Context, term string, limit int, locationHint string) ([]Site, error)
}

// HTTPSuggester queries a web-search endpoint:
// GET {base}/search?query=..&limit=..&location=..&is_mixed=true
type HTTPSuggester struct {
	baseURL    string
	apiKey     string
	httpClient httpclient.Doer
}

// NewHTTPSuggester creates a suggester using the SSRF-guarded client
func NewHTTPSuggester(baseURL, apiKey string, timeout time.Duration) *HTTPSuggester {
	return &HTTPSuggester{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpclient.NewSaferClient(timeout),
	}
}

// SetHTTPClient overrides the transport (tests)
func (s *HTTPSuggester) SetHTTPClient(client httpclient.Doer) {
	s.httpClient = client
}

type suggestResponse struct {
	Results []Site `json:"results"`
}

// Suggest implements Suggester
func (s *HTTPSuggester) Suggest(ctx context.Context, term string, limit int, locationHint string) ([]Site, error) {
	if s.baseURL == "" {
		return nil, errors.New("discovery base_url not configured")
	}

	q := url.Values{}
	q.Set("query", term)
	q.Set("limit", strconv.Itoa(limit))
	if locationHint != "" {
		q.Set("location", locationHint)
	}
	q.Set("is_mixed", "true")

	var headers map[string]string
	if s.apiKey != "" {
		headers = map[string]string{"Authorization": "Bearer " + s.apiKey}
	}

	var resp suggestResponse
	endpoint := s.baseURL + "/search?" + q.Encode()
	if err := httpclient.DoJSON(ctx, s.httpClient, http.MethodGet, endpoint, headers, nil, &resp); err != nil {
		return nil, errors.Wrapf(err, "site suggestion for %q", term)
	}

	sites := resp.Results[:0]
	for _, site := range resp.Results {
		if strings.TrimSpace(site.URL) != "" {
			sites = append(sites, site)
		}
	}
	return sites, nil
}
