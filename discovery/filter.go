package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/quotesearch/ai/openrouter"
	"github.com/teranos/quotesearch/ai/provider"
	"github.com/teranos/quotesearch/internal/llmjson"
	"github.com/teranos/quotesearch/pulse/budget"
)

// LinkFilter keeps the sites worth extracting from and returns clean URLs
type LinkFilter interface {
	Filter(ctx context.Context, term string, sites []Site, limit int) []string
}

var (
	storeKeywords   = []string{"loja", "shop", "store", "comprar", "venda", "produtos"}
	excludeKeywords = []string{"wikipedia", "youtube", "facebook", "instagram", "twitter", "linkedin", "blog", "forum", "noticia", "notícia"}
)

// BasicFilter is the keyword filter
type BasicFilter struct{}

// Filter implements LinkFilter
func (BasicFilter) Filter(_ context.Context, _ string, sites []Site, limit int) []string {
	return FilterBasic(sites, limit)
}

// FilterBasic keeps store-looking links, drops social and editorial sites,
// deduplicates by clean URL and returns at most limit URLs.
func FilterBasic(sites []Site, limit int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range sites {
		if limit > 0 && len(out) >= limit {
			break
		}
		clean := CleanURL(s.URL)
		if clean == "" || seen[clean] {
			continue
		}
		text := strings.ToLower(clean + " " + s.Title + " " + s.Description)
		if !containsAny(text, storeKeywords) || containsAny(text, excludeKeywords) {
			continue
		}
		seen[clean] = true
		out = append(out, clean)
	}
	return out
}

// CleanURL keeps scheme, host, a non-default port and the path ("/" when
// empty), dropping query strings, fragments and credentials.
func CleanURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Hostname() == "" {
		cut := strings.SplitN(raw, "?", 2)[0]
		return strings.SplitN(cut, "#", 2)[0]
	}

	clean := u.Scheme + "://" + u.Hostname()
	if port := u.Port(); port != "" && port != "80" && port != "443" {
		clean += ":" + port
	}
	if u.Path == "" || u.Path == "/" {
		return clean + "/"
	}
	return clean + u.Path
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

const linkFilterPrompt = `You identify e-commerce sites suitable for product searches.
Approve a link when it is an online store or service shop that sells the
searched kind of product. Reject encyclopedias, social networks, news, blogs
and forums.
Normalize approved URLs: drop tracking parameters, reduce single product pages
to the store root (or to a clearly trustworthy category path), end with "/".
Return at most the requested number of links without many variants of the
same site.
Reply with ONE JSON object and nothing else:
{"approved_links": ["https://store.example/", ...]}`

// LLMFilter asks the scoring engine to approve links and falls back to the
// keyword filter on any failure.
type LLMFilter struct {
	client  provider.AIClient
	limiter *budget.Limiter
	logger  *zap.SugaredLogger
}

// NewLLMFilter creates an engine-backed link filter
func NewLLMFilter(client provider.AIClient, limiter *budget.Limiter, logger *zap.SugaredLogger) *LLMFilter {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &LLMFilter{client: client, limiter: limiter, logger: logger}
}

type filterCandidate struct {
	Index       int    `json:"index"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

// Filter implements LinkFilter
func (f *LLMFilter) Filter(ctx context.Context, term string, sites []Site, limit int) []string {
	if len(sites) == 0 {
		return nil
	}
	if f.client == nil {
		return FilterBasic(sites, limit)
	}
	if err := f.limiter.Allow(); err != nil {
		f.logger.Debugw("Link filter over budget, using keyword filter", "error", err)
		return FilterBasic(sites, limit)
	}

	candidates := make([]filterCandidate, len(sites))
	for i, s := range sites {
		desc := s.Description
		if len(desc) > 300 {
			desc = desc[:300]
		}
		candidates[i] = filterCandidate{Index: i, Title: s.Title, URL: s.URL, Description: desc}
	}
	candidatesJSON, _ := json.Marshal(candidates)

	temperature := 0.0
	resp, err := f.client.Chat(ctx, openrouter.ChatRequest{
		SystemPrompt: linkFilterPrompt,
		UserPrompt:   fmt.Sprintf("SEARCH TERM: %s\nLIMIT: %d\nCANDIDATES: %s", term, limit, candidatesJSON),
		Temperature:  &temperature,
	})
	if err != nil {
		f.logger.Warnw("Link filter engine call failed, using keyword filter", "error", err)
		return FilterBasic(sites, limit)
	}

	var out struct {
		ApprovedLinks []string `json:"approved_links"`
	}
	if err := llmjson.DecodeStrict(resp.Content, &out); err != nil {
		f.logger.Warnw("Link filter reply unusable, using keyword filter", "error", err)
		return FilterBasic(sites, limit)
	}

	seen := make(map[string]bool)
	var approved []string
	for _, link := range out.ApprovedLinks {
		if limit > 0 && len(approved) >= limit {
			break
		}
		clean := CleanURL(link)
		if clean == "" || seen[clean] {
			continue
		}
		seen[clean] = true
		approved = append(approved, clean)
	}
	f.logger.Debugw("Link filter approved sites", "approved", len(approved), "candidates", len(sites))
	return approved
}
