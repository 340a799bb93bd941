package discovery

import (
	"context"

	"go.uber.org/zap"

	"github.com/teranos/quotesearch/search"
)

// Defaults used when Fallback is built with zero values
const (
	DefaultLimit        = 5
	DefaultLocationHint = "Angola"
)

// Fallback chains suggestion, filtering and pattern normalization
type Fallback struct {
	suggester    Suggester
	filter       LinkFilter
	limit        int
	locationHint string
	logger       *zap.SugaredLogger
}

// NewFallback creates a discovery fallback. A nil filter uses BasicFilter.
func NewFallback(suggester Suggester, filter LinkFilter, limit int, locationHint string, logger *zap.SugaredLogger) *Fallback {
	if filter == nil {
		filter = BasicFilter{}
	}
	if limit <= 0 || limit > DefaultLimit {
		limit = DefaultLimit
	}
	if locationHint == "" {
		locationHint = DefaultLocationHint
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Fallback{
		suggester:    suggester,
		filter:       filter,
		limit:        limit,
		locationHint: locationHint,
		logger:       logger,
	}
}

// Discover returns wildcard site patterns for term, or nothing. Errors are
// logged, never returned.
func (f *Fallback) Discover(ctx context.Context, term string) []string {
	if f == nil || f.suggester == nil {
		return nil
	}

	sites, err := f.suggester.Suggest(ctx, term, f.limit, f.locationHint)
	if err != nil {
		f.logger.Warnw("Site discovery failed", "term", term, "error", err)
		return nil
	}
	if len(sites) == 0 {
		f.logger.Infow("Site discovery found nothing", "term", term)
		return nil
	}

	approved := f.filter.Filter(ctx, term, sites, f.limit)

	seen := make(map[string]bool, len(approved))
	patterns := make([]string, 0, len(approved))
	for _, link := range approved {
		p := search.WildcardPattern(link)
		if seen[p] {
			continue
		}
		seen[p] = true
		patterns = append(patterns, p)
	}

	f.logger.Infow("Site discovery complete",
		"term", term,
		"suggested", len(sites),
		"approved", len(patterns))
	return patterns
}
