package search

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/teranos/quotesearch/logger"
)

// SiteResult is one site's outcome: candidates on success, Err otherwise
type SiteResult struct {
	Site       Site
	Candidates []Candidate
	Err        error
	Duration   time.Duration
}

// OK reports whether the site call succeeded
func (r SiteResult) OK() bool { return r.Err == nil }

// Aggregator fans extraction calls out across sites
type Aggregator struct {
	extractor Extractor
	logger    *zap.SugaredLogger
}

// NewAggregator creates an aggregator over extractor
func NewAggregator(extractor Extractor, logger *zap.SugaredLogger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Aggregator{extractor: extractor, logger: logger}
}

// Search calls the extractor for every site concurrently. A failing or slow
// site never cancels the others; its error is kept in its own SiteResult.
// Results are returned in the order of sites.
func (a *Aggregator) Search(ctx context.Context, term string, sites []Site, perSite int) []SiteResult {
	results := make([]SiteResult, len(sites))

	var g errgroup.Group
	for i, site := range sites {
		i, site := i, site
		g.Go(func() error {
			start := time.Now()
			candidates, err := a.extractor.Extract(ctx, term, site, perSite)
			if err == nil && len(candidates) > perSite && perSite > 0 {
				candidates = candidates[:perSite]
			}
			results[i] = SiteResult{
				Site:       site,
				Candidates: candidates,
				Err:        err,
				Duration:   time.Since(start),
			}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Merge concatenates the candidates of successful sites in site order and
// logs each failed site.
func (a *Aggregator) Merge(results []SiteResult) []Candidate {
	var merged []Candidate
	for _, r := range results {
		if !r.OK() {
			a.logger.Warnw("Site search failed",
				logger.FieldSite, r.Site.Pattern,
				"error", r.Err,
				"duration_ms", r.Duration.Milliseconds())
			continue
		}
		a.logger.Debugw("Site search succeeded",
			logger.FieldSite, r.Site.Pattern,
			"count", len(r.Candidates),
			"duration_ms", r.Duration.Milliseconds())
		merged = append(merged, r.Candidates...)
	}
	return merged
}

// Failures counts failed sites
func Failures(results []SiteResult) int {
	n := 0
	for _, r := range results {
		if !r.OK() {
			n++
		}
	}
	return n
}
