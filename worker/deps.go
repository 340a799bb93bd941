package worker

import (
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/quotesearch/ai/provider"
	"github.com/teranos/quotesearch/am"
	"github.com/teranos/quotesearch/arbiter"
	"github.com/teranos/quotesearch/discovery"
	"github.com/teranos/quotesearch/pulse/budget"
	"github.com/teranos/quotesearch/search"
	"github.com/teranos/quotesearch/supplier"
)

// NewDeps wires production collaborators from configuration. A missing
// scoring credential is not fatal here: jobs without refinement still run,
// and refining jobs fail before any site is searched.
func NewDeps(cfg *am.Config, conn *sql.DB, log *zap.SugaredLogger) (Deps, error) {
	store := supplier.NewStore(conn, log.Named("supplier"))

	extractor, err := search.NewFirecrawlExtractor(search.FirecrawlConfig{
		BaseURL:           cfg.Extractor.BaseURL,
		APIKey:            cfg.Extractor.APIKey,
		Timeout:           time.Duration(cfg.Extractor.TimeoutSeconds) * time.Second,
		RequestsPerMinute: cfg.Extractor.RequestsPerMinute,
		AllowPrivateHosts: cfg.Extractor.AllowPrivateHosts,
		Logger:            log.Named("search"),
	})
	if err != nil {
		return Deps{}, err
	}

	deps := Deps{
		Directory:       store,
		Persistence:     store,
		Extractor:       extractor,
		DefaultMaxDepth: cfg.GetDiscoveryMaxDepth(),
		Logger:          log,
	}

	limiter := budget.NewLimiter(cfg.Scoring.MaxCallsPerMinute)
	engine, err := provider.NewAIClient(cfg, log.Named("scoring"))
	if err != nil {
		log.Warnw("Scoring engine unavailable, refining jobs will be refused", "error", err)
		deps.ScoringErr = err
		engine = nil
	}
	if engine != nil {
		deps.Arbiter = arbiter.New(engine, limiter, log.Named("arbiter"))
	}

	if cfg.Discovery.Enabled {
		var filter discovery.LinkFilter = discovery.BasicFilter{}
		if cfg.Discovery.FilterWithLLM && engine != nil {
			filter = discovery.NewLLMFilter(engine, limiter, log.Named("discovery"))
		}
		suggester := discovery.NewHTTPSuggester(cfg.Discovery.BaseURL, cfg.Discovery.APIKey,
			time.Duration(cfg.Extractor.TimeoutSeconds)*time.Second)
		deps.Discovery = discovery.NewFallback(suggester, filter,
			cfg.Discovery.Limit, cfg.Discovery.LocationHint, log.Named("discovery"))
	}

	return deps, nil
}
