// Package worker runs one search job inside an isolated process.
//
// The pipeline resolves sites, searches them concurrently, filters by price,
// optionally arbitrates a single winner (discovering new sites when nothing
// qualifies) and optionally persists the outcome. Every outcome, including a
// panic, is reported as exactly one protocol.Terminal.
package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/quotesearch/am"
	"github.com/teranos/quotesearch/arbiter"
	"github.com/teranos/quotesearch/errors"
	"github.com/teranos/quotesearch/logger"
	"github.com/teranos/quotesearch/protocol"
	"github.com/teranos/quotesearch/search"
	"github.com/teranos/quotesearch/supplier"
)

// DefaultMaxDiscoveryDepth allows the original run plus one discovery re-attempt
const DefaultMaxDiscoveryDepth = 1

// Emitter receives progress messages
type Emitter interface {
	Progress(p protocol.Progress) error
}

// Arbitrator picks at most one winner
type Arbitrator interface {
	Arbitrate(ctx context.Context, req arbiter.Request) *arbiter.Report
}

// Discoverer proposes new site patterns for a term
type Discoverer interface {
	Discover(ctx context.Context, term string) []string
}

// Deps are the collaborators of a pipeline. Arbiter and Discovery may be nil:
// refining jobs are then refused with ScoringErr and discovery finds nothing.
type Deps struct {
	Directory   supplier.Directory
	Persistence supplier.Persistence
	Extractor   search.Extractor
	Arbiter     Arbitrator
	Discovery   Discoverer
	// ScoringErr is why Arbiter is nil, reported to refining jobs
	ScoringErr error
	// DefaultMaxDepth is the operator's discovery cap. Requests may lower it.
	DefaultMaxDepth int
	Logger          *zap.SugaredLogger
}

// Pipeline executes search jobs
type Pipeline struct {
	deps       Deps
	aggregator *search.Aggregator
	logger     *zap.SugaredLogger
}

// NewPipeline creates a pipeline
func NewPipeline(deps Deps) *Pipeline {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if deps.DefaultMaxDepth <= 0 {
		deps.DefaultMaxDepth = DefaultMaxDiscoveryDepth
	}
	deps.DefaultMaxDepth = min(deps.DefaultMaxDepth, am.MaxDiscoveryDepth)
	return &Pipeline{
		deps:       deps,
		aggregator: search.NewAggregator(deps.Extractor, log.Named("search")),
		logger:     log,
	}
}

// run is the state of one job across discovery attempts
type run struct {
	jobID    string
	params   protocol.Params
	emit     Emitter
	defaults supplier.SystemDefaults
	maxDepth int
	visited  *visitedSet
	log      *zap.SugaredLogger
}

// Run executes one job and returns its terminal message. It never panics.
func (p *Pipeline) Run(ctx context.Context, jobID string, params protocol.Params, emit Emitter) (terminal protocol.Terminal) {
	start := time.Now()
	log := p.logger.With(logger.FieldsFromContext(logger.WithJobID(ctx, jobID))...)

	defer func() {
		if r := recover(); r != nil {
			log.Errorw("Worker panic", "panic", r, "stack", string(debug.Stack()))
			terminal = protocol.Terminal{Status: protocol.StatusError, Error: fmt.Sprintf("worker panic: %v", r)}
		}
		terminal.ElapsedMS = time.Since(start).Milliseconds()
	}()

	params.Normalize()
	if params.Term == "" {
		return protocol.NewErrorTerminal(errors.Wrap(errors.ErrInvalidRequest, "search term is empty"))
	}

	if params.Refine && p.deps.Arbiter == nil {
		return protocol.NewErrorTerminal(p.missingEngine())
	}

	maxDepth := p.deps.DefaultMaxDepth
	if params.MaxDiscoveryDepth > 0 {
		maxDepth = min(params.MaxDiscoveryDepth, maxDepth)
	}

	r := &run{
		jobID:    jobID,
		params:   params,
		emit:     emit,
		defaults: p.deps.Directory.SystemDefaults(ctx),
		maxDepth: maxDepth,
		visited:  newVisitedSet(jobID),
		log:      log,
	}

	sites, err := p.resolveSites(ctx, r)
	if err != nil {
		log.Warnw("Site resolution failed", logger.FieldError, err)
		return protocol.NewErrorTerminal(err)
	}

	terminal, err = p.attempt(ctx, r, sites, 0)
	if err != nil {
		log.Warnw("Search job failed", logger.FieldError, err)
		return protocol.NewErrorTerminal(err)
	}
	return terminal
}

// attempt runs the search-refine-persist sequence over sites at depth
func (p *Pipeline) attempt(ctx context.Context, r *run, sites []search.Site, depth int) (protocol.Terminal, error) {
	if len(sites) == 0 {
		return protocol.Terminal{}, errors.ErrNoSites
	}
	if err := ctx.Err(); err != nil {
		return protocol.Terminal{}, errors.Wrap(err, "job interrupted before search")
	}

	r.visited.mark(depth, sites)
	r.progress(protocol.StageSearch, len(sites), fmt.Sprintf("%d sites discovered", len(sites)))

	perSite := r.params.ResultsPerSite
	if perSite <= 0 {
		perSite = r.defaults.ResultsPerSite
	}

	results := p.aggregator.Search(ctx, r.params.Term, sites, perSite)
	candidates := p.aggregator.Merge(results)
	for i := range candidates {
		candidates[i].CorrelationID = r.params.MissingItemID
	}
	r.progress(protocol.StageSearch, len(candidates), fmt.Sprintf("%d candidates found", len(candidates)))
	r.log.Infow("Search finished",
		logger.FieldDepth, depth,
		"sites", len(sites),
		"failed_sites", search.Failures(results),
		logger.FieldCount, len(candidates))

	if r.defaults.PriceMin != nil || r.defaults.PriceMax != nil {
		candidates = search.FilterByPrice(candidates, r.defaults.PriceMin, r.defaults.PriceMax)
		r.progress(protocol.StageSearch, len(candidates), fmt.Sprintf("%d candidates after price filter", len(candidates)))
	}

	if err := ctx.Err(); err != nil {
		return protocol.Terminal{}, errors.Wrap(err, "job interrupted after search")
	}

	var report *arbiter.Report
	if r.params.Refine {
		report = p.arbitrate(ctx, r, candidates)

		switch {
		case report.HasWinner():
			winner, _ := report.Winner(candidates)
			candidates = []search.Candidate{winner}
		case report.Outcome == arbiter.OutcomeScoringFailure:
			candidates = nil
		default:
			candidates = nil
			if next := p.discover(ctx, r, depth); len(next) > 0 {
				return p.attempt(ctx, r, next, depth+1)
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return protocol.Terminal{}, errors.Wrap(err, "job interrupted before persistence")
	}

	terminal := protocol.Terminal{
		Status:     protocol.StatusSuccess,
		Candidates: candidates,
		Quantity:   r.params.Quantity,
		Report:     report,
	}
	if r.params.Persist && len(candidates) > 0 {
		terminal.Persistence = p.persist(ctx, r, candidates)
	}
	return terminal, nil
}

// missingEngine is the configuration error for a refining job without a
// scoring engine. It always matches errors.ErrMissingCredentials.
func (p *Pipeline) missingEngine() error {
	if p.deps.ScoringErr != nil {
		return errors.Mark(errors.Wrap(p.deps.ScoringErr, "refinement requested"), errors.ErrMissingCredentials)
	}
	return errors.Wrap(errors.ErrMissingCredentials, "refinement requested but no scoring engine is configured")
}

func (p *Pipeline) arbitrate(ctx context.Context, r *run, candidates []search.Candidate) *arbiter.Report {
	return p.deps.Arbiter.Arbitrate(ctx, arbiter.Request{
		Term:           r.params.Term,
		Candidates:     candidates,
		Quantity:       r.params.Quantity,
		CostBenefit:    r.params.CostBenefit,
		Strictness:     r.params.Strictness,
		ExternalWeight: r.params.ExternalWeight,
	})
}

// discover returns untried sites for the next attempt, or nil when the job
// named its own sites, the depth budget is spent or nothing new was found.
func (p *Pipeline) discover(ctx context.Context, r *run, depth int) []search.Site {
	if len(r.params.ExtraURLs) > 0 || p.deps.Discovery == nil {
		return nil
	}
	if depth >= r.maxDepth {
		r.log.Infow("Discovery depth exhausted", logger.FieldDepth, depth, "max_depth", r.maxDepth)
		return nil
	}

	patterns := r.visited.fresh(p.deps.Discovery.Discover(ctx, r.params.Term))
	if len(patterns) == 0 {
		return nil
	}

	sites := make([]search.Site, len(patterns))
	for i, pattern := range patterns {
		sites[i] = search.Site{Pattern: pattern, MarketScale: search.MarketLocal}
	}
	r.log.Infow("Retrying with discovered sites", logger.FieldDepth, depth+1, logger.FieldCount, len(sites))
	return sites
}

func (r *run) progress(stage string, count int, detail string) {
	if r.emit == nil {
		return
	}
	if err := r.emit.Progress(protocol.Progress{Stage: stage, Count: &count, Detail: detail}); err != nil {
		r.log.Debugw("Progress not delivered", logger.FieldStage, stage, logger.FieldError, err)
	}
}
