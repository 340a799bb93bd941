package arbiter

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/quotesearch/ai/openrouter"
	"github.com/teranos/quotesearch/ai/provider"
	"github.com/teranos/quotesearch/internal/llmjson"
	"github.com/teranos/quotesearch/pulse/budget"
	"github.com/teranos/quotesearch/search"
)

// MandatoryStrictness makes every explicit requirement a hard constraint:
// a candidate with unmet requirements cannot win.
const MandatoryStrictness = 5

// Request is everything the engine needs to judge one candidate set
type Request struct {
	Term           string
	Candidates     []search.Candidate
	Quantity       int
	CostBenefit    map[string]interface{}
	Strictness     int     // 0..5
	ExternalWeight float64 // buyer's preference for international offers, 0..1
}

// engineResponse is the only shape accepted from the engine
type engineResponse struct {
	Index           *int           `json:"index"`
	NothingEligible bool           `json:"nothing_eligible"`
	Justification   string         `json:"justification"`
	Ranked          []engineRanked `json:"ranked"`
	Criteria        engineCriteria `json:"criteria"`
}

type engineRanked struct {
	Index             int      `json:"index"`
	Name              string   `json:"name"`
	Strengths         []string `json:"strengths"`
	Weaknesses        []string `json:"weaknesses"`
	Score             float64  `json:"score"`
	ExternalWeight    *float64 `json:"external_weight"`
	UnmetRequirements []string `json:"unmet_requirements"`
}

type engineCriteria struct {
	TypeMatch                 string   `json:"type_match"`
	SpecificationMatch        string   `json:"specification_match"`
	CostBenefit               string   `json:"cost_benefit"`
	Availability              string   `json:"availability"`
	RecommendedExternalWeight *float64 `json:"recommended_external_weight"`
}

// Arbiter chooses at most one winner per candidate set
type Arbiter struct {
	client  provider.AIClient
	limiter *budget.Limiter
	logger  *zap.SugaredLogger
}

// New creates an arbiter. A nil limiter means unlimited scoring calls.
func New(client provider.AIClient, limiter *budget.Limiter, logger *zap.SugaredLogger) *Arbiter {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Arbiter{client: client, limiter: limiter, logger: logger}
}

// Arbitrate never returns nil. WinnerIndex and every ranked Index refer to
// req.Candidates.
func (a *Arbiter) Arbitrate(ctx context.Context, req Request) (report *Report) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Errorw("Arbitration panicked", "panic", r)
			report = failure(fmt.Sprintf("arbitration panic: %v", r))
		}
	}()

	eligible := eligibleIndexes(req.Candidates)
	if len(eligible) == 0 {
		a.logger.Infow("No eligible candidates, skipping engine",
			"term", req.Term, "candidates", len(req.Candidates))
		return &Report{
			Outcome:       OutcomeNothingEligible,
			WinnerIndex:   NoWinner,
			Justification: "no candidate has both a name and a product URL",
			Ranked:        []RankedCandidate{},
		}
	}

	if a.client == nil {
		return failure("scoring engine not configured")
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return failure(fmt.Sprintf("scoring rate limit wait: %v", err))
	}

	temperature := 0.0
	resp, err := a.client.Chat(ctx, openrouter.ChatRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   buildUserPrompt(req, eligible),
		Temperature:  &temperature,
	})
	if err != nil {
		a.logger.Warnw("Scoring engine call failed", "term", req.Term, "error", err)
		return failure(err.Error())
	}

	var out engineResponse
	if err := llmjson.DecodeStrict(resp.Content, &out); err != nil {
		a.logger.Warnw("Scoring engine returned unusable response",
			"term", req.Term,
			"error", err,
			"response_preview", preview(resp.Content))
		return failure(err.Error())
	}

	report = classify(out, req, eligible)
	a.logger.Infow("Arbitration complete",
		"term", req.Term,
		"outcome", report.Outcome,
		"winner_index", report.WinnerIndex,
		"eligible", len(eligible))
	return report
}

// Winner returns the winning candidate, if any
func (r *Report) Winner(candidates []search.Candidate) (search.Candidate, bool) {
	if !r.HasWinner() || r.WinnerIndex >= len(candidates) {
		return search.Candidate{}, false
	}
	return candidates[r.WinnerIndex], true
}

func eligibleIndexes(candidates []search.Candidate) []int {
	var idx []int
	for i, c := range candidates {
		if strings.TrimSpace(c.Name) == "" || strings.TrimSpace(c.ProductURL) == "" {
			continue
		}
		idx = append(idx, i)
	}
	return idx
}

func classify(out engineResponse, req Request, eligible []int) *Report {
	if out.Index == nil {
		return failure("engine response has no index")
	}

	report := &Report{
		WinnerIndex:   NoWinner,
		Justification: out.Justification,
		Ranked:        rank(out.Ranked, req, eligible),
		Criteria: Criteria{
			TypeMatch:                 out.Criteria.TypeMatch,
			SpecificationMatch:        out.Criteria.SpecificationMatch,
			CostBenefit:               out.Criteria.CostBenefit,
			Availability:              out.Criteria.Availability,
			RecommendedExternalWeight: recommendedWeight(out.Criteria.RecommendedExternalWeight, req),
		},
	}

	idx := *out.Index
	switch {
	case idx >= len(eligible) || idx < NoWinner:
		return failure(fmt.Sprintf("winner index %d out of range (0..%d)", idx, len(eligible)-1))
	case idx >= 0 && req.Strictness >= MandatoryStrictness && len(unmetFor(out.Ranked, idx)) > 0:
		report.Outcome = OutcomeNoQualifyingWinner
		report.Justification = strings.TrimSpace(report.Justification + " Unmet requirements: " +
			strings.Join(unmetFor(out.Ranked, idx), ", "))
	case idx >= 0:
		report.Outcome = OutcomeWinner
		report.WinnerIndex = eligible[idx]
	case out.NothingEligible:
		report.Outcome = OutcomeNothingEligible
	default:
		report.Outcome = OutcomeNoQualifyingWinner
	}
	return report
}

// unmetFor returns the requirements the engine itself says candidate idx
// (an eligible-list index) fails.
func unmetFor(entries []engineRanked, idx int) []string {
	var unmet []string
	for _, e := range entries {
		if e.Index == idx {
			unmet = append(unmet, e.UnmetRequirements...)
		}
	}
	return unmet
}

func rank(entries []engineRanked, req Request, eligible []int) []RankedCandidate {
	ranked := make([]RankedCandidate, 0, MaxRanked)
	for _, e := range entries {
		if len(ranked) == MaxRanked {
			break
		}
		if e.Index < 0 || e.Index >= len(eligible) {
			continue
		}
		orig := eligible[e.Index]
		c := req.Candidates[orig]

		weight := HeuristicWeight(c.Name + " " + c.Description)
		if e.ExternalWeight != nil && *e.ExternalWeight >= 0 && *e.ExternalWeight <= 1 {
			weight = round2(*e.ExternalWeight)
		}

		name := e.Name
		if name == "" {
			name = c.Name
		}

		ranked = append(ranked, RankedCandidate{
			Index:             orig,
			Name:              name,
			Strengths:         nonNil(e.Strengths),
			Weaknesses:        nonNil(e.Weaknesses),
			Score:             clamp(e.Score, 0, 100),
			ExternalWeight:    weight,
			UnmetRequirements: nonNil(e.UnmetRequirements),
		})
	}
	return ranked
}

func recommendedWeight(engine *float64, req Request) float64 {
	if engine != nil && *engine >= 0 && *engine <= 1 {
		return round2(*engine)
	}
	if req.ExternalWeight > 0 {
		return round2(clamp(req.ExternalWeight, 0, 1))
	}
	return HeuristicWeight(req.Term)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func preview(s string) string {
	const max = 200
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
