// Package arbiter picks at most one winning candidate from a search result
// by asking a scoring engine for a structured verdict.
//
// The engine is treated as a scored decision function: it receives the
// indexed candidates plus the buyer's constraints and must answer with a
// single JSON object. Anything the engine gets wrong (transport failure,
// prose around the JSON, unknown fields, an index outside the list) is
// reported as OutcomeScoringFailure rather than returned as an error.
package arbiter

// Outcome classifies an arbitration
type Outcome string

const (
	OutcomeWinner             Outcome = "winner"
	OutcomeNothingEligible    Outcome = "nothing_eligible"
	OutcomeNoQualifyingWinner Outcome = "no_qualifying_winner"
	OutcomeScoringFailure     Outcome = "scoring_failure"
)

// NoWinner is the WinnerIndex of every report without a winner
const NoWinner = -1

// MaxRanked caps the ranked list carried in a report
const MaxRanked = 5

// RankedCandidate is one entry of the engine's ranking. Index refers to the
// candidate list passed to Arbitrate.
type RankedCandidate struct {
	Index             int      `json:"index"`
	Name              string   `json:"name"`
	Strengths         []string `json:"strengths"`
	Weaknesses        []string `json:"weaknesses"`
	Score             float64  `json:"score"`
	ExternalWeight    float64  `json:"external_weight"`
	UnmetRequirements []string `json:"unmet_requirements"`
}

// Criteria summarises how the engine judged the candidate set as a whole
type Criteria struct {
	TypeMatch                 string  `json:"type_match"`
	SpecificationMatch        string  `json:"specification_match"`
	CostBenefit               string  `json:"cost_benefit"`
	Availability              string  `json:"availability"`
	RecommendedExternalWeight float64 `json:"recommended_external_weight"`
}

// Report is the result of one arbitration
type Report struct {
	Outcome       Outcome           `json:"outcome"`
	WinnerIndex   int               `json:"winner_index"`
	Justification string            `json:"justification"`
	Ranked        []RankedCandidate `json:"ranked"`
	Criteria      Criteria          `json:"criteria"`
	Error         string            `json:"error,omitempty"`
}

// HasWinner reports whether exactly one candidate was chosen
func (r *Report) HasWinner() bool {
	return r != nil && r.Outcome == OutcomeWinner && r.WinnerIndex >= 0
}

func failure(msg string) *Report {
	return &Report{
		Outcome:     OutcomeScoringFailure,
		WinnerIndex: NoWinner,
		Ranked:      []RankedCandidate{},
		Error:       msg,
	}
}
