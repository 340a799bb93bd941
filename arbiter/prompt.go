package arbiter

import (
	"encoding/json"
	"fmt"
	"strings"
)

const systemPrompt = `You select the single best product offer for a purchase request.

DECISION PROCEDURE
1. Type match: discard any candidate that is not the requested kind of product.
2. Apply the strictness level (0-5) to the buyer's explicit requirements:
   - 0: judge only cost/benefit and relevance to the request.
   - 1-2: requirements are preferences; missing ones lower the score.
   - 3-4: most requirements must be met; at most one minor gap is tolerated.
   - 5: every explicit requirement is mandatory; any unmet requirement disqualifies.
3. Among the remaining candidates weigh cost/benefit (use the buyer's weights
   when given), specification fit and availability.
4. Pick at most ONE winner. If no candidate qualifies, answer index -1.
   Set nothing_eligible to true only when no candidate is even the right type.

EXTERNAL MARKET WEIGHT
For each ranked candidate estimate external_weight between 0.0 and 1.0: how
reasonable it is to source this item from an international supplier.
0.0 = impossible (on-site services, cheap urgent items), 0.5 = neutral,
1.0 = niche item that is hard to find locally.

RESPONSE
Reply with ONE JSON object and nothing else, exactly these fields:
{
  "index": <winner index or -1>,
  "nothing_eligible": <true|false>,
  "justification": "<one paragraph>",
  "ranked": [
    {"index": 0, "name": "", "strengths": [], "weaknesses": [], "score": 0-100,
     "external_weight": 0.0-1.0, "unmet_requirements": []}
  ],
  "criteria": {"type_match": "", "specification_match": "", "cost_benefit": "",
    "availability": "", "recommended_external_weight": 0.0-1.0}
}
Rank at most 5 candidates, best first. Do not add fields.`

type promptCandidate struct {
	Index       int    `json:"index"`
	Name        string `json:"name"`
	Price       string `json:"price"`
	Description string `json:"description"`
	Site        string `json:"site"`
	MarketScale string `json:"market_scale"`
}

type promptParams struct {
	Term           string                 `json:"term"`
	Quantity       int                    `json:"quantity"`
	Strictness     int                    `json:"strictness"`
	ExternalWeight float64                `json:"external_weight"`
	CostBenefit    map[string]interface{} `json:"cost_benefit,omitempty"`
}

func buildUserPrompt(req Request, eligible []int) string {
	items := make([]promptCandidate, len(eligible))
	for i, orig := range eligible {
		c := req.Candidates[orig]
		items[i] = promptCandidate{
			Index:       i,
			Name:        c.Name,
			Price:       c.Price,
			Description: c.Description,
			Site:        c.Site,
			MarketScale: string(c.MarketScale),
		}
	}

	params := promptParams{
		Term:           req.Term,
		Quantity:       req.Quantity,
		Strictness:     req.Strictness,
		ExternalWeight: req.ExternalWeight,
		CostBenefit:    req.CostBenefit,
	}

	// Marshal of plain structs and a JSON-sourced map cannot fail.
	candidatesJSON, _ := json.MarshalIndent(items, "", "  ")
	paramsJSON, _ := json.MarshalIndent(params, "", "  ")

	var b strings.Builder
	fmt.Fprintf(&b, "REQUEST:\n%s\n\n", paramsJSON)
	fmt.Fprintf(&b, "CANDIDATES (%d):\n%s\n", len(items), candidatesJSON)
	return b.String()
}
