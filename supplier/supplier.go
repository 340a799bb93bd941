// Package supplier is the supplier directory and candidate persistence the
// search worker depends on.
package supplier

import (
	"context"

	"github.com/teranos/quotesearch/search"
)

// DefaultResultsPerSite is used when the settings row cannot be read
const DefaultResultsPerSite = 3

// Supplier is a known vendor site
type Supplier struct {
	ID          int64              `json:"id" toml:"-" yaml:"-"`
	Name        string             `json:"name" toml:"name" yaml:"name"`
	URL         string             `json:"url" toml:"url" yaml:"url"`
	MarketScale search.MarketScale `json:"market_scale" toml:"market_scale" yaml:"market_scale"`
	Active      bool               `json:"active" toml:"active" yaml:"active"`
}

// Site converts the supplier into a search target
func (s Supplier) Site() search.Site {
	return search.Site{
		Pattern:     search.WildcardPattern(s.URL),
		SupplierID:  s.ID,
		MarketScale: s.MarketScale,
	}
}

// SystemDefaults are the search defaults held in system_settings
type SystemDefaults struct {
	ResultsPerSite int      `json:"results_per_site" toml:"results_per_site" yaml:"results_per_site"`
	PriceMin       *float64 `json:"price_min,omitempty" toml:"price_min" yaml:"price_min"`
	PriceMax       *float64 `json:"price_max,omitempty" toml:"price_max" yaml:"price_max"`
}

// SaveResult counts what SaveCandidates did
type SaveResult struct {
	Saved   int `json:"saved"`
	Skipped int `json:"skipped"`
}

// Directory resolves suppliers and search defaults
type Directory interface {
	ActiveSuppliers(ctx context.Context) ([]Supplier, error)
	// Supplier returns nil, nil when id is unknown
	Supplier(ctx context.Context, id int64) (*Supplier, error)
	// SystemDefaults never fails; unreadable settings yield DefaultResultsPerSite
	SystemDefaults(ctx context.Context) SystemDefaults
}

// Persistence stores accepted candidates
type Persistence interface {
	SaveCandidates(ctx context.Context, candidates []search.Candidate, supplierID int64, actorID int64) (SaveResult, error)
}
