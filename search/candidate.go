// Package search retrieves product candidates from supplier sites.
//
// An Extractor performs one remote extraction call per site. The Aggregator
// fans those calls out concurrently, keeps per-site failures separate from
// successes, and merges results in site order. FilterByPrice applies the
// configured price range without dropping candidates whose price is unreadable.
package search

import "strings"

// MarketScale tags a candidate as a local or an international offer
type MarketScale string

const (
	MarketLocal         MarketScale = "local"
	MarketInternational MarketScale = "international"
)

// ParseMarketScale maps both the canonical tags and the Portuguese labels
// used by the quotation frontend ("Nacional", "Internacional").
func ParseMarketScale(s string) MarketScale {
	switch s {
	case "", "local", "Nacional", "nacional":
		return MarketLocal
	default:
		return MarketInternational
	}
}

// Placeholders for fields the extraction API returned as null
const (
	PriceUnavailable       = "price unavailable"
	DescriptionUnavailable = "description unavailable"
)

// Candidate is one product offer found on a site
type Candidate struct {
	Name          string      `json:"name"`
	Price         string      `json:"price"`
	Description   string      `json:"description"`
	ProductURL    string      `json:"product_url"`
	ImageURL      string      `json:"image_url"`
	Site          string      `json:"site"`
	MarketScale   MarketScale `json:"market_scale"`
	CorrelationID string      `json:"correlation_id,omitempty"`
	SupplierID    int64       `json:"supplier_id,omitempty"`
}

// Site is one search target: a URL pattern plus what is known about its owner
type Site struct {
	Pattern     string      `json:"pattern"`
	SupplierID  int64       `json:"supplier_id,omitempty"`
	MarketScale MarketScale `json:"market_scale"`
}

// WildcardPattern turns a site URL into an extraction pattern covering every
// page below it: "https://loja.ao/" becomes "https://loja.ao/*".
func WildcardPattern(url string) string {
	url = strings.TrimSpace(url)
	if strings.HasSuffix(url, "*") {
		return url
	}
	return strings.TrimRight(url, "/") + "/*"
}
