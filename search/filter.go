package search

import (
	"strconv"
	"strings"
)

// ParsePrice reads a loosely formatted price such as "Kz 12.500,00" or
// "$1,299". Everything except digits, '.' and ',' is dropped and the first
// ',' becomes the decimal point. ok is false when nothing numeric remains.
func ParsePrice(s string) (value float64, ok bool) {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' {
			b.WriteRune(r)
		}
	}
	cleaned := strings.Replace(b.String(), ",", ".", 1)
	if cleaned == "" {
		return 0, false
	}

	// parse the longest valid prefix, like a lenient float reader would
	for end := len(cleaned); end > 0; end-- {
		if v, err := strconv.ParseFloat(cleaned[:end], 64); err == nil {
			return v, true
		}
	}
	return 0, false
}

// FilterByPrice keeps candidates whose price is within [min, max]. Nil bounds
// are open. A candidate whose price cannot be parsed is always kept.
func FilterByPrice(candidates []Candidate, min, max *float64) []Candidate {
	if min == nil && max == nil {
		return candidates
	}

	kept := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		price, ok := ParsePrice(c.Price)
		if !ok {
			kept = append(kept, c)
			continue
		}
		if min != nil && price < *min {
			continue
		}
		if max != nil && price > *max {
			continue
		}
		kept = append(kept, c)
	}
	return kept
}
