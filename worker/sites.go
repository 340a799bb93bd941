package worker

import (
	"context"
	"net/url"
	"strings"

	"github.com/teranos/quotesearch/errors"
	"github.com/teranos/quotesearch/logger"
	"github.com/teranos/quotesearch/search"
	"github.com/teranos/quotesearch/supplier"
)

// resolveSites builds the first attempt's site set: explicit URLs win, then
// the requested suppliers, then every active supplier.
func (p *Pipeline) resolveSites(ctx context.Context, r *run) ([]search.Site, error) {
	if len(r.params.ExtraURLs) > 0 {
		sites := make([]search.Site, 0, len(r.params.ExtraURLs))
		seen := make(map[string]bool)
		for _, u := range r.params.ExtraURLs {
			pattern := search.WildcardPattern(u.URL)
			if seen[pattern] {
				continue
			}
			seen[pattern] = true
			sites = append(sites, search.Site{Pattern: pattern, MarketScale: u.MarketScale})
		}
		return sites, nil
	}

	var suppliers []supplier.Supplier
	if len(r.params.SupplierIDs) > 0 {
		for _, id := range r.params.SupplierIDs {
			sup, err := p.deps.Directory.Supplier(ctx, id)
			if err != nil {
				return nil, errors.Wrapf(err, "resolve supplier %d", id)
			}
			if sup == nil || !sup.Active {
				r.log.Warnw("Skipping unknown or inactive supplier", logger.FieldSupplierID, id)
				continue
			}
			suppliers = append(suppliers, *sup)
		}
	} else {
		active, err := p.deps.Directory.ActiveSuppliers(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "list active suppliers")
		}
		suppliers = active
	}

	sites := make([]search.Site, 0, len(suppliers))
	for _, sup := range suppliers {
		if strings.TrimSpace(sup.URL) == "" {
			continue
		}
		sites = append(sites, sup.Site())
	}
	if len(sites) == 0 {
		return nil, errors.WithDetailf(errors.ErrNoSites, "job %s", r.jobID)
	}
	return sites, nil
}

// visitedSet records which site patterns each attempt of a job has tried
type visitedSet struct {
	jobID string
	tried map[string]int // pattern -> attempt
}

func newVisitedSet(jobID string) *visitedSet {
	return &visitedSet{jobID: jobID, tried: make(map[string]int)}
}

func (v *visitedSet) mark(attempt int, sites []search.Site) {
	for _, s := range sites {
		if _, ok := v.tried[s.Pattern]; !ok {
			v.tried[s.Pattern] = attempt
		}
	}
}

// fresh drops patterns an earlier attempt already searched
func (v *visitedSet) fresh(patterns []string) []string {
	var out []string
	for _, p := range patterns {
		if _, ok := v.tried[p]; ok {
			continue
		}
		out = append(out, p)
	}
	return out
}

// hostKey normalizes a site pattern or URL to a comparable host
func hostKey(raw string) string {
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "*")
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
