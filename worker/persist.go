package worker

import (
	"context"
	"fmt"

	"github.com/teranos/quotesearch/logger"
	"github.com/teranos/quotesearch/protocol"
	"github.com/teranos/quotesearch/search"
)

// group is the candidates of one supplier (or one unmatched site)
type group struct {
	site       string
	supplierID int64
	candidates []search.Candidate
}

// persist saves candidates grouped by supplier. Failures are counted per
// group and never abort the job.
func (p *Pipeline) persist(ctx context.Context, r *run, candidates []search.Candidate) *protocol.PersistenceSummary {
	r.progress(protocol.StagePersist, len(candidates), fmt.Sprintf("saving %d candidates", len(candidates)))

	summary := &protocol.PersistenceSummary{PerSite: []protocol.SiteSave{}}
	if p.deps.Persistence == nil {
		summary.Failed = len(candidates)
		summary.PerSite = append(summary.PerSite, protocol.SiteSave{Failed: len(candidates), Error: "persistence not configured"})
		return summary
	}

	for _, g := range p.groupBySupplier(ctx, r, candidates) {
		save := protocol.SiteSave{Site: g.site, SupplierID: g.supplierID}

		if g.supplierID == 0 {
			save.Failed = len(g.candidates)
			save.Error = "no supplier for site"
		} else if res, err := p.deps.Persistence.SaveCandidates(ctx, g.candidates, g.supplierID, r.params.ActorID); err != nil {
			r.log.Warnw("Saving candidates failed",
				logger.FieldSupplierID, g.supplierID,
				logger.FieldCount, len(g.candidates),
				logger.FieldError, err)
			save.Failed = len(g.candidates)
			save.Error = err.Error()
		} else {
			save.Saved = res.Saved
		}

		summary.Saved += save.Saved
		summary.Failed += save.Failed
		summary.PerSite = append(summary.PerSite, save)
	}

	r.log.Infow("Persistence finished", "saved", summary.Saved, "failed", summary.Failed)
	return summary
}

// groupBySupplier keeps first-appearance order. Candidates from explicit or
// discovered sites are matched to an active supplier by host.
func (p *Pipeline) groupBySupplier(ctx context.Context, r *run, candidates []search.Candidate) []*group {
	var hosts map[string]int64
	needHosts := false
	for _, c := range candidates {
		if c.SupplierID == 0 {
			needHosts = true
			break
		}
	}
	if needHosts {
		hosts = make(map[string]int64)
		active, err := p.deps.Directory.ActiveSuppliers(ctx)
		if err != nil {
			r.log.Warnw("Cannot match sites to suppliers", logger.FieldError, err)
		}
		for _, sup := range active {
			if h := hostKey(sup.URL); h != "" {
				hosts[h] = sup.ID
			}
		}
	}

	var groups []*group
	index := make(map[string]*group)
	for _, c := range candidates {
		supplierID := c.SupplierID
		if supplierID == 0 {
			supplierID = hosts[hostKey(c.Site)]
		}

		key := fmt.Sprintf("supplier:%d", supplierID)
		if supplierID == 0 {
			key = "site:" + c.Site
		}

		g, ok := index[key]
		if !ok {
			g = &group{site: c.Site, supplierID: supplierID}
			index[key] = g
			groups = append(groups, g)
		}
		c.SupplierID = supplierID
		g.candidates = append(g.candidates, c)
	}
	return groups
}
