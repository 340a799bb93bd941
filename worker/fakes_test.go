package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/teranos/quotesearch/arbiter"
	"github.com/teranos/quotesearch/errors"
	"github.com/teranos/quotesearch/protocol"
	"github.com/teranos/quotesearch/search"
	"github.com/teranos/quotesearch/supplier"
)

type fakeDirectory struct {
	suppliers []supplier.Supplier
	defaults  supplier.SystemDefaults
	panicking bool
}

func (d *fakeDirectory) ActiveSuppliers(ctx context.Context) ([]supplier.Supplier, error) {
	var out []supplier.Supplier
	for _, s := range d.suppliers {
		if s.Active {
			out = append(out, s)
		}
	}
	return out, nil
}

func (d *fakeDirectory) Supplier(ctx context.Context, id int64) (*supplier.Supplier, error) {
	for _, s := range d.suppliers {
		if s.ID == id {
			s := s
			return &s, nil
		}
	}
	return nil, nil
}

func (d *fakeDirectory) SystemDefaults(ctx context.Context) supplier.SystemDefaults {
	if d.panicking {
		panic("settings table exploded")
	}
	if d.defaults.ResultsPerSite == 0 {
		return supplier.SystemDefaults{ResultsPerSite: 3}
	}
	return d.defaults
}

type saveCall struct {
	supplierID int64
	actorID    int64
	names      []string
}

type fakePersistence struct {
	mu    sync.Mutex
	calls []saveCall
	fail  map[int64]error
}

func (p *fakePersistence) SaveCandidates(ctx context.Context, candidates []search.Candidate, supplierID, actorID int64) (supplier.SaveResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var names []string
	for _, c := range candidates {
		names = append(names, c.Name)
	}
	p.calls = append(p.calls, saveCall{supplierID, actorID, names})
	if err := p.fail[supplierID]; err != nil {
		return supplier.SaveResult{}, err
	}
	return supplier.SaveResult{Saved: len(candidates)}, nil
}

// fakeExtractor returns n candidates per site unless the site is listed in
// empty or failing.
type fakeExtractor struct {
	mu      sync.Mutex
	n       int
	empty   map[string]bool
	failing map[string]bool
	calls   []string
}

func (f *fakeExtractor) Extract(ctx context.Context, term string, site search.Site, limit int) ([]search.Candidate, error) {
	f.mu.Lock()
	f.calls = append(f.calls, site.Pattern)
	f.mu.Unlock()

	if f.failing[site.Pattern] {
		return nil, errors.Newf("%s unreachable", site.Pattern)
	}
	if f.empty[site.Pattern] {
		return nil, nil
	}
	var out []search.Candidate
	for i := 0; i < f.n; i++ {
		out = append(out, search.Candidate{
			Name:        fmt.Sprintf("%s item %d", site.Pattern, i),
			Price:       fmt.Sprintf("%d", 100*(i+1)),
			ProductURL:  fmt.Sprintf("%s/p/%d", site.Pattern, i),
			Site:        site.Pattern,
			SupplierID:  site.SupplierID,
			MarketScale: site.MarketScale,
		})
	}
	return out, nil
}

func (f *fakeExtractor) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeArbiter struct {
	decide func(req arbiter.Request) *arbiter.Report
	calls  int
}

func (a *fakeArbiter) Arbitrate(ctx context.Context, req arbiter.Request) *arbiter.Report {
	a.calls++
	if len(req.Candidates) == 0 {
		return &arbiter.Report{Outcome: arbiter.OutcomeNothingEligible, WinnerIndex: arbiter.NoWinner}
	}
	return a.decide(req)
}

func rejectAll(req arbiter.Request) *arbiter.Report {
	return &arbiter.Report{Outcome: arbiter.OutcomeNothingEligible, WinnerIndex: arbiter.NoWinner, Justification: "wrong type"}
}

func pickLast(req arbiter.Request) *arbiter.Report {
	return &arbiter.Report{Outcome: arbiter.OutcomeWinner, WinnerIndex: len(req.Candidates) - 1}
}

// fakeDiscovery returns a fresh pair of sites on every call
type fakeDiscovery struct {
	calls int
	fixed []string
}

func (d *fakeDiscovery) Discover(ctx context.Context, term string) []string {
	d.calls++
	if d.fixed != nil {
		return d.fixed
	}
	return []string{
		fmt.Sprintf("https://found-%d-a.ao/*", d.calls),
		fmt.Sprintf("https://found-%d-b.ao/*", d.calls),
	}
}

type recordingEmitter struct {
	mu       sync.Mutex
	progress []protocol.Progress
}

func (e *recordingEmitter) Progress(p protocol.Progress) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.progress = append(e.progress, p)
	return nil
}

func urls(raw ...string) []protocol.ExtraURL {
	out := make([]protocol.ExtraURL, len(raw))
	for i, u := range raw {
		out[i] = protocol.ExtraURL{URL: u}
	}
	return out
}
