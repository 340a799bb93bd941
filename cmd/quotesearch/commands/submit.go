package commands

import (
	"context"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/quotesearch/display"
	"github.com/teranos/quotesearch/errors"
	"github.com/teranos/quotesearch/protocol"
	"github.com/teranos/quotesearch/pulse/async"
	"github.com/teranos/quotesearch/search"
)

// SubmitCmd creates a search job on a running server
var SubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a search job",
	Long: `Submit a product search to a running server.

Without --site the active suppliers (or those named with --supplier) are
searched. With --wait the command polls until the job finishes and prints
the result.

Examples:
  quotesearch submit --term "impressora laser" --wait
  quotesearch submit --term "papel A4" --supplier 3 --supplier 7 --refine
  quotesearch submit --term "cadeira" --site https://loja.ao --quantity 20 --persist`,
	Args: cobra.NoArgs,
	RunE: runSubmit,
}

var submitOpts struct {
	term           string
	sites          []string
	suppliers      []int64
	quantity       int
	resultsPerSite int
	strictness     int
	refine         bool
	persist        bool
	maxDepth       int
	actor          int64
	wait           bool
}

func init() {
	f := SubmitCmd.Flags()
	f.StringVar(&submitOpts.term, "term", "", "Product to search for (required)")
	f.StringSliceVar(&submitOpts.sites, "site", nil, "Search this site instead of the supplier directory (repeatable)")
	f.Int64SliceVar(&submitOpts.suppliers, "supplier", nil, "Restrict to these supplier ids (repeatable)")
	f.IntVar(&submitOpts.quantity, "quantity", 1, "Requested quantity")
	f.IntVar(&submitOpts.resultsPerSite, "results-per-site", 0, "Offers per site (0 = system default)")
	f.IntVar(&submitOpts.strictness, "strictness", 0, "Arbitration strictness 0-5")
	f.BoolVar(&submitOpts.refine, "refine", false, "Let the scoring engine pick the best offer")
	f.BoolVar(&submitOpts.persist, "persist", false, "Save the offers found")
	f.IntVar(&submitOpts.maxDepth, "max-discovery-depth", 0, "Discovery re-attempts (0 = configured default)")
	f.Int64Var(&submitOpts.actor, "actor", 0, "User id recorded on saved offers")
	f.BoolVar(&submitOpts.wait, "wait", false, "Wait for the job to finish")
	f.Bool("json", false, "Print the job as JSON")
	_ = SubmitCmd.MarkFlagRequired("term")
	addServerFlag(SubmitCmd)
}

func submitParams() protocol.Params {
	params := protocol.Params{
		Term:              submitOpts.term,
		ResultsPerSite:    submitOpts.resultsPerSite,
		SupplierIDs:       submitOpts.suppliers,
		ActorID:           submitOpts.actor,
		Quantity:          submitOpts.quantity,
		Strictness:        submitOpts.strictness,
		Refine:            submitOpts.refine,
		Persist:           submitOpts.persist,
		MaxDiscoveryDepth: submitOpts.maxDepth,
	}
	for _, site := range submitOpts.sites {
		params.ExtraURLs = append(params.ExtraURLs, protocol.ExtraURL{URL: site, MarketScale: search.MarketLocal})
	}
	return params
}

func runSubmit(cmd *cobra.Command, args []string) error {
	client, err := newJobClient(cmd)
	if err != nil {
		return err
	}
	ctx := context.Background()

	id, err := client.Submit(ctx, submitParams())
	if err != nil {
		return errors.WithHint(err, "is 'quotesearch serve' running?")
	}
	asJSON := display.ShouldOutputJSON(cmd)
	if !submitOpts.wait {
		if asJSON {
			return display.OutputJSON(map[string]string{"job_id": id})
		}
		pterm.Success.Printfln("Job %s submitted", id)
		pterm.Info.Printfln("Follow it with: quotesearch jobs status %s", id)
		return nil
	}

	spinner, _ := pterm.DefaultSpinner.Start(fmt.Sprintf("Job %s pending...", shortJobID(id)))
	job, err := client.Wait(ctx, id, func(j *async.Job) {
		if spinner != nil {
			spinner.UpdateText(fmt.Sprintf("Job %s %s %s", shortJobID(id), j.Status, progressText(j)))
		}
	})
	if spinner != nil {
		_ = spinner.Stop()
	}
	if err != nil {
		return err
	}

	if asJSON {
		return display.OutputJSON(job)
	}
	printJobDetail(job)
	if job.Status == async.JobStatusFailed {
		return errors.Newf("job %s failed: %s", id, job.Error)
	}
	return nil
}
