package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/quotesearch/display"
	"github.com/teranos/quotesearch/errors"
)

// JobsCmd groups job inspection commands
var JobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List, inspect and cancel search jobs",
	Long: `Inspect jobs on a running server.

Examples:
  quotesearch jobs ls --limit 20
  quotesearch jobs status 3f2b9c1e-...
  quotesearch jobs cancel 3f2b9c1e-...`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var jobsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List recent jobs, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return runJobsLs(cmd, limit, display.ShouldOutputJSON(cmd))
	},
}

var jobsStatusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show status, progress and result of a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJobsStatus(cmd, args[0], display.ShouldOutputJSON(cmd))
	},
}

var jobsCancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a pending or running job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJobsCancel(cmd, args[0])
	},
}

func init() {
	jobsLsCmd.Flags().Int("limit", 20, "Maximum number of jobs to show")
	jobsLsCmd.Flags().Bool("json", false, "Print jobs as JSON")
	jobsStatusCmd.Flags().Bool("json", false, "Print the job as JSON")

	for _, c := range []*cobra.Command{jobsLsCmd, jobsStatusCmd, jobsCancelCmd} {
		addServerFlag(c)
		JobsCmd.AddCommand(c)
	}
}

func runJobsLs(cmd *cobra.Command, limit int, asJSON bool) error {
	client, err := newJobClient(cmd)
	if err != nil {
		return err
	}
	jobs, err := client.List(context.Background(), limit)
	if err != nil {
		return err
	}
	if asJSON {
		return display.OutputJSON(jobs)
	}
	if len(jobs) == 0 {
		pterm.Info.Println("No jobs")
		return nil
	}

	data := [][]string{{"ID", "Status", "Term", "Progress", "Created", "Results"}}
	for _, job := range jobs {
		results := "-"
		if job.Result != nil {
			results = fmt.Sprint(len(job.Result.Candidates))
		}
		data = append(data, []string{
			shortJobID(job.ID),
			statusStyle(job.Status),
			truncate(job.Params.Term, 40),
			truncate(progressText(job), 50),
			job.CreatedAt.Local().Format(time.DateTime),
			results,
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func runJobsStatus(cmd *cobra.Command, id string, asJSON bool) error {
	client, err := newJobClient(cmd)
	if err != nil {
		return err
	}
	job, err := client.Get(context.Background(), id)
	if err != nil {
		if errors.IsNotFoundError(err) {
			return errors.Newf("job %s not found", id)
		}
		return err
	}
	if asJSON {
		return display.OutputJSON(job)
	}
	printJobDetail(job)
	return nil
}

func runJobsCancel(cmd *cobra.Command, id string) error {
	client, err := newJobClient(cmd)
	if err != nil {
		return err
	}
	cancelled, err := client.Cancel(context.Background(), id)
	if err != nil {
		if errors.IsNotFoundError(err) {
			return errors.Newf("job %s not found", id)
		}
		return err
	}
	if cancelled {
		pterm.Success.Printfln("Job %s cancelled", id)
	} else {
		pterm.Warning.Printfln("Job %s had already finished", id)
	}
	return nil
}
