package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/quotesearch/am"
	"github.com/teranos/quotesearch/pulse/async"
	"github.com/teranos/quotesearch/server"
)

// addServerFlag registers --server on commands that talk to a running server
func addServerFlag(cmd *cobra.Command) {
	cmd.Flags().String("server", "", "Server URL (default http://localhost:<server.port>)")
}

func newJobClient(cmd *cobra.Command) (*server.JobClient, error) {
	url, _ := cmd.Flags().GetString("server")
	if url == "" {
		cfg, err := am.Load()
		if err != nil {
			return nil, err
		}
		url = fmt.Sprintf("http://localhost:%d", cfg.GetServerPort())
	}
	return server.NewJobClient(url, nil), nil
}

func statusStyle(status async.JobStatus) string {
	switch status {
	case async.JobStatusCompleted:
		return pterm.FgGreen.Sprint(status)
	case async.JobStatusFailed:
		return pterm.FgRed.Sprint(status)
	case async.JobStatusRunning:
		return pterm.FgCyan.Sprint(status)
	default:
		return pterm.FgGray.Sprint(status)
	}
}

func shortJobID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func progressText(job *async.Job) string {
	if job.Progress == nil {
		return "-"
	}
	return fmt.Sprintf("[%s] %s", job.Progress.Stage, job.Progress.Detail)
}

// printJobDetail renders one job with its candidates
func printJobDetail(job *async.Job) {
	pterm.DefaultSection.Printf("Job %s", job.ID)

	rows := [][]string{
		{"Status", statusStyle(job.Status)},
		{"Term", job.Params.Term},
		{"Created", job.CreatedAt.Format(time.RFC3339)},
		{"Progress", progressText(job)},
	}
	if job.StartedAt != nil {
		rows = append(rows, []string{"Started", job.StartedAt.Format(time.RFC3339)})
	}
	if job.CompletedAt != nil {
		rows = append(rows, []string{"Finished", job.CompletedAt.Format(time.RFC3339)})
	}
	if job.PID > 0 {
		rows = append(rows, []string{"Worker PID", fmt.Sprint(job.PID)})
	}
	if job.Error != "" {
		rows = append(rows, []string{"Error", pterm.FgRed.Sprint(job.Error)})
	}
	_ = pterm.DefaultTable.WithData(rows).Render()

	if job.Result == nil {
		return
	}
	result := job.Result
	pterm.Println()
	if result.Report != nil {
		pterm.Info.Printf("Arbitration: %s", result.Report.Outcome)
		if result.Report.Justification != "" {
			pterm.Printf(" - %s", result.Report.Justification)
		}
		pterm.Println()
	}
	if result.Persistence != nil {
		pterm.Info.Printfln("Saved: %d, failed: %d", result.Persistence.Saved, result.Persistence.Failed)
	}
	if len(result.Candidates) == 0 {
		pterm.Warning.Println("No candidates")
		return
	}

	data := [][]string{{"#", "Name", "Price", "Site"}}
	for i, c := range result.Candidates {
		data = append(data, []string{fmt.Sprint(i + 1), truncate(c.Name, 60), c.Price, c.Site})
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
