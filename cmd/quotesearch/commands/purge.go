package commands

import (
	"context"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/quotesearch/am"
	"github.com/teranos/quotesearch/errors"
	"github.com/teranos/quotesearch/pulse/async"
)

// PurgeCmd deletes old finished jobs from the SQLite job store
var PurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove finished jobs older than the retention period",
	Long: `Delete completed and failed jobs created before now minus the retention
period. Pending and running jobs are never touched.

Only the sqlite job store outlives the server; the memory store is purged
by the running server on jobs.purge_interval.`,
	Args: cobra.NoArgs,
	RunE: runPurge,
}

func init() {
	PurgeCmd.Flags().Int("retention-days", 0, "Override jobs.retention_days")
}

func runPurge(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if storeName(cfg.Jobs.Store) != am.StoreSQLite {
		return errors.WithHint(
			errors.Newf("job store is %q, nothing to purge on disk", storeName(cfg.Jobs.Store)),
			`set jobs.store = "sqlite" to keep jobs across restarts`)
	}

	retention := cfg.GetJobRetention()
	if days, _ := cmd.Flags().GetInt("retention-days"); days > 0 {
		retention = time.Duration(days) * 24 * time.Hour
	}
	if retention <= 0 {
		return errors.New("retention is 0 days; refusing to purge every finished job")
	}

	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	cutoff := time.Now().Add(-retention)
	n, err := async.NewSQLStore(database).DeleteTerminalBefore(context.Background(), cutoff)
	if err != nil {
		return errors.Wrap(err, "failed to purge jobs")
	}
	pterm.Success.Printfln("Purged %d job(s) created before %s", n, cutoff.Format(time.DateTime))
	return nil
}
