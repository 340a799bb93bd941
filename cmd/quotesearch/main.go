package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/quotesearch/am"
	"github.com/teranos/quotesearch/cmd/quotesearch/commands"
	"github.com/teranos/quotesearch/errors"
	"github.com/teranos/quotesearch/logger"
)

var rootCmd = &cobra.Command{
	Use:   "quotesearch",
	Short: "quotesearch - background product search for quotations",
	Long: `quotesearch runs product searches for quotations as background jobs.

Each job runs in its own worker process: it extracts offers from supplier
sites, optionally has a scoring engine pick the best one, falls back to
site discovery when nothing fits and can save the results.

Available commands:
  serve     - Start the job server (HTTP API + WebSocket updates)
  submit    - Submit a search job to a running server
  jobs      - List, inspect and cancel jobs
  purge     - Remove old finished jobs
  suppliers - Manage the supplier directory
  am        - Show and change configuration
  version   - Show version information

Examples:
  quotesearch serve -v
  quotesearch submit --term "impressora laser" --wait
  quotesearch jobs ls
  quotesearch am show --format yaml`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// the worker owns stdout for its protocol and sets up its own logger
		if cmd.Name() == commands.WorkerCmd.Name() {
			return nil
		}
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		level := logger.VerbosityToLevel(verbosity)

		// [log] in am.toml applies only where no flag was given
		if cfg, err := am.Load(); err == nil {
			if !cmd.Flags().Changed("json-logs") {
				jsonLogs = cfg.Log.JSON
			}
			if l, ok := cfg.Log.ZapLevel(); ok && verbosity == 0 {
				level = l
			}
		}
		if err := logger.InitializeWithLevel(jsonLogs, level); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (-v, -vv)")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Log as JSON instead of console text")

	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.WorkerCmd)
	rootCmd.AddCommand(commands.SubmitCmd)
	rootCmd.AddCommand(commands.JobsCmd)
	rootCmd.AddCommand(commands.PurgeCmd)
	rootCmd.AddCommand(commands.SuppliersCmd)
	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	defer logger.Cleanup()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		for _, hint := range errors.GetAllHints(err) {
			fmt.Fprintln(os.Stderr, "Hint:", hint)
		}
		os.Exit(1)
	}
}
