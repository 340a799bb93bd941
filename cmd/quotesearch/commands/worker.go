package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teranos/quotesearch/db"
	"github.com/teranos/quotesearch/logger"
	"github.com/teranos/quotesearch/worker"
)

// WorkerCmd is the worker process entry point. The server launches it with
// the job handoff on stdin and reads the job protocol from stdout.
var WorkerCmd = &cobra.Command{
	Use:    "worker",
	Short:  "Run one search job (launched by the server)",
	Hidden: true,
	Args:   cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(runWorker(cmd))
	},
}

func runWorker(cmd *cobra.Command) int {
	verbosity, _ := cmd.Flags().GetCount("verbose")
	if verbosity < logger.VerbosityInfo {
		verbosity = logger.VerbosityInfo
	}
	logger.InitializeWorker(os.Stderr, logger.VerbosityToLevel(verbosity))
	defer logger.Cleanup()
	log := logger.Logger.Named("worker")

	// the server interrupts workers of cancelled jobs
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return worker.Fail(os.Stdout, err)
	}

	database, err := db.Open(cfg.GetDatabasePath(), log.Named("db"))
	if err != nil {
		return worker.Fail(os.Stdout, err)
	}
	defer database.Close()

	deps, err := worker.NewDeps(cfg, database, log)
	if err != nil {
		return worker.Fail(os.Stdout, err)
	}

	return worker.Main(ctx, os.Stdin, os.Stdout, deps)
}
