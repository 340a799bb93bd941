package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/quotesearch/ai/provider"
	"github.com/teranos/quotesearch/am"
	"github.com/teranos/quotesearch/errors"
	"github.com/teranos/quotesearch/logger"
	"github.com/teranos/quotesearch/pulse/async"
	"github.com/teranos/quotesearch/server"
)

// ServeCmd starts the job server
var ServeCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   "Start the job server",
	Long: `Start the HTTP API that creates, tracks and cancels search jobs.

Each job runs in a worker process launched from jobs.worker_command
(default: this binary's "worker" subcommand). Finished jobs older than
jobs.retention_days are purged every jobs.purge_interval.

Changes to the active config file are picked up without a restart for
jobs.max_concurrent_workers, the purge policy and server.allowed_origins.`,
	RunE: runServe,
}

var servePort int

func init() {
	ServeCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides server.port)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	store, err := async.NewStoreFromConfig(cfg.Jobs.Store, database)
	if err != nil {
		return err
	}
	supervisor, err := async.NewSupervisorFromConfig(cfg.Jobs, logger.Logger.Named("pulse.supervisor"))
	if err != nil {
		return err
	}

	manager := async.NewManager(store, supervisor, async.ManagerConfig{
		MaxWorkers:    cfg.Jobs.MaxConcurrentWorkers,
		Retention:     cfg.GetJobRetention(),
		PurgeInterval: cfg.Jobs.PurgeInterval,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	manager.Start(ctx)

	srv := server.New(manager, am.ServerConfig{
		Port:           cfg.GetServerPort(),
		AllowedOrigins: cfg.GetServerAllowedOrigins(),
	}, logger.Logger.Named("server"))

	if watcher := startConfigWatcher(manager, srv); watcher != nil {
		defer watcher.Stop()
	}

	port := cfg.GetServerPort()
	if servePort > 0 {
		port = servePort
	}
	printStartupBanner(cfg, port)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.ListenAndServe(port)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		_ = manager.Shutdown(context.Background())
		return err
	case <-sigChan:
	}

	pterm.Info.Println("Shutting down gracefully (press Ctrl+C again to force)...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), server.ShutdownTimeout)
	defer shutdownCancel()

	done := make(chan error, 1)
	go func() {
		serr := srv.Shutdown(shutdownCtx)
		merr := manager.Shutdown(shutdownCtx)
		if serr != nil {
			done <- serr
			return
		}
		done <- merr
	}()

	select {
	case err := <-done:
		if err != nil {
			return errors.Wrap(err, "shutdown error")
		}
		pterm.Success.Println("Server stopped cleanly")
		return nil
	case <-sigChan:
		pterm.Warning.Println("Force shutdown - exiting immediately")
		os.Exit(1)
		return nil
	}
}

// startConfigWatcher applies edits of the active config file to the running
// server. Returns nil when no config file is in use.
func startConfigWatcher(manager *async.Manager, srv *server.Server) *am.ConfigWatcher {
	path := am.ActiveConfigFile()
	if path == "" {
		return nil
	}

	watcher, err := am.NewConfigWatcher(path)
	if err != nil {
		logger.Warnw("Config hot reload disabled", logger.FieldError, err)
		return nil
	}
	watcher.OnReload(func(cfg *am.Config) error {
		manager.SetMaxWorkers(cfg.Jobs.MaxConcurrentWorkers)
		manager.SetPurgePolicy(cfg.GetJobRetention(), cfg.Jobs.PurgeInterval)
		srv.SetAllowedOrigins(cfg.GetServerAllowedOrigins())
		return nil
	})
	am.SetGlobalWatcher(watcher)
	watcher.Start()
	logger.Infow("Watching config file", "path", path)
	return watcher
}

func printStartupBanner(cfg *am.Config, port int) {
	pterm.DefaultHeader.WithFullWidth().Println("quotesearch job server")
	pterm.Println()
	_ = pterm.DefaultBulletList.WithItems([]pterm.BulletListItem{
		{Level: 0, Text: fmt.Sprintf("API:       http://localhost:%d/api/jobs", port)},
		{Level: 0, Text: fmt.Sprintf("Updates:   ws://localhost:%d/ws", port)},
		{Level: 0, Text: fmt.Sprintf("Database:  %s", cfg.GetDatabasePath())},
		{Level: 0, Text: fmt.Sprintf("Job store: %s", storeName(cfg.Jobs.Store))},
		{Level: 0, Text: fmt.Sprintf("Workers:   %d", cfg.Jobs.MaxConcurrentWorkers)},
		{Level: 0, Text: fmt.Sprintf("Scoring:   %s", cfg.Scoring.Provider)},
	}).Render()
	pterm.Println()

	if p, err := provider.ParseProvider(cfg.Scoring.Provider); err == nil && !slices.Contains(provider.GetAvailableProviders(cfg), p) {
		pterm.Warning.Printfln("Scoring provider %q is not configured; jobs with refine will fail", cfg.Scoring.Provider)
	}
}

func storeName(kind string) string {
	if kind == "" {
		return am.StoreMemory
	}
	return kind
}
