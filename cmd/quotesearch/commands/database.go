package commands

import (
	"database/sql"

	"github.com/teranos/quotesearch/am"
	"github.com/teranos/quotesearch/db"
	"github.com/teranos/quotesearch/errors"
	"github.com/teranos/quotesearch/logger"
)

// loadConfig loads and validates the merged configuration
func loadConfig() (*am.Config, error) {
	cfg, err := am.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.WithHint(errors.Wrap(err, "invalid configuration"), "run 'quotesearch am show' to inspect it")
	}
	return cfg, nil
}

// openDatabase opens and migrates the configured database
func openDatabase(cfg *am.Config) (*sql.DB, error) {
	path := cfg.GetDatabasePath()
	database, err := db.OpenWithMigrations(path, logger.Logger.Named("db"))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", path)
	}
	return database, nil
}
