package db

import (
	"database/sql"
	"embed"
	"io/fs"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/quotesearch/errors"
)

//go:embed sqlite/migrations/*.sql
var migrationFS embed.FS

const migrationDir = "sqlite/migrations"

// migration is one numbered schema script
type migration struct {
	version string
	file    string
}

// listMigrations returns the embedded scripts ordered by file name.
// 000_create_schema_migrations.sql sorts first and creates the bookkeeping table.
func listMigrations() ([]migration, error) {
	entries, err := fs.ReadDir(migrationFS, migrationDir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list migrations")
	}
	var out []migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		version, _, _ := strings.Cut(e.Name(), "_")
		out = append(out, migration{version: version, file: e.Name()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].file < out[j].file })
	return out, nil
}

// Migrate applies every migration not yet recorded in schema_migrations.
// log may be nil.
func Migrate(conn *sql.DB, log *zap.SugaredLogger) error {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	all, err := listMigrations()
	if err != nil {
		return err
	}

	applied := 0
	for _, m := range all {
		done, err := isApplied(conn, m.version)
		if err != nil {
			return errors.Wrapf(err, "cannot read schema_migrations before %s", m.file)
		}
		if done {
			log.Debugw("Migration already applied", "migration", m.file)
			continue
		}
		log.Infow("Applying migration", "migration", m.file, "version", m.version)
		if err := applyMigration(conn, m); err != nil {
			return err
		}
		applied++
	}

	log.Infow("Schema up to date", "migrations", len(all), "applied", applied)
	return nil
}

// isApplied tolerates a missing bookkeeping table only for the bootstrap script
func isApplied(conn *sql.DB, version string) (bool, error) {
	var exists bool
	err := conn.QueryRow(`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = ?)`, version).Scan(&exists)
	if err != nil && version == "000" {
		return false, nil
	}
	return exists, err
}

func applyMigration(conn *sql.DB, m migration) error {
	script, err := migrationFS.ReadFile(path.Join(migrationDir, m.file))
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", m.file)
	}

	tx, err := conn.Begin()
	if err != nil {
		return errors.Wrapf(err, "failed to begin %s", m.file)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(string(script)); err != nil {
		return errors.Wrapf(err, "migration %s failed", m.file)
	}
	if _, err := tx.Exec(`INSERT INTO schema_migrations (version) VALUES (?)`, m.version); err != nil {
		return errors.Wrapf(err, "failed to record %s", m.file)
	}
	return errors.Wrapf(tx.Commit(), "failed to commit %s", m.file)
}
