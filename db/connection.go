// Package db opens the SQLite database shared by the job store and the
// supplier catalog and keeps its schema current.
package db

import (
	"database/sql"
	"net/url"
	"strconv"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/teranos/quotesearch/errors"
)

// SQLiteBusyTimeoutMS is how long a connection waits on a locked database.
// The server and several workers write to the same file.
const SQLiteBusyTimeoutMS = 5000

// Open opens path in WAL mode. Foreign keys and the busy timeout are
// per-connection settings, so they travel in the DSN. log may be nil.
func Open(path string, log *zap.SugaredLogger) (*sql.DB, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	conn, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database %s", path)
	}
	if _, err := conn.Exec("PRAGMA journal_mode = WAL"); err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "failed to enable WAL mode")
	}

	log.Debugw("Database opened", "path", path, "busy_timeout_ms", SQLiteBusyTimeoutMS)
	return conn, nil
}

// OpenWithMigrations is Open followed by Migrate
func OpenWithMigrations(path string, log *zap.SugaredLogger) (*sql.DB, error) {
	conn, err := Open(path, log)
	if err != nil {
		return nil, err
	}
	if err := Migrate(conn, log); err != nil {
		_ = conn.Close()
		return nil, errors.Wrapf(err, "migrate %s", path)
	}
	return conn, nil
}

func dsn(path string) string {
	params := url.Values{}
	params.Set("_foreign_keys", "on")
	params.Set("_busy_timeout", strconv.Itoa(SQLiteBusyTimeoutMS))

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + params.Encode()
}
