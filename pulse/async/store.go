package async

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/teranos/quotesearch/errors"
)

// Store persists job snapshots. Implementations receive copies and must
// return copies.
type Store interface {
	Save(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	// List returns jobs newest first
	List(ctx context.Context, limit int) ([]*Job, error)
	// Active returns pending and running jobs, oldest first
	Active(ctx context.Context) ([]*Job, error)
	// DeleteTerminalBefore removes completed and failed jobs created before cutoff
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error)
	Counts(ctx context.Context) (map[JobStatus]int, error)
}

// SQLStore keeps jobs in the search_jobs table
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a job store on a migrated database
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Save inserts or replaces a job row
func (s *SQLStore) Save(ctx context.Context, job *Job) error {
	params, err := json.Marshal(job.Params)
	if err != nil {
		return errors.Wrap(err, "failed to marshal job params")
	}
	progress, err := marshalNullable(job.Progress)
	if err != nil {
		return errors.Wrap(err, "failed to marshal job progress")
	}
	result, err := marshalNullable(job.Result)
	if err != nil {
		return errors.Wrap(err, "failed to marshal job result")
	}

	query := `
		INSERT INTO search_jobs (
			id, status, params, progress, result, error, pid,
			created_at, started_at, completed_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			progress = excluded.progress,
			result = excluded.result,
			error = excluded.error,
			pid = excluded.pid,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			updated_at = excluded.updated_at
	`

	_, err = s.db.ExecContext(ctx, query,
		job.ID,
		job.Status,
		string(params),
		progress,
		result,
		sql.NullString{String: job.Error, Valid: job.Error != ""},
		sql.NullInt64{Int64: int64(job.PID), Valid: job.PID != 0},
		job.CreatedAt,
		job.StartedAt,
		job.CompletedAt,
		job.UpdatedAt,
	)
	if err != nil {
		err = errors.Wrap(err, "failed to save job")
		return errors.WithDetail(err, fmt.Sprintf("Job ID: %s", job.ID))
	}
	return nil
}

// Get retrieves a job by ID
func (s *SQLStore) Get(ctx context.Context, id string) (*Job, error) {
	query := `SELECT ` + jobSelectColumns + ` FROM search_jobs WHERE id = ?`

	var job Job
	if err := scanJob(s.db.QueryRowContext(ctx, query, id), &job); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.WithDetail(errors.Wrapf(errors.ErrNotFound, "job %s", id), fmt.Sprintf("Job ID: %s", id))
		}
		return nil, errors.Wrap(err, "failed to get job")
	}
	return &job, nil
}

// List returns the newest jobs first
func (s *SQLStore) List(ctx context.Context, limit int) ([]*Job, error) {
	query := `SELECT ` + jobSelectColumns + ` FROM search_jobs ORDER BY created_at DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list jobs")
	}
	defer rows.Close()

	return scanJobs(rows, "jobs")
}

// Active returns pending and running jobs
func (s *SQLStore) Active(ctx context.Context) ([]*Job, error) {
	query := `SELECT ` + jobSelectColumns + `
		FROM search_jobs
		WHERE status IN ('pending', 'running')
		ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list active jobs")
	}
	defer rows.Close()

	return scanJobs(rows, "active jobs")
}

// DeleteTerminalBefore removes completed/failed jobs created before cutoff
func (s *SQLStore) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	query := `
		DELETE FROM search_jobs
		WHERE status IN ('completed', 'failed')
		  AND created_at < ?
	`

	result, err := s.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "failed to purge old jobs")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}
	return int(rows), nil
}

// Counts returns the number of jobs per status
func (s *SQLStore) Counts(ctx context.Context) (map[JobStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM search_jobs GROUP BY status`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count jobs")
	}
	defer rows.Close()

	counts := make(map[JobStatus]int)
	for rows.Next() {
		var status JobStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, errors.Wrap(err, "failed to scan job count")
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating job counts")
	}
	return counts, nil
}

// marshalNullable stores nil pointers as NULL
func marshalNullable(v interface{}) (sql.NullString, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	if string(data) == "null" {
		return sql.NullString{}, nil
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// NewStoreFromConfig picks the store named by jobs.store
func NewStoreFromConfig(kind string, db *sql.DB) (Store, error) {
	switch kind {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		if db == nil {
			return nil, errors.Wrap(errors.ErrInvalidRequest, "sqlite job store needs a database")
		}
		return NewSQLStore(db), nil
	default:
		return nil, errors.WithHint(
			errors.Wrapf(errors.ErrInvalidRequest, "unknown job store %q", kind),
			`set jobs.store to "memory" or "sqlite"`)
	}
}
