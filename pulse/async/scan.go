package async

import (
	"database/sql"
	"encoding/json"

	"github.com/teranos/quotesearch/errors"
)

const jobSelectColumns = `id, status, params, progress, result, error, pid,
	created_at, started_at, completed_at, updated_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// jobScanArgs holds the nullable columns of a search_jobs row
type jobScanArgs struct {
	Params      string
	Progress    sql.NullString
	Result      sql.NullString
	ErrorMsg    sql.NullString
	PID         sql.NullInt64
	StartedAt   sql.NullTime
	CompletedAt sql.NullTime
}

func (a *jobScanArgs) targets(job *Job) []interface{} {
	return []interface{}{
		&job.ID,
		&job.Status,
		&a.Params,
		&a.Progress,
		&a.Result,
		&a.ErrorMsg,
		&a.PID,
		&job.CreatedAt,
		&a.StartedAt,
		&a.CompletedAt,
		&job.UpdatedAt,
	}
}

// apply copies the scanned columns into job
func (a *jobScanArgs) apply(job *Job) error {
	if err := json.Unmarshal([]byte(a.Params), &job.Params); err != nil {
		return errors.Wrapf(err, "failed to unmarshal params for job %s", job.ID)
	}
	if a.Progress.Valid {
		if err := json.Unmarshal([]byte(a.Progress.String), &job.Progress); err != nil {
			return errors.Wrapf(err, "failed to unmarshal progress for job %s", job.ID)
		}
	}
	if a.Result.Valid {
		if err := json.Unmarshal([]byte(a.Result.String), &job.Result); err != nil {
			return errors.Wrapf(err, "failed to unmarshal result for job %s", job.ID)
		}
	}
	if a.ErrorMsg.Valid {
		job.Error = a.ErrorMsg.String
	}
	if a.PID.Valid {
		job.PID = int(a.PID.Int64)
	}
	if a.StartedAt.Valid {
		t := a.StartedAt.Time
		job.StartedAt = &t
	}
	if a.CompletedAt.Valid {
		t := a.CompletedAt.Time
		job.CompletedAt = &t
	}
	return nil
}

func scanJob(row rowScanner, job *Job) error {
	var args jobScanArgs
	if err := row.Scan(args.targets(job)...); err != nil {
		return err
	}
	return args.apply(job)
}

// scanJobs scans every row into a job
func scanJobs(rows *sql.Rows, what string) ([]*Job, error) {
	jobs := []*Job{}
	for rows.Next() {
		var job Job
		if err := scanJob(rows, &job); err != nil {
			return nil, errors.Wrap(err, "failed to scan job")
		}
		jobs = append(jobs, &job)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "error iterating %s", what)
	}
	return jobs, nil
}
