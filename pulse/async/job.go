// Package async runs search jobs in isolated worker processes.
//
// The Manager owns every job record: it allocates jobs, caps how many
// workers run at once, routes worker messages into job state and enforces
// cancellation. A Supervisor launches one worker process per job and turns
// its stdout protocol into state updates. Job snapshots are persisted
// through a Store.
package async

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/quotesearch/arbiter"
	"github.com/teranos/quotesearch/errors"
	"github.com/teranos/quotesearch/protocol"
	"github.com/teranos/quotesearch/search"
)

// JobStatus represents the current state of a job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// IsValidStatus returns true if the status string is a valid JobStatus
func IsValidStatus(s string) bool {
	switch JobStatus(s) {
	case JobStatusPending, JobStatusRunning, JobStatusCompleted, JobStatusFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition is possible
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Result is the outcome of a completed job
type Result struct {
	Candidates  []search.Candidate           `json:"candidates"`
	Quantity    int                          `json:"quantity,omitempty"`
	Report      *arbiter.Report              `json:"report,omitempty"`
	Persistence *protocol.PersistenceSummary `json:"persistence,omitempty"`
	ElapsedMS   int64                        `json:"elapsed_ms"`
}

func (r *Result) clone() *Result {
	c := *r
	c.Candidates = slices.Clone(r.Candidates)
	if r.Report != nil {
		report := *r.Report
		report.Ranked = slices.Clone(r.Report.Ranked)
		c.Report = &report
	}
	if r.Persistence != nil {
		summary := *r.Persistence
		summary.PerSite = slices.Clone(r.Persistence.PerSite)
		c.Persistence = &summary
	}
	return &c
}

// Job is one background search request and its lifecycle.
// Only the Manager mutates jobs; everything else sees copies.
type Job struct {
	ID          string             `json:"id"`
	Status      JobStatus          `json:"status"`
	Params      protocol.Params    `json:"params"`
	Progress    *protocol.Progress `json:"progress,omitempty"`
	Result      *Result            `json:"result,omitempty"`
	Error       string             `json:"error,omitempty"`
	PID         int                `json:"pid,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	StartedAt   *time.Time         `json:"started_at,omitempty"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// NewJob creates a pending job with a fresh UUID
func NewJob(params protocol.Params) *Job {
	now := time.Now()
	return &Job{
		ID:        uuid.NewString(),
		Status:    JobStatusPending,
		Params:    params,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Start marks a pending job as running
func (j *Job) Start() bool {
	if j.Status != JobStatusPending {
		return false
	}
	now := time.Now()
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.UpdatedAt = now
	return true
}

// AttachPID records the worker process of a running job
func (j *Job) AttachPID(pid int) bool {
	if j.Status != JobStatusRunning {
		return false
	}
	j.PID = pid
	j.UpdatedAt = time.Now()
	return true
}

// UpdateProgress overwrites the progress of a running job
func (j *Job) UpdateProgress(p protocol.Progress) bool {
	if j.Status != JobStatusRunning {
		return false
	}
	if p.Count != nil {
		count := *p.Count
		p.Count = &count
	}
	j.Progress = &p
	j.UpdatedAt = time.Now()
	return true
}

// Complete finalizes a job from a success terminal message
func (j *Job) Complete(t protocol.Terminal) bool {
	if j.Status.Terminal() {
		return false
	}
	candidates := t.Candidates
	if candidates == nil {
		candidates = []search.Candidate{}
	}
	j.Result = &Result{
		Candidates:  candidates,
		Quantity:    t.Quantity,
		Report:      t.Report,
		Persistence: t.Persistence,
		ElapsedMS:   t.ElapsedMS,
	}
	j.finish(JobStatusCompleted)
	return true
}

// Fail finalizes a job with an error message
func (j *Job) Fail(msg string) bool {
	if j.Status.Terminal() {
		return false
	}
	if msg == "" {
		msg = "unknown error"
	}
	j.Error = msg
	j.finish(JobStatusFailed)
	return true
}

// Cancel fails a job on behalf of a caller
func (j *Job) Cancel() bool {
	return j.Fail(errors.ErrCancelled.Error())
}

// Apply routes a terminal message to Complete or Fail
func (j *Job) Apply(t protocol.Terminal) bool {
	if t.Success() {
		return j.Complete(t)
	}
	return j.Fail(t.Error)
}

func (j *Job) finish(status JobStatus) {
	now := time.Now()
	j.Status = status
	j.CompletedAt = &now
	j.UpdatedAt = now
	j.PID = 0
}

// Clone returns a copy that shares nothing mutable with j.
// Result is never modified after completion and is shared.
func (j *Job) Clone() *Job {
	c := *j
	c.Params = j.Params.Clone()
	if j.Result != nil {
		c.Result = j.Result.clone()
	}
	if j.Progress != nil {
		p := *j.Progress
		if p.Count != nil {
			count := *p.Count
			p.Count = &count
		}
		c.Progress = &p
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
