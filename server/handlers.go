package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/teranos/quotesearch/errors"
	"github.com/teranos/quotesearch/logger"
	"github.com/teranos/quotesearch/protocol"
	"github.com/teranos/quotesearch/pulse/async"
	"github.com/teranos/quotesearch/version"
)

// CreateJobResponse is returned by POST /api/jobs
type CreateJobResponse struct {
	JobID string `json:"job_id"`
}

// ListJobsResponse is returned by GET /api/jobs
type ListJobsResponse struct {
	Jobs  []*async.Job `json:"jobs"`
	Count int          `json:"count"`
}

// CancelJobResponse is returned by DELETE /api/jobs/{id}
type CancelJobResponse struct {
	Cancelled bool `json:"cancelled"`
}

// HealthResponse is returned by GET /api/health
type HealthResponse struct {
	Status  string       `json:"status"`
	State   string       `json:"state"`
	Version string       `json:"version"`
	Commit  string       `json:"commit"`
	Clients int          `json:"clients"`
	Jobs    *async.Stats `json:"jobs,omitempty"`
}

// HandleCreateJob accepts search parameters and starts a job.
// Parameters are not validated here; the worker reports bad input as a failed job.
func (s *Server) HandleCreateJob(w http.ResponseWriter, r *http.Request) {
	var params protocol.Params
	if err := readJSON(w, r, &params); err != nil {
		return
	}

	id, err := s.jobs.CreateJob(r.Context(), params)
	if errors.Is(err, async.ErrShuttingDown) {
		writeError(w, http.StatusServiceUnavailable, "server is shutting down")
		return
	}
	if err != nil {
		s.logger.Errorw("Failed to create job", logger.FieldError, err)
		writeError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	s.logger.Infow("Job created", logger.FieldJobID, shortID(id), logger.FieldTerm, params.Term)
	_ = writeJSON(w, http.StatusAccepted, CreateJobResponse{JobID: id})
}

// HandleListJobs lists recent jobs, newest first
func (s *Server) HandleListJobs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	jobs, err := s.jobs.ListJobs(r.Context(), limit)
	if err != nil {
		s.logger.Errorw("Failed to list jobs", logger.FieldError, err)
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	_ = writeJSON(w, http.StatusOK, ListJobsResponse{Jobs: jobs, Count: len(jobs)})
}

// HandleGetJob returns one job snapshot
func (s *Server) HandleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	job, err := s.jobs.GetJob(r.Context(), id)
	if err != nil {
		if errors.IsNotFoundError(err) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.logger.Errorw("Failed to get job", logger.FieldJobID, id, logger.FieldError, err)
		writeError(w, http.StatusInternalServerError, "failed to get job")
		return
	}
	_ = writeJSON(w, http.StatusOK, job)
}

// HandleCancelJob cancels a pending or running job. Cancelling a finished
// job answers {"cancelled":false}.
func (s *Server) HandleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	cancelled, err := s.jobs.CancelJob(r.Context(), id)
	if err != nil {
		if errors.IsNotFoundError(err) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.logger.Errorw("Failed to cancel job", logger.FieldJobID, id, logger.FieldError, err)
		writeError(w, http.StatusInternalServerError, "failed to cancel job")
		return
	}

	if cancelled {
		s.logger.Infow("Job cancelled", logger.FieldJobID, shortID(id))
	}
	_ = writeJSON(w, http.StatusOK, CancelJobResponse{Cancelled: cancelled})
}

// HandleHealth reports server state and job counts
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	info := version.Get()
	resp := HealthResponse{
		Status:  "ok",
		State:   s.getState().String(),
		Version: info.Version,
		Commit:  info.Short(),
		Clients: s.clientCount(),
	}

	stats, err := s.jobs.Stats(r.Context())
	if err != nil {
		s.logger.Warnw("Job stats unavailable", logger.FieldError, err)
		resp.Status = "degraded"
	} else {
		resp.Jobs = stats
	}

	status := http.StatusOK
	if s.getState() != ServerStateRunning {
		status = http.StatusServiceUnavailable
	}
	_ = writeJSON(w, status, resp)
}
