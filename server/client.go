package server

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/teranos/quotesearch/errors"
	"github.com/teranos/quotesearch/internal/httpclient"
	"github.com/teranos/quotesearch/protocol"
	"github.com/teranos/quotesearch/pulse/async"
)

const (
	// DefaultPollInterval is how often Wait re-reads a job
	DefaultPollInterval = 2 * time.Second
	// DefaultWaitTimeout bounds Wait when the caller's context has no deadline
	DefaultWaitTimeout = 30 * time.Minute
)

var errJobNotDone = errors.New("job not finished")

// JobClient talks to a running server. The CLI uses it for submit, jobs and purge.
type JobClient struct {
	baseURL      string
	doer         httpclient.Doer
	PollInterval time.Duration
	WaitTimeout  time.Duration
}

// NewJobClient creates a client for baseURL (e.g. http://localhost:8787).
// A nil doer uses a plain http.Client with a 30s timeout.
func NewJobClient(baseURL string, doer httpclient.Doer) *JobClient {
	if doer == nil {
		doer = &http.Client{Timeout: 30 * time.Second}
	}
	return &JobClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		doer:         doer,
		PollInterval: DefaultPollInterval,
		WaitTimeout:  DefaultWaitTimeout,
	}
}

// Submit creates a job and returns its id
func (c *JobClient) Submit(ctx context.Context, params protocol.Params) (string, error) {
	var resp CreateJobResponse
	if err := c.do(ctx, http.MethodPost, "/api/jobs", params, &resp); err != nil {
		return "", errors.Wrap(err, "failed to submit job")
	}
	return resp.JobID, nil
}

// Get fetches one job. A missing job yields an error matching errors.ErrNotFound.
func (c *JobClient) Get(ctx context.Context, id string) (*async.Job, error) {
	var job async.Job
	if err := c.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(id), nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// List fetches recent jobs, newest first
func (c *JobClient) List(ctx context.Context, limit int) ([]*async.Job, error) {
	path := "/api/jobs"
	if limit > 0 {
		path = fmt.Sprintf("%s?limit=%d", path, limit)
	}
	var resp ListJobsResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, errors.Wrap(err, "failed to list jobs")
	}
	return resp.Jobs, nil
}

// Cancel asks the server to cancel a job
func (c *JobClient) Cancel(ctx context.Context, id string) (bool, error) {
	var resp CancelJobResponse
	if err := c.do(ctx, http.MethodDelete, "/api/jobs/"+url.PathEscape(id), nil, &resp); err != nil {
		return false, err
	}
	return resp.Cancelled, nil
}

// Health reads /api/health
func (c *JobClient) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.do(ctx, http.MethodGet, "/api/health", nil, &resp); err != nil {
		return nil, errors.WithHint(errors.Wrap(err, "server not reachable"), "start it with 'quotesearch serve'")
	}
	return &resp, nil
}

// Wait polls a job until it is completed or failed. onUpdate, when set,
// sees every snapshot read. Transient read errors are retried.
func (c *JobClient) Wait(ctx context.Context, id string, onUpdate func(*async.Job)) (*async.Job, error) {
	if _, ok := ctx.Deadline(); !ok && c.WaitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.WaitTimeout)
		defer cancel()
	}

	var last *async.Job
	poll := func() error {
		job, err := c.Get(ctx, id)
		if err != nil {
			if errors.IsNotFoundError(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		last = job
		if onUpdate != nil {
			onUpdate(job)
		}
		if !job.Status.Terminal() {
			return errJobNotDone
		}
		return nil
	}

	policy := backoff.WithContext(backoff.NewConstantBackOff(c.PollInterval), ctx)
	if err := backoff.Retry(poll, policy); err != nil {
		if errors.Is(err, errJobNotDone) || errors.Is(err, context.DeadlineExceeded) {
			return last, errors.Wrapf(err, "job %s still running", id)
		}
		return last, err
	}
	return last, nil
}

func (c *JobClient) do(ctx context.Context, method, path string, in, out interface{}) error {
	err := httpclient.DoJSON(ctx, c.doer, method, c.baseURL+path, nil, in, out)
	var status *httpclient.StatusError
	if errors.As(err, &status) && status.StatusCode == http.StatusNotFound {
		return errors.NewNotFoundError("%s %s", method, path)
	}
	return err
}
