package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/quotesearch/errors"
	"github.com/teranos/quotesearch/protocol"
	"github.com/teranos/quotesearch/pulse/async"
)

func newTestClient(t *testing.T, runner *stubRunner) (*JobClient, *async.Manager) {
	t.Helper()
	s, m := newTestServer(t, runner)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	c := NewJobClient(ts.URL+"/", ts.Client())
	c.PollInterval = 10 * time.Millisecond
	return c, m
}

func TestJobClient_SubmitAndWait(t *testing.T) {
	c, _ := newTestClient(t, &stubRunner{})
	ctx := context.Background()

	id, err := c.Submit(ctx, protocol.Params{Term: "papel A4"})
	require.NoError(t, err)

	var updates int
	job, err := c.Wait(ctx, id, func(*async.Job) { updates++ })
	require.NoError(t, err)
	assert.Equal(t, async.JobStatusCompleted, job.Status)
	assert.Equal(t, "papel A4 1", job.Result.Candidates[0].Name)
	assert.GreaterOrEqual(t, updates, 1)

	jobs, err := c.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, id, jobs[0].ID)
}

func TestJobClient_GetUnknown(t *testing.T) {
	c, _ := newTestClient(t, &stubRunner{})

	_, err := c.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))

	_, err = c.Wait(context.Background(), "missing", nil)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestJobClient_Cancel(t *testing.T) {
	runner := &stubRunner{}
	runner.block.Store(true)
	c, _ := newTestClient(t, runner)
	ctx := context.Background()

	id, err := c.Submit(ctx, protocol.Params{Term: "mesa"})
	require.NoError(t, err)

	cancelled, err := c.Cancel(ctx, id)
	require.NoError(t, err)
	assert.True(t, cancelled)

	job, err := c.Wait(ctx, id, nil)
	require.NoError(t, err)
	assert.Equal(t, async.JobStatusFailed, job.Status)
	assert.Equal(t, "job cancelled by user", job.Error)
}

func TestJobClient_WaitTimesOut(t *testing.T) {
	runner := &stubRunner{}
	runner.block.Store(true)
	c, _ := newTestClient(t, runner)
	c.WaitTimeout = 100 * time.Millisecond

	id, err := c.Submit(context.Background(), protocol.Params{Term: "mesa"})
	require.NoError(t, err)

	job, err := c.Wait(context.Background(), id, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "still running")
	require.NotNil(t, job)
	assert.False(t, job.Status.Terminal())
}

func TestJobClient_WaitRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			writeError(w, http.StatusBadGateway, "upstream hiccup")
			return
		}
		_ = writeJSON(w, http.StatusOK, async.Job{ID: "j1", Status: async.JobStatusCompleted})
	}))
	defer ts.Close()

	c := NewJobClient(ts.URL, nil)
	c.PollInterval = 5 * time.Millisecond

	job, err := c.Wait(context.Background(), "j1", nil)
	require.NoError(t, err)
	assert.Equal(t, async.JobStatusCompleted, job.Status)
	assert.Equal(t, int32(3), calls.Load())
}

func TestJobClient_Health(t *testing.T) {
	c, _ := newTestClient(t, &stubRunner{})

	health, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", health.Status)

	down := NewJobClient("http://127.0.0.1:1", nil)
	_, err = down.Health(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server not reachable")
}
