package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teranos/quotesearch/am"
	"github.com/teranos/quotesearch/protocol"
	"github.com/teranos/quotesearch/pulse/async"
	"github.com/teranos/quotesearch/search"
)

// stubRunner finishes jobs immediately unless block is set, in which case
// it waits for cancellation
type stubRunner struct {
	block atomic.Bool
}

func (r *stubRunner) Run(ctx context.Context, job *async.Job, report async.Reporter) error {
	report.Started(4242)
	report.Progress(protocol.Progress{Stage: protocol.StageSearch, Detail: "1 sites discovered"})
	if r.block.Load() {
		<-ctx.Done()
		return ctx.Err()
	}
	report.Terminal(protocol.Terminal{
		Status:     protocol.StatusSuccess,
		Candidates: []search.Candidate{{Name: job.Params.Term + " 1", Price: "10"}},
		ElapsedMS:  3,
	})
	return nil
}

func newTestServer(t *testing.T, runner *stubRunner) (*Server, *async.Manager) {
	t.Helper()
	m := async.NewManager(async.NewMemoryStore(), runner, async.ManagerConfig{MaxWorkers: 2})
	s := New(m, am.ServerConfig{AllowedOrigins: []string{"http://localhost"}}, zap.NewNop().Sugar())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
		_ = m.Shutdown(ctx)
	})
	return s, m
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestCreateJobThenPoll(t *testing.T) {
	s, _ := newTestServer(t, &stubRunner{})
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/jobs", `{"termo":"cadeira","quantidade":2}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var created CreateJobResponse
	decode(t, rec, &created)
	require.NotEmpty(t, created.JobID)

	var job async.Job
	require.Eventually(t, func() bool {
		rec := do(t, h, http.MethodGet, "/api/jobs/"+created.JobID, "")
		if rec.Code != http.StatusOK {
			return false
		}
		job = async.Job{}
		decode(t, rec, &job)
		return job.Status == async.JobStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, "cadeira", job.Params.Term)
	assert.Equal(t, 2, job.Params.Quantity)
	require.NotNil(t, job.Result)
	require.Len(t, job.Result.Candidates, 1)
	assert.Equal(t, "cadeira 1", job.Result.Candidates[0].Name)
}

func TestCreateJobRejectsMalformedBody(t *testing.T) {
	s, _ := newTestServer(t, &stubRunner{})

	rec := do(t, s.Handler(), http.MethodPost, "/api/jobs", `{"term":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid request body")
}

func TestGetUnknownJob(t *testing.T) {
	s, _ := newTestServer(t, &stubRunner{})

	rec := do(t, s.Handler(), http.MethodGet, "/api/jobs/does-not-exist", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"job not found"}`, rec.Body.String())
}

func TestListJobs(t *testing.T) {
	s, m := newTestServer(t, &stubRunner{})
	ctx := context.Background()
	for _, term := range []string{"a", "b", "c"} {
		_, err := m.CreateJob(ctx, protocol.Params{Term: term})
		require.NoError(t, err)
	}

	rec := do(t, s.Handler(), http.MethodGet, "/api/jobs?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list ListJobsResponse
	decode(t, rec, &list)
	assert.Equal(t, 2, list.Count)
	assert.Len(t, list.Jobs, 2)

	rec = do(t, s.Handler(), http.MethodGet, "/api/jobs?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelJob(t *testing.T) {
	runner := &stubRunner{}
	runner.block.Store(true)
	s, m := newTestServer(t, runner)
	h := s.Handler()

	id, err := m.CreateJob(context.Background(), protocol.Params{Term: "mesa"})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		job, err := m.GetJob(context.Background(), id)
		return err == nil && job.Status == async.JobStatusRunning
	}, 5*time.Second, 5*time.Millisecond)

	rec := do(t, h, http.MethodDelete, "/api/jobs/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"cancelled":true}`, rec.Body.String())

	rec = do(t, h, http.MethodDelete, "/api/jobs/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"cancelled":false}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/jobs/"+id, "")
	var job async.Job
	decode(t, rec, &job)
	assert.Equal(t, async.JobStatusFailed, job.Status)
	assert.Equal(t, "job cancelled by user", job.Error)

	rec = do(t, h, http.MethodDelete, "/api/jobs/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, &stubRunner{})

	rec := do(t, s.Handler(), http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var health HealthResponse
	decode(t, rec, &health)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "running", health.State)
	require.NotNil(t, health.Jobs)
	assert.Equal(t, 2, health.Jobs.WorkersMax)
}

func TestHealthWhileDraining(t *testing.T) {
	s, _ := newTestServer(t, &stubRunner{})
	s.setState(ServerStateDraining)

	rec := do(t, s.Handler(), http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"draining"`)
}

func TestCreateJobAfterManagerShutdown(t *testing.T) {
	s, m := newTestServer(t, &stubRunner{})
	require.NoError(t, m.Shutdown(context.Background()))

	rec := do(t, s.Handler(), http.MethodPost, "/api/jobs", `{"term":"laptop"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "shutting down")
}

func TestCheckOrigin(t *testing.T) {
	s, _ := newTestServer(t, &stubRunner{})

	req := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	assert.True(t, s.checkOrigin(req("")))
	assert.True(t, s.checkOrigin(req("http://localhost:5173")))
	assert.False(t, s.checkOrigin(req("https://evil.example")))

	s.SetAllowedOrigins([]string{"https://cotacoes.ao"})
	assert.True(t, s.checkOrigin(req("https://cotacoes.ao")))
	assert.False(t, s.checkOrigin(req("http://localhost:5173")))
}

func TestWebSocketJobUpdates(t *testing.T) {
	s, m := newTestServer(t, &stubRunner{})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return s.clientCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	id, err := m.CreateJob(context.Background(), protocol.Params{Term: "mesa"})
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg JobUpdateMessage
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, "job_update", msg.Type)
		require.NotNil(t, msg.Job)
		assert.Equal(t, id, msg.Job.ID)
		if msg.Job.Status == async.JobStatusCompleted {
			break
		}
	}
}

func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	s, _ := newTestServer(t, &stubRunner{})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestShutdownClosesClients(t *testing.T) {
	s, _ := newTestServer(t, &stubRunner{})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return s.clientCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, s.Shutdown(context.Background()))
	assert.Equal(t, 0, s.clientCount())
	assert.Equal(t, ServerStateStopped, s.getState())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}
