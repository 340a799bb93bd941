package async

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/teranos/quotesearch/am"
	"github.com/teranos/quotesearch/errors"
	"github.com/teranos/quotesearch/protocol"
	"github.com/teranos/quotesearch/search"
)

const helperEnv = "QUOTESEARCH_HELPER_WORKER"

// TestHelperWorker is not a test. The supervisor tests re-execute the test
// binary with helperEnv set so this function plays the worker process.
func TestHelperWorker(t *testing.T) {
	if os.Getenv(helperEnv) == "" {
		return
	}
	mode := os.Getenv(helperEnv)

	handoff, err := protocol.ReadHandoff(os.Stdin)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad handoff:", err)
		os.Exit(2)
	}

	enc := protocol.NewEncoder(os.Stdout)
	fmt.Fprintln(os.Stdout, "starting up, not a protocol line")
	fmt.Fprintln(os.Stderr, `{"level":"info","msg":"worker started"}`)
	two := 2
	_ = enc.Progress(protocol.Progress{Stage: protocol.StageSearch, Count: &two, Detail: "2 sites discovered"})

	switch mode {
	case "ok":
		_ = enc.Terminal(protocol.Terminal{
			Status:     protocol.StatusSuccess,
			Candidates: []search.Candidate{{Name: handoff.Params.Term + " X"}},
			ElapsedMS:  5,
		})
		// a second terminal must be ignored
		fmt.Fprintln(os.Stdout, protocol.Prefix+`{"status":"error","error":"late"}`)
		os.Exit(0)
	case "malformed":
		fmt.Fprintln(os.Stdout, protocol.Prefix+`{"status":"success","candidates":"not a list"}`)
		os.Exit(0)
	case "silent":
		os.Exit(3)
	case "hang":
		time.Sleep(time.Hour)
	}
	os.Exit(0)
}

type recordingReporter struct {
	mu        sync.Mutex
	pids      []int
	progress  []protocol.Progress
	terminals []protocol.Terminal
	pidSeen   chan int
}

func newRecordingReporter() *recordingReporter {
	return &recordingReporter{pidSeen: make(chan int, 1)}
}

func (r *recordingReporter) Started(pid int) {
	r.mu.Lock()
	r.pids = append(r.pids, pid)
	r.mu.Unlock()
	r.pidSeen <- pid
}

func (r *recordingReporter) Progress(p protocol.Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, p)
}

func (r *recordingReporter) Terminal(t protocol.Terminal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.terminals = append(r.terminals, t)
}

func helperSupervisor(t *testing.T, mode string) *Supervisor {
	t.Helper()
	s, err := NewSupervisor(SupervisorConfig{
		Command:     []string{os.Args[0], "-test.run=^TestHelperWorker$"},
		Env:         []string{helperEnv + "=" + mode},
		CancelGrace: 200 * time.Millisecond,
	}, zap.NewNop().Sugar())
	require.NoError(t, err)
	return s
}

func TestSupervisor_Success(t *testing.T) {
	s := helperSupervisor(t, "ok")
	rep := newRecordingReporter()

	err := s.Run(context.Background(), NewJob(protocol.Params{Term: "mesa"}), rep)
	require.NoError(t, err)

	require.Len(t, rep.pids, 1)
	require.Len(t, rep.progress, 1, "non-protocol lines never become progress")
	assert.Equal(t, "2 sites discovered", rep.progress[0].Detail)
	require.Len(t, rep.terminals, 1, "only the first terminal is accepted")
	assert.True(t, rep.terminals[0].Success())
	assert.Equal(t, "mesa X", rep.terminals[0].Candidates[0].Name)
}

func TestSupervisor_MalformedTerminal(t *testing.T) {
	s := helperSupervisor(t, "malformed")
	rep := newRecordingReporter()

	require.NoError(t, s.Run(context.Background(), NewJob(protocol.Params{Term: "x"}), rep))
	require.Len(t, rep.terminals, 1)
	assert.Equal(t, protocol.StatusError, rep.terminals[0].Status)
	assert.Contains(t, rep.terminals[0].Error, "malformed terminal payload")
}

func TestSupervisor_ExitWithoutTerminal(t *testing.T) {
	s := helperSupervisor(t, "silent")
	err := s.Run(context.Background(), NewJob(protocol.Params{Term: "x"}), newRecordingReporter())

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrWorkerExited))
	assert.Equal(t, "worker exited abnormally: exit status 3", err.Error())
}

func TestSupervisor_SpawnFailure(t *testing.T) {
	s, err := NewSupervisor(SupervisorConfig{Command: []string{"/nonexistent/quotesearch-worker"}}, zap.NewNop().Sugar())
	require.NoError(t, err)

	err = s.Run(context.Background(), NewJob(protocol.Params{Term: "x"}), newRecordingReporter())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start worker")
}

func TestSupervisor_CancelInterrupts(t *testing.T) {
	s := helperSupervisor(t, "hang")
	rep := newRecordingReporter()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, NewJob(protocol.Params{Term: "x"}), rep) }()

	<-rep.pidSeen
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrWorkerExited))
		assert.Contains(t, err.Error(), "signal: interrupt")
	case <-time.After(10 * time.Second):
		t.Fatal("worker survived cancellation")
	}
}

// A running worker is killed from outside; the job fails with
// the signal in its error and nothing else changes.
func TestSupervisor_WorkerKilledExternally(t *testing.T) {
	s := helperSupervisor(t, "hang")
	m := NewManager(NewMemoryStore(), s, ManagerConfig{MaxWorkers: 1})
	defer m.Shutdown(context.Background())

	ctx := context.Background()
	id, err := m.CreateJob(ctx, protocol.Params{Term: "x"})
	require.NoError(t, err)

	var pid int
	require.Eventually(t, func() bool {
		job, err := m.GetJob(ctx, id)
		if err != nil || job.PID == 0 {
			return false
		}
		pid = job.PID
		return job.Progress != nil
	}, 10*time.Second, 10*time.Millisecond)

	proc, err := os.FindProcess(pid)
	require.NoError(t, err)
	require.NoError(t, proc.Kill())

	job := waitForStatus(t, m, id, JobStatusFailed)
	assert.Equal(t, "worker exited abnormally: signal: killed", job.Error)
	assert.Equal(t, "2 sites discovered", job.Progress.Detail)
	assert.Nil(t, job.Result)
}

func TestSupervisor_ThroughManager(t *testing.T) {
	m := NewManager(NewMemoryStore(), helperSupervisor(t, "ok"), ManagerConfig{MaxWorkers: 2})
	defer m.Shutdown(context.Background())

	id, err := m.CreateJob(context.Background(), protocol.Params{Term: "cadeira"})
	require.NoError(t, err)

	job := waitForStatus(t, m, id, JobStatusCompleted)
	assert.Equal(t, "cadeira X", job.Result.Candidates[0].Name)
}

func TestWorkerCommand(t *testing.T) {
	args, err := WorkerCommand(`/usr/bin/env QS_MODE=test "/opt/quote search/bin" worker`)
	require.NoError(t, err)
	assert.Equal(t, []string{"/usr/bin/env", "QS_MODE=test", "/opt/quote search/bin", "worker"}, args)

	args, err = WorkerCommand("")
	require.NoError(t, err)
	require.Len(t, args, 2)
	assert.Equal(t, "worker", args[1])

	_, err = WorkerCommand(`broken "quote`)
	assert.Error(t, err)
}

func TestNewSupervisorFromConfig(t *testing.T) {
	s, err := NewSupervisorFromConfig(am.JobsConfig{WorkerCommand: "quotesearch worker"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"quotesearch", "worker"}, s.command)
	assert.Equal(t, DefaultCancelGrace, s.grace)

	_, err = NewSupervisor(SupervisorConfig{}, nil)
	assert.Error(t, err)
}

func TestLineLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := &lineLogger{logger: zap.New(core).Sugar()}

	n, err := l.Write([]byte("first\nsec"))
	require.NoError(t, err)
	assert.Equal(t, 9, n)
	assert.Equal(t, 1, logs.Len(), "partial line is held back")

	_, _ = l.Write([]byte("ond\n\n  \n"))
	entries := logs.All()
	require.Len(t, entries, 2, "blank lines are dropped")
	assert.Equal(t, "first", entries[0].ContextMap()["line"])
	assert.Equal(t, "second", entries[1].ContextMap()["line"])
}
