package async

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/teranos/quotesearch/db"
	"github.com/teranos/quotesearch/errors"
	"github.com/teranos/quotesearch/logger"
	"github.com/teranos/quotesearch/protocol"
)

const (
	// DefaultListLimit is used when ListJobs gets a non-positive limit
	DefaultListLimit = 50
	// MaxListLimit caps ListJobs
	MaxListLimit = 200
	// DefaultMaxWorkers is the concurrency cap when none is configured
	DefaultMaxWorkers = 4
	// SubscriberChannelBufferSize is the buffer size for subscriber channels
	SubscriberChannelBufferSize = 100
	// MaxOrphanedJobsToRecover bounds startup recovery of jobs left active by a crash
	MaxOrphanedJobsToRecover = 1000
)

// ErrShuttingDown is returned by CreateJob once Shutdown has begun
var ErrShuttingDown = errors.New("job manager shutting down")

// Reporter receives what a worker says about its job
type Reporter interface {
	Started(pid int)
	Progress(p protocol.Progress)
	Terminal(t protocol.Terminal)
}

// Runner executes one job. It returns an error when the job did not end
// with a terminal message (spawn failure, crash, kill).
type Runner interface {
	Run(ctx context.Context, job *Job, report Reporter) error
}

// ManagerConfig tunes a Manager
type ManagerConfig struct {
	MaxWorkers    int
	Retention     time.Duration
	PurgeInterval time.Duration
}

// entry is a live (non-terminal) job plus the handle that stops its worker
type entry struct {
	job    *Job
	cancel context.CancelFunc
}

// Manager owns the job registry. Every mutation of a job goes through it.
type Manager struct {
	store  Store
	runner Runner
	logger logger.PulseLogger

	mu          sync.Mutex
	live        map[string]*entry
	subscribers []chan *Job
	sem         *semaphore.Weighted
	maxWorkers  int
	running     int
	retention   time.Duration
	purgeEvery  time.Duration
	purgeReset  chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a manager. Jobs start executing as soon as they are
// created; Start only adds the purge ticker and crash recovery.
func NewManager(store Store, runner Runner, cfg ManagerConfig) *Manager {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = DefaultMaxWorkers
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		store:      store,
		runner:     runner,
		logger:     logger.NewPulseLogger("pulse.async"),
		live:       make(map[string]*entry),
		sem:        semaphore.NewWeighted(int64(cfg.MaxWorkers)),
		maxWorkers: cfg.MaxWorkers,
		retention:  cfg.Retention,
		purgeEvery: cfg.PurgeInterval,
		purgeReset: make(chan struct{}, 1),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// CreateJob allocates a pending job and schedules it. It returns before the
// worker starts.
func (m *Manager) CreateJob(ctx context.Context, params protocol.Params) (string, error) {
	job := NewJob(params)

	m.mu.Lock()
	// Shutdown cancels under mu, so no Add can follow its Wait
	if m.ctx.Err() != nil {
		m.mu.Unlock()
		return "", ErrShuttingDown
	}
	if err := m.store.Save(ctx, job.Clone()); err != nil {
		m.mu.Unlock()
		return "", errors.Wrap(err, "failed to create job")
	}
	m.live[job.ID] = &entry{job: job}
	m.notifySubscribers(job)
	m.wg.Add(1)
	m.mu.Unlock()

	m.logger.Pulse("Job created", logger.FieldJobID, job.ID, logger.FieldTerm, params.Term)
	go m.execute(job.ID)
	return job.ID, nil
}

// GetJob returns a copy of the job
func (m *Manager) GetJob(ctx context.Context, id string) (*Job, error) {
	m.mu.Lock()
	if e, ok := m.live[id]; ok {
		job := e.job.Clone()
		m.mu.Unlock()
		return job, nil
	}
	m.mu.Unlock()
	return m.store.Get(ctx, id)
}

// ListJobs returns jobs newest first
func (m *Manager) ListJobs(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	jobs, err := m.store.List(ctx, limit)
	if err != nil {
		return nil, err
	}

	// live state wins over a snapshot that may be one save behind
	m.mu.Lock()
	for i, job := range jobs {
		if e, ok := m.live[job.ID]; ok {
			jobs[i] = e.job.Clone()
		}
	}
	m.mu.Unlock()
	return jobs, nil
}

// CancelJob fails a pending or running job and stops its worker. It returns
// false when the job is already terminal.
func (m *Manager) CancelJob(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	e, ok := m.live[id]
	if !ok {
		m.mu.Unlock()
		if _, err := m.store.Get(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}

	e.job.Cancel()
	snapshot := e.job.Clone()
	delete(m.live, id)
	m.save(snapshot)
	m.notifySubscribers(snapshot)
	cancel := e.cancel
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.logger.Pulse("Job cancelled", logger.FieldJobID, id)
	return true, nil
}

// PurgeOld removes terminal jobs created before now minus retention
func (m *Manager) PurgeOld(ctx context.Context, retention time.Duration) (int, error) {
	cutoff := time.Now().Add(-retention)
	n, err := m.store.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "failed to purge jobs")
	}
	if n > 0 {
		m.logger.Pulse("Purged old jobs", logger.FieldCount, n, "cutoff", cutoff.Format(time.RFC3339))
	}
	return n, nil
}

// Start recovers jobs a previous process left active and runs the purge
// ticker until ctx is done.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	workers := m.maxWorkers
	m.mu.Unlock()
	m.logger.Starting("Starting job manager", "max_workers", workers)
	if warning := memoryPressureWarning(workers); warning != "" {
		m.logger.Warnw(warning)
	}

	m.recoverOrphans(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx.Err() != nil {
		return
	}
	m.wg.Add(1)
	go m.purgeLoop(ctx)
}

// Shutdown stops every worker and waits for their goroutines
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Closing("Stopping job manager")
	m.mu.Lock()
	m.cancel()
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "job manager shutdown timed out")
	}
}

// SetMaxWorkers changes the concurrency cap for jobs admitted from now on.
// Jobs already holding a slot keep it until they finish.
func (m *Manager) SetMaxWorkers(n int) {
	if n <= 0 {
		n = DefaultMaxWorkers
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if n == m.maxWorkers {
		return
	}
	m.logger.Pulse("Worker cap changed", "from", m.maxWorkers, "to", n)
	m.maxWorkers = n
	m.sem = semaphore.NewWeighted(int64(n))
}

// SetPurgePolicy changes retention and purge interval of the running ticker
func (m *Manager) SetPurgePolicy(retention, interval time.Duration) {
	m.mu.Lock()
	m.retention = retention
	m.purgeEvery = interval
	m.mu.Unlock()

	select {
	case m.purgeReset <- struct{}{}:
	default:
	}
}

// Subscribe returns a channel that receives job snapshots on every change.
// The caller must Unsubscribe when done.
func (m *Manager) Subscribe() chan *Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan *Job, SubscriberChannelBufferSize)
	m.subscribers = append(m.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscriber channel. The channel is not closed.
func (m *Manager) Unsubscribe(ch chan *Job) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, sub := range m.subscribers {
		if sub == ch {
			m.subscribers = append(m.subscribers[:i], m.subscribers[i+1:]...)
			return
		}
	}
}

// Stats summarises the registry
type Stats struct {
	Pending       int           `json:"pending"`
	Running       int           `json:"running"`
	Completed     int           `json:"completed"`
	Failed        int           `json:"failed"`
	Total         int           `json:"total"`
	WorkersActive int           `json:"workers_active"`
	WorkersMax    int           `json:"workers_max"`
	System        SystemMetrics `json:"system"`
}

// Stats returns counts per status plus worker and host usage
func (m *Manager) Stats(ctx context.Context) (*Stats, error) {
	counts, err := m.store.Counts(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get job stats")
	}

	m.mu.Lock()
	stats := &Stats{
		Pending:       counts[JobStatusPending],
		Running:       counts[JobStatusRunning],
		Completed:     counts[JobStatusCompleted],
		Failed:        counts[JobStatusFailed],
		WorkersActive: m.running,
		WorkersMax:    m.maxWorkers,
	}
	m.mu.Unlock()

	stats.Total = stats.Pending + stats.Running + stats.Completed + stats.Failed
	stats.System = HostMetrics()
	return stats, nil
}

// execute waits for a worker slot, moves the job to running and hands it
// to the runner
func (m *Manager) execute(id string) {
	defer m.wg.Done()

	ctx, cancel := context.WithCancel(m.ctx)
	defer cancel()

	m.mu.Lock()
	e, ok := m.live[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	e.cancel = cancel
	sem := m.sem
	m.mu.Unlock()

	if err := sem.Acquire(ctx, 1); err != nil {
		// cancelled while pending, or the manager is shutting down
		m.fail(id, "job manager shutting down")
		return
	}
	defer sem.Release(1)
	if ctx.Err() != nil {
		m.fail(id, "job manager shutting down")
		return
	}

	// the cancellation check and the transition share one critical section
	m.mu.Lock()
	e, ok = m.live[id]
	if !ok || !e.job.Start() {
		m.mu.Unlock()
		return
	}
	snapshot := e.job.Clone()
	m.running++
	m.save(snapshot)
	m.notifySubscribers(snapshot)
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.running--
		m.mu.Unlock()
	}()

	m.logger.Starting("Job started", logger.FieldJobID, id)

	err := m.runner.Run(ctx, snapshot, &jobReporter{m: m, id: id})
	if err != nil {
		m.fail(id, err.Error())
		return
	}
	// a clean exit without a terminal message is still abnormal
	m.fail(id, errors.ErrWorkerExited.Error()+": no terminal message")
}

// update applies fn to a live job and persists the change. Terminal
// transitions remove the job from the live set.
func (m *Manager) update(id string, fn func(*Job) bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.live[id]
	if !ok || !fn(e.job) {
		return false
	}
	snapshot := e.job.Clone()
	if snapshot.Status.Terminal() {
		delete(m.live, id)
	}
	m.save(snapshot)
	m.notifySubscribers(snapshot)
	return true
}

func (m *Manager) fail(id, msg string) {
	if m.update(id, func(j *Job) bool { return j.Fail(msg) }) {
		m.logger.Warnw("Job failed", logger.FieldJobID, id, logger.FieldError, msg)
	}
}

// save persists a snapshot. REQUIRES: m.mu held. Store errors are logged;
// the live registry stays authoritative.
func (m *Manager) save(job *Job) {
	err := m.store.Save(context.Background(), job)
	switch {
	case err == nil:
	case db.IsDatabaseClosed(err):
		// workers can finish after serve closed the database
		m.logger.Debugw("Job not persisted, database closed", logger.FieldJobID, job.ID)
	default:
		m.logger.Errorw("Failed to persist job", logger.FieldJobID, job.ID, logger.FieldError, err)
	}
}

// notifySubscribers sends a snapshot to every subscriber without blocking.
// REQUIRES: m.mu held.
func (m *Manager) notifySubscribers(job *Job) {
	for _, ch := range m.subscribers {
		select {
		case ch <- job.Clone():
		default:
		}
	}
}

func (m *Manager) purgeLoop(ctx context.Context) {
	defer m.wg.Done()

	for {
		m.mu.Lock()
		interval, retention := m.purgeEvery, m.retention
		m.mu.Unlock()

		var tick <-chan time.Time
		var ticker *time.Ticker
		if interval > 0 && retention > 0 {
			ticker = time.NewTicker(interval)
			tick = ticker.C
		}

		select {
		case <-ctx.Done():
			stopTicker(ticker)
			return
		case <-m.ctx.Done():
			stopTicker(ticker)
			return
		case <-m.purgeReset:
			stopTicker(ticker)
		case <-tick:
			stopTicker(ticker)
			if _, err := m.PurgeOld(ctx, retention); err != nil {
				m.logger.Warnw("Scheduled purge failed", logger.FieldError, err)
			}
		}
	}
}

func stopTicker(t *time.Ticker) {
	if t != nil {
		t.Stop()
	}
}

// recoverOrphans fails jobs a crashed server left pending or running
func (m *Manager) recoverOrphans(ctx context.Context) {
	active, err := m.store.Active(ctx)
	if err != nil {
		m.logger.Warnw("Failed to list orphaned jobs", logger.FieldError, err)
		return
	}
	if len(active) > MaxOrphanedJobsToRecover {
		active = active[:MaxOrphanedJobsToRecover]
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, job := range active {
		if _, ok := m.live[job.ID]; ok {
			continue
		}
		if job.Fail(fmt.Sprintf("%s: server restarted", errors.ErrWorkerExited)) {
			m.save(job)
			n++
		}
	}
	if n > 0 {
		m.logger.Starting("Recovered orphaned jobs", logger.FieldCount, n)
	}
}

// jobReporter routes one worker's messages to its job
type jobReporter struct {
	m  *Manager
	id string
}

func (r *jobReporter) Started(pid int) {
	r.m.update(r.id, func(j *Job) bool { return j.AttachPID(pid) })
}

func (r *jobReporter) Progress(p protocol.Progress) {
	r.m.update(r.id, func(j *Job) bool { return j.UpdateProgress(p) })
}

func (r *jobReporter) Terminal(t protocol.Terminal) {
	if r.m.update(r.id, func(j *Job) bool { return j.Apply(t) }) {
		r.m.logger.Pulse("Job finished",
			logger.FieldJobID, r.id,
			logger.FieldStatus, t.Status,
			logger.FieldCount, len(t.Candidates),
			logger.FieldDurationMS, t.ElapsedMS)
	}
}
