// Copyright 2025 Catadex Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/catadex/catadex/ai"
	"github.com/catadex/catadex/core"
	"github.com/catadex/catadex/indexer"
	"github.com/catadex/catadex/storage"
)

const (
	// createLockName scopes the lock-check-insert critical section of
	// job creation. Distinct from the execution lock.
	createLockName = "jobs:create"

	// execLockName scopes actual job execution, so one worker never runs
	// two jobs concurrently even across process instances.
	execLockName = "jobs:execute"

	defaultItemFlushSize = 100
	defaultProgressEvery = 25

	defaultCreateLockTTL = 10 * time.Second
	defaultExecLockTTL   = 1 * time.Minute

	createLockAttempts  = 20
	createLockRetryWait = 50 * time.Millisecond
	flushRetryWait      = 50 * time.Millisecond
)

// ProviderFactory builds an embedding provider for a job's target
// provider/model/dim. It is called once per job run; construction
// failures fail the job.
type ProviderFactory func(params core.JobParams) (ai.EmbeddingProvider, error)

// Manager owns the sync job lifecycle. A single cooperative background
// worker drains an in-process FIFO queue one job at a time; within a job
// rows are processed sequentially.
type Manager struct {
	jobs      storage.JobRepository
	locks     storage.LockRepository
	indexer   *indexer.Indexer
	providers ProviderFactory

	pool          *ants.Pool
	owner         string
	itemFlushSize int
	progressEvery int
	createLockTTL time.Duration
	execLockTTL   time.Duration
	logger        *slog.Logger

	mu       sync.Mutex
	queue    []core.JobID
	pending  map[core.JobID]struct{}
	draining bool
	idle     sync.WaitGroup
}

// Option configures a Manager.
type Option func(*Manager) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) error {
		if logger == nil {
			logger = slog.Default()
		}
		m.logger = logger
		return nil
	}
}

// WithItemFlushSize sets how many buffered audit items trigger a flush.
func WithItemFlushSize(n int) Option {
	return func(m *Manager) error {
		if n < 1 {
			n = 1
		}
		m.itemFlushSize = n
		return nil
	}
}

// WithProgressEvery sets how many processed rows pass between persisted
// progress updates.
func WithProgressEvery(n int) Option {
	return func(m *Manager) error {
		if n < 1 {
			n = 1
		}
		m.progressEvery = n
		return nil
	}
}

// WithLockTTLs overrides the creation and execution lock TTLs.
func WithLockTTLs(create, execute time.Duration) Option {
	return func(m *Manager) error {
		if create > 0 {
			m.createLockTTL = create
		}
		if execute > 0 {
			m.execLockTTL = execute
		}
		return nil
	}
}

// NewManager creates a job lifecycle manager. The drain worker is a
// single-slot pool, which is what serializes job execution within this
// process.
func NewManager(jobs storage.JobRepository, locks storage.LockRepository, ix *indexer.Indexer, providers ProviderFactory, opts ...Option) (*Manager, error) {
	if jobs == nil {
		return nil, ErrJobRepositoryRequired
	}
	if locks == nil {
		return nil, ErrLockRepositoryRequired
	}
	if ix == nil {
		return nil, ErrIndexerRequired
	}
	if providers == nil {
		return nil, ErrProviderFactoryRequired
	}

	pool, err := ants.NewPool(1)
	if err != nil {
		return nil, err
	}

	hostname, _ := os.Hostname()
	m := &Manager{
		jobs:          jobs,
		locks:         locks,
		indexer:       ix,
		providers:     providers,
		pool:          pool,
		owner:         fmt.Sprintf("%s-%d", hostname, os.Getpid()),
		itemFlushSize: defaultItemFlushSize,
		progressEvery: defaultProgressEvery,
		createLockTTL: defaultCreateLockTTL,
		execLockTTL:   defaultExecLockTTL,
		logger:        slog.Default().With("component", "jobs"),
		pending:       make(map[core.JobID]struct{}),
	}

	for _, opt := range opts {
		if optErr := opt(m); optErr != nil {
			pool.Release()
			return nil, optErr
		}
	}

	return m, nil
}

// CreateResult reports the outcome of a creation attempt. When Conflict
// is set, ActiveJobID identifies the job that blocked creation and no
// row was written.
type CreateResult struct {
	Conflict    bool
	ActiveJobID core.JobID
	Job         *core.SyncJob
}

// CreateJob inserts a new queued job unless one is already active. The
// lock-check-insert sequence is a single critical section under the
// creation lock, so concurrent requests from different processes cannot
// both succeed.
func (m *Manager) CreateJob(ctx context.Context, params core.JobParams, requestedBy, requestIP string) (*CreateResult, error) {
	params = core.NormalizeJobParams(params)
	if err := core.ValidateJobParams(&params); err != nil {
		return nil, err
	}

	acquired := false
	for attempt := 0; attempt < createLockAttempts; attempt++ {
		ok, err := m.locks.Acquire(ctx, createLockName, m.owner, m.createLockTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire creation lock: %w", err)
		}
		if ok {
			acquired = true
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(createLockRetryWait):
		}
	}
	if !acquired {
		return nil, ErrCreateLockBusy
	}
	defer func() {
		if err := m.locks.Release(context.WithoutCancel(ctx), createLockName, m.owner); err != nil {
			m.logger.Warn("failed to release creation lock", "error", err)
		}
	}()

	active, err := m.jobs.ActiveJob(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check for active job: %w", err)
	}
	if active != nil {
		return &CreateResult{Conflict: true, ActiveJobID: active.ID}, nil
	}

	job := &core.SyncJob{
		Mode:        params.Mode,
		Status:      core.JobStatusQueued,
		RequestedBy: requestedBy,
		RequestIP:   requestIP,
		Params:      params,
	}
	created, err := m.jobs.CreateJob(ctx, job)
	if err != nil {
		if err == storage.ErrDuplicateKey {
			// Lost a race with a writer outside the creation lock.
			if active, activeErr := m.jobs.ActiveJob(ctx); activeErr == nil && active != nil {
				return &CreateResult{Conflict: true, ActiveJobID: active.ID}, nil
			}
		}
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	m.logger.Info("job created", "jobID", created.ID, "mode", created.Mode, "requestedBy", requestedBy)
	return &CreateResult{Job: created}, nil
}

// Enqueue adds a job id to the in-process FIFO queue, ignoring ids that
// are already queued, and starts the drain loop if it is idle.
func (m *Manager) Enqueue(jobID core.JobID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.pending[jobID]; exists {
		return
	}
	m.pending[jobID] = struct{}{}
	m.queue = append(m.queue, jobID)

	if !m.draining {
		m.draining = true
		m.idle.Add(1)
		if err := m.pool.Submit(m.drain); err != nil {
			m.draining = false
			m.idle.Done()
			m.logger.Error("failed to start drain loop", "error", err)
		}
	}
}

// drain pops queued ids one at a time until the queue is empty.
func (m *Manager) drain() {
	defer m.idle.Done()
	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			m.draining = false
			m.mu.Unlock()
			return
		}
		jobID := m.queue[0]
		m.queue = m.queue[1:]
		delete(m.pending, jobID)
		m.mu.Unlock()

		if err := m.runJob(context.Background(), jobID); err != nil {
			m.logger.Error("job run failed", "jobID", jobID, "error", err)
		}
	}
}

// Wait blocks until the drain loop goes idle. Intended for tests and
// orderly shutdown.
func (m *Manager) Wait() {
	m.idle.Wait()
}

// Release stops the worker pool. The manager should not be used after
// calling Release.
func (m *Manager) Release() {
	m.pool.Release()
}

// ListJobs returns up to limit jobs, most recent first.
func (m *Manager) ListJobs(ctx context.Context, limit int) ([]*core.SyncJob, error) {
	return m.jobs.ListJobs(ctx, limit)
}

// JobDetail is a job row together with its audit items.
type JobDetail struct {
	Job   *core.SyncJob
	Items []*core.SyncJobItem
}

// GetJobDetail returns a job and up to itemsLimit of its audit items.
func (m *Manager) GetJobDetail(ctx context.Context, jobID core.JobID, itemsLimit int) (*JobDetail, error) {
	job, err := m.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	items, err := m.jobs.ListJobItems(ctx, jobID, itemsLimit)
	if err != nil {
		return nil, err
	}
	return &JobDetail{Job: job, Items: items}, nil
}

// CancelJob requests cooperative cancellation of an active job. The job
// keeps running until the executor reaches its next safe point; already
// applied writes are never rolled back.
func (m *Manager) CancelJob(ctx context.Context, jobID core.JobID) error {
	job, err := m.jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if !job.Status.Active() {
		return fmt.Errorf("%w: job %d is %s", ErrJobNotActive, jobID, job.Status)
	}
	job.CancelRequested = true
	if err := m.jobs.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("failed to record cancel request: %w", err)
	}
	m.logger.Info("job cancel requested", "jobID", jobID)
	return nil
}

// runJob executes one job under the execution lock. Invoked only by the
// drain loop. A busy lock means another worker owns execution; the id is
// considered handled for this cycle.
func (m *Manager) runJob(ctx context.Context, jobID core.JobID) error {
	ok, err := m.locks.Acquire(ctx, execLockName, m.owner, m.execLockTTL)
	if err != nil {
		return fmt.Errorf("failed to acquire execution lock: %w", err)
	}
	if !ok {
		m.logger.Info("execution lock busy, skipping job", "jobID", jobID)
		return nil
	}
	defer func() {
		if relErr := m.locks.Release(context.WithoutCancel(ctx), execLockName, m.owner); relErr != nil {
			m.logger.Warn("failed to release execution lock", "error", relErr)
		}
	}()

	job, err := m.jobs.GetJob(ctx, jobID)
	if err != nil {
		if err == storage.ErrNotFound {
			m.logger.Warn("enqueued job no longer exists", "jobID", jobID)
			return nil
		}
		return err
	}
	if !job.Status.Active() {
		// Already terminal; duplicate enqueues are harmless.
		return nil
	}

	now := time.Now().UTC()
	if job.StartedAt.IsZero() {
		job.StartedAt = now
	}

	if job.CancelRequested {
		job.Status = core.JobStatusCanceled
		job.FinishedAt = now
		return m.jobs.UpdateJob(ctx, job)
	}

	// A job found already running was interrupted mid-flight (process
	// crash or restart). Its persisted cursor and counters carry over, so
	// the scan picks up after the last fully-processed row instead of
	// rescanning from SKU 0.
	resumeFrom := core.SKUID(0)
	if job.Status == core.JobStatusRunning {
		resumeFrom = job.LastSKU
		m.logger.Info("resuming interrupted job", "jobID", job.ID, "afterSKU", resumeFrom)
	}

	job.Status = core.JobStatusRunning
	if err := m.jobs.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("failed to mark job running: %w", err)
	}

	provider, err := m.providers(job.Params)
	if err != nil {
		return m.failJob(ctx, job, fmt.Errorf("provider construction failed: %w", err))
	}

	run := newJobRun(m, job)
	summary, err := m.indexer.Run(ctx, provider, indexer.Options{
		Execute:      job.Mode == core.JobModeExecute,
		OnlyStale:    job.Params.OnlyStale,
		UpdatedSince: job.Params.UpdatedSince,
		Limit:        job.Params.Limit,
		BatchSize:    job.Params.BatchSize,
		RateLimit:    job.Params.RateLimit,
		Filter:       job.Params.Filter,
		AfterSKU:     resumeFrom,
		OnItem:       run.onItem,
		OnProgress:   run.onProgress,
		ShouldCancel: run.shouldCancel,
	})
	if err != nil {
		run.flush(ctx)
		return m.failJob(ctx, job, err)
	}

	run.flush(ctx)
	if run.flushErr != nil {
		// Counters must stay consistent with the recorded audit rows, so
		// a run whose items could not be persisted is failed, not marked
		// succeeded with missing rows.
		return m.failJob(ctx, job, run.flushErr)
	}
	run.applySummary(summary)
	if summary.Canceled {
		job.Status = core.JobStatusCanceled
	} else {
		job.Status = core.JobStatusSucceeded
	}
	job.FinishedAt = time.Now().UTC()
	if err := m.jobs.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("failed to finalize job %d: %w", job.ID, err)
	}

	m.logger.Info("job finished", "jobID", job.ID, "status", job.Status,
		"processed", job.Processed, "inserted", job.Inserted,
		"updated", job.Updated, "skipped", job.Skipped, "errors", job.Errors)
	return nil
}

// failJob marks a job failed with a redacted, length-bounded summary of
// the fatal error.
func (m *Manager) failJob(ctx context.Context, job *core.SyncJob, cause error) error {
	m.logger.Error("job failed", "jobID", job.ID, "error", cause)
	job.Status = core.JobStatusFailed
	job.ErrorSummary = Redact(cause.Error())
	job.FinishedAt = time.Now().UTC()
	if err := m.jobs.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("failed to mark job %d failed: %w", job.ID, err)
	}
	return cause
}

// jobRun carries the per-run callback state: the audit item buffer, the
// progress persistence throttle, and the counter baseline a resumed job
// starts from.
type jobRun struct {
	m             *Manager
	job           *core.SyncJob
	base          core.SyncJob
	buffer        []*core.SyncJobItem
	lastPersisted int64
	flushErr      error
}

func newJobRun(m *Manager, job *core.SyncJob) *jobRun {
	// Counters already on the row belong to the portion of the scan a
	// previous run completed before it was interrupted; this run's
	// summary is added on top of them.
	return &jobRun{m: m, job: job, base: *job}
}

// applySummary folds the executor's running counters onto the job row.
// The job schema folds unchanged rows into the skipped count.
func (r *jobRun) applySummary(s *indexer.Summary) {
	r.job.Processed = r.base.Processed + s.Processed
	r.job.Inserted = r.base.Inserted + s.Inserted
	r.job.Updated = r.base.Updated + s.Updated
	r.job.Skipped = r.base.Skipped + s.Skipped + s.Unchanged
	r.job.Errors = r.base.Errors + s.Errors
	if s.LastSKU > r.job.LastSKU {
		r.job.LastSKU = s.LastSKU
	}
}

// onItem buffers persistable outcomes. Skips are dropped; only inserts,
// updates and errors become audit rows.
func (r *jobRun) onItem(item *indexer.Item) {
	if item.Action == core.ItemActionSkip {
		return
	}

	row := &core.SyncJobItem{
		JobID:      r.job.ID,
		SKU:        item.SKU,
		Action:     item.Action,
		HashBefore: item.HashBefore,
		HashAfter:  item.HashAfter,
	}
	if item.Err != nil {
		row.ErrorMessage = Redact(item.Err.Error())
	}

	r.buffer = append(r.buffer, row)
	if len(r.buffer) >= r.m.itemFlushSize {
		r.flush(context.Background())
	}
}

// flush writes buffered audit items, retrying once on failure. A flush
// that still fails sets flushErr, which stops the run at its next safe
// point and fails the job: final counters must match the recorded rows.
func (r *jobRun) flush(ctx context.Context) {
	if len(r.buffer) == 0 {
		return
	}
	err := r.m.jobs.AddJobItems(ctx, r.buffer...)
	if err != nil {
		time.Sleep(flushRetryWait)
		err = r.m.jobs.AddJobItems(ctx, r.buffer...)
	}
	if err != nil {
		r.m.logger.Error("failed to flush job items", "jobID", r.job.ID, "count", len(r.buffer), "error", err)
		if r.flushErr == nil {
			r.flushErr = fmt.Errorf("failed to record job items: %w", err)
		}
		return
	}
	r.buffer = r.buffer[:0]
}

// onProgress persists running counters, throttled to once every
// progressEvery processed rows, and refreshes the execution lock so a
// long job cannot lose it mid-run.
func (r *jobRun) onProgress(s *indexer.Summary) {
	if s.Processed-r.lastPersisted < int64(r.m.progressEvery) {
		return
	}
	r.lastPersisted = s.Processed

	ctx := context.Background()
	// Re-read before writing so a cancel request set by another process
	// is not clobbered by this stale copy of the row.
	if fresh, err := r.m.jobs.GetJob(ctx, r.job.ID); err == nil && fresh.CancelRequested {
		r.job.CancelRequested = true
	}
	r.applySummary(s)
	if err := r.m.jobs.UpdateJob(ctx, r.job); err != nil {
		r.m.logger.Warn("failed to persist job progress", "jobID", r.job.ID, "error", err)
	}
	if _, err := r.m.locks.Acquire(ctx, execLockName, r.m.owner, r.m.execLockTTL); err != nil {
		r.m.logger.Warn("failed to refresh execution lock", "jobID", r.job.ID, "error", err)
	}
}

// shouldCancel re-reads the job row so cancel requests from other
// processes are honored, not just local ones. A failed audit flush also
// stops the run here.
func (r *jobRun) shouldCancel() bool {
	if r.flushErr != nil {
		return true
	}
	job, err := r.m.jobs.GetJob(context.Background(), r.job.ID)
	if err != nil {
		r.m.logger.Warn("failed to re-read job for cancel check", "jobID", r.job.ID, "error", err)
		return false
	}
	return job.CancelRequested
}
