package jobs

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/pure-golang/mailmerge/dispatch"
	"github.com/pure-golang/mailmerge/logger"
)

// Manager runs dispatches in the background and records their progress.
type Manager struct {
	engine *dispatch.Engine
	store  Store
	every  int
	now    func() time.Time

	base   context.Context
	cancel context.CancelFunc

	mx     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewManager creates a Manager. Progress is saved every cfg.ProgressEvery
// results; zero or less saves only the final state.
func NewManager(engine *dispatch.Engine, store Store, cfg Config) *Manager {
	base, cancel := context.WithCancel(context.Background())
	return &Manager{
		engine: engine,
		store:  store,
		every:  cfg.ProgressEvery,
		now:    time.Now,
		base:   base,
		cancel: cancel,
	}
}

// Submit validates req, records a running job and starts the dispatch.
// The run outlives ctx but keeps its values; it is canceled by Close.
func (m *Manager) Submit(ctx context.Context, req dispatch.Request) (*Job, error) {
	if err := m.engine.Validate(req); err != nil {
		return nil, err
	}

	// The run is registered before the lock is released so Close waits for it.
	m.mx.Lock()
	if m.closed {
		m.mx.Unlock()
		return nil, ErrClosed
	}
	m.wg.Add(1)
	m.mx.Unlock()

	job := &Job{
		ID:        uuid.NewString(),
		State:     StateRunning,
		CreatedAt: m.now().UTC(),
		Total:     len(req.Rows),
		Results:   []dispatch.Result{},
	}
	if err := m.store.Save(ctx, job); err != nil {
		m.wg.Done()
		return nil, errors.Wrap(err, "failed to save job")
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(m.base, cancel)
	if m.isClosed() {
		// Close ran during the save: the job still completes, with every
		// row canceled.
		cancel()
	}
	runCtx = logger.NewContext(runCtx, logger.FromContext(ctx).With("job_id", job.ID))

	out, err := m.engine.Start(runCtx, req)
	if err != nil {
		stop()
		cancel()
		m.wg.Done()
		return nil, err
	}

	go func() {
		defer m.wg.Done()
		defer cancel()
		defer stop()
		m.track(runCtx, job.Clone(), out)
	}()

	logger.FromContext(runCtx).Info("job submitted", "rows", job.Total)
	return job, nil
}

func (m *Manager) isClosed() bool {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.closed
}

// track drains the results of one run into job.
func (m *Manager) track(ctx context.Context, job *Job, out <-chan dispatch.Result) {
	// Saves must land even after the run was canceled.
	saveCtx := context.WithoutCancel(ctx)

	for r := range out {
		job.Results = append(job.Results, r)
		if m.every > 0 && len(job.Results)%m.every == 0 && len(job.Results) < job.Total {
			job.Summary = dispatch.Summarize(job.Results)
			m.save(saveCtx, job)
		}
	}

	slices.SortFunc(job.Results, func(a, b dispatch.Result) int { return a.RowIndex - b.RowIndex })
	finished := m.now().UTC()
	job.State = StateCompleted
	job.FinishedAt = &finished
	job.Summary = dispatch.Summarize(job.Results)
	m.save(saveCtx, job)

	logger.FromContext(ctx).Info("job completed",
		"sent", job.Summary.Sent,
		"skipped", job.Summary.Skipped,
		"failed", job.Summary.Failed,
	)
}

func (m *Manager) save(ctx context.Context, job *Job) {
	if err := m.store.Save(ctx, job); err != nil {
		logger.FromContextWithErr(ctx, err).Error("failed to save job progress")
	}
}

// Get returns the latest snapshot of a job.
func (m *Manager) Get(ctx context.Context, id string) (*Job, error) {
	return m.store.Get(ctx, id)
}

// Close stops accepting jobs, cancels running ones and waits for their
// in-flight sends to drain or ctx to expire. The store is left open.
func (m *Manager) Close(ctx context.Context) error {
	m.mx.Lock()
	m.closed = true
	m.mx.Unlock()

	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "jobs still running")
	}
}
