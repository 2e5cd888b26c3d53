package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/pointcloud/backend/internal/model"
	"github.com/pointcloud/backend/internal/store"
)

const (
	// DefaultPhaseInterval is the simulated work before each checkpoint.
	DefaultPhaseInterval = 2 * time.Second

	// DefaultPersistRetries is how many times a failed checkpoint write is retried.
	DefaultPersistRetries = 2

	defaultRetryInterval = 100 * time.Millisecond
	persistTimeout       = 5 * time.Second
)

// CanceledMessage is the error text recorded on a job that was canceled.
const CanceledMessage = "canceled"

// InterruptedMessage is the error text recorded on jobs a previous process
// left unfinished.
const InterruptedMessage = "interrupted"

var (
	// ErrNotRunning is returned by Cancel for ids with no in-flight task.
	ErrNotRunning = errors.New("job is not running")

	// ErrShuttingDown is returned by Submit after Shutdown has begun.
	ErrShuttingDown = errors.New("engine is shutting down")

	// ErrAlreadyStarted is returned by FailInterrupted once Submit has been called.
	ErrAlreadyStarted = errors.New("engine has already accepted jobs")
)

// Phase is one checkpoint in a job's lifecycle.
type Phase struct {
	Status   string
	Progress int
}

// DefaultPhases is the standard progression after submission.
var DefaultPhases = []Phase{
	{Status: model.StatusRunning, Progress: 30},
	{Status: model.StatusRunning, Progress: 80},
	{Status: model.StatusSucceeded, Progress: 100},
}

// WorkFunc performs the work that precedes checkpoint phase of jobID. A
// non-nil error fails the job with the error's text.
type WorkFunc func(ctx context.Context, jobID string, phase int) error

// Option configures an Engine.
type Option func(*Engine)

// WithPhases replaces the phase table. Phases must be non-decreasing and end
// in a terminal status.
func WithPhases(phases []Phase) Option {
	return func(e *Engine) { e.phases = append([]Phase(nil), phases...) }
}

// WithWork replaces the per-phase work function.
func WithWork(fn WorkFunc) Option {
	return func(e *Engine) {
		if fn != nil {
			e.work = fn
		}
	}
}

// WithPhaseInterval sets how long the default work function waits per phase.
func WithPhaseInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d >= 0 {
			e.work = waitWork(d)
		}
	}
}

// WithPersistRetries sets how many times a failed checkpoint write is retried
// and the pause between attempts.
func WithPersistRetries(n int, interval time.Duration) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.retries = uint64(n)
		}
		if interval > 0 {
			e.retryInterval = interval
		}
	}
}

// Engine runs jobs through their phases in the background.
type Engine struct {
	store  store.Store
	logger *slog.Logger
	broker *Broker

	phases        []Phase
	work          WorkFunc
	retries       uint64
	retryInterval time.Duration

	wg        sync.WaitGroup
	mu        sync.Mutex
	cancels   map[string]context.CancelFunc
	shutdown  bool
	submitted bool
}

// NewEngine creates a new execution engine.
func NewEngine(s store.Store, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:         s,
		logger:        logger,
		broker:        NewBroker(),
		phases:        DefaultPhases,
		work:          waitWork(DefaultPhaseInterval),
		retries:       DefaultPersistRetries,
		retryInterval: defaultRetryInterval,
		cancels:       make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Broker returns the engine's job event broker for SSE subscription.
func (e *Engine) Broker() *Broker {
	return e.broker
}

// Submit creates a PENDING job and starts its progression in a goroutine.
// The returned snapshot is the one persisted before Submit returns.
func (e *Engine) Submit(ctx context.Context) (*model.Job, error) {
	now := time.Now().UTC()
	j := &model.Job{
		ID:        model.NewID(),
		Status:    model.StatusPending,
		Progress:  model.MinProgress,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// The task slot is reserved before the insert so Shutdown waits for it;
	// the lock itself is not held across the store round-trip.
	e.mu.Lock()
	if e.shutdown {
		e.mu.Unlock()
		return nil, ErrShuttingDown
	}
	e.submitted = true
	e.wg.Add(1)
	e.mu.Unlock()

	if err := e.store.CreateJob(ctx, j); err != nil {
		e.wg.Done()
		return nil, fmt.Errorf("create job: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	if e.shutdown {
		// Shutdown already swept the registry; the task fails as canceled.
		cancel()
	} else {
		e.cancels[j.ID] = cancel
	}
	e.mu.Unlock()
	jobsSubmitted.Inc()
	activeJobs.Inc()

	jCopy := *j
	go func() {
		defer e.wg.Done()
		e.execute(runCtx, &jCopy)
	}()

	e.logger.Info("job submitted", "job_id", j.ID)
	return j, nil
}

// Get returns the last persisted snapshot of a job. An unknown id yields
// store.ErrNotFound.
func (e *Engine) Get(ctx context.Context, id string) (*model.Job, error) {
	return e.store.GetJob(ctx, id)
}

// List returns a page of jobs, newest first, and the total count.
func (e *Engine) List(ctx context.Context, limit, offset int) ([]*model.Job, int, error) {
	return e.store.ListJobs(ctx, limit, offset)
}

// FailInterrupted marks every job a previous process left PENDING or RUNNING
// as FAILED with InterruptedMessage and returns how many it changed. It must
// run before the engine accepts its first job.
func (e *Engine) FailInterrupted(ctx context.Context) (int, error) {
	e.mu.Lock()
	started := e.submitted
	e.mu.Unlock()
	if started {
		return 0, ErrAlreadyStarted
	}

	ids, err := e.store.FailUnfinishedJobs(ctx, InterruptedMessage, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("fail interrupted jobs: %w", err)
	}
	for _, id := range ids {
		e.logger.Warn("job interrupted by restart", "job_id", id)
	}
	jobsFinished.WithLabelValues(model.StatusFailed).Add(float64(len(ids)))
	return len(ids), nil
}

// Cancel stops an in-flight job. The job lands in FAILED with the
// CanceledMessage error once its task observes the cancellation.
func (e *Engine) Cancel(id string) error {
	e.mu.Lock()
	cancel, ok := e.cancels[id]
	e.mu.Unlock()
	if !ok {
		return ErrNotRunning
	}
	cancel()
	e.logger.Info("job cancel requested", "job_id", id)
	return nil
}

// Wait blocks until all in-flight job goroutines complete.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Shutdown rejects new submissions, cancels every in-flight job and waits for
// their tasks to record the outcome or for ctx to end.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.shutdown = true
	for _, cancel := range e.cancels {
		cancel()
	}
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// execute walks the phase table for one job. It owns j exclusively.
func (e *Engine) execute(ctx context.Context, j *model.Job) {
	defer e.broker.Close(j.ID)
	defer e.release(j.ID)
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("job panicked", "job_id", j.ID, "panic", r)
			e.finishFailed(j, fmt.Sprintf("panic: %v", r))
		}
	}()

	e.broker.Publish(*j)

	for i, ph := range e.phases {
		err := e.work(ctx, j.ID, i)
		if err == nil && ctx.Err() != nil {
			err = ctx.Err()
		}
		if err != nil {
			msg := err.Error()
			if errors.Is(err, context.Canceled) {
				msg = CanceledMessage
			}
			e.logger.Warn("job work failed", "job_id", j.ID, "phase", i, "error", err)
			e.finishFailed(j, msg)
			return
		}

		if model.IsTerminal(ph.Status) {
			// Work is done; from here Cancel reports the job as not running.
			if cancel := e.deregister(j.ID); cancel != nil {
				cancel()
			}
		}

		prev := *j
		j.Status = ph.Status
		j.Progress = ph.Progress
		j.UpdatedAt = time.Now().UTC()

		err = e.persist(j)
		switch {
		case err == nil:
			e.logger.Debug("job checkpoint", "job_id", j.ID, "status", j.Status, "progress", j.Progress)
			e.broker.Publish(*j)
			if model.IsTerminal(j.Status) {
				jobsFinished.WithLabelValues(j.Status).Inc()
				e.logger.Info("job finished", "job_id", j.ID, "status", j.Status)
				return
			}
		case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrInvalidTransition):
			// The record is gone or was finished elsewhere; nothing left to drive.
			e.logger.Warn("job checkpoint rejected, stopping", "job_id", j.ID, "error", err)
			return
		case model.IsTerminal(ph.Status):
			*j = prev
			e.logger.Error("failed to persist final checkpoint", "job_id", j.ID, "error", err)
			e.finishFailed(j, fmt.Sprintf("persist final state: %v", err))
			return
		default:
			e.logger.Warn("skipping checkpoint after retries", "job_id", j.ID, "status", ph.Status, "progress", ph.Progress, "error", err)
		}
	}
}

// finishFailed marks a job as FAILED with errMsg, keeping its progress.
func (e *Engine) finishFailed(j *model.Job, errMsg string) {
	failed := *j
	failed.Status = model.StatusFailed
	failed.Error = errMsg
	failed.UpdatedAt = time.Now().UTC()

	if err := e.persist(&failed); err != nil {
		e.logger.Error("failed to update failed job", "job_id", j.ID, "error", err)
		return
	}
	*j = failed
	jobsFinished.WithLabelValues(model.StatusFailed).Inc()
	e.broker.Publish(failed)
	e.logger.Info("job finished", "job_id", j.ID, "status", model.StatusFailed, "error", errMsg)
}

// persist writes j's checkpoint, retrying transient store errors. Missing
// records and rejected transitions are not retried.
func (e *Engine) persist(j *model.Job) error {
	op := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()

		err := e.store.UpdateJob(ctx, j)
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInvalidTransition) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(e.retryInterval), e.retries)
	return backoff.Retry(op, b)
}

// deregister removes and returns the job's cancel func, if still registered.
func (e *Engine) deregister(id string) context.CancelFunc {
	e.mu.Lock()
	defer e.mu.Unlock()
	cancel := e.cancels[id]
	delete(e.cancels, id)
	return cancel
}

// release drops the job's cancel func once its task has returned.
func (e *Engine) release(id string) {
	if cancel := e.deregister(id); cancel != nil {
		cancel()
	}
	activeJobs.Dec()
}

// waitWork returns a WorkFunc that waits d, returning early on cancellation.
func waitWork(d time.Duration) WorkFunc {
	return func(ctx context.Context, _ string, _ int) error {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
