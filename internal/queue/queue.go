// Package queue implements JobQueue: the in-process worker pool layered on
// top of store.JobStore's persistence primitives (spec.md §4.1). JobStore
// owns the claim compare-and-swap, lease sweep, and retry/dead-letter
// bookkeeping; JobQueue owns the handler registry and the cooperative
// worker loop that drives it.
package queue

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/netwatch/internal/models"
	"github.com/ternarybob/netwatch/internal/store"
)

// Handler executes one job's payload. A returned error triggers the retry
// policy; "no handler registered" is itself reported through this path by
// the worker loop constructing a synthetic error.
type Handler func(ctx context.Context, job *models.Job) error

// Config bounds the queue's retry policy and worker loop timing.
type Config struct {
	NumWorkers   int
	LeaseTimeout time.Duration
	MaxRetries   int
	BaseDelay    time.Duration
	IdleSleep    time.Duration
	ErrorBackoff time.Duration
}

// DefaultConfig mirrors spec.md §4.1's stated defaults.
func DefaultConfig() Config {
	return Config{
		NumWorkers:   4,
		LeaseTimeout: 30 * time.Minute,
		MaxRetries:   3,
		BaseDelay:    time.Second,
		IdleSleep:    500 * time.Millisecond,
		ErrorBackoff: time.Second,
	}
}

// JobQueue is the priority job queue with atomic lease-based claim,
// dependency gating, exponential-backoff retry, and dead-letter migration
// (spec.md §4.1).
type JobQueue struct {
	store    *store.JobStore
	config   Config
	logger   arbor.ILogger

	mu       sync.RWMutex
	handlers map[string]Handler

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New constructs a JobQueue over store.
func New(jobStore *store.JobStore, config Config, logger arbor.ILogger) *JobQueue {
	return &JobQueue{
		store:    jobStore,
		config:   config,
		logger:   logger,
		handlers: make(map[string]Handler),
	}
}

// RegisterHandler binds a Handler to a job_type. The handler registry is
// built up before Start and never mutated afterward, so no lock is needed
// on the read path once workers are running (spec.md §5's "immutable after
// construction" in-memory state rule).
func (q *JobQueue) RegisterHandler(jobType string, handler Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[jobType] = handler
}

// Enqueue inserts one PENDING job.
func (q *JobQueue) Enqueue(ctx context.Context, jobID, jobType, payload string, priority int, dependsOn *string, scheduledFor time.Time) error {
	return q.store.Enqueue(ctx, jobID, jobType, payload, priority, dependsOn, scheduledFor)
}

// EnqueueBatch inserts all jobs atomically.
func (q *JobQueue) EnqueueBatch(ctx context.Context, jobs []*models.Job) error {
	return q.store.EnqueueBatch(ctx, jobs)
}

// Get returns one job by id.
func (q *JobQueue) Get(ctx context.Context, jobID string) (*models.Job, error) {
	return q.store.Get(ctx, jobID)
}

// Cancel transitions a PENDING job to CANCELLED.
func (q *JobQueue) Cancel(ctx context.Context, jobID string) (bool, error) {
	return q.store.Cancel(ctx, jobID)
}

// Stats returns the {status -> count} snapshot.
func (q *JobQueue) Stats(ctx context.Context) (models.QueueStats, error) {
	return q.store.Stats(ctx)
}

// DeadLetterList returns a page of dead-lettered jobs.
func (q *JobQueue) DeadLetterList(ctx context.Context, limit, offset int) ([]models.DeadLetter, error) {
	return q.store.DeadLetterList(ctx, limit, offset)
}

// RetryDeadLetter re-enqueues a dead-lettered job under a fresh job_id.
func (q *JobQueue) RetryDeadLetter(ctx context.Context, deadLetterID int64, newJobID string) (string, error) {
	return q.store.RetryDeadLetter(ctx, deadLetterID, newJobID)
}

// Start launches config.NumWorkers cooperative worker loops.
func (q *JobQueue) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel

	q.logger.Info().Int("num_workers", q.config.NumWorkers).Msg("starting job queue workers")

	for i := 0; i < q.config.NumWorkers; i++ {
		q.wg.Add(1)
		go q.worker(workerCtx, i)
	}
}

// Stop cancels every worker loop and waits for the current iteration of
// each to finish (spec.md §4's `stop(wait=true)` semantics; this package
// always waits — callers wanting `wait=false` should simply not call Stop
// and let the process exit, since jobs RUNNING in the store are reclaimed
// by the lease sweeper on next start).
func (q *JobQueue) Stop() {
	if q.cancel == nil {
		return
	}
	q.logger.Info().Msg("stopping job queue workers")
	q.cancel()
	q.wg.Wait()
	q.logger.Info().Msg("job queue workers stopped")
}

// worker runs the single-threaded cooperative loop spec.md §4.1 describes:
// claim, wait for the next job-available notification (capped at
// IdleSleep) if none, otherwise dispatch; swallow all non-cancellation
// errors and keep looping after a 1-second backoff.
func (q *JobQueue) worker(ctx context.Context, workerID int) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		claimed, err := q.store.ClaimNext(ctx, q.config.LeaseTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			q.logger.Error().Err(err).Int("worker_id", workerID).Msg("claim failed, backing off")
			sleep(ctx, q.config.ErrorBackoff)
			continue
		}

		if claimed.Job == nil {
			q.waitForWork(ctx, workerID)
			continue
		}

		q.dispatch(ctx, workerID, claimed.Job)
	}
}

// waitForWork blocks until a goqite job-available notification arrives or
// IdleSleep elapses, whichever is first — a bounded-poll replacement for a
// bare sleep (spec.md's job queue is backed by the same maragu.dev/goqite
// doorbell the teacher's internal/queue.Manager wraps). Falls back to a
// plain sleep if the notification poll itself errors, so a goqite outage
// degrades to the old polling cadence instead of busy-looping.
func (q *JobQueue) waitForWork(ctx context.Context, workerID int) {
	notified, err := q.store.WaitForNotification(ctx, q.config.IdleSleep)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		q.logger.Warn().Err(err).Int("worker_id", workerID).Msg("job notification poll failed, falling back to sleep")
		sleep(ctx, q.config.IdleSleep)
		return
	}
	if !notified {
		return
	}
}

// dispatch runs the handler registered for job.JobType and applies the
// retry/complete policy to its outcome.
func (q *JobQueue) dispatch(ctx context.Context, workerID int, job *models.Job) {
	q.mu.RLock()
	handler, ok := q.handlers[job.JobType]
	q.mu.RUnlock()

	if !ok {
		// An unregistered job type will never become registered by waiting,
		// so unlike a handler error this is not retried (spec.md §4.1/§7).
		if err := q.store.FailImmediately(ctx, job, "no handler"); err != nil {
			q.logger.Error().Err(err).Str("job_id", job.JobID).Msg("failed to dead-letter unhandled job")
		}
		return
	}

	var runErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				runErr = fmt.Errorf("handler panic: %v", r)
			}
		}()
		runErr = handler(ctx, job)
	}()

	if runErr == nil {
		if err := q.store.Complete(ctx, job.JobID, ""); err != nil {
			q.logger.Error().Err(err).Str("job_id", job.JobID).Msg("failed to mark job complete")
		}
		return
	}

	if errors.Is(runErr, context.Canceled) {
		q.logger.Debug().Str("job_id", job.JobID).Msg("job handler cancelled, leaving job RUNNING for lease reclaim")
		return
	}

	delay := backoffDelay(q.config.BaseDelay, job.RetryCount+1)
	if err := q.store.Retry(ctx, job, runErr.Error(), delay, q.config.MaxRetries); err != nil {
		q.logger.Error().Err(err).Str("job_id", job.JobID).Msg("failed to apply retry policy")
	}
}

// maxBackoffDelay caps the retry delay; retry_count still increments on
// every failure regardless of the cap.
const maxBackoffDelay = 30 * time.Minute

// backoffDelay implements spec.md §4.1's `base_delay_ms × 2^(retry_count−1)`,
// capped at maxBackoffDelay.
func backoffDelay(base time.Duration, retryCount int) time.Duration {
	d := float64(base) * math.Pow(2, float64(retryCount-1))
	if d > float64(maxBackoffDelay) {
		return maxBackoffDelay
	}
	return time.Duration(d)
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
