package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/netwatch/internal/models"
	"maragu.dev/goqite"
)

// ErrJobNotFound mirrors the teacher's sentinel-error convention for
// not-found rows (storage/sqlite/job_storage.go's ErrJobNotFound).
var ErrJobNotFound = errors.New("job not found")

// jobNotifyQueueName is the goqite queue netwatch uses purely as a
// job-available doorbell: its messages carry no payload and are never the
// source of truth for job data (jobs table is), only a signal that a PENDING
// row now exists so an idle worker's Receive wakes up instead of sleeping
// through its full IdleSleep interval.
const jobNotifyQueueName = "netwatch_job_available"

// JobStore is the persistence layer backing JobQueue (spec.md §4.1). It
// owns the claim compare-and-swap and lease sweeper; JobQueue composes it
// with the in-process handler registry and worker loop.
type JobStore struct {
	db     *DB
	notify *goqite.Queue
}

// NewJobStore wraps db for job-table access, opening the goqite
// notification queue the teacher's internal/queue.Manager wraps the same
// way (maragu.dev/goqite, grounded on internal/queue/manager.go).
func NewJobStore(db *DB) *JobStore {
	return &JobStore{
		db: db,
		notify: goqite.New(goqite.NewOpts{
			DB:   db.conn,
			Name: jobNotifyQueueName,
		}),
	}
}

// notifyJobAvailable announces a new PENDING job to idle workers. Best
// effort: a failed announcement never fails the enqueue, since ClaimNext's
// own polling is still correct, just slower, if the doorbell gets dropped.
func (s *JobStore) notifyJobAvailable(ctx context.Context) {
	if err := s.notify.Send(ctx, goqite.Message{}); err != nil {
		s.db.logger.Warn().Err(err).Msg("failed to send job-available notification")
	}
}

// WaitForNotification polls the job-available queue for up to timeout,
// consuming (and deleting) one doorbell message as soon as it arrives. It
// mirrors the teacher's queue.WorkerPool.worker ticker-driven Receive loop
// (internal/queue/worker.go), collapsed into a single bounded wait: each
// poll attempt is a non-blocking goqite Receive, retried at pollInterval
// until a message shows up or timeout elapses. Returns false, nil (not an
// error) when nothing arrived in time — the normal idle case.
func (s *JobStore) WaitForNotification(ctx context.Context, timeout time.Duration) (bool, error) {
	const pollInterval = 50 * time.Millisecond
	deadline := time.Now().Add(timeout)

	for {
		msg, err := s.notify.Receive(ctx)
		if err != nil {
			return false, fmt.Errorf("receive job notification: %w", err)
		}
		if msg != nil {
			if err := s.notify.Delete(ctx, msg.ID); err != nil {
				return true, fmt.Errorf("delete job notification: %w", err)
			}
			return true, nil
		}
		if !time.Now().Before(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// Enqueue inserts a single PENDING job and returns its id.
func (s *JobStore) Enqueue(ctx context.Context, jobID, jobType, payload string, priority int, dependsOn *string, scheduledFor time.Time) error {
	_, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO jobs (job_id, job_type, payload, status, priority, retry_count, depends_on, scheduled_for, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?)`,
		jobID, jobType, payload, string(models.JobPending), priority, dependsOn, scheduledFor.UTC().Format(time.RFC3339Nano), nowISO(),
	)
	if err != nil {
		return fmt.Errorf("enqueue job %s: %w", jobID, err)
	}
	s.notifyJobAvailable(ctx)
	return nil
}

// EnqueueBatch inserts all jobs inside one transaction (all-or-nothing,
// spec.md §4.1 "enqueue_batch(list) → [job_id] (atomic)").
func (s *JobStore) EnqueueBatch(ctx context.Context, jobs []*models.Job) error {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin batch enqueue: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO jobs (job_id, job_type, payload, status, priority, retry_count, depends_on, scheduled_for, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare batch enqueue: %w", err)
	}
	defer stmt.Close()

	now := nowISO()
	for _, j := range jobs {
		if _, err := stmt.ExecContext(ctx, j.JobID, j.JobType, j.Payload, string(models.JobPending), j.Priority, j.DependsOn, j.ScheduledFor.UTC().Format(time.RFC3339Nano), now); err != nil {
			return fmt.Errorf("enqueue job %s: %w", j.JobID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	s.notifyJobAvailable(ctx)
	return nil
}

// Get returns the job row, or ErrJobNotFound.
func (s *JobStore) Get(ctx context.Context, jobID string) (*models.Job, error) {
	row := s.db.conn.QueryRowContext(ctx, `
		SELECT job_id, job_type, payload, status, priority, retry_count, depends_on,
		       scheduled_for, created_at, started_at, completed_at, result, error
		FROM jobs WHERE job_id = ?`, jobID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	return job, err
}

// Cancel transitions a PENDING job to CANCELLED; returns false if the job
// was not PENDING (spec.md §4.1: "succeeds iff currently PENDING").
func (s *JobStore) Cancel(ctx context.Context, jobID string) (bool, error) {
	res, err := s.db.conn.ExecContext(ctx, `
		UPDATE jobs SET status = ?, completed_at = ?
		WHERE job_id = ? AND status = ?`,
		string(models.JobCancelled), nowISO(), jobID, string(models.JobPending),
	)
	if err != nil {
		return false, fmt.Errorf("cancel job %s: %w", jobID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ClaimResult is the outcome of ClaimNext: Job is nil when no job was
// available or another worker won the race (spec.md §9 error-handling style
// — structured results instead of sentinel panics across this seam).
type ClaimResult struct {
	Job *models.Job
}

// ClaimNext runs the full claim algorithm in one transaction (spec.md
// §4.1): sweep expired leases back to PENDING, select the best-ranked
// eligible row, then attempt a conditional PENDING→RUNNING update. A zero
// rowcount on the final UPDATE means another worker won the race; this is
// not an error, it is reported by returning a nil Job.
func (s *JobStore) ClaimNext(ctx context.Context, leaseTimeout time.Duration) (*ClaimResult, error) {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin claim: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	leaseExpiry := now.Add(-leaseTimeout).Format(time.RFC3339Nano)

	if _, err := tx.ExecContext(ctx, `
		UPDATE jobs SET status = ?, started_at = NULL
		WHERE status = ? AND started_at IS NOT NULL AND started_at < ?`,
		string(models.JobPending), string(models.JobRunning), leaseExpiry,
	); err != nil {
		return nil, fmt.Errorf("sweep expired leases: %w", err)
	}

	nowStr := now.Format(time.RFC3339Nano)
	row := tx.QueryRowContext(ctx, `
		SELECT job_id FROM jobs j
		WHERE status = ?
		  AND scheduled_for <= ?
		  AND (depends_on IS NULL OR EXISTS (
		        SELECT 1 FROM jobs d WHERE d.job_id = j.depends_on AND d.status = ?
		      ))
		ORDER BY priority DESC, scheduled_for ASC
		LIMIT 1`,
		string(models.JobPending), nowStr, string(models.JobCompleted),
	)

	var jobID string
	if err := row.Scan(&jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &ClaimResult{Job: nil}, tx.Commit()
		}
		return nil, fmt.Errorf("select claimable job: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE jobs SET status = ?, started_at = ?
		WHERE job_id = ? AND status = ?`,
		string(models.JobRunning), nowStr, jobID, string(models.JobPending),
	)
	if err != nil {
		return nil, fmt.Errorf("conditional claim update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		// Lost the race to another worker (I3); not an error.
		return &ClaimResult{Job: nil}, tx.Commit()
	}

	claimedRow := tx.QueryRowContext(ctx, `
		SELECT job_id, job_type, payload, status, priority, retry_count, depends_on,
		       scheduled_for, created_at, started_at, completed_at, result, error
		FROM jobs WHERE job_id = ?`, jobID)
	job, err := scanJob(claimedRow)
	if err != nil {
		return nil, fmt.Errorf("load claimed job: %w", err)
	}

	return &ClaimResult{Job: job}, tx.Commit()
}

// Complete marks a job COMPLETED with its result payload.
func (s *JobStore) Complete(ctx context.Context, jobID, result string) error {
	_, err := s.db.conn.ExecContext(ctx, `
		UPDATE jobs SET status = ?, result = ?, completed_at = ?
		WHERE job_id = ?`,
		string(models.JobCompleted), result, nowISO(), jobID,
	)
	if err != nil {
		return fmt.Errorf("complete job %s: %w", jobID, err)
	}
	return nil
}

// Retry applies the JobQueue retry policy (spec.md §4.1): on failure,
// increment retry_count; if it has reached maxRetries, mark FAILED and
// insert a DeadLetter row (I4); otherwise reschedule PENDING at now+delay.
func (s *JobStore) Retry(ctx context.Context, job *models.Job, failErr string, delay time.Duration, maxRetries int) error {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin retry: %w", err)
	}
	defer tx.Rollback()

	newRetryCount := job.RetryCount + 1

	if newRetryCount >= maxRetries {
		if _, err := tx.ExecContext(ctx, `
			UPDATE jobs SET status = ?, retry_count = ?, error = ?, completed_at = ?
			WHERE job_id = ?`,
			string(models.JobFailed), newRetryCount, failErr, nowISO(), job.JobID,
		); err != nil {
			return fmt.Errorf("mark job failed: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO dead_letters (job_id, job_type, payload, error, retry_count, original_created_at, failed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			job.JobID, job.JobType, job.Payload, failErr, newRetryCount, job.CreatedAt.UTC().Format(time.RFC3339Nano), nowISO(),
		); err != nil {
			return fmt.Errorf("insert dead letter: %w", err)
		}
		return tx.Commit()
	}

	scheduledFor := time.Now().UTC().Add(delay).Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(ctx, `
		UPDATE jobs SET status = ?, retry_count = ?, error = ?, scheduled_for = ?, started_at = NULL
		WHERE job_id = ?`,
		string(models.JobPending), newRetryCount, failErr, scheduledFor, job.JobID,
	); err != nil {
		return fmt.Errorf("reschedule job for retry: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.notifyJobAvailable(ctx)
	return nil
}

// FailImmediately marks job FAILED and inserts its DeadLetter row in one
// transaction without touching retry_count (spec.md §4.1 "No handler ⇒
// immediate FAIL with error `no handler`"; §7 "No registered handler →
// fatal for the job (no retry) — DeadLetter immediately"). Unlike Retry,
// this never reschedules: an unregistered job type will never become
// registered by waiting, so there is nothing to retry toward.
func (s *JobStore) FailImmediately(ctx context.Context, job *models.Job, failErr string) error {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin immediate fail: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE jobs SET status = ?, error = ?, completed_at = ?
		WHERE job_id = ?`,
		string(models.JobFailed), failErr, nowISO(), job.JobID,
	); err != nil {
		return fmt.Errorf("mark job failed: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO dead_letters (job_id, job_type, payload, error, retry_count, original_created_at, failed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		job.JobID, job.JobType, job.Payload, failErr, job.RetryCount, job.CreatedAt.UTC().Format(time.RFC3339Nano), nowISO(),
	); err != nil {
		return fmt.Errorf("insert dead letter: %w", err)
	}
	return tx.Commit()
}

// Stats returns the {status -> count} snapshot (spec.md §4.1 queue_stats).
func (s *JobStore) Stats(ctx context.Context) (models.QueueStats, error) {
	var stats models.QueueStats
	rows, err := s.db.conn.QueryContext(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return stats, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return stats, err
		}
		switch models.JobStatus(status) {
		case models.JobPending:
			stats.Pending = count
		case models.JobRunning:
			stats.Running = count
		case models.JobCompleted:
			stats.Completed = count
		case models.JobFailed:
			stats.Failed = count
		case models.JobCancelled:
			stats.Cancelled = count
		}
	}
	return stats, rows.Err()
}

// DeadLetterList returns a page of dead-lettered jobs.
func (s *JobStore) DeadLetterList(ctx context.Context, limit, offset int) ([]models.DeadLetter, error) {
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT id, job_id, job_type, payload, error, retry_count, original_created_at, failed_at
		FROM dead_letters ORDER BY id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer rows.Close()

	var out []models.DeadLetter
	for rows.Next() {
		var dl models.DeadLetter
		var originalCreatedAt, failedAt string
		if err := rows.Scan(&dl.ID, &dl.JobID, &dl.JobType, &dl.Payload, &dl.Error, &dl.RetryCount, &originalCreatedAt, &failedAt); err != nil {
			return nil, err
		}
		dl.OriginalCreatedAt, _ = time.Parse(time.RFC3339Nano, originalCreatedAt)
		dl.FailedAt, _ = time.Parse(time.RFC3339Nano, failedAt)
		out = append(out, dl)
	}
	return out, rows.Err()
}

// RetryDeadLetter re-enqueues a dead-lettered job's payload as a fresh
// PENDING job and removes the consumed dead_letters row, both in one
// transaction (spec.md §8: "existing ⇒ returns new id and removes the
// DeadLetter row in the same transaction").
func (s *JobStore) RetryDeadLetter(ctx context.Context, deadLetterID int64, newJobID string) (string, error) {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return "", fmt.Errorf("begin retry dead letter: %w", err)
	}
	defer tx.Rollback()

	var jobType, payload string
	row := tx.QueryRowContext(ctx, `SELECT job_type, payload FROM dead_letters WHERE id = ?`, deadLetterID)
	if err := row.Scan(&jobType, &payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("dead letter %d: %w", deadLetterID, ErrJobNotFound)
		}
		return "", fmt.Errorf("load dead letter %d: %w", deadLetterID, err)
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO jobs (job_id, job_type, payload, status, priority, retry_count, depends_on, scheduled_for, created_at)
		VALUES (?, ?, ?, ?, 0, 0, NULL, ?, ?)`,
		newJobID, jobType, payload, string(models.JobPending), now.Format(time.RFC3339Nano), nowISO(),
	); err != nil {
		return "", fmt.Errorf("enqueue job %s: %w", newJobID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM dead_letters WHERE id = ?`, deadLetterID); err != nil {
		return "", fmt.Errorf("delete dead letter %d: %w", deadLetterID, err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit retry dead letter: %w", err)
	}
	s.notifyJobAvailable(ctx)
	return newJobID, nil
}

func scanJob(row *sql.Row) (*models.Job, error) {
	var j models.Job
	var status, scheduledFor, createdAt string
	var dependsOn, startedAt, completedAt, result, errStr sql.NullString

	if err := row.Scan(&j.JobID, &j.JobType, &j.Payload, &status, &j.Priority, &j.RetryCount,
		&dependsOn, &scheduledFor, &createdAt, &startedAt, &completedAt, &result, &errStr); err != nil {
		return nil, err
	}

	j.Status = models.JobStatus(status)
	j.ScheduledFor, _ = time.Parse(time.RFC3339Nano, scheduledFor)
	j.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)

	if dependsOn.Valid {
		j.DependsOn = &dependsOn.String
	}
	if startedAt.Valid {
		t, _ := time.Parse(time.RFC3339Nano, startedAt.String)
		j.StartedAt = &t
	}
	if completedAt.Valid {
		t, _ := time.Parse(time.RFC3339Nano, completedAt.String)
		j.CompletedAt = &t
	}
	j.Result = result.String
	j.Error = errStr.String

	return &j, nil
}
