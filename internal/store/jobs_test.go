package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/netwatch/internal/models"
)

func setupJobTestDB(t *testing.T) (*DB, *JobStore) {
	t.Helper()
	dbPath := t.TempDir() + "/test.db"

	db, err := Open(arbor.NewLogger(), DefaultStoreConfig(dbPath))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return db, NewJobStore(db)
}

func TestJobStore_EnqueueAndGet(t *testing.T) {
	_, jobStore := setupJobTestDB(t)
	ctx := context.Background()

	require.NoError(t, jobStore.Enqueue(ctx, "job-1", "capture", `{"url":"https://example.com"}`, 5, nil, time.Now()))

	job, err := jobStore.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "job-1", job.JobID)
	assert.Equal(t, "capture", job.JobType)
	assert.Equal(t, 5, job.Priority)
	assert.Equal(t, 0, job.RetryCount)
}

func TestJobStore_ClaimNext_RespectsPriorityOrder(t *testing.T) {
	_, jobStore := setupJobTestDB(t)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, jobStore.Enqueue(ctx, "low", "capture", "{}", 1, nil, now))
	require.NoError(t, jobStore.Enqueue(ctx, "high", "capture", "{}", 10, nil, now))

	result, err := jobStore.ClaimNext(ctx, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, result.Job)
	assert.Equal(t, "high", result.Job.JobID)
	assert.Equal(t, models.JobRunning, result.Job.Status)
}

func TestJobStore_ClaimNext_EmptyQueueReturnsNilJob(t *testing.T) {
	_, jobStore := setupJobTestDB(t)
	result, err := jobStore.ClaimNext(context.Background(), time.Minute)
	require.NoError(t, err)
	assert.Nil(t, result.Job)
}

func TestJobStore_ClaimNext_HonorsDependsOn(t *testing.T) {
	_, jobStore := setupJobTestDB(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, jobStore.Enqueue(ctx, "parent", "capture", "{}", 0, nil, now))
	parentID := "parent"
	require.NoError(t, jobStore.Enqueue(ctx, "child", "capture", "{}", 100, &parentID, now))

	result, err := jobStore.ClaimNext(ctx, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, result.Job)
	assert.Equal(t, "parent", result.Job.JobID, "child depends on an incomplete parent and must not be claimable first")

	require.NoError(t, jobStore.Complete(ctx, "parent", "{}"))

	result, err = jobStore.ClaimNext(ctx, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, result.Job)
	assert.Equal(t, "child", result.Job.JobID)
}

func TestJobStore_Retry_DeadLettersAfterMaxRetries(t *testing.T) {
	_, jobStore := setupJobTestDB(t)
	ctx := context.Background()

	require.NoError(t, jobStore.Enqueue(ctx, "job-1", "capture", "{}", 0, nil, time.Now()))
	job, err := jobStore.Get(ctx, "job-1")
	require.NoError(t, err)

	require.NoError(t, jobStore.Retry(ctx, job, "boom", time.Second, 1))

	job, err = jobStore.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, job.Status)
	assert.Equal(t, 1, job.RetryCount)

	entries, err := jobStore.DeadLetterList(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "job-1", entries[0].JobID)
	assert.Equal(t, "boom", entries[0].Error)
}

func TestJobStore_Retry_ReschedulesBelowMaxRetries(t *testing.T) {
	_, jobStore := setupJobTestDB(t)
	ctx := context.Background()

	require.NoError(t, jobStore.Enqueue(ctx, "job-1", "capture", "{}", 0, nil, time.Now()))
	job, err := jobStore.Get(ctx, "job-1")
	require.NoError(t, err)

	require.NoError(t, jobStore.Retry(ctx, job, "transient", time.Second, 5))

	job, err = jobStore.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobPending, job.Status)
	assert.Equal(t, 1, job.RetryCount)
	assert.Equal(t, "transient", job.Error)
}

func TestJobStore_RetryDeadLetter_ReenqueuesUnderNewID(t *testing.T) {
	_, jobStore := setupJobTestDB(t)
	ctx := context.Background()

	require.NoError(t, jobStore.Enqueue(ctx, "job-1", "capture", `{"url":"x"}`, 0, nil, time.Now()))
	job, err := jobStore.Get(ctx, "job-1")
	require.NoError(t, err)
	require.NoError(t, jobStore.Retry(ctx, job, "boom", time.Second, 1))

	entries, err := jobStore.DeadLetterList(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	newJobID, err := jobStore.RetryDeadLetter(ctx, entries[0].ID, "job-1-retry")
	require.NoError(t, err)
	assert.Equal(t, "job-1-retry", newJobID)

	reenqueued, err := jobStore.Get(ctx, "job-1-retry")
	require.NoError(t, err)
	assert.Equal(t, models.JobPending, reenqueued.Status)
	assert.Equal(t, `{"url":"x"}`, reenqueued.Payload)

	remaining, err := jobStore.DeadLetterList(ctx, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, remaining, "consumed dead letter row must be removed in the same transaction")
}

func TestJobStore_Stats_CountsByStatus(t *testing.T) {
	_, jobStore := setupJobTestDB(t)
	ctx := context.Background()

	require.NoError(t, jobStore.Enqueue(ctx, "p1", "capture", "{}", 0, nil, time.Now()))
	require.NoError(t, jobStore.Enqueue(ctx, "p2", "capture", "{}", 0, nil, time.Now()))

	result, err := jobStore.ClaimNext(ctx, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, result.Job)
	require.NoError(t, jobStore.Complete(ctx, result.Job.JobID, "ok"))

	stats, err := jobStore.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 1, stats.Completed)
}

func TestJobStore_Cancel(t *testing.T) {
	_, jobStore := setupJobTestDB(t)
	ctx := context.Background()

	require.NoError(t, jobStore.Enqueue(ctx, "job-1", "capture", "{}", 0, nil, time.Now()))

	ok, err := jobStore.Cancel(ctx, "job-1")
	require.NoError(t, err)
	assert.True(t, ok)

	job, err := jobStore.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobCancelled, job.Status)

	ok, err = jobStore.Cancel(ctx, "job-1")
	require.NoError(t, err)
	assert.False(t, ok, "cancelling an already-cancelled job reports no-op")
}

func TestJobStore_WaitForNotification_WakesOnEnqueue(t *testing.T) {
	_, jobStore := setupJobTestDB(t)
	ctx := context.Background()

	require.NoError(t, jobStore.Enqueue(ctx, "job-1", "capture", "{}", 0, nil, time.Now()))

	notified, err := jobStore.WaitForNotification(ctx, 2*time.Second)
	require.NoError(t, err)
	assert.True(t, notified, "enqueue should publish a job-available notification")
}

func TestJobStore_WaitForNotification_TimesOutWhenIdle(t *testing.T) {
	_, jobStore := setupJobTestDB(t)
	ctx := context.Background()

	notified, err := jobStore.WaitForNotification(ctx, 150*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, notified, "no enqueue occurred, so nothing should be waiting")
}
