package queue

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/netwatch/internal/models"
	"github.com/ternarybob/netwatch/internal/store"
)

func newTestQueue(t *testing.T) (*JobQueue, *store.JobStore) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "netwatch_test.db")
	db, err := store.Open(arbor.NewLogger(), store.DefaultStoreConfig(dbPath))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	jobStore := store.NewJobStore(db)
	config := DefaultConfig()
	config.NumWorkers = 1
	config.IdleSleep = 10 * time.Millisecond
	config.ErrorBackoff = 10 * time.Millisecond
	config.BaseDelay = 5 * time.Millisecond

	return New(jobStore, config, arbor.NewLogger()), jobStore
}

func TestJobQueue_EnqueueAndGet(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	if err := q.Enqueue(ctx, "job-1", "capture", `{"url":"https://example.com"}`, 0, nil, time.Now()); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	job, err := q.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if job.Status != models.JobPending {
		t.Errorf("expected PENDING, got %v", job.Status)
	}
}

func TestJobQueue_ProcessesRegisteredHandler(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	q.RegisterHandler("capture", func(ctx context.Context, job *models.Job) error {
		close(done)
		return nil
	})

	if err := q.Enqueue(ctx, "job-2", "capture", "{}", 0, nil, time.Now()); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	q.Start(ctx)
	defer q.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler was never invoked")
	}

	time.Sleep(50 * time.Millisecond)
	job, err := q.Get(context.Background(), "job-2")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if job.Status != models.JobCompleted {
		t.Errorf("expected COMPLETED, got %v", job.Status)
	}
}

func TestJobQueue_NoHandlerFailsImmediatelyWithoutRetry(t *testing.T) {
	q, jobStore := newTestQueue(t)
	q.config.MaxRetries = 3
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := q.Enqueue(ctx, "job-3", "unregistered", "{}", 0, nil, time.Now()); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	q.Start(ctx)
	defer q.Stop()

	var job *models.Job
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		j, err := q.Get(context.Background(), "job-3")
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if j.Status == models.JobFailed {
			job = j
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	if job == nil {
		t.Fatal("job never reached FAILED status")
	}
	if job.Error != "no handler" {
		t.Errorf("expected error %q, got %q", "no handler", job.Error)
	}
	if job.RetryCount != 0 {
		t.Errorf("no-handler failure must not count as a retry, got retry_count=%d", job.RetryCount)
	}

	entries, err := jobStore.DeadLetterList(ctx, 10, 0)
	if err != nil {
		t.Fatalf("dead letter list failed: %v", err)
	}
	found := false
	for _, e := range entries {
		if e.JobID == "job-3" {
			found = true
			if e.Error != "no handler" {
				t.Errorf("expected dead letter error %q, got %q", "no handler", e.Error)
			}
		}
	}
	if !found {
		t.Error("expected job-3 to be dead-lettered immediately, with no retry delay")
	}
}

func TestJobQueue_CancelOnlyAffectsPending(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	if err := q.Enqueue(ctx, "job-4", "capture", "{}", 0, nil, time.Now()); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	cancelled, err := q.Cancel(ctx, "job-4")
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if !cancelled {
		t.Error("expected cancel to succeed on a PENDING job")
	}

	cancelled, err = q.Cancel(ctx, "job-4")
	if err != nil {
		t.Fatalf("second cancel failed: %v", err)
	}
	if cancelled {
		t.Error("expected second cancel on an already-CANCELLED job to report false")
	}
}

func TestJobQueue_DependencyGating(t *testing.T) {
	q, jobStore := newTestQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	parentID := "parent-1"
	childID := "child-1"

	var order []string
	q.RegisterHandler("parent", func(ctx context.Context, job *models.Job) error {
		order = append(order, "parent")
		return nil
	})
	q.RegisterHandler("child", func(ctx context.Context, job *models.Job) error {
		order = append(order, "child")
		return nil
	})

	if err := q.Enqueue(ctx, childID, "child", "{}", 10, &parentID, time.Now()); err != nil {
		t.Fatalf("enqueue child failed: %v", err)
	}
	if err := q.Enqueue(ctx, parentID, "parent", "{}", 0, nil, time.Now()); err != nil {
		t.Fatalf("enqueue parent failed: %v", err)
	}

	q.Start(ctx)
	defer q.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		child, err := jobStore.Get(context.Background(), childID)
		if err != nil {
			t.Fatalf("get child failed: %v", err)
		}
		if child.Status == models.JobCompleted {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	if len(order) != 2 || order[0] != "parent" || order[1] != "child" {
		t.Errorf("expected parent to run before child, got %v", order)
	}
}

func TestBackoffDelay_DoublesPerRetry(t *testing.T) {
	base := 10 * time.Millisecond
	if backoffDelay(base, 1) != base {
		t.Errorf("expected base delay on first retry")
	}
	if backoffDelay(base, 2) != 2*base {
		t.Errorf("expected doubled delay on second retry")
	}
	if backoffDelay(base, 3) != 4*base {
		t.Errorf("expected quadrupled delay on third retry")
	}
}

func TestJobQueue_HandlerPanicIsRecovered(t *testing.T) {
	q, _ := newTestQueue(t)
	q.config.MaxRetries = 1
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q.RegisterHandler("panics", func(ctx context.Context, job *models.Job) error {
		panic("boom")
	})

	if err := q.Enqueue(ctx, "job-5", "panics", "{}", 0, nil, time.Now()); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	q.Start(ctx)
	defer q.Stop()

	deadline := time.Now().Add(2 * time.Second)
	var job *models.Job
	for time.Now().Before(deadline) {
		j, err := q.Get(context.Background(), "job-5")
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if j.Status == models.JobFailed {
			job = j
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	if job == nil {
		t.Fatal("panicking handler never resulted in FAILED status")
	}
}
