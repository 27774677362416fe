package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
)

func TestPolicy_ShouldRetry_StatusCodes(t *testing.T) {
	p := NewPolicy()

	if !p.ShouldRetry(0, 503, nil) {
		t.Error("503 should be retryable")
	}
	if !p.ShouldRetry(0, 429, nil) {
		t.Error("429 should be retryable")
	}
	if p.ShouldRetry(0, 404, nil) {
		t.Error("404 should not be retryable")
	}
	if p.ShouldRetry(p.MaxAttempts, 503, nil) {
		t.Error("exhausted attempts should not retry")
	}
}

func TestPolicy_ShouldRetry_Errors(t *testing.T) {
	p := NewPolicy()

	if !p.ShouldRetry(0, 0, context.DeadlineExceeded) {
		t.Error("context.DeadlineExceeded should be retryable")
	}
	if p.ShouldRetry(0, 0, errors.New("boom")) {
		t.Error("unrecognized error should not be retryable")
	}
}

func TestPolicy_CalculateBackoff_Grows(t *testing.T) {
	p := NewPolicy()
	p.InitialBackoff = 100 * time.Millisecond
	p.MaxBackoff = time.Second
	p.BackoffMultiplier = 2.0

	b0 := p.CalculateBackoff(0)
	b3 := p.CalculateBackoff(3)

	if b0 <= 0 {
		t.Error("backoff must be positive")
	}
	if b3 <= b0 {
		t.Errorf("backoff should grow with the attempt number, got b0=%v b3=%v", b0, b3)
	}
	if b3 > p.MaxBackoff+p.MaxBackoff/4 {
		t.Errorf("backoff should be capped near MaxBackoff, got %v", b3)
	}
}

func TestPolicy_ExecuteWithRetry_SucceedsAfterRetries(t *testing.T) {
	p := NewPolicy()
	p.InitialBackoff = time.Millisecond
	p.MaxBackoff = 5 * time.Millisecond

	logger := arbor.NewLogger()
	attempts := 0

	status, err := p.ExecuteWithRetry(context.Background(), logger, func() (int, error) {
		attempts++
		if attempts < 3 {
			return 503, nil
		}
		return 200, nil
	})

	if err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if status != 200 {
		t.Errorf("expected status=200, got %d", status)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestPolicy_ExecuteWithRetry_StopsOnNonRetryableStatus(t *testing.T) {
	p := NewPolicy()
	logger := arbor.NewLogger()
	attempts := 0

	status, err := p.ExecuteWithRetry(context.Background(), logger, func() (int, error) {
		attempts++
		return 404, nil
	})

	if err != nil {
		t.Fatalf("expected nil error for terminal status, got %v", err)
	}
	if status != 404 {
		t.Errorf("expected status=404, got %d", status)
	}
	if attempts != 1 {
		t.Errorf("expected single attempt for non-retryable status, got %d", attempts)
	}
}

func TestPolicy_ExecuteWithRetry_RespectsContextCancellation(t *testing.T) {
	p := NewPolicy()
	p.InitialBackoff = 50 * time.Millisecond
	logger := arbor.NewLogger()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.ExecuteWithRetry(ctx, logger, func() (int, error) {
		return 503, nil
	})
	if err == nil {
		t.Error("expected context cancellation error")
	}
}
