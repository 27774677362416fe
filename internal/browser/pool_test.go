package browser

import (
	"context"
	"testing"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/netwatch/internal/models"
)

func TestPool_DefaultConfig(t *testing.T) {
	config := DefaultPoolConfig()
	if config.MaxInstancesPerMode != 2 {
		t.Errorf("expected MaxInstancesPerMode=2, got %d", config.MaxInstancesPerMode)
	}
	if !config.DisableGPU || !config.NoSandbox {
		t.Error("expected DisableGPU and NoSandbox to default true")
	}
}

func TestPool_StatsEmptyBeforeAcquire(t *testing.T) {
	logger := arbor.NewLogger()
	pool := NewPool(DefaultPoolConfig(), logger)

	stats := pool.Stats()
	if len(stats) != 0 {
		t.Errorf("expected no live instances before Acquire, got %v", stats)
	}
}

func TestPool_AcquireAndShutdown(t *testing.T) {
	if testing.Short() {
		t.Skip("requires a real Chrome binary")
	}

	logger := arbor.NewLogger()
	pool := NewPool(DefaultPoolConfig(), logger)

	session, err := pool.Acquire(context.Background(), models.HeadlessShell, "Test-Agent/1.0")
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if session == nil {
		t.Fatal("expected non-nil session")
	}
	session.Close()

	stats := pool.Stats()
	if stats[string(models.HeadlessShell)] != 1 {
		t.Errorf("expected 1 live instance for shell mode, got %v", stats)
	}

	pool.Shutdown()
	if len(pool.Stats()) != 0 {
		t.Error("expected no live instances after Shutdown")
	}
}

func TestPool_SeparatePoolsPerHeadlessMode(t *testing.T) {
	if testing.Short() {
		t.Skip("requires a real Chrome binary")
	}

	logger := arbor.NewLogger()
	pool := NewPool(DefaultPoolConfig(), logger)
	defer pool.Shutdown()

	shellSession, err := pool.Acquire(context.Background(), models.HeadlessShell, "Test-Agent/1.0")
	if err != nil {
		t.Fatalf("acquire shell: %v", err)
	}
	defer shellSession.Close()

	newModeSession, err := pool.Acquire(context.Background(), models.HeadlessNew, "Test-Agent/1.0")
	if err != nil {
		t.Fatalf("acquire new: %v", err)
	}
	defer newModeSession.Close()

	stats := pool.Stats()
	if stats[string(models.HeadlessShell)] != 1 || stats[string(models.HeadlessNew)] != 1 {
		t.Errorf("expected one instance per mode, got %v", stats)
	}
}
