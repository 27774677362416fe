package progress

import (
	"testing"
	"time"

	"github.com/ternarybob/netwatch/internal/models"
)

func TestState_EWMAFirstSampleInitializes(t *testing.T) {
	s := New(10)
	s.CompleteItem(2*time.Second, 1000)

	snap := s.Snapshot()
	if snap.ItemsPerSecond != 0.5 {
		t.Errorf("expected items_per_second 0.5 after first sample, got %v", snap.ItemsPerSecond)
	}
	if snap.BytesPerSecond != 500 {
		t.Errorf("expected bytes_per_second 500 after first sample, got %v", snap.BytesPerSecond)
	}
}

func TestState_EWMABlendsSubsequentSamples(t *testing.T) {
	s := New(10)
	s.CompleteItem(1*time.Second, 1000) // sample = 1 items/s, 1000 bytes/s -> initializes to that
	s.CompleteItem(1*time.Second, 1000) // second identical sample should leave rate unchanged

	snap := s.Snapshot()
	if snap.ItemsPerSecond != 1.0 {
		t.Errorf("expected items_per_second to stay 1.0 for identical samples, got %v", snap.ItemsPerSecond)
	}
}

func TestState_ETAZeroWhenNoRemaining(t *testing.T) {
	s := New(2)
	s.CompleteItem(time.Second, 10)
	s.CompleteItem(time.Second, 10)

	snap := s.Snapshot()
	if snap.ETASeconds == nil || *snap.ETASeconds != 0 {
		t.Errorf("expected eta_seconds 0 when remaining is 0, got %+v", snap.ETASeconds)
	}
}

func TestState_ETANilWhenRateIsZero(t *testing.T) {
	s := New(5)
	snap := s.Snapshot()
	if snap.ETASeconds != nil {
		t.Errorf("expected nil eta_seconds before any completion, got %v", *snap.ETASeconds)
	}
}

func TestState_PercentCompleteBase(t *testing.T) {
	s := New(4)
	s.CompleteItem(time.Second, 10)
	s.FailItem()

	snap := s.Snapshot()
	if snap.PercentComplete != 50 {
		t.Errorf("expected 50%% complete for 2/4 done, got %v", snap.PercentComplete)
	}
}

func TestState_PercentCompleteIncludesInFlightWeight(t *testing.T) {
	s := New(10)
	s.SetCurrentItem("https://example.com", models.StageNavigating)

	snap := s.Snapshot()
	if snap.PercentComplete <= 0 {
		t.Errorf("expected a positive in-flight contribution, got %v", snap.PercentComplete)
	}
}

func TestState_PercentCompleteBoundedAt100(t *testing.T) {
	s := New(1)
	s.CompleteItem(time.Second, 10)
	s.SetCurrentItem("https://example.com", models.StageNavigating)

	snap := s.Snapshot()
	if snap.PercentComplete > 100 {
		t.Errorf("expected percent_complete bounded at 100, got %v", snap.PercentComplete)
	}
}

func TestState_RemainingItemsNeverNegative(t *testing.T) {
	s := New(1)
	s.CompleteItem(time.Second, 10)
	s.FailItem()

	snap := s.Snapshot()
	if snap.RemainingItems != 0 {
		t.Errorf("expected remaining_items clamped to 0, got %d", snap.RemainingItems)
	}
}

func TestStageWeights_SumTo100(t *testing.T) {
	total := 0
	for _, w := range models.StageWeights {
		total += w
	}
	if total != 100 {
		t.Errorf("expected stage weights to sum to 100, got %d", total)
	}
}
