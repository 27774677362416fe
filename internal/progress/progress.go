// Package progress implements ProgressState, the single-writer EWMA
// throughput and ETA estimator the batch driver polls while a job queue
// drains (spec.md §4.8). It tracks no history beyond the two smoothed
// rates; callers snapshot it for display or for pushing over the websocket
// broadcaster in this package.
package progress

import (
	"sync"
	"time"

	"github.com/ternarybob/netwatch/internal/models"
)

// ewmaAlpha is the smoothing factor both accumulators use.
const ewmaAlpha = 0.15

// Snapshot is an immutable, JSON-friendly view of ProgressState at one
// instant, safe to hand to a display loop or a broadcast frame.
type Snapshot struct {
	TotalItems     int          `json:"total_items"`
	CompletedItems int          `json:"completed_items"`
	FailedItems    int          `json:"failed_items"`
	BytesDone      int64        `json:"bytes_done"`
	CurrentItem    string       `json:"current_item,omitempty"`
	CurrentStage   models.Stage `json:"current_stage,omitempty"`
	StartedAt      time.Time    `json:"started_at"`

	ItemsPerSecond  float64  `json:"items_per_second"`
	BytesPerSecond  float64  `json:"bytes_per_second"`
	ElapsedSeconds  float64  `json:"elapsed_seconds"`
	RemainingItems  int      `json:"remaining_items"`
	ETASeconds      *float64 `json:"eta_seconds"`
	PercentComplete float64  `json:"percent_complete"`
}

// State is the single-writer progress tracker. All mutating methods must be
// called from the one goroutine driving the batch (spec.md §5's
// single-writer-per-component concurrency model); reads via Snapshot are
// safe from any goroutine.
type State struct {
	mu sync.RWMutex

	totalItems     int
	completedItems int
	failedItems    int
	bytesDone      int64
	currentItem    string
	currentStage   models.Stage
	startedAt      time.Time

	itemsPerSecond    float64
	itemsPerSecondSet bool
	bytesPerSecond    float64
	bytesPerSecondSet bool

	now func() time.Time
}

// New constructs a State for a run of totalItems, starting the clock
// immediately.
func New(totalItems int) *State {
	return newWithClock(totalItems, time.Now)
}

func newWithClock(totalItems int, now func() time.Time) *State {
	return &State{
		totalItems: totalItems,
		startedAt:  now(),
		now:        now,
	}
}

// SetCurrentItem records which item and stage is presently in flight, used
// for the in-flight weighted contribution to percent_complete.
func (s *State) SetCurrentItem(item string, stage models.Stage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentItem = item
	s.currentStage = stage
}

// CompleteItem records one successfully finished item of size bytes and
// updates both EWMA accumulators. First sample initializes each accumulator
// exactly to that sample's value (invariant P9); later samples blend.
func (s *State) CompleteItem(elapsed time.Duration, bytes int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.completedItems++
	s.bytesDone += bytes
	s.currentItem = ""
	s.currentStage = ""

	s.updateRates(elapsed, bytes)
}

// FailItem records one failed item. Failed items still count toward
// completed+failed for percent_complete, but contribute no throughput sample
// (the item never produced a meaningful duration/bytes measurement).
func (s *State) FailItem() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failedItems++
	s.currentItem = ""
	s.currentStage = ""
}

func (s *State) updateRates(elapsed time.Duration, bytes int64) {
	if elapsed <= 0 {
		return
	}
	itemsSample := 1.0 / elapsed.Seconds()
	bytesSample := float64(bytes) / elapsed.Seconds()

	if !s.itemsPerSecondSet {
		s.itemsPerSecond = itemsSample
		s.itemsPerSecondSet = true
	} else {
		s.itemsPerSecond = ewmaAlpha*itemsSample + (1-ewmaAlpha)*s.itemsPerSecond
	}

	if !s.bytesPerSecondSet {
		s.bytesPerSecond = bytesSample
		s.bytesPerSecondSet = true
	} else {
		s.bytesPerSecond = ewmaAlpha*bytesSample + (1-ewmaAlpha)*s.bytesPerSecond
	}
}

// Snapshot computes every derived property in spec.md §4.8 from the current
// state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	elapsed := s.now().Sub(s.startedAt).Seconds()
	remaining := s.totalItems - s.completedItems - s.failedItems
	if remaining < 0 {
		remaining = 0
	}

	var eta *float64
	if remaining == 0 {
		zero := 0.0
		eta = &zero
	} else if s.itemsPerSecond > 0 {
		v := float64(remaining) / s.itemsPerSecond
		eta = &v
	}

	return Snapshot{
		TotalItems:      s.totalItems,
		CompletedItems:  s.completedItems,
		FailedItems:     s.failedItems,
		BytesDone:       s.bytesDone,
		CurrentItem:     s.currentItem,
		CurrentStage:    s.currentStage,
		StartedAt:       s.startedAt,
		ItemsPerSecond:  s.itemsPerSecond,
		BytesPerSecond:  s.bytesPerSecond,
		ElapsedSeconds:  elapsed,
		RemainingItems:  remaining,
		ETASeconds:      eta,
		PercentComplete: s.percentCompleteLocked(),
	}
}

// percentCompleteLocked implements spec.md §4.8's base-plus-in-flight
// formula, bounded to [0,100] (invariant P8). Callers must hold s.mu.
func (s *State) percentCompleteLocked() float64 {
	if s.totalItems <= 0 {
		return 0
	}

	base := float64(s.completedItems+s.failedItems) / float64(s.totalItems) * 100

	if s.currentStage != "" {
		weight, ok := models.StageWeights[s.currentStage]
		if ok {
			base += (float64(weight) / 100) * (100.0 / float64(s.totalItems))
		}
	}

	if base > 100 {
		base = 100
	}
	if base < 0 {
		base = 0
	}
	return base
}
