package models

// Stage is the closed set of capture pipeline stages a single in-flight item
// can be in, used both by CaptureService's state machine and by
// ProgressState's weighted percent_complete (spec.md §4.8).
type Stage string

const (
	StageInitializing Stage = "initializing"
	StageNavigating   Stage = "navigating"
	StageWaiting      Stage = "waiting"
	StageValidating   Stage = "validating"
	StageLearning     Stage = "learning"
	StageBehaviors    Stage = "behaviors"
	StageScreenshot   Stage = "screenshot"
	StagePDF          Stage = "pdf"
	StageWARC         Stage = "warc"
	StageHTML         Stage = "html"
	StageComplete     Stage = "complete"
	StageFailed       Stage = "failed"
)

// StageWeights is the fixed set of per-stage weights spec.md §4.8 uses to
// compute the in-flight item's contribution to percent_complete. They sum to
// exactly 100 (invariant P8).
var StageWeights = map[Stage]int{
	StageNavigating:   25,
	StageWaiting:      15,
	StageBehaviors:    20,
	StageScreenshot:   10,
	StagePDF:          10,
	StageWARC:         8,
	StageHTML:         5,
	StageValidating:   3,
	StageInitializing: 2,
	StageLearning:     2,
}
