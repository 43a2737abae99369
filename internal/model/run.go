package model

import "time"

// RunState is the pipeline state machine position for one run
type RunState string

const (
	StateInit       RunState = "INIT"
	StateIngested   RunState = "INGESTED"
	StateAnchored   RunState = "ANCHORED"
	StateResolved   RunState = "RESOLVED"
	StateAssembled  RunState = "ASSEMBLED"
	StateClassified RunState = "CLASSIFIED"
	StateScored     RunState = "SCORED"
	StateDone       RunState = "DONE"
	StateFailed     RunState = "FAILED"
	StateAborted    RunState = "ABORTED"
)

// Terminal reports whether the state ends the run
func (s RunState) Terminal() bool {
	return s == StateDone || s == StateFailed || s == StateAborted
}

// Stage names one unit of pipeline work
type Stage string

const (
	StageIngest   Stage = "ingest"
	StageAnchor   Stage = "anchor"
	StageResolve  Stage = "resolve" // Dual-strategy extraction and resolution
	StageAssemble Stage = "assemble"
	StageClassify Stage = "classify"
	StageScore    Stage = "score"
)

// QualityGate controls how strictly the run treats degraded results
type QualityGate string

const (
	GateDraft    QualityGate = "draft"    // Substitute placeholders, keep going
	GateStandard QualityGate = "standard" // Flag degradation, fail only hard errors
	GateRigorous QualityGate = "rigorous" // Degradation and low confidence fail the stage
)

// ValidGate reports whether the string names a known quality gate
func ValidGate(g QualityGate) bool {
	switch g {
	case GateDraft, GateStandard, GateRigorous:
		return true
	}
	return false
}

// StageResult records the outcome of one stage for audit
type StageResult struct {
	Stage       Stage         `json:"stage"`
	OK          bool          `json:"ok"`
	Degraded    bool          `json:"degraded,omitempty"`
	Placeholder bool          `json:"placeholder,omitempty"` // Draft gate substituted an empty result
	Attempts    int           `json:"attempts"`
	Elapsed     time.Duration `json:"elapsed_ns"`
	Error       string        `json:"error,omitempty"`
}

// PipelineRun tracks one analysis from start to result delivery.
// Only the pipeline state machine mutates it; it is discarded after
// the report is handed back.
type PipelineRun struct {
	ID           string        `json:"id"`
	State        RunState      `json:"state"`
	Gate         QualityGate   `json:"quality_gate"`
	StageResults []StageResult `json:"stage_results"`
	Degraded     bool          `json:"degraded"`
	StartedAt    time.Time     `json:"started_at"`
	CompletedAt  time.Time     `json:"completed_at,omitempty"`
}

// RecordStage appends a stage outcome and propagates degradation
func (r *PipelineRun) RecordStage(res StageResult) {
	r.StageResults = append(r.StageResults, res)
	if res.Degraded {
		r.Degraded = true
	}
}
