package model

import "time"

// StrategyConflict records a cross-branch disagreement kept for audit.
// The winning value is already merged into the timeline; the conflict
// entry preserves what the losing branch claimed.
type StrategyConflict struct {
	EventType  EventType `json:"event_type"`
	Entity     string    `json:"entity"`
	RuleDate   time.Time `json:"rule_date"`
	AssistDate time.Time `json:"assisted_date"`
	Winner     SourceStrategy `json:"winner"`
}

// Report is the complete analysis result handed to the caller.
// Rendering it into narrative prose is someone else's job.
type Report struct {
	RunID      string      `json:"run_id"`
	Subject    string      `json:"subject,omitempty"` // Case label, usually the source folder
	AnalyzedAt time.Time   `json:"analyzed_at"`
	Reference  time.Time   `json:"reference_date"` // Contract/anchor date
	State      RunState    `json:"state"`
	Gate       QualityGate `json:"quality_gate"`
	Degraded   bool        `json:"degraded"`
	Strategy   string      `json:"strategy"` // rule, assisted, hybrid
	FromCache  bool        `json:"from_cache,omitempty"`

	Timeline   Timeline           `json:"timeline"`
	Classified []ClassifiedEvent  `json:"classified"`
	Risk       RiskSummary        `json:"risk"`
	Conflicts  []StrategyConflict `json:"conflicts,omitempty"`
	Stages     []StageResult      `json:"stages"`
}
