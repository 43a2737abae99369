package model

// Window assignment markers for events that fall outside every
// configured disclosure window
const (
	WindowAfterAnchor = "after-anchor"  // Event dated after the reference date
	WindowOutOfRange  = "out-of-range"  // Older than the widest configured window
)

// DisclosureWindow is one regulatory look-back range, measured in days
// before the anchor reference date. Loaded once per run, read-only after.
type DisclosureWindow struct {
	Key       string `json:"key" yaml:"key"`
	StartDays int    `json:"offset_days_start" yaml:"offset_days_start"`
	EndDays   int    `json:"offset_days_end" yaml:"offset_days_end"`
	Label     string `json:"label" yaml:"label"`
}

// Width returns the window span in days
func (w DisclosureWindow) Width() int {
	return w.EndDays - w.StartDays
}

// Contains reports whether a day-difference falls inside the window
func (w DisclosureWindow) Contains(deltaDays int) bool {
	return deltaDays >= w.StartDays && deltaDays <= w.EndDays
}

// DefaultWindows returns the standard Korean underwriting disclosure
// duties: 3 months, 2 years, 5 years before the contract date
func DefaultWindows() []DisclosureWindow {
	return []DisclosureWindow{
		{Key: "90d", StartDays: 0, EndDays: 90, Label: "3 months"},
		{Key: "730d", StartDays: 0, EndDays: 730, Label: "2 years"},
		{Key: "1825d", StartDays: 0, EndDays: 1825, Label: "5 years"},
	}
}

// SeverityRule maps a diagnosis category to the keywords and codes that
// force severity handling during classification
type SeverityRule struct {
	Category string   `json:"category" yaml:"category"`
	Keywords []string `json:"keywords" yaml:"keywords"`
	Codes    []string `json:"codes,omitempty" yaml:"codes,omitempty"` // Code prefixes (e.g., "C" covers C00-C97)
}

// ClassifiedEvent pairs a timeline event with its window assignment
type ClassifiedEvent struct {
	Event                   MedicalEvent `json:"event"`
	Window                  string       `json:"window"` // Window key, after-anchor, or out-of-range
	WindowLabel             string       `json:"window_label,omitempty"`
	DeltaDays               int          `json:"delta_days"` // referenceDate - eventDate
	DisclosureRequired      bool         `json:"disclosure_required"`
	SeverityOverrideApplied bool         `json:"severity_override_applied"`
	SeverityCategory        string       `json:"severity_category,omitempty"`
}

// RiskLevel is the aggregate risk classification for a run
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// RiskSummary aggregates classification outcomes for the whole timeline
type RiskSummary struct {
	Level             RiskLevel      `json:"level"`
	DisclosureCount   int            `json:"disclosure_count"`
	OverrideCount     int            `json:"override_count"`
	AfterAnchorCount  int            `json:"after_anchor_count"`
	OutOfRangeCount   int            `json:"out_of_range_count"`
	EventsPerWindow   map[string]int `json:"events_per_window,omitempty"`
	SeverityCategories []string      `json:"severity_categories,omitempty"`
}
