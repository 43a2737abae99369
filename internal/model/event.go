package model

import "time"

// SourceStrategy identifies which extraction branch produced an event
type SourceStrategy string

const (
	SourceRule     SourceStrategy = "rule"     // Deterministic rule-based extraction
	SourceAssisted SourceStrategy = "assisted" // External model-assisted extraction
)

// EventType categorizes a medical event on the timeline
type EventType string

const (
	EventAdmission    EventType = "admission"
	EventDischarge    EventType = "discharge"
	EventVisit        EventType = "visit"
	EventDiagnosis    EventType = "diagnosis"
	EventSurgery      EventType = "surgery"
	EventTest         EventType = "test"
	EventPrescription EventType = "prescription"
)

// ResolvedDate is the calendar resolution of one anchor.
// Values are never mutated after creation; a correction is a new value.
type ResolvedDate struct {
	AnchorIndex   int       `json:"anchor_index"`          // Index into the run's anchor list
	Date          time.Time `json:"date"`                  // Zero when the anchor could not resolve
	Confidence    float64   `json:"confidence"`            // [0,1], decays with resolution depth
	Depth         int       `json:"depth"`                 // Relative-reference hops taken
	LowConfidence bool      `json:"low_confidence"`        // Depth or score past threshold
	CycleDetected bool      `json:"cycle_detected,omitempty"`
	UsedFallback  bool      `json:"used_fallback,omitempty"` // Resolved against the run reference date
}

// Resolved reports whether the anchor produced a usable calendar date
func (d ResolvedDate) Resolved() bool {
	return !d.Date.IsZero()
}

// MedicalEvent is one dated clinical event extracted from the document
type MedicalEvent struct {
	ID         string         `json:"id"`
	Date       ResolvedDate   `json:"date"`
	EventType  EventType      `json:"event_type"`
	Entity     string         `json:"entity"`               // Normalized facility/payer/diagnosis label
	RawEntity  string         `json:"raw_entity,omitempty"` // Label as it appeared in text
	Codes      []string       `json:"codes,omitempty"`      // Diagnosis codes found near the event
	Source     SourceStrategy `json:"source"`
	Confidence float64        `json:"confidence"`
}

// WarningKind classifies a data-quality warning
type WarningKind string

const (
	WarnOrderViolation WarningKind = "order_violation" // e.g., discharge before admission
	WarnUndatedEvent   WarningKind = "undated_event"   // Anchor never resolved to a date
	WarnDateCoverage   WarningKind = "date_coverage"   // Date-like span produced no event
	WarnLowConfidence  WarningKind = "low_confidence"
)

// QualityWarning is a non-fatal finding attached to a timeline.
// Warnings surface problems to the caller; they never trigger silent fixes.
type QualityWarning struct {
	Kind    WarningKind `json:"kind"`
	Message string      `json:"message"`
	EventID string      `json:"event_id,omitempty"`
}

// Timeline is the ordered, deduplicated event sequence for one run.
// Invariant: events are in non-decreasing date order, and no two events
// share (date±tolerance, type, entity).
type Timeline struct {
	Events   []MedicalEvent   `json:"events"`
	Warnings []QualityWarning `json:"warnings,omitempty"`
}
