// Package assemble merges extracted event sets into a single ordered,
// deduplicated timeline and attaches data-quality warnings.
package assemble

import (
	"fmt"
	"sort"
	"time"

	"github.com/jwyoon/anamna/internal/model"
	"github.com/jwyoon/anamna/internal/score"
)

// Assembler builds timelines from one or more strategy-branch event sets
type Assembler struct {
	toleranceDays int
}

// New creates an assembler. toleranceDays is the dedupe date tolerance
// (events within it are duplicate candidates).
func New(toleranceDays int) *Assembler {
	if toleranceDays < 0 {
		toleranceDays = 0
	}
	return &Assembler{toleranceDays: toleranceDays}
}

// Assemble merges the given event sets into one valid timeline.
// The operation is idempotent: assembling a timeline's own events again
// yields an identical timeline.
func (a *Assembler) Assemble(sets ...[]model.MedicalEvent) *model.Timeline {
	var all []model.MedicalEvent
	var warnings []model.QualityWarning

	for _, set := range sets {
		for _, ev := range set {
			if !ev.Date.Resolved() {
				// Unresolved dates cannot be ordered. Surface them as
				// warnings instead of silently dropping or guessing.
				warnings = append(warnings, model.QualityWarning{
					Kind:    model.WarnUndatedEvent,
					Message: fmt.Sprintf("%s event %q has no resolvable date", ev.EventType, ev.RawEntity),
					EventID: ev.ID,
				})
				continue
			}
			all = append(all, ev)
		}
	}

	sortEvents(all)
	merged := a.dedupe(all)
	warnings = append(warnings, a.checkOrderLogic(merged)...)
	warnings = append(warnings, lowConfidenceWarnings(merged)...)

	return &model.Timeline{Events: merged, Warnings: warnings}
}

// dedupe collapses events sharing (date±tolerance, type, entity).
// The higher-confidence event survives; exact ties keep the rule-based
// one, so merges are reproducible across runs.
func (a *Assembler) dedupe(events []model.MedicalEvent) []model.MedicalEvent {
	var kept []model.MedicalEvent
	for _, ev := range events {
		collided := false
		for i := range kept {
			if a.duplicates(kept[i], ev) {
				kept[i] = score.PreferRule(kept[i], ev)
				collided = true
				break
			}
		}
		if !collided {
			kept = append(kept, ev)
		}
	}
	// Winners may carry earlier dates than the losers they replaced.
	sortEvents(kept)
	return kept
}

// duplicates reports whether two events are the same occurrence
func (a *Assembler) duplicates(x, y model.MedicalEvent) bool {
	if x.EventType != y.EventType || x.Entity != y.Entity {
		return false
	}
	return dayDistance(x.Date.Date, y.Date.Date) <= a.toleranceDays
}

// checkOrderLogic flags logical-order violations, e.g., a discharge
// dated before its matching admission. Violations are warnings, never
// corrections.
func (a *Assembler) checkOrderLogic(events []model.MedicalEvent) []model.QualityWarning {
	var warnings []model.QualityWarning
	for _, dis := range events {
		if dis.EventType != model.EventDischarge {
			continue
		}
		adm, ok := nearestAdmission(events, dis)
		if !ok {
			continue
		}
		if dis.Date.Date.Before(adm.Date.Date) {
			warnings = append(warnings, model.QualityWarning{
				Kind: model.WarnOrderViolation,
				Message: fmt.Sprintf("discharge %s precedes admission %s for %q",
					dis.Date.Date.Format("2006-01-02"), adm.Date.Date.Format("2006-01-02"), dis.Entity),
				EventID: dis.ID,
			})
		}
	}
	return warnings
}

// nearestAdmission finds the admission for the same entity closest in
// time to the discharge
func nearestAdmission(events []model.MedicalEvent, dis model.MedicalEvent) (model.MedicalEvent, bool) {
	var best model.MedicalEvent
	bestDist := -1
	for _, ev := range events {
		if ev.EventType != model.EventAdmission || ev.Entity != dis.Entity {
			continue
		}
		d := dayDistance(ev.Date.Date, dis.Date.Date)
		if bestDist < 0 || d < bestDist {
			best, bestDist = ev, d
		}
	}
	return best, bestDist >= 0
}

// lowConfidenceWarnings surfaces events whose resolution was flagged
func lowConfidenceWarnings(events []model.MedicalEvent) []model.QualityWarning {
	var warnings []model.QualityWarning
	for _, ev := range events {
		if ev.Date.CycleDetected {
			warnings = append(warnings, model.QualityWarning{
				Kind:    model.WarnLowConfidence,
				Message: fmt.Sprintf("date for %s %q came from a circular reference chain", ev.EventType, ev.Entity),
				EventID: ev.ID,
			})
		} else if ev.Date.LowConfidence {
			warnings = append(warnings, model.QualityWarning{
				Kind:    model.WarnLowConfidence,
				Message: fmt.Sprintf("low-confidence date %s for %s %q", ev.Date.Date.Format("2006-01-02"), ev.EventType, ev.Entity),
				EventID: ev.ID,
			})
		}
	}
	return warnings
}

// sortEvents orders events by (date, type, entity) so the ordering
// invariant holds and equal-date ordering is deterministic
func sortEvents(events []model.MedicalEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].Date.Date.Equal(events[j].Date.Date) {
			return events[i].Date.Date.Before(events[j].Date.Date)
		}
		if events[i].EventType != events[j].EventType {
			return events[i].EventType < events[j].EventType
		}
		return events[i].Entity < events[j].Entity
	})
}

// dayDistance returns the absolute whole-day distance between dates
func dayDistance(a, b time.Time) int {
	d := int(a.Sub(b).Hours() / 24)
	if d < 0 {
		d = -d
	}
	return d
}
