// Package classify buckets timeline events into regulatory disclosure
// windows measured backward from an anchor reference date, applies
// category severity overrides, and derives the aggregate risk level.
package classify

import (
	"fmt"
	"sort"
	"time"

	"github.com/jwyoon/anamna/internal/model"
)

// Classifier assigns events to disclosure windows. Window and severity
// configuration is loaded once per run and read-only afterwards.
type Classifier struct {
	windows  []model.DisclosureWindow // Sorted ascending by width
	severity []model.SeverityRule
}

// New creates a classifier. Windows must satisfy start < end; the
// constructor rejects anything else so overlap ambiguity cannot exist
// at classification time.
func New(windows []model.DisclosureWindow, severity []model.SeverityRule) (*Classifier, error) {
	if len(windows) == 0 {
		windows = model.DefaultWindows()
	}
	for _, w := range windows {
		if w.StartDays >= w.EndDays {
			return nil, fmt.Errorf("window %q: start %d must be below end %d", w.Key, w.StartDays, w.EndDays)
		}
	}

	sorted := make([]model.DisclosureWindow, len(windows))
	copy(sorted, windows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Width() < sorted[j].Width()
	})

	return &Classifier{windows: sorted, severity: severity}, nil
}

// Classify assigns every timeline event to exactly one bucket and
// derives the risk summary
func (c *Classifier) Classify(tl *model.Timeline, reference time.Time) ([]model.ClassifiedEvent, model.RiskSummary) {
	classified := make([]model.ClassifiedEvent, 0, len(tl.Events))
	for _, ev := range tl.Events {
		classified = append(classified, c.classifyEvent(ev, reference))
	}
	return classified, c.summarize(classified)
}

// classifyEvent assigns one event. Windows are checked in ascending
// width order and the first containing window wins, so each event lands
// in exactly one window even when configured ranges nest.
func (c *Classifier) classifyEvent(ev model.MedicalEvent, reference time.Time) model.ClassifiedEvent {
	delta := daysBetween(ev.Date.Date, reference)

	ce := model.ClassifiedEvent{Event: ev, DeltaDays: delta}

	if delta < 0 {
		ce.Window = model.WindowAfterAnchor
		return ce
	}

	for _, w := range c.windows {
		if w.Contains(delta) {
			ce.Window = w.Key
			ce.WindowLabel = w.Label
			ce.DisclosureRequired = true
			// Severity is noted even for events already in a window,
			// but the override flag stays false: the override only
			// widens coverage, it never re-brackets an event the
			// general configuration already catches.
			if category, ok := c.severityMatch(ev); ok {
				ce.SeverityCategory = category
			}
			return ce
		}
	}

	// Outside every configured window. High-severity categories are
	// still disclosable within the widest window's span.
	if category, ok := c.severityMatch(ev); ok {
		widest := c.windows[len(c.windows)-1]
		ce.Window = widest.Key
		ce.WindowLabel = widest.Label
		ce.DisclosureRequired = true
		ce.SeverityOverrideApplied = true
		ce.SeverityCategory = category
		return ce
	}

	ce.Window = model.WindowOutOfRange
	return ce
}

// severityMatch checks the event's entity and codes against the
// high-severity category rules
func (c *Classifier) severityMatch(ev model.MedicalEvent) (string, bool) {
	for _, rule := range c.severity {
		if matchRule(rule, ev) {
			return rule.Category, true
		}
	}
	return "", false
}

// summarize derives the aggregate risk level from classification counts
func (c *Classifier) summarize(classified []model.ClassifiedEvent) model.RiskSummary {
	sum := model.RiskSummary{EventsPerWindow: make(map[string]int)}
	categories := make(map[string]bool)

	for _, ce := range classified {
		sum.EventsPerWindow[ce.Window]++
		switch ce.Window {
		case model.WindowAfterAnchor:
			sum.AfterAnchorCount++
		case model.WindowOutOfRange:
			sum.OutOfRangeCount++
		}
		if ce.DisclosureRequired {
			sum.DisclosureCount++
		}
		if ce.SeverityOverrideApplied {
			sum.OverrideCount++
		}
		if ce.SeverityCategory != "" {
			categories[ce.SeverityCategory] = true
		}
	}

	for cat := range categories {
		sum.SeverityCategories = append(sum.SeverityCategories, cat)
	}
	sort.Strings(sum.SeverityCategories)

	// Threshold rules: any severity signal is high risk, any
	// disclosure duty at all is at least medium.
	switch {
	case sum.OverrideCount > 0 || len(sum.SeverityCategories) > 0:
		sum.Level = model.RiskHigh
	case sum.DisclosureCount >= 5:
		sum.Level = model.RiskHigh
	case sum.DisclosureCount > 0:
		sum.Level = model.RiskMedium
	default:
		sum.Level = model.RiskLow
	}
	return sum
}

// daysBetween returns whole days from event to reference (positive when
// the event precedes the reference)
func daysBetween(event, reference time.Time) int {
	return int(reference.Sub(event).Hours() / 24)
}
