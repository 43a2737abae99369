package strategy

import (
	"fmt"
	"strings"
	"time"

	"github.com/jwyoon/anamna/internal/model"
	"github.com/jwyoon/anamna/internal/normalize"
	"github.com/jwyoon/anamna/internal/resolve"
	"github.com/jwyoon/anamna/internal/scan"
)

// RuleBranch is the deterministic extraction path: scan anchors,
// resolve dates, build normalized events. Same input, same output,
// every time.
type RuleBranch struct {
	scanner    *scan.Scanner
	resolver   *resolve.Resolver
	normalizer *normalize.Normalizer
}

// NewRuleBranch creates the rule-based branch
func NewRuleBranch(confidenceThreshold float64, normalizer *normalize.Normalizer) *RuleBranch {
	return &RuleBranch{
		scanner:    scan.New(),
		resolver:   resolve.New(confidenceThreshold),
		normalizer: normalizer,
	}
}

// Extract runs the full rule path. Pre-scanned anchors may be passed in
// to avoid scanning twice; pass nil to scan here.
func (b *RuleBranch) Extract(blocks []model.TextBlock, anchors []model.Anchor, reference time.Time) ([]model.MedicalEvent, error) {
	if len(blocks) == 0 {
		return nil, fmt.Errorf("no text blocks to extract from")
	}
	if anchors == nil {
		anchors = b.scanner.Scan(blocks)
	}

	resolved := b.resolver.Resolve(anchors, reference)

	var events []model.MedicalEvent
	for i, a := range anchors {
		eventType, ok := eventTypeFor(a.Category)
		if !ok {
			continue // Policy/reference anchors are not timeline events
		}

		ev := model.MedicalEvent{
			ID:         fmt.Sprintf("rule-%d-%d", a.Block, a.Offset),
			Date:       resolved[i],
			EventType:  eventType,
			RawEntity:  entityFromContext(a),
			Source:     model.SourceRule,
			Confidence: resolved[i].Confidence,
		}
		events = append(events, b.normalizer.NormalizeEvent(ev))
	}
	return events, nil
}

// ReferenceFromAnchors finds a contract/policy date in the scanned
// anchors, for runs where the caller supplied no reference date
func (b *RuleBranch) ReferenceFromAnchors(blocks []model.TextBlock) (time.Time, bool) {
	anchors := b.scanner.Scan(blocks)
	resolved := b.resolver.Resolve(anchors, time.Time{})
	for i, a := range anchors {
		if a.Category == model.CategoryPolicy && resolved[i].Resolved() {
			return resolved[i].Date, true
		}
	}
	return time.Time{}, false
}

// Anchors exposes the scanner for stages that need the raw anchor list
func (b *RuleBranch) Anchors(blocks []model.TextBlock) []model.Anchor {
	return b.scanner.Scan(blocks)
}

// eventTypeFor maps an anchor category to its timeline event type
func eventTypeFor(c model.AnchorCategory) (model.EventType, bool) {
	switch c {
	case model.CategoryAdmission:
		return model.EventAdmission, true
	case model.CategoryDischarge:
		return model.EventDischarge, true
	case model.CategoryDiagnosis:
		return model.EventDiagnosis, true
	case model.CategorySurgery:
		return model.EventSurgery, true
	case model.CategoryTest:
		return model.EventTest, true
	case model.CategoryVisit, model.CategoryUnknown:
		return model.EventVisit, true
	default:
		return "", false
	}
}

// entityFromContext pulls an entity label out of the anchor's context
// window: the clause containing the date, stripped of the date span
// and leftover digits
func entityFromContext(a model.Anchor) string {
	context := strings.ReplaceAll(a.Context, a.RawText, " ")

	// Split into clauses and keep the longest wordy one near the span.
	best := ""
	for _, clause := range strings.FieldsFunc(context, func(r rune) bool {
		return r == '.' || r == ',' || r == ';' || r == '\n' || r == '(' || r == ')'
	}) {
		clause = strings.TrimSpace(strings.Map(dropDigitRun, clause))
		if len(clause) > len(best) {
			best = clause
		}
	}
	return strings.TrimSpace(best)
}

func dropDigitRun(r rune) rune {
	if r >= '0' && r <= '9' || r == '/' || r == '-' {
		return ' '
	}
	return r
}
