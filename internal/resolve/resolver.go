// Package resolve converts scanned date anchors into absolute calendar
// dates. Relative and nested anchors resolve through chains of prior
// anchors; resolution is iterative with an explicit visited set, so a
// circular chain terminates with a zero-confidence placeholder instead
// of looping.
package resolve

import (
	"time"

	"github.com/jwyoon/anamna/internal/model"
	"github.com/jwyoon/anamna/internal/score"
)

// blockDistance approximates character distance between anchors in
// different text blocks, for the distance-decay formula
const blockDistance = 4000

// Resolver resolves anchors against each other and an optional run
// reference date
type Resolver struct {
	confidenceThreshold float64
}

// New creates a resolver. threshold marks resolved dates below it as
// low-confidence.
func New(confidenceThreshold float64) *Resolver {
	return &Resolver{confidenceThreshold: confidenceThreshold}
}

// Resolve produces one ResolvedDate per anchor, in document order.
// reference is the fallback base when a relative anchor has no local
// support; a zero reference disables the fallback.
func (r *Resolver) Resolve(anchors []model.Anchor, reference time.Time) []model.ResolvedDate {
	out := make([]model.ResolvedDate, len(anchors))
	done := make([]bool, len(anchors))

	// Absolute anchors first: they are the supports everything else
	// chains onto.
	for i, a := range anchors {
		if a.Kind == model.AnchorAbsolute {
			out[i] = r.resolveAbsolute(i, a)
			done[i] = true
		}
	}

	for i := range anchors {
		if !done[i] {
			r.resolveChain(i, anchors, out, done, reference)
		}
	}

	return out
}

// resolveAbsolute resolves an absolute anchor directly
func (r *Resolver) resolveAbsolute(idx int, a model.Anchor) model.ResolvedDate {
	conf := score.Absolute(a.TwoDigitYear)
	return model.ResolvedDate{
		AnchorIndex:   idx,
		Date:          time.Date(a.Year, time.Month(a.Month), a.Day, 0, 0, 0, 0, time.UTC),
		Confidence:    conf,
		Depth:         0,
		LowConfidence: score.LowConfidence(conf, 0, r.confidenceThreshold),
	}
}

// resolveChain resolves the dependency chain rooted at idx using a
// worklist. Chains deeper than the stack are impossible: each step
// either resolves the top, pushes an unresolved support, or detects
// that the support was already pushed (a cycle).
func (r *Resolver) resolveChain(idx int, anchors []model.Anchor, out []model.ResolvedDate, done []bool, reference time.Time) {
	stack := []int{idx}
	visited := map[int]bool{idx: true}

	for len(stack) > 0 {
		top := stack[len(stack)-1]

		support, found := r.findSupport(top, anchors, out, done)
		switch {
		case found && done[support]:
			out[top] = r.derive(top, support, anchors, out)
			done[top] = true
			stack = stack[:len(stack)-1]

		case found && visited[support]:
			// Circular chain: every member still on the stack gets a
			// zero-confidence placeholder and the walk stops.
			for _, i := range stack {
				out[i] = cyclePlaceholder(i)
				done[i] = true
			}
			return

		case found:
			visited[support] = true
			stack = append(stack, support)

		default:
			out[top] = r.resolveFallback(top, anchors[top], reference)
			done[top] = true
			stack = stack[:len(stack)-1]
		}
	}
}

// findSupport locates the anchor a relative/nested anchor refers to.
// Relative anchors look strictly backward through the document for the
// nearest anchor of the target category. Nested references may point
// either way ("same as the above visit" usually backward, but OCR block
// order is not reliable), preferring the nearest preceding match.
func (r *Resolver) findSupport(idx int, anchors []model.Anchor, out []model.ResolvedDate, done []bool) (int, bool) {
	a := anchors[idx]

	target := model.CategoryUnknown
	bidirectional := false
	switch a.Kind {
	case model.AnchorRelative:
		if a.Relative != nil {
			target = a.Relative.Target
		}
	case model.AnchorNested:
		target = a.NestedTarget
		bidirectional = true
	default:
		return 0, false
	}

	matches := func(j int) bool {
		if j == idx {
			return false
		}
		// A resolved support must actually carry a date; chaining onto
		// a placeholder would launder zero confidence into a real date.
		if done[j] && !out[j].Resolved() {
			return false
		}
		return target == model.CategoryUnknown || anchors[j].Category == target
	}

	for j := idx - 1; j >= 0; j-- {
		if matches(j) {
			return j, true
		}
	}
	if bidirectional {
		for j := idx + 1; j < len(anchors); j++ {
			if matches(j) {
				return j, true
			}
		}
	}
	return 0, false
}

// derive computes the resolved date of anchor idx from its resolved
// support
func (r *Resolver) derive(idx, supportIdx int, anchors []model.Anchor, out []model.ResolvedDate) model.ResolvedDate {
	a := anchors[idx]
	base := out[supportIdx]

	date := base.Date
	if a.Kind == model.AnchorRelative && a.Relative != nil {
		date = applyOffset(base.Date, a.Relative)
	}

	depth := base.Depth + 1
	conf := score.Chain(base.Confidence, 1)
	conf = score.DistanceDecay(conf, anchorDistance(anchors[idx], anchors[supportIdx]))

	return model.ResolvedDate{
		AnchorIndex:   idx,
		Date:          date,
		Confidence:    conf,
		Depth:         depth,
		LowConfidence: score.LowConfidence(conf, depth, r.confidenceThreshold),
	}
}

// resolveFallback resolves a relative anchor against the run reference
// date when no local support exists
func (r *Resolver) resolveFallback(idx int, a model.Anchor, reference time.Time) model.ResolvedDate {
	if reference.IsZero() {
		// Nothing to resolve against: surface as an unresolved,
		// zero-confidence gap rather than dropping the anchor.
		return model.ResolvedDate{AnchorIndex: idx, Confidence: 0, LowConfidence: true}
	}

	date := reference
	if a.Kind == model.AnchorRelative && a.Relative != nil {
		date = applyOffset(reference, a.Relative)
	}

	return model.ResolvedDate{
		AnchorIndex:   idx,
		Date:          date,
		Confidence:    score.FallbackConfidence,
		Depth:         1,
		LowConfidence: score.LowConfidence(score.FallbackConfidence, 1, r.confidenceThreshold),
		UsedFallback:  true,
	}
}

// cyclePlaceholder is the terminal value for anchors on a circular chain
func cyclePlaceholder(idx int) model.ResolvedDate {
	return model.ResolvedDate{
		AnchorIndex:   idx,
		Confidence:    0,
		LowConfidence: true,
		CycleDetected: true,
	}
}

// applyOffset shifts a base date by a parsed relative phrase
func applyOffset(base time.Time, rel *model.RelativeRef) time.Time {
	n := rel.Amount
	if rel.Before {
		n = -n
	}
	switch rel.Unit {
	case model.UnitDays:
		return base.AddDate(0, 0, n)
	case model.UnitWeeks:
		return base.AddDate(0, 0, 7*n)
	case model.UnitMonths:
		return base.AddDate(0, n, 0)
	default:
		return base.AddDate(n, 0, 0)
	}
}

// anchorDistance approximates character distance between two anchors
func anchorDistance(a, b model.Anchor) int {
	if a.Block == b.Block {
		d := a.Offset - b.Offset
		if d < 0 {
			d = -d
		}
		return d
	}
	d := a.Block - b.Block
	if d < 0 {
		d = -d
	}
	return d * blockDistance
}
