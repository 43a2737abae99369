package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/jwyoon/anamna/internal/model"
	"github.com/jwyoon/anamna/internal/score"
)

// BranchResult carries one branch's outcome; the engine joins branches
// with explicit per-branch success/failure instead of racing promises
type BranchResult struct {
	Source  model.SourceStrategy
	Events  []model.MedicalEvent
	Err     error
	Elapsed time.Duration
}

// Outcome is the merged result of strategy execution
type Outcome struct {
	Strategy   Strategy
	Complexity Complexity
	Events     []model.MedicalEvent
	Conflicts  []model.StrategyConflict
	Degraded   bool // Assisted branch failed; rule result stands alone
}

// Engine runs the selected extraction branches and fuses their outputs
type Engine struct {
	rule     *RuleBranch
	assisted *AssistedBranch
	selector *Selector
}

// NewEngine creates the dual-strategy engine
func NewEngine(rule *RuleBranch, assisted *AssistedBranch, selector *Selector) *Engine {
	return &Engine{
		rule:     rule,
		assisted: assisted,
		selector: selector,
	}
}

// Run selects a strategy and executes it. anchors is the pre-scanned
// anchor list for the rule branch.
//
// Failure semantics: an assisted failure degrades the run to the rule
// result; a rule failure is a defect and fails the whole stage.
func (e *Engine) Run(ctx context.Context, blocks []model.TextBlock, anchors []model.Anchor, reference time.Time) (*Outcome, error) {
	selected, complexity := e.selector.Select(blocks)
	if !e.assisted.Enabled() {
		selected = StrategyRule
	}

	out := &Outcome{Strategy: selected, Complexity: complexity}

	switch selected {
	case StrategyRule:
		res := e.runRule(blocks, anchors, reference)
		if res.Err != nil {
			return nil, model.NewPipelineError(model.ErrKindRuleStrategy, model.StageResolve, res.Err)
		}
		out.Events = res.Events

	case StrategyAssisted:
		res := e.runAssisted(ctx, blocks)
		if res.Err != nil {
			// The service is allowed to fail; the deterministic path
			// is the safety net.
			fallback := e.runRule(blocks, anchors, reference)
			if fallback.Err != nil {
				return nil, model.NewPipelineError(model.ErrKindRuleStrategy, model.StageResolve, fallback.Err)
			}
			out.Events = fallback.Events
			out.Degraded = true
		} else {
			out.Events = res.Events
		}

	case StrategyHybrid:
		ruleRes, assistRes := e.runBoth(ctx, blocks, anchors, reference)
		if ruleRes.Err != nil {
			return nil, model.NewPipelineError(model.ErrKindRuleStrategy, model.StageResolve, ruleRes.Err)
		}
		if assistRes.Err != nil {
			out.Events = ruleRes.Events
			out.Degraded = true
		} else {
			out.Events, out.Conflicts = e.merge(ruleRes.Events, assistRes.Events)
		}

	default:
		return nil, fmt.Errorf("unhandled strategy %v", selected)
	}

	return out, nil
}

// runRule executes the deterministic branch
func (e *Engine) runRule(blocks []model.TextBlock, anchors []model.Anchor, reference time.Time) BranchResult {
	start := time.Now()
	events, err := e.rule.Extract(blocks, anchors, reference)
	return BranchResult{
		Source:  model.SourceRule,
		Events:  events,
		Err:     err,
		Elapsed: time.Since(start),
	}
}

// runAssisted executes the external branch
func (e *Engine) runAssisted(ctx context.Context, blocks []model.TextBlock) BranchResult {
	start := time.Now()
	events, err := e.assisted.Extract(ctx, blocks)
	return BranchResult{
		Source:  model.SourceAssisted,
		Events:  events,
		Err:     err,
		Elapsed: time.Since(start),
	}
}

// runBoth executes the branches concurrently and waits for both.
// One branch failing never blocks the other's completion.
func (e *Engine) runBoth(ctx context.Context, blocks []model.TextBlock, anchors []model.Anchor, reference time.Time) (BranchResult, BranchResult) {
	ruleCh := make(chan BranchResult, 1)
	assistCh := make(chan BranchResult, 1)

	go func() { ruleCh <- e.runRule(blocks, anchors, reference) }()
	go func() { assistCh <- e.runAssisted(ctx, blocks) }()

	return <-ruleCh, <-assistCh
}

// merge fuses the branch outputs by confidence. For events both
// branches report (same type and entity, nearest dates), the higher
// confidence wins and exact ties prefer the rule branch; disagreeing
// dates are recorded as conflicts with the winner propagated.
func (e *Engine) merge(ruleEvents, assistEvents []model.MedicalEvent) ([]model.MedicalEvent, []model.StrategyConflict) {
	merged := make([]model.MedicalEvent, len(ruleEvents))
	copy(merged, ruleEvents)

	var conflicts []model.StrategyConflict

	for _, ae := range assistEvents {
		idx := matchEvent(merged, ae, conflictWindowDays)
		if idx < 0 {
			merged = append(merged, ae)
			continue
		}

		re := merged[idx]
		winner := score.PreferRule(re, ae)
		if !re.Date.Date.Equal(ae.Date.Date) {
			conflicts = append(conflicts, model.StrategyConflict{
				EventType:  re.EventType,
				Entity:     re.Entity,
				RuleDate:   re.Date.Date,
				AssistDate: ae.Date.Date,
				Winner:     winner.Source,
			})
		}
		merged[idx] = winner
	}

	return merged, conflicts
}

// conflictWindowDays bounds how far apart two branch dates can be and
// still count as the same semantic event in disagreement. Beyond it
// they are simply different events and both survive.
const conflictWindowDays = 30

// matchEvent finds the closest-dated rule event with the same semantic
// identity (type, entity) within maxDays. Returns -1 when the branches
// do not overlap on this event.
func matchEvent(events []model.MedicalEvent, target model.MedicalEvent, maxDays int) int {
	best := -1
	bestDays := 0
	for i, ev := range events {
		if ev.Source != model.SourceRule {
			continue
		}
		if ev.EventType != target.EventType || ev.Entity != target.Entity {
			continue
		}
		days := absDays(ev.Date.Date.Sub(target.Date.Date))
		if days > maxDays {
			continue
		}
		if best < 0 || days < bestDays {
			best, bestDays = i, days
		}
	}
	return best
}

func absDays(d time.Duration) int {
	days := int(d.Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days
}
