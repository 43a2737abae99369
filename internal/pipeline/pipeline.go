// Package pipeline sequences the analysis stages through an explicit
// state machine: timeouts and bounded retries per stage, quality gates
// deciding how much degradation a run tolerates, and cooperative abort
// checked at stage boundaries.
package pipeline

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jwyoon/anamna/internal/assemble"
	"github.com/jwyoon/anamna/internal/cache"
	"github.com/jwyoon/anamna/internal/classify"
	"github.com/jwyoon/anamna/internal/llm"
	"github.com/jwyoon/anamna/internal/model"
	"github.com/jwyoon/anamna/internal/normalize"
	"github.com/jwyoon/anamna/internal/strategy"
	"github.com/jwyoon/anamna/internal/worker"
)

// Pipeline orchestrates the complete analysis for one or more runs.
// It holds only read-only configuration and the shared caches; each
// run's mutable state lives in its own PipelineRun.
type Pipeline struct {
	engine     *strategy.Engine
	rule       *strategy.RuleBranch
	assembler  *assemble.Assembler
	classifier *classify.Classifier
	results    cache.Cache // nil when caching is disabled
	config     *model.Config
}

// New creates a pipeline from configuration
func New(cfg *model.Config) (*Pipeline, error) {
	if !model.ValidGate(cfg.Run.QualityGate) {
		return nil, fmt.Errorf("unknown quality gate %q", cfg.Run.QualityGate)
	}

	classifier, err := classify.New(cfg.Windows, cfg.Severity)
	if err != nil {
		return nil, fmt.Errorf("window configuration: %w", err)
	}

	normalizer := normalize.New()
	if cfg.Run.CodebookPath != "" {
		if err := normalizer.LoadCodebook(cfg.Run.CodebookPath); err != nil {
			return nil, err
		}
	}
	ruleBranch := strategy.NewRuleBranch(cfg.Run.ConfidenceThreshold, normalizer)

	var assisted *strategy.AssistedBranch
	if cfg.LLM.Provider != "" {
		provider, err := llm.NewProvider(llm.ConfigFromModel(cfg.LLM))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to initialize LLM provider: %v\n", err)
		} else if provider != nil {
			prompts := cache.NewPromptCache(cfg.Cache.PromptTTL)
			limiter := worker.NewLimiter(cfg.LLM.RatePerSec, cfg.LLM.RateBurst)
			assisted = strategy.NewAssistedBranch(provider, normalizer, prompts, limiter, cfg)
		}
	}

	var results cache.Cache
	if cfg.Cache.Enabled {
		if cfg.Cache.Dir != "" {
			results = cache.NewLayeredCache(cfg.Cache.MaxEntries, cfg.Cache.Dir, cfg.Cache.DiskTTL)
		} else if mem, err := cache.NewMemoryCache(cfg.Cache.MaxEntries); err == nil {
			results = mem
		}
	}

	return &Pipeline{
		engine:     strategy.NewEngine(ruleBranch, assisted, strategy.NewSelector(cfg.Strategy)),
		rule:       ruleBranch,
		assembler:  assemble.New(cfg.Run.DedupeToleranceDays),
		classifier: classifier,
		results:    results,
		config:     cfg,
	}, nil
}

// Options are the per-run knobs
type Options struct {
	// Subject labels the case in the report
	Subject string

	// Reference is the contract/anchor date. Zero means: detect a
	// policy date from the document, and fail ingest if none exists.
	Reference time.Time
}

// Analyze runs the whole pipeline for one case and returns the report.
// Callers always get either a completed/degraded report with explicit
// quality flags or a structured PipelineError - never a silent partial.
func (p *Pipeline) Analyze(ctx context.Context, subject string, blocks []model.TextBlock) (*model.Report, error) {
	return p.AnalyzeWithOptions(ctx, blocks, Options{Subject: subject})
}

// AnalyzeWithOptions is Analyze with explicit run options
func (p *Pipeline) AnalyzeWithOptions(ctx context.Context, blocks []model.TextBlock, opts Options) (*model.Report, error) {
	run := &model.PipelineRun{
		ID:        newRunID(),
		State:     model.StateInit,
		Gate:      p.config.Run.QualityGate,
		StartedAt: time.Now().UTC(),
	}

	key := cache.ResultKey(blocks, opts.Reference, run.Gate, p.config.LLM.Provider)
	if p.results != nil {
		if data, found := p.results.Get(key); found {
			var report model.Report
			if err := json.Unmarshal(data, &report); err == nil {
				report.FromCache = true
				return &report, nil
			}
		}
	}

	report, err := p.execute(ctx, run, blocks, opts)
	if err != nil {
		return nil, err
	}

	if p.results != nil && run.State == model.StateDone {
		if data, err := json.Marshal(report); err == nil {
			_ = p.results.Set(key, data, 0)
		}
	}
	return report, nil
}

// execute walks the run through the state machine
func (p *Pipeline) execute(ctx context.Context, run *model.PipelineRun, blocks []model.TextBlock, opts Options) (*model.Report, error) {
	report := &model.Report{
		RunID:      run.ID,
		Subject:    opts.Subject,
		AnalyzedAt: run.StartedAt,
		Gate:       run.Gate,
	}

	// INGESTED: validate the input. Fatal on failure, no retry can fix
	// an empty document.
	if err := p.checkAbort(ctx, run, report); err != nil {
		return report, nil
	}
	reference, err := p.ingest(blocks, opts)
	if err != nil {
		run.State = model.StateFailed
		return nil, model.NewPipelineError(model.ErrKindInput, model.StageIngest, err)
	}
	run.State = model.StateIngested
	report.Reference = reference

	// ANCHORED: deterministic scan, shared by complexity scoring and
	// the date-coverage audit.
	if err := p.checkAbort(ctx, run, report); err != nil {
		return report, nil
	}
	var anchors []model.Anchor
	stageErr := p.runStage(ctx, run, model.StageAnchor, func(context.Context) error {
		anchors = p.rule.Anchors(blocks)
		return nil
	})
	if stageErr != nil {
		if err := p.gateStageFailure(run, model.StageAnchor, stageErr); err != nil {
			return nil, err
		}
		anchors = nil // Draft placeholder: empty anchor set
	}
	run.State = model.StateAnchored

	// RESOLVED: dual-strategy extraction. The engine owns branch
	// concurrency, fallback, and degradation; retries here would
	// re-invoke the external service, so the stage runs once.
	if err := p.checkAbort(ctx, run, report); err != nil {
		return report, nil
	}
	var outcome *strategy.Outcome
	stageErr = p.runStageOnce(ctx, run, model.StageResolve, func(sctx context.Context) error {
		var err error
		outcome, err = p.engine.Run(sctx, blocks, anchors, reference)
		return err
	})
	if stageErr != nil {
		if err := p.gateStageFailure(run, model.StageResolve, stageErr); err != nil {
			return nil, err
		}
		outcome = &strategy.Outcome{Strategy: strategy.StrategyRule} // Draft placeholder
	}
	run.State = model.StateResolved
	report.Strategy = outcome.Strategy.String()
	report.Conflicts = outcome.Conflicts
	if outcome.Degraded {
		run.Degraded = true
		if run.Gate == model.GateRigorous {
			run.State = model.StateFailed
			return nil, model.NewPipelineError(model.ErrKindPartialStrategy, model.StageResolve,
				fmt.Errorf("assisted branch failed under rigorous gate"))
		}
	}

	// ASSEMBLED: merge, order, dedupe, audit.
	if err := p.checkAbort(ctx, run, report); err != nil {
		return report, nil
	}
	var timeline *model.Timeline
	stageErr = p.runStage(ctx, run, model.StageAssemble, func(context.Context) error {
		timeline = p.assembler.Assemble(outcome.Events)
		timeline.Warnings = append(timeline.Warnings, auditDateCoverage(anchors, timeline)...)
		return nil
	})
	if stageErr != nil {
		if err := p.gateStageFailure(run, model.StageAssemble, stageErr); err != nil {
			return nil, err
		}
		timeline = &model.Timeline{} // Draft placeholder
	}
	run.State = model.StateAssembled
	report.Timeline = *timeline

	// CLASSIFIED: disclosure windows and severity overrides.
	if err := p.checkAbort(ctx, run, report); err != nil {
		return report, nil
	}
	stageErr = p.runStage(ctx, run, model.StageClassify, func(context.Context) error {
		classified, risk := p.classifier.Classify(timeline, reference)
		report.Classified = classified
		report.Risk = risk
		return nil
	})
	if stageErr != nil {
		if err := p.gateStageFailure(run, model.StageClassify, stageErr); err != nil {
			return nil, err
		}
		report.Classified = nil // Draft placeholder
		report.Risk = model.RiskSummary{Level: model.RiskLow}
	}
	run.State = model.StateClassified

	// SCORED: quality-gate evaluation over the finished result.
	if err := p.checkAbort(ctx, run, report); err != nil {
		return report, nil
	}
	if err := p.scoreQuality(run, report); err != nil {
		run.State = model.StateFailed
		return nil, err
	}
	run.State = model.StateScored

	run.State = model.StateDone
	run.CompletedAt = time.Now().UTC()
	report.State = run.State
	report.Degraded = run.Degraded
	report.Stages = run.StageResults
	return report, nil
}

// ingest validates input and settles the reference date
func (p *Pipeline) ingest(blocks []model.TextBlock, opts Options) (time.Time, error) {
	nonEmpty := false
	for _, b := range blocks {
		if len(b.Text) > 0 {
			nonEmpty = true
			break
		}
	}
	if !nonEmpty {
		return time.Time{}, fmt.Errorf("input contains no text")
	}

	if !opts.Reference.IsZero() {
		return opts.Reference, nil
	}
	if ref, ok := p.rule.ReferenceFromAnchors(blocks); ok {
		return ref, nil
	}
	return time.Time{}, fmt.Errorf("no reference date given and none found in document")
}

// runStage executes an idempotent stage with timeout and bounded retry
func (p *Pipeline) runStage(ctx context.Context, run *model.PipelineRun, stage model.Stage, fn func(context.Context) error) error {
	return p.run(ctx, run, stage, fn, p.config.Run.MaxRetries)
}

// runStageOnce executes a stage whose re-execution would repeat side
// effects (external calls); it gets the timeout but no retries
func (p *Pipeline) runStageOnce(ctx context.Context, run *model.PipelineRun, stage model.Stage, fn func(context.Context) error) error {
	return p.run(ctx, run, stage, fn, 0)
}

func (p *Pipeline) run(ctx context.Context, run *model.PipelineRun, stage model.Stage, fn func(context.Context) error, retries int) error {
	start := time.Now()
	var err error
	attempts := 0

	for attempt := 0; attempt <= retries; attempt++ {
		attempts++
		sctx := ctx
		var cancel context.CancelFunc
		if p.config.Run.StageTimeout > 0 {
			sctx, cancel = context.WithTimeout(ctx, p.config.Run.StageTimeout)
		}
		err = fn(sctx)
		if cancel != nil {
			cancel()
		}
		if err == nil || ctx.Err() != nil {
			break
		}
	}

	res := model.StageResult{
		Stage:    stage,
		OK:       err == nil,
		Attempts: attempts,
		Elapsed:  time.Since(start),
	}
	if err != nil {
		res.Error = err.Error()
	}
	run.RecordStage(res)
	return err
}

// gateStageFailure applies the quality gate to a failed stage. A nil
// return means the draft gate accepted a placeholder and the run should
// continue; otherwise the returned error fails the run.
func (p *Pipeline) gateStageFailure(run *model.PipelineRun, stage model.Stage, stageErr error) error {
	if model.IsKind(stageErr, model.ErrKindRuleStrategy) {
		// A deterministic branch failing is a defect, not a condition
		// any gate should paper over.
		run.State = model.StateFailed
		return stageErr
	}

	if run.Gate == model.GateDraft {
		run.Degraded = true
		if n := len(run.StageResults); n > 0 {
			run.StageResults[n-1].Placeholder = true
		}
		return nil
	}

	run.State = model.StateFailed
	var pe *model.PipelineError
	if errors.As(stageErr, &pe) {
		return pe
	}
	return model.NewPipelineError(model.ErrKindStageFailure, stage, stageErr)
}

// scoreQuality applies the gate to the finished result
func (p *Pipeline) scoreQuality(run *model.PipelineRun, report *model.Report) error {
	low := 0
	for _, ev := range report.Timeline.Events {
		if ev.Date.LowConfidence {
			low++
		}
	}

	lowRatio := 0.0
	if len(report.Timeline.Events) > 0 {
		lowRatio = float64(low) / float64(len(report.Timeline.Events))
	}

	if run.Gate == model.GateRigorous && (lowRatio > 0.5 || (low > 0 && len(report.Timeline.Events) == low)) {
		return model.NewPipelineError(model.ErrKindLowConfidence, model.StageScore,
			fmt.Errorf("%d of %d events are low confidence", low, len(report.Timeline.Events)))
	}

	if low > 0 {
		report.Timeline.Warnings = append(report.Timeline.Warnings, model.QualityWarning{
			Kind:    model.WarnLowConfidence,
			Message: fmt.Sprintf("%d of %d events carry low-confidence dates", low, len(report.Timeline.Events)),
		})
	}

	run.RecordStage(model.StageResult{Stage: model.StageScore, OK: true, Attempts: 1})
	return nil
}

// checkAbort polls the run context at a stage boundary. An aborted run
// keeps the stage results produced so far and reports ABORTED, it never
// returns an error to the caller.
func (p *Pipeline) checkAbort(ctx context.Context, run *model.PipelineRun, report *model.Report) error {
	select {
	case <-ctx.Done():
		run.State = model.StateAborted
		run.CompletedAt = time.Now().UTC()
		report.State = model.StateAborted
		report.Degraded = run.Degraded
		report.Stages = run.StageResults
		return ctx.Err()
	default:
		return nil
	}
}

// auditDateCoverage warns when scanned date spans produced no timeline
// event, so silently lost dates stay visible
func auditDateCoverage(anchors []model.Anchor, tl *model.Timeline) []model.QualityWarning {
	dated := make(map[string]bool)
	for _, ev := range tl.Events {
		dated[ev.Date.Date.Format("2006-01-02")] = true
	}

	var warnings []model.QualityWarning
	for _, a := range anchors {
		if a.Kind != model.AnchorAbsolute {
			continue
		}
		key := fmt.Sprintf("%04d-%02d-%02d", a.Year, a.Month, a.Day)
		if !dated[key] {
			warnings = append(warnings, model.QualityWarning{
				Kind:    model.WarnDateCoverage,
				Message: fmt.Sprintf("date %s appears in text but not on the timeline", key),
			})
		}
	}
	return warnings
}

// newRunID generates a short random run identifier
func newRunID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("run-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
