package strategy

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jwyoon/anamna/internal/cache"
	"github.com/jwyoon/anamna/internal/llm"
	"github.com/jwyoon/anamna/internal/model"
	"github.com/jwyoon/anamna/internal/normalize"
	"github.com/jwyoon/anamna/internal/score"
	"github.com/jwyoon/anamna/internal/worker"
)

// AssistedBranch extracts events through the external completion
// service. The single blocking I/O in the pipeline lives here, so the
// branch carries its own timeout, one retry, and a rate limiter.
type AssistedBranch struct {
	provider   llm.Provider
	normalizer *normalize.Normalizer
	prompts    *cache.PromptCache
	limiter    *worker.Limiter
	threshold  float64
	maxTokens  int
	verbose    bool
}

// NewAssistedBranch creates the assisted branch. provider may be nil,
// in which case Extract always fails and the engine stays rule-only.
func NewAssistedBranch(provider llm.Provider, normalizer *normalize.Normalizer, prompts *cache.PromptCache, limiter *worker.Limiter, cfg *model.Config) *AssistedBranch {
	return &AssistedBranch{
		provider:   provider,
		normalizer: normalizer,
		prompts:    prompts,
		limiter:    limiter,
		threshold:  cfg.Run.ConfidenceThreshold,
		maxTokens:  cfg.LLM.MaxTokens,
		verbose:    cfg.Output.Verbose,
	}
}

// Enabled reports whether a provider is configured
func (b *AssistedBranch) Enabled() bool {
	return b != nil && b.provider != nil
}

// Extract asks the external service for structured events and converts
// them into the pipeline's event model
func (b *AssistedBranch) Extract(ctx context.Context, blocks []model.TextBlock) ([]model.MedicalEvent, error) {
	if !b.Enabled() {
		return nil, fmt.Errorf("no completion provider configured")
	}

	req := llm.BuildExtractionRequest(blocks, b.maxTokens)

	text, err := b.complete(ctx, req)
	if err != nil {
		return nil, err
	}

	extracted, err := llm.ParseExtraction(text)
	if err != nil {
		return nil, fmt.Errorf("assisted extraction: %w", err)
	}

	var events []model.MedicalEvent
	for i, ex := range extracted {
		date, err := time.Parse("2006-01-02", ex.Date)
		if err != nil {
			if b.verbose {
				fmt.Fprintf(os.Stderr, "Warning: assisted branch returned unparseable date %q\n", ex.Date)
			}
			continue
		}

		conf := score.Assisted(ex.Confidence)
		ev := model.MedicalEvent{
			ID: fmt.Sprintf("assist-%d", i),
			Date: model.ResolvedDate{
				AnchorIndex:   -1, // Not tied to a scanned anchor
				Date:          date,
				Confidence:    conf,
				LowConfidence: score.LowConfidence(conf, 0, b.threshold),
			},
			EventType:  eventTypeFromString(ex.EventType),
			RawEntity:  ex.Entity,
			Source:     model.SourceAssisted,
			Confidence: conf,
		}
		events = append(events, b.normalizer.NormalizeEvent(ev))
	}
	return events, nil
}

// complete performs the external call with prompt caching, rate
// limiting, and the single-retry policy
func (b *AssistedBranch) complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	key := cache.PromptKey(req.System + "\x00" + req.Prompt)
	if b.prompts != nil {
		if cached, found := b.prompts.Get(key); found {
			return string(cached), nil
		}
	}

	if b.limiter != nil {
		if err := b.limiter.Wait(ctx, b.provider.Name()); err != nil {
			return "", fmt.Errorf("rate limit wait: %w", err)
		}
	}

	resp, err := b.provider.Complete(ctx, req)
	if err != nil {
		// One retry, then the caller falls back to the rule result.
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}
		if b.verbose {
			fmt.Fprintf(os.Stderr, "Warning: completion failed, retrying once: %v\n", err)
		}
		resp, err = b.provider.Complete(ctx, req)
		if err != nil {
			return "", fmt.Errorf("completion after retry: %w", err)
		}
	}

	if b.prompts != nil {
		_ = b.prompts.Set(key, []byte(resp.Text), 0)
	}
	return resp.Text, nil
}

// eventTypeFromString maps the service's event_type field, defaulting
// unknown labels to visit rather than dropping the event
func eventTypeFromString(s string) model.EventType {
	switch model.EventType(s) {
	case model.EventAdmission, model.EventDischarge, model.EventVisit,
		model.EventDiagnosis, model.EventSurgery, model.EventTest,
		model.EventPrescription:
		return model.EventType(s)
	default:
		return model.EventVisit
	}
}
