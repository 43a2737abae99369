package worker

import (
	"context"

	"github.com/jwyoon/anamna/internal/model"
)

// Analyzer defines the interface for analyzing one case
type Analyzer interface {
	Analyze(ctx context.Context, subject string, blocks []model.TextBlock) (*model.Report, error)
}

// Case is one prepared unit of batch work: a case label plus its
// extracted text blocks
type Case struct {
	Subject string
	Blocks  []model.TextBlock
}

// CaseJob analyzes a single case
type CaseJob struct {
	Case     Case
	Analyzer Analyzer
}

// Execute runs the analysis for the job's case
func (j *CaseJob) Execute(ctx context.Context) Result {
	report, err := j.Analyzer.Analyze(ctx, j.Case.Subject, j.Case.Blocks)
	return &CaseResult{
		Subject: j.Case.Subject,
		Report:  report,
		Error:   err,
	}
}

// CaseResult represents the result of one case analysis
type CaseResult struct {
	Subject string
	Report  *model.Report
	Error   error
}

// GetError returns the error from the case result
func (r *CaseResult) GetError() error {
	return r.Error
}

// BatchProcessor analyzes multiple cases concurrently. Runs share only
// the read-through cache and read-only configuration, so concurrency
// needs no run-to-run locking.
type BatchProcessor struct {
	analyzer    Analyzer
	concurrency int
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(analyzer Analyzer, concurrency int) *BatchProcessor {
	return &BatchProcessor{
		analyzer:    analyzer,
		concurrency: concurrency,
	}
}

// ProcessCases analyzes the cases concurrently and returns one result
// per case, in completion order
func (b *BatchProcessor) ProcessCases(ctx context.Context, cases []Case) []*CaseResult {
	if len(cases) == 0 {
		return []*CaseResult{}
	}

	pool := NewPoolWithQueue(b.concurrency, len(cases))
	pool.Start()

	for _, c := range cases {
		pool.Submit(&CaseJob{Case: c, Analyzer: b.analyzer})
	}

	results := pool.Wait()

	caseResults := make([]*CaseResult, len(results))
	for i, result := range results {
		caseResults[i] = result.(*CaseResult)
	}

	return caseResults
}
