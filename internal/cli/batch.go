package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/jwyoon/anamna/internal/ingest"
	"github.com/jwyoon/anamna/internal/model"
	"github.com/jwyoon/anamna/internal/pipeline"
	"github.com/jwyoon/anamna/internal/worker"
)

var (
	batchOutDir  string
	batchWorkers int
	batchTimeout time.Duration
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <cases-dir>",
	Short: "Analyze every case folder under a directory concurrently",
	Long: `Batch treats each subdirectory of <cases-dir> as one case, analyzes
all of them concurrently, and writes one JSON report per case.

Example:
  anamna batch ./cases --reference 2024-01-01 --out ./reports
  anamna batch ./cases --reference 2024-01-01 --workers 8`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().StringVar(&batchOutDir, "out", "reports", "output directory for JSON reports")
	batchCmd.Flags().IntVar(&batchWorkers, "workers", 4, "concurrent case analyses")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 30*time.Minute, "overall batch timeout")

	// Shared run flags
	batchCmd.Flags().StringVar(&referenceDate, "reference", "", "contract/anchor date (YYYY-MM-DD)")
	batchCmd.Flags().StringVar(&qualityGate, "gate", "standard", "quality gate (draft, standard, rigorous)")
	batchCmd.Flags().StringVar(&llmProvider, "llm", "", "enable assisted extraction (openai, anthropic, ollama)")
	batchCmd.Flags().StringVar(&llmModel, "llm-model", "", "assisted extraction model name")
}

func runBatch(cmd *cobra.Command, args []string) error {
	casesDir := args[0]
	ctx, cancel := context.WithTimeout(context.Background(), batchTimeout)
	defer cancel()

	cfg, err := buildConfig()
	if err != nil {
		return err
	}
	cfg.Concurrency.BatchWorkers = batchWorkers

	cases, err := collectCases(casesDir)
	if err != nil {
		return err
	}
	if verbose {
		fmt.Fprintf(os.Stderr, "Found %d case(s) under %s\n", len(cases), casesDir)
	}

	p, err := pipeline.New(cfg)
	if err != nil {
		return fmt.Errorf("pipeline setup: %w", err)
	}

	var reference time.Time
	if referenceDate != "" {
		reference, err = time.Parse("2006-01-02", referenceDate)
		if err != nil {
			return fmt.Errorf("invalid reference date %q: %w", referenceDate, err)
		}
	}

	processor := worker.NewBatchProcessor(&batchAnalyzer{p: p, reference: reference}, cfg.Concurrency.BatchWorkers)
	results := processor.ProcessCases(ctx, cases)

	if err := os.MkdirAll(batchOutDir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	renderer := pipeline.NewRenderer(cfg.Output.Pretty)
	failed := 0
	for _, res := range results {
		if res.Error != nil {
			failed++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", res.Subject, res.Error)
			continue
		}
		outPath := filepath.Join(batchOutDir, res.Subject+".json")
		if err := renderer.RenderJSON(res.Report, outPath); err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", res.Subject, err)
			continue
		}
		fmt.Printf("✓ %s: %d events, risk %s → %s\n",
			res.Subject, len(res.Report.Timeline.Events), res.Report.Risk.Level, outPath)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d cases failed", failed, len(results))
	}
	return nil
}

// batchAnalyzer adapts the pipeline to the worker.Analyzer interface,
// carrying the shared reference date
type batchAnalyzer struct {
	p         *pipeline.Pipeline
	reference time.Time
}

func (a *batchAnalyzer) Analyze(ctx context.Context, subject string, blocks []model.TextBlock) (*model.Report, error) {
	return a.p.AnalyzeWithOptions(ctx, blocks, pipeline.Options{
		Subject:   subject,
		Reference: a.reference,
	})
}

// collectCases builds one Case per subdirectory (or per loose text file)
func collectCases(dir string) ([]worker.Case, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read cases dir %s: %w", dir, err)
	}

	var cases []worker.Case
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if e.IsDir() {
			blocks, err := ingest.LoadDir(path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Warning: skipping %s: %v\n", e.Name(), err)
				continue
			}
			cases = append(cases, worker.Case{Subject: e.Name(), Blocks: blocks})
			continue
		}
		if !ingest.Recognized(path) {
			continue
		}
		block, err := ingest.LoadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: skipping %s: %v\n", e.Name(), err)
			continue
		}
		subject := e.Name()[:len(e.Name())-len(filepath.Ext(e.Name()))]
		cases = append(cases, worker.Case{Subject: subject, Blocks: []model.TextBlock{block}})
	}

	if len(cases) == 0 {
		return nil, fmt.Errorf("no cases found under %s", dir)
	}
	return cases, nil
}
