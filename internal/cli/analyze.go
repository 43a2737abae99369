package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/jwyoon/anamna/internal/classify"
	"github.com/jwyoon/anamna/internal/ingest"
	"github.com/jwyoon/anamna/internal/model"
	"github.com/jwyoon/anamna/internal/pipeline"
)

var (
	outJSON       string
	referenceDate string
	qualityGate   string
	confThreshold float64
	maxRetries    int
	runTimeout    time.Duration
	noCache       bool
	cacheDir      string
	severityFile  string
	codebookFile  string
	llmProvider   string
	llmModel      string
)

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze <file-or-dir>",
	Short: "Analyze one case and classify its events against disclosure windows",
	Long: `Analyze reads extracted record text (a file or a folder of page files),
builds the dated event timeline, and classifies every event against the
configured disclosure windows relative to the contract date.

The contract date comes from --reference, or is detected from policy/
contract wording in the document itself.

Example:
  anamna analyze case1/ --reference 2024-01-01
  anamna analyze report.txt --reference 2024-01-01 --json out.json
  anamna analyze case1/ --reference 2024-01-01 --llm openai --llm-model gpt-4o-mini`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	// Output flags
	analyzeCmd.Flags().StringVar(&outJSON, "json", "report.json", "output JSON path")

	// Run flags
	analyzeCmd.Flags().StringVar(&referenceDate, "reference", "", "contract/anchor date (YYYY-MM-DD)")
	analyzeCmd.Flags().StringVar(&qualityGate, "gate", "standard", "quality gate (draft, standard, rigorous)")
	analyzeCmd.Flags().Float64Var(&confThreshold, "confidence", 0.5, "low-confidence threshold")
	analyzeCmd.Flags().IntVar(&maxRetries, "max-retries", 2, "retries per idempotent stage")
	analyzeCmd.Flags().DurationVar(&runTimeout, "timeout", 5*time.Minute, "overall run timeout")
	analyzeCmd.Flags().BoolVar(&noCache, "no-cache", false, "disable result cache")
	analyzeCmd.Flags().StringVar(&cacheDir, "cache-dir", "", "persist results to this directory")

	// Rule configuration flags
	analyzeCmd.Flags().StringVar(&severityFile, "severity-rules", "", "YAML file with severity override rules")
	analyzeCmd.Flags().StringVar(&codebookFile, "codebook", "", "YAML disease codebook for entity normalization")

	// LLM flags
	analyzeCmd.Flags().StringVar(&llmProvider, "llm", "", "enable assisted extraction (openai, anthropic, ollama)")
	analyzeCmd.Flags().StringVar(&llmModel, "llm-model", "", "assisted extraction model name")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	path := args[0]
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	cfg, err := buildConfig()
	if err != nil {
		return err
	}

	blocks, subject, err := loadInput(path)
	if err != nil {
		return err
	}

	opts := pipeline.Options{Subject: subject}
	if referenceDate != "" {
		ref, err := time.Parse("2006-01-02", referenceDate)
		if err != nil {
			return fmt.Errorf("invalid reference date %q: %w", referenceDate, err)
		}
		opts.Reference = ref
	}

	p, err := pipeline.New(cfg)
	if err != nil {
		return fmt.Errorf("pipeline setup: %w", err)
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "Analyzing: %s (%d blocks)\n", subject, len(blocks))
		fmt.Fprintf(os.Stderr, "Gate: %s  Timeout: %v\n\n", cfg.Run.QualityGate, runTimeout)
	}

	report, err := p.AnalyzeWithOptions(ctx, blocks, opts)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "✓ Strategy: %s\n", report.Strategy)
		fmt.Fprintf(os.Stderr, "✓ Timeline events: %d\n", len(report.Timeline.Events))
		fmt.Fprintf(os.Stderr, "✓ Risk level: %s\n\n", report.Risk.Level)
	}

	renderer := pipeline.NewRenderer(cfg.Output.Pretty)
	if outJSON != "" {
		if err := renderer.RenderJSON(report, outJSON); err != nil {
			return fmt.Errorf("render failed: %w", err)
		}
		if verbose {
			fmt.Fprintf(os.Stderr, "✓ Wrote JSON: %s\n", outJSON)
		}
	}
	renderer.RenderSummary(report)

	return nil
}

// buildConfig assembles the run configuration from defaults and flags
func buildConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()
	cfg.Run.QualityGate = model.QualityGate(qualityGate)
	cfg.Run.ConfidenceThreshold = confThreshold
	cfg.Run.MaxRetries = maxRetries
	cfg.Cache.Enabled = !noCache
	cfg.Cache.Dir = cacheDir
	cfg.Output.Verbose = verbose

	if !model.ValidGate(cfg.Run.QualityGate) {
		return nil, fmt.Errorf("unknown quality gate %q (draft, standard, rigorous)", qualityGate)
	}

	cfg.Run.CodebookPath = codebookFile

	if severityFile != "" {
		rules, err := classify.LoadSeverityRules(severityFile)
		if err != nil {
			return nil, err
		}
		cfg.Severity = rules
	}

	if llmProvider != "" {
		cfg.LLM.Provider = llmProvider
		cfg.LLM.Model = llmModel

		// Get API key from environment
		switch llmProvider {
		case "openai":
			cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
			if cfg.LLM.APIKey == "" {
				return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
			}
		case "anthropic", "claude":
			cfg.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
			if cfg.LLM.APIKey == "" {
				return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable not set")
			}
		case "ollama":
			// Ollama doesn't need an API key
			if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
				cfg.LLM.BaseURL = baseURL
			}
		}
	}

	return cfg, nil
}

// loadInput reads the input path into text blocks
func loadInput(path string) ([]model.TextBlock, string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, "", fmt.Errorf("input %s: %w", path, err)
	}

	if info.IsDir() {
		blocks, err := ingest.LoadDir(path)
		return blocks, filepath.Base(filepath.Clean(path)), err
	}

	block, err := ingest.LoadFile(path)
	if err != nil {
		return nil, "", err
	}
	return []model.TextBlock{block}, filepath.Base(path), nil
}
