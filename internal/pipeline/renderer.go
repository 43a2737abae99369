package pipeline

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jwyoon/anamna/internal/model"
)

// Renderer writes analysis reports to disk and a short summary to
// stdout. Narrative report prose is rendered elsewhere; this surface
// is structured output only.
type Renderer struct {
	pretty bool
}

// NewRenderer creates a renderer
func NewRenderer(pretty bool) *Renderer {
	return &Renderer{pretty: pretty}
}

// RenderJSON writes the report as JSON to the given path
func (r *Renderer) RenderJSON(report *model.Report, path string) error {
	var data []byte
	var err error
	if r.pretty {
		data, err = json.MarshalIndent(report, "", "  ")
	} else {
		data, err = json.Marshal(report)
	}
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// RenderSummary prints a short run summary to stdout
func (r *Renderer) RenderSummary(report *model.Report) {
	fmt.Printf("Run:        %s (%s)\n", report.RunID, report.State)
	if report.Subject != "" {
		fmt.Printf("Subject:    %s\n", report.Subject)
	}
	fmt.Printf("Reference:  %s\n", report.Reference.Format("2006-01-02"))
	fmt.Printf("Strategy:   %s", report.Strategy)
	if report.Degraded {
		fmt.Printf(" (degraded)")
	}
	fmt.Println()
	fmt.Printf("Events:     %d on timeline, %d disclosure-required\n",
		len(report.Timeline.Events), report.Risk.DisclosureCount)
	if report.Risk.OverrideCount > 0 {
		fmt.Printf("Overrides:  %d severity override(s) applied\n", report.Risk.OverrideCount)
	}
	if len(report.Timeline.Warnings) > 0 {
		fmt.Printf("Warnings:   %d data-quality warning(s)\n", len(report.Timeline.Warnings))
	}
	fmt.Printf("Risk:       %s\n", report.Risk.Level)
}
