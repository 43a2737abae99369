package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jwyoon/anamna/internal/model"
)

// extractionSystem instructs the model to return structured events only.
// Narrative wording is out of scope here; anything that is not the JSON
// array is discarded by the parser.
const extractionSystem = `You extract dated medical events from clinical record text.
Respond ONLY with a JSON array. Each element:
{"date": "YYYY-MM-DD", "event_type": "admission|discharge|visit|diagnosis|surgery|test|prescription", "entity": "<facility or diagnosis label>", "confidence": <0.0-1.0>}
Rules:
- Use ISO dates. If a date is relative, resolve it against dates stated in the text.
- confidence reflects how explicit the date and event are in the text.
- Do not invent events. An empty array is a valid answer.`

// maxPromptChars caps how much document text goes into one prompt
const maxPromptChars = 24000

// ExtractedEvent is one event as reported by the external service,
// before normalization
type ExtractedEvent struct {
	Date       string  `json:"date"`
	EventType  string  `json:"event_type"`
	Entity     string  `json:"entity"`
	Confidence float64 `json:"confidence"`
}

// BuildExtractionRequest assembles the completion request for a set of
// text blocks
func BuildExtractionRequest(blocks []model.TextBlock, maxTokens int) CompletionRequest {
	var sb strings.Builder
	sb.WriteString("Extract all dated medical events from the following record text.\n\n")
	for i, b := range blocks {
		if sb.Len() > maxPromptChars {
			sb.WriteString(fmt.Sprintf("\n[... %d further blocks truncated ...]\n", len(blocks)-i))
			break
		}
		if b.Page > 0 {
			sb.WriteString(fmt.Sprintf("--- page %d ---\n", b.Page))
		}
		sb.WriteString(b.Text)
		sb.WriteString("\n")
	}

	return CompletionRequest{
		System:      extractionSystem,
		Prompt:      sb.String(),
		MaxTokens:   maxTokens,
		Temperature: 0.1, // Extraction wants determinism, not creativity
	}
}

// ParseExtraction parses the completion text into events. Models wrap
// JSON in prose or code fences often enough that the parser hunts for
// the outermost array instead of trusting the whole body.
func ParseExtraction(text string) ([]ExtractedEvent, error) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array in completion")
	}

	var events []ExtractedEvent
	if err := json.Unmarshal([]byte(text[start:end+1]), &events); err != nil {
		return nil, fmt.Errorf("parse extraction JSON: %w", err)
	}

	// Drop entries the schema allows but the pipeline cannot use.
	valid := events[:0]
	for _, ev := range events {
		if ev.Date == "" || ev.EventType == "" {
			continue
		}
		valid = append(valid, ev)
	}
	return valid, nil
}
