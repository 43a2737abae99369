// Package strategy decides how a document gets extracted - by the
// deterministic rule path, the externally-assisted path, or both - and
// reconciles the branch outputs by confidence.
package strategy

import (
	"strings"

	"github.com/jwyoon/anamna/internal/model"
)

// Strategy is the closed set of extraction modes. Adding a mode means
// updating every switch over this type, which is the point.
type Strategy int

const (
	StrategyRule Strategy = iota
	StrategyAssisted
	StrategyHybrid
)

func (s Strategy) String() string {
	switch s {
	case StrategyRule:
		return "rule"
	case StrategyAssisted:
		return "assisted"
	case StrategyHybrid:
		return "hybrid"
	default:
		return "unknown"
	}
}

// Complexity score weights. Domain-term density weighs heaviest:
// dense clinical vocabulary is what trips the rule patterns up.
const (
	weightLength     = 0.25
	weightStructural = 0.35
	weightDomainTerm = 0.40

	lengthNormChars = 20000
)

// domainTerms are the clinical vocabulary whose density raises the
// complexity score
var domainTerms = []string{
	"diagnosis", "admission", "discharge", "surgery", "biopsy",
	"pathology", "oncology", "metastasis", "prognosis", "comorbid",
	"hypertension", "diabetes", "infarction", "carcinoma", "lesion",
	"진단", "입원", "퇴원", "수술", "병리", "소견",
}

// Complexity is the normalized document-complexity breakdown
type Complexity struct {
	Length     float64 `json:"length"`
	Structural float64 `json:"structural"`
	DomainTerm float64 `json:"domain_term"`
	Score      float64 `json:"score"`
}

// Selector chooses a strategy from document complexity
type Selector struct {
	low  float64
	high float64
}

// NewSelector creates a selector with the configured thresholds
func NewSelector(cfg model.StrategyConfig) *Selector {
	return &Selector{low: cfg.LowThreshold, high: cfg.HighThreshold}
}

// Select computes the complexity score and picks the strategy:
// below the low threshold the rule branch suffices, above the high
// threshold rules are hopeless, in between both run
func (s *Selector) Select(blocks []model.TextBlock) (Strategy, Complexity) {
	c := ComputeComplexity(blocks)
	switch {
	case c.Score < s.low:
		return StrategyRule, c
	case c.Score > s.high:
		return StrategyAssisted, c
	default:
		return StrategyHybrid, c
	}
}

// ComputeComplexity derives the three normalized complexity components
// and their weighted combination
func ComputeComplexity(blocks []model.TextBlock) Complexity {
	var totalChars, totalLines, structuredLines, totalWords, termHits int

	for _, b := range blocks {
		totalChars += len(b.Text)
		for _, line := range strings.Split(b.Text, "\n") {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" {
				continue
			}
			totalLines++
			if strings.ContainsAny(trimmed, ":|\t") {
				structuredLines++
			}
		}
		lower := strings.ToLower(b.Text)
		totalWords += len(strings.Fields(lower))
		for _, term := range domainTerms {
			termHits += strings.Count(lower, term)
		}
	}

	c := Complexity{}
	c.Length = clamp01(float64(totalChars) / lengthNormChars)
	if totalLines > 0 {
		c.Structural = clamp01(float64(structuredLines) / float64(totalLines))
	}
	if totalWords > 0 {
		c.DomainTerm = clamp01(float64(termHits) / float64(totalWords) * 10)
	}
	c.Score = weightLength*c.Length + weightStructural*c.Structural + weightDomainTerm*c.DomainTerm
	return c
}

func clamp01(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}
