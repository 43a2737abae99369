// Package normalize canonicalizes facility, payer, and diagnosis labels
// so deduplication and severity matching compare like with like.
package normalize

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jwyoon/anamna/internal/model"
)

// codePattern matches ICD-10-style diagnosis codes (e.g., I20, C50.9)
var codePattern = regexp.MustCompile(`\b([A-TV-Z]\d{2}(?:\.\d{1,2})?)\b`)

// facilitySuffixes are stripped from facility names before comparison
var facilitySuffixes = []string{
	"medical center", "general hospital", "university hospital",
	"hospital", "clinic", "center", "의료원", "병원", "의원",
}

// Codebook is the on-disk alias/deprecation table, built from insurer
// disease codebooks
type Codebook struct {
	Aliases    map[string]string `yaml:"aliases"`     // Label variants -> canonical label
	Deprecated map[string]string `yaml:"deprecated"`  // Retired code -> replacement code
}

// Normalizer canonicalizes entity labels and extracts diagnosis codes
type Normalizer struct {
	aliases    map[string]string
	deprecated map[string]string
}

// New creates a normalizer with the built-in alias table
func New() *Normalizer {
	return &Normalizer{
		aliases: map[string]string{
			"mi":                    "myocardial infarction",
			"heart attack":          "myocardial infarction",
			"cva":                   "cerebral infarction",
			"stroke":                "cerebral infarction",
			"dm":                    "diabetes mellitus",
			"htn":                   "hypertension",
			"high blood pressure":   "hypertension",
			"ca":                    "carcinoma",
			"kb손해보험":            "kb insurance",
			"현대해상":              "hyundai marine",
			"농협손해보험":          "nh insurance",
		},
		deprecated: map[string]string{},
	}
}

// LoadCodebook merges an external YAML codebook into the alias and
// deprecated-code tables. Later entries win over built-ins.
func (n *Normalizer) LoadCodebook(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read codebook: %w", err)
	}
	var cb Codebook
	if err := yaml.Unmarshal(data, &cb); err != nil {
		return fmt.Errorf("parse codebook: %w", err)
	}
	for k, v := range cb.Aliases {
		n.aliases[normalizeKey(k)] = strings.ToLower(strings.TrimSpace(v))
	}
	for k, v := range cb.Deprecated {
		n.deprecated[strings.ToUpper(strings.TrimSpace(k))] = strings.ToUpper(strings.TrimSpace(v))
	}
	return nil
}

// Normalize canonicalizes an entity label: fold case and width, strip
// facility suffixes, then apply the alias table
func (n *Normalizer) Normalize(raw string) string {
	s := normalizeKey(raw)
	if s == "" {
		return ""
	}

	for _, suffix := range facilitySuffixes {
		if strings.HasSuffix(s, suffix) && len(s) > len(suffix) {
			s = strings.TrimSpace(strings.TrimSuffix(s, suffix))
			break
		}
	}

	if canonical, ok := n.aliases[s]; ok {
		return canonical
	}
	return s
}

// ExtractCodes finds diagnosis codes in text, remapping retired codes
// to their replacements
func (n *Normalizer) ExtractCodes(text string) []string {
	matches := codePattern.FindAllString(strings.ToUpper(text), -1)
	seen := make(map[string]bool)
	var codes []string
	for _, code := range matches {
		if replacement, ok := n.deprecated[code]; ok {
			code = replacement
		}
		if !seen[code] {
			seen[code] = true
			codes = append(codes, code)
		}
	}
	return codes
}

// NormalizeEvent returns a copy of the event with Entity canonicalized
// and codes extracted from the raw label
func (n *Normalizer) NormalizeEvent(ev model.MedicalEvent) model.MedicalEvent {
	if ev.RawEntity == "" {
		ev.RawEntity = ev.Entity
	}
	ev.Entity = n.Normalize(ev.RawEntity)
	if len(ev.Codes) == 0 {
		ev.Codes = n.ExtractCodes(ev.RawEntity)
	}
	return ev
}

// normalizeKey lowercases, trims, and collapses internal whitespace
func normalizeKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Join(strings.Fields(s), " ")
}
