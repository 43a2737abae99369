package classify

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jwyoon/anamna/internal/model"
)

// matchRule reports whether an event triggers a severity rule, by
// keyword in the normalized entity or by diagnosis-code prefix
func matchRule(rule model.SeverityRule, ev model.MedicalEvent) bool {
	entity := strings.ToLower(ev.Entity)
	for _, kw := range rule.Keywords {
		if kw != "" && strings.Contains(entity, strings.ToLower(kw)) {
			return true
		}
	}
	for _, prefix := range rule.Codes {
		if prefix == "" {
			continue
		}
		for _, code := range ev.Codes {
			if strings.HasPrefix(strings.ToUpper(code), strings.ToUpper(prefix)) {
				return true
			}
		}
	}
	return false
}

// LoadSeverityRules reads severity rules from a YAML file, replacing
// the built-in defaults
func LoadSeverityRules(path string) ([]model.SeverityRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read severity rules: %w", err)
	}

	var rules []model.SeverityRule
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("parse severity rules: %w", err)
	}

	for i, r := range rules {
		if r.Category == "" {
			return nil, fmt.Errorf("severity rule %d: category is required", i)
		}
		if len(r.Keywords) == 0 && len(r.Codes) == 0 {
			return nil, fmt.Errorf("severity rule %q: needs at least one keyword or code", r.Category)
		}
	}
	return rules, nil
}
