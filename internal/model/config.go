package model

import "time"

// Config is the full runtime configuration, resolved from defaults,
// config file, environment, and flags (in ascending priority)
type Config struct {
	Run         RunConfig         `yaml:"run"`
	Windows     []DisclosureWindow `yaml:"windows"`
	Severity    []SeverityRule    `yaml:"severity"`
	Strategy    StrategyConfig    `yaml:"strategy"`
	LLM         LLMConfig         `yaml:"llm"`
	Cache       CacheConfig       `yaml:"cache"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	Output      OutputConfig      `yaml:"output"`
}

// RunConfig controls per-run pipeline behavior
type RunConfig struct {
	QualityGate         QualityGate   `yaml:"quality_gate"`
	ConfidenceThreshold float64       `yaml:"confidence_threshold"` // Below this, results are low-confidence
	MaxRetries          int           `yaml:"max_retries"`          // Per idempotent stage
	StageTimeout        time.Duration `yaml:"stage_timeout"`
	DedupeToleranceDays int           `yaml:"dedupe_tolerance_days"`
	CodebookPath        string        `yaml:"codebook_path,omitempty"` // Disease codebook for normalization
}

// StrategyConfig tunes dual-strategy selection
type StrategyConfig struct {
	LowThreshold  float64 `yaml:"low_threshold"`  // Complexity below: rule-only
	HighThreshold float64 `yaml:"high_threshold"` // Complexity above: assisted-only
}

// LLMConfig configures the external extraction service
type LLMConfig struct {
	Provider   string  `yaml:"provider"` // openai, anthropic, ollama, "" (disabled)
	Model      string  `yaml:"model"`
	APIKey     string  `yaml:"api_key,omitempty"`
	BaseURL    string  `yaml:"base_url,omitempty"`
	Timeout    int     `yaml:"timeout"` // Seconds
	MaxTokens  int     `yaml:"max_tokens"`
	RatePerSec float64 `yaml:"rate_per_sec"` // Outbound call rate limit
	RateBurst  int     `yaml:"rate_burst"`

	HTTPProxy  string `yaml:"http_proxy,omitempty"`
	HTTPSProxy string `yaml:"https_proxy,omitempty"`
	NoProxy    string `yaml:"no_proxy,omitempty"`
}

// CacheConfig configures the read-through result cache
type CacheConfig struct {
	Enabled    bool          `yaml:"enabled"`
	MaxEntries int           `yaml:"max_entries"` // Bounded; oldest entry evicted on overflow
	Dir        string        `yaml:"dir"`         // Disk layer; empty disables it
	DiskTTL    time.Duration `yaml:"disk_ttl"`
	PromptTTL  time.Duration `yaml:"prompt_ttl"` // Assisted-branch response cache
}

// ConcurrencyConfig bounds concurrent work
type ConcurrencyConfig struct {
	BatchWorkers int `yaml:"batch_workers"` // Concurrent case analyses in batch mode
}

// OutputConfig controls rendering
type OutputConfig struct {
	Verbose bool `yaml:"verbose"`
	Pretty  bool `yaml:"pretty"` // Indented JSON output
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		Run: RunConfig{
			QualityGate:         GateStandard,
			ConfidenceThreshold: 0.5,
			MaxRetries:          2,
			StageTimeout:        60 * time.Second,
			DedupeToleranceDays: 1,
		},
		Windows:  DefaultWindows(),
		Severity: DefaultSeverityRules(),
		Strategy: StrategyConfig{
			LowThreshold:  0.25,
			HighThreshold: 0.75,
		},
		LLM: LLMConfig{
			Provider:   "",
			Timeout:    30,
			MaxTokens:  2000,
			RatePerSec: 2,
			RateBurst:  4,
		},
		Cache: CacheConfig{
			Enabled:    true,
			MaxEntries: 256,
			DiskTTL:    24 * time.Hour,
			PromptTTL:  1 * time.Hour,
		},
		Concurrency: ConcurrencyConfig{
			BatchWorkers: 4,
		},
		Output: OutputConfig{
			Pretty: true,
		},
	}
}

// DefaultSeverityRules returns the built-in high-severity categories.
// Code entries are ICD-10 prefixes.
func DefaultSeverityRules() []SeverityRule {
	return []SeverityRule{
		{
			Category: "malignant_neoplasm",
			Keywords: []string{"cancer", "carcinoma", "malignant", "leukemia", "lymphoma", "sarcoma"},
			Codes:    []string{"C"},
		},
		{
			Category: "cerebrovascular",
			Keywords: []string{"stroke", "cerebral infarction", "cerebral hemorrhage", "aneurysm"},
			Codes:    []string{"I6"},
		},
		{
			Category: "ischemic_heart",
			Keywords: []string{"myocardial infarction", "angina", "ischemic heart"},
			Codes:    []string{"I20", "I21", "I22", "I23", "I24", "I25"},
		},
		{
			Category: "chronic_renal",
			Keywords: []string{"renal failure", "dialysis", "chronic kidney"},
			Codes:    []string{"N18", "N19"},
		},
	}
}
