package normalize

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jwyoon/anamna/internal/model"
)

func TestNormalizer_Normalize(t *testing.T) {
	n := New()

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"case folding", "Hypertension", "hypertension"},
		{"whitespace collapse", "  diabetes   mellitus  ", "diabetes mellitus"},
		{"alias abbreviation", "MI", "myocardial infarction"},
		{"alias phrase", "heart attack", "myocardial infarction"},
		{"alias stroke", "Stroke", "cerebral infarction"},
		{"facility suffix stripped", "Seoul Hospital", "seoul"},
		{"korean facility suffix", "서울대 병원", "서울대"},
		{"compound suffix", "Boston Medical Center", "boston"},
		{"suffix only kept", "hospital", "hospital"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := n.Normalize(tt.raw); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestNormalizer_Normalize_Idempotent(t *testing.T) {
	n := New()
	inputs := []string{"Seoul Hospital", "MI", "  diabetes   mellitus  "}
	for _, raw := range inputs {
		once := n.Normalize(raw)
		if twice := n.Normalize(once); twice != once {
			t.Errorf("Normalize not idempotent for %q: %q -> %q", raw, once, twice)
		}
	}
}

func TestNormalizer_ExtractCodes(t *testing.T) {
	n := New()

	tests := []struct {
		name string
		text string
		want []string
	}{
		{"single code", "diagnosed with I20", []string{"I20"}},
		{"code with decimal", "C50.9 confirmed by biopsy", []string{"C50.9"}},
		{"multiple codes deduped", "I20 and i20 with E11.9", []string{"I20", "E11.9"}},
		{"u excluded", "specimen U07 noted", nil},
		{"no codes", "routine checkup", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := n.ExtractCodes(tt.text)
			if len(got) != len(tt.want) {
				t.Fatalf("ExtractCodes(%q) = %v, want %v", tt.text, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Code %d: got %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestNormalizer_NormalizeEvent(t *testing.T) {
	n := New()
	ev := model.MedicalEvent{
		Entity: "Gastric CA at Seoul Hospital C16.9",
	}

	got := n.NormalizeEvent(ev)

	if got.RawEntity != "Gastric CA at Seoul Hospital C16.9" {
		t.Errorf("Expected raw entity preserved, got %q", got.RawEntity)
	}
	if len(got.Codes) != 1 || got.Codes[0] != "C16.9" {
		t.Errorf("Expected code C16.9 extracted, got %v", got.Codes)
	}
	if got.Entity == "" {
		t.Error("Expected normalized entity")
	}
}

func TestNormalizer_NormalizeEvent_KeepsExistingCodes(t *testing.T) {
	n := New()
	ev := model.MedicalEvent{
		RawEntity: "angina I20",
		Codes:     []string{"I21"},
	}

	got := n.NormalizeEvent(ev)
	if len(got.Codes) != 1 || got.Codes[0] != "I21" {
		t.Errorf("Expected pre-set codes untouched, got %v", got.Codes)
	}
}

func TestNormalizer_LoadCodebook(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "codebook.yaml")
	content := `
aliases:
  "위암": "gastric carcinoma"
  "Stomach  Cancer": "gastric carcinoma"
deprecated:
  "C16.8": "C16.9"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	n := New()
	if err := n.LoadCodebook(path); err != nil {
		t.Fatalf("LoadCodebook failed: %v", err)
	}

	if got := n.Normalize("stomach cancer"); got != "gastric carcinoma" {
		t.Errorf("Expected codebook alias applied, got %q", got)
	}
	if got := n.Normalize("위암"); got != "gastric carcinoma" {
		t.Errorf("Expected Korean alias applied, got %q", got)
	}

	codes := n.ExtractCodes("history of C16.8")
	if len(codes) != 1 || codes[0] != "C16.9" {
		t.Errorf("Expected deprecated code remapped, got %v", codes)
	}
}

func TestNormalizer_LoadCodebook_Missing(t *testing.T) {
	n := New()
	if err := n.LoadCodebook("/nonexistent/codebook.yaml"); err == nil {
		t.Error("Expected error for missing codebook file")
	}
}
