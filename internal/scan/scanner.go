// Package scan finds date-bearing spans in extracted document text and
// classifies each as an absolute, relative, or nested anchor.
package scan

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/jwyoon/anamna/internal/model"
)

// ContextRadius is the fixed character window captured around each
// anchor for keyword-proximity classification
const ContextRadius = 80

// Absolute date patterns. Clinical OCR output mixes delimiter styles
// and Korean date notation freely, so all are recognized.
var (
	isoDatePattern    = regexp.MustCompile(`\b(\d{4})[-./](\d{1,2})[-./](\d{1,2})\b`)
	usDatePattern     = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)
	shortYearPattern  = regexp.MustCompile(`\b(\d{2})\.(\d{1,2})\.(\d{1,2})\b`)
	koreanDatePattern = regexp.MustCompile(`(\d{4})\s*년\s*(\d{1,2})\s*월\s*(\d{1,2})\s*일`)
)

// Relative phrases: "N days/months/years before/after <target>"
var relativePattern = regexp.MustCompile(
	`\b(\d+)\s+(day|days|week|weeks|month|months|year|years)\s+(before|after|prior to|following)\s+(?:the\s+)?([a-z][a-z ]{0,40})`)

// Nested references: "same day as the above visit", "same as the above admission"
var nestedPattern = regexp.MustCompile(
	`\b(?:same (?:day|date) as|same as) (?:the )?(?:above|previous|earlier) ([a-z]+)`)

// categoryKeywords drives keyword-proximity classification of anchor
// context windows. First match in this order wins.
var categoryKeywords = []struct {
	category model.AnchorCategory
	words    []string
}{
	{model.CategoryDischarge, []string{"discharge", "discharged", "퇴원"}},
	{model.CategoryAdmission, []string{"admission", "admitted", "hospitalized", "입원"}},
	{model.CategorySurgery, []string{"surgery", "operation", "operated", "수술"}},
	{model.CategoryDiagnosis, []string{"diagnosis", "diagnosed", "진단"}},
	{model.CategoryTest, []string{"test", "exam", "imaging", "biopsy", "검사"}},
	{model.CategoryPolicy, []string{"policy", "contract", "enrollment", "계약", "청약"}},
	{model.CategoryVisit, []string{"visit", "outpatient", "clinic", "consult", "내원", "통원"}},
}

// Scanner detects date anchors in text blocks
type Scanner struct{}

// New creates a new anchor scanner
func New() *Scanner {
	return &Scanner{}
}

// Scan finds all date anchors across the blocks, in document order.
// No anchor is discarded here: spans that later fail to resolve surface
// as low-confidence timeline gaps, not silent drops.
func (s *Scanner) Scan(blocks []model.TextBlock) []model.Anchor {
	var anchors []model.Anchor
	for i, block := range blocks {
		anchors = append(anchors, s.scanBlock(block.Text, i)...)
	}
	return anchors
}

// scanBlock finds anchors in a single text block
func (s *Scanner) scanBlock(text string, blockIdx int) []model.Anchor {
	var anchors []model.Anchor
	claimed := make([]bool, len(text)) // Bytes already owned by an anchor

	add := func(a model.Anchor, start, end int) {
		for i := start; i < end && i < len(claimed); i++ {
			if claimed[i] {
				return // Overlaps an earlier, higher-priority match
			}
		}
		for i := start; i < end && i < len(claimed); i++ {
			claimed[i] = true
		}
		a.Offset = start
		a.Block = blockIdx
		a.Context = contextWindow(text, start, end)
		a.Category = classifyContext(a.Context)
		anchors = append(anchors, a)
	}

	// Relative and nested phrases are matched first so that any
	// absolute-looking digits inside them stay attached to the phrase.
	lower := strings.ToLower(text)
	for _, m := range relativePattern.FindAllStringSubmatchIndex(lower, -1) {
		raw := text[m[0]:m[1]]
		amount, _ := strconv.Atoi(lower[m[2]:m[3]])
		unit := parseUnit(lower[m[4]:m[5]])
		before := isBeforeWord(lower[m[6]:m[7]])
		target := classifyContext(lower[m[8]:m[9]])
		add(model.Anchor{
			RawText: raw,
			Kind:    model.AnchorRelative,
			Relative: &model.RelativeRef{
				Amount: amount,
				Unit:   unit,
				Before: before,
				Target: target,
			},
		}, m[0], m[1])
	}

	for _, m := range nestedPattern.FindAllStringSubmatchIndex(lower, -1) {
		add(model.Anchor{
			RawText:      text[m[0]:m[1]],
			Kind:         model.AnchorNested,
			NestedTarget: classifyContext(lower[m[2]:m[3]]),
		}, m[0], m[1])
	}

	for _, p := range []*regexp.Regexp{isoDatePattern, koreanDatePattern, usDatePattern} {
		for _, m := range p.FindAllStringSubmatchIndex(text, -1) {
			year, month, day := parseAbsolute(p, text, m)
			if !plausibleDate(year, month, day) {
				continue
			}
			add(model.Anchor{
				RawText: text[m[0]:m[1]],
				Kind:    model.AnchorAbsolute,
				Year:    year,
				Month:   month,
				Day:     day,
			}, m[0], m[1])
		}
	}

	// Two-digit years last: weakest pattern, and only where nothing
	// else matched (avoids re-matching the tail of YYYY.MM.DD).
	for _, m := range shortYearPattern.FindAllStringSubmatchIndex(text, -1) {
		year, _ := strconv.Atoi(text[m[2]:m[3]])
		month, _ := strconv.Atoi(text[m[4]:m[5]])
		day, _ := strconv.Atoi(text[m[6]:m[7]])
		year = expandTwoDigitYear(year)
		if !plausibleDate(year, month, day) {
			continue
		}
		add(model.Anchor{
			RawText:      text[m[0]:m[1]],
			Kind:         model.AnchorAbsolute,
			Year:         year,
			Month:        month,
			Day:          day,
			TwoDigitYear: true,
		}, m[0], m[1])
	}

	// Restore document order: the pattern passes above interleave.
	sortAnchorsByOffset(anchors)
	return anchors
}

// parseAbsolute extracts Y/M/D from a submatch, handling the US
// month-first layout
func parseAbsolute(p *regexp.Regexp, text string, m []int) (year, month, day int) {
	g1, _ := strconv.Atoi(text[m[2]:m[3]])
	g2, _ := strconv.Atoi(text[m[4]:m[5]])
	g3, _ := strconv.Atoi(text[m[6]:m[7]])
	if p == usDatePattern {
		return g3, g1, g2
	}
	return g1, g2, g3
}

// expandTwoDigitYear maps a 2-digit year to the century that keeps it
// in plausible clinical-record range
func expandTwoDigitYear(yy int) int {
	if yy <= 49 {
		return 2000 + yy
	}
	return 1900 + yy
}

// plausibleDate filters matches that are digit runs but not dates
func plausibleDate(year, month, day int) bool {
	return year >= 1900 && year <= 2100 &&
		month >= 1 && month <= 12 &&
		day >= 1 && day <= 31
}

// contextWindow slices the fixed-radius context around a span
func contextWindow(text string, start, end int) string {
	lo := start - ContextRadius
	if lo < 0 {
		lo = 0
	}
	hi := end + ContextRadius
	if hi > len(text) {
		hi = len(text)
	}
	return text[lo:hi]
}

// classifyContext assigns an anchor category by keyword proximity
func classifyContext(context string) model.AnchorCategory {
	lower := strings.ToLower(context)
	for _, ck := range categoryKeywords {
		for _, w := range ck.words {
			if strings.Contains(lower, w) {
				return ck.category
			}
		}
	}
	return model.CategoryUnknown
}

func parseUnit(word string) model.DateUnit {
	switch strings.TrimSuffix(word, "s") {
	case "day":
		return model.UnitDays
	case "week":
		return model.UnitWeeks
	case "month":
		return model.UnitMonths
	default:
		return model.UnitYears
	}
}

func isBeforeWord(word string) bool {
	return word == "before" || word == "prior to"
}

// sortAnchorsByOffset orders anchors by byte offset (insertion sort;
// anchor lists per block are short)
func sortAnchorsByOffset(anchors []model.Anchor) {
	for i := 1; i < len(anchors); i++ {
		for j := i; j > 0 && anchors[j].Offset < anchors[j-1].Offset; j-- {
			anchors[j], anchors[j-1] = anchors[j-1], anchors[j]
		}
	}
}
