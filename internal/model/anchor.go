package model

// AnchorKind classifies how a date-bearing span expresses its date
type AnchorKind string

const (
	AnchorAbsolute AnchorKind = "absolute" // Full calendar date (e.g., 2023-05-01)
	AnchorRelative AnchorKind = "relative" // Offset from another event ("3 days after admission")
	AnchorNested   AnchorKind = "nested"   // Indirect reference ("same day as the above visit")
)

// AnchorCategory is the clinical context a date anchor is attached to,
// derived from keywords near the span
type AnchorCategory string

const (
	CategoryAdmission AnchorCategory = "admission"
	CategoryDischarge AnchorCategory = "discharge"
	CategoryVisit     AnchorCategory = "visit"
	CategoryDiagnosis AnchorCategory = "diagnosis"
	CategorySurgery   AnchorCategory = "surgery"
	CategoryTest      AnchorCategory = "test"
	CategoryPolicy    AnchorCategory = "policy"
	CategoryUnknown   AnchorCategory = "unknown"
)

// DateUnit is the unit of a relative offset
type DateUnit string

const (
	UnitDays   DateUnit = "days"
	UnitWeeks  DateUnit = "weeks"
	UnitMonths DateUnit = "months"
	UnitYears  DateUnit = "years"
)

// RelativeRef captures the parsed parts of a relative date phrase
type RelativeRef struct {
	Amount int            `json:"amount"`           // Offset magnitude
	Unit   DateUnit       `json:"unit"`             // Offset unit
	Before bool           `json:"before"`           // Direction relative to the target
	Target AnchorCategory `json:"target,omitempty"` // Category of the anchor being referenced
}

// Anchor is a date-bearing text span found by the scanner.
// Anchors are immutable once created; resolution never rewrites them.
type Anchor struct {
	RawText      string         `json:"raw_text"`           // Matched span text
	Kind         AnchorKind     `json:"kind"`               // absolute, relative, nested
	Context      string         `json:"context,omitempty"`  // Surrounding text window
	Offset       int            `json:"offset"`             // Byte offset in the source block
	Block        int            `json:"block"`              // Index of the source text block
	Category     AnchorCategory `json:"category"`           // Keyword-proximity classification
	Relative     *RelativeRef   `json:"relative,omitempty"` // Parsed offset, relative kind only
	NestedTarget AnchorCategory `json:"nested_target,omitempty"` // Referenced category, nested kind only
	TwoDigitYear bool           `json:"two_digit_year,omitempty"`

	// Absolute anchors carry their parsed components. Zero for other kinds.
	Year  int `json:"year,omitempty"`
	Month int `json:"month,omitempty"`
	Day   int `json:"day,omitempty"`
}

// TextBlock is one unit of extracted document text supplied by ingestion
type TextBlock struct {
	Text   string `json:"text"`
	Page   int    `json:"page,omitempty"`
	Offset int    `json:"offset,omitempty"`
	Source string `json:"source,omitempty"` // Originating file, when known
}
