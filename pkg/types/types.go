// Package types defines the shared data model used across all Quillmate packages.
//
// These types form the lingua franca between the tokenizer, the detectors, the
// correction orchestrator and the outer surfaces (HTTP, MCP, persistence). Each
// package keeps its own working types, but everything that crosses a package
// boundary lives here to avoid circular imports.
//
// All spans are half-open byte ranges into the ORIGINAL chapter text, never the
// corrected text, so text[span.Start:span.End] reproduces the reported surface
// form.
package types

import "fmt"

// Span is a half-open range [Start, End) of byte offsets into the original text.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of bytes covered by s.
func (s Span) Len() int { return s.End - s.Start }

// Valid reports whether s addresses a non-empty range inside a text of length n.
func (s Span) Valid(n int) bool { return s.Start >= 0 && s.Start < s.End && s.End <= n }

// Contains reports whether o lies entirely within s.
func (s Span) Contains(o Span) bool { return o.Start >= s.Start && o.End <= s.End }

// Overlaps reports whether s and o share at least one byte.
func (s Span) Overlaps(o Span) bool { return s.Start < o.End && o.Start < s.End }

// String implements [fmt.Stringer].
func (s Span) String() string { return fmt.Sprintf("[%d,%d)", s.Start, s.End) }

// Token is a single word produced by the tokenizer.
type Token struct {
	// Word is the lowercased word. Span addresses the original casing.
	Word string `json:"word"`
	Span Span   `json:"span"`

	// Ordinal is the 0-based position of the token among all word tokens in
	// the text. Word distances are measured in ordinals, not bytes.
	Ordinal int `json:"ordinal"`
}

// Occurrence pins one appearance of a repeated word.
type Occurrence struct {
	Span    Span `json:"span"`
	Ordinal int  `json:"ordinal"`
}

// RepetitionMatch reports a word that reappears within its class window.
type RepetitionMatch struct {
	Word         string        `json:"word"`
	Occurrences  [2]Occurrence `json:"occurrences"`
	WordDistance int           `json:"wordDistance"`
	IsCommonWord bool          `json:"isCommonWord"`
	Reason       string        `json:"reason"`
}

// DialogueSpan is one quoted region, optionally followed by its attribution.
// The span covers the quote and, when present, the attribution clause.
type DialogueSpan struct {
	Span        Span   `json:"span"`
	QuoteChar   string `json:"quoteChar"`
	Text        string `json:"text"`
	Attribution string `json:"attribution,omitempty"`
}

// EntityKind classifies a named entity.
type EntityKind string

const (
	EntityPerson EntityKind = "person"
	EntityPlace  EntityKind = "place"
	EntityOther  EntityKind = "other"
)

// IsValid reports whether k is one of the defined entity kinds.
func (k EntityKind) IsValid() bool {
	switch k {
	case EntityPerson, EntityPlace, EntityOther:
		return true
	}
	return false
}

// NamedEntity is one distinct (case-sensitive) proper name found in a text.
type NamedEntity struct {
	Name        string     `json:"name"`
	Kind        EntityKind `json:"kind"`
	Confidence  float64    `json:"confidence"`
	Occurrences []Span     `json:"occurrences"`
}

// TrackedName is an author-scoped registry entry that persists across chapters.
// Variants always contains CanonicalName.
type TrackedName struct {
	CanonicalName    string     `json:"canonicalName" yaml:"canonical_name"`
	Kind             EntityKind `json:"kind" yaml:"kind"`
	FirstSeenChapter int        `json:"firstSeenChapter" yaml:"first_seen_chapter"`
	Variants         []string   `json:"variants" yaml:"variants"`
}

// Severity grades a flag for display.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// ConsistencyFlag marks a name that is suspiciously close to, but not the same
// as, a tracked name.
type ConsistencyFlag struct {
	CandidateName  string   `json:"candidateName"`
	MatchedTracked string   `json:"matchedTracked"`
	Similarity     float64  `json:"similarity"`
	Occurrences    []Span   `json:"occurrences"`
	Severity       Severity `json:"severity"`
}

// CorrectionKind classifies a correction.
type CorrectionKind string

const (
	KindTypo        CorrectionKind = "typo"
	KindSpelling    CorrectionKind = "spelling"
	KindPunctuation CorrectionKind = "punctuation"
	KindQuotation   CorrectionKind = "quotation"
	KindGrammar     CorrectionKind = "grammar"
	KindConsistency CorrectionKind = "consistency"
)

// IsValid reports whether k is one of the defined correction kinds.
func (k CorrectionKind) IsValid() bool {
	switch k {
	case KindTypo, KindSpelling, KindPunctuation, KindQuotation, KindGrammar, KindConsistency:
		return true
	}
	return false
}

// AllowedInDialogue reports whether corrections of kind k may touch dialogue.
// Dialogue grammar is authorial voice and stays untouched.
func (k CorrectionKind) AllowedInDialogue() bool {
	return k == KindSpelling || k == KindQuotation
}

// CorrectionSource records which path produced a correction.
type CorrectionSource string

const (
	SourceAI   CorrectionSource = "ai"
	SourceRule CorrectionSource = "rule"
)

// Correction is one span-addressed edit to the original text.
type Correction struct {
	Original   string           `json:"original"`
	Corrected  string           `json:"corrected"`
	Kind       CorrectionKind   `json:"kind"`
	Span       Span             `json:"span"`
	Confidence float64          `json:"confidence"`
	Source     CorrectionSource `json:"source"`
}

// AwkwardPhrase is a phrase an editor model considers clumsy.
type AwkwardPhrase struct {
	Phrase     string `json:"phrase"`
	Suggestion string `json:"suggestion"`
	Reason     string `json:"reason"`
	Span       Span   `json:"span"`
}

// HighlightKind names the source of a UI highlight.
type HighlightKind string

const (
	HighlightRepetition    HighlightKind = "repetition"
	HighlightAwkward       HighlightKind = "awkward-phrasing"
	HighlightInconsistency HighlightKind = "inconsistency"
	HighlightCorrection    HighlightKind = "correction"
)

// Highlight is a flattened, display-ready annotation over the original text.
type Highlight struct {
	Span       Span          `json:"span"`
	Kind       HighlightKind `json:"kind"`
	Text       string        `json:"text"`
	Reason     string        `json:"reason"`
	Suggestion string        `json:"suggestion,omitempty"`
	Severity   Severity      `json:"severity"`
}

// Statistics summarises the shape of a chapter.
type Statistics struct {
	WordCount      int `json:"wordCount"`
	CharacterCount int `json:"characterCount"`
	SentenceCount  int `json:"sentenceCount"`
	ParagraphCount int `json:"paragraphCount"`
	DialogueCount  int `json:"dialogueCount"`

	// DialogueRatio is the fraction of text bytes inside dialogue spans, in [0,1].
	DialogueRatio float64 `json:"dialogueRatio"`

	// AverageDialogueLength is the mean dialogue span length in runes.
	AverageDialogueLength float64 `json:"averageDialogueLength"`
}

// TokenUsage accumulates model token accounting across one analysis.
type TokenUsage struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

// Add accumulates o into u.
func (u *TokenUsage) Add(o TokenUsage) {
	u.Prompt += o.Prompt
	u.Completion += o.Completion
	u.Total += o.Total
}

// Feedback is the editorial summary of a chapter.
type Feedback struct {
	LiteraryFeedback string   `json:"literaryFeedback"`
	Corrections      []string `json:"corrections"`
}

// AnalysisResult is the aggregate of one chapter analysis. Every collection is
// non-nil so that serialised results always carry arrays.
type AnalysisResult struct {
	CorrectedText string            `json:"correctedText"`
	Corrections   []Correction      `json:"corrections"`
	Repetitions   []RepetitionMatch `json:"repetitions"`
	Dialogue      []DialogueSpan    `json:"dialogue"`
	Names         []NamedEntity     `json:"names"`
	Consistency   []ConsistencyFlag `json:"consistency"`
	Awkward       []AwkwardPhrase   `json:"awkwardPhrasing"`
	Highlights    []Highlight       `json:"highlights"`
	Statistics    Statistics        `json:"statistics"`
	CorrectedBy   CorrectionSource  `json:"correctedBy"`
	Feedback      *Feedback         `json:"feedback,omitempty"`
	Usage         TokenUsage        `json:"usage"`
	Diagnostics   []string          `json:"diagnostics,omitempty"`
}

// NewAnalysisResult returns a result with every collection initialised empty.
func NewAnalysisResult(text string) *AnalysisResult {
	return &AnalysisResult{
		CorrectedText: text,
		Corrections:   []Correction{},
		Repetitions:   []RepetitionMatch{},
		Dialogue:      []DialogueSpan{},
		Names:         []NamedEntity{},
		Consistency:   []ConsistencyFlag{},
		Awkward:       []AwkwardPhrase{},
		Highlights:    []Highlight{},
		CorrectedBy:   SourceRule,
	}
}
