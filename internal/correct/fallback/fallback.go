// Package fallback is the rule-based correction path. It fixes only words in
// a fixed table of well-known typos ("teh" becomes "the") and never attempts
// grammar or style. It has no external dependency and cannot fail, which is
// what lets the orchestrator fall back to it unconditionally.
package fallback

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/quillmate/internal/analysis/tokenize"
	"github.com/MrWong99/quillmate/internal/correct"
	"github.com/MrWong99/quillmate/pkg/types"
)

// DefaultConfidence is below the confidence a language model typically
// reports, since a table entry knows nothing about context.
const DefaultConfidence = 0.75

var _ correct.Capability = (*Table)(nil)

// Table is an immutable typo table. It is safe for concurrent use.
type Table struct {
	typos      map[string]string
	confidence float64
}

// Option configures a [Table].
type Option func(*Table)

// WithConfidence overrides [DefaultConfidence]. Values outside (0, 1] are
// ignored.
func WithConfidence(c float64) Option {
	return func(t *Table) {
		if c > 0 && c <= 1 {
			t.confidence = c
		}
	}
}

// WithTypos adds entries on top of the built-in table. Keys are matched
// case-insensitively and must be single words.
func WithTypos(typos map[string]string) Option {
	return func(t *Table) {
		for k, v := range typos {
			t.typos[strings.ToLower(k)] = v
		}
	}
}

// New creates a table seeded with [DefaultTypos].
func New(opts ...Option) *Table {
	t := &Table{typos: maps.Clone(DefaultTypos), confidence: DefaultConfidence}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Len returns the number of entries.
func (t *Table) Len() int { return len(t.typos) }

// Correct implements [correct.Capability]. Every whole-word, case-insensitive
// match of a table key becomes a typo correction. The replacement copies the
// original's capitalisation: "Teh" becomes "The" and "TEH" becomes "THE".
// Nothing else in text is touched. hints are ignored: spelling fixes are
// allowed in dialogue.
func (t *Table) Correct(_ context.Context, text string, _ []types.DialogueSpan) (*correct.Proposal, error) {
	p := &correct.Proposal{}
	for tok := range tokenize.Tokens(text) {
		fix, ok := t.typos[tok.Word]
		if !ok {
			continue
		}
		original := text[tok.Span.Start:tok.Span.End]
		p.Corrections = append(p.Corrections, types.Correction{
			Original:   original,
			Corrected:  matchCase(original, fix),
			Kind:       types.KindTypo,
			Span:       tok.Span,
			Confidence: t.confidence,
			Source:     types.SourceRule,
		})
	}
	p.CorrectedText = correct.Apply(text, p.Corrections)
	return p, nil
}

func matchCase(original, fix string) string {
	first, _ := utf8.DecodeRuneInString(original)
	switch {
	case utf8.RuneCountInString(original) > 1 && strings.ToUpper(original) == original && strings.ToLower(original) != original:
		return strings.ToUpper(fix)
	case unicode.IsUpper(first):
		r, size := utf8.DecodeRuneInString(fix)
		return string(unicode.ToUpper(r)) + fix[size:]
	default:
		return fix
	}
}

// file is the YAML layout of a typo table file:
//
//	typos:
//	  teh: the
//	  recieve: receive
type file struct {
	Typos map[string]string `yaml:"typos"`
}

// LoadFile reads extra typo entries from a YAML file.
func LoadFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("fallback: open typo file: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load reads extra typo entries from YAML. Unknown keys, empty entries and
// multi-word keys are rejected.
func Load(r io.Reader) (map[string]string, error) {
	var f file
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("fallback: decode typo file: %w", err)
	}
	for k, v := range f.Typos {
		if toks := tokenize.All(k); len(toks) != 1 || toks[0].Span.Len() != len(k) {
			return nil, fmt.Errorf("fallback: typo %q must be a single word", k)
		}
		if strings.TrimSpace(v) == "" {
			return nil, fmt.Errorf("fallback: typo %q has an empty correction", k)
		}
	}
	return f.Typos, nil
}
