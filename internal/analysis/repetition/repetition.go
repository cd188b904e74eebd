// Package repetition flags words that reappear too close to their previous
// occurrence.
//
// Words are split into two classes. Common words (articles, pronouns,
// auxiliaries, frequent dialogue verbs) repeat naturally and are checked with
// a tighter window; everything else is checked with a wider one because an
// uncommon word showing up twice in quick succession is far more noticeable to
// a reader. Distances are measured in word ordinals, not bytes.
//
// Only adjacent occurrences of the same word are compared (k with k+1), so a
// word used n times yields at most n-1 matches.
package repetition

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/MrWong99/quillmate/pkg/types"
)

const (
	// DefaultCommonWindow is the largest word distance at which a repeated
	// common word is still reported.
	DefaultCommonWindow = 150

	// DefaultUncommonWindow is the largest word distance at which a repeated
	// uncommon word is still reported.
	DefaultUncommonWindow = 168
)

// Detector finds repeated words within class-specific windows.
// A Detector is immutable after construction and safe for concurrent use.
type Detector struct {
	commonWindow   int
	uncommonWindow int
	common         map[string]struct{}
}

// Option is a functional option for configuring a [Detector].
type Option func(*Detector)

// WithWindows sets the common and uncommon word windows. Non-positive values
// are ignored. If the uncommon window would end up smaller than the common
// window it is raised to match, keeping uncommon repeats at least as visible.
func WithWindows(common, uncommon int) Option {
	return func(d *Detector) {
		if common > 0 {
			d.commonWindow = common
		}
		if uncommon > 0 {
			d.uncommonWindow = uncommon
		}
	}
}

// WithCommonWords replaces the common-word set. Words are matched lowercased.
func WithCommonWords(words []string) Option {
	return func(d *Detector) {
		d.common = make(map[string]struct{}, len(words))
		for _, w := range words {
			d.common[lower(w)] = struct{}{}
		}
	}
}

// New creates a Detector with the default windows and common-word set.
func New(opts ...Option) *Detector {
	d := &Detector{
		commonWindow:   DefaultCommonWindow,
		uncommonWindow: DefaultUncommonWindow,
		common:         defaultCommonWords,
	}
	for _, o := range opts {
		o(d)
	}
	if d.uncommonWindow < d.commonWindow {
		d.uncommonWindow = d.commonWindow
	}
	return d
}

// Windows returns the configured common and uncommon windows.
func (d *Detector) Windows() (common, uncommon int) {
	return d.commonWindow, d.uncommonWindow
}

// IsCommon reports whether word belongs to the common-word set.
func (d *Detector) IsCommon(word string) bool {
	_, ok := d.common[lower(word)]
	return ok
}

// Detect returns every adjacent pair of identical words whose word distance is
// within the word's class window. The result is ordered by the ordinal of the
// first occurrence, then the second, and is never nil.
func (d *Detector) Detect(tokens []types.Token) []types.RepetitionMatch {
	out := []types.RepetitionMatch{}
	last := make(map[string]types.Token, len(tokens))

	for _, tok := range tokens {
		prev, seen := last[tok.Word]
		last[tok.Word] = tok
		if !seen {
			continue
		}

		distance := tok.Ordinal - prev.Ordinal
		if distance <= 0 {
			continue
		}
		common := d.IsCommon(tok.Word)
		window := d.uncommonWindow
		if common {
			window = d.commonWindow
		}
		if distance > window {
			continue
		}

		out = append(out, types.RepetitionMatch{
			Word: tok.Word,
			Occurrences: [2]types.Occurrence{
				{Span: prev.Span, Ordinal: prev.Ordinal},
				{Span: tok.Span, Ordinal: tok.Ordinal},
			},
			WordDistance: distance,
			IsCommonWord: common,
			Reason:       fmt.Sprintf("%q repeated %d words apart", tok.Word, distance),
		})
	}

	slices.SortFunc(out, func(a, b types.RepetitionMatch) int {
		if c := cmp.Compare(a.Occurrences[0].Ordinal, b.Occurrences[0].Ordinal); c != 0 {
			return c
		}
		return cmp.Compare(a.Occurrences[1].Ordinal, b.Occurrences[1].Ordinal)
	})
	return out
}
