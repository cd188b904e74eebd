// Package consistency flags names in a chapter that look like misspellings of
// names the author has already established in earlier chapters.
//
// Every extracted name is compared against the author's registry with
// Jaro-Winkler similarity on case-folded, NFC-normalised strings. Every
// (candidate, tracked name) pair whose similarity falls in the band
// [0.8, 1.0) is flagged:
//
//   - 1.0 (or an exact match on any recorded variant) means the same name
//   - below 0.8 means an unrelated name
//
// The band is narrow on purpose. "Ana" against "Anna" sits inside it; "Ana"
// against "Ben" is far outside.
//
// Severity combines the similarity with a Double Metaphone check: a candidate
// that both scores at least 0.9 and sounds like the tracked name is a likely
// typo (high); one of the two signals gives medium; neither gives low.
package consistency

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/antzucaro/matchr"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/MrWong99/quillmate/pkg/types"
)

const (
	// DefaultMinSimilarity is the lower bound of the flagging band.
	DefaultMinSimilarity = 0.8

	// strongSimilarity marks a match close enough to count towards high
	// severity.
	strongSimilarity = 0.9
)

// Checker compares candidate names against a registry. It holds no state
// beyond its configuration and is safe for concurrent use.
type Checker struct {
	minSimilarity float64
}

// Option is a functional option for configuring a [Checker].
type Option func(*Checker)

// WithMinSimilarity sets the lower bound of the flagging band. Values outside
// (0, 1) are ignored.
func WithMinSimilarity(min float64) Option {
	return func(c *Checker) {
		if min > 0 && min < 1 {
			c.minSimilarity = min
		}
	}
}

// New creates a Checker.
func New(opts ...Option) *Checker {
	c := &Checker{minSimilarity: DefaultMinSimilarity}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Normalize case-folds and NFC-normalises a name for comparison.
func Normalize(name string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(name)))
}

// Similarity returns the case-insensitive Jaro-Winkler similarity of a and b
// in [0, 1].
func Similarity(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == nb {
		return 1
	}
	if na == "" || nb == "" {
		return 0
	}
	return matchr.JaroWinkler(na, nb, false)
}

// Check returns one flag for every tracked name whose similarity to a
// candidate lies in the flagging band. A tracked name's similarity is the
// highest over its canonical form and variants. Candidates that exactly match
// any tracked name or variant are consistent and never flagged. An empty
// registry yields no flags. Flags follow the order of candidates; the flags of
// one candidate are sorted by similarity, highest first. The result is never
// nil.
func (c *Checker) Check(candidates []types.NamedEntity, registry []types.TrackedName) []types.ConsistencyFlag {
	out := []types.ConsistencyFlag{}
	if len(registry) == 0 {
		return out
	}

	known := make(map[string]struct{}, len(registry)*2)
	for _, tn := range registry {
		known[Normalize(tn.CanonicalName)] = struct{}{}
		for _, v := range tn.Variants {
			known[Normalize(v)] = struct{}{}
		}
	}

	for _, cand := range candidates {
		nc := Normalize(cand.Name)
		if nc == "" {
			continue
		}
		if _, ok := known[nc]; ok {
			continue
		}

		var flags []types.ConsistencyFlag
		for _, tn := range registry {
			forms := formsOf(tn)
			var sim float64
			for _, f := range forms {
				sim = max(sim, matchr.JaroWinkler(nc, f, false))
			}
			if sim < c.minSimilarity || sim >= 1 {
				continue
			}
			flags = append(flags, types.ConsistencyFlag{
				CandidateName:  cand.Name,
				MatchedTracked: tn.CanonicalName,
				Similarity:     sim,
				Occurrences:    append([]types.Span(nil), cand.Occurrences...),
				Severity:       severity(sim, soundsAlike(nc, forms)),
			})
		}
		slices.SortStableFunc(flags, func(a, b types.ConsistencyFlag) int {
			return cmp.Compare(b.Similarity, a.Similarity)
		})
		out = append(out, flags...)
	}
	return out
}

// Describe renders a flag as a human-readable issue line.
func Describe(f types.ConsistencyFlag) string {
	return fmt.Sprintf("Possible spelling inconsistency: %q vs %q", f.CandidateName, f.MatchedTracked)
}

func formsOf(tn types.TrackedName) []string {
	forms := []string{Normalize(tn.CanonicalName)}
	for _, v := range tn.Variants {
		if nv := Normalize(v); nv != "" && nv != forms[0] {
			forms = append(forms, nv)
		}
	}
	return forms
}

func severity(sim float64, phonetic bool) types.Severity {
	strong := sim >= strongSimilarity
	switch {
	case strong && phonetic:
		return types.SeverityHigh
	case strong || phonetic:
		return types.SeverityMedium
	default:
		return types.SeverityLow
	}
}

// soundsAlike reports whether any Double Metaphone code of candidate matches
// a code of any of the tracked forms.
func soundsAlike(candidate string, forms []string) bool {
	codes := metaphones(candidate)
	for _, f := range forms {
		for code := range metaphones(f) {
			if _, ok := codes[code]; ok {
				return true
			}
		}
	}
	return false
}

func metaphones(s string) map[string]struct{} {
	out := make(map[string]struct{}, 2)
	p, sec := matchr.DoubleMetaphone(strings.ReplaceAll(s, " ", ""))
	if p != "" {
		out[p] = struct{}{}
	}
	if sec != "" {
		out[sec] = struct{}{}
	}
	return out
}
