// Package dialogue locates quoted speech in chapter text and pairs each quote
// with its attribution clause.
//
// Quotes are matched naively: an opening mark pairs with the nearest following
// closing mark of the same style, and a pair never spans a blank line. Nested
// quotes of the same style are not supported. Nested quotes of a different
// style (a 'single' inside a "double") are found independently and discarded
// because they are contained in the outer span.
//
// Two patterns produce candidates. The bare pattern covers just the quote. The
// attributed pattern extends it over a trailing clause such as `said Ana` or
// `Ana whispered softly`. Overlapping candidates are resolved in favour of the
// attributed (longer) match, and anything contained in an accepted span is
// dropped, so the final spans never overlap.
package dialogue

import (
	"cmp"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/MrWong99/quillmate/internal/analysis/tokenize"
	"github.com/MrWong99/quillmate/pkg/types"
)

// SpeechVerbs is the built-in list of verbs that introduce an attribution.
var SpeechVerbs = []string{
	"said", "asked", "replied", "whispered", "shouted", "muttered",
	"exclaimed", "declared", "admitted", "confessed", "demanded", "insisted",
	"suggested", "observed", "remarked", "announced", "continued", "added",
	"concluded", "interrupted", "answered", "responded", "nodded", "smiled",
	"laughed", "sighed", "frowned", "grimaced", "shrugged", "paused",
}

// delimiter is an opening/closing quote pair.
type delimiter struct {
	open, close rune
}

var delimiters = []delimiter{
	{'"', '"'},
	{'\'', '\''},
	{'“', '”'},
	{'‘', '’'},
}

// Segmenter finds dialogue spans. It is immutable after construction and safe
// for concurrent use.
type Segmenter struct {
	verbs       []string
	attribution *regexp.Regexp
}

// Option is a functional option for configuring a [Segmenter].
type Option func(*Segmenter)

// WithSpeechVerbs replaces the speech-verb list used for attribution.
func WithSpeechVerbs(verbs []string) Option {
	return func(s *Segmenter) {
		s.verbs = slices.Clone(verbs)
	}
}

// New creates a Segmenter.
func New(opts ...Option) *Segmenter {
	s := &Segmenter{verbs: SpeechVerbs}
	for _, o := range opts {
		o(s)
	}
	s.attribution = compileAttribution(s.verbs)
	return s
}

// compileAttribution builds the pattern matched immediately after a closing
// quote. Group 1 captures the attribution clause: up to three capitalised
// name-like words or subject pronouns, a speech verb, then any clause text up
// to the next sentence boundary, line break or quote.
func compileAttribution(verbs []string) *regexp.Regexp {
	quoted := make([]string, 0, len(verbs))
	for _, v := range verbs {
		if v = strings.TrimSpace(v); v != "" {
			quoted = append(quoted, regexp.QuoteMeta(v))
		}
	}
	if len(quoted) == 0 {
		// Matches nothing: attribution disabled.
		return regexp.MustCompile(`$.^`)
	}
	subject := `(?:\p{Lu}[\p{L}'’-]*|[Hh]e|[Ss]he|[Tt]hey|I|[Ww]e|[Yy]ou)`
	verb := `(?i:` + strings.Join(quoted, "|") + `)`
	tail := `(?:[^.!?\n"'“”‘’]|\b['’]\b)*`
	return regexp.MustCompile(`^[,;:]?[ \t]*((?:` + subject + `[ \t]+){0,3}` + verb + `\b` + tail + `)`)
}

type candidate struct {
	span       types.Span
	quote      string
	attributed bool
	attr       string
}

// Segment returns the dialogue spans in text, sorted by start offset and
// pairwise non-overlapping. The result is never nil.
func (s *Segmenter) Segment(text string) []types.DialogueSpan {
	var cands []candidate
	for _, d := range delimiters {
		for _, q := range findQuotes(text, d) {
			cands = append(cands, candidate{span: q, quote: string(d.open)})
			if attr, end, ok := s.attribute(text, q.End); ok {
				cands = append(cands, candidate{
					span:       types.Span{Start: q.Start, End: end},
					quote:      string(d.open),
					attributed: true,
					attr:       attr,
				})
			}
		}
	}

	// Attributed before bare, then longest first, then leftmost.
	slices.SortStableFunc(cands, func(a, b candidate) int {
		if a.attributed != b.attributed {
			if a.attributed {
				return -1
			}
			return 1
		}
		if c := cmp.Compare(b.span.Len(), a.span.Len()); c != 0 {
			return c
		}
		return cmp.Compare(a.span.Start, b.span.Start)
	})

	var accepted []candidate
	for _, c := range cands {
		if slices.ContainsFunc(accepted, func(a candidate) bool { return a.span.Overlaps(c.span) }) {
			continue
		}
		accepted = append(accepted, c)
	}
	slices.SortFunc(accepted, func(a, b candidate) int { return cmp.Compare(a.span.Start, b.span.Start) })

	out := make([]types.DialogueSpan, 0, len(accepted))
	for _, c := range accepted {
		out = append(out, types.DialogueSpan{
			Span:        c.span,
			QuoteChar:   c.quote,
			Text:        text[c.span.Start:c.span.End],
			Attribution: c.attr,
		})
	}
	return out
}

// attribute matches an attribution clause starting at byte offset at. It
// returns the clause and the byte offset where it ends.
func (s *Segmenter) attribute(text string, at int) (string, int, bool) {
	m := s.attribution.FindStringSubmatchIndex(text[at:])
	if m == nil || m[2] < 0 {
		return "", 0, false
	}
	clause := strings.TrimRight(text[at+m[2]:at+m[3]], " \t,;:—–-")
	if clause == "" {
		return "", 0, false
	}
	return clause, at + m[2] + len(clause), true
}

// findQuotes returns the spans of every complete quote delimited by d,
// including the delimiters themselves. An opening mark without a closing mark
// in the same paragraph produces nothing.
func findQuotes(text string, d delimiter) []types.Span {
	var out []types.Span
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if r != d.open || !canOpen(text, i) {
			i += size
			continue
		}
		end, ok := findClose(text, i+size, d.close)
		if !ok {
			i += size
			continue
		}
		out = append(out, types.Span{Start: i, End: end})
		i = end
	}
	return out
}

// canOpen reports whether the mark at i may open a quote: it must not be glued
// to a preceding word, which rules out apostrophes such as "Ana's".
func canOpen(text string, i int) bool {
	if i == 0 {
		return true
	}
	prev, _ := utf8.DecodeLastRuneInString(text[:i])
	return !tokenize.IsWordRune(prev)
}

// findClose scans from offset from for a closing mark. It returns the offset
// just past the mark. Marks followed by a word character ("don't") are
// skipped, and a blank line ends the search.
func findClose(text string, from int, closer rune) (int, bool) {
	for j := from; j < len(text); {
		r, size := utf8.DecodeRuneInString(text[j:])
		switch {
		case r == '\n' && blankLineAt(text, j):
			return 0, false
		case r == closer && j > from:
			next, _ := utf8.DecodeRuneInString(text[j+size:])
			if j+size >= len(text) || !tokenize.IsWordRune(next) {
				return j + size, true
			}
		}
		j += size
	}
	return 0, false
}

// blankLineAt reports whether the newline at i is followed by an otherwise
// empty line.
func blankLineAt(text string, i int) bool {
	for k := i + 1; k < len(text); k++ {
		switch text[k] {
		case ' ', '\t', '\r':
			continue
		case '\n':
			return true
		default:
			return false
		}
	}
	return false
}
