// Package tokenize splits chapter text into word tokens with exact byte offsets.
//
// A word is a maximal run of Unicode word characters: letters, digits,
// combining marks and the underscore. The Word field of every token is
// lowercased while its Span always addresses the original text, so callers can
// highlight the author's own casing. Tokenizing the same text twice yields the
// same tokens; every other detector relies on that for stable results.
package tokenize

import (
	"iter"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/MrWong99/quillmate/pkg/types"
)

// IsWordRune reports whether r belongs to a word run.
func IsWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r)
}

// Tokens returns a lazy sequence of the word tokens in text, left to right.
// The sequence is restartable: each range over it rescans text from the start.
// Empty text yields nothing.
func Tokens(text string) iter.Seq[types.Token] {
	return func(yield func(types.Token) bool) {
		ordinal := 0
		start := -1
		for i := 0; i < len(text); {
			r, size := utf8.DecodeRuneInString(text[i:])
			if IsWordRune(r) && r != utf8.RuneError {
				if start < 0 {
					start = i
				}
			} else if start >= 0 {
				if !yield(newToken(text, start, i, ordinal)) {
					return
				}
				ordinal++
				start = -1
			}
			i += size
		}
		if start >= 0 {
			yield(newToken(text, start, len(text), ordinal))
		}
	}
}

func newToken(text string, start, end, ordinal int) types.Token {
	return types.Token{
		Word:    strings.ToLower(text[start:end]),
		Span:    types.Span{Start: start, End: end},
		Ordinal: ordinal,
	}
}

// All collects every token in text into a slice.
func All(text string) []types.Token {
	var out []types.Token
	for tok := range Tokens(text) {
		out = append(out, tok)
	}
	return out
}

// Count returns the number of word tokens in text.
func Count(text string) int {
	n := 0
	for range Tokens(text) {
		n++
	}
	return n
}

// Find returns the spans of every literal occurrence of sub in text, left to
// right. An occurrence that starts or ends with a word rune must not continue
// a longer word on that side, so "teh" is found in "teh." but not in
// "tehran". Edges made of punctuation or space match anywhere.
func Find(text, sub string) []types.Span {
	if sub == "" {
		return nil
	}
	first, _ := utf8.DecodeRuneInString(sub)
	last, _ := utf8.DecodeLastRuneInString(sub)
	checkLeft, checkRight := IsWordRune(first), IsWordRune(last)

	var out []types.Span
	for from := 0; from <= len(text)-len(sub); {
		i := strings.Index(text[from:], sub)
		if i < 0 {
			break
		}
		start := from + i
		end := start + len(sub)
		if (!checkLeft || !wordBefore(text, start)) && (!checkRight || !wordAfter(text, end)) {
			out = append(out, types.Span{Start: start, End: end})
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		from = start + size
	}
	return out
}

func wordBefore(text string, i int) bool {
	if i == 0 {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return IsWordRune(r)
}

func wordAfter(text string, i int) bool {
	if i >= len(text) {
		return false
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return IsWordRune(r)
}

// Anchor locates sub in text for a span reported by a model. hint is kept
// when it addresses sub exactly and is free; otherwise the occurrence of sub
// closest to hint.Start that overlaps nothing in taken is chosen. collided
// reports that sub does occur but every occurrence overlaps taken.
func Anchor(text, sub string, hint types.Span, taken []types.Span) (span types.Span, found, collided bool) {
	if hint.Valid(len(text)) && text[hint.Start:hint.End] == sub && !overlapsAny(hint, taken) {
		return hint, true, false
	}

	bestDist := -1
	for _, s := range Find(text, sub) {
		if overlapsAny(s, taken) {
			collided = true
			continue
		}
		d := s.Start - hint.Start
		if d < 0 {
			d = -d
		}
		if bestDist < 0 || d < bestDist {
			span, bestDist = s, d
		}
	}
	if bestDist < 0 {
		return types.Span{}, false, collided
	}
	return span, true, false
}

func overlapsAny(s types.Span, spans []types.Span) bool {
	for _, o := range spans {
		if s.Overlaps(o) {
			return true
		}
	}
	return false
}
