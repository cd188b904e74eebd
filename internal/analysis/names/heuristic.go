package names

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/MrWong99/quillmate/internal/analysis/dialogue"
	"github.com/MrWong99/quillmate/internal/analysis/tokenize"
	"github.com/MrWong99/quillmate/pkg/types"
)

// Compile-time interface assertion.
var _ Tagger = (*Heuristic)(nil)

// Heuristic is a rule-based capitalisation tagger.
//
// Runs of capitalised words are name candidates. A candidate that only ever
// appears at the start of a sentence is dropped unless some cue backs it up,
// which keeps "Hello" or "Suddenly" out of the results. Cues vote for a kind:
//
//   - person: honorific before the name, a speech verb next to it, a
//     possessive "'s", or membership in the known-people list
//   - place: a locative preposition before the name, a place suffix or
//     prefix word, or membership in the known-places list
//
// A candidate with more person votes than place votes (or a tie with at least
// one person vote) is a person, more place votes make it a place, and anything
// else is a generic proper noun.
type Heuristic struct {
	knownPeople map[string]struct{}
	knownPlaces map[string]struct{}
	speechVerbs map[string]struct{}
}

// HeuristicOption is a functional option for configuring a [Heuristic].
type HeuristicOption func(*Heuristic)

// WithKnownPeople adds names that are always classified as people.
func WithKnownPeople(names ...string) HeuristicOption {
	return func(h *Heuristic) {
		for _, n := range names {
			h.knownPeople[n] = struct{}{}
		}
	}
}

// WithKnownPlaces adds names that are always classified as places.
func WithKnownPlaces(names ...string) HeuristicOption {
	return func(h *Heuristic) {
		for _, n := range names {
			h.knownPlaces[n] = struct{}{}
		}
	}
}

// NewHeuristic creates a Heuristic tagger.
func NewHeuristic(opts ...HeuristicOption) *Heuristic {
	h := &Heuristic{
		knownPeople: make(map[string]struct{}),
		knownPlaces: make(map[string]struct{}),
		speechVerbs: make(map[string]struct{}, len(dialogue.SpeechVerbs)),
	}
	for _, v := range dialogue.SpeechVerbs {
		h.speechVerbs[v] = struct{}{}
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// TagPeople implements [Tagger].
func (h *Heuristic) TagPeople(text string) []Tag {
	return h.tagKind(text, types.EntityPerson)
}

// TagPlaces implements [Tagger].
func (h *Heuristic) TagPlaces(text string) []Tag {
	return h.tagKind(text, types.EntityPlace)
}

// TagProperNouns implements [Tagger]. It reports every kept candidate,
// whatever its kind.
func (h *Heuristic) TagProperNouns(text string) []Tag {
	return h.tagKind(text, "")
}

func (h *Heuristic) tagKind(text string, kind types.EntityKind) []Tag {
	var out []Tag
	for _, c := range h.classify(text) {
		if kind != "" && c.kind != kind {
			continue
		}
		for _, s := range c.spans {
			out = append(out, Tag{Surface: c.surface, Span: s})
		}
	}
	return out
}

// ── Candidate collection ─────────────────────────────────────────────────────

type candidate struct {
	surface     string
	spans       []types.Span
	person      int
	place       int
	midSentence int
	kind        types.EntityKind
}

func (h *Heuristic) classify(text string) []*candidate {
	toks := tokenize.All(text)
	byName := make(map[string]*candidate)
	var order []*candidate

	for i := 0; i < len(toks); {
		if !capitalised(text, toks[i]) {
			i++
			continue
		}
		start, end := i, groupEnd(text, toks, i)
		i = end

		person, place := 0, 0

		// Honorifics belong to the title, not the name.
		for start < end && isHonorific(toks[start].Word) {
			person += 2
			start++
		}
		if start == end {
			continue
		}

		initial := sentenceInitial(text, toks[start].Span.Start)
		if initial && (isWeak(toks[start].Word) || strings.HasSuffix(toks[start].Word, "ly")) {
			start++
			initial = false
			if start == end {
				continue
			}
		}

		span := types.Span{Start: toks[start].Span.Start, End: toks[end-1].Span.End}
		surface := text[span.Start:span.End]
		if utf8.RuneCountInString(surface) < MinNameRunes {
			continue
		}

		prev, prevDotted := neighbour(text, toks, start-1, span.Start)
		next, nextDotted := neighbour(text, toks, end, span.End)
		if isHonorific(prev) {
			person += 2
		}
		if prevDotted {
			prev = ""
		}
		if nextDotted {
			next = ""
		}
		if _, ok := h.speechVerbs[prev]; ok {
			person++
		}
		if _, ok := h.speechVerbs[next]; ok {
			person++
		}
		if possessive(text, span.End) {
			person++
		}
		if _, ok := locatives[prev]; ok {
			place++
		}
		if _, ok := placeWords[toks[end-1].Word]; ok && end-start > 1 {
			place += 2
		}
		if _, ok := placeWords[toks[start].Word]; ok && end-start > 1 {
			place += 2
		}

		if person == 0 && place == 0 && isWeak(strings.ToLower(surface)) {
			continue
		}

		c, ok := byName[surface]
		if !ok {
			c = &candidate{surface: surface}
			byName[surface] = c
			order = append(order, c)
		}
		c.spans = append(c.spans, span)
		c.person += person
		c.place += place
		if !initial {
			c.midSentence++
		}
	}

	kept := order[:0]
	for _, c := range order {
		if _, ok := h.knownPeople[c.surface]; ok {
			c.person += 3
		}
		if _, ok := h.knownPlaces[c.surface]; ok {
			c.place += 3
		}
		if c.midSentence == 0 && c.person == 0 && c.place == 0 {
			continue
		}
		switch {
		case c.person > 0 && c.person >= c.place:
			c.kind = types.EntityPerson
		case c.place > c.person:
			c.kind = types.EntityPlace
		default:
			c.kind = types.EntityOther
		}
		kept = append(kept, c)
	}
	return kept
}

// groupEnd returns the index one past the last token of the capitalised run
// starting at i. Words joined by a single space, or by a lowercase connector
// such as "of", stay in one run.
func groupEnd(text string, toks []types.Token, i int) int {
	j := i + 1
	for j < len(toks) {
		if !singleSpace(text, toks[j-1], toks[j]) {
			break
		}
		if capitalised(text, toks[j]) {
			j++
			continue
		}
		if _, ok := connectors[toks[j].Word]; ok && j+1 < len(toks) &&
			singleSpace(text, toks[j], toks[j+1]) && capitalised(text, toks[j+1]) {
			j += 2
			continue
		}
		break
	}
	return j
}

func singleSpace(text string, a, b types.Token) bool {
	return text[a.Span.End:b.Span.Start] == " "
}

func capitalised(text string, tok types.Token) bool {
	r, _ := utf8.DecodeRuneInString(text[tok.Span.Start:])
	return unicode.IsUpper(r)
}

// neighbour returns the lowercased word of toks[i] when only spaces separate
// it from the byte offset at. dotted reports a single abbreviation period in
// the gap ("Mr. Smith"); callers decide whether that still counts.
func neighbour(text string, toks []types.Token, i, at int) (word string, dotted bool) {
	if i < 0 || i >= len(toks) {
		return "", false
	}
	t := toks[i]
	var gap string
	if t.Span.End <= at {
		gap = text[t.Span.End:at]
	} else {
		gap = text[at:t.Span.Start]
	}
	if gap == "" || strings.Trim(gap, " .") != "" || strings.Count(gap, ".") > 1 {
		return "", false
	}
	return t.Word, strings.HasPrefix(gap, ".")
}

func possessive(text string, end int) bool {
	rest := text[end:]
	return strings.HasPrefix(rest, "'s") || strings.HasPrefix(rest, "’s")
}

// sentenceInitial reports whether the word at byte offset at opens a sentence:
// only whitespace, quotes or brackets lie between it and the start of the
// text, a line break, or terminal punctuation.
func sentenceInitial(text string, at int) bool {
	for at > 0 {
		r, size := utf8.DecodeLastRuneInString(text[:at])
		switch {
		case r == '\n':
			return true
		case unicode.IsSpace(r), strings.ContainsRune("\"'“”‘’([", r):
			at -= size
		case r == '.' || r == '!' || r == '?' || r == '…':
			return true
		default:
			return false
		}
	}
	return true
}

func isHonorific(w string) bool {
	_, ok := honorifics[w]
	return ok
}

func isWeak(w string) bool {
	_, ok := weakWords[w]
	return ok
}
