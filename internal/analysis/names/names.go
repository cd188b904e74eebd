// Package names extracts proper names from chapter text and classifies them as
// people, places or other proper nouns.
//
// The Extractor owns the merge rules (confidence, noise filtering, collapsing
// occurrences per surface form). The actual recognition is delegated to a
// [Tagger], so a statistical tagger or an external NLP service can replace the
// built-in [Heuristic] without touching the merge logic.
package names

import (
	"cmp"
	"slices"
	"unicode/utf8"

	"github.com/MrWong99/quillmate/internal/analysis/tokenize"
	"github.com/MrWong99/quillmate/pkg/types"
)

const (
	// ConfidenceTagged is assigned to names the tagger classified as a person
	// or a place.
	ConfidenceTagged = 0.8

	// ConfidenceProperNoun is assigned to names only recognised as generic
	// proper nouns.
	ConfidenceProperNoun = 0.6

	// MinNameRunes is the shortest name kept; shorter surfaces are noise.
	MinNameRunes = 2
)

// Tag is one tagged occurrence of a surface form. A zero Span asks the
// Extractor to locate the surface itself.
type Tag struct {
	Surface string
	Span    types.Span
}

// Tagger classifies spans of text. Implementations must be safe for concurrent
// use and must not fail: an empty result means nothing was recognised.
type Tagger interface {
	// TagPeople returns occurrences of person names.
	TagPeople(text string) []Tag

	// TagPlaces returns occurrences of place names.
	TagPlaces(text string) []Tag

	// TagProperNouns returns occurrences of any proper noun. The result may
	// include people and places already reported by the other methods.
	TagProperNouns(text string) []Tag
}

// Extractor merges tagger output into one NamedEntity per surface form.
type Extractor struct {
	tagger Tagger
}

// New creates an Extractor backed by tagger.
func New(tagger Tagger) *Extractor {
	return &Extractor{tagger: tagger}
}

// Extract returns the named entities in text ordered by first occurrence.
// Surface forms are compared case-sensitively. The result is never nil.
func (e *Extractor) Extract(text string) []types.NamedEntity {
	if text == "" {
		return []types.NamedEntity{}
	}

	byName := make(map[string]*types.NamedEntity)
	add := func(tags []Tag, kind types.EntityKind, confidence float64) {
		for _, tag := range tags {
			if utf8.RuneCountInString(tag.Surface) < MinNameRunes {
				continue
			}
			ent, ok := byName[tag.Surface]
			if !ok {
				ent = &types.NamedEntity{Name: tag.Surface, Kind: kind, Confidence: confidence}
				byName[tag.Surface] = ent
			} else if ent.Kind != kind && kind != types.EntityOther {
				// First classification wins; generic proper nouns never
				// demote an already classified name.
				continue
			}
			ent.Occurrences = append(ent.Occurrences, resolve(text, tag)...)
		}
	}

	add(e.tagger.TagPeople(text), types.EntityPerson, ConfidenceTagged)
	add(e.tagger.TagPlaces(text), types.EntityPlace, ConfidenceTagged)

	var generic []Tag
	for _, tag := range e.tagger.TagProperNouns(text) {
		if _, known := byName[tag.Surface]; !known || byName[tag.Surface].Kind == types.EntityOther {
			generic = append(generic, tag)
		}
	}
	add(generic, types.EntityOther, ConfidenceProperNoun)

	out := make([]types.NamedEntity, 0, len(byName))
	for _, ent := range byName {
		ent.Occurrences = normalizeSpans(ent.Occurrences)
		if len(ent.Occurrences) == 0 {
			continue
		}
		out = append(out, *ent)
	}
	slices.SortFunc(out, func(a, b types.NamedEntity) int {
		if c := cmp.Compare(a.Occurrences[0].Start, b.Occurrences[0].Start); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return out
}

// resolve returns the verified span of tag, or every whole-word occurrence of
// its surface when the tagger supplied no usable span.
func resolve(text string, tag Tag) []types.Span {
	s := tag.Span
	if s.Valid(len(text)) && text[s.Start:s.End] == tag.Surface {
		return []types.Span{s}
	}
	return Occurrences(text, tag.Surface)
}

// Occurrences returns every case-sensitive, whole-word occurrence of surface
// in text.
func Occurrences(text, surface string) []types.Span {
	return tokenize.Find(text, surface)
}

func normalizeSpans(spans []types.Span) []types.Span {
	slices.SortFunc(spans, func(a, b types.Span) int {
		if c := cmp.Compare(a.Start, b.Start); c != 0 {
			return c
		}
		return cmp.Compare(a.End, b.End)
	})
	return slices.Compact(spans)
}
