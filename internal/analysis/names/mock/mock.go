// Package mock provides a test double for the names.Tagger interface.
//
// Example:
//
//	tg := &mock.Tagger{
//	    People: []names.Tag{{Surface: "Ana"}},
//	}
//	ents := names.New(tg).Extract(text)
package mock

import (
	"sync"

	"github.com/MrWong99/quillmate/internal/analysis/names"
)

// Tagger is a mock implementation of names.Tagger. It returns the configured
// tags verbatim and records the text of every call.
type Tagger struct {
	mu sync.Mutex

	// --- Configurable responses ---

	People      []names.Tag
	Places      []names.Tag
	ProperNouns []names.Tag

	// --- Call records (read after test) ---

	// Calls holds the text passed to each method, keyed by method name.
	Calls map[string][]string
}

// TagPeople records the call and returns People.
func (t *Tagger) TagPeople(text string) []names.Tag {
	t.record("TagPeople", text)
	return t.People
}

// TagPlaces records the call and returns Places.
func (t *Tagger) TagPlaces(text string) []names.Tag {
	t.record("TagPlaces", text)
	return t.Places
}

// TagProperNouns records the call and returns ProperNouns.
func (t *Tagger) TagProperNouns(text string) []names.Tag {
	t.record("TagProperNouns", text)
	return t.ProperNouns
}

// CallCount returns how often method was invoked.
func (t *Tagger) CallCount(method string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.Calls[method])
}

func (t *Tagger) record(method, text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Calls == nil {
		t.Calls = make(map[string][]string)
	}
	t.Calls[method] = append(t.Calls[method], text)
}

// Ensure Tagger implements names.Tagger at compile time.
var _ names.Tagger = (*Tagger)(nil)
