package dialogue_test

import (
	"testing"

	"github.com/MrWong99/quillmate/internal/analysis/dialogue"
	"github.com/MrWong99/quillmate/pkg/types"
)

func TestSegment_AttributedScenario(t *testing.T) {
	t.Parallel()

	text := `"Hello," said Ana. Ana walked home.`
	got := dialogue.New().Segment(text)
	if len(got) != 1 {
		t.Fatalf("Segment: got %d spans, want 1: %+v", len(got), got)
	}

	d := got[0]
	if d.Text != `"Hello," said Ana` {
		t.Errorf("Text = %q, want %q", d.Text, `"Hello," said Ana`)
	}
	if d.Attribution != "said Ana" {
		t.Errorf("Attribution = %q, want %q", d.Attribution, "said Ana")
	}
	if d.QuoteChar != `"` {
		t.Errorf("QuoteChar = %q, want %q", d.QuoteChar, `"`)
	}
	if text[d.Span.Start:d.Span.End] != d.Text {
		t.Errorf("span %v does not reproduce Text", d.Span)
	}
}

func TestSegment_NameBeforeVerb(t *testing.T) {
	t.Parallel()

	text := `"We should go," Ana whispered softly, glancing back.`
	got := dialogue.New().Segment(text)
	if len(got) != 1 {
		t.Fatalf("got %d spans, want 1", len(got))
	}
	if want := "Ana whispered softly, glancing back"; got[0].Attribution != want {
		t.Errorf("Attribution = %q, want %q", got[0].Attribution, want)
	}
}

func TestSegment_PronounAttribution(t *testing.T) {
	t.Parallel()

	got := dialogue.New().Segment(`"Fine," she said. "Whatever."`)
	if len(got) != 2 {
		t.Fatalf("got %d spans, want 2: %+v", len(got), got)
	}
	if got[0].Attribution != "she said" {
		t.Errorf("first Attribution = %q, want %q", got[0].Attribution, "she said")
	}
	if got[1].Attribution != "" {
		t.Errorf("second Attribution = %q, want empty", got[1].Attribution)
	}
	if got[1].Text != `"Whatever."` {
		t.Errorf("second Text = %q", got[1].Text)
	}
}

func TestSegment_BareQuote(t *testing.T) {
	t.Parallel()

	got := dialogue.New().Segment(`He shouted "Run!" and fled.`)
	if len(got) != 1 {
		t.Fatalf("got %d spans, want 1", len(got))
	}
	if got[0].Text != `"Run!"` || got[0].Attribution != "" {
		t.Errorf("got %+v, want bare quote", got[0])
	}
}

func TestSegment_Unterminated(t *testing.T) {
	t.Parallel()

	got := dialogue.New().Segment(`"Hello there, she began, and never finished.`)
	if got == nil || len(got) != 0 {
		t.Fatalf("got %+v, want empty non-nil slice", got)
	}
}

func TestSegment_DoesNotCrossParagraphs(t *testing.T) {
	t.Parallel()

	text := "\"Wait for me\n\nThe next morning\" came."
	if got := dialogue.New().Segment(text); len(got) != 0 {
		t.Fatalf("got %+v, want no spans across a blank line", got)
	}
}

func TestSegment_ApostrophesAreNotQuotes(t *testing.T) {
	t.Parallel()

	got := dialogue.New().Segment(`Ana's dog didn't bark. 'Quiet,' Ben said.`)
	if len(got) != 1 {
		t.Fatalf("got %d spans, want 1: %+v", len(got), got)
	}
	if got[0].QuoteChar != "'" {
		t.Errorf("QuoteChar = %q, want %q", got[0].QuoteChar, "'")
	}
	if got[0].Attribution != "Ben said" {
		t.Errorf("Attribution = %q, want %q", got[0].Attribution, "Ben said")
	}
}

func TestSegment_NestedQuoteDropped(t *testing.T) {
	t.Parallel()

	text := `"She told me 'never again' twice," Ben said.`
	got := dialogue.New().Segment(text)
	if len(got) != 1 {
		t.Fatalf("got %d spans, want 1 (inner quote contained): %+v", len(got), got)
	}
	if got[0].Span.Start != 0 {
		t.Errorf("outer span start = %d, want 0", got[0].Span.Start)
	}
}

func TestSegment_CurlyQuotes(t *testing.T) {
	t.Parallel()

	text := "“Don’t,” Mara said."
	got := dialogue.New().Segment(text)
	if len(got) != 1 {
		t.Fatalf("got %d spans, want 1: %+v", len(got), got)
	}
	if got[0].QuoteChar != "“" || got[0].Attribution != "Mara said" {
		t.Errorf("got %+v", got[0])
	}
}

func TestSegment_SortedNonOverlapping(t *testing.T) {
	t.Parallel()

	text := `"One," said Ana. 'Two,' Ben replied. "Three" and "four," he added, "five."`
	got := dialogue.New().Segment(text)
	if len(got) < 4 {
		t.Fatalf("got %d spans, want at least 4: %+v", len(got), got)
	}
	assertSortedDisjoint(t, text, got)
}

func TestSegment_CustomVerbs(t *testing.T) {
	t.Parallel()

	s := dialogue.New(dialogue.WithSpeechVerbs([]string{"growled"}))
	got := s.Segment(`"Back off," Ana growled. "Fine," Ben said.`)
	if len(got) != 2 {
		t.Fatalf("got %d spans, want 2", len(got))
	}
	if got[0].Attribution != "Ana growled" {
		t.Errorf("first Attribution = %q, want %q", got[0].Attribution, "Ana growled")
	}
	if got[1].Attribution != "" {
		t.Errorf("second Attribution = %q, want empty (said not configured)", got[1].Attribution)
	}
}

func assertSortedDisjoint(t *testing.T, text string, spans []types.DialogueSpan) {
	t.Helper()
	for i, d := range spans {
		if !d.Span.Valid(len(text)) {
			t.Errorf("span %d invalid: %v", i, d.Span)
		}
		if i == 0 {
			continue
		}
		prev := spans[i-1].Span
		if d.Span.Start < prev.End {
			t.Errorf("span %d %v overlaps or precedes %v", i, d.Span, prev)
		}
	}
}
