package repetition_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/MrWong99/quillmate/internal/analysis/repetition"
	"github.com/MrWong99/quillmate/internal/analysis/tokenize"
)

// spaced returns text in which word occurs twice, distance ordinals apart,
// separated by unique filler words.
func spaced(word string, distance int) string {
	parts := []string{word}
	for i := 0; i < distance-1; i++ {
		parts = append(parts, fmt.Sprintf("filler%d", i))
	}
	parts = append(parts, word)
	return strings.Join(parts, " ")
}

func TestDetect_Thresholds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		word     string
		distance int
		want     int
	}{
		{"common at window", "the", 150, 1},
		{"common past window", "the", 151, 0},
		{"uncommon at window", "lantern", 168, 1},
		{"uncommon past window", "lantern", 169, 0},
		{"adjacent", "lantern", 1, 1},
	}

	d := repetition.New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			text := spaced(tt.word, tt.distance)
			got := d.Detect(tokenize.All(text))
			if len(got) != tt.want {
				t.Fatalf("Detect: got %d matches, want %d: %+v", len(got), tt.want, got)
			}
			if tt.want == 0 {
				return
			}
			m := got[0]
			if m.Word != tt.word {
				t.Errorf("Word = %q, want %q", m.Word, tt.word)
			}
			if m.WordDistance != tt.distance {
				t.Errorf("WordDistance = %d, want %d", m.WordDistance, tt.distance)
			}
			if m.IsCommonWord != d.IsCommon(tt.word) {
				t.Errorf("IsCommonWord = %v, want %v", m.IsCommonWord, d.IsCommon(tt.word))
			}
			for _, occ := range m.Occurrences {
				if text[occ.Span.Start:occ.Span.End] != tt.word {
					t.Errorf("occurrence %v surface = %q", occ.Span, text[occ.Span.Start:occ.Span.End])
				}
			}
		})
	}
}

func TestDetect_AdjacentPairsOnly(t *testing.T) {
	t.Parallel()

	d := repetition.New()
	got := d.Detect(tokenize.All("echo one echo two echo three echo"))
	if len(got) != 3 {
		t.Fatalf("got %d matches, want 3 adjacent pairs: %+v", len(got), got)
	}
	for i, m := range got {
		if m.WordDistance != 2 {
			t.Errorf("match %d: WordDistance = %d, want 2", i, m.WordDistance)
		}
		if i > 0 && m.Occurrences[0].Ordinal != got[i-1].Occurrences[1].Ordinal {
			t.Errorf("match %d does not chain from previous", i)
		}
	}
}

func TestDetect_CaseInsensitive(t *testing.T) {
	t.Parallel()

	text := "Lantern light. The lantern flickered."
	got := repetition.New().Detect(tokenize.All(text))

	var found bool
	for _, m := range got {
		if m.Word == "lantern" {
			found = true
			if s := m.Occurrences[0].Span; text[s.Start:s.End] != "Lantern" {
				t.Errorf("first surface = %q, want original casing", text[s.Start:s.End])
			}
		}
	}
	if !found {
		t.Fatal("expected a match for lantern")
	}
}

func TestDetect_EmptyAndSingle(t *testing.T) {
	t.Parallel()

	d := repetition.New()
	for _, text := range []string{"", "once upon a time"} {
		got := d.Detect(tokenize.All(text))
		if got == nil {
			t.Errorf("Detect(%q) returned nil, want empty slice", text)
		}
		if len(got) != 0 {
			t.Errorf("Detect(%q) = %d matches, want 0", text, len(got))
		}
	}
}

func TestDetect_Deterministic(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("the quick fox saw the slow fox and the fox ran ", 20)
	d := repetition.New()
	a := d.Detect(tokenize.All(text))
	b := d.Detect(tokenize.All(text))
	if len(a) != len(b) {
		t.Fatalf("runs differ in length: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("match %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestNew_WindowsOptions(t *testing.T) {
	t.Parallel()

	d := repetition.New(repetition.WithWindows(10, 5))
	common, uncommon := d.Windows()
	if common != 10 || uncommon != 10 {
		t.Errorf("Windows() = (%d, %d), want (10, 10)", common, uncommon)
	}

	d = repetition.New(repetition.WithWindows(0, -1))
	common, uncommon = d.Windows()
	if common != repetition.DefaultCommonWindow || uncommon != repetition.DefaultUncommonWindow {
		t.Errorf("Windows() = (%d, %d), want defaults", common, uncommon)
	}
}

func TestWithCommonWords(t *testing.T) {
	t.Parallel()

	d := repetition.New(repetition.WithCommonWords([]string{"Lantern"}), repetition.WithWindows(2, 100))
	if !d.IsCommon("lantern") {
		t.Fatal("lantern should be common")
	}
	if d.IsCommon("the") {
		t.Fatal("the should no longer be common")
	}
	if got := d.Detect(tokenize.All(spaced("lantern", 3))); len(got) != 0 {
		t.Errorf("lantern at distance 3 with common window 2: got %d matches, want 0", len(got))
	}
}
