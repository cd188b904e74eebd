package editorial

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	llm "github.com/MrWong99/quillmate/pkg/provider/llm"
	llmmock "github.com/MrWong99/quillmate/pkg/provider/llm/mock"
	"github.com/MrWong99/quillmate/pkg/types"
)

const chapter = "The door was opened by him slowly. She said quietly that she would be going to go. Rain fell."

func TestAwkwardPhrasing(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		content   string
		wantErr   bool
		wantSpans []types.Span
	}{
		{
			name: "object reply with exact and drifted offsets",
			content: `{"phrases": [
				{"phrase": "would be going to go", "suggestion": "would go", "reason": "wordy", "start": 61, "end": 81},
				{"phrase": "The door was opened by him", "suggestion": "He opened the door", "reason": "passive voice", "start": 3, "end": 29}
			]}`,
			wantSpans: []types.Span{{Start: 0, End: 26}, {Start: 61, End: 81}},
		},
		{
			name:      "bare array",
			content:   `[{"phrase": "Rain fell", "suggestion": "Rain fell.", "reason": "x"}]`,
			wantSpans: []types.Span{{Start: 83, End: 92}},
		},
		{
			name: "phrases not in text and overlaps dropped",
			content: `{"phrases": [
				{"phrase": "a sentence I made up"},
				{"phrase": "opened by him slowly"},
				{"phrase": "him slowly"},
				{"phrase": ""}
			]}`,
			wantSpans: []types.Span{{Start: 13, End: 33}},
		},
		{
			name: "capped at three",
			content: `{"phrases": [
				{"phrase": "The door"}, {"phrase": "She said"}, {"phrase": "Rain fell"}, {"phrase": "slowly"}
			]}`,
			wantSpans: []types.Span{{Start: 0, End: 8}, {Start: 35, End: 43}, {Start: 83, End: 92}},
		},
		{
			name:    "malformed",
			content: `{"awkward": []}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: tt.content}}
			got, _, err := New(p).AwkwardPhrasing(context.Background(), chapter)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got == nil {
				t.Fatal("result is nil, want non-nil slice")
			}
			if len(got) != len(tt.wantSpans) {
				t.Fatalf("got %d phrases, want %d: %+v", len(got), len(tt.wantSpans), got)
			}
			for i, ph := range got {
				if ph.Span != tt.wantSpans[i] {
					t.Errorf("phrases[%d].Span = %v, want %v", i, ph.Span, tt.wantSpans[i])
				}
				if chapter[ph.Span.Start:ph.Span.End] != ph.Phrase {
					t.Errorf("phrases[%d] addresses %q, want %q", i, chapter[ph.Span.Start:ph.Span.End], ph.Phrase)
				}
			}
		})
	}
}

func TestAwkwardPhrasing_Request(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{
		Content: `{"phrases": []}`,
		Usage:   llm.Usage{PromptTokens: 40, CompletionTokens: 2, TotalTokens: 42},
	}}
	_, usage, err := New(p).AwkwardPhrasing(context.Background(), chapter)
	if err != nil {
		t.Fatalf("AwkwardPhrasing: %v", err)
	}
	if usage.Total != 42 {
		t.Errorf("usage = %+v, want total 42", usage)
	}
	req := p.CompleteCalls[0].Req
	if req.SystemPrompt != awkwardPrompt || req.Temperature != 0.3 || req.MaxTokens != 1000 || !req.JSONMode {
		t.Errorf("unexpected request: %+v", req)
	}
}

func TestAwkwardPhrasing_Failures(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{CompleteErr: errors.New("quota exceeded")}
	got, _, err := New(p).AwkwardPhrasing(context.Background(), chapter)
	if err == nil {
		t.Fatal("expected error")
	}
	if got == nil || len(got) != 0 {
		t.Errorf("got %v, want empty slice", got)
	}

	p = &llmmock.Provider{}
	got, _, err = New(p).AwkwardPhrasing(context.Background(), "   ")
	if err != nil || len(got) != 0 || p.CallCount() != 0 {
		t.Errorf("blank text: got %v, %v with %d calls; want empty, nil, 0", got, err, p.CallCount())
	}
}

func TestLiteraryFeedback(t *testing.T) {
	t.Parallel()

	corrections := []types.Correction{
		{Original: "teh", Corrected: "the", Kind: types.KindTypo},
		{Original: "end", Corrected: "end.", Kind: types.KindPunctuation},
	}
	wantLines := []string{`Fixed typo: "teh" → "the"`, `Fixed punctuation: "end" → "end."`}

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		p := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{
			Content: "  A brisk, confident opening.\n",
			Usage:   llm.Usage{PromptTokens: 100, CompletionTokens: 10},
		}}
		long := strings.Repeat("é", FeedbackExcerptRunes+50)
		fb, usage, err := New(p).LiteraryFeedback(context.Background(), long, corrections)
		if err != nil {
			t.Fatalf("LiteraryFeedback: %v", err)
		}
		if fb.LiteraryFeedback != "A brisk, confident opening." {
			t.Errorf("LiteraryFeedback = %q", fb.LiteraryFeedback)
		}
		if usage.Total != 110 {
			t.Errorf("usage = %+v, want total 110", usage)
		}
		req := p.CompleteCalls[0].Req
		if got := []rune(req.Messages[0].Content); len(got) != FeedbackExcerptRunes {
			t.Errorf("excerpt has %d runes, want %d", len(got), FeedbackExcerptRunes)
		}
		if req.Temperature != 0.7 || req.MaxTokens != 200 {
			t.Errorf("Temperature, MaxTokens = %v, %d; want 0.7, 200", req.Temperature, req.MaxTokens)
		}
		assertLines(t, fb.Corrections, wantLines)
	})

	t.Run("failure", func(t *testing.T) {
		t.Parallel()
		p := &llmmock.Provider{CompleteErr: errors.New("unavailable")}
		fb, _, err := New(p).LiteraryFeedback(context.Background(), chapter, corrections)
		if err == nil {
			t.Fatal("expected error")
		}
		if fb.LiteraryFeedback != FeedbackUnavailable {
			t.Errorf("LiteraryFeedback = %q, want %q", fb.LiteraryFeedback, FeedbackUnavailable)
		}
		assertLines(t, fb.Corrections, wantLines)
	})

	t.Run("empty reply", func(t *testing.T) {
		t.Parallel()
		p := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: " "}}
		fb, _, err := New(p).LiteraryFeedback(context.Background(), chapter, nil)
		if err == nil || fb.LiteraryFeedback != FeedbackUnavailable {
			t.Errorf("got %q, %v; want unavailable text and an error", fb.LiteraryFeedback, err)
		}
		if fb.Corrections == nil {
			t.Error("Corrections is nil, want empty slice")
		}
	})
}

func TestEditor_Timeout(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		run  func(e *Editor) (ok bool, err error)
	}{
		{
			name: "awkward phrasing",
			run: func(e *Editor) (bool, error) {
				got, _, err := e.AwkwardPhrasing(context.Background(), chapter)
				return got != nil && len(got) == 0, err
			},
		},
		{
			name: "literary feedback",
			run: func(e *Editor) (bool, error) {
				fb, _, err := e.LiteraryFeedback(context.Background(), chapter, nil)
				return fb.LiteraryFeedback == FeedbackUnavailable, err
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			hang := &llmmock.Provider{CompleteFunc: func(ctx context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			}}

			start := time.Now()
			ok, err := tt.run(New(hang, WithTimeout(20*time.Millisecond)))
			if elapsed := time.Since(start); elapsed > 2*time.Second {
				t.Fatalf("call returned after %s, want it bounded by the timeout", elapsed)
			}
			if !errors.Is(err, context.DeadlineExceeded) {
				t.Errorf("err = %v, want DeadlineExceeded", err)
			}
			if !ok {
				t.Error("did not return the degraded result")
			}
		})
	}
}

func TestWithTimeout_IgnoresNonPositive(t *testing.T) {
	t.Parallel()
	for _, d := range []time.Duration{0, -time.Second} {
		if got := New(nil, WithTimeout(d)).timeout; got != DefaultTimeout {
			t.Errorf("WithTimeout(%s): timeout = %s, want %s", d, got, DefaultTimeout)
		}
	}
}

func assertLines(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d lines, want %d: %q", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
