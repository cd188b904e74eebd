package correct_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/quillmate/internal/correct"
	"github.com/MrWong99/quillmate/internal/correct/fallback"
	"github.com/MrWong99/quillmate/internal/observe"
	"github.com/MrWong99/quillmate/internal/resilience"
	"github.com/MrWong99/quillmate/pkg/types"
)

// capFunc adapts a function to [correct.Capability] and counts calls.
type capFunc struct {
	calls atomic.Int32
	fn    func(ctx context.Context, text string, hints []types.DialogueSpan) (*correct.Proposal, error)
}

func (c *capFunc) Correct(ctx context.Context, text string, hints []types.DialogueSpan) (*correct.Proposal, error) {
	c.calls.Add(1)
	return c.fn(ctx, text, hints)
}

func proposing(cs ...types.Correction) *capFunc {
	return &capFunc{fn: func(context.Context, string, []types.DialogueSpan) (*correct.Proposal, error) {
		return &correct.Proposal{Corrections: cs, Usage: types.TokenUsage{Prompt: 10, Completion: 5, Total: 15}}, nil
	}}
}

func failing(err error) *capFunc {
	return &capFunc{fn: func(context.Context, string, []types.DialogueSpan) (*correct.Proposal, error) {
		return nil, err
	}}
}

func fix(original, corrected string, kind types.CorrectionKind, start, end int) types.Correction {
	return types.Correction{
		Original:   original,
		Corrected:  corrected,
		Kind:       kind,
		Span:       types.Span{Start: start, End: end},
		Confidence: 0.9,
	}
}

func diagnosticContains(res *correct.Result, sub string) bool {
	for _, d := range res.Diagnostics {
		if strings.Contains(d, sub) {
			return true
		}
	}
	return false
}

func TestCorrect_NoPrimaryUsesFallback(t *testing.T) {
	t.Parallel()

	o := correct.New(fallback.New())
	if o.HasPrimary() {
		t.Fatal("HasPrimary = true without a primary")
	}
	res := o.Correct(context.Background(), "I teh went home", nil)

	if res.Source != types.SourceRule {
		t.Errorf("Source = %q, want rule", res.Source)
	}
	if res.CorrectedText != "I the went home" {
		t.Errorf("CorrectedText = %q, want %q", res.CorrectedText, "I the went home")
	}
	if len(res.Corrections) != 1 || res.Corrections[0].Kind != types.KindTypo {
		t.Fatalf("Corrections = %+v, want one typo", res.Corrections)
	}
	if !diagnosticContains(res, "no correction model configured") {
		t.Errorf("Diagnostics = %v", res.Diagnostics)
	}
}

func TestCorrect_PrimaryFailuresFallBack(t *testing.T) {
	t.Parallel()

	blocking := &capFunc{fn: func(ctx context.Context, _ string, _ []types.DialogueSpan) (*correct.Proposal, error) {
		<-ctx.Done()
		return nil, fmt.Errorf("complete: %w: %w", correct.ErrCapabilityFailure, ctx.Err())
	}}
	nilProposal := &capFunc{fn: func(context.Context, string, []types.DialogueSpan) (*correct.Proposal, error) {
		return nil, nil
	}}

	tests := []struct {
		name    string
		primary *capFunc
		kind    string
	}{
		{"timeout", blocking, "timeout"},
		{"malformed", failing(fmt.Errorf("parse: %w", correct.ErrMalformedResponse)), "malformed response"},
		{"transport error", failing(correct.ErrCapabilityFailure), "error"},
		{"nil proposal", nilProposal, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			o := correct.New(fallback.New(), correct.WithPrimary(tt.primary), correct.WithTimeout(10*time.Millisecond))
			res := o.Correct(context.Background(), "I teh went home", nil)

			if tt.primary.calls.Load() != 1 {
				t.Errorf("primary called %d times, want exactly 1", tt.primary.calls.Load())
			}
			if res.Source != types.SourceRule {
				t.Errorf("Source = %q, want rule", res.Source)
			}
			if res.CorrectedText != "I the went home" {
				t.Errorf("CorrectedText = %q", res.CorrectedText)
			}
			if !diagnosticContains(res, "("+tt.kind+")") {
				t.Errorf("Diagnostics = %v, want kind %q", res.Diagnostics, tt.kind)
			}
		})
	}
}

func TestCorrect_PrimarySuccess(t *testing.T) {
	t.Parallel()

	primary := proposing(fix("teh", "the", types.KindTypo, 6, 9))
	o := correct.New(fallback.New(), correct.WithPrimary(primary))
	res := o.Correct(context.Background(), "I saw teh cat", nil)

	if res.Source != types.SourceAI {
		t.Errorf("Source = %q, want ai", res.Source)
	}
	if len(res.Diagnostics) != 0 {
		t.Errorf("Diagnostics = %v, want none", res.Diagnostics)
	}
	if res.CorrectedText != "I saw the cat" {
		t.Errorf("CorrectedText = %q", res.CorrectedText)
	}
	if len(res.Corrections) != 1 {
		t.Fatalf("Corrections = %+v, want the model's fix only", res.Corrections)
	}
	if res.Corrections[0].Source != types.SourceAI {
		t.Errorf("correction Source = %q, want ai", res.Corrections[0].Source)
	}
	if res.Usage.Total != 15 {
		t.Errorf("Usage = %+v, want total 15", res.Usage)
	}
}

func TestCorrect_MergesRuleFixes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		text        string
		proposed    []types.Correction
		wantText    string
		wantSources []types.CorrectionSource
	}{
		{
			name:        "table fills what the model missed",
			text:        "I teh went hme",
			proposed:    []types.Correction{fix("hme", "home", types.KindSpelling, 11, 14)},
			wantText:    "I the went home",
			wantSources: []types.CorrectionSource{types.SourceRule, types.SourceAI},
		},
		{
			name:        "model wins on the same word",
			text:        "I teh went",
			proposed:    []types.Correction{fix("teh", "then", types.KindSpelling, 2, 5)},
			wantText:    "I then went",
			wantSources: []types.CorrectionSource{types.SourceAI},
		},
		{
			name:        "model wins on a wider edit",
			text:        "I teh went",
			proposed:    []types.Correction{fix("I teh", "I then", types.KindGrammar, 0, 5)},
			wantText:    "I then went",
			wantSources: []types.CorrectionSource{types.SourceAI},
		},
		{
			name:        "model with nothing to fix",
			text:        "Teh end",
			proposed:    nil,
			wantText:    "The end",
			wantSources: []types.CorrectionSource{types.SourceRule},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			o := correct.New(fallback.New(), correct.WithPrimary(proposing(tt.proposed...)))
			res := o.Correct(context.Background(), tt.text, nil)

			if res.Source != types.SourceAI {
				t.Errorf("Source = %q, want ai", res.Source)
			}
			if res.CorrectedText != tt.wantText {
				t.Errorf("CorrectedText = %q, want %q", res.CorrectedText, tt.wantText)
			}
			if len(res.Corrections) != len(tt.wantSources) {
				t.Fatalf("Corrections = %+v, want %d", res.Corrections, len(tt.wantSources))
			}
			for i, c := range res.Corrections {
				if c.Source != tt.wantSources[i] {
					t.Errorf("corrections[%d] (%q) Source = %q, want %q", i, c.Original, c.Source, tt.wantSources[i])
				}
			}
			if len(res.Diagnostics) != 0 {
				t.Errorf("Diagnostics = %v, want none", res.Diagnostics)
			}
		})
	}
}

func TestCorrect_BreakerOpenSkipsPrimary(t *testing.T) {
	t.Parallel()

	primary := failing(correct.ErrCapabilityFailure)
	o := correct.New(fallback.New(),
		correct.WithPrimary(primary),
		correct.WithBreaker(resilience.CircuitBreakerConfig{Name: "test", MaxFailures: 1, ResetTimeout: time.Hour}),
	)

	_ = o.Correct(context.Background(), "text", nil)
	res := o.Correct(context.Background(), "text", nil)

	if primary.calls.Load() != 1 {
		t.Errorf("primary called %d times, want 1", primary.calls.Load())
	}
	if !diagnosticContains(res, "(circuit open)") {
		t.Errorf("Diagnostics = %v", res.Diagnostics)
	}
}

func TestFinalize(t *testing.T) {
	t.Parallel()

	const dialogueText = `He said "me and him goes." Then teh end.`
	dialogue := []types.DialogueSpan{{Span: types.Span{Start: 8, End: 26}, QuoteChar: `"`}}

	tests := []struct {
		name      string
		text      string
		dialogue  []types.DialogueSpan
		proposed  []types.Correction
		wantText  string
		wantSpans []types.Span
	}{
		{
			name:      "exact span kept",
			text:      "I saw teh cat",
			proposed:  []types.Correction{fix("teh", "the", types.KindTypo, 6, 9)},
			wantText:  "I saw the cat",
			wantSpans: []types.Span{{Start: 6, End: 9}},
		},
		{
			name:      "wrong span re-anchored",
			text:      "I saw teh cat",
			proposed:  []types.Correction{fix("teh", "the", types.KindTypo, 0, 3)},
			wantText:  "I saw the cat",
			wantSpans: []types.Span{{Start: 6, End: 9}},
		},
		{
			name:      "nearest occurrence chosen",
			text:      "teh one and teh two",
			proposed:  []types.Correction{fix("teh", "the", types.KindTypo, 10, 13)},
			wantText:  "teh one and the two",
			wantSpans: []types.Span{{Start: 12, End: 15}},
		},
		{
			name: "repeated fixes land on distinct occurrences",
			text: "teh and teh",
			proposed: []types.Correction{
				fix("teh", "the", types.KindTypo, 0, 0),
				fix("teh", "the", types.KindTypo, 0, 0),
			},
			wantText:  "the and the",
			wantSpans: []types.Span{{Start: 0, End: 3}, {Start: 8, End: 11}},
		},
		{
			name: "overlap keeps first proposal",
			text: "teh end",
			proposed: []types.Correction{
				fix("teh", "the", types.KindTypo, 0, 3),
				fix("teh end", "the End", types.KindSpelling, 0, 7),
			},
			wantText:  "the end",
			wantSpans: []types.Span{{Start: 0, End: 3}},
		},
		{
			name:      "unresolvable original dropped",
			text:      "I saw the cat",
			proposed:  []types.Correction{fix("dog", "hound", types.KindSpelling, 6, 9)},
			wantText:  "I saw the cat",
			wantSpans: nil,
		},
		{
			name: "invalid proposals dropped",
			text: "I saw the cat",
			proposed: []types.Correction{
				fix("cat", "kitten", "style", 10, 13),
				fix("cat", "cat", types.KindSpelling, 10, 13),
				fix("", "x", types.KindTypo, 0, 0),
			},
			wantText:  "I saw the cat",
			wantSpans: nil,
		},
		{
			name:     "dialogue grammar rejected",
			text:     dialogueText,
			dialogue: dialogue,
			proposed: []types.Correction{
				fix("goes", "go", types.KindGrammar, 20, 24),
				fix("teh", "the", types.KindTypo, 32, 35),
			},
			wantText:  `He said "me and him goes." Then the end.`,
			wantSpans: []types.Span{{Start: 32, End: 35}},
		},
		{
			name:      "dialogue spelling allowed",
			text:      dialogueText,
			dialogue:  dialogue,
			proposed:  []types.Correction{fix("goes", "gose", types.KindSpelling, 20, 24)},
			wantText:  `He said "me and him gose." Then teh end.`,
			wantSpans: []types.Span{{Start: 20, End: 24}},
		},
		{
			name: "output sorted by position",
			text: "teh cat sat on teh mat",
			proposed: []types.Correction{
				fix("mat", "hat", types.KindSpelling, 19, 22),
				fix("teh", "the", types.KindTypo, 0, 3),
			},
			wantText:  "the cat sat on teh hat",
			wantSpans: []types.Span{{Start: 0, End: 3}, {Start: 19, End: 22}},
		},
	}

	o := correct.New(fallback.New())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := &correct.Attempt{
				Proposal: &correct.Proposal{Corrections: tt.proposed},
				Source:   types.SourceAI,
			}
			res := o.Finalize(context.Background(), tt.text, a, tt.dialogue)

			if res.CorrectedText != tt.wantText {
				t.Errorf("CorrectedText = %q, want %q", res.CorrectedText, tt.wantText)
			}
			if res.Corrections == nil {
				t.Fatal("Corrections is nil, want non-nil slice")
			}
			if len(res.Corrections) != len(tt.wantSpans) {
				t.Fatalf("got %d corrections, want %d: %+v", len(res.Corrections), len(tt.wantSpans), res.Corrections)
			}
			for i, c := range res.Corrections {
				if c.Span != tt.wantSpans[i] {
					t.Errorf("corrections[%d].Span = %v, want %v", i, c.Span, tt.wantSpans[i])
				}
				if got := tt.text[c.Span.Start:c.Span.End]; got != c.Original {
					t.Errorf("corrections[%d] addresses %q, want %q", i, got, c.Original)
				}
			}
		})
	}
}

func TestFinalize_ClampsConfidence(t *testing.T) {
	t.Parallel()

	c := fix("teh", "the", types.KindTypo, 0, 3)
	c.Confidence = 1.5
	a := &correct.Attempt{Proposal: &correct.Proposal{Corrections: []types.Correction{c}}, Source: types.SourceAI}
	res := correct.New(fallback.New()).Finalize(context.Background(), "teh", a, nil)
	if len(res.Corrections) != 1 || res.Corrections[0].Confidence != 1 {
		t.Errorf("Corrections = %+v, want confidence clamped to 1", res.Corrections)
	}
}

func TestApply(t *testing.T) {
	t.Parallel()

	text := "ab cd ef"
	got := correct.Apply(text, []types.Correction{
		{Span: types.Span{Start: 0, End: 2}, Corrected: "AB"},
		{Span: types.Span{Start: 6, End: 8}, Corrected: "EFG"},
	})
	if got != "AB cd EFG" {
		t.Errorf("Apply = %q, want %q", got, "AB cd EFG")
	}
	if got := correct.Apply(text, nil); got != text {
		t.Errorf("Apply(nil) = %q, want input unchanged", got)
	}
}

func TestCorrect_Metrics(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	primary := proposing(fix("dog", "hound", types.KindSpelling, 0, 3))
	o := correct.New(fallback.New(), correct.WithPrimary(primary), correct.WithMetrics(m))
	_ = o.Correct(context.Background(), "the cat", nil)

	o = correct.New(fallback.New(), correct.WithPrimary(failing(errors.New("boom"))), correct.WithMetrics(m))
	_ = o.Correct(context.Background(), "the cat", nil)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	checks := []struct {
		metric, key, value string
		want               int64
	}{
		{"quillmate.correction.paths", "source", "ai", 1},
		{"quillmate.correction.paths", "source", "rule", 1},
		{"quillmate.correction.rejected", "reason", "unresolved", 1},
		{"quillmate.llm.errors", "kind", "error", 1},
	}
	for _, c := range checks {
		if got := sumFor(rm, c.metric, c.key, c.value); got != c.want {
			t.Errorf("%s{%s=%q} = %d, want %d", c.metric, c.key, c.value, got, c.want)
		}
	}
}

func sumFor(rm metricdata.ResourceMetrics, name, key, value string) int64 {
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != name {
				continue
			}
			sum, ok := met.Data.(metricdata.Sum[int64])
			if !ok {
				return -1
			}
			for _, dp := range sum.DataPoints {
				if v, ok := dp.Attributes.Value(observe.Attr(key, "").Key); ok && v.AsString() == value {
					return dp.Value
				}
			}
		}
	}
	return 0
}
