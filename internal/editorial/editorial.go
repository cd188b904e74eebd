// Package editorial runs the optional model-backed editorial passes over a
// chapter: awkward phrasing detection and a short literary assessment.
//
// Neither pass is required for an analysis to succeed. Every method returns
// a usable degraded value alongside its error, so callers may log the error
// and carry on.
package editorial

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/MrWong99/quillmate/internal/analysis/tokenize"
	"github.com/MrWong99/quillmate/internal/llmjson"
	"github.com/MrWong99/quillmate/internal/observe"
	llm "github.com/MrWong99/quillmate/pkg/provider/llm"
	"github.com/MrWong99/quillmate/pkg/types"
)

const (
	// DefaultTimeout bounds each model call.
	DefaultTimeout = 20 * time.Second

	// MaxAwkwardPhrases caps the awkward phrasing report.
	MaxAwkwardPhrases = 3

	// FeedbackExcerptRunes is how much of the chapter the assessment sees.
	FeedbackExcerptRunes = 2000

	// FeedbackUnavailable replaces the assessment when the model fails.
	FeedbackUnavailable = "Unable to generate feedback at this time."
)

const awkwardPrompt = `You are a fiction editor. Identify up to 3 awkward phrases in the chapter you are given.

Look for:
- unclear sentence structure
- convoluted phrasing
- unnatural dialogue attribution
- passive voice where active would be stronger
- wordiness

Quote each phrase exactly as it appears in the text. Respond with ONLY a JSON object (no markdown, no prose):
{
  "phrases": [
    {"phrase": "<exact text>", "suggestion": "<rewrite>", "reason": "<short reason>", "start": <int>, "end": <int>}
  ]
}

If nothing is awkward, return an empty phrases array.`

const feedbackPrompt = `You are a fiction editor giving a brief literary assessment of a chapter excerpt.
Write 1-2 sentences covering pacing, character development, readability and literary merit.
Be constructive and encouraging. Reply with the assessment text only.`

// Editor runs the editorial passes against one [llm.Provider]. It is safe
// for concurrent use.
type Editor struct {
	llm     llm.Provider
	timeout time.Duration
	metrics *observe.Metrics
}

// Option configures an [Editor].
type Option func(*Editor)

// WithMetrics records pass latency and failures to m.
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Editor) { e.metrics = m }
}

// WithTimeout bounds each model call. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(e *Editor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// New creates an Editor backed by provider.
func New(provider llm.Provider, opts ...Option) *Editor {
	e := &Editor{llm: provider, timeout: DefaultTimeout}
	for _, o := range opts {
		o(e)
	}
	return e
}

// phrase is one item of the awkward phrasing reply.
type phrase struct {
	Phrase     string `json:"phrase"`
	Suggestion string `json:"suggestion"`
	Reason     string `json:"reason"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
}

// AwkwardPhrasing asks the model for at most [MaxAwkwardPhrases] awkward
// phrases. Each phrase is anchored on text the same way corrections are:
// reported offsets are kept only when they address the phrase, phrases that
// do not occur are dropped, and overlapping phrases keep the first reported.
// The result is sorted by position and never nil, even on error.
func (e *Editor) AwkwardPhrasing(ctx context.Context, text string) ([]types.AwkwardPhrase, types.TokenUsage, error) {
	out := []types.AwkwardPhrase{}
	if strings.TrimSpace(text) == "" {
		return out, types.TokenUsage{}, nil
	}

	resp, err := e.complete(ctx, "awkward", llm.CompletionRequest{
		SystemPrompt: awkwardPrompt,
		Temperature:  0.3,
		MaxTokens:    1000,
		JSONMode:     true,
		Messages:     []llm.Message{{Role: "user", Content: text}},
	})
	if err != nil {
		return out, types.TokenUsage{}, err
	}
	usage := usageOf(resp)

	items, err := parsePhrases(resp.Content)
	if err != nil {
		err = fmt.Errorf("editorial: awkward phrasing: %w", err)
		e.recordError(ctx, "awkward", "malformed_response", err)
		return out, usage, err
	}

	var taken []types.Span
	for _, it := range items {
		if len(out) == MaxAwkwardPhrases {
			break
		}
		if it.Phrase == "" {
			continue
		}
		span, ok, _ := tokenize.Anchor(text, it.Phrase, types.Span{Start: it.Start, End: it.End}, taken)
		if !ok {
			observe.Logger(ctx).Debug("awkward phrase not found in text", "phrase", it.Phrase)
			continue
		}
		taken = append(taken, span)
		out = append(out, types.AwkwardPhrase{
			Phrase:     it.Phrase,
			Suggestion: it.Suggestion,
			Reason:     it.Reason,
			Span:       span,
		})
	}
	slices.SortFunc(out, func(a, b types.AwkwardPhrase) int { return cmp.Compare(a.Span.Start, b.Span.Start) })
	return out, usage, nil
}

// parsePhrases accepts either {"phrases": [...]} or a bare array.
func parsePhrases(content string) ([]phrase, error) {
	payload, err := llmjson.Extract(content)
	if err != nil {
		return nil, err
	}
	if strings.HasPrefix(payload, "[") {
		var items []phrase
		if err := json.Unmarshal([]byte(payload), &items); err != nil {
			return nil, llmjson.Malformed("phrases: %v", err)
		}
		return items, nil
	}
	var r struct {
		Phrases *[]phrase `json:"phrases"`
	}
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return nil, llmjson.Malformed("phrases: %v", err)
	}
	if r.Phrases == nil {
		return nil, llmjson.Malformed("missing phrases")
	}
	return *r.Phrases, nil
}

// LiteraryFeedback asks the model for a short assessment of the first
// [FeedbackExcerptRunes] runes of text and pairs it with one summary line per
// correction. On failure the assessment is [FeedbackUnavailable]; the
// summary lines are always present.
func (e *Editor) LiteraryFeedback(ctx context.Context, text string, corrections []types.Correction) (*types.Feedback, types.TokenUsage, error) {
	fb := &types.Feedback{
		LiteraryFeedback: FeedbackUnavailable,
		Corrections:      SummaryLines(corrections),
	}

	resp, err := e.complete(ctx, "feedback", llm.CompletionRequest{
		SystemPrompt: feedbackPrompt,
		Temperature:  0.7,
		MaxTokens:    200,
		Messages:     []llm.Message{{Role: "user", Content: excerpt(text, FeedbackExcerptRunes)}},
	})
	if err != nil {
		return fb, types.TokenUsage{}, err
	}
	usage := usageOf(resp)
	if s := strings.TrimSpace(resp.Content); s != "" {
		fb.LiteraryFeedback = s
		return fb, usage, nil
	}
	err = fmt.Errorf("editorial: feedback: empty reply: %w", llmjson.ErrMalformedResponse)
	e.recordError(ctx, "feedback", "empty_response", err)
	return fb, usage, err
}

// SummaryLines renders one human-readable line per correction.
func SummaryLines(corrections []types.Correction) []string {
	lines := make([]string, 0, len(corrections))
	for _, c := range corrections {
		lines = append(lines, fmt.Sprintf("Fixed %s: %q → %q", c.Kind, c.Original, c.Corrected))
	}
	return lines
}

func (e *Editor) complete(ctx context.Context, pass string, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	ctx, span := observe.StartSpan(ctx, "editorial."+pass)
	defer span.End()
	if e.metrics != nil {
		defer observe.Time(ctx, e.metrics.LLMDuration, observe.Attr("pass", pass))()
	}

	cctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	resp, err := e.llm.Complete(cctx, req)
	if err == nil && resp == nil {
		err = errors.New("empty response")
	}
	if err != nil {
		kind := "error"
		if errors.Is(cctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			kind = "timeout"
			err = fmt.Errorf("%w after %s", context.DeadlineExceeded, e.timeout)
		}
		err = fmt.Errorf("editorial: %s: %w", pass, err)
		span.RecordError(err)
		e.recordError(ctx, pass, kind, err)
		return nil, err
	}
	return resp, nil
}

func (e *Editor) recordError(ctx context.Context, pass, kind string, err error) {
	observe.Logger(ctx).Warn("editorial pass failed", "pass", pass, "kind", kind, "err", err)
	if e.metrics != nil {
		e.metrics.RecordLLMError(ctx, pass, kind)
	}
}

func usageOf(resp *llm.CompletionResponse) types.TokenUsage {
	u := types.TokenUsage{
		Prompt:     resp.Usage.PromptTokens,
		Completion: resp.Usage.CompletionTokens,
		Total:      resp.Usage.TotalTokens,
	}
	if u.Total == 0 {
		u.Total = u.Prompt + u.Completion
	}
	return u
}

// excerpt returns the first n runes of s.
func excerpt(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
