// Package llmcorrect implements the language-model correction capability.
//
// The [Corrector] sends a chapter to an [llm.Provider] with a conservative
// editor prompt: fix typos, missing end punctuation, quotation marks and name
// consistency, and inside dialogue fix spelling only. The reply is a JSON
// object with the corrected text and an itemised list of edits. Unlike the
// transcript corrector this package grew out of, an unusable reply is an
// error: the orchestrator needs to know so it can fall back to the rule
// table.
package llmcorrect

import (
	"context"
	"fmt"
	"strings"

	"github.com/MrWong99/quillmate/internal/correct"
	"github.com/MrWong99/quillmate/internal/llmjson"
	llm "github.com/MrWong99/quillmate/pkg/provider/llm"
	"github.com/MrWong99/quillmate/pkg/types"
)

const (
	defaultTemperature = 0.1
	defaultMaxTokens   = 4000

	// defaultConfidence applies to edits the model reports without one.
	defaultConfidence = 0.9
)

const systemPrompt = `You are a professional fiction editor. Correct the chapter you are given conservatively.

Fix ONLY:
- typos and misspelled words
- missing punctuation at the end of sentences
- unbalanced or mismatched quotation marks
- inconsistent spelling of the same character or place name

Rules:
- Do NOT rewrite sentences, change word choice, tense or style.
- Inside dialogue, fix spelling only. Dialogue grammar is the character's voice.
- Every item in "corrections" must quote the exact original text it replaces.
- "position" gives the character offsets of "original" in the input text.

Respond with ONLY a JSON object in this exact format (no markdown, no prose):
{
  "correctedText": "<full corrected chapter>",
  "corrections": [
    {
      "original": "<text as written>",
      "corrected": "<replacement>",
      "type": "typo" | "spelling" | "punctuation" | "quotation",
      "position": {"start": <int>, "end": <int>},
      "confidence": <0.0-1.0>
    }
  ]
}

If nothing needs fixing, return an empty corrections array and correctedText equal to the input.`

// reply is the expected JSON structure. Pointer fields distinguish a missing
// key from an empty value.
type reply struct {
	CorrectedText *string `json:"correctedText"`
	Corrections   *[]struct {
		Original   string   `json:"original"`
		Corrected  *string  `json:"corrected"`
		Type       string   `json:"type"`
		Confidence *float64 `json:"confidence"`
		Position   *struct {
			Start int `json:"start"`
			End   int `json:"end"`
		} `json:"position"`
	} `json:"corrections"`
}

var _ correct.Capability = (*Corrector)(nil)

// Option is a functional option for configuring a [Corrector].
type Option func(*Corrector)

// WithTemperature sets the LLM sampling temperature. Default: 0.1.
func WithTemperature(temp float64) Option {
	return func(c *Corrector) {
		c.temperature = temp
	}
}

// WithMaxTokens caps the completion length. Default: 4000.
func WithMaxTokens(n int) Option {
	return func(c *Corrector) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// Corrector uses an [llm.Provider] to propose chapter corrections. It is safe
// for concurrent use.
type Corrector struct {
	llm         llm.Provider
	temperature float64
	maxTokens   int
}

// New returns a new [Corrector] backed by the given [llm.Provider].
func New(provider llm.Provider, opts ...Option) *Corrector {
	c := &Corrector{
		llm:         provider,
		temperature: defaultTemperature,
		maxTokens:   defaultMaxTokens,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Correct implements [correct.Capability]. Transport failures wrap
// [correct.ErrCapabilityFailure] and keep the context error in the chain; a
// reply that does not match the schema wraps [correct.ErrMalformedResponse].
// Every edit must name a known correction type. Positions are passed through
// as reported and verified later.
func (c *Corrector) Correct(ctx context.Context, text string, hints []types.DialogueSpan) (*correct.Proposal, error) {
	req := llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Temperature:  c.temperature,
		MaxTokens:    c.maxTokens,
		JSONMode:     true,
		Messages: []llm.Message{
			{Role: "user", Content: buildUserMessage(text, hints)},
		},
	}

	resp, err := c.llm.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("llmcorrect: complete: %w: %w", correct.ErrCapabilityFailure, err)
	}
	if resp == nil {
		return nil, fmt.Errorf("llmcorrect: empty response: %w", correct.ErrCapabilityFailure)
	}

	p, err := parseReply(resp.Content)
	if err != nil {
		return nil, err
	}
	p.Usage = types.TokenUsage{
		Prompt:     resp.Usage.PromptTokens,
		Completion: resp.Usage.CompletionTokens,
		Total:      resp.Usage.TotalTokens,
	}
	if p.Usage.Total == 0 {
		p.Usage.Total = p.Usage.Prompt + p.Usage.Completion
	}
	return p, nil
}

func buildUserMessage(text string, hints []types.DialogueSpan) string {
	if len(hints) == 0 {
		return "Chapter:\n" + text
	}
	var sb strings.Builder
	sb.WriteString("Chapter:\n")
	sb.WriteString(text)
	sb.WriteString("\n\nDialogue passages (spelling fixes only):\n")
	for _, h := range hints {
		fmt.Fprintf(&sb, "- %d-%d: %s\n", h.Span.Start, h.Span.End, h.Text)
	}
	return sb.String()
}

func parseReply(content string) (*correct.Proposal, error) {
	var r reply
	if err := llmjson.Decode(content, &r); err != nil {
		return nil, fmt.Errorf("llmcorrect: %w", err)
	}
	if r.CorrectedText == nil {
		return nil, llmjson.Malformed("llmcorrect: missing correctedText")
	}
	if r.Corrections == nil {
		return nil, llmjson.Malformed("llmcorrect: missing corrections")
	}

	p := &correct.Proposal{
		CorrectedText: *r.CorrectedText,
		Corrections:   make([]types.Correction, 0, len(*r.Corrections)),
	}
	for i, rc := range *r.Corrections {
		if rc.Original == "" {
			return nil, llmjson.Malformed("llmcorrect: corrections[%d]: empty original", i)
		}
		if rc.Corrected == nil {
			return nil, llmjson.Malformed("llmcorrect: corrections[%d]: missing corrected", i)
		}
		kind := types.CorrectionKind(strings.ToLower(strings.TrimSpace(rc.Type)))
		if !kind.IsValid() {
			return nil, llmjson.Malformed("llmcorrect: corrections[%d]: unknown type %q", i, rc.Type)
		}
		confidence := defaultConfidence
		if rc.Confidence != nil {
			confidence = *rc.Confidence
		}
		var span types.Span
		if rc.Position != nil {
			span = types.Span{Start: rc.Position.Start, End: rc.Position.End}
		}
		p.Corrections = append(p.Corrections, types.Correction{
			Original:   rc.Original,
			Corrected:  *rc.Corrected,
			Kind:       kind,
			Span:       span,
			Confidence: confidence,
			Source:     types.SourceAI,
		})
	}
	return p, nil
}
