// Package analyzer runs every analysis pass over one chapter and assembles
// the [types.AnalysisResult].
//
// [Analyzer.AnalyzeChapter] is stateless: the author's name registry comes in
// as an argument. [Service] adds the stateful part, loading and updating the
// registry per author around each analysis.
package analyzer

import (
	"context"
	"fmt"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/quillmate/internal/analysis/consistency"
	"github.com/MrWong99/quillmate/internal/analysis/dialogue"
	"github.com/MrWong99/quillmate/internal/analysis/names"
	"github.com/MrWong99/quillmate/internal/analysis/repetition"
	"github.com/MrWong99/quillmate/internal/analysis/tokenize"
	"github.com/MrWong99/quillmate/internal/correct"
	"github.com/MrWong99/quillmate/internal/correct/fallback"
	"github.com/MrWong99/quillmate/internal/editorial"
	"github.com/MrWong99/quillmate/internal/observe"
	"github.com/MrWong99/quillmate/pkg/types"
)

// InputError reports a request the analyzer refuses to process.
type InputError struct {
	Field  string
	Reason string
}

// Error implements [error].
func (e *InputError) Error() string {
	return fmt.Sprintf("invalid input: %s: %s", e.Field, e.Reason)
}

// Features toggles the optional model-backed passes.
type Features struct {
	Awkward  bool
	Feedback bool
}

// Analyzer runs the detectors and the correction pass over a chapter. It is
// immutable after construction and safe for concurrent use.
type Analyzer struct {
	repetition  *repetition.Detector
	dialogue    *dialogue.Segmenter
	names       *names.Extractor
	consistency *consistency.Checker
	corrector   *correct.Orchestrator
	editor      *editorial.Editor
	features    Features
	metrics     *observe.Metrics
}

// Option is a functional option for configuring an [Analyzer].
type Option func(*Analyzer)

// WithRepetition replaces the default repetition detector.
func WithRepetition(d *repetition.Detector) Option {
	return func(a *Analyzer) { a.repetition = d }
}

// WithDialogue replaces the default dialogue segmenter.
func WithDialogue(s *dialogue.Segmenter) Option {
	return func(a *Analyzer) { a.dialogue = s }
}

// WithNames replaces the default name extractor.
func WithNames(e *names.Extractor) Option {
	return func(a *Analyzer) { a.names = e }
}

// WithConsistency replaces the default consistency checker.
func WithConsistency(c *consistency.Checker) Option {
	return func(a *Analyzer) { a.consistency = c }
}

// WithCorrector replaces the default rule-only correction orchestrator.
func WithCorrector(o *correct.Orchestrator) Option {
	return func(a *Analyzer) { a.corrector = o }
}

// WithEditor enables the editorial passes selected by f.
func WithEditor(e *editorial.Editor, f Features) Option {
	return func(a *Analyzer) {
		a.editor = e
		a.features = f
	}
}

// WithMetrics records analysis metrics to m.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Analyzer) { a.metrics = m }
}

// New creates an Analyzer. Without options it uses the heuristic name
// tagger, the default detector settings and rule-based correction only.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{
		repetition:  repetition.New(),
		dialogue:    dialogue.New(),
		names:       names.New(names.NewHeuristic()),
		consistency: consistency.New(),
		corrector:   correct.New(fallback.New()),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Corrector returns the correction orchestrator.
func (a *Analyzer) Corrector() *correct.Orchestrator { return a.corrector }

// Editor returns the editorial runner, or nil when none is configured.
func (a *Analyzer) Editor() *editorial.Editor { return a.editor }

// Features reports which editorial passes run. Both are off without an
// editor.
func (a *Analyzer) Features() Features {
	if a.editor == nil {
		return Features{}
	}
	return a.features
}

// ValidateText returns an [*InputError] when text is not valid UTF-8.
func ValidateText(text string) error {
	if !utf8.ValidString(text) {
		return &InputError{Field: "text", Reason: "not valid UTF-8"}
	}
	return nil
}

// Repetitions runs only the repetition detector.
func (a *Analyzer) Repetitions(text string) []types.RepetitionMatch {
	return a.repetition.Detect(tokenize.All(text))
}

// Dialogue runs only the dialogue segmenter.
func (a *Analyzer) Dialogue(text string) []types.DialogueSpan {
	return a.dialogue.Segment(text)
}

// Names runs only the name extractor.
func (a *Analyzer) Names(text string) []types.NamedEntity {
	return a.names.Extract(text)
}

// Consistency checks extracted names against registry.
func (a *Analyzer) Consistency(extracted []types.NamedEntity, registry []types.TrackedName) []types.ConsistencyFlag {
	return a.consistency.Check(extracted, registry)
}

// Correct runs only the correction pass, protecting the dialogue of text.
func (a *Analyzer) Correct(ctx context.Context, text string) *correct.Result {
	return a.corrector.Correct(ctx, text, a.dialogue.Segment(text))
}

// AnalyzeChapter runs every pass over text and returns the aggregate result.
//
// Repetition, name extraction, the correction pass and the awkward phrasing
// pass run concurrently. The correction pass segments dialogue first and
// hands the spans to the model as hints. The consistency check follows name
// extraction; the literary feedback summarises the verified corrections. Model failures
// degrade to the rule-based path and are reported in Diagnostics, never as
// an error.
//
// Empty text yields an empty result. Text that is not valid UTF-8 yields an
// [*InputError].
func (a *Analyzer) AnalyzeChapter(ctx context.Context, text string, registry []types.TrackedName) (*types.AnalysisResult, error) {
	if err := ValidateText(text); err != nil {
		return nil, err
	}
	res := types.NewAnalysisResult(text)
	if text == "" {
		return res, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("analyzer: %w", err)
	}

	ctx, span := observe.StartSpan(ctx, "analyzer.AnalyzeChapter")
	defer span.End()
	if a.metrics != nil {
		a.metrics.ActiveAnalyses.Add(ctx, 1)
		defer a.metrics.ActiveAnalyses.Add(ctx, -1)
		defer observe.Time(ctx, a.metrics.AnalysisDuration)()
	}

	var (
		tokens   []types.Token
		spans    []types.DialogueSpan
		entities []types.NamedEntity
		flags    []types.ConsistencyFlag
		attempt  *correct.Attempt
		awkward  []types.AwkwardPhrase
		awkUsage types.TokenUsage
		awkErr   error
	)

	g, gctx := errgroup.WithContext(ctx)

	// ── repetition ──
	g.Go(func() error {
		defer a.timeDetector(gctx, "repetition")()
		tokens = tokenize.All(text)
		res.Repetitions = a.repetition.Detect(tokens)
		return nil
	})

	// ── names, then consistency ──
	g.Go(func() error {
		stop := a.timeDetector(gctx, "names")
		entities = a.names.Extract(text)
		stop()
		defer a.timeDetector(gctx, "consistency")()
		flags = a.consistency.Check(entities, registry)
		return nil
	})

	// ── dialogue, then correction model call ──
	g.Go(func() error {
		stop := a.timeDetector(gctx, "dialogue")
		spans = a.dialogue.Segment(text)
		stop()
		attempt = a.corrector.Propose(gctx, text, spans)
		return nil
	})

	// ── awkward phrasing ──
	if a.editor != nil && a.features.Awkward {
		g.Go(func() error {
			awkward, awkUsage, awkErr = a.editor.AwkwardPhrasing(gctx, text)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("analyzer: %w", err)
	}

	corr := a.corrector.Finalize(ctx, text, attempt, spans)
	res.CorrectedText = corr.CorrectedText
	res.Corrections = corr.Corrections
	res.CorrectedBy = corr.Source
	res.Usage.Add(corr.Usage)
	res.Diagnostics = append(res.Diagnostics, corr.Diagnostics...)

	res.Dialogue = spans
	res.Names = entities
	res.Consistency = flags
	if a.metrics != nil {
		for _, f := range flags {
			a.metrics.RecordConsistencyFlag(ctx, string(f.Severity))
		}
	}

	if awkward != nil {
		res.Awkward = awkward
	}
	res.Usage.Add(awkUsage)
	if awkErr != nil {
		res.Diagnostics = append(res.Diagnostics, "awkward phrasing unavailable")
	}

	if a.editor != nil && a.features.Feedback {
		fb, usage, err := a.editor.LiteraryFeedback(ctx, text, res.Corrections)
		res.Feedback = fb
		res.Usage.Add(usage)
		if err != nil {
			res.Diagnostics = append(res.Diagnostics, "literary feedback unavailable")
		}
	}

	res.Statistics = statistics(text, tokens, spans)
	res.Highlights = highlights(text, res)

	if a.metrics != nil {
		a.metrics.RecordLLMTokens(ctx, res.Usage.Prompt, res.Usage.Completion)
	}
	observe.Logger(ctx).Debug("chapter analysed",
		"words", res.Statistics.WordCount,
		"corrections", len(res.Corrections),
		"corrected_by", res.CorrectedBy,
		"repetitions", len(res.Repetitions),
		"names", len(res.Names),
		"flags", len(res.Consistency),
	)
	return res, nil
}

func (a *Analyzer) timeDetector(ctx context.Context, name string) func() {
	if a.metrics == nil {
		return func() {}
	}
	return observe.Time(ctx, a.metrics.DetectorDuration, observe.Attr("detector", name))
}
