// Package correct turns correction proposals into span-addressed edits that
// are safe to apply to a chapter.
//
// A [Capability] proposes corrections: an LLM through the llmcorrect
// subpackage, or the typo table in the fallback subpackage. The
// [Orchestrator] calls the primary capability exactly once under a timeout
// and behind a circuit breaker. The fallback is local and never fails, and it
// always runs: its fixes are merged after the primary's, so the primary wins
// wherever both touch the same words. On any primary failure only the
// fallback's fixes remain. That switch is not an error for the caller. It
// only shows up in [Result.Source] and a diagnostic note.
//
// Proposals are never trusted. Before anything is applied every correction
// is re-anchored on the original text, corrections inside dialogue that
// would change more than spelling or quotation marks are rejected, and the
// corrected text is rebuilt from the accepted edits alone.
package correct

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/quillmate/internal/llmjson"
	"github.com/MrWong99/quillmate/internal/observe"
	"github.com/MrWong99/quillmate/internal/resilience"
	"github.com/MrWong99/quillmate/pkg/types"
)

// DefaultTimeout bounds the primary capability call.
const DefaultTimeout = 20 * time.Second

var (
	// ErrCapabilityFailure wraps any failure of a correction capability:
	// transport errors, timeouts, quota rejections.
	ErrCapabilityFailure = errors.New("correction capability failed")

	// ErrMalformedResponse is returned by capabilities whose reply does not
	// match the expected schema.
	ErrMalformedResponse = llmjson.ErrMalformedResponse
)

// Proposal is the unverified output of a [Capability]. Spans may be missing or
// wrong; the orchestrator re-anchors them.
type Proposal struct {
	CorrectedText string
	Corrections   []types.Correction
	Usage         types.TokenUsage
}

// Capability proposes corrections for text. hints are the dialogue spans of
// text when known, so a capability can avoid touching dialogue grammar.
// Implementations must be safe for concurrent use.
type Capability interface {
	Correct(ctx context.Context, text string, hints []types.DialogueSpan) (*Proposal, error)
}

// Attempt is the outcome of [Orchestrator.Propose].
type Attempt struct {
	Proposal *Proposal
	Source   types.CorrectionSource

	// Rules holds the rule table's proposal when Proposal came from the
	// primary. Its corrections are merged after Proposal's.
	Rules *Proposal

	// Diagnostic explains a fallback. Empty when the primary answered.
	Diagnostic string
}

// Result is the verified, applied outcome of one correction pass.
type Result struct {
	CorrectedText string
	Corrections   []types.Correction
	Source        types.CorrectionSource
	Usage         types.TokenUsage
	Diagnostics   []string
}

// Orchestrator runs the primary capability with fallback and verifies the
// outcome. It is safe for concurrent use.
type Orchestrator struct {
	primary  Capability
	fallback Capability
	timeout  time.Duration
	breaker  *resilience.CircuitBreaker
	metrics  *observe.Metrics
}

// Option configures an [Orchestrator].
type Option func(*Orchestrator)

// WithPrimary sets the preferred capability, normally an LLM corrector.
// Without one every chapter goes through the fallback.
func WithPrimary(c Capability) Option {
	return func(o *Orchestrator) { o.primary = c }
}

// WithTimeout bounds each primary call. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithBreaker replaces the default breaker settings for the primary.
func WithBreaker(cfg resilience.CircuitBreakerConfig) Option {
	return func(o *Orchestrator) { o.breaker = resilience.NewCircuitBreaker(cfg) }
}

// WithMetrics records correction paths and rejections to m.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// New creates an Orchestrator. fallback must be non-nil and should not fail.
func New(fallback Capability, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		fallback: fallback,
		timeout:  DefaultTimeout,
		breaker:  resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "correction"}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// HasPrimary reports whether a primary capability is configured.
func (o *Orchestrator) HasPrimary() bool { return o.primary != nil }

// Correct runs [Orchestrator.Propose] with dialogue as hints and verifies the
// result with [Orchestrator.Finalize].
func (o *Orchestrator) Correct(ctx context.Context, text string, dialogue []types.DialogueSpan) *Result {
	return o.Finalize(ctx, text, o.Propose(ctx, text, dialogue), dialogue)
}

// Propose asks the primary capability for corrections, once, and runs the
// rule table alongside it. When the primary is missing, times out, errors,
// returns a malformed reply or its breaker is open, the rule table's
// proposal stands alone. hints may be nil.
func (o *Orchestrator) Propose(ctx context.Context, text string, hints []types.DialogueSpan) *Attempt {
	if o.primary != nil {
		var p *Proposal
		err := o.breaker.Execute(func() error {
			cctx, cancel := context.WithTimeout(ctx, o.timeout)
			defer cancel()
			var err error
			p, err = o.primary.Correct(cctx, text, hints)
			if err == nil && p == nil {
				err = fmt.Errorf("correct: primary returned no proposal: %w", ErrCapabilityFailure)
			}
			return err
		})
		if err == nil {
			o.recordPath(ctx, types.SourceAI)
			return &Attempt{Proposal: p, Source: types.SourceAI, Rules: o.rules(ctx, text, hints)}
		}

		kind := failureKind(err)
		observe.Logger(ctx).Warn("correction model failed, using rule-based fallback", "kind", kind, "err", err)
		if o.metrics != nil {
			o.metrics.RecordLLMError(ctx, "correct", strings.ReplaceAll(kind, " ", "_"))
		}
		return o.fallbackAttempt(ctx, text, hints,
			fmt.Sprintf("correction model unavailable (%s); rule-based corrections applied", kind))
	}
	return o.fallbackAttempt(ctx, text, hints, "no correction model configured; rule-based corrections applied")
}

func (o *Orchestrator) fallbackAttempt(ctx context.Context, text string, hints []types.DialogueSpan, note string) *Attempt {
	o.recordPath(ctx, types.SourceRule)
	return &Attempt{Proposal: o.rules(ctx, text, hints), Source: types.SourceRule, Diagnostic: note}
}

func (o *Orchestrator) rules(ctx context.Context, text string, hints []types.DialogueSpan) *Proposal {
	p, err := o.fallback.Correct(ctx, text, hints)
	if err != nil || p == nil {
		observe.Logger(ctx).Error("rule-based correction failed", "err", err)
		return &Proposal{CorrectedText: text}
	}
	return p
}

func (o *Orchestrator) recordPath(ctx context.Context, src types.CorrectionSource) {
	if o.metrics != nil {
		o.metrics.RecordCorrectionPath(ctx, string(src))
	}
}

// failureKind maps a primary failure onto a short label for logs, metrics
// and the diagnostic note.
func failureKind(err error) string {
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		return "circuit open"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed response"
	default:
		return "error"
	}
}
