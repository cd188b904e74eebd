package correct

import (
	"cmp"
	"context"
	"math"
	"slices"
	"strings"

	"github.com/MrWong99/quillmate/internal/analysis/tokenize"
	"github.com/MrWong99/quillmate/internal/observe"
	"github.com/MrWong99/quillmate/pkg/types"
)

// Rejection reasons, also used as metric labels.
const (
	rejectInvalid    = "invalid"
	rejectUnresolved = "unresolved"
	rejectDialogue   = "dialogue"
	rejectOverlap    = "overlap"
)

// Finalize verifies an attempt against the original text and applies it.
//
// Each correction is re-anchored: a span that addresses exactly Original is
// kept, otherwise the closest unclaimed literal occurrence of Original is
// used, and a correction whose Original does not occur at all is dropped.
// Corrections inside dialogue must be spelling or quotation fixes. Of two
// overlapping corrections the earlier one in proposal order wins. The rule
// table's fixes in a.Rules come after the primary's, and one that touches
// words the primary already corrected is skipped. The corrected text is
// rebuilt from the surviving corrections, which are returned in text order
// and keep the source that proposed them.
func (o *Orchestrator) Finalize(ctx context.Context, text string, a *Attempt, dialogue []types.DialogueSpan) *Result {
	res := &Result{
		CorrectedText: text,
		Corrections:   []types.Correction{},
		Source:        a.Source,
	}
	if a.Proposal != nil {
		res.Usage = a.Proposal.Usage
	}
	if a.Diagnostic != "" {
		res.Diagnostics = append(res.Diagnostics, a.Diagnostic)
	}

	type sourced struct {
		types.Correction
		rule bool
	}
	var proposed []sourced
	if a.Proposal != nil {
		for _, c := range a.Proposal.Corrections {
			c.Source = a.Source
			proposed = append(proposed, sourced{Correction: c})
		}
	}
	if a.Rules != nil {
		for _, c := range a.Rules.Corrections {
			c.Source = types.SourceRule
			proposed = append(proposed, sourced{Correction: c, rule: true})
		}
	}
	if len(proposed) == 0 {
		return res
	}

	log := observe.Logger(ctx)
	reject := func(c types.Correction, reason string) {
		log.Debug("correction rejected", "reason", reason, "original", c.Original,
			"corrected", c.Corrected, "kind", c.Kind, "span", c.Span.String())
		if o.metrics != nil {
			o.metrics.RecordRejectedCorrection(ctx, reason)
		}
	}

	var (
		accepted []types.Correction
		claimed  []types.Span
		dropped  int
	)
	for _, p := range proposed {
		c := p.Correction
		if p.rule && overlapsAny(c.Span, claimed) {
			log.Debug("rule correction superseded", "original", c.Original, "span", c.Span.String())
			continue
		}
		if !c.Kind.IsValid() || c.Original == "" || c.Original == c.Corrected {
			reject(c, rejectInvalid)
			dropped++
			continue
		}
		// Occurrences already claimed are skipped, so repeated identical
		// fixes land on distinct occurrences.
		span, found, collided := tokenize.Anchor(text, c.Original, c.Span, claimed)
		if !found {
			reason := rejectUnresolved
			if collided {
				reason = rejectOverlap
			}
			reject(c, reason)
			dropped++
			continue
		}
		c.Span = span
		if !c.Kind.AllowedInDialogue() && inDialogue(span, dialogue) {
			log.Info("rejected correction inside dialogue", "kind", c.Kind, "original", c.Original, "span", span.String())
			reject(c, rejectDialogue)
			dropped++
			continue
		}
		c.Confidence = clamp01(c.Confidence)
		claimed = append(claimed, span)
		accepted = append(accepted, c)
	}

	slices.SortStableFunc(accepted, func(x, y types.Correction) int {
		return cmp.Compare(x.Span.Start, y.Span.Start)
	})
	res.Corrections = append(res.Corrections, accepted...)
	res.CorrectedText = Apply(text, accepted)
	if dropped > 0 {
		log.Info("corrections dropped during verification", "dropped", dropped, "accepted", len(accepted))
	}
	return res
}

// Apply rebuilds text with every correction's span replaced by Corrected.
// corrections must be sorted by span start and must not overlap.
func Apply(text string, corrections []types.Correction) string {
	if len(corrections) == 0 {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, c := range corrections {
		b.WriteString(text[last:c.Span.Start])
		b.WriteString(c.Corrected)
		last = c.Span.End
	}
	b.WriteString(text[last:])
	return b.String()
}

func overlapsAny(s types.Span, spans []types.Span) bool {
	for _, t := range spans {
		if s.Overlaps(t) {
			return true
		}
	}
	return false
}

func inDialogue(s types.Span, dialogue []types.DialogueSpan) bool {
	for _, d := range dialogue {
		if s.Overlaps(d.Span) {
			return true
		}
	}
	return false
}

func clamp01(f float64) float64 {
	if math.IsNaN(f) {
		return 0
	}
	return math.Min(1, math.Max(0, f))
}
