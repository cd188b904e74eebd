package analyzer

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/MrWong99/quillmate/internal/analysis/consistency"
	"github.com/MrWong99/quillmate/pkg/types"
)

// highlights flattens every span-addressed finding of res into display
// annotations ordered by position.
func highlights(text string, res *types.AnalysisResult) []types.Highlight {
	out := []types.Highlight{}
	add := func(s types.Span, kind types.HighlightKind, reason, suggestion string, sev types.Severity) {
		if !s.Valid(len(text)) {
			return
		}
		out = append(out, types.Highlight{
			Span:       s,
			Kind:       kind,
			Text:       text[s.Start:s.End],
			Reason:     reason,
			Suggestion: suggestion,
			Severity:   sev,
		})
	}

	for _, r := range res.Repetitions {
		for _, occ := range r.Occurrences {
			add(occ.Span, types.HighlightRepetition, r.Reason, "", types.SeverityMedium)
		}
	}
	for _, p := range res.Awkward {
		add(p.Span, types.HighlightAwkward, p.Reason, p.Suggestion, types.SeverityMedium)
	}
	for _, f := range res.Consistency {
		for _, s := range f.Occurrences {
			add(s, types.HighlightInconsistency, consistency.Describe(f), f.MatchedTracked, f.Severity)
		}
	}
	for _, c := range res.Corrections {
		add(c.Span, types.HighlightCorrection, fmt.Sprintf("%s correction", c.Kind), c.Corrected, types.SeverityLow)
	}

	slices.SortStableFunc(out, func(a, b types.Highlight) int {
		if c := cmp.Compare(a.Span.Start, b.Span.Start); c != 0 {
			return c
		}
		return cmp.Compare(a.Span.End, b.Span.End)
	})
	return out
}
