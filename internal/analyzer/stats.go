package analyzer

import (
	"unicode/utf8"

	"github.com/MrWong99/quillmate/internal/analysis/tokenize"
	"github.com/MrWong99/quillmate/pkg/types"
)

func statistics(text string, tokens []types.Token, dialogue []types.DialogueSpan) types.Statistics {
	st := types.Statistics{
		WordCount:      len(tokens),
		CharacterCount: tokenize.Characters(text),
		SentenceCount:  tokenize.Sentences(text),
		ParagraphCount: tokenize.Paragraphs(text),
		DialogueCount:  len(dialogue),
	}
	if len(dialogue) == 0 || len(text) == 0 {
		return st
	}

	var inside, runes int
	end := 0
	for _, d := range dialogue {
		runes += utf8.RuneCountInString(text[d.Span.Start:d.Span.End])
		// Spans are sorted; count each byte once even if two overlap.
		start := max(d.Span.Start, end)
		if d.Span.End > start {
			inside += d.Span.End - start
		}
		end = max(end, d.Span.End)
	}
	st.DialogueRatio = float64(inside) / float64(len(text))
	st.AverageDialogueLength = float64(runes) / float64(len(dialogue))
	return st
}
