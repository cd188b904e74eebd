package tokenize

import (
	"strings"
	"unicode/utf8"
)

// Sentences counts the sentences in text. A sentence ends at a run of terminal
// punctuation ('.', '!', '?', '…') that follows at least one word; trailing
// words without terminal punctuation count as a final sentence.
func Sentences(text string) int {
	n := 0
	pendingWord := false
	for _, r := range text {
		switch {
		case isTerminal(r):
			if pendingWord {
				n++
				pendingWord = false
			}
		case IsWordRune(r):
			pendingWord = true
		}
	}
	if pendingWord {
		n++
	}
	return n
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?' || r == '…'
}

// Paragraphs counts the non-blank blocks of text separated by blank lines.
func Paragraphs(text string) int {
	n := 0
	inPara := false
	for line := range strings.Lines(text) {
		if strings.TrimSpace(line) == "" {
			inPara = false
			continue
		}
		if !inPara {
			n++
			inPara = true
		}
	}
	return n
}

// Characters returns the number of runes in text.
func Characters(text string) int { return utf8.RuneCountInString(text) }
