package repetition

import "strings"

// CommonWords lists the built-in common-word set.
var CommonWords = []string{
	// articles and conjunctions
	"a", "an", "the", "and", "or", "but", "nor", "so", "than", "then", "if",
	// prepositions
	"in", "on", "at", "to", "for", "of", "with", "by", "from", "up", "down",
	"about", "into", "through", "before", "after", "over", "under", "out",
	"off", "as", "like",
	// pronouns and determiners
	"i", "me", "my", "you", "your", "he", "him", "his", "she", "her", "it",
	"its", "we", "us", "our", "they", "them", "their", "this", "that",
	"these", "those", "what", "who", "which", "all", "some", "any", "no",
	"not",
	// adverbs
	"here", "there", "when", "where", "how", "now", "just", "very", "too",
	"only", "again",
	// auxiliaries
	"am", "is", "are", "was", "were", "be", "been", "being", "have", "has",
	"had", "do", "does", "did", "can", "could", "will", "would", "should",
	// common verbs
	"get", "got", "go", "went", "come", "came", "see", "saw", "look",
	"looked", "know", "knew", "think", "thought",
	// dialogue verbs
	"say", "said", "says", "tell", "told", "ask", "asked", "replied",
	// contraction tails
	"s", "t", "d", "ll", "re", "ve", "m",
}

var defaultCommonWords = func() map[string]struct{} {
	m := make(map[string]struct{}, len(CommonWords))
	for _, w := range CommonWords {
		m[w] = struct{}{}
	}
	return m
}()

func lower(s string) string { return strings.ToLower(s) }
