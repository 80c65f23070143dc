package generator

import (
	"strings"
	"unicode"
)

// Keywords returns the distinct lowercase content words of text in order of
// first appearance. Stop words and words shorter than three characters are
// dropped.
func Keywords(text string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, w := range words(text) {
		if len(w) < 3 || stopWords[w] {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

// words splits text into lowercase letter and digit runs.
func words(text string) []string {
	var out []string
	var current strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			current.WriteRune(r)
		} else if current.Len() > 0 {
			out = append(out, current.String())
			current.Reset()
		}
	}
	if current.Len() > 0 {
		out = append(out, current.String())
	}
	return out
}

func sentenceCount(text string) int {
	n := 0
	for _, r := range text {
		if r == '.' || r == '!' || r == '?' {
			n++
		}
	}
	return n
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"but": true, "in": true, "on": true, "at": true, "to": true,
	"for": true, "of": true, "with": true, "by": true, "from": true,
	"is": true, "are": true, "was": true, "were": true, "be": true,
	"been": true, "being": true, "have": true, "has": true, "had": true,
	"do": true, "does": true, "did": true, "will": true, "would": true,
	"could": true, "should": true, "may": true, "might": true, "can": true,
	"this": true, "that": true, "these": true, "those": true, "it": true,
	"its": true, "what": true, "which": true, "who": true, "how": true,
	"why": true, "when": true, "where": true, "me": true, "my": true,
	"you": true, "your": true, "we": true, "our": true, "they": true,
	"about": true, "into": true, "than": true, "then": true, "there": true,
	"please": true, "not": true, "all": true, "any": true, "some": true,
}
