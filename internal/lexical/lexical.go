// Package lexical holds the word-level text handling shared by the offline
// embedder and the locally adjudicated generator.
package lexical

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// minFuzzyLen is the shortest token that may match another with one edit.
// Shorter tokens must match exactly ("cat" is not "car").
const minFuzzyLen = 4

var stopwords = map[string]struct{}{
	"a": {}, "about": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "but": {},
	"by": {}, "can": {}, "could": {}, "do": {}, "does": {}, "for": {}, "from": {}, "has": {}, "have": {},
	"how": {}, "i": {}, "if": {}, "in": {}, "is": {}, "it": {}, "me": {}, "my": {}, "of": {}, "on": {},
	"or": {}, "our": {}, "please": {}, "should": {}, "so": {}, "that": {}, "the": {}, "their": {},
	"there": {}, "this": {}, "to": {}, "was": {}, "we": {}, "were": {}, "what": {}, "when": {},
	"where": {}, "which": {}, "who": {}, "why": {}, "will": {}, "with": {}, "would": {}, "you": {},
	"your": {},
}

// Tokenize lowercases text and splits it on anything that is not a letter or digit.
func Tokenize(text string) []string {
	if text == "" {
		return nil
	}

	var builder strings.Builder
	builder.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			builder.WriteRune(r)
		} else {
			builder.WriteRune(' ')
		}
	}
	tokens := strings.Fields(builder.String())
	if len(tokens) == 0 {
		return nil
	}
	return tokens
}

// FilterStopwords drops common function words.
func FilterStopwords(tokens []string) []string {
	if len(tokens) == 0 {
		return nil
	}

	result := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if IsStopword(token) {
			continue
		}
		result = append(result, token)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

// IsStopword reports whether token is a stop word.
func IsStopword(token string) bool {
	_, ok := stopwords[token]
	return ok
}

// Terms returns the distinct content tokens of text in first-seen order.
func Terms(text string) []string {
	tokens := FilterStopwords(Tokenize(text))
	seen := make(map[string]struct{}, len(tokens))
	terms := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		terms = append(terms, token)
	}
	return terms
}

// Match reports whether two tokens are equal or, when both are long enough,
// one edit apart (insertion, deletion, substitution or adjacent transposition).
func Match(a, b string) bool {
	if a == b {
		return true
	}
	if utf8.RuneCountInString(a) < minFuzzyLen || utf8.RuneCountInString(b) < minFuzzyLen {
		return false
	}
	return WithinOneEdit(a, b)
}

// WithinOneEdit reports whether a and b differ by at most one rune edit,
// counting an adjacent transposition as a single edit.
func WithinOneEdit(a, b string) bool {
	ra, rb := []rune(a), []rune(b)
	if len(ra) < len(rb) {
		ra, rb = rb, ra
	}
	switch len(ra) - len(rb) {
	case 0:
		var diffs []int
		for i := range ra {
			if ra[i] != rb[i] {
				diffs = append(diffs, i)
				if len(diffs) > 2 {
					return false
				}
			}
		}
		switch len(diffs) {
		case 0, 1:
			return true
		case 2:
			i, j := diffs[0], diffs[1]
			return j == i+1 && ra[i] == rb[j] && ra[j] == rb[i]
		}
		return false
	case 1:
		// ra is one rune longer: skipping one rune of ra must yield rb.
		i := 0
		for i < len(rb) && ra[i] == rb[i] {
			i++
		}
		for j := i; j < len(rb); j++ {
			if ra[j+1] != rb[j] {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Coverage returns the fraction of query terms that Match some token of text.
// It returns 0 when the query has no content terms.
func Coverage(queryTerms []string, text string) float64 {
	if len(queryTerms) == 0 {
		return 0
	}

	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return 0
	}
	exact := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		exact[token] = struct{}{}
	}

	var matched int
	for _, term := range queryTerms {
		if _, ok := exact[term]; ok {
			matched++
			continue
		}
		for token := range exact {
			if Match(term, token) {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(len(queryTerms))
}
