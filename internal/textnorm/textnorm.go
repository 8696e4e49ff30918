// Package textnorm turns headlines into comparable strings and token sets.
package textnorm

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// NormalizeTitle lowercases, strips punctuation, collapses whitespace and drops
// boilerplate words using DefaultVocabulary.
func NormalizeTitle(title string) string {
	return DefaultVocabulary.NormalizeTitle(title)
}

// TokenizeForJaccard returns the comparison token set of text using DefaultVocabulary.
func TokenizeForJaccard(text string) map[string]struct{} {
	return DefaultVocabulary.TokenizeForJaccard(text)
}

func (v Vocabulary) NormalizeTitle(title string) string {
	words := strings.Fields(stripPunctuation(strings.ToLower(title)))
	kept := words[:0]
	for _, w := range words {
		if _, ok := v.Boilerplate[w]; ok {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}

// TokenizeForJaccard drops single-character tokens, stopwords and boilerplate.
// The result is a set; repeated words count once.
func (v Vocabulary) TokenizeForJaccard(text string) map[string]struct{} {
	words := strings.Fields(stripPunctuation(strings.ToLower(text)))
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		if utf8.RuneCountInString(w) <= 1 {
			continue
		}
		if _, ok := v.Stopwords[w]; ok {
			continue
		}
		if _, ok := v.Boilerplate[w]; ok {
			continue
		}
		set[w] = struct{}{}
	}
	return set
}

// JaccardSimilarity is |A∩B| / |A∪B|. Two empty sets are identical (1); one empty
// set against a non-empty one shares nothing (0).
func JaccardSimilarity(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	intersection := 0
	for token := range small {
		if _, ok := large[token]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}

// TitleSimilarity compares two raw titles through TokenizeForJaccard.
func TitleSimilarity(left, right string) float64 {
	return JaccardSimilarity(TokenizeForJaccard(left), TokenizeForJaccard(right))
}

// stripPunctuation removes everything that is not a letter, digit or whitespace.
// Whitespace-like control characters become spaces.
func stripPunctuation(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return b.String()
}
