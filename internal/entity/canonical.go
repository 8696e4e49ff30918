// Package entity canonicalizes company and person names into stable keys and
// keeps the entity/alias tables free of duplicates.
package entity

import (
	"regexp"
	"strings"
	"unicode"
)

const TypeCompany = "company"

// corporateSuffixPattern matches one trailing legal-form suffix, either after a
// space/comma or wrapped in parentheses, along with trailing punctuation.
var corporateSuffixPattern = regexp.MustCompile(
	`(?i)(?:[\s,]+|\s*\()(?:inc|incorporated|llc|l\.l\.c|ltd|limited|corp|corporation|co|company|group|holdings?|gmbh|ag|sa|s\.a|nv|n\.v|bv|b\.v|plc|pty|pte|lp|llp|srl|spa|oy|ab|as|kk|bhd|sarl|sas)\.?\)?[\s.,]*$`,
)

// NormalizeKey lowercases s, drops everything except letters, digits,
// underscores and whitespace, and collapses runs of whitespace.
func NormalizeKey(s string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '_':
			return unicode.ToLower(r)
		case unicode.IsSpace(r):
			return ' '
		default:
			return -1
		}
	}, s)
	return strings.Join(strings.Fields(mapped), " ")
}

// StripCorporateSuffix removes trailing legal-form suffixes such as "Inc." or
// "(Holdings) Ltd". A name made only of a suffix is returned unchanged.
func StripCorporateSuffix(name string) string {
	current := strings.TrimSpace(name)
	for {
		loc := corporateSuffixPattern.FindStringIndex(current)
		if loc == nil {
			return current
		}
		next := strings.TrimRight(strings.TrimSpace(current[:loc[0]]), " ,.")
		if next == "" || next == current {
			return current
		}
		current = next
	}
}

// CanonicalKey returns "{type}:{normalized name}"; company names lose their
// legal suffix first.
func CanonicalKey(entityType, name string) string {
	t := normalizeType(entityType)
	stripped := name
	if t == TypeCompany {
		stripped = StripCorporateSuffix(name)
	}
	return t + ":" + NormalizeKey(stripped)
}

func normalizeType(entityType string) string {
	return strings.ToLower(strings.TrimSpace(entityType))
}
