// Package fingerprint derives the stable content hash used for exact-duplicate
// suppression of signals.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"horse.fit/signalwatch/internal/textnorm"
	"horse.fit/signalwatch/internal/urlcanon"
)

const (
	separator = "|"
	dayLayout = "2006-01-02"
)

// Input is everything the fingerprint depends on.
type Input struct {
	CompanyID   int64
	SourceURL   string
	Citations   []string
	Title       string
	PublishedAt *time.Time
	GatheredAt  time.Time
}

// GenerateStableHash returns the lowercase hex SHA-256 of
// "companyID|urlOrTitle|YYYY-MM-DD". The identity part prefers the canonical
// source URL, then the first non-empty citation, then the normalized title.
// The day comes from PublishedAt when present, otherwise GatheredAt, in UTC.
func GenerateStableHash(in Input) string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(in.CompanyID, 10))
	b.WriteString(separator)
	b.WriteString(Identity(in.SourceURL, in.Citations, in.Title))
	b.WriteString(separator)
	b.WriteString(Day(in.PublishedAt, in.GatheredAt))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Identity picks the URL-or-title component of the fingerprint.
func Identity(sourceURL string, citations []string, title string) string {
	if canonical := urlcanon.Canonicalize(sourceURL); canonical != "" {
		return canonical
	}
	for _, citation := range citations {
		if canonical := urlcanon.Canonicalize(citation); canonical != "" {
			return canonical
		}
	}
	return textnorm.NormalizeTitle(title)
}

// Day renders the UTC calendar day the signal is attributed to.
func Day(publishedAt *time.Time, gatheredAt time.Time) string {
	if publishedAt != nil && !publishedAt.IsZero() {
		return publishedAt.UTC().Format(dayLayout)
	}
	return gatheredAt.UTC().Format(dayLayout)
}
