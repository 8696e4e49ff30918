// Package pipeline evaluates discovered candidate signals: fingerprint,
// duplicate checks, novelty, priority and format, then persistence.
package pipeline

import (
	"strings"
	"time"

	"horse.fit/signalwatch/internal/dedup"
	"horse.fit/signalwatch/internal/fingerprint"
	"horse.fit/signalwatch/internal/payloadschema"
	"horse.fit/signalwatch/internal/scoring"
)

// EntityMention is an organisation or person named by a candidate.
type EntityMention struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// CandidateSignal is one discovered item. RelevanceScore and Sentiment come
// from the enrichment collaborator and are never computed here.
type CandidateSignal struct {
	CompanyID       int64           `json:"company_id"`
	Title           string          `json:"title"`
	SourceURL       *string         `json:"source_url,omitempty"`
	Citations       []string        `json:"citations,omitempty"`
	PublishedAt     *time.Time      `json:"published_at,omitempty"`
	GatheredAt      time.Time       `json:"gathered_at"`
	Type            string          `json:"type"`
	Sentiment       *string         `json:"sentiment,omitempty"`
	RelevanceScore  *float64        `json:"relevance_score,omitempty"`
	Themes          []string        `json:"themes,omitempty"`
	Entities        []EntityMention `json:"entities,omitempty"`
	NeedsDateReview bool            `json:"needs_date_review,omitempty"`
}

// FromPayload converts validated payload rows into candidates.
func FromPayload(rows []payloadschema.CandidateRow) []CandidateSignal {
	out := make([]CandidateSignal, 0, len(rows))
	for _, row := range rows {
		mentions := make([]EntityMention, 0, len(row.Entities))
		for _, m := range row.Entities {
			mentions = append(mentions, EntityMention{Name: m.Name, Type: m.Type})
		}
		out = append(out, CandidateSignal{
			CompanyID:       row.CompanyID,
			Title:           row.Title,
			SourceURL:       row.SourceURL,
			Citations:       row.Citations,
			PublishedAt:     row.PublishedAt,
			GatheredAt:      row.GatheredAt,
			Type:            row.Type,
			Sentiment:       row.Sentiment,
			RelevanceScore:  row.RelevanceScore,
			Themes:          row.Themes,
			Entities:        mentions,
			NeedsDateReview: row.NeedsDateReview,
		})
	}
	return out
}

func (c CandidateSignal) sourceURL() string {
	if c.SourceURL == nil {
		return ""
	}
	return strings.TrimSpace(*c.SourceURL)
}

func (c CandidateSignal) sentiment() scoring.Sentiment {
	if c.Sentiment == nil {
		return ""
	}
	return scoring.ParseSentiment(*c.Sentiment)
}

func (c CandidateSignal) signalType() string {
	t := strings.ToLower(strings.TrimSpace(c.Type))
	if t == "" {
		return "other"
	}
	return t
}

func (c CandidateSignal) citations() []string {
	out := make([]string, 0, len(c.Citations))
	for _, citation := range c.Citations {
		if trimmed := strings.TrimSpace(citation); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Fingerprint returns the exact-duplicate hash for the candidate.
func (c CandidateSignal) Fingerprint() string {
	return fingerprint.GenerateStableHash(fingerprint.Input{
		CompanyID:   c.CompanyID,
		SourceURL:   c.sourceURL(),
		Citations:   c.Citations,
		Title:       c.Title,
		PublishedAt: c.PublishedAt,
		GatheredAt:  c.GatheredAt,
	})
}

// Assessment is the pure part of evaluating a candidate against a window.
type Assessment struct {
	Hash         string                       `json:"hash"`
	Verdict      dedup.Verdict                `json:"verdict"`
	NoveltyScore int                          `json:"novelty_score"`
	Priority     scoring.PriorityResult       `json:"priority"`
	Format       scoring.FormatRecommendation `json:"format"`
}

// Assess runs near-duplicate detection, novelty, priority and format for c.
// It never touches storage, so exact-hash lookups are the caller's job.
func Assess(c CandidateSignal, window dedup.Window, thresholds dedup.Thresholds, weights scoring.Weights) Assessment {
	novelty := dedup.ComputeNoveltyScore(c.Title, window.Titles())
	priority := weights.ComputePriorityScore(scoring.PriorityInput{
		Type:           c.signalType(),
		Sentiment:      c.sentiment(),
		CitationsCount: len(c.citations()),
		RelevanceScore: c.RelevanceScore,
		NoveltyScore:   &novelty,
	})
	return Assessment{
		Hash:         c.Fingerprint(),
		Verdict:      thresholds.CheckNearDuplicate(c.Title, c.sourceURL(), window),
		NoveltyScore: novelty,
		Priority:     priority,
		Format:       scoring.GetRecommendedFormat(priority.Label, c.signalType(), c.sentiment(), c.RelevanceScore, &novelty),
	}
}
