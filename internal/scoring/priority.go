// Package scoring assigns editorial priority and handling format to signals.
package scoring

import (
	"fmt"
	"math"
	"strings"
)

type Label string

const (
	LabelHigh   Label = "high"
	LabelMedium Label = "medium"
	LabelLow    Label = "low"
)

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

const (
	DefaultRelevanceScore = 0.5
	DefaultNoveltyScore   = 50
)

// PriorityInput leaves RelevanceScore and NoveltyScore nil when unknown; the
// documented defaults apply then.
type PriorityInput struct {
	Type           string
	Sentiment      Sentiment
	CitationsCount int
	RelevanceScore *float64
	NoveltyScore   *int
}

type PriorityResult struct {
	Score  int    `json:"score"`
	Label  Label  `json:"label"`
	Reason string `json:"reason"`
}

// ComputePriorityScore uses DefaultWeights.
func ComputePriorityScore(in PriorityInput) PriorityResult {
	return DefaultWeights().ComputePriorityScore(in)
}

// ComputePriorityScore sums the baseline, type weight, sentiment, relevance,
// novelty band and citation factors, clamps to [0,100] and labels the result.
// Reason lists every non-zero factor in that order with its signed contribution.
func (w Weights) ComputePriorityScore(in PriorityInput) PriorityResult {
	factors := make([]string, 0, 7)
	add := func(name string, delta int) int {
		if delta != 0 {
			factors = append(factors, fmt.Sprintf("%s %+d", name, delta))
		}
		return delta
	}

	score := w.Baseline
	factors = append(factors, fmt.Sprintf("base %d", w.Baseline))

	signalType := normalizeType(in.Type)
	if signalType != "" {
		score += add("type "+signalType, w.TypeWeights[signalType])
	}

	switch normalizeSentiment(in.Sentiment) {
	case SentimentNegative:
		score += add("sentiment negative", w.SentimentNegative)
	case SentimentPositive:
		score += add("sentiment positive", w.SentimentPositive)
	}

	relevance := ClampRelevance(in.RelevanceScore)
	score += add(fmt.Sprintf("relevance %.2f", relevance), int(math.Round(relevance*w.RelevanceScale)))

	novelty := ClampNovelty(in.NoveltyScore)
	bands := w.NoveltyBands
	switch {
	case novelty <= bands.RepeatedMax:
		score += add(fmt.Sprintf("novelty %d", novelty), bands.RepeatedPenalty)
	case novelty <= bands.SimilarMax:
		score += add(fmt.Sprintf("novelty %d", novelty), bands.SimilarPenalty)
	case novelty >= bands.FreshMin:
		score += add(fmt.Sprintf("novelty %d", novelty), bands.FreshBonus)
	}

	switch {
	case in.CitationsCount >= w.CitationsMin:
		score += add(fmt.Sprintf("citations %d", in.CitationsCount), w.CitationsBonus)
	case in.CitationsCount <= 0:
		score += add("citations 0", w.NoCitationPenalty)
	}

	clamped := clampScore(score)
	if clamped != score {
		factors = append(factors, fmt.Sprintf("clamped %d->%d", score, clamped))
	}

	return PriorityResult{
		Score:  clamped,
		Label:  w.LabelFor(clamped),
		Reason: strings.Join(factors, "; "),
	}
}

func (w Weights) LabelFor(score int) Label {
	switch {
	case score >= w.HighThreshold:
		return LabelHigh
	case score >= w.MediumThreshold:
		return LabelMedium
	default:
		return LabelLow
	}
}

// ClampRelevance resolves a missing relevance to the default and clamps to [0,1].
func ClampRelevance(v *float64) float64 {
	if v == nil || math.IsNaN(*v) {
		return DefaultRelevanceScore
	}
	return math.Max(0, math.Min(1, *v))
}

// ClampNovelty resolves a missing novelty to the default and clamps to [0,100].
func ClampNovelty(v *int) int {
	if v == nil {
		return DefaultNoveltyScore
	}
	return clampScore(*v)
}

func clampScore(v int) int {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}

func normalizeType(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func normalizeSentiment(s Sentiment) Sentiment {
	return Sentiment(strings.ToLower(strings.TrimSpace(string(s))))
}

// ParseSentiment maps free text onto a known sentiment; anything else is "".
func ParseSentiment(raw string) Sentiment {
	switch s := normalizeSentiment(Sentiment(raw)); s {
	case SentimentPositive, SentimentNegative, SentimentNeutral:
		return s
	default:
		return ""
	}
}
