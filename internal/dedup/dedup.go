// Package dedup decides whether a candidate signal repeats recent coverage.
package dedup

import (
	"math"

	"horse.fit/signalwatch/internal/textnorm"
	"horse.fit/signalwatch/internal/urlcanon"
)

// Method records which rule produced a verdict.
type Method string

const (
	MethodExactHash   Method = "exact_hash"
	MethodNearJaccard Method = "near_jaccard"
	MethodNone        Method = "none"
)

const (
	// DefaultJaccardThreshold marks a duplicate regardless of publisher.
	DefaultJaccardThreshold = 0.85
	// DefaultSameHostThreshold applies when both items come from the same host.
	DefaultSameHostThreshold = 0.75
)

// Thresholds for the Jaccard rules; see DefaultThresholds.
type Thresholds struct {
	Jaccard  float64
	SameHost float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		Jaccard:  DefaultJaccardThreshold,
		SameHost: DefaultSameHostThreshold,
	}
}

// Verdict is the auditable outcome of a duplicate check.
type Verdict struct {
	IsNearDuplicate bool     `json:"is_near_duplicate"`
	MatchedID       *int64   `json:"matched_id,omitempty"`
	Similarity      *float64 `json:"similarity,omitempty"`
	Method          Method   `json:"method"`
}

// NotDuplicate is the verdict when nothing in the window matched.
func NotDuplicate() Verdict {
	return Verdict{Method: MethodNone}
}

// ExactDuplicate is the verdict for a fingerprint hit on an existing signal.
func ExactDuplicate(matchedID int64) Verdict {
	return Verdict{
		IsNearDuplicate: true,
		MatchedID:       &matchedID,
		Similarity:      floatPtr(1),
		Method:          MethodExactHash,
	}
}

// CheckNearDuplicate uses DefaultThresholds.
func CheckNearDuplicate(title, sourceURL string, window Window) Verdict {
	return DefaultThresholds().CheckNearDuplicate(title, sourceURL, window)
}

// CheckNearDuplicate evaluates window items in order; the first match wins.
//  1. identical non-empty normalized titles -> similarity 1
//  2. token Jaccard >= t.Jaccard
//  3. same resolvable host and Jaccard >= t.SameHost
func (t Thresholds) CheckNearDuplicate(title, sourceURL string, window Window) Verdict {
	normalized := textnorm.NormalizeTitle(title)
	tokens := textnorm.TokenizeForJaccard(title)
	host := urlcanon.Host(sourceURL)

	for _, existing := range window.items {
		if normalized != "" && normalized == textnorm.NormalizeTitle(existing.Title) {
			return nearDuplicate(existing.ID, 1)
		}

		similarity := clampUnit(textnorm.JaccardSimilarity(tokens, textnorm.TokenizeForJaccard(existing.Title)))
		if similarity >= t.Jaccard {
			return nearDuplicate(existing.ID, similarity)
		}

		if host == "" || similarity < t.SameHost {
			continue
		}
		if existingHost := urlcanon.Host(existing.SourceURL); existingHost != "" && existingHost == host {
			return nearDuplicate(existing.ID, similarity)
		}
	}

	return NotDuplicate()
}

// ComputeNoveltyScore is round((1 - maxSimilarity) * 100) against the given
// titles, clamped to [0,100]. An empty history is fully novel.
func ComputeNoveltyScore(title string, recentTitles []string) int {
	if len(recentTitles) == 0 {
		return 100
	}

	tokens := textnorm.TokenizeForJaccard(title)
	maxSimilarity := 0.0
	for _, recent := range recentTitles {
		similarity := clampUnit(textnorm.JaccardSimilarity(tokens, textnorm.TokenizeForJaccard(recent)))
		if similarity > maxSimilarity {
			maxSimilarity = similarity
		}
		if maxSimilarity >= 1 {
			break
		}
	}
	return NoveltyFromSimilarity(maxSimilarity)
}

// NoveltyFromSimilarity maps a maximum similarity onto the 0-100 novelty scale.
func NoveltyFromSimilarity(maxSimilarity float64) int {
	novelty := int(math.Round((1 - clampUnit(maxSimilarity)) * 100))
	switch {
	case novelty < 0:
		return 0
	case novelty > 100:
		return 100
	default:
		return novelty
	}
}

func nearDuplicate(id int64, similarity float64) Verdict {
	matched := id
	return Verdict{
		IsNearDuplicate: true,
		MatchedID:       &matched,
		Similarity:      floatPtr(similarity),
		Method:          MethodNearJaccard,
	}
}

func clampUnit(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func floatPtr(v float64) *float64 {
	p := new(float64)
	*p = v
	return p
}
