package scoring

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Weights is the tunable data behind ComputePriorityScore. Changing editorial
// judgement means editing this table, not the scoring code.
type Weights struct {
	Baseline          int            `json:"baseline"`
	TypeWeights       map[string]int `json:"type_weights"`
	SentimentNegative int            `json:"sentiment_negative"`
	SentimentPositive int            `json:"sentiment_positive"`
	RelevanceScale    float64        `json:"relevance_scale"`
	NoveltyBands      NoveltyBands   `json:"novelty_bands"`
	CitationsMin      int            `json:"citations_min"`
	CitationsBonus    int            `json:"citations_bonus"`
	NoCitationPenalty int            `json:"no_citation_penalty"`
	HighThreshold     int            `json:"high_threshold"`
	MediumThreshold   int            `json:"medium_threshold"`
}

// NoveltyBands are checked from the most repeated band upward.
type NoveltyBands struct {
	RepeatedMax     int `json:"repeated_max"`
	RepeatedPenalty int `json:"repeated_penalty"`
	SimilarMax      int `json:"similar_max"`
	SimilarPenalty  int `json:"similar_penalty"`
	FreshMin        int `json:"fresh_min"`
	FreshBonus      int `json:"fresh_bonus"`
}

func DefaultWeights() Weights {
	return Weights{
		Baseline: 50,
		TypeWeights: map[string]int{
			"regulatory":       20,
			"acquisition":      20,
			"funding":          10,
			"executive_change": 10,
			"product_launch":   5,
			"partnership":      5,
			"press_release":    5,
		},
		SentimentNegative: 10,
		SentimentPositive: 2,
		RelevanceScale:    20,
		NoveltyBands: NoveltyBands{
			RepeatedMax:     20,
			RepeatedPenalty: -25,
			SimilarMax:      40,
			SimilarPenalty:  -10,
			FreshMin:        80,
			FreshBonus:      5,
		},
		CitationsMin:      3,
		CitationsBonus:    5,
		NoCitationPenalty: -5,
		HighThreshold:     70,
		MediumThreshold:   40,
	}
}

// LoadWeightsFile overlays the JSON document at path onto DefaultWeights.
// Type weights from the file replace entries with the same key and add new ones.
func LoadWeightsFile(path string) (Weights, error) {
	weights := DefaultWeights()
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return weights, nil
	}

	raw, err := os.ReadFile(trimmed)
	if err != nil {
		return Weights{}, fmt.Errorf("read scoring weights %s: %w", trimmed, err)
	}

	defaultTypes := weights.TypeWeights
	weights.TypeWeights = nil
	if err := json.Unmarshal(raw, &weights); err != nil {
		return Weights{}, fmt.Errorf("decode scoring weights %s: %w", trimmed, err)
	}
	merged := make(map[string]int, len(defaultTypes)+len(weights.TypeWeights))
	for k, v := range defaultTypes {
		merged[k] = v
	}
	for k, v := range weights.TypeWeights {
		merged[normalizeType(k)] = v
	}
	weights.TypeWeights = merged

	if err := weights.Validate(); err != nil {
		return Weights{}, fmt.Errorf("scoring weights %s: %w", trimmed, err)
	}
	return weights, nil
}

func (w Weights) Validate() error {
	if w.MediumThreshold > w.HighThreshold {
		return fmt.Errorf("medium_threshold (%d) cannot exceed high_threshold (%d)", w.MediumThreshold, w.HighThreshold)
	}
	if w.HighThreshold > 100 || w.MediumThreshold < 0 {
		return fmt.Errorf("label thresholds must lie within [0,100]")
	}
	if w.NoveltyBands.RepeatedMax > w.NoveltyBands.SimilarMax {
		return fmt.Errorf("novelty repeated_max cannot exceed similar_max")
	}
	return nil
}
