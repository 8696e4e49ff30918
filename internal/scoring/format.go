package scoring

type Format string

const (
	FormatIgnore   Format = "ignore"
	FormatBrief    Format = "brief"
	FormatNews     Format = "news"
	FormatAnalysis Format = "analysis"
)

type FormatRecommendation struct {
	Format Format `json:"format"`
	Reason string `json:"reason"`
}

var newsworthyTypes = map[string]struct{}{
	"regulatory":       {},
	"earnings":         {},
	"acquisition":      {},
	"executive_change": {},
}

// GetRecommendedFormat applies the editorial rules in fixed order; the first
// matching rule wins. Nil relevance and novelty use the scoring defaults.
func GetRecommendedFormat(priority Label, signalType string, sentiment Sentiment, relevanceScore *float64, noveltyScore *int) FormatRecommendation {
	relevance := ClampRelevance(relevanceScore)
	novelty := ClampNovelty(noveltyScore)
	signalType = normalizeType(signalType)

	if novelty <= 20 {
		return FormatRecommendation{Format: FormatIgnore, Reason: "repeated coverage: novelty at or below 20"}
	}
	if priority == LabelHigh {
		if _, ok := newsworthyTypes[signalType]; ok {
			return FormatRecommendation{Format: FormatNews, Reason: "high priority " + signalType + " event warrants a news article"}
		}
		if normalizeSentiment(sentiment) == SentimentNegative {
			return FormatRecommendation{Format: FormatAnalysis, Reason: "high priority negative development needs analysis"}
		}
	}
	if priority == LabelMedium && relevance >= 0.75 {
		return FormatRecommendation{Format: FormatBrief, Reason: "medium priority with strong relevance"}
	}
	return FormatRecommendation{Format: FormatBrief, Reason: "default handling"}
}
