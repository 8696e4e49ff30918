package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"horse.fit/signalwatch/internal/dedup"
	"horse.fit/signalwatch/internal/scoring"
)

type scoreOutput struct {
	Priority scoring.PriorityResult       `json:"priority"`
	Format   scoring.FormatRecommendation `json:"format"`
}

// runScore needs no database or DATABASE_URL.
func runScore(args []string) int {
	fs := flag.NewFlagSet("score", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	signalType := fs.String("type", "other", "Signal type, for example funding or regulatory")
	sentiment := fs.String("sentiment", "", "positive, negative or neutral")
	relevance := fs.Float64("relevance", -1, "Relevance score in [0,1]; negative means unknown")
	novelty := fs.Int("novelty", -1, "Novelty score in [0,100]; negative means unknown")
	citations := fs.Int("citations", 0, "Number of citations")
	title := fs.String("title", "", "Title; with --recent, novelty is computed from titles")
	weightsFile := fs.String("weights", os.Getenv("SCORING_WEIGHTS_FILE"), "Optional JSON weights override")
	format := fs.String("format", outputFormatTable, "Output format: table or json")
	var recent stringList
	fs.Var(&recent, "recent", "Recent title to compare against (repeatable)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}
	parsedSentiment, err := parseSentimentFlag(*sentiment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid sentiment: %v\n", err)
		return 2
	}
	if *citations < 0 {
		fmt.Fprintln(os.Stderr, "--citations must be >= 0")
		return 2
	}

	weights, err := loadWeights(*weightsFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid scoring weights: %v\n", err)
		return 1
	}

	in := scoring.PriorityInput{
		Type:           *signalType,
		Sentiment:      parsedSentiment,
		CitationsCount: *citations,
		RelevanceScore: optionalFloat(*relevance),
		NoveltyScore:   optionalInt(*novelty),
	}
	if in.NoveltyScore == nil && strings.TrimSpace(*title) != "" && len(recent) > 0 {
		computed := dedup.ComputeNoveltyScore(*title, recent)
		in.NoveltyScore = &computed
	}

	priority := weights.ComputePriorityScore(in)
	out := scoreOutput{
		Priority: priority,
		Format:   scoring.GetRecommendedFormat(priority.Label, in.Type, in.Sentiment, in.RelevanceScore, in.NoveltyScore),
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(out); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	rows := [][]string{
		{"score", fmt.Sprintf("%d", out.Priority.Score)},
		{"label", string(out.Priority.Label)},
		{"reason", out.Priority.Reason},
		{"format", string(out.Format.Format)},
		{"format_reason", out.Format.Reason},
	}
	if err := writeTable([]string{"field", "value"}, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return 1
	}
	return 0
}

func parseSentimentFlag(raw string) (scoring.Sentiment, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	parsed := scoring.ParseSentiment(raw)
	if parsed == "" {
		return "", fmt.Errorf("%q is not positive, negative or neutral", raw)
	}
	return parsed, nil
}

func optionalFloat(v float64) *float64 {
	if v < 0 {
		return nil
	}
	return &v
}

func optionalInt(v int) *int {
	if v < 0 {
		return nil
	}
	return &v
}

type stringList []string

func (l *stringList) String() string {
	return strings.Join(*l, ",")
}

func (l *stringList) Set(value string) error {
	*l = append(*l, value)
	return nil
}
