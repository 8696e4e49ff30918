package scoring

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func TestComputePriorityScoreRegulatoryNegative(t *testing.T) {
	t.Parallel()

	got := ComputePriorityScore(PriorityInput{
		Type:           "regulatory",
		Sentiment:      SentimentNegative,
		CitationsCount: 3,
		RelevanceScore: floatPtr(0.9),
		NoveltyScore:   intPtr(85),
	})

	if got.Score != 100 {
		t.Fatalf("expected clamped score 100, got %d", got.Score)
	}
	if got.Label != LabelHigh {
		t.Fatalf("expected high label, got %q", got.Label)
	}
	want := "base 50; type regulatory +20; sentiment negative +10; relevance 0.90 +18; novelty 85 +5; citations 3 +5; clamped 108->100"
	if got.Reason != want {
		t.Fatalf("unexpected reason\n got: %s\nwant: %s", got.Reason, want)
	}

	format := GetRecommendedFormat(got.Label, "regulatory", SentimentNegative, floatPtr(0.9), intPtr(85))
	if format.Format != FormatNews {
		t.Fatalf("expected news format, got %q", format.Format)
	}
}

func TestComputePriorityScoreDefaults(t *testing.T) {
	t.Parallel()

	got := ComputePriorityScore(PriorityInput{Type: "other", CitationsCount: 1})
	// 50 + round(0.5*20) = 60; novelty 50 falls in no band.
	if got.Score != 60 {
		t.Fatalf("expected 60, got %d (%s)", got.Score, got.Reason)
	}
	if got.Label != LabelMedium {
		t.Fatalf("expected medium, got %q", got.Label)
	}
	if strings.Contains(got.Reason, "type other") {
		t.Fatalf("zero-weight type should not appear in reason: %s", got.Reason)
	}
}

func TestComputePriorityScoreClampsLow(t *testing.T) {
	t.Parallel()

	got := ComputePriorityScore(PriorityInput{
		Type:           "blog",
		Sentiment:      SentimentNeutral,
		CitationsCount: 0,
		RelevanceScore: floatPtr(-3),
		NoveltyScore:   intPtr(5),
	})
	// 50 + 0 - 25 - 5 = 20
	if got.Score != 20 {
		t.Fatalf("expected 20, got %d (%s)", got.Score, got.Reason)
	}
	if got.Label != LabelLow {
		t.Fatalf("expected low, got %q", got.Label)
	}

	heavy := DefaultWeights()
	heavy.NoveltyBands.RepeatedPenalty = -200
	clamped := heavy.ComputePriorityScore(PriorityInput{NoveltyScore: intPtr(0)})
	if clamped.Score != 0 {
		t.Fatalf("expected clamp to 0, got %d", clamped.Score)
	}
	if !strings.Contains(clamped.Reason, "clamped") {
		t.Fatalf("expected clamp note in reason: %s", clamped.Reason)
	}
}

func TestComputePriorityScoreDeterministic(t *testing.T) {
	t.Parallel()

	in := PriorityInput{Type: "Funding", Sentiment: "Positive", CitationsCount: 2, RelevanceScore: floatPtr(0.33), NoveltyScore: intPtr(35)}
	first := ComputePriorityScore(in)
	for i := 0; i < 5; i++ {
		if again := ComputePriorityScore(in); again != first {
			t.Fatalf("non-deterministic result: %+v vs %+v", first, again)
		}
	}
	// 50 + 10 + 2 + 7 - 10 = 59
	if first.Score != 59 {
		t.Fatalf("expected 59, got %d (%s)", first.Score, first.Reason)
	}
}

func TestLabelBoundaries(t *testing.T) {
	t.Parallel()

	w := DefaultWeights()
	cases := map[int]Label{0: LabelLow, 39: LabelLow, 40: LabelMedium, 69: LabelMedium, 70: LabelHigh, 100: LabelHigh}
	for score, want := range cases {
		if got := w.LabelFor(score); got != want {
			t.Fatalf("score %d: expected %q, got %q", score, want, got)
		}
	}
}

func TestGetRecommendedFormatOrder(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		priority  Label
		typ       string
		sentiment Sentiment
		relevance *float64
		novelty   *int
		want      Format
	}{
		{name: "repeated coverage wins over everything", priority: LabelHigh, typ: "regulatory", sentiment: SentimentNegative, novelty: intPtr(20), want: FormatIgnore},
		{name: "high newsworthy type", priority: LabelHigh, typ: "earnings", sentiment: SentimentNegative, novelty: intPtr(60), want: FormatNews},
		{name: "high negative other type", priority: LabelHigh, typ: "funding", sentiment: SentimentNegative, want: FormatAnalysis},
		{name: "high positive other type", priority: LabelHigh, typ: "funding", sentiment: SentimentPositive, want: FormatBrief},
		{name: "medium relevant", priority: LabelMedium, typ: "funding", relevance: floatPtr(0.8), want: FormatBrief},
		{name: "low default", priority: LabelLow, typ: "regulatory", want: FormatBrief},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := GetRecommendedFormat(tc.priority, tc.typ, tc.sentiment, tc.relevance, tc.novelty)
			if got.Format != tc.want {
				t.Fatalf("expected %q, got %q (%s)", tc.want, got.Format, got.Reason)
			}
			if got.Reason == "" {
				t.Fatal("expected a reason")
			}
		})
	}
}

func TestLoadWeightsFileOverlaysDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "weights.json")
	doc := `{"type_weights": {"Earnings": 15, "regulatory": 30}, "high_threshold": 75}`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write weights: %v", err)
	}

	w, err := LoadWeightsFile(path)
	if err != nil {
		t.Fatalf("LoadWeightsFile() error = %v", err)
	}
	if w.TypeWeights["earnings"] != 15 || w.TypeWeights["regulatory"] != 30 || w.TypeWeights["acquisition"] != 20 {
		t.Fatalf("unexpected type weights: %+v", w.TypeWeights)
	}
	if w.HighThreshold != 75 || w.MediumThreshold != 40 || w.Baseline != 50 {
		t.Fatalf("unexpected thresholds: %+v", w)
	}
}

func TestLoadWeightsFileRejectsInvertedThresholds(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "weights.json")
	if err := os.WriteFile(path, []byte(`{"medium_threshold": 80}`), 0o600); err != nil {
		t.Fatalf("write weights: %v", err)
	}
	if _, err := LoadWeightsFile(path); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoadWeightsFileEmptyPathUsesDefaults(t *testing.T) {
	t.Parallel()

	w, err := LoadWeightsFile("  ")
	if err != nil {
		t.Fatalf("LoadWeightsFile() error = %v", err)
	}
	if w.Baseline != 50 || len(w.TypeWeights) != 7 {
		t.Fatalf("unexpected defaults: %+v", w)
	}
}
