package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/signalwatch/internal/pipeline"
	"horse.fit/signalwatch/internal/scoring"
)

func TestRunUsageExitCodes(t *testing.T) {
	if got := Run(nil); got != 2 {
		t.Fatalf("Run(nil) = %d, want 2", got)
	}
	if got := Run([]string{"help"}); got != 0 {
		t.Fatalf("Run(help) = %d, want 0", got)
	}
	if got := Run([]string{"bogus"}); got != 2 {
		t.Fatalf("Run(bogus) = %d, want 2", got)
	}
	if got := Run([]string{"entity"}); got != 2 {
		t.Fatalf("Run(entity) = %d, want 2", got)
	}
}

func TestParseOutputFormat(t *testing.T) {
	t.Parallel()

	got, err := parseOutputFormat(" JSON ", outputFormatTable)
	if err != nil || got != outputFormatJSON {
		t.Fatalf("parseOutputFormat(JSON) = %q, %v", got, err)
	}
	got, err = parseOutputFormat("", outputFormatTable)
	if err != nil || got != outputFormatTable {
		t.Fatalf("parseOutputFormat(empty) = %q, %v", got, err)
	}
	if _, err := parseOutputFormat("yaml", outputFormatTable); err == nil {
		t.Fatal("expected yaml to be rejected")
	}
}

func TestParseScopeFlag(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "Industry", " theme "} {
		if _, err := parseScopeFlag(raw); err != nil {
			t.Fatalf("parseScopeFlag(%q) error = %v", raw, err)
		}
	}
	if _, err := parseScopeFlag("company"); err == nil {
		t.Fatal("expected company scope to be rejected")
	}
}

func TestParseSentimentFlag(t *testing.T) {
	t.Parallel()

	got, err := parseSentimentFlag("Negative")
	if err != nil || got != scoring.SentimentNegative {
		t.Fatalf("parseSentimentFlag(Negative) = %q, %v", got, err)
	}
	got, err = parseSentimentFlag("")
	if err != nil || got != "" {
		t.Fatalf("parseSentimentFlag(empty) = %q, %v", got, err)
	}
	if _, err := parseSentimentFlag("angry"); err == nil {
		t.Fatal("expected unknown sentiment to be rejected")
	}
}

func TestTruncateForTable(t *testing.T) {
	t.Parallel()

	if got := truncateForTable("  short  ", 10); got != "short" {
		t.Fatalf("unexpected %q", got)
	}
	if got := truncateForTable("abcdefghij", 6); got != "abc..." {
		t.Fatalf("unexpected %q", got)
	}
	if got := truncateForTable("äöüßéè", 2); got != "äö" {
		t.Fatalf("unexpected %q", got)
	}
}

func TestOutcomeRows(t *testing.T) {
	t.Parallel()

	signalID := int64(11)
	score := 72
	rows := outcomeRows([]pipeline.BatchResult{{
		CompanyID: 3,
		Outcomes: []pipeline.CandidateOutcome{{
			Title:             "Acme raises $10M Series A",
			Decision:          pipeline.DecisionAccepted,
			Method:            "none",
			SignalID:          &signalID,
			PriorityScore:     &score,
			PriorityLabel:     "high",
			RecommendedFormat: "news",
		}},
	}})
	if len(rows) != 1 {
		t.Fatalf("expected one row, got %d", len(rows))
	}
	want := []string{"3", "accepted", "none", "11", "", "72 high", "news", "Acme raises $10M Series A"}
	for i := range want {
		if rows[0][i] != want[i] {
			t.Fatalf("column %d = %q, want %q", i, rows[0][i], want[i])
		}
	}
}

func TestRunScoreOffline(t *testing.T) {
	code := runScore([]string{
		"--type", "regulatory",
		"--sentiment", "negative",
		"--relevance", "0.9",
		"--novelty", "85",
		"--citations", "3",
		"--weights=",
		"--format", "json",
	})
	if code != 0 {
		t.Fatalf("runScore() = %d, want 0", code)
	}
	if code := runScore([]string{"--sentiment", "furious", "--weights="}); code != 2 {
		t.Fatalf("runScore(bad sentiment) = %d, want 2", code)
	}
}

func TestRunEvaluateRejectsInvalidFileBeforeConnecting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(path, []byte(`{"payload_version":"v2","candidates":[]}`), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	if code := runEvaluate([]string{"--file", path}); code != 2 {
		t.Fatalf("runEvaluate(invalid) = %d, want 2", code)
	}
	if code := runEvaluate(nil); code != 2 {
		t.Fatalf("runEvaluate(no file) = %d, want 2", code)
	}
}

func TestLoadWeightsDefaults(t *testing.T) {
	t.Parallel()

	got, err := loadWeights("  ")
	if err != nil {
		t.Fatalf("loadWeights() error = %v", err)
	}
	if got.Baseline != scoring.DefaultWeights().Baseline {
		t.Fatalf("unexpected baseline %v", got.Baseline)
	}
}

func TestStopOnSignalFlipsFlagOnly(t *testing.T) {
	t.Parallel()

	sigCh := make(chan os.Signal, 1)
	stop, detach := stopOnSignal(sigCh, zerolog.Nop())
	sigCh <- os.Interrupt

	deadline := time.Now().Add(2 * time.Second)
	for !stop.ShouldStop() {
		if time.Now().After(deadline) {
			t.Fatal("signal did not flip the stop flag")
		}
		time.Sleep(5 * time.Millisecond)
	}
	detach()
}

func TestStopOnSignalDetachWithoutSignal(t *testing.T) {
	t.Parallel()

	stop, detach := stopOnSignal(make(chan os.Signal), zerolog.Nop())
	detach()
	if stop.ShouldStop() {
		t.Fatal("flag should stay clear without a signal")
	}
}
