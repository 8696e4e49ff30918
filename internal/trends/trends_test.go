package trends

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"horse.fit/signalwatch/internal/db"
	"horse.fit/signalwatch/internal/explain"
)

var testNow = time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)

func rowsAt(n int, industry string, themes []string, signalType string, ageDays int) []StatRow {
	published := testNow.Add(-time.Duration(ageDays) * day)
	out := make([]StatRow, n)
	for i := range out {
		out[i] = StatRow{
			SignalID:    int64(i + 1),
			Type:        signalType,
			Themes:      themes,
			Industry:    industry,
			PublishedAt: &published,
		}
	}
	return out
}

func statsFor(t *testing.T, rows []StatRow, key ScopeKey) ScopeStats {
	t.Helper()
	for _, s := range Aggregate(rows, testNow) {
		if s.Key == key {
			return s
		}
	}
	t.Fatalf("scope %+v not found", key)
	return ScopeStats{}
}

func TestFilterFresh(t *testing.T) {
	t.Parallel()

	recent := testNow.Add(-2 * day)
	old := testNow.Add(-61 * day)
	rows := []StatRow{
		{SignalID: 1, PublishedAt: &recent},
		{SignalID: 2, PublishedAt: &recent, NeedsDateReview: true},
		{SignalID: 3},
		{SignalID: 4, PublishedAt: &old},
	}

	fresh := FilterFresh(rows, testNow, 60)
	if len(fresh) != 1 || fresh[0].SignalID != 1 {
		t.Fatalf("unexpected fresh rows: %+v", fresh)
	}
}

func TestAggregateWindows(t *testing.T) {
	t.Parallel()

	var rows []StatRow
	rows = append(rows, rowsAt(3, "Food", []string{"Supply Chain", "supply chain"}, "funding", 2)...)
	rows = append(rows, rowsAt(4, "Food", []string{"Recalls"}, "regulatory", 20)...)
	rows = append(rows, rowsAt(5, "Food", nil, "earnings", 45)...)
	future := testNow.Add(day)
	rows = append(rows, StatRow{Industry: "Food", PublishedAt: &future})

	food := statsFor(t, rows, ScopeKey{Type: ScopeIndustry, ID: "food"})
	if food.Last7 != 3 || food.Last30 != 7 || food.Prev30 != 5 {
		t.Fatalf("unexpected food windows: %+v", food)
	}
	if food.Dist30.Types["regulatory"] != 4 || food.Dist7.Types["regulatory"] != 0 {
		t.Fatalf("unexpected type distribution: %+v / %+v", food.Dist30.Types, food.Dist7.Types)
	}

	supply := statsFor(t, rows, ScopeKey{Type: ScopeTheme, ID: "supply chain"})
	if supply.Last7 != 3 || supply.Last30 != 3 {
		t.Fatalf("duplicate themes should count once per signal: %+v", supply)
	}

	snaps := food.Snapshots()
	if snaps[0].Period != Period7d || snaps[0].PrevCount != nil || snaps[0].DeltaPercent != nil {
		t.Fatalf("7d snapshot should carry no baseline: %+v", snaps[0])
	}
	if snaps[1].Period != Period30d || snaps[1].PrevCount == nil || *snaps[1].PrevCount != 5 {
		t.Fatalf("unexpected 30d snapshot: %+v", snaps[1])
	}
	if snaps[1].DeltaPercent == nil || *snaps[1].DeltaPercent != 40 {
		t.Fatalf("expected +40%% delta, got %v", snaps[1].DeltaPercent)
	}

	recalls := statsFor(t, rows, ScopeKey{Type: ScopeTheme, ID: "recalls"})
	if d := recalls.Snapshots()[1].DeltaPercent; d != nil {
		t.Fatalf("zero baseline should give nil delta, got %v", *d)
	}
}

func TestEvaluateBaselineGuardrail(t *testing.T) {
	t.Parallel()

	var rows []StatRow
	rows = append(rows, rowsAt(120, "Robotics", nil, "funding", 10)...)
	rows = append(rows, rowsAt(10, "Robotics", nil, "funding", 40)...)

	eval := DefaultPolicy().Evaluate(statsFor(t, rows, ScopeKey{Type: ScopeIndustry, ID: "robotics"}))
	if eval.Direction != DirectionEmerging || eval.Outcome != OutcomeEmerging {
		t.Fatalf("expected emerging, got %+v", eval)
	}
	if eval.Magnitude != nil {
		t.Fatalf("emerging trend must not carry a magnitude, got %v", *eval.Magnitude)
	}
	if eval.Confidence != EmergingConfidence {
		t.Fatalf("expected confidence %d, got %d", EmergingConfidence, eval.Confidence)
	}
	if !eval.Persist() {
		t.Fatal("emerging scopes are persisted")
	}
}

func TestEvaluateClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		current    int
		prev       int
		outcome    Outcome
		direction  Direction
		magnitude  float64
		confidence int
	}{
		{name: "below floor", current: 9, prev: 100, outcome: OutcomeBelowFloor},
		{name: "not significant", current: 45, prev: 40, outcome: OutcomeNotSignificant},
		{name: "up", current: 60, prev: 40, outcome: OutcomeTrend, direction: DirectionUp, magnitude: 50, confidence: 75},
		{name: "down", current: 20, prev: 40, outcome: OutcomeTrend, direction: DirectionDown, magnitude: 50, confidence: 75},
		{name: "capped confidence", current: 200, prev: 30, outcome: OutcomeTrend, direction: DirectionUp, magnitude: 566.7, confidence: 95},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			eval := DefaultPolicy().Evaluate(ScopeStats{
				Key:    ScopeKey{Type: ScopeTheme, ID: "x"},
				Last30: tc.current,
				Prev30: tc.prev,
				Dist30: newDistribution(),
			})
			if eval.Outcome != tc.outcome {
				t.Fatalf("expected outcome %q, got %q", tc.outcome, eval.Outcome)
			}
			if tc.outcome != OutcomeTrend {
				if eval.Persist() {
					t.Fatal("suppressed scopes must not persist")
				}
				return
			}
			if eval.Direction != tc.direction || eval.Confidence != tc.confidence {
				t.Fatalf("unexpected evaluation: %+v", eval)
			}
			if eval.Magnitude == nil || *eval.Magnitude != tc.magnitude {
				t.Fatalf("expected magnitude %.1f, got %v", tc.magnitude, eval.Magnitude)
			}
		})
	}
}

func TestTopNTieBreak(t *testing.T) {
	t.Parallel()

	got := TopN(map[string]int{"b": 2, "a": 2, "c": 5, "d": 1, "z": 0}, 3)
	if strings.Join(got, ",") != "c,a,b" {
		t.Fatalf("unexpected order %v", got)
	}
}

func TestFallbackExplanation(t *testing.T) {
	t.Parallel()

	magnitude := 50.0
	text := FallbackExplanation(Evaluation{
		Key:          ScopeKey{Type: ScopeTheme, ID: "fintech"},
		Direction:    DirectionUp,
		Magnitude:    &magnitude,
		CurrentCount: 60,
		PrevCount:    40,
		Themes:       []string{"fintech"},
	})
	want := `Signal volume for theme "fintech" is up 50.0% over the last 30 days (60 vs 40). Top themes: fintech.`
	if text != want {
		t.Fatalf("unexpected fallback\n got: %s\nwant: %s", text, want)
	}

	emerging := FallbackExplanation(Evaluation{Key: ScopeKey{Type: ScopeIndustry, ID: "robotics"}, Direction: DirectionEmerging, CurrentCount: 120, PrevCount: 10})
	if !strings.HasPrefix(emerging, `Emerging activity for industry "robotics"`) || strings.Contains(emerging, "%") {
		t.Fatalf("unexpected emerging fallback: %s", emerging)
	}
}

type stubTrendStore struct {
	stats      []db.SignalStat
	cutoff     time.Time
	snapshots  []db.MetricSnapshot
	trends     []db.Trend
	failScopes map[string]bool
}

func (s *stubTrendStore) ListSignalStats(_ context.Context, since time.Time) ([]db.SignalStat, error) {
	s.cutoff = since
	return s.stats, nil
}

func (s *stubTrendStore) InsertMetricSnapshots(_ context.Context, rows []db.MetricSnapshot) (int, error) {
	s.snapshots = append(s.snapshots, rows...)
	return len(rows), nil
}

func (s *stubTrendStore) InsertTrend(_ context.Context, row *db.Trend) error {
	if s.failScopes[row.ScopeID] {
		return errors.New("insert failed")
	}
	s.trends = append(s.trends, *row)
	return nil
}

type stubExplainer struct {
	failFor map[string]bool
	calls   []explain.Request
}

func (p *stubExplainer) Name() string { return "stub" }

func (p *stubExplainer) Explain(_ context.Context, req explain.Request) (*explain.Response, error) {
	p.calls = append(p.calls, req)
	if p.failFor[req.ScopeID] {
		return nil, errors.New("model offline")
	}
	return &explain.Response{Text: "generated for " + req.ScopeID, ProviderName: "stub"}, nil
}

func signalStats(n int, industry string, themes []string, signalType string, ageDays int) []db.SignalStat {
	published := testNow.Add(-time.Duration(ageDays) * day)
	raw, _ := json.Marshal(themes)
	out := make([]db.SignalStat, n)
	for i := range out {
		ind := industry
		out[i] = db.SignalStat{
			SignalID:    int64(i + 1),
			Type:        signalType,
			Themes:      datatypes.JSON(raw),
			Industry:    &ind,
			PublishedAt: &published,
		}
	}
	return out
}

func newTestService(store Store, explainer explain.Provider) *Service {
	svc := NewService(store, explainer, zerolog.Nop(), Options{})
	svc.now = func() time.Time { return testNow }
	return svc
}

func TestGenerateTrendsIsolatesScopeFailures(t *testing.T) {
	t.Parallel()

	var stats []db.SignalStat
	// food: 120 vs 10 -> emerging
	stats = append(stats, signalStats(120, "Food", []string{"Recalls"}, "regulatory", 5)...)
	stats = append(stats, signalStats(10, "Food", nil, "regulatory", 40)...)
	// energy: 60 vs 40 -> up 50%
	stats = append(stats, signalStats(60, "Energy", nil, "funding", 12)...)
	stats = append(stats, signalStats(40, "Energy", nil, "funding", 35)...)
	// retail: 5 -> below floor
	stats = append(stats, signalStats(5, "Retail", nil, "earnings", 3)...)

	store := &stubTrendStore{stats: stats, failScopes: map[string]bool{"recalls": true}}
	explainer := &stubExplainer{failFor: map[string]bool{"energy": true}}
	svc := newTestService(store, explainer)

	result, err := svc.GenerateTrends(context.Background())
	if err != nil {
		t.Fatalf("GenerateTrends() error = %v", err)
	}
	if !store.cutoff.Equal(testNow.Add(-60 * day)) {
		t.Fatalf("unexpected freshness cutoff %v", store.cutoff)
	}
	if result.TrendsGenerated != 2 || result.Errors != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}

	outcomes := map[string]Outcome{}
	for _, o := range result.Outcomes {
		outcomes[string(o.ScopeType)+":"+o.ScopeID] = o.Outcome
	}
	want := map[string]Outcome{
		"industry:energy": OutcomeTrend,
		"industry:food":   OutcomeEmerging,
		"industry:retail": OutcomeBelowFloor,
		"theme:recalls":   OutcomeFailed,
	}
	for k, v := range want {
		if outcomes[k] != v {
			t.Fatalf("scope %s: expected %q, got %q (all: %+v)", k, v, outcomes[k], outcomes)
		}
	}

	byScope := map[string]db.Trend{}
	for _, tr := range store.trends {
		byScope[tr.ScopeID] = tr
	}
	food := byScope["food"]
	if food.Direction != "emerging" || food.Magnitude != nil || food.Confidence != 60 {
		t.Fatalf("unexpected food trend: %+v", food)
	}
	if food.Explanation != "generated for food" {
		t.Fatalf("expected provider text, got %q", food.Explanation)
	}
	energy := byScope["energy"]
	if energy.Direction != "up" || energy.Magnitude == nil || *energy.Magnitude != 50 {
		t.Fatalf("unexpected energy trend: %+v", energy)
	}
	if !strings.HasPrefix(energy.Explanation, `Signal volume for industry "energy" is up 50.0%`) {
		t.Fatalf("expected fallback explanation, got %q", energy.Explanation)
	}
	if energy.RunUUID != result.RunUUID || energy.TimeWindow != "30d" {
		t.Fatalf("unexpected run metadata: %+v", energy)
	}
}

func TestGenerateTrendsWithoutExplainerUsesFallback(t *testing.T) {
	t.Parallel()

	store := &stubTrendStore{stats: signalStats(12, "Food", nil, "funding", 3)}
	result, err := newTestService(store, nil).GenerateTrends(context.Background())
	if err != nil {
		t.Fatalf("GenerateTrends() error = %v", err)
	}
	if result.TrendsGenerated != 1 || len(store.trends) != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if !strings.HasPrefix(store.trends[0].Explanation, "Emerging activity") {
		t.Fatalf("unexpected explanation %q", store.trends[0].Explanation)
	}
}

func TestGenerateTrendsStopsWhenCancelled(t *testing.T) {
	t.Parallel()

	store := &stubTrendStore{stats: signalStats(12, "Food", []string{"a"}, "funding", 3)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := newTestService(store, nil).GenerateTrends(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(store.trends) != 0 || len(result.Outcomes) != 0 {
		t.Fatalf("no scope should run after cancellation: %+v", result)
	}
}

type stopAfter struct{ calls, limit int }

func (s *stopAfter) ShouldStop() bool {
	s.calls++
	return s.calls > s.limit
}

func TestGenerateTrendsHonoursStopFlag(t *testing.T) {
	t.Parallel()

	var stats []db.SignalStat
	stats = append(stats, signalStats(12, "Food", nil, "funding", 3)...)
	stats = append(stats, signalStats(12, "Energy", nil, "funding", 3)...)
	store := &stubTrendStore{stats: stats}
	svc := NewService(store, nil, zerolog.Nop(), Options{Stop: &stopAfter{limit: 1}})
	svc.now = func() time.Time { return testNow }

	result, err := svc.GenerateTrends(context.Background())
	if err != nil {
		t.Fatalf("GenerateTrends() error = %v", err)
	}
	if !result.Stopped || len(result.Outcomes) != 1 || len(store.trends) != 1 {
		t.Fatalf("expected one scope before stopping: %+v", result)
	}
}

func TestFreshnessWindowCoversComparison(t *testing.T) {
	t.Parallel()

	store := &stubTrendStore{stats: append(
		signalStats(60, "Energy", nil, "funding", 12),
		signalStats(40, "Energy", nil, "funding", 45)...,
	)}
	svc := NewService(store, nil, zerolog.Nop(), Options{FreshnessWindowDays: 30})
	svc.now = func() time.Time { return testNow }

	if _, err := svc.GenerateTrends(context.Background()); err != nil {
		t.Fatalf("GenerateTrends() error = %v", err)
	}
	if !store.cutoff.Equal(testNow.Add(-ComparisonWindowDays * day)) {
		t.Fatalf("short freshness window should widen to %d days, cutoff %v", ComparisonWindowDays, store.cutoff)
	}
	if len(store.trends) != 1 || store.trends[0].PrevCount != 40 || store.trends[0].Direction != "up" {
		t.Fatalf("prev30 should keep its baseline: %+v", store.trends)
	}
}

func TestDisabledExplainerFallsBackQuietly(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	store := &stubTrendStore{stats: signalStats(12, "Food", nil, "funding", 3)}
	svc := NewService(store, explain.DisabledProvider{}, zerolog.New(&logs), Options{})
	svc.now = func() time.Time { return testNow }

	if _, err := svc.GenerateTrends(context.Background()); err != nil {
		t.Fatalf("GenerateTrends() error = %v", err)
	}
	if len(store.trends) != 1 || !strings.HasPrefix(store.trends[0].Explanation, "Emerging activity") {
		t.Fatalf("expected fallback explanation: %+v", store.trends)
	}
	if strings.Contains(logs.String(), "explanation unavailable") {
		t.Fatalf("disabled provider should not warn: %s", logs.String())
	}
}

func TestCaptureSignalMetrics(t *testing.T) {
	t.Parallel()

	var stats []db.SignalStat
	stats = append(stats, signalStats(3, "Food", []string{"Recalls"}, "regulatory", 2)...)
	stats = append(stats, signalStats(2, "Food", nil, "funding", 40)...)
	undated := signalStats(1, "Food", nil, "funding", 1)[0]
	undated.PublishedAt = nil
	review := signalStats(1, "Food", nil, "funding", 1)[0]
	review.NeedsDateReview = true
	stats = append(stats, undated, review)

	store := &stubTrendStore{stats: stats}
	result, err := newTestService(store, nil).CaptureSignalMetrics(context.Background())
	if err != nil {
		t.Fatalf("CaptureSignalMetrics() error = %v", err)
	}
	if result.ScopesProcessed != 2 || result.SnapshotsCreated != 4 {
		t.Fatalf("unexpected result: %+v", result)
	}

	var food30 *db.MetricSnapshot
	for i := range store.snapshots {
		snap := &store.snapshots[i]
		if snap.RunUUID != result.RunUUID || !snap.CapturedAt.Equal(testNow) {
			t.Fatalf("unexpected snapshot metadata: %+v", snap)
		}
		if snap.ScopeID == "food" && snap.Period == Period30d {
			food30 = snap
		}
	}
	if food30 == nil {
		t.Fatal("missing food 30d snapshot")
	}
	if food30.CurrentCount != 3 || food30.PrevCount == nil || *food30.PrevCount != 2 {
		t.Fatalf("unexpected food 30d snapshot: %+v", food30)
	}
	if food30.DeltaPercent == nil || *food30.DeltaPercent != 50 {
		t.Fatalf("expected +50%% delta, got %v", food30.DeltaPercent)
	}

	var dist Distribution
	if err := json.Unmarshal(food30.Distribution, &dist); err != nil {
		t.Fatalf("decode distribution: %v", err)
	}
	if dist.Types["regulatory"] != 3 || dist.Themes["recalls"] != 3 {
		t.Fatalf("unexpected distribution: %+v", dist)
	}
}
