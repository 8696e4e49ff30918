package trends

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"horse.fit/signalwatch/internal/db"
	"horse.fit/signalwatch/internal/explain"
	"horse.fit/signalwatch/internal/globaltime"
	"horse.fit/signalwatch/internal/telemetry"
)

const (
	DefaultFreshnessWindowDays = 60
	explainTimeout             = 90 * time.Second
)

// Store is the persistence surface used by the metrics and trend jobs.
type Store interface {
	ListSignalStats(ctx context.Context, publishedSince time.Time) ([]db.SignalStat, error)
	InsertMetricSnapshots(ctx context.Context, rows []db.MetricSnapshot) (int, error)
	InsertTrend(ctx context.Context, row *db.Trend) error
}

// StopChecker is consulted between scopes.
type StopChecker interface {
	ShouldStop() bool
}

// Options tune the service. FreshnessWindowDays below ComparisonWindowDays
// is raised to ComparisonWindowDays.
type Options struct {
	Policy              Policy
	FreshnessWindowDays int
	Metrics             *telemetry.Metrics
	Stop                StopChecker
}

type Service struct {
	store         Store
	explainer     explain.Provider
	logger        zerolog.Logger
	metrics       *telemetry.Metrics
	policy        Policy
	freshnessDays int
	stop          StopChecker
	now           func() time.Time
}

// NewService builds the trend engine. A nil explainer always uses the
// fallback explanation.
func NewService(store Store, explainer explain.Provider, logger zerolog.Logger, opts Options) *Service {
	freshness := opts.FreshnessWindowDays
	if freshness <= 0 {
		freshness = DefaultFreshnessWindowDays
	}
	if freshness < ComparisonWindowDays {
		freshness = ComparisonWindowDays
	}
	policy := opts.Policy
	if policy == (Policy{}) {
		policy = DefaultPolicy()
	}
	return &Service{
		store:         store,
		explainer:     explainer,
		logger:        logger,
		metrics:       opts.Metrics,
		policy:        policy,
		freshnessDays: freshness,
		stop:          opts.Stop,
		now:           globaltime.UTC,
	}
}

type CaptureResult struct {
	RunUUID          string `json:"run_uuid"`
	ScopesProcessed  int    `json:"scopes_processed"`
	SnapshotsCreated int    `json:"snapshots_created"`
}

type ScopeOutcome struct {
	ScopeType ScopeType `json:"scope_type"`
	ScopeID   string    `json:"scope_id"`
	Outcome   Outcome   `json:"outcome"`
	Direction Direction `json:"direction,omitempty"`
	Error     string    `json:"error,omitempty"`
}

type GenerateResult struct {
	RunUUID         string         `json:"run_uuid"`
	TrendsGenerated int            `json:"trends_generated"`
	Errors          int            `json:"errors"`
	Stopped         bool           `json:"stopped"`
	Outcomes        []ScopeOutcome `json:"outcomes"`
}

// CaptureSignalMetrics appends a 7d and a 30d snapshot for every scope with
// fresh signals.
func (s *Service) CaptureSignalMetrics(ctx context.Context) (CaptureResult, error) {
	now := s.now()
	result := CaptureResult{RunUUID: uuid.NewString()}

	stats, err := s.loadScopeStats(ctx, now)
	if err != nil {
		return result, err
	}

	rows := make([]db.MetricSnapshot, 0, len(stats)*2)
	for _, scope := range stats {
		for _, snap := range scope.Snapshots() {
			dist, err := json.Marshal(snap.Distribution)
			if err != nil {
				return result, fmt.Errorf("encode distribution for %s/%s: %w", scope.Key.Type, scope.Key.ID, err)
			}
			rows = append(rows, db.MetricSnapshot{
				RunUUID:      result.RunUUID,
				ScopeType:    string(snap.Key.Type),
				ScopeID:      snap.Key.ID,
				Period:       snap.Period,
				CurrentCount: snap.CurrentCount,
				PrevCount:    snap.PrevCount,
				DeltaPercent: snap.DeltaPercent,
				Distribution: datatypes.JSON(dist),
				CapturedAt:   now,
			})
		}
	}

	written, err := s.store.InsertMetricSnapshots(ctx, rows)
	if err != nil {
		return result, fmt.Errorf("persist metric snapshots: %w", err)
	}
	s.metrics.SnapshotsWritten(written)

	result.ScopesProcessed = len(stats)
	result.SnapshotsCreated = written
	s.logger.Info().
		Str("run_uuid", result.RunUUID).
		Int("scopes", result.ScopesProcessed).
		Int("snapshots", result.SnapshotsCreated).
		Msg("metric snapshots captured")
	return result, nil
}

// GenerateTrends evaluates every scope independently. A failing scope is
// logged, counted and skipped. The stop checker and ctx are checked between
// scopes.
func (s *Service) GenerateTrends(ctx context.Context) (GenerateResult, error) {
	now := s.now()
	result := GenerateResult{RunUUID: uuid.NewString(), Outcomes: []ScopeOutcome{}}

	stats, err := s.loadScopeStats(ctx, now)
	if err != nil {
		return result, err
	}

	for _, scope := range stats {
		if s.stop != nil && s.stop.ShouldStop() {
			result.Stopped = true
			s.logger.Info().Str("run_uuid", result.RunUUID).Int("scopes_done", len(result.Outcomes)).Msg("stop requested, ending trend run")
			return result, nil
		}
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("trend run interrupted: %w", err)
		}

		eval := s.policy.Evaluate(scope)
		outcome := ScopeOutcome{
			ScopeType: scope.Key.Type,
			ScopeID:   scope.Key.ID,
			Outcome:   eval.Outcome,
			Direction: eval.Direction,
		}

		if eval.Persist() {
			if err := s.persistTrend(ctx, result.RunUUID, eval, now); err != nil {
				result.Errors++
				s.metrics.TrendScopeFailed()
				outcome.Outcome = OutcomeFailed
				outcome.Error = err.Error()
				s.logger.Error().
					Err(err).
					Str("scope_type", string(scope.Key.Type)).
					Str("scope_id", scope.Key.ID).
					Msg("trend scope failed")
			} else {
				result.TrendsGenerated++
				s.metrics.TrendGenerated(string(eval.Direction))
			}
		}

		result.Outcomes = append(result.Outcomes, outcome)
	}

	s.logger.Info().
		Str("run_uuid", result.RunUUID).
		Int("scopes", len(stats)).
		Int("trends", result.TrendsGenerated).
		Int("errors", result.Errors).
		Msg("trend run finished")
	return result, nil
}

func (s *Service) persistTrend(ctx context.Context, runUUID string, eval Evaluation, now time.Time) error {
	themes, err := json.Marshal(nonNil(eval.Themes))
	if err != nil {
		return fmt.Errorf("encode themes: %w", err)
	}
	types, err := json.Marshal(nonNil(eval.SignalTypes))
	if err != nil {
		return fmt.Errorf("encode signal types: %w", err)
	}

	row := &db.Trend{
		TrendUUID:    uuid.NewString(),
		RunUUID:      runUUID,
		ScopeType:    string(eval.Key.Type),
		ScopeID:      eval.Key.ID,
		Themes:       datatypes.JSON(themes),
		SignalTypes:  datatypes.JSON(types),
		TimeWindow:   TimeWindow,
		Direction:    string(eval.Direction),
		Magnitude:    eval.Magnitude,
		Confidence:   eval.Confidence,
		Explanation:  s.explanation(ctx, eval),
		CurrentCount: eval.CurrentCount,
		PrevCount:    eval.PrevCount,
		CreatedAt:    now,
	}
	return s.store.InsertTrend(ctx, row)
}

func (s *Service) explanation(ctx context.Context, eval Evaluation) string {
	if s.explainer == nil {
		return FallbackExplanation(eval)
	}

	callCtx, cancel := context.WithTimeout(ctx, explainTimeout)
	defer cancel()

	resp, err := s.explainer.Explain(callCtx, explain.Request{
		ScopeType:    string(eval.Key.Type),
		ScopeID:      eval.Key.ID,
		Themes:       eval.Themes,
		SignalTypes:  eval.SignalTypes,
		Direction:    string(eval.Direction),
		Magnitude:    eval.Magnitude,
		Emerging:     eval.Direction == DirectionEmerging,
		CurrentCount: eval.CurrentCount,
		PrevCount:    eval.PrevCount,
	})
	if err != nil || resp == nil || strings.TrimSpace(resp.Text) == "" {
		switch {
		case errors.Is(err, explain.ErrProviderDisabled):
		case err != nil:
			s.logger.Warn().
				Err(err).
				Str("scope_type", string(eval.Key.Type)).
				Str("scope_id", eval.Key.ID).
				Msg("explanation unavailable, using fallback")
		}
		return FallbackExplanation(eval)
	}
	return strings.TrimSpace(resp.Text)
}

func (s *Service) loadScopeStats(ctx context.Context, now time.Time) ([]ScopeStats, error) {
	cutoff := now.Add(-time.Duration(s.freshnessDays) * day)
	raw, err := s.store.ListSignalStats(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("load signal stats: %w", err)
	}

	rows := make([]StatRow, 0, len(raw))
	for _, r := range raw {
		rows = append(rows, s.statRow(r))
	}
	return Aggregate(FilterFresh(rows, now, s.freshnessDays), now), nil
}

func (s *Service) statRow(r db.SignalStat) StatRow {
	row := StatRow{
		SignalID:        r.SignalID,
		Type:            r.Type,
		PublishedAt:     r.PublishedAt,
		NeedsDateReview: r.NeedsDateReview,
	}
	if r.Industry != nil {
		row.Industry = *r.Industry
	}
	if len(r.Themes) > 0 {
		if err := json.Unmarshal(r.Themes, &row.Themes); err != nil {
			s.logger.Warn().
				Err(err).
				Int64("signal_id", r.SignalID).
				Msg("ignoring malformed themes")
			row.Themes = nil
		}
	}
	return row
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
