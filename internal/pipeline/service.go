package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"horse.fit/signalwatch/internal/db"
	"horse.fit/signalwatch/internal/dedup"
	"horse.fit/signalwatch/internal/entity"
	"horse.fit/signalwatch/internal/globaltime"
	"horse.fit/signalwatch/internal/langdetect"
	"horse.fit/signalwatch/internal/scoring"
	"horse.fit/signalwatch/internal/telemetry"
	"horse.fit/signalwatch/internal/urlcanon"
)

// ErrMissingGatheredAt rejects candidates without a gathered_at timestamp.
var ErrMissingGatheredAt = errors.New("gathered_at must be set")

const (
	DefaultDedupLookbackDays = 14
	DefaultConcurrency       = 4
	recentWindowLimit        = 500
	mentionSource            = "signal"
)

// Store is the persistence surface of the pipeline. *db.Pool satisfies it.
type Store interface {
	FindSignalByHash(ctx context.Context, hash string) (*db.Signal, error)
	ListRecentCompanySignals(ctx context.Context, companyID int64, since time.Time, limit int) ([]db.RecentSignal, error)
	InsertSignal(ctx context.Context, row *db.Signal) (bool, error)
	InsertDedupEvent(ctx context.Context, row *db.SignalDedupEvent) error
	LinkSignalEntity(ctx context.Context, signalID, entityID int64, mention string) error
}

// EntityRecorder is satisfied by *entity.Service.
type EntityRecorder interface {
	RecordMention(ctx context.Context, in entity.UpsertInput, source string) (*db.Entity, error)
}

type Options struct {
	Thresholds   dedup.Thresholds
	Weights      *scoring.Weights
	LookbackDays int
	Concurrency  int
	Metrics      *telemetry.Metrics
}

type Service struct {
	store        Store
	entities     EntityRecorder
	logger       zerolog.Logger
	metrics      *telemetry.Metrics
	thresholds   dedup.Thresholds
	weights      scoring.Weights
	lookbackDays int
	concurrency  int
	now          func() time.Time
}

// NewService wires the pipeline. A nil entity recorder skips mention linking.
func NewService(store Store, entities EntityRecorder, logger zerolog.Logger, opts Options) *Service {
	thresholds := opts.Thresholds
	if thresholds == (dedup.Thresholds{}) {
		thresholds = dedup.DefaultThresholds()
	}
	weights := scoring.DefaultWeights()
	if opts.Weights != nil {
		weights = *opts.Weights
	}
	lookback := opts.LookbackDays
	if lookback <= 0 {
		lookback = DefaultDedupLookbackDays
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Service{
		store:        store,
		entities:     entities,
		logger:       logger,
		metrics:      opts.Metrics,
		thresholds:   thresholds,
		weights:      weights,
		lookbackDays: lookback,
		concurrency:  concurrency,
		now:          globaltime.UTC,
	}
}

// CandidateOutcome is what happened to one candidate.
type CandidateOutcome struct {
	Title             string   `json:"title"`
	Hash              string   `json:"hash"`
	Decision          Decision `json:"decision"`
	Method            string   `json:"method"`
	SignalID          *int64   `json:"signal_id,omitempty"`
	MatchedSignalID   *int64   `json:"matched_signal_id,omitempty"`
	Similarity        *float64 `json:"similarity,omitempty"`
	NoveltyScore      *int     `json:"novelty_score,omitempty"`
	PriorityScore     *int     `json:"priority_score,omitempty"`
	PriorityLabel     string   `json:"priority_label,omitempty"`
	RecommendedFormat string   `json:"recommended_format,omitempty"`
}

type BatchResult struct {
	CompanyID int64              `json:"company_id"`
	Outcomes  []CandidateOutcome `json:"outcomes"`
}

// EvaluateBatch evaluates one company's candidates in order. Every accepted
// candidate joins the in-memory window, so later items in the same batch are
// compared against it. The stop checker and ctx are consulted between items;
// a stop request ends the batch early with Stopped set and no error. Once a
// candidate's writes begin they run to completion even if ctx is canceled.
func (s *Service) EvaluateBatch(
	ctx context.Context,
	companyID int64,
	candidates []CandidateSignal,
	progress Progress,
	stop StopChecker,
) (BatchResult, Progress, error) {
	result := BatchResult{CompanyID: companyID}
	if s == nil || s.store == nil {
		return result, progress, fmt.Errorf("pipeline service is not initialized")
	}
	if progress.RunUUID == "" {
		progress.RunUUID = uuid.NewString()
	}
	for i := range candidates {
		if candidates[i].CompanyID != 0 && candidates[i].CompanyID != companyID {
			return result, progress, fmt.Errorf("candidate %d belongs to company %d, not %d", i, candidates[i].CompanyID, companyID)
		}
		if candidates[i].GatheredAt.IsZero() {
			return result, progress, fmt.Errorf("candidate %d: %w", i, ErrMissingGatheredAt)
		}
	}

	now := s.now()
	since := now.AddDate(0, 0, -s.lookbackDays)
	recent, err := s.store.ListRecentCompanySignals(ctx, companyID, since, recentWindowLimit)
	if err != nil {
		return result, progress, fmt.Errorf("load recent signals for company %d: %w", companyID, err)
	}
	window := dedup.NewWindow(windowFromRecent(recent))

	result.Outcomes = make([]CandidateOutcome, 0, len(candidates))
	for _, raw := range candidates {
		if stop != nil && stop.ShouldStop() {
			progress.Stopped = true
			s.logger.Info().Int64("company_id", companyID).Int("processed", progress.Processed).Msg("stop requested, ending batch")
			return result, progress, nil
		}
		if err := ctx.Err(); err != nil {
			progress.Stopped = true
			return result, progress, err
		}

		c := s.prepare(raw, companyID)
		outcome, accepted, err := s.evaluateOne(ctx, progress.RunUUID, c, window)
		if err != nil {
			if ctx.Err() != nil {
				progress.Stopped = true
			}
			return result, progress, err
		}
		if accepted != nil {
			window = window.With(*accepted)
		}

		result.Outcomes = append(result.Outcomes, outcome)
		progress = progress.Record(outcome.Decision)
		s.metrics.CandidateEvaluated(string(outcome.Decision))
	}

	return result, progress, nil
}

func (s *Service) prepare(c CandidateSignal, companyID int64) CandidateSignal {
	c.CompanyID = companyID
	c.Title = strings.TrimSpace(c.Title)
	c.GatheredAt = c.GatheredAt.UTC()
	if c.PublishedAt != nil {
		published := c.PublishedAt.UTC()
		c.PublishedAt = &published
	}
	return c
}

func (s *Service) evaluateOne(ctx context.Context, runUUID string, c CandidateSignal, window dedup.Window) (CandidateOutcome, *dedup.Candidate, error) {
	hash := c.Fingerprint()
	outcome := CandidateOutcome{Title: c.Title, Hash: hash}

	existing, err := s.store.FindSignalByHash(ctx, hash)
	// Writes ignore cancellation so a stored signal always gets its audit row.
	writeCtx := context.WithoutCancel(ctx)
	switch {
	case err == nil:
		return s.exactDuplicate(writeCtx, runUUID, c, outcome, existing.SignalID)
	case !errors.Is(err, db.ErrNotFound):
		return outcome, nil, fmt.Errorf("lookup signal hash %s: %w", hash, err)
	}

	assessment := Assess(c, window, s.thresholds, s.weights)
	novelty := assessment.NoveltyScore
	outcome.NoveltyScore = &novelty

	if assessment.Verdict.IsNearDuplicate {
		outcome.Decision = DecisionNearDuplicate
		outcome.Method = string(assessment.Verdict.Method)
		outcome.MatchedSignalID = assessment.Verdict.MatchedID
		outcome.Similarity = assessment.Verdict.Similarity
		s.logger.Debug().
			Int64("company_id", c.CompanyID).
			Str("hash", hash).
			Str("method", outcome.Method).
			Msg("skipping near duplicate")
		if err := s.audit(writeCtx, runUUID, c, outcome); err != nil {
			return outcome, nil, err
		}
		return outcome, nil, nil
	}

	row, err := s.buildSignal(c, assessment)
	if err != nil {
		return outcome, nil, err
	}
	inserted, err := s.store.InsertSignal(writeCtx, row)
	if err != nil {
		return outcome, nil, fmt.Errorf("insert signal %s: %w", hash, err)
	}
	if !inserted {
		// Another writer stored the same fingerprint between lookup and insert.
		winner, err := s.store.FindSignalByHash(writeCtx, hash)
		if err != nil {
			return outcome, nil, fmt.Errorf("re-read signal hash %s: %w", hash, err)
		}
		outcome.NoveltyScore = nil
		return s.exactDuplicate(writeCtx, runUUID, c, outcome, winner.SignalID)
	}

	s.linkEntities(writeCtx, row.SignalID, c)

	signalID := row.SignalID
	score := assessment.Priority.Score
	outcome.Decision = DecisionAccepted
	outcome.Method = string(dedup.MethodNone)
	outcome.SignalID = &signalID
	outcome.PriorityScore = &score
	outcome.PriorityLabel = string(assessment.Priority.Label)
	outcome.RecommendedFormat = string(assessment.Format.Format)
	if err := s.audit(writeCtx, runUUID, c, outcome); err != nil {
		return outcome, nil, err
	}

	return outcome, &dedup.Candidate{ID: signalID, Title: c.Title, SourceURL: c.sourceURL()}, nil
}

func (s *Service) exactDuplicate(ctx context.Context, runUUID string, c CandidateSignal, outcome CandidateOutcome, matchedID int64) (CandidateOutcome, *dedup.Candidate, error) {
	verdict := dedup.ExactDuplicate(matchedID)
	outcome.Decision = DecisionExactDuplicate
	outcome.Method = string(verdict.Method)
	outcome.MatchedSignalID = verdict.MatchedID
	outcome.Similarity = verdict.Similarity
	s.logger.Debug().
		Int64("company_id", c.CompanyID).
		Str("hash", outcome.Hash).
		Int64("matched_signal_id", matchedID).
		Msg("skipping exact duplicate")
	if err := s.audit(ctx, runUUID, c, outcome); err != nil {
		return outcome, nil, err
	}
	return outcome, nil, nil
}

func (s *Service) buildSignal(c CandidateSignal, a Assessment) (*db.Signal, error) {
	citations, err := jsonArray(c.citations())
	if err != nil {
		return nil, fmt.Errorf("encode citations: %w", err)
	}
	themes, err := jsonArray(normalizeThemes(c.Themes))
	if err != nil {
		return nil, fmt.Errorf("encode themes: %w", err)
	}

	row := &db.Signal{
		SignalUUID:        uuid.NewString(),
		CompanyID:         c.CompanyID,
		Title:             c.Title,
		Citations:         citations,
		Hash:              a.Hash,
		Type:              c.signalType(),
		RelevanceScore:    c.RelevanceScore,
		NoveltyScore:      a.NoveltyScore,
		PriorityScore:     a.Priority.Score,
		PriorityLabel:     string(a.Priority.Label),
		PriorityReason:    a.Priority.Reason,
		RecommendedFormat: string(a.Format.Format),
		FormatReason:      a.Format.Reason,
		Themes:            themes,
		Language:          langdetect.DetectISO6391(c.Title),
		PublishedAt:       c.PublishedAt,
		GatheredAt:        c.GatheredAt,
		NeedsDateReview:   c.NeedsDateReview,
		CreatedAt:         s.now(),
	}
	if source := c.sourceURL(); source != "" {
		canonical := urlcanon.Canonicalize(source)
		row.SourceURL = &source
		row.CanonicalURL = &canonical
	}
	if sentiment := c.sentiment(); sentiment != "" {
		value := string(sentiment)
		row.Sentiment = &value
	}
	if row.RelevanceScore != nil {
		clamped := scoring.ClampRelevance(row.RelevanceScore)
		row.RelevanceScore = &clamped
	}
	return row, nil
}

// linkEntities records mentions for an accepted signal. Failures are logged;
// the signal itself is already stored.
func (s *Service) linkEntities(ctx context.Context, signalID int64, c CandidateSignal) {
	if s.entities == nil {
		return
	}
	for _, mention := range c.Entities {
		if strings.TrimSpace(mention.Name) == "" {
			continue
		}
		mentionType := mention.Type
		if strings.TrimSpace(mentionType) == "" {
			mentionType = entity.TypeCompany
		}
		row, err := s.entities.RecordMention(ctx, entity.UpsertInput{Type: mentionType, Name: mention.Name}, mentionSource)
		if err != nil {
			s.logger.Warn().
				Err(err).
				Int64("signal_id", signalID).
				Str("entity_name", mention.Name).
				Msg("failed to record entity mention")
			continue
		}
		if err := s.store.LinkSignalEntity(ctx, signalID, row.EntityID, strings.TrimSpace(mention.Name)); err != nil {
			s.logger.Warn().
				Err(err).
				Int64("signal_id", signalID).
				Int64("entity_id", row.EntityID).
				Msg("failed to link entity mention")
		}
	}
}

func (s *Service) audit(ctx context.Context, runUUID string, c CandidateSignal, outcome CandidateOutcome) error {
	event := &db.SignalDedupEvent{
		RunUUID:         runUUID,
		CompanyID:       c.CompanyID,
		Hash:            outcome.Hash,
		Title:           c.Title,
		Decision:        string(outcome.Decision),
		Method:          outcome.Method,
		MatchedSignalID: outcome.MatchedSignalID,
		SignalID:        outcome.SignalID,
		Similarity:      outcome.Similarity,
		NoveltyScore:    outcome.NoveltyScore,
		CreatedAt:       s.now(),
	}
	if err := s.store.InsertDedupEvent(ctx, event); err != nil {
		return fmt.Errorf("record dedup event for %s: %w", outcome.Hash, err)
	}
	return nil
}

// EvaluateBatches groups candidates by company and evaluates each group
// concurrently. Groups share the run UUID but never a window.
func (s *Service) EvaluateBatches(ctx context.Context, candidates []CandidateSignal, stop StopChecker) ([]BatchResult, Progress, error) {
	progress := NewProgress(uuid.NewString(), 0)
	if s == nil || s.store == nil {
		return nil, progress, fmt.Errorf("pipeline service is not initialized")
	}

	groups := GroupByCompany(candidates)
	results := make([]BatchResult, len(groups))
	partials := make([]Progress, len(groups))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, group := range groups {
		i, group := i, group
		g.Go(func() error {
			result, p, err := s.EvaluateBatch(gctx, group.CompanyID, group.Candidates, NewProgress(progress.RunUUID, len(group.Candidates)), stop)
			results[i] = result
			partials[i] = p
			if err != nil {
				return fmt.Errorf("company %d: %w", group.CompanyID, err)
			}
			return nil
		})
	}
	err := g.Wait()

	for _, p := range partials {
		progress = progress.Merge(p)
	}
	return results, progress, err
}

// CompanyGroup is one company's slice of a candidate file.
type CompanyGroup struct {
	CompanyID  int64
	Candidates []CandidateSignal
}

// GroupByCompany keeps candidate order within a company and orders groups by id.
func GroupByCompany(candidates []CandidateSignal) []CompanyGroup {
	index := make(map[int64]int)
	groups := make([]CompanyGroup, 0)
	for _, c := range candidates {
		i, ok := index[c.CompanyID]
		if !ok {
			i = len(groups)
			index[c.CompanyID] = i
			groups = append(groups, CompanyGroup{CompanyID: c.CompanyID})
		}
		groups[i].Candidates = append(groups[i].Candidates, c)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].CompanyID < groups[j].CompanyID
	})
	return groups
}

func windowFromRecent(recent []db.RecentSignal) []dedup.Candidate {
	out := make([]dedup.Candidate, 0, len(recent))
	for _, r := range recent {
		item := dedup.Candidate{ID: r.SignalID, Title: r.Title}
		if r.SourceURL != nil {
			item.SourceURL = *r.SourceURL
		}
		out = append(out, item)
	}
	return out
}

func normalizeThemes(themes []string) []string {
	seen := make(map[string]struct{}, len(themes))
	out := make([]string, 0, len(themes))
	for _, theme := range themes {
		key := strings.ToLower(strings.TrimSpace(theme))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}

func jsonArray(values []string) (datatypes.JSON, error) {
	if values == nil {
		values = []string{}
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
