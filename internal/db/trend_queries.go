package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// SignalStat is the per-signal projection the metrics and trend jobs aggregate.
type SignalStat struct {
	SignalID        int64          `json:"signal_id"`
	CompanyID       int64          `json:"company_id"`
	Type            string         `json:"type"`
	Themes          datatypes.JSON `json:"themes"`
	Industry        *string        `json:"industry,omitempty"`
	PublishedAt     *time.Time     `json:"published_at,omitempty"`
	NeedsDateReview bool           `json:"needs_date_review"`
}

// ListSignalStats returns signals published at or after the cutoff, excluding
// undated rows and rows awaiting date review.
func (p *Pool) ListSignalStats(ctx context.Context, publishedSince time.Time) ([]SignalStat, error) {
	out := make([]SignalStat, 0, 256)
	err := p.gdb.WithContext(ctx).
		Table("signals").
		Select("signals.signal_id, signals.company_id, signals.type, signals.themes, companies.industry, signals.published_at, signals.needs_date_review").
		Joins("LEFT JOIN companies ON companies.company_id = signals.company_id").
		Where("signals.needs_date_review = ?", false).
		Where("signals.published_at IS NOT NULL AND signals.published_at >= ?", publishedSince.UTC()).
		Order("signals.signal_id ASC").
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list signal stats: %w", err)
	}
	return out, nil
}

// InsertMetricSnapshots appends one capture run atomically.
func (p *Pool) InsertMetricSnapshots(ctx context.Context, rows []MetricSnapshot) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := p.BeginTx(ctx, TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin snapshot transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	for i := range rows {
		if err := tx.Create(ctx, &rows[i]); err != nil {
			return 0, fmt.Errorf("insert metric snapshot %s/%s/%s: %w", rows[i].ScopeType, rows[i].ScopeID, rows[i].Period, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit snapshot transaction: %w", err)
	}
	return len(rows), nil
}

func (p *Pool) InsertTrend(ctx context.Context, row *Trend) error {
	if row == nil {
		return fmt.Errorf("trend is nil")
	}
	if err := p.gdb.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("insert trend %s/%s: %w", row.ScopeType, row.ScopeID, err)
	}
	return nil
}

// LatestTrends returns the rows written by the most recent trend run.
func (p *Pool) LatestTrends(ctx context.Context, scopeType string, limit int) ([]Trend, error) {
	if limit <= 0 {
		limit = 50
	}

	runUUID, err := p.latestRunUUID(ctx, "trends", "created_at")
	if err != nil || runUUID == "" {
		return []Trend{}, err
	}

	query := p.gdb.WithContext(ctx).
		Where("run_uuid = ?", runUUID).
		Order("confidence DESC, scope_type ASC, scope_id ASC").
		Limit(limit)
	if trimmed := strings.TrimSpace(scopeType); trimmed != "" {
		query = query.Where("scope_type = ?", trimmed)
	}

	out := make([]Trend, 0, limit)
	if err := query.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list latest trends: %w", err)
	}
	return out, nil
}

// LatestMetricSnapshots returns the rows written by the most recent capture run.
func (p *Pool) LatestMetricSnapshots(ctx context.Context, scopeType string, limit int) ([]MetricSnapshot, error) {
	if limit <= 0 {
		limit = 100
	}

	runUUID, err := p.latestRunUUID(ctx, "metric_snapshots", "captured_at")
	if err != nil || runUUID == "" {
		return []MetricSnapshot{}, err
	}

	query := p.gdb.WithContext(ctx).
		Where("run_uuid = ?", runUUID).
		Order("scope_type ASC, scope_id ASC, period ASC").
		Limit(limit)
	if trimmed := strings.TrimSpace(scopeType); trimmed != "" {
		query = query.Where("scope_type = ?", trimmed)
	}

	out := make([]MetricSnapshot, 0, limit)
	if err := query.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list latest metric snapshots: %w", err)
	}
	return out, nil
}

func (p *Pool) latestRunUUID(ctx context.Context, table, timeColumn string) (string, error) {
	q := fmt.Sprintf(`SELECT run_uuid FROM %s ORDER BY %s DESC, run_uuid DESC LIMIT 1`, table, timeColumn)

	var runUUID string
	if err := p.QueryRow(ctx, q).Scan(&runUUID); err != nil {
		if IsNoRows(err) {
			return "", nil
		}
		return "", fmt.Errorf("find latest run in %s: %w", table, err)
	}
	return runUUID, nil
}
