package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RecentSignal is the slice of a signal the near-duplicate window needs.
type RecentSignal struct {
	SignalID   int64     `json:"signal_id"`
	Title      string    `json:"title"`
	SourceURL  *string   `json:"source_url,omitempty"`
	GatheredAt time.Time `json:"gathered_at"`
}

// UpsertCompany records display name and industry for a company id.
func (p *Pool) UpsertCompany(ctx context.Context, row *Company) error {
	if row == nil {
		return fmt.Errorf("company is nil")
	}
	if row.CompanyID <= 0 {
		return fmt.Errorf("company id must be positive")
	}
	row.Name = strings.TrimSpace(row.Name)
	err := p.gdb.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "company_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "industry", "updated_at"}),
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("upsert company %d: %w", row.CompanyID, err)
	}
	return nil
}

func (p *Pool) GetCompany(ctx context.Context, companyID int64) (*Company, error) {
	var row Company
	err := p.gdb.WithContext(ctx).Where("company_id = ?", companyID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get company %d: %w", companyID, err)
	}
	return &row, nil
}

// FindSignalByHash is the exact-duplicate point lookup.
func (p *Pool) FindSignalByHash(ctx context.Context, hash string) (*Signal, error) {
	var row Signal
	err := p.gdb.WithContext(ctx).Where("hash = ?", strings.TrimSpace(hash)).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find signal by hash: %w", err)
	}
	return &row, nil
}

// ListRecentCompanySignals returns signals gathered since the cutoff, most recent first.
func (p *Pool) ListRecentCompanySignals(ctx context.Context, companyID int64, since time.Time, limit int) ([]RecentSignal, error) {
	if limit <= 0 {
		limit = 500
	}

	const q = `
SELECT signal_id, title, source_url, gathered_at
FROM signals
WHERE company_id = ?
  AND gathered_at >= ?
ORDER BY gathered_at DESC, signal_id DESC
LIMIT ?
`

	rows, err := p.Query(ctx, q, companyID, since.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("query recent signals for company %d: %w", companyID, err)
	}
	defer rows.Close()

	out := make([]RecentSignal, 0, 64)
	for rows.Next() {
		var row RecentSignal
		if err := rows.Scan(&row.SignalID, &row.Title, &row.SourceURL, &row.GatheredAt); err != nil {
			return nil, fmt.Errorf("scan recent signal: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent signals: %w", err)
	}
	return out, nil
}

// InsertSignal writes a new signal. It reports false without error when the
// hash already exists, which happens when another process won the race.
func (p *Pool) InsertSignal(ctx context.Context, row *Signal) (bool, error) {
	if row == nil {
		return false, fmt.Errorf("signal is nil")
	}
	res := p.gdb.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "hash"}},
		DoNothing: true,
	}).Create(row)
	if res.Error != nil {
		return false, fmt.Errorf("insert signal: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (p *Pool) InsertDedupEvent(ctx context.Context, row *SignalDedupEvent) error {
	if row == nil {
		return fmt.Errorf("dedup event is nil")
	}
	if err := p.gdb.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("insert dedup event: %w", err)
	}
	return nil
}

func (p *Pool) LinkSignalEntity(ctx context.Context, signalID, entityID int64, mention string) error {
	row := SignalEntity{
		SignalID:  signalID,
		EntityID:  entityID,
		Mention:   strings.TrimSpace(mention),
		CreatedAt: time.Now().UTC(),
	}
	err := p.gdb.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("link signal %d to entity %d: %w", signalID, entityID, err)
	}
	return nil
}

// DedupDecisionCount aggregates audit rows for one run.
type DedupDecisionCount struct {
	Decision string `json:"decision"`
	Method   string `json:"method"`
	Count    int64  `json:"count"`
}

func (p *Pool) CountDedupDecisions(ctx context.Context, runUUID string) ([]DedupDecisionCount, error) {
	const q = `
SELECT decision, method, COUNT(*)
FROM signal_dedup_events
WHERE run_uuid = ?
GROUP BY decision, method
ORDER BY decision, method
`

	rows, err := p.Query(ctx, q, strings.TrimSpace(runUUID))
	if err != nil {
		return nil, fmt.Errorf("query dedup decisions: %w", err)
	}
	defer rows.Close()

	out := make([]DedupDecisionCount, 0, 4)
	for rows.Next() {
		var row DedupDecisionCount
		if err := rows.Scan(&row.Decision, &row.Method, &row.Count); err != nil {
			return nil, fmt.Errorf("scan dedup decision: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dedup decisions: %w", err)
	}
	return out, nil
}
