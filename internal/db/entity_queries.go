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

func (p *Pool) FindEntityByKey(ctx context.Context, canonicalKey string) (*Entity, error) {
	var row Entity
	err := p.gdb.WithContext(ctx).Where("canonical_key = ?", strings.TrimSpace(canonicalKey)).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find entity by key: %w", err)
	}
	return &row, nil
}

// FindEntityByAliasKey resolves an alias key to its owning entity.
func (p *Pool) FindEntityByAliasKey(ctx context.Context, aliasKey string) (*Entity, error) {
	var row Entity
	err := p.gdb.WithContext(ctx).
		Joins("JOIN entity_aliases ON entity_aliases.entity_id = entities.entity_id").
		Where("entity_aliases.alias_key = ?", strings.TrimSpace(aliasKey)).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find entity by alias key: %w", err)
	}
	return &row, nil
}

// GetEntity loads an entity together with its aliases.
func (p *Pool) GetEntity(ctx context.Context, entityID int64) (*Entity, error) {
	var row Entity
	err := p.gdb.WithContext(ctx).
		Preload("Aliases", func(tx *gorm.DB) *gorm.DB { return tx.Order("alias_id ASC") }).
		Where("entity_id = ?", entityID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get entity %d: %w", entityID, err)
	}
	return &row, nil
}

// CreateEntity inserts a new entity and reports false when the canonical key
// is already taken.
func (p *Pool) CreateEntity(ctx context.Context, row *Entity) (bool, error) {
	if row == nil {
		return false, fmt.Errorf("entity is nil")
	}
	res := p.gdb.WithContext(ctx).Omit("Aliases").Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "canonical_key"}},
		DoNothing: true,
	}).Create(row)
	if res.Error != nil {
		return false, fmt.Errorf("insert entity: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (p *Pool) TouchEntity(ctx context.Context, entityID int64, at time.Time) error {
	const q = `UPDATE entities SET updated_at = ? WHERE entity_id = ?`

	tag, err := p.Exec(ctx, q, at.UTC(), entityID)
	if err != nil {
		return fmt.Errorf("touch entity %d: %w", entityID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertEntityAlias reports false when the alias key already exists.
func (p *Pool) InsertEntityAlias(ctx context.Context, row *EntityAlias) (bool, error) {
	if row == nil {
		return false, fmt.Errorf("entity alias is nil")
	}
	res := p.gdb.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "alias_key"}},
		DoNothing: true,
	}).Create(row)
	if res.Error != nil {
		return false, fmt.Errorf("insert entity alias: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// EntityMentionCount is one row of the most-mentioned entities listing.
type EntityMentionCount struct {
	EntityID     int64  `json:"entity_id"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	CanonicalKey string `json:"canonical_key"`
	Mentions     int64  `json:"mentions"`
}

func (p *Pool) ListTopEntities(ctx context.Context, entityType string, limit int) ([]EntityMentionCount, error) {
	if limit <= 0 {
		limit = 20
	}

	query := p.gdb.WithContext(ctx).
		Table("entities").
		Select("entities.entity_id, entities.name, entities.type, entities.canonical_key, COUNT(signal_entities.signal_id) AS mentions").
		Joins("LEFT JOIN signal_entities ON signal_entities.entity_id = entities.entity_id").
		Group("entities.entity_id, entities.name, entities.type, entities.canonical_key").
		Order("mentions DESC, entities.canonical_key ASC").
		Limit(limit)
	if trimmed := strings.ToLower(strings.TrimSpace(entityType)); trimmed != "" {
		query = query.Where("entities.type = ?", trimmed)
	}

	out := make([]EntityMentionCount, 0, limit)
	if err := query.Scan(&out).Error; err != nil {
		return nil, fmt.Errorf("list top entities: %w", err)
	}
	return out, nil
}
