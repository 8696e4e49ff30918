package entity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"horse.fit/signalwatch/internal/db"
	"horse.fit/signalwatch/internal/globaltime"
)

var (
	ErrEmptyName = errors.New("entity name is empty")
	ErrEmptyType = errors.New("entity type is empty")
)

// Store is the persistence surface the service needs. *db.Pool satisfies it.
type Store interface {
	FindEntityByKey(ctx context.Context, canonicalKey string) (*db.Entity, error)
	FindEntityByAliasKey(ctx context.Context, aliasKey string) (*db.Entity, error)
	GetEntity(ctx context.Context, entityID int64) (*db.Entity, error)
	CreateEntity(ctx context.Context, row *db.Entity) (bool, error)
	TouchEntity(ctx context.Context, entityID int64, at time.Time) error
	InsertEntityAlias(ctx context.Context, row *db.EntityAlias) (bool, error)
}

// UpsertInput names a mention to get-or-create.
type UpsertInput struct {
	Type string
	Name string
}

type Service struct {
	store  Store
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(store Store, logger zerolog.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger,
		now:    globaltime.UTC,
	}
}

// UpsertEntity returns the entity for the input's canonical key, creating it
// with the original display name on first sight and bumping updated_at after.
func (s *Service) UpsertEntity(ctx context.Context, in UpsertInput) (*db.Entity, error) {
	name := strings.TrimSpace(in.Name)
	entityType := normalizeType(in.Type)
	if entityType == "" {
		return nil, ErrEmptyType
	}
	if NormalizeKey(name) == "" {
		return nil, ErrEmptyName
	}
	key := CanonicalKey(entityType, name)
	now := s.now()

	existing, err := s.store.FindEntityByKey(ctx, key)
	switch {
	case err == nil:
		return s.touch(ctx, existing, now)
	case !db.IsNotFound(err):
		return nil, fmt.Errorf("lookup entity %q: %w", key, err)
	}

	row := &db.Entity{
		EntityUUID:   uuid.NewString(),
		Name:         name,
		Type:         entityType,
		CanonicalKey: key,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	created, err := s.store.CreateEntity(ctx, row)
	if err != nil {
		return nil, fmt.Errorf("create entity %q: %w", key, err)
	}
	if created {
		s.logger.Debug().
			Int64("entity_id", row.EntityID).
			Str("canonical_key", key).
			Msg("entity created")
		return row, nil
	}

	// Lost a race with a concurrent writer; the winner's row is authoritative.
	existing, err = s.store.FindEntityByKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("reload entity %q after conflict: %w", key, err)
	}
	return s.touch(ctx, existing, now)
}

func (s *Service) touch(ctx context.Context, row *db.Entity, now time.Time) (*db.Entity, error) {
	if err := s.store.TouchEntity(ctx, row.EntityID, now); err != nil {
		return nil, fmt.Errorf("touch entity %d: %w", row.EntityID, err)
	}
	row.UpdatedAt = now
	return row, nil
}

// UpsertAlias records alias for the entity when its normalized form differs
// from the entity's own normalized name. It returns nil without error when the
// alias is redundant or its key is already taken.
func (s *Service) UpsertAlias(ctx context.Context, entityID int64, alias, source string) (*db.EntityAlias, error) {
	aliasKey := NormalizeKey(alias)
	if aliasKey == "" {
		return nil, nil
	}

	owner, err := s.store.GetEntity(ctx, entityID)
	if err != nil {
		return nil, fmt.Errorf("load entity %d: %w", entityID, err)
	}
	if aliasKey == NormalizeKey(owner.Name) {
		return nil, nil
	}

	row := &db.EntityAlias{
		EntityID:  entityID,
		Alias:     strings.TrimSpace(alias),
		AliasKey:  aliasKey,
		Source:    strings.TrimSpace(source),
		CreatedAt: s.now(),
	}
	inserted, err := s.store.InsertEntityAlias(ctx, row)
	if err != nil {
		return nil, fmt.Errorf("insert alias %q: %w", aliasKey, err)
	}
	if !inserted {
		s.logger.Debug().
			Int64("entity_id", entityID).
			Str("alias_key", aliasKey).
			Msg("alias already recorded")
		return nil, nil
	}
	return row, nil
}

// RecordMention upserts the entity named by a signal mention and records the
// surface form as an alias when it differs.
func (s *Service) RecordMention(ctx context.Context, in UpsertInput, source string) (*db.Entity, error) {
	row, err := s.UpsertEntity(ctx, in)
	if err != nil {
		return nil, err
	}
	if _, err := s.UpsertAlias(ctx, row.EntityID, in.Name, source); err != nil {
		return nil, err
	}
	return row, nil
}

// Resolve finds an entity by canonical key, then by alias key. Alias hits of
// another type do not count.
func (s *Service) Resolve(ctx context.Context, entityType, name string) (*db.Entity, error) {
	entityType = normalizeType(entityType)
	if entityType == "" {
		return nil, ErrEmptyType
	}
	if NormalizeKey(name) == "" {
		return nil, ErrEmptyName
	}

	row, err := s.store.FindEntityByKey(ctx, CanonicalKey(entityType, name))
	if err == nil {
		return row, nil
	}
	if !db.IsNotFound(err) {
		return nil, fmt.Errorf("resolve entity by key: %w", err)
	}

	row, err = s.store.FindEntityByAliasKey(ctx, NormalizeKey(name))
	if err != nil {
		if db.IsNotFound(err) {
			return nil, db.ErrNotFound
		}
		return nil, fmt.Errorf("resolve entity by alias: %w", err)
	}
	if row.Type != entityType {
		return nil, db.ErrNotFound
	}
	return row, nil
}
