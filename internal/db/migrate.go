package db

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
)

//go:embed sql/post_automigrate_postgres.sql
var postAutoMigratePostgresSQL string

func (p *Pool) autoMigrate(ctx context.Context) error {
	if p == nil || p.gdb == nil {
		return fmt.Errorf("database pool is not initialized")
	}

	if err := p.gdb.WithContext(ctx).AutoMigrate(autoMigrateModels()...); err != nil {
		return fmt.Errorf("gorm auto-migrate models: %w", err)
	}

	if p.dialect == DialectPostgres {
		if err := executeMigrationSQL(ctx, p, "post-auto-migrate", postAutoMigratePostgresSQL); err != nil {
			return err
		}
	}

	return nil
}

func executeMigrationSQL(ctx context.Context, p *Pool, label, sqlText string) error {
	trimmed := strings.TrimSpace(sqlText)
	if trimmed == "" {
		return nil
	}
	if err := p.gdb.WithContext(ctx).Exec(trimmed).Error; err != nil {
		return fmt.Errorf("execute %s SQL: %w", label, err)
	}
	return nil
}
