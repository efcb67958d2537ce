package pipeline

import (
	"context"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// runDatabaseCheck seeds a throwaway in-memory database and runs the query
// against it. Every run starts from a fresh database so checks are
// repeatable.
func runDatabaseCheck(ctx context.Context, cfg DatabaseConfig, query string) ([]map[string]interface{}, error) {
	if cfg.Dialect != "sqlite" {
		return nil, fmt.Errorf("unsupported dialect %q", cfg.Dialect)
	}
	if query == "" {
		return nil, fmt.Errorf("no query to run")
	}

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Discard,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	defer sqlDB.Close()

	session := db.WithContext(ctx)
	if cfg.SeedSQL != "" {
		if err := session.Exec(cfg.SeedSQL).Error; err != nil {
			return nil, fmt.Errorf("seed database: %w", err)
		}
	}

	var rows []map[string]interface{}
	if err := session.Raw(query).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("run query: %w", err)
	}
	return rows, nil
}
