package database

import (
	"fmt"

	"github.com/lexora/atlas/internal/config"
	"github.com/lexora/atlas/internal/model"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func Connect(cfg *config.Config) (*gorm.DB, error) {
	logLevel := logger.Warn
	if cfg.IsDevelopment() {
		logLevel = logger.Info
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, err
	}

	return db, nil
}

func AutoMigrate(db *gorm.DB, embeddingDims int) error {
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return err
	}

	if err := db.AutoMigrate(
		&model.Source{},
		&model.Document{},
		&model.Chunk{},
		&model.CrawlJob{},
		&model.EmbeddingCacheEntry{},
	); err != nil {
		return err
	}

	// The cache embedding column is sized by EMBEDDING_DIMENSIONS, so gorm
	// skips it and we add it here with the configured width.
	if err := db.Exec(fmt.Sprintf(
		"ALTER TABLE embedding_cache ADD COLUMN IF NOT EXISTS embedding vector(%d)", embeddingDims,
	)).Error; err != nil {
		return err
	}

	// Lexical index backing ranked full-text queries over chunk text.
	return db.Exec(
		"CREATE INDEX IF NOT EXISTS idx_chunks_text_fts ON chunks USING gin (to_tsvector('english', text))",
	).Error
}
