package repository

import (
	"context"
	"errors"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lexora/atlas/internal/model"
)

// EmbeddingCacheRepository backs the embedding content-hash cache. It
// satisfies the embedding.Cache contract; all failures here are tolerable.
type EmbeddingCacheRepository struct {
	db *gorm.DB
}

func NewEmbeddingCacheRepository(db *gorm.DB) *EmbeddingCacheRepository {
	return &EmbeddingCacheRepository{db: db}
}

// Get looks up a cached vector and bumps its access bookkeeping.
func (r *EmbeddingCacheRepository) Get(ctx context.Context, hash, modelName string) ([]float32, bool, error) {
	var entry model.EmbeddingCacheEntry
	err := r.db.WithContext(ctx).
		Where("content_hash = ? AND model = ?", hash, modelName).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	// Opportunistic; a failed bump does not fail the lookup.
	r.db.WithContext(ctx).Model(&model.EmbeddingCacheEntry{}).
		Where("id = ?", entry.ID).
		Updates(map[string]interface{}{
			"access_count":     gorm.Expr("access_count + 1"),
			"last_accessed_at": time.Now(),
		})

	return entry.Embedding.Slice(), true, nil
}

// Put stores a computed vector, replacing any entry for the same key.
func (r *EmbeddingCacheRepository) Put(ctx context.Context, hash, modelName string, vector []float32) error {
	entry := model.EmbeddingCacheEntry{
		ContentHash:    hash,
		Model:          modelName,
		Embedding:      pgvector.NewVector(vector),
		Dimensions:     len(vector),
		AccessCount:    0,
		LastAccessedAt: time.Now(),
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "content_hash"}, {Name: "model"}},
			DoUpdates: clause.AssignmentColumns([]string{"embedding", "dimensions", "last_accessed_at", "updated_at"}),
		}).
		Create(&entry).Error
}
