package model

import (
	"time"

	"github.com/pgvector/pgvector-go"
)

// EmbeddingCacheEntry caches one computed embedding keyed by
// (content_hash, model). Losing this table is safe: entries are
// recomputed on demand.
//
// The embedding column is excluded from auto-migration because its pgvector
// size follows EMBEDDING_DIMENSIONS; database.AutoMigrate adds it with the
// configured width.
type EmbeddingCacheEntry struct {
	BaseModel
	ContentHash    string          `gorm:"size:64;not null;uniqueIndex:idx_embedding_cache_key" json:"content_hash"`
	Model          string          `gorm:"size:100;not null;uniqueIndex:idx_embedding_cache_key" json:"model"`
	Embedding      pgvector.Vector `gorm:"column:embedding;-:migration" json:"-"`
	Dimensions     int             `gorm:"not null" json:"dimensions"`
	AccessCount    int64           `gorm:"default:0" json:"access_count"`
	LastAccessedAt time.Time       `json:"last_accessed_at"`
}

func (EmbeddingCacheEntry) TableName() string {
	return "embedding_cache"
}
