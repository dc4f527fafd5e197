package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lexora/atlas/internal/model"
)

type ChunkRepository struct {
	db *gorm.DB
}

func NewChunkRepository(db *gorm.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

// LexicalHit is one ranked full-text match over chunk text.
type LexicalHit struct {
	ChunkID    uuid.UUID `gorm:"column:chunk_id"`
	DocumentID uuid.UUID `gorm:"column:document_id"`
	SourceID   uuid.UUID `gorm:"column:source_id"`
	ChunkIndex int       `gorm:"column:chunk_index"`
	Text       string    `gorm:"column:text"`
	Rank       float64   `gorm:"column:rank"`
}

// LexicalSearch runs a ranked full-text query against the chunk GIN index.
func (r *ChunkRepository) LexicalSearch(ctx context.Context, query string, limit int, sourceID *uuid.UUID) ([]LexicalHit, error) {
	if limit <= 0 {
		limit = 10
	}

	sql := `
		SELECT c.id AS chunk_id, c.document_id, d.source_id, c.chunk_index, c.text,
		       ts_rank(to_tsvector('english', c.text), plainto_tsquery('english', ?)) AS rank
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE to_tsvector('english', c.text) @@ plainto_tsquery('english', ?)`
	args := []interface{}{query, query}
	if sourceID != nil {
		sql += " AND d.source_id = ?"
		args = append(args, *sourceID)
	}
	sql += " ORDER BY rank DESC LIMIT ?"
	args = append(args, limit)

	var hits []LexicalHit
	if err := r.db.WithContext(ctx).Raw(sql, args...).Scan(&hits).Error; err != nil {
		return nil, err
	}
	return hits, nil
}

func (r *ChunkRepository) FindByDocumentID(ctx context.Context, documentID uuid.UUID) ([]model.Chunk, error) {
	var chunks []model.Chunk
	err := r.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("chunk_index ASC").
		Find(&chunks).Error
	return chunks, err
}

func (r *ChunkRepository) CountByDocumentID(ctx context.Context, documentID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Chunk{}).
		Where("document_id = ?", documentID).
		Count(&count).Error
	return count, err
}
