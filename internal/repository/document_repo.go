package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lexora/atlas/internal/model"
)

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// CreateWithChunks persists a document and its chunks in one transaction.
// The parent source row is locked first so concurrent ingestions against the
// same source serialize, and the lock order (by source id) stays stable
// across callers.
func (r *DocumentRepository) CreateWithChunks(ctx context.Context, doc *model.Document, chunks []model.Chunk) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var source model.Source
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", doc.SourceID).
			First(&source).Error; err != nil {
			return fmt.Errorf("failed to lock source %s: %w", doc.SourceID, err)
		}

		if err := tx.Create(doc).Error; err != nil {
			return fmt.Errorf("failed to create document: %w", err)
		}

		if len(chunks) == 0 {
			return nil
		}
		for i := range chunks {
			chunks[i].DocumentID = doc.ID
		}
		if err := tx.Create(&chunks).Error; err != nil {
			return fmt.Errorf("failed to create %d chunks: %w", len(chunks), err)
		}
		return nil
	})
}

func (r *DocumentRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Document, error) {
	var doc model.Document
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&doc).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *DocumentRepository) FindBySourceID(ctx context.Context, sourceID uuid.UUID, limit, offset int) ([]model.Document, int64, error) {
	var docs []model.Document
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Document{}).
		Where("source_id = ?", sourceID)

	query.Count(&total)
	err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&docs).Error
	return docs, total, err
}

// MarkInconsistent flags a document whose vectors diverged from its chunk
// rows so the reconciliation sweep can pick it up.
func (r *DocumentRepository) MarkInconsistent(ctx context.Context, id uuid.UUID, note string) error {
	return r.db.WithContext(ctx).Model(&model.Document{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"needs_reconciliation": true,
			"status":               model.DocumentStatusInconsistent,
			"metadata":             gorm.Expr("COALESCE(metadata, '{}'::jsonb) || jsonb_build_object('reconciliation_note', ?::text)", note),
		}).Error
}

// ListInconsistent returns documents awaiting reconciliation.
func (r *DocumentRepository) ListInconsistent(ctx context.Context, limit int) ([]model.Document, error) {
	var docs []model.Document
	err := r.db.WithContext(ctx).
		Where("needs_reconciliation = ?", true).
		Order("updated_at ASC").
		Limit(limit).
		Find(&docs).Error
	return docs, err
}

// Delete removes a document and its chunks. Chunk rows go in the same
// transaction; the database-level cascade is a backstop.
func (r *DocumentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", id).Delete(&model.Chunk{}).Error; err != nil {
			return fmt.Errorf("failed to delete chunks: %w", err)
		}
		if err := tx.Where("id = ?", id).Delete(&model.Document{}).Error; err != nil {
			return fmt.Errorf("failed to delete document: %w", err)
		}
		return nil
	})
}
