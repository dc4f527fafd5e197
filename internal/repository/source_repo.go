package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lexora/atlas/internal/model"
)

type SourceRepository struct {
	db *gorm.DB
}

func NewSourceRepository(db *gorm.DB) *SourceRepository {
	return &SourceRepository{db: db}
}

func (r *SourceRepository) Create(ctx context.Context, source *model.Source) error {
	return r.db.WithContext(ctx).Create(source).Error
}

func (r *SourceRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Source, error) {
	var source model.Source
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&source).Error; err != nil {
		return nil, err
	}
	return &source, nil
}

func (r *SourceRepository) List(ctx context.Context, limit, offset int) ([]model.Source, int64, error) {
	var sources []model.Source
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Source{})
	query.Count(&total)
	err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&sources).Error
	return sources, total, err
}

func (r *SourceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Source{}).Error
}
