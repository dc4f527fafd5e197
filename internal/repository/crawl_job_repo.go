package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lexora/atlas/internal/model"
)

type CrawlJobRepository struct {
	db *gorm.DB
}

func NewCrawlJobRepository(db *gorm.DB) *CrawlJobRepository {
	return &CrawlJobRepository{db: db}
}

func (r *CrawlJobRepository) Create(ctx context.Context, job *model.CrawlJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// Update writes the job row in place. Called after every crawled page so
// status pollers see live progress.
func (r *CrawlJobRepository) Update(ctx context.Context, job *model.CrawlJob) error {
	return r.db.WithContext(ctx).Save(job).Error
}

func (r *CrawlJobRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.CrawlJob, error) {
	var job model.CrawlJob
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *CrawlJobRepository) FindBySourceID(ctx context.Context, sourceID uuid.UUID, limit, offset int) ([]model.CrawlJob, int64, error) {
	var jobs []model.CrawlJob
	var total int64

	query := r.db.WithContext(ctx).Model(&model.CrawlJob{}).
		Where("source_id = ?", sourceID)

	query.Count(&total)
	err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&jobs).Error
	return jobs, total, err
}
