package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type CrawlJobStatus string

const (
	CrawlJobStatusPending   CrawlJobStatus = "pending"
	CrawlJobStatusRunning   CrawlJobStatus = "running"
	CrawlJobStatusCompleted CrawlJobStatus = "completed"
	CrawlJobStatusFailed    CrawlJobStatus = "failed"
	CrawlJobStatusCancelled CrawlJobStatus = "cancelled"
)

type CrawlJob struct {
	BaseModel
	SourceID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"source_id"`
	SeedURL      string         `gorm:"size:2000;not null" json:"seed_url"`
	Status       CrawlJobStatus `gorm:"size:50;default:'pending'" json:"status"`
	PagesCrawled int            `gorm:"default:0" json:"pages_crawled"`
	PagesTotal   int            `gorm:"default:0" json:"pages_total"`
	MaxPages     int            `gorm:"default:0" json:"max_pages"`
	MaxDepth     int            `gorm:"default:0" json:"max_depth"`
	CurrentDepth int            `gorm:"default:0" json:"current_depth"`
	ErrorCount   int            `gorm:"default:0" json:"error_count"`
	ErrorMessage string         `gorm:"type:text" json:"error_message,omitempty"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
}

func (CrawlJob) TableName() string {
	return "crawl_jobs"
}

// IsTerminal reports whether the job reached a final state.
func (j *CrawlJob) IsTerminal() bool {
	switch j.Status {
	case CrawlJobStatusCompleted, CrawlJobStatusFailed, CrawlJobStatusCancelled:
		return true
	}
	return false
}

// Transition moves the job to the given status, enforcing the
// pending -> running -> {completed|failed|cancelled} state machine.
func (j *CrawlJob) Transition(to CrawlJobStatus) error {
	if j.IsTerminal() {
		return fmt.Errorf("crawl job %s is %s: no transition to %s", j.ID, j.Status, to)
	}
	switch to {
	case CrawlJobStatusRunning:
		if j.Status != CrawlJobStatusPending {
			return fmt.Errorf("crawl job %s: cannot start from %s", j.ID, j.Status)
		}
		now := time.Now()
		j.StartedAt = &now
	case CrawlJobStatusCompleted, CrawlJobStatusFailed, CrawlJobStatusCancelled:
		now := time.Now()
		j.CompletedAt = &now
	default:
		return fmt.Errorf("crawl job %s: invalid target status %s", j.ID, to)
	}
	j.Status = to
	return nil
}
