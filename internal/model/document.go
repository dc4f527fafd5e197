package model

import (
	"github.com/google/uuid"
)

type DocumentStatus string

const (
	DocumentStatusReady        DocumentStatus = "ready"
	DocumentStatusInconsistent DocumentStatus = "inconsistent"
)

type Document struct {
	BaseModel
	SourceID  uuid.UUID      `gorm:"type:uuid;not null;index" json:"source_id"`
	Title     string         `gorm:"size:500" json:"title"`
	DocType   string         `gorm:"size:100" json:"doc_type"`
	OriginURL string         `gorm:"size:2000" json:"origin_url,omitempty"`
	Status    DocumentStatus `gorm:"size:50;default:'ready'" json:"status"`
	// NeedsReconciliation is set when the relational commit succeeded but the
	// vector upsert did not. A background sweep consumes this flag.
	NeedsReconciliation bool    `gorm:"default:false;index" json:"needs_reconciliation"`
	Metadata            JSONMap `gorm:"type:jsonb" json:"metadata"`

	Source *Source  `gorm:"foreignKey:SourceID" json:"source,omitempty"`
	Chunks []*Chunk `gorm:"foreignKey:DocumentID" json:"chunks,omitempty"`
}

func (Document) TableName() string {
	return "documents"
}
