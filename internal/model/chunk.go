package model

import (
	"github.com/google/uuid"
)

// Chunk is the unit of embedding and retrieval. Chunks exist only as part of
// their document's ingestion transaction; per document, chunk indices are
// sequential starting at 0.
type Chunk struct {
	BaseModel
	DocumentID  uuid.UUID `gorm:"type:uuid;not null;index" json:"document_id"`
	ChunkIndex  int       `gorm:"not null" json:"chunk_index"`
	Text        string    `gorm:"type:text;not null" json:"text"`
	TokenCount  int       `gorm:"default:0" json:"token_count"`
	StartOffset int       `gorm:"default:0" json:"start_offset"`
	EndOffset   int       `gorm:"default:0" json:"end_offset"`

	Document *Document `gorm:"foreignKey:DocumentID;constraint:OnDelete:CASCADE" json:"document,omitempty"`
}

func (Chunk) TableName() string {
	return "chunks"
}
