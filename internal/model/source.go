package model

type SourceKind string

const (
	SourceKindUpload  SourceKind = "upload"
	SourceKindWebsite SourceKind = "website"
)

// Source is the parent of every ingested document. Concurrent ingestions
// against the same source serialize on its row lock.
type Source struct {
	BaseModel
	Name     string     `gorm:"size:255;not null" json:"name"`
	Kind     SourceKind `gorm:"size:50;not null" json:"kind"`
	BaseURL  string     `gorm:"size:2000" json:"base_url,omitempty"`
	Metadata JSONMap    `gorm:"type:jsonb" json:"metadata"`
}

func (Source) TableName() string {
	return "sources"
}
