package vectorstore

import (
	"context"

	"github.com/google/uuid"
)

// Payload is the metadata stored alongside each vector, enough to render a
// search hit and to filter without touching the relational store.
type Payload struct {
	DocumentID  uuid.UUID
	SourceID    uuid.UUID
	ChunkIndex  int
	TextPreview string
}

// Point is one vector with its id and payload. Upserting the same id twice
// is idempotent.
type Point struct {
	ID      uuid.UUID
	Vector  []float32
	Payload Payload
}

// Match is one similarity search hit. Score is cosine similarity, higher is
// better.
type Match struct {
	ID      uuid.UUID
	Score   float32
	Payload Payload
}

// Filter restricts searches and deletions. Nil fields do not constrain.
type Filter struct {
	DocumentID *uuid.UUID
	SourceID   *uuid.UUID
}

// Store is the contract over the vector database.
type Store interface {
	Upsert(ctx context.Context, points []Point) error
	Search(ctx context.Context, vector []float32, limit int, scoreThreshold float32, filter *Filter) ([]Match, error)
	DeleteByIDs(ctx context.Context, ids []uuid.UUID) error
	DeleteByFilter(ctx context.Context, filter Filter) error
}
