package ingest

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrUnparseable is returned when content cannot be converted to plain
	// text. Nothing is persisted.
	ErrUnparseable = errors.New("unparseable content")

	// ErrNoChunks is returned when segmentation yields nothing to ingest.
	ErrNoChunks = errors.New("no chunks produced from content")

	// ErrAllEmbeddingsFailed is returned when no chunk could be embedded;
	// ingestion aborts before any persistence.
	ErrAllEmbeddingsFailed = errors.New("all embeddings failed")
)

// ConsistencyError reports that the relational commit succeeded but the
// vector upsert did not. The document is flagged for reconciliation; this is
// not an ordinary ingestion failure and callers must treat it distinctly.
type ConsistencyError struct {
	DocumentID uuid.UUID
	Err        error
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("document %s requires reconciliation: %v", e.DocumentID, e.Err)
}

func (e *ConsistencyError) Unwrap() error {
	return e.Err
}
