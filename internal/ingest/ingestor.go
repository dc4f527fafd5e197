package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/lexora/atlas/internal/embedding"
	"github.com/lexora/atlas/internal/model"
	"github.com/lexora/atlas/internal/segment"
	"github.com/lexora/atlas/internal/vectorstore"
)

// Segmenter splits plain text into token-bounded chunks.
type Segmenter interface {
	Segment(ctx context.Context, text string) ([]segment.Chunk, error)
}

// Embedder turns chunk texts into vectors with partial-failure reporting.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) (embedding.Result, error)
}

// DocumentStore is the relational half of the dual-store write.
type DocumentStore interface {
	CreateWithChunks(ctx context.Context, doc *model.Document, chunks []model.Chunk) error
	MarkInconsistent(ctx context.Context, id uuid.UUID, note string) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// Request describes one unit of content to ingest.
type Request struct {
	SourceID     uuid.UUID
	Title        string
	DeclaredType string
	OriginURL    string
	Content      []byte
	Metadata     model.JSONMap
}

// Result reports what one ingestion stored. ChunksFailed counts chunks whose
// embedding failed; those are persisted nowhere and are the caller's to
// retry.
type Result struct {
	DocumentID   uuid.UUID `json:"document_id"`
	ChunksStored int       `json:"chunks_stored"`
	ChunksFailed int       `json:"chunks_failed"`
}

// Ingestor drives parse -> segment -> embed -> dual-store persist for one
// document. The relational transaction commits before any vector work; a
// vector failure after commit flags the document for reconciliation instead
// of rolling back.
type Ingestor struct {
	parser    Parser
	segmenter Segmenter
	embedder  Embedder
	docs      DocumentStore
	vectors   vectorstore.Store
	logger    *slog.Logger
}

func NewIngestor(parser Parser, segmenter Segmenter, embedder Embedder, docs DocumentStore, vectors vectorstore.Store, logger *slog.Logger) (*Ingestor, error) {
	if parser == nil || segmenter == nil || embedder == nil || docs == nil || vectors == nil {
		return nil, errors.New("all ingestor collaborators are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		parser:    parser,
		segmenter: segmenter,
		embedder:  embedder,
		docs:      docs,
		vectors:   vectors,
		logger:    logger,
	}, nil
}

func (ing *Ingestor) Ingest(ctx context.Context, req Request) (*Result, error) {
	text, err := ing.parser.Parse(ctx, req.Content, req.DeclaredType)
	if err != nil {
		return nil, err
	}

	chunks, err := ing.segmenter.Segment(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("segmentation failed: %w", err)
	}
	if len(chunks) == 0 {
		return nil, ErrNoChunks
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	embedded, err := ing.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	if embedded.SuccessCount() == 0 {
		return nil, fmt.Errorf("%w: %d chunks, first reason %q",
			ErrAllEmbeddingsFailed, embedded.FailureCount(), embedded.Failures[0].Reason)
	}
	if embedded.FailureCount() > 0 {
		ing.logger.Warn("proceeding with partial embedding result",
			"source_id", req.SourceID,
			"succeeded", embedded.SuccessCount(),
			"failed", embedded.FailureCount())
	}

	// Only chunks that embedded survive, re-indexed so stored chunk indices
	// stay contiguous from 0.
	doc := &model.Document{
		SourceID:  req.SourceID,
		Title:     req.Title,
		DocType:   req.DeclaredType,
		OriginURL: req.OriginURL,
		Status:    model.DocumentStatusReady,
		Metadata:  req.Metadata,
	}
	rows := make([]model.Chunk, len(embedded.Successes))
	points := make([]vectorstore.Point, len(embedded.Successes))
	for i, s := range embedded.Successes {
		src := chunks[s.Index]
		rows[i] = model.Chunk{
			ChunkIndex:  i,
			Text:        src.Text,
			TokenCount:  src.TokenCount,
			StartOffset: src.StartOffset,
			EndOffset:   src.EndOffset,
		}
		rows[i].ID = uuid.New()
		points[i] = vectorstore.Point{
			ID:     rows[i].ID,
			Vector: s.Vector,
			Payload: vectorstore.Payload{
				SourceID:    req.SourceID,
				ChunkIndex:  i,
				TextPreview: src.Text,
			},
		}
	}

	if err := ing.docs.CreateWithChunks(ctx, doc, rows); err != nil {
		return nil, fmt.Errorf("relational persist failed: %w", err)
	}
	for i := range points {
		points[i].Payload.DocumentID = doc.ID
	}

	result := &Result{
		DocumentID:   doc.ID,
		ChunksStored: len(rows),
		ChunksFailed: embedded.FailureCount(),
	}

	// The relational write is committed; an upsert failure here must not
	// undo it. Flag and surface instead.
	if err := ing.vectors.Upsert(ctx, points); err != nil {
		ing.logger.Error("vector upsert failed after relational commit",
			"document_id", doc.ID, "error", err)
		if markErr := ing.docs.MarkInconsistent(ctx, doc.ID, err.Error()); markErr != nil {
			ing.logger.Error("failed to flag document for reconciliation",
				"document_id", doc.ID, "error", markErr)
		}
		return result, &ConsistencyError{DocumentID: doc.ID, Err: err}
	}

	return result, nil
}

// Delete removes a document from both stores, vectors first. A vector
// deletion failure is logged and does not block reclaiming relational
// storage; a later sweep can retry the vector side.
func (ing *Ingestor) Delete(ctx context.Context, documentID uuid.UUID) error {
	filter := vectorstore.Filter{DocumentID: &documentID}
	if err := ing.vectors.DeleteByFilter(ctx, filter); err != nil {
		ing.logger.Warn("vector deletion failed, continuing with relational delete",
			"document_id", documentID, "error", err)
	}
	if err := ing.docs.Delete(ctx, documentID); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", documentID, err)
	}
	return nil
}
