package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lexora/atlas/internal/ingest"
	"github.com/lexora/atlas/internal/model"
	"github.com/lexora/atlas/internal/repository"
)

type DocumentHandler struct {
	ingestor *ingest.Ingestor
	docs     *repository.DocumentRepository
	chunks   *repository.ChunkRepository
}

func NewDocumentHandler(ingestor *ingest.Ingestor, docs *repository.DocumentRepository, chunks *repository.ChunkRepository) *DocumentHandler {
	return &DocumentHandler{ingestor: ingestor, docs: docs, chunks: chunks}
}

type IngestRequest struct {
	SourceID    string        `json:"source_id" binding:"required"`
	Title       string        `json:"title"`
	ContentType string        `json:"content_type"`
	Content     string        `json:"content" binding:"required"`
	OriginURL   string        `json:"origin_url"`
	Metadata    model.JSONMap `json:"metadata"`
}

type IngestResponse struct {
	DocumentID          string `json:"document_id"`
	ChunksStored        int    `json:"chunks_stored"`
	ChunksFailed        int    `json:"chunks_failed"`
	NeedsReconciliation bool   `json:"needs_reconciliation,omitempty"`
}

func (h *DocumentHandler) Ingest(c *gin.Context) {
	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sourceID, err := uuid.Parse(req.SourceID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid source_id"})
		return
	}

	result, err := h.ingestor.Ingest(c.Request.Context(), ingest.Request{
		SourceID:     sourceID,
		Title:        req.Title,
		DeclaredType: req.ContentType,
		OriginURL:    req.OriginURL,
		Content:      []byte(req.Content),
		Metadata:     req.Metadata,
	})
	if err != nil {
		var consistency *ingest.ConsistencyError
		if errors.As(err, &consistency) {
			// Stored relationally but flagged: report success with the flag
			// rather than a failure that would invite a duplicate retry.
			c.JSON(http.StatusOK, IngestResponse{
				DocumentID:          result.DocumentID.String(),
				ChunksStored:        result.ChunksStored,
				ChunksFailed:        result.ChunksFailed,
				NeedsReconciliation: true,
			})
			return
		}
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, ingest.ErrUnparseable), errors.Is(err, ingest.ErrNoChunks):
			status = http.StatusBadRequest
		case errors.Is(err, ingest.ErrAllEmbeddingsFailed):
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, IngestResponse{
		DocumentID:   result.DocumentID.String(),
		ChunksStored: result.ChunksStored,
		ChunksFailed: result.ChunksFailed,
	})
}

func (h *DocumentHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid document id"})
		return
	}

	doc, err := h.docs.FindByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
		return
	}
	chunkCount, err := h.chunks.CountByDocumentID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"document": doc, "chunk_count": chunkCount})
}

// Chunks lists a document's stored chunks in index order.
func (h *DocumentHandler) Chunks(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid document id"})
		return
	}

	chunks, err := h.chunks.FindByDocumentID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if chunks == nil {
		chunks = []model.Chunk{}
	}
	c.JSON(http.StatusOK, gin.H{"chunks": chunks})
}

// ListFlagged surfaces documents whose vector side diverged from the
// relational side, for operators running a reconciliation sweep.
func (h *DocumentHandler) ListFlagged(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	docs, err := h.docs.ListInconsistent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if docs == nil {
		docs = []model.Document{}
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid document id"})
		return
	}

	if err := h.ingestor.Delete(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id.String()})
}
