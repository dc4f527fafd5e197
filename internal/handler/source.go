package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lexora/atlas/internal/model"
	"github.com/lexora/atlas/internal/repository"
)

type SourceHandler struct {
	sources *repository.SourceRepository
	docs    *repository.DocumentRepository
}

func NewSourceHandler(sources *repository.SourceRepository, docs *repository.DocumentRepository) *SourceHandler {
	return &SourceHandler{sources: sources, docs: docs}
}

type CreateSourceRequest struct {
	Name     string        `json:"name" binding:"required"`
	Kind     string        `json:"kind" binding:"required"`
	BaseURL  string        `json:"base_url"`
	Metadata model.JSONMap `json:"metadata"`
}

func (h *SourceHandler) Create(c *gin.Context) {
	var req CreateSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	kind := model.SourceKind(req.Kind)
	if kind != model.SourceKindUpload && kind != model.SourceKindWebsite {
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be upload or website"})
		return
	}

	source := &model.Source{
		Name:     req.Name,
		Kind:     kind,
		BaseURL:  req.BaseURL,
		Metadata: req.Metadata,
	}
	if err := h.sources.Create(c.Request.Context(), source); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, source)
}

func (h *SourceHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	sources, total, err := h.sources.List(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if sources == nil {
		sources = []model.Source{}
	}
	c.JSON(http.StatusOK, gin.H{"sources": sources, "total": total})
}

func (h *SourceHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid source id"})
		return
	}

	source, err := h.sources.FindByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "source not found"})
		return
	}
	c.JSON(http.StatusOK, source)
}

// Delete removes the source registry row. Documents under the source keep
// their own deletion path so both stores stay in step.
func (h *SourceHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid source id"})
		return
	}

	docs, total, err := h.docs.FindBySourceID(c.Request.Context(), id, 1, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if total > 0 || len(docs) > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "source still has documents"})
		return
	}

	if err := h.sources.Delete(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id.String()})
}

func (h *SourceHandler) Documents(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid source id"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	docs, total, err := h.docs.FindBySourceID(c.Request.Context(), id, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if docs == nil {
		docs = []model.Document{}
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs, "total": total})
}
