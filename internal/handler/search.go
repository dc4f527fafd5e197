package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lexora/atlas/internal/search"
)

type SearchHandler struct {
	coordinator *search.Coordinator
}

func NewSearchHandler(coordinator *search.Coordinator) *SearchHandler {
	return &SearchHandler{coordinator: coordinator}
}

type SearchRequest struct {
	Query    string `json:"query" binding:"required"`
	Limit    int    `json:"limit"`
	Mode     string `json:"mode"`
	SourceID string `json:"source_id"`
}

type SearchResponse struct {
	Results []search.Result `json:"results"`
}

func (h *SearchHandler) Search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Limit == 0 {
		req.Limit = 10
	}
	mode := search.Mode(req.Mode)
	if mode == "" {
		mode = search.ModeAuto
	}

	var sourceID *uuid.UUID
	if req.SourceID != "" {
		id, err := uuid.Parse(req.SourceID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid source_id"})
			return
		}
		sourceID = &id
	}

	results, err := h.coordinator.Search(c.Request.Context(), req.Query, req.Limit, sourceID, mode)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, search.ErrInvalidMode) || errors.Is(err, search.ErrLexicalUnavailable) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	if results == nil {
		results = []search.Result{}
	}
	c.JSON(http.StatusOK, SearchResponse{Results: results})
}
