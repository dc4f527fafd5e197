package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lexora/atlas/internal/crawl"
	"github.com/lexora/atlas/internal/model"
	"github.com/lexora/atlas/internal/repository"
)

type CrawlHandler struct {
	manager *crawl.Manager
	jobs    *repository.CrawlJobRepository
}

func NewCrawlHandler(manager *crawl.Manager, jobs *repository.CrawlJobRepository) *CrawlHandler {
	return &CrawlHandler{manager: manager, jobs: jobs}
}

type StartCrawlRequest struct {
	SourceID  string `json:"source_id" binding:"required"`
	SeedURL   string `json:"seed_url" binding:"required"`
	MaxPages  int    `json:"max_pages"`
	Recursive bool   `json:"recursive"`
}

func (h *CrawlHandler) Start(c *gin.Context) {
	var req StartCrawlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sourceID, err := uuid.Parse(req.SourceID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid source_id"})
		return
	}

	job, err := h.manager.Start(c.Request.Context(), sourceID, req.SeedURL, req.MaxPages, req.Recursive)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, job)
}

// List returns the crawl jobs recorded for a source, newest first.
func (h *CrawlHandler) List(c *gin.Context) {
	sourceID, err := uuid.Parse(c.Query("source_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "source_id query parameter required"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	jobs, total, err := h.jobs.FindBySourceID(c.Request.Context(), sourceID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if jobs == nil {
		jobs = []model.CrawlJob{}
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "total": total})
}

func (h *CrawlHandler) Status(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}

	job, err := h.jobs.FindByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "crawl job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *CrawlHandler) Cancel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}

	if !h.manager.Cancel(id) {
		c.JSON(http.StatusConflict, gin.H{"error": "job is not running"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelling": id.String()})
}
