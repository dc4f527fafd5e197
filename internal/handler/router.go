package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/lexora/atlas/internal/config"
	"github.com/lexora/atlas/internal/crawl"
	"github.com/lexora/atlas/internal/ingest"
	"github.com/lexora/atlas/internal/repository"
	"github.com/lexora/atlas/internal/search"
)

// Deps carries the wired components the router exposes over HTTP. The
// heavier pieces (vector store, embedding provider) are constructed in
// main because they need a context and can fail.
type Deps struct {
	DB          *gorm.DB
	Ingestor    *ingest.Ingestor
	Coordinator *search.Coordinator
	Manager     *crawl.Manager
}

func SetupRouter(cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	// Health check endpoints
	r.GET("/health", healthCheck)
	r.GET("/ready", readinessCheck(deps.DB))
	r.GET("/live", livenessCheck)

	// Root endpoint
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service":      "Atlas Knowledge Service",
			"version":      "1.0.0",
			"status":       "running",
			"health_check": "/health",
		})
	})

	sourceRepo := repository.NewSourceRepository(deps.DB)
	documentRepo := repository.NewDocumentRepository(deps.DB)
	chunkRepo := repository.NewChunkRepository(deps.DB)
	crawlJobRepo := repository.NewCrawlJobRepository(deps.DB)

	sourceHandler := NewSourceHandler(sourceRepo, documentRepo)
	documentHandler := NewDocumentHandler(deps.Ingestor, documentRepo, chunkRepo)
	crawlHandler := NewCrawlHandler(deps.Manager, crawlJobRepo)
	searchHandler := NewSearchHandler(deps.Coordinator)

	// API v1
	v1 := r.Group("/v1")
	{
		sources := v1.Group("/sources")
		{
			sources.GET("", sourceHandler.List)
			sources.POST("", sourceHandler.Create)
			sources.GET("/:id", sourceHandler.Get)
			sources.DELETE("/:id", sourceHandler.Delete)
			sources.GET("/:id/documents", sourceHandler.Documents)
		}

		documents := v1.Group("/documents")
		{
			documents.POST("", documentHandler.Ingest)
			documents.GET("/:id", documentHandler.Get)
			documents.GET("/:id/chunks", documentHandler.Chunks)
			documents.DELETE("/:id", documentHandler.Delete)
		}
		v1.GET("/reconciliation", documentHandler.ListFlagged)

		crawls := v1.Group("/crawl")
		{
			crawls.POST("", crawlHandler.Start)
			crawls.GET("", crawlHandler.List)
			crawls.GET("/:id", crawlHandler.Status)
			crawls.POST("/:id/cancel", crawlHandler.Cancel)
		}

		v1.POST("/search", searchHandler.Search)
	}

	// Retrieval endpoint for AI agent tool calls, unversioned
	r.POST("/retrieve", searchHandler.Search)

	return r
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "atlas",
	})
}

func readinessCheck(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}

func livenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "alive",
	})
}
