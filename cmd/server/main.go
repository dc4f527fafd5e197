package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/lexora/atlas/internal/config"
	"github.com/lexora/atlas/internal/crawl"
	"github.com/lexora/atlas/internal/database"
	"github.com/lexora/atlas/internal/embedding"
	"github.com/lexora/atlas/internal/handler"
	"github.com/lexora/atlas/internal/ingest"
	"github.com/lexora/atlas/internal/repository"
	"github.com/lexora/atlas/internal/search"
	"github.com/lexora/atlas/internal/segment"
	"github.com/lexora/atlas/internal/vectorstore"
)

func main() {
	// Load .env file if exists
	godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("service exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	db, err := database.Connect(cfg)
	if err != nil {
		return err
	}
	if err := database.AutoMigrate(db, cfg.EmbeddingDimensions); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	vectors, err := vectorstore.NewMilvusStore(ctx, cfg.MilvusAddr, cfg.MilvusAPIKey, cfg.MilvusCollection, cfg.EmbeddingDimensions)
	if err != nil {
		return err
	}
	defer vectors.Close(context.Background())

	counter, err := segment.NewTiktokenCounter(cfg.EmbeddingModel)
	if err != nil {
		return err
	}
	segmenter, err := segment.NewSegmenter(cfg.ChunkSize, cfg.ChunkOverlap, counter)
	if err != nil {
		return err
	}
	defer segmenter.Close()

	provider := embedding.NewOpenAIProvider(cfg.EmbeddingAPIKey, cfg.EmbeddingBaseURL, cfg.EmbeddingModel, cfg.EmbeddingDimensions)
	embedder, err := embedding.NewBatchProcessor(provider,
		embedding.WithCache(repository.NewEmbeddingCacheRepository(db)),
		embedding.WithBatchSize(cfg.EmbeddingBatchSize),
		embedding.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	documentRepo := repository.NewDocumentRepository(db)
	chunkRepo := repository.NewChunkRepository(db)
	crawlJobRepo := repository.NewCrawlJobRepository(db)

	ingestor, err := ingest.NewIngestor(ingest.NewDefaultParser(), segmenter, embedder, documentRepo, vectors, logger)
	if err != nil {
		return err
	}

	crawler, err := crawl.NewCrawler(crawl.NewHTTPFetcher(0), crawlJobRepo, ingestor,
		crawl.WithConcurrency(cfg.CrawlConcurrency),
		crawl.WithFetchDelay(cfg.CrawlFetchDelay),
		crawl.WithMaxDepth(cfg.CrawlMaxDepth),
		crawl.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	manager := crawl.NewManager(crawler)

	coordinator, err := search.NewCoordinator(embedder, vectors, chunkRepo, cfg.VectorWeight, cfg.LexicalWeight, logger)
	if err != nil {
		return err
	}

	r := handler.SetupRouter(cfg, handler.Deps{
		DB:          db,
		Ingestor:    ingestor,
		Coordinator: coordinator,
		Manager:     manager,
	})

	srv := &http.Server{
		Addr:    cfg.Host + ":" + cfg.Port,
		Handler: r,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("atlas knowledge service starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.IsDevelopment() {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
