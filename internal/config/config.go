package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server
	Host        string
	Port        string
	Environment string
	GinMode     string

	// Database
	DatabaseURL string

	// Vector DB (Milvus)
	MilvusAddr       string
	MilvusAPIKey     string
	MilvusCollection string

	// Embedding service (OpenAI compatible)
	EmbeddingAPIKey     string
	EmbeddingBaseURL    string
	EmbeddingModel      string
	EmbeddingDimensions int
	EmbeddingBatchSize  int

	// Segmentation
	ChunkSize    int
	ChunkOverlap int

	// Retrieval
	VectorWeight  float64
	LexicalWeight float64

	// Crawling
	CrawlConcurrency int
	CrawlFetchDelay  time.Duration
	CrawlMaxDepth    int
}

func Load() *Config {
	return &Config{
		Host:        getEnv("HOST", "0.0.0.0"),
		Port:        getEnv("PORT", "8087"),
		Environment: getEnv("ENVIRONMENT", "development"),
		GinMode:     getEnv("GIN_MODE", "debug"),

		DatabaseURL: getEnv("DATABASE_URL", "postgres://localhost:5432/atlas?sslmode=disable"),

		MilvusAddr:       getEnv("MILVUS_ADDR", "localhost:19530"),
		MilvusAPIKey:     getEnv("MILVUS_API_KEY", ""),
		MilvusCollection: getEnv("MILVUS_COLLECTION", "atlas_chunks"),

		EmbeddingAPIKey:     getEnv("OPENAI_API_KEY", ""),
		EmbeddingBaseURL:    getEnv("EMBEDDING_BASE_URL", "https://api.openai.com/v1"),
		EmbeddingModel:      getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDimensions: getEnvInt("EMBEDDING_DIMENSIONS", 1536),
		EmbeddingBatchSize:  getEnvInt("EMBEDDING_BATCH_SIZE", 100),

		ChunkSize:    getEnvInt("CHUNK_SIZE", 500),
		ChunkOverlap: getEnvInt("CHUNK_OVERLAP", 50),

		VectorWeight:  getEnvFloat("SEARCH_VECTOR_WEIGHT", 0.7),
		LexicalWeight: getEnvFloat("SEARCH_LEXICAL_WEIGHT", 0.3),

		CrawlConcurrency: getEnvInt("CRAWL_CONCURRENCY", 3),
		CrawlFetchDelay:  getEnvDuration("CRAWL_FETCH_DELAY", 2500*time.Millisecond),
		CrawlMaxDepth:    getEnvInt("CRAWL_MAX_DEPTH", 3),
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("chunk overlap %d must be in [0, %d)", c.ChunkOverlap, c.ChunkSize)
	}
	if math.Abs(c.VectorWeight+c.LexicalWeight-1.0) > 1e-9 {
		return fmt.Errorf("search weights must sum to 1.0, got %.3f + %.3f", c.VectorWeight, c.LexicalWeight)
	}
	if c.EmbeddingDimensions <= 0 {
		return fmt.Errorf("embedding dimensions must be positive, got %d", c.EmbeddingDimensions)
	}
	if c.EmbeddingBatchSize <= 0 {
		return fmt.Errorf("embedding batch size must be positive, got %d", c.EmbeddingBatchSize)
	}
	if c.CrawlConcurrency <= 0 {
		return fmt.Errorf("crawl concurrency must be positive, got %d", c.CrawlConcurrency)
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
