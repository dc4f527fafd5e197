package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/lexora/atlas/internal/repository"
	"github.com/lexora/atlas/internal/vectorstore"
)

// Mode selects the retrieval strategy.
type Mode string

const (
	// ModeVector always searches by similarity alone.
	ModeVector Mode = "vector"
	// ModeHybrid fuses vector and lexical signals; requires a lexical
	// searcher.
	ModeHybrid Mode = "hybrid"
	// ModeAuto uses hybrid when a lexical searcher is configured, vector
	// otherwise.
	ModeAuto Mode = "auto"
)

// candidateMultiplier widens the per-signal candidate pool before fusion.
const candidateMultiplier = 5

type MatchType string

const (
	MatchVector  MatchType = "vector"
	MatchLexical MatchType = "lexical"
	MatchBoth    MatchType = "both"
)

// Result is one ranked hit, constructed fresh per query.
type Result struct {
	ChunkID      uuid.UUID `json:"chunk_id"`
	DocumentID   uuid.UUID `json:"document_id"`
	SourceID     uuid.UUID `json:"source_id"`
	Text         string    `json:"text"`
	Score        float64   `json:"score"`
	VectorScore  float64   `json:"vector_score"`
	LexicalScore float64   `json:"lexical_score"`
	MatchType    MatchType `json:"match_type"`
}

// QueryEmbedder embeds the query text.
type QueryEmbedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// LexicalSearcher runs the ranked full-text half of hybrid retrieval.
type LexicalSearcher interface {
	LexicalSearch(ctx context.Context, query string, limit int, sourceID *uuid.UUID) ([]repository.LexicalHit, error)
}

// Coordinator fuses vector similarity with lexical ranking. When hybrid
// search fails it degrades to a fresh vector-only search and only errors if
// that fails too.
type Coordinator struct {
	embedder      QueryEmbedder
	vectors       vectorstore.Store
	lexical       LexicalSearcher
	vectorWeight  float64
	lexicalWeight float64
	logger        *slog.Logger
}

func NewCoordinator(embedder QueryEmbedder, vectors vectorstore.Store, lexical LexicalSearcher, vectorWeight, lexicalWeight float64, logger *slog.Logger) (*Coordinator, error) {
	if embedder == nil {
		return nil, errors.New("query embedder required")
	}
	if vectors == nil {
		return nil, errors.New("vector store required")
	}
	if math.Abs(vectorWeight+lexicalWeight-1.0) > 1e-9 {
		return nil, fmt.Errorf("fusion weights must sum to 1.0, got %.3f + %.3f", vectorWeight, lexicalWeight)
	}
	if vectorWeight < 0 || lexicalWeight < 0 {
		return nil, fmt.Errorf("fusion weights must be non-negative")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		embedder:      embedder,
		vectors:       vectors,
		lexical:       lexical,
		vectorWeight:  vectorWeight,
		lexicalWeight: lexicalWeight,
		logger:        logger,
	}, nil
}

// Search runs one query. sourceID, when non-nil, restricts results to a
// single source.
func (c *Coordinator) Search(ctx context.Context, query string, limit int, sourceID *uuid.UUID, mode Mode) ([]Result, error) {
	if limit <= 0 {
		limit = 10
	}

	switch mode {
	case ModeVector:
		return c.vectorSearch(ctx, query, limit, sourceID)
	case ModeHybrid:
		if c.lexical == nil {
			return nil, ErrLexicalUnavailable
		}
	case ModeAuto, "":
		if c.lexical == nil {
			return c.vectorSearch(ctx, query, limit, sourceID)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}

	results, err := c.hybridSearch(ctx, query, limit, sourceID)
	if err == nil {
		return results, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}

	c.logger.Warn("hybrid search failed, degrading to vector-only", "error", err)
	results, fallbackErr := c.vectorSearch(ctx, query, limit, sourceID)
	if fallbackErr != nil {
		return nil, errors.Join(err, fallbackErr)
	}
	return results, nil
}

func (c *Coordinator) vectorSearch(ctx context.Context, query string, limit int, sourceID *uuid.UUID) ([]Result, error) {
	matches, err := c.searchVectors(ctx, query, limit, sourceID)
	if err != nil {
		return nil, err
	}

	raw := make([]float64, len(matches))
	for i, m := range matches {
		raw[i] = float64(m.Score)
	}
	norm := minMaxNormalize(raw)

	results := make([]Result, len(matches))
	for i, m := range matches {
		results[i] = Result{
			ChunkID:     m.ID,
			DocumentID:  m.Payload.DocumentID,
			SourceID:    m.Payload.SourceID,
			Text:        m.Payload.TextPreview,
			Score:       norm[i],
			VectorScore: raw[i],
			MatchType:   MatchVector,
		}
	}
	return results, nil
}

func (c *Coordinator) hybridSearch(ctx context.Context, query string, limit int, sourceID *uuid.UUID) ([]Result, error) {
	candidates := limit * candidateMultiplier

	var vecMatches []vectorstore.Match
	var lexHits []repository.LexicalHit

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		vecMatches, err = c.searchVectors(gctx, query, candidates, sourceID)
		return err
	})
	g.Go(func() error {
		var err error
		lexHits, err = c.lexical.LexicalSearch(gctx, query, candidates, sourceID)
		if err != nil {
			return fmt.Errorf("lexical search failed: %w", err)
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	vecRaw := make([]float64, len(vecMatches))
	for i, m := range vecMatches {
		vecRaw[i] = float64(m.Score)
	}
	lexRaw := make([]float64, len(lexHits))
	for i, h := range lexHits {
		lexRaw[i] = h.Rank
	}

	vecNorm := minMaxNormalize(vecRaw)
	lexNorm := minMaxNormalize(lexRaw)
	if err := checkNormalized("vector", vecNorm); err != nil {
		return nil, err
	}
	if err := checkNormalized("lexical", lexNorm); err != nil {
		return nil, err
	}

	// Fuse by chunk id; a chunk absent from one signal contributes 0 for it.
	fused := make(map[uuid.UUID]*Result)
	for i, m := range vecMatches {
		fused[m.ID] = &Result{
			ChunkID:     m.ID,
			DocumentID:  m.Payload.DocumentID,
			SourceID:    m.Payload.SourceID,
			Text:        m.Payload.TextPreview,
			Score:       c.vectorWeight * vecNorm[i],
			VectorScore: vecRaw[i],
			MatchType:   MatchVector,
		}
	}
	for i, h := range lexHits {
		if r, ok := fused[h.ChunkID]; ok {
			r.Score += c.lexicalWeight * lexNorm[i]
			r.LexicalScore = lexRaw[i]
			r.MatchType = MatchBoth
			r.Text = h.Text
			continue
		}
		fused[h.ChunkID] = &Result{
			ChunkID:      h.ChunkID,
			DocumentID:   h.DocumentID,
			SourceID:     h.SourceID,
			Text:         h.Text,
			Score:        c.lexicalWeight * lexNorm[i],
			LexicalScore: lexRaw[i],
			MatchType:    MatchLexical,
		}
	}

	results := make([]Result, 0, len(fused))
	for _, r := range fused {
		results = append(results, *r)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID.String() < results[j].ChunkID.String()
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (c *Coordinator) searchVectors(ctx context.Context, query string, limit int, sourceID *uuid.UUID) ([]vectorstore.Match, error) {
	vec, err := c.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	var filter *vectorstore.Filter
	if sourceID != nil {
		filter = &vectorstore.Filter{SourceID: sourceID}
	}
	matches, err := c.vectors.Search(ctx, vec, limit, 0, filter)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	return matches, nil
}
