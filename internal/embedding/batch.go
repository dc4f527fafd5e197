package embedding

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"net"
	"sort"
	"strings"
	"time"
)

const (
	defaultBatchSize   = 100
	defaultMaxAttempts = 3
	defaultBaseDelay   = time.Second
)

// Cache stores computed embeddings keyed by (content hash, model). Lookups
// and writes are best-effort: a failing cache degrades performance, never
// correctness.
type Cache interface {
	Get(ctx context.Context, hash, model string) ([]float32, bool, error)
	Put(ctx context.Context, hash, model string, vector []float32) error
}

// BatchProcessor embeds batches of texts with content-hash caching and
// quota-safe partial-failure handling. Failures are reported as data, not
// errors: EmbedBatch only returns an error when the caller's context is
// cancelled or the result itself cannot be assembled.
type BatchProcessor struct {
	provider    Provider
	cache       Cache
	batchSize   int
	maxAttempts int
	baseDelay   time.Duration
	logger      *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithCache enables content-hash caching.
func WithCache(cache Cache) BatchOption {
	return func(p *BatchProcessor) { p.cache = cache }
}

// WithBatchSize sets the maximum number of texts per provider call.
// Default is 100.
func WithBatchSize(size int) BatchOption {
	return func(p *BatchProcessor) {
		if size > 0 {
			p.batchSize = size
		}
	}
}

// WithRetry sets the transient-failure retry policy per sub-batch.
func WithRetry(maxAttempts int, baseDelay time.Duration) BatchOption {
	return func(p *BatchProcessor) {
		if maxAttempts > 0 {
			p.maxAttempts = maxAttempts
		}
		if baseDelay > 0 {
			p.baseDelay = baseDelay
		}
	}
}

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) BatchOption {
	return func(p *BatchProcessor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func NewBatchProcessor(provider Provider, opts ...BatchOption) (*BatchProcessor, error) {
	if provider == nil {
		return nil, errors.New("embedding provider required")
	}
	p := &BatchProcessor{
		provider:    provider,
		batchSize:   defaultBatchSize,
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

type pendingText struct {
	index int
	text  string
	hash  string
}

// EmbedBatch embeds texts and reports per-input successes and failures.
// Once the provider signals quota exhaustion, no further provider calls are
// made and every remaining input fails with reason "quota_exhausted";
// vectors already obtained are kept.
func (p *BatchProcessor) EmbedBatch(ctx context.Context, texts []string) (Result, error) {
	var successes []Success
	var failures []Failure

	model := p.provider.Model()
	dims := p.provider.Dimensions()

	var queue []pendingText
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			failures = append(failures, Failure{Index: i, Reason: ReasonEmpty})
			continue
		}
		hash := ContentHash(text)
		if vec, ok := p.cacheGet(ctx, hash, model, dims); ok {
			successes = append(successes, Success{Index: i, Vector: vec})
			continue
		}
		queue = append(queue, pendingText{index: i, text: text, hash: hash})
	}

	quotaExhausted := false
	for start := 0; start < len(queue); start += p.batchSize {
		end := start + p.batchSize
		if end > len(queue) {
			end = len(queue)
		}
		sub := queue[start:end]

		if quotaExhausted {
			for _, pt := range sub {
				failures = append(failures, Failure{Index: pt.index, Reason: ReasonQuotaExhausted})
			}
			continue
		}

		subTexts := make([]string, len(sub))
		for i, pt := range sub {
			subTexts[i] = pt.text
		}

		vectors, err := p.embedWithRetry(ctx, subTexts)
		if err != nil {
			if errors.Is(err, ErrRateLimited) {
				// Quota exhaustion halts processing; everything from here on
				// fails, prior successes stand.
				p.logger.Warn("embedding quota exhausted, halting batch",
					"remaining", len(queue)-start)
				quotaExhausted = true
				for _, pt := range sub {
					failures = append(failures, Failure{Index: pt.index, Reason: ReasonQuotaExhausted})
				}
				continue
			}
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			p.logger.Error("embedding sub-batch failed", "size", len(sub), "error", err)
			for _, pt := range sub {
				failures = append(failures, Failure{Index: pt.index, Reason: ReasonAPIError})
			}
			continue
		}

		for i, vec := range vectors {
			pt := sub[i]
			if err := ValidateVector(vec, dims); err != nil {
				p.logger.Warn("provider returned invalid vector", "index", pt.index, "error", err)
				failures = append(failures, Failure{Index: pt.index, Reason: ReasonInvalidVector})
				continue
			}
			successes = append(successes, Success{Index: pt.index, Vector: vec})
			p.cachePut(ctx, pt.hash, model, vec)
		}
	}

	sort.Slice(successes, func(i, j int) bool { return successes[i].Index < successes[j].Index })
	sort.Slice(failures, func(i, j int) bool { return failures[i].Index < failures[j].Index })

	return NewResult(len(texts), successes, failures)
}

// EmbedOne embeds a single text through the same cache and retry logic.
// It returns either a valid vector or ErrNoEmbedding, never a zero vector.
func (p *BatchProcessor) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	result, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if result.SuccessCount() == 0 {
		reason := ReasonAPIError
		if result.FailureCount() > 0 {
			reason = result.Failures[0].Reason
		}
		return nil, &NoEmbeddingError{Reason: reason}
	}
	return result.Successes[0].Vector, nil
}

// NoEmbeddingError carries the failure reason for a single-text embed.
type NoEmbeddingError struct {
	Reason FailureReason
}

func (e *NoEmbeddingError) Error() string {
	return "no embedding produced: " + string(e.Reason)
}

func (e *NoEmbeddingError) Unwrap() error {
	return ErrNoEmbedding
}

// embedWithRetry calls the provider, retrying transient failures with
// exponential backoff plus jitter. Quota exhaustion and permanent failures
// return immediately.
func (p *BatchProcessor) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		vectors, err := p.provider.Embed(ctx, texts)
		if err == nil {
			if len(vectors) != len(texts) {
				return nil, errors.New("provider returned wrong vector count")
			}
			return vectors, nil
		}
		lastErr = err

		if errors.Is(err, ErrRateLimited) || !isTransient(err) || ctx.Err() != nil {
			return nil, err
		}
		if attempt == p.maxAttempts {
			break
		}

		delay := p.baseDelay << (attempt - 1)
		delay += time.Duration(rand.Int63n(int64(delay)/2 + 1))
		p.logger.Debug("transient embedding failure, retrying",
			"attempt", attempt, "delay", delay, "error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, lastErr
}

func isTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}

func (p *BatchProcessor) cacheGet(ctx context.Context, hash, model string, dims int) ([]float32, bool) {
	if p.cache == nil {
		return nil, false
	}
	vec, ok, err := p.cache.Get(ctx, hash, model)
	if err != nil {
		p.logger.Debug("embedding cache lookup failed", "error", err)
		return nil, false
	}
	if !ok || ValidateVector(vec, dims) != nil {
		return nil, false
	}
	return vec, true
}

func (p *BatchProcessor) cachePut(ctx context.Context, hash, model string, vec []float32) {
	if p.cache == nil {
		return
	}
	if err := p.cache.Put(ctx, hash, model, vec); err != nil {
		p.logger.Debug("embedding cache write failed", "error", err)
	}
}
