package embedding

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	embedFn func(ctx context.Context, texts []string) ([][]float32, error)
	dims    int
}

func (s *stubProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return s.embedFn(ctx, texts)
}

func (s *stubProvider) Model() string { return "stub-model" }

func (s *stubProvider) Dimensions() int {
	if s.dims == 0 {
		return 4
	}
	return s.dims
}

func unitVectors(n, dims int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, dims)
		v[0] = 1
		out[i] = v
	}
	return out
}

type mapCache struct {
	entries map[string][]float32
	puts    int
}

func newMapCache() *mapCache { return &mapCache{entries: map[string][]float32{}} }

func (c *mapCache) Get(_ context.Context, hash, model string) ([]float32, bool, error) {
	vec, ok := c.entries[hash+"|"+model]
	return vec, ok, nil
}

func (c *mapCache) Put(_ context.Context, hash, model string, vector []float32) error {
	c.entries[hash+"|"+model] = vector
	c.puts++
	return nil
}

func texts(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("chunk number %d", i)
	}
	return out
}

func TestEmbedBatchQuotaExhaustionHaltsRemainder(t *testing.T) {
	calls := 0
	provider := &stubProvider{
		embedFn: func(_ context.Context, in []string) ([][]float32, error) {
			calls++
			if calls == 1 {
				return unitVectors(len(in), 4), nil
			}
			return nil, fmt.Errorf("provider: %w", ErrRateLimited)
		},
	}

	p, err := NewBatchProcessor(provider, WithBatchSize(100))
	require.NoError(t, err)

	result, err := p.EmbedBatch(context.Background(), texts(150))
	require.NoError(t, err)

	assert.Equal(t, 100, result.SuccessCount(), "vectors obtained before exhaustion are kept")
	assert.Equal(t, 50, result.FailureCount())
	for _, f := range result.Failures {
		assert.Equal(t, ReasonQuotaExhausted, f.Reason)
		assert.GreaterOrEqual(t, f.Index, 100)
	}
	assert.Equal(t, 2, calls, "no provider calls after quota exhaustion")
}

func TestEmbedBatchRetriesTransientFailures(t *testing.T) {
	calls := 0
	provider := &stubProvider{
		embedFn: func(_ context.Context, in []string) ([][]float32, error) {
			calls++
			if calls < 3 {
				return nil, &APIError{StatusCode: 503, Body: "overloaded"}
			}
			return unitVectors(len(in), 4), nil
		},
	}

	p, err := NewBatchProcessor(provider, WithRetry(3, time.Millisecond))
	require.NoError(t, err)

	result, err := p.EmbedBatch(context.Background(), texts(5))
	require.NoError(t, err)
	assert.Equal(t, 5, result.SuccessCount())
	assert.Equal(t, 3, calls)
}

func TestEmbedBatchDoesNotRetryPermanentFailures(t *testing.T) {
	calls := 0
	provider := &stubProvider{
		embedFn: func(_ context.Context, _ []string) ([][]float32, error) {
			calls++
			return nil, &APIError{StatusCode: 400, Body: "bad request"}
		},
	}

	p, err := NewBatchProcessor(provider, WithRetry(3, time.Millisecond))
	require.NoError(t, err)

	result, err := p.EmbedBatch(context.Background(), texts(2))
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "permanent failures must not be retried")
	assert.Equal(t, 2, result.FailureCount())
	for _, f := range result.Failures {
		assert.Equal(t, ReasonAPIError, f.Reason)
	}
}

func TestEmbedBatchContinuesPastFailedSubBatch(t *testing.T) {
	calls := 0
	provider := &stubProvider{
		embedFn: func(_ context.Context, in []string) ([][]float32, error) {
			calls++
			if calls == 1 {
				return nil, &APIError{StatusCode: 400, Body: "bad request"}
			}
			return unitVectors(len(in), 4), nil
		},
	}

	p, err := NewBatchProcessor(provider, WithBatchSize(2), WithRetry(1, time.Millisecond))
	require.NoError(t, err)

	result, err := p.EmbedBatch(context.Background(), texts(6))
	require.NoError(t, err)

	// Unlike quota exhaustion, a plain API failure fails only its own
	// sub-batch; the remaining sub-batches still run.
	assert.Equal(t, 3, calls)
	assert.Equal(t, 4, result.SuccessCount())
	require.Equal(t, 2, result.FailureCount())
	for _, f := range result.Failures {
		assert.Equal(t, ReasonAPIError, f.Reason)
		assert.Less(t, f.Index, 2, "only the failed sub-batch's inputs are marked")
	}
	for _, s := range result.Successes {
		assert.GreaterOrEqual(t, s.Index, 2)
	}
}

func TestEmbedBatchRejectsInvalidVectors(t *testing.T) {
	provider := &stubProvider{
		embedFn: func(_ context.Context, in []string) ([][]float32, error) {
			out := unitVectors(len(in), 4)
			out[1] = []float32{0, 0, 0, 0}
			return out, nil
		},
	}

	p, err := NewBatchProcessor(provider)
	require.NoError(t, err)

	result, err := p.EmbedBatch(context.Background(), texts(3))
	require.NoError(t, err)
	assert.Equal(t, 2, result.SuccessCount())
	require.Equal(t, 1, result.FailureCount())
	assert.Equal(t, 1, result.Failures[0].Index)
	assert.Equal(t, ReasonInvalidVector, result.Failures[0].Reason)
}

func TestEmbedBatchSkipsBlankTexts(t *testing.T) {
	provider := &stubProvider{
		embedFn: func(_ context.Context, in []string) ([][]float32, error) {
			for _, text := range in {
				require.NotEmpty(t, text, "blank texts must never reach the provider")
			}
			return unitVectors(len(in), 4), nil
		},
	}

	p, err := NewBatchProcessor(provider)
	require.NoError(t, err)

	result, err := p.EmbedBatch(context.Background(), []string{"real text", "   ", ""})
	require.NoError(t, err)
	assert.Equal(t, 1, result.SuccessCount())
	assert.Equal(t, 2, result.FailureCount())
	for _, f := range result.Failures {
		assert.Equal(t, ReasonEmpty, f.Reason)
	}
}

func TestEmbedBatchUsesCache(t *testing.T) {
	calls := 0
	provider := &stubProvider{
		embedFn: func(_ context.Context, in []string) ([][]float32, error) {
			calls++
			return unitVectors(len(in), 4), nil
		},
	}
	cache := newMapCache()

	p, err := NewBatchProcessor(provider, WithCache(cache))
	require.NoError(t, err)

	first, err := p.EmbedBatch(context.Background(), []string{"hello world"})
	require.NoError(t, err)
	require.Equal(t, 1, first.SuccessCount())
	assert.Equal(t, 1, cache.puts)

	// Same content with different surrounding whitespace hits the cache.
	second, err := p.EmbedBatch(context.Background(), []string{"  Hello   World  "})
	require.NoError(t, err)
	assert.Equal(t, 1, second.SuccessCount())
	assert.Equal(t, 1, calls, "cache hit must not call the provider")
}

func TestEmbedBatchCancelledContext(t *testing.T) {
	provider := &stubProvider{
		embedFn: func(ctx context.Context, _ []string) ([][]float32, error) {
			return nil, ctx.Err()
		},
	}

	p, err := NewBatchProcessor(provider)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = p.EmbedBatch(ctx, texts(3))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEmbedOne(t *testing.T) {
	provider := &stubProvider{
		embedFn: func(_ context.Context, in []string) ([][]float32, error) {
			return unitVectors(len(in), 4), nil
		},
	}
	p, err := NewBatchProcessor(provider)
	require.NoError(t, err)

	vec, err := p.EmbedOne(context.Background(), "query text")
	require.NoError(t, err)
	assert.Len(t, vec, 4)

	_, err = p.EmbedOne(context.Background(), "   ")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoEmbedding)

	var noEmb *NoEmbeddingError
	require.ErrorAs(t, err, &noEmb)
	assert.Equal(t, ReasonEmpty, noEmb.Reason)
}

func TestValidateVector(t *testing.T) {
	assert.Error(t, ValidateVector(nil, 0))
	assert.Error(t, ValidateVector([]float32{0, 0, 0}, 0))
	assert.Error(t, ValidateVector([]float32{1, 2}, 3))
	assert.NoError(t, ValidateVector([]float32{0, 0.5, 0}, 3))
}

func TestContentHashNormalizes(t *testing.T) {
	assert.Equal(t, ContentHash("Hello  World"), ContentHash("  hello world\n"))
	assert.NotEqual(t, ContentHash("hello world"), ContentHash("hello worlds"))
}

func TestAPIErrorTransient(t *testing.T) {
	assert.True(t, (&APIError{StatusCode: 500}).Transient())
	assert.True(t, (&APIError{StatusCode: 503}).Transient())
	assert.False(t, (&APIError{StatusCode: 400}).Transient())
	assert.False(t, (&APIError{StatusCode: 429}).Transient())

	var target *APIError
	assert.True(t, errors.As(fmt.Errorf("wrap: %w", &APIError{StatusCode: 502}), &target))
}
