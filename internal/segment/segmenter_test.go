package segment

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wordCounter counts whitespace-separated words so tests stay independent of
// any real BPE vocabulary.
type wordCounter struct{}

func (wordCounter) Count(text string) int {
	return len(strings.Fields(text))
}

func newTestSegmenter(t *testing.T, chunkSize, overlap int) *Segmenter {
	t.Helper()
	s, err := NewSegmenter(chunkSize, overlap, wordCounter{})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestNewSegmenterValidation(t *testing.T) {
	_, err := NewSegmenter(0, 0, wordCounter{})
	assert.Error(t, err)

	_, err = NewSegmenter(100, 100, wordCounter{})
	assert.Error(t, err)

	_, err = NewSegmenter(100, -1, wordCounter{})
	assert.Error(t, err)

	_, err = NewSegmenter(100, 10, nil)
	assert.Error(t, err)
}

func TestSegmentEmptyInput(t *testing.T) {
	s := newTestSegmenter(t, 100, 10)

	chunks, err := s.Segment(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, chunks)

	chunks, err = s.Segment(context.Background(), "   \n\t  ")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSegmentRespectsChunkSizeAndOverlap(t *testing.T) {
	// 200 sentences of five words each: 1000 words total.
	var b strings.Builder
	for i := 0; i < 200; i++ {
		b.WriteString("Alpha beta gamma delta epsilon. ")
	}
	text := b.String()

	s := newTestSegmenter(t, 100, 10)
	chunks, err := s.Segment(context.Background(), text)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	for i, c := range chunks {
		assert.Equal(t, i, c.Index, "chunk indexes must be sequential from zero")
		assert.LessOrEqual(t, c.TokenCount, 100, "chunk %d exceeds the token budget", i)
		assert.Equal(t, text[c.StartOffset:c.EndOffset], c.Text,
			"chunk %d text must be a contiguous substring at its offsets", i)
	}

	// With a ten-token overlap each chunk must start inside its predecessor.
	for i := 1; i < len(chunks); i++ {
		assert.Less(t, chunks[i].StartOffset, chunks[i-1].EndOffset,
			"chunk %d does not overlap its predecessor", i)
	}
}

func TestSegmentZeroOverlap(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 50; i++ {
		b.WriteString("One two three four five. ")
	}
	s := newTestSegmenter(t, 20, 0)

	chunks, err := s.Segment(context.Background(), b.String())
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for i := 1; i < len(chunks); i++ {
		assert.GreaterOrEqual(t, chunks[i].StartOffset, chunks[i-1].EndOffset)
	}
}

func TestSegmentForceSplitsOversizedSentence(t *testing.T) {
	// One giant "sentence" with no boundary at all.
	text := strings.Repeat("word ", 500)
	s := newTestSegmenter(t, 50, 5)

	chunks, err := s.Segment(context.Background(), text)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1, "oversized sentence must be force split")

	for _, c := range chunks {
		assert.Equal(t, text[c.StartOffset:c.EndOffset], c.Text)
	}
}

func TestSegmentParagraphBoundaries(t *testing.T) {
	text := "first paragraph without terminal punctuation\n\nsecond paragraph here\n\nthird one"
	s := newTestSegmenter(t, 5, 0)

	chunks, err := s.Segment(context.Background(), text)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 2, "paragraph breaks must act as boundaries")
}

func TestSegmentSingleShortInput(t *testing.T) {
	s := newTestSegmenter(t, 100, 10)

	chunks, err := s.Segment(context.Background(), "Just a handful of words here.")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, "Just a handful of words here.", chunks[0].Text)
	assert.Equal(t, 6, chunks[0].TokenCount)
}

func TestSegmentCancelledContext(t *testing.T) {
	s := newTestSegmenter(t, 100, 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Segment(ctx, "Some text. More text.")
	assert.ErrorIs(t, err, context.Canceled)
}
