package segment

import (
	"context"
	"fmt"
	"regexp"
	"runtime"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/panjf2000/ants/v2"
)

// charsPerToken is the heuristic used when a single sentence exceeds the
// chunk size and must be split on character boundaries.
const charsPerToken = 4

var (
	// A sentence ends at ./!/? followed by whitespace and a capital.
	sentenceEndRe = regexp.MustCompile(`[.!?]+(\s+)\p{Lu}`)
	// Blank lines are paragraph breaks and always end a sentence.
	paragraphRe = regexp.MustCompile(`\n[ \t]*\n\s*`)
)

// Chunk is one token-bounded span of the input text. Text is always a
// contiguous substring of the source; StartOffset/EndOffset are byte offsets
// into it.
type Chunk struct {
	Index       int
	Text        string
	TokenCount  int
	StartOffset int
	EndOffset   int
}

// Segmenter splits raw text into overlapping, token-bounded chunks along
// sentence boundaries. Token counting is offloaded to a worker pool so large
// documents do not stall callers.
type Segmenter struct {
	chunkSize int
	overlap   int
	counter   TokenCounter
	pool      *ants.Pool
}

func NewSegmenter(chunkSize, overlap int, counter TokenCounter) (*Segmenter, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, fmt.Errorf("overlap %d must be in [0, %d)", overlap, chunkSize)
	}
	if counter == nil {
		return nil, fmt.Errorf("token counter required")
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create token counting pool: %w", err)
	}

	return &Segmenter{
		chunkSize: chunkSize,
		overlap:   overlap,
		counter:   counter,
		pool:      pool,
	}, nil
}

// Close releases the token counting pool.
func (s *Segmenter) Close() {
	s.pool.Release()
}

type span struct {
	start  int
	end    int
	tokens int
}

// Segment splits text into chunks of at most chunkSize tokens, each chunk
// carrying up to overlap tokens of trailing context from its predecessor.
// Empty or whitespace-only input yields no chunks.
func (s *Segmenter) Segment(ctx context.Context, text string) ([]Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	sents := splitSentences(text)
	if err := s.countTokens(ctx, text, sents); err != nil {
		return nil, err
	}
	sents = s.forceSplitOversized(text, sents)

	var chunks []Chunk
	var cur []span
	curTokens := 0

	flush := func() {
		if len(cur) == 0 {
			return
		}
		start, end := cur[0].start, cur[len(cur)-1].end
		chunks = append(chunks, Chunk{
			Index:       len(chunks),
			Text:        text[start:end],
			TokenCount:  curTokens,
			StartOffset: start,
			EndOffset:   end,
		})
	}

	for _, sent := range sents {
		if curTokens+sent.tokens > s.chunkSize && len(cur) > 0 {
			flush()

			// Walk backward from the boundary to carry up to overlap
			// tokens of trailing context into the next chunk.
			var keep []span
			keepTokens := 0
			for j := len(cur) - 1; j >= 0; j-- {
				if keepTokens+cur[j].tokens > s.overlap {
					break
				}
				keep = append([]span{cur[j]}, keep...)
				keepTokens += cur[j].tokens
			}
			// The carried context must leave room for the sentence that
			// triggered the boundary.
			for len(keep) > 0 && keepTokens+sent.tokens > s.chunkSize {
				keepTokens -= keep[0].tokens
				keep = keep[1:]
			}
			cur, curTokens = keep, keepTokens
		}
		cur = append(cur, sent)
		curTokens += sent.tokens
	}
	flush()

	return chunks, nil
}

// splitSentences locates sentence spans. When no sentence boundary exists it
// falls back to paragraph breaks, and finally to the whole text as a single
// pseudo-sentence.
func splitSentences(text string) []span {
	type cut struct{ end, next int }
	var cuts []cut
	for _, m := range sentenceEndRe.FindAllStringSubmatchIndex(text, -1) {
		cuts = append(cuts, cut{end: m[2], next: m[3]})
	}
	for _, m := range paragraphRe.FindAllStringIndex(text, -1) {
		cuts = append(cuts, cut{end: m[0], next: m[1]})
	}
	sortCuts := func(a, b cut) bool { return a.end < b.end }
	for i := 1; i < len(cuts); i++ {
		for j := i; j > 0 && sortCuts(cuts[j], cuts[j-1]); j-- {
			cuts[j], cuts[j-1] = cuts[j-1], cuts[j]
		}
	}

	var sents []span
	start := 0
	for _, c := range cuts {
		if c.end <= start {
			continue
		}
		if sp, ok := trimSpan(text, start, c.end); ok {
			sents = append(sents, sp)
		}
		start = c.next
	}
	if sp, ok := trimSpan(text, start, len(text)); ok {
		sents = append(sents, sp)
	}
	return sents
}

// trimSpan narrows [start,end) to exclude surrounding whitespace.
func trimSpan(text string, start, end int) (span, bool) {
	for start < end {
		r, size := utf8.DecodeRuneInString(text[start:end])
		if !isSpace(r) {
			break
		}
		start += size
	}
	for end > start {
		r, size := utf8.DecodeLastRuneInString(text[start:end])
		if !isSpace(r) {
			break
		}
		end -= size
	}
	if start >= end {
		return span{}, false
	}
	return span{start: start, end: end}, true
}

func isSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

// countTokens fills in token counts for all spans using the worker pool.
func (s *Segmenter) countTokens(ctx context.Context, text string, sents []span) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var wg sync.WaitGroup
	for i := range sents {
		i := i
		wg.Add(1)
		err := s.pool.Submit(func() {
			defer wg.Done()
			sents[i].tokens = s.counter.Count(text[sents[i].start:sents[i].end])
		})
		if err != nil {
			// Pool saturated or released: count inline.
			sents[i].tokens = s.counter.Count(text[sents[i].start:sents[i].end])
			wg.Done()
		}
	}
	wg.Wait()

	return ctx.Err()
}

// forceSplitOversized splits any single sentence longer than chunkSize into
// character-bounded pieces so chunking always terminates.
func (s *Segmenter) forceSplitOversized(text string, sents []span) []span {
	maxChars := s.chunkSize * charsPerToken
	out := make([]span, 0, len(sents))
	for _, sent := range sents {
		if sent.tokens <= s.chunkSize {
			out = append(out, sent)
			continue
		}
		start := sent.start
		for start < sent.end {
			end := start
			chars := 0
			for end < sent.end && chars < maxChars {
				_, size := utf8.DecodeRuneInString(text[end:sent.end])
				end += size
				chars++
			}
			piece := span{start: start, end: end}
			piece.tokens = s.counter.Count(text[start:end])
			out = append(out, piece)
			start = end
		}
	}
	return out
}
