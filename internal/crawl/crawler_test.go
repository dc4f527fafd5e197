package crawl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexora/atlas/internal/ingest"
	"github.com/lexora/atlas/internal/model"
)

type stubFetcher struct {
	mu    sync.Mutex
	pages map[string]*Page
	fails map[string]int
	calls []string
}

func (f *stubFetcher) Fetch(_ context.Context, pageURL string) (*Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, pageURL)
	if f.fails[pageURL] > 0 {
		f.fails[pageURL]--
		return nil, errors.New("fetch failed")
	}
	page, ok := f.pages[pageURL]
	if !ok {
		return nil, fmt.Errorf("no such page %q", pageURL)
	}
	return page, nil
}

func (f *stubFetcher) fetchCount(pageURL string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, u := range f.calls {
		if u == pageURL {
			n++
		}
	}
	return n
}

type memJobStore struct {
	mu      sync.Mutex
	updates int
}

func (s *memJobStore) Create(_ context.Context, job *model.CrawlJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	return nil
}

func (s *memJobStore) Update(_ context.Context, _ *model.CrawlJob) error {
	s.mu.Lock()
	s.updates++
	s.mu.Unlock()
	return nil
}

type stubIngestor struct {
	mu       sync.Mutex
	requests []ingest.Request
	err      error
}

func (s *stubIngestor) Ingest(_ context.Context, req ingest.Request) (*ingest.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	return &ingest.Result{DocumentID: uuid.New(), ChunksStored: 1}, nil
}

// interlinkedSite builds a seed page linking to n inner pages which all link
// back to the seed and to each other.
func interlinkedSite(n int) map[string]*Page {
	seed := "https://example.com/"
	var inner []string
	for i := 0; i < n; i++ {
		inner = append(inner, fmt.Sprintf("https://example.com/page-%d", i))
	}

	pages := map[string]*Page{
		seed: {URL: seed, Title: "Example Home", Text: "home page text", Links: inner},
	}
	for i, u := range inner {
		links := append([]string{seed}, inner...)
		pages[u] = &Page{URL: u, Title: fmt.Sprintf("Page %d", i), Text: fmt.Sprintf("text of page %d", i), Links: links}
	}
	return pages
}

func newTestCrawler(t *testing.T, fetcher Fetcher, jobs JobStore, ing DocumentIngestor, opts ...Option) *Crawler {
	t.Helper()
	base := []Option{
		WithFetchDelay(0),
		WithRetry(1, time.Millisecond),
		WithLogger(slog.New(slog.DiscardHandler)),
	}
	c, err := NewCrawler(fetcher, jobs, ing, append(base, opts...)...)
	require.NoError(t, err)
	return c
}

func TestCrawlStopsAtMaxPagesWithoutDuplicates(t *testing.T) {
	fetcher := &stubFetcher{pages: interlinkedSite(20)}
	jobs := &memJobStore{}
	ing := &stubIngestor{}
	c := newTestCrawler(t, fetcher, jobs, ing)

	job, err := c.CrawlWebsite(context.Background(), uuid.New(), "https://example.com/", 5, true)
	require.NoError(t, err)

	assert.Equal(t, model.CrawlJobStatusCompleted, job.Status)
	assert.Equal(t, 5, job.PagesCrawled, "crawl must stop exactly at the page cap")
	assert.Equal(t, 0, job.ErrorCount)

	seen := map[string]int{}
	for _, u := range fetcher.calls {
		seen[u]++
	}
	assert.Len(t, fetcher.calls, 5)
	for u, n := range seen {
		assert.Equal(t, 1, n, "url %s fetched more than once", u)
	}

	require.Len(t, ing.requests, 1, "all pages feed a single ingestion")
	content := string(ing.requests[0].Content)
	assert.Equal(t, 5, strings.Count(content, "URL: "), "concatenated content carries one header per page")
	assert.Equal(t, job.ID.String(), ing.requests[0].Metadata["crawl_job_id"])
}

func TestCrawlNonRecursiveFetchesSeedOnly(t *testing.T) {
	fetcher := &stubFetcher{pages: interlinkedSite(5)}
	c := newTestCrawler(t, fetcher, &memJobStore{}, &stubIngestor{})

	job, err := c.CrawlWebsite(context.Background(), uuid.New(), "https://example.com/", 10, false)
	require.NoError(t, err)

	assert.Equal(t, model.CrawlJobStatusCompleted, job.Status)
	assert.Equal(t, 1, job.PagesCrawled)
	assert.Len(t, fetcher.calls, 1)
}

func TestCrawlRetriesFailedPages(t *testing.T) {
	seed := "https://example.com/"
	fetcher := &stubFetcher{
		pages: map[string]*Page{seed: {URL: seed, Title: "Home", Text: "text"}},
		fails: map[string]int{seed: 2},
	}
	c := newTestCrawler(t, fetcher, &memJobStore{}, &stubIngestor{},
		WithRetry(3, time.Millisecond))

	job, err := c.CrawlWebsite(context.Background(), uuid.New(), seed, 5, false)
	require.NoError(t, err)

	assert.Equal(t, model.CrawlJobStatusCompleted, job.Status)
	assert.Equal(t, 3, fetcher.fetchCount(seed), "two failures then one success")
	assert.Equal(t, 0, job.ErrorCount, "a page that eventually succeeds is not an error")
}

func TestCrawlFailsWhenNoPageFetches(t *testing.T) {
	seed := "https://example.com/"
	fetcher := &stubFetcher{pages: map[string]*Page{}}
	ing := &stubIngestor{}
	c := newTestCrawler(t, fetcher, &memJobStore{}, ing)

	job, err := c.CrawlWebsite(context.Background(), uuid.New(), seed, 5, false)
	require.NoError(t, err)

	assert.Equal(t, model.CrawlJobStatusFailed, job.Status)
	assert.Equal(t, 1, job.ErrorCount)
	assert.Empty(t, ing.requests, "nothing to ingest when every fetch fails")
}

func TestCrawlFailedPageIsRecordedNotFatal(t *testing.T) {
	seed := "https://example.com/"
	good := "https://example.com/good"
	bad := "https://example.com/bad"
	fetcher := &stubFetcher{
		pages: map[string]*Page{
			seed: {URL: seed, Title: "Home", Text: "home", Links: []string{good, bad}},
			good: {URL: good, Title: "Good", Text: "good page"},
		},
	}
	c := newTestCrawler(t, fetcher, &memJobStore{}, &stubIngestor{})

	job, err := c.CrawlWebsite(context.Background(), uuid.New(), seed, 10, true)
	require.NoError(t, err)

	assert.Equal(t, model.CrawlJobStatusCompleted, job.Status)
	assert.Equal(t, 2, job.PagesCrawled)
	assert.Equal(t, 1, job.ErrorCount)
}

func TestCrawlStaysOnRegistrableDomain(t *testing.T) {
	seed := "https://example.com/"
	sub := "https://docs.example.com/guide"
	external := "https://other.org/page"
	fetcher := &stubFetcher{
		pages: map[string]*Page{
			seed: {URL: seed, Title: "Home", Text: "home", Links: []string{sub, external}},
			sub:  {URL: sub, Title: "Docs", Text: "docs"},
		},
	}
	c := newTestCrawler(t, fetcher, &memJobStore{}, &stubIngestor{})

	job, err := c.CrawlWebsite(context.Background(), uuid.New(), seed, 10, true)
	require.NoError(t, err)

	assert.Equal(t, 2, job.PagesCrawled, "subdomains crawl, external domains do not")
	assert.Equal(t, 0, fetcher.fetchCount(external))
}

func TestCrawlRespectsMaxDepth(t *testing.T) {
	seed := "https://example.com/"
	l1 := "https://example.com/level1"
	l2 := "https://example.com/level2"
	fetcher := &stubFetcher{
		pages: map[string]*Page{
			seed: {URL: seed, Title: "Home", Text: "home", Links: []string{l1}},
			l1:   {URL: l1, Title: "L1", Text: "one", Links: []string{l2}},
			l2:   {URL: l2, Title: "L2", Text: "two"},
		},
	}
	c := newTestCrawler(t, fetcher, &memJobStore{}, &stubIngestor{}, WithMaxDepth(1))

	job, err := c.CrawlWebsite(context.Background(), uuid.New(), seed, 10, true)
	require.NoError(t, err)

	assert.Equal(t, 2, job.PagesCrawled, "depth 2 is beyond the cap")
	assert.Equal(t, 0, fetcher.fetchCount(l2))
}

func TestCrawlCancellation(t *testing.T) {
	fetcher := &stubFetcher{pages: interlinkedSite(20)}
	c := newTestCrawler(t, fetcher, &memJobStore{}, &stubIngestor{})

	ctx, cancel := context.WithCancel(context.Background())
	job, err := c.NewJob(ctx, uuid.New(), "https://example.com/", 20, true)
	require.NoError(t, err)

	cancel()
	c.Run(ctx, job, true)

	assert.Equal(t, model.CrawlJobStatusCancelled, job.Status)
}

// blockingFetcher parks every Fetch call until release is closed, so a test
// can cancel the crawl while a fetch is in flight.
type blockingFetcher struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
	mu      sync.Mutex
	calls   int
}

func (f *blockingFetcher) Fetch(context.Context, string) (*Page, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	f.once.Do(func() { close(f.started) })
	<-f.release
	return nil, errors.New("fetch failed")
}

func TestCrawlCancellationSkipsRetriesAndErrorCount(t *testing.T) {
	fetcher := &blockingFetcher{started: make(chan struct{}), release: make(chan struct{})}
	c := newTestCrawler(t, fetcher, &memJobStore{}, &stubIngestor{},
		WithRetry(3, time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	job, err := c.NewJob(ctx, uuid.New(), "https://example.com/", 5, false)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		c.Run(ctx, job, false)
		close(done)
	}()

	<-fetcher.started
	cancel()
	close(fetcher.release)
	<-done

	assert.Equal(t, model.CrawlJobStatusCancelled, job.Status)
	assert.Equal(t, 1, fetcher.calls, "no retry attempt once the crawl is cancelled")
	assert.Equal(t, 0, job.ErrorCount, "a page skipped by cancellation is not a page error")
}

func TestNewJobValidatesSeedURL(t *testing.T) {
	c := newTestCrawler(t, &stubFetcher{pages: map[string]*Page{}}, &memJobStore{}, &stubIngestor{})

	_, err := c.NewJob(context.Background(), uuid.New(), "ftp://example.com/", 5, false)
	assert.Error(t, err)

	job, err := c.NewJob(context.Background(), uuid.New(), "https://example.com/", 0, false)
	require.NoError(t, err)
	assert.Equal(t, 10, job.MaxPages, "zero max pages takes the default")
	assert.Equal(t, model.CrawlJobStatusPending, job.Status)
}
