package crawl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/lexora/atlas/internal/ingest"
	"github.com/lexora/atlas/internal/model"
)

const (
	defaultConcurrency    = 3
	defaultFetchDelay     = 2500 * time.Millisecond
	defaultMaxDepth       = 3
	defaultMaxPages       = 10
	defaultFetchAttempts  = 3
	defaultRetryBaseDelay = 2 * time.Second
)

// JobStore persists crawl jobs and their in-place progress updates.
type JobStore interface {
	Create(ctx context.Context, job *model.CrawlJob) error
	Update(ctx context.Context, job *model.CrawlJob) error
}

// DocumentIngestor receives the concatenated crawl output.
type DocumentIngestor interface {
	Ingest(ctx context.Context, req ingest.Request) (*ingest.Result, error)
}

// Crawler performs bounded-concurrency breadth-first crawls. Each fetcher
// slot stands for a non-trivial rendering resource, so at most concurrency
// fetches are ever in flight.
type Crawler struct {
	fetcher        Fetcher
	jobs           JobStore
	ingestor       DocumentIngestor
	concurrency    int64
	fetchDelay     time.Duration
	maxDepth       int
	fetchAttempts  int
	retryBaseDelay time.Duration
	logger         *slog.Logger
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithConcurrency bounds simultaneous page fetches. Default is 3.
func WithConcurrency(n int) Option {
	return func(c *Crawler) {
		if n > 0 {
			c.concurrency = int64(n)
		}
	}
}

// WithFetchDelay sets the pause after each successful fetch. Default 2.5s.
func WithFetchDelay(d time.Duration) Option {
	return func(c *Crawler) {
		if d >= 0 {
			c.fetchDelay = d
		}
	}
}

// WithMaxDepth caps recursive traversal depth. Default is 3.
func WithMaxDepth(depth int) Option {
	return func(c *Crawler) {
		if depth >= 0 {
			c.maxDepth = depth
		}
	}
}

// WithRetry sets the per-page fetch retry policy.
func WithRetry(attempts int, baseDelay time.Duration) Option {
	return func(c *Crawler) {
		if attempts > 0 {
			c.fetchAttempts = attempts
		}
		if baseDelay > 0 {
			c.retryBaseDelay = baseDelay
		}
	}
}

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Crawler) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewCrawler(fetcher Fetcher, jobs JobStore, ingestor DocumentIngestor, opts ...Option) (*Crawler, error) {
	if fetcher == nil {
		return nil, errors.New("fetcher required")
	}
	if jobs == nil {
		return nil, errors.New("job store required")
	}
	if ingestor == nil {
		return nil, errors.New("ingestor required")
	}
	c := &Crawler{
		fetcher:        fetcher,
		jobs:           jobs,
		ingestor:       ingestor,
		concurrency:    defaultConcurrency,
		fetchDelay:     defaultFetchDelay,
		maxDepth:       defaultMaxDepth,
		fetchAttempts:  defaultFetchAttempts,
		retryBaseDelay: defaultRetryBaseDelay,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewJob validates the request and persists a pending crawl job.
func (c *Crawler) NewJob(ctx context.Context, sourceID uuid.UUID, seedURL string, maxPages int, recursive bool) (*model.CrawlJob, error) {
	if _, err := NormalizeURL(seedURL); err != nil {
		return nil, err
	}
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}
	depth := 0
	if recursive {
		depth = c.maxDepth
	}

	job := &model.CrawlJob{
		SourceID: sourceID,
		SeedURL:  seedURL,
		Status:   model.CrawlJobStatusPending,
		MaxPages: maxPages,
		MaxDepth: depth,
	}
	if err := c.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create crawl job: %w", err)
	}
	return job, nil
}

// CrawlWebsite runs a complete crawl synchronously: job creation, traversal,
// and ingestion of the concatenated pages. The returned job carries the
// outcome; the error is non-nil only when the job could not even be created.
func (c *Crawler) CrawlWebsite(ctx context.Context, sourceID uuid.UUID, seedURL string, maxPages int, recursive bool) (*model.CrawlJob, error) {
	job, err := c.NewJob(ctx, sourceID, seedURL, maxPages, recursive)
	if err != nil {
		return nil, err
	}
	c.Run(ctx, job, recursive)
	return job, nil
}

type target struct {
	url   string
	depth int
}

type fetchOutcome struct {
	page *Page
	err  error
}

// Run executes a pending job to a terminal state. Cancelling ctx lets
// in-flight fetches finish, schedules nothing new, and marks the job
// cancelled.
func (c *Crawler) Run(ctx context.Context, job *model.CrawlJob, recursive bool) {
	if err := job.Transition(model.CrawlJobStatusRunning); err != nil {
		c.logger.Error("cannot start crawl job", "job_id", job.ID, "error", err)
		return
	}
	c.persist(job)

	pages := c.traverse(ctx, job, recursive)

	if ctx.Err() != nil {
		c.finish(job, model.CrawlJobStatusCancelled, "")
		return
	}
	if len(pages) == 0 {
		c.finish(job, model.CrawlJobStatusFailed, "no pages could be fetched")
		return
	}

	var sb strings.Builder
	for _, p := range pages {
		sb.WriteString("URL: ")
		sb.WriteString(p.URL)
		sb.WriteString("\n\n")
		sb.WriteString(p.Text)
		sb.WriteString("\n\n")
	}
	title := pages[0].Title
	if title == "" {
		title = job.SeedURL
	}

	_, err := c.ingestor.Ingest(ctx, ingest.Request{
		SourceID:     job.SourceID,
		Title:        title,
		DeclaredType: "text/plain",
		OriginURL:    job.SeedURL,
		Content:      []byte(sb.String()),
		Metadata: model.JSONMap{
			"crawl_job_id":  job.ID.String(),
			"pages_crawled": job.PagesCrawled,
		},
	})
	if err != nil {
		var consistency *ingest.ConsistencyError
		if errors.As(err, &consistency) {
			// Stored but flagged; the crawl itself succeeded.
			c.logger.Warn("crawl ingestion needs reconciliation",
				"job_id", job.ID, "document_id", consistency.DocumentID)
			c.finish(job, model.CrawlJobStatusCompleted, "")
			return
		}
		c.finish(job, model.CrawlJobStatusFailed, err.Error())
		return
	}

	c.finish(job, model.CrawlJobStatusCompleted, "")
}

// traverse walks the site breadth-first. Every URL at depth D is enqueued
// before any URL at depth D+1 is fetched; completion order within one depth
// is unordered across the fetch pool.
func (c *Crawler) traverse(ctx context.Context, job *model.CrawlJob, recursive bool) []*Page {
	sem := semaphore.NewWeighted(c.concurrency)

	visited := make(map[string]bool)
	seedNorm, _ := NormalizeURL(job.SeedURL)
	visited[seedNorm] = true

	var mu sync.Mutex // guards job counters and pages
	var pages []*Page
	discoveredTotal := 1 // queued + crawled, capped at 2×MaxPages

	level := []target{{url: job.SeedURL, depth: 0}}
	job.PagesTotal = 1

	for len(level) > 0 && job.PagesCrawled < job.MaxPages && ctx.Err() == nil {
		job.CurrentDepth = level[0].depth
		c.persist(job)

		var links []string
		i := 0
		for i < len(level) && job.PagesCrawled < job.MaxPages && ctx.Err() == nil {
			n := job.MaxPages - job.PagesCrawled
			if rest := len(level) - i; rest < n {
				n = rest
			}
			wave := level[i : i+n]
			i += n

			outcomes := c.fetchWave(ctx, sem, wave, func(out fetchOutcome) {
				mu.Lock()
				defer mu.Unlock()
				switch {
				case isContextErr(out.err):
					// Cancelled before the page was attempted; not a page
					// error.
				case out.err != nil:
					job.ErrorCount++
				default:
					job.PagesCrawled++
					pages = append(pages, out.page)
				}
				c.persist(job)
			})
			for j, out := range outcomes {
				if isContextErr(out.err) {
					continue
				}
				if out.err != nil {
					c.logger.Warn("page fetch failed after retries",
						"job_id", job.ID, "url", wave[j].url, "error", out.err)
					continue
				}
				links = append(links, out.page.Links...)
			}
		}

		var next []target
		nextDepth := level[0].depth + 1
		if recursive && nextDepth <= job.MaxDepth {
			for _, link := range links {
				if discoveredTotal >= 2*job.MaxPages {
					break
				}
				norm, err := NormalizeURL(link)
				if err != nil || visited[norm] {
					continue
				}
				if !SameRegistrableDomain(job.SeedURL, link) {
					continue
				}
				visited[norm] = true
				discoveredTotal++
				next = append(next, target{url: link, depth: nextDepth})
			}
		}
		level = next

		job.PagesTotal = job.PagesCrawled + len(level)
		c.persist(job)
	}

	return pages
}

// fetchWave fetches one bounded wave of targets. onDone runs once per page
// under the caller's lock discipline so progress persists after every page.
func (c *Crawler) fetchWave(ctx context.Context, sem *semaphore.Weighted, wave []target, onDone func(fetchOutcome)) []fetchOutcome {
	outcomes := make([]fetchOutcome, len(wave))
	var wg sync.WaitGroup
	for i, t := range wave {
		wg.Add(1)
		go func(i int, t target) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				outcomes[i] = fetchOutcome{err: err}
				return
			}
			defer sem.Release(1)

			page, err := c.fetchWithRetry(ctx, t.url)
			outcomes[i] = fetchOutcome{page: page, err: err}
			onDone(outcomes[i])

			if err == nil && c.fetchDelay > 0 {
				timer := time.NewTimer(c.fetchDelay)
				select {
				case <-ctx.Done():
					timer.Stop()
				case <-timer.C:
				}
			}
		}(i, t)
	}
	wg.Wait()
	return outcomes
}

// fetchWithRetry retries one page with exponential backoff (2s, 4s, 8s by
// default). A page that keeps failing is an error entry, never a crawl
// abort. The fetch itself runs detached so an in-flight attempt may finish
// after cancellation, but no further attempt is scheduled once ctx is done.
func (c *Crawler) fetchWithRetry(ctx context.Context, pageURL string) (*Page, error) {
	fetchCtx := context.WithoutCancel(ctx)

	var lastErr error
	for attempt := 1; attempt <= c.fetchAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := c.fetcher.Fetch(fetchCtx, pageURL)
		if err == nil {
			return page, nil
		}
		lastErr = err
		if attempt == c.fetchAttempts {
			break
		}

		delay := c.retryBaseDelay << (attempt - 1)
		c.logger.Debug("retrying page fetch", "url", pageURL, "attempt", attempt, "delay", delay)
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

// isContextErr reports whether err is cancellation rather than a page
// failure. The distinction keeps ErrorCount a count of pages that actually
// failed, not of work the crawler skipped on shutdown.
func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (c *Crawler) finish(job *model.CrawlJob, status model.CrawlJobStatus, errMsg string) {
	job.ErrorMessage = errMsg
	if err := job.Transition(status); err != nil {
		c.logger.Error("invalid crawl job transition", "job_id", job.ID, "error", err)
		return
	}
	c.persist(job)
}

// persist writes progress with a detached context so updates survive caller
// cancellation.
func (c *Crawler) persist(job *model.CrawlJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.jobs.Update(ctx, job); err != nil {
		c.logger.Error("failed to persist crawl progress", "job_id", job.ID, "error", err)
	}
}
