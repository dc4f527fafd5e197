package crawl

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/lexora/atlas/internal/model"
)

// Manager runs crawls in the background and tracks their cancellation
// handles. Job state itself lives in the JobStore; the manager only holds
// what cannot be persisted.
type Manager struct {
	crawler *Crawler

	mu      sync.Mutex
	cancels map[uuid.UUID]context.CancelFunc
}

func NewManager(crawler *Crawler) *Manager {
	return &Manager{
		crawler: crawler,
		cancels: make(map[uuid.UUID]context.CancelFunc),
	}
}

// Start creates a pending job and launches the crawl asynchronously,
// detached from the request context.
func (m *Manager) Start(ctx context.Context, sourceID uuid.UUID, seedURL string, maxPages int, recursive bool) (*model.CrawlJob, error) {
	job, err := m.crawler.NewJob(ctx, sourceID, seedURL, maxPages, recursive)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.mu.Lock()
	m.cancels[job.ID] = cancel
	m.mu.Unlock()

	go func() {
		defer func() {
			m.mu.Lock()
			delete(m.cancels, job.ID)
			m.mu.Unlock()
			cancel()
		}()
		m.crawler.Run(runCtx, job, recursive)
	}()

	return job, nil
}

// Cancel requests cancellation of a running crawl. It reports whether a
// running job was found.
func (m *Manager) Cancel(jobID uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	cancel, ok := m.cancels[jobID]
	if ok {
		cancel()
	}
	return ok
}
