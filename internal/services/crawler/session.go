package crawler

import (
	"context"

	"github.com/ternarybob/arbor"
	"golang.org/x/sync/errgroup"

	"github.com/Matanbitton/cheap-crawler/internal/models"
)

// pageFetcher is the per-page dependency of a session. Satisfied by
// PageFetcher in production and by stubs in tests.
type pageFetcher interface {
	Fetch(ctx context.Context, pageURL string) (*models.PageRecord, error)
}

// session owns the frontier state of one crawl invocation: the pending
// URL queue, the visited and queued sets, and the collected records.
// It is not safe for concurrent use from multiple goroutines; all
// mutation happens between fetch batches, and a dispatched batch fully
// completes before its results are applied. Sessions are never shared
// or reused across invocations.
type session struct {
	maxPages int
	width    int

	fetcher pageFetcher
	logger  arbor.ILogger

	frontier  []string
	visited   map[string]bool
	queued    map[string]bool
	collected []*models.PageRecord
	emails    []string
	emailSeen map[string]bool

	// Called after each applied batch with the collected page count and
	// remaining frontier size. Optional.
	onProgress func(collected, frontier int)
}

func newSession(seedURL string, maxPages, width int, fetcher pageFetcher, logger arbor.ILogger) *session {
	if width < 1 {
		width = 1
	}
	return &session{
		maxPages:  maxPages,
		width:     width,
		fetcher:   fetcher,
		logger:    logger,
		frontier:  []string{seedURL},
		visited:   make(map[string]bool),
		queued:    map[string]bool{seedURL: true},
		emailSeen: make(map[string]bool),
	}
}

// run drives fetch batches until the frontier empties, the page budget
// is reached, or the context is cancelled.
func (s *session) run(ctx context.Context) error {
	for len(s.frontier) > 0 && len(s.collected) < s.maxPages {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch := s.nextBatch()
		if len(batch) == 0 {
			break
		}

		for _, record := range s.fetchBatch(ctx, batch) {
			if record == nil {
				continue
			}
			s.apply(record)
		}

		if s.onProgress != nil {
			s.onProgress(len(s.collected), len(s.frontier))
		}
	}

	return ctx.Err()
}

// nextBatch pulls up to width unvisited URLs off the frontier, stopping
// early once collected plus in-flight pages would reach the budget.
// Each pulled URL is marked visited before dispatch so it can never be
// re-enqueued while its own fetch is in flight.
func (s *session) nextBatch() []string {
	var batch []string

	for len(batch) < s.width && len(s.frontier) > 0 && len(s.collected)+len(batch) < s.maxPages {
		pageURL := s.frontier[0]
		s.frontier = s.frontier[1:]
		delete(s.queued, pageURL)

		if s.visited[pageURL] {
			continue
		}

		s.visited[pageURL] = true
		batch = append(batch, pageURL)
	}

	return batch
}

// fetchBatch dispatches all fetches concurrently and waits for the
// whole batch. Failed fetches yield nil entries; their URLs stay
// visited and are not retried.
func (s *session) fetchBatch(ctx context.Context, urls []string) []*models.PageRecord {
	results := make([]*models.PageRecord, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	for i, pageURL := range urls {
		g.Go(func() error {
			record, err := s.fetcher.Fetch(gctx, pageURL)
			if err != nil {
				s.logger.Debug().Err(err).Str("url", pageURL).Msg("Skipping failed page")
				return nil
			}
			results[i] = record
			return nil
		})
	}

	// Workers swallow fetch failures, so Wait cannot return an error.
	_ = g.Wait()

	return results
}

// apply appends a successful record, merges its emails and enqueues its
// outbound links while the page budget allows. The budget counts
// collected pages plus URLs already sitting in the frontier.
func (s *session) apply(record *models.PageRecord) {
	s.collected = append(s.collected, record)

	for _, email := range record.Emails {
		if s.emailSeen[email] {
			continue
		}
		s.emailSeen[email] = true
		s.emails = append(s.emails, email)
	}

	for _, link := range record.Links {
		if len(s.collected)+len(s.queued) >= s.maxPages {
			break
		}
		if s.visited[link] || s.queued[link] {
			continue
		}
		s.queued[link] = true
		s.frontier = append(s.frontier, link)
	}
}
