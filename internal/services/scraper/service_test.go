package scraper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/Matanbitton/cheap-crawler/internal/common"
	"github.com/Matanbitton/cheap-crawler/internal/interfaces"
	"github.com/Matanbitton/cheap-crawler/internal/models"
)

// stubEngine records what the admission layer forwards and can block
// to simulate long crawls.
type stubEngine struct {
	mu    sync.Mutex
	seeds []string
	opts  []models.CrawlOptions

	result *models.CrawlResult
	err    error
	block  chan struct{}
}

func (e *stubEngine) Crawl(ctx context.Context, seedURL string, opts models.CrawlOptions) (*models.CrawlResult, error) {
	e.mu.Lock()
	e.seeds = append(e.seeds, seedURL)
	e.opts = append(e.opts, opts)
	e.mu.Unlock()

	if e.block != nil {
		select {
		case <-e.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if e.err != nil {
		return nil, e.err
	}
	if e.result != nil {
		return e.result, nil
	}
	return &models.CrawlResult{Text: "ok", PagesScraped: 1, URLs: []string{seedURL}}, nil
}

func (e *stubEngine) FetchPage(ctx context.Context, pageURL string) (*models.PageRecord, error) {
	return nil, errors.New("not supported")
}

func (e *stubEngine) lastOpts(t *testing.T) models.CrawlOptions {
	t.Helper()
	e.mu.Lock()
	defer e.mu.Unlock()
	require.NotEmpty(t, e.opts)
	return e.opts[len(e.opts)-1]
}

type recordingEvents struct {
	mu    sync.Mutex
	types []interfaces.EventType
}

func (r *recordingEvents) Subscribe(interfaces.EventType, interfaces.EventHandler) error { return nil }

func (r *recordingEvents) Publish(_ context.Context, e interfaces.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, e.Type)
	return nil
}

func (r *recordingEvents) PublishSync(ctx context.Context, e interfaces.Event) error {
	return r.Publish(ctx, e)
}

func (r *recordingEvents) Close() error { return nil }

func (r *recordingEvents) seen() []interfaces.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]interfaces.EventType(nil), r.types...)
}

func newScraper(engine *stubEngine, events interfaces.EventService) *Service {
	cfg := common.NewDefaultConfig().Scraper
	return NewService(cfg, true, engine, events, arbor.NewLogger())
}

func TestScrape_ForwardsNormalizedRequest(t *testing.T) {
	engine := &stubEngine{}
	svc := newScraper(engine, nil)

	result, err := svc.Scrape(context.Background(), models.ScrapeRequest{
		URL:      "https://example.com/docs",
		MaxPages: 5,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.PagesScraped)
	assert.Equal(t, []string{"https://example.com/docs"}, engine.seeds)
	assert.Equal(t, models.CrawlOptions{MaxPages: 5, MaxLength: 0}, engine.lastOpts(t))
}

func TestScrape_ClampsOptions(t *testing.T) {
	tests := []struct {
		name      string
		maxPages  int
		maxLength int
		want      models.CrawlOptions
	}{
		{"defaults max pages when omitted", 0, 0, models.CrawlOptions{MaxPages: 10}},
		{"defaults max pages when negative", -7, 0, models.CrawlOptions{MaxPages: 10}},
		{"caps max pages at the limit", 500, 0, models.CrawlOptions{MaxPages: 50}},
		{"keeps max pages in range", 37, 0, models.CrawlOptions{MaxPages: 37}},
		{"caps max length at the limit", 10, 5_000_000, models.CrawlOptions{MaxPages: 10, MaxLength: 100_000}},
		{"negative max length disables truncation", 10, -1, models.CrawlOptions{MaxPages: 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &stubEngine{}
			svc := newScraper(engine, nil)

			_, err := svc.Scrape(context.Background(), models.ScrapeRequest{
				URL:       "https://example.com/",
				MaxPages:  tt.maxPages,
				MaxLength: tt.maxLength,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, engine.lastOpts(t))
		})
	}
}

func TestScrape_RejectsInvalidRequests(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"empty url", ""},
		{"not a url", "not a url"},
		{"unsupported scheme", "ftp://example.com/files"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &stubEngine{}
			svc := newScraper(engine, nil)

			_, err := svc.Scrape(context.Background(), models.ScrapeRequest{URL: tt.url})
			require.ErrorIs(t, err, ErrInvalidRequest)
			assert.Empty(t, engine.seeds)
		})
	}
}

func TestScrape_TestHostPolicy(t *testing.T) {
	engine := &stubEngine{}
	cfg := common.NewDefaultConfig().Scraper

	production := NewService(cfg, false, engine, nil, arbor.NewLogger())
	_, err := production.Scrape(context.Background(), models.ScrapeRequest{URL: "http://localhost:8080/"})
	require.ErrorIs(t, err, ErrInvalidRequest)
	assert.Empty(t, engine.seeds)

	local := NewService(cfg, true, engine, nil, arbor.NewLogger())
	_, err = local.Scrape(context.Background(), models.ScrapeRequest{URL: "http://localhost:8080/"})
	require.NoError(t, err)
	assert.Equal(t, []string{"http://localhost:8080/"}, engine.seeds)
}

func TestScrape_QueueFullRejectsImmediately(t *testing.T) {
	engine := &stubEngine{block: make(chan struct{})}
	cfg := common.NewDefaultConfig().Scraper
	cfg.MaxConcurrent = 1
	cfg.QueueSize = 1
	svc := NewService(cfg, true, engine, nil, arbor.NewLogger())

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, results[i] = svc.Scrape(context.Background(), models.ScrapeRequest{URL: "https://example.com/"})
		}()

		// First request must hold the slot, second must be queued,
		// before the overflow request fires.
		want := interfaces.ScraperStats{ActiveSessions: 1, WaitingSessions: i, MaxConcurrent: 1, QueueSize: 1}
		require.Eventually(t, func() bool { return svc.Stats() == want }, 2*time.Second, 5*time.Millisecond)
	}

	_, err := svc.Scrape(context.Background(), models.ScrapeRequest{URL: "https://example.com/"})
	require.ErrorIs(t, err, ErrQueueFull)

	close(engine.block)
	wg.Wait()
	for _, err := range results {
		assert.NoError(t, err)
	}
	assert.Equal(t, interfaces.ScraperStats{MaxConcurrent: 1, QueueSize: 1}, svc.Stats())
}

func TestScrape_QueuedRequestHonorsCancellation(t *testing.T) {
	engine := &stubEngine{block: make(chan struct{})}
	defer close(engine.block)

	cfg := common.NewDefaultConfig().Scraper
	cfg.MaxConcurrent = 1
	cfg.QueueSize = 2
	svc := NewService(cfg, true, engine, nil, arbor.NewLogger())

	go func() {
		_, _ = svc.Scrape(context.Background(), models.ScrapeRequest{URL: "https://example.com/"})
	}()
	require.Eventually(t, func() bool { return svc.Stats().ActiveSessions == 1 }, 2*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := svc.Scrape(ctx, models.ScrapeRequest{URL: "https://example.com/queued"})
		errCh <- err
	}()
	require.Eventually(t, func() bool { return svc.Stats().WaitingSessions == 1 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
	require.Eventually(t, func() bool { return svc.Stats().WaitingSessions == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestScrape_PublishesLifecycleEvents(t *testing.T) {
	events := &recordingEvents{}
	svc := newScraper(&stubEngine{}, events)

	_, err := svc.Scrape(context.Background(), models.ScrapeRequest{URL: "https://example.com/"})
	require.NoError(t, err)
	assert.Equal(t, []interfaces.EventType{interfaces.EventCrawlStarted, interfaces.EventCrawlCompleted}, events.seen())

	failing := &stubEngine{err: errors.New("browser exploded")}
	events = &recordingEvents{}
	svc = newScraper(failing, events)

	_, err = svc.Scrape(context.Background(), models.ScrapeRequest{URL: "https://example.com/"})
	require.Error(t, err)
	assert.Equal(t, []interfaces.EventType{interfaces.EventCrawlStarted, interfaces.EventCrawlFailed}, events.seen())
}
