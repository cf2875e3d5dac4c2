package crawler

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/Matanbitton/cheap-crawler/internal/common"
	"github.com/Matanbitton/cheap-crawler/internal/interfaces"
	"github.com/Matanbitton/cheap-crawler/internal/models"
)

// Service runs same-host crawl sessions. Each session owns a dedicated
// browser process whose launch is gated by the shared launch limiter;
// the browser is closed and the slot released on every exit path.
type Service struct {
	config  common.CrawlerConfig
	limiter *LaunchLimiter
	events  interfaces.EventService
	logger  arbor.ILogger

	// Swappable in tests so sessions run against stub fetchers instead
	// of a real Chrome process.
	launch     func(ctx context.Context, cfg common.CrawlerConfig) (*Browser, error)
	newFetcher func(browser *Browser, baseHost *url.URL, includeMarkdown bool) pageFetcher
}

var _ interfaces.CrawlerService = (*Service)(nil)

// NewService creates the crawl engine. The events service is optional;
// when present, progress events are published after each fetch batch.
func NewService(cfg common.CrawlerConfig, limiter *LaunchLimiter, events interfaces.EventService, logger arbor.ILogger) *Service {
	s := &Service{
		config:  cfg,
		limiter: limiter,
		events:  events,
		logger:  logger,
	}
	s.launch = LaunchBrowser
	s.newFetcher = func(browser *Browser, baseHost *url.URL, includeMarkdown bool) pageFetcher {
		return NewPageFetcher(browser, baseHost, cfg, logger, includeMarkdown)
	}
	return s
}

// Crawl visits up to opts.MaxPages same-host pages starting from
// seedURL and aggregates their cleaned content into a single result.
// Individual page failures are skipped; only seed validation, browser
// launch failure and context cancellation abort the crawl.
func (s *Service) Crawl(ctx context.Context, seedURL string, opts models.CrawlOptions) (*models.CrawlResult, error) {
	seed, baseHost, err := s.resolveTarget(seedURL)
	if err != nil {
		return nil, err
	}

	maxPages := opts.MaxPages
	if maxPages < 1 {
		maxPages = 1
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("waiting for browser slot: %w", err)
	}

	browser, err := s.launch(ctx, s.config)
	if err != nil {
		s.limiter.Release()
		return nil, fmt.Errorf("launching browser: %w", err)
	}
	defer func() {
		browser.Close()
		s.limiter.Release()
	}()

	s.logger.Info().
		Str("url", seed).
		Int("max_pages", maxPages).
		Int("width", s.config.ConcurrencyWidth).
		Msg("Crawl started")
	start := time.Now()

	sess := newSession(seed, maxPages, s.config.ConcurrencyWidth, s.newFetcher(browser, baseHost, false), s.logger)
	sess.onProgress = func(collected, frontier int) {
		s.publishProgress(ctx, seed, collected, frontier)
	}

	if err := sess.run(ctx); err != nil {
		return nil, fmt.Errorf("crawl interrupted: %w", err)
	}

	result := Aggregate(sess.collected, sess.emails, opts.MaxLength)

	s.logger.Info().
		Str("url", seed).
		Int("pages", result.PagesScraped).
		Int("characters", result.CharacterCount).
		Dur("duration", time.Since(start)).
		Msg("Crawl completed")

	return result, nil
}

// FetchPage renders a single page and returns its record including a
// markdown rendering of the HTML. It holds a browser slot for the
// duration of the fetch.
func (s *Service) FetchPage(ctx context.Context, pageURL string) (*models.PageRecord, error) {
	target, baseHost, err := s.resolveTarget(pageURL)
	if err != nil {
		return nil, err
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("waiting for browser slot: %w", err)
	}

	browser, err := s.launch(ctx, s.config)
	if err != nil {
		s.limiter.Release()
		return nil, fmt.Errorf("launching browser: %w", err)
	}
	defer func() {
		browser.Close()
		s.limiter.Release()
	}()

	record, err := s.newFetcher(browser, baseHost, true).Fetch(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", target, err)
	}
	return record, nil
}

// Limiter exposes launch slot usage for health reporting.
func (s *Service) Limiter() *LaunchLimiter {
	return s.limiter
}

func (s *Service) resolveTarget(raw string) (string, *url.URL, error) {
	normalized, err := common.NormalizeURL(raw)
	if err != nil {
		return "", nil, fmt.Errorf("invalid url %q: %w", raw, err)
	}
	baseHost, err := url.Parse(normalized)
	if err != nil {
		return "", nil, fmt.Errorf("invalid url %q: %w", raw, err)
	}
	return normalized, baseHost, nil
}

func (s *Service) publishProgress(ctx context.Context, seed string, collected, frontier int) {
	if s.events == nil {
		return
	}
	event := interfaces.Event{
		Type: interfaces.EventCrawlProgress,
		Payload: map[string]interface{}{
			"url":            seed,
			"pages_scraped":  collected,
			"frontier_size":  frontier,
			"browsers_inuse": s.limiter.InUse(),
		},
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to publish crawl progress")
	}
}
