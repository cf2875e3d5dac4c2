package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync/atomic"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/Matanbitton/cheap-crawler/internal/common"
	"github.com/Matanbitton/cheap-crawler/internal/interfaces"
	"github.com/Matanbitton/cheap-crawler/internal/models"
)

var (
	// ErrInvalidRequest marks requests rejected before any crawl work
	// starts: missing or malformed URL, or a host the deployment
	// refuses to crawl.
	ErrInvalidRequest = errors.New("invalid scrape request")

	// ErrQueueFull is returned when all crawl slots are busy and the
	// admission queue has no room for another waiter.
	ErrQueueFull = errors.New("scrape queue is full")
)

var validate = validator.New()

// Service is the admission layer in front of the crawl engine. It
// validates and clamps incoming requests, bounds how many crawls run
// at once and how many may wait, and publishes lifecycle events.
type Service struct {
	config        common.ScraperConfig
	allowTestURLs bool
	engine        interfaces.CrawlerService
	events        interfaces.EventService
	logger        arbor.ILogger

	slots   chan struct{}
	waiting atomic.Int64
}

var _ interfaces.ScraperService = (*Service)(nil)

// NewService creates the admission layer. allowTestURLs permits
// localhost and private test hosts, which production deployments
// reject.
func NewService(cfg common.ScraperConfig, allowTestURLs bool, engine interfaces.CrawlerService, events interfaces.EventService, logger arbor.ILogger) *Service {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}
	return &Service{
		config:        cfg,
		allowTestURLs: allowTestURLs,
		engine:        engine,
		events:        events,
		logger:        logger,
		slots:         make(chan struct{}, cfg.MaxConcurrent),
	}
}

// ValidateRequest checks a request against the admission rules and
// returns the canonical seed URL with the clamped crawl options.
// Shared by the synchronous path and job creation so both enforce the
// same limits.
func (s *Service) ValidateRequest(req models.ScrapeRequest) (string, models.CrawlOptions, error) {
	seedURL, err := s.validateRequest(req)
	if err != nil {
		return "", models.CrawlOptions{}, err
	}
	return seedURL, s.clampOptions(req), nil
}

// Scrape validates req, waits for a crawl slot and runs the crawl to
// completion. The call blocks for the duration of the crawl; callers
// needing fire-and-forget semantics should submit a job instead.
func (s *Service) Scrape(ctx context.Context, req models.ScrapeRequest) (*models.CrawlResult, error) {
	seedURL, opts, err := s.ValidateRequest(req)
	if err != nil {
		return nil, err
	}

	release, err := s.admit(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	s.publish(ctx, interfaces.EventCrawlStarted, map[string]interface{}{
		"url":       seedURL,
		"max_pages": opts.MaxPages,
	})

	result, err := s.engine.Crawl(ctx, seedURL, opts)
	if err != nil {
		s.publish(ctx, interfaces.EventCrawlFailed, map[string]interface{}{
			"url":   seedURL,
			"error": err.Error(),
		})
		return nil, err
	}

	s.publish(ctx, interfaces.EventCrawlCompleted, map[string]interface{}{
		"url":        seedURL,
		"pages":      result.PagesScraped,
		"characters": result.CharacterCount,
		"truncated":  result.Truncated,
	})
	return result, nil
}

// Stats reports current admission pressure for health checks.
func (s *Service) Stats() interfaces.ScraperStats {
	return interfaces.ScraperStats{
		ActiveSessions:  len(s.slots),
		WaitingSessions: int(s.waiting.Load()),
		MaxConcurrent:   s.config.MaxConcurrent,
		QueueSize:       s.config.QueueSize,
	}
}

func (s *Service) validateRequest(req models.ScrapeRequest) (string, error) {
	if err := validate.Struct(req); err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidRequest, err.Error())
	}

	normalized, err := common.NormalizeURL(req.URL)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidRequest, err.Error())
	}

	if !s.allowTestURLs {
		parsed, err := url.Parse(normalized)
		if err != nil {
			return "", fmt.Errorf("%w: %s", ErrInvalidRequest, err.Error())
		}
		if common.IsTestHost(parsed.Hostname()) {
			return "", fmt.Errorf("%w: host %q is not crawlable in this environment", ErrInvalidRequest, parsed.Hostname())
		}
	}
	return normalized, nil
}

// clampOptions applies the request defaults and deployment ceilings:
// maxPages defaults when omitted and is clamped to [1, MaxPagesLimit],
// maxLength is clamped to [0, MaxLengthLimit] where 0 disables
// truncation.
func (s *Service) clampOptions(req models.ScrapeRequest) models.CrawlOptions {
	maxPages := req.MaxPages
	if maxPages <= 0 {
		maxPages = s.config.DefaultMaxPages
	}
	if maxPages < 1 {
		maxPages = 1
	}
	if maxPages > s.config.MaxPagesLimit {
		maxPages = s.config.MaxPagesLimit
	}

	maxLength := req.MaxLength
	if maxLength < 0 {
		maxLength = 0
	}
	if s.config.MaxLengthLimit > 0 && maxLength > s.config.MaxLengthLimit {
		maxLength = s.config.MaxLengthLimit
	}

	return models.CrawlOptions{MaxPages: maxPages, MaxLength: maxLength}
}

// admit takes a crawl slot, waiting in the admission queue when all
// slots are busy. It fails fast with ErrQueueFull once the queue is at
// capacity.
func (s *Service) admit(ctx context.Context) (func(), error) {
	select {
	case s.slots <- struct{}{}:
		return s.release, nil
	default:
	}

	if s.waiting.Add(1) > int64(s.config.QueueSize) {
		s.waiting.Add(-1)
		s.logger.Warn().
			Int("max_concurrent", s.config.MaxConcurrent).
			Int("queue_size", s.config.QueueSize).
			Msg("Scrape rejected, admission queue full")
		return nil, ErrQueueFull
	}
	defer s.waiting.Add(-1)

	select {
	case s.slots <- struct{}{}:
		return s.release, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Service) release() {
	<-s.slots
}

func (s *Service) publish(ctx context.Context, eventType interfaces.EventType, payload map[string]interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, interfaces.Event{Type: eventType, Payload: payload}); err != nil {
		s.logger.Warn().Err(err).Str("event", string(eventType)).Msg("Failed to publish event")
	}
}
