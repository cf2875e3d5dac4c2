package interfaces

import (
	"context"

	"github.com/Matanbitton/cheap-crawler/internal/models"
)

// ScraperStats reports admission control state for health checks
type ScraperStats struct {
	ActiveSessions  int `json:"active_sessions"`
	WaitingSessions int `json:"waiting_sessions"`
	MaxConcurrent   int `json:"max_concurrent"`
	QueueSize       int `json:"queue_size"`
}

// ScraperService validates, clamps and admits scrape requests before
// handing them to the crawler
type ScraperService interface {
	// Scrape runs a crawl synchronously under admission control.
	Scrape(ctx context.Context, req models.ScrapeRequest) (*models.CrawlResult, error)

	// ValidateRequest applies the admission rules and limit clamps
	// without running anything, returning the canonical seed URL and
	// the effective options. Used when turning requests into jobs.
	ValidateRequest(req models.ScrapeRequest) (string, models.CrawlOptions, error)

	Stats() ScraperStats
}
