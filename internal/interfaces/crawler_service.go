package interfaces

import (
	"context"

	"github.com/Matanbitton/cheap-crawler/internal/models"
)

// CrawlerService is the crawl engine. A crawl launches one headless
// browser, walks same-host links breadth-first from the seed, and
// aggregates the collected pages into a single result.
type CrawlerService interface {
	// Crawl fetches up to opts.MaxPages pages starting at seedURL.
	Crawl(ctx context.Context, seedURL string, opts models.CrawlOptions) (*models.CrawlResult, error)

	// FetchPage fetches a single page without following links.
	// The page content is rendered as markdown.
	FetchPage(ctx context.Context, pageURL string) (*models.PageRecord, error)
}
