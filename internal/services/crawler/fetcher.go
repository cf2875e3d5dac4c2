package crawler

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/Matanbitton/cheap-crawler/internal/common"
	"github.com/Matanbitton/cheap-crawler/internal/models"
)

// PageFetcher renders pages in isolated tabs of a session's browser and
// extracts their content. A fetch failure is reported to the caller but
// never aborts the session; the tab is closed on every exit path.
type PageFetcher struct {
	browser         *Browser
	baseHost        *url.URL
	cfg             common.CrawlerConfig
	logger          arbor.ILogger
	includeMarkdown bool
	converter       *md.Converter
}

// NewPageFetcher creates a fetcher bound to one browser and crawl base
// host. When includeMarkdown is set, each record also carries a
// markdown rendering of the page HTML.
func NewPageFetcher(browser *Browser, baseHost *url.URL, cfg common.CrawlerConfig, logger arbor.ILogger, includeMarkdown bool) *PageFetcher {
	return &PageFetcher{
		browser:         browser,
		baseHost:        baseHost,
		cfg:             cfg,
		logger:          logger,
		includeMarkdown: includeMarkdown,
		converter:       md.NewConverter("", true, nil),
	}
}

// Fetch navigates an isolated tab to pageURL, waits for the DOM plus a
// settle delay for client-side rendering, and extracts the page record.
func (f *PageFetcher) Fetch(ctx context.Context, pageURL string) (*models.PageRecord, error) {
	tabCtx, closeTab := f.browser.NewTab()
	defer closeTab()

	navCtx, cancel := context.WithTimeout(tabCtx, f.cfg.NavigationTimeout)
	defer cancel()

	// Propagate caller cancellation into the chromedp context chain.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	start := time.Now()

	var (
		location string
		title    string
		bodyText string
		html     string
	)

	err := chromedp.Run(navCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealthJS).Do(ctx)
			return err
		}),
		chromedp.EmulateViewport(1920, 1080),
		chromedp.Navigate(pageURL),
		waitForDocumentReady(),
		chromedp.Sleep(f.cfg.SettleDelay),
		chromedp.Location(&location),
		chromedp.Title(&title),
		chromedp.Evaluate(`document.body ? (document.body.innerText || document.body.textContent || '') : ''`, &bodyText),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		f.logger.Warn().
			Err(err).
			Str("url", pageURL).
			Dur("duration", time.Since(start)).
			Msg("Page fetch failed")
		return nil, fmt.Errorf("failed to render %s: %w", pageURL, err)
	}

	record, err := f.buildRecord(pageURL, location, title, bodyText, html)
	if err != nil {
		f.logger.Warn().
			Err(err).
			Str("url", pageURL).
			Msg("Page extraction failed")
		return nil, err
	}

	f.logger.Debug().
		Str("url", record.URL).
		Str("title", record.Title).
		Int("links", len(record.Links)).
		Int("paragraphs", len(record.Paragraphs)).
		Dur("duration", time.Since(start)).
		Msg("Page fetched")

	return record, nil
}

// buildRecord turns the rendered page into a PageRecord. Split from
// Fetch so extraction is exercised in tests without a browser.
func (f *PageFetcher) buildRecord(requestedURL, location, title, bodyText, html string) (*models.PageRecord, error) {
	finalURL := location
	if finalURL == "" || finalURL == "about:blank" {
		finalURL = requestedURL
	}

	canonical, err := common.NormalizeURL(finalURL)
	if err != nil {
		canonical, err = common.NormalizeURL(requestedURL)
		if err != nil {
			return nil, fmt.Errorf("invalid page URL %q: %w", requestedURL, err)
		}
	}

	pageParsed, err := url.Parse(canonical)
	if err != nil {
		return nil, fmt.Errorf("invalid page URL %q: %w", canonical, err)
	}

	doc, err := parseDocument(html)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML for %s: %w", canonical, err)
	}

	record := &models.PageRecord{
		URL:        canonical,
		Title:      strings.Join(strings.Fields(title), " "),
		Content:    CleanText(collapseHorizontalWhitespace(bodyText)),
		Headings:   extractHeadings(doc),
		Paragraphs: extractParagraphs(doc),
		Links:      extractLinks(doc, pageParsed, f.baseHost),
		CrawledAt:  time.Now(),
	}

	if f.cfg.ExtractEmails {
		record.Emails = extractEmails(bodyText)
	}

	if f.includeMarkdown {
		markdown, err := f.converter.ConvertString(html)
		if err != nil {
			f.logger.Warn().Err(err).Str("url", canonical).Msg("Markdown conversion failed")
		} else {
			record.Markdown = markdown
		}
	}

	return record, nil
}

// waitForDocumentReady polls document.readyState until the DOM is at
// least interactive, the chromedp equivalent of waiting for
// DOMContentLoaded.
func waitForDocumentReady() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		for {
			var state string
			if err := chromedp.Evaluate(`document.readyState`, &state).Do(ctx); err != nil {
				return err
			}
			if state == "interactive" || state == "complete" {
				return nil
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(100 * time.Millisecond):
			}
		}
	})
}
