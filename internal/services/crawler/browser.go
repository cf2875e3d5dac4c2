package crawler

import (
	"context"
	"fmt"

	"github.com/chromedp/chromedp"

	"github.com/Matanbitton/cheap-crawler/internal/common"
)

// stealthJS masks the usual headless-automation fingerprints before any
// page script runs. Injected into every tab prior to navigation.
const stealthJS = `
	Object.defineProperty(navigator, 'webdriver', { get: () => undefined, configurable: true });
	Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5], configurable: true });
	Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'], configurable: true });
	if (!window.chrome) { window.chrome = {}; }
	window.chrome.runtime = {};
	Object.defineProperty(screen, 'width', { get: () => 1920 });
	Object.defineProperty(screen, 'height', { get: () => 1080 });
	Object.defineProperty(screen, 'availWidth', { get: () => 1920 });
	Object.defineProperty(screen, 'availHeight', { get: () => 1040 });
	Object.defineProperty(screen, 'colorDepth', { get: () => 24 });
	Object.defineProperty(screen, 'pixelDepth', { get: () => 24 });
`

// Browser wraps a single Chrome instance dedicated to one crawl session.
// Tabs created via NewTab share the process but are isolated browsing
// contexts; closing the Browser tears the whole process down.
type Browser struct {
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
}

// LaunchBrowser starts a Chrome instance with the configured stealth
// flags. The instance inherits cancellation from ctx, so an abandoned
// session cannot leak a browser process.
func LaunchBrowser(ctx context.Context, cfg common.CrawlerConfig) (*Browser, error) {
	allocatorOpts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.UserAgent(cfg.UserAgent),
	}
	if cfg.Headless {
		allocatorOpts = append(allocatorOpts, chromedp.Headless)
	} else {
		allocatorOpts = append(allocatorOpts, chromedp.Flag("start-maximized", true))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocatorOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Run with no actions forces the process to start now, so a launch
	// failure surfaces here instead of on the first page fetch.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	return &Browser{
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
	}, nil
}

// NewTab opens an isolated page context in this browser. The returned
// cancel func closes the tab and must be called on every exit path.
func (b *Browser) NewTab() (context.Context, context.CancelFunc) {
	return chromedp.NewContext(b.browserCtx)
}

// Close shuts the browser down. Best effort: chromedp cleans up the
// process when the contexts are cancelled.
func (b *Browser) Close() {
	b.browserCancel()
	b.allocCancel()
}
