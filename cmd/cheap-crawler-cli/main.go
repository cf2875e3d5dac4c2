// Command cheap-crawler-cli runs a one-shot crawl from the command line
// without starting the HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	arbormodels "github.com/ternarybob/arbor/models"

	"github.com/Matanbitton/cheap-crawler/internal/common"
	"github.com/Matanbitton/cheap-crawler/internal/models"
	"github.com/Matanbitton/cheap-crawler/internal/services/crawler"
)

var (
	maxPages    = flag.Int("pages", 10, "Maximum number of pages to crawl, including the start page")
	maxLength   = flag.Int("max-length", 0, "Truncate aggregated text to this many characters (0 = no limit)")
	timeout     = flag.Duration("timeout", 5*time.Minute, "Overall crawl timeout")
	preview     = flag.Int("preview", 0, "Print the first N characters of the collected text")
	logLevel    = flag.String("log-level", "warn", "Log verbosity: trace, debug, info, warn, error")
	showVersion = flag.Bool("version", false, "Print version information")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <url>\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Crawls same-host pages starting from <url> and prints a summary.\n")
		fmt.Fprintf(os.Stderr, "When <url> is omitted the first entry of CRAWLER_START_URLS is used.\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Printf("Cheap Crawler CLI version %s\n", common.GetVersion())
		os.Exit(0)
	}

	target := flag.Arg(0)
	if target == "" {
		if startURLs := os.Getenv("CRAWLER_START_URLS"); startURLs != "" {
			target = strings.TrimSpace(strings.Split(startURLs, ",")[0])
		}
	}
	if target == "" {
		flag.Usage()
		os.Exit(2)
	}

	logger := arbor.NewLogger().
		WithConsoleWriter(arbormodels.WriterConfiguration{
			Type:       arbormodels.LogWriterTypeConsole,
			TimeFormat: "15:04:05",
			TextOutput: true,
		}).
		WithLevelFromString(*logLevel)

	cfg := common.NewDefaultConfig()

	limiter := crawler.NewLaunchLimiter(cfg.Crawler.MaxBrowsers)
	engine := crawler.NewService(cfg.Crawler, limiter, nil, logger)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	start := time.Now()
	result, err := engine.Crawl(ctx, target, models.CrawlOptions{
		MaxPages:  *maxPages,
		MaxLength: *maxLength,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "crawl failed: %v\n", err)
		os.Exit(1)
	}

	printResult(result, time.Since(start))

	if *preview > 0 {
		text := result.Text
		if len(text) > *preview {
			text = text[:*preview] + "..."
		}
		fmt.Println()
		fmt.Println(text)
	}
}

func printResult(result *models.CrawlResult, elapsed time.Duration) {
	fmt.Printf("Pages scraped:   %d\n", result.PagesScraped)
	fmt.Printf("Characters:      %d\n", result.CharacterCount)
	fmt.Printf("Token estimate:  %d\n", result.TokenEstimate)
	if result.Truncated {
		fmt.Printf("Truncated from:  %d characters\n", result.OriginalCharacterCount)
	}
	fmt.Printf("Duration:        %s\n", elapsed.Round(time.Millisecond))

	if len(result.Emails) > 0 {
		fmt.Printf("Emails:          %s\n", strings.Join(result.Emails, ", "))
	}

	fmt.Println("URLs:")
	for _, u := range result.URLs {
		fmt.Printf("  %s\n", u)
	}
}
