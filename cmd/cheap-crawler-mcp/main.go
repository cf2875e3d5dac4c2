// Command cheap-crawler-mcp exposes the crawl engine as MCP tools over
// stdio so agent runtimes can scrape sites without the HTTP server.
package main

import (
	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"
	arbor_models "github.com/ternarybob/arbor/models"

	"github.com/Matanbitton/cheap-crawler/internal/common"
	"github.com/Matanbitton/cheap-crawler/internal/services/crawler"
)

func main() {
	// Minimal logging to avoid cluttering MCP stdio
	logger := arbor.NewLogger().WithConsoleWriter(arbor_models.WriterConfiguration{
		Type:             arbor_models.LogWriterTypeConsole,
		TimeFormat:       "15:04:05",
		DisableTimestamp: false,
	}).WithLevelFromString("warn")

	cfg := common.NewDefaultConfig()

	limiter := crawler.NewLaunchLimiter(cfg.Crawler.MaxBrowsers)
	engine := crawler.NewService(cfg.Crawler, limiter, nil, logger)

	mcpServer := server.NewMCPServer(
		"cheap-crawler",
		common.GetVersion(),
		server.WithToolCapabilities(true),
	)

	mcpServer.AddTool(createScrapeSiteTool(), handleScrapeSite(engine, cfg.Scraper, logger))
	mcpServer.AddTool(createFetchPageTool(), handleFetchPage(engine, logger))

	// Start server (blocks on stdio)
	if err := server.ServeStdio(mcpServer); err != nil {
		logger.Fatal().Err(err).Msg("MCP server failed")
	}
}
