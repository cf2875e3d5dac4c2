package main

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"

	"github.com/Matanbitton/cheap-crawler/internal/common"
	"github.com/Matanbitton/cheap-crawler/internal/interfaces"
	"github.com/Matanbitton/cheap-crawler/internal/models"
)

// handleScrapeSite implements the scrape_site tool
func handleScrapeSite(engine interfaces.CrawlerService, cfg common.ScraperConfig, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		seedURL, err := request.RequireString("url")
		if err != nil || seedURL == "" {
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.NewTextContent("Error: url parameter is required"),
				},
			}, nil
		}

		// Clamp to the same limits the HTTP API enforces
		maxPages := request.GetInt("max_pages", cfg.DefaultMaxPages)
		if maxPages < 1 {
			maxPages = 1
		}
		if maxPages > cfg.MaxPagesLimit {
			maxPages = cfg.MaxPagesLimit
		}

		maxLength := request.GetInt("max_length", 0)
		if maxLength < 0 {
			maxLength = 0
		}
		if maxLength > cfg.MaxLengthLimit {
			maxLength = cfg.MaxLengthLimit
		}

		result, err := engine.Crawl(ctx, seedURL, models.CrawlOptions{
			MaxPages:  maxPages,
			MaxLength: maxLength,
		})
		if err != nil {
			logger.Error().Err(err).Str("url", seedURL).Msg("Scrape failed")
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.NewTextContent(fmt.Sprintf("Scrape error: %v", err)),
				},
			}, nil
		}

		markdown := formatCrawlResult(seedURL, result)
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.NewTextContent(markdown),
			},
		}, nil
	}
}

// handleFetchPage implements the fetch_page tool
func handleFetchPage(engine interfaces.CrawlerService, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		pageURL, err := request.RequireString("url")
		if err != nil || pageURL == "" {
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.NewTextContent("Error: url parameter is required"),
				},
			}, nil
		}

		record, err := engine.FetchPage(ctx, pageURL)
		if err != nil {
			logger.Error().Err(err).Str("url", pageURL).Msg("Fetch failed")
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.NewTextContent(fmt.Sprintf("Fetch error: %v", err)),
				},
			}, nil
		}

		markdown := formatPageRecord(record)
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.NewTextContent(markdown),
			},
		}, nil
	}
}
