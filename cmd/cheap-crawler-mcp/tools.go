package main

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// createScrapeSiteTool returns the scrape_site tool definition
func createScrapeSiteTool() mcp.Tool {
	return mcp.NewTool("scrape_site",
		mcp.WithDescription("Crawl same-host pages starting from a URL and return the aggregated page text"),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("Start URL; only pages on the same host are followed"),
		),
		mcp.WithNumber("max_pages",
			mcp.Description("Maximum pages to crawl including the start page (default: 10, max: 50)"),
		),
		mcp.WithNumber("max_length",
			mcp.Description("Truncate aggregated text to this many characters (default: no limit)"),
		),
	)
}

// createFetchPageTool returns the fetch_page tool definition
func createFetchPageTool() mcp.Tool {
	return mcp.NewTool("fetch_page",
		mcp.WithDescription("Render a single page in a headless browser and return it as markdown"),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("Page URL to fetch"),
		),
	)
}
