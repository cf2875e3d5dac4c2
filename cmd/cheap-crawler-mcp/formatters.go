package main

import (
	"fmt"
	"strings"

	"github.com/Matanbitton/cheap-crawler/internal/models"
)

// formatCrawlResult formats an aggregated crawl as markdown
func formatCrawlResult(seedURL string, result *models.CrawlResult) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Scrape of %s\n\n", seedURL))
	sb.WriteString(fmt.Sprintf("**Pages scraped:** %d\n", result.PagesScraped))
	sb.WriteString(fmt.Sprintf("**Characters:** %d\n", result.CharacterCount))
	sb.WriteString(fmt.Sprintf("**Token estimate:** %d\n", result.TokenEstimate))
	if result.Truncated {
		sb.WriteString(fmt.Sprintf("**Truncated from:** %d characters\n", result.OriginalCharacterCount))
	}
	sb.WriteString("\n")

	if len(result.URLs) > 0 {
		sb.WriteString("**URLs:**\n")
		for _, u := range result.URLs {
			sb.WriteString(fmt.Sprintf("- %s\n", u))
		}
		sb.WriteString("\n")
	}

	if len(result.Emails) > 0 {
		sb.WriteString(fmt.Sprintf("**Emails:** %s\n\n", strings.Join(result.Emails, ", ")))
	}

	sb.WriteString("## Content\n\n")
	sb.WriteString(result.Text)
	sb.WriteString("\n")

	return sb.String()
}

// formatPageRecord formats a single fetched page as markdown
func formatPageRecord(record *models.PageRecord) string {
	var sb strings.Builder

	title := record.Title
	if title == "" {
		title = record.URL
	}
	sb.WriteString(fmt.Sprintf("# %s\n\n", title))
	sb.WriteString(fmt.Sprintf("**URL:** %s\n", record.URL))
	sb.WriteString(fmt.Sprintf("**Fetched:** %s\n\n", record.CrawledAt.Format("2006-01-02 15:04:05")))

	if record.Markdown != "" {
		sb.WriteString(record.Markdown)
	} else {
		sb.WriteString(record.Content)
	}
	sb.WriteString("\n")

	if len(record.Links) > 0 {
		sb.WriteString("\n## Same-host links\n\n")
		for _, link := range record.Links {
			sb.WriteString(fmt.Sprintf("- %s\n", link))
		}
	}

	return sb.String()
}
