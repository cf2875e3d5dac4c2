package models

// ScrapeRequest is the caller-facing input for a scrape invocation.
// MaxPages and MaxLength are optional; zero values select the defaults
// and out-of-range values are clamped rather than rejected.
type ScrapeRequest struct {
	URL       string `json:"url" validate:"required,url"`
	MaxPages  int    `json:"maxPages,omitempty"`
	MaxLength int    `json:"maxLength,omitempty"`
}

// CrawlOptions control a single crawl session
type CrawlOptions struct {
	MaxPages  int // Hard cap on pages fetched, including the seed
	MaxLength int // Truncate aggregated text to this many characters, 0 disables
}

// CrawlResult is the aggregated output of a crawl session.
// Field names match the JSON contract of the scrape API.
type CrawlResult struct {
	Text           string   `json:"text"`
	PagesScraped   int      `json:"pagesScraped"`
	URLs           []string `json:"urls"`
	TokenEstimate  int      `json:"tokenEstimate"`
	CharacterCount int      `json:"characterCount"`
	Truncated      bool     `json:"truncated"`

	// Set only when truncation occurred
	OriginalCharacterCount int `json:"originalCharacterCount,omitempty"`
	OriginalTokenEstimate  int `json:"originalTokenEstimate,omitempty"`

	Emails []string `json:"emails,omitempty"`
}
