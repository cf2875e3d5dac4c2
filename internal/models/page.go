package models

import "time"

// Heading is a single h1-h3 element extracted from a page
type Heading struct {
	Level int    `json:"level"` // 1, 2 or 3
	Text  string `json:"text"`
}

// PageRecord holds the extracted content of one rendered page.
// Text fields have already been passed through the noise filter,
// so cookie and consent boilerplate is removed before aggregation.
type PageRecord struct {
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	Content    string    `json:"content"` // Full visible text, whitespace collapsed
	Headings   []Heading `json:"headings,omitempty"`
	Paragraphs []string  `json:"paragraphs,omitempty"`
	Links      []string  `json:"links,omitempty"` // Same-host links in DOM order, deduplicated
	Emails     []string  `json:"emails,omitempty"`
	Markdown   string    `json:"markdown,omitempty"` // Markdown rendering of the page body
	CrawledAt  time.Time `json:"crawled_at"`
}
