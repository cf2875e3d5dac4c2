package crawler

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Matanbitton/cheap-crawler/internal/common"
	"github.com/Matanbitton/cheap-crawler/internal/models"
)

var emailRegex = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

// Schemes and pseudo-links that never lead to a crawlable page.
var skipHrefPrefixes = []string{"javascript:", "mailto:", "tel:", "data:", "#"}

// parseDocument builds a goquery document from rendered page HTML
func parseDocument(html string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

// extractHeadings returns all h1-h3 elements in document order with the
// noise filter applied to their text. Headings emptied by the filter
// are dropped.
func extractHeadings(doc *goquery.Document) []models.Heading {
	var headings []models.Heading

	doc.Find("h1, h2, h3").Each(func(_ int, s *goquery.Selection) {
		if len(s.Nodes) == 0 {
			return
		}
		tag := s.Nodes[0].Data
		if len(tag) != 2 || tag[0] != 'h' {
			return
		}

		text := CleanText(s.Text())
		if text == "" {
			return
		}

		headings = append(headings, models.Heading{
			Level: int(tag[1] - '0'),
			Text:  text,
		})
	})

	return headings
}

// extractParagraphs returns the cleaned text of all non-empty p
// elements in document order. Paragraphs emptied by the noise filter
// are dropped.
func extractParagraphs(doc *goquery.Document) []string {
	var paragraphs []string

	doc.Find("p").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}

		text = CleanText(text)
		if text == "" {
			return
		}

		paragraphs = append(paragraphs, text)
	})

	return paragraphs
}

// extractLinks resolves every anchor href against pageURL and keeps the
// http(s) ones whose host matches baseHost, canonicalized with fragments
// stripped and deduplicated, in DOM order.
func extractLinks(doc *goquery.Document, pageURL, baseHost *url.URL) []string {
	var links []string
	seen := make(map[string]bool)

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)
		if href == "" || isSkippableHref(href) {
			return
		}

		resolved, err := pageURL.Parse(href)
		if err != nil {
			return
		}
		if !common.SameHost(resolved, baseHost) {
			return
		}

		canonical, err := common.NormalizeParsed(resolved)
		if err != nil {
			return
		}
		if seen[canonical] {
			return
		}

		seen[canonical] = true
		links = append(links, canonical)
	})

	return links
}

func isSkippableHref(href string) bool {
	lower := strings.ToLower(href)
	for _, prefix := range skipHrefPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// extractEmails finds email addresses in page text, lowercased and
// deduplicated in order of first appearance.
func extractEmails(text string) []string {
	matches := emailRegex.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}

	var emails []string
	seen := make(map[string]bool)
	for _, match := range matches {
		email := strings.ToLower(match)
		if seen[email] {
			continue
		}
		seen[email] = true
		emails = append(emails, email)
	}

	return emails
}

// collapseHorizontalWhitespace squeezes runs of spaces and tabs on each
// line while preserving the newline structure the noise filter's
// section splitting depends on.
func collapseHorizontalWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(horizontalWhitespaceRegex.ReplaceAllString(line, " "))
	}
	return strings.Join(lines, "\n")
}

var horizontalWhitespaceRegex = regexp.MustCompile(`[ \t\x{00A0}]+`)
