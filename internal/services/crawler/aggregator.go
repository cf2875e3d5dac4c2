package crawler

import (
	"strings"
	"unicode/utf8"

	"github.com/Matanbitton/cheap-crawler/internal/models"
)

// Aggregate folds collected page records into a CrawlResult. Page
// contents are joined with a blank line in collection order; when
// maxLength is positive and the joined text is longer, the text is cut
// to exactly maxLength characters plus a literal "..." marker and the
// pre-truncation counts are preserved. Counts are in characters, not
// bytes, so multibyte content truncates cleanly.
func Aggregate(records []*models.PageRecord, emails []string, maxLength int) *models.CrawlResult {
	parts := make([]string, 0, len(records))
	urls := make([]string, 0, len(records))
	for _, record := range records {
		urls = append(urls, record.URL)
		if record.Content != "" {
			parts = append(parts, record.Content)
		}
	}

	text := strings.TrimSpace(strings.Join(parts, "\n\n"))

	result := &models.CrawlResult{
		PagesScraped: len(records),
		URLs:         urls,
		Emails:       emails,
	}

	if runes := []rune(text); maxLength > 0 && len(runes) > maxLength {
		result.OriginalCharacterCount = len(runes)
		result.OriginalTokenEstimate = estimateTokens(len(runes))
		result.Truncated = true
		text = string(runes[:maxLength]) + "..."
	}

	result.Text = text
	result.CharacterCount = utf8.RuneCountInString(text)
	result.TokenEstimate = estimateTokens(result.CharacterCount)

	return result
}

// estimateTokens approximates language-model token count as
// ceil(chars / 4). A fixed heuristic, not a tokenizer; API consumers
// depend on this exact divisor and rounding.
func estimateTokens(chars int) int {
	return (chars + 3) / 4
}
