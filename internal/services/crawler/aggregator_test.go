package crawler

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/Matanbitton/cheap-crawler/internal/models"
)

func pages(contents ...string) []*models.PageRecord {
	records := make([]*models.PageRecord, len(contents))
	for i, content := range contents {
		records[i] = &models.PageRecord{
			URL:     "https://example.com/page-" + string(rune('a'+i)),
			Content: content,
		}
	}
	return records
}

func TestAggregate_JoinsContentInOrder(t *testing.T) {
	result := Aggregate(pages("First page.", "Second page.", "Third page."), nil, 0)

	assert.Equal(t, "First page.\n\nSecond page.\n\nThird page.", result.Text)
	assert.Equal(t, 3, result.PagesScraped)
	assert.Equal(t, []string{
		"https://example.com/page-a",
		"https://example.com/page-b",
		"https://example.com/page-c",
	}, result.URLs)
	assert.False(t, result.Truncated)
	assert.Zero(t, result.OriginalCharacterCount)
	assert.Zero(t, result.OriginalTokenEstimate)
}

func TestAggregate_SkipsEmptyContentButCountsPage(t *testing.T) {
	result := Aggregate(pages("First.", "", "Third."), nil, 0)

	assert.Equal(t, "First.\n\nThird.", result.Text)
	assert.Equal(t, 3, result.PagesScraped)
	assert.Len(t, result.URLs, 3)
}

func TestAggregate_TruncatesToExactLength(t *testing.T) {
	text := strings.Repeat("abcdefghij", 20) // 200 chars
	result := Aggregate(pages(text), nil, 50)

	assert.True(t, result.Truncated)
	assert.Equal(t, 53, utf8.RuneCountInString(result.Text))
	assert.True(t, strings.HasSuffix(result.Text, "..."))
	assert.Equal(t, text[:50], strings.TrimSuffix(result.Text, "..."))
	assert.Equal(t, 200, result.OriginalCharacterCount)
	assert.Equal(t, 50, result.OriginalTokenEstimate)
	assert.Equal(t, 53, result.CharacterCount)
	assert.Equal(t, 14, result.TokenEstimate) // ceil(53/4)
}

func TestAggregate_TruncationCountsCharactersNotBytes(t *testing.T) {
	// Four bytes per character in UTF-8 would break byte-based slicing.
	text := strings.Repeat("héllo wörld ", 30)
	limit := 40
	result := Aggregate(pages(text), nil, limit)

	assert.True(t, result.Truncated)
	assert.Equal(t, limit+3, utf8.RuneCountInString(result.Text))
	assert.Equal(t, limit+3, result.CharacterCount)
	assert.Equal(t, utf8.RuneCountInString(text), result.OriginalCharacterCount)
}

func TestAggregate_NoTruncationAtExactLimit(t *testing.T) {
	text := strings.Repeat("x", 100)
	result := Aggregate(pages(text), nil, 100)

	assert.False(t, result.Truncated)
	assert.Equal(t, text, result.Text)
	assert.Equal(t, 100, result.CharacterCount)
	assert.Equal(t, 25, result.TokenEstimate)
}

func TestAggregate_TokenEstimateRoundsUp(t *testing.T) {
	cases := map[int]int{1: 1, 3: 1, 4: 1, 5: 2, 8: 2, 9: 3}
	for chars, want := range cases {
		result := Aggregate(pages(strings.Repeat("x", chars)), nil, 0)
		assert.Equal(t, want, result.TokenEstimate, "chars=%d", chars)
		assert.Equal(t, chars, result.CharacterCount)
	}
}

func TestAggregate_EmptyInput(t *testing.T) {
	result := Aggregate(nil, nil, 100)

	assert.Equal(t, "", result.Text)
	assert.Zero(t, result.PagesScraped)
	assert.NotNil(t, result.URLs)
	assert.Empty(t, result.URLs)
	assert.Zero(t, result.TokenEstimate)
	assert.False(t, result.Truncated)
}

func TestAggregate_CarriesEmails(t *testing.T) {
	emails := []string{"a@example.com", "b@example.com"}
	result := Aggregate(pages("content"), emails, 0)
	assert.Equal(t, emails, result.Emails)
}
