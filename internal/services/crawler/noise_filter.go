package crawler

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// noisePatterns mark a text section as cookie/consent boilerplate.
// Matching is case-insensitive substring containment.
var noisePatterns = []string{
	"cookie",
	"cookies",
	"gdpr",
	"privacy policy",
	"privacy settings",
	"consent",
	"accept all",
	"reject all",
	"manage preferences",
	"personalized ads",
	"we value your privacy",
	"tracking technologies",
}

// Sections at or below this many characters are dropped on a single
// pattern match. Longer sections need two or more matches, so an
// article that merely mentions privacy once is kept.
const noiseSectionMaxLen = 1200

var (
	sectionSplitRegex = regexp.MustCompile(`\n\s*\n`)
	whitespaceRegex   = regexp.MustCompile(`\s+`)
)

// CleanText strips cookie banner and consent boilerplate from extracted
// page text. The text is split into blank-line-delimited sections, each
// section is evaluated independently, and survivors are rejoined with a
// double newline. Pure and total: never fails, and reapplying it to
// already-cleaned text leaves the content unchanged.
func CleanText(text string) string {
	if text == "" {
		return ""
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	sections := sectionSplitRegex.Split(text, -1)
	cleaned := make([]string, 0, len(sections))

	for _, section := range sections {
		section = strings.TrimSpace(section)
		if section == "" {
			continue
		}
		if isNoiseSection(section) {
			continue
		}

		section = whitespaceRegex.ReplaceAllString(section, " ")
		cleaned = append(cleaned, strings.TrimSpace(section))
	}

	return strings.TrimSpace(strings.Join(cleaned, "\n\n"))
}

// isNoiseSection applies the two-tier boilerplate rule: short sections
// are dropped on any pattern match, sections of any length are dropped
// when two or more patterns match.
func isNoiseSection(section string) bool {
	lower := strings.ToLower(section)

	matches := 0
	for _, pattern := range noisePatterns {
		if strings.Contains(lower, pattern) {
			matches++
			if matches >= 2 {
				return true
			}
		}
	}

	return matches >= 1 && utf8.RuneCountInString(section) <= noiseSectionMaxLen
}
