package classify

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// StripMarkup reduces an HTML description to plain text for prompting.
// Script, style, and other non-content elements are removed first. Input
// that fails to parse is returned unchanged; a noisy prompt beats no prompt.
func StripMarkup(html string) string {
	if !strings.Contains(html, "<") {
		return cleanWhitespace(html)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return cleanWhitespace(html)
	}

	doc.Find("script, style, noscript, iframe").Remove()
	return cleanWhitespace(doc.Text())
}

// cleanWhitespace normalizes whitespace, dropping blank lines.
func cleanWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	var cleaned []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}
