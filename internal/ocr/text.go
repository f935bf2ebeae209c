package ocr

import (
	"regexp"
	"strings"
)

var reSpaceBeforeNewline = regexp.MustCompile(`\s+\n`)

// CleanText normalizes raw engine output: markdown fences some vision models
// insist on are removed, trailing whitespace before line breaks is collapsed
// and the result is trimmed.
func CleanText(text string) string {
	text = strings.TrimSpace(text)

	// Remove opening and closing markdown code blocks
	if strings.HasPrefix(text, "```") {
		if nl := strings.Index(text, "\n"); nl != -1 {
			text = text[nl+1:]
		} else {
			text = strings.TrimPrefix(text, "```")
		}
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")

	text = reSpaceBeforeNewline.ReplaceAllString(text, "\n")
	return strings.TrimSpace(text)
}
