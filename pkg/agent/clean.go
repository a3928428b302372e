package agent

import (
	"regexp"
	"strings"
)

var (
	citationPattern  = regexp.MustCompile(`【[^】]*】`)
	refPattern       = regexp.MustCompile(`\[(?:citation|source|ref):\d+\]`)
	inlineSpace      = regexp.MustCompile(`[ \t]+`)
	excessBlankLines = regexp.MustCompile(`\n\s*\n\s*\n+`)
)

// CleanResponse strips retrieval citation markers from agent output while
// keeping its line structure.
func CleanResponse(text string) string {
	if text == "" {
		return text
	}
	text = citationPattern.ReplaceAllString(text, "")
	text = refPattern.ReplaceAllString(text, "")
	text = inlineSpace.ReplaceAllString(text, " ")
	text = excessBlankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
