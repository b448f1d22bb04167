package agentrun

import (
	"regexp"
	"strings"
)

var internalMarkupPattern = regexp.MustCompile(`(?s)<(thinking|plan|reflection)>.*?</(thinking|plan|reflection)>`)

// stripInternalMarkup removes <thinking>, <plan>, and <reflection> blocks
// from text bound for the user.
func stripInternalMarkup(text string) string {
	return strings.TrimSpace(internalMarkupPattern.ReplaceAllString(text, ""))
}
