package intake

import (
	"regexp"
	"strings"
)

// urlPattern matches http(s) URLs in free text. Trailing punctuation is
// trimmed after the match so "see https://x.test." captures cleanly.
var urlPattern = regexp.MustCompile(`https?://[^\s<>"']+`)

// RegexExtractor is the default URL extractor.
type RegexExtractor struct{}

// NewRegexExtractor creates the default extractor.
func NewRegexExtractor() *RegexExtractor { return &RegexExtractor{} }

// Extract returns the URLs found in message, deduplicated in order.
func (e *RegexExtractor) Extract(message string) []string {
	matches := urlPattern.FindAllString(message, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	var out []string
	for _, m := range matches {
		m = strings.TrimRight(m, ".,;:!?)")
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}
