// Package analysis implements error-text normalization, TF-IDF vectorization
// and similarity-based clustering of test failures.
package analysis

import "regexp"

// Normalization regexes compiled once at package init.
var (
	reUUID      = regexp.MustCompile(`(?i)[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
	reHex32     = regexp.MustCompile(`(?i)\b[0-9a-f]{32}\b`)
	reTimestamp = regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}(?::\d{2})?(?:[.,]\d{1,6})?(?:Z|[+-]\d{2}:?\d{2})?`)
	reIPv4      = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	reLongNum   = regexp.MustCompile(`\b\d{4,}\b`)
)

// Normalize replaces volatile tokens in raw error text with fixed
// placeholders so documents from different runs of the same defect compare
// equal. Total and deterministic: empty input yields empty output.
//
// Replacement order is load-bearing: UUIDs and timestamps must be replaced
// before the generic long-number pattern, or a timestamp's digit run would be
// swallowed by <NUM> first; IPv4 goes before <NUM> for the same reason.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	text = reUUID.ReplaceAllString(text, "<ID>")
	text = reHex32.ReplaceAllString(text, "<ID>")
	text = reTimestamp.ReplaceAllString(text, "<TS>")
	text = reIPv4.ReplaceAllString(text, "<IP>")
	text = reLongNum.ReplaceAllString(text, "<NUM>")
	return text
}
