package project

import (
	"regexp"
	"strings"
)

// nonWordRun matches a run of characters that are neither Unicode letters
// nor digits -- the boundary a title is cut on when building a slug.
var nonWordRun = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// Slug normalizes a project title for use as a suggested filename or URL
// path segment: runs of punctuation and whitespace become a single "-",
// edges are trimmed, and the result is lowercased. Non-ASCII letters pass
// through case-folded rather than being stripped.
func Slug(title string) string {
	lower := strings.ToLower(title)
	dashed := nonWordRun.ReplaceAllString(lower, "-")
	return strings.Trim(dashed, "-")
}
