package ticket

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	htmlPolicy  = bluemonday.StrictPolicy()
	htmlBreakRe = regexp.MustCompile(`(?i)<br\s*/?>|</p>|</div>|</li>|</tr>`)
)

// StripHTML reduces an html_body to plain text. Block-level closers become
// newlines so words from adjacent elements do not run together, tags are
// stripped, and HTML entities are decoded.
func StripHTML(s string) string {
	s = htmlBreakRe.ReplaceAllString(s, "\n")
	s = htmlPolicy.Sanitize(s)
	s = html.UnescapeString(s)
	return strings.TrimSpace(s)
}
