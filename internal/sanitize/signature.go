package sanitize

import (
	"regexp"
	"strings"
)

// SignatureDetector finds a trailing signature block in a field's text.
// Implementations return the span to remove and whether one was found.
type SignatureDetector interface {
	Detect(text string) (Span, bool)
}

// defaultTailLines bounds how far from the end of a field a signature
// marker is recognized. Markers above the window are left alone so a
// separator in quoted output mid-ticket does not swallow the ticket.
const defaultTailLines = 12

// signatureSepRe matches a separator line: two or more dashes or
// underscores, or an em dash, alone on the line.
var signatureSepRe = regexp.MustCompile(`^\s*(?:-{2,}|—+|_{2,})\s*$`)

// signatureCloserRe matches a closing phrase that is the entire line apart
// from trailing punctuation ("Best regards,"). Phrases followed by more
// prose ("Thanks for the update") do not count.
var signatureCloserRe = regexp.MustCompile(`(?i)^\s*(?:best regards|kind regards|warm regards|best wishes|regards|thanks in advance|thank you|thanks|cheers|sincerely yours|sincerely|best|br)\s*[,.!]?\s*$`)

// TrailingBlockDetector is the default SignatureDetector: it scans the last
// TailLines lines for a separator line or a closing phrase and marks
// everything from there to end-of-field, including the whitespace run
// before the marker so removal leaves no dangling newlines.
type TrailingBlockDetector struct {
	TailLines int
}

// NewTrailingBlockDetector returns the default detector.
func NewTrailingBlockDetector() *TrailingBlockDetector {
	return &TrailingBlockDetector{TailLines: defaultTailLines}
}

// Detect implements SignatureDetector.
func (d *TrailingBlockDetector) Detect(text string) (Span, bool) {
	if text == "" {
		return Span{}, false
	}
	tail := d.TailLines
	if tail <= 0 {
		tail = defaultTailLines
	}

	starts := lineStarts(text)
	first := 0
	if len(starts) > tail {
		first = len(starts) - tail
	}

	for i := first; i < len(starts); i++ {
		lineStart := starts[i]
		lineEnd := len(text)
		if i+1 < len(starts) {
			lineEnd = starts[i+1] - 1 // strip the newline
		}
		line := strings.TrimSuffix(text[lineStart:lineEnd], "\r")

		if !signatureSepRe.MatchString(line) && !signatureCloserRe.MatchString(line) {
			continue
		}

		start := lineStart
		for start > 0 && isSpaceByte(text[start-1]) {
			start--
		}
		return Span{Start: start, End: len(text), Kind: KindSignature, Raw: text[start:]}, true
	}

	return Span{}, false
}

// lineStarts returns the byte offset of each line start in text.
func lineStarts(text string) []int {
	starts := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' && i+1 < len(text) {
			starts = append(starts, i+1)
		}
	}
	return starts
}

func isSpaceByte(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r':
		return true
	}
	return false
}
