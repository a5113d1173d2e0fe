package sanitize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/dativo-io/scrub/patterns"
)

// Matcher is a compiled, ready-to-use structural matcher.
type Matcher struct {
	Name        string
	Kind        Kind
	Replacement string // custom kinds only; builtin kinds use engine rules

	re     *regexp.Regexp
	refine refineFunc
}

// refineFunc post-processes a raw regex match. It may adjust the span
// bounds or kind, or drop the match entirely by returning false.
type refineFunc func(text string, start, end int, kind Kind) (Span, bool)

// refineGates maps the validate names accepted in matcher YAML to their
// code-side gates.
var refineGates = map[string]refineFunc{
	"":             nil,
	"phone_digits": phoneDigitsRefine,
	"ipv4":         ipv4Refine,
	"url_trim":     urlTrimRefine,
}

// FindSpans returns all refined matches of the matcher in text.
func (m *Matcher) FindSpans(text string) []Span {
	var spans []Span
	for _, loc := range m.re.FindAllStringIndex(text, -1) {
		if m.refine == nil {
			spans = append(spans, Span{Start: loc[0], End: loc[1], Kind: m.Kind, Raw: text[loc[0]:loc[1]]})
			continue
		}
		if sp, ok := m.refine(text, loc[0], loc[1], m.Kind); ok {
			spans = append(spans, sp)
		}
	}
	return spans
}

// DefaultMatchers returns the built-in matcher configs parsed from the
// embedded matchers.yaml. This is the base layer in the merge chain.
func DefaultMatchers() ([]MatcherConfig, error) {
	mf, err := ParseMatcherFile(patterns.MatchersYAML())
	if err != nil {
		return nil, fmt.Errorf("parsing embedded matchers: %w", err)
	}
	return mf.Matchers, nil
}

// phoneDigitsRefine keeps a phone match only when its digit count is
// plausible for a real number (E.164 allows 7-15). Short identifiers and
// bare counters fall below the floor.
func phoneDigitsRefine(text string, start, end int, kind Kind) (Span, bool) {
	raw := text[start:end]
	digits := 0
	for i := 0; i < len(raw); i++ {
		if isASCIIDigit(raw[i]) {
			digits++
		}
	}
	if digits < 7 || digits > 15 {
		return Span{}, false
	}
	return Span{Start: start, End: end, Kind: kind, Raw: raw}, true
}

// ipv4Refine validates octet ranges, rejects addresses embedded in longer
// dotted runs, and classifies the match: a CIDR suffix or an all-zero last
// octet means SUBNET_IP, anything else DEVICE_IP. An out-of-range CIDR
// prefix is left in the text and only the address part is matched.
func ipv4Refine(text string, start, end int, _ Kind) (Span, bool) {
	if start >= 2 && text[start-1] == '.' && isASCIIDigit(text[start-2]) {
		return Span{}, false
	}
	if end+1 < len(text) && text[end] == '.' && isASCIIDigit(text[end+1]) {
		return Span{}, false
	}

	raw := text[start:end]
	addr, prefix, hasPrefix := strings.Cut(raw, "/")

	octets := strings.Split(addr, ".")
	if len(octets) != 4 {
		return Span{}, false
	}
	var last int
	for i, o := range octets {
		if len(o) == 0 || len(o) > 3 {
			return Span{}, false
		}
		n, err := strconv.Atoi(o)
		if err != nil || n > 255 {
			return Span{}, false
		}
		if i == 3 {
			last = n
		}
	}

	kind := KindDeviceIP
	spanEnd := end
	switch {
	case hasPrefix:
		if n, err := strconv.Atoi(prefix); err == nil && n <= 32 {
			kind = KindSubnetIP
		} else {
			spanEnd = start + len(addr)
			if last == 0 {
				kind = KindSubnetIP
			}
		}
	case last == 0:
		kind = KindSubnetIP
	}

	return Span{Start: start, End: spanEnd, Kind: kind, Raw: text[start:spanEnd]}, true
}

// urlTrailingPunct is sentence punctuation commonly stuck to the end of a
// pasted URL; it is trimmed so prose survives redaction.
const urlTrailingPunct = ".,;:!?)]}>\"'"

func urlTrimRefine(text string, start, end int, kind Kind) (Span, bool) {
	for end > start && strings.IndexByte(urlTrailingPunct, text[end-1]) >= 0 {
		end--
	}
	raw := text[start:end]
	i := strings.Index(raw, "://")
	if i < 0 || len(raw) <= i+3 {
		return Span{}, false
	}
	return Span{Start: start, End: end, Kind: kind, Raw: raw}, true
}

func isASCIIDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
