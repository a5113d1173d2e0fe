// Package sanitize implements the ticket sanitization engine: structural
// pattern matching, NER-backed entity detection, vendor allow-listing,
// per-ticket pseudonym labels, and overlap-resolved rewriting.
package sanitize

import "fmt"

// Kind identifies what a detected span represents. The builtin kinds below
// cover the structural matchers, the NER entity types, and signature blocks;
// custom matchers loaded from a pattern file may introduce their own kinds.
type Kind string

const (
	// NER kinds, produced by the external annotator.
	KindPerson Kind = "PERSON"
	KindOrg    Kind = "ORG"
	KindGPE    Kind = "GPE"
	KindLoc    Kind = "LOC"

	// Structural kinds, produced by the regex matchers.
	KindEmail    Kind = "EMAIL"
	KindPhone    Kind = "PHONE"
	KindSubnetIP Kind = "SUBNET_IP"
	KindDeviceIP Kind = "DEVICE_IP"
	KindURL      Kind = "URL"

	// KindSignature marks a trailing signature block for removal.
	KindSignature Kind = "SIGNATURE"
)

// Precedence tiers. Signature blocks beat structural matches, which beat
// NER spans. Custom kinds from a pattern file sit in the structural tier.
const (
	precedenceNER        = 1
	precedenceStructural = 2
	precedenceSignature  = 3
)

var kindPrecedence = map[Kind]int{
	KindPerson:    precedenceNER,
	KindOrg:       precedenceNER,
	KindGPE:       precedenceNER,
	KindLoc:       precedenceNER,
	KindEmail:     precedenceStructural,
	KindPhone:     precedenceStructural,
	KindSubnetIP:  precedenceStructural,
	KindDeviceIP:  precedenceStructural,
	KindURL:       precedenceStructural,
	KindSignature: precedenceSignature,
}

// precedenceOf returns the resolution tier for a kind. Unknown (custom)
// kinds resolve in the structural tier.
func precedenceOf(k Kind) int {
	if p, ok := kindPrecedence[k]; ok {
		return p
	}
	return precedenceStructural
}

// kindRank breaks ties between same-tier spans covering the identical range
// (e.g. a dotted IP that also parses as a phone number). Higher rank wins.
var kindRank = map[Kind]int{
	KindSubnetIP: 5,
	KindDeviceIP: 5,
	KindURL:      4,
	KindEmail:    3,
	KindPhone:    2,
}

func rankOf(k Kind) int {
	return kindRank[k]
}

// isNERKind reports whether k is one of the four annotator entity kinds.
func isNERKind(k Kind) bool {
	switch k {
	case KindPerson, KindOrg, KindGPE, KindLoc:
		return true
	}
	return false
}

// Span is a half-open byte range [Start, End) into a field's UTF-8 text.
// Raw is the covered text; text[Start:End] == Raw holds at every stage.
type Span struct {
	Start int
	End   int
	Kind  Kind
	Raw   string
}

// Len returns the span length in bytes.
func (s Span) Len() int { return s.End - s.Start }

// overlaps reports whether two half-open ranges intersect.
func (s Span) overlaps(o Span) bool {
	return s.Start < o.End && o.Start < s.End
}

// validate checks bounds and the raw-text invariant against the source text.
func (s Span) validate(text string) error {
	if s.Start < 0 || s.End > len(text) || s.Start >= s.End {
		return fmt.Errorf("span %s [%d,%d) out of bounds for text length %d", s.Kind, s.Start, s.End, len(text))
	}
	if text[s.Start:s.End] != s.Raw {
		return fmt.Errorf("span %s [%d,%d) raw text mismatch", s.Kind, s.Start, s.End)
	}
	return nil
}
