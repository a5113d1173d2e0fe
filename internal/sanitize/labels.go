package sanitize

import (
	"fmt"
	"strings"
)

// labelTemplates define the counter-based pseudonym format per kind.
// Person and organization labels use an underscore, network labels a space.
var labelTemplates = map[Kind]string{
	KindPerson:   "Person_%d",
	KindOrg:      "Organization_%d",
	KindSubnetIP: "Subnet %d",
	KindDeviceIP: "Device IP %d",
}

// staticLabels are fixed replacement tokens for kinds without counters.
var staticLabels = map[Kind]string{
	KindGPE:   "[GPE]",
	KindLoc:   "[LOC]",
	KindEmail: "[EMAIL]",
	KindPhone: "[PHONE]",
	KindURL:   "[URL]",
}

type labelKey struct {
	kind  Kind
	value string
}

// LabelRegistry allocates stable pseudonym labels within one ticket.
// The first sighting of a (kind, normalized value) pair takes the next
// counter for that kind; every later sighting returns the same label.
// One registry is created per ticket and shared across all its fields,
// so a person named in the description and again in a comment gets the
// same Person_n both times. Not safe for concurrent use.
type LabelRegistry struct {
	counters map[Kind]int
	labels   map[labelKey]string
}

// NewLabelRegistry returns an empty registry with all counters at zero.
func NewLabelRegistry() *LabelRegistry {
	return &LabelRegistry{
		counters: make(map[Kind]int),
		labels:   make(map[labelKey]string),
	}
}

// LabelFor returns the label for a detected value. Counter kinds allocate
// on first sight; static kinds always return their fixed token.
func (r *LabelRegistry) LabelFor(kind Kind, raw string) string {
	if label, ok := staticLabels[kind]; ok {
		return label
	}
	tmpl, ok := labelTemplates[kind]
	if !ok {
		// Unknown kinds have no label scheme; keep a generic token so a
		// misconfigured matcher never leaks the raw value.
		return "[" + strings.ToUpper(string(kind)) + "]"
	}

	key := labelKey{kind: kind, value: normalizeValue(kind, raw)}
	if label, ok := r.labels[key]; ok {
		return label
	}

	r.counters[kind]++
	label := fmt.Sprintf(tmpl, r.counters[kind])
	r.labels[key] = label
	return label
}

// Allocated returns how many distinct values have been labeled per kind.
func (r *LabelRegistry) Allocated() map[Kind]int {
	out := make(map[Kind]int, len(r.counters))
	for k, n := range r.counters {
		out[k] = n
	}
	return out
}

// normalizeValue canonicalizes a raw value for identity comparison.
// Name-like kinds fold case so "Jane Smith" and "jane smith" share a
// label; addresses compare by exact trimmed text.
func normalizeValue(kind Kind, raw string) string {
	v := strings.TrimSpace(raw)
	switch kind {
	case KindPerson, KindOrg:
		return strings.ToLower(v)
	}
	return v
}
