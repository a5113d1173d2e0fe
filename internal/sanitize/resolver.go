package sanitize

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrSpanConflict marks a post-resolution overlap between accepted spans.
// It indicates a bug in the engine, never bad input; the run fails loudly
// and no partially sanitized output is written.
var ErrSpanConflict = errors.New("span conflict after resolution")

// Resolve picks the winning spans from all candidates. Candidates are
// ranked by precedence (signature > structural > NER), then span length
// (longer wins), then earliest start; ranked spans are accepted greedily
// and a candidate overlapping any accepted span is discarded whole, never
// truncated. The result is sorted by start and checked against the strict
// non-overlap invariant.
func Resolve(text string, candidates []Span) ([]Span, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	for _, c := range candidates {
		if err := c.validate(text); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSpanConflict, err)
		}
	}

	ranked := make([]Span, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		pi, pj := precedenceOf(ranked[i].Kind), precedenceOf(ranked[j].Kind)
		if pi != pj {
			return pi > pj
		}
		if ranked[i].Len() != ranked[j].Len() {
			return ranked[i].Len() > ranked[j].Len()
		}
		if ranked[i].Start != ranked[j].Start {
			return ranked[i].Start < ranked[j].Start
		}
		return rankOf(ranked[i].Kind) > rankOf(ranked[j].Kind)
	})

	var accepted []Span
	for _, c := range ranked {
		conflict := false
		for _, a := range accepted {
			if c.overlaps(a) {
				conflict = true
				break
			}
		}
		if !conflict {
			accepted = append(accepted, c)
		}
	}

	sort.Slice(accepted, func(i, j int) bool { return accepted[i].Start < accepted[j].Start })

	for i := 1; i < len(accepted); i++ {
		if accepted[i-1].End > accepted[i].Start {
			return nil, fmt.Errorf("%w: %s [%d,%d) overlaps %s [%d,%d)",
				ErrSpanConflict,
				accepted[i-1].Kind, accepted[i-1].Start, accepted[i-1].End,
				accepted[i].Kind, accepted[i].Start, accepted[i].End)
		}
	}

	return accepted, nil
}

// ReplacementFunc supplies the replacement text for an accepted span.
// Returning the span's Raw preserves it verbatim; returning "" removes it.
type ReplacementFunc func(Span) string

// Rewrite applies accepted spans to text in a single left-to-right pass.
// Spans must be sorted by start and non-overlapping (the Resolve result).
// Replacement output is never rescanned, so a replacement that happens to
// look like PII is left alone.
func Rewrite(text string, spans []Span, repl ReplacementFunc) string {
	if len(spans) == 0 {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))
	pos := 0
	for _, sp := range spans {
		b.WriteString(text[pos:sp.Start])
		b.WriteString(repl(sp))
		pos = sp.End
	}
	b.WriteString(text[pos:])
	return b.String()
}
