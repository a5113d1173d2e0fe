package sanitize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mustSpan builds a span over the first occurrence of substr in text.
func mustSpan(t *testing.T, text, substr string, kind Kind) Span {
	t.Helper()
	i := strings.Index(text, substr)
	require.GreaterOrEqual(t, i, 0, "substring %q not in text", substr)
	return Span{Start: i, End: i + len(substr), Kind: kind, Raw: substr}
}

func TestResolveLongerWins(t *testing.T) {
	text := "open https://portal.acme-net.io/ticket/12 to review"
	url := mustSpan(t, text, "https://portal.acme-net.io/ticket/12", KindURL)
	org := mustSpan(t, text, "acme-net", KindOrg)

	accepted, err := Resolve(text, []Span{org, url})
	require.NoError(t, err)
	require.Len(t, accepted, 1)
	assert.Equal(t, KindURL, accepted[0].Kind)
}

func TestResolvePrecedenceBeatsLength(t *testing.T) {
	// The phone span is longer but signatures resolve first.
	text := "call +1 415 555 0123\n--\nJane"
	phone := mustSpan(t, text, "+1 415 555 0123", KindPhone)
	sig := mustSpan(t, text, " 0123\n--\nJane", KindSignature)

	accepted, err := Resolve(text, []Span{phone, sig})
	require.NoError(t, err)
	require.Len(t, accepted, 1)
	assert.Equal(t, KindSignature, accepted[0].Kind)
}

func TestResolveIdenticalSpanRank(t *testing.T) {
	text := "ping 192.168.10.100 now"
	ip := mustSpan(t, text, "192.168.10.100", KindDeviceIP)
	phone := mustSpan(t, text, "192.168.10.100", KindPhone)

	for _, candidates := range [][]Span{{ip, phone}, {phone, ip}} {
		accepted, err := Resolve(text, candidates)
		require.NoError(t, err)
		require.Len(t, accepted, 1)
		assert.Equal(t, KindDeviceIP, accepted[0].Kind)
	}
}

func TestResolveEarlierStartWins(t *testing.T) {
	text := "aaaa@bb.com55 555 0123"
	email := Span{Start: 0, End: 11, Kind: KindEmail, Raw: text[0:11]}
	phone := Span{Start: 4, End: 15, Kind: KindPhone, Raw: text[4:15]}
	require.Equal(t, email.Len(), phone.Len())

	accepted, err := Resolve(text, []Span{phone, email})
	require.NoError(t, err)
	require.Len(t, accepted, 1)
	assert.Equal(t, KindEmail, accepted[0].Kind)
}

func TestResolveLoserDiscardedWhole(t *testing.T) {
	// The NER span loses to the shorter structural span inside it; its
	// non-overlapping remainder must not be redacted in pieces.
	text := "Jane from ops (jane@corp.com) again"
	person := Span{Start: 0, End: 29, Kind: KindPerson, Raw: text[0:29]}
	email := mustSpan(t, text, "jane@corp.com", KindEmail)

	accepted, err := Resolve(text, []Span{person, email})
	require.NoError(t, err)
	require.Len(t, accepted, 1)
	assert.Equal(t, KindEmail, accepted[0].Kind)

	out := Rewrite(text, accepted, func(Span) string { return "[EMAIL]" })
	assert.Equal(t, "Jane from ops ([EMAIL]) again", out)
}

func TestResolveDisjointSpansAllAccepted(t *testing.T) {
	text := "Jane emailed jane@corp.com from 10.0.0.7"
	person := mustSpan(t, text, "Jane", KindPerson)
	email := mustSpan(t, text, "jane@corp.com", KindEmail)
	device := mustSpan(t, text, "10.0.0.7", KindDeviceIP)

	accepted, err := Resolve(text, []Span{device, person, email})
	require.NoError(t, err)
	require.Len(t, accepted, 3)

	// Sorted by start regardless of candidate order.
	assert.Equal(t, KindPerson, accepted[0].Kind)
	assert.Equal(t, KindEmail, accepted[1].Kind)
	assert.Equal(t, KindDeviceIP, accepted[2].Kind)
}

func TestResolveAdjacentSpans(t *testing.T) {
	text := "ab@cd.com10.0.0.5"
	email := Span{Start: 0, End: 9, Kind: KindEmail, Raw: text[0:9]}
	device := Span{Start: 9, End: 17, Kind: KindDeviceIP, Raw: text[9:17]}

	accepted, err := Resolve(text, []Span{email, device})
	require.NoError(t, err)
	assert.Len(t, accepted, 2)
}

func TestResolveInvalidCandidate(t *testing.T) {
	text := "short"

	tests := []struct {
		name string
		span Span
	}{
		{name: "out of bounds", span: Span{Start: 0, End: 99, Kind: KindEmail, Raw: "x"}},
		{name: "negative start", span: Span{Start: -1, End: 3, Kind: KindEmail, Raw: "sho"}},
		{name: "raw mismatch", span: Span{Start: 0, End: 3, Kind: KindEmail, Raw: "xxx"}},
		{name: "empty range", span: Span{Start: 2, End: 2, Kind: KindEmail, Raw: ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(text, []Span{tt.span})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrSpanConflict)
		})
	}
}

func TestResolveNoCandidates(t *testing.T) {
	accepted, err := Resolve("anything", nil)
	require.NoError(t, err)
	assert.Nil(t, accepted)
}

func TestRewrite(t *testing.T) {
	text := "mail jane@corp.com or call (415) 555-0123 today"
	email := mustSpan(t, text, "jane@corp.com", KindEmail)
	phone := mustSpan(t, text, "(415) 555-0123", KindPhone)

	accepted, err := Resolve(text, []Span{phone, email})
	require.NoError(t, err)

	out := Rewrite(text, accepted, func(sp Span) string {
		if sp.Kind == KindEmail {
			return "[EMAIL]"
		}
		return "[PHONE]"
	})
	assert.Equal(t, "mail [EMAIL] or call [PHONE] today", out)
}

func TestRewriteOutputNeverRescanned(t *testing.T) {
	text := "contact ops@corp.com"
	email := mustSpan(t, text, "ops@corp.com", KindEmail)

	// A replacement that itself looks like PII must pass through untouched.
	out := Rewrite(text, []Span{email}, func(Span) string { return "call 415 555 0123" })
	assert.Equal(t, "contact call 415 555 0123", out)
}

func TestRewriteNoSpans(t *testing.T) {
	assert.Equal(t, "unchanged", Rewrite("unchanged", nil, func(Span) string { return "x" }))
}

func TestRewriteRemoval(t *testing.T) {
	text := "done\n--\nJane"
	sig := mustSpan(t, text, "\n--\nJane", KindSignature)

	out := Rewrite(text, []Span{sig}, func(Span) string { return "" })
	assert.Equal(t, "done", out)
}
