package cmd

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dativo-io/scrub/internal/audit"
)

func TestAuditCmd_HasSubcommands(t *testing.T) {
	expected := []string{"list", "summary"}
	registered := make(map[string]bool)
	for _, cmd := range auditCmd.Commands() {
		registered[cmd.Name()] = true
	}
	for _, name := range expected {
		assert.True(t, registered[name], "audit subcommand %q should be registered", name)
	}
}

func TestAuditListCmd_Flags(t *testing.T) {
	for _, name := range []string{"source", "status", "limit"} {
		flag := auditListCmd.Flags().Lookup(name)
		assert.NotNil(t, flag, "audit list flag %q should be registered", name)
	}
	limit := auditListCmd.Flags().Lookup("limit")
	require.NotNil(t, limit)
	assert.Equal(t, "20", limit.DefValue)
}

func TestAuditListCommand_EmptyStore(t *testing.T) {
	err := execScrub(t, "audit", "list")
	require.NoError(t, err)
}

func TestRenderRunList(t *testing.T) {
	ts := time.Date(2026, 8, 25, 10, 30, 0, 0, time.UTC)
	runs := []audit.Record{
		{
			ID: "a", Timestamp: ts, Source: audit.SourceCLI, Input: "ticket.json",
			Status: audit.StatusOK, Fields: 3, Spans: map[string]int{"EMAIL": 2}, DurationMS: 41,
		},
		{
			ID: "b", Timestamp: ts, Source: audit.SourceSweep, Input: "broken.json",
			Status: audit.StatusFailed, Error: "ticket input format invalid", DurationMS: 2,
		},
	}

	buf := new(bytes.Buffer)
	renderRunList(buf, runs)

	out := buf.String()
	assert.Contains(t, out, "Sanitization runs (showing 2):")
	assert.Contains(t, out, "✓ 2026-08-25T10:30:00Z  cli    ticket.json  fields=3 spans=2  41ms")
	assert.Contains(t, out, "✗ 2026-08-25T10:30:00Z  sweep  broken.json  fields=0 spans=0  2ms")
	assert.Contains(t, out, "error: ticket input format invalid")
}

func TestRenderSummary(t *testing.T) {
	buf := new(bytes.Buffer)
	renderSummary(buf, &audit.Summary{
		Runs:   4,
		Failed: 1,
		Fields: 11,
		Spans:  map[string]int{"PHONE": 2, "EMAIL": 5},
	})

	out := buf.String()
	assert.Contains(t, out, "Runs:   4 (1 failed)")
	assert.Contains(t, out, "Fields: 11")
	emailIdx := bytes.Index(buf.Bytes(), []byte("EMAIL"))
	phoneIdx := bytes.Index(buf.Bytes(), []byte("PHONE"))
	assert.True(t, emailIdx >= 0 && phoneIdx > emailIdx, "kinds render sorted")
}

func TestRenderSummary_Empty(t *testing.T) {
	buf := new(bytes.Buffer)
	renderSummary(buf, &audit.Summary{Spans: map[string]int{}})
	assert.Contains(t, buf.String(), "(none)")
}
