package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSaveAndList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := &Record{
		Source:     SourceCLI,
		Input:      "ticket-42.json",
		Status:     StatusOK,
		Fields:     3,
		Spans:      map[string]int{"PERSON": 2, "EMAIL": 1},
		DurationMS: 120,
	}
	require.NoError(t, store.Save(ctx, rec))
	assert.NotEmpty(t, rec.ID)
	assert.False(t, rec.Timestamp.IsZero())

	records, err := store.List(ctx, "", "", 0)
	require.NoError(t, err)
	require.Len(t, records, 1)

	got := records[0]
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, SourceCLI, got.Source)
	assert.Equal(t, "ticket-42.json", got.Input)
	assert.Equal(t, StatusOK, got.Status)
	assert.Equal(t, 3, got.Fields)
	assert.Equal(t, map[string]int{"PERSON": 2, "EMAIL": 1}, got.Spans)
	assert.Equal(t, int64(120), got.DurationMS)
	assert.Equal(t, 3, got.TotalSpans())
}

func TestListFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	seed := []*Record{
		{Source: SourceCLI, Input: "a.json", Status: StatusOK, Timestamp: base},
		{Source: SourceSweep, Input: "b.json", Status: StatusOK, Timestamp: base.Add(time.Minute)},
		{Source: SourceSweep, Input: "c.json", Status: StatusFailed, Error: "ner model unavailable", Timestamp: base.Add(2 * time.Minute)},
		{Source: SourceHTTP, Input: "-", Status: StatusOK, Timestamp: base.Add(3 * time.Minute)},
	}
	for _, rec := range seed {
		require.NoError(t, store.Save(ctx, rec))
	}

	records, err := store.List(ctx, SourceSweep, "", 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	// Newest first.
	assert.Equal(t, "c.json", records[0].Input)
	assert.Equal(t, "b.json", records[1].Input)

	records, err = store.List(ctx, "", StatusFailed, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "ner model unavailable", records[0].Error)

	records, err = store.List(ctx, "", "", 2)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestSummarize(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &Record{
		Source: SourceCLI, Input: "a.json", Status: StatusOK,
		Fields: 3, Spans: map[string]int{"PERSON": 2, "EMAIL": 1},
	}))
	require.NoError(t, store.Save(ctx, &Record{
		Source: SourceSweep, Input: "b.json", Status: StatusOK,
		Fields: 5, Spans: map[string]int{"PERSON": 1, "SUBNET_IP": 4},
	}))
	require.NoError(t, store.Save(ctx, &Record{
		Source: SourceSweep, Input: "c.json", Status: StatusFailed, Error: "boom",
	}))

	sum, err := store.Summarize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Runs)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 8, sum.Fields)
	assert.Equal(t, map[string]int{"PERSON": 3, "EMAIL": 1, "SUBNET_IP": 4}, sum.Spans)
}

func TestSummarizeEmpty(t *testing.T) {
	store := newTestStore(t)

	sum, err := store.Summarize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Runs)
	assert.Empty(t, sum.Spans)
}
