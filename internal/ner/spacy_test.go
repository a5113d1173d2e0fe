package ner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpacyAnnotate(t *testing.T) {
	// Rune offsets as spaCy reports them; the client must convert.
	text := "José called from Berlin"

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/ner", r.URL.Path)

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, text, req["text"])
		assert.Equal(t, "en_core_web_sm", req["model"])

		resp := map[string]any{"entities": []map[string]any{
			{"start": 0, "end": 4, "label": "PERSON", "text": "José"},
			{"start": 17, "end": 23, "label": "GPE", "text": "Berlin"},
			{"start": 5, "end": 11, "label": "DATE", "text": "called"},
		}}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	c := NewSpacyClient(server.URL, "en_core_web_sm")
	entities, err := c.Annotate(context.Background(), text)
	require.NoError(t, err)
	require.Len(t, entities, 2)

	assert.Equal(t, Entity{Start: 0, End: 5, Label: "PERSON", Text: "José"}, entities[0])
	assert.Equal(t, Entity{Start: 18, End: 24, Label: "GPE", Text: "Berlin"}, entities[1])
	for _, e := range entities {
		assert.Equal(t, e.Text, text[e.Start:e.End])
	}
}

func TestSpacyAnnotateByteOffsets(t *testing.T) {
	// A sidecar that already reports byte offsets still lines up.
	text := "café Bob here"

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		resp := map[string]any{"entities": []map[string]any{
			{"start": 6, "end": 9, "label": "PERSON", "text": "Bob"},
		}}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	c := NewSpacyClient(server.URL, "en_core_web_sm")
	entities, err := c.Annotate(context.Background(), text)
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, "Bob", text[entities[0].Start:entities[0].End])
}

func TestSpacyAnnotateDropsMisaligned(t *testing.T) {
	text := "plain ascii text"

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		resp := map[string]any{"entities": []map[string]any{
			{"start": 0, "end": 5, "label": "PERSON", "text": "wrong"},
			{"start": -2, "end": 3, "label": "PERSON", "text": "pla"},
			{"start": 4, "end": 4, "label": "PERSON", "text": ""},
			{"start": 0, "end": 500, "label": "PERSON", "text": "plain"},
		}}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	c := NewSpacyClient(server.URL, "en_core_web_sm")
	entities, err := c.Annotate(context.Background(), text)
	require.NoError(t, err)
	assert.Empty(t, entities)
}

func TestSpacyAnnotateUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	c := NewSpacyClient(server.URL, "en_core_web_sm")
	_, err := c.Annotate(context.Background(), "some text")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrModelUnavailable)
	assert.Contains(t, err.Error(), "cannot reach spaCy sidecar")
	assert.Contains(t, err.Error(), "python -m spacy download en_core_web_sm")
}

func TestSpacyAnnotateModelMissing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := NewSpacyClient(server.URL, "en_core_web_lg")
	_, err := c.Annotate(context.Background(), "some text")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrModelUnavailable)
	assert.Contains(t, err.Error(), `no model "en_core_web_lg"`)
}

func TestSpacyAnnotateServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := NewSpacyClient(server.URL, "en_core_web_sm")
	_, err := c.Annotate(context.Background(), "some text")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrModelUnavailable)
	assert.Contains(t, err.Error(), "status 500")
}

func TestSpacyHealth(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	c := NewSpacyClient(healthy.URL, "en_core_web_sm")
	assert.NoError(t, c.Health(context.Background()))

	degraded := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer degraded.Close()

	c = NewSpacyClient(degraded.URL, "en_core_web_sm")
	err := c.Health(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrModelUnavailable)
}

func TestConvertOffsets(t *testing.T) {
	tests := []struct {
		name string
		text string
		in   []Entity
		want []Entity
	}{
		{
			name: "ascii passthrough",
			text: "Jane fixed it",
			in:   []Entity{{Start: 0, End: 4, Label: "PERSON", Text: "Jane"}},
			want: []Entity{{Start: 0, End: 4, Label: "PERSON", Text: "Jane"}},
		},
		{
			name: "rune offsets after multibyte",
			text: "héllo Jane",
			in:   []Entity{{Start: 6, End: 10, Label: "PERSON", Text: "Jane"}},
			want: []Entity{{Start: 7, End: 11, Label: "PERSON", Text: "Jane"}},
		},
		{
			name: "foreign label dropped",
			text: "June 2024 report",
			in:   []Entity{{Start: 0, End: 9, Label: "DATE", Text: "June 2024"}},
			want: nil,
		},
		{
			name: "empty input",
			text: "anything",
			in:   nil,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, convertOffsets(tt.text, tt.in))
		})
	}
}

func TestDisabledAnnotator(t *testing.T) {
	d := Disabled{}
	assert.Equal(t, "none", d.Name())

	entities, err := d.Annotate(context.Background(), "Jane at 10.0.0.1")
	assert.NoError(t, err)
	assert.Nil(t, entities)
}
