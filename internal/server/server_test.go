package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dativo-io/scrub/internal/audit"
	"github.com/dativo-io/scrub/internal/ner"
	"github.com/dativo-io/scrub/internal/sanitize"
	"github.com/dativo-io/scrub/internal/testutil"
)

func newTestServer(t *testing.T, annotator ner.Annotator, opts ...Option) http.Handler {
	t.Helper()
	s, err := sanitize.New(annotator)
	require.NoError(t, err)
	return NewServer(s, annotator, opts...).Routes()
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	h := newTestServer(t, ner.Disabled{})

	rec := doRequest(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	assert.Equal(t, "ok", out["status"])
	assert.Equal(t, "disabled", out["audit"])

	nerState, ok := out["ner"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "none", nerState["backend"])
	assert.Equal(t, "disabled", nerState["status"])
}

func TestHealthReportsNERReachability(t *testing.T) {
	sidecar := testutil.NewSpacyServer(t)
	client := ner.NewSpacyClient(sidecar.URL, "en_core_web_sm")
	h := newTestServer(t, client)

	rec := doRequest(t, h, http.MethodGet, "/v1/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	nerState := out["ner"].(map[string]interface{})
	assert.Equal(t, "spacy", nerState["backend"])
	assert.Equal(t, "ok", nerState["status"])

	sidecar.FailWith(http.StatusServiceUnavailable)
	rec = doRequest(t, h, http.MethodGet, "/v1/health", "")
	assert.Equal(t, http.StatusOK, rec.Code, "health stays 200; only the snapshot degrades")
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	nerState = out["ner"].(map[string]interface{})
	assert.Equal(t, "unreachable", nerState["status"])
	assert.Contains(t, nerState["error"], "health status 503")
}

func TestSanitizeEndpoint(t *testing.T) {
	h := newTestServer(t, ner.Disabled{})

	rec := doRequest(t, h, http.MethodPost, "/v1/sanitize", testutil.FlatTicketJSON)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	assert.Equal(t, testutil.FlatTicketSanitized, out["description"])
	assert.Equal(t, float64(101), out["id"], "unknown fields pass through")
}

func TestSanitizeEndpointUsesNER(t *testing.T) {
	sidecar := testutil.NewSpacyServer(t)
	desc := "Dana Cruz rebooted the VPN gateway."
	sidecar.Add(desc, testutil.Entity(0, 9, "PERSON", "Dana Cruz"))

	client := ner.NewSpacyClient(sidecar.URL, "en_core_web_sm")
	h := newTestServer(t, client)

	rec := doRequest(t, h, http.MethodPost, "/v1/sanitize", `{"description": "`+desc+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	assert.Equal(t, "Person_1 rebooted the VPN gateway.", out["description"])
	assert.Equal(t, 1, sidecar.Calls())
	assert.Equal(t, "en_core_web_sm", sidecar.LastModel())
}

func TestSanitizeEndpointRejectsMalformedTicket(t *testing.T) {
	h := newTestServer(t, ner.Disabled{})

	rec := doRequest(t, h, http.MethodPost, "/v1/sanitize", `{"comments": []}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var out map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	assert.Equal(t, "invalid_ticket", out["error"])
	assert.Contains(t, out["message"], `missing "description"`)
}

func TestSanitizeEndpointNERUnavailable(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	client := ner.NewSpacyClient(deadURL, "en_core_web_sm")
	h := newTestServer(t, client)

	rec := doRequest(t, h, http.MethodPost, "/v1/sanitize", testutil.FlatTicketJSON)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	var out map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	assert.Equal(t, "ner_unavailable", out["error"])
	assert.Contains(t, out["message"], "cannot reach spaCy sidecar")
}

func TestSanitizeEndpointBodyTooLarge(t *testing.T) {
	h := newTestServer(t, ner.Disabled{}, WithMaxBody(64))

	rec := doRequest(t, h, http.MethodPost, "/v1/sanitize", strings.Repeat("x", 200))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	var out map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	assert.Equal(t, "request_too_large", out["error"])
}

func TestRunsEndpoints(t *testing.T) {
	store, err := audit.NewStore(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	h := newTestServer(t, ner.Disabled{}, WithAuditStore(store))

	rec := doRequest(t, h, http.MethodPost, "/v1/sanitize", testutil.FlatTicketJSON)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doRequest(t, h, http.MethodPost, "/v1/sanitize", `not json`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/v1/runs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Runs  []audit.Record `json:"runs"`
		Count int            `json:"count"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&listed))
	require.Equal(t, 2, listed.Count)
	for _, run := range listed.Runs {
		assert.Equal(t, audit.SourceHTTP, run.Source)
	}

	rec = doRequest(t, h, http.MethodGet, "/v1/runs?status=failed", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&listed))
	require.Equal(t, 1, listed.Count)
	assert.Equal(t, audit.StatusFailed, listed.Runs[0].Status)
	assert.NotContains(t, listed.Runs[0].Error, "john.smith", "audit rows never hold ticket text")

	rec = doRequest(t, h, http.MethodGet, "/v1/runs/summary", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var sum audit.Summary
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&sum))
	assert.Equal(t, 2, sum.Runs)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 2, sum.Fields, "description plus one comment body")
}

func TestRunsEndpointsDisabledWithoutStore(t *testing.T) {
	h := newTestServer(t, ner.Disabled{})

	for _, path := range []string{"/v1/runs", "/v1/runs/summary"} {
		rec := doRequest(t, h, http.MethodGet, path, "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
		var out map[string]string
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
		assert.Equal(t, "disabled", out["error"])
	}
}
