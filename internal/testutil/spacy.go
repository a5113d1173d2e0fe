// Package testutil provides shared test doubles: a fake spaCy NER sidecar
// and canned ticket payloads used by server, trigger, and cmd tests.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/dativo-io/scrub/internal/ner"
)

// SpacyServer is an httptest stand-in for the spaCy NER sidecar. It answers
// POST /ner with the entities registered for the exact request text and
// GET /health with 200. Register entities with rune offsets, as the real
// sidecar reports them (for ASCII fixtures rune and byte offsets coincide).
type SpacyServer struct {
	*httptest.Server

	mu        sync.Mutex
	entities  map[string][]ner.Entity
	failCode  int
	nerCalls  int
	lastModel string
}

// NewSpacyServer starts a fake sidecar and closes it on test cleanup.
func NewSpacyServer(t *testing.T) *SpacyServer {
	t.Helper()
	s := &SpacyServer{entities: make(map[string][]ner.Entity)}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// Add registers the entities returned for an exact text.
func (s *SpacyServer) Add(text string, ents ...ner.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[text] = append(s.entities[text], ents...)
}

// FailWith makes every endpoint answer with the given status until reset
// with FailWith(0). Use 404 to simulate a missing model.
func (s *SpacyServer) FailWith(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCode = status
}

// Calls returns the number of /ner requests served.
func (s *SpacyServer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nerCalls
}

// LastModel returns the model name from the most recent /ner request.
func (s *SpacyServer) LastModel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastModel
}

func (s *SpacyServer) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failCode != 0 {
		http.Error(w, http.StatusText(s.failCode), s.failCode)
		return
	}

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/health":
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	case r.Method == http.MethodPost && r.URL.Path == "/ner":
		var req struct {
			Text  string `json:"text"`
			Model string `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.nerCalls++
		s.lastModel = req.Model
		ents := s.entities[req.Text]
		if ents == nil {
			ents = []ner.Entity{}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"entities": ents})
	default:
		http.NotFound(w, r)
	}
}

// Entity builds a ner.Entity, keeping call sites on one line.
func Entity(start, end int, label, text string) ner.Entity {
	return ner.Entity{Start: start, End: end, Label: label, Text: text}
}
