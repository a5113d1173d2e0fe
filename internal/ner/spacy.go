package ner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	scrubotel "github.com/dativo-io/scrub/internal/otel"
)

var tracer = scrubotel.Tracer("github.com/dativo-io/scrub/internal/ner")

// spacyRemediation is appended to unavailability errors so the operator
// knows how to fix the environment by hand. scrub never installs models.
const spacyRemediation = "start the spaCy NER sidecar and install the model manually " +
	"(pip install spacy && python -m spacy download %s); run `scrub doctor` to re-check"

// SpacyClient talks to a spaCy NER sidecar over HTTP. The sidecar accepts
// POST /ner {"text": ..., "model": ...} and answers
// {"entities": [{"start", "end", "label", "text"}]} with RUNE offsets,
// which this client converts to byte offsets.
type SpacyClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// SpacyOption configures a SpacyClient.
type SpacyOption func(*SpacyClient)

// WithHTTPClient overrides the HTTP client (tests).
func WithHTTPClient(hc *http.Client) SpacyOption {
	return func(c *SpacyClient) { c.httpClient = hc }
}

// WithRateLimit caps annotation calls per second.
func WithRateLimit(perSecond int) SpacyOption {
	return func(c *SpacyClient) {
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), perSecond)
	}
}

// NewSpacyClient creates a client for the sidecar at baseURL using the
// given spaCy model name (e.g. "en_core_web_sm").
func NewSpacyClient(baseURL, model string, opts ...SpacyOption) *SpacyClient {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	c := &SpacyClient{
		baseURL:    baseURL,
		model:      model,
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(rate.Limit(5), 5),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Name implements Annotator.
func (c *SpacyClient) Name() string { return "spacy" }

type spacyRequest struct {
	Text  string `json:"text"`
	Model string `json:"model,omitempty"`
}

type spacyResponse struct {
	Entities []Entity `json:"entities"`
}

// Annotate implements Annotator.
func (c *SpacyClient) Annotate(ctx context.Context, text string) ([]Entity, error) {
	ctx, span := tracer.Start(ctx, "ner.annotate",
		trace.WithAttributes(
			attribute.String("ner.backend", c.Name()),
			attribute.String("ner.model", c.model),
			attribute.Int("ner.text_bytes", len(text)),
		))
	defer span.End()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("ner rate limiter: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, TimeoutAnnotate)
	defer cancel()

	body, err := json.Marshal(spacyRequest{Text: text, Model: c.model})
	if err != nil {
		return nil, fmt.Errorf("marshalling ner request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ner", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating ner request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: cannot reach spaCy sidecar at %s: %v; "+spacyRemediation,
			ErrModelUnavailable, c.baseURL, err, c.model)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound, http.StatusServiceUnavailable:
		return nil, fmt.Errorf("%w: spaCy sidecar at %s has no model %q; "+spacyRemediation,
			ErrModelUnavailable, c.baseURL, c.model, c.model)
	default:
		return nil, fmt.Errorf("spaCy sidecar returned status %d", resp.StatusCode)
	}

	var apiResp spacyResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decoding ner response: %w", err)
	}

	entities := convertOffsets(text, apiResp.Entities)
	span.SetAttributes(attribute.Int("ner.entity_count", len(entities)))
	return entities, nil
}

// Health probes the sidecar. Used by doctor and the serve health endpoint.
func (c *SpacyClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("creating health request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: cannot reach spaCy sidecar at %s: %v; "+spacyRemediation,
			ErrModelUnavailable, c.baseURL, err, c.model)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: spaCy sidecar at %s health status %d; "+spacyRemediation,
			ErrModelUnavailable, c.baseURL, resp.StatusCode, c.model)
	}
	return nil
}

// convertOffsets maps spaCy's rune offsets to byte offsets and drops
// entities that do not line up with the text or carry a foreign label.
// After conversion text[Start:End] == Text holds for every entity.
func convertOffsets(text string, in []Entity) []Entity {
	if len(in) == 0 {
		return nil
	}

	runeIdx := make([]int, 0, utf8.RuneCountInString(text)+1)
	for i := range text {
		runeIdx = append(runeIdx, i)
	}
	runeIdx = append(runeIdx, len(text))

	var out []Entity
	for _, e := range in {
		if !allowedLabel(e.Label) || e.Start < 0 || e.End <= e.Start {
			continue
		}
		start, end := -1, -1
		if e.End < len(runeIdx) {
			if rs, re := runeIdx[e.Start], runeIdx[e.End]; text[rs:re] == e.Text {
				start, end = rs, re
			}
		}
		// Offsets that were already byte-based still line up; accept them.
		if start < 0 && e.End <= len(text) && text[e.Start:e.End] == e.Text {
			start, end = e.Start, e.End
		}
		if start < 0 {
			continue
		}
		out = append(out, Entity{Start: start, End: end, Label: e.Label, Text: e.Text})
	}
	return out
}
