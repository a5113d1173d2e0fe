package ner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	scrubotel "github.com/dativo-io/scrub/internal/otel"
)

// nerSystemPrompt asks for a strict JSON detection list. Location in the
// source text is resolved client-side, so the model only names what it saw.
const nerSystemPrompt = `You are a named-entity recognizer for IT support tickets.
Find every person name (PERSON), company or organization name (ORG), country or city (GPE), and other location (LOC) in the user's text.
Respond with ONLY a JSON array, no prose: [{"text": "<exact substring>", "label": "PERSON|ORG|GPE|LOC"}]
Each "text" must be copied verbatim from the input. Respond with [] when nothing is found.`

const openaiRemediation = "check that the endpoint is reachable and the model is pulled " +
	"(for an Ollama endpoint: ollama pull %s); scrub never installs models itself"

// OpenAIAnnotator extracts entities through any OpenAI-compatible chat
// completions API, including Ollama's /v1 endpoint. Useful where no spaCy
// sidecar is deployed but a local model host is.
type OpenAIAnnotator struct {
	client *openai.Client
	model  string
	system string
}

// NewOpenAIAnnotator creates an annotator against the given base URL
// (e.g. "http://localhost:11434/v1"). An empty apiKey is valid for
// keyless endpoints.
func NewOpenAIAnnotator(baseURL, apiKey, model string) *OpenAIAnnotator {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIAnnotator{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		system: "openai",
	}
}

// Name implements Annotator.
func (a *OpenAIAnnotator) Name() string { return "openai" }

type llmDetection struct {
	Text  string `json:"text"`
	Label string `json:"label"`
}

// Annotate implements Annotator.
func (a *OpenAIAnnotator) Annotate(ctx context.Context, text string) ([]Entity, error) {
	ctx, span := tracer.Start(ctx, "ner.annotate",
		trace.WithAttributes(scrubotel.LLMRequestAttributes(a.system, a.model, 0, 0)...))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, TimeoutAnnotate)
	defer cancel()

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       a.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: nerSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: chat completion against %s model %q: %v; "+openaiRemediation,
			ErrModelUnavailable, a.system, a.model, err, a.model)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("ner chat completion: no choices returned")
	}

	span.SetAttributes(scrubotel.LLMUsageAttributes(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)...)

	detections, err := parseDetections(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, fmt.Errorf("parsing ner detections: %w", err)
	}

	entities := locateDetections(text, detections)
	span.SetAttributes(attribute.Int("ner.entity_count", len(entities)))
	return entities, nil
}

// Health implements HealthChecker by listing models on the endpoint.
func (a *OpenAIAnnotator) Health(ctx context.Context) error {
	if _, err := a.client.ListModels(ctx); err != nil {
		return fmt.Errorf("%w: listing models: %v; "+openaiRemediation,
			ErrModelUnavailable, err, a.model)
	}
	return nil
}

// parseDetections unmarshals the model's JSON array, tolerating markdown
// code fences around it.
func parseDetections(content string) ([]llmDetection, error) {
	content = strings.TrimSpace(content)
	if i := strings.Index(content, "["); i >= 0 {
		if j := strings.LastIndex(content, "]"); j > i {
			content = content[i : j+1]
		}
	}
	if content == "" {
		return nil, nil
	}
	var dets []llmDetection
	if err := json.Unmarshal([]byte(content), &dets); err != nil {
		return nil, fmt.Errorf("model did not return a JSON array: %w", err)
	}
	return dets, nil
}

// locateDetections finds every occurrence of each detected string in the
// source text and emits byte-offset entities. Detections not present
// verbatim in the text are dropped.
func locateDetections(text string, detections []llmDetection) []Entity {
	var out []Entity
	seen := make(map[[2]int]bool)
	for _, d := range detections {
		if d.Text == "" || !allowedLabel(d.Label) {
			continue
		}
		for from := 0; ; {
			i := strings.Index(text[from:], d.Text)
			if i < 0 {
				break
			}
			start := from + i
			end := start + len(d.Text)
			if !seen[[2]int{start, end}] {
				seen[[2]int{start, end}] = true
				out = append(out, Entity{Start: start, End: end, Label: d.Label, Text: d.Text})
			}
			from = end
		}
	}
	return out
}
