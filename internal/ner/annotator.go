// Package ner provides named-entity annotators for the sanitization engine.
// The engine treats the annotator as an external collaborator: when the
// backing model or service is missing, annotators return ErrModelUnavailable
// with manual remediation in the message. Models are never auto-installed.
package ner

import (
	"context"
	"errors"
	"time"
)

// TimeoutAnnotate bounds a single annotation call.
const TimeoutAnnotate = 30 * time.Second

// ErrModelUnavailable marks an unreachable or missing NER backend. The
// wrapped message carries remediation steps; callers abort the run.
var ErrModelUnavailable = errors.New("ner model unavailable")

// Labels emitted by annotators. Anything else a backend reports is dropped
// at the client boundary.
const (
	LabelPerson = "PERSON"
	LabelOrg    = "ORG"
	LabelGPE    = "GPE"
	LabelLoc    = "LOC"
)

// Entity is a named entity with half-open byte offsets into the annotated
// text; text[Start:End] == Text always holds for entities returned by the
// clients in this package.
type Entity struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Label string `json:"label"`
	Text  string `json:"text"`
}

// Annotator produces named entities for a text.
type Annotator interface {
	// Name returns the backend identifier (e.g. "spacy", "openai").
	Name() string
	// Annotate returns PERSON/ORG/GPE/LOC entities found in text.
	Annotate(ctx context.Context, text string) ([]Entity, error)
}

// HealthChecker is implemented by annotators that can probe their backend
// without annotating. Used by doctor and the serve health endpoint.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Disabled is the explicit opt-out annotator: structural matchers only.
// It must be configured deliberately; it is never a silent fallback.
type Disabled struct{}

// Name implements Annotator.
func (Disabled) Name() string { return "none" }

// Annotate implements Annotator and always returns no entities.
func (Disabled) Annotate(_ context.Context, _ string) ([]Entity, error) {
	return nil, nil
}

func allowedLabel(label string) bool {
	switch label {
	case LabelPerson, LabelOrg, LabelGPE, LabelLoc:
		return true
	}
	return false
}
