package sanitize

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/dativo-io/scrub/internal/ner"
	scrubotel "github.com/dativo-io/scrub/internal/otel"
	"github.com/dativo-io/scrub/internal/ticket"
)

var tracer = scrubotel.Tracer("github.com/dativo-io/scrub/internal/sanitize")

// Sanitizer is the ticket sanitization engine. It is safe for concurrent
// use; all per-ticket state lives in the LabelRegistry created per call.
type Sanitizer struct {
	annotator  ner.Annotator
	vendor     *VendorFilter
	matchers   []Matcher
	sig        SignatureDetector
	customRepl map[Kind]string
}

// Option configures a Sanitizer via the functional options pattern.
type Option func(*sanitizerConfig)

type sanitizerConfig struct {
	vendor      *VendorFilter
	patternFile string
	sig         SignatureDetector
}

// WithVendorFilter replaces the default vendor filter (embedded allow-list).
func WithVendorFilter(f *VendorFilter) Option {
	return func(c *sanitizerConfig) { c.vendor = f }
}

// WithPatternFile layers operator matcher definitions over the built-ins.
// A missing file is silently skipped.
func WithPatternFile(path string) Option {
	return func(c *sanitizerConfig) { c.patternFile = path }
}

// WithSignatureDetector replaces the default trailing-block heuristic.
func WithSignatureDetector(d SignatureDetector) Option {
	return func(c *sanitizerConfig) { c.sig = d }
}

// New creates a Sanitizer. Without options it uses the embedded matchers,
// the embedded vendor list, and the default signature heuristic. A nil
// annotator means structural-only sanitization; configure that explicitly
// through the ner backend setting, never as a fallback.
func New(annotator ner.Annotator, opts ...Option) (*Sanitizer, error) {
	var cfg sanitizerConfig
	for _, o := range opts {
		o(&cfg)
	}
	if annotator == nil {
		annotator = ner.Disabled{}
	}

	matchers, err := LoadMatchers(cfg.patternFile)
	if err != nil {
		return nil, err
	}

	vendor := cfg.vendor
	if vendor == nil {
		vendor, err = NewVendorFilter(DefaultVendors())
		if err != nil {
			return nil, fmt.Errorf("building default vendor filter: %w", err)
		}
	}

	sig := cfg.sig
	if sig == nil {
		sig = NewTrailingBlockDetector()
	}

	customRepl := make(map[Kind]string)
	for _, m := range matchers {
		if m.Replacement != "" {
			customRepl[m.Kind] = m.Replacement
		}
	}

	return &Sanitizer{
		annotator:  annotator,
		vendor:     vendor,
		matchers:   matchers,
		sig:        sig,
		customRepl: customRepl,
	}, nil
}

// Report summarizes one ticket run: fields processed and spans rewritten
// by kind. Preserved spans (whitelisted vendors, support URLs) are not
// counted. The report never contains raw values.
type Report struct {
	Fields   int
	Spans    map[Kind]int
	Duration time.Duration
}

// TotalSpans returns the number of rewritten spans across all kinds.
func (r *Report) TotalSpans() int {
	n := 0
	for _, c := range r.Spans {
		n += c
	}
	return n
}

// SanitizeTicket sanitizes a parsed ticket document in place: identity
// fields first, then subject and description, then comments in order, all
// sharing one label registry. Any field failure aborts the whole ticket;
// the caller must not serialize the document after an error.
func (s *Sanitizer) SanitizeTicket(ctx context.Context, doc *ticket.Document) (*Report, error) {
	ctx, span := tracer.Start(ctx, "sanitize.ticket")
	defer span.End()

	started := time.Now()
	reg := NewLabelRegistry()
	report := &Report{Spans: make(map[Kind]int)}

	for _, p := range doc.People {
		s.sanitizePerson(p, reg, report)
	}

	var err error
	if doc.Shape == ticket.ShapeZendesk {
		if doc.Subject, err = s.sanitizeField(ctx, "ticket.subject", doc.Subject, reg, report); err != nil {
			return nil, err
		}
		if doc.Description, err = s.sanitizeField(ctx, "ticket.description", doc.Description, reg, report); err != nil {
			return nil, err
		}
	} else {
		if doc.Description, err = s.sanitizeField(ctx, "description", doc.Description, reg, report); err != nil {
			return nil, err
		}
	}

	for i := range doc.Comments {
		c := &doc.Comments[i]
		if c.Author != nil {
			s.sanitizePerson(c.Author, reg, report)
		}
		path := fmt.Sprintf("comments[%d].body", i)
		if c.Body, err = s.sanitizeField(ctx, path, c.Body, reg, report); err != nil {
			return nil, err
		}
	}

	report.Duration = time.Since(started)
	recordTicketMetrics(ctx, report)

	span.SetAttributes(
		attribute.Int("sanitize.fields", report.Fields),
		attribute.Int("sanitize.spans", report.TotalSpans()),
	)
	return report, nil
}

// sanitizePerson pseudonymizes an identity field pair through the shared
// registry so a requester named in ticket text gets the same label there.
func (s *Sanitizer) sanitizePerson(p *ticket.Person, reg *LabelRegistry, report *Report) {
	if p.Name != "" {
		p.Name = reg.LabelFor(KindPerson, p.Name)
		report.Spans[KindPerson]++
	}
	if p.Email != "" {
		p.Email = reg.LabelFor(KindEmail, p.Email)
		report.Spans[KindEmail]++
	}
}

// sanitizeField runs the full pipeline on one text field: annotate,
// match, filter, resolve, rewrite.
func (s *Sanitizer) sanitizeField(ctx context.Context, path, text string, reg *LabelRegistry, report *Report) (string, error) {
	report.Fields++
	if text == "" {
		return "", nil
	}

	ctx, span := tracer.Start(ctx, "sanitize.field")
	span.SetAttributes(
		attribute.String("sanitize.path", path),
		attribute.Int("sanitize.text_bytes", len(text)),
	)
	defer span.End()

	entities, err := s.annotator.Annotate(ctx, text)
	if err != nil {
		recordNERFailure(ctx, s.annotator.Name())
		return "", fmt.Errorf("annotating %s: %w", path, err)
	}

	var candidates []Span
	for _, e := range entities {
		kind := Kind(e.Label)
		if !isNERKind(kind) {
			continue
		}
		sp := Span{Start: e.Start, End: e.End, Kind: kind, Raw: e.Text}
		if sp.validate(text) != nil {
			log.Debug().Str("path", path).Str("kind", e.Label).Msg("ner_span_dropped")
			continue
		}
		if s.vendor.ShouldPreserve(kind, e.Text) {
			log.Debug().Str("path", path).Str("kind", e.Label).Msg("vendor_preserved")
			continue
		}
		candidates = append(candidates, sp)
	}

	for i := range s.matchers {
		candidates = append(candidates, s.matchers[i].FindSpans(text)...)
	}

	if sig, ok := s.sig.Detect(text); ok {
		candidates = append(candidates, sig)
	}

	accepted, err := Resolve(text, candidates)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", path, err)
	}

	// Replacements are computed in start order so counter labels number by
	// first appearance in the text.
	repls := make([]string, len(accepted))
	for i, sp := range accepted {
		repls[i] = s.replacement(sp, reg)
		if repls[i] != sp.Raw {
			report.Spans[sp.Kind]++
		}
		log.Debug().
			Str("path", path).
			Str("kind", string(sp.Kind)).
			Int("start", sp.Start).
			Int("end", sp.End).
			Bool("preserved", repls[i] == sp.Raw).
			Msg("span_resolved")
	}

	i := 0
	out := Rewrite(text, accepted, func(Span) string {
		r := repls[i]
		i++
		return r
	})
	return out, nil
}

// replacement decides the output text for an accepted span.
func (s *Sanitizer) replacement(sp Span, reg *LabelRegistry) string {
	switch {
	case sp.Kind == KindSignature:
		return ""
	case sp.Kind == KindURL:
		class, id := s.vendor.ClassifyURL(sp.Raw)
		switch class {
		case URLSupportPreserve, URLVendorPreserve:
			return sp.Raw
		case URLEntityLink:
			return "Entity " + id
		default:
			return reg.LabelFor(KindURL, sp.Raw)
		}
	default:
		if repl, ok := s.customRepl[sp.Kind]; ok {
			return repl
		}
		return reg.LabelFor(sp.Kind, sp.Raw)
	}
}
