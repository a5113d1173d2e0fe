// Package server exposes the sanitization engine over HTTP: a sanitize
// endpoint for single tickets, a health probe that reports NER
// reachability, and read-only access to the audit trail.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dativo-io/scrub/internal/audit"
	"github.com/dativo-io/scrub/internal/ner"
	"github.com/dativo-io/scrub/internal/otel"
	"github.com/dativo-io/scrub/internal/sanitize"
)

const defaultTimeout = 60 * time.Second

// defaultMaxBody caps the sanitize request body. Support tickets are text;
// anything past a few megabytes is not a ticket.
const defaultMaxBody = 10 << 20

// Server holds the dependencies for the HTTP API.
type Server struct {
	router     *chi.Mux
	sanitizer  *sanitize.Sanitizer
	annotator  ner.Annotator
	auditStore *audit.Store
	maxBody    int64
	startTime  time.Time
}

// Option configures the Server.
type Option func(*Server)

// WithAuditStore enables the run trail endpoints and per-request audit
// records. A nil store leaves auditing disabled.
func WithAuditStore(st *audit.Store) Option {
	return func(s *Server) { s.auditStore = st }
}

// WithMaxBody overrides the sanitize request body limit in bytes.
func WithMaxBody(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBody = n
		}
	}
}

// NewServer builds a Server around a configured sanitizer. The annotator is
// the same one the sanitizer uses; it is passed separately so the health
// endpoint can probe it.
func NewServer(sanitizer *sanitize.Sanitizer, annotator ner.Annotator, opts ...Option) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		sanitizer: sanitizer,
		annotator: annotator,
		maxBody:   defaultMaxBody,
		startTime: time.Now(),
	}
	if s.annotator == nil {
		s.annotator = ner.Disabled{}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns the configured http.Handler (chi router with all
// middleware and routes).
func (s *Server) Routes() http.Handler {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(otel.MiddlewareWithStatus())

	r.Get("/health", s.handleHealth)
	r.Get("/v1/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(defaultTimeout))
		r.Post("/v1/sanitize", s.handleSanitize)
		r.Get("/v1/runs", s.handleRunsList)
		r.Get("/v1/runs/summary", s.handleRunsSummary)
	})

	return r
}
