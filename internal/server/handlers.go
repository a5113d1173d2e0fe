package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/dativo-io/scrub/internal/audit"
	"github.com/dativo-io/scrub/internal/ner"
	scrubotel "github.com/dativo-io/scrub/internal/otel"
	"github.com/dativo-io/scrub/internal/sanitize"
	"github.com/dativo-io/scrub/internal/ticket"
)

// healthProbeTimeout bounds the NER reachability check so /health stays
// fast even when the sidecar is gone.
const healthProbeTimeout = 2 * time.Second

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code, "message": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	nerState := map[string]string{"backend": s.annotator.Name()}
	if _, ok := s.annotator.(ner.Disabled); ok {
		nerState["status"] = "disabled"
	} else if hc, ok := s.annotator.(ner.HealthChecker); ok {
		ctx, cancel := context.WithTimeout(r.Context(), healthProbeTimeout)
		defer cancel()
		if err := hc.Health(ctx); err != nil {
			nerState["status"] = "unreachable"
			nerState["error"] = err.Error()
		} else {
			nerState["status"] = "ok"
		}
	} else {
		nerState["status"] = "ok"
	}

	resp := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
		"ner":    nerState,
	}
	if s.auditStore == nil {
		resp["audit"] = "disabled"
	} else {
		resp["audit"] = "ok"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSanitize(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request_too_large",
				fmt.Sprintf("ticket JSON exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_request", "reading body: "+err.Error())
		return
	}

	out, report, err := sanitize.Bytes(r.Context(), s.sanitizer, body)
	if err != nil {
		status, code := errorStatus(err)
		log.Error().Err(err).
			Str("request_id", middleware.GetReqID(r.Context())).
			Int("status", status).
			Func(scrubotel.LogTraceFields(r.Context())).
			Msg("sanitize_http_failed")
		s.recordRun(r, audit.StatusFailed, err, nil, time.Since(start))
		writeError(w, status, code, err.Error())
		return
	}

	s.recordRun(r, audit.StatusOK, nil, report, time.Since(start))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

// errorStatus maps sanitization failures onto HTTP statuses: malformed
// input is the caller's fault, an unreachable model is an upstream fault,
// and anything else (including span conflicts) is ours.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ticket.ErrInputFormat):
		return http.StatusBadRequest, "invalid_ticket"
	case errors.Is(err, ner.ErrModelUnavailable):
		return http.StatusBadGateway, "ner_unavailable"
	case errors.Is(err, sanitize.ErrSpanConflict):
		return http.StatusInternalServerError, "span_conflict"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// recordRun writes the audit row for one HTTP sanitization. Audit failures
// are logged and swallowed; they never affect the response.
func (s *Server) recordRun(r *http.Request, status string, runErr error, report *sanitize.Report, elapsed time.Duration) {
	if s.auditStore == nil {
		return
	}
	rec := &audit.Record{
		Source:     audit.SourceHTTP,
		Input:      "request " + middleware.GetReqID(r.Context()),
		Status:     status,
		DurationMS: elapsed.Milliseconds(),
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	if report != nil {
		rec.Fields = report.Fields
		rec.Spans = make(map[string]int, len(report.Spans))
		for kind, n := range report.Spans {
			rec.Spans[string(kind)] = n
		}
	}
	if err := s.auditStore.Save(r.Context(), rec); err != nil {
		log.Warn().Err(err).Msg("audit_save_failed")
	}
}

func (s *Server) handleRunsList(w http.ResponseWriter, r *http.Request) {
	if s.auditStore == nil {
		writeError(w, http.StatusServiceUnavailable, "disabled", "audit store is disabled")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 50
	}
	source := r.URL.Query().Get("source")
	status := r.URL.Query().Get("status")
	runs, err := s.auditStore.List(r.Context(), source, status, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

func (s *Server) handleRunsSummary(w http.ResponseWriter, r *http.Request) {
	if s.auditStore == nil {
		writeError(w, http.StatusServiceUnavailable, "disabled", "audit store is disabled")
		return
	}
	summary, err := s.auditStore.Summarize(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
