// Package audit persists one record per sanitization run in SQLite.
// Records carry field and span counts only, never ticket text, names, or
// addresses, so the audit trail cannot leak what was redacted.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	scrubotel "github.com/dativo-io/scrub/internal/otel"
)

var tracer = scrubotel.Tracer("github.com/dativo-io/scrub/internal/audit")

// Run sources.
const (
	SourceCLI   = "cli"
	SourceHTTP  = "http"
	SourceSweep = "sweep"
)

// Run statuses.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Record is the audit entry for one sanitization run.
type Record struct {
	ID         string         `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	Source     string         `json:"source"`
	Input      string         `json:"input"` // display name, never content
	Status     string         `json:"status"`
	Error      string         `json:"error,omitempty"`
	Fields     int            `json:"fields"`
	Spans      map[string]int `json:"spans,omitempty"`
	DurationMS int64          `json:"duration_ms"`
}

// TotalSpans returns the rewritten span count across all kinds.
func (r *Record) TotalSpans() int {
	n := 0
	for _, c := range r.Spans {
		n += c
	}
	return n
}

// Store persists run records in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens (and if needed creates) the audit database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening audit database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		timestamp TIMESTAMP NOT NULL,
		source TEXT NOT NULL,
		input TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		fields INTEGER NOT NULL,
		spans_json TEXT NOT NULL,
		duration_ms INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_timestamp ON runs(timestamp);
	CREATE INDEX IF NOT EXISTS idx_runs_source ON runs(source);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
	`

	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating audit schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save persists a run record. A missing ID or timestamp is filled in.
func (s *Store) Save(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	ctx, span := tracer.Start(ctx, "audit.save",
		trace.WithAttributes(
			attribute.String("audit.id", rec.ID),
			attribute.String("audit.source", rec.Source),
			attribute.String("audit.status", rec.Status),
		))
	defer span.End()

	spansJSON, err := json.Marshal(rec.Spans)
	if err != nil {
		return fmt.Errorf("marshalling span counts: %w", err)
	}

	query := `INSERT INTO runs (id, timestamp, source, input, status, error, fields, spans_json, duration_ms)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		rec.ID, rec.Timestamp, rec.Source, rec.Input, rec.Status, rec.Error,
		rec.Fields, string(spansJSON), rec.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("storing audit record: %w", err)
	}
	return nil
}

// List returns records, newest first, optionally filtered by source and
// status. limit <= 0 means no limit.
func (s *Store) List(ctx context.Context, source, status string, limit int) ([]Record, error) {
	ctx, span := tracer.Start(ctx, "audit.list",
		trace.WithAttributes(attribute.String("audit.source", source)))
	defer span.End()

	query := `SELECT id, timestamp, source, input, status, error, fields, spans_json, duration_ms FROM runs WHERE 1=1`
	args := []any{}

	if source != "" {
		query += ` AND source = ?`
		args = append(args, source)
	}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY timestamp DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var spansJSON string
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.Source, &rec.Input,
			&rec.Status, &rec.Error, &rec.Fields, &spansJSON, &rec.DurationMS); err != nil {
			return nil, fmt.Errorf("scanning audit record: %w", err)
		}
		if err := json.Unmarshal([]byte(spansJSON), &rec.Spans); err != nil {
			return nil, fmt.Errorf("unmarshalling span counts: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Summary aggregates all runs.
type Summary struct {
	Runs   int            `json:"runs"`
	Failed int            `json:"failed"`
	Fields int            `json:"fields"`
	Spans  map[string]int `json:"spans"`
}

// Summarize folds every record into totals per span kind.
func (s *Store) Summarize(ctx context.Context) (*Summary, error) {
	ctx, span := tracer.Start(ctx, "audit.summarize")
	defer span.End()

	rows, err := s.db.QueryContext(ctx, `SELECT status, fields, spans_json FROM runs`)
	if err != nil {
		return nil, fmt.Errorf("querying audit records: %w", err)
	}
	defer rows.Close()

	sum := &Summary{Spans: make(map[string]int)}
	for rows.Next() {
		var status, spansJSON string
		var fields int
		if err := rows.Scan(&status, &fields, &spansJSON); err != nil {
			return nil, fmt.Errorf("scanning audit record: %w", err)
		}
		sum.Runs++
		if status == StatusFailed {
			sum.Failed++
		}
		sum.Fields += fields

		var spans map[string]int
		if err := json.Unmarshal([]byte(spansJSON), &spans); err != nil {
			return nil, fmt.Errorf("unmarshalling span counts: %w", err)
		}
		for kind, n := range spans {
			sum.Spans[kind] += n
		}
	}
	return sum, rows.Err()
}
