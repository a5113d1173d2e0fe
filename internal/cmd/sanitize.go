package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/dativo-io/scrub/internal/audit"
	"github.com/dativo-io/scrub/internal/config"
	scrubotel "github.com/dativo-io/scrub/internal/otel"
	"github.com/dativo-io/scrub/internal/sanitize"
)

var sanitizeWhitelist string

var sanitizeCmd = &cobra.Command{
	Use:   "sanitize <input> <output>",
	Short: "Sanitize one support ticket JSON export",
	Long: `Reads a ticket JSON export, removes personal data, and writes the
sanitized ticket. Use "-" as input or output for stdin/stdout.

The output is all-or-nothing: on any failure no output file is written.`,
	Args: cobra.ExactArgs(2),
	RunE: runSanitize,
}

func init() {
	sanitizeCmd.Flags().StringVar(&sanitizeWhitelist, "vendor-whitelist", "",
		"vendor allow-list file, one name per line (replaces the built-in list)")
	rootCmd.AddCommand(sanitizeCmd)
}

func runSanitize(cmd *cobra.Command, args []string) error {
	ctx, span := tracer.Start(cmd.Context(), "sanitize")
	defer span.End()

	input, output := args[0], args[1]

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	annotator, err := newAnnotator(cfg)
	if err != nil {
		return err
	}
	s, err := newSanitizer(cfg, annotator, sanitizeWhitelist)
	if err != nil {
		return err
	}

	data, err := readInput(input)
	if err != nil {
		return err
	}

	started := time.Now()
	out, report, runErr := sanitize.Bytes(ctx, s, data)
	recordCLIRun(ctx, cfg, displayName(input), report, runErr, time.Since(started))
	if runErr != nil {
		return runErr
	}

	pretty, err := sanitize.Indent(out)
	if err != nil {
		return err
	}
	if err := writeOutput(output, pretty); err != nil {
		return err
	}

	span.SetAttributes(
		attribute.Int("sanitize.fields", report.Fields),
		attribute.Int("sanitize.spans", report.TotalSpans()),
	)
	log.Info().
		Str("input", displayName(input)).
		Str("output", displayName(output)).
		Int("fields", report.Fields).
		Int("spans", report.TotalSpans()).
		Dur("duration", report.Duration).
		Func(scrubotel.LogTraceFields(ctx)).
		Msg("ticket_sanitized")
	return nil
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

func writeOutput(path string, data []byte) error {
	if path == "-" {
		if _, err := os.Stdout.Write(data); err != nil {
			return fmt.Errorf("writing stdout: %w", err)
		}
		return nil
	}
	return sanitize.WriteAtomic(path, data)
}

func displayName(path string) string {
	if path == "-" {
		return "stdin"
	}
	return filepath.Base(path)
}

// recordCLIRun appends the audit row for one CLI run. The store is opened
// per invocation; any audit problem is logged and swallowed so it never
// blocks the sanitization itself.
func recordCLIRun(ctx context.Context, cfg *config.Config, input string, report *sanitize.Report, runErr error, elapsed time.Duration) {
	if !cfg.AuditEnabled {
		return
	}
	if err := cfg.EnsureDataDir(); err != nil {
		log.Warn().Err(err).Msg("audit_store_unavailable")
		return
	}
	store, err := audit.NewStore(cfg.AuditDBPath())
	if err != nil {
		log.Warn().Err(err).Msg("audit_store_unavailable")
		return
	}
	defer store.Close()

	rec := &audit.Record{
		Source:     audit.SourceCLI,
		Input:      input,
		Status:     audit.StatusOK,
		DurationMS: elapsed.Milliseconds(),
	}
	if runErr != nil {
		rec.Status = audit.StatusFailed
		rec.Error = runErr.Error()
	}
	if report != nil {
		rec.Fields = report.Fields
		rec.Spans = make(map[string]int, len(report.Spans))
		for kind, n := range report.Spans {
			rec.Spans[string(kind)] = n
		}
	}
	if err := store.Save(ctx, rec); err != nil {
		log.Warn().Err(err).Msg("audit_save_failed")
	}
}
