// Package trigger implements the scheduled batch sweep: a cron job that
// sanitizes every ticket export dropped into a watch directory.
package trigger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/dativo-io/scrub/internal/audit"
	"github.com/dativo-io/scrub/internal/sanitize"
)

// sweepTimeout bounds one full pass over the watch directory.
const sweepTimeout = 10 * time.Minute

// Sweeper periodically sanitizes every *.json file in a watch directory.
// Inputs are consumed: a successfully sanitized file is removed from the
// watch directory, a failed one is moved to the fail directory for
// operator inspection.
type Sweeper struct {
	cron       *cron.Cron
	sanitizer  *sanitize.Sanitizer
	auditStore *audit.Store
	inDir      string
	outDir     string
	failDir    string
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithAuditStore records one audit row per swept file.
func WithAuditStore(st *audit.Store) SweeperOption {
	return func(s *Sweeper) { s.auditStore = st }
}

// NewSweeper creates a sweeper over the given directories. failDir may be
// empty, in which case failed inputs stay in place and are retried on the
// next tick.
func NewSweeper(sanitizer *sanitize.Sanitizer, inDir, outDir, failDir string, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		cron:      cron.New(),
		sanitizer: sanitizer,
		inDir:     inDir,
		outDir:    outDir,
		failDir:   failDir,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds the sweep under a cron schedule. Expressions use the
// standard 5-field format: minute hour day-of-month month day-of-week
// (e.g. "*/15 * * * *" for every 15 minutes).
func (s *Sweeper) Register(schedule string) error {
	_, err := s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()
		ok, failed, err := s.Sweep(ctx)
		if err != nil {
			log.Error().Err(err).Str("in_dir", s.inDir).Msg("sweep_failed")
			return
		}
		if ok+failed > 0 {
			log.Info().Int("sanitized", ok).Int("failed", failed).Msg("sweep_completed")
		}
	})
	if err != nil {
		return fmt.Errorf("registering sweep schedule %q: %w", schedule, err)
	}
	return nil
}

// Start begins executing the registered schedule.
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for a running sweep to complete.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Entries returns the number of registered cron entries (for testing).
func (s *Sweeper) Entries() int {
	return len(s.cron.Entries())
}

// Sweep runs one pass: every *.json in the watch directory is sanitized
// into the output directory under the same name. A failing file is moved
// aside and never stops the rest of the batch. Returns the sanitized and
// failed counts; the error covers directory-level problems only.
func (s *Sweeper) Sweep(ctx context.Context) (ok, failed int, err error) {
	if err := os.MkdirAll(s.outDir, 0o700); err != nil {
		return 0, 0, fmt.Errorf("creating sweep output dir: %w", err)
	}
	matches, err := filepath.Glob(filepath.Join(s.inDir, "*.json"))
	if err != nil {
		return 0, 0, fmt.Errorf("listing sweep dir: %w", err)
	}

	for _, path := range matches {
		if err := ctx.Err(); err != nil {
			return ok, failed, err
		}
		if s.sweepOne(ctx, path) {
			ok++
		} else {
			failed++
		}
	}
	return ok, failed, nil
}

func (s *Sweeper) sweepOne(ctx context.Context, path string) bool {
	name := filepath.Base(path)
	started := time.Now()
	report, err := sanitize.File(ctx, s.sanitizer, path, filepath.Join(s.outDir, name))
	s.record(ctx, name, report, err, time.Since(started))
	if err != nil {
		log.Error().Err(err).Str("file", name).Msg("sweep_file_failed")
		s.moveAside(path)
		return false
	}

	// The raw export is consumed on success; leaving it would re-run it
	// next tick and keep unsanitized text on disk.
	if err := os.Remove(path); err != nil {
		log.Warn().Err(err).Str("file", name).Msg("sweep_input_remove_failed")
	}
	log.Debug().
		Str("file", name).
		Int("fields", report.Fields).
		Int("spans", report.TotalSpans()).
		Msg("sweep_file_sanitized")
	return true
}

func (s *Sweeper) moveAside(path string) {
	if s.failDir == "" {
		return
	}
	if err := os.MkdirAll(s.failDir, 0o700); err != nil {
		log.Warn().Err(err).Msg("sweep_fail_dir_create_failed")
		return
	}
	dest := filepath.Join(s.failDir, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		log.Warn().Err(err).Str("file", filepath.Base(path)).Msg("sweep_move_aside_failed")
	}
}

func (s *Sweeper) record(ctx context.Context, name string, report *sanitize.Report, runErr error, elapsed time.Duration) {
	if s.auditStore == nil {
		return
	}
	rec := &audit.Record{
		Source:     audit.SourceSweep,
		Input:      name,
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
	if err := s.auditStore.Save(ctx, rec); err != nil {
		log.Warn().Err(err).Msg("audit_save_failed")
	}
}
