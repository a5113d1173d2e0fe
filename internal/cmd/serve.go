package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dativo-io/scrub/internal/audit"
	"github.com/dativo-io/scrub/internal/config"
	"github.com/dativo-io/scrub/internal/server"
	"github.com/dativo-io/scrub/internal/trigger"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP sanitization API (plus the batch sweep when scheduled)",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config, :8787)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	annotator, err := newAnnotator(cfg)
	if err != nil {
		return err
	}
	s, err := newSanitizer(cfg, annotator, "")
	if err != nil {
		return err
	}

	// Audit unavailability degrades with a warning; serving continues.
	var auditStore *audit.Store
	if cfg.AuditEnabled {
		if err := cfg.EnsureDataDir(); err != nil {
			log.Warn().Err(err).Msg("audit_store_unavailable")
		} else if auditStore, err = audit.NewStore(cfg.AuditDBPath()); err != nil {
			log.Warn().Err(err).Msg("audit_store_unavailable")
			auditStore = nil
		} else {
			defer auditStore.Close()
		}
	}

	var opts []server.Option
	if auditStore != nil {
		opts = append(opts, server.WithAuditStore(auditStore))
	}
	srv := server.NewServer(s, annotator, opts...)

	var sweeper *trigger.Sweeper
	if cfg.SweepSchedule != "" {
		var sweepOpts []trigger.SweeperOption
		if auditStore != nil {
			sweepOpts = append(sweepOpts, trigger.WithAuditStore(auditStore))
		}
		sweeper = trigger.NewSweeper(s, cfg.SweepInDir, cfg.SweepOutDir, cfg.SweepFailDir, sweepOpts...)
		if err := sweeper.Register(cfg.SweepSchedule); err != nil {
			return fmt.Errorf("registering sweep: %w", err)
		}
		sweeper.Start()
		defer sweeper.Stop()
	}

	addr := serveAddr
	if addr == "" {
		addr = cfg.ListenAddr
	}
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      srv.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	log.Info().
		Str("addr", addr).
		Str("ner_backend", annotator.Name()).
		Bool("audit", auditStore != nil).
		Str("sweep_schedule", cfg.SweepSchedule).
		Msg("scrub_serve_started")

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown_signal_received")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("server_stopped")
	return nil
}
