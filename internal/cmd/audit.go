package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/dativo-io/scrub/internal/audit"
	"github.com/dativo-io/scrub/internal/config"
)

var (
	auditSource string
	auditStatus string
	auditLimit  int
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Query the sanitization run trail",
	Long:  "The audit trail records per-run counts only; it never contains ticket text or matched values.",
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent sanitization runs",
	RunE:  auditList,
}

var auditSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Aggregate counts across all recorded runs",
	RunE:  auditSummary,
}

func init() {
	auditListCmd.Flags().StringVar(&auditSource, "source", "", "filter by source (cli, http, sweep)")
	auditListCmd.Flags().StringVar(&auditStatus, "status", "", "filter by status (ok, failed)")
	auditListCmd.Flags().IntVar(&auditLimit, "limit", 20, "maximum records to show")

	auditCmd.AddCommand(auditListCmd)
	auditCmd.AddCommand(auditSummaryCmd)
	rootCmd.AddCommand(auditCmd)
}

func openAuditStore() (*audit.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return audit.NewStore(cfg.AuditDBPath())
}

func auditList(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	store, err := openAuditStore()
	if err != nil {
		return fmt.Errorf("initializing audit store: %w", err)
	}
	defer store.Close()

	runs, err := store.List(ctx, auditSource, auditStatus, auditLimit)
	if err != nil {
		return fmt.Errorf("querying audit trail: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("No sanitization runs recorded.")
		return nil
	}
	renderRunList(os.Stdout, runs)
	return nil
}

func auditSummary(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	store, err := openAuditStore()
	if err != nil {
		return fmt.Errorf("initializing audit store: %w", err)
	}
	defer store.Close()

	sum, err := store.Summarize(ctx)
	if err != nil {
		return fmt.Errorf("summarizing audit trail: %w", err)
	}
	renderSummary(os.Stdout, sum)
	return nil
}

// renderRunList writes run lines to w (testable).
func renderRunList(w io.Writer, runs []audit.Record) {
	fmt.Fprintf(w, "Sanitization runs (showing %d):\n\n", len(runs))
	for i := range runs {
		r := &runs[i]
		status := "✓"
		if r.Status != audit.StatusOK {
			status = "✗"
		}
		fmt.Fprintf(w, "%s %s  %-5s  %s  fields=%d spans=%d  %dms\n",
			status, r.Timestamp.Format(time.RFC3339), r.Source, r.Input,
			r.Fields, r.TotalSpans(), r.DurationMS)
		if r.Error != "" {
			fmt.Fprintf(w, "    error: %s\n", r.Error)
		}
	}
}

// renderSummary writes aggregate counts to w (testable).
func renderSummary(w io.Writer, sum *audit.Summary) {
	fmt.Fprintf(w, "Runs:   %d (%d failed)\n", sum.Runs, sum.Failed)
	fmt.Fprintf(w, "Fields: %d\n", sum.Fields)

	kinds := make([]string, 0, len(sum.Spans))
	for kind := range sum.Spans {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	fmt.Fprintf(w, "Spans:\n")
	for _, kind := range kinds {
		fmt.Fprintf(w, "  %-12s %d\n", kind, sum.Spans[kind])
	}
	if len(kinds) == 0 {
		fmt.Fprintf(w, "  (none)\n")
	}
}
