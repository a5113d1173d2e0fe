package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/dativo-io/scrub/internal/audit"
	"github.com/dativo-io/scrub/internal/config"
	"github.com/dativo-io/scrub/internal/ner"
	"github.com/dativo-io/scrub/internal/sanitize"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run preflight checks (data dir, matchers, whitelist, NER backend, audit DB)",
	Long: `Verifies the data directory is writable, the matcher patterns compile,
the vendor whitelist loads, the NER backend answers its health probe, and
the audit database is usable. Prints manual remediation steps for whatever
fails; scrub never installs models or rewrites configuration itself.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

//nolint:gocyclo // preflight runs a linear sequence of independent checks
func runDoctor(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	out := cmd.OutOrStdout()
	ok := true

	// 1. Data directory writable
	dataDir := cfg.DataDir
	if err := cfg.EnsureDataDir(); err != nil {
		fmt.Fprintf(out, "✗ Data directory: %s — %v\n", dataDir, err)
		ok = false
	} else {
		testFile := filepath.Join(dataDir, ".doctor-write-test")
		if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
			fmt.Fprintf(out, "✗ Data directory: %s not writable — %v\n", dataDir, err)
			ok = false
		} else {
			_ = os.Remove(testFile)
			fmt.Fprintf(out, "✓ Data directory: %s (writable)\n", dataDir)
		}
	}

	// 2. Matcher patterns compile
	matchers, err := sanitize.LoadMatchers(cfg.PatternsFile)
	if err != nil {
		fmt.Fprintf(out, "✗ Matchers: %v\n", err)
		ok = false
	} else {
		fmt.Fprintf(out, "✓ Matchers: %d compiled\n", len(matchers))
	}

	// 3. Vendor whitelist loads
	filter, err := newVendorFilter(cfg, "")
	if err != nil {
		fmt.Fprintf(out, "✗ Vendor whitelist: %v\n", err)
		ok = false
	} else {
		fmt.Fprintf(out, "✓ Vendor whitelist: %d entries\n", len(filter.Vendors()))
	}

	// 4. NER backend reachable
	annotator, err := newAnnotator(cfg)
	if err != nil {
		fmt.Fprintf(out, "✗ NER backend: %v\n", err)
		ok = false
	} else if _, disabled := annotator.(ner.Disabled); disabled {
		fmt.Fprintf(out, "⚠ NER backend: disabled — structural matchers only, names will NOT be redacted\n")
	} else if hc, probe := annotator.(ner.HealthChecker); probe {
		if err := hc.Health(ctx); err != nil {
			fmt.Fprintf(out, "✗ NER backend (%s): %v\n", annotator.Name(), err)
			ok = false
		} else {
			fmt.Fprintf(out, "✓ NER backend: %s model %s at %s\n", annotator.Name(), cfg.NERModel, nerEndpoint(cfg))
		}
	}

	// 5. Audit DB usable
	if !cfg.AuditEnabled {
		fmt.Fprintf(out, "⚠ Audit DB: disabled by configuration\n")
	} else if store, err := audit.NewStore(cfg.AuditDBPath()); err != nil {
		fmt.Fprintf(out, "✗ Audit DB: %v\n", err)
		ok = false
	} else {
		_ = store.Close()
		fmt.Fprintf(out, "✓ Audit DB: %s\n", cfg.AuditDBPath())
	}

	if !ok {
		return fmt.Errorf("preflight checks failed")
	}
	fmt.Fprintf(out, "\nAll checks passed.\n")
	return nil
}

func nerEndpoint(cfg *config.Config) string {
	if cfg.NERBackend == config.NERBackendOpenAI {
		return cfg.OpenAIBaseURL
	}
	return cfg.NERURL
}
