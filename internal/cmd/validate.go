package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dativo-io/scrub/internal/config"
	"github.com/dativo-io/scrub/internal/sanitize"
)

var (
	validatePatterns  string
	validateWhitelist string
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Compile matchers and load the vendor whitelist without sanitizing",
	Long:  "Checks that the pattern file compiles and the vendor whitelist parses, exactly as a sanitize run would load them.",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, span := tracer.Start(cmd.Context(), "validate")
		defer span.End()

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		patternsFile := validatePatterns
		if patternsFile == "" {
			patternsFile = cfg.PatternsFile
		}

		out := cmd.OutOrStdout()

		matchers, err := sanitize.LoadMatchers(patternsFile)
		if err != nil {
			fmt.Fprintf(out, "✗ Matchers: %v\n", err)
			return err
		}
		if patternsFile != "" {
			fmt.Fprintf(out, "✓ Matchers: %d compiled (built-ins merged with %s)\n", len(matchers), patternsFile)
		} else {
			fmt.Fprintf(out, "✓ Matchers: %d compiled (built-ins only)\n", len(matchers))
		}
		for _, m := range matchers {
			fmt.Fprintf(out, "    %s (%s)\n", m.Name, m.Kind)
		}

		filter, err := newVendorFilter(cfg, validateWhitelist)
		if err != nil {
			fmt.Fprintf(out, "✗ Vendor whitelist: %v\n", err)
			return err
		}
		fmt.Fprintf(out, "✓ Vendor whitelist: %d entries\n", len(filter.Vendors()))

		fmt.Fprintf(out, "\nConfiguration valid.\n")
		return nil
	},
}

func init() {
	validateCmd.Flags().StringVar(&validatePatterns, "patterns", "", "matcher pattern file to check (default from config)")
	validateCmd.Flags().StringVar(&validateWhitelist, "vendor-whitelist", "", "vendor allow-list file to check (default from config)")
	rootCmd.AddCommand(validateCmd)
}
