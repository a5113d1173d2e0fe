// Package cmd implements the scrub command line interface.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dativo-io/scrub/internal/ner"
	"github.com/dativo-io/scrub/internal/otel"
	"github.com/dativo-io/scrub/internal/sanitize"
	"github.com/dativo-io/scrub/internal/ticket"
)

// resolvedVersion returns Version unless it is "dev" and Go build info
// contains a real module version (e.g. from go install ...@v0.3.1).
func resolvedVersion() string {
	if Version != "dev" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return Version
}

// tracer is the package-level tracer for all CLI commands
var tracer = otel.Tracer("github.com/dativo-io/scrub/internal/cmd")

var (
	// otelShutdown holds the OTel shutdown function, called from Execute()
	otelShutdown func(context.Context) error

	// Version info injected via ldflags at build time
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"

	// Global flags
	cfgFile   string
	debugFlag bool
	logLevel  string
	logFormat string
	otelFlag  bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "scrub",
	Short: "PII sanitization for support ticket exports",
	Long: `Scrub removes personal data from support ticket JSON exports before
they leave the building (LLM training sets, analytics, vendor escalations).

It combines:
- structural matchers for emails, phone numbers, IP addresses, and URLs
- an external NER model for person, organization, and place names
- a vendor allow-list so product names survive sanitization
- stable per-ticket pseudonym labels (Person_1, Subnet 2, ...)`,

	SilenceUsage: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging()

		// Initialize OpenTelemetry when --otel, --debug, or SCRUB_OTEL_ENABLED=true
		otelEnabled := otelFlag || debugFlag || os.Getenv("SCRUB_OTEL_ENABLED") == "true"
		shutdown, err := otel.Setup("dativo-scrub", resolvedVersion(), otelEnabled)
		if err != nil {
			return fmt.Errorf("initializing OpenTelemetry: %w", err)
		}
		otelShutdown = shutdown

		return nil
	},
}

func setupLogging() {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// All structured logs go to stderr so stdout stays clean for piping
	// (e.g. scrub sanitize - - < ticket.json | jq).
	if logFormat == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			With().
			Timestamp().
			Logger()
	}

	if debugFlag {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "infrastructure config file (default: ./scrub.config.yaml or ~/.scrub/scrub.config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "log every span decision (implies --log-level debug)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log format (console, json)")
	rootCmd.PersistentFlags().BoolVar(&otelFlag, "otel", false, "enable OpenTelemetry (traces and metrics to stdout)")

	// Bind to viper
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("otel", rootCmd.PersistentFlags().Lookup("otel"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Search in ~/.scrub/ and current directory
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home + "/.scrub")
		}
		viper.AddConfigPath(".")
		viper.SetConfigName("scrub.config")
		viper.SetConfigType("yaml")
	}

	// Environment variables with SCRUB_ prefix
	viper.SetEnvPrefix("SCRUB")
	viper.AutomaticEnv()

	// Read config (ignore errors - file may not exist yet)
	_ = viper.ReadInConfig()
}

// Exit codes returned by the scrub binary so pipeline scripts can tell the
// failure classes apart without parsing stderr.
const (
	ExitFailure      = 1 // anything not covered below
	ExitInputFormat  = 2 // malformed ticket JSON
	ExitWhitelist    = 3 // vendor whitelist missing or unreadable
	ExitModel        = 4 // NER backend unreachable or model missing
	ExitSpanConflict = 5 // resolver invariant violation
)

// ExitCode maps an Execute error to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ticket.ErrInputFormat):
		return ExitInputFormat
	case errors.Is(err, sanitize.ErrWhitelist):
		return ExitWhitelist
	case errors.Is(err, ner.ErrModelUnavailable):
		return ExitModel
	case errors.Is(err, sanitize.ErrSpanConflict):
		return ExitSpanConflict
	default:
		return ExitFailure
	}
}

// Execute runs the root command and flushes OTel on exit
func Execute() error {
	err := rootCmd.Execute()
	if otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = otelShutdown(ctx)
	}
	return err
}
