// Package config holds OPERATOR-LEVEL configuration for a scrub installation.
//
// This is infrastructure config set by the DevOps/admin who deploys scrub,
// NOT per-run configuration. The boundary is:
//
//   - Operator config (this package): data directory, NER backend and
//     endpoint, default whitelist/pattern file paths, audit toggle, sweep
//     schedule, listen address. Set via env vars (SCRUB_*) or config file
//     (scrub.config.yaml).
//
//   - Per-run options: input/output paths, --vendor-whitelist, --debug.
//     Passed on the command line or per HTTP request, never read from here.
//
// The OpenAI-compatible API key is read from SCRUB_OPENAI_API_KEY only; it
// never appears in the config file and is never logged.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Viper keys. Each maps to an env var with the SCRUB_ prefix
// (e.g. "ner_backend" → SCRUB_NER_BACKEND) and to a YAML field
// in scrub.config.yaml (e.g. ner_backend: "spacy").
const (
	KeyDataDir         = "data_dir"
	KeyNERBackend      = "ner_backend"
	KeyNERURL          = "ner_url"
	KeyNERModel        = "ner_model"
	KeyNERRateLimit    = "ner_rate_limit"
	KeyOpenAIBaseURL   = "openai_base_url"
	KeyVendorWhitelist = "vendor_whitelist"
	KeyPatternsFile    = "patterns_file"
	KeySupportHosts    = "support_hosts"
	KeyEntityHost      = "entity_host"
	KeyAuditEnabled    = "audit_enabled"
	KeyListenAddr      = "listen_addr"
	KeySweepSchedule   = "sweep_schedule"
	KeySweepInDir      = "sweep_in_dir"
	KeySweepOutDir     = "sweep_out_dir"
	KeySweepFailDir    = "sweep_fail_dir"
)

// NER backend names accepted by ner_backend.
const (
	NERBackendSpacy  = "spacy"
	NERBackendOpenAI = "openai"
	NERBackendNone   = "none"
)

const (
	DefaultNERBackend    = NERBackendSpacy
	DefaultNERURL        = "http://localhost:8080"
	DefaultNERModel      = "en_core_web_sm"
	DefaultNERRateLimit  = 5
	DefaultOpenAIBaseURL = "http://localhost:11434/v1"
	DefaultEntityHost    = "my.auvik.com"
	DefaultListenAddr    = ":8787"
)

// DefaultSupportHosts are the support portals whose URLs are preserved
// verbatim during sanitization.
var DefaultSupportHosts = []string{"support.auvik.com"}

// Config holds resolved operator-level configuration for a scrub process.
type Config struct {
	DataDir         string   // Base directory for all state (~/.scrub)
	NERBackend      string   // "spacy", "openai", or "none"
	NERURL          string   // spaCy sidecar endpoint
	NERModel        string   // spaCy model name, or chat model for the openai backend
	NERRateLimit    int      // NER requests per second
	OpenAIBaseURL   string   // OpenAI-compatible endpoint for the openai backend
	VendorWhitelist string   // Default whitelist file; empty means embedded defaults
	PatternsFile    string   // Extra matcher definitions; empty means built-ins only
	SupportHosts    []string // Hosts whose URLs are always preserved
	EntityHost      string   // Host whose entity links become "Entity {id}"
	AuditEnabled    bool     // Record run counts in the audit store
	ListenAddr      string   // serve listen address
	SweepSchedule   string   // Cron expression; empty disables the sweep
	SweepInDir      string   // Directory watched by the sweep
	SweepOutDir     string   // Sanitized output directory
	SweepFailDir    string   // Where failed inputs are moved
}

// AuditDBPath returns the full path to the audit SQLite database.
func (c *Config) AuditDBPath() string {
	return filepath.Join(c.DataDir, "audit.db")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0o700)
}

// OpenAIAPIKey returns the API key for the openai backend, read from the
// environment only. Empty is valid for keyless endpoints (e.g. Ollama).
func (c *Config) OpenAIAPIKey() string {
	return os.Getenv("SCRUB_OPENAI_API_KEY")
}

func init() {
	viper.SetEnvPrefix("SCRUB")
	viper.AutomaticEnv()
	viper.SetDefault(KeyNERBackend, DefaultNERBackend)
	viper.SetDefault(KeyNERURL, DefaultNERURL)
	viper.SetDefault(KeyNERModel, DefaultNERModel)
	viper.SetDefault(KeyNERRateLimit, DefaultNERRateLimit)
	viper.SetDefault(KeyOpenAIBaseURL, DefaultOpenAIBaseURL)
	viper.SetDefault(KeySupportHosts, DefaultSupportHosts)
	viper.SetDefault(KeyEntityHost, DefaultEntityHost)
	viper.SetDefault(KeyAuditEnabled, true)
	viper.SetDefault(KeyListenAddr, DefaultListenAddr)
}

// Load reads configuration from Viper (which merges env vars, config
// file, and defaults) and returns a validated Config.
func Load() (*Config, error) {
	cfg := &Config{
		DataDir:         resolveDataDir(),
		NERBackend:      viper.GetString(KeyNERBackend),
		NERURL:          viper.GetString(KeyNERURL),
		NERModel:        viper.GetString(KeyNERModel),
		NERRateLimit:    viper.GetInt(KeyNERRateLimit),
		OpenAIBaseURL:   viper.GetString(KeyOpenAIBaseURL),
		VendorWhitelist: viper.GetString(KeyVendorWhitelist),
		PatternsFile:    viper.GetString(KeyPatternsFile),
		SupportHosts:    viper.GetStringSlice(KeySupportHosts),
		EntityHost:      viper.GetString(KeyEntityHost),
		AuditEnabled:    viper.GetBool(KeyAuditEnabled),
		ListenAddr:      viper.GetString(KeyListenAddr),
		SweepSchedule:   viper.GetString(KeySweepSchedule),
		SweepInDir:      viper.GetString(KeySweepInDir),
		SweepOutDir:     viper.GetString(KeySweepOutDir),
		SweepFailDir:    viper.GetString(KeySweepFailDir),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func resolveDataDir() string {
	if dir := viper.GetString(KeyDataDir); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".scrub"
	}
	return filepath.Join(home, ".scrub")
}

func (c *Config) validate() error {
	switch c.NERBackend {
	case NERBackendSpacy, NERBackendOpenAI, NERBackendNone:
	default:
		return fmt.Errorf("ner_backend must be %q, %q, or %q (got %q)",
			NERBackendSpacy, NERBackendOpenAI, NERBackendNone, c.NERBackend)
	}
	if c.NERRateLimit <= 0 {
		return fmt.Errorf("ner_rate_limit must be positive")
	}
	if c.SweepSchedule != "" {
		if c.SweepInDir == "" || c.SweepOutDir == "" {
			return fmt.Errorf("sweep_in_dir and sweep_out_dir are required when sweep_schedule is set")
		}
	}
	return nil
}
