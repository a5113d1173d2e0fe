package cmd

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dativo-io/scrub/internal/config"
	"github.com/dativo-io/scrub/internal/ner"
	"github.com/dativo-io/scrub/internal/sanitize"
)

// newAnnotator builds the configured NER backend. "none" is an explicit
// operator decision and is logged loudly; scrub never falls back to it on
// its own.
func newAnnotator(cfg *config.Config) (ner.Annotator, error) {
	switch cfg.NERBackend {
	case config.NERBackendSpacy:
		return ner.NewSpacyClient(cfg.NERURL, cfg.NERModel, ner.WithRateLimit(cfg.NERRateLimit)), nil
	case config.NERBackendOpenAI:
		return ner.NewOpenAIAnnotator(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey(), cfg.NERModel), nil
	case config.NERBackendNone:
		log.Warn().Msg("ner_disabled_structural_matchers_only")
		return ner.Disabled{}, nil
	default:
		return nil, fmt.Errorf("unknown ner backend %q", cfg.NERBackend)
	}
}

// newVendorFilter loads the allow-list for a run. An explicit path (flag
// over config) replaces the embedded defaults entirely; any load failure
// is fatal rather than a silent fall-through to defaults.
func newVendorFilter(cfg *config.Config, whitelistPath string) (*sanitize.VendorFilter, error) {
	if whitelistPath == "" {
		whitelistPath = cfg.VendorWhitelist
	}

	vendors := sanitize.DefaultVendors()
	if whitelistPath != "" {
		var err error
		vendors, err = sanitize.LoadVendorFile(whitelistPath)
		if err != nil {
			return nil, err
		}
		log.Debug().Str("path", whitelistPath).Int("vendors", len(vendors)).Msg("vendor_whitelist_loaded")
	}

	var opts []sanitize.VendorOption
	if len(cfg.SupportHosts) > 0 {
		opts = append(opts, sanitize.WithSupportHosts(cfg.SupportHosts))
	}
	if cfg.EntityHost != "" {
		opts = append(opts, sanitize.WithEntityHost(cfg.EntityHost))
	}
	return sanitize.NewVendorFilter(vendors, opts...)
}

// newSanitizer wires the full engine from operator config plus the
// per-run whitelist override.
func newSanitizer(cfg *config.Config, annotator ner.Annotator, whitelistPath string) (*sanitize.Sanitizer, error) {
	filter, err := newVendorFilter(cfg, whitelistPath)
	if err != nil {
		return nil, err
	}

	opts := []sanitize.Option{sanitize.WithVendorFilter(filter)}
	if cfg.PatternsFile != "" {
		opts = append(opts, sanitize.WithPatternFile(cfg.PatternsFile))
	}
	return sanitize.New(annotator, opts...)
}
