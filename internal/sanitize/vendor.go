package sanitize

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/dativo-io/scrub/patterns"
)

// ErrWhitelist marks vendor whitelist load failures. A supplied whitelist
// that is missing, unreadable, or empty aborts the run rather than silently
// falling back to the defaults.
var ErrWhitelist = errors.New("vendor whitelist unavailable")

// URLClass is the sanitization decision for a matched URL.
type URLClass int

const (
	// URLGeneric URLs are replaced with the [URL] token.
	URLGeneric URLClass = iota
	// URLSupportPreserve URLs point at a known support portal and are kept verbatim.
	URLSupportPreserve
	// URLEntityLink URLs carry a numeric entity id and become "Entity {id}".
	URLEntityLink
	// URLVendorPreserve URLs have an allow-listed vendor in the hostname and are kept verbatim.
	URLVendorPreserve
)

func (c URLClass) String() string {
	switch c {
	case URLSupportPreserve:
		return "support_preserve"
	case URLEntityLink:
		return "entity_link"
	case URLVendorPreserve:
		return "vendor_preserve"
	}
	return "generic"
}

// VendorFilter decides which detected names and URLs are preserved.
// Vendor matching is whole-word and case-insensitive.
type VendorFilter struct {
	vendors      []string
	vendorRes    []*regexp.Regexp
	supportHosts map[string]bool
	entityRe     *regexp.Regexp
}

// VendorOption configures a VendorFilter.
type VendorOption func(*vendorConfig)

type vendorConfig struct {
	supportHosts []string
	entityHost   string
}

// WithSupportHosts sets the hosts whose URLs are always preserved verbatim.
func WithSupportHosts(hosts []string) VendorOption {
	return func(c *vendorConfig) { c.supportHosts = hosts }
}

// WithEntityHost sets the host whose entity links collapse to "Entity {id}".
func WithEntityHost(host string) VendorOption {
	return func(c *vendorConfig) { c.entityHost = host }
}

// NewVendorFilter builds a filter over the given vendor list. Pass
// DefaultVendors() for the embedded defaults; a loaded whitelist REPLACES
// the defaults, it is never merged with them.
func NewVendorFilter(vendors []string, opts ...VendorOption) (*VendorFilter, error) {
	cfg := vendorConfig{
		supportHosts: []string{"support.auvik.com"},
		entityHost:   "my.auvik.com",
	}
	for _, o := range opts {
		o(&cfg)
	}

	f := &VendorFilter{
		vendors:      vendors,
		supportHosts: make(map[string]bool, len(cfg.supportHosts)),
	}
	for _, h := range cfg.supportHosts {
		f.supportHosts[strings.ToLower(h)] = true
	}

	for _, v := range vendors {
		re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(v) + `\b`)
		if err != nil {
			return nil, fmt.Errorf("compiling vendor entry %q: %w", v, err)
		}
		f.vendorRes = append(f.vendorRes, re)
	}

	entityRe, err := regexp.Compile(`^https?://` + regexp.QuoteMeta(cfg.entityHost) + `/.*?[#/]entity/(\d+)`)
	if err != nil {
		return nil, fmt.Errorf("compiling entity link pattern: %w", err)
	}
	f.entityRe = entityRe

	return f, nil
}

// DefaultVendors returns the embedded default vendor allow-list.
func DefaultVendors() []string {
	vendors, err := parseVendors(patterns.VendorsTxt())
	if err != nil {
		panic(fmt.Sprintf("embedded vendor list: %v", err))
	}
	return vendors
}

// LoadVendorFile reads a newline-delimited vendor whitelist. Comment lines
// start with #; surrounding whitespace is trimmed. Any failure, including
// an empty result, wraps ErrWhitelist.
func LoadVendorFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrWhitelist, path, err)
	}
	vendors, err := parseVendors(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrWhitelist, path, err)
	}
	return vendors, nil
}

func parseVendors(data []byte) ([]string, error) {
	var vendors []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		vendors = append(vendors, line)
	}
	if len(vendors) == 0 {
		return nil, errors.New("no vendor entries")
	}
	return vendors, nil
}

// Vendors returns the active allow-list entries.
func (f *VendorFilter) Vendors() []string {
	return f.vendors
}

// ShouldPreserve reports whether a detected NER span should be kept
// verbatim because it names an allow-listed vendor. Structural kinds are
// never preserved by name; their URLs go through ClassifyURL instead.
func (f *VendorFilter) ShouldPreserve(kind Kind, raw string) bool {
	if !isNERKind(kind) {
		return false
	}
	return f.containsVendor(raw)
}

// ClassifyURL assigns a matched URL to exactly one class, first hit wins:
// support portal, entity link, vendor hostname, then generic. For entity
// links the numeric id is returned verbatim.
func (f *VendorFilter) ClassifyURL(raw string) (URLClass, string) {
	host := hostOf(raw)
	if host != "" && f.supportHosts[host] {
		return URLSupportPreserve, ""
	}
	if m := f.entityRe.FindStringSubmatch(raw); m != nil {
		return URLEntityLink, m[1]
	}
	if host != "" && f.containsVendor(host) {
		return URLVendorPreserve, ""
	}
	return URLGeneric, ""
}

func (f *VendorFilter) containsVendor(s string) bool {
	for _, re := range f.vendorRes {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// hostOf extracts the lowercased hostname from a URL, or "" when it does
// not parse. Unparseable URLs classify as generic and still get redacted.
func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
