// Package patterns provides embedded default matcher and vendor definitions.
// matchers.yaml holds the structural matcher regexes; vendors.txt holds the
// default vendor allow-list, one entry per line.
package patterns

import _ "embed"

//go:embed matchers.yaml
var matchersYAML []byte

//go:embed vendors.txt
var vendorsTxt []byte

// MatchersYAML returns the embedded default structural matcher definitions.
func MatchersYAML() []byte { return matchersYAML }

// VendorsTxt returns the embedded default vendor allow-list.
func VendorsTxt() []byte { return vendorsTxt }
