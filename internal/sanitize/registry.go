package sanitize

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// MatcherFile is the top-level YAML structure for a matcher config file.
type MatcherFile struct {
	Matchers []MatcherConfig `yaml:"matchers"`
}

// MatcherConfig is one structural matcher definition. Builtin kinds
// (EMAIL, PHONE, DEVICE_IP, SUBNET_IP, URL) have fixed replacements;
// a custom kind must supply its own Replacement string.
type MatcherConfig struct {
	Name        string `yaml:"name" json:"name"`
	Kind        string `yaml:"kind" json:"kind"`
	Regex       string `yaml:"regex" json:"regex"`
	Enabled     *bool  `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Validate    string `yaml:"validate,omitempty" json:"validate,omitempty"`
	Replacement string `yaml:"replacement,omitempty" json:"replacement,omitempty"`
}

// isEnabled returns true if the matcher is enabled (defaults to true when nil).
func (m *MatcherConfig) isEnabled() bool {
	if m.Enabled == nil {
		return true
	}
	return *m.Enabled
}

// ParseMatcherFile parses matcher YAML bytes into a MatcherFile.
func ParseMatcherFile(data []byte) (*MatcherFile, error) {
	var mf MatcherFile
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("parsing matcher YAML: %w", err)
	}
	return &mf, nil
}

// LoadMatcherFile reads and parses a matcher YAML file from disk.
// Returns nil (not an error) if the file does not exist, so callers can
// treat a missing operator config as a no-op.
func LoadMatcherFile(path string) (*MatcherFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading matcher file %s: %w", path, err)
	}
	return ParseMatcherFile(data)
}

// MergeMatchers layers matcher lists: defaults first, then operator
// overrides. Later layers override earlier ones by matching on the Name
// field. New matchers are appended.
func MergeMatchers(layers ...[]*MatcherConfig) []MatcherConfig {
	index := make(map[string]int)
	var merged []MatcherConfig

	for _, layer := range layers {
		for _, mc := range layer {
			if mc == nil {
				continue
			}
			if idx, exists := index[mc.Name]; exists {
				merged[idx] = *mc
			} else {
				index[mc.Name] = len(merged)
				merged = append(merged, *mc)
			}
		}
	}

	return merged
}

// LoadMatchers compiles the built-in structural matchers merged with an
// optional operator pattern file. An empty path means built-ins only.
func LoadMatchers(patternFile string) ([]Matcher, error) {
	defaults, err := DefaultMatchers()
	if err != nil {
		return nil, fmt.Errorf("loading default matchers: %w", err)
	}

	var extra []*MatcherConfig
	if patternFile != "" {
		mf, err := LoadMatcherFile(patternFile)
		if err != nil {
			return nil, fmt.Errorf("loading pattern file: %w", err)
		}
		if mf != nil {
			extra = toPtrSlice(mf.Matchers)
		}
	}

	matchers, err := CompileMatchers(MergeMatchers(toPtrSlice(defaults), extra))
	if err != nil {
		return nil, fmt.Errorf("compiling matchers: %w", err)
	}
	return matchers, nil
}

// toPtrSlice converts []MatcherConfig to []*MatcherConfig for MergeMatchers.
func toPtrSlice(configs []MatcherConfig) []*MatcherConfig {
	ptrs := make([]*MatcherConfig, len(configs))
	for i := range configs {
		ptrs[i] = &configs[i]
	}
	return ptrs
}

// CompileMatchers converts matcher configs into the compiled []Matcher slice
// used at runtime. Disabled matchers are skipped. Invalid regexes and unknown
// validate gates fail with the matcher name in the error.
func CompileMatchers(configs []MatcherConfig) ([]Matcher, error) {
	var matchers []Matcher

	for _, mc := range configs {
		if !mc.isEnabled() {
			continue
		}
		if mc.Kind == "" {
			return nil, fmt.Errorf("matcher %q has no kind", mc.Name)
		}
		compiled, err := regexp.Compile(mc.Regex)
		if err != nil {
			return nil, fmt.Errorf("compiling matcher %q: %w", mc.Name, err)
		}
		refine, ok := refineGates[mc.Validate]
		if !ok {
			return nil, fmt.Errorf("matcher %q: unknown validate gate %q", mc.Name, mc.Validate)
		}
		kind := Kind(mc.Kind)
		if !isBuiltinStructural(kind) && mc.Replacement == "" {
			return nil, fmt.Errorf("matcher %q: custom kind %q needs a replacement", mc.Name, mc.Kind)
		}
		matchers = append(matchers, Matcher{
			Name:        mc.Name,
			Kind:        kind,
			Replacement: mc.Replacement,
			re:          compiled,
			refine:      refine,
		})
	}

	return matchers, nil
}

// isBuiltinStructural reports whether k is a structural kind with a fixed
// replacement rule in the engine.
func isBuiltinStructural(k Kind) bool {
	switch k {
	case KindEmail, KindPhone, KindSubnetIP, KindDeviceIP, KindURL:
		return true
	}
	return false
}
