package proxy

import (
	"fmt"

	"github.com/gobwas/glob"

	"github.com/tracecook/tracecook/internal/adapter"
)

// FormatRules overrides adapter auto-detection for specific URL path
// globs, mirroring the config file's formatRules map (internal/config).
// Compiled once at startup, same pattern as the teacher's
// compileMatcher pre-compiling a rule's path globs.
type FormatRules struct {
	rules []formatRule
}

type formatRule struct {
	g      glob.Glob
	format adapter.Format
}

// NewFormatRules compiles pattern -> format string pairs (as loaded from
// config) into a FormatRules value. Returns an error on an invalid glob
// or an unrecognized format name.
func NewFormatRules(patterns map[string]string) (FormatRules, error) {
	var fr FormatRules
	for pattern, name := range patterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return FormatRules{}, fmt.Errorf("invalid format rule glob %q: %w", pattern, err)
		}
		format, err := parseFormatName(name)
		if err != nil {
			return FormatRules{}, fmt.Errorf("format rule %q: %w", pattern, err)
		}
		fr.rules = append(fr.rules, formatRule{g: g, format: format})
	}
	return fr, nil
}

func parseFormatName(name string) (adapter.Format, error) {
	switch name {
	case "openai":
		return adapter.FormatOpenAI, nil
	case "anthropic":
		return adapter.FormatAnthropic, nil
	case "gemini":
		return adapter.FormatGemini, nil
	default:
		return "", fmt.Errorf("unknown format %q", name)
	}
}

// Match returns the forced format for path, if any rule matches. The
// rules come from a map, so their evaluation order is not defined: when
// several patterns match path, which one wins is not defined either.
func (fr FormatRules) Match(path string) (adapter.Format, bool) {
	for _, r := range fr.rules {
		if r.g.Match(path) {
			return r.format, true
		}
	}
	return "", false
}
