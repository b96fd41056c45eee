// Package config handles loading, validating, and writing tracecook's
// configuration file.
//
// Grounded on the teacher's own config package: the same
// Load/applyDefaults/validate/WriteDefault shape, gopkg.in/yaml.v3 for
// the file format, and a commented default file on first run. The
// schema itself is new — tracecook has no providers map or dashboard
// toggle, and adds the format-rule and streaming-reassembly fields
// SPEC_FULL.md's expansion introduces.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is tracecook's top-level configuration, loaded from
// ./tracecook.yaml by default (override with --config).
type Config struct {
	Target      string            `yaml:"target"`
	Output      string            `yaml:"output"`
	Server      ServerConfig      `yaml:"server"`
	Streaming   StreamingConfig   `yaml:"streaming"`
	FormatRules map[string]string `yaml:"formatRules"`
}

// ServerConfig defines where the proxy (or viewer) listens.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StreamingConfig controls SSE capture behavior.
//
// ReassembleEagerly selects which of spec.md §9(b)'s two valid
// strategies the proxy uses: false (default) stores the raw SSE event
// list and defers reassembly to `cook`; true reassembles at capture
// time, so the capture record already holds the reassembled response.
// Either way cook produces identical output — see internal/cook.
type StreamingConfig struct {
	BufferTimeoutMs   int  `yaml:"bufferTimeoutMs"`
	ReassembleEagerly bool `yaml:"reassembleEagerly"`
}

// Load reads and parses a config file. A missing file is not an error —
// it returns defaults, matching the teacher's own Load.
func Load(path string) (*Config, error) {
	cfg := applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// WriteDefault writes a default tracecook.yaml with all fields populated
// and a comment header.
func WriteDefault(path string) error {
	cfg := applyDefaults()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling default config: %w", err)
	}

	header := `# tracecook configuration
#
# target: upstream base URL the proxy forwards to (scheme+host[+base path])
# output: capture log path
#
# server:
#   host, port: bind address for proxy/viewer
#
# streaming:
#   bufferTimeoutMs: per-exchange upstream timeout
#   reassembleEagerly: true = reassemble SSE at capture time, false = defer to cook
#
# formatRules: map of URL glob pattern -> forced adapter format
#   (openai, anthropic, gemini), overriding auto-detection when the proxy
#   reassembles SSE eagerly (cook does not read this)

`
	return os.WriteFile(path, []byte(header+string(data)), 0o644)
}

func applyDefaults() *Config {
	return &Config{
		Output: "capture.jsonl",
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Streaming: StreamingConfig{
			BufferTimeoutMs:   30000,
			ReassembleEagerly: false,
		},
	}
}

func validate(cfg *Config) error {
	if cfg.Server.Host == "" {
		return fmt.Errorf("server.host must not be empty")
	}
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range (1-65535)", cfg.Server.Port)
	}
	if cfg.Streaming.BufferTimeoutMs < 0 {
		return fmt.Errorf("streaming.bufferTimeoutMs must be non-negative")
	}
	for pattern, format := range cfg.FormatRules {
		switch format {
		case "openai", "anthropic", "gemini":
		default:
			return fmt.Errorf("formatRules[%q]: unknown format %q", pattern, format)
		}
	}
	return nil
}
