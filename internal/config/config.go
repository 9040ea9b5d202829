// Package config loads and applies .prp-disasm.yml configuration files
// for engine selection, analysis limits, and output settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the .prp-disasm.yml configuration file. Flags given on
// the command line take precedence over values loaded here.
type Config struct {
	// Engine is the path to the radare2 executable.
	Engine string `yaml:"engine,omitempty"`
	// Timeout bounds each engine invocation, e.g. "90s".
	Timeout string `yaml:"timeout,omitempty"`
	// MaxSampleSize rejects larger samples, in bytes.
	MaxSampleSize int64 `yaml:"max_sample_size,omitempty"`
	// Workers is the number of samples analyzed in parallel.
	Workers int `yaml:"workers,omitempty"`
	// Format selects the report output format.
	Format string `yaml:"format,omitempty"`
	// Ignore holds glob patterns excluded during directory discovery.
	Ignore []string `yaml:"ignore,omitempty"`
	// Rules points at a directory of extra heuristic rule files.
	Rules string `yaml:"rules,omitempty"`
	// DisabledHeuristics lists heuristic IDs to skip.
	DisabledHeuristics []string `yaml:"disabled_heuristics,omitempty"`
	// FailOnSignal makes the CLI exit non-zero when any signal scores at
	// or above this threshold.
	FailOnSignal float64 `yaml:"fail_on_signal,omitempty"`
	// IncludeDisasm adds a cleaned instruction listing to each report.
	IncludeDisasm bool `yaml:"include_disasm,omitempty"`
	// IncludeCallGraph adds the global call graph to each report.
	IncludeCallGraph bool `yaml:"include_callgraph,omitempty"`
}

// Load reads the .prp-disasm.yml or .prp-disasm.yaml config file from the
// given path. If path is a file, its parent directory is used. If no config
// file is found, it returns a zero Config (not an error).
func Load(dir string) (Config, error) {
	if info, err := os.Stat(dir); err == nil && !info.IsDir() {
		dir = filepath.Dir(dir)
	}
	for _, name := range []string{".prp-disasm.yml", ".prp-disasm.yaml"} {
		path := filepath.Join(dir, name)
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return Config{}, fmt.Errorf("reading %s: %w", path, err)
		}
		if info.Size() > 1<<20 {
			return Config{}, fmt.Errorf("config file too large: %s (%d bytes, max 1 MB)", path, info.Size())
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading %s: %w", path, err)
		}
		var cfg Config
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing %s: %w", path, err)
		}
		return cfg, nil
	}
	return Config{}, nil
}

// ParseTimeout converts the config's timeout string. An empty string
// returns zero, meaning "use the default".
func (c Config) ParseTimeout() (time.Duration, error) {
	if c.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", c.Timeout, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("timeout must be positive, got %q", c.Timeout)
	}
	return d, nil
}
