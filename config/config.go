// Package config handles quark.toml runtime configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// ConfigFile is the file name looked up inside the config directory.
const ConfigFile = "quark.toml"

// Config is the quark.toml runtime configuration.
type Config struct {
	Runtime   Runtime   `toml:"runtime"`
	Inspector Inspector `toml:"inspector"`
	Audit     Audit     `toml:"audit"`
	Log       Log       `toml:"log"`

	// Dir is the directory the config was loaded from (set at load time).
	Dir string `toml:"-"`
}

// Runtime contains runtime-wide settings.
type Runtime struct {
	Name string `toml:"name"`
}

// Inspector configures the introspection HTTP server.
type Inspector struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`

	// MaxDumpHandles caps how many handle rows a single dump may carry;
	// 0 means unlimited.
	MaxDumpHandles int `toml:"max-dump-handles"`
}

// Audit configures the violation audit trail.
type Audit struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Log configures logging output.
type Log struct {
	Verbosity int `toml:"verbosity"`
}

// Default returns the configuration used when no quark.toml exists.
func Default() *Config {
	return &Config{
		Runtime:   Runtime{Name: "quark"},
		Inspector: Inspector{Enabled: true, Addr: "localhost:7970"},
		Audit:     Audit{Enabled: true, Path: "quark-audit.db"},
		Log:       Log{Verbosity: 0},
	}
}

// Load parses quark.toml from the given directory. A missing file is not an
// error: defaults are returned.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, ConfigFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			cfg.Dir = dir
			return cfg, nil
		}
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	cfg.Dir = dir

	if cfg.Inspector.Enabled && cfg.Inspector.Addr == "" {
		return nil, fmt.Errorf("%s: inspector.addr is required when the inspector is enabled", path)
	}
	if cfg.Audit.Enabled && cfg.Audit.Path == "" {
		return nil, fmt.Errorf("%s: audit.path is required when auditing is enabled", path)
	}
	return cfg, nil
}
