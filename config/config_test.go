package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ConfigFile), []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return dir
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	def := Default()
	if cfg.Runtime.Name != def.Runtime.Name || cfg.Inspector.Addr != def.Inspector.Addr {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestLoadOverrides(t *testing.T) {
	dir := writeConfig(t, `
[runtime]
name = "testkernel"

[inspector]
enabled = true
addr = "127.0.0.1:9999"
max-dump-handles = 128

[audit]
enabled = false

[log]
verbosity = 2
`)
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Runtime.Name != "testkernel" {
		t.Errorf("name = %q", cfg.Runtime.Name)
	}
	if cfg.Inspector.Addr != "127.0.0.1:9999" || cfg.Inspector.MaxDumpHandles != 128 {
		t.Errorf("inspector = %+v", cfg.Inspector)
	}
	if cfg.Audit.Enabled {
		t.Error("audit should be disabled")
	}
	if cfg.Log.Verbosity != 2 {
		t.Errorf("verbosity = %d", cfg.Log.Verbosity)
	}
	if cfg.Dir != dir {
		t.Errorf("dir = %q, want %q", cfg.Dir, dir)
	}
}

func TestLoadRejectsEnabledInspectorWithoutAddr(t *testing.T) {
	dir := writeConfig(t, `
[inspector]
enabled = true
addr = ""
`)
	_, err := Load(dir)
	if err == nil || !strings.Contains(err.Error(), "inspector.addr") {
		t.Errorf("got %v, want inspector.addr error", err)
	}
}

func TestLoadRejectsBadToml(t *testing.T) {
	dir := writeConfig(t, "not [valid toml")
	if _, err := Load(dir); err == nil {
		t.Error("parse error not reported")
	}
}
