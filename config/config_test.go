package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "forge.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
[code]
capacity = 65536
trace = true

[log]
verbosity = 2
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Code.Capacity != 65536 {
		t.Errorf("capacity = %d, want 65536", cfg.Code.Capacity)
	}
	if !cfg.Code.Trace {
		t.Error("trace not set")
	}
	if cfg.Log.Verbosity != 2 {
		t.Errorf("verbosity = %d, want 2", cfg.Log.Verbosity)
	}
}

func TestLoadKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `[log]
verbosity = 1
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Code.Capacity != DefaultCodeCapacity {
		t.Errorf("capacity = %d, want default %d", cfg.Code.Capacity, DefaultCodeCapacity)
	}
}

func TestLoadRejectsBadCapacity(t *testing.T) {
	path := writeConfig(t, `[code]
capacity = -1
`)
	if _, err := Load(path); err == nil {
		t.Error("expected validation error")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Error("expected error for missing file")
	}
}
