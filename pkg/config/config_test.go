package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Dir != ".toolmint/tools" {
		t.Errorf("store.dir = %q", cfg.Store.Dir)
	}
	if cfg.Execution.MaxSteps != 256 {
		t.Errorf("max_steps = %d", cfg.Execution.MaxSteps)
	}
	if cfg.Execution.HTTPTimeout != 30*time.Second {
		t.Errorf("http_timeout = %v", cfg.Execution.HTTPTimeout)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "toolmint.yaml")
	doc := `debug: true
store:
  dir: /var/lib/toolmint
execution:
  max_steps: 64
`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Debug || cfg.Store.Dir != "/var/lib/toolmint" || cfg.Execution.MaxSteps != 64 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("TOOLMINT_STORE_DIR", "/tmp/env-tools")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Dir != "/tmp/env-tools" {
		t.Errorf("store.dir = %q, want env override", cfg.Store.Dir)
	}
}
