package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	data := `
data_dir: ./data
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Listen != ":8080" {
		t.Fatalf("expected default listen :8080, got %s", cfg.Listen)
	}
	if cfg.Transport.Timeout.Duration != 2*time.Second {
		t.Fatalf("expected default transport timeout 2s, got %s", cfg.Transport.Timeout.Duration)
	}
	if cfg.Readings.MaxEntries != 10_000 {
		t.Fatalf("expected default max_entries 10000, got %d", cfg.Readings.MaxEntries)
	}
	if cfg.Engine.StateMachineTick.Duration != time.Second {
		t.Fatalf("expected default state machine tick 1s, got %s", cfg.Engine.StateMachineTick.Duration)
	}
}

func TestLoadRejectsBadLogLevel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	data := `
data_dir: ./data
log_level: verbose
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid log_level")
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	data := `
listen: ":9090"
data_dir: /var/lib/vxidash
log_level: debug
transport:
  timeout: 500ms
readings:
  max_entries: 500
engine:
  state_machine_tick: 250ms
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Listen != ":9090" {
		t.Fatalf("expected listen :9090, got %s", cfg.Listen)
	}
	if cfg.Transport.Timeout.Duration != 500*time.Millisecond {
		t.Fatalf("expected transport timeout 500ms, got %s", cfg.Transport.Timeout.Duration)
	}
	if cfg.Readings.MaxEntries != 500 {
		t.Fatalf("expected max_entries 500, got %d", cfg.Readings.MaxEntries)
	}
	if cfg.Engine.StateMachineTick.Duration != 250*time.Millisecond {
		t.Fatalf("expected state machine tick 250ms, got %s", cfg.Engine.StateMachineTick.Duration)
	}
}
