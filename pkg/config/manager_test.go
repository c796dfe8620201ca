package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNewManagerAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "workers: 4\n")

	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}
	cfg := m.Current()

	if cfg.Workers != 4 {
		t.Errorf("Workers = %d, want 4", cfg.Workers)
	}
	if cfg.SessionTimeoutSeconds != 300 {
		t.Errorf("SessionTimeoutSeconds = %d, want default 300", cfg.SessionTimeoutSeconds)
	}
	if cfg.EventsDir != "events" {
		t.Errorf("EventsDir = %q, want default events", cfg.EventsDir)
	}
	if len(cfg.Protocols.Enabled) == 0 {
		t.Error("Protocols.Enabled default not populated")
	}
}

func TestNewManagerZeroWorkersFallsBackToNumCPU(t *testing.T) {
	path := writeConfig(t, "workers: 0\n")

	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}
	if m.Current().Workers <= 0 {
		t.Error("Workers should fall back to a positive NumCPU-derived value")
	}
}

func TestNewManagerMissingFileIsConfigError(t *testing.T) {
	_, err := NewManager(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err == nil {
		t.Fatal("expected an error for a missing config file")
	}
	var cfgErr *ConfigError
	if !asConfigError(err, &cfgErr) {
		t.Errorf("error type = %T, want *ConfigError", err)
	}
}

func TestNewManagerInvalidYAMLIsConfigError(t *testing.T) {
	path := writeConfig(t, "workers: [this is not an int\n")

	_, err := NewManager(path)
	if err == nil {
		t.Fatal("expected an error for malformed YAML")
	}
	var cfgErr *ConfigError
	if !asConfigError(err, &cfgErr) {
		t.Errorf("error type = %T, want *ConfigError", err)
	}
}

func TestReloadSwapsSnapshotWithoutMutatingOld(t *testing.T) {
	path := writeConfig(t, "workers: 4\n")
	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}
	old := m.Current()

	if err := os.WriteFile(path, []byte("workers: 8\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := m.Reload(); err != nil {
		t.Fatalf("Reload returned error: %v", err)
	}

	if old.Workers != 4 {
		t.Errorf("previously returned snapshot mutated: Workers = %d, want 4", old.Workers)
	}
	if m.Current().Workers != 8 {
		t.Errorf("Current().Workers = %d, want 8 after reload", m.Current().Workers)
	}
}

func TestReloadFailureKeepsOldSnapshotActive(t *testing.T) {
	path := writeConfig(t, "workers: 4\n")
	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}

	if err := os.WriteFile(path, []byte("workers: [broken\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := m.Reload(); err == nil {
		t.Fatal("expected Reload to return an error for malformed YAML")
	}

	if m.Current().Workers != 4 {
		t.Errorf("Current().Workers = %d, want the pre-reload snapshot (4) to stay active", m.Current().Workers)
	}
}

func asConfigError(err error, target **ConfigError) bool {
	ce, ok := err.(*ConfigError)
	if ok {
		*target = ce
	}
	return ok
}
