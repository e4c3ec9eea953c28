package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := &Config{DefaultAccount: "work", PinLimit: 5}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultAccount != "work" {
		t.Errorf("DefaultAccount = %q, want %q", loaded.DefaultAccount, "work")
	}
	if loaded.PinLimit != 5 {
		t.Errorf("PinLimit = %d, want 5", loaded.PinLimit)
	}
}

func TestLoadFillsDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, &Config{DefaultAccount: "main"}); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	want := Default()
	if loaded.PageSize != want.PageSize {
		t.Errorf("PageSize = %d, want %d", loaded.PageSize, want.PageSize)
	}
	if loaded.RetryBudget != want.RetryBudget {
		t.Errorf("RetryBudget = %d, want %d", loaded.RetryBudget, want.RetryBudget)
	}
	if loaded.DispatchTimeoutMs != want.DispatchTimeoutMs {
		t.Errorf("DispatchTimeoutMs = %d, want %d", loaded.DispatchTimeoutMs, want.DispatchTimeoutMs)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := LoadOrDefault(path)
	if err != nil {
		t.Fatalf("LoadOrDefault() on a fresh dir: %v", err)
	}
	if *cfg != *Default() {
		t.Errorf("cfg = %+v, want built-in defaults", cfg)
	}
}

func TestLoadOrDefaultMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("not = [valid"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadOrDefault(path); err == nil {
		t.Error("LoadOrDefault() should reject a malformed file")
	}
}

func TestLoadOrDefaultExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := Save(path, &Config{DefaultAccount: "work", PinLimit: 5}); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadOrDefault(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DefaultAccount != "work" || cfg.PinLimit != 5 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, &Config{DefaultAccount: "main"}); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}
