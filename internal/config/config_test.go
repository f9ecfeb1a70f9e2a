package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Workers != Default().Workers {
		t.Fatalf("got %d workers, want default %d", cfg.Workers, Default().Workers)
	}
}

func TestLoadMergesJSONOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"workers": 9, "output_root": "/custom"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Workers != 9 {
		t.Fatalf("workers = %d, want 9", cfg.Workers)
	}
	if cfg.OutputRoot != "/custom" {
		t.Fatalf("output root = %q, want /custom", cfg.OutputRoot)
	}
	if cfg.MaxRetries != Default().MaxRetries {
		t.Fatalf("unset fields should keep defaults, got MaxRetries=%d", cfg.MaxRetries)
	}
}

func TestLoadEnvOverridesWorkers(t *testing.T) {
	t.Setenv("SOUNDWATCH_WORKERS", "12")
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Workers != 12 {
		t.Fatalf("workers = %d, want 12 (env override)", cfg.Workers)
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roundtrip.json")
	original := Default()
	original.Workers = 42
	if err := Save(path, original); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Workers != 42 {
		t.Fatalf("workers = %d, want 42", cfg.Workers)
	}
}
