package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, path, exists, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if exists {
		t.Fatalf("expected exists=false for %s", path)
	}
	if cfg.Converter.BatchSize != defaultBatchSize {
		t.Fatalf("expected default batch size, got %d", cfg.Converter.BatchSize)
	}
	if cfg.Generation.ManifestPageSize != defaultManifestPageSize {
		t.Fatalf("expected default page size, got %d", cfg.Generation.ManifestPageSize)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := strings.Join([]string{
		"[converter]",
		"batch_size = 50",
		"workers = 4",
		"[generation]",
		"manifest_page_size = 6",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to be detected")
	}
	if cfg.Converter.BatchSize != 50 {
		t.Fatalf("batch size override not applied: %d", cfg.Converter.BatchSize)
	}
	if cfg.Converter.Workers != 4 {
		t.Fatalf("workers override not applied: %d", cfg.Converter.Workers)
	}
	if cfg.Generation.ManifestPageSize != 6 {
		t.Fatalf("page size override not applied: %d", cfg.Generation.ManifestPageSize)
	}
}

func TestValidateRejectsBadConverter(t *testing.T) {
	cfg := Default()
	if err := cfg.normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	cfg.Converter.MaxRetries = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for zero max_retries")
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := CreateSample(path); err != nil {
		t.Fatalf("create sample: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[converter]") {
		t.Fatal("sample config missing converter section")
	}
}
