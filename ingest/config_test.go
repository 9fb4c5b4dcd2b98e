package ingest

import (
	"os"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "docflow-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatal(err)
	}
	f.Close()
	return f.Name()
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.MaxFileBytes() != 100*1024*1024 {
		t.Errorf("MaxFileBytes = %d", cfg.MaxFileBytes())
	}
	if cfg.MaxWorkers != 4 || cfg.BatchSize != 50 || cfg.FileTimeout != 5*time.Minute {
		t.Errorf("pool defaults = %d/%d/%s", cfg.MaxWorkers, cfg.BatchSize, cfg.FileTimeout)
	}
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
extensions: [pdf, .md]
max_workers: 8
file_timeout: 90s
memory_limit_mb: 512
chunk:
  max_chunk_size: 1000
  overlap: 100
ocr:
  enabled: false
  language: fra+eng
  zoom: 3
cache:
  path: /var/cache/docflow.json
tags:
  custom_stopwords: [acme]
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MaxWorkers != 8 || cfg.FileTimeout != 90*time.Second || cfg.MemoryLimitMB != 512 {
		t.Errorf("pool = %d/%s/%d", cfg.MaxWorkers, cfg.FileTimeout, cfg.MemoryLimitMB)
	}
	if cfg.Chunk.MaxChunkSize != 1000 || cfg.Chunk.Overlap != 100 {
		t.Errorf("chunk = %+v", cfg.Chunk)
	}
	if cfg.OCR.Enabled || cfg.OCR.Language != "fra+eng" || cfg.OCR.Zoom != 3 {
		t.Errorf("ocr = %+v", cfg.OCR)
	}
	if !cfg.Cache.Enabled || cfg.Cache.Path != "/var/cache/docflow.json" || cfg.Cache.FlushEvery != 25 {
		t.Errorf("cache = %+v", cfg.Cache)
	}
	if len(cfg.Extensions) != 2 || len(cfg.Tags.CustomStopwords) != 1 {
		t.Errorf("extensions = %v stopwords = %v", cfg.Extensions, cfg.Tags.CustomStopwords)
	}
	// Untouched fields keep their defaults.
	if cfg.BatchSize != 50 || cfg.MaxFileMB != 100 {
		t.Errorf("defaults lost: batch=%d max_file_mb=%d", cfg.BatchSize, cfg.MaxFileMB)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		yaml string
		want string
	}{
		{"max_workers: 0", "max_workers"},
		{"batch_size: -1", "batch_size"},
		{"chunk:\n  max_chunk_size: 100\n  overlap: 100", "overlap"},
		{"memory_limit_mb: -5", "memory_limit_mb"},
		{"extensions: ['']", "extensions[0]"},
	}
	for _, tt := range tests {
		_, err := LoadConfig(writeConfig(t, tt.yaml))
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%q: err = %v, want mention of %s", tt.yaml, err, tt.want)
		}
	}

	if _, err := LoadConfig(writeConfig(t, "max_workers: [")); err == nil {
		t.Error("malformed yaml accepted")
	}
	if _, err := LoadConfig("/nonexistent/docflow.yaml"); err == nil {
		t.Error("missing file accepted")
	}
}
