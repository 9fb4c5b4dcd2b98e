package ingest

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/docflow/chunk"
	"github.com/hazyhaar/docflow/ocr"
	"github.com/hazyhaar/docflow/tags"
)

// Config holds the full ingestion configuration.
type Config struct {
	// Extensions restricts discovery to these extensions. Empty accepts
	// every format the extraction pipeline supports.
	Extensions []string `yaml:"extensions"`
	// Ignore lists file or directory names that are never descended into
	// or processed. Entries are matched with path.Match against each name.
	Ignore []string `yaml:"ignore"`

	MaxFileMB       int `yaml:"max_file_mb"`
	MaxPages        int `yaml:"max_pages"`
	MinContentChars int `yaml:"min_content_chars"`

	MaxWorkers    int           `yaml:"max_workers"`
	BatchSize     int           `yaml:"batch_size"`
	FileTimeout   time.Duration `yaml:"file_timeout"`
	MemoryLimitMB int           `yaml:"memory_limit_mb"` // 0 disables the memory guard

	Chunk       chunk.Options     `yaml:"chunk"`
	Tags        tags.Options      `yaml:"tags"`
	OCR         OCRConfig         `yaml:"ocr"`
	Cache       CacheConfig       `yaml:"cache"`
	Output      OutputConfig      `yaml:"output"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`

	// Filter is an extra predicate applied after the built-in filters.
	// Returning false skips the file.
	Filter func(path string, info fs.FileInfo) bool `yaml:"-"`

	Logger *slog.Logger `yaml:"-"`
}

// OCRConfig enables the OCR step for PDFs whose embedded text is too sparse.
type OCRConfig struct {
	Enabled    bool `yaml:"enabled"`
	ocr.Config `yaml:",inline"`
}

// CacheConfig configures the modification-time cache.
type CacheConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // default: .docflow_cache.json next to the output
	// FlushEvery is the number of completed files between cache writes.
	FlushEvery int `yaml:"flush_every"`
}

// OutputConfig configures the aggregated output file.
type OutputConfig struct {
	Indent bool `yaml:"indent"`
	// Stats writes <output>.stats.json next to the output.
	Stats bool `yaml:"stats"`
}

// DiagnosticsConfig configures the SQLite diagnostics store.
type DiagnosticsConfig struct {
	Path string `yaml:"path"` // empty disables it
}

// DefaultConfig returns sane defaults.
func DefaultConfig() *Config {
	return &Config{
		Ignore:          []string{".git", "node_modules", "__pycache__", ".DS_Store", ".docflow_cache.json"},
		MaxFileMB:       100,
		MaxPages:        1000,
		MinContentChars: 50,
		MaxWorkers:      4,
		BatchSize:       50,
		FileTimeout:     5 * time.Minute,
		MemoryLimitMB:   2048,
		Chunk:           chunk.Options{MaxChunkSize: 4096, Overlap: 200},
		Tags:            tags.Options{MaxFrequencyTags: 5, MinFrequency: 2},
		OCR: OCRConfig{
			Enabled: true,
			Config:  ocr.Config{Zoom: 2.0, Language: "eng", MinPageChars: 50, MinDocumentChars: 50},
		},
		Cache:  CacheConfig{Enabled: true, FlushEvery: 25},
		Output: OutputConfig{Stats: true},
	}
}

// LoadConfig reads and parses a YAML config file. Returns DefaultConfig merged with the file.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks that values are sane.
func (c *Config) Validate() error {
	if c.MaxFileMB <= 0 {
		return fmt.Errorf("max_file_mb must be > 0")
	}
	if c.MaxWorkers <= 0 {
		return fmt.Errorf("max_workers must be > 0")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be > 0")
	}
	if c.FileTimeout <= 0 {
		return fmt.Errorf("file_timeout must be > 0")
	}
	if c.MemoryLimitMB < 0 {
		return fmt.Errorf("memory_limit_mb must be >= 0")
	}
	if c.Chunk.MaxChunkSize < 0 {
		return fmt.Errorf("chunk.max_chunk_size must be >= 0")
	}
	if c.Chunk.MaxChunkSize > 0 && c.Chunk.Overlap >= c.Chunk.MaxChunkSize {
		return fmt.Errorf("chunk.overlap (%d) must be smaller than chunk.max_chunk_size (%d)",
			c.Chunk.Overlap, c.Chunk.MaxChunkSize)
	}
	if c.Cache.FlushEvery < 0 {
		return fmt.Errorf("cache.flush_every must be >= 0")
	}
	for i, ext := range c.Extensions {
		if ext == "" {
			return fmt.Errorf("extensions[%d]: empty extension", i)
		}
	}
	return nil
}

// MaxFileBytes returns max file size in bytes.
func (c *Config) MaxFileBytes() int64 { return int64(c.MaxFileMB) * 1024 * 1024 }

// MemoryLimitBytes returns the heap limit of the memory guard in bytes.
func (c *Config) MemoryLimitBytes() uint64 { return uint64(c.MemoryLimitMB) * 1024 * 1024 }

func (c *Config) defaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = 1
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.FileTimeout <= 0 {
		c.FileTimeout = 5 * time.Minute
	}
	if c.Cache.FlushEvery <= 0 {
		c.Cache.FlushEvery = 25
	}
	c.Chunk.Logger = c.Logger
	c.OCR.Logger = c.Logger
}
