package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// CacheEntry is the persisted state of one processed file.
type CacheEntry struct {
	ModTime       float64 `json:"modTime"` // unix seconds
	Size          int64   `json:"size"`
	ChunkCount    int     `json:"chunkCount"`
	LastProcessed string  `json:"lastProcessed"` // RFC 3339
}

// Cache maps absolute file paths to their last processed state. It is
// loaded once per run, updated in memory and flushed periodically.
type Cache struct {
	mu      sync.Mutex
	path    string
	entries map[string]CacheEntry
	dirty   int
}

// LoadCache reads the cache file at path. A missing file yields an empty
// cache; a corrupt one is reported with the empty cache so the run can
// proceed.
func LoadCache(path string) (*Cache, error) {
	c := &Cache{path: path, entries: map[string]CacheEntry{}}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return c, fmt.Errorf("read cache %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &c.entries); err != nil {
		c.entries = map[string]CacheEntry{}
		return c, fmt.Errorf("parse cache %s: %w", path, err)
	}
	return c, nil
}

// SaveCache writes c atomically to its path.
func SaveCache(c *Cache) error {
	c.mu.Lock()
	data, err := json.MarshalIndent(c.entries, "", "  ")
	c.dirty = 0
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("marshal cache: %w", err)
	}
	return writeFileAtomic(c.path, data)
}

// Unchanged reports whether path was processed with the same modification
// time and size.
func (c *Cache) Unchanged(path string, info fs.FileInfo) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[path]
	return ok && e.Size == info.Size() && e.ModTime == unixSeconds(info.ModTime())
}

// Update records a processed file and returns the number of updates since
// the last save.
func (c *Cache) Update(path string, modTime time.Time, size int64, chunks int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[path] = CacheEntry{
		ModTime:       unixSeconds(modTime),
		Size:          size,
		ChunkCount:    chunks,
		LastProcessed: time.Now().UTC().Format(time.RFC3339),
	}
	c.dirty++
	return c.dirty
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Entry returns the entry of path.
func (c *Cache) Entry(path string) (CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[path]
	return e, ok
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it over path.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}
