// CLAUDE:SUMMARY Per-job scratch directories with unique names, immediate file removal and a startup sweep of stale jobs.
package ocr

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const jobPrefix = "ocr_"

// Scratch is the private working directory of one OCR job.
type Scratch struct {
	dir string
}

// NewScratch creates a uniquely named job directory under root
// (os.TempDir() when empty).
func NewScratch(root string) (*Scratch, error) {
	if root == "" {
		root = os.TempDir()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("ocr: scratch root: %w", err)
	}
	name := jobPrefix + time.Now().UTC().Format("20060102T150405") + "_" + uuid.NewString()
	dir := filepath.Join(root, name)
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, fmt.Errorf("ocr: scratch dir: %w", err)
	}
	return &Scratch{dir: dir}, nil
}

// Dir returns the job directory.
func (s *Scratch) Dir() string { return s.dir }

// File returns a path for name inside the job directory.
func (s *Scratch) File(name string) string { return filepath.Join(s.dir, filepath.Base(name)) }

// Remove deletes one intermediate file. Missing files are not an error.
func (s *Scratch) Remove(path string) error {
	err := os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func removeAll(dir string) error {
	// A file still held open elsewhere can make the first attempt fail on
	// some platforms.
	var err error
	for i := 0; i < 3; i++ {
		if err = os.RemoveAll(dir); err == nil {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return err
}

// SweepStale removes job directories under root older than age and returns
// how many were removed.
func SweepStale(root string, age time.Duration) (int, error) {
	entries, err := os.ReadDir(root)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-age)
	removed := 0
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), jobPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(root, e.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}
