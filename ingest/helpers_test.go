package ingest

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/hazyhaar/docflow/docpipe"
	"github.com/hazyhaar/docflow/ocr"
)

type engineFunc struct {
	name string
	fn   func(ctx context.Context, path string) (*docpipe.Extraction, error)
}

func (e engineFunc) Name() string         { return e.name }
func (e engineFunc) SupportsTables() bool { return false }
func (e engineFunc) SupportsOCR() bool    { return false }

func (e engineFunc) ExtractText(ctx context.Context, path string) (*docpipe.Extraction, error) {
	return e.fn(ctx, path)
}

type fakeOCR struct {
	res   *ocr.Result
	calls int
}

func (f *fakeOCR) Process(context.Context, string, []string, int) (*ocr.Result, error) {
	f.calls++
	return f.res, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.Logger = quietLogger()
	cfg.Cache.Enabled = false
	cfg.OCR.Enabled = false
	cfg.MemoryLimitMB = 0
	cfg.Output.Stats = false
	return cfg
}

func newProcessor(t *testing.T, cfg *Config, opts ...Option) *Processor {
	t.Helper()
	p, err := New(*cfg, docpipe.Capabilities{}, opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

const prose = "The committee reviewed the quarterly figures and agreed on a revised budget. " +
	"Several members asked for clearer reporting on travel costs."
