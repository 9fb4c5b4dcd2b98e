package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/hazyhaar/docflow/docpipe"
)

type recordingDiag struct {
	mu       sync.Mutex
	failures map[string]string // path -> kind
	status   string
	metrics  map[string]float64
}

func (d *recordingDiag) RecordFailure(_ context.Context, path, _, kind, _ string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failures == nil {
		d.failures = map[string]string{}
	}
	d.failures[path] = kind
}

func (d *recordingDiag) RecordRun(_ context.Context, status string, metrics map[string]float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status, d.metrics = status, metrics
}

func readOutput(t *testing.T, path string) map[string]*Group {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var out map[string]*Group
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	return out
}

func TestProcessAllFiles_MixedDirectory(t *testing.T) {
	// WHAT: 500 mixed files with four workers: every file lands in exactly one of processed, skipped or error.
	// WHY: Per-file failures are counted, never lost and never fatal to the run.
	root := t.TempDir()
	files := map[string]string{
		".git/HEAD":         "ref: refs/heads/main",
		".git/config.txt":   prose,
		"node_modules/x.js": "module.exports = 1",
	}
	for i := 0; i < 500; i++ {
		group := fmt.Sprintf("g%d", i%5)
		switch i % 5 {
		case 0:
			files[fmt.Sprintf("%s/note%03d.txt", group, i)] = fmt.Sprintf("Note %d. %s", i, prose)
		case 1:
			files[fmt.Sprintf("%s/page%03d.md", group, i)] = fmt.Sprintf("# Page %d\n\n%s", i, prose)
		case 2:
			files[fmt.Sprintf("%s/blob%03d.txt", group, i)] = "\x00\x01\x02binary"
		case 3:
			files[fmt.Sprintf("%s/image%03d.xyz", group, i)] = "not a document"
		case 4:
			files[fmt.Sprintf("%s/empty%03d.txt", group, i)] = ""
		}
	}
	writeTree(t, root, files)

	cfg := testConfig()
	cfg.MaxWorkers = 4
	cfg.BatchSize = 32
	cfg.Output.Stats = true
	diag := &recordingDiag{}
	p := newProcessor(t, cfg, WithDiagnostics(diag))

	output := filepath.Join(t.TempDir(), "out.json")
	run, err := p.ProcessAllFiles(context.Background(), root, output)
	if err != nil {
		t.Fatal(err)
	}
	st := run.Stats
	if st.TotalFiles != 500 || st.ProcessedFiles+st.SkippedFiles+st.ErrorFiles != 500 {
		t.Fatalf("stats = %+v", st)
	}
	if st.ProcessedFiles != 200 || st.SkippedFiles != 200 || st.ErrorFiles != 100 {
		t.Errorf("processed=%d skipped=%d errors=%d", st.ProcessedFiles, st.SkippedFiles, st.ErrorFiles)
	}
	if st.FailureKinds[string(FailBinary)] != 100 || st.FailureKinds[string(FailFiltered)] != 100 {
		t.Errorf("failure kinds = %v", st.FailureKinds)
	}
	if run.Status != RunPartial || run.OutputTier != TierFull {
		t.Errorf("status = %s tier = %s", run.Status, run.OutputTier)
	}

	out := readOutput(t, output)
	if len(out) != 2 {
		t.Fatalf("groups = %d, want only the two with extracted files", len(out))
	}
	for _, key := range []string{"g0", "g1"} {
		g := out[key]
		if g == nil || g.Metadata.FileCount != 100 || g.Metadata.ChunkCount != len(g.DocsData) {
			t.Errorf("group %s = %+v", key, g)
		}
	}

	if len(diag.failures) != 300 || diag.status != RunPartial || diag.metrics["total_files"] != 500 {
		t.Errorf("diagnostics: %d failures, status %q, total %v", len(diag.failures), diag.status, diag.metrics["total_files"])
	}
	if _, err := os.Stat(StatsPath(output)); err != nil {
		t.Errorf("stats sidecar: %v", err)
	}
}

func TestProcessAllFiles_CacheSkipsUnchanged(t *testing.T) {
	// WHAT: A second run over unchanged files produces no DocData and counts them as skipped.
	// WHY: The mtime cache makes reruns incremental.
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a/one.txt": prose,
		"a/two.txt": prose + " Two.",
		"three.md":  "# Three\n\n" + prose,
	})
	cfg := testConfig()
	cfg.Cache.Enabled = true
	outDir := t.TempDir()
	output := filepath.Join(outDir, "out.json")

	first, err := newProcessor(t, cfg).ProcessAllFiles(context.Background(), root, output)
	if err != nil {
		t.Fatal(err)
	}
	if first.Stats.ProcessedFiles != 3 {
		t.Fatalf("first run stats = %+v", first.Stats)
	}
	cache, err := LoadCache(filepath.Join(outDir, ".docflow_cache.json"))
	if err != nil || cache.Len() != 3 {
		t.Fatalf("cache entries = %d, err = %v", cache.Len(), err)
	}

	second, err := newProcessor(t, cfg).ProcessAllFiles(context.Background(), root, output)
	if err != nil {
		t.Fatal(err)
	}
	st := second.Stats
	if st.ProcessedFiles != 0 || st.SkippedFiles != 3 || st.CachedFiles != 3 {
		t.Errorf("second run stats = %+v", st)
	}
	if len(second.Data) != 0 || len(readOutput(t, output)) != 0 {
		t.Error("unchanged files produced DocData")
	}

	// Touching one file brings it back.
	writeTree(t, root, map[string]string{"a/one.txt": prose + " Edited."})
	third, err := newProcessor(t, cfg).ProcessAllFiles(context.Background(), root, output)
	if err != nil {
		t.Fatal(err)
	}
	if third.Stats.ProcessedFiles != 1 || third.Stats.CachedFiles != 2 {
		t.Errorf("third run stats = %+v", third.Stats)
	}
}

func TestProcessAllFiles_DeterministicHash(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"docs/a.txt": prose})
	cfg := testConfig()

	hash := func() string {
		output := filepath.Join(t.TempDir(), "out.json")
		if _, err := newProcessor(t, cfg).ProcessAllFiles(context.Background(), root, output); err != nil {
			t.Fatal(err)
		}
		return readOutput(t, output)["docs"].DocsData[0].ContentHash
	}
	first, second := hash(), hash()
	if first == "" || first != second {
		t.Errorf("contentHash %q != %q", first, second)
	}
	if first != docpipe.Fingerprint(prose) {
		t.Error("contentHash is not the fingerprint of the full text")
	}
}

func TestProcessAllFiles_RunCancelled(t *testing.T) {
	// WHAT: A run-wide cancellation raised by the second file stops dispatching; the rest count as cancelled.
	// WHY: Cancellation is not an error and the counters must still add up.
	root := t.TempDir()
	files := map[string]string{}
	for i := 0; i < 10; i++ {
		files[fmt.Sprintf("f%02d.txt", i)] = prose
	}
	writeTree(t, root, files)

	sig := NewCancellations()
	var calls atomic.Int32
	cancelling := docpipe.WithEngines(docpipe.FormatTXT, engineFunc{name: "text",
		fn: func(context.Context, string) (*docpipe.Extraction, error) {
			if calls.Add(1) == 2 {
				sig.Cancel()
			}
			return &docpipe.Extraction{Text: prose}, nil
		}})
	cfg := testConfig()
	cfg.MaxWorkers = 1
	var last int
	p := newProcessor(t, cfg, WithCancellation(sig), WithPipelineOptions(cancelling),
		WithProgress(func(current, _ int, stage string) {
			if stage == "processing" {
				last = current
			}
		}))

	run, err := p.ProcessAllFiles(context.Background(), root, filepath.Join(t.TempDir(), "out.json"))
	if err != nil {
		t.Fatal(err)
	}
	st := run.Stats
	if run.Status != RunCancelled {
		t.Errorf("status = %s", run.Status)
	}
	if st.TotalFiles != 10 || st.ProcessedFiles != 1 || st.CancelledFiles != 9 || st.SkippedFiles != 9 {
		t.Errorf("stats = %+v", st)
	}
	if last != 1 {
		t.Errorf("progress advanced to %d after cancellation", last)
	}
}

func TestProcessAllFiles_CacheUnderRootNotIngested(t *testing.T) {
	// WHAT: A configured cache file inside the scanned tree is never discovered.
	// WHY: The cache is JSON and would otherwise be ingested as a code file on the next run.
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.txt": prose})
	cfg := testConfig()
	cfg.Cache.Enabled = true
	cfg.Cache.Path = filepath.Join(root, "state.json")
	output := filepath.Join(t.TempDir(), "out.json")

	if _, err := newProcessor(t, cfg).ProcessAllFiles(context.Background(), root, output); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(cfg.Cache.Path); err != nil {
		t.Fatalf("cache not written under root: %v", err)
	}
	second, err := newProcessor(t, cfg).ProcessAllFiles(context.Background(), root, output)
	if err != nil {
		t.Fatal(err)
	}
	if second.Stats.ProcessedFiles != 0 || second.Stats.CachedFiles != 1 {
		t.Errorf("second run stats = %+v", second.Stats)
	}
	for _, g := range readOutput(t, output) {
		for _, d := range g.DocsData {
			if filepath.Base(d.FilePath) == "state.json" {
				t.Errorf("cache file ingested: %s", d.FilePath)
			}
		}
	}
}

func TestProcessAllFiles_CancelOneFile(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.txt": prose, "b.txt": prose, "c.txt": prose})
	sig := NewCancellations()
	sig.CancelFile(filepath.Join(root, "b.txt"))
	p := newProcessor(t, testConfig(), WithCancellation(sig))

	run, err := p.ProcessAllFiles(context.Background(), root, filepath.Join(t.TempDir(), "out.json"))
	if err != nil {
		t.Fatal(err)
	}
	if run.Status != RunSuccess || run.Stats.ProcessedFiles != 2 || run.Stats.CancelledFiles != 1 {
		t.Errorf("status = %s stats = %+v", run.Status, run.Stats)
	}
	if n := sig.tracked(); n != 0 {
		t.Errorf("%d paths still tracked after the run", n)
	}
}

func TestProcessAllFiles_MemoryGuard(t *testing.T) {
	// WHAT: Above the heap limit the batch continues on one worker and the full write is skipped.
	// WHY: Memory pressure degrades throughput and output richness instead of failing the run.
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a/1.txt": prose, "a/2.txt": prose, "b/3.txt": prose})
	cfg := testConfig()
	cfg.MemoryLimitMB = 1
	p := newProcessor(t, cfg)
	p.memUsage = func() uint64 { return 1 << 40 }

	output := filepath.Join(t.TempDir(), "out.json")
	run, err := p.ProcessAllFiles(context.Background(), root, output)
	if err != nil {
		t.Fatal(err)
	}
	if run.Stats.MemoryGuardTrips != 1 || run.Stats.ProcessedFiles != 3 {
		t.Errorf("stats = %+v", run.Stats)
	}
	if run.OutputTier != TierStreamed {
		t.Errorf("tier = %s", run.OutputTier)
	}
	if out := readOutput(t, output); len(out["a"].DocsData) == 0 || len(out["b"].DocsData) == 0 {
		t.Error("streamed output lost groups")
	}
}

func TestProcessAllFiles_BadRoot(t *testing.T) {
	p := newProcessor(t, testConfig())
	if _, err := p.ProcessAllFiles(context.Background(), filepath.Join(t.TempDir(), "nope"), "out.json"); err == nil {
		t.Error("missing root must fail")
	}
}
