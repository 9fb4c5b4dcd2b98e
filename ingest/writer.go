package ingest

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/hazyhaar/docflow/docpipe"
)

// Tier identifies how much of the output could be serialized.
type Tier int

const (
	TierNone     Tier = iota // nothing written
	TierFull                 // whole mapping marshalled at once
	TierStreamed             // one group marshalled at a time
	TierSummary              // group metadata and file lists only
)

func (t Tier) String() string {
	switch t {
	case TierFull:
		return "full"
	case TierStreamed:
		return "streamed"
	case TierSummary:
		return "summary"
	}
	return "none"
}

func (t Tier) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// writer serializes the group mapping, degrading through the tiers until
// one succeeds. Every tier writes a temp file renamed over the target, so
// a failed tier never leaves a truncated output behind.
type writer struct {
	marshal func(v any) ([]byte, error)
	logger  *slog.Logger
}

func (w *writer) write(path string, data map[string]*Group, skipFull bool) (Tier, error) {
	var errs []error
	if skipFull {
		w.logger.Warn("memory pressure: skipping full output write", "path", path)
	} else {
		err := w.full(path, data)
		if err == nil {
			return TierFull, nil
		}
		w.logger.Warn("full output write failed, streaming per group", "path", path, "error", err)
		errs = append(errs, fmt.Errorf("full: %w", err))
	}

	err := w.stream(path, data)
	if err == nil {
		return TierStreamed, nil
	}
	w.logger.Warn("streamed output write failed, writing summary", "path", path, "error", err)
	errs = append(errs, fmt.Errorf("streamed: %w", err))

	err = w.stream(path, summarize(data))
	if err == nil {
		return TierSummary, nil
	}
	w.logger.Error("summary output write failed", "path", path, "error", err)
	errs = append(errs, fmt.Errorf("summary: %w", err))
	return TierNone, errors.Join(errs...)
}

func (w *writer) full(path string, data map[string]*Group) error {
	b, err := w.marshal(data)
	if err != nil {
		return err
	}
	return writeFileAtomic(path, b)
}

// stream writes the mapping as one JSON object, marshalling groups one at
// a time in key order.
func (w *writer) stream(path string, data map[string]*Group) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmp)
		}
	}()

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	bw := bufio.NewWriter(f)
	bw.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			bw.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return err
		}
		vb, err := w.marshal(data[k])
		if err != nil {
			return fmt.Errorf("group %q: %w", k, err)
		}
		bw.Write(kb)
		bw.WriteByte(':')
		if _, err := bw.Write(vb); err != nil {
			return err
		}
	}
	bw.WriteByte('}')
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

// summarize drops the chunks and keeps group metadata plus the sorted list
// of files each group produced.
func summarize(data map[string]*Group) map[string]*Group {
	out := make(map[string]*Group, len(data))
	for k, g := range data {
		seen := map[string]bool{}
		var files []string
		for _, d := range g.DocsData {
			if !seen[d.FilePath] {
				seen[d.FilePath] = true
				files = append(files, d.FilePath)
			}
		}
		sort.Strings(files)
		md := g.Metadata
		md.Files = files
		md.Summary = true
		out[k] = &Group{DocsData: []DocData{}, Metadata: md}
	}
	return out
}

// statsFile is the content of the stats sidecar.
type statsFile struct {
	*RunResult
	Capabilities docpipe.Capabilities `json:"capabilities"`
}

func writeStats(path string, run *RunResult, caps docpipe.Capabilities, marshal func(any) ([]byte, error)) error {
	b, err := marshal(statsFile{RunResult: run, Capabilities: caps})
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	return writeFileAtomic(path, b)
}
