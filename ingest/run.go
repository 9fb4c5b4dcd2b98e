package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// ProcessAllFiles discovers the files under root, processes them in
// sequential batches on a bounded worker pool and writes the aggregated
// output to output. Per-file problems only affect the statistics; the
// returned error is non-nil when root cannot be walked or no output tier
// could be written, and the RunResult is still returned in the latter case.
func (p *Processor) ProcessAllFiles(ctx context.Context, root, output string) (*RunResult, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("root %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s: not a directory", root)
	}

	start := time.Now()
	run := &RunResult{RunID: p.runID, Data: map[string]*Group{}}
	p.logger.Info("run started", "run_id", p.runID, "root", root, "output", output,
		"workers", p.cfg.MaxWorkers, "batch_size", p.cfg.BatchSize, "capabilities", p.caps)

	accepted, rejected, err := Discover(ctx, root, p.cfg.Ignore, p.excludeOutput(output, p.filter()))
	if err != nil && ctx.Err() == nil {
		return nil, fmt.Errorf("discover %s: %w", root, err)
	}

	col := &collector{
		p:         p,
		ctx:       context.WithoutCancel(ctx),
		data:      run.Data,
		sometimes: rate.Sometimes{Interval: 5 * time.Second},
	}
	col.stats.StartTime = start
	if p.cfg.Cache.Enabled {
		col.cache = p.loadCache(output)
	}

	for _, rj := range rejected {
		col.collect(rejection(rj), false)
	}
	var work []Candidate
	for _, c := range accepted {
		if col.cache != nil && col.cache.Unchanged(absPath(c.Path), c.Info) {
			col.collect(rejection(Rejection{Candidate: c, Kind: FailUnchanged, Detail: "unchanged since last run"}), false)
			continue
		}
		work = append(work, c)
	}

	col.total = len(work)
	p.report(0, col.total, "discovered")

	results := make(chan *FileResult, p.cfg.MaxWorkers)
	var (
		rest  []Candidate
		trips int
	)
	go func() {
		defer close(results)
		rest, trips = p.dispatch(ctx, root, work, results)
	}()
	for r := range results {
		col.collect(r, true)
	}
	for _, c := range rest {
		r := &FileResult{
			Path:     c.Path,
			GroupKey: c.GroupKey,
			Status:   StatusCancelled,
			Failure:  &Failure{Kind: FailCancelled, Detail: "run cancelled before dispatch", Err: ErrCancelled},
		}
		r.count()
		col.collect(r, false)
	}
	col.stats.MemoryGuardTrips = trips

	if col.cache != nil {
		if err := SaveCache(col.cache); err != nil {
			p.logger.Warn("cache save failed", "path", col.cache.path, "error", err)
		}
	}

	cancelled := len(rest) > 0 || p.runStopped(ctx)
	st := &col.stats
	st.EndTime = time.Now()
	st.DurationSeconds = st.EndTime.Sub(start).Seconds()
	run.Stats = *st
	switch {
	case cancelled:
		run.Status = RunCancelled
	case st.ErrorFiles > 0:
		run.Status = RunPartial
	default:
		run.Status = RunSuccess
	}
	run.Message = fmt.Sprintf("processed %d of %d files (%d skipped, %d errors)",
		st.ProcessedFiles, st.TotalFiles, st.SkippedFiles, st.ErrorFiles)

	p.report(col.total, col.total, "writing")
	pressure := trips > 0 || p.overMemory()
	tier, werr := p.writer.write(output, run.Data, pressure)
	run.OutputTier = tier
	if werr != nil {
		run.Message += "; output not written: " + werr.Error()
	} else if tier != TierFull {
		run.Message += "; output degraded to " + tier.String()
	}
	if p.cfg.Output.Stats {
		if err := writeStats(StatsPath(output), run, p.caps, p.writer.marshal); err != nil {
			p.logger.Warn("stats write failed", "path", StatsPath(output), "error", err)
		}
	}
	if p.diag != nil {
		p.diag.RecordRun(col.ctx, run.Status, st.Metrics())
	}
	p.report(col.total, col.total, "done")

	p.logger.Info("run finished", "run_id", p.runID, "status", run.Status,
		"total", st.TotalFiles, "processed", st.ProcessedFiles, "skipped", st.SkippedFiles,
		"errors", st.ErrorFiles, "chunks", st.TotalChunks, "tier", tier.String(),
		"duration", st.EndTime.Sub(start))
	if werr != nil {
		return run, fmt.Errorf("write output: %w", werr)
	}
	return run, nil
}

// dispatch runs the batches. Files left undispatched after a run-wide
// cancellation are returned in rest.
func (p *Processor) dispatch(ctx context.Context, root string, work []Candidate, results chan<- *FileResult) (rest []Candidate, trips int) {
	for start := 0; start < len(work); start += p.cfg.BatchSize {
		batch := work[start:min(start+p.cfg.BatchSize, len(work))]

		workers := p.cfg.MaxWorkers
		g := new(errgroup.Group)
		g.SetLimit(workers)
		for i, c := range batch {
			if p.runStopped(ctx) {
				g.Wait()
				return work[start+i:], trips
			}
			if workers > 1 && p.overMemory() {
				trips++
				g.Wait()
				workers = 1
				g = new(errgroup.Group)
				g.SetLimit(workers)
				p.logger.Warn("memory guard: finishing batch with one worker",
					"limit_mb", p.cfg.MemoryLimitMB, "heap_mb", p.memUsage()>>20)
			}
			g.Go(func() error {
				results <- p.ProcessFile(ctx, root, c.Path)
				return nil
			})
		}
		g.Wait()
	}
	return nil, trips
}

// overMemory reports whether the heap stays above the limit after a
// forced collection.
func (p *Processor) overMemory() bool {
	limit := p.cfg.MemoryLimitBytes()
	if limit == 0 || p.memUsage() <= limit {
		return false
	}
	debug.FreeOSMemory()
	return p.memUsage() > limit
}

func (p *Processor) runStopped(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	if p.signal == nil {
		return false
	}
	select {
	case <-p.signal.Done():
		return true
	default:
		return false
	}
}

func (p *Processor) report(current, total int, stage string) {
	if p.progress != nil {
		p.progress(current, total, stage)
	}
}

// cachePath is the configured cache file, or one next to output.
func (p *Processor) cachePath(output string) string {
	if p.cfg.Cache.Path != "" {
		return p.cfg.Cache.Path
	}
	return filepath.Join(filepath.Dir(output), ".docflow_cache.json")
}

func (p *Processor) loadCache(output string) *Cache {
	path := p.cachePath(output)
	c, err := LoadCache(path)
	if err != nil {
		p.logger.Warn("cache unreadable, starting empty", "path", path, "error", err)
	}
	p.logger.Debug("cache loaded", "path", path, "entries", c.Len())
	return c
}

// excludeOutput keeps the run's own output files out of discovery.
func (p *Processor) excludeOutput(output string, next Filter) Filter {
	own := map[string]bool{
		absPath(output):              true,
		absPath(StatsPath(output)):   true,
		absPath(p.cachePath(output)): true,
	}
	return func(path string, info fs.FileInfo) (FailureKind, string) {
		if own[absPath(path)] {
			return FailFiltered, "run output"
		}
		return next(path, info)
	}
}

// StatsPath returns the stats sidecar path of an output file.
func StatsPath(output string) string {
	return strings.TrimSuffix(output, filepath.Ext(output)) + ".stats.json"
}

func absPath(p string) string {
	if a, err := filepath.Abs(p); err == nil {
		return a
	}
	return p
}

func rejection(rj Rejection) *FileResult {
	r := &FileResult{
		Path:     rj.Path,
		GroupKey: rj.GroupKey,
		Status:   StatusSkipped,
		Failure:  &Failure{Kind: rj.Kind, Detail: rj.Detail},
	}
	if rj.Info != nil {
		r.ModTime, r.Size = rj.Info.ModTime(), rj.Info.Size()
	}
	r.count()
	return r
}

// collector merges per-file results. It runs on a single goroutine and
// owns the run statistics, the output data and the cache writes.
type collector struct {
	p     *Processor
	ctx   context.Context
	stats Stats
	data  map[string]*Group
	cache *Cache

	done, total int
	sometimes   rate.Sometimes
}

func (c *collector) collect(r *FileResult, dispatched bool) {
	p := c.p
	c.stats.Merge(r.Stats)

	if len(r.Docs) > 0 {
		g := c.data[r.GroupKey]
		if g == nil {
			g = &Group{Metadata: GroupMetadata{GroupKey: r.GroupKey}}
			c.data[r.GroupKey] = g
		}
		g.add(r)
	}

	if f := r.Failure; f != nil {
		switch f.Kind {
		case FailUnchanged, FailFiltered:
			p.logger.Debug("file skipped", "path", r.Path, "kind", f.Kind)
		default:
			p.logger.Warn("file not processed", "path", r.Path, "status", r.Status, "kind", f.Kind, "detail", f.Detail)
		}
		if p.diag != nil && f.Kind != FailUnchanged {
			p.diag.RecordFailure(c.ctx, r.Path, r.GroupKey, string(f.Kind), f.Detail)
		}
	}
	if p.diag != nil {
		for _, f := range r.Recovered {
			p.diag.RecordFailure(c.ctx, r.Path, r.GroupKey, string(f.Kind), f.Detail)
		}
	}

	if c.cache != nil && r.Status == StatusSuccess {
		if n := c.cache.Update(absPath(r.Path), r.ModTime, r.Size, len(r.Docs)); n >= p.cfg.Cache.FlushEvery {
			if err := SaveCache(c.cache); err != nil {
				p.logger.Warn("cache flush failed", "path", c.cache.path, "error", err)
			}
		}
	}

	if !dispatched || r.Status == StatusCancelled {
		return
	}
	c.done++
	p.report(c.done, c.total, "processing")
	c.sometimes.Do(func() {
		p.logger.Info("progress", "done", c.done, "total", c.total,
			"processed", c.stats.ProcessedFiles, "errors", c.stats.ErrorFiles)
	})
}
