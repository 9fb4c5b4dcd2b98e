package ingest

import (
	"context"
	"errors"
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// Candidate is a discovered regular file.
type Candidate struct {
	Path     string
	GroupKey string
	Info     fs.FileInfo
}

// Rejection is a discovered file that a filter excluded.
type Rejection struct {
	Candidate
	Kind   FailureKind
	Detail string
}

// Filter decides whether a discovered file is processed. It returns an
// empty kind to accept the file.
type Filter func(path string, info fs.FileInfo) (FailureKind, string)

// GroupKey returns the first path segment of path under root, or "root"
// for files directly inside root.
func GroupKey(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "root"
	}
	rel = filepath.ToSlash(rel)
	i := strings.IndexByte(rel, '/')
	if i < 0 {
		return "root"
	}
	return rel[:i]
}

// Discover walks root and splits its regular files into accepted
// candidates and rejections. Ignored directories are not descended and
// their files are not reported. Both slices are sorted by path.
func Discover(ctx context.Context, root string, ignore []string, filter Filter) ([]Candidate, []Rejection, error) {
	var (
		accepted []Candidate
		rejected []Rejection
	)
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if err != nil {
			if p == root {
				return err
			}
			// Unreadable entry: report it and keep walking.
			rejected = append(rejected, Rejection{
				Candidate: Candidate{Path: p, GroupKey: GroupKey(root, p)},
				Kind:      FailMetadata,
				Detail:    err.Error(),
			})
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if p != root && ignored(d.Name(), ignore) {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		c := Candidate{Path: p, GroupKey: GroupKey(root, p)}
		if ignored(d.Name(), ignore) {
			rejected = append(rejected, Rejection{Candidate: c, Kind: FailFiltered, Detail: "ignored name"})
			return nil
		}
		info, err := d.Info()
		if err != nil {
			rejected = append(rejected, Rejection{Candidate: c, Kind: FailMetadata, Detail: err.Error()})
			return nil
		}
		c.Info = info
		if filter != nil {
			if kind, detail := filter(p, info); kind != "" {
				rejected = append(rejected, Rejection{Candidate: c, Kind: kind, Detail: detail})
				return nil
			}
		}
		accepted = append(accepted, c)
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return nil, nil, err
	}
	sort.Slice(accepted, func(i, j int) bool { return accepted[i].Path < accepted[j].Path })
	sort.Slice(rejected, func(i, j int) bool { return rejected[i].Path < rejected[j].Path })
	return accepted, rejected, err
}

func ignored(name string, patterns []string) bool {
	for _, pat := range patterns {
		if ok, _ := path.Match(pat, name); ok {
			return true
		}
	}
	return false
}

// filter builds the discovery filter from the configuration.
func (p *Processor) filter() Filter {
	exts := map[string]bool{}
	for _, e := range p.cfg.Extensions {
		e = strings.ToLower(e)
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts[e] = true
	}
	maxBytes := p.cfg.MaxFileBytes()
	return func(path string, info fs.FileInfo) (FailureKind, string) {
		ext := strings.ToLower(filepath.Ext(path))
		if len(exts) > 0 && !exts[ext] {
			return FailFiltered, "extension " + ext + " not selected"
		}
		if _, err := p.pipe.Detect(path); err != nil {
			return FailFiltered, err.Error()
		}
		if info.Size() > maxBytes {
			return FailTooLarge, "exceeds max_file_mb"
		}
		if p.cfg.Filter != nil && !p.cfg.Filter(path, info) {
			return FailFiltered, "rejected by filter"
		}
		return "", ""
	}
}
