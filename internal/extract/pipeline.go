// Package extract materializes archive files on disk: it selects paths with
// a glob, reads them through a bundle reader on a bounded worker pool and
// writes each one atomically.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/afero"
	"go.uber.org/multierr"

	"github.com/jchantrell/exilefiles/internal/bundle"
)

// ErrOutputIO reports a failure to write an extracted file.
var ErrOutputIO = errors.New("output i/o error")

// EntryReader reads the bytes of a file entry.
type EntryReader interface {
	ReadEntry(ctx context.Context, e bundle.FileEntry) ([]byte, error)
}

// releaser is implemented by readers that can drop cached data once every
// announced entry has been released.
type releaser interface {
	Expect(entries ...bundle.FileEntry)
	Release(e bundle.FileEntry)
}

// Job is one file to extract.
type Job struct {
	RelativePath string
	PathHash     uint64
	Entry        bundle.FileEntry
}

// Status is the outcome of a job.
type Status string

const (
	StatusExtracted Status = "extracted"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// Outcome records what happened to a job.
type Outcome struct {
	Job    Job
	Status Status
	Err    error
}

// Config configures a Pipeline.
type Config struct {
	// OutputDir receives the extracted tree.
	OutputDir string
	// Pattern selects files; empty means DefaultPattern.
	Pattern string
	// Workers bounds concurrent jobs; values below 1 mean 1.
	Workers int
	// Fs is the output file system; nil means the OS file system.
	Fs afero.Fs
	// Overwrite rewrites files even when a same-sized file exists.
	Overwrite bool
	// OnProgress, if set, is called after every job. It may be called
	// concurrently.
	OnProgress func(done, total int, job Job)
}

// Result summarizes a run.
type Result struct {
	Matched   int
	Extracted int
	Skipped   int
	Bytes     int64
	Outcomes  []Outcome
	Failures  []Outcome
}

// Err combines every job failure, or returns nil when all jobs succeeded.
func (r *Result) Err() error {
	var err error
	for _, f := range r.Failures {
		err = multierr.Append(err, fmt.Errorf("%s: %w", f.Job.RelativePath, f.Err))
	}
	return err
}

// Pipeline extracts the files of a path table that match a pattern.
type Pipeline struct {
	reader EntryReader
	table  *bundle.PathTable
	cfg    Config
	fs     afero.Fs
}

// New creates a Pipeline.
func New(reader EntryReader, table *bundle.PathTable, cfg Config) *Pipeline {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	fs := cfg.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Pipeline{reader: reader, table: table, cfg: cfg, fs: fs}
}

// Plan returns the jobs selected by the pattern in bundle order, so that jobs
// sharing a block run close together.
func (p *Pipeline) Plan() ([]Job, error) {
	m, err := NewMatcher(p.cfg.Pattern)
	if err != nil {
		return nil, err
	}

	entries := p.table.Match(m.Match)
	jobs := make([]Job, len(entries))
	for i, e := range entries {
		jobs[i] = Job{RelativePath: e.Path, PathHash: e.Entry.PathHash, Entry: e.Entry}
	}
	sort.SliceStable(jobs, func(a, b int) bool {
		x, y := jobs[a].Entry, jobs[b].Entry
		if x.BundleIndex != y.BundleIndex {
			return x.BundleIndex < y.BundleIndex
		}
		return x.Offset < y.Offset
	})

	if len(jobs) == 0 {
		slog.Warn("Pattern matched no files", "pattern", m.String())
	}

	return jobs, nil
}

// Run extracts every planned job. It returns an error only when extraction
// could not start; per-job failures are reported in the Result.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	jobs, err := p.Plan()
	if err != nil {
		return nil, err
	}

	if err := p.fs.MkdirAll(p.cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating output directory: %w", ErrOutputIO, err)
	}

	rel, _ := p.reader.(releaser)
	if rel != nil {
		entries := make([]bundle.FileEntry, len(jobs))
		for i, job := range jobs {
			entries[i] = job.Entry
		}
		rel.Expect(entries...)
	}

	outcomes := make([]Outcome, len(jobs))
	var (
		done  atomic.Int64
		bytes atomic.Int64
		mu    sync.Mutex
	)

	workers := pool.New().WithMaxGoroutines(p.cfg.Workers)
	for i, job := range jobs {
		if ctx.Err() != nil {
			// Undispatched jobs are reported, never dropped.
			for j := i; j < len(jobs); j++ {
				outcomes[j] = Outcome{Job: jobs[j], Status: StatusFailed, Err: ctx.Err()}
				if rel != nil {
					rel.Release(jobs[j].Entry)
				}
			}
			break
		}

		workers.Go(func() {
			status, n, err := p.extract(ctx, job)
			if rel != nil {
				rel.Release(job.Entry)
			}
			if err != nil {
				slog.Debug("Extraction failed", "path", job.RelativePath, "error", err)
			}
			outcomes[i] = Outcome{Job: job, Status: status, Err: err}
			bytes.Add(n)

			if p.cfg.OnProgress != nil {
				d := int(done.Add(1))
				mu.Lock()
				p.cfg.OnProgress(d, len(jobs), job)
				mu.Unlock()
			}
		})
	}
	workers.Wait()

	res := &Result{Matched: len(jobs), Bytes: bytes.Load(), Outcomes: outcomes}
	for _, o := range outcomes {
		switch o.Status {
		case StatusExtracted:
			res.Extracted++
		case StatusSkipped:
			res.Skipped++
		default:
			res.Failures = append(res.Failures, o)
		}
	}

	return res, nil
}

// extract runs one job and returns its status and the bytes written.
func (p *Pipeline) extract(ctx context.Context, job Job) (Status, int64, error) {
	dest, err := p.destination(job.RelativePath)
	if err != nil {
		return StatusFailed, 0, err
	}

	if !p.cfg.Overwrite {
		if info, err := p.fs.Stat(dest); err == nil && !info.IsDir() && info.Size() == int64(job.Entry.Size) {
			return StatusSkipped, 0, nil
		}
	}

	data, err := p.reader.ReadEntry(ctx, job.Entry)
	if err != nil {
		return StatusFailed, 0, err
	}

	if err := p.write(dest, data); err != nil {
		return StatusFailed, 0, err
	}

	return StatusExtracted, int64(len(data)), nil
}

// destination maps an archive path below the output directory.
func (p *Pipeline) destination(rel string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(strings.TrimLeft(rel, "/")))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || filepath.IsAbs(clean) {
		return "", fmt.Errorf("%w: path %q escapes the output directory", ErrOutputIO, rel)
	}
	return filepath.Join(p.cfg.OutputDir, clean), nil
}

// write stores data at dest through a temporary file in the same directory.
func (p *Pipeline) write(dest string, data []byte) error {
	dir := filepath.Dir(dest)
	if err := p.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: creating %s: %w", ErrOutputIO, dir, err)
	}

	tmp, err := afero.TempFile(p.fs, dir, "."+filepath.Base(dest)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: creating temp file in %s: %w", ErrOutputIO, dir, err)
	}
	name := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		p.fs.Remove(name)
		return fmt.Errorf("%w: writing %s: %w", ErrOutputIO, name, err)
	}
	if err := tmp.Close(); err != nil {
		p.fs.Remove(name)
		return fmt.Errorf("%w: closing %s: %w", ErrOutputIO, name, err)
	}
	if err := p.fs.Chmod(name, 0o644); err != nil {
		p.fs.Remove(name)
		return fmt.Errorf("%w: setting mode of %s: %w", ErrOutputIO, name, err)
	}

	if err := p.fs.Rename(name, dest); err != nil {
		p.fs.Remove(name)
		return fmt.Errorf("%w: renaming into %s: %w", ErrOutputIO, dest, err)
	}

	return nil
}

// IsOutputError reports whether err came from writing output rather than
// from reading the archive.
func IsOutputError(err error) bool {
	return errors.Is(err, ErrOutputIO) || errors.Is(err, os.ErrPermission)
}
