package manifest

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/jchantrell/exilefiles/internal/extract"
)

// Run describes one extraction run.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Version    string
	Source     string
	Pattern    string
	OutputDir  string
	Matched    int
	Extracted  int
	Skipped    int
	Failed     int
	Bytes      int64
}

// Entry is the recorded outcome of one file in a run.
type Entry struct {
	RunID    string
	Path     string
	PathHash uint64
	Bundle   uint32
	Offset   uint64
	Size     uint32
	Status   extract.Status
	Error    string
}

// NewRun starts a run record with a fresh id.
func NewRun(version, source, pattern, outputDir string) *Run {
	return &Run{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Version:   version,
		Source:    source,
		Pattern:   pattern,
		OutputDir: outputDir,
	}
}

// RecordRun stores run with the counts and outcomes of res. Outcomes are
// inserted in batches, one transaction per batch.
func (m *Manifest) RecordRun(ctx context.Context, run *Run, res *extract.Result) error {
	if m.db == nil {
		return ErrClosed
	}
	if run == nil || res == nil {
		return fmt.Errorf("run and result cannot be nil")
	}

	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now().UTC()
	}
	run.Matched = res.Matched
	run.Extracted = res.Extracted
	run.Skipped = res.Skipped
	run.Failed = len(res.Failures)
	run.Bytes = res.Bytes

	_, err := m.db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, finished_at, version, source, pattern, output_dir,
			matched, extracted, skipped, failed, bytes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, formatTime(run.StartedAt), formatTime(run.FinishedAt),
		run.Version, run.Source, run.Pattern, run.OutputDir,
		run.Matched, run.Extracted, run.Skipped, run.Failed, run.Bytes)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}

	for i := 0; i < len(res.Outcomes); i += m.batchSize {
		end := min(i+m.batchSize, len(res.Outcomes))
		if err := m.insertBatch(ctx, run.ID, res.Outcomes[i:end]); err != nil {
			return fmt.Errorf("inserting entries %d-%d for run %s: %w", i, end-1, run.ID, err)
		}
	}

	return nil
}

func (m *Manifest) insertBatch(ctx context.Context, runID string, batch []extract.Outcome) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entries (run_id, path, path_hash, bundle, file_offset, size, status, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert statement: %w", err)
	}
	defer stmt.Close()

	for _, o := range batch {
		var msg sql.NullString
		if o.Err != nil {
			msg = sql.NullString{String: o.Err.Error(), Valid: true}
		}

		e := o.Job.Entry
		if _, err := stmt.ExecContext(ctx, runID, o.Job.RelativePath, formatHash(o.Job.PathHash),
			int64(e.BundleIndex), int64(e.Offset), int64(e.Size), string(o.Status), msg); err != nil {
			return fmt.Errorf("inserting %s: %w", o.Job.RelativePath, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// Runs lists recorded runs, newest first.
func (m *Manifest) Runs(ctx context.Context) ([]Run, error) {
	rows, err := m.Query(ctx, `
		SELECT id, started_at, finished_at, version, source, pattern, output_dir,
			matched, extracted, skipped, failed, bytes
		FROM runs ORDER BY started_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started, finished string
		if err := rows.Scan(&r.ID, &started, &finished, &r.Version, &r.Source, &r.Pattern, &r.OutputDir,
			&r.Matched, &r.Extracted, &r.Skipped, &r.Failed, &r.Bytes); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		if r.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if r.FinishedAt, err = parseTime(finished); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}

	return runs, nil
}

// Failures lists the failed entries of a run, sorted by path.
func (m *Manifest) Failures(ctx context.Context, runID string) ([]Entry, error) {
	rows, err := m.Query(ctx, `
		SELECT run_id, path, path_hash, bundle, file_offset, size, status, COALESCE(error, '')
		FROM entries WHERE run_id = ? AND status = ? ORDER BY path`,
		runID, string(extract.StatusFailed))
	if err != nil {
		return nil, fmt.Errorf("listing failures for run %s: %w", runID, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var hash, status string
		var bundle, offset, size int64
		if err := rows.Scan(&e.RunID, &e.Path, &hash, &bundle, &offset, &size, &status, &e.Error); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		if e.PathHash, err = strconv.ParseUint(hash, 16, 64); err != nil {
			return nil, fmt.Errorf("parsing path hash %q: %w", hash, err)
		}
		e.Bundle = uint32(bundle)
		e.Offset = uint64(offset)
		e.Size = uint32(size)
		e.Status = extract.Status(status)
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entries: %w", err)
	}

	return entries, nil
}

func formatHash(h uint64) string {
	return fmt.Sprintf("%016x", h)
}

// Fixed width so that timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing time %q: %w", s, err)
	}
	return t, nil
}
