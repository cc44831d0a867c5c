package manifest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jchantrell/exilefiles/internal/bundle"
	"github.com/jchantrell/exilefiles/internal/extract"
)

func openTemp(t *testing.T, batch int) *Manifest {
	t.Helper()
	opts := DefaultOptions(filepath.Join(t.TempDir(), "nested", "manifest.db"))
	opts.BatchSize = batch
	m, err := Open(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func sampleResult(n int) *extract.Result {
	res := &extract.Result{Matched: n}
	for i := range n {
		job := extract.Job{
			RelativePath: fmt.Sprintf("data/file%03d.datc64", i),
			PathHash:     0xfedcba9876543210 + uint64(i),
			Entry:        bundle.FileEntry{BundleIndex: uint32(i % 3), Offset: uint64(i * 100), Size: 100},
		}
		o := extract.Outcome{Job: job, Status: extract.StatusExtracted}
		switch {
		case i%5 == 0:
			o.Status = extract.StatusFailed
			o.Err = errors.New("block 2: decompression error")
			res.Failures = append(res.Failures, o)
		case i%2 == 0:
			o.Status = extract.StatusSkipped
			res.Skipped++
		default:
			res.Extracted++
			res.Bytes += 100
		}
		res.Outcomes = append(res.Outcomes, o)
	}
	return res
}

func TestOpenValidation(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), nil)
	assert.Error(t, err)

	_, err = Open(context.Background(), DefaultOptions(""))
	assert.Error(t, err)
}

func TestRecordRun(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := openTemp(t, 7)

	run := NewRun("3.25.3.4", "remote", "data/**", "out")
	require.NotEmpty(t, run.ID)

	res := sampleResult(25)
	require.NoError(t, m.RecordRun(ctx, run, res))

	assert.Equal(t, 25, run.Matched)
	assert.Equal(t, 5, run.Failed)
	assert.False(t, run.FinishedAt.IsZero())

	runs, err := m.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	got := runs[0]
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, "3.25.3.4", got.Version)
	assert.Equal(t, "data/**", got.Pattern)
	assert.Equal(t, res.Extracted, got.Extracted)
	assert.Equal(t, res.Skipped, got.Skipped)
	assert.Equal(t, 5, got.Failed)
	assert.Equal(t, res.Bytes, got.Bytes)
	assert.WithinDuration(t, run.StartedAt, got.StartedAt, time.Microsecond)

	failures, err := m.Failures(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, failures, 5)
	assert.Equal(t, "data/file000.datc64", failures[0].Path)
	assert.Equal(t, uint64(0xfedcba9876543210), failures[0].PathHash)
	assert.Equal(t, extract.StatusFailed, failures[0].Status)
	assert.Contains(t, failures[0].Error, "decompression")
	assert.Equal(t, "data/file005.datc64", failures[1].Path)
	assert.Equal(t, uint32(2), failures[1].Bundle)
	assert.Equal(t, uint64(500), failures[1].Offset)

	rows, err := m.Query(ctx, `SELECT COUNT(*) FROM entries WHERE run_id = ?`, run.ID)
	require.NoError(t, err)
	defer rows.Close()
	require.True(t, rows.Next())
	var count int
	require.NoError(t, rows.Scan(&count))
	assert.Equal(t, 25, count)
}

func TestRunsNewestFirst(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := openTemp(t, 0)

	older := NewRun("1", "remote", "**", "out")
	older.StartedAt = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := NewRun("1", "remote", "**", "out")
	newer.StartedAt = time.Date(2025, 1, 1, 0, 0, 0, 500, time.UTC)

	require.NoError(t, m.RecordRun(ctx, older, &extract.Result{}))
	require.NoError(t, m.RecordRun(ctx, newer, &extract.Result{}))

	runs, err := m.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, newer.ID, runs[0].ID)
	assert.Equal(t, older.ID, runs[1].ID)

	failures, err := m.Failures(ctx, older.ID)
	require.NoError(t, err)
	assert.Empty(t, failures)
}

func TestReopen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "manifest.db")

	m, err := Open(ctx, DefaultOptions(path))
	require.NoError(t, err)
	run := NewRun("2", "local", "**", "out")
	require.NoError(t, m.RecordRun(ctx, run, sampleResult(3)))
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	_, err = m.Runs(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, m.RecordRun(ctx, run, &extract.Result{}), ErrClosed)

	m, err = Open(ctx, DefaultOptions(path))
	require.NoError(t, err)
	defer m.Close()

	runs, err := m.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
}
