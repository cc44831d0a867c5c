// Package session opens an archive from configuration: it builds the
// source, loads the index and path table, and prepares a bundle reader.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.uber.org/multierr"

	"github.com/jchantrell/exilefiles/internal/bundle"
	"github.com/jchantrell/exilefiles/internal/cache"
	"github.com/jchantrell/exilefiles/internal/config"
	"github.com/jchantrell/exilefiles/internal/source"
)

// Archive is an opened content archive.
type Archive struct {
	Source  source.Source
	Version string
	Index   *bundle.Index
	Table   *bundle.PathTable
	Reader  *bundle.Reader
}

// NewSource builds the source selected by cfg.
func NewSource(cfg *config.Config) (source.Source, error) {
	switch cfg.Source {
	case config.SourceLocal:
		return source.NewLocal(cfg.InstallDir)
	case config.SourceRemote, "":
		return source.NewRemote(source.RemoteOptions{
			Patch:       cfg.Patch,
			BaseURL:     cfg.CDNURL,
			PatchServer: cfg.PatchServer,
			Cache:       cache.New(cfg.CacheDir),
			MaxRetries:  cfg.Retries,
		})
	default:
		return nil, fmt.Errorf("unknown source %q", cfg.Source)
	}
}

// Open builds the configured source and opens the archive it serves.
func Open(ctx context.Context, cfg *config.Config) (*Archive, error) {
	src, err := NewSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating %s source: %w", cfg.Source, err)
	}

	a, err := OpenSource(ctx, src, cfg.ParsedPatch().Version)
	if err != nil {
		return nil, multierr.Append(err, src.Close())
	}
	return a, nil
}

// OpenSource opens the archive served by src. version may be empty when it
// is unknown; sources that resolve their own version take precedence.
func OpenSource(ctx context.Context, src source.Source, version string) (*Archive, error) {
	start := time.Now()

	if v, ok := src.(source.Versioned); ok {
		resolved, err := v.CurrentVersion(ctx)
		if err != nil {
			return nil, err
		}
		version = resolved
	}

	var opts []bundle.Option
	if version != "" {
		opts = append(opts, bundle.WithVersion(version))
	}

	idx, err := bundle.LoadIndex(ctx, src, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading index: %w", err)
	}

	table, err := bundle.BuildPathTable(ctx, idx, opts...)
	if err != nil {
		return nil, fmt.Errorf("building path table: %w", err)
	}

	reader, err := bundle.NewReader(src, idx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating bundle reader: %w", err)
	}

	slog.Info("Archive opened",
		"version", version,
		"bundles", len(idx.Bundles),
		"files", table.Len(),
		"hash", idx.Hash.String(),
		"duration", time.Since(start).Round(time.Millisecond))

	return &Archive{
		Source:  src,
		Version: version,
		Index:   idx,
		Table:   table,
		Reader:  reader,
	}, nil
}

// FS returns a read-only file system view of the archive.
func (a *Archive) FS(ctx context.Context) *bundle.FS {
	return bundle.NewFS(ctx, a.Table, a.Reader)
}

// Close releases the underlying source.
func (a *Archive) Close() error {
	return a.Source.Close()
}
