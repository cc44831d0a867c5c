package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-cleanhttp"

	"github.com/jchantrell/exilefiles/internal/cache"
	"github.com/jchantrell/exilefiles/internal/cdn"
	"github.com/jchantrell/exilefiles/internal/utils"
)

// IndexFileName is the name of the index inside Bundles2.
const IndexFileName = "_.index.bin"

// RemoteOptions configures a Remote source.
type RemoteOptions struct {
	// Patch is "1" or "2" for the latest PoE1 or PoE2 content, or a specific
	// version such as "3.25.3.4".
	Patch string

	// BaseURL overrides the CDN host.
	BaseURL string

	// PatchServer overrides the patch server address used to resolve "1" and "2".
	PatchServer string

	// Cache stores downloaded index files. Nil disables caching.
	Cache *cache.Cache

	// Client is the HTTP client used for CDN requests.
	Client *http.Client

	// MaxRetries bounds retries of transient failures per request.
	MaxRetries int

	// InitialInterval is the first retry delay.
	InitialInterval time.Duration
}

// Remote fetches bundle ranges from the patch CDN using HTTP range requests.
type Remote struct {
	opts RemoteOptions
	game int

	mu      sync.Mutex
	version string
	baseURL string
	index   []byte
}

// NewRemote creates a CDN source. No network traffic happens until the first
// call to CurrentVersion or Fetch.
func NewRemote(opts RemoteOptions) (*Remote, error) {
	patch, err := utils.ParsePatch(opts.Patch)
	if err != nil {
		return nil, err
	}

	if opts.Client == nil {
		opts.Client = cleanhttp.DefaultPooledClient()
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = 500 * time.Millisecond
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}

	r := &Remote{opts: opts, game: patch.Game}
	if !patch.Latest() {
		r.version = patch.Version
		r.baseURL = opts.BaseURL
		if r.baseURL == "" {
			r.baseURL = cdn.BaseURL(patch.Major())
		}
	}

	return r, nil
}

// CurrentVersion returns the content version being served. For "1" and "2"
// the patch server is asked once and the answer is reused.
func (r *Remote) CurrentVersion(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.version != "" {
		return r.version, nil
	}

	addr := r.opts.PatchServer
	if addr == "" {
		addr = cdn.PatchServer(r.game)
	}

	version, cdnURL, err := cdn.QueryPatchServer(ctx, addr)
	if err != nil {
		return "", fmt.Errorf("%w: resolving patch %s: %w", ErrNetwork, r.opts.Patch, err)
	}

	slog.Info("Resolved patch version", "patch", r.opts.Patch, "version", version, "cdn", cdnURL)

	r.version = version
	r.baseURL = r.opts.BaseURL
	if r.baseURL == "" {
		r.baseURL = cdn.BaseURL(r.game + 2)
	}

	return version, nil
}

func (r *Remote) Fetch(ctx context.Context, name string, offset, length int64) ([]byte, error) {
	version, err := r.CurrentVersion(ctx)
	if err != nil {
		return nil, err
	}

	if name == IndexFileName && r.opts.Cache != nil {
		index, err := r.cachedIndex(ctx, version)
		if err != nil {
			return nil, err
		}
		return sliceRange(name, index, offset, length)
	}

	if length == 0 {
		return []byte{}, nil
	}

	url := cdn.ConstructURL(r.baseURL, version, name)
	header := fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)

	return r.retry(ctx, url, func() ([]byte, error) {
		return r.get(ctx, url, header, offset, length)
	})
}

// cachedIndex returns the full index file, downloading it into the cache
// directory the first time a version is seen.
func (r *Remote) cachedIndex(ctx context.Context, version string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.index != nil {
		return r.index, nil
	}

	path := r.opts.Cache.IndexPath(version)
	if r.opts.Cache.FileSize(path) > 0 {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: reading cached index: %w", ErrIO, err)
		}
		slog.Debug("Using cached index", "path", path)
		r.index = data
		return data, nil
	}

	url := cdn.ConstructURL(r.baseURL, version, IndexFileName)
	slog.Info("Fetching index from CDN", "url", url, "destination", path)

	data, err := r.retry(ctx, url, func() ([]byte, error) {
		return r.get(ctx, url, "", 0, -1)
	})
	if err != nil {
		return nil, err
	}

	if _, err := r.opts.Cache.Store(path, bytes.NewReader(data)); err != nil {
		slog.Warn("Failed to cache index", "path", path, "error", err)
	}

	r.index = data
	return data, nil
}

func (r *Remote) retry(ctx context.Context, url string, op func() ([]byte, error)) ([]byte, error) {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(
			backoff.NewExponentialBackOff(backoff.WithInitialInterval(r.opts.InitialInterval)),
			uint64(r.opts.MaxRetries),
		),
		ctx,
	)

	notify := func(err error, wait time.Duration) {
		slog.Debug("Retrying CDN request", "url", url, "wait", wait, "error", err)
	}

	data, err := backoff.RetryNotifyWithData(op, policy, notify)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrRangeUnsatisfiable) || errors.Is(err, ErrNetwork) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}

	return data, nil
}

// get performs one request. A negative length fetches the whole file.
// Client errors are permanent; everything else may be retried.
func (r *Remote) get(ctx context.Context, url, rangeHeader string, offset, length int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("creating request: %w", err))
	}
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}

	resp, err := r.opts.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, backoff.Permanent(fmt.Errorf("%w: %s", ErrNotFound, url))
	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable:
		return nil, backoff.Permanent(fmt.Errorf("%w: %s %s", ErrRangeUnsatisfiable, url, rangeHeader))
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, backoff.Permanent(fmt.Errorf("%w: %s: %s", ErrNetwork, url, resp.Status))
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%s: %s", url, resp.Status)
	}

	if length < 0 {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", url, err)
		}
		return data, nil
	}

	switch resp.StatusCode {
	case http.StatusPartialContent:
	case http.StatusOK:
		// Server ignored the range.
		if _, err := io.CopyN(io.Discard, resp.Body, offset); err != nil {
			return nil, r.shortBody(url, rangeHeader, err)
		}
	default:
		return nil, backoff.Permanent(fmt.Errorf("%w: %s: unexpected %s", ErrNetwork, url, resp.Status))
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(resp.Body, buf); err != nil {
		return nil, r.shortBody(url, rangeHeader, err)
	}

	return buf, nil
}

func (r *Remote) shortBody(url, rangeHeader string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return backoff.Permanent(fmt.Errorf("%w: %s %s: short body", ErrRangeUnsatisfiable, url, rangeHeader))
	}
	return fmt.Errorf("reading %s: %w", url, err)
}

func (r *Remote) Close() error {
	r.opts.Client.CloseIdleConnections()
	return nil
}
