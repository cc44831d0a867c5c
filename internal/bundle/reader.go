package bundle

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/golang-lru/arc/v2"
	"golang.org/x/sync/singleflight"

	"github.com/jchantrell/exilefiles/internal/source"
)

const defaultLayoutCacheSize = 1024

// Option configures a Reader or a one-shot decompression.
type Option func(*options)

type options struct {
	codecs          codecSet
	layoutCacheSize int
	version         string
}

func newOptions(opts []Option) *options {
	o := &options{
		codecs:          defaultCodecs(),
		layoutCacheSize: defaultLayoutCacheSize,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithCodec overrides the codec used for a compressor id.
func WithCodec(compressor uint32, c Codec) Option {
	return func(o *options) {
		o.codecs[compressor] = c
	}
}

// WithLayoutCacheSize sets how many bundle headers a Reader keeps.
func WithLayoutCacheSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.layoutCacheSize = n
		}
	}
}

// WithVersion names the content version being read. LoadIndex uses it to
// pick a hash algorithm when the index does not identify one.
func WithVersion(v string) Option {
	return func(o *options) {
		o.version = v
	}
}

// Stats counts Reader activity.
type Stats struct {
	// Decompressions is the number of blocks decompressed.
	Decompressions int64
	// CacheHits is the number of block lookups served from memory.
	CacheHits int64
	// LayoutLoads is the number of bundle headers fetched.
	LayoutLoads int64
	// FetchedBytes is the compressed payload fetched from the source.
	FetchedBytes int64
	// CachedBlocks is the number of decompressed blocks held in memory.
	CachedBlocks int
}

type blockKey struct {
	bundle uint32
	block  int
}

func (k blockKey) String() string {
	return strconv.FormatUint(uint64(k.bundle), 10) + ":" + strconv.Itoa(k.block)
}

// Reader returns decompressed byte ranges of the bundles named by an index.
//
// Concurrent requests for the same block share one fetch and decompression.
// Blocks of bundles announced with Expect are held only until every expected
// entry touching them is released; other blocks are kept for the lifetime of
// the Reader. Reader is safe for concurrent use.
type Reader struct {
	src     source.Source
	bundles []BundleInfo
	codecs  codecSet

	layouts     *arc.ARCCache[uint32, *layout]
	layoutGroup singleflight.Group

	mu         sync.RWMutex
	blocks     map[blockKey][]byte
	demand     map[uint32]*bundleDemand
	blockGroup singleflight.Group

	decompressions atomic.Int64
	hits           atomic.Int64
	layoutLoads    atomic.Int64
	fetched        atomic.Int64
}

// NewReader creates a Reader for the bundles listed in idx.
func NewReader(src source.Source, idx *Index, opts ...Option) (*Reader, error) {
	o := newOptions(opts)

	layouts, err := arc.NewARC[uint32, *layout](o.layoutCacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating layout cache: %w", err)
	}

	return &Reader{
		src:     src,
		bundles: idx.Bundles,
		codecs:  o.codecs,
		layouts: layouts,
		blocks:  make(map[blockKey][]byte),
		demand:  make(map[uint32]*bundleDemand),
	}, nil
}

// ReadEntry returns the bytes of a file entry.
func (r *Reader) ReadEntry(ctx context.Context, e FileEntry) ([]byte, error) {
	return r.Read(ctx, e.BundleIndex, e.Offset, e.Size)
}

// Read returns exactly length bytes starting at offset in the uncompressed
// payload of bundle bundleIndex.
func (r *Reader) Read(ctx context.Context, bundleIndex uint32, offset uint64, length uint32) ([]byte, error) {
	if int(bundleIndex) >= len(r.bundles) {
		return nil, fmt.Errorf("%w: bundle %d of %d", ErrOutOfBounds, bundleIndex, len(r.bundles))
	}

	out := make([]byte, length)
	if length == 0 {
		return out, nil
	}

	l, err := r.layout(ctx, bundleIndex)
	if err != nil {
		return nil, err
	}

	off, n := int64(offset), int64(length)
	if off+n > l.size {
		return nil, fmt.Errorf("%w: bytes %d-%d of %s (%d bytes)", ErrOutOfBounds, off, off+n, l.name, l.size)
	}

	first, last := l.blockSpan(off, n)
	copied := 0
	for i := first; i <= last; i++ {
		block, err := r.block(ctx, bundleIndex, l, i)
		if err != nil {
			return nil, err
		}

		start := int64(0)
		if i == first {
			start = off - int64(i)*l.granularity
		}
		copied += copy(out[copied:], block[start:])
	}

	return out, nil
}

// Stats returns a snapshot of the Reader's counters.
func (r *Reader) Stats() Stats {
	return Stats{
		Decompressions: r.decompressions.Load(),
		CacheHits:      r.hits.Load(),
		LayoutLoads:    r.layoutLoads.Load(),
		FetchedBytes:   r.fetched.Load(),
		CachedBlocks:   r.cachedBlocks(),
	}
}

func (r *Reader) cachedBlocks() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.blocks)
}

func (r *Reader) layout(ctx context.Context, bundleIndex uint32) (*layout, error) {
	if l, ok := r.layouts.Get(bundleIndex); ok {
		return l, nil
	}

	// The flight outlives a cancelled caller so that other waiters still
	// get the layout.
	flightCtx := context.WithoutCancel(ctx)
	ch := r.layoutGroup.DoChan(strconv.FormatUint(uint64(bundleIndex), 10), func() (any, error) {
		if l, ok := r.layouts.Get(bundleIndex); ok {
			return l, nil
		}

		info := r.bundles[bundleIndex]
		l, err := openLayout(flightCtx, r.src, info.FileName())
		if err != nil {
			return nil, err
		}
		r.layoutLoads.Add(1)

		if uint64(l.size) != info.UncompressedSize {
			slog.Warn("Bundle size differs from index", "bundle", info.Name, "index", info.UncompressedSize, "header", l.size)
		}

		r.layouts.Add(bundleIndex, l)
		r.activate(bundleIndex, l)
		return l, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*layout), nil
	}
}

func (r *Reader) block(ctx context.Context, bundleIndex uint32, l *layout, i int) ([]byte, error) {
	key := blockKey{bundle: bundleIndex, block: i}

	if b, ok := r.cached(key); ok {
		r.hits.Add(1)
		return b, nil
	}

	flightCtx := context.WithoutCancel(ctx)
	ch := r.blockGroup.DoChan(key.String(), func() (any, error) {
		// A caller that lost the race to a finished flight lands here after
		// the block was stored.
		if b, ok := r.cached(key); ok {
			r.hits.Add(1)
			return b, nil
		}

		b, fetched, err := l.decodeBlock(flightCtx, r.src, r.codecs, i)
		r.fetched.Add(fetched)
		if err != nil {
			return nil, err
		}
		r.decompressions.Add(1)

		r.mu.Lock()
		if r.wanted(key) {
			r.blocks[key] = b
		}
		r.mu.Unlock()

		return b, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

func (r *Reader) cached(key blockKey) ([]byte, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.blocks[key]
	return b, ok
}

// bundleDemand counts the expected entries of one bundle that have not been
// released. Entries are counted by value until the bundle's layout is known,
// then by block.
type bundleDemand struct {
	entries     map[FileEntry]int
	blocks      map[int]int
	granularity int64
	size        int64
}

func (d *bundleDemand) span(e FileEntry) (int, int, bool) {
	off, n := int64(e.Offset), int64(e.Size)
	if n == 0 || off+n > d.size {
		return 0, 0, false
	}
	return int(off / d.granularity), int((off + n - 1) / d.granularity), true
}

func (d *bundleDemand) add(e FileEntry, delta int) []int {
	if d.granularity == 0 {
		d.entries[e] += delta
		if d.entries[e] <= 0 {
			delete(d.entries, e)
		}
		return nil
	}

	first, last, ok := d.span(e)
	if !ok {
		return nil
	}
	var done []int
	for i := first; i <= last; i++ {
		d.blocks[i] += delta
		if d.blocks[i] <= 0 {
			delete(d.blocks, i)
			done = append(done, i)
		}
	}
	return done
}

// Expect announces entries that will each be read and then released. Blocks
// of their bundles are dropped from memory once no unreleased entry needs
// them. Entries with an unknown bundle are ignored.
func (r *Reader) Expect(entries ...FileEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range entries {
		if int(e.BundleIndex) >= len(r.bundles) || e.Size == 0 {
			continue
		}

		d, ok := r.demand[e.BundleIndex]
		if !ok {
			d = &bundleDemand{entries: make(map[FileEntry]int), blocks: make(map[int]int)}
			r.demand[e.BundleIndex] = d
			if l, ok := r.layouts.Peek(e.BundleIndex); ok {
				r.activateLocked(e.BundleIndex, l)
			}
		}
		d.add(e, 1)
	}
}

// Release marks one expected read of e as finished, whether or not it
// succeeded, and drops blocks no other expected entry needs.
func (r *Reader) Release(e FileEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.demand[e.BundleIndex]
	if !ok {
		return
	}
	for _, i := range d.add(e, -1) {
		delete(r.blocks, blockKey{bundle: e.BundleIndex, block: i})
	}
}

func (r *Reader) activate(bundleIndex uint32, l *layout) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activateLocked(bundleIndex, l)
}

// activateLocked converts the pending entries of a bundle to block counts
// once its layout is known.
func (r *Reader) activateLocked(bundleIndex uint32, l *layout) {
	d, ok := r.demand[bundleIndex]
	if !ok || d.granularity != 0 {
		return
	}

	d.granularity, d.size = l.granularity, l.size
	for e, n := range d.entries {
		d.add(e, n)
	}
	d.entries = nil
}

// wanted reports whether a freshly decoded block should be kept. r.mu must
// be held.
func (r *Reader) wanted(key blockKey) bool {
	d, ok := r.demand[key.bundle]
	if !ok || d.granularity == 0 {
		return true
	}
	return d.blocks[key.block] > 0
}
