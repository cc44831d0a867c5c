package bundle

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"
)

// FS presents the named files of an archive as a read-only fs.FS.
// Directories are implied by the file paths.
type FS struct {
	ctx    context.Context
	table  *PathTable
	reader *Reader
}

// NewFS returns a file system over table whose file contents come from
// reader. ctx bounds every read made through the file system.
func NewFS(ctx context.Context, table *PathTable, reader *Reader) *FS {
	return &FS{ctx: ctx, table: table, reader: reader}
}

func (b *FS) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}

	files := b.table.entries

	// super special case
	if name == "." {
		return &fsDir{fs: b, prefix: "", offset: 0}, nil
	}

	// binary search for the file
	idx := sort.Search(len(files), func(i int) bool {
		return files[i].Path >= name
	})

	if idx < len(files) && files[idx].Path == name {
		return &fsFile{fs: b, info: &files[idx]}, nil
	}

	// fall back to the hash, which ignores case
	if e, err := b.table.Lookup(name); err == nil {
		i := b.table.byHash[e.Entry.PathHash]
		return &fsFile{fs: b, info: &files[i]}, nil
	}

	// check for a directory separately
	dirName := name + "/"
	idx += sort.Search(len(files)-idx, func(i int) bool {
		return files[idx+i].Path >= dirName
	})

	if idx < len(files) && strings.HasPrefix(files[idx].Path, dirName) {
		return &fsDir{fs: b, prefix: dirName, offset: idx}, nil
	}

	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
}

// ReadFile reads a whole file without the fs.File indirection.
func (b *FS) ReadFile(name string) ([]byte, error) {
	e, err := b.table.Lookup(name)
	if err != nil {
		return nil, &fs.PathError{Op: "read", Path: name, Err: fs.ErrNotExist}
	}
	data, err := b.reader.ReadEntry(b.ctx, e.Entry)
	if err != nil {
		return nil, &fs.PathError{Op: "read", Path: name, Err: err}
	}
	return data, nil
}

// fsFile implements fs.File for files in bundles
type fsFile struct {
	fs     *FS
	info   *PathEntry
	reader *bytes.Reader
}

func (f *fsFile) load() error {
	if f.reader != nil {
		return nil
	}

	data, err := f.fs.reader.ReadEntry(f.fs.ctx, f.info.Entry)
	if err != nil {
		return &fs.PathError{Op: "read", Path: f.info.Path, Err: err}
	}

	f.reader = bytes.NewReader(data)
	return nil
}

func (f *fsFile) Read(p []byte) (int, error) {
	if err := f.load(); err != nil {
		return 0, err
	}
	return f.reader.Read(p)
}

func (f *fsFile) Close() error {
	return nil
}

func (f *fsFile) Stat() (fs.FileInfo, error) {
	return fileInfo{f.info}, nil
}

// fileInfo implements fs.FileInfo for bundle files
type fileInfo struct {
	entry *PathEntry
}

func (fi fileInfo) Name() string       { return path.Base(fi.entry.Path) }
func (fi fileInfo) Size() int64        { return int64(fi.entry.Entry.Size) }
func (fi fileInfo) Mode() fs.FileMode  { return 0o444 }
func (fi fileInfo) ModTime() time.Time { return time.Unix(0, 0) }
func (fi fileInfo) IsDir() bool        { return false }
func (fi fileInfo) Sys() any           { return fi.entry.Entry }

// fsDir implements fs.ReadDirFile for directories in bundles
type fsDir struct {
	fs     *FS
	prefix string
	offset int
}

func (d *fsDir) Read(p []byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.prefix, Err: errors.New("is a directory")}
}

func (d *fsDir) Close() error {
	return nil
}

func (d *fsDir) Stat() (fs.FileInfo, error) {
	return dirInfo{d.prefix}, nil
}

func (d *fsDir) ReadDir(n int) ([]fs.DirEntry, error) {
	files := d.fs.table.entries
	prefixLen := len(d.prefix)

	dirents := []fs.DirEntry{}
	for d.offset < len(files) && (n <= 0 || len(dirents) < n) {
		fi := &files[d.offset]
		if !strings.HasPrefix(fi.Path, d.prefix) {
			break
		}

		if slash := strings.IndexByte(fi.Path[prefixLen:], '/'); slash != -1 {
			dir := fi.Path[:prefixLen+slash]
			dirents = append(dirents, dirEntry{name: dir})
			d.offset += sort.Search(len(files)-d.offset, func(i int) bool {
				return files[d.offset+i].Path >= dir+"/\xff"
			})
		} else {
			dirents = append(dirents, dirEntry{name: fi.Path, file: fi})
			d.offset++
		}
	}

	if n > 0 && len(dirents) == 0 {
		return nil, io.EOF
	}

	return dirents, nil
}

// dirInfo implements fs.FileInfo for bundle directories
type dirInfo struct {
	prefix string
}

func (di dirInfo) Name() string {
	if di.prefix == "" {
		return "."
	}
	return path.Base(di.prefix)
}
func (di dirInfo) Size() int64        { return 0 }
func (di dirInfo) Mode() fs.FileMode  { return 0o555 | fs.ModeDir }
func (di dirInfo) ModTime() time.Time { return time.Unix(0, 0) }
func (di dirInfo) IsDir() bool        { return true }
func (di dirInfo) Sys() any           { return nil }

// dirEntry implements fs.DirEntry for bundle directory entries
type dirEntry struct {
	name string
	file *PathEntry
}

func (de dirEntry) Name() string { return path.Base(de.name) }
func (de dirEntry) IsDir() bool  { return de.file == nil }

func (de dirEntry) Type() fs.FileMode {
	if de.IsDir() {
		return fs.ModeDir
	}
	return 0
}

func (de dirEntry) Info() (fs.FileInfo, error) {
	if de.IsDir() {
		return dirInfo{de.name + "/"}, nil
	}
	return fileInfo{de.file}, nil
}
