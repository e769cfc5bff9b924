package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bamsammich/psplink/internal/platform"
)

// Compile-time interface checks.
var (
	_ Endpoint = (*Local)(nil)
	_ Reader   = (*localReader)(nil)
	_ Writer   = (*localWriter)(nil)
)

// Local serves paths on the host filesystem.
type Local struct{}

// NewLocal creates a local endpoint.
func NewLocal() *Local { return &Local{} }

func (*Local) Connected() bool { return true }

func (*Local) Stat(_ context.Context, path string) (FileEntry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileEntry{}, err
	}
	return FileEntry{
		Path:    path,
		RelPath: filepath.Base(path),
		Size:    info.Size(),
		ModTime: info.ModTime(),
		IsDir:   info.IsDir(),
	}, nil
}

//nolint:ireturn // implements Endpoint
func (*Local) OpenRead(_ context.Context, path string) (Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, &fs.PathError{Op: "open", Path: path, Err: errors.New("is a directory")}
	}
	return &localReader{f: f, size: info.Size()}, nil
}

//nolint:ireturn // implements Endpoint
func (*Local) OpenWrite(_ context.Context, path string, truncate bool, sizeHint int64) (Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	flags := os.O_WRONLY | os.O_CREATE
	if truncate {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, err
	}
	platform.Preallocate(f, sizeHint)
	return &localWriter{f: f}, nil
}

func (*Local) Remove(_ context.Context, path string) error {
	return os.Remove(path)
}

//nolint:revive // cognitive-complexity: directory walk with multiple error checks
func (*Local) Walk(ctx context.Context, root string, fn func(FileEntry) error) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil // vanished mid-walk
		}
		return fn(FileEntry{
			Path:    path,
			RelPath: filepath.ToSlash(rel),
			Size:    info.Size(),
			ModTime: info.ModTime(),
			IsDir:   d.IsDir(),
		})
	})
}

type localReader struct {
	f    *os.File
	size int64
}

func (r *localReader) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return r.f.ReadAt(p, off)
}

func (r *localReader) Size() int64  { return r.size }
func (r *localReader) Path() string { return r.f.Name() }
func (r *localReader) Close() error { return r.f.Close() }

type localWriter struct {
	f *os.File
}

func (w *localWriter) WriteAt(ctx context.Context, p []byte, off int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return w.f.WriteAt(p, off)
}

func (w *localWriter) Truncate(ctx context.Context, size int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return w.f.Truncate(size)
}

func (w *localWriter) Sync() error  { return platform.Datasync(w.f) }
func (w *localWriter) Path() string { return w.f.Name() }
func (w *localWriter) Close() error { return w.f.Close() }

// ReadAll reads r from start to end in bufSize pieces into w. It is the
// sequential view used for hashing.
func ReadAll(ctx context.Context, r Reader, w io.Writer, bufSize int) (int64, error) {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	buf := make([]byte, bufSize)
	var off int64
	for {
		n, err := r.ReadAt(ctx, buf, off)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return off, werr
			}
			off += int64(n)
		}
		if errors.Is(err, io.EOF) || (err == nil && n == 0) {
			return off, nil
		}
		if err != nil {
			return off, err
		}
	}
}
