package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/bamsammich/psplink/internal/proto"
)

// Compile-time interface checks.
var (
	_ Endpoint = (*Device)(nil)
	_ Reader   = (*deviceReader)(nil)
	_ Writer   = (*deviceWriter)(nil)
)

// Device serves console paths through the command protocol. Reads are
// stateless offset reads; writes go through the protocol's single open-file
// handle, so only one device destination can be open at a time.
type Device struct {
	p *proto.Protocol
}

// NewDevice creates a device endpoint over p.
func NewDevice(p *proto.Protocol) *Device {
	return &Device{p: p}
}

func (d *Device) Connected() bool { return d.p.IsConnected() }

func (d *Device) Stat(ctx context.Context, path string) (FileEntry, error) {
	path = proto.Clean(path)
	fi, err := d.p.Stat(ctx, path)
	if err != nil {
		return FileEntry{}, fmt.Errorf("stat %s: %w", path, err)
	}
	return FileEntry{
		Path:    path,
		RelPath: proto.Base(path),
		Size:    int64(fi.Size), //nolint:gosec // file sizes fit int64
		ModTime: fi.Time(),
		IsDir:   fi.IsDir,
	}, nil
}

//nolint:ireturn // implements Endpoint
func (d *Device) OpenRead(ctx context.Context, path string) (Reader, error) {
	e, err := d.Stat(ctx, path)
	if err != nil {
		return nil, err
	}
	if e.IsDir {
		return nil, &fs.PathError{Op: "open", Path: e.Path, Err: errors.New("is a directory")}
	}
	return &deviceReader{p: d.p, path: e.Path, size: e.Size}, nil
}

//nolint:ireturn // implements Endpoint
func (d *Device) OpenWrite(ctx context.Context, path string, truncate bool, _ int64) (Writer, error) {
	path = proto.Clean(path)
	if err := d.mkdirAll(ctx, proto.Dir(path)); err != nil {
		return nil, err
	}
	if _, err := d.p.OpenWrite(ctx, path, truncate); err != nil {
		return nil, err
	}
	return &deviceWriter{p: d.p, path: path}, nil
}

func (d *Device) mkdirAll(ctx context.Context, dir string) error {
	drive, rest, ok := proto.SplitDrive(dir)
	if !ok {
		return fmt.Errorf("%s: %w", dir, fs.ErrInvalid)
	}
	cur := drive + "/"
	for _, part := range strings.Split(strings.Trim(rest, "/"), "/") {
		if part == "" {
			continue
		}
		cur = proto.Join(cur, part)
		if err := d.p.Mkdir(ctx, cur); err != nil && !errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("mkdir %s: %w", cur, err)
		}
	}
	return nil
}

func (d *Device) Remove(ctx context.Context, path string) error {
	return d.p.Delete(ctx, proto.Clean(path))
}

func (d *Device) Walk(ctx context.Context, root string, fn func(FileEntry) error) error {
	root = proto.Clean(root)
	return d.walk(ctx, root, "", fn)
}

func (d *Device) walk(ctx context.Context, dir, rel string, fn func(FileEntry) error) error {
	entries, err := d.p.ListDir(ctx, dir)
	if err != nil {
		return fmt.Errorf("list %s: %w", dir, err)
	}
	for _, e := range entries {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		childRel := e.Name
		if rel != "" {
			childRel = rel + "/" + e.Name
		}
		entry := FileEntry{
			Path:    proto.Join(dir, e.Name),
			RelPath: childRel,
			Size:    int64(e.Size), //nolint:gosec // file sizes fit int64
			ModTime: e.Time(),
			IsDir:   e.IsDir,
		}
		if err := fn(entry); err != nil {
			if e.IsDir && errors.Is(err, fs.SkipDir) {
				continue
			}
			return err
		}
		if e.IsDir {
			if err := d.walk(ctx, entry.Path, childRel, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

type deviceReader struct {
	p    *proto.Protocol
	path string
	size int64
}

// ReadAt splits p into protocol-sized chunks.
func (r *deviceReader) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	total := 0
	step := r.p.MaxChunk()
	for total < len(p) {
		want := min(step, len(p)-total)
		n, err := r.p.ReadAt(ctx, r.path, p[total:total+want], off+int64(total))
		total += n
		if err != nil {
			return total, err
		}
		if n < want {
			return total, io.EOF
		}
	}
	return total, nil
}

func (r *deviceReader) Size() int64  { return r.size }
func (r *deviceReader) Path() string { return r.path }
func (*deviceReader) Close() error   { return nil }

type deviceWriter struct {
	p    *proto.Protocol
	path string
}

// WriteAt positions the open-file handle at off and writes p in
// protocol-sized chunks.
func (w *deviceWriter) WriteAt(ctx context.Context, p []byte, off int64) (int, error) {
	if _, err := w.p.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	total := 0
	step := w.p.MaxChunk()
	for total < len(p) {
		end := min(total+step, len(p))
		n, err := w.p.WriteChunk(ctx, p[total:end])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (w *deviceWriter) Truncate(ctx context.Context, size int64) error {
	return w.p.Truncate(ctx, size)
}

// Sync is a no-op: the device acknowledges each chunk after storing it.
func (*deviceWriter) Sync() error { return nil }

func (w *deviceWriter) Path() string { return w.path }
func (w *deviceWriter) Close() error { return w.p.CloseFile() }
