package device

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/bamsammich/psplink/internal/proto"
)

// Entry is a file or directory on the device.
type Entry struct {
	ModTime time.Time
	Name    string
	Path    string
	Size    int64
	IsDir   bool
}

func entryFrom(dir string, e proto.DirEntry) Entry {
	return Entry{
		Name:    e.Name,
		Path:    proto.Join(dir, e.Name),
		IsDir:   e.IsDir,
		Size:    int64(e.Size), //nolint:gosec // file sizes fit int64
		ModTime: e.Time(),
	}
}

// ListDirectory lists path. With recursive set, subdirectory contents follow
// their parent entry, depth first.
func (d *Device) ListDirectory(ctx context.Context, path string, recursive bool) ([]Entry, error) {
	path = proto.Clean(path)
	var raw []proto.DirEntry
	err := d.do(ctx, func() error {
		var err error
		raw, err = d.proto.ListDir(ctx, path)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", path, err)
	}

	out := make([]Entry, 0, len(raw))
	for _, r := range raw {
		if r.Name == "." || r.Name == ".." {
			continue
		}
		e := entryFrom(path, r)
		out = append(out, e)
		if recursive && e.IsDir {
			sub, err := d.ListDirectory(ctx, e.Path, true)
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
		}
	}
	return out, nil
}

// ListFiles returns the names of the regular files in path.
func (d *Device) ListFiles(ctx context.Context, path string) ([]string, error) {
	entries, err := d.ListDirectory(ctx, path, false)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir {
			names = append(names, e.Name)
		}
	}
	return names, nil
}

// ListFolders returns the subdirectories of path.
func (d *Device) ListFolders(ctx context.Context, path string) ([]Entry, error) {
	entries, err := d.ListDirectory(ctx, path, false)
	if err != nil {
		return nil, err
	}
	var dirs []Entry
	for _, e := range entries {
		if e.IsDir {
			dirs = append(dirs, e)
		}
	}
	return dirs, nil
}

// Stat returns metadata for path.
func (d *Device) Stat(ctx context.Context, path string) (Entry, error) {
	path = proto.Clean(path)
	var fi proto.FileInfo
	err := d.do(ctx, func() error {
		var err error
		fi, err = d.proto.Stat(ctx, path)
		return err
	})
	if err != nil {
		return Entry{}, fmt.Errorf("stat %s: %w", path, err)
	}
	return Entry{
		Name:    proto.Base(path),
		Path:    path,
		IsDir:   fi.IsDir,
		Size:    int64(fi.Size), //nolint:gosec // file sizes fit int64
		ModTime: fi.Time(),
	}, nil
}

// Exists reports whether anything exists at path.
func (d *Device) Exists(ctx context.Context, path string) (bool, error) {
	_, err := d.Stat(ctx, path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

// FileExists reports whether a regular file exists at path.
func (d *Device) FileExists(ctx context.Context, path string) (bool, error) {
	return d.existsAs(ctx, path, false)
}

// DirectoryExists reports whether a directory exists at path.
func (d *Device) DirectoryExists(ctx context.Context, path string) (bool, error) {
	return d.existsAs(ctx, path, true)
}

func (d *Device) existsAs(ctx context.Context, path string, dir bool) (bool, error) {
	e, err := d.Stat(ctx, path)
	switch {
	case err == nil:
		return e.IsDir == dir, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

// FileSize returns the size of the file at path.
func (d *Device) FileSize(ctx context.Context, path string) (int64, error) {
	e, err := d.Stat(ctx, path)
	return e.Size, err
}

// ModTime returns the modification time of path.
func (d *Device) ModTime(ctx context.Context, path string) (time.Time, error) {
	e, err := d.Stat(ctx, path)
	return e.ModTime, err
}

// CreateDirectory creates a single directory.
func (d *Device) CreateDirectory(ctx context.Context, path string) error {
	path = proto.Clean(path)
	if err := d.do(ctx, func() error { return d.proto.Mkdir(ctx, path) }); err != nil {
		return fmt.Errorf("mkdir %s: %w", path, err)
	}
	return nil
}

// CreateDirectories creates path and any missing parents.
func (d *Device) CreateDirectories(ctx context.Context, path string) error {
	drive, rest, ok := proto.SplitDrive(path)
	if !ok {
		return fmt.Errorf("mkdir %s: %w", path, fs.ErrInvalid)
	}
	cur := drive + "/"
	for _, part := range strings.Split(strings.Trim(rest, "/"), "/") {
		if part == "" {
			continue
		}
		cur = proto.Join(cur, part)
		err := d.CreateDirectory(ctx, cur)
		if err == nil || errors.Is(err, fs.ErrExist) {
			continue
		}
		return err
	}
	return nil
}

// DeleteFile removes a file.
func (d *Device) DeleteFile(ctx context.Context, path string) error {
	path = proto.Clean(path)
	if err := d.do(ctx, func() error { return d.proto.Delete(ctx, path) }); err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

// DeleteDirectory removes a directory, with its contents if recursive.
func (d *Device) DeleteDirectory(ctx context.Context, path string, recursive bool) error {
	path = proto.Clean(path)
	if err := d.do(ctx, func() error { return d.proto.Rmdir(ctx, path, recursive) }); err != nil {
		return fmt.Errorf("rmdir %s: %w", path, err)
	}
	return nil
}

// Rename renames within a drive.
func (d *Device) Rename(ctx context.Context, from, to string) error {
	from, to = proto.Clean(from), proto.Clean(to)
	if err := d.do(ctx, func() error { return d.proto.Rename(ctx, from, to) }); err != nil {
		return fmt.Errorf("rename %s: %w", from, err)
	}
	return nil
}

// Move relocates a file. Moves within a drive are renames; moves between
// drives copy then delete the source.
func (d *Device) Move(ctx context.Context, from, to string) error {
	fromDrive, _, _ := proto.SplitDrive(from)
	toDrive, _, _ := proto.SplitDrive(to)
	if fromDrive == toDrive {
		return d.Rename(ctx, from, to)
	}
	if err := d.CopyFile(ctx, from, to); err != nil {
		return err
	}
	return d.DeleteFile(ctx, from)
}

// CopyFile copies a file on the device, chunk by chunk through the host.
func (d *Device) CopyFile(ctx context.Context, from, to string) error {
	from, to = proto.Clean(from), proto.Clean(to)
	buf := make([]byte, d.proto.MaxChunk())
	var off int64
	for {
		var n int
		err := d.do(ctx, func() error {
			var err error
			n, err = d.proto.ReadAt(ctx, from, buf, off)
			return err
		})
		if err != nil {
			return fmt.Errorf("copy %s: %w", from, err)
		}
		if n == 0 && off > 0 {
			return nil
		}
		err = d.do(ctx, func() error {
			_, err := d.proto.WriteAt(ctx, to, buf[:n], off, off == 0)
			return err
		})
		if err != nil {
			return fmt.Errorf("copy to %s: %w", to, err)
		}
		off += int64(n)
		if n < len(buf) {
			return nil
		}
	}
}

// ReadFile returns the contents of a file.
func (d *Device) ReadFile(ctx context.Context, path string) ([]byte, error) {
	e, err := d.Stat(ctx, path)
	if err != nil {
		return nil, err
	}
	if e.IsDir {
		return nil, &fs.PathError{Op: "read", Path: e.Path, Err: errors.New("is a directory")}
	}

	data := make([]byte, e.Size)
	step := d.proto.MaxChunk()
	var off int64
	for off < e.Size {
		end := min(off+int64(step), e.Size)
		var n int
		err := d.do(ctx, func() error {
			var err error
			n, err = d.proto.ReadAt(ctx, e.Path, data[off:end], off)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.Path, err)
		}
		if n == 0 {
			break
		}
		off += int64(n)
	}
	return data[:off], nil
}

// WriteFile replaces the contents of a file, creating it if needed.
func (d *Device) WriteFile(ctx context.Context, path string, data []byte) error {
	path = proto.Clean(path)
	step := d.proto.MaxChunk()
	off := 0
	for first := true; first || off < len(data); first = false {
		end := min(off+step, len(data))
		err := d.do(ctx, func() error {
			_, err := d.proto.WriteAt(ctx, path, data[off:end], int64(off), first)
			return err
		})
		if err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		off = end
	}
	return nil
}
