package sim

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/bamsammich/psplink/internal/proto"
)

var driveDir = regexp.MustCompile(`^[a-z]{2,5}[0-9]+$`)

var driveTypes = map[string]string{
	"ms0":    "Memory Stick",
	"ef0":    "Internal Flash",
	"flash0": "System Flash",
}

var errInvalidPath = errors.New("not a device path")

func (c *Console) exec(cmd proto.Command) proto.Response {
	req, err := proto.DecodeRequest(cmd)
	if err != nil {
		if proto.StatusOf(err) == proto.StatusUnsupported {
			return proto.Failure(proto.StatusUnsupported, err.Error())
		}
		return proto.Failure(proto.StatusInvalidArgument, err.Error())
	}

	var reply proto.Reply
	switch r := req.(type) {
	case *proto.DeviceInfoRequest:
		c.mu.Lock()
		info := c.info
		c.mu.Unlock()
		reply = &info
	case *proto.DriveInfoRequest:
		reply, err = c.drives()
	case *proto.ListDirRequest:
		reply, err = c.listDir(r.Path)
	case *proto.ReadChunkRequest:
		reply, err = c.readChunk(r)
	case *proto.WriteChunkRequest:
		reply, err = c.writeChunk(r)
	case *proto.DeleteRequest:
		err = c.remove(r.Path)
	case *proto.MkdirRequest:
		err = c.mkdir(r.Path)
	case *proto.RmdirRequest:
		err = c.rmdir(r.Path, r.Recursive)
	case *proto.RenameRequest:
		err = c.rename(r.From, r.To)
	case *proto.FileInfoRequest:
		reply, err = c.stat(r.Path)
	case *proto.BatteryRequest:
		c.mu.Lock()
		b := c.battery
		c.mu.Unlock()
		reply = &b
	case *proto.PingRequest:
		reply = &proto.Pong{Seq: r.Seq}
	case *proto.EnterBulkModeRequest:
		c.setBulkMode(true)
	case *proto.ExitBulkModeRequest:
		c.setBulkMode(false)
	default:
		return proto.Failure(proto.StatusUnsupported, cmd.Code.String())
	}
	if err != nil {
		return proto.Failure(statusFor(err), err.Error())
	}
	return proto.EncodeReply(reply)
}

func (c *Console) setBulkMode(on bool) {
	c.mu.Lock()
	c.bulkMode = on
	c.mu.Unlock()
}

func statusFor(err error) proto.Status {
	var se *statusError
	switch {
	case errors.As(err, &se):
		return se.status
	case errors.Is(err, fs.ErrNotExist):
		return proto.StatusNotFound
	case errors.Is(err, fs.ErrExist):
		return proto.StatusExists
	case errors.Is(err, errInvalidPath), errors.Is(err, fs.ErrInvalid):
		return proto.StatusInvalidArgument
	default:
		return proto.StatusError
	}
}

type statusError struct {
	status proto.Status
	path   string
}

func (e *statusError) Error() string { return fmt.Sprintf("%s: %s", e.path, e.status) }

// resolve maps "ms0:/a/b" to <root>/ms0/a/b. SplitDrive cleans the
// remainder so it cannot climb out of the drive directory.
func (c *Console) resolve(p string) (string, error) {
	drive, rest, ok := proto.SplitDrive(p)
	if !ok {
		return "", fmt.Errorf("%q: %w", p, errInvalidPath)
	}
	dir := filepath.Join(c.root, strings.TrimSuffix(drive, ":"))
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		return "", fmt.Errorf("drive %s: %w", drive, fs.ErrNotExist)
	}
	return filepath.Join(dir, filepath.FromSlash(rest)), nil
}

func (c *Console) drives() (*proto.DriveList, error) {
	ents, err := os.ReadDir(c.root)
	if err != nil {
		return nil, err
	}
	list := &proto.DriveList{}
	for _, e := range ents {
		if !e.IsDir() || !driveDir.MatchString(e.Name()) {
			continue
		}
		used, err := dirSize(filepath.Join(c.root, e.Name()))
		if err != nil {
			return nil, err
		}
		typ := driveTypes[e.Name()]
		if typ == "" {
			typ = "Storage"
		}
		var free uint64
		if used < c.capacity {
			free = c.capacity - used
		}
		list.Drives = append(list.Drives, proto.Drive{
			Name:  e.Name(),
			Path:  e.Name() + ":/",
			Type:  typ,
			Total: c.capacity,
			Free:  free,
		})
	}
	return list, nil
}

func (c *Console) listDir(p string) (*proto.DirList, error) {
	host, err := c.resolve(p)
	if err != nil {
		return nil, err
	}
	ents, err := os.ReadDir(host)
	if err != nil {
		var pe *fs.PathError
		if errors.As(err, &pe) && !errors.Is(err, fs.ErrNotExist) {
			return nil, &statusError{status: proto.StatusInvalidArgument, path: p}
		}
		return nil, err
	}
	list := &proto.DirList{Entries: make([]proto.DirEntry, 0, len(ents))}
	for _, e := range ents {
		fi, err := e.Info()
		if err != nil {
			continue
		}
		list.Entries = append(list.Entries, entryOf(fi))
	}
	sort.Slice(list.Entries, func(i, j int) bool { return list.Entries[i].Name < list.Entries[j].Name })
	return list, nil
}

func entryOf(fi fs.FileInfo) proto.DirEntry {
	e := proto.DirEntry{Name: fi.Name(), IsDir: fi.IsDir(), ModTime: fi.ModTime().Unix()}
	if !fi.IsDir() {
		e.Size = uint64(fi.Size()) //nolint:gosec // sizes are non-negative
	}
	return e
}

func (c *Console) stat(p string) (*proto.FileInfo, error) {
	host, err := c.resolve(p)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(host)
	if err != nil {
		return nil, err
	}
	e := entryOf(fi)
	return &proto.FileInfo{IsDir: e.IsDir, Size: e.Size, ModTime: e.ModTime}, nil
}

func (c *Console) readChunk(r *proto.ReadChunkRequest) (*proto.Chunk, error) {
	host, err := c.resolve(r.Path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(host)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return nil, &statusError{status: proto.StatusInvalidArgument, path: r.Path}
	}

	buf := make([]byte, r.Length)
	n, err := f.ReadAt(buf, int64(r.Offset)) //nolint:gosec // offsets fit int64
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return &proto.Chunk{Data: buf[:n]}, nil
}

func (c *Console) writeChunk(r *proto.WriteChunkRequest) (*proto.Written, error) {
	host, err := c.resolve(r.Path)
	if err != nil {
		return nil, err
	}
	if fi, err := os.Stat(host); err == nil && fi.IsDir() {
		return nil, &statusError{status: proto.StatusInvalidArgument, path: r.Path}
	}

	if c.enforce && len(r.Data) > 0 {
		drive, _, _ := proto.SplitDrive(r.Path)
		used, err := dirSize(filepath.Join(c.root, strings.TrimSuffix(drive, ":")))
		if err != nil {
			return nil, err
		}
		if used+uint64(len(r.Data)) > c.capacity {
			return nil, &statusError{status: proto.StatusNoSpace, path: r.Path}
		}
	}

	f, err := os.OpenFile(host, os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	if r.Truncate {
		if err := f.Truncate(int64(r.Offset)); err != nil { //nolint:gosec // offsets fit int64
			f.Close()
			return nil, err
		}
	}
	n, werr := f.WriteAt(r.Data, int64(r.Offset)) //nolint:gosec // offsets fit int64
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		return nil, werr
	}
	return &proto.Written{N: uint32(n)}, nil //nolint:gosec // bounded by frame size
}

func (c *Console) remove(p string) error {
	host, err := c.resolve(p)
	if err != nil {
		return err
	}
	fi, err := os.Stat(host)
	if err != nil {
		return err
	}
	if fi.IsDir() {
		return &statusError{status: proto.StatusInvalidArgument, path: p}
	}
	return os.Remove(host)
}

func (c *Console) mkdir(p string) error {
	host, err := c.resolve(p)
	if err != nil {
		return err
	}
	return os.Mkdir(host, 0o755)
}

func (c *Console) rmdir(p string, recursive bool) error {
	if _, rest, ok := proto.SplitDrive(p); ok && rest == "/" {
		return &statusError{status: proto.StatusInvalidArgument, path: p}
	}
	host, err := c.resolve(p)
	if err != nil {
		return err
	}
	fi, err := os.Stat(host)
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return &statusError{status: proto.StatusInvalidArgument, path: p}
	}
	if recursive {
		return os.RemoveAll(host)
	}
	ents, err := os.ReadDir(host)
	if err != nil {
		return err
	}
	if len(ents) > 0 {
		return &statusError{status: proto.StatusNotEmpty, path: p}
	}
	return os.Remove(host)
}

func (c *Console) rename(from, to string) error {
	src, err := c.resolve(from)
	if err != nil {
		return err
	}
	dst, err := c.resolve(to)
	if err != nil {
		return err
	}
	if _, err := os.Stat(src); err != nil {
		return err
	}
	if _, err := os.Lstat(dst); err == nil {
		return &statusError{status: proto.StatusExists, path: to}
	}
	return os.Rename(src, dst)
}

func dirSize(root string) (uint64, error) {
	var total uint64
	err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		total += uint64(fi.Size()) //nolint:gosec // sizes are non-negative
		return nil
	})
	return total, err
}
