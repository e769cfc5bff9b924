package proto

import (
	"context"
	"fmt"
	"time"
)

// DeviceInfo queries the device identity.
func (p *Protocol) DeviceInfo(ctx context.Context) (DeviceInfo, error) {
	var r DeviceInfo
	err := p.Exec(ctx, &DeviceInfoRequest{}, &r)
	return r, err
}

// Drives lists the storage drives.
func (p *Protocol) Drives(ctx context.Context) ([]Drive, error) {
	var r DriveList
	if err := p.Exec(ctx, &DriveInfoRequest{}, &r); err != nil {
		return nil, err
	}
	return r.Drives, nil
}

// ListDir lists the entries of a device directory.
func (p *Protocol) ListDir(ctx context.Context, path string) ([]DirEntry, error) {
	var r DirList
	if err := p.Exec(ctx, &ListDirRequest{Path: path}, &r); err != nil {
		return nil, err
	}
	return r.Entries, nil
}

// Stat returns metadata for a file or directory.
func (p *Protocol) Stat(ctx context.Context, path string) (FileInfo, error) {
	var r FileInfo
	err := p.Exec(ctx, &FileInfoRequest{Path: path}, &r)
	return r, err
}

// Delete removes a file.
func (p *Protocol) Delete(ctx context.Context, path string) error {
	return p.Exec(ctx, &DeleteRequest{Path: path}, nil)
}

// Mkdir creates a single directory.
func (p *Protocol) Mkdir(ctx context.Context, path string) error {
	return p.Exec(ctx, &MkdirRequest{Path: path}, nil)
}

// Rmdir removes a directory, and its contents when recursive is set.
func (p *Protocol) Rmdir(ctx context.Context, path string, recursive bool) error {
	return p.Exec(ctx, &RmdirRequest{Path: path, Recursive: recursive}, nil)
}

// Rename moves from to to on the same device.
func (p *Protocol) Rename(ctx context.Context, from, to string) error {
	return p.Exec(ctx, &RenameRequest{From: from, To: to}, nil)
}

// Battery queries the battery state.
func (p *Protocol) Battery(ctx context.Context) (BatteryInfo, error) {
	var r BatteryInfo
	err := p.Exec(ctx, &BatteryRequest{}, &r)
	return r, err
}

// Ping round-trips a sequence number and returns the latency.
func (p *Protocol) Ping(ctx context.Context) (time.Duration, error) {
	seq := p.seq.Add(1)
	start := time.Now()
	var r Pong
	if err := p.Exec(ctx, &PingRequest{Seq: seq}, &r); err != nil {
		return 0, err
	}
	if r.Seq != seq {
		return 0, &ProtocolError{
			Code: CodePing,
			Err:  fmt.Errorf("%w: ping sequence %d, want %d", ErrMalformed, r.Seq, seq),
		}
	}
	return time.Since(start), nil
}

// EnterBulkMode switches the console into USB bulk-transfer mode.
func (p *Protocol) EnterBulkMode(ctx context.Context) error {
	if err := p.Exec(ctx, &EnterBulkModeRequest{}, nil); err != nil {
		return err
	}
	p.bulkMode.Store(true)
	return nil
}

// ExitBulkMode leaves USB bulk-transfer mode.
func (p *Protocol) ExitBulkMode(ctx context.Context) error {
	if err := p.Exec(ctx, &ExitBulkModeRequest{}, nil); err != nil {
		return err
	}
	p.bulkMode.Store(false)
	return nil
}

// InBulkMode reports whether EnterBulkMode last succeeded.
func (p *Protocol) InBulkMode() bool { return p.bulkMode.Load() }

// ReadAt reads up to len(buf) bytes of path at off. A short count with a nil
// error means the end of the file was reached.
func (p *Protocol) ReadAt(ctx context.Context, path string, buf []byte, off int64) (int, error) {
	if len(buf) > p.cfg.MaxChunk {
		return 0, fmt.Errorf("read %d bytes: %w", len(buf), ErrChunkTooLarge)
	}
	if off < 0 {
		return 0, fmt.Errorf("read at %d: negative offset", off)
	}
	var r Chunk
	req := &ReadChunkRequest{Path: path, Offset: uint64(off), Length: uint32(len(buf))} //nolint:gosec // bounded above
	if err := p.Exec(ctx, req, &r); err != nil {
		return 0, err
	}
	if len(r.Data) > len(buf) {
		return 0, &ProtocolError{
			Code: CodeReadChunk,
			Err:  fmt.Errorf("%w: %d bytes returned for %d requested", ErrMalformed, len(r.Data), len(buf)),
		}
	}
	return copy(buf, r.Data), nil
}

// WriteAt writes data to path at off, creating the file if needed. With
// truncate set the file is emptied first.
func (p *Protocol) WriteAt(ctx context.Context, path string, data []byte, off int64, truncate bool) (int, error) {
	if len(data) > p.cfg.MaxChunk {
		return 0, fmt.Errorf("write %d bytes: %w", len(data), ErrChunkTooLarge)
	}
	if off < 0 {
		return 0, fmt.Errorf("write at %d: negative offset", off)
	}
	var r Written
	req := &WriteChunkRequest{Path: path, Offset: uint64(off), Truncate: truncate, Data: data}
	if err := p.Exec(ctx, req, &r); err != nil {
		return 0, err
	}
	if int(r.N) != len(data) {
		return int(r.N), &ProtocolError{
			Code:   CodeWriteChunk,
			Status: StatusNoSpace,
			Msg:    fmt.Sprintf("short write: %d of %d bytes", r.N, len(data)),
		}
	}
	return int(r.N), nil
}
