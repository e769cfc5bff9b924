package proto

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
)

// Mode is the direction a file was opened in.
type Mode int

const (
	ModeRead Mode = iota + 1
	ModeWrite
)

func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "read"
	case ModeWrite:
		return "write"
	default:
		return "closed"
	}
}

// OpenFile is the protocol's single open-file cursor. Chunk reads and writes
// advance Offset by the bytes moved.
type OpenFile struct {
	Path   string
	Mode   Mode
	Offset int64
	Size   int64
}

// OpenRead opens path for chunked reading.
func (p *Protocol) OpenRead(ctx context.Context, path string) (OpenFile, error) {
	p.fileMu.Lock()
	defer p.fileMu.Unlock()

	if err := p.checkClosed(); err != nil {
		return OpenFile{}, err
	}
	st, err := p.Stat(ctx, path)
	if err != nil {
		return OpenFile{}, fmt.Errorf("open %s: %w", path, err)
	}
	if st.IsDir {
		return OpenFile{}, &fs.PathError{Op: "open", Path: path, Err: errors.New("is a directory")}
	}
	p.file = &OpenFile{Path: path, Mode: ModeRead, Size: int64(st.Size)} //nolint:gosec // file sizes fit int64
	return *p.file, nil
}

// OpenWrite opens path for chunked writing. With truncate set, or when the
// file does not exist, it is created empty; otherwise writes overwrite in
// place starting at offset 0.
func (p *Protocol) OpenWrite(ctx context.Context, path string, truncate bool) (OpenFile, error) {
	p.fileMu.Lock()
	defer p.fileMu.Unlock()

	if err := p.checkClosed(); err != nil {
		return OpenFile{}, err
	}

	var size int64
	if !truncate {
		st, err := p.Stat(ctx, path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			truncate = true
		case err != nil:
			return OpenFile{}, fmt.Errorf("open %s: %w", path, err)
		case st.IsDir:
			return OpenFile{}, &fs.PathError{Op: "open", Path: path, Err: errors.New("is a directory")}
		default:
			size = int64(st.Size) //nolint:gosec // file sizes fit int64
		}
	}
	if truncate {
		if _, err := p.WriteAt(ctx, path, nil, 0, true); err != nil {
			return OpenFile{}, fmt.Errorf("create %s: %w", path, err)
		}
	}
	p.file = &OpenFile{Path: path, Mode: ModeWrite, Size: size}
	return *p.file, nil
}

// Seek moves the open file's offset, interpreting whence like io.Seeker.
func (p *Protocol) Seek(offset int64, whence int) (int64, error) {
	p.fileMu.Lock()
	defer p.fileMu.Unlock()

	if p.file == nil {
		return 0, ErrNoOpenFile
	}
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = p.file.Offset + offset
	case io.SeekEnd:
		abs = p.file.Size + offset
	default:
		return 0, fmt.Errorf("seek: invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, fmt.Errorf("seek %s: negative position %d", p.file.Path, abs)
	}
	p.file.Offset = abs
	return abs, nil
}

// Tell returns the open file's offset.
func (p *Protocol) Tell() (int64, error) {
	p.fileMu.Lock()
	defer p.fileMu.Unlock()
	if p.file == nil {
		return 0, ErrNoOpenFile
	}
	return p.file.Offset, nil
}

// ReadChunk reads the next chunk from the open file into buf. It returns
// io.EOF once the offset reaches the end of the file.
func (p *Protocol) ReadChunk(ctx context.Context, buf []byte) (int, error) {
	p.fileMu.Lock()
	defer p.fileMu.Unlock()

	f, err := p.current(ModeRead)
	if err != nil {
		return 0, err
	}
	if len(buf) == 0 {
		return 0, nil
	}
	if f.Offset >= f.Size {
		return 0, io.EOF
	}
	n, err := p.ReadAt(ctx, f.Path, buf, f.Offset)
	f.Offset += int64(n)
	if err != nil {
		return n, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// WriteChunk writes data at the open file's offset.
func (p *Protocol) WriteChunk(ctx context.Context, data []byte) (int, error) {
	p.fileMu.Lock()
	defer p.fileMu.Unlock()

	f, err := p.current(ModeWrite)
	if err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, nil
	}
	n, err := p.WriteAt(ctx, f.Path, data, f.Offset, false)
	f.Offset += int64(n)
	f.Size = max(f.Size, f.Offset)
	return n, err
}

// Truncate cuts the open write file to size bytes. The offset is left
// where it was.
func (p *Protocol) Truncate(ctx context.Context, size int64) error {
	p.fileMu.Lock()
	defer p.fileMu.Unlock()

	f, err := p.current(ModeWrite)
	if err != nil {
		return err
	}
	if size < 0 {
		return fmt.Errorf("truncate %s: negative size %d", f.Path, size)
	}
	if _, err := p.WriteAt(ctx, f.Path, nil, size, true); err != nil {
		return fmt.Errorf("truncate %s: %w", f.Path, err)
	}
	f.Size = size
	return nil
}

// CloseFile releases the open file. Closing with nothing open is a no-op.
func (p *Protocol) CloseFile() error {
	p.fileMu.Lock()
	defer p.fileMu.Unlock()
	p.file = nil
	return nil
}

// CurrentFile returns a copy of the open file state.
func (p *Protocol) CurrentFile() (OpenFile, bool) {
	p.fileMu.Lock()
	defer p.fileMu.Unlock()
	if p.file == nil {
		return OpenFile{}, false
	}
	return *p.file, true
}

// Reset drops protocol state tied to the link. Call it after a disconnect.
func (p *Protocol) Reset() {
	p.fileMu.Lock()
	p.file = nil
	p.fileMu.Unlock()
	p.bulkMode.Store(false)
}

func (p *Protocol) checkClosed() error {
	if p.file != nil {
		return fmt.Errorf("%w: %s", ErrFileAlreadyOpen, p.file.Path)
	}
	return nil
}

func (p *Protocol) current(mode Mode) (*OpenFile, error) {
	if p.file == nil {
		return nil, ErrNoOpenFile
	}
	if p.file.Mode != mode {
		return nil, fmt.Errorf("%w: %s opened for %s", ErrWrongMode, p.file.Path, p.file.Mode)
	}
	return p.file, nil
}
