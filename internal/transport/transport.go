// Package transport gives the transfer engine one file API over both ends
// of a transfer: the host filesystem and the console's storage.
package transport

import (
	"context"
	"errors"
	"time"
)

// ErrNoDevice is returned when a device path is used without a device.
var ErrNoDevice = errors.New("no device attached")

// FileEntry describes a single file or directory.
type FileEntry struct {
	ModTime time.Time
	Path    string // full path as given to the endpoint
	RelPath string // relative to the walk root, slash-separated
	Size    int64
	IsDir   bool
}

// Reader is an open transfer source. ReadAt follows io.ReaderAt: a short
// read at the end of the file returns io.EOF.
type Reader interface {
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)
	Size() int64
	Path() string
	Close() error
}

// Writer is an open transfer destination.
type Writer interface {
	WriteAt(ctx context.Context, p []byte, off int64) (int, error)

	// Sync makes written data durable before a checkpoint records it.
	Sync() error

	// Truncate cuts the destination to size bytes.
	Truncate(ctx context.Context, size int64) error

	Path() string
	Close() error
}

// Endpoint is one side's filesystem.
type Endpoint interface {
	// Stat returns metadata for path.
	Stat(ctx context.Context, path string) (FileEntry, error)

	// OpenRead opens path for reading.
	OpenRead(ctx context.Context, path string) (Reader, error)

	// OpenWrite opens path for writing, creating it and its parent
	// directories if needed. With truncate set the file starts empty;
	// sizeHint is the expected final size.
	OpenWrite(ctx context.Context, path string, truncate bool, sizeHint int64) (Writer, error)

	// Remove deletes a file.
	Remove(ctx context.Context, path string) error

	// Walk calls fn for every entry below root, parents before children.
	Walk(ctx context.Context, root string, fn func(FileEntry) error) error

	// Connected reports whether the endpoint can serve requests.
	Connected() bool
}
