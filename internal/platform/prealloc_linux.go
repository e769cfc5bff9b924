//go:build linux

package platform

import (
	"os"

	"golang.org/x/sys/unix"
)

// preallocate uses fallocate with FALLOC_FL_KEEP_SIZE so a resumed transfer
// still sees the true file length.
//
//nolint:gosec // G115: fd values are small non-negative integers
func preallocate(fd *os.File, size int64) {
	//nolint:errcheck // fallocate is advisory; not supported on all filesystems
	unix.Fallocate(int(fd.Fd()), unix.FALLOC_FL_KEEP_SIZE, 0, size)
}

//nolint:gosec // G115: fd values are small non-negative integers
func datasync(fd *os.File) error {
	return unix.Fdatasync(int(fd.Fd()))
}
