// Package platform wraps OS-specific file primitives used when writing
// local transfer destinations.
package platform

import "os"

// Preallocate reserves size bytes for f so a long pull does not fragment or
// run out of space halfway. Failures are ignored; not every filesystem
// supports it.
func Preallocate(f *os.File, size int64) {
	if size <= 0 {
		return
	}
	preallocate(f, size)
}

// Datasync flushes f's data to stable storage. Checkpoint offsets are only
// recorded after the bytes they cover are durable.
func Datasync(f *os.File) error {
	return datasync(f)
}
