package engine

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/bamsammich/psplink/internal/stats"
	"github.com/bamsammich/psplink/internal/transport"
)

// BenchmarkResult holds throughput measurements.
type BenchmarkResult struct {
	WriteBytesPerSec   float64
	ReadBytesPerSec    float64
	SuggestedChunkSize int
}

// DefaultBenchSize is the amount of data the benchmark moves each way.
const DefaultBenchSize = 8 * 1024 * 1024

// RunBenchmark writes size bytes to a scratch file in dir on ep in
// chunkSize pieces, reads them back, and removes the file.
func RunBenchmark(ctx context.Context, ep transport.Endpoint, dir string, size int64, chunkSize int) (BenchmarkResult, error) {
	var result BenchmarkResult
	if chunkSize <= 0 {
		return result, ErrInvalidChunkSize
	}
	if size <= 0 {
		size = DefaultBenchSize
	}

	path := joinPath(dir, ".psplink-bench-"+uuid.NewString()[:8])
	defer func() {
		_ = ep.Remove(context.WithoutCancel(ctx), path)
	}()

	writeSpeed, err := benchWrite(ctx, ep, path, size, chunkSize)
	if err != nil {
		return result, fmt.Errorf("write benchmark: %w", err)
	}
	result.WriteBytesPerSec = writeSpeed

	readSpeed, err := benchRead(ctx, ep, path, chunkSize)
	if err != nil {
		return result, fmt.Errorf("read benchmark: %w", err)
	}
	result.ReadBytesPerSec = readSpeed

	result.SuggestedChunkSize = suggestChunkSize(min(readSpeed, writeSpeed))
	return result, nil
}

func benchWrite(ctx context.Context, ep transport.Endpoint, path string, size int64, chunkSize int) (float64, error) {
	w, err := ep.OpenWrite(ctx, path, true, size)
	if err != nil {
		return 0, err
	}
	defer w.Close()

	buf := make([]byte, chunkSize) // zeros
	var total int64
	start := time.Now()
	for total < size {
		n := int(min(int64(chunkSize), size-total))
		if _, err := w.WriteAt(ctx, buf[:n], total); err != nil {
			return 0, err
		}
		total += int64(n)
	}
	if err := w.Sync(); err != nil {
		return 0, err
	}
	return throughput(total, time.Since(start)), nil
}

func benchRead(ctx context.Context, ep transport.Endpoint, path string, chunkSize int) (float64, error) {
	r, err := ep.OpenRead(ctx, path)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	start := time.Now()
	total, err := transport.ReadAll(ctx, r, io.Discard, chunkSize)
	if err != nil {
		return 0, err
	}
	return throughput(total, time.Since(start)), nil
}

func throughput(n int64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		elapsed = time.Microsecond
	}
	return float64(n) / elapsed.Seconds()
}

// suggestChunkSize picks a chunk size that keeps per-chunk overhead small
// while cancellation still lands within roughly a quarter second.
func suggestChunkSize(bytesPerSec float64) int {
	switch {
	case bytesPerSec >= 16e6:
		return 1 << 20
	case bytesPerSec >= 4e6:
		return 256 * 1024
	default:
		return DefaultChunkSize
	}
}

// FormatBenchmark formats a BenchmarkResult for display.
func FormatBenchmark(r BenchmarkResult) string {
	return fmt.Sprintf("benchmark: write %s/s  read %s/s  suggested chunk %s",
		stats.FormatBytes(int64(r.WriteBytesPerSec)), stats.FormatBytes(int64(r.ReadBytesPerSec)),
		stats.FormatBytes(int64(r.SuggestedChunkSize)))
}

// joinPath joins dir and name with a slash, which both device paths and
// host paths accept.
func joinPath(dir, name string) string {
	if dir == "" {
		return name
	}
	if dir[len(dir)-1] == '/' {
		return dir + name
	}
	return dir + "/" + name
}
