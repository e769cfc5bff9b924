// Package stats tracks the progress of a single file transfer.
package stats

import (
	"fmt"
	"sync"
	"time"
)

const ringSize = 60

// Stats is a point-in-time copy of a transfer's progress.
type Stats struct {
	BytesTransferred  int64
	TotalBytes        int64
	Progress          float64 // 0..1
	CurrentSpeed      float64 // bytes/sec over the last chunk
	AverageSpeed      float64 // bytes/sec since the transfer started
	Elapsed           time.Duration
	EstimatedTimeLeft time.Duration
	ChunksTransferred int64
	TotalChunks       int64
}

// Remaining returns the bytes still to move.
func (s Stats) Remaining() int64 {
	return max(s.TotalBytes-s.BytesTransferred, 0)
}

func (s Stats) String() string {
	return fmt.Sprintf(
		"bytes=%d/%d progress=%.1f%% chunks=%d/%d speed=%s/s eta=%s",
		s.BytesTransferred, s.TotalBytes, s.Progress*100,
		s.ChunksTransferred, s.TotalChunks,
		FormatBytes(int64(s.AverageSpeed)), s.EstimatedTimeLeft.Round(time.Second),
	)
}

// Tracker accumulates transfer statistics. The engine mutates it once per
// chunk; readers take a Snapshot under the same lock.
type Tracker struct {
	now func() time.Time

	mu sync.Mutex
	counters
}

type counters struct {
	start       time.Time
	end         time.Time
	base        int64 // offset the transfer started from
	transferred int64
	total       int64
	chunks      int64
	totalChunks int64
	lastBytes   int64
	lastDur     time.Duration

	// Ring buffer of per-second deltas, written only by Tick.
	throughput [ringSize]int64
	ringIdx    int
	ringCount  int
	lastTick   int64
}

// NewTracker creates an idle Tracker.
func NewTracker() *Tracker {
	return &Tracker{now: time.Now}
}

// Begin starts tracking a transfer of total bytes that resumes at offset and
// moves chunkSize bytes per chunk.
func (t *Tracker) Begin(total, offset, chunkSize int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	offset = min(max(offset, 0), total)
	t.counters = counters{}
	t.start = t.clock()
	t.base = offset
	t.transferred = offset
	t.total = total
	t.lastTick = offset
	if chunkSize > 0 {
		t.totalChunks = ChunkCount(total-offset, chunkSize)
	}
}

// AddChunk records one chunk of n bytes that took d.
func (t *Tracker) AddChunk(n int64, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.transferred = min(t.transferred+n, t.total)
	t.chunks++
	t.lastBytes = n
	t.lastDur = d
}

// Finish freezes the elapsed time.
func (t *Tracker) Finish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.end.IsZero() && !t.start.IsZero() {
		t.end = t.clock()
	}
}

// Reset clears all counters.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counters = counters{}
}

// Snapshot returns a consistent copy of the counters with derived rates.
func (t *Tracker) Snapshot() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Stats{
		BytesTransferred:  t.transferred,
		TotalBytes:        t.total,
		ChunksTransferred: t.chunks,
		TotalChunks:       t.totalChunks,
		Elapsed:           t.elapsedLocked(),
	}

	switch {
	case t.total > 0:
		s.Progress = float64(t.transferred) / float64(t.total)
	case !t.end.IsZero():
		s.Progress = 1
	}

	if t.lastDur > 0 {
		s.CurrentSpeed = float64(t.lastBytes) / t.lastDur.Seconds()
	}
	if secs := s.Elapsed.Seconds(); secs > 0 {
		s.AverageSpeed = float64(t.transferred-t.base) / secs
	}
	if remaining := s.Remaining(); remaining > 0 && s.AverageSpeed > 0 {
		s.EstimatedTimeLeft = time.Duration(float64(remaining) / s.AverageSpeed * float64(time.Second))
	}
	return s
}

func (t *Tracker) clock() time.Time {
	if t.now == nil {
		return time.Now()
	}
	return t.now()
}

func (t *Tracker) elapsedLocked() time.Duration {
	switch {
	case t.start.IsZero():
		return 0
	case !t.end.IsZero():
		return t.end.Sub(t.start)
	default:
		return t.clock().Sub(t.start)
	}
}

// Tick snapshots the byte delta into the ring buffer. Called 1/sec by the presenter.
func (t *Tracker) Tick() {
	t.mu.Lock()
	defer t.mu.Unlock()

	delta := t.transferred - t.lastTick
	t.lastTick = t.transferred

	t.throughput[t.ringIdx] = delta
	t.ringIdx = (t.ringIdx + 1) % ringSize
	if t.ringCount < ringSize {
		t.ringCount++
	}
}

// RollingSpeed returns average bytes/sec over the last n seconds of samples.
func (t *Tracker) RollingSpeed(seconds int) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	count := min(seconds, t.ringCount)
	if count <= 0 {
		return 0
	}
	var sum int64
	for i := range count {
		idx := (t.ringIdx - 1 - i + ringSize) % ringSize
		sum += t.throughput[idx]
	}
	return float64(sum) / float64(count)
}

// SpeedHistory returns up to n per-second samples, oldest first.
func (t *Tracker) SpeedHistory(n int) []float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	count := min(n, t.ringCount)
	out := make([]float64, count)
	for i := range count {
		idx := (t.ringIdx - count + i + ringSize) % ringSize
		out[i] = float64(t.throughput[idx])
	}
	return out
}

// ChunkCount returns how many chunks of size c carry n bytes.
func ChunkCount(n, c int64) int64 {
	if n <= 0 || c <= 0 {
		return 0
	}
	return (n + c - 1) / c
}

// FormatBytes returns a human-readable byte count.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
