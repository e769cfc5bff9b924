// Package engine moves files between the host and the console in fixed-size
// chunks. Transfers can be paused, cancelled, retried, verified, resumed
// from an offset and queued for a background worker.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/bamsammich/psplink/internal/event"
	"github.com/bamsammich/psplink/internal/stats"
	"github.com/bamsammich/psplink/internal/transport"
)

const (
	DefaultChunkSize  = 64 * 1024
	DefaultRetryCount = 3
	DefaultRetryDelay = time.Second
)

// Opener resolves the endpoint serving a path. *transport.Router
// implements it.
type Opener interface {
	For(path string) (transport.Endpoint, error)
	Connected(src, dst string) bool
}

// Config describes how transfers run.
type Config struct {
	Logger *slog.Logger
	Events chan<- event.Event

	// Checkpoint, when set, records progress so ResumeFromCheckpoint can
	// continue an interrupted transfer. The caller owns and closes it.
	Checkpoint *CheckpointDB

	Checksum     Algorithm
	ChunkSize    int
	RetryCount   int // attempts per chunk, including the first
	RetryDelay   time.Duration
	BWLimit      int64 // bytes/sec, 0 for unlimited
	CancelPolicy CancelPolicy
	Verify       bool
}

// DefaultConfig returns the stock transfer settings.
func DefaultConfig() Config {
	return Config{
		Checksum:   Blake3,
		ChunkSize:  DefaultChunkSize,
		RetryCount: DefaultRetryCount,
		RetryDelay: DefaultRetryDelay,
	}
}

// settings is the per-transfer copy of the tunables.
type settings struct {
	limiter    *rate.Limiter
	checksum   Algorithm
	chunkSize  int
	retryCount int
	retryDelay time.Duration
	policy     CancelPolicy
	verify     bool
}

// Engine runs one transfer at a time, either on the caller's goroutine
// (Transfer, Resume) or on its worker (TransferFiles, Enqueue).
type Engine struct {
	log        *slog.Logger
	opener     Opener
	events     chan<- event.Event
	checkpoint *CheckpointDB
	stats      *stats.Tracker

	cfgMu sync.RWMutex
	cfg   settings

	// runMu serializes transfers; the device has one file cursor.
	runMu sync.Mutex

	// ctrlMu guards the lifecycle fields; cond wakes a paused transfer.
	ctrlMu    sync.Mutex
	cond      *sync.Cond
	state     State
	paused    bool
	cancelled bool
	current   *Task
	stopRun   context.CancelFunc

	errMu   sync.Mutex
	lastErr error

	queue      *queue
	workerCtx  context.Context
	stopWorker context.CancelFunc
	wg         sync.WaitGroup
	closeOnce  sync.Once
}

// New creates an engine and starts its queue worker. Call Close to stop it.
func New(cfg Config, opener Opener) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.RetryCount <= 0 {
		cfg.RetryCount = DefaultRetryCount
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	if cfg.Checksum == "" {
		cfg.Checksum = Blake3
	}

	e := &Engine{
		log:        cfg.Logger,
		opener:     opener,
		events:     cfg.Events,
		checkpoint: cfg.Checkpoint,
		stats:      stats.NewTracker(),
		cfg: settings{
			checksum:   cfg.Checksum,
			chunkSize:  cfg.ChunkSize,
			retryCount: cfg.RetryCount,
			retryDelay: cfg.RetryDelay,
			policy:     cfg.CancelPolicy,
			verify:     cfg.Verify,
		},
		queue: newQueue(),
	}
	if cfg.BWLimit > 0 {
		e.cfg.limiter = NewBWLimiter(cfg.BWLimit)
	}
	e.cond = sync.NewCond(&e.ctrlMu)
	e.workerCtx, e.stopWorker = context.WithCancel(context.Background())

	e.wg.Add(1)
	go e.worker()
	return e
}

// Transfer copies task.Src to task.Dst starting at task.StartOffset,
// blocking until the transfer ends. The task's completion callback runs
// before Transfer returns.
func (e *Engine) Transfer(ctx context.Context, task *Task) error {
	return e.run(ctx, task, task.StartOffset)
}

// Resume continues a transfer whose first offset bytes already reached the
// destination: the source is read from offset and the destination is
// written in place from offset.
func (e *Engine) Resume(ctx context.Context, task *Task, offset int64) error {
	return e.run(ctx, task, offset)
}

// ResumeFromCheckpoint resumes task from the offset recorded for its
// src/dst pair, or starts from zero when none is recorded.
func (e *Engine) ResumeFromCheckpoint(ctx context.Context, task *Task) error {
	var offset int64
	if e.checkpoint != nil {
		cp, ok, err := e.checkpoint.Lookup(task.Src, task.Dst)
		if err != nil {
			return err
		}
		if ok {
			offset = cp.Offset
			e.log.Info("resuming from checkpoint", "src", task.Src, "dst", task.Dst, "offset", offset)
		}
	}
	return e.run(ctx, task, offset)
}

// TransferFiles queues a copy of src to dst for the background worker. A
// nil error means the task was accepted; its outcome arrives through
// onComplete on the worker goroutine.
func (e *Engine) TransferFiles(src, dst string, onProgress ProgressFunc, onComplete CompleteFunc) error {
	return e.Enqueue(NewTask(src, dst, WithProgress(onProgress), WithCompletion(onComplete)))
}

// Enqueue queues task for the background worker. A task whose endpoints
// are not connected is rejected without being queued.
func (e *Engine) Enqueue(task *Task) error {
	if !e.opener.Connected(task.Src, task.Dst) {
		err := &TransferError{Op: "transfer", Path: task.Src, Err: ErrNotConnected}
		e.setLastError(err)
		return err
	}
	if !e.queue.push(task) {
		return ErrClosed
	}
	e.log.Debug("transfer queued", "id", task.ID, "src", task.Src, "dst", task.Dst)
	e.emit(task, event.Event{Type: event.TransferQueued})
	return nil
}

// Pending returns the number of queued tasks not yet started.
func (e *Engine) Pending() int { return e.queue.len() }

// Pause suspends the active transfer at the next chunk boundary. It
// reports whether a transfer was paused.
func (e *Engine) Pause() bool {
	e.ctrlMu.Lock()
	if e.state != Transferring || e.cancelled {
		e.ctrlMu.Unlock()
		return false
	}
	e.paused = true
	e.state = Paused
	task := e.current
	e.ctrlMu.Unlock()

	e.log.Info("transfer paused", "src", task.Src)
	e.emit(task, event.Event{Type: event.TransferPaused})
	return true
}

// ResumeTransfer continues a paused transfer from where it stopped. It
// reports whether a transfer was resumed.
func (e *Engine) ResumeTransfer() bool {
	e.ctrlMu.Lock()
	if e.state != Paused {
		e.ctrlMu.Unlock()
		return false
	}
	e.paused = false
	e.state = Transferring
	task := e.current
	e.cond.Broadcast()
	e.ctrlMu.Unlock()

	e.log.Info("transfer resumed", "src", task.Src)
	e.emit(task, event.Event{Type: event.TransferResumed})
	return true
}

// Cancel stops the active transfer before its next chunk. A paused transfer
// goes back to Transferring while it winds down. With no active transfer
// the engine still moves to Cancelled; the next task resets it.
func (e *Engine) Cancel() {
	e.ctrlMu.Lock()
	defer e.ctrlMu.Unlock()

	e.cancelled = true
	e.paused = false
	switch {
	case e.state == Paused:
		e.state = Transferring
	case !e.state.Active():
		e.state = Cancelled
	}
	if e.stopRun != nil {
		e.stopRun()
	}
	e.cond.Broadcast()
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.ctrlMu.Lock()
	defer e.ctrlMu.Unlock()
	return e.state
}

func (e *Engine) IsPaused() bool       { return e.State() == Paused }
func (e *Engine) IsTransferring() bool { return e.State() == Transferring }

// IsCancelled reports whether cancellation was requested for the current
// or most recent transfer.
func (e *Engine) IsCancelled() bool {
	e.ctrlMu.Lock()
	defer e.ctrlMu.Unlock()
	return e.cancelled || e.state == Cancelled
}

// Current returns the task being transferred, if any.
func (e *Engine) Current() (*Task, bool) {
	e.ctrlMu.Lock()
	defer e.ctrlMu.Unlock()
	return e.current, e.current != nil && e.state.Active()
}

// Stats returns a snapshot of the current or most recent transfer.
func (e *Engine) Stats() stats.Stats { return e.stats.Snapshot() }

// Tracker exposes the live tracker for presenters that sample throughput.
func (e *Engine) Tracker() *stats.Tracker { return e.stats }

// ResetStats clears the statistics of a finished transfer.
func (e *Engine) ResetStats() error {
	if e.State().Active() {
		return ErrTransferActive
	}
	e.stats.Reset()
	return nil
}

// LastError returns the error that ended the most recent failed,
// cancelled or rejected transfer.
func (e *Engine) LastError() error {
	e.errMu.Lock()
	defer e.errMu.Unlock()
	return e.lastErr
}

func (e *Engine) setLastError(err error) {
	e.errMu.Lock()
	e.lastErr = err
	e.errMu.Unlock()
}

// SetChunkSize changes the chunk size for later transfers.
func (e *Engine) SetChunkSize(n int) error {
	if n <= 0 {
		return ErrInvalidChunkSize
	}
	e.ctrlMu.Lock()
	defer e.ctrlMu.Unlock()
	if e.state.Active() {
		return ErrTransferActive
	}
	e.cfgMu.Lock()
	e.cfg.chunkSize = n
	e.cfgMu.Unlock()
	return nil
}

func (e *Engine) ChunkSize() int {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return e.cfg.chunkSize
}

// SetRetryCount sets the attempts per chunk, including the first.
func (e *Engine) SetRetryCount(n int) error {
	if n < 1 {
		return fmt.Errorf("retry count %d: must be at least 1", n)
	}
	e.cfgMu.Lock()
	defer e.cfgMu.Unlock()
	e.cfg.retryCount = n
	return nil
}

func (e *Engine) RetryCount() int {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return e.cfg.retryCount
}

func (e *Engine) SetRetryDelay(d time.Duration) {
	e.cfgMu.Lock()
	defer e.cfgMu.Unlock()
	e.cfg.retryDelay = max(d, 0)
}

func (e *Engine) RetryDelay() time.Duration {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return e.cfg.retryDelay
}

func (e *Engine) SetVerify(on bool) {
	e.cfgMu.Lock()
	defer e.cfgMu.Unlock()
	e.cfg.verify = on
}

func (e *Engine) Verify() bool {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return e.cfg.verify
}

func (e *Engine) SetChecksum(alg Algorithm) {
	e.cfgMu.Lock()
	defer e.cfgMu.Unlock()
	e.cfg.checksum = alg
}

func (e *Engine) ChecksumAlgorithm() Algorithm {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return e.cfg.checksum
}

func (e *Engine) SetCancelPolicy(p CancelPolicy) {
	e.cfgMu.Lock()
	defer e.cfgMu.Unlock()
	e.cfg.policy = p
}

// SetBWLimit caps throughput at bytesPerSec; zero removes the cap.
func (e *Engine) SetBWLimit(bytesPerSec int64) {
	e.cfgMu.Lock()
	defer e.cfgMu.Unlock()
	if bytesPerSec <= 0 {
		e.cfg.limiter = nil
		return
	}
	e.cfg.limiter = NewBWLimiter(bytesPerSec)
}

func (e *Engine) settings() settings {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return e.cfg
}

// Close stops the worker, cancels the active transfer and waits for it to
// end. Tasks still queued fail through their completion callbacks.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.queue.close()
		e.stopWorker()
		e.wg.Wait()
	})
	return nil
}

func (e *Engine) emit(task *Task, ev event.Event) {
	if task != nil {
		ev.TaskID = task.ID
		ev.Src = task.Src
		ev.Dst = task.Dst
	}
	emitEvent(e.events, ev)
}

func emitEvent(ch chan<- event.Event, e event.Event) {
	if ch == nil {
		return
	}
	e.Timestamp = time.Now()
	select {
	case ch <- e:
	default:
	}
}
