package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/bamsammich/psplink/internal/event"
	"github.com/bamsammich/psplink/internal/transport"
)

// checkpointInterval bounds how often the destination is synced and its
// offset recorded.
const checkpointInterval = time.Second

// run owns the engine for one task. It always reports the outcome through
// the task's completion callback.
func (e *Engine) run(ctx context.Context, task *Task, offset int64) error {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	if !e.opener.Connected(task.Src, task.Dst) {
		err := &TransferError{Op: "transfer", Path: task.Src, Err: ErrNotConnected}
		e.setLastError(err)
		task.complete(false)
		return err
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	e.begin(task, stop)
	unwatch := context.AfterFunc(runCtx, e.wake)
	defer unwatch()

	cfg := e.settings()
	e.stats.Reset()
	e.setLastError(nil)
	e.log.Info("transfer started", "id", task.ID, "src", task.Src, "dst", task.Dst, "offset", offset)
	e.emit(task, event.Event{Type: event.TransferStarted, Offset: offset})

	x := &transfer{e: e, task: task, cfg: cfg, ctx: ctx, ctrl: runCtx, offset: offset}
	err := x.copy()
	if err == nil && cfg.verify {
		err = x.verify()
	}
	return e.finish(x, err)
}

// begin moves the engine into Transferring for task.
func (e *Engine) begin(task *Task, stop context.CancelFunc) {
	e.ctrlMu.Lock()
	defer e.ctrlMu.Unlock()
	e.state = Transferring
	e.paused = false
	e.cancelled = false
	e.current = task
	e.stopRun = stop
}

func (e *Engine) wake() {
	e.ctrlMu.Lock()
	e.cond.Broadcast()
	e.ctrlMu.Unlock()
}

// finish records the outcome of x, moves the engine into its terminal state
// and runs the completion callback.
func (e *Engine) finish(x *transfer, err error) error {
	e.stats.Finish()

	e.ctrlMu.Lock()
	var final State
	switch {
	case err == nil:
		final = Completed
	case e.cancelled || errors.Is(err, ErrCancelled) || x.ctx.Err() != nil:
		final = Cancelled
	default:
		final = Failed
	}
	e.state = final
	e.paused = false
	e.stopRun = nil
	e.ctrlMu.Unlock()

	task := x.task
	snap := e.stats.Snapshot()
	switch final {
	case Completed:
		e.clearCheckpoint(task)
		e.log.Info("transfer completed", "id", task.ID, "dst", task.Dst,
			"bytes", snap.BytesTransferred, "chunks", snap.ChunksTransferred, "elapsed", snap.Elapsed)
		e.emit(task, event.Event{Type: event.TransferCompleted, Offset: snap.BytesTransferred, Total: snap.TotalBytes})
	case Cancelled:
		if !errors.Is(err, ErrCancelled) {
			err = fmt.Errorf("%w: %w", ErrCancelled, err)
		}
		err = x.wrap("cancel", task.Src, err)
		e.setLastError(err)
		e.log.Warn("transfer cancelled", "id", task.ID, "dst", task.Dst, "offset", x.offset)
		e.emit(task, event.Event{Type: event.TransferCancelled, Offset: x.offset, Total: x.size, Error: err})
	default:
		if errors.Is(err, ErrIntegrity) {
			e.clearCheckpoint(task)
		}
		e.setLastError(err)
		e.log.Error("transfer failed", "id", task.ID, "src", task.Src, "dst", task.Dst, "error", err)
		e.emit(task, event.Event{Type: event.TransferFailed, Offset: x.offset, Total: x.size, Error: err})
	}

	task.complete(final == Completed)
	return err
}

func (e *Engine) clearCheckpoint(task *Task) {
	if e.checkpoint == nil {
		return
	}
	if err := e.checkpoint.Clear(task.Src, task.Dst); err != nil {
		e.log.Warn("clear checkpoint", "error", err)
	}
}

// transfer is the state of one run.
type transfer struct {
	e    *Engine
	task *Task
	cfg  settings

	// ctx bounds chunk I/O; ctrl additionally ends on Cancel and bounds
	// the waits between chunks.
	ctx  context.Context
	ctrl context.Context

	src      transport.Reader
	dst      transport.Writer
	dstEP    transport.Endpoint
	offset   int64
	size     int64
	resumed  bool
	lastSave time.Time
}

func (x *transfer) wrap(op, path string, err error) error {
	var te *TransferError
	if errors.As(err, &te) {
		return err
	}
	return &TransferError{Op: op, Path: path, Err: err}
}

// copy runs the chunk loop. The destination is closed on every path.
func (x *transfer) copy() (err error) {
	if err := x.open(); err != nil {
		return err
	}
	defer func() {
		err = x.close(err)
	}()

	e := x.e
	e.stats.Begin(x.size, x.offset, int64(x.cfg.chunkSize))
	if x.size == 0 {
		x.task.progress(0, 0)
		return nil
	}

	buf := make([]byte, x.cfg.chunkSize)
	x.lastSave = time.Now()
	for x.offset < x.size {
		if err := e.gate(x.ctrl); err != nil {
			return err
		}

		start := time.Now()
		n := int(min(int64(x.cfg.chunkSize), x.size-x.offset))
		chunk := buf[:n]
		if err := x.read(chunk); err != nil {
			return err
		}
		if err := waitN(x.ctrl, x.cfg.limiter, n); err != nil {
			return err
		}
		if err := x.write(chunk); err != nil {
			return err
		}

		x.offset += int64(n)
		e.stats.AddChunk(int64(n), time.Since(start))
		x.save(false)
		x.task.progress(x.offset, x.size)
		e.emit(x.task, event.Event{Type: event.TransferProgress, Offset: x.offset, Total: x.size})
	}

	// A resumed destination may still hold bytes past the source's end.
	if x.resumed {
		if err := x.dst.Truncate(x.ctx, x.size); err != nil {
			return x.wrap("truncate", x.task.Dst, err)
		}
	}
	return nil
}

func (x *transfer) open() error {
	srcEP, err := x.e.opener.For(x.task.Src)
	if err != nil {
		return x.wrap("open source", x.task.Src, err)
	}
	x.dstEP, err = x.e.opener.For(x.task.Dst)
	if err != nil {
		return x.wrap("open destination", x.task.Dst, err)
	}

	x.src, err = srcEP.OpenRead(x.ctx, x.task.Src)
	if err != nil {
		return x.wrap("open source", x.task.Src, err)
	}
	x.size = x.src.Size()

	switch {
	case x.task.Size > 0 && x.task.Size != x.size:
		err = fmt.Errorf("source is %d bytes, expected %d", x.size, x.task.Size)
	case x.offset < 0 || x.offset > x.size:
		err = fmt.Errorf("%w: offset %d, size %d", ErrInvalidOffset, x.offset, x.size)
	}
	if err != nil {
		x.src.Close()
		return x.wrap("open source", x.task.Src, err)
	}

	x.resumed = x.offset > 0
	x.dst, err = x.dstEP.OpenWrite(x.ctx, x.task.Dst, !x.resumed, x.size)
	if err != nil {
		x.src.Close()
		return x.wrap("open destination", x.task.Dst, err)
	}
	return nil
}

// close releases both ends and applies the cancel policy and checkpoint
// bookkeeping for an interrupted transfer.
func (x *transfer) close(err error) error {
	if serr := x.dst.Sync(); serr != nil && err == nil {
		err = x.wrap("sync", x.task.Dst, serr)
	}
	if cerr := x.dst.Close(); cerr != nil && err == nil {
		err = x.wrap("close", x.task.Dst, cerr)
	}
	x.src.Close()

	if err == nil {
		return nil
	}

	if x.cfg.policy == RemovePartial && x.stopped(err) {
		x.e.clearCheckpoint(x.task)
		// The device may still be busy with an aborted command.
		rmCtx, cancel := context.WithTimeout(context.WithoutCancel(x.ctx), 10*time.Second)
		defer cancel()
		if rerr := x.dstEP.Remove(rmCtx, x.task.Dst); rerr != nil {
			x.e.log.Warn("remove partial destination", "dst", x.task.Dst, "error", rerr)
		}
		return err
	}
	x.save(true)
	return err
}

// stopped reports whether err came from cancellation rather than failure.
func (x *transfer) stopped(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled) || x.ctx.Err() != nil
}

// save records the current offset, at most once per checkpointInterval
// unless force is set.
func (x *transfer) save(force bool) {
	cp := x.e.checkpoint
	if cp == nil || x.offset == 0 {
		return
	}
	if !force && time.Since(x.lastSave) < checkpointInterval {
		return
	}
	if !force {
		if err := x.dst.Sync(); err != nil {
			x.e.log.Warn("sync before checkpoint", "dst", x.task.Dst, "error", err)
			return
		}
	}
	cp.Save(x.task.Src, x.task.Dst, x.offset, x.size)
	x.lastSave = time.Now()
}

func (x *transfer) read(p []byte) error {
	n, err := x.src.ReadAt(x.ctx, p, x.offset)
	if n == len(p) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return x.wrap("read", x.task.Src, err)
}

// write sends one chunk, making up to the configured attempts. Every failed
// attempt is followed by the configured delay, the last one included. Each
// attempt re-sends the whole chunk.
func (x *transfer) write(p []byte) error {
	var err error
	for attempt := 1; attempt <= x.cfg.retryCount; attempt++ {
		var n int
		n, err = x.dst.WriteAt(x.ctx, p, x.offset)
		if err == nil && n < len(p) {
			err = io.ErrShortWrite
		}
		if err == nil {
			return nil
		}
		if x.ctx.Err() != nil {
			return x.ctx.Err()
		}

		if attempt < x.cfg.retryCount {
			x.e.log.Warn("retrying chunk", "dst", x.task.Dst, "offset", x.offset,
				"attempt", attempt+1, "of", x.cfg.retryCount, "error", err)
			x.e.emit(x.task, event.Event{
				Type: event.ChunkRetry, Offset: x.offset, Total: x.size, Attempt: attempt + 1, Error: err,
			})
		}
		if serr := x.sleep(x.cfg.retryDelay); serr != nil {
			return serr
		}
	}
	return &TransferError{
		Op:   "write",
		Path: x.task.Dst,
		Err:  fmt.Errorf("%w after %d attempts at offset %d: %w", ErrRetriesExhausted, x.cfg.retryCount, x.offset, err),
	}
}

// sleep waits d unless the transfer is cancelled first.
func (x *transfer) sleep(d time.Duration) error {
	if d <= 0 {
		return x.e.checkCancelled(x.ctrl)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-x.ctrl.Done():
		return x.e.checkCancelled(x.ctrl)
	}
}

// gate blocks while the transfer is paused and reports cancellation.
func (e *Engine) gate(ctx context.Context) error {
	e.ctrlMu.Lock()
	defer e.ctrlMu.Unlock()
	for e.paused && !e.cancelled && ctx.Err() == nil {
		e.cond.Wait()
	}
	if e.cancelled {
		return ErrCancelled
	}
	return ctx.Err()
}

func (e *Engine) checkCancelled(ctx context.Context) error {
	e.ctrlMu.Lock()
	defer e.ctrlMu.Unlock()
	if e.cancelled {
		return ErrCancelled
	}
	return ctx.Err()
}

func (x *transfer) verify() error {
	x.e.log.Debug("verifying transfer", "src", x.task.Src, "dst", x.task.Dst, "checksum", x.cfg.checksum)
	err := x.e.verifyFile(x.ctx, x.cfg.checksum, x.task.Src, x.task.Dst)
	if err != nil {
		x.e.emit(x.task, event.Event{Type: event.VerifyFailed, Offset: x.offset, Total: x.size, Error: err})
		return x.wrap("verify", x.task.Dst, err)
	}
	x.e.emit(x.task, event.Event{Type: event.VerifyOK, Offset: x.offset, Total: x.size})
	return nil
}
