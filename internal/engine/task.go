package engine

import "github.com/google/uuid"

// ProgressFunc receives the bytes transferred so far, the file size, and
// their ratio. It may run on the engine's worker goroutine.
type ProgressFunc func(transferred, total int64, progress float64)

// CompleteFunc receives the outcome of a transfer.
type CompleteFunc func(ok bool)

// Task describes one file copy. Fields are not modified after NewTask.
type Task struct {
	OnProgress ProgressFunc
	OnComplete CompleteFunc
	ID         string
	Src        string
	Dst        string

	// Size is the expected source size; zero means unknown. A source whose
	// size differs fails the transfer.
	Size int64

	// StartOffset is where the transfer begins when run through Transfer
	// or the queue.
	StartOffset int64
}

// TaskOption configures a Task.
type TaskOption func(*Task)

// WithProgress sets the progress callback.
func WithProgress(fn ProgressFunc) TaskOption {
	return func(t *Task) { t.OnProgress = fn }
}

// WithCompletion sets the completion callback.
func WithCompletion(fn CompleteFunc) TaskOption {
	return func(t *Task) { t.OnComplete = fn }
}

// WithSize records the expected source size.
func WithSize(n int64) TaskOption {
	return func(t *Task) { t.Size = n }
}

// WithOffset starts the transfer at off instead of 0.
func WithOffset(off int64) TaskOption {
	return func(t *Task) { t.StartOffset = off }
}

// NewTask creates a task copying src to dst.
func NewTask(src, dst string, opts ...TaskOption) *Task {
	t := &Task{ID: uuid.NewString(), Src: src, Dst: dst}
	for _, o := range opts {
		o(t)
	}
	return t
}

func (t *Task) progress(transferred, total int64) {
	if t.OnProgress == nil {
		return
	}
	p := 1.0
	if total > 0 {
		p = float64(transferred) / float64(total)
	}
	t.OnProgress(transferred, total, p)
}

func (t *Task) complete(ok bool) {
	if t.OnComplete != nil {
		t.OnComplete(ok)
	}
}
