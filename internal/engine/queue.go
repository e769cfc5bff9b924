package engine

import (
	"sync"

	"github.com/bamsammich/psplink/internal/event"
)

// queue is the FIFO of tasks waiting for the worker.
type queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	tasks  []*Task
	closed bool
}

func newQueue() *queue {
	q := &queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push appends t. It returns false once the queue is closed.
func (q *queue) push(t *Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.tasks = append(q.tasks, t)
	q.cond.Signal()
	return true
}

// pop blocks until a task is available or the queue is closed.
func (q *queue) pop() (*Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.tasks) == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.closed {
		return nil, false
	}
	t := q.tasks[0]
	q.tasks[0] = nil
	q.tasks = q.tasks[1:]
	return t, true
}

// drain removes and returns every queued task.
func (q *queue) drain() []*Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.tasks
	q.tasks = nil
	return out
}

func (q *queue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// worker runs queued tasks one at a time. Once the queue closes it fails
// whatever is left.
func (e *Engine) worker() {
	defer e.wg.Done()

	for {
		task, ok := e.queue.pop()
		if !ok {
			break
		}
		_ = e.run(e.workerCtx, task, task.StartOffset)
	}

	for _, task := range e.queue.drain() {
		err := &TransferError{Op: "transfer", Path: task.Src, Err: ErrClosed}
		e.log.Warn("dropping queued transfer", "id", task.ID, "src", task.Src)
		e.emit(task, event.Event{Type: event.TransferFailed, Error: err})
		task.complete(false)
	}
}
