package engine

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/psplink/internal/proto"
)

func TestQueue_FIFO(t *testing.T) {
	q := newQueue()
	a, b := NewTask("a", "x"), NewTask("b", "y")
	require.True(t, q.push(a))
	require.True(t, q.push(b))
	assert.Equal(t, 2, q.len())

	got, ok := q.pop()
	require.True(t, ok)
	assert.Same(t, a, got)

	q.close()
	assert.False(t, q.push(NewTask("c", "z")))
	_, ok = q.pop()
	assert.False(t, ok)
	assert.Equal(t, []*Task{b}, q.drain())
}

func TestQueue_PopBlocksUntilPush(t *testing.T) {
	q := newQueue()
	got := make(chan *Task, 1)
	go func() {
		task, _ := q.pop()
		got <- task
	}()

	select {
	case <-got:
		t.Fatal("pop returned on an empty queue")
	case <-time.After(20 * time.Millisecond):
	}

	task := NewTask("a", "b")
	q.push(task)
	select {
	case g := <-got:
		assert.Same(t, task, g)
	case <-time.After(time.Second):
		t.Fatal("pop did not wake on push")
	}
}

func TestTransferFiles_CompletesInOrder(t *testing.T) {
	r := newRig(t)
	e := r.newEngine(t, func(c *Config) { c.ChunkSize = 1024 })

	var (
		mu    sync.Mutex
		trace []string
		wg    sync.WaitGroup
	)
	record := func(s string) {
		mu.Lock()
		trace = append(trace, s)
		mu.Unlock()
	}

	data := map[string][]byte{}
	for _, name := range []string{"A", "B", "C"} {
		data[name] = randomData(t, 5000)
		src := r.local(t, name+".iso", data[name])
		wg.Add(1)
		err := e.TransferFiles(src, "ms0:/ISO/"+name+".iso",
			func(int64, int64, float64) { record(name + ":progress") },
			func(ok bool) {
				defer wg.Done()
				assert.True(t, ok, name)
				record(name + ":done")
			},
		)
		require.NoError(t, err)
	}

	waitGroup(t, &wg, 5*time.Second)

	// Every event for A precedes every event for B, and so on.
	var order []string
	for _, s := range trace {
		name := s[:1]
		if len(order) == 0 || order[len(order)-1] != name {
			order = append(order, name)
		}
	}
	assert.Equal(t, []string{"A", "B", "C"}, order)

	var done []string
	for _, s := range trace {
		if s[2:] == "done" {
			done = append(done, s[:1])
		}
	}
	assert.Equal(t, []string{"A", "B", "C"}, done)

	for name, want := range data {
		assert.Equal(t, want, r.deviceFile(t, "ms0:/ISO/"+name+".iso"), name)
	}
	assert.Zero(t, e.Pending())
}

func TestTransferFiles_RejectsWhenNotConnected(t *testing.T) {
	r := newRig(t)
	e := r.newEngine(t, nil)
	src := r.local(t, "game.iso", randomData(t, 100))
	require.NoError(t, r.link.Disconnect())

	called := false
	err := e.TransferFiles(src, "ms0:/ISO/game.iso", nil, func(bool) { called = true })

	require.ErrorIs(t, err, ErrNotConnected)
	assert.Zero(t, e.Pending())
	require.Error(t, e.LastError())
	assert.Contains(t, e.LastError().Error(), "not connected")

	time.Sleep(20 * time.Millisecond)
	assert.False(t, called)
	assert.Zero(t, r.console.Count(proto.CodeWriteChunk))
}

func TestTransferFiles_LocalOnlyNeedsNoDevice(t *testing.T) {
	r := newRig(t)
	e := r.newEngine(t, nil)
	require.NoError(t, r.link.Disconnect())

	src := r.local(t, "a.bin", randomData(t, 100))
	done := make(chan bool, 1)
	require.NoError(t, e.TransferFiles(src, src+".copy", nil, func(ok bool) { done <- ok }))
	assert.True(t, <-done)
}

func TestClose_FailsQueuedTasks(t *testing.T) {
	r := newRig(t)
	e := r.newEngine(t, func(c *Config) { c.ChunkSize = 1024 })

	var (
		mu      sync.Mutex
		results []string
	)
	paused := make(chan struct{})
	var once sync.Once

	for i, name := range []string{"A", "B", "C"} {
		src := r.local(t, name+".iso", randomData(t, 8192))
		task := NewTask(src, "ms0:/ISO/"+name+".iso",
			WithCompletion(func(ok bool) {
				mu.Lock()
				results = append(results, fmt.Sprintf("%s:%v", name, ok))
				mu.Unlock()
			}),
		)
		if i == 0 {
			task.OnProgress = func(int64, int64, float64) {
				once.Do(func() {
					e.Pause()
					close(paused)
				})
			}
		}
		require.NoError(t, e.Enqueue(task))
	}

	<-paused
	assert.Equal(t, 2, e.Pending())

	closed := make(chan struct{})
	go func() {
		_ = e.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return")
	}

	assert.Equal(t, []string{"A:false", "B:false", "C:false"}, results)
	assert.Equal(t, Cancelled, e.State())
	assert.ErrorIs(t, e.Enqueue(NewTask(r.local(t, "d.iso", nil), "ms0:/ISO/d.iso")), ErrClosed)
	require.NoError(t, e.Close(), "second close is a no-op")
}

func waitGroup(t *testing.T, wg *sync.WaitGroup, d time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatal("timed out waiting for transfers")
	}
}
