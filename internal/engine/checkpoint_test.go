package engine

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestCheckpoint(t *testing.T) *CheckpointDB {
	t.Helper()
	cp, err := OpenCheckpoint(filepath.Join(t.TempDir(), "cp.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cp.Close() })
	return cp
}

func TestCheckpoint_OpenClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cp.db")
	cp, err := OpenCheckpoint(path)
	require.NoError(t, err)

	assert.Equal(t, path, cp.Path())
	assert.FileExists(t, path)
	require.NoError(t, cp.Close())
}

func TestCheckpoint_DefaultPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_STATE_HOME", dir)

	assert.Equal(t, filepath.Join(dir, "psplink", "checkpoints.db"), DefaultCheckpointPath())

	cp, err := OpenCheckpoint("")
	require.NoError(t, err)
	defer cp.Close()
	assert.Equal(t, DefaultCheckpointPath(), cp.Path())
}

func TestCheckpoint_SaveLookup(t *testing.T) {
	cp := openTestCheckpoint(t)

	_, ok, err := cp.Lookup("/src/a.iso", "ms0:/ISO/a.iso")
	require.NoError(t, err)
	assert.False(t, ok)

	cp.Save("/src/a.iso", "ms0:/ISO/a.iso", 4096, 10000)

	// Visible before the batch is flushed.
	got, ok, err := cp.Lookup("/src/a.iso", "ms0:/ISO/a.iso")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(4096), got.Offset)
	assert.Equal(t, int64(10000), got.Size)

	require.NoError(t, cp.Flush())
	got, ok, err = cp.Lookup("/src/a.iso", "ms0:/ISO/a.iso")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "/src/a.iso", got.Src)
	assert.Equal(t, "ms0:/ISO/a.iso", got.Dst)
	assert.Equal(t, int64(4096), got.Offset)
	assert.WithinDuration(t, time.Now(), got.Updated, time.Minute)

	// Same source to a different destination is a different job.
	_, ok, err = cp.Lookup("/src/a.iso", "ms0:/ISO/b.iso")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCheckpoint_SaveOverwrites(t *testing.T) {
	cp := openTestCheckpoint(t)

	cp.Save("a", "b", 100, 1000)
	require.NoError(t, cp.Flush())
	cp.Save("a", "b", 900, 1000)
	require.NoError(t, cp.Flush())

	got, ok, err := cp.Lookup("a", "b")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(900), got.Offset)

	list, err := cp.List()
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCheckpoint_Clear(t *testing.T) {
	cp := openTestCheckpoint(t)

	cp.Save("a", "b", 100, 1000)
	require.NoError(t, cp.Flush())
	cp.Save("c", "d", 1, 2) // still pending

	require.NoError(t, cp.Clear("a", "b"))
	require.NoError(t, cp.Clear("c", "d"))
	require.NoError(t, cp.Clear("never", "saved"))

	list, err := cp.List()
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCheckpoint_ListNewestFirst(t *testing.T) {
	cp := openTestCheckpoint(t)

	cp.Save("old", "x", 1, 10)
	require.NoError(t, cp.Flush())
	time.Sleep(5 * time.Millisecond)
	cp.Save("new", "x", 2, 10)

	list, err := cp.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "new", list[0].Src)
	assert.Equal(t, "old", list[1].Src)
	assert.Equal(t, checkpointJobID("new", "x"), list[0].JobID)
}

func TestCheckpoint_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cp.db")

	cp, err := OpenCheckpoint(path)
	require.NoError(t, err)
	cp.Save("/src/a.iso", "ms0:/ISO/a.iso", 65536, 150000)
	require.NoError(t, cp.Close()) // flushes the pending batch

	cp, err = OpenCheckpoint(path)
	require.NoError(t, err)
	defer cp.Close()

	got, ok, err := cp.Lookup("/src/a.iso", "ms0:/ISO/a.iso")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(65536), got.Offset)
	assert.Equal(t, int64(150000), got.Size)
}

func TestCheckpoint_FlushLoop(t *testing.T) {
	cp := openTestCheckpoint(t)
	cp.Save("a", "b", 1, 2)

	assert.Eventually(t, func() bool {
		cp.mu.Lock()
		defer cp.mu.Unlock()
		return len(cp.batch) == 0
	}, 3*time.Second, 50*time.Millisecond)
}

func TestCheckpointJobID(t *testing.T) {
	t.Parallel()

	a := checkpointJobID("/src", "/dst")
	assert.Equal(t, a, checkpointJobID("/src", "/dst"))
	assert.Len(t, a, 16)
	assert.NotEqual(t, a, checkpointJobID("/dst", "/src"))
	// The separator keeps "ab"+"c" apart from "a"+"bc".
	assert.NotEqual(t, checkpointJobID("ab", "c"), checkpointJobID("a", "bc"))
}
