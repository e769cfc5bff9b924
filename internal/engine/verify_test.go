package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/psplink/internal/event"
)

func TestChecksum_Stable(t *testing.T) {
	r := newRig(t)
	e := r.newEngine(t, nil)
	data := randomData(t, 100_000)
	r.putDevice(t, "ms0:/ISO/game.iso", data)
	src := r.local(t, "game.iso", data)
	ctx := context.Background()

	dev1, err := e.Checksum(ctx, "ms0:/ISO/game.iso")
	require.NoError(t, err)
	dev2, err := e.Checksum(ctx, "ms0:/ISO/game.iso")
	require.NoError(t, err)
	host, err := e.Checksum(ctx, src)
	require.NoError(t, err)

	assert.Equal(t, dev1, dev2)
	assert.Equal(t, dev1, host)
	assert.Len(t, dev1, 64)

	e.SetChecksum(XXHash)
	fast, err := e.Checksum(ctx, src)
	require.NoError(t, err)
	assert.Len(t, fast, 16)
}

func TestVerifyFile(t *testing.T) {
	r := newRig(t)
	e := r.newEngine(t, nil)
	data := randomData(t, 10_000)
	r.putDevice(t, "ms0:/ISO/game.iso", data)
	src := r.local(t, "game.iso", data)
	ctx := context.Background()

	require.NoError(t, e.VerifyFile(ctx, src, "ms0:/ISO/game.iso"))
	require.NoError(t, e.VerifyFile(ctx, src, "ms0:/ISO/game.iso"), "verification is repeatable")

	data[5000] ^= 0x01
	r.putDevice(t, "ms0:/ISO/game.iso", data)

	err := e.VerifyFile(ctx, src, "ms0:/ISO/game.iso")
	require.ErrorIs(t, err, ErrIntegrity)
	var ve *VerifyError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, src, ve.Src)
	assert.NotEqual(t, ve.SrcHash, ve.DstHash)
}

func TestVerifyFile_MissingDestination(t *testing.T) {
	r := newRig(t)
	e := r.newEngine(t, nil)
	src := r.local(t, "game.iso", randomData(t, 10))

	err := e.VerifyFile(context.Background(), src, "ms0:/ISO/none.iso")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrIntegrity)
}

func TestTransfer_VerifyMismatchFails(t *testing.T) {
	r := newRig(t)
	events := make(chan event.Event, 256)
	e := r.newEngine(t, func(c *Config) {
		c.ChunkSize = 4096
		c.Verify = true
		c.Events = events
	})
	stop := collectEvents(events)

	src := r.local(t, "game.iso", randomData(t, 10_000))
	const dst = "ms0:/ISO/game.iso"
	task := NewTask(src, dst, WithProgress(func(done, total int64, _ float64) {
		if done == total {
			// Corrupt the destination behind the engine's back.
			path := r.hostPath(t, dst)
			data, err := os.ReadFile(path)
			if assert.NoError(t, err) {
				data[0] ^= 0xff
				assert.NoError(t, os.WriteFile(path, data, 0o644))
			}
		}
	}))

	var ok bool
	task.OnComplete = func(b bool) { ok = b }
	err := e.Transfer(context.Background(), task)
	require.ErrorIs(t, err, ErrIntegrity)
	assert.False(t, ok)
	assert.Equal(t, Failed, e.State())
	assert.ErrorIs(t, e.LastError(), ErrIntegrity)

	require.NoError(t, e.Close())
	close(events)
	got := stop()
	assert.Equal(t, 1, countEvents(got, event.VerifyFailed))
	assert.Equal(t, 1, countEvents(got, event.TransferFailed))
	assert.Zero(t, countEvents(got, event.TransferCompleted))
}

func TestResumeFromCheckpoint(t *testing.T) {
	r := newRig(t)
	cp, err := OpenCheckpoint(filepath.Join(t.TempDir(), "cp.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cp.Close() })

	const chunk = 1024
	e := r.newEngine(t, func(c *Config) {
		c.ChunkSize = chunk
		c.Checkpoint = cp
		c.Verify = true
	})

	data := randomData(t, 10*chunk+300)
	src := r.local(t, "game.iso", data)
	const dst = "ms0:/ISO/game.iso"

	first := NewTask(src, dst, WithProgress(func(done, _ int64, _ float64) {
		if done == 3*chunk {
			e.Cancel()
		}
	}))
	err = e.Transfer(context.Background(), first)
	require.ErrorIs(t, err, ErrCancelled)

	saved, ok, err := cp.Lookup(src, dst)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(3*chunk), saved.Offset)
	assert.Equal(t, int64(len(data)), saved.Size)

	var offsets []int64
	second := NewTask(src, dst, WithProgress(func(done, _ int64, _ float64) {
		offsets = append(offsets, done)
	}))
	require.NoError(t, e.ResumeFromCheckpoint(context.Background(), second))

	require.NotEmpty(t, offsets)
	assert.Equal(t, int64(4*chunk), offsets[0], "resumes after the saved offset")
	assert.Equal(t, data, r.deviceFile(t, dst))
	assert.Equal(t, Completed, e.State())

	_, ok, err = cp.Lookup(src, dst)
	require.NoError(t, err)
	assert.False(t, ok, "checkpoint cleared on completion")
}

func TestResumeFromCheckpoint_NoneRecorded(t *testing.T) {
	r := newRig(t)
	cp, err := OpenCheckpoint(filepath.Join(t.TempDir(), "cp.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cp.Close() })
	e := r.newEngine(t, func(c *Config) { c.Checkpoint = cp })

	data := randomData(t, 5000)
	src := r.local(t, "game.iso", data)
	require.NoError(t, e.ResumeFromCheckpoint(context.Background(), NewTask(src, "ms0:/ISO/game.iso")))
	assert.Equal(t, data, r.deviceFile(t, "ms0:/ISO/game.iso"))
}
