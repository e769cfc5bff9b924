package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/psplink/internal/event"
	"github.com/bamsammich/psplink/internal/stats"
)

func newTestHUD() (*hudPresenter, *bytes.Buffer, *bytes.Buffer) {
	var tty, out bytes.Buffer
	return &hudPresenter{w: &tty, out: &out, tracker: stats.NewTracker(), width: 200}, &tty, &out
}

func TestHUD_StatusLine(t *testing.T) {
	p, tty, _ := newTestHUD()
	p.tracker.Begin(4096, 0, 1024)
	p.tracker.AddChunk(2048, time.Second)

	p.handleEvent(event.Event{Type: event.TransferStarted, Dst: "ms0:/ISO/game.iso"})

	line := tty.String()
	assert.True(t, strings.HasPrefix(line, ansiClearLine))
	assert.Contains(t, line, "game.iso")
	assert.Contains(t, line, "▪▪▪▪▪▪▪▪▪▪□□□□□□□□□□")
	assert.Contains(t, line, " 50%")
	assert.Contains(t, line, "2.0 KiB/4.0 KiB")
	assert.Contains(t, line, "eta ")
	assert.NotContains(t, line, "ms0:/ISO")
}

func TestHUD_StateReplacesETA(t *testing.T) {
	p, tty, _ := newTestHUD()
	p.tracker.Begin(100, 0, 10)
	p.handleEvent(event.Event{Type: event.TransferStarted, Dst: "ms0:/x.iso"})
	tty.Reset()

	p.handleEvent(event.Event{Type: event.TransferPaused})
	assert.Contains(t, tty.String(), "[paused]")
	assert.NotContains(t, tty.String(), "eta")

	tty.Reset()
	p.handleEvent(event.Event{Type: event.ChunkRetry, Attempt: 3})
	assert.Contains(t, tty.String(), "[retry 3]")
}

func TestHUD_FinishedLines(t *testing.T) {
	p, tty, out := newTestHUD()
	p.tracker.Begin(100, 0, 10)

	p.handleEvent(event.Event{Type: event.TransferStarted, Dst: "ms0:/a.iso"})
	p.handleEvent(event.Event{Type: event.TransferCompleted, Dst: "ms0:/a.iso", Total: 100})
	p.handleEvent(event.Event{Type: event.TransferStarted, Dst: "ms0:/b.iso"})
	p.handleEvent(event.Event{Type: event.TransferFailed, Dst: "ms0:/b.iso", Error: errors.New("device removed")})

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "ms0:/a.iso  100 B")
	assert.Contains(t, lines[1], "device removed")
	assert.True(t, strings.HasSuffix(tty.String(), ansiClearLine), "status line cleared")
	assert.False(t, p.drawn)

	// No transfer in flight: nothing to draw.
	tty.Reset()
	p.draw(true)
	assert.Empty(t, tty.String())
}

func TestHUD_RunClearsOnClose(t *testing.T) {
	p, tty, _ := newTestHUD()
	ch := make(chan event.Event, 2)
	ch <- event.Event{Type: event.TransferStarted, Dst: "ms0:/a.iso"}
	close(ch)

	require.NoError(t, p.Run(ch))
	assert.True(t, strings.HasSuffix(tty.String(), ansiClearLine))
}

func TestTruncateVisible(t *testing.T) {
	assert.Equal(t, "abc", truncateVisible("abc", 10))
	assert.Equal(t, "ab"+ansiReset, truncateVisible("abcdef", 2))

	s := ansiBold + "abcdef" + ansiReset
	got := truncateVisible(s, 3)
	assert.Equal(t, ansiBold+"abc"+ansiReset, got)
}
