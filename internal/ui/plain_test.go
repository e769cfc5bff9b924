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

func runPlain(t *testing.T, evs ...event.Event) (*plainPresenter, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	p := &plainPresenter{w: &out, errW: &errOut, tracker: stats.NewTracker()}

	ch := make(chan event.Event, len(evs))
	for _, ev := range evs {
		ch <- ev
	}
	close(ch)
	require.NoError(t, p.Run(ch))
	return p, out.String(), errOut.String()
}

func TestPlainPresenter_Completed(t *testing.T) {
	start := time.Now()
	_, out, errOut := runPlain(t,
		event.Event{Type: event.TransferStarted, Timestamp: start, Src: "game.iso", Dst: "ms0:/ISO/game.iso", Total: 2 << 20},
		event.Event{Type: event.TransferProgress, Offset: 1 << 20, Total: 2 << 20},
		event.Event{Type: event.TransferCompleted, Timestamp: start.Add(time.Second), Dst: "ms0:/ISO/game.iso", Offset: 2 << 20, Total: 2 << 20},
	)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1)
	assert.Equal(t, "ms0:/ISO/game.iso  2.0 MiB  2.00 MB/s", lines[0])
	assert.Contains(t, errOut, "game.iso -> ms0:/ISO/game.iso")
}

func TestPlainPresenter_FailedAndCancelled(t *testing.T) {
	_, out, _ := runPlain(t,
		event.Event{Type: event.TransferFailed, Dst: "ms0:/a.iso", Total: 10, Error: errors.New("write failed")},
		event.Event{Type: event.TransferFailed, Dst: "ms0:/b.iso", Total: 10},
		event.Event{Type: event.TransferCancelled, Dst: "ms0:/c.iso", Offset: 1024, Total: 4096},
		event.Event{Type: event.VerifyFailed, Dst: "ms0:/d.iso"},
	)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "ms0:/a.iso  10 B  write failed", lines[0])
	assert.Equal(t, "ms0:/b.iso  10 B  error", lines[1])
	assert.Equal(t, "ms0:/c.iso  cancelled at 1.0 KiB of 4.0 KiB", lines[2])
	assert.Equal(t, "MISMATCH: ms0:/d.iso", lines[3])
}

func TestPlainPresenter_ControlEventsGoToStderr(t *testing.T) {
	_, out, errOut := runPlain(t,
		event.Event{Type: event.TransferPaused, Offset: 2048},
		event.Event{Type: event.TransferResumed, Offset: 2048},
		event.Event{Type: event.ChunkRetry, Attempt: 2, Offset: 4096, Error: errors.New("busy")},
	)

	assert.Empty(t, out)
	assert.Contains(t, errOut, "paused at 2.0 KiB")
	assert.Contains(t, errOut, "resumed at 2.0 KiB")
	assert.Contains(t, errOut, "retry 2 at offset 4096: busy")
}

func TestPlainPresenter_Summary(t *testing.T) {
	p, _, _ := runPlain(t,
		event.Event{Type: event.TransferCompleted, Total: 100},
		event.Event{Type: event.TransferCompleted, Total: 50},
	)
	assert.Contains(t, p.Summary(), "transfers 2")
	assert.Contains(t, p.Summary(), "size 150 B")
	assert.Contains(t, p.Summary(), "errors 0")
}

func TestNewPresenter(t *testing.T) {
	var buf bytes.Buffer
	assert.IsType(t, &quietPresenter{}, NewPresenter(Config{Quiet: true}))
	assert.IsType(t, &plainPresenter{}, NewPresenter(Config{Writer: &buf, ErrWriter: &buf}))
	assert.IsType(t, &plainPresenter{}, NewPresenter(Config{IsTTY: true, NoProgress: true}))
	assert.IsType(t, &hudPresenter{}, NewPresenter(Config{IsTTY: true}))
}

func TestQuietPresenter(t *testing.T) {
	p := NewPresenter(Config{Quiet: true})
	ch := make(chan event.Event, 1)
	ch <- event.Event{Type: event.TransferCompleted}
	close(ch)
	require.NoError(t, p.Run(ch))
	assert.Empty(t, p.Summary())
}
