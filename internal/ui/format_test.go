package ui

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/bamsammich/psplink/internal/event"
	"github.com/bamsammich/psplink/internal/stats"
)

func TestFormatRate(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0 B/s"},
		{-5, "0 B/s"},
		{5, "5.00 B/s"},
		{50, "50.0 B/s"},
		{500, "500 B/s"},
		{2048, "2.00 KB/s"},
		{8.5 * 1024 * 1024, "8.50 MB/s"},
		{120 * 1024 * 1024, "120 MB/s"},
		{3 * 1024 * 1024 * 1024, "3.00 GB/s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatRate(tt.in), "%v", tt.in)
	}
}

func TestFormatETA(t *testing.T) {
	assert.Equal(t, "--", FormatETA(0))
	assert.Equal(t, "--", FormatETA(-time.Second))
	assert.Equal(t, "6s", FormatETA(6*time.Second))
	assert.Equal(t, "1m 05s", FormatETA(65*time.Second))
	assert.Equal(t, "2h 00m 01s", FormatETA(2*time.Hour+time.Second))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0s", FormatDuration(0))
	assert.Equal(t, "2s", FormatDuration(1500*time.Millisecond))
	assert.Equal(t, "3m 17s", FormatDuration(197*time.Second))
}

func TestProgressBar(t *testing.T) {
	assert.Equal(t, "", ProgressBar(0.5, 0))
	assert.Equal(t, "□□□□", ProgressBar(0, 4))
	assert.Equal(t, "▪▪□□", ProgressBar(0.5, 4))
	assert.Equal(t, "▪▪▪▪", ProgressBar(1, 4))
	assert.Equal(t, "▪▪▪▪", ProgressBar(7, 4))
	assert.Equal(t, "□□□□", ProgressBar(-1, 4))
}

func TestSparkline(t *testing.T) {
	assert.Equal(t, "", Sparkline([]float64{1}, 0))
	assert.Equal(t, "▁▁▁", Sparkline(nil, 3))
	assert.Equal(t, "▁▁█", Sparkline([]float64{0, 5}, 3))
	assert.Equal(t, "▁▄█", Sparkline([]float64{0, 50, 100}, 3))
	// Only the newest samples are shown.
	assert.Equal(t, "▁█", Sparkline([]float64{100, 0, 100}, 2))
	assert.Len(t, []rune(Sparkline([]float64{1, 2, 3, 4, 5}, 8)), 8)
}

func TestCompletionSummary(t *testing.T) {
	var tl tally
	tl.record(event.Event{Type: event.TransferCompleted, Total: 2048})
	tl.record(event.Event{Type: event.VerifyOK})
	last := stats.Stats{AverageSpeed: 1024, Elapsed: 2 * time.Second}

	got := completionSummary(tl, last)
	assert.Equal(t, "done ✓  transfers 1  size 2.0 KiB  avg 1.00 KB/s  time 2s  verified 1  errors 0", got)

	tl.record(event.Event{Type: event.TransferFailed, Error: errors.New("boom")})
	tl.record(event.Event{Type: event.TransferCancelled})
	got = completionSummary(tl, last)
	assert.Contains(t, got, "done ✗")
	assert.Contains(t, got, "cancelled 1")
	assert.Contains(t, got, "errors 1")
}
