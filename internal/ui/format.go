package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/bamsammich/psplink/internal/stats"
)

// FormatRate formats a bytes-per-second rate as a human-readable string.
func FormatRate(bytesPerSec float64) string {
	if bytesPerSec <= 0 {
		return "0 B/s"
	}
	val := bytesPerSec
	for _, u := range []string{"B/s", "KB/s", "MB/s", "GB/s"} {
		if val < 1024 {
			switch {
			case val < 10:
				return fmt.Sprintf("%.2f %s", val, u)
			case val < 100:
				return fmt.Sprintf("%.1f %s", val, u)
			default:
				return fmt.Sprintf("%.0f %s", val, u)
			}
		}
		val /= 1024
	}
	return fmt.Sprintf("%.1f TB/s", val)
}

// FormatETA formats a remaining-time estimate; unknown is "--".
func FormatETA(d time.Duration) string {
	if d <= 0 {
		return "--"
	}
	return FormatDuration(d)
}

// FormatDuration formats elapsed time concisely.
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	switch {
	case h > 0:
		return fmt.Sprintf("%dh %02dm %02ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %02ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

// FormatBytes wraps stats.FormatBytes for UI use.
func FormatBytes(b int64) string {
	return stats.FormatBytes(b)
}

// ProgressBar renders frac (0..1) as width ▪/□ cells.
func ProgressBar(frac float64, width int) string {
	if width <= 0 {
		return ""
	}
	frac = min(max(frac, 0), 1)
	filled := min(int(frac*float64(width)), width)
	return strings.Repeat("▪", filled) + strings.Repeat("□", width-filled)
}

var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

// Sparkline renders the newest width samples as block characters scaled
// to their maximum, left-padded with the lowest block.
func Sparkline(samples []float64, width int) string {
	if width <= 0 {
		return ""
	}
	if len(samples) > width {
		samples = samples[len(samples)-width:]
	}
	peak := 0.0
	for _, v := range samples {
		peak = max(peak, v)
	}

	out := []rune(strings.Repeat(string(sparkBlocks[0]), width-len(samples)))
	top := len(sparkBlocks) - 1
	for _, v := range samples {
		idx := 0
		if peak > 0 && v > 0 {
			idx = min(int(v/peak*float64(top)), top)
		}
		out = append(out, sparkBlocks[idx])
	}
	return string(out)
}

// completionSummary builds the final line printed after a command:
// done ✓  transfers 3  size 1.2 GiB  avg 8.1 MB/s  time 2m 31s  errors 0
func completionSummary(t tally, last stats.Stats) string {
	icon := "✓"
	if t.failed > 0 || t.cancelled > 0 {
		icon = "✗"
	}
	line := fmt.Sprintf("done %s  transfers %d  size %s  avg %s  time %s",
		icon, t.completed, FormatBytes(t.bytes),
		FormatRate(last.AverageSpeed), FormatDuration(last.Elapsed))
	if t.verified > 0 {
		line += fmt.Sprintf("  verified %d", t.verified)
	}
	if t.cancelled > 0 {
		line += fmt.Sprintf("  cancelled %d", t.cancelled)
	}
	return line + fmt.Sprintf("  errors %d", t.failed)
}
