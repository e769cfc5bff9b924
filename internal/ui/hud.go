package ui

import (
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/bamsammich/psplink/internal/event"
	"github.com/bamsammich/psplink/internal/stats"
)

// ANSI escape sequences.
const (
	ansiDim       = "\033[2m"
	ansiBold      = "\033[1m"
	ansiReset     = "\033[0m"
	ansiClearLine = "\r\033[K"
)

const (
	progressBarWidth = 20
	sparklineWidth   = 12
	hudMinInterval   = 100 * time.Millisecond
)

// hudPresenter redraws a single status line on the terminal while a
// transfer runs and prints a line above it as each transfer finishes.
type hudPresenter struct {
	w       io.Writer // TTY
	out     io.Writer // finished-transfer lines
	tracker *stats.Tracker
	width   int

	tally    tally
	name     string
	state    string
	drawn    bool
	lastDraw time.Time
}

func (p *hudPresenter) Run(events <-chan event.Event) error {
	secTicker := time.NewTicker(time.Second)
	defer secTicker.Stop()
	redraw := time.NewTicker(250 * time.Millisecond)
	defer redraw.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				p.clear()
				return nil
			}
			p.handleEvent(ev)
		case <-secTicker.C:
			p.tracker.Tick()
		case <-redraw.C:
			p.draw(false)
		}
	}
}

func (p *hudPresenter) handleEvent(ev event.Event) {
	p.tally.record(ev)
	switch ev.Type {
	case event.TransferStarted:
		p.name = path.Base(strings.ReplaceAll(ev.Dst, "\\", "/"))
		p.state = ""
		p.draw(true)
	case event.TransferProgress:
		p.draw(false)
	case event.TransferPaused:
		p.state = "paused"
		p.draw(true)
	case event.TransferResumed:
		p.state = ""
		p.draw(true)
	case event.ChunkRetry:
		p.state = fmt.Sprintf("retry %d", ev.Attempt)
		p.draw(true)
	case event.VerifyOK, event.VerifyFailed:
		p.state = "verified"
		if ev.Type == event.VerifyFailed {
			p.state = "mismatch"
		}
		p.draw(true)
	case event.TransferCompleted:
		p.finishLine(fmt.Sprintf("%s✓%s %s  %s", ansiBold, ansiReset, ev.Dst, FormatBytes(ev.Total)))
	case event.TransferFailed:
		p.finishLine(fmt.Sprintf("%s✗%s %s  %s", ansiBold, ansiReset, ev.Dst, errText(ev.Error)))
	case event.TransferCancelled:
		p.finishLine(fmt.Sprintf("%s-%s %s  cancelled at %s", ansiBold, ansiReset, ev.Dst, FormatBytes(ev.Offset)))
	}
}

func (p *hudPresenter) finishLine(line string) {
	p.clear()
	fmt.Fprintln(p.out, line)
	p.name = ""
}

func (p *hudPresenter) clear() {
	if p.drawn {
		fmt.Fprint(p.w, ansiClearLine)
		p.drawn = false
	}
}

func (p *hudPresenter) draw(force bool) {
	if p.name == "" {
		return
	}
	now := time.Now()
	if !force && now.Sub(p.lastDraw) < hudMinInterval {
		return
	}
	p.lastDraw = now
	fmt.Fprint(p.w, ansiClearLine+p.statusLine())
	p.drawn = true
}

// statusLine renders: name  ▪▪▪□□ 42%  1.2/3.0 GB  8.1 MB/s ▂▄▆  eta 3m 02s
func (p *hudPresenter) statusLine() string {
	s := p.tracker.Snapshot()
	speed := p.tracker.RollingSpeed(5)
	if speed == 0 {
		speed = s.CurrentSpeed
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s %3.0f%%  %s/%s  %s %s%s%s",
		p.name,
		ProgressBar(s.Progress, progressBarWidth), s.Progress*100,
		FormatBytes(s.BytesTransferred), FormatBytes(s.TotalBytes),
		FormatRate(speed),
		ansiDim, Sparkline(p.tracker.SpeedHistory(sparklineWidth), sparklineWidth), ansiReset,
	)
	if p.state != "" {
		fmt.Fprintf(&b, "  [%s]", p.state)
	} else {
		fmt.Fprintf(&b, "  eta %s", FormatETA(s.EstimatedTimeLeft))
	}
	return truncateVisible(b.String(), p.width)
}

func (p *hudPresenter) Summary() string {
	return completionSummary(p.tally, p.tracker.Snapshot())
}

// truncateVisible cuts s to width printable runes, skipping ANSI escapes
// when counting.
func truncateVisible(s string, width int) string {
	var (
		b       strings.Builder
		visible int
		inEsc   bool
	)
	for _, r := range s {
		switch {
		case r == '\033':
			inEsc = true
		case inEsc:
			if r == 'm' {
				inEsc = false
			}
		default:
			if visible >= width {
				b.WriteString(ansiReset)
				return b.String()
			}
			visible++
		}
		b.WriteRune(r)
	}
	return b.String()
}
