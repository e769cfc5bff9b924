package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/bamsammich/psplink/internal/event"
	"github.com/bamsammich/psplink/internal/stats"
)

const plainProgressInterval = 5 * time.Second

// plainPresenter prints one line per finished transfer to stdout and
// periodic progress to stderr. It suits pipes and log files.
type plainPresenter struct {
	w       io.Writer
	errW    io.Writer
	tracker *stats.Tracker
	quietly bool // suppress periodic progress
	tally   tally
	active  bool
	start   time.Time
}

func (p *plainPresenter) Run(events <-chan event.Event) error {
	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	lastProgress := time.Now()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			p.handleEvent(ev)
		case now := <-tick.C:
			p.tracker.Tick()
			if p.active && !p.quietly && now.Sub(lastProgress) >= plainProgressInterval {
				p.printProgress()
				lastProgress = now
			}
		}
	}
}

func (p *plainPresenter) handleEvent(ev event.Event) {
	p.tally.record(ev)
	switch ev.Type {
	case event.TransferStarted:
		p.active = true
		p.start = ev.Timestamp
		fmt.Fprintf(p.errW, "%s -> %s\n", ev.Src, ev.Dst)
	case event.TransferPaused:
		fmt.Fprintf(p.errW, "paused at %s\n", FormatBytes(ev.Offset))
	case event.TransferResumed:
		fmt.Fprintf(p.errW, "resumed at %s\n", FormatBytes(ev.Offset))
	case event.ChunkRetry:
		fmt.Fprintf(p.errW, "retry %d at offset %d: %v\n", ev.Attempt, ev.Offset, ev.Error)
	case event.VerifyFailed:
		fmt.Fprintf(p.w, "MISMATCH: %s\n", ev.Dst)
	case event.TransferCompleted:
		p.active = false
		elapsed := ev.Timestamp.Sub(p.start)
		fmt.Fprintf(p.w, "%s  %s  %s\n", ev.Dst, FormatBytes(ev.Total), FormatRate(rate(ev.Offset, elapsed)))
	case event.TransferFailed:
		p.active = false
		fmt.Fprintf(p.w, "%s  %s  %s\n", ev.Dst, FormatBytes(ev.Total), errText(ev.Error))
	case event.TransferCancelled:
		p.active = false
		fmt.Fprintf(p.w, "%s  cancelled at %s of %s\n", ev.Dst, FormatBytes(ev.Offset), FormatBytes(ev.Total))
	}
}

func (p *plainPresenter) printProgress() {
	s := p.tracker.Snapshot()
	fmt.Fprintf(p.errW, "progress: %.0f%% %s/%s chunks %d/%d %s eta %s\n",
		s.Progress*100,
		FormatBytes(s.BytesTransferred), FormatBytes(s.TotalBytes),
		s.ChunksTransferred, s.TotalChunks,
		FormatRate(p.tracker.RollingSpeed(10)),
		FormatETA(s.EstimatedTimeLeft),
	)
}

func (p *plainPresenter) Summary() string {
	return completionSummary(p.tally, p.tracker.Snapshot())
}

func rate(n int64, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / d.Seconds()
}

func errText(err error) string {
	if err == nil {
		return "error"
	}
	return err.Error()
}
