// Package ui renders transfer progress for the CLI.
package ui

import (
	"io"

	"github.com/bamsammich/psplink/internal/event"
	"github.com/bamsammich/psplink/internal/stats"
)

// Presenter consumes engine events and displays progress.
type Presenter interface {
	// Run consumes events until the channel closes. Blocks until done.
	Run(events <-chan event.Event) error
	// Summary returns the final summary line.
	Summary() string
}

// Config configures a Presenter.
type Config struct {
	Writer     io.Writer
	ErrWriter  io.Writer
	Tracker    *stats.Tracker
	Width      int
	IsTTY      bool
	Quiet      bool
	NoProgress bool
}

// NewPresenter creates the appropriate presenter based on configuration.
//
//nolint:ireturn // the presenter kind is chosen at runtime
func NewPresenter(cfg Config) Presenter {
	if cfg.Tracker == nil {
		cfg.Tracker = stats.NewTracker()
	}
	if cfg.Quiet {
		return &quietPresenter{}
	}
	if !cfg.IsTTY || cfg.NoProgress {
		return &plainPresenter{
			w:       cfg.Writer,
			errW:    cfg.ErrWriter,
			tracker: cfg.Tracker,
			quietly: cfg.NoProgress,
		}
	}
	width := cfg.Width
	if width <= 0 {
		width = 80
	}
	return &hudPresenter{
		w:       cfg.ErrWriter, // the status line lives on the TTY
		out:     cfg.Writer,
		tracker: cfg.Tracker,
		width:   width,
	}
}

// tally counts finished transfers for the summary line.
type tally struct {
	completed int
	failed    int
	cancelled int
	verified  int
	bytes     int64
	lastErr   error
}

func (t *tally) record(ev event.Event) {
	switch ev.Type {
	case event.TransferCompleted:
		t.completed++
		t.bytes += ev.Total
	case event.TransferFailed:
		t.failed++
		t.lastErr = ev.Error
	case event.TransferCancelled:
		t.cancelled++
		t.lastErr = ev.Error
	case event.VerifyOK:
		t.verified++
	}
}
