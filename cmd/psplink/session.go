package main

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/spf13/cobra"

	"github.com/bamsammich/psplink/internal/engine"
	"github.com/bamsammich/psplink/internal/event"
	"github.com/bamsammich/psplink/internal/transport"
	"github.com/bamsammich/psplink/internal/ui"
)

// eventBuffer absorbs bursts of progress events; the engine drops events
// rather than block when it fills.
const eventBuffer = 4096

// session is one engine run: the engine, its event stream and the
// presenter drawing it.
type session struct {
	a         *app
	cmd       *cobra.Command
	eng       *engine.Engine
	events    chan event.Event
	presenter ui.Presenter
	shown     chan error

	wg        sync.WaitGroup
	succeeded atomic.Int64
	failed    atomic.Int64
	closeOnce sync.Once
}

// startSession builds an engine over r using the configured transfer
// settings overridden by tf.
func (a *app) startSession(ctx context.Context, cmd *cobra.Command, r *transport.Router, tf *transferFlags) (*session, error) {
	cfg := a.settings.Transfer
	if err := tf.apply(cmd, &cfg); err != nil {
		return nil, err
	}
	if !tf.noCheckpoint {
		cp, err := a.openCheckpoint()
		if err != nil {
			return nil, err
		}
		cfg.Checkpoint = cp
	}

	s := &session{a: a, cmd: cmd, events: make(chan event.Event, eventBuffer), shown: make(chan error, 1)}
	cfg.Events = s.events
	s.eng = engine.New(cfg, r)

	tty, width := ui.Terminal(cmd.ErrOrStderr())
	s.presenter = ui.NewPresenter(ui.Config{
		Writer:     cmd.OutOrStdout(),
		ErrWriter:  cmd.ErrOrStderr(),
		Tracker:    s.eng.Tracker(),
		Width:      width,
		IsTTY:      tty,
		Quiet:      a.quiet,
		NoProgress: tf.noProgress,
	})

	var feed <-chan event.Event = s.events
	if a.logFile != "" {
		logged := make(chan event.Event, eventBuffer)
		go ui.Tee(ctx, a.logger(), s.events, logged)
		feed = logged
	}
	go func() { s.shown <- s.presenter.Run(feed) }()

	go func() {
		<-ctx.Done()
		s.eng.Cancel()
		_ = s.eng.Close()
	}()
	stopPause := watchPause(s.eng, a.logger())
	a.onClose(func() error { stopPause(); return nil })
	return s, nil
}

// enqueue queues src -> dst. A task the engine refuses counts as failed.
func (s *session) enqueue(src, dst string, size int64) {
	s.wg.Add(1)
	done := func(ok bool) {
		s.count(ok)
		s.wg.Done()
	}
	task := engine.NewTask(src, dst, engine.WithSize(size), engine.WithCompletion(done))
	if err := s.eng.Enqueue(task); err != nil {
		s.reject(src, err)
		done(false)
	}
}

// resume runs src -> dst on the calling goroutine, continuing from its
// checkpoint.
func (s *session) resume(ctx context.Context, src, dst string) {
	completed := false
	task := engine.NewTask(src, dst, engine.WithCompletion(func(ok bool) {
		completed = true
		s.count(ok)
	}))
	err := s.eng.ResumeFromCheckpoint(ctx, task)
	if !completed {
		s.reject(src, err)
		s.count(false)
	}
}

func (s *session) reject(src string, err error) {
	s.a.logger().Warn("transfer rejected", "src", src, "error", err)
	fmt.Fprintf(s.cmd.ErrOrStderr(), "%s: %v\n", src, err)
}

func (s *session) count(ok bool) {
	if ok {
		s.succeeded.Add(1)
	} else {
		s.failed.Add(1)
	}
}

// finish waits for every task, stops the engine and the presenter, and
// maps the outcome to an exit status.
func (s *session) finish() error {
	s.wg.Wait()
	s.closeOnce.Do(func() {
		_ = s.eng.Close()
		close(s.events)
	})
	if err := <-s.shown; err != nil {
		return err
	}
	if summary := s.presenter.Summary(); summary != "" {
		fmt.Fprintln(s.cmd.ErrOrStderr(), summary)
	}
	return outcome(s.succeeded.Load(), s.failed.Load(), s.eng.LastError())
}

// outcome is nil when nothing failed, exit code 1 when some transfers
// failed and 2 when all of them did.
func outcome(ok, failed int64, last error) error {
	switch {
	case failed == 0:
		return nil
	case ok > 0:
		return &exitError{code: 1, err: fmt.Errorf("%d of %d transfers failed", failed, ok+failed)}
	default:
		if last != nil {
			return &exitError{code: 2, err: last}
		}
		return &exitError{code: 2, err: fmt.Errorf("all %d transfers failed", failed)}
	}
}
