//go:build unix

package main

import (
	"log/slog"
	"os"
	"os/signal"

	"golang.org/x/sys/unix"

	"github.com/bamsammich/psplink/internal/engine"
)

// watchPause toggles pause on the active transfer each time the process
// receives SIGUSR1.
func watchPause(eng *engine.Engine, log *slog.Logger) (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, unix.SIGUSR1)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ch:
				if eng.Pause() {
					log.Info("paused by signal")
				} else if eng.ResumeTransfer() {
					log.Info("resumed by signal")
				}
			case <-done:
				return
			}
		}
	}()
	return func() {
		signal.Stop(ch)
		close(done)
	}
}
