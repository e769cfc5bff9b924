//go:build !unix

package main

import (
	"log/slog"

	"github.com/bamsammich/psplink/internal/engine"
)

// watchPause is a no-op where SIGUSR1 does not exist.
func watchPause(*engine.Engine, *slog.Logger) (stop func()) {
	return func() {}
}
