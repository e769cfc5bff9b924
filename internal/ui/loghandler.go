package ui

import (
	"context"
	"errors"
	"log/slog"

	"github.com/bamsammich/psplink/internal/event"
)

// MultiHandler fans each record out to every wrapped handler that accepts
// its level.
type MultiHandler struct {
	handlers []slog.Handler
}

// NewMultiHandler returns a handler writing to all of hs.
func NewMultiHandler(hs ...slog.Handler) *MultiHandler {
	return &MultiHandler{handlers: hs}
}

func (m *MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range m.handlers {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (m *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	hs := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		hs[i] = h.WithAttrs(attrs)
	}
	return &MultiHandler{handlers: hs}
}

func (m *MultiHandler) WithGroup(name string) slog.Handler {
	hs := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		hs[i] = h.WithGroup(name)
	}
	return &MultiHandler{handlers: hs}
}

// LogEvent writes ev as a structured "psplink.event" record. Progress
// events are logged at debug level, failures at warn.
func LogEvent(ctx context.Context, log *slog.Logger, ev event.Event) {
	level := slog.LevelInfo
	switch ev.Type {
	case event.TransferProgress:
		level = slog.LevelDebug
	case event.TransferFailed, event.VerifyFailed, event.ChunkRetry:
		level = slog.LevelWarn
	}
	if !log.Enabled(ctx, level) {
		return
	}
	attrs := []slog.Attr{
		slog.String("type", ev.Type.String()),
		slog.String("task", ev.TaskID),
		slog.String("src", ev.Src),
		slog.String("dst", ev.Dst),
		slog.Int64("offset", ev.Offset),
		slog.Int64("total", ev.Total),
	}
	if ev.Attempt > 0 {
		attrs = append(attrs, slog.Int("attempt", ev.Attempt))
	}
	if ev.Error != nil {
		attrs = append(attrs, slog.String("error", ev.Error.Error()))
	}
	log.LogAttrs(ctx, level, "psplink.event", attrs...)
}

// Tee forwards every event from in to out, logging each one. out is
// closed when in closes.
func Tee(ctx context.Context, log *slog.Logger, in <-chan event.Event, out chan<- event.Event) {
	defer close(out)
	for ev := range in {
		LogEvent(ctx, log, ev)
		out <- ev
	}
}
