package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bamsammich/psplink/internal/config"
	"github.com/bamsammich/psplink/internal/device"
	"github.com/bamsammich/psplink/internal/engine"
	"github.com/bamsammich/psplink/internal/sim"
	"github.com/bamsammich/psplink/internal/transport"
	"github.com/bamsammich/psplink/internal/ui"
	"github.com/bamsammich/psplink/internal/usb"
)

// app holds the global flags and the state shared by subcommands.
type app struct {
	stdout io.Writer
	stderr io.Writer

	simDir     string
	vid        string
	pid        string
	usbPath    string
	configPath string
	logFile    string
	verbose    int
	quiet      bool

	log        *slog.Logger
	settings   config.Settings
	checkpoint *engine.CheckpointDB
	closers    []func() error
}

// setup loads configuration and configures logging before any subcommand
// runs.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	var (
		cfg config.Config
		err error
	)
	if a.configPath != "" {
		cfg, err = config.LoadFile(a.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if a.settings, err = cfg.Resolve(); err != nil {
		return err
	}
	if a.vid != "" {
		if a.settings.Device.USB.VendorID, err = config.ParseID(a.vid); err != nil {
			return fmt.Errorf("--vid: %w", err)
		}
	}
	if a.pid != "" {
		if a.settings.Device.USB.ProductID, err = config.ParseID(a.pid); err != nil {
			return fmt.Errorf("--pid: %w", err)
		}
	}
	return a.setupLogging()
}

func (a *app) setupLogging() error {
	level := slog.LevelWarn
	switch {
	case a.quiet:
		level = slog.LevelError
	case a.verbose >= 2:
		level = slog.LevelDebug
	case a.verbose == 1:
		level = slog.LevelInfo
	}
	textHandler := slog.NewTextHandler(a.stderr, &slog.HandlerOptions{Level: level})

	var handler slog.Handler = textHandler
	if a.logFile != "" {
		lf, err := os.Create(a.logFile)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		a.closers = append(a.closers, lf.Close)
		jsonHandler := slog.NewJSONHandler(lf, &slog.HandlerOptions{Level: slog.LevelDebug})
		handler = ui.NewMultiHandler(textHandler, jsonHandler)
	}
	a.log = slog.New(handler)
	slog.SetDefault(a.log)

	a.settings.Device.Logger = a.log
	a.settings.Transfer.Logger = a.log
	return nil
}

// teardown releases everything acquired through the app, newest first.
func (a *app) teardown() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && a.log != nil {
			a.log.Debug("cleanup", "error", err)
		}
	}
	a.closers = nil
}

// onClose registers fn to run during teardown.
func (a *app) onClose(fn func() error) { a.closers = append(a.closers, fn) }

func (a *app) logger() *slog.Logger {
	if a.log == nil {
		return slog.Default()
	}
	return a.log
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

//nolint:ireturn // the backend is chosen at runtime
func (a *app) backend() (usb.Backend, error) {
	if a.simDir == "" {
		return usb.NewGoUSB(), nil
	}
	console, err := sim.New(a.simDir, sim.WithLogger(a.logger()))
	if err != nil {
		return nil, fmt.Errorf("simulated console: %w", err)
	}
	return console, nil
}

// newDevice builds a disconnected device; the caller owns Close.
func (a *app) newDevice() (*device.Device, error) {
	backend, err := a.backend()
	if err != nil {
		return nil, err
	}
	dev := device.New(a.settings.Device, backend)
	dev.Subscribe("log", device.Observer{Handle: func(ev device.StatusEvent) {
		a.logger().Info("device status", "status", ev.Kind.String(), "detail", ev.Message)
	}})
	return dev, nil
}

// connect opens the console. It is closed during teardown.
func (a *app) connect(ctx context.Context) (*device.Device, error) {
	dev, err := a.newDevice()
	if err != nil {
		return nil, err
	}
	if a.usbPath != "" {
		err = dev.ConnectPath(ctx, a.usbPath)
	} else {
		err = dev.Connect(ctx)
	}
	if err != nil {
		_ = dev.Close()
		if errors.Is(err, usb.ErrDeviceNotFound) {
			return nil, &exitError{code: 3, err: fmt.Errorf("no console found (is it in USB mode?): %w", err)}
		}
		return nil, err
	}
	a.onClose(dev.Close)
	return dev, nil
}

// router resolves local paths and device paths on dev.
func router(dev *device.Device) *transport.Router {
	return transport.NewRouter(nil, transport.NewDevice(dev.Protocol()))
}

// openCheckpoint opens the resume database once per run unless disabled.
func (a *app) openCheckpoint() (*engine.CheckpointDB, error) {
	if a.settings.CheckpointPath == "" {
		return nil, nil //nolint:nilnil // checkpoints disabled
	}
	if a.checkpoint != nil {
		return a.checkpoint, nil
	}
	cp, err := engine.OpenCheckpoint(a.settings.CheckpointPath)
	if err != nil {
		return nil, err
	}
	a.checkpoint = cp
	a.onClose(cp.Close)
	return cp, nil
}
