// Package device is the high-level view of a connected console: identity,
// battery, storage, file management and game listing over the command
// protocol.
package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bamsammich/psplink/internal/proto"
	"github.com/bamsammich/psplink/internal/usb"
)

// DefaultISOPath is where the console looks for disc images.
const DefaultISOPath = "ms0:/ISO"

// DefaultLowBattery is the charge percentage that triggers StatusLowBattery.
const DefaultLowBattery = 10

// Config holds facade settings.
type Config struct {
	Logger *slog.Logger
	USB    usb.Config
	Proto  proto.Config

	// ISOPath is the directory scanned by Games.
	ISOPath string

	// AutoReconnect re-establishes the link once when a command fails
	// because the device was removed, then retries that command.
	AutoReconnect bool

	// LowBattery is the discharge level, in percent, that notifies observers.
	LowBattery int
}

// DefaultConfig returns settings for a console in USB mode.
func DefaultConfig() Config {
	return Config{
		USB:        usb.DefaultConfig(),
		Proto:      proto.DefaultConfig(),
		ISOPath:    DefaultISOPath,
		LowBattery: DefaultLowBattery,
	}
}

// Identity is what the device reported about itself on connect.
type Identity struct {
	Name       string
	Firmware   string
	Serial     string
	Region     string
	USBVersion string
	Model      Model
	VendorID   uint16
	ProductID  uint16
}

// Device is a console reachable over USB.
type Device struct {
	log   *slog.Logger
	cfg   Config
	link  *usb.Transport
	proto *proto.Protocol

	mu sync.RWMutex
	id Identity

	obsMu     sync.Mutex
	observers map[string]Observer
}

// New creates a disconnected Device over backend.
func New(cfg Config, backend usb.Backend) *Device {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.USB.VendorID == 0 && cfg.USB.ProductID == 0 {
		def := usb.DefaultConfig()
		cfg.USB.VendorID, cfg.USB.ProductID = def.VendorID, def.ProductID
	}
	if cfg.ISOPath == "" {
		cfg.ISOPath = DefaultISOPath
	}
	if cfg.LowBattery <= 0 {
		cfg.LowBattery = DefaultLowBattery
	}
	cfg.USB.Logger = cfg.Logger
	cfg.Proto.Logger = cfg.Logger

	link := usb.New(cfg.USB, backend)
	return &Device{
		log:       cfg.Logger,
		cfg:       cfg,
		link:      link,
		proto:     proto.New(link, cfg.Proto),
		observers: make(map[string]Observer),
	}
}

// Protocol returns the command protocol bound to this device.
func (d *Device) Protocol() *proto.Protocol { return d.proto }

// Transport returns the USB link.
func (d *Device) Transport() *usb.Transport { return d.link }

// Enumerate lists attached devices matching the configured IDs.
func (d *Device) Enumerate() ([]usb.Descriptor, error) {
	return d.link.Enumerate()
}

// Connect opens the first matching device and queries its identity.
func (d *Device) Connect(ctx context.Context) error {
	if err := d.link.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return d.afterConnect(ctx, StatusConnected)
}

// ConnectPath opens the device at a specific USB path.
func (d *Device) ConnectPath(ctx context.Context, path string) error {
	if err := d.link.ConnectPath(path); err != nil {
		return fmt.Errorf("connect %s: %w", path, err)
	}
	return d.afterConnect(ctx, StatusConnected)
}

func (d *Device) afterConnect(ctx context.Context, kind StatusKind) error {
	d.proto.Reset()

	info, err := d.proto.DeviceInfo(ctx)
	if err != nil {
		_ = d.link.Disconnect()
		return fmt.Errorf("query device info: %w", err)
	}

	desc := d.link.Descriptor()
	id := Identity{
		Name:       info.Name,
		Firmware:   info.Firmware,
		Serial:     info.Serial,
		Region:     info.Region,
		USBVersion: desc.USBVersion,
		Model:      ModelFromProductID(desc.ProductID),
		VendorID:   desc.VendorID,
		ProductID:  desc.ProductID,
	}
	if id.Serial == "" {
		id.Serial = desc.Serial
	}

	d.mu.Lock()
	d.id = id
	d.mu.Unlock()

	d.log.Info("device connected",
		"model", id.Model.String(),
		"name", id.Name,
		"firmware", id.Firmware,
		"path", desc.Path,
	)
	d.notify(kind, fmt.Sprintf("%s (%s) on %s", id.Model, id.Name, desc.Path))
	return nil
}

// Disconnect closes the link. It is a no-op when already disconnected.
func (d *Device) Disconnect() error {
	was := d.link.IsConnected()
	d.proto.Reset()
	if err := d.link.Disconnect(); err != nil {
		return err
	}
	if was {
		d.notify(StatusDisconnected, d.link.Descriptor().Path)
	}
	return nil
}

// IsConnected reports whether the link is open.
func (d *Device) IsConnected() bool { return d.link.IsConnected() }

// Reconnect drops the link and reopens the same device, falling back to
// the first matching one.
func (d *Device) Reconnect(ctx context.Context) error {
	path := d.link.Descriptor().Path
	d.proto.Reset()
	if err := d.link.Disconnect(); err != nil {
		d.log.Debug("disconnect before reconnect", "error", err)
	}

	var err error
	if path != "" {
		err = d.link.ConnectPath(path)
	}
	if path == "" || err != nil {
		err = d.link.Connect()
	}
	if err != nil {
		return fmt.Errorf("reconnect: %w", err)
	}
	return d.afterConnect(ctx, StatusReconnected)
}

// do runs fn, reconnecting and retrying once if the device vanished and
// AutoReconnect is set.
func (d *Device) do(ctx context.Context, fn func() error) error {
	err := fn()
	if err == nil || !errors.Is(err, usb.ErrDeviceRemoved) {
		return err
	}
	d.proto.Reset()
	d.notify(StatusRemoved, err.Error())
	if !d.cfg.AutoReconnect {
		return err
	}
	if rerr := d.Reconnect(ctx); rerr != nil {
		return errors.Join(err, rerr)
	}
	return fn()
}

// Identity returns the identity queried on the last connect.
func (d *Device) Identity() Identity {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.id
}

// Name returns the device's self-reported name.
func (d *Device) Name() string { return d.Identity().Name }

// Model returns the hardware model.
func (d *Device) Model() Model { return d.Identity().Model }

// ModelName returns the hardware model as text.
func (d *Device) ModelName() string { return d.Identity().Model.String() }

// Firmware returns the firmware version.
func (d *Device) Firmware() string { return d.Identity().Firmware }

// Serial returns the serial number.
func (d *Device) Serial() string { return d.Identity().Serial }

// VendorID returns the USB vendor ID.
func (d *Device) VendorID() uint16 { return d.Identity().VendorID }

// ProductID returns the USB product ID.
func (d *Device) ProductID() uint16 { return d.Identity().ProductID }

// USBVersion returns the USB release the device reports, e.g. "2.00".
func (d *Device) USBVersion() string { return d.Identity().USBVersion }

// USBMode reports whether the console is in USB bulk mode.
func (d *Device) USBMode() bool { return d.proto.InBulkMode() }

// EnterUSBMode switches the console into USB bulk mode.
func (d *Device) EnterUSBMode(ctx context.Context) error {
	if err := d.do(ctx, func() error { return d.proto.EnterBulkMode(ctx) }); err != nil {
		return err
	}
	d.notify(StatusUSBMode, "entered")
	return nil
}

// ExitUSBMode leaves USB bulk mode.
func (d *Device) ExitUSBMode(ctx context.Context) error {
	if err := d.do(ctx, func() error { return d.proto.ExitBulkMode(ctx) }); err != nil {
		return err
	}
	d.notify(StatusUSBMode, "exited")
	return nil
}

// Ping measures one command round trip.
func (d *Device) Ping(ctx context.Context) (time.Duration, error) {
	var rtt time.Duration
	err := d.do(ctx, func() error {
		var err error
		rtt, err = d.proto.Ping(ctx)
		return err
	})
	return rtt, err
}

// StatusString summarizes the connection for display.
func (d *Device) StatusString() string {
	if !d.IsConnected() {
		return "disconnected"
	}
	id := d.Identity()
	s := fmt.Sprintf("connected: %s %q firmware %s", id.Model, id.Name, id.Firmware)
	if d.USBMode() {
		s += " (usb mode)"
	}
	return s
}

// Close disconnects and releases the USB backend.
func (d *Device) Close() error {
	d.proto.Reset()
	return d.link.Close()
}
