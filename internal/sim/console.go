// Package sim provides a simulated console that speaks the device protocol
// over an in-memory USB backend. Storage is a host directory with one
// subdirectory per drive (ms0, ef0, ...).
package sim

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bamsammich/psplink/internal/proto"
	"github.com/bamsammich/psplink/internal/usb"
)

// DefaultCapacity is the reported size of each simulated drive.
const DefaultCapacity uint64 = 8 << 30 // 8 GB

// Console is a simulated handheld. It implements usb.Backend.
type Console struct {
	log  *slog.Logger
	root string

	mu        sync.Mutex
	info      proto.DeviceInfo
	battery   proto.BatteryInfo
	desc      usb.Descriptor
	capacity  uint64
	enforce   bool
	latency   time.Duration
	plugged   bool
	bulkMode  bool
	faults    []*Fault
	received  []proto.Code
	halts     int
	onCommand func(proto.Code)
}

// Option configures a Console.
type Option func(*Console)

// WithInfo sets the identity returned by DeviceInfo.
func WithInfo(info proto.DeviceInfo) Option {
	return func(c *Console) { c.info = info }
}

// WithProductID sets the USB product ID, which selects the model.
func WithProductID(pid uint16) Option {
	return func(c *Console) { c.desc.ProductID = pid }
}

// WithCapacity sets each drive's size and rejects writes that exceed it.
func WithCapacity(bytes uint64) Option {
	return func(c *Console) {
		c.capacity = bytes
		c.enforce = true
	}
}

// WithLatency delays every command by d.
func WithLatency(d time.Duration) Option {
	return func(c *Console) { c.latency = d }
}

// WithLogger sets the logger for command tracing.
func WithLogger(l *slog.Logger) Option {
	return func(c *Console) { c.log = l }
}

// New creates a plugged-in console backed by root. The ms0 drive is created
// if missing.
func New(root string, opts ...Option) (*Console, error) {
	if err := os.MkdirAll(filepath.Join(root, "ms0"), 0o755); err != nil {
		return nil, fmt.Errorf("creating memory stick: %w", err)
	}
	c := &Console{
		log:  slog.Default(),
		root: root,
		info: proto.DeviceInfo{
			Name:     "PSP",
			Firmware: "6.61",
			Serial:   "SIM0000001",
			Region:   "Europe",
		},
		battery: proto.BatteryInfo{Level: 80, Minutes: 240},
		desc: usb.Descriptor{
			Path:         "1-1",
			Manufacturer: "Sony",
			Product:      "PSP Type B",
			USBVersion:   "2.00",
			Bus:          1,
			Address:      4,
			VendorID:     usb.SonyVendorID,
			ProductID:    usb.BulkModeProductID,
		},
		capacity: DefaultCapacity,
		plugged:  true,
	}
	for _, o := range opts {
		o(c)
	}
	c.desc.Serial = c.info.Serial
	return c, nil
}

// Root returns the host directory backing the console.
func (c *Console) Root() string { return c.root }

// HostPath maps a device path to its backing host path.
func (c *Console) HostPath(devicePath string) (string, error) {
	return c.resolve(devicePath)
}

// Enumerate implements usb.Backend. Zero IDs match anything.
func (c *Console) Enumerate(vid, pid uint16) ([]usb.Descriptor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.plugged {
		return nil, nil
	}
	if (vid != 0 && vid != c.desc.VendorID) || (pid != 0 && pid != c.desc.ProductID) {
		return nil, nil
	}
	return []usb.Descriptor{c.desc}, nil
}

// Open implements usb.Backend.
func (c *Console) Open(d usb.Descriptor, _ usb.Endpoints) (usb.Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.plugged || d.Path != c.desc.Path {
		return nil, fmt.Errorf("%w: %s", usb.ErrDeviceNotFound, d.Path)
	}
	return &handle{c: c}, nil
}

// Close implements usb.Backend.
func (c *Console) Close() error { return nil }

// Unplug simulates removing the cable. Open handles fail with
// usb.ErrDeviceRemoved.
func (c *Console) Unplug() {
	c.mu.Lock()
	c.plugged = false
	c.mu.Unlock()
}

// Plug reattaches the console.
func (c *Console) Plug() {
	c.mu.Lock()
	c.plugged = true
	c.mu.Unlock()
}

// SetBattery changes the reported battery state.
func (c *Console) SetBattery(b proto.BatteryInfo) {
	c.mu.Lock()
	c.battery = b
	c.mu.Unlock()
}

// BulkMode reports whether the console was switched into bulk mode.
func (c *Console) BulkMode() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bulkMode
}

// OnCommand registers fn to run before each command executes.
func (c *Console) OnCommand(fn func(proto.Code)) {
	c.mu.Lock()
	c.onCommand = fn
	c.mu.Unlock()
}

// Commands returns the codes received so far, in order.
func (c *Console) Commands() []proto.Code {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]proto.Code, len(c.received))
	copy(out, c.received)
	return out
}

// Count returns how many commands with code were received.
func (c *Console) Count(code proto.Code) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, r := range c.received {
		if r == code {
			n++
		}
	}
	return n
}

// ClearedHalts returns how many endpoint halts were cleared.
func (c *Console) ClearedHalts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.halts
}

// handle is one open link to the console.
type handle struct {
	c *Console

	mu     sync.Mutex
	in     []byte // queued IN-pipe data
	ctrl   []byte // pending control reply
	closed bool
}

func (h *handle) check() error {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return usb.ErrNotConnected
	}

	h.c.mu.Lock()
	defer h.c.mu.Unlock()
	if !h.c.plugged {
		return usb.ErrDeviceRemoved
	}
	return nil
}

func (h *handle) BulkWrite(ctx context.Context, buf []byte) (int, error) {
	if err := h.check(); err != nil {
		return 0, err
	}
	cmd, err := proto.ParseCommand(buf)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", usb.ErrStall, err)
	}

	resp, reply, err := h.c.handle(ctx, cmd)
	if err != nil {
		return 0, err
	}
	if reply {
		frame, err := resp.MarshalBinary()
		if err != nil {
			return 0, err
		}
		h.mu.Lock()
		h.in = append(h.in, frame...)
		h.mu.Unlock()
	}
	return len(buf), nil
}

func (h *handle) BulkRead(ctx context.Context, buf []byte) (int, error) {
	if err := h.check(); err != nil {
		return 0, err
	}

	h.mu.Lock()
	if len(h.in) > 0 {
		n := copy(buf, h.in)
		h.in = h.in[n:]
		h.mu.Unlock()
		return n, nil
	}
	h.mu.Unlock()

	// Nothing queued: a real device leaves the transfer pending until the
	// host gives up.
	<-ctx.Done()
	return 0, ctx.Err()
}

func (h *handle) Control(ctx context.Context, rType, _ uint8, _, _ uint16, data []byte) (int, error) {
	if err := h.check(); err != nil {
		return 0, err
	}

	if rType&0x80 != 0 {
		h.mu.Lock()
		defer h.mu.Unlock()
		n := copy(data, h.ctrl)
		h.ctrl = nil
		return n, nil
	}

	cmd, err := proto.ParseCommand(data)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", usb.ErrStall, err)
	}
	resp, reply, err := h.c.handle(ctx, cmd)
	if err != nil {
		return 0, err
	}
	if reply {
		frame, err := resp.MarshalBinary()
		if err != nil {
			return 0, err
		}
		h.mu.Lock()
		h.ctrl = frame
		h.mu.Unlock()
	}
	return len(data), nil
}

func (h *handle) ClearHalt(uint8) error {
	if err := h.check(); err != nil {
		return err
	}
	h.c.mu.Lock()
	h.c.halts++
	h.c.mu.Unlock()
	return nil
}

func (h *handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.in = nil
	h.ctrl = nil
	return nil
}

// handle runs one command. reply is false when a fault swallowed the
// response.
func (c *Console) handle(ctx context.Context, cmd proto.Command) (proto.Response, bool, error) {
	c.mu.Lock()
	c.received = append(c.received, cmd.Code)
	hook := c.onCommand
	latency := c.latency
	f := c.takeFault(cmd.Code)
	c.mu.Unlock()

	if hook != nil {
		hook(cmd.Code)
	}

	if f != nil {
		switch f.Kind {
		case FailStall:
			return proto.Response{}, false, usb.ErrStall
		case FailTimeout:
			return proto.Response{}, false, usb.ErrTimeout
		case FailIO:
			return proto.Response{}, false, fmt.Errorf("simulated i/o error on %s", cmd.Code)
		case FailRemove:
			c.Unplug()
			return proto.Response{}, false, usb.ErrDeviceRemoved
		case FailStatus:
			return proto.Failure(f.Status, "simulated failure"), true, nil
		}
	}

	if latency > 0 {
		t := time.NewTimer(latency)
		select {
		case <-ctx.Done():
			t.Stop()
			return proto.Response{}, false, ctx.Err()
		case <-t.C:
		}
	}

	resp := c.exec(cmd)
	c.log.Debug("sim command", "command", cmd.Code.String(), "status", resp.Status.String())

	if f != nil && f.Kind == DropReply {
		return resp, false, nil
	}
	return resp, true, nil
}
