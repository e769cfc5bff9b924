package usb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/gousb"
)

const (
	requestClearFeature = 0x01
	featureEndpointHalt = 0x00
	recipientEndpoint   = 0x02
)

// GoUSB is the libusb-backed Backend.
type GoUSB struct {
	ctx *gousb.Context
}

// NewGoUSB creates a libusb context.
func NewGoUSB() *GoUSB {
	ctx := gousb.NewContext()
	ctx.Debug(0)
	return &GoUSB{ctx: ctx}
}

func (g *GoUSB) Enumerate(vendorID, productID uint16) ([]Descriptor, error) {
	devs, err := g.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return matches(desc, vendorID, productID)
	})
	defer closeDevices(devs)

	// OpenDevices reports devices it could not open alongside the ones it
	// could; only fail when nothing usable came back.
	if err != nil && len(devs) == 0 {
		return nil, mapError(err)
	}

	descs := make([]Descriptor, 0, len(devs))
	for _, dev := range devs {
		descs = append(descs, describe(dev))
	}
	return descs, nil
}

func (g *GoUSB) Open(d Descriptor, eps Endpoints) (Handle, error) {
	devs, err := g.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Bus == d.Bus && desc.Address == d.Address
	})
	if err != nil && len(devs) == 0 {
		return nil, mapError(err)
	}
	if len(devs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, d)
	}
	dev := devs[0]
	closeDevices(devs[1:])

	if err := dev.SetAutoDetach(true); err != nil {
		dev.Close()
		return nil, fmt.Errorf("set auto detach: %w", mapError(err))
	}

	cfg, err := dev.Config(eps.Config)
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("get config %d: %w", eps.Config, mapError(err))
	}

	intf, err := cfg.Interface(eps.Interface, eps.AltSetting)
	if err != nil {
		cfg.Close()
		dev.Close()
		return nil, fmt.Errorf("claim interface %d: %w", eps.Interface, mapError(err))
	}

	in, err := intf.InEndpoint(int(eps.In & 0x0f))
	if err != nil {
		intf.Close()
		cfg.Close()
		dev.Close()
		return nil, fmt.Errorf("get IN endpoint 0x%02x: %w", eps.In, mapError(err))
	}

	out, err := intf.OutEndpoint(int(eps.Out & 0x0f))
	if err != nil {
		intf.Close()
		cfg.Close()
		dev.Close()
		return nil, fmt.Errorf("get OUT endpoint 0x%02x: %w", eps.Out, mapError(err))
	}

	return &goHandle{dev: dev, cfg: cfg, intf: intf, in: in, out: out}, nil
}

func (g *GoUSB) Close() error {
	return g.ctx.Close()
}

type goHandle struct {
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface
	in   *gousb.InEndpoint
	out  *gousb.OutEndpoint

	// ctrlMu serializes ControlTimeout updates with the transfer using them.
	ctrlMu sync.Mutex
}

func (h *goHandle) Control(
	ctx context.Context,
	rType, request uint8,
	val, idx uint16,
	data []byte,
) (int, error) {
	h.ctrlMu.Lock()
	defer h.ctrlMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		h.dev.ControlTimeout = max(time.Until(deadline), time.Millisecond)
	}
	n, err := h.dev.Control(rType, request, val, idx, data)
	return n, mapError(err)
}

func (h *goHandle) BulkRead(ctx context.Context, buf []byte) (int, error) {
	n, err := h.in.ReadContext(ctx, buf)
	return n, mapError(err)
}

func (h *goHandle) BulkWrite(ctx context.Context, buf []byte) (int, error) {
	n, err := h.out.WriteContext(ctx, buf)
	return n, mapError(err)
}

func (h *goHandle) ClearHalt(ep uint8) error {
	h.ctrlMu.Lock()
	defer h.ctrlMu.Unlock()
	_, err := h.dev.Control(recipientEndpoint, requestClearFeature, featureEndpointHalt, uint16(ep), nil)
	return mapError(err)
}

func (h *goHandle) Close() error {
	h.intf.Close()
	var errs []error
	if err := h.cfg.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := h.dev.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func matches(desc *gousb.DeviceDesc, vendorID, productID uint16) bool {
	if vendorID != 0 && desc.Vendor != gousb.ID(vendorID) {
		return false
	}
	if productID != 0 && desc.Product != gousb.ID(productID) {
		return false
	}
	return true
}

func describe(dev *gousb.Device) Descriptor {
	desc := dev.Desc
	d := Descriptor{
		Path:       devicePath(desc),
		USBVersion: desc.Spec.String(),
		Bus:        desc.Bus,
		Address:    desc.Address,
		VendorID:   uint16(desc.Vendor),
		ProductID:  uint16(desc.Product),
	}
	// String descriptors are optional; a device without them is still usable.
	d.Manufacturer, _ = dev.Manufacturer()
	d.Product, _ = dev.Product()
	d.Serial, _ = dev.SerialNumber()
	return d
}

// devicePath renders the sysfs-style location, e.g. "1-2.4".
func devicePath(desc *gousb.DeviceDesc) string {
	if len(desc.Path) == 0 {
		return fmt.Sprintf("%d-%d", desc.Bus, desc.Port)
	}
	ports := make([]string, len(desc.Path))
	for i, p := range desc.Path {
		ports[i] = strconv.Itoa(p)
	}
	return fmt.Sprintf("%d-%s", desc.Bus, strings.Join(ports, "."))
}

func closeDevices(devs []*gousb.Device) {
	for _, d := range devs {
		d.Close()
	}
}

// mapError translates libusb statuses into the package sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var status gousb.TransferStatus
	if errors.As(err, &status) {
		switch status {
		case gousb.TransferTimedOut:
			return fmt.Errorf("%w: %w", ErrTimeout, err)
		case gousb.TransferStall:
			return fmt.Errorf("%w: %w", ErrStall, err)
		case gousb.TransferNoDevice:
			return fmt.Errorf("%w: %w", ErrDeviceRemoved, err)
		case gousb.TransferCancelled:
			return fmt.Errorf("%w: %w", ErrAborted, err)
		}
		return err
	}

	var uerr gousb.Error
	if errors.As(err, &uerr) {
		switch uerr {
		case gousb.ErrorTimeout:
			return fmt.Errorf("%w: %w", ErrTimeout, err)
		case gousb.ErrorPipe:
			return fmt.Errorf("%w: %w", ErrStall, err)
		case gousb.ErrorNoDevice:
			return fmt.Errorf("%w: %w", ErrDeviceRemoved, err)
		case gousb.ErrorNotFound:
			return fmt.Errorf("%w: %w", ErrDeviceNotFound, err)
		case gousb.ErrorInterrupted:
			return fmt.Errorf("%w: %w", ErrAborted, err)
		}
	}
	return err
}
