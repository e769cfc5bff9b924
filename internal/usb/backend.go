package usb

import "context"

// Backend discovers and opens devices. The gousb implementation talks to
// libusb; tests and the simulator provide their own.
type Backend interface {
	// Enumerate returns every attached device matching vendorID/productID.
	// A zero ID matches any value.
	Enumerate(vendorID, productID uint16) ([]Descriptor, error)

	// Open claims the interface described by eps on the device d.
	Open(d Descriptor, eps Endpoints) (Handle, error)

	// Close releases backend resources.
	Close() error
}

// Handle is an open, claimed device. Implementations return errors wrapping
// ErrTimeout, ErrStall, ErrDeviceRemoved or ErrAborted where they apply.
type Handle interface {
	Control(ctx context.Context, rType, request uint8, val, idx uint16, data []byte) (int, error)
	BulkRead(ctx context.Context, buf []byte) (int, error)
	BulkWrite(ctx context.Context, buf []byte) (int, error)

	// ClearHalt clears a stall condition on endpoint ep.
	ClearHalt(ep uint8) error

	Close() error
}
