package usb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// flushTimeout bounds each drain read in FlushPipe.
const flushTimeout = 20 * time.Millisecond

// Transport owns a single open link to one device. All I/O is synchronous
// and bounded by the configured timeout.
type Transport struct {
	backend Backend
	log     *slog.Logger
	cfg     Config
	timeout atomic.Int64

	// mu guards the handle. I/O holds the read lock for its duration so a
	// concurrent Disconnect waits for it to finish or be aborted.
	mu        sync.RWMutex
	handle    Handle
	desc      Descriptor
	connected bool

	abortMu  sync.Mutex
	inflight map[uint8]context.CancelFunc
}

// New creates a disconnected Transport.
func New(cfg Config, backend Backend) *Transport {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Endpoints == (Endpoints{}) {
		cfg.Endpoints = DefaultEndpoints()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	t := &Transport{
		backend:  backend,
		log:      cfg.Logger,
		cfg:      cfg,
		inflight: make(map[uint8]context.CancelFunc),
	}
	t.timeout.Store(int64(cfg.Timeout))
	return t
}

// Enumerate lists every attached device matching the configured IDs.
func (t *Transport) Enumerate() ([]Descriptor, error) {
	descs, err := t.backend.Enumerate(t.cfg.VendorID, t.cfg.ProductID)
	if err != nil {
		return nil, classify("enumerate", err)
	}
	return descs, nil
}

// FindFirst returns the first matching device or ErrDeviceNotFound.
func (t *Transport) FindFirst() (Descriptor, error) {
	descs, err := t.Enumerate()
	if err != nil {
		return Descriptor{}, err
	}
	if len(descs) == 0 {
		return Descriptor{}, &TransportError{
			Op:   "find",
			Kind: KindNotFound,
			Err:  fmt.Errorf("no device %04x:%04x", t.cfg.VendorID, t.cfg.ProductID),
		}
	}
	return descs[0], nil
}

// Connect opens the first device matching the configured IDs.
func (t *Transport) Connect() error {
	d, err := t.FindFirst()
	if err != nil {
		return err
	}
	return t.ConnectDescriptor(d)
}

// ConnectPath opens the matching device whose Path equals path.
func (t *Transport) ConnectPath(path string) error {
	descs, err := t.Enumerate()
	if err != nil {
		return err
	}
	for _, d := range descs {
		if d.Path == path {
			return t.ConnectDescriptor(d)
		}
	}
	return &TransportError{Op: "find", Kind: KindNotFound, Err: fmt.Errorf("no device at %s", path)}
}

// ConnectDescriptor opens d, replacing any current link.
func (t *Transport) ConnectDescriptor(d Descriptor) error {
	t.abortAll()

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.connected {
		_ = t.closeLocked()
	}

	eps := t.cfg.Endpoints
	if d.InterfaceNumber != 0 {
		eps.Interface = d.InterfaceNumber
	}
	h, err := t.backend.Open(d, eps)
	if err != nil {
		return classify("open", err)
	}

	t.handle = h
	t.desc = d
	t.connected = true
	t.log.Debug("usb connected", "device", d.String(), "product", d.Product, "serial", d.Serial)
	return nil
}

// Disconnect releases the link. Calling it while disconnected is a no-op.
func (t *Transport) Disconnect() error {
	t.abortAll()

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected {
		return nil
	}
	return t.closeLocked()
}

func (t *Transport) closeLocked() error {
	err := t.handle.Close()
	t.log.Debug("usb disconnected", "device", t.desc.String())
	t.handle = nil
	t.connected = false
	if err != nil {
		return fmt.Errorf("close device: %w", err)
	}
	return nil
}

// IsConnected reports whether a link is open.
func (t *Transport) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected
}

// Descriptor returns the descriptor of the connected device.
func (t *Transport) Descriptor() Descriptor {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.desc
}

// Endpoints returns the configured pipe layout.
func (t *Transport) Endpoints() Endpoints {
	return t.cfg.Endpoints
}

// SetTimeout changes the per-operation I/O timeout.
func (t *Transport) SetTimeout(d time.Duration) {
	if d > 0 {
		t.timeout.Store(int64(d))
	}
}

// Timeout returns the per-operation I/O timeout.
func (t *Transport) Timeout() time.Duration {
	return time.Duration(t.timeout.Load())
}

// ControlTransfer performs a control transfer on the default pipe.
func (t *Transport) ControlTransfer(
	ctx context.Context,
	rType, request uint8,
	val, idx uint16,
	data []byte,
) (int, error) {
	return t.do(ctx, "control", 0, func(ctx context.Context, h Handle) (int, error) {
		return h.Control(ctx, rType, request, val, idx, data)
	})
}

// BulkRead reads up to len(buf) bytes from the bulk IN endpoint.
func (t *Transport) BulkRead(ctx context.Context, buf []byte) (int, error) {
	return t.do(ctx, "bulk read", t.cfg.Endpoints.In, func(ctx context.Context, h Handle) (int, error) {
		return h.BulkRead(ctx, buf)
	})
}

// BulkWrite writes buf to the bulk OUT endpoint.
func (t *Transport) BulkWrite(ctx context.Context, buf []byte) (int, error) {
	return t.do(ctx, "bulk write", t.cfg.Endpoints.Out, func(ctx context.Context, h Handle) (int, error) {
		return h.BulkWrite(ctx, buf)
	})
}

// ResetPipe clears a stall on ep without tearing down the link.
func (t *Transport) ResetPipe(ep uint8) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if !t.connected {
		return ErrNotConnected
	}
	if err := t.handle.ClearHalt(ep); err != nil {
		return classify("reset pipe", err)
	}
	t.log.Debug("usb pipe reset", "endpoint", fmt.Sprintf("0x%02x", ep))
	return nil
}

// AbortPipe cancels the transfer in flight on ep, if any.
func (t *Transport) AbortPipe(ep uint8) {
	t.abortMu.Lock()
	defer t.abortMu.Unlock()
	if cancel, ok := t.inflight[ep]; ok {
		cancel()
		delete(t.inflight, ep)
	}
}

// FlushPipe discards data left pending on an IN endpoint, for example a late
// response to a command that already timed out. OUT endpoints have nothing
// to flush.
func (t *Transport) FlushPipe(ep uint8) error {
	if ep&0x80 == 0 {
		return nil
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	if !t.connected {
		return ErrNotConnected
	}

	size := t.cfg.Endpoints.MaxPacketSize
	if size <= 0 {
		size = 512
	}
	buf := make([]byte, size)
	for range 64 {
		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		n, err := t.handle.BulkRead(ctx, buf)
		cancel()
		if err != nil {
			te := classify("flush pipe", err)
			if te.Kind == KindTimeout || te.Kind == KindAborted {
				return nil
			}
			return te
		}
		if n == 0 {
			return nil
		}
	}
	return nil
}

func (t *Transport) do(
	ctx context.Context,
	op string,
	ep uint8,
	fn func(context.Context, Handle) (int, error),
) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, t.Timeout())
	defer cancel()

	n, err := t.run(ctx, ep, cancel, fn)
	if err == nil {
		return n, nil
	}
	if errors.Is(err, ErrNotConnected) {
		return n, err
	}

	te := classify(op, err)
	if te.Kind == KindRemoved {
		t.dropRemoved()
	}
	return n, te
}

func (t *Transport) run(
	ctx context.Context,
	ep uint8,
	cancel context.CancelFunc,
	fn func(context.Context, Handle) (int, error),
) (int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if !t.connected {
		return 0, ErrNotConnected
	}

	t.abortMu.Lock()
	t.inflight[ep] = cancel
	t.abortMu.Unlock()
	defer func() {
		t.abortMu.Lock()
		delete(t.inflight, ep)
		t.abortMu.Unlock()
	}()

	return fn(ctx, t.handle)
}

// dropRemoved marks the link closed after the device disappeared.
func (t *Transport) dropRemoved() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return
	}
	t.log.Warn("usb device removed", "device", t.desc.String())
	_ = t.closeLocked()
}

func (t *Transport) abortAll() {
	t.abortMu.Lock()
	defer t.abortMu.Unlock()
	for ep, cancel := range t.inflight {
		cancel()
		delete(t.inflight, ep)
	}
}

// Close disconnects and releases the backend.
func (t *Transport) Close() error {
	err := t.Disconnect()
	if berr := t.backend.Close(); berr != nil && err == nil {
		err = fmt.Errorf("close backend: %w", berr)
	}
	return err
}
