package usb

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	descs   []Descriptor
	opened  []Descriptor
	handle  *fakeHandle
	openErr error
}

func (b *fakeBackend) Enumerate(vendorID, productID uint16) ([]Descriptor, error) {
	var out []Descriptor
	for _, d := range b.descs {
		if (vendorID == 0 || d.VendorID == vendorID) && (productID == 0 || d.ProductID == productID) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (b *fakeBackend) Open(d Descriptor, _ Endpoints) (Handle, error) {
	if b.openErr != nil {
		return nil, b.openErr
	}
	b.opened = append(b.opened, d)
	if b.handle == nil {
		b.handle = &fakeHandle{}
	}
	return b.handle, nil
}

func (b *fakeBackend) Close() error { return nil }

type fakeHandle struct {
	mu       sync.Mutex
	readErr  error
	writeErr error
	pending  [][]byte
	cleared  []uint8
	closed   int
	block    bool
}

func (h *fakeHandle) Control(_ context.Context, _, _ uint8, _, _ uint16, data []byte) (int, error) {
	return len(data), nil
}

func (h *fakeHandle) BulkRead(ctx context.Context, buf []byte) (int, error) {
	h.mu.Lock()
	if h.block {
		h.mu.Unlock()
		<-ctx.Done()
		return 0, ctx.Err()
	}
	defer h.mu.Unlock()
	if h.readErr != nil {
		return 0, h.readErr
	}
	if len(h.pending) == 0 {
		return 0, ErrTimeout
	}
	n := copy(buf, h.pending[0])
	h.pending = h.pending[1:]
	return n, nil
}

func (h *fakeHandle) BulkWrite(_ context.Context, buf []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.writeErr != nil {
		return 0, h.writeErr
	}
	return len(buf), nil
}

func (h *fakeHandle) ClearHalt(ep uint8) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cleared = append(h.cleared, ep)
	return nil
}

func (h *fakeHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed++
	return nil
}

func testDescs() []Descriptor {
	return []Descriptor{
		{Path: "1-1", VendorID: 0x1234, ProductID: 0x0001},
		{Path: "1-2", VendorID: SonyVendorID, ProductID: BulkModeProductID, Product: "PSP Type B"},
		{Path: "1-3", VendorID: SonyVendorID, ProductID: BulkModeProductID, Product: "PSP Type B"},
	}
}

func TestTransport_EnumerateAndFindFirst(t *testing.T) {
	tr := New(DefaultConfig(), &fakeBackend{descs: testDescs()})

	descs, err := tr.Enumerate()
	require.NoError(t, err)
	require.Len(t, descs, 2)

	first, err := tr.FindFirst()
	require.NoError(t, err)
	assert.Equal(t, "1-2", first.Path)
}

func TestTransport_FindFirstNotFound(t *testing.T) {
	tr := New(DefaultConfig(), &fakeBackend{})

	_, err := tr.FindFirst()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeviceNotFound)
	assert.True(t, IsTransportError(err))
}

func TestTransport_ConnectDisconnect(t *testing.T) {
	b := &fakeBackend{descs: testDescs()}
	tr := New(DefaultConfig(), b)

	assert.False(t, tr.IsConnected())
	require.NoError(t, tr.Connect())
	assert.True(t, tr.IsConnected())
	assert.Equal(t, "1-2", tr.Descriptor().Path)

	require.NoError(t, tr.Disconnect())
	assert.False(t, tr.IsConnected())
	assert.Equal(t, 1, b.handle.closed)

	// Idempotent.
	require.NoError(t, tr.Disconnect())
	assert.Equal(t, 1, b.handle.closed)
}

func TestTransport_ConnectPath(t *testing.T) {
	b := &fakeBackend{descs: testDescs()}
	tr := New(DefaultConfig(), b)

	require.NoError(t, tr.ConnectPath("1-3"))
	assert.Equal(t, "1-3", tr.Descriptor().Path)

	err := tr.ConnectPath("9-9")
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestTransport_NotConnectedFailsFast(t *testing.T) {
	tr := New(DefaultConfig(), &fakeBackend{})
	buf := make([]byte, 8)

	_, err := tr.BulkRead(context.Background(), buf)
	assert.ErrorIs(t, err, ErrNotConnected)

	_, err = tr.BulkWrite(context.Background(), buf)
	assert.ErrorIs(t, err, ErrNotConnected)

	_, err = tr.ControlTransfer(context.Background(), 0x40, 0x01, 0, 0, buf)
	assert.ErrorIs(t, err, ErrNotConnected)

	assert.ErrorIs(t, tr.ResetPipe(0x81), ErrNotConnected)
}

func TestTransport_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		kind      Kind
		transient bool
	}{
		{"timeout", ErrTimeout, KindTimeout, true},
		{"deadline", context.DeadlineExceeded, KindTimeout, true},
		{"stall", ErrStall, KindStall, true},
		{"removed", ErrDeviceRemoved, KindRemoved, false},
		{"other", errors.New("boom"), KindIO, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &fakeBackend{descs: testDescs(), handle: &fakeHandle{readErr: tt.err}}
			tr := New(DefaultConfig(), b)
			require.NoError(t, tr.Connect())

			_, err := tr.BulkRead(context.Background(), make([]byte, 4))
			require.Error(t, err)

			var te *TransportError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, tt.kind, te.Kind)
			assert.Equal(t, "bulk read", te.Op)
			assert.Equal(t, tt.transient, te.Transient())
		})
	}
}

func TestTransport_RemovedDeviceDisconnects(t *testing.T) {
	b := &fakeBackend{descs: testDescs(), handle: &fakeHandle{writeErr: ErrDeviceRemoved}}
	tr := New(DefaultConfig(), b)
	require.NoError(t, tr.Connect())

	_, err := tr.BulkWrite(context.Background(), []byte{1})
	assert.ErrorIs(t, err, ErrDeviceRemoved)
	assert.False(t, tr.IsConnected())

	// Nothing left to retry against.
	_, err = tr.BulkWrite(context.Background(), []byte{1})
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.False(t, (&TransportError{Kind: KindNotFound}).Transient())
}

func TestTransport_TimeoutBoundsIO(t *testing.T) {
	b := &fakeBackend{descs: testDescs(), handle: &fakeHandle{block: true}}
	cfg := DefaultConfig()
	cfg.Timeout = 30 * time.Millisecond
	tr := New(cfg, b)
	require.NoError(t, tr.Connect())

	start := time.Now()
	_, err := tr.BulkRead(context.Background(), make([]byte, 4))
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestTransport_AbortPipe(t *testing.T) {
	b := &fakeBackend{descs: testDescs(), handle: &fakeHandle{block: true}}
	cfg := DefaultConfig()
	cfg.Timeout = 10 * time.Second
	tr := New(cfg, b)
	require.NoError(t, tr.Connect())

	done := make(chan error, 1)
	go func() {
		_, err := tr.BulkRead(context.Background(), make([]byte, 4))
		done <- err
	}()

	require.Eventually(t, func() bool {
		tr.abortMu.Lock()
		defer tr.abortMu.Unlock()
		_, ok := tr.inflight[cfg.Endpoints.In]
		return ok
	}, time.Second, 5*time.Millisecond)

	tr.AbortPipe(cfg.Endpoints.In)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrAborted)
	case <-time.After(2 * time.Second):
		t.Fatal("abort did not interrupt the read")
	}
}

func TestTransport_ResetAndFlushPipe(t *testing.T) {
	h := &fakeHandle{pending: [][]byte{{1, 2, 3}, {4}}}
	b := &fakeBackend{descs: testDescs(), handle: h}
	tr := New(DefaultConfig(), b)
	require.NoError(t, tr.Connect())

	require.NoError(t, tr.ResetPipe(0x81))
	assert.Equal(t, []uint8{0x81}, h.cleared)

	require.NoError(t, tr.FlushPipe(0x81))
	assert.Empty(t, h.pending)

	// OUT endpoints have nothing to drain.
	require.NoError(t, tr.FlushPipe(0x02))
}
