package engine

import (
	"crypto/rand"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bamsammich/psplink/internal/event"
	"github.com/bamsammich/psplink/internal/proto"
	"github.com/bamsammich/psplink/internal/sim"
	"github.com/bamsammich/psplink/internal/transport"
	"github.com/bamsammich/psplink/internal/usb"
)

// rig is a simulated console attached over a real usb.Transport and
// protocol, plus a host directory for local files.
type rig struct {
	console *sim.Console
	link    *usb.Transport
	proto   *proto.Protocol
	router  *transport.Router
	dir     string
}

func newRig(t *testing.T) *rig {
	t.Helper()

	console, err := sim.New(t.TempDir())
	require.NoError(t, err)
	link := usb.New(usb.DefaultConfig(), console)
	require.NoError(t, link.Connect())
	t.Cleanup(func() { _ = link.Close() })

	p := proto.New(link, proto.Config{
		Logger:     discardLogger(),
		Timeout:    200 * time.Millisecond,
		RetryDelay: time.Millisecond,
		MaxChunk:   64 * 1024,
	})
	return &rig{
		console: console,
		link:    link,
		proto:   p,
		router:  transport.NewRouter(nil, transport.NewDevice(p)),
		dir:     t.TempDir(),
	}
}

// newEngine builds an engine over r with fast retries. mutate may adjust
// the config before construction.
func (r *rig) newEngine(t *testing.T, mutate func(*Config)) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Logger = discardLogger()
	cfg.RetryDelay = 5 * time.Millisecond
	if mutate != nil {
		mutate(&cfg)
	}
	e := New(cfg, r.router)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

// local writes data to name under the rig's host dir and returns its path.
func (r *rig) local(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(r.dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// hostPath maps a device path to the file backing it.
func (r *rig) hostPath(t *testing.T, devicePath string) string {
	t.Helper()
	p, err := r.console.HostPath(devicePath)
	require.NoError(t, err)
	return p
}

// deviceFile returns the content of a file on the console.
func (r *rig) deviceFile(t *testing.T, devicePath string) []byte {
	t.Helper()
	data, err := os.ReadFile(r.hostPath(t, devicePath))
	require.NoError(t, err)
	return data
}

// putDevice places data at devicePath on the console.
func (r *rig) putDevice(t *testing.T, devicePath string, data []byte) {
	t.Helper()
	p := r.hostPath(t, devicePath)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, data, 0o644))
}

func randomData(t *testing.T, n int) []byte {
	t.Helper()
	data := make([]byte, n)
	_, err := rand.Read(data)
	require.NoError(t, err)
	return data
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// collectEvents drains ch into a slice until stop is called.
func collectEvents(ch <-chan event.Event) (stop func() []event.Event) {
	var (
		mu     sync.Mutex
		events []event.Event
		done   = make(chan struct{})
	)
	go func() {
		defer close(done)
		for ev := range ch {
			mu.Lock()
			events = append(events, ev)
			mu.Unlock()
		}
	}()
	return func() []event.Event {
		<-done
		mu.Lock()
		defer mu.Unlock()
		return events
	}
}

func countEvents(events []event.Event, typ event.Type) int {
	n := 0
	for _, ev := range events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}
