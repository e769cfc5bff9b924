package device

import (
	"sort"
	"time"
)

// StatusKind classifies a status change.
type StatusKind int

const (
	StatusConnected StatusKind = iota
	StatusDisconnected
	StatusReconnected
	StatusRemoved
	StatusUSBMode
	StatusLowBattery
)

func (k StatusKind) String() string {
	switch k {
	case StatusConnected:
		return "connected"
	case StatusDisconnected:
		return "disconnected"
	case StatusReconnected:
		return "reconnected"
	case StatusRemoved:
		return "removed"
	case StatusUSBMode:
		return "usb-mode"
	case StatusLowBattery:
		return "low-battery"
	default:
		return "unknown"
	}
}

// StatusEvent describes one status change.
type StatusEvent struct {
	Time    time.Time
	Message string
	Kind    StatusKind
}

// Observer receives status events. A nil Filter accepts everything.
type Observer struct {
	Filter func(StatusEvent) bool
	Handle func(StatusEvent)
}

// Subscribe registers o under name, replacing any observer with that name.
func (d *Device) Subscribe(name string, o Observer) {
	d.obsMu.Lock()
	defer d.obsMu.Unlock()
	d.observers[name] = o
}

// Unsubscribe removes the observer registered under name.
func (d *Device) Unsubscribe(name string) {
	d.obsMu.Lock()
	defer d.obsMu.Unlock()
	delete(d.observers, name)
}

// notify delivers ev to every matching observer, in name order, on the
// calling goroutine.
func (d *Device) notify(kind StatusKind, msg string) {
	ev := StatusEvent{Time: time.Now(), Kind: kind, Message: msg}
	d.log.Debug("device status", "status", kind.String(), "message", msg)

	d.obsMu.Lock()
	names := make([]string, 0, len(d.observers))
	for name := range d.observers {
		names = append(names, name)
	}
	sort.Strings(names)
	obs := make([]Observer, 0, len(names))
	for _, name := range names {
		obs = append(obs, d.observers[name])
	}
	d.obsMu.Unlock()

	for _, o := range obs {
		if o.Handle == nil || (o.Filter != nil && !o.Filter(ev)) {
			continue
		}
		o.Handle(ev)
	}
}
