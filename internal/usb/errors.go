package usb

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a transport failure.
type Kind int

const (
	KindIO Kind = iota
	KindNotFound
	KindTimeout
	KindStall
	KindRemoved
	KindAborted
)

var kindNames = [...]string{
	KindIO:       "io",
	KindNotFound: "not found",
	KindTimeout:  "timeout",
	KindStall:    "stall",
	KindRemoved:  "removed",
	KindAborted:  "aborted",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

var (
	// ErrNotConnected is returned by every I/O call made without an open link.
	ErrNotConnected = errors.New("usb: not connected")

	ErrDeviceNotFound = errors.New("usb: device not found")
	ErrTimeout        = errors.New("usb: timeout")
	ErrStall          = errors.New("usb: endpoint stalled")
	ErrDeviceRemoved  = errors.New("usb: device removed")
	ErrAborted        = errors.New("usb: transfer aborted")
)

func (k Kind) sentinel() error {
	switch k {
	case KindNotFound:
		return ErrDeviceNotFound
	case KindTimeout:
		return ErrTimeout
	case KindStall:
		return ErrStall
	case KindRemoved:
		return ErrDeviceRemoved
	case KindAborted:
		return ErrAborted
	default:
		return nil
	}
}

// TransportError is a failed USB operation. It matches both its kind's
// sentinel and the underlying cause with errors.Is.
type TransportError struct {
	Err  error
	Op   string
	Kind Kind
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("usb %s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *TransportError) Unwrap() []error {
	if s := e.Kind.sentinel(); s != nil && !errors.Is(e.Err, s) {
		return []error{s, e.Err}
	}
	return []error{e.Err}
}

// Transient reports whether retrying the operation may succeed. A removed
// or missing device is not transient: the link is already down.
func (e *TransportError) Transient() bool {
	switch e.Kind {
	case KindTimeout, KindStall, KindIO:
		return true
	default:
		return false
	}
}

// IsTransportError reports whether err carries a *TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// classify wraps a raw backend error into a TransportError.
func classify(op string, err error) *TransportError {
	var te *TransportError
	if errors.As(err, &te) {
		return te
	}

	kind := KindIO
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrTimeout):
		kind = KindTimeout
	case errors.Is(err, context.Canceled), errors.Is(err, ErrAborted):
		kind = KindAborted
	case errors.Is(err, ErrStall):
		kind = KindStall
	case errors.Is(err, ErrDeviceRemoved):
		kind = KindRemoved
	case errors.Is(err, ErrDeviceNotFound):
		kind = KindNotFound
	}
	return &TransportError{Op: op, Kind: kind, Err: err}
}
