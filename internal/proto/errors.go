package proto

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/bamsammich/psplink/internal/usb"
)

var (
	// ErrNotConnected is returned when a command is issued without a link.
	ErrNotConnected = usb.ErrNotConnected

	// ErrMalformed reports a frame or payload that does not decode.
	ErrMalformed = errors.New("malformed frame")

	// ErrUnsupported reports a command the device does not implement.
	ErrUnsupported = errors.New("unsupported command")

	// ErrFileAlreadyOpen is returned when opening a second file.
	ErrFileAlreadyOpen = errors.New("a file is already open")

	// ErrNoOpenFile is returned by handle operations without an open file.
	ErrNoOpenFile = errors.New("no open file")

	// ErrWrongMode is returned when reading a file opened for writing or
	// the reverse.
	ErrWrongMode = errors.New("file not open in this mode")

	// ErrChunkTooLarge is returned when a chunk exceeds the configured maximum.
	ErrChunkTooLarge = errors.New("chunk exceeds maximum size")
)

// ProtocolError is a failure reported by, or decoding a reply from, the
// device. It is never retried.
type ProtocolError struct {
	Err    error
	Msg    string
	Code   Code
	Status Status
}

func (e *ProtocolError) Error() string {
	switch {
	case e.Msg != "":
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Status, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Status)
	}
}

// Unwrap exposes the cause plus the fs sentinel matching the status, so
// callers can test errors.Is(err, fs.ErrNotExist).
func (e *ProtocolError) Unwrap() []error {
	var errs []error
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	switch e.Status {
	case StatusNotFound:
		errs = append(errs, fs.ErrNotExist)
	case StatusExists:
		errs = append(errs, fs.ErrExist)
	case StatusInvalidArgument:
		errs = append(errs, fs.ErrInvalid)
	case StatusUnsupported:
		errs = append(errs, ErrUnsupported)
	}
	return errs
}

// IsProtocolError reports whether err came from the device or the codec
// rather than the link.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// StatusOf returns the device status carried by err, or StatusOK if err is
// not a ProtocolError.
func StatusOf(err error) Status {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Status
	}
	return StatusOK
}
