package proto

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// HeaderSize is the size of the frame header in bytes:
	// 1 byte command code or status + 4 bytes payload length.
	HeaderSize = 5

	// MaxPayload is the largest payload a frame may carry.
	MaxPayload = 4 * 1024 * 1024 // 4 MB
)

// ErrFrameTooLarge is returned when a payload exceeds MaxPayload.
var ErrFrameTooLarge = errors.New("frame exceeds maximum size")

// Command is one request frame sent to the device.
type Command struct {
	Payload []byte
	Code    Code
}

// Response is one reply frame. N is the number of bytes received for it.
type Response struct {
	Payload []byte
	N       int
	Status  Status
}

// WriteFrame writes a frame to w.
// Wire format: [1-byte code or status][4-byte payload length (little-endian)][payload]
// Header and payload go out in a single Write so each frame is one bulk transfer.
//
//nolint:gosec // G115: payload length bounded by MaxPayload check
func WriteFrame(w io.Writer, kind byte, payload []byte) error {
	buf, err := appendFrame(nil, kind, payload)
	if err != nil {
		return err
	}
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// ReadFrame reads a single frame from r.
func ReadFrame(r io.Reader) (byte, []byte, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, err
	}

	size := binary.LittleEndian.Uint32(header[1:])
	if size > MaxPayload {
		return 0, nil, ErrFrameTooLarge
	}

	var payload []byte
	if size > 0 {
		payload = make([]byte, size)
		if _, err := io.ReadFull(r, payload); err != nil {
			return 0, nil, fmt.Errorf("read frame payload: %w", err)
		}
	}
	return header[0], payload, nil
}

// MarshalBinary encodes the command frame.
func (c Command) MarshalBinary() ([]byte, error) {
	return appendFrame(nil, byte(c.Code), c.Payload)
}

// MarshalBinary encodes the response frame.
func (r Response) MarshalBinary() ([]byte, error) {
	return appendFrame(nil, byte(r.Status), r.Payload)
}

// ParseCommand decodes a complete command frame.
func ParseCommand(b []byte) (Command, error) {
	kind, payload, err := parseFrame(b)
	if err != nil {
		return Command{}, err
	}
	return Command{Code: Code(kind), Payload: payload}, nil
}

// ParseResponse decodes a complete response frame.
func ParseResponse(b []byte) (Response, error) {
	kind, payload, err := parseFrame(b)
	if err != nil {
		return Response{}, err
	}
	return Response{Status: Status(kind), Payload: payload, N: len(b)}, nil
}

// frameLen reports the full length of the frame starting at b, or false if
// b does not yet hold a complete header.
func frameLen(b []byte) (int, bool) {
	if len(b) < HeaderSize {
		return 0, false
	}
	return HeaderSize + int(binary.LittleEndian.Uint32(b[1:HeaderSize])), true
}

func appendFrame(dst []byte, kind byte, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, ErrFrameTooLarge
	}
	dst = append(dst, kind, 0, 0, 0, 0)
	binary.LittleEndian.PutUint32(dst[len(dst)-4:], uint32(len(payload))) //nolint:gosec // bounded above
	return append(dst, payload...), nil
}

func parseFrame(b []byte) (byte, []byte, error) {
	n, ok := frameLen(b)
	if !ok {
		return 0, nil, fmt.Errorf("%w: short header (%d bytes)", ErrMalformed, len(b))
	}
	if n-HeaderSize > MaxPayload {
		return 0, nil, ErrFrameTooLarge
	}
	if len(b) != n {
		return 0, nil, fmt.Errorf("%w: frame declares %d bytes, got %d", ErrMalformed, n, len(b))
	}
	var payload []byte
	if n > HeaderSize {
		payload = b[HeaderSize:n:n]
	}
	return b[0], payload, nil
}
