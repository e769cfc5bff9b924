package proto

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bamsammich/psplink/internal/usb"
)

// Vendor control transfer parameters used when administrative commands
// travel over the default pipe.
const (
	controlOut uint8 = 0x40 // host-to-device, vendor, device
	controlIn  uint8 = 0xC0 // device-to-host, vendor, device

	controlReplySize = 512

	// minReadSize is the smallest response buffer; listings may exceed a
	// small MaxChunk.
	minReadSize = 64 * 1024
)

// Defaults for Config.
const (
	DefaultTimeout    = 5 * time.Second
	DefaultAttempts   = 3
	DefaultRetryDelay = 200 * time.Millisecond
	DefaultMaxChunk   = 1024 * 1024 // 1 MB
)

// Link is the transport a Protocol drives. *usb.Transport implements it.
type Link interface {
	IsConnected() bool
	Endpoints() usb.Endpoints
	BulkRead(ctx context.Context, buf []byte) (int, error)
	BulkWrite(ctx context.Context, buf []byte) (int, error)
	ControlTransfer(ctx context.Context, rType, request uint8, val, idx uint16, data []byte) (int, error)
	ResetPipe(ep uint8) error
	FlushPipe(ep uint8) error
}

// Config controls command execution.
type Config struct {
	Logger *slog.Logger

	// Timeout bounds one command round trip.
	Timeout time.Duration

	// Attempts is the total number of tries for a command that fails with a
	// transient transport error.
	Attempts int

	// RetryDelay is the pause between attempts.
	RetryDelay time.Duration

	// MaxChunk bounds the data carried by one read or write chunk.
	MaxChunk int

	// ControlAdmin sends administrative commands over vendor control
	// transfers instead of the bulk pipes.
	ControlAdmin bool
}

// DefaultConfig returns the default command settings.
func DefaultConfig() Config {
	return Config{
		Timeout:    DefaultTimeout,
		Attempts:   DefaultAttempts,
		RetryDelay: DefaultRetryDelay,
		MaxChunk:   DefaultMaxChunk,
	}
}

// Protocol speaks the device command protocol over a Link. Commands are
// strictly request/response and serialized.
type Protocol struct {
	link Link
	log  *slog.Logger
	cfg  Config

	mu  sync.Mutex // one command in flight
	seq atomic.Uint32

	bulkMode atomic.Bool

	fileMu sync.Mutex
	file   *OpenFile
}

// New creates a Protocol over link.
func New(link Link, cfg Config) *Protocol {
	def := DefaultConfig()
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = def.Attempts
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	if cfg.MaxChunk <= 0 || cfg.MaxChunk > MaxPayload-1024 {
		cfg.MaxChunk = def.MaxChunk
	}
	return &Protocol{link: link, log: cfg.Logger, cfg: cfg}
}

// MaxChunk returns the largest chunk a single read or write may carry.
func (p *Protocol) MaxChunk() int { return p.cfg.MaxChunk }

// IsConnected reports whether the underlying link is open.
func (p *Protocol) IsConnected() bool { return p.link.IsConnected() }

// Exec sends req and decodes a successful reply into reply (which may be nil
// for commands without a payload). Transient transport errors are retried
// with pipe recovery; device status errors and decode failures are not.
func (p *Protocol) Exec(ctx context.Context, req Request, reply Reply) error {
	if !p.link.IsConnected() {
		return fmt.Errorf("%s: %w", req.Code(), ErrNotConnected)
	}

	cmd, err := EncodeRequest(req)
	if err != nil {
		return err
	}
	frame, err := cmd.MarshalBinary()
	if err != nil {
		return fmt.Errorf("%s: %w", cmd.Code, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= p.cfg.Attempts; attempt++ {
		var resp Response
		resp, lastErr = p.roundTrip(ctx, cmd.Code, frame)
		if lastErr == nil {
			return decodeResponse(cmd.Code, resp, reply)
		}
		if !retryable(lastErr) || attempt == p.cfg.Attempts || ctx.Err() != nil {
			break
		}

		p.log.Debug("command retry",
			"command", cmd.Code.String(),
			"attempt", attempt,
			"error", lastErr,
		)
		p.recoverPipes(lastErr)

		if err := sleepCtx(ctx, p.cfg.RetryDelay); err != nil {
			break
		}
	}
	return fmt.Errorf("%s: %w", cmd.Code, lastErr)
}

func (p *Protocol) roundTrip(ctx context.Context, code Code, frame []byte) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	if p.cfg.ControlAdmin && code.Admin() {
		return p.controlRoundTrip(ctx, code, frame)
	}

	for off := 0; off < len(frame); {
		n, err := p.link.BulkWrite(ctx, frame[off:])
		if err != nil {
			return Response{}, err
		}
		if n == 0 {
			return Response{}, &usb.TransportError{Op: "bulk write", Kind: usb.KindIO, Err: errors.New("zero-length write")}
		}
		off += n
	}
	return p.readResponse(ctx, code)
}

// readResponse collects one response frame, which may span several bulk reads.
func (p *Protocol) readResponse(ctx context.Context, code Code) (Response, error) {
	buf := make([]byte, max(p.cfg.MaxChunk, minReadSize)+HeaderSize)
	got := 0
	for {
		n, err := p.link.BulkRead(ctx, buf[got:])
		if err != nil {
			return Response{}, err
		}
		got += n

		if want, ok := frameLen(buf[:got]); ok {
			if want > HeaderSize+MaxPayload {
				return Response{}, &ProtocolError{Code: code, Err: fmt.Errorf("%w: response of %d bytes", ErrFrameTooLarge, want)}
			}
			if want > len(buf) {
				buf = append(buf, make([]byte, want-len(buf))...)
			}
			if got >= want {
				resp, err := ParseResponse(buf[:want])
				if err != nil {
					return Response{}, &ProtocolError{Code: code, Err: err}
				}
				resp.N = got
				return resp, nil
			}
		}
		if n == 0 {
			return Response{}, &ProtocolError{Code: code, Err: fmt.Errorf("%w: short response (%d bytes)", ErrMalformed, got)}
		}
	}
}

func (p *Protocol) controlRoundTrip(ctx context.Context, code Code, frame []byte) (Response, error) {
	idx := uint16(p.link.Endpoints().Interface)
	if _, err := p.link.ControlTransfer(ctx, controlOut, uint8(code), 0, idx, frame); err != nil {
		return Response{}, err
	}
	buf := make([]byte, controlReplySize)
	n, err := p.link.ControlTransfer(ctx, controlIn, uint8(code), 0, idx, buf)
	if err != nil {
		return Response{}, err
	}
	want, ok := frameLen(buf[:n])
	if !ok || want > n {
		return Response{}, &ProtocolError{Code: code, Err: fmt.Errorf("%w: short control response (%d bytes)", ErrMalformed, n)}
	}
	resp, err := ParseResponse(buf[:want])
	if err != nil {
		return Response{}, &ProtocolError{Code: code, Err: err}
	}
	resp.N = n
	return resp, nil
}

// recoverPipes puts the link back into a usable state after a transient
// failure: a stalled endpoint is cleared, a timed-out exchange has any late
// reply drained.
func (p *Protocol) recoverPipes(err error) {
	eps := p.link.Endpoints()
	switch {
	case errors.Is(err, usb.ErrStall):
		for _, ep := range []uint8{eps.Out, eps.In} {
			if rerr := p.link.ResetPipe(ep); rerr != nil {
				p.log.Debug("reset pipe failed", "endpoint", fmt.Sprintf("0x%02x", ep), "error", rerr)
			}
		}
	case errors.Is(err, usb.ErrTimeout):
		if ferr := p.link.FlushPipe(eps.In); ferr != nil {
			p.log.Debug("flush pipe failed", "error", ferr)
		}
	}
}

func decodeResponse(code Code, resp Response, reply Reply) error {
	if resp.Status != StatusOK {
		return &ProtocolError{Code: code, Status: resp.Status, Msg: string(resp.Payload)}
	}
	if reply == nil {
		return nil
	}
	if err := DecodeReply(resp.Payload, reply); err != nil {
		return &ProtocolError{Code: code, Err: err}
	}
	return nil
}

func retryable(err error) bool {
	var te *usb.TransportError
	return errors.As(err, &te) && te.Transient()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
