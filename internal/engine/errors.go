package engine

import (
	"errors"
	"fmt"

	"github.com/bamsammich/psplink/internal/proto"
)

var (
	// ErrNotConnected rejects a transfer whose device end is not attached.
	ErrNotConnected = proto.ErrNotConnected

	ErrIntegrity        = errors.New("checksum mismatch")
	ErrRetriesExhausted = errors.New("chunk retries exhausted")
	ErrCancelled        = errors.New("transfer cancelled")
	ErrInvalidChunkSize = errors.New("chunk size must be positive")
	ErrInvalidOffset    = errors.New("resume offset outside file")
	ErrTransferActive   = errors.New("a transfer is in progress")
	ErrClosed           = errors.New("engine closed")
)

// TransferError describes why a transfer stopped.
type TransferError struct {
	Err  error
	Op   string
	Path string
}

func (e *TransferError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }
