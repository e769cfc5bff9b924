package engine

import (
	"context"
	"fmt"
)

// VerifyError records a single checksum mismatch.
type VerifyError struct {
	Src     string
	Dst     string
	SrcHash string
	DstHash string
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("%s (%s) does not match %s (%s)", e.Dst, short(e.DstHash), e.Src, short(e.SrcHash))
}

func (*VerifyError) Unwrap() error { return ErrIntegrity }

func short(h string) string {
	if len(h) > 16 {
		return h[:16]
	}
	return h
}

// Checksum returns the hex digest of path using the configured algorithm.
func (e *Engine) Checksum(ctx context.Context, path string) (string, error) {
	return e.hashPath(ctx, e.settings().checksum, path)
}

// VerifyFile compares the checksums of src and dst. A mismatch returns a
// *VerifyError wrapping ErrIntegrity.
func (e *Engine) VerifyFile(ctx context.Context, src, dst string) error {
	return e.verifyFile(ctx, e.settings().checksum, src, dst)
}

func (e *Engine) verifyFile(ctx context.Context, alg Algorithm, src, dst string) error {
	srcHash, err := e.hashPath(ctx, alg, src)
	if err != nil {
		return err
	}
	dstHash, err := e.hashPath(ctx, alg, dst)
	if err != nil {
		return err
	}
	if srcHash != dstHash {
		return &VerifyError{Src: src, Dst: dst, SrcHash: srcHash, DstHash: dstHash}
	}
	e.log.Debug("checksums match", "src", src, "dst", dst, "checksum", alg, "hash", srcHash)
	return nil
}

func (e *Engine) hashPath(ctx context.Context, alg Algorithm, path string) (string, error) {
	ep, err := e.opener.For(path)
	if err != nil {
		return "", err
	}
	return HashFile(ctx, alg, ep, path)
}
