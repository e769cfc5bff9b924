package engine

import (
	"context"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/zeebo/blake3"

	"github.com/bamsammich/psplink/internal/transport"
)

// Algorithm names a checksum function.
type Algorithm string

const (
	// Blake3 is the default, collision-resistant checksum.
	Blake3 Algorithm = "blake3"
	// XXHash is a fast non-cryptographic checksum.
	XXHash Algorithm = "xxhash"
)

const hashBufSize = 256 * 1024

// ParseAlgorithm accepts "blake3" or "xxhash".
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(strings.ToLower(strings.TrimSpace(s))) {
	case "", Blake3:
		return Blake3, nil
	case XXHash:
		return XXHash, nil
	default:
		return "", fmt.Errorf("unknown checksum %q (want blake3 or xxhash)", s)
	}
}

func (a Algorithm) newHash() hash.Hash {
	if a == XXHash {
		return xxhash.New()
	}
	return blake3.New()
}

// HashReader computes the checksum of r's full content, returning the
// hex-encoded digest.
func HashReader(ctx context.Context, alg Algorithm, r transport.Reader) (string, error) {
	h := alg.newHash()
	if _, err := transport.ReadAll(ctx, r, h, hashBufSize); err != nil {
		return "", fmt.Errorf("hash %s: %w", r.Path(), err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashFile opens path on ep and computes its checksum.
func HashFile(ctx context.Context, alg Algorithm, ep transport.Endpoint, path string) (string, error) {
	r, err := ep.OpenRead(ctx, path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer r.Close()
	return HashReader(ctx, alg, r)
}
