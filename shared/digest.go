package shared

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"

	"github.com/minio/sha256-simd" // simd optimized sha256 computation
)

// DigestSize is the width of a digest in bytes.
const DigestSize = sha256.Size

var (
	ErrDigestOutOfRange = errors.New("digest integer out of range")
	ErrInvalidDigest    = errors.New("invalid digest")
)

// Digest is the sha256 hash of a candidate's decimal form.
//
// On the wire a digest is exchanged as the big-endian integer interpretation
// of its bytes, so both parties must use DigestOf to produce comparable values.
type Digest [DigestSize]byte

// DigestOf computes the digest of a candidate.
func DigestOf(c Candidate) Digest {
	return sha256.Sum256([]byte(c.String()))
}

// Equal is a byte-exact comparison.
func (d Digest) Equal(other Digest) bool {
	return bytes.Equal(d[:], other[:])
}

// String returns the hex form of the digest.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Int returns the big-endian integer interpretation of the digest.
func (d Digest) Int() *big.Int {
	return new(big.Int).SetBytes(d[:])
}

// DigestFromInt converts the integer form back into a digest.
func DigestFromInt(v *big.Int) (Digest, error) {
	var d Digest
	if v == nil || v.Sign() < 0 || v.BitLen() > DigestSize*8 {
		return d, ErrDigestOutOfRange
	}
	v.FillBytes(d[:])
	return d, nil
}

// ParseDigest parses the hex form of a digest.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	b, err := hex.DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("%w: %v", ErrInvalidDigest, err)
	}
	if len(b) != DigestSize {
		return d, fmt.Errorf("%w: length %d", ErrInvalidDigest, len(b))
	}
	copy(d[:], b)
	return d, nil
}

// MarshalJSON encodes the digest as a JSON number.
func (d Digest) MarshalJSON() ([]byte, error) {
	return d.Int().MarshalJSON()
}

// UnmarshalJSON accepts a JSON number, optionally quoted.
func (d *Digest) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	v, ok := new(big.Int).SetString(string(data), 10)
	if !ok {
		return fmt.Errorf("%w: not an integer: %q", ErrInvalidDigest, data)
	}
	parsed, err := DigestFromInt(v)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
