// Package chainhash provides the fixed-size hash type used throughout the
// header chain engine, along with the double-SHA256 identity hash and the
// Scrypt-1024-1-1 proof-of-work hash. Identity hashes (linkage, queries,
// fork filenames) are always double SHA-256 regardless of which PoW
// algorithm produced the block; PoW hashes exist only for the target
// inequality check.
package chainhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/scrypt"
)

// HashSize is the number of bytes in a hash.
const HashSize = 32

// Hash is a 32-byte hash used throughout the engine: block identity hashes,
// merkle roots, mix hashes, and previous-block links. Stored and compared
// in internal (little-endian-as-bytes) order; String reverses it to the
// conventional big-endian display order.
type Hash [HashSize]byte

// String returns the Hash as a hex string in display (reversed) order.
func (h Hash) String() string {
	var reversed Hash
	for i := 0; i < HashSize/2; i++ {
		reversed[i], reversed[HashSize-1-i] = h[HashSize-1-i], h[i]
	}
	return hex.EncodeToString(reversed[:])
}

// IsEqual returns whether h and target are the same hash.
func (h *Hash) IsEqual(target *Hash) bool {
	if h == nil && target == nil {
		return true
	}
	if h == nil || target == nil {
		return false
	}
	return *h == *target
}

// IsZero reports whether h is the all-zero hash (the "none" sentinel used
// for a chain's absent prev_hash, and for an empty on-disk record).
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// NewHashFromStr creates a Hash from a display-order (big-endian) hex
// string such as one found in a fork filename.
func NewHashFromStr(s string) (*Hash, error) {
	if len(s) > HashSize*2 {
		return nil, fmt.Errorf("hash string length is too long")
	}
	// Fork filenames store hashes without leading zeros (see headerfs),
	// so pad on the left before decoding.
	if len(s)%2 != 0 {
		s = "0" + s
	}
	buf, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	var h Hash
	// buf is display-order (big-endian); reverse into internal order.
	for i, b := range buf {
		h[len(buf)-1-i] = b
	}
	return &h, nil
}

// DoubleHashH computes double SHA-256 of b and returns it as a Hash. This is
// the block identity hash used for every header variant regardless of which
// proof-of-work algorithm produced it.
func DoubleHashH(b []byte) Hash {
	first := sha256.Sum256(b)
	second := sha256.Sum256(first[:])
	return Hash(second)
}

// ScryptPoWHash computes the Scrypt-1024-1-1 proof-of-work hash of an
// 80-byte header, using the header bytes as both password and salt.
func ScryptPoWHash(header80 []byte) (Hash, error) {
	out, err := scrypt.Key(header80, header80, 1024, 1, 1, 32)
	if err != nil {
		return Hash{}, err
	}
	var h Hash
	copy(h[:], out)
	return h, nil
}

// ToBigEndian returns a big-endian copy of h's bytes, suitable for numeric
// comparison against a 256-bit target.
func (h Hash) ToBigEndian() []byte {
	out := make([]byte, HashSize)
	for i := 0; i < HashSize; i++ {
		out[i] = h[HashSize-1-i]
	}
	return out
}
