// Package pow implements target/compact-bits arithmetic and the
// pluggable proof-of-work hash kernel registry.
package pow

import (
	"fmt"
	"math/big"

	"github.com/meowcoin-foundation/meowheaders/chainhash"
)

var (
	bigOne = big.NewInt(1)

	// pow256 is 2^256, used both to normalise a target's magnitude and as
	// the basis for the chain-work calculation.
	pow256 = new(big.Int).Lsh(bigOne, 256)
)

// CompactToBig converts a compact representation of a whole number N to a
// big integer.  The representation is similar to IEEE754 floating point
// numbers.
//
// Like IEEE754 floating point, there are three basic components: the sign,
// the exponent, and the mantissa.  They are broken out as follows:
//
//   - the most significant 8 bits represent the unsigned base 256 exponent
//   - bit 23 (the 24th bit) represents the sign bit
//   - the least significant 23 bits represent the mantissa
//
//	-------------------------------------------------
//	|   Exponent     |    Sign    |    Mantissa     |
//	-------------------------------------------------
//	| 8 bits [31-24] | 1 bit [23] | 23 bits [22-00] |
//	-------------------------------------------------
//
// The formula to calculate N is:
//
//	N = (-1^sign) * mantissa * 256^(exponent-3)
//
// Out-of-range encodings (the ones a legitimate header could never carry)
// are rejected by DecodeCompact rather than silently clamped here; this
// raw conversion never fails.
func CompactToBig(compact uint32) *big.Int {
	mantissa := compact & 0x007fffff
	isNegative := compact&0x00800000 != 0
	exponent := compact >> 24

	var bn *big.Int
	if exponent <= 3 {
		mantissa >>= 8 * (3 - exponent)
		bn = big.NewInt(int64(mantissa))
	} else {
		bn = big.NewInt(int64(mantissa))
		bn.Lsh(bn, 8*(uint(exponent)-3))
	}

	if isNegative {
		bn = bn.Neg(bn)
	}
	return bn
}

// BigToCompact converts a whole number N to a compact representation using
// an unsigned 32-bit number.  The compact representation only provides 23
// bits of precision, so values larger than (2^23 - 1) only encode the most
// significant digits of the number.
func BigToCompact(n *big.Int) uint32 {
	if n.Sign() == 0 {
		return 0
	}

	isNegative := n.Sign() < 0
	work := new(big.Int).Abs(n)

	exponent := uint(len(work.Bytes()))

	var mantissa uint32
	if exponent <= 3 {
		mantissa = uint32(work.Bits()[0])
		mantissa <<= 8 * (3 - exponent)
	} else {
		tn := new(big.Int).Set(work)
		mantissa = uint32(tn.Rsh(tn, 8*(exponent-3)).Bits()[0])
	}

	// Mantissa greater than 0x7fffff means an extra byte of precision is
	// needed to avoid the sign bit being interpreted as set; re-normalise.
	if mantissa&0x00800000 != 0 {
		mantissa >>= 8
		exponent++
	}

	compact := uint32(exponent<<24) | mantissa
	if isNegative {
		compact |= 0x00800000
	}
	return compact
}

// ErrInvalidBits is returned by DecodeCompact for bit patterns no valid
// header can carry: negative encodings with a non-zero target, and
// over-range mantissa/exponent combinations.
var ErrInvalidBits = fmt.Errorf("invalid compact bits encoding")

// DecodeCompact converts bits to a 256-bit target, applying the consensus
// range checks:
//
//	negative encoding (sign bit set with non-zero target) -> reject
//	exponent > 34                                         -> reject
//	mantissa > 0xff with exponent > 33                    -> reject
//	mantissa > 0xffff with exponent > 32                  -> reject
//
// These are the arith_uint256 SetCompact overflow conditions: any
// surviving (exponent, mantissa) pair denotes a target that fits in 256
// bits.
func DecodeCompact(bits uint32) (*big.Int, error) {
	mantissa := bits & 0x007fffff
	isNegative := bits&0x00800000 != 0
	exponent := bits >> 24

	if isNegative && mantissa != 0 {
		return nil, ErrInvalidBits
	}
	if exponent > 34 {
		return nil, ErrInvalidBits
	}
	if mantissa > 0xff && exponent > 33 {
		return nil, ErrInvalidBits
	}
	if mantissa > 0xffff && exponent > 32 {
		return nil, ErrInvalidBits
	}

	return CompactToBig(bits), nil
}

// EncodeCompact is the inverse of DecodeCompact, re-normalising the
// mantissa when it would otherwise be read back with the sign bit set
// (mantissa >= 0x800000).
func EncodeCompact(target *big.Int) uint32 {
	return BigToCompact(target)
}

// CalcWork calculates the chain-work contribution of a target: floor((2^256 - t - 1)/(t + 1)) + 1. A target of zero or
// less contributes no work.
func CalcWork(target *big.Int) *big.Int {
	if target.Sign() <= 0 {
		return big.NewInt(0)
	}

	denominator := new(big.Int).Add(target, bigOne)
	numerator := new(big.Int).Sub(pow256, target)
	numerator.Sub(numerator, bigOne)

	work := new(big.Int).Div(numerator, denominator)
	return work.Add(work, bigOne)
}

// CalcWorkForBits is a convenience wrapper combining DecodeCompact and
// CalcWork, used by the chain-work cache and the retarget engines.
func CalcWorkForBits(bits uint32) (*big.Int, error) {
	target, err := DecodeCompact(bits)
	if err != nil {
		return nil, err
	}
	return CalcWork(target), nil
}

// HashMeetsTarget reports whether a PoW hash, interpreted as a big-endian
// unsigned integer, is numerically at or below target.
func HashMeetsTarget(hash chainhash.Hash, target *big.Int) bool {
	hashNum := new(big.Int).SetBytes(hash.ToBigEndian())
	return hashNum.Cmp(target) <= 0
}

// ClampTimespan clamps d (in seconds) to [minSpan, maxSpan], used by DGWv3's
// actualTimespan clamp.
func ClampTimespan(d, minSpan, maxSpan int64) int64 {
	if d < minSpan {
		return minSpan
	}
	if d > maxSpan {
		return maxSpan
	}
	return d
}

// MinBig returns the smaller of a and b without mutating either.
func MinBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}
