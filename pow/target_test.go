package pow

import (
	"math/big"
	"testing"

	"github.com/meowcoin-foundation/meowheaders/chainhash"
)

// TestCompactRoundTrip checks BigToCompact(CompactToBig(b)) == b for
// well-formed encodings and the inverse for canonical targets.
func TestCompactRoundTrip(t *testing.T) {
	bits := []uint32{
		0x1d00ffff, // the classic SHA256d limit
		0x1e00ffff,
		0x1f7fffff,
		0x1c7fff00,
		0x03123456,
		0x04923456 &^ 0x00800000, // keep the sign bit clear
	}
	for _, b := range bits {
		target := CompactToBig(b)
		back := BigToCompact(target)
		if back != b {
			t.Errorf("bits %08x: round trip gave %08x", b, back)
		}
	}

	targets := []*big.Int{
		big.NewInt(0x7fffff),
		new(big.Int).Lsh(big.NewInt(0xffff), 208),
		new(big.Int).Lsh(big.NewInt(0x7fffff), 8*28),
	}
	for _, target := range targets {
		back := CompactToBig(BigToCompact(target))
		if back.Cmp(target) != 0 {
			t.Errorf("target %x: round trip gave %x", target, back)
		}
	}
}

// TestBigToCompactRenormalises checks the mantissa re-normalisation when
// the high bit would collide with the sign bit.
func TestBigToCompactRenormalises(t *testing.T) {
	// 0x800000 needs exponent 4 / mantissa 0x008000, not exponent 3 with
	// the sign bit set.
	got := BigToCompact(big.NewInt(0x800000))
	want := uint32(0x04008000)
	if got != want {
		t.Fatalf("BigToCompact(0x800000) - got %08x, want %08x", got, want)
	}
}

// TestDecodeCompactRejections checks the encodings a valid header can
// never carry, pinning both sides of each overflow boundary.
func TestDecodeCompactRejections(t *testing.T) {
	bad := []uint32{
		0x03800001, // negative with non-zero target
		0x23000001, // exponent 35
		0xff123456, // absurd exponent
		0x22000100, // mantissa > 0xff with exponent 34
		0x21100000, // mantissa > 0xffff with exponent 33
		0x22010000, // mantissa > 0xffff with exponent 34
	}
	for _, b := range bad {
		if _, err := DecodeCompact(b); err == nil {
			t.Errorf("bits %08x: expected rejection, got nil error", b)
		}
	}

	good := []uint32{
		0x1d00ffff,
		0x03000000,
		0x220000ff, // largest mantissa allowed at exponent 34
		0x2100ffff, // largest mantissa allowed at exponent 33
		0x207fffff, // full mantissa fits at exponent 32
	}
	for _, b := range good {
		if _, err := DecodeCompact(b); err != nil {
			t.Errorf("bits %08x: unexpected rejection: %v", b, err)
		}
	}
}

// TestCalcWork checks the chain-work formula against the classic value for
// the 0x1d00ffff limit: floor((2^256 - t - 1)/(t + 1)) + 1 == 0x100010001.
func TestCalcWork(t *testing.T) {
	target := CompactToBig(0x1d00ffff)
	got := CalcWork(target)
	want, _ := new(big.Int).SetString("100010001", 16)
	if got.Cmp(want) != 0 {
		t.Fatalf("CalcWork(0x1d00ffff) - got %x, want %x", got, want)
	}

	if CalcWork(big.NewInt(0)).Sign() != 0 {
		t.Fatal("CalcWork(0) - want zero work")
	}
	if CalcWork(big.NewInt(-5)).Sign() != 0 {
		t.Fatal("CalcWork(negative) - want zero work")
	}
}

// TestHashMeetsTarget checks the big-endian interpretation of a PoW hash.
func TestHashMeetsTarget(t *testing.T) {
	var h chainhash.Hash
	h[31] = 0x01 // big-endian value 1 << 248

	huge := new(big.Int).Lsh(big.NewInt(1), 255)
	tiny := big.NewInt(1000)

	if !HashMeetsTarget(h, huge) {
		t.Error("hash below target reported as not meeting it")
	}
	if HashMeetsTarget(h, tiny) {
		t.Error("hash above target reported as meeting it")
	}

	// Equality is inclusive.
	exact := new(big.Int).SetBytes(h.ToBigEndian())
	if !HashMeetsTarget(h, exact) {
		t.Error("hash equal to target must meet it")
	}
}

// TestClampTimespan covers both clamp edges and the pass-through case.
func TestClampTimespan(t *testing.T) {
	if got := ClampTimespan(10, 100, 300); got != 100 {
		t.Errorf("below floor - got %d, want 100", got)
	}
	if got := ClampTimespan(500, 100, 300); got != 300 {
		t.Errorf("above ceiling - got %d, want 300", got)
	}
	if got := ClampTimespan(200, 100, 300); got != 200 {
		t.Errorf("in range - got %d, want 200", got)
	}
}
