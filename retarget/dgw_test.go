package retarget

import (
	"errors"
	"math/big"
	"testing"

	"github.com/meowcoin-foundation/meowheaders/chaincfg"
	"github.com/meowcoin-foundation/meowheaders/pow"
	"github.com/meowcoin-foundation/meowheaders/wire"
)

// mapReader serves ancestors out of a map, standing in for a chain store.
type mapReader map[uint32]*wire.BlockHeader

func (m mapReader) HeaderAt(height uint32) (*wire.BlockHeader, error) {
	h, ok := m[height]
	if !ok {
		return nil, errors.New("no header")
	}
	return h, nil
}

func dgwTestParams() *chaincfg.Params {
	maxTarget, _ := new(big.Int).SetString("7fffff0000000000000000000000000000000000000000000000000000000000", 16)
	kawLimit, _ := new(big.Int).SetString("0000000000ffff00000000000000000000000000000000000000000000000000", 16)
	meowLimit, _ := new(big.Int).SetString("0000000000ff0000000000000000000000000000000000000000000000000000", 16)
	return &chaincfg.Params{
		AuxPowActivationHeight: 1_000_000,
		KawPowResetStart:       100_000,
		MeowPowResetStart:      200_000,
		MaxTarget:              maxTarget,
		KawPowLimit:            kawLimit,
		MeowPowLimit:           meowLimit,
		ScryptLimit:            maxTarget,
	}
}

// dgwWindow builds the 180 ancestors of height with constant bits and the
// given per-block spacing in seconds.
func dgwWindow(height uint32, bits uint32, spacing uint32) mapReader {
	r := make(mapReader)
	for k := uint32(1); k <= 180; k++ {
		h := height - k
		r[h] = &wire.BlockHeader{
			Variant:   wire.Legacy,
			Version:   4,
			Height:    h,
			Timestamp: 1_400_000_000 + h*spacing,
			Bits:      bits,
		}
	}
	return r
}

// TestDGWSteadyState checks the averaging math for a perfectly spaced
// constant-difficulty window: the result is the average target scaled by
// the (one block short) actual timespan.
func TestDGWSteadyState(t *testing.T) {
	params := dgwTestParams()
	const bits = 0x1e0fffff
	reader := dgwWindow(5000, bits, 60)

	got, err := DGWv3{}.NextTarget(reader, 5000, nil, params)
	if err != nil {
		t.Fatalf("NextTarget: %v", err)
	}

	// 179 intervals of 60s against a 180*60s target timespan.
	want := new(big.Int).Set(pow.CompactToBig(bits))
	want.Mul(want, big.NewInt(179*60))
	want.Div(want, big.NewInt(180*60))
	if got != pow.EncodeCompact(want) {
		t.Fatalf("steady state - got %08x, want %08x", got, pow.EncodeCompact(want))
	}
}

// TestDGWClampFast checks that a window of identical timestamps clamps the
// actual timespan to a third of the target timespan.
func TestDGWClampFast(t *testing.T) {
	params := dgwTestParams()
	const bits = 0x1e0fffff
	reader := dgwWindow(5000, bits, 0) // zero spacing: all timestamps equal

	got, err := DGWv3{}.NextTarget(reader, 5000, nil, params)
	if err != nil {
		t.Fatalf("NextTarget: %v", err)
	}

	want := new(big.Int).Set(pow.CompactToBig(bits))
	want.Mul(want, big.NewInt(180*60/3))
	want.Div(want, big.NewInt(180*60))
	if got != pow.EncodeCompact(want) {
		t.Fatalf("clamped - got %08x, want %08x", got, pow.EncodeCompact(want))
	}
}

// TestDGWCapsAtMaxTarget checks that a slow window cannot push the result
// past the chain's PoW limit.
func TestDGWCapsAtMaxTarget(t *testing.T) {
	params := dgwTestParams()
	// Target already at the limit plus a very slow window (clamped to 3x)
	// must stay at the limit.
	bits := pow.EncodeCompact(params.MaxTarget)
	reader := dgwWindow(5000, bits, 100_000)

	got, err := DGWv3{}.NextTarget(reader, 5000, nil, params)
	if err != nil {
		t.Fatalf("NextTarget: %v", err)
	}
	if got != bits {
		t.Fatalf("cap - got %08x, want %08x", got, bits)
	}
}

// TestDGWResetWindows checks the two hard-coded activation windows return
// their algorithm's limit exactly, ancestors or not.
func TestDGWResetWindows(t *testing.T) {
	params := dgwTestParams()

	for _, height := range []uint32{100_000, 100_090, 100_179} {
		got, err := DGWv3{}.NextTarget(mapReader{}, height, nil, params)
		if err != nil {
			t.Fatalf("kawpow reset at %d: %v", height, err)
		}
		if want := pow.EncodeCompact(params.KawPowLimit); got != want {
			t.Errorf("kawpow reset at %d - got %08x, want %08x", height, got, want)
		}
	}

	for _, height := range []uint32{200_000, 200_179} {
		got, err := DGWv3{}.NextTarget(mapReader{}, height, nil, params)
		if err != nil {
			t.Fatalf("meowpow reset at %d: %v", height, err)
		}
		if want := pow.EncodeCompact(params.MeowPowLimit); got != want {
			t.Errorf("meowpow reset at %d - got %08x, want %08x", height, got, want)
		}
	}

	// One past the window end retargets normally again (and fails here
	// for lack of ancestors rather than returning the limit).
	if _, err := (DGWv3{}).NextTarget(mapReader{}, 100_180, nil, params); !errors.Is(err, ErrNotEnoughHeaders) {
		t.Fatalf("past reset window - got %v, want ErrNotEnoughHeaders", err)
	}
}

// TestDGWNotEnoughHeaders covers both a too-short chain and a hole in the
// ancestor window.
func TestDGWNotEnoughHeaders(t *testing.T) {
	params := dgwTestParams()

	if _, err := (DGWv3{}).NextTarget(mapReader{}, 179, nil, params); !errors.Is(err, ErrNotEnoughHeaders) {
		t.Fatalf("short chain - got %v, want ErrNotEnoughHeaders", err)
	}

	reader := dgwWindow(5000, 0x1e0fffff, 60)
	delete(reader, 4900)
	if _, err := (DGWv3{}).NextTarget(reader, 5000, nil, params); !errors.Is(err, ErrNotEnoughHeaders) {
		t.Fatalf("hole in window - got %v, want ErrNotEnoughHeaders", err)
	}
}
