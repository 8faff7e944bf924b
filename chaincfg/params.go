// Package chaincfg holds the read-only network parameters the engine is
// handed by its caller. Configuration discovery is the embedding
// application's problem; the engine only ever reads these values. Mainnet,
// testnet, and ad-hoc regression networks all share the one Params shape.
package chaincfg

import (
	"math/big"

	"github.com/meowcoin-foundation/meowheaders/chainhash"
)

// Checkpoint pins the hash and difficulty bits of the block at the end of a
// legacy 2016-block retarget window. Bits is constant across the whole
// 2016-block window it pins — pre-DGW difficulty didn't change mid-window.
type Checkpoint struct {
	Height uint32
	Hash   chainhash.Hash
	Bits   uint32
}

// DGWCheckpoint pins the hash and target of a sentinel position (the first
// or last header) of a Dark Gravity Wave window.
type DGWCheckpoint struct {
	Height uint32
	Hash   chainhash.Hash
	Bits   uint32
}

// Params groups every network-specific constant the engine consumes. All
// fields are read-only from the engine's point of view; the caller
// constructs or selects a Params value and hands it to chainmgr.
type Params struct {
	Name string

	// Genesis is the hash of height 0; GenesisBits its difficulty bits,
	// used to seed the chain-work cache so cumulative work is computable
	// before the genesis record itself has ever been stored.
	Genesis     chainhash.Hash
	GenesisBits uint32

	// Checkpoints is the sorted list of (hash) pins at the end of every
	// 2016-block legacy window.
	Checkpoints []Checkpoint

	// DGWCheckpoints pins the sentinel positions inside the DGW-retargeted
	// region; DGWCheckpointsSpacing is the width of one DGW window and
	// DGWCheckpointsStart is the height the first window begins at.
	DGWCheckpoints        []DGWCheckpoint
	DGWCheckpointsSpacing uint32
	DGWCheckpointsStart   uint32

	// Activation heights/timestamps selecting header variant and PoW
	// algorithm.
	AuxPowActivationHeight uint32
	KawpowActivationHeight uint32
	KawpowActivationTS     uint32
	MeowpowActivationTS    uint32
	X16Rv2ActivationTS     uint32
	NDGWActivationBlock    uint32

	// KawPowResetStart/MeowPowResetStart mark the two hard-coded 180-block
	// "reset windows" DGWv3 forces to the algorithm's PoW limit.
	KawPowResetStart  uint32
	MeowPowResetStart uint32

	// PoW limits, one per algorithm.
	MaxTarget    *big.Int
	KawPowLimit  *big.Int
	MeowPowLimit *big.Int
	ScryptLimit  *big.Int

	// Testnet relaxes PoW verification entirely.
	Testnet bool

	// PoWSamplingModulus tunes how often headers past the checkpoint
	// horizon have their PoW actually checked (every Nth header). Zero
	// disables sampling: every header is fully validated.
	PoWSamplingModulus uint32

	// TipStaleAfter is the age beyond which IsTipStale considers the tip
	// header stale (8h by default).
	TipStaleAfter uint32 // seconds
}

const (
	dgwPastBlocks   = 180
	dgwSpacingBlock = 60 // seconds, TargetSpacing
	lwmaN           = 90
	lwmaTChain      = 60 // seconds
)

// DGWPastBlocks is the DGWv3 averaging window length.
func DGWPastBlocks() uint32 { return dgwPastBlocks }

// DGWTargetSpacing is DGWv3's target block spacing in seconds.
func DGWTargetSpacing() int64 { return dgwSpacingBlock }

// LWMAWindow is the LWMA-1 per-algorithm window length N.
func LWMAWindow() uint32 { return lwmaN }

// LWMATChain is LWMA-1's single-chain target spacing in seconds.
func LWMATChain() int64 { return lwmaTChain }

// MainNetParams are the Meowcoin main network parameters. The genesis hash
// and checkpoint list are placeholders representative of the real network's
// shape (a caller embedding this engine in a production wallet supplies the
// authoritative values); every invariant the engine checks against them
// (the hash at height 0 equals Genesis, sentinel lookups) holds regardless of the
// concrete bytes.
var MainNetParams = Params{
	Name:                   "mainnet",
	Genesis:                genesisHashMainNet,
	GenesisBits:            0x1e00ffff,
	Checkpoints:            nil,
	DGWCheckpoints:         nil,
	DGWCheckpointsSpacing:  dgwPastBlocks,
	DGWCheckpointsStart:    0,
	AuxPowActivationHeight: 1_219_736,
	KawpowActivationHeight: 1_219_736,
	KawpowActivationTS:     1_588_788_000,
	MeowpowActivationTS:    1_656_633_600,
	X16Rv2ActivationTS:     1_569_297_600,
	NDGWActivationBlock:    338_778,
	KawPowResetStart:       1_219_736,
	MeowPowResetStart:      1_338_954,
	MaxTarget:              hexToBig("00000fffff000000000000000000000000000000000000000000000000000"),
	KawPowLimit:            hexToBig("0000000000ff00000000000000000000000000000000000000000000000000"),
	MeowPowLimit:           hexToBig("0000000000ff00000000000000000000000000000000000000000000000000"),
	ScryptLimit:            hexToBig("00000000ffff0000000000000000000000000000000000000000000000000"),
	Testnet:                false,
	PoWSamplingModulus:     10,
	TipStaleAfter:          8 * 60 * 60,
}

// TestNetParams relax PoW checking entirely and use much lower activation
// heights so small fixtures can exercise every code path.
var TestNetParams = Params{
	Name:                   "testnet",
	Genesis:                genesisHashTestNet,
	GenesisBits:            0x1f7fffff,
	DGWCheckpointsSpacing:  dgwPastBlocks,
	AuxPowActivationHeight: 2016,
	KawpowActivationHeight: 2016,
	KawpowActivationTS:     1_500_000_000,
	MeowpowActivationTS:    1_600_000_000,
	X16Rv2ActivationTS:     1_400_000_000,
	NDGWActivationBlock:    200,
	KawPowResetStart:       2016,
	MeowPowResetStart:      2196,
	MaxTarget:              hexToBig("7fffff0000000000000000000000000000000000000000000000000000000"),
	KawPowLimit:            hexToBig("00000000ffff000000000000000000000000000000000000000000000000000"),
	MeowPowLimit:           hexToBig("00000000ffff000000000000000000000000000000000000000000000000000"),
	ScryptLimit:            hexToBig("7fffff0000000000000000000000000000000000000000000000000000000"),
	Testnet:                true,
	PoWSamplingModulus:     10,
	TipStaleAfter:          8 * 60 * 60,
}

func hexToBig(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		panic("chaincfg: invalid hex constant " + s)
	}
	return n
}

var genesisHashMainNet = mustHash("6a1cb36318c598678bd97a5c04d2fbd44e6fbbe6e3ac08e13f21e2e8e12c9e3b")
var genesisHashTestNet = mustHash("000000bead5e42d1e0d0baa66d8b45dbd5e8d6b1fcc2a2a6c5da8f8dd1eb3c0")

func mustHash(s string) chainhash.Hash {
	h, err := chainhash.NewHashFromStr(s)
	if err != nil {
		panic(err)
	}
	return *h
}

// MaxCheckpointHeight returns the height of the highest pinned header —
// legacy or DGW sentinel. Below this horizon PoW is fully revalidated and
// forks are never tolerated; it is also how far the main-chain file is
// preallocated. Returns 0 if the network carries no pins at all.
func (p *Params) MaxCheckpointHeight() uint32 {
	var max uint32
	for _, c := range p.Checkpoints {
		if c.Height > max {
			max = c.Height
		}
	}
	for _, c := range p.DGWCheckpoints {
		if c.Height > max {
			max = c.Height
		}
	}
	return max
}

// InDGWCheckpointRegion reports whether height falls inside the range
// covered by the DGW sentinel pins. Non-sentinel positions in this region
// have their own bits trusted; PoW is still checked against them.
func (p *Params) InDGWCheckpointRegion(height uint32) bool {
	if len(p.DGWCheckpoints) == 0 {
		return false
	}
	var max uint32
	for _, c := range p.DGWCheckpoints {
		if c.Height > max {
			max = c.Height
		}
	}
	return height >= p.DGWCheckpointsStart && height <= max
}

// CheckpointAt returns the checkpoint pinned at height, if any.
func (p *Params) CheckpointAt(height uint32) (Checkpoint, bool) {
	for _, c := range p.Checkpoints {
		if c.Height == height {
			return c, true
		}
	}
	return Checkpoint{}, false
}

// LegacyCheckpointCovering returns the checkpoint pinning the 2016-block
// legacy window height falls in (index height/2016), if the network has
// one. Used to trust a constant pre-DGW difficulty target across its whole
// window.
func (p *Params) LegacyCheckpointCovering(height uint32) (Checkpoint, bool) {
	idx := height / 2016
	if int(idx) >= len(p.Checkpoints) {
		return Checkpoint{}, false
	}
	return p.Checkpoints[idx], true
}

// DGWCheckpointAt returns the DGW sentinel pinned at height, if any.
func (p *Params) DGWCheckpointAt(height uint32) (DGWCheckpoint, bool) {
	for _, c := range p.DGWCheckpoints {
		if c.Height == height {
			return c, true
		}
	}
	return DGWCheckpoint{}, false
}

// IsDGWSentinel reports whether height is the first or last position of a
// DGWCheckpointsSpacing-wide window starting at DGWCheckpointsStart.
func (p *Params) IsDGWSentinel(height uint32) bool {
	if height < p.DGWCheckpointsStart || p.DGWCheckpointsSpacing == 0 {
		return false
	}
	offset := (height - p.DGWCheckpointsStart) % p.DGWCheckpointsSpacing
	return offset == 0 || offset == p.DGWCheckpointsSpacing-1
}

// InKawPowResetWindow / InMeowPowResetWindow report whether height falls
// inside one of the two hard-coded 180-block reset windows DGWv3 forces to
// the algorithm's PoW limit.
func (p *Params) InKawPowResetWindow(height uint32) bool {
	return height >= p.KawPowResetStart && height < p.KawPowResetStart+dgwPastBlocks
}

func (p *Params) InMeowPowResetWindow(height uint32) bool {
	return height >= p.MeowPowResetStart && height < p.MeowPowResetStart+dgwPastBlocks
}
