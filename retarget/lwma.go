package retarget

import (
	"math/big"

	"github.com/meowcoin-foundation/meowheaders/chaincfg"
	"github.com/meowcoin-foundation/meowheaders/pow"
	"github.com/meowcoin-foundation/meowheaders/wire"
)

// LWMA1 implements the per-algorithm Linearly-Weighted Moving Average
// retarget: once AuxPOW activates, the chain alternates
// between Scrypt (merge-mined) and MeowPow (native) blocks, and each
// algorithm retargets only against its own most-recent window.
type LWMA1 struct{}

const (
	lwmaN            = 90
	lwmaTChain       = int64(60)
	lwmaAlgos        = int64(2)
	lwmaWalkBoundMul = 10
)

type lwmaAlgo int

const (
	algoMeowPow lwmaAlgo = iota
	algoScrypt
)

func classify(h *wire.BlockHeader, params *chaincfg.Params) lwmaAlgo {
	if h.Height >= params.AuxPowActivationHeight && h.HasAuxPowBit() {
		return algoScrypt
	}
	return algoMeowPow
}

func limitFor(algo lwmaAlgo, params *chaincfg.Params) *big.Int {
	if algo == algoScrypt {
		return params.ScryptLimit
	}
	return params.MeowPowLimit
}

func (LWMA1) NextTarget(r AncestorReader, height uint32, candidate *wire.BlockHeader, params *chaincfg.Params) (uint32, error) {
	algo := classify(candidate, params)
	tTarget := lwmaTChain * lwmaAlgos

	// Walk ancestors from height-1 downward, collecting the most recent
	// N+1 headers sharing candidate's algorithm, bounded at 10*N total
	// ancestors examined.
	need := lwmaN + 1
	matched := make([]*wire.BlockHeader, 0, need)
	bound := lwmaN * lwmaWalkBoundMul

	for i := 0; i < bound && len(matched) < need; i++ {
		if int64(height)-1-int64(i) < 0 {
			break
		}
		h := height - 1 - uint32(i)
		hdr, err := r.HeaderAt(h)
		if err != nil {
			return 0, ErrNotEnoughHeaders
		}
		if classify(hdr, params) == algo {
			matched = append(matched, hdr)
		}
	}
	if len(matched) < need {
		return 0, ErrNotEnoughHeaders
	}

	// matched is newest-first; reverse to oldest-first.
	blocks := make([]*wire.BlockHeader, need)
	for i, h := range matched[:need] {
		blocks[need-1-i] = h
	}

	var sumWeighted, sumTarget big.Int
	prev := int64(blocks[0].Timestamp)
	sixT := 6 * tTarget

	for i := 1; i <= lwmaN; i++ {
		ts := int64(blocks[i].Timestamp)
		if ts < prev+1 {
			ts = prev + 1
		}
		solve := ts - prev
		if solve < 1 {
			solve = 1
		}
		if solve > sixT {
			solve = sixT
		}
		prev = ts

		sumWeighted.Add(&sumWeighted, big.NewInt(int64(i)*solve))

		target, err := pow.DecodeCompact(blocks[i].Bits)
		if err != nil {
			return 0, err
		}
		sumTarget.Add(&sumTarget, target)
	}

	avg := new(big.Int).Div(&sumTarget, big.NewInt(lwmaN))
	k := new(big.Int).Mul(big.NewInt(lwmaN*(lwmaN+1)), big.NewInt(tTarget))
	k.Div(k, big.NewInt(2))

	next := new(big.Int).Mul(avg, &sumWeighted)
	next.Div(next, k)
	next = pow.MinBig(next, limitFor(algo, params))

	return pow.EncodeCompact(next), nil
}
