package retarget

import (
	"math/big"

	"github.com/meowcoin-foundation/meowheaders/chaincfg"
	"github.com/meowcoin-foundation/meowheaders/pow"
	"github.com/meowcoin-foundation/meowheaders/wire"
)

// DGWv3 implements Dark Gravity Wave v3: a 180-block sliding
// average of past targets, adjusted by the clamped actual timespan over
// that window.
type DGWv3 struct{}

const (
	dgwPastBlocks    = 180
	dgwTargetSpacing = int64(60)
)

func (DGWv3) NextTarget(r AncestorReader, height uint32, _ *wire.BlockHeader, params *chaincfg.Params) (uint32, error) {
	// The two algorithm-activation reset windows return their PoW limit
	// unconditionally, regardless of the averaging window below.
	if params.InKawPowResetWindow(height) {
		return pow.EncodeCompact(params.KawPowLimit), nil
	}
	if params.InMeowPowResetWindow(height) {
		return pow.EncodeCompact(params.MeowPowLimit), nil
	}

	if height < dgwPastBlocks {
		return 0, ErrNotEnoughHeaders
	}

	var avg *big.Int
	var lastTimestamp uint32
	var actualTimespan int64

	for k := uint32(1); k <= dgwPastBlocks; k++ {
		blockHeight := height - k
		hdr, err := r.HeaderAt(blockHeight)
		if err != nil {
			return 0, ErrNotEnoughHeaders
		}

		target, err := pow.DecodeCompact(hdr.Bits)
		if err != nil {
			return 0, err
		}

		if k == 1 {
			avg = target
			lastTimestamp = hdr.Timestamp
		} else {
			weighted := new(big.Int).Mul(avg, big.NewInt(int64(k)))
			weighted.Add(weighted, target)
			avg = weighted.Div(weighted, big.NewInt(int64(k+1)))

			actualTimespan += int64(lastTimestamp) - int64(hdr.Timestamp)
			lastTimestamp = hdr.Timestamp
		}
	}

	targetTimespan := dgwPastBlocks * dgwTargetSpacing
	actualTimespan = pow.ClampTimespan(actualTimespan, targetTimespan/3, targetTimespan*3)

	next := new(big.Int).Mul(avg, big.NewInt(actualTimespan))
	next.Div(next, big.NewInt(targetTimespan))
	next = pow.MinBig(next, params.MaxTarget)

	return pow.EncodeCompact(next), nil
}
