// Package retarget implements the chain's two difficulty-retargeting
// algorithms: Dark Gravity Wave v3 (single-algorithm sliding window) and
// LWMA-1 (per-algorithm window across a dual-algorithm chain). Both read
// ancestors through an AncestorReader rather than a concrete store type,
// so the math stays independent of how headers are persisted.
package retarget

import (
	"errors"

	"github.com/meowcoin-foundation/meowheaders/chaincfg"
	"github.com/meowcoin-foundation/meowheaders/wire"
)

// ErrNotEnoughHeaders is raised when a retarget engine cannot find enough
// ancestors to compute a result.
var ErrNotEnoughHeaders = errors.New("retarget: not enough headers")

// AncestorReader is the read-only view into a chain a retarget engine
// needs: look up the header at a given height, walking through parent
// chains transparently.
type AncestorReader interface {
	HeaderAt(height uint32) (*wire.BlockHeader, error)
}

// Engine computes the expected target for a candidate header at height,
// given a window of ancestors reachable through r.
type Engine interface {
	NextTarget(r AncestorReader, height uint32, candidate *wire.BlockHeader, params *chaincfg.Params) (uint32, error)
}

// Select returns the retarget engine that governs height: DGWv3 before
// AuxPowActivationHeight, LWMA-1 at and after.
func Select(height uint32, params *chaincfg.Params) Engine {
	if height < params.AuxPowActivationHeight {
		return DGWv3{}
	}
	return LWMA1{}
}
