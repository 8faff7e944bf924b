package chainmgr

import (
	"fmt"

	"github.com/meowcoin-foundation/meowheaders/chainhash"
	"github.com/meowcoin-foundation/meowheaders/headerfs"
	"github.com/meowcoin-foundation/meowheaders/headerverify"
	"github.com/meowcoin-foundation/meowheaders/wire"
)

// ConnectChunk verifies and persists a concatenation of wire headers
// starting at startHeight against chain, all-or-nothing: either every
// header in data verifies and the whole chunk is written, or nothing is.
// Inside the checkpoint region chunks land in the preallocated file at
// their own offset, so startHeight may sit below the reported tip; a chunk
// starting past the tip+1 would leave a gap and is rejected. Returns
// whether the chunk extended chain all the way to its own tip.
func (m *Manager) ConnectChunk(chain *headerfs.Chain, startHeight uint32, data []byte) (bool, error) {
	if int64(startHeight) > chain.Height()+1 {
		return false, fmt.Errorf("chainmgr: chunk start height %d leaves a gap above chain tip %d", startHeight, chain.Height())
	}

	headers, raws, err := headerfs.SplitChunk(data, startHeight, m.params)
	if err != nil {
		return false, err
	}
	if len(headers) == 0 {
		return false, fmt.Errorf("chainmgr: empty or truncated chunk")
	}

	// Chunks starting inside the DGW-pinned range must line up exactly with
	// a DGW window: only then do the sentinel pins at both ends anchor what
	// the chunk claims. A chunk starting below the range is not checked
	// here.
	if m.params.InDGWCheckpointRegion(startHeight) {
		spacing := m.params.DGWCheckpointsSpacing
		if spacing == 0 ||
			(startHeight-m.params.DGWCheckpointsStart)%spacing != 0 ||
			uint32(len(headers)) != spacing {
			return false, fmt.Errorf("chainmgr: dgw chunk not correct size")
		}
	}

	if err := m.verifyChunk(chain, headers); err != nil {
		return false, err
	}

	raw := make([]byte, 0)
	for _, r := range raws {
		raw = append(raw, r...)
	}
	if err := chain.SaveChunk(startHeight, raw, m.GetBestChain()); err != nil {
		return false, err
	}

	if err := m.swapWithParent(chain); err != nil {
		return false, err
	}

	last := headers[len(headers)-1]
	return int64(last.Height) == chain.Height(), nil
}

// verifyChunk checks every header in headers against chain in order,
// threading prev_hash linkage through the in-memory slice itself rather than
// re-reading the store between records.
func (m *Manager) verifyChunk(chain *headerfs.Chain, headers []*wire.BlockHeader) error {
	var prevHash chainhash.Hash
	if headers[0].Height == 0 {
		prevHash = chainhash.Hash{}
	} else {
		h, err := m.hashAtOn(chain, headers[0].Height-1)
		if err != nil {
			return err
		}
		prevHash = h
	}

	for i, h := range headers {
		if h.Height == 0 {
			hash, err := h.BlockHash()
			if err != nil {
				return err
			}
			if !hash.IsEqual(&m.params.Genesis) {
				return fmt.Errorf("chainmgr: genesis header hash mismatch")
			}
		} else {
			reader := pendingReader{chain: chain, pending: headers[:i], base: headers[0].Height}
			target, skipBits, err := m.targetFor(reader, h.Height, h)
			if err != nil {
				return err
			}
			opts := headerverify.Options{
				PrevHash:            prevHash,
				Target:              target,
				SkipBits:            skipBits,
				Height:              h.Height,
				MaxCheckpointHeight: m.params.MaxCheckpointHeight(),
				SamplingModulus:     m.params.PoWSamplingModulus,
				Testnet:             m.params.Testnet,
			}
			if err := headerverify.Verify(h, m.kernels, m.params, opts); err != nil {
				return fmt.Errorf("chainmgr: header at height %d: %w", h.Height, err)
			}
		}

		hash, err := h.BlockHash()
		if err != nil {
			return err
		}
		prevHash = hash
	}
	return nil
}

// pendingReader lets the retarget engines read ancestors that may still be
// sitting in the in-memory pending slice rather than on disk yet.
type pendingReader struct {
	chain   *headerfs.Chain
	pending []*wire.BlockHeader
	base    uint32 // height of pending[0]
}

func (p pendingReader) HeaderAt(height uint32) (*wire.BlockHeader, error) {
	if len(p.pending) > 0 && height >= p.base && int(height-p.base) < len(p.pending) {
		return p.pending[height-p.base], nil
	}
	return p.chain.HeaderAt(height)
}
