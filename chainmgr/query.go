package chainmgr

import (
	"math/big"
	"sort"
	"time"

	"github.com/meowcoin-foundation/meowheaders/chainhash"
	"github.com/meowcoin-foundation/meowheaders/headerfs"
	"github.com/meowcoin-foundation/meowheaders/headerverify"
	"github.com/meowcoin-foundation/meowheaders/pow"
	"github.com/meowcoin-foundation/meowheaders/retarget"
	"github.com/meowcoin-foundation/meowheaders/wire"
)

// hashAtOn returns the identity hash of the header chain carries at height.
// Pinned heights — genesis, legacy 2016-window ends, DGW sentinels — answer
// from the network parameters directly, so the lookup succeeds even where
// the underlying record is a preallocated empty slot; everything else reads
// (and hashes) the stored header, delegating to the parent chain as usual.
func (m *Manager) hashAtOn(chain *headerfs.Chain, height uint32) (chainhash.Hash, error) {
	if height == 0 {
		return m.params.Genesis, nil
	}
	if cp, ok := m.params.CheckpointAt(height); ok {
		return cp.Hash, nil
	}
	if dcp, ok := m.params.DGWCheckpointAt(height); ok {
		return dcp.Hash, nil
	}
	h, err := chain.ReadHeader(height)
	if err != nil {
		return chainhash.Hash{}, err
	}
	if h == nil {
		return chainhash.Hash{}, &headerfs.MissingHeaderError{Height: height}
	}
	return h.BlockHash()
}

// targetFor decides the expected target for a candidate header at height,
// and whether the header's own bits should simply be trusted: a DGW
// sentinel's pinned target, the header's own bits once past the checkpoint
// horizon, a legacy checkpoint's constant 2016-window target, the header's
// own bits again at non-sentinel positions inside the DGW-pinned range
// (where PoW is still checked against them), or a freshly computed retarget
// otherwise. Ancestors are read through reader so a chunk's own pending
// headers can serve as retarget input before they are persisted.
func (m *Manager) targetFor(reader retarget.AncestorReader, height uint32, candidate *wire.BlockHeader) (target uint32, skipBits bool, err error) {
	if dcp, ok := m.params.DGWCheckpointAt(height); ok {
		return dcp.Bits, false, nil
	}
	if height > m.params.MaxCheckpointHeight() {
		return candidate.Bits, true, nil
	}
	if cp, ok := m.params.LegacyCheckpointCovering(height); ok {
		return cp.Bits, false, nil
	}
	if m.params.InDGWCheckpointRegion(height) {
		return candidate.Bits, true, nil
	}
	engine := retarget.Select(height, m.params)
	t, err := engine.NextTarget(reader, height, candidate, m.params)
	if err != nil {
		return 0, false, err
	}
	return t, false, nil
}

// canConnectOn reports whether header connects on a specific candidate
// chain: height/linkage agreement, target selection, then a full
// headerverify.Verify pass.
func (m *Manager) canConnectOn(chain *headerfs.Chain, header *wire.BlockHeader, checkHeight bool) bool {
	if checkHeight && int64(header.Height) != chain.Height()+1 {
		return false
	}

	if header.Height == 0 {
		hash, err := header.BlockHash()
		if err != nil {
			return false
		}
		return hash.IsEqual(&m.params.Genesis)
	}

	prevHash, err := m.hashAtOn(chain, header.Height-1)
	if err != nil {
		return false
	}
	target, skipBits, err := m.targetFor(chain, header.Height, header)
	if err != nil {
		return false
	}

	opts := headerverify.Options{
		PrevHash:            prevHash,
		Target:              target,
		SkipBits:            skipBits,
		Height:              header.Height,
		MaxCheckpointHeight: m.params.MaxCheckpointHeight(),
		SamplingModulus:     m.params.PoWSamplingModulus,
		Testnet:             m.params.Testnet,
	}
	return headerverify.Verify(header, m.kernels, m.params, opts) == nil
}

// ChainWork returns the cumulative proof-of-work chain carries up to and
// including its current tip.
func (m *Manager) ChainWork(chain *headerfs.Chain) (*big.Int, error) {
	tip := chain.Height()
	if tip < 0 {
		return big.NewInt(0), nil
	}
	return m.chainWorkAt(chain, uint32(tip))
}

func (m *Manager) chainWorkAt(chain *headerfs.Chain, height uint32) (*big.Int, error) {
	hash, err := m.hashAtOn(chain, height)
	if err != nil {
		return nil, err
	}
	if w, ok := m.work.get(hash); ok {
		return w, nil
	}

	// Scan backward in 2016 strides to the nearest cached boundary; the
	// genesis entry seeded at startup is the final fallback, so the loop
	// below never needs to read a record for height 0 (which may be a
	// preallocated empty slot).
	base := big.NewInt(0)
	var baseHeight uint32
	for cur := height - height%2016; cur > 0; cur -= 2016 {
		boundaryHash, err := m.hashAtOn(chain, cur-1)
		if err != nil {
			return nil, err
		}
		if w, ok := m.work.get(boundaryHash); ok {
			base = w
			baseHeight = cur
			break
		}
	}
	if baseHeight == 0 {
		if w, ok := m.work.get(m.params.Genesis); ok {
			base = w
			baseHeight = 1
		}
	}

	work := new(big.Int).Set(base)
	for h := baseHeight; h <= height; h++ {
		hdr, err := chain.HeaderAt(h)
		if err != nil {
			return nil, err
		}
		w, err := pow.CalcWorkForBits(hdr.Bits)
		if err != nil {
			return nil, err
		}
		work.Add(work, w)

		if h%2016 == 2015 || h == height {
			hh, err := m.hashAtOn(chain, h)
			if err != nil {
				return nil, err
			}
			m.work.put(hh, new(big.Int).Set(work))
		}
	}
	return work, nil
}

// HashAt returns the identity hash at height on the best (main) chain.
func (m *Manager) HashAt(height uint32) (chainhash.Hash, error) {
	return m.hashAtOn(m.GetBestChain(), height)
}

// ReadHeader returns the decoded header at height on the best chain.
func (m *Manager) ReadHeader(height uint32) (*wire.BlockHeader, error) {
	return m.GetBestChain().ReadHeader(height)
}

// CanConnect reports whether header connects to the tip of any registered
// chain.
func (m *Manager) CanConnect(header *wire.BlockHeader) bool {
	for _, c := range m.allChains() {
		if m.canConnectOn(c, header, true) {
			return true
		}
	}
	return false
}

// Height returns the best chain's tip height.
func (m *Manager) Height() int64 {
	return m.GetBestChain().Height()
}

// Tip returns the identity hash of the best chain's tip header.
func (m *Manager) Tip() (chainhash.Hash, error) {
	best := m.GetBestChain()
	h := best.Height()
	if h < 0 {
		return chainhash.Hash{}, ErrNoBestChain
	}
	return m.hashAtOn(best, uint32(h))
}

// HeaderAtTip returns the decoded header at the best chain's tip.
func (m *Manager) HeaderAtTip() (*wire.BlockHeader, error) {
	best := m.GetBestChain()
	h := best.Height()
	if h < 0 {
		return nil, ErrNoBestChain
	}
	return best.ReadHeader(uint32(h))
}

// IsTipStale reports whether the best chain's tip header is older than
// params.TipStaleAfter. A store whose tip slot is still empty (nothing past
// the preallocated region has ever been stored) is always stale.
func (m *Manager) IsTipStale() (bool, error) {
	header, err := m.HeaderAtTip()
	if err != nil {
		return false, err
	}
	if header == nil {
		return true, nil
	}
	age := time.Now().Unix() - int64(header.Timestamp)
	return age > int64(m.params.TipStaleAfter), nil
}

// GetChainsThatContain returns every registered chain whose history passes
// through hash at height, ordered by chain-work descending.
func (m *Manager) GetChainsThatContain(height uint32, hash chainhash.Hash) ([]*headerfs.Chain, error) {
	var out []*headerfs.Chain
	for _, c := range m.allChains() {
		if c.CheckHash(height, hash) {
			out = append(out, c)
		}
	}

	works := make(map[*headerfs.Chain]*big.Int, len(out))
	for _, c := range out {
		w, err := m.ChainWork(c)
		if err != nil {
			return nil, err
		}
		works[c] = w
	}
	sort.Slice(out, func(i, j int) bool {
		return works[out[i]].Cmp(works[out[j]]) > 0
	})
	return out, nil
}

// CheckHeader returns the registered chain whose history agrees with
// header's hash at header's height, or nil if none does.
func (m *Manager) CheckHeader(header *wire.BlockHeader) *headerfs.Chain {
	hash, err := header.BlockHash()
	if err != nil {
		return nil
	}
	for _, c := range m.allChains() {
		if c.CheckHash(header.Height, hash) {
			return c
		}
	}
	return nil
}
