package chainmgr

import (
	"bytes"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meowcoin-foundation/meowheaders/chaincfg"
	"github.com/meowcoin-foundation/meowheaders/chainhash"
	"github.com/meowcoin-foundation/meowheaders/headerfs"
	"github.com/meowcoin-foundation/meowheaders/headerverify"
	"github.com/meowcoin-foundation/meowheaders/pow"
	"github.com/meowcoin-foundation/meowheaders/wire"
)

func testParams() *chaincfg.Params {
	limit, _ := new(big.Int).SetString("7fffff0000000000000000000000000000000000000000000000000000000000", 16)
	genesis, _ := chainhash.NewHashFromStr("00000000e12c9e3b6a1cb36318c598678bd97a5c04d2fbd44e6fbbe6e3ac08e1")
	return &chaincfg.Params{
		Name:                   "mgrtest",
		Genesis:                *genesis,
		GenesisBits:            0x1f7fffff,
		AuxPowActivationHeight: 100_000,
		KawpowActivationTS:     1_500_000_000,
		MeowpowActivationTS:    1_600_000_000,
		X16Rv2ActivationTS:     1_450_000_000,
		NDGWActivationBlock:    50_000,
		KawPowResetStart:       100_000,
		MeowPowResetStart:      200_000,
		MaxTarget:              limit,
		KawPowLimit:            limit,
		MeowPowLimit:           limit,
		ScryptLimit:            limit,
		Testnet:                true,
		PoWSamplingModulus:     10,
		TipStaleAfter:          8 * 60 * 60,
	}
}

// buildLegacyHeaders returns count linked legacy headers starting at
// height start on top of prev, plus each header's identity hash.
func buildLegacyHeaders(t *testing.T, start uint32, count int, prev chainhash.Hash, bits uint32, nonceSeed uint32) ([]*wire.BlockHeader, []chainhash.Hash) {
	t.Helper()
	headers := make([]*wire.BlockHeader, 0, count)
	hashes := make([]chainhash.Hash, 0, count)
	for i := 0; i < count; i++ {
		height := start + uint32(i)
		h := &wire.BlockHeader{
			Variant:   wire.Legacy,
			Version:   4,
			PrevBlock: prev,
			Timestamp: 1_400_000_000 + height*60,
			Bits:      bits,
			Height:    height,
			Nonce:     nonceSeed + height,
		}
		hash, err := h.BlockHash()
		require.NoError(t, err)
		headers = append(headers, h)
		hashes = append(hashes, hash)
		prev = hash
	}
	return headers, hashes
}

func serialize(t *testing.T, headers []*wire.BlockHeader) []byte {
	t.Helper()
	var buf bytes.Buffer
	for _, h := range headers {
		raw, err := wire.Encode(h)
		require.NoError(t, err)
		buf.Write(raw)
	}
	return buf.Bytes()
}

func newTestManager(t *testing.T, params *chaincfg.Params) *Manager {
	t.Helper()
	m, err := New(t.TempDir(), params, pow.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

// TestStartupEmpty checks the genesis-only state of a fresh headers
// directory: height 0, the genesis hash answered from the parameters, and
// a stale tip.
func TestStartupEmpty(t *testing.T) {
	params := testParams()
	m := newTestManager(t, params)

	require.Equal(t, int64(0), m.Height())

	hash, err := m.HashAt(0)
	require.NoError(t, err)
	require.Equal(t, params.Genesis, hash)

	stale, err := m.IsTipStale()
	require.NoError(t, err)
	require.True(t, stale)
}

// TestConnectChunkLinear feeds a linked chunk, checks the resulting tip,
// and confirms a truncated chunk fails without partial writes.
func TestConnectChunkLinear(t *testing.T) {
	params := testParams()
	m := newTestManager(t, params)
	best := m.GetBestChain()

	headers, hashes := buildLegacyHeaders(t, 1, 20, params.Genesis, 0x1f7fffff, 0)
	chunk := serialize(t, headers)

	extended, err := m.ConnectChunk(best, 1, chunk)
	require.NoError(t, err)
	require.True(t, extended)
	require.Equal(t, int64(20), m.Height())

	gotTip, err := m.Tip()
	require.NoError(t, err)
	require.Equal(t, hashes[19], gotTip)

	// Every stored header hashes to what HashAt reports.
	for h := uint32(1); h <= 20; h++ {
		hdr, err := m.ReadHeader(h)
		require.NoError(t, err)
		hdrHash, err := hdr.BlockHash()
		require.NoError(t, err)
		at, err := m.HashAt(h)
		require.NoError(t, err)
		require.Equal(t, hdrHash, at)
	}

	// A chunk starting past tip+1 leaves a gap.
	more, _ := buildLegacyHeaders(t, 25, 2, hashes[19], 0x1f7fffff, 0)
	_, err = m.ConnectChunk(best, 25, serialize(t, more))
	require.Error(t, err)

	// A truncated continuation fails outright and persists nothing.
	next, _ := buildLegacyHeaders(t, 21, 3, hashes[19], 0x1f7fffff, 0)
	raw := serialize(t, next)
	_, err = m.ConnectChunk(best, 21, raw[:len(raw)-5])
	require.Error(t, err)
	require.Equal(t, int64(20), m.Height())

	// A chunk whose first header doesn't link is rejected the same way.
	bad, _ := buildLegacyHeaders(t, 21, 3, chainhash.Hash{0xbb}, 0x1f7fffff, 0)
	_, err = m.ConnectChunk(best, 21, serialize(t, bad))
	require.Error(t, err)
	require.Equal(t, int64(20), m.Height())

	// CanConnect agrees with the tip.
	good, _ := buildLegacyHeaders(t, 21, 1, hashes[19], 0x1f7fffff, 0)
	require.True(t, m.CanConnect(good[0]))
	require.False(t, m.CanConnect(bad[0]))
}

// TestAuxPowAcceptance feeds a merged-mined header on top of a legacy
// chain with PoW checking live (not testnet): the header is accepted with
// no kernel consulted, and its stored form round-trips the native 80
// bytes.
func TestAuxPowAcceptance(t *testing.T) {
	params := testParams()
	params.Testnet = false
	params.AuxPowActivationHeight = 10
	m := newTestManager(t, params)
	best := m.GetBestChain()

	headers, hashes := buildLegacyHeaders(t, 1, 9, params.Genesis, 0x1f7fffff, 0)
	_, err := m.ConnectChunk(best, 1, serialize(t, headers))
	require.NoError(t, err)

	aux := &wire.BlockHeader{
		Variant:   wire.AuxPOW,
		Version:   4 | 0x100,
		PrevBlock: hashes[8],
		Timestamp: 1_700_000_000,
		Bits:      0x1e00ffff,
		Height:    10,
		Nonce:     42,
	}
	auxRaw, err := wire.Encode(aux)
	require.NoError(t, err)
	require.Len(t, auxRaw, wire.LegacyLen)

	extended, err := m.ConnectChunk(best, 10, auxRaw)
	require.NoError(t, err)
	require.True(t, extended)
	require.Equal(t, int64(10), m.Height())

	got, err := m.ReadHeader(10)
	require.NoError(t, err)
	require.Equal(t, wire.AuxPOW, got.Variant)
	gotRaw, err := wire.Encode(got)
	require.NoError(t, err)
	require.Equal(t, auxRaw, gotRaw)
}

// constantKernel returns a fixed PoW hash, steering the target comparison
// without mining.
type constantKernel struct {
	algo pow.Algorithm
	hash chainhash.Hash
}

func (k constantKernel) Algorithm() pow.Algorithm { return k.algo }

func (k constantKernel) Hash(_ []byte, _ pow.Extras) (chainhash.Hash, error) {
	return k.hash, nil
}

// TestInsufficientPoWRejected submits a sampled-height header whose PoW
// hash exceeds its own declared target and expects rejection with no
// persisted change.
func TestInsufficientPoWRejected(t *testing.T) {
	params := testParams()
	params.Testnet = false

	kernels := pow.NewRegistry()
	var powHash chainhash.Hash
	powHash[0] = 2 // numeric value 2
	kernels.Register(constantKernel{algo: pow.AlgoMeowPow, hash: powHash})

	m, err := New(t.TempDir(), params, kernels)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	best := m.GetBestChain()

	headers, hashes := buildLegacyHeaders(t, 1, 9, params.Genesis, 0x1f7fffff, 0)
	_, err = m.ConnectChunk(best, 1, serialize(t, headers))
	require.NoError(t, err)

	weak := &wire.BlockHeader{
		Variant:   wire.Extended,
		Version:   4,
		PrevBlock: hashes[8],
		Timestamp: 1_650_000_000,
		Bits:      0x01010000, // target 1, below the constant hash
		Height:    10,
		NHeight:   10,
	}
	_, err = m.ConnectChunk(best, 10, serialize(t, []*wire.BlockHeader{weak}))
	var invalid *headerverify.InvalidHeaderError
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, headerverify.ReasonInsufficientPoW, invalid.Reason)
	require.Equal(t, int64(9), m.Height())

	// The same header with an honest target is accepted.
	strong := *weak
	strong.Bits = 0x207fffff
	_, err = m.ConnectChunk(best, 10, serialize(t, []*wire.BlockHeader{&strong}))
	require.NoError(t, err)
	require.Equal(t, int64(10), m.Height())
}

// TestForkAndSwap builds a ten-block main chain, forks at height six, and
// extends the fork until it outworks the main chain, expecting the swap to
// promote it in place.
func TestForkAndSwap(t *testing.T) {
	params := testParams()
	dir := t.TempDir()
	m, err := New(dir, params, pow.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	best := m.GetBestChain()

	mainHeaders, mainHashes := buildLegacyHeaders(t, 1, 10, params.Genesis, 0x1f7fffff, 0)
	_, err = m.ConnectChunk(best, 1, serialize(t, mainHeaders))
	require.NoError(t, err)

	// A competing header at height 6 linking to the ancestor at 5.
	altHeaders, altHashes := buildLegacyHeaders(t, 6, 1, mainHashes[4], 0x1f7fffff, 0x1000)
	require.False(t, m.CanConnect(altHeaders[0])) // not a tip extension anywhere

	fork, err := m.Fork(best, altHeaders[0])
	require.NoError(t, err)
	require.Equal(t, int64(6), fork.Height())

	// Work 7 blocks vs 11: the main chain is still the best chain.
	require.Same(t, best, m.GetBestChain())
	require.Equal(t, int64(10), m.Height())

	// Extend the fork past the main chain's work.
	forkHeaders, forkHashes := buildLegacyHeaders(t, 7, 6, altHashes[0], 0x1f7fffff, 0x1000)
	extended, err := m.ConnectChunk(fork, 7, serialize(t, forkHeaders))
	require.NoError(t, err)
	require.True(t, extended)

	// The fork instance was promoted: it is now the main chain.
	require.Same(t, fork, m.GetBestChain())
	require.Nil(t, fork.Parent)
	require.Equal(t, int64(12), m.Height())

	tip, err := m.Tip()
	require.NoError(t, err)
	require.Equal(t, forkHashes[5], tip)

	// Shared history is untouched; the divergent range answers with the
	// promoted headers.
	for h := uint32(1); h <= 5; h++ {
		at, err := m.HashAt(h)
		require.NoError(t, err)
		require.Equal(t, mainHashes[h-1], at)
	}
	at6, err := m.HashAt(6)
	require.NoError(t, err)
	require.Equal(t, altHashes[0], at6)

	// The demoted branch survives as a fork chain rooted at 6, carrying
	// the old headers 6..10.
	demoted, err := m.GetChainsThatContain(10, mainHashes[9])
	require.NoError(t, err)
	require.Len(t, demoted, 1)
	require.Same(t, best, demoted[0])
	require.Equal(t, uint32(6), demoted[0].Forkpoint)
	require.Equal(t, mainHashes[4], demoted[0].PrevHash)

	demotedPath := filepath.Join(dir, "forks",
		headerfs.ForkFileName(6, mainHashes[4], mainHashes[5]))
	_, err = os.Stat(demotedPath)
	require.NoError(t, err)

	// Both chains contain the shared height-5 header; the promoted one
	// sorts first by work.
	both, err := m.GetChainsThatContain(5, mainHashes[4])
	require.NoError(t, err)
	require.Len(t, both, 2)
	require.Same(t, fork, both[0])

	// The registry answers under the post-swap ids: the promoted chain
	// holds the genesis id, the demoted one is keyed by its new root, and
	// the fork's original id is gone.
	byID, err := m.LookupChain(params.Genesis)
	require.NoError(t, err)
	require.Same(t, fork, byID)
	byID, err = m.LookupChain(mainHashes[5])
	require.NoError(t, err)
	require.Same(t, best, byID)
	_, err = m.LookupChain(altHashes[0])
	require.ErrorIs(t, err, ErrChainNotFound)

	// CheckHeader locates headers on either side of the fork, and rejects
	// one belonging to neither.
	require.Same(t, fork, m.CheckHeader(forkHeaders[2]))
	require.Same(t, best, m.CheckHeader(mainHeaders[8]))
	unknown, _ := buildLegacyHeaders(t, 9, 1, mainHashes[7], 0x1f7fffff, 0x9999)
	require.Nil(t, m.CheckHeader(unknown[0]))
}

// TestForkRecovery checks fork files are re-instantiated across a restart
// and inconsistent ones are deleted.
func TestForkRecovery(t *testing.T) {
	params := testParams()
	dir := t.TempDir()

	m, err := New(dir, params, pow.NewRegistry())
	require.NoError(t, err)

	headers, hashes := buildLegacyHeaders(t, 1, 10, params.Genesis, 0x1f7fffff, 0)
	_, err = m.ConnectChunk(m.GetBestChain(), 1, serialize(t, headers))
	require.NoError(t, err)

	alt, altHashes := buildLegacyHeaders(t, 6, 1, hashes[4], 0x1f7fffff, 0x2000)
	_, err = m.Fork(m.GetBestChain(), alt[0])
	require.NoError(t, err)
	require.NoError(t, m.Close())

	// A fork file whose first record is garbage must be swept at startup.
	var junk chainhash.Hash
	junk[10] = 0xab
	bogusPath := filepath.Join(dir, "forks", headerfs.ForkFileName(8, hashes[6], junk))
	require.NoError(t, os.WriteFile(bogusPath, make([]byte, headerfs.RecordSize), 0o644))

	m2, err := New(dir, params, pow.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(func() { m2.Close() })

	require.Equal(t, int64(10), m2.Height())

	recovered, err := m2.GetChainsThatContain(6, altHashes[0])
	require.NoError(t, err)
	require.Len(t, recovered, 1)
	require.Equal(t, uint32(6), recovered[0].Forkpoint)

	_, err = os.Stat(bogusPath)
	require.True(t, os.IsNotExist(err))
}

// TestDGWChunkAlignment pins a two-window DGW checkpoint region and checks
// chunk ingestion enforces the window size and alignment, with the
// sentinel pins answering hash queries for empty slots.
func TestDGWChunkAlignment(t *testing.T) {
	params := testParams()
	params.DGWCheckpointsSpacing = 4
	params.DGWCheckpointsStart = 1

	// Build the real headers first so the sentinel pins carry their true
	// hashes.
	headers, hashes := buildLegacyHeaders(t, 1, 8, params.Genesis, 0x1f7fffff, 0)
	for _, h := range []uint32{1, 4, 5, 8} {
		params.DGWCheckpoints = append(params.DGWCheckpoints, chaincfg.DGWCheckpoint{
			Height: h,
			Hash:   hashes[h-1],
			Bits:   0x1f7fffff,
		})
	}
	require.Equal(t, uint32(8), params.MaxCheckpointHeight())

	m := newTestManager(t, params)
	best := m.GetBestChain()

	// The file is preallocated through the pinned region.
	require.Equal(t, int64(8), m.Height())

	// Sentinels answer from the pins even while their slots are empty.
	at4, err := m.HashAt(4)
	require.NoError(t, err)
	require.Equal(t, hashes[3], at4)

	// A chunk one record short of the window is rejected untouched.
	_, err = m.ConnectChunk(best, 1, serialize(t, headers[:3]))
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "dgw chunk not correct size"))

	// A misaligned start is rejected too.
	_, err = m.ConnectChunk(best, 2, serialize(t, headers[1:5]))
	require.Error(t, err)

	// Window-aligned chunks land in place.
	_, err = m.ConnectChunk(best, 1, serialize(t, headers[:4]))
	require.NoError(t, err)
	_, err = m.ConnectChunk(best, 5, serialize(t, headers[4:8]))
	require.NoError(t, err)

	got, err := m.ReadHeader(3)
	require.NoError(t, err)
	gotHash, err := got.BlockHash()
	require.NoError(t, err)
	require.Equal(t, hashes[2], gotHash)

	// Every sentinel position now agrees with its pin from disk as well.
	for _, h := range []uint32{1, 4, 5, 8} {
		hdr, err := m.ReadHeader(h)
		require.NoError(t, err)
		hdrHash, err := hdr.BlockHash()
		require.NoError(t, err)
		require.Equal(t, hashes[h-1], hdrHash)
	}
}

// TestIsTipStaleFreshHeader checks a recent tip is not considered stale.
func TestIsTipStaleFreshHeader(t *testing.T) {
	params := testParams()
	// Push the extended-activation timestamps out of the way so a
	// current-time legacy header still parses as 80 bytes.
	params.KawpowActivationTS = 0xffff_ffff
	params.MeowpowActivationTS = 0xffff_ffff
	m := newTestManager(t, params)

	h := &wire.BlockHeader{
		Variant:   wire.Legacy,
		Version:   4,
		PrevBlock: params.Genesis,
		Timestamp: uint32(time.Now().Unix()),
		Bits:      0x1f7fffff,
		Height:    1,
		Nonce:     1,
	}
	_, err := m.ConnectChunk(m.GetBestChain(), 1, serialize(t, []*wire.BlockHeader{h}))
	require.NoError(t, err)

	stale, err := m.IsTipStale()
	require.NoError(t, err)
	require.False(t, stale)
}

// TestCannotConnectGap checks the error surfaced for a missing-range
// request carries MissingHeaderError semantics for retarget consumers.
func TestCannotConnectGap(t *testing.T) {
	params := testParams()
	m := newTestManager(t, params)

	_, err := m.HashAt(50)
	var missing *headerfs.MissingHeaderError
	require.True(t, errors.As(err, &missing))
	require.Equal(t, uint32(50), missing.Height)
}
